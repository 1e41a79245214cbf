package app

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net/url"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/yourusername/embed-archiver/internal/domain"
	"github.com/yourusername/embed-archiver/internal/telemetry"
)

// ArchiveOutcome reports what processing a work-item did
type ArchiveOutcome struct {
	Skipped bool                  `json:"skipped"` // a record already existed
	Record  *domain.ArchiveRecord `json:"record,omitempty"`
}

// DownloadWorker archives the media of one message per work-item
type DownloadWorker struct {
	ledger  domain.ArchiveLedger
	fetcher domain.MediaFetcher
	store   domain.ObjectStore
	config  *domain.ArchiveConfig
	metrics *telemetry.Metrics
	logger  *zap.Logger
	sleep   Sleeper
	jitter  func(max time.Duration) time.Duration
}

// NewDownloadWorker creates a new download worker
func NewDownloadWorker(
	ledger domain.ArchiveLedger,
	fetcher domain.MediaFetcher,
	store domain.ObjectStore,
	config *domain.ArchiveConfig,
	metrics *telemetry.Metrics,
	logger *zap.Logger,
) *DownloadWorker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DownloadWorker{
		ledger:  ledger,
		fetcher: fetcher,
		store:   store,
		config:  config,
		metrics: metrics,
		logger:  logger,
		sleep:   SleepContext,
		jitter:  randomJitter,
	}
}

// WithSleeper replaces the sleeper, for tests
func (w *DownloadWorker) WithSleeper(sleep Sleeper) *DownloadWorker {
	w.sleep = sleep
	return w
}

// Process archives a work-item unless its message already has a record.
// Media that cannot be fetched is recorded as an error entry; the record is
// written even when every media failed. Errors are returned only for
// conditions worth a redelivery, such as a failing object store or ledger.
func (w *DownloadWorker) Process(ctx context.Context, item domain.ArchiveWorkItem) (*ArchiveOutcome, error) {
	messageID := item.Message.ID
	if !messageID.Valid() {
		return nil, fmt.Errorf("invalid message id %q", messageID)
	}

	exists, err := w.ledger.Exists(ctx, messageID)
	if err != nil {
		return nil, fmt.Errorf("failed to check archive of message %s: %w", messageID, err)
	}
	if exists {
		w.metrics.DuplicateSkipped()
		w.logger.Debug("Message already archived", zap.String("message_id", string(messageID)))
		return &ArchiveOutcome{Skipped: true}, nil
	}

	record := domain.NewArchiveRecord(item)
	for _, ref := range item.Message.MediaRefs() {
		if err := w.sleep(ctx, w.jitter(w.config.FetchJitter)); err != nil {
			return nil, err
		}
		if err := w.archiveMedia(ctx, item, ref, record); err != nil {
			return nil, err
		}
	}

	record.ArchivedAt = time.Now().UTC()
	if err := w.ledger.Put(ctx, record); err != nil {
		return nil, fmt.Errorf("failed to write archive record of message %s: %w", messageID, err)
	}
	w.metrics.ArchiveWritten()

	fields := []zap.Field{
		zap.String("channel_id", item.ChannelID),
		zap.String("message_id", string(messageID)),
		zap.Int("media", len(record.Media)),
		zap.Int("errors", len(record.Errors)),
	}
	if record.HasErrors() {
		w.logger.Warn("Archived message with errors", fields...)
	} else {
		w.logger.Info("Archived message", fields...)
	}
	return &ArchiveOutcome{Record: record}, nil
}

func (w *DownloadWorker) archiveMedia(ctx context.Context, item domain.ArchiveWorkItem, ref domain.MediaRef, record *domain.ArchiveRecord) error {
	start := time.Now()
	result, err := w.fetcher.Fetch(ctx, ref.URL, ref.ProxyURL)
	w.metrics.ObserveFetch(time.Since(start))
	if err != nil {
		var fetchErr *domain.FetchError
		if !errors.As(err, &fetchErr) {
			return err
		}
		w.metrics.MediaFetchFailed()
		record.Errors = append(record.Errors, domain.ArchiveError{
			Message:   fmt.Sprintf("Failed to download %s of embed %d: %v", ref.Variant, ref.EmbedIndex, fetchErr),
			Detail:    fetchErr.Detail(),
			SourceURL: ref.URL,
		})
		w.logger.Warn("Media download failed",
			zap.String("message_id", string(item.Message.ID)),
			zap.String("url", ref.URL),
			zap.String("detail", fetchErr.Detail()))
		return nil
	}

	sourceURL := ref.URL
	if result.UsedBackup {
		sourceURL = ref.ProxyURL
	}

	key := ObjectKey(item.ChannelID, item.Message.ID, sourceURL)
	meta := domain.ObjectMetadata{
		ContentType:        result.Header.Get("Content-Type"),
		CacheControl:       w.config.CacheControl,
		ContentDisposition: result.Header.Get("Content-Disposition"),
	}
	if err := w.store.Put(ctx, key, result.Body, meta); err != nil {
		return fmt.Errorf("failed to store media of message %s: %w", item.Message.ID, err)
	}
	w.metrics.MediaStoredFrom(result.UsedBackup)

	contentLength := result.Header.Get("Content-Length")
	if contentLength == "" {
		contentLength = strconv.Itoa(len(result.Body))
	}
	record.Media = append(record.Media, domain.ArchivedMedia{
		SourceURL:          sourceURL,
		StoredKey:          key,
		Variant:            ref.Variant,
		Link:               ref.Link,
		UsedBackup:         result.UsedBackup,
		ContentType:        meta.ContentType,
		ContentLength:      contentLength,
		ContentDisposition: meta.ContentDisposition,
	})
	return nil
}

// ObjectKey builds a fresh storage key "<channel>/<message>/<uuid><ext>".
// Keys are random so concurrent archivers of one message never overwrite each other.
func ObjectKey(channelID string, messageID domain.Snowflake, sourceURL string) string {
	return channelID + "/" + string(messageID) + "/" + uuid.New().String() + extensionOf(sourceURL)
}

// extensionOf returns a short alphanumeric extension of the URL path, if any
func extensionOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	ext := strings.ToLower(path.Ext(u.Path))
	if len(ext) < 2 || len(ext) > 6 {
		return ""
	}
	for _, r := range ext[1:] {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') {
			return ""
		}
	}
	return ext
}

func randomJitter(max time.Duration) time.Duration {
	if max <= 0 {
		return 0
	}
	return time.Duration(rand.Int63n(int64(max)))
}
