package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/samber/mo"
	"go.uber.org/zap"

	"github.com/yourusername/embed-archiver/internal/domain"
)

var (
	ErrChannelNotApproved = errors.New("channel is not approved for archiving")
	ErrAlreadyArchived    = errors.New("message is already archived")
	ErrNoQualifyingEmbeds = errors.New("message has no archivable embeds")
)

// LookupStatus classifies what is known about a message's archive
type LookupStatus string

const (
	LookupArchived           LookupStatus = "archived"
	LookupArchivedWithErrors LookupStatus = "archived_with_errors"
	LookupFailed             LookupStatus = "failed"
	LookupNoQualifyingEmbeds LookupStatus = "no_qualifying_embeds"
	LookupChannelNotApproved LookupStatus = "channel_not_approved"
	LookupPending            LookupStatus = "pending"
)

// Reasons shown to users when no usable archive exists
const (
	ReasonNoEmbeds    = "No embeds on message. Attachments and non-embedded links are not archived."
	ReasonNotApproved = "Message is not in an approved archiving channel or thread"
	ReasonPending     = "Has not been archived yet."
	ReasonFailed      = "Every media download failed."
)

// LookupResult answers "was this message archived"
type LookupResult struct {
	MessageID domain.Snowflake      `json:"message_id"`
	Status    LookupStatus          `json:"status"`
	Reason    string                `json:"reason,omitempty"`
	Record    *domain.ArchiveRecord `json:"record,omitempty"`
}

// Found reports whether a record exists
func (r *LookupResult) Found() bool {
	return r.Record != nil
}

// LookupService is the query and manual-entry side of the archive
type LookupService struct {
	ledger  domain.ArchiveLedger
	cursors domain.CursorStore
	queue   domain.TaskQueue
	discord *domain.DiscordConfig
	logger  *zap.Logger
}

// NewLookupService creates a new lookup service
func NewLookupService(
	ledger domain.ArchiveLedger,
	cursors domain.CursorStore,
	queue domain.TaskQueue,
	discord *domain.DiscordConfig,
	logger *zap.Logger,
) *LookupService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LookupService{
		ledger:  ledger,
		cursors: cursors,
		queue:   queue,
		discord: discord,
		logger:  logger,
	}
}

// Exists reports whether the message has a record
func (s *LookupService) Exists(ctx context.Context, messageID domain.Snowflake) (bool, error) {
	return s.ledger.Exists(ctx, messageID)
}

// Get returns the message's record
func (s *LookupService) Get(ctx context.Context, messageID domain.Snowflake) (mo.Option[*domain.ArchiveRecord], error) {
	return s.ledger.Get(ctx, messageID)
}

// Explain looks up a message and, when it has no record, gives the likely
// cause. channelID and message are optional context from the caller.
func (s *LookupService) Explain(ctx context.Context, channelID string, messageID domain.Snowflake, message *domain.Message) (*LookupResult, error) {
	stored, err := s.ledger.Get(ctx, messageID)
	if err != nil {
		return nil, err
	}

	result := &LookupResult{MessageID: messageID}
	if record, ok := stored.Get(); ok {
		result.Record = record
		switch {
		case record.Failed():
			result.Status = LookupFailed
			result.Reason = ReasonFailed
		case record.HasErrors():
			result.Status = LookupArchivedWithErrors
		default:
			result.Status = LookupArchived
		}
		return result, nil
	}

	switch {
	case message != nil && !message.HasArchivableMedia():
		result.Status = LookupNoQualifyingEmbeds
		result.Reason = ReasonNoEmbeds
	case channelID != "" && !s.discord.IsApprovedChannel(channelID):
		result.Status = LookupChannelNotApproved
		result.Reason = ReasonNotApproved
	default:
		result.Status = LookupPending
		result.Reason = ReasonPending
	}
	return result, nil
}

// ArchiveNow queues one archive work-item for a message
func (s *LookupService) ArchiveNow(ctx context.Context, channelID string, message domain.Message) error {
	if !s.discord.IsApprovedChannel(channelID) {
		return ErrChannelNotApproved
	}
	if !message.ID.Valid() {
		return fmt.Errorf("invalid message id %q", message.ID)
	}

	exists, err := s.ledger.Exists(ctx, message.ID)
	if err != nil {
		return err
	}
	if exists {
		return ErrAlreadyArchived
	}
	if !message.HasArchivableMedia() {
		return ErrNoQualifyingEmbeds
	}

	item := domain.ArchiveWorkItem{ChannelID: channelID, Message: message}
	if err := s.queue.Enqueue(ctx, domain.NewArchiveTask(item), 0); err != nil {
		return fmt.Errorf("failed to queue message %s: %w", message.ID, err)
	}

	s.logger.Info("archive_requested",
		zap.String("channel_id", channelID),
		zap.String("message_id", string(message.ID)))
	return nil
}

// EnqueueTraversal queues a manual traversal of an approved channel
func (s *LookupService) EnqueueTraversal(ctx context.Context, channelID string, direction domain.Direction) error {
	if !s.discord.IsApprovedChannel(channelID) {
		return ErrChannelNotApproved
	}
	if !domain.ValidateDirection(direction) {
		return fmt.Errorf("invalid direction: %s", direction)
	}
	if err := s.queue.Enqueue(ctx, domain.NewTraverseTask(channelID, direction), 0); err != nil {
		return fmt.Errorf("failed to queue traversal of channel %s: %w", channelID, err)
	}

	s.logger.Info("traversal_requested",
		zap.String("channel_id", channelID),
		zap.String("direction", string(direction)))
	return nil
}

// Channels returns the approved channels
func (s *LookupService) Channels() []string {
	return s.discord.Channels
}

// Cursor returns a channel's traversal cursor
func (s *LookupService) Cursor(ctx context.Context, channelID string) (mo.Option[*domain.ChannelCursorState], error) {
	return s.cursors.Get(ctx, channelID)
}
