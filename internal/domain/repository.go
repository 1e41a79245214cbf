package domain

import (
	"context"
	"time"

	"github.com/samber/mo"
)

// KVStore is a durable key-value store holding JSON documents
type KVStore interface {
	// Get returns the value stored under key, or None if absent
	Get(ctx context.Context, key string) (mo.Option[[]byte], error)

	// Put stores value under key, overwriting any previous value
	Put(ctx context.Context, key string, value []byte) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
}

// ArchiveLedger records which messages have been archived.
// Put is not compare-and-swap: callers check Exists first and accept the race.
type ArchiveLedger interface {
	Exists(ctx context.Context, messageID Snowflake) (bool, error)
	Put(ctx context.Context, record *ArchiveRecord) error
	Get(ctx context.Context, messageID Snowflake) (mo.Option[*ArchiveRecord], error)
}

// CursorStore persists per-channel traversal cursors.
// It offers no read-modify-write atomicity.
type CursorStore interface {
	Get(ctx context.Context, channelID string) (mo.Option[*ChannelCursorState], error)
	Put(ctx context.Context, state *ChannelCursorState) error
}

// TaskQueue is an at-least-once work queue with explicit acknowledgement
type TaskQueue interface {
	// Enqueue adds a task that becomes visible after delay
	Enqueue(ctx context.Context, task Task, delay time.Duration) error

	// Lease hands out up to n visible tasks of a queue, hiding them until
	// acknowledged, released, or the lease expires
	Lease(ctx context.Context, queue QueueName, n int) ([]*LeasedTask, error)

	// Ack removes a processed task
	Ack(ctx context.Context, id string) error

	// Release makes a leased task visible again after delay
	Release(ctx context.Context, id string, delay time.Duration, cause error) error

	// Stats returns per-queue counters
	Stats(ctx context.Context) (map[QueueName]*QueueStats, error)
}

// LeasedTask is a task handed to a consumer
type LeasedTask struct {
	ID       string
	Attempts int
	Task     Task
}

// QueueStats represents queue statistics
type QueueStats struct {
	Pending int64 `json:"pending"`
	Leased  int64 `json:"leased"`
	Dead    int64 `json:"dead"`
}

// MessageLister reads a channel's message history from upstream
type MessageLister interface {
	ListMessages(ctx context.Context, channelID string, query MessageQuery) (*MessagePage, error)
}

// MediaFetcher downloads media with a single fallback
type MediaFetcher interface {
	Fetch(ctx context.Context, primaryURL, backupURL string) (*FetchResult, error)
}

// ObjectMetadata is attached to stored objects
type ObjectMetadata struct {
	ContentType        string `json:"content_type,omitempty"`
	CacheControl       string `json:"cache_control,omitempty"`
	ContentDisposition string `json:"content_disposition,omitempty"`
}

// ObjectStore is write-only durable object storage for media bytes
type ObjectStore interface {
	Put(ctx context.Context, key string, body []byte, meta ObjectMetadata) error
}
