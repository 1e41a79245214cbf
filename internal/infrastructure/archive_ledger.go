package infrastructure

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/samber/mo"

	"github.com/yourusername/embed-archiver/internal/domain"
)

// Namespaces of the key-value store
const (
	NamespaceArchive = "archive"
	NamespaceCursor  = "cursor"
)

// KVArchiveLedger stores archive records as JSON documents
type KVArchiveLedger struct {
	kv domain.KVStore
}

// NewKVArchiveLedger creates a ledger over a key-value store
func NewKVArchiveLedger(kv domain.KVStore) *KVArchiveLedger {
	return &KVArchiveLedger{kv: kv}
}

// Exists reports whether a record exists for the message
func (l *KVArchiveLedger) Exists(ctx context.Context, messageID domain.Snowflake) (bool, error) {
	value, err := l.kv.Get(ctx, domain.ArchiveKey(messageID))
	if err != nil {
		return false, err
	}
	return value.IsPresent(), nil
}

// Put writes the record, replacing any previous one
func (l *KVArchiveLedger) Put(ctx context.Context, record *domain.ArchiveRecord) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to encode archive record: %w", err)
	}
	return l.kv.Put(ctx, domain.ArchiveKey(record.MessageID), data)
}

// Get returns the record for the message
func (l *KVArchiveLedger) Get(ctx context.Context, messageID domain.Snowflake) (mo.Option[*domain.ArchiveRecord], error) {
	value, err := l.kv.Get(ctx, domain.ArchiveKey(messageID))
	if err != nil {
		return mo.None[*domain.ArchiveRecord](), err
	}
	data, ok := value.Get()
	if !ok {
		return mo.None[*domain.ArchiveRecord](), nil
	}

	var record domain.ArchiveRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return mo.None[*domain.ArchiveRecord](), fmt.Errorf("failed to decode archive record %s: %w", messageID, err)
	}
	return mo.Some(&record), nil
}
