package domain

import (
	"encoding/json"
	"time"
)

// ArchiveWorkItem asks the download worker to archive one message's media.
// It lives only on the queue.
type ArchiveWorkItem struct {
	ChannelID string  `json:"channel_id"`
	Message   Message `json:"message"`
}

// ArchivedMedia is one stored media object of an archived message
type ArchivedMedia struct {
	SourceURL          string       `json:"source_url"`
	StoredKey          string       `json:"stored_key"`
	Variant            MediaVariant `json:"variant,omitempty"`
	Link               string       `json:"link,omitempty"`
	UsedBackup         bool         `json:"used_backup"`
	ContentType        string       `json:"content_type,omitempty"`
	ContentLength      string       `json:"content_length,omitempty"`
	ContentDisposition string       `json:"content_disposition,omitempty"`
}

// ArchiveError describes media that could not be downloaded
type ArchiveError struct {
	Message   string `json:"message"`
	Detail    string `json:"detail,omitempty"`
	SourceURL string `json:"source_url,omitempty"`
}

// ArchiveRecord is the ledger entry of an archived message. Its presence is the
// only "already archived" signal, whether or not every embed succeeded.
type ArchiveRecord struct {
	MessageID      Snowflake       `json:"message_id"`
	ChannelID      string          `json:"channel_id"`
	Media          []ArchivedMedia `json:"media"`
	Errors         []ArchiveError  `json:"errors,omitempty"`
	ArchivedAt     time.Time       `json:"archived_at"`
	OriginalEmbeds json.RawMessage `json:"original_embeds,omitempty"`
}

// NewArchiveRecord creates an empty record for the work item's message
func NewArchiveRecord(item ArchiveWorkItem) *ArchiveRecord {
	return &ArchiveRecord{
		MessageID:      item.Message.ID,
		ChannelID:      item.ChannelID,
		Media:          []ArchivedMedia{},
		ArchivedAt:     time.Now().UTC(),
		OriginalEmbeds: item.Message.EmbedsSnapshot(),
	}
}

// HasErrors reports whether any media failed to download
func (r *ArchiveRecord) HasErrors() bool {
	return len(r.Errors) > 0
}

// Failed reports whether nothing was stored and at least one media failed
func (r *ArchiveRecord) Failed() bool {
	return len(r.Media) == 0 && len(r.Errors) > 0
}

// ArchiveKey is the ledger key for a message.
// Message ids are globally unique upstream, so the channel is not part of it.
func ArchiveKey(messageID Snowflake) string {
	return "message/" + string(messageID) + ".json"
}
