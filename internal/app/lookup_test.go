package app

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/embed-archiver/internal/domain"
)

func newTestLookup() (*LookupService, *memLedger, *memQueue) {
	ledger := newMemLedger()
	queue := newMemQueue()
	discord := &domain.DiscordConfig{Channels: []string{"42"}}
	return NewLookupService(ledger, newMemCursorStore(), queue, discord, nil), ledger, queue
}

func TestLookupService_Explain(t *testing.T) {
	ctx := context.Background()
	s, ledger, _ := newTestLookup()

	ok := domain.NewArchiveRecord(workItem(mediaMessage("1")))
	ok.Media = []domain.ArchivedMedia{{StoredKey: "42/1/a.png"}}
	partial := domain.NewArchiveRecord(workItem(mediaMessage("2")))
	partial.Media = []domain.ArchivedMedia{{StoredKey: "42/2/a.png"}}
	partial.Errors = []domain.ArchiveError{{Message: "failed"}}
	failed := domain.NewArchiveRecord(workItem(mediaMessage("3")))
	failed.Errors = []domain.ArchiveError{{Message: "failed"}}
	for _, r := range []*domain.ArchiveRecord{ok, partial, failed} {
		require.NoError(t, ledger.Put(ctx, r))
	}

	text := domain.Message{ID: "9", Content: "no embeds"}
	media := mediaMessage("9")

	tests := []struct {
		name      string
		channelID string
		messageID domain.Snowflake
		message   *domain.Message
		status    LookupStatus
		reason    string
	}{
		{"archived", "42", "1", nil, LookupArchived, ""},
		{"archived with errors", "42", "2", nil, LookupArchivedWithErrors, ""},
		{"failed", "42", "3", nil, LookupFailed, ReasonFailed},
		{"no embeds wins over channel", "7", "9", &text, LookupNoQualifyingEmbeds, ReasonNoEmbeds},
		{"unapproved channel", "7", "9", &media, LookupChannelNotApproved, ReasonNotApproved},
		{"pending", "42", "9", &media, LookupPending, ReasonPending},
		{"pending without context", "", "9", nil, LookupPending, ReasonPending},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := s.Explain(ctx, tt.channelID, tt.messageID, tt.message)
			require.NoError(t, err)
			assert.Equal(t, tt.status, result.Status)
			assert.Equal(t, tt.reason, result.Reason)
			assert.Equal(t, tt.status == LookupArchived || tt.status == LookupArchivedWithErrors || tt.status == LookupFailed, result.Found())
		})
	}
}

func TestLookupService_ArchiveNow(t *testing.T) {
	ctx := context.Background()
	s, ledger, queue := newTestLookup()

	assert.ErrorIs(t, s.ArchiveNow(ctx, "7", mediaMessage("1")), ErrChannelNotApproved)
	assert.ErrorIs(t, s.ArchiveNow(ctx, "42", domain.Message{ID: "1"}), ErrNoQualifyingEmbeds)

	require.NoError(t, s.ArchiveNow(ctx, "42", mediaMessage("1")))
	items := queue.ofKind(domain.TaskArchive)
	require.Len(t, items, 1)
	assert.Equal(t, "42", items[0].Task.Archive.ChannelID)
	assert.Equal(t, domain.Snowflake("1"), items[0].Task.Archive.Message.ID)

	require.NoError(t, ledger.Put(ctx, domain.NewArchiveRecord(workItem(mediaMessage("1")))))
	assert.ErrorIs(t, s.ArchiveNow(ctx, "42", mediaMessage("1")), ErrAlreadyArchived)
}

func TestLookupService_EnqueueTraversal(t *testing.T) {
	ctx := context.Background()
	s, _, queue := newTestLookup()

	assert.ErrorIs(t, s.EnqueueTraversal(ctx, "7", domain.DirectionCatchUp), ErrChannelNotApproved)
	assert.Error(t, s.EnqueueTraversal(ctx, "42", "sideways"))

	require.NoError(t, s.EnqueueTraversal(ctx, "42", domain.DirectionBackfill))
	tasks := queue.ofKind(domain.TaskTraverse)
	require.Len(t, tasks, 1)
	assert.Equal(t, domain.DirectionBackfill, tasks[0].Task.Traverse.Direction)
}

func TestLookupService_Cursor(t *testing.T) {
	s, _, _ := newTestLookup()
	cursor, err := s.Cursor(context.Background(), "42")
	require.NoError(t, err)
	assert.True(t, cursor.IsAbsent())
	assert.Equal(t, []string{"42"}, s.Channels())
}
