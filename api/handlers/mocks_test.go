package handlers

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/samber/mo"
	"github.com/stretchr/testify/mock"

	"github.com/yourusername/embed-archiver/internal/app"
	"github.com/yourusername/embed-archiver/internal/domain"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type mockArchiveService struct {
	mock.Mock
}

func (m *mockArchiveService) Exists(ctx context.Context, messageID domain.Snowflake) (bool, error) {
	args := m.Called(ctx, messageID)
	return args.Bool(0), args.Error(1)
}

func (m *mockArchiveService) Explain(ctx context.Context, channelID string, messageID domain.Snowflake, message *domain.Message) (*app.LookupResult, error) {
	args := m.Called(ctx, channelID, messageID, message)
	result, _ := args.Get(0).(*app.LookupResult)
	return result, args.Error(1)
}

func (m *mockArchiveService) ArchiveNow(ctx context.Context, channelID string, message domain.Message) error {
	return m.Called(ctx, channelID, message).Error(0)
}

func (m *mockArchiveService) EnqueueTraversal(ctx context.Context, channelID string, direction domain.Direction) error {
	return m.Called(ctx, channelID, direction).Error(0)
}

func (m *mockArchiveService) Channels() []string {
	return m.Called().Get(0).([]string)
}

func (m *mockArchiveService) Cursor(ctx context.Context, channelID string) (mo.Option[*domain.ChannelCursorState], error) {
	args := m.Called(ctx, channelID)
	return args.Get(0).(mo.Option[*domain.ChannelCursorState]), args.Error(1)
}

type mockQueueStatus struct {
	mock.Mock
}

func (m *mockQueueStatus) IsRunning() bool {
	return m.Called().Bool(0)
}

func (m *mockQueueStatus) Stats(ctx context.Context) (map[domain.QueueName]*domain.QueueStats, error) {
	args := m.Called(ctx)
	stats, _ := args.Get(0).(map[domain.QueueName]*domain.QueueStats)
	return stats, args.Error(1)
}

func mediaMessage(id string) domain.Message {
	return domain.Message{
		ID: domain.Snowflake(id),
		Embeds: []domain.Embed{{
			Type:  "image",
			Image: &domain.EmbedMedia{URL: "https://cdn.example.com/a.png", ProxyURL: "https://media.example.com/a.png"},
		}},
	}
}

func archivedRecord(id string) *domain.ArchiveRecord {
	record := domain.NewArchiveRecord(domain.ArchiveWorkItem{ChannelID: "42", Message: mediaMessage(id)})
	record.Media = []domain.ArchivedMedia{{
		SourceURL: "https://cdn.example.com/a.png",
		StoredKey: "42/" + id + "/abc.png",
	}}
	return record
}
