package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/samber/mo"
	"go.uber.org/zap"

	"github.com/yourusername/embed-archiver/internal/app"
	"github.com/yourusername/embed-archiver/internal/domain"
)

// ArchiveService is the lookup side of the archive used by the HTTP handlers
type ArchiveService interface {
	Exists(ctx context.Context, messageID domain.Snowflake) (bool, error)
	Explain(ctx context.Context, channelID string, messageID domain.Snowflake, message *domain.Message) (*app.LookupResult, error)
	ArchiveNow(ctx context.Context, channelID string, message domain.Message) error
	EnqueueTraversal(ctx context.Context, channelID string, direction domain.Direction) error
	Channels() []string
	Cursor(ctx context.Context, channelID string) (mo.Option[*domain.ChannelCursorState], error)
}

// ArchiveHandler handles archive lookup and archive-now requests
type ArchiveHandler struct {
	archives      ArchiveService
	publicBaseURL string
	logger        *zap.Logger
}

// NewArchiveHandler creates a new archive handler
func NewArchiveHandler(archives ArchiveService, publicBaseURL string, logger *zap.Logger) *ArchiveHandler {
	return &ArchiveHandler{
		archives:      archives,
		publicBaseURL: publicBaseURL,
		logger:        logger,
	}
}

// MediaLink pairs an original media URL with its archived copy
type MediaLink struct {
	SourceURL  string `json:"source_url"`
	ArchiveURL string `json:"archive_url"`
	UsedBackup bool   `json:"used_backup"`
}

// ArchiveNowRequest represents a request to archive one message
type ArchiveNowRequest struct {
	ChannelID string         `json:"channel_id" binding:"required"`
	Message   domain.Message `json:"message"`
}

// GetArchive handles GET /api/v1/archives/:message_id
func (h *ArchiveHandler) GetArchive(c *gin.Context) {
	messageID := domain.Snowflake(c.Param("message_id"))
	if !messageID.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid message id"})
		return
	}

	result, err := h.archives.Explain(c.Request.Context(), c.Query("channel_id"), messageID, nil)
	if err != nil {
		h.logger.Error("Failed to look up archive", zap.String("message_id", string(messageID)), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to look up archive"})
		return
	}

	if !result.Found() {
		c.JSON(http.StatusNotFound, gin.H{
			"error":      "archive not found",
			"message_id": messageID,
			"status":     result.Status,
			"reason":     result.Reason,
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message_id": messageID,
		"status":     result.Status,
		"record":     result.Record,
		"media":      mediaLinks(h.publicBaseURL, result.Record),
	})
}

// Exists handles GET /api/v1/archives/:message_id/exists
func (h *ArchiveHandler) Exists(c *gin.Context) {
	messageID := domain.Snowflake(c.Param("message_id"))
	if !messageID.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid message id"})
		return
	}

	exists, err := h.archives.Exists(c.Request.Context(), messageID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to look up archive"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message_id": messageID, "exists": exists})
}

// ArchiveNow handles POST /api/v1/archives
func (h *ArchiveHandler) ArchiveNow(c *gin.Context) {
	var req ArchiveNowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	err := h.archives.ArchiveNow(c.Request.Context(), req.ChannelID, req.Message)
	switch {
	case err == nil:
		c.JSON(http.StatusAccepted, gin.H{"status": "queued", "message_id": req.Message.ID})
	case errors.Is(err, app.ErrChannelNotApproved):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	case errors.Is(err, app.ErrAlreadyArchived):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, app.ErrNoQualifyingEmbeds):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
	case !req.Message.ID.Valid():
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		h.logger.Error("Failed to queue archive", zap.String("message_id", string(req.Message.ID)), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to queue archive"})
	}
}

func mediaLinks(baseURL string, record *domain.ArchiveRecord) []MediaLink {
	links := make([]MediaLink, 0, len(record.Media))
	for _, m := range record.Media {
		links = append(links, MediaLink{
			SourceURL:  m.SourceURL,
			ArchiveURL: archiveURL(baseURL, m.StoredKey),
			UsedBackup: m.UsedBackup,
		})
	}
	return links
}

// archiveURL joins the public base URL and a stored key. Without a base URL
// the bare key is returned.
func archiveURL(baseURL, key string) string {
	if baseURL == "" {
		return key
	}
	return strings.TrimSuffix(baseURL, "/") + "/" + key
}
