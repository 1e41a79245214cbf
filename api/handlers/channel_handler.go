package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/yourusername/embed-archiver/internal/app"
	"github.com/yourusername/embed-archiver/internal/domain"
)

// ChannelHandler handles approved channel requests
type ChannelHandler struct {
	archives ArchiveService
	logger   *zap.Logger
}

// NewChannelHandler creates a new channel handler
func NewChannelHandler(archives ArchiveService, logger *zap.Logger) *ChannelHandler {
	return &ChannelHandler{archives: archives, logger: logger}
}

// ListChannels handles GET /api/v1/channels
func (h *ChannelHandler) ListChannels(c *gin.Context) {
	channels := h.archives.Channels()
	c.JSON(http.StatusOK, gin.H{
		"channels": channels,
		"count":    len(channels),
	})
}

// GetCursor handles GET /api/v1/channels/:channel_id/cursor
func (h *ChannelHandler) GetCursor(c *gin.Context) {
	channelID := c.Param("channel_id")
	if !h.approved(channelID) {
		c.JSON(http.StatusNotFound, gin.H{"error": app.ErrChannelNotApproved.Error()})
		return
	}

	stored, err := h.archives.Cursor(c.Request.Context(), channelID)
	if err != nil {
		h.logger.Error("Failed to read cursor", zap.String("channel_id", channelID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read cursor"})
		return
	}

	cursor, ok := stored.Get()
	c.JSON(http.StatusOK, gin.H{
		"channel_id":  channelID,
		"initialized": ok,
		"cursor":      cursor,
	})
}

// Traverse handles POST /api/v1/channels/:channel_id/traverse
func (h *ChannelHandler) Traverse(c *gin.Context) {
	channelID := c.Param("channel_id")

	direction, err := domain.ParseDirection(c.DefaultQuery("direction", string(domain.DirectionCatchUp)))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.archives.EnqueueTraversal(c.Request.Context(), channelID, direction); err != nil {
		if errors.Is(err, app.ErrChannelNotApproved) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		h.logger.Error("Failed to queue traversal", zap.String("channel_id", channelID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to queue traversal"})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"status":     "queued",
		"channel_id": channelID,
		"direction":  direction,
	})
}

func (h *ChannelHandler) approved(channelID string) bool {
	for _, ch := range h.archives.Channels() {
		if ch == channelID {
			return true
		}
	}
	return false
}
