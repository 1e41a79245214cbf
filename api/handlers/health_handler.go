package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yourusername/embed-archiver/internal/domain"
)

// Version is reported by the health endpoint
const Version = "1.0.0"

// QueueStatus reports on the queue consumers
type QueueStatus interface {
	IsRunning() bool
	Stats(ctx context.Context) (map[domain.QueueName]*domain.QueueStats, error)
}

// HealthHandler handles health check requests
type HealthHandler struct {
	queue   QueueStatus
	started time.Time
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(queue QueueStatus) *HealthHandler {
	return &HealthHandler{
		queue:   queue,
		started: time.Now(),
	}
}

// HealthResponse represents a health check response
type HealthResponse struct {
	Status        string `json:"status"`
	Version       string `json:"version"`
	UptimeSeconds int64  `json:"uptime_seconds"`
	Queue         struct {
		Running bool `json:"running"`
	} `json:"queue"`
}

// Health handles GET /health
func (h *HealthHandler) Health(c *gin.Context) {
	response := HealthResponse{
		Status:        "ok",
		Version:       Version,
		UptimeSeconds: int64(time.Since(h.started).Seconds()),
	}
	response.Queue.Running = h.queue.IsRunning()

	c.JSON(http.StatusOK, response)
}

// Ready handles GET /ready
func (h *HealthHandler) Ready(c *gin.Context) {
	if !h.queue.IsRunning() {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "not ready",
			"reason": "queue manager not running",
		})
		return
	}

	if _, err := h.queue.Stats(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "not ready",
			"reason": "queue store unavailable",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

// QueueStats handles GET /api/v1/queue/stats
func (h *HealthHandler) QueueStats(c *gin.Context) {
	stats, err := h.queue.Stats(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read queue stats"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"running": h.queue.IsRunning(),
		"queues":  stats,
	})
}
