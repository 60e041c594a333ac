package api

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"hirepipe/pkg/logger"
)

// Replayer 由 outbox.ReplayService 实现
type Replayer interface {
	ReplayEvent(ctx context.Context, eventID int64) error
	ReplayFailedEvents(ctx context.Context, limit int) (int, error)
}

type AdminHandler struct {
	replay Replayer
	logger *zap.Logger
}

func NewAdminHandler(replay Replayer, logger *zap.Logger) *AdminHandler {
	return &AdminHandler{replay: replay, logger: logger}
}

// ReplayOutboxEvent 重放指定的 Outbox 事件
// POST /admin/outbox/replay?id=xxx
func (h *AdminHandler) ReplayOutboxEvent(c *gin.Context) {
	idStr := c.Query("id")
	if idStr == "" {
		badRequest(c, "missing id parameter")
		return
	}
	eventID, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		badRequest(c, "invalid id parameter")
		return
	}

	if err := h.replay.ReplayEvent(c.Request.Context(), eventID); err != nil {
		logger.WithTrace(c.Request.Context(), h.logger).Error("Failed to replay event",
			zap.Int64("event_id", eventID),
			zap.Error(err),
		)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "replay_failed", "detail": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":   "replayed",
		"event_id": eventID,
	})
}

// ReplayFailedEvents 重放所有失败的事件
// POST /admin/outbox/replay-failed?limit=100
func (h *AdminHandler) ReplayFailedEvents(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "100"))
	if err != nil || limit <= 0 {
		limit = 100
	}

	n, err := h.replay.ReplayFailedEvents(c.Request.Context(), limit)
	if err != nil {
		logger.WithTrace(c.Request.Context(), h.logger).Error("Failed to replay failed events", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "replay_failed", "detail": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":        "completed",
		"success_count": n,
		"limit":         limit,
	})
}
