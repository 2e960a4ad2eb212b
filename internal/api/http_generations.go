package api

import (
	"io"
	"net/http"
	"strings"
	"time"

	"studio/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

const sseHeartbeatInterval = 10 * time.Second

// StreamGenerationEvents 推送当前用户的任务状态变化
func (h *HTTPHandler) StreamGenerationEvents(c *gin.Context) {
	requestUser := CurrentUser(c)
	if requestUser == nil {
		Unauthorized(c, "authentication required")
		return
	}

	ctx := c.Request.Context()
	events := make(chan sseMessage, 8)
	h.events.register(requestUser.ID, events)
	defer h.events.unregister(requestUser.ID, events)

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("X-Accel-Buffering", "no")

	if flusher, ok := c.Writer.(http.Flusher); ok {
		flusher.Flush()
	}

	heartbeatTicker := time.NewTicker(sseHeartbeatInterval)
	defer heartbeatTicker.Stop()

	logrus.WithField("user_id", requestUser.ID).Info("generation sse connected")

	c.Stream(func(w io.Writer) bool {
		select {
		case <-ctx.Done():
			logrus.WithField("user_id", requestUser.ID).Info("generation sse disconnected")
			return false
		case <-heartbeatTicker.C:
			c.SSEvent("ping", gin.H{"ts": time.Now().UnixMilli()})
			return true
		case msg, ok := <-events:
			if !ok {
				return false
			}
			c.SSEvent(msg.event, msg.data)
			return true
		}
	})
}

// SyncGeneration 运维手动触发一次同步
func (h *HTTPHandler) SyncGeneration(c *gin.Context) {
	taskID := strings.TrimSpace(c.Param("taskId"))
	if taskID == "" {
		MissingField(c, "taskId")
		return
	}

	ctx, cancel := h.syncContext(c.Request.Context())
	defer cancel()

	result, err := h.syncer.Sync(ctx, taskID)
	if err != nil {
		logrus.WithError(err).WithFields(logrus.Fields{
			"task_id":     taskID,
			"operator_id": CurrentUser(c).ID,
		}).Error("manual_sync_failed")
		ErrorResponseWithDetails(c, http.StatusInternalServerError, ErrCodeSyncFailed, "同步失败", result)
		return
	}

	logrus.WithFields(logrus.Fields{
		"task_id":     taskID,
		"operator_id": CurrentUser(c).ID,
		"reason":      result.Reason,
	}).Info("manual_sync")
	if result.Reason == service.ReasonJobNotFound {
		ErrorResponseWithDetails(c, http.StatusNotFound, ErrCodeNotFound, "任务不存在", result)
		return
	}
	c.JSON(http.StatusOK, result)
}
