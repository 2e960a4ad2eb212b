package api

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

const callbackTokenHeader = "X-Callback-Token"

// kieCallbackPayload KIE 回调体。taskId 可能在顶层也可能在 data 内，其余字段以状态接口为准
type kieCallbackPayload struct {
	TaskID string `json:"taskId"`
	Data   *struct {
		TaskID string `json:"taskId"`
	} `json:"data"`
}

func (p kieCallbackPayload) taskID() string {
	if id := strings.TrimSpace(p.TaskID); id != "" {
		return id
	}
	if p.Data != nil {
		return strings.TrimSpace(p.Data.TaskID)
	}
	return ""
}

// KieCallback 供应商任务完成回调。回调只作为触发信号，状态始终重新拉取。
func (h *HTTPHandler) KieCallback(c *gin.Context) {
	if !h.callbackAuthorized(c) {
		ErrorResponse(c, http.StatusUnauthorized, ErrCodeInvalidCallbackToken, "invalid callback token")
		return
	}

	var payload kieCallbackPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		InvalidPayload(c)
		return
	}
	taskID := payload.taskID()
	if taskID == "" {
		MissingField(c, "taskId")
		return
	}

	ctx, cancel := h.syncContext(c.Request.Context())
	defer cancel()

	result, err := h.syncer.Sync(ctx, taskID)
	if err != nil {
		logrus.WithError(err).WithField("task_id", taskID).Error("kie_callback_sync_failed")
		ErrorResponseWithDetails(c, http.StatusInternalServerError, ErrCodeSyncFailed, "sync failed", result)
		return
	}

	logrus.WithFields(logrus.Fields{
		"task_id": taskID,
		"ok":      result.OK,
		"reason":  result.Reason,
	}).Info("kie_callback")
	c.JSON(http.StatusOK, result)
}

func (h *HTTPHandler) callbackAuthorized(c *gin.Context) bool {
	expected := strings.TrimSpace(h.cfg.CallbackToken)
	if expected == "" {
		return true
	}
	given := strings.TrimSpace(c.GetHeader(callbackTokenHeader))
	if given == "" {
		given = strings.TrimSpace(c.Query("token"))
	}
	return subtle.ConstantTimeCompare([]byte(given), []byte(expected)) == 1
}
