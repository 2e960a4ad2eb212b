package api

import (
	"context"
	"strings"
	"sync"

	"studio/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

const generationUpdatedEvent = "generation_updated"

type sseMessage struct {
	event string
	data  interface{}
}

// EventHub 按用户分发任务状态事件，同一用户可有多个连接
type EventHub struct {
	mu      sync.Mutex
	clients map[string][]chan sseMessage
}

func NewEventHub() *EventHub {
	return &EventHub{clients: make(map[string][]chan sseMessage)}
}

// Notify 把状态变化推给该用户当前在线的连接。没有连接时直接丢弃。
func (h *EventHub) Notify(_ context.Context, n service.Notification) error {
	payload := gin.H{
		"jobId":  n.JobID,
		"taskId": n.TaskID,
		"kind":   n.Kind,
		"status": n.Status,
	}
	if trimmed := strings.TrimSpace(n.Error); trimmed != "" {
		payload["error"] = trimmed
	}
	h.publish(n.UserID, sseMessage{event: generationUpdatedEvent, data: payload})
	return nil
}

func (h *EventHub) register(userID string, ch chan sseMessage) {
	if h == nil || ch == nil || userID == "" {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.clients == nil {
		h.clients = make(map[string][]chan sseMessage)
	}
	h.clients[userID] = append(h.clients[userID], ch)
}

func (h *EventHub) unregister(userID string, target chan sseMessage) {
	if h == nil || target == nil || userID == "" {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	current := h.clients[userID]
	if len(current) == 0 {
		return
	}

	remaining := current[:0]
	for _, ch := range current {
		if ch == target {
			continue
		}
		remaining = append(remaining, ch)
	}

	if len(remaining) == 0 {
		delete(h.clients, userID)
		return
	}

	h.clients[userID] = remaining
}

func (h *EventHub) subscribers(userID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients[userID])
}

func (h *EventHub) publish(userID string, msg sseMessage) {
	if h == nil || userID == "" {
		return
	}

	h.mu.Lock()
	channels := append([]chan sseMessage(nil), h.clients[userID]...)
	h.mu.Unlock()

	for _, ch := range channels {
		select {
		case ch <- msg:
		default:
			logrus.WithFields(logrus.Fields{
				"user_id": userID,
				"event":   msg.event,
			}).Warn("dropping sse message due to slow consumer")
		}
	}
}
