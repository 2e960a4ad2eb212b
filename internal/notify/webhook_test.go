package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"studio/internal/entity"
	"studio/internal/service"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWebhookPostsNotification(t *testing.T) {
	var got service.Notification
	var contentType string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		contentType = r.Header.Get("Content-Type")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusNoContent)
	}))
	t.Cleanup(srv.Close)

	hook, err := NewWebhook(srv.URL, nil, 0)
	require.NoError(t, err)

	n := service.Notification{
		UserID: "u1", JobID: "gen-1", TaskID: "task-1",
		Kind: entity.GenerationTypeAudio, Status: entity.GenerationStatusSuccess,
		At: time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC),
	}
	require.NoError(t, hook.Notify(context.Background(), n))
	assert.Equal(t, "application/json", contentType)
	assert.Equal(t, n, got)
}

func TestWebhookErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream down", http.StatusBadGateway)
	}))
	t.Cleanup(srv.Close)

	hook, err := NewWebhook(srv.URL, nil, time.Second)
	require.NoError(t, err)
	err = hook.Notify(context.Background(), service.Notification{JobID: "gen-1"})
	assert.ErrorContains(t, err, "http 502")
	assert.ErrorContains(t, err, "upstream down")

	_, err = NewWebhook("ftp://example.com/hook", nil, 0)
	assert.Error(t, err)
}

func TestWebhookTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(srv.Close)
	t.Cleanup(func() { close(release) })

	hook, err := NewWebhook(srv.URL, nil, 50*time.Millisecond)
	require.NoError(t, err)
	err = hook.Notify(context.Background(), service.Notification{JobID: "gen-1"})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
