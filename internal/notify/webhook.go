package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"studio/internal/service"

	"github.com/sirupsen/logrus"
)

const defaultWebhookTimeout = 10 * time.Second

// Webhook 把任务状态变化以 JSON POST 到外部地址
type Webhook struct {
	url     string
	client  *http.Client
	timeout time.Duration
}

func NewWebhook(url string, client *http.Client, timeout time.Duration) (*Webhook, error) {
	url = strings.TrimSpace(url)
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		return nil, fmt.Errorf("notify: webhook url must be http(s), got %q", url)
	}
	if client == nil {
		client = http.DefaultClient
	}
	if timeout <= 0 {
		timeout = defaultWebhookTimeout
	}
	return &Webhook{url: url, client: client, timeout: timeout}, nil
}

func (w *Webhook) Notify(ctx context.Context, n service.Notification) error {
	if w == nil {
		return errors.New("notify: webhook is nil")
	}
	body, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("notify: encode notification: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("notify: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("notify: post webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("notify: webhook http %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)

	logrus.WithFields(logrus.Fields{
		"generation_id": n.JobID,
		"status":        n.Status,
	}).Debug("webhook_notified")
	return nil
}
