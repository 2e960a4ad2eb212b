package provider

import (
	"context"
	"encoding/json"
	"errors"
	"net/url"
	"strings"

	"github.com/sirupsen/logrus"
)

// videoStrategy is one way of asking the video status endpoint about a task.
type videoStrategy struct {
	name string
	hint string
}

// videoStrategies orders the provider hints for modelID: the model's configured
// provider, the plain call without a hint, then the configured fallback provider.
// Duplicates are dropped so each distinct request is made once.
func (c *Client) videoStrategies(modelID string) []videoStrategy {
	candidates := []videoStrategy{
		{name: "model", hint: c.modelProviders[strings.ToLower(strings.TrimSpace(modelID))]},
		{name: "default", hint: ""},
		{name: "fallback", hint: c.videoFallback},
	}

	seen := make(map[string]struct{}, len(candidates))
	out := make([]videoStrategy, 0, len(candidates))
	for i, s := range candidates {
		// an empty model or fallback hint means "not configured", not "default call"
		if s.hint == "" && i != 1 {
			continue
		}
		if _, ok := seen[s.hint]; ok {
			continue
		}
		seen[s.hint] = struct{}{}
		out = append(out, s)
	}
	return out
}

// FetchVideo queries the video status endpoint, walking the provider hint chain
// until one strategy answers.
func (c *Client) FetchVideo(ctx context.Context, taskID, modelID string) (*TaskStatus, error) {
	taskID = strings.TrimSpace(taskID)
	if taskID == "" {
		return nil, errors.New("task id is required")
	}

	var lastErr error
	for _, strategy := range c.videoStrategies(modelID) {
		query := url.Values{"taskId": []string{taskID}}
		if strategy.hint != "" {
			query.Set("provider", strategy.hint)
		}
		logger := statusLogger(ctx, taskID, "video_status").WithFields(logrus.Fields{
			"model":    modelID,
			"strategy": strategy.name,
			"hint":     strategy.hint,
		})

		status, err := c.getWithRetry(ctx, logger, c.endpoint(c.videoStatusPath, query), decodeVideo)
		if err == nil {
			status.ProviderHint = strategy.hint
			return status, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
		logger.WithError(err).Info("kie_video_strategy_failed")
	}
	return nil, lastErr
}

type videoEnvelope struct {
	Code    flexString      `json:"code"`
	Msg     string          `json:"msg"`
	Status  string          `json:"status"`
	Outputs json.RawMessage `json:"outputs"`
	Error   flexMessage     `json:"error"`
	Data    *videoEnvelope  `json:"data"`
}

func decodeVideo(body []byte) (*TaskStatus, error) {
	var envelope videoEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return recoverOrFail(string(body), recoverVideo, err)
	}
	if !isSuccessCode(string(envelope.Code)) {
		return nil, &APIError{Code: string(envelope.Code), Message: envelope.Msg}
	}

	// some gateways wrap the payload in data
	payload := &envelope
	if strings.TrimSpace(envelope.Status) == "" && envelope.Data != nil {
		payload = envelope.Data
	}
	if strings.TrimSpace(payload.Status) == "" {
		return nil, transient("kie video response without status")
	}

	status := &TaskStatus{
		RawState:      payload.Status,
		State:         MapState(payload.Status),
		ResultPayload: rawText(payload.Outputs),
		FailMsg:       string(payload.Error),
	}
	if status.ResultPayload != "" {
		parsed := ParseResult(status.ResultPayload)
		status.URLs = parsed.URLs
		status.Duration = parsed.Duration
	}
	return status, nil
}

// flexMessage accepts either a string or an object carrying a message field.
type flexMessage string

func (f *flexMessage) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	switch {
	case trimmed == "" || trimmed == "null":
		*f = ""
	case strings.HasPrefix(trimmed, `"`):
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = flexMessage(strings.TrimSpace(s))
	case strings.HasPrefix(trimmed, "{"):
		var obj struct {
			Message string `json:"message"`
			Msg     string `json:"msg"`
		}
		if err := json.Unmarshal(data, &obj); err != nil {
			return err
		}
		*f = flexMessage(firstNonEmpty(obj.Message, obj.Msg))
	default:
		*f = flexMessage(trimmed)
	}
	return nil
}
