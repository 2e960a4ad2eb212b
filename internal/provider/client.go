package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"studio/internal/config"
	"studio/internal/utils"

	"github.com/sirupsen/logrus"
)

const (
	defaultBaseURL         = "https://api.kie.ai"
	defaultRecordInfoPath  = "/api/v1/jobs/recordInfo"
	defaultVideoStatusPath = "/api/v1/video/status"
	defaultTimeout         = 30 * time.Second
	defaultMaxAttempts     = 3
	defaultRetryBaseDelay  = 2 * time.Second

	// status bodies are small; anything bigger is not a status response
	maxStatusBodyBytes = 4 << 20
)

// Options configures a Client.
type Options struct {
	BaseURL         string
	APIKey          string
	RecordInfoPath  string
	VideoStatusPath string

	// Timeout bounds every single HTTP attempt.
	Timeout        time.Duration
	MaxAttempts    int
	RetryBaseDelay time.Duration

	// ModelProviders maps a model id to the provider hint its video status needs.
	ModelProviders        map[string]string
	VideoFallbackProvider string

	HTTPClient *http.Client
}

// OptionsFromConfig copies the KIE settings out of cfg.
func OptionsFromConfig(cfg config.Config) Options {
	return Options{
		BaseURL:               cfg.KieBaseURL,
		APIKey:                cfg.KieAPIKey,
		RecordInfoPath:        cfg.KieRecordInfoPath,
		VideoStatusPath:       cfg.KieVideoStatusPath,
		Timeout:               cfg.KieStatusTimeout,
		MaxAttempts:           cfg.KieMaxAttempts,
		RetryBaseDelay:        cfg.KieRetryBaseDelay,
		ModelProviders:        cfg.KieModelProviders,
		VideoFallbackProvider: cfg.KieVideoFallbackProvider,
	}
}

// Client talks to the KIE job status endpoints.
type Client struct {
	baseURL         string
	apiKey          string
	recordInfoPath  string
	videoStatusPath string
	timeout         time.Duration
	maxAttempts     int
	retryBaseDelay  time.Duration
	modelProviders  map[string]string
	videoFallback   string
	httpClient      *http.Client

	sleep func(ctx context.Context, d time.Duration) error
}

// NewClient validates opts and fills in defaults.
func NewClient(opts Options) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("invalid kie base url: %w", err)
	}

	apiKey := strings.TrimSpace(opts.APIKey)
	if apiKey == "" {
		logrus.Warn("kie api key is not configured; status requests are sent unauthenticated")
	}

	c := &Client{
		baseURL:         baseURL,
		apiKey:          apiKey,
		recordInfoPath:  pathOrDefault(opts.RecordInfoPath, defaultRecordInfoPath),
		videoStatusPath: pathOrDefault(opts.VideoStatusPath, defaultVideoStatusPath),
		timeout:         opts.Timeout,
		maxAttempts:     opts.MaxAttempts,
		retryBaseDelay:  opts.RetryBaseDelay,
		modelProviders:  make(map[string]string, len(opts.ModelProviders)),
		videoFallback:   strings.TrimSpace(opts.VideoFallbackProvider),
		httpClient:      opts.HTTPClient,
		sleep:           sleepContext,
	}
	if c.timeout <= 0 {
		c.timeout = defaultTimeout
	}
	if c.maxAttempts <= 0 {
		c.maxAttempts = defaultMaxAttempts
	}
	if c.retryBaseDelay < 0 {
		c.retryBaseDelay = defaultRetryBaseDelay
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{}
	}
	for model, hint := range opts.ModelProviders {
		model = strings.ToLower(strings.TrimSpace(model))
		if model == "" {
			continue
		}
		c.modelProviders[model] = strings.TrimSpace(hint)
	}
	return c, nil
}

func pathOrDefault(p, fallback string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return fallback
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return p
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// FetchRecord queries the recordInfo endpoint used by image and audio jobs.
func (c *Client) FetchRecord(ctx context.Context, taskID string) (*TaskStatus, error) {
	taskID = strings.TrimSpace(taskID)
	if taskID == "" {
		return nil, errors.New("task id is required")
	}
	endpoint := c.endpoint(c.recordInfoPath, url.Values{"taskId": []string{taskID}})
	return c.getWithRetry(ctx, statusLogger(ctx, taskID, "record_info"), endpoint, decodeRecord)
}

func (c *Client) endpoint(path string, query url.Values) string {
	return c.baseURL + path + "?" + query.Encode()
}

type decodeFunc func(body []byte) (*TaskStatus, error)

func (c *Client) getWithRetry(ctx context.Context, logger *logrus.Entry, endpoint string, decode decodeFunc) (*TaskStatus, error) {
	var lastErr error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		status, err := c.getOnce(ctx, endpoint, decode)
		if err == nil {
			if status.Recovered {
				logger.WithFields(logrus.Fields{
					"attempt": attempt,
					"state":   status.RawState,
					"urls":    len(status.URLs),
				}).Warn("kie_status_recovered_from_truncated_body")
			}
			return status, nil
		}
		if !IsRetryable(err) {
			logger.WithError(err).Warn("kie_status_fetch_rejected")
			return nil, err
		}
		lastErr = err
		if attempt == c.maxAttempts {
			break
		}

		delay := time.Duration(attempt) * c.retryBaseDelay
		logger.WithFields(logrus.Fields{
			"attempt": attempt,
			"delay":   delay.String(),
			"error":   err,
		}).Warn("kie_status_fetch_retry")
		if err := c.sleep(ctx, delay); err != nil {
			return nil, transientErr("retry wait cancelled", err)
		}
	}

	logger.WithFields(logrus.Fields{
		"attempts": c.maxAttempts,
		"error":    lastErr,
	}).Error("kie_status_fetch_exhausted")
	return nil, lastErr
}

func (c *Client) getOnce(ctx context.Context, endpoint string, decode decodeFunc) (*TaskStatus, error) {
	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("kie create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, transientErr("kie status request", err)
	}
	defer resp.Body.Close()

	body, readErr := io.ReadAll(io.LimitReader(resp.Body, maxStatusBodyBytes))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, transient("kie status http %d: %s", resp.StatusCode, utils.LogSnippet(string(body)))
	}
	if readErr != nil && len(body) == 0 {
		return nil, transientErr("kie read response", readErr)
	}
	// a read error with a partial body goes through decode so recovery can still try
	return decode(body)
}

func statusLogger(ctx context.Context, taskID, endpoint string) *logrus.Entry {
	entry := logrus.WithFields(logrus.Fields{
		"provider": "kie",
		"task_id":  taskID,
		"endpoint": endpoint,
	})
	if ctx != nil {
		entry = entry.WithContext(ctx)
	}
	return entry
}

type recordEnvelope struct {
	Code    flexString  `json:"code"`
	Msg     string      `json:"msg"`
	Message string      `json:"message"`
	Data    *recordData `json:"data"`
}

type recordData struct {
	TaskID     string          `json:"taskId"`
	State      string          `json:"state"`
	ResultJSON json.RawMessage `json:"resultJson"`
	FailMsg    string          `json:"failMsg"`
	FailCode   flexString      `json:"failCode"`
}

func decodeRecord(body []byte) (*TaskStatus, error) {
	var envelope recordEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return recoverOrFail(string(body), recoverRecord, err)
	}
	if !isSuccessCode(string(envelope.Code)) {
		return nil, &APIError{Code: string(envelope.Code), Message: firstNonEmpty(envelope.Msg, envelope.Message)}
	}
	if envelope.Data == nil {
		return nil, transient("kie record response without data")
	}

	data := envelope.Data
	status := &TaskStatus{
		RawState:      data.State,
		State:         MapState(data.State),
		ResultPayload: rawText(data.ResultJSON),
		FailMsg:       strings.TrimSpace(data.FailMsg),
		FailCode:      strings.TrimSpace(string(data.FailCode)),
	}
	if status.ResultPayload != "" {
		parsed := ParseResult(status.ResultPayload)
		status.URLs = parsed.URLs
		status.Duration = parsed.Duration
	}
	return status, nil
}

type recoverFunc func(body string) *TaskStatus

func recoverOrFail(body string, scrape recoverFunc, decodeErr error) (*TaskStatus, error) {
	status := scrape(body)
	if status == nil {
		return nil, transientErr("kie undecodable body", decodeErr)
	}
	if status.State == StateSuccess && len(status.URLs) == 0 {
		// the result part was cut off; ask again later rather than failing the job
		return nil, transient("kie truncated success body without results")
	}
	return status, nil
}

func isSuccessCode(code string) bool {
	switch strings.TrimSpace(code) {
	case "", "0", "200":
		return true
	default:
		return false
	}
}

// rawText returns a JSON string value unquoted, and any other JSON value as its text.
func rawText(raw json.RawMessage) string {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return ""
	}
	if strings.HasPrefix(trimmed, `"`) {
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			return strings.TrimSpace(s)
		}
	}
	return trimmed
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

// flexString accepts a JSON string, number or boolean.
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "" || trimmed == "null" {
		*f = ""
		return nil
	}
	if strings.HasPrefix(trimmed, `"`) {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = flexString(strings.TrimSpace(s))
		return nil
	}
	*f = flexString(trimmed)
	return nil
}
