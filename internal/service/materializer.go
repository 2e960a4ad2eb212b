package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"studio/internal/storage"
	"studio/internal/utils"
)

const (
	downloadTimeout  = 60 * time.Second
	maxDownloadBytes = 512 << 20
)

// MaterializeRequest identifies the provider asset to re-host.
type MaterializeRequest struct {
	SourceURL    string
	GenerationID string
	UserID       string
	// Kind is image, video or audio; it names the storage folder and the default extension.
	Kind string
}

// MaterializedAsset is the durable copy of a provider asset.
type MaterializedAsset struct {
	PublicURL   string
	StoragePath string
	ContentType string
	// Data is the downloaded payload, kept so callers can derive previews or probe audio
	// without a second download.
	Data []byte
}

// AssetMaterializer copies provider-hosted assets into owned storage.
type AssetMaterializer interface {
	Materialize(ctx context.Context, req MaterializeRequest) (*MaterializedAsset, error)
}

// Materializer downloads assets over HTTP and writes them to storage.
type Materializer struct {
	store      storage.Storage
	httpClient *http.Client
	now        func() time.Time
}

// NewMaterializer returns a Materializer writing into store.
func NewMaterializer(store storage.Storage, httpClient *http.Client) *Materializer {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Materializer{store: store, httpClient: httpClient, now: time.Now}
}

// Materialize stores the asset under {userId}/{kind}/{generationId}_{unixMillis}.{ext}.
// The extension comes from the response Content-Type, never from the source URL.
func (m *Materializer) Materialize(ctx context.Context, req MaterializeRequest) (*MaterializedAsset, error) {
	if m == nil || m.store == nil {
		return nil, errors.New("storage is not configured")
	}
	if strings.TrimSpace(req.GenerationID) == "" {
		return nil, errors.New("generation id is required")
	}
	kind := strings.TrimSpace(req.Kind)
	if kind == "" {
		kind = utils.KindImage
	}

	data, contentType, err := downloadAsset(ctx, m.httpClient, req.SourceURL)
	if err != nil {
		return nil, err
	}

	ext := utils.ExtensionForContent(contentType, kind)
	userSegment := strings.TrimSpace(req.UserID)
	if userSegment == "" {
		userSegment = "anonymous"
	}
	key, err := storage.BuildKey(userSegment, kind, fmt.Sprintf("%s_%d.%s", req.GenerationID, m.now().UnixMilli(), ext))
	if err != nil {
		return nil, fmt.Errorf("build storage key: %w", err)
	}

	storedType := utils.NormalizeMimeType(contentType)
	if storedType == "" || storedType == "application/octet-stream" {
		storedType = utils.ContentTypeForExtension(ext)
	}
	if err := m.store.Put(ctx, key, data, storage.PutOptions{ContentType: storedType}); err != nil {
		return nil, fmt.Errorf("upload asset: %w", err)
	}

	return &MaterializedAsset{
		PublicURL:   m.store.PublicURL(key),
		StoragePath: key,
		ContentType: storedType,
		Data:        data,
	}, nil
}

// downloadAsset fetches url and returns the body with its content type. An empty or
// generic Content-Type header is replaced by a sniffed one.
func downloadAsset(ctx context.Context, client *http.Client, url string) ([]byte, string, error) {
	url = strings.TrimSpace(url)
	if !isAbsoluteURL(url) {
		return nil, "", fmt.Errorf("unsupported asset url %q", utils.LogSnippet(url))
	}

	reqCtx, cancel := context.WithTimeout(ctx, downloadTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", fmt.Errorf("create request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("download asset: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("download asset http %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxDownloadBytes+1))
	if err != nil {
		return nil, "", fmt.Errorf("read asset body: %w", err)
	}
	if len(data) == 0 {
		return nil, "", errors.New("asset body is empty")
	}
	if len(data) > maxDownloadBytes {
		return nil, "", fmt.Errorf("asset exceeds %d bytes", maxDownloadBytes)
	}

	contentType := resp.Header.Get("Content-Type")
	if normalized := utils.NormalizeMimeType(contentType); normalized == "" || normalized == "application/octet-stream" {
		contentType = http.DetectContentType(data)
	}
	return data, contentType, nil
}

func isAbsoluteURL(url string) bool {
	lower := strings.ToLower(url)
	return strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://")
}
