package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"studio/internal/config"

	"github.com/tencentyun/cos-go-sdk-v5"
)

type cosStorage struct {
	client     *cos.Client
	prefix     string
	publicBase string
}

func NewCOSStorage(cfg config.Config) (Storage, error) {
	baseURL := strings.TrimSpace(cfg.StorageCOSBucketURL)
	if baseURL == "" {
		return nil, errors.New("storage: missing COS bucket URL")
	}
	parsedURL, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("storage: parse COS bucket URL: %w", err)
	}

	secretID := strings.TrimSpace(cfg.StorageCOSSecretID)
	secretKey := strings.TrimSpace(cfg.StorageCOSSecretKey)
	if secretID == "" || secretKey == "" {
		return nil, errors.New("storage: missing COS credentials")
	}

	transport := &cos.AuthorizationTransport{
		SecretID:  secretID,
		SecretKey: secretKey,
	}

	client := cos.NewClient(&cos.BaseURL{BucketURL: parsedURL}, &http.Client{Transport: transport})

	// 未配置公开地址时直接使用 bucket 域名
	publicBase := strings.TrimSpace(cfg.StoragePublicBaseURL)
	if publicBase == "" || !strings.HasPrefix(publicBase, "http") {
		publicBase = baseURL
	}

	return &cosStorage{
		client:     client,
		prefix:     trimPrefix(cfg.StorageCOSPrefix),
		publicBase: normalisePublicBase(publicBase),
	}, nil
}

func (s *cosStorage) Put(ctx context.Context, key string, data []byte, opts PutOptions) error {
	if len(data) == 0 {
		return errEmptyPayload
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	cleanKey, err := normalizeKey(key)
	if err != nil {
		return err
	}
	objectKey := joinPrefix(s.prefix, cleanKey)

	options := &cos.ObjectPutOptions{
		ObjectPutHeaderOptions: &cos.ObjectPutHeaderOptions{
			ContentType: resolveContentType(cleanKey, opts),
		},
	}

	resp, err := s.client.Object.Put(
		ctx,
		objectKey,
		bytes.NewReader(data),
		options,
	)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return fmt.Errorf("put object: %w", err)
	}

	return nil
}

func (s *cosStorage) PublicURL(key string) string {
	cleanKey, err := normalizeKey(key)
	if err != nil {
		cleanKey = strings.TrimLeft(key, "/")
	}
	return publicURL(s.publicBase, joinPrefix(s.prefix, cleanKey))
}

var _ Storage = (*cosStorage)(nil)
