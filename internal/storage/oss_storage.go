package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"studio/internal/config"

	"github.com/aliyun/aliyun-oss-go-sdk/oss"
)

type ossStorage struct {
	bucket     *oss.Bucket
	prefix     string
	publicBase string
}

func NewOSSStorage(cfg config.Config) (Storage, error) {
	endpoint := strings.TrimSpace(cfg.StorageOSSEndpoint)
	if endpoint == "" {
		return nil, errors.New("storage: missing OSS endpoint")
	}
	bucketName := strings.TrimSpace(cfg.StorageOSSBucket)
	if bucketName == "" {
		return nil, errors.New("storage: missing OSS bucket")
	}
	accessKey := strings.TrimSpace(cfg.StorageOSSAccessKeyID)
	secretKey := strings.TrimSpace(cfg.StorageOSSAccessKeySecret)
	if accessKey == "" || secretKey == "" {
		return nil, errors.New("storage: missing OSS credentials")
	}

	client, err := oss.New(endpoint, accessKey, secretKey)
	if err != nil {
		return nil, fmt.Errorf("storage: create OSS client: %w", err)
	}
	bucket, err := client.Bucket(bucketName)
	if err != nil {
		return nil, fmt.Errorf("storage: open OSS bucket: %w", err)
	}

	return &ossStorage{
		bucket:     bucket,
		prefix:     trimPrefix(cfg.StorageOSSPrefix),
		publicBase: normalisePublicBase(cfg.StoragePublicBaseURL),
	}, nil
}

func (s *ossStorage) Put(ctx context.Context, key string, data []byte, opts PutOptions) error {
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

	options := []oss.Option{
		oss.WithContext(ctx),
		oss.ContentType(resolveContentType(cleanKey, opts)),
	}

	if err := s.bucket.PutObject(objectKey, bytes.NewReader(data), options...); err != nil {
		return fmt.Errorf("put object: %w", err)
	}

	return nil
}

func (s *ossStorage) PublicURL(key string) string {
	cleanKey, err := normalizeKey(key)
	if err != nil {
		cleanKey = strings.TrimLeft(key, "/")
	}
	return publicURL(s.publicBase, joinPrefix(s.prefix, cleanKey))
}

var _ Storage = (*ossStorage)(nil)
