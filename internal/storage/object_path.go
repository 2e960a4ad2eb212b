package storage

import (
	"errors"
	"fmt"
	"mime"
	"path"
	"strings"
)

var errEmptyPayload = errors.New("empty payload")

func sanitizePathSegment(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	builder := strings.Builder{}
	builder.Grow(len(value))
	for i := 0; i < len(value); i++ {
		ch := value[i]
		switch {
		case ch >= 'a' && ch <= 'z', ch >= '0' && ch <= '9':
			builder.WriteByte(ch)
		case ch >= 'A' && ch <= 'Z':
			builder.WriteByte(ch + 32)
		case ch == '-', ch == '_', ch == '.':
			builder.WriteByte(ch)
		}
	}
	return builder.String()
}

// normalizeKey cleans every segment of key and rejects keys that escape the root.
func normalizeKey(key string) (string, error) {
	trimmed := strings.Trim(strings.TrimSpace(key), "/")
	if trimmed == "" {
		return "", errors.New("storage: empty object key")
	}
	segments := strings.Split(trimmed, "/")
	cleaned := make([]string, 0, len(segments))
	for _, segment := range segments {
		if segment == "" {
			continue
		}
		if segment == "." || segment == ".." {
			return "", fmt.Errorf("storage: invalid object key %q", key)
		}
		safe := sanitizePathSegment(segment)
		if safe == "" || strings.Trim(safe, ".") == "" {
			return "", fmt.Errorf("storage: invalid object key %q", key)
		}
		cleaned = append(cleaned, safe)
	}
	return path.Join(cleaned...), nil
}

// BuildKey joins raw segments into a normalised object key.
func BuildKey(segments ...string) (string, error) {
	return normalizeKey(strings.Join(segments, "/"))
}

func detectContentType(key string) string {
	ext := strings.TrimPrefix(path.Ext(key), ".")
	if ext == "" {
		return "application/octet-stream"
	}
	typeName := mime.TypeByExtension("." + strings.ToLower(ext))
	if typeName == "" {
		return "application/octet-stream"
	}
	return typeName
}

func resolveContentType(key string, opts PutOptions) string {
	if ct := strings.TrimSpace(opts.ContentType); ct != "" {
		return ct
	}
	return detectContentType(key)
}

func joinPrefix(prefix, key string) string {
	cleanPrefix := trimPrefix(prefix)
	if cleanPrefix == "" {
		return strings.TrimLeft(key, "/")
	}
	return path.Join(cleanPrefix, strings.TrimLeft(key, "/"))
}

func trimPrefix(prefix string) string {
	return strings.Trim(strings.TrimSpace(prefix), "/")
}

// normalisePublicBase 规范化公共 URL 基础路径
func normalisePublicBase(value string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		trimmed = "/files"
	}
	if strings.HasPrefix(trimmed, "http://") || strings.HasPrefix(trimmed, "https://") {
		return strings.TrimRight(trimmed, "/")
	}
	if !strings.HasPrefix(trimmed, "/") {
		trimmed = "/" + trimmed
	}
	return strings.TrimRight(trimmed, "/")
}

func publicURL(base, key string) string {
	return base + "/" + strings.TrimLeft(key, "/")
}

// SanitizeToken lowercases the provided token and keeps alphanumeric, dash, underscore and dot characters only.
func SanitizeToken(value string) string {
	return sanitizePathSegment(value)
}
