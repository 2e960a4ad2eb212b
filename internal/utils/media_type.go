package utils

import (
	"mime"
	"strings"
)

// Media kinds used in storage paths.
const (
	KindImage = "image"
	KindVideo = "video"
	KindAudio = "audio"
)

// NormalizeMimeType strips parameters and lowercases a Content-Type header value.
func NormalizeMimeType(mimeType string) string {
	v := strings.TrimSpace(mimeType)
	if v == "" {
		return ""
	}
	if parsed, _, err := mime.ParseMediaType(v); err == nil {
		return strings.ToLower(parsed)
	}
	if idx := strings.Index(v, ";"); idx > 0 {
		v = v[:idx]
	}
	return strings.ToLower(strings.TrimSpace(v))
}

// ExtensionForContent picks the stored file extension from the response Content-Type.
// The source URL extension is deliberately ignored; unknown types fall back per kind.
func ExtensionForContent(contentType, kind string) string {
	switch NormalizeMimeType(contentType) {
	case "image/png":
		return "png"
	case "image/webp":
		return "webp"
	case "video/mp4":
		return "mp4"
	case "video/webm":
		return "webm"
	case "audio/mpeg", "audio/mp3":
		return "mp3"
	case "audio/wav", "audio/x-wav", "audio/wave":
		return "wav"
	case "audio/mp4", "audio/x-m4a", "audio/aac":
		return "m4a"
	}
	return DefaultExtension(kind)
}

// DefaultExtension is the extension used when the content type is unknown.
func DefaultExtension(kind string) string {
	switch kind {
	case KindVideo:
		return "mp4"
	case KindAudio:
		return "mp3"
	default:
		return "jpg"
	}
}

// ContentTypeForExtension is the inverse of ExtensionForContent for stored objects.
func ContentTypeForExtension(ext string) string {
	switch strings.ToLower(strings.TrimPrefix(ext, ".")) {
	case "png":
		return "image/png"
	case "webp":
		return "image/webp"
	case "jpg", "jpeg":
		return "image/jpeg"
	case "mp4":
		return "video/mp4"
	case "webm":
		return "video/webm"
	case "mp3":
		return "audio/mpeg"
	case "wav":
		return "audio/wav"
	case "m4a":
		return "audio/mp4"
	default:
		return "application/octet-stream"
	}
}
