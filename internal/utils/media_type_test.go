package utils

import "testing"

func TestExtensionForContent(t *testing.T) {
	tests := []struct {
		name        string
		contentType string
		kind        string
		expected    string
	}{
		{name: "png", contentType: "image/png", kind: KindImage, expected: "png"},
		{name: "webp with charset", contentType: "image/webp; charset=binary", kind: KindImage, expected: "webp"},
		{name: "jpeg falls back to jpg", contentType: "image/jpeg", kind: KindImage, expected: "jpg"},
		{name: "unknown image", contentType: "application/octet-stream", kind: KindImage, expected: "jpg"},
		{name: "video mp4", contentType: "video/mp4", kind: KindVideo, expected: "mp4"},
		{name: "video webm", contentType: "VIDEO/WEBM", kind: KindVideo, expected: "webm"},
		{name: "unknown video", contentType: "", kind: KindVideo, expected: "mp4"},
		{name: "audio mpeg", contentType: "audio/mpeg", kind: KindAudio, expected: "mp3"},
		{name: "unknown audio", contentType: "binary/octet-stream", kind: KindAudio, expected: "mp3"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExtensionForContent(tt.contentType, tt.kind); got != tt.expected {
				t.Errorf("expected %q, got %q", tt.expected, got)
			}
		})
	}
}

func TestTruncate(t *testing.T) {
	if got := Truncate("  hello  ", 10); got != "hello" {
		t.Fatalf("expected trimmed value, got %q", got)
	}
	if got := Truncate("héllo wörld", 5); got != "héllo..." {
		t.Fatalf("expected rune-safe truncation, got %q", got)
	}
	if got := Truncate("abc", 0); got != "" {
		t.Fatalf("expected empty string, got %q", got)
	}
}
