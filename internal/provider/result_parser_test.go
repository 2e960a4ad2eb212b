package provider

import (
	"reflect"
	"testing"
)

func TestParseResultShapes(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		kind     ParseKind
		expected []string
	}{
		{name: "result urls object", raw: `{"resultUrls":["https://x/a.png","https://x/b.png"]}`, kind: ParseOK, expected: []string{"https://x/a.png", "https://x/b.png"}},
		{name: "outputs object", raw: `{"outputs":["https://x/v.mp4"]}`, kind: ParseOK, expected: []string{"https://x/v.mp4"}},
		{name: "bare array filters non strings", raw: `["https://x/a.png", 42, null, {"u":1}, " "]`, kind: ParseOK, expected: []string{"https://x/a.png"}},
		{name: "bare string", raw: `"https://x/a.webp"`, kind: ParseOK, expected: []string{"https://x/a.webp"}},
		{name: "double encoded", raw: `"{\"resultUrls\":[\"https://x/a.png\"]}"`, kind: ParseOK, expected: []string{"https://x/a.png"}},
		{name: "truncated json", raw: `{"resultUrls":["https://x/a.png","https://x/b.jp`, kind: ParseRecovered, expected: []string{"https://x/a.png"}},
		{name: "escaped slashes in text", raw: `resultUrls: [https:\/\/cdn.x\/a.jpeg`, kind: ParseRecovered, expected: []string{"https://cdn.x/a.jpeg"}},
		{name: "plain url without media extension", raw: `see http://x/download?id=1 now`, kind: ParseRecovered, expected: []string{"http://x/download?id=1"}},
		{name: "duplicate urls", raw: `{"resultUrls":"x"} https://x/a.png https://x/a.png`, kind: ParseRecovered, expected: []string{"https://x/a.png"}},
		{name: "host starting with an extension", raw: `{"resultUrls":["https://files.pngstore.io/a/b.png"`, kind: ParseRecovered, expected: []string{"https://files.pngstore.io/a/b.png"}},
		{name: "host containing mov", raw: `{"outputs":["https://cdn.movies-host.com/out/v1.mp4?sig=ab`, kind: ParseRecovered, expected: []string{"https://cdn.movies-host.com/out/v1.mp4?sig=ab"}},
		{name: "path segment starting with an extension", raw: `[https://x/gif.assets/clip.webm, https://x/jpeg-dir/noext`, kind: ParseRecovered, expected: []string{"https://x/gif.assets/clip.webm"}},
		{name: "audio", raw: `{"resultUrls":["https://cdn.x/voice.mp3"`, kind: ParseRecovered, expected: []string{"https://cdn.x/voice.mp3"}},
		{name: "empty object", raw: `{}`, kind: ParseEmpty},
		{name: "empty list", raw: `{"resultUrls":[]}`, kind: ParseEmpty},
		{name: "garbage", raw: `{{{not json`, kind: ParseEmpty},
		{name: "empty", raw: "   ", kind: ParseEmpty},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseResult(tt.raw)
			if got.Kind != tt.kind {
				t.Fatalf("expected kind %s, got %s (urls %v)", tt.kind, got.Kind, got.URLs)
			}
			if len(tt.expected) == 0 {
				if len(got.URLs) != 0 {
					t.Fatalf("expected no urls, got %v", got.URLs)
				}
				return
			}
			if !reflect.DeepEqual(got.URLs, tt.expected) {
				t.Fatalf("expected %v, got %v", tt.expected, got.URLs)
			}
		})
	}
}

func TestParseResultDuration(t *testing.T) {
	got := ParseResult(`{"resultUrls":["https://x/a.mp3"],"duration":7.5}`)
	if got.Kind != ParseOK {
		t.Fatalf("expected ok, got %s", got.Kind)
	}
	if got.Duration != 7.5 {
		t.Fatalf("expected duration 7.5, got %v", got.Duration)
	}
}

func TestParseResultNeverPanics(t *testing.T) {
	full := `{"resultUrls":["https://x/a.png"],"meta":{"w":1024,"h":768},"duration":3}`
	for i := 0; i <= len(full); i++ {
		prefix := full[:i]
		func() {
			defer func() {
				if r := recover(); r != nil {
					t.Fatalf("panic on prefix %q: %v", prefix, r)
				}
			}()
			_ = ParseResult(prefix)
		}()
	}

	odd := []string{"null", "true", "12", `"`, `[`, `{"outputs":null}`, `{"outputs":[1,2]}`, "\x00\xff", `"  "`}
	for _, raw := range odd {
		if got := ParseResult(raw); got.Kind != ParseEmpty {
			t.Errorf("expected empty for %q, got %s %v", raw, got.Kind, got.URLs)
		}
	}
}
