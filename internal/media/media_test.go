package media

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

func encodePNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		img.Set(x, h/2, color.RGBA{R: 200, A: 255})
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func TestThumbnailResizesWideImages(t *testing.T) {
	thumb, err := Thumbnail(encodePNG(t, 1000, 500), 480)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	img, err := jpeg.Decode(bytes.NewReader(thumb))
	if err != nil {
		t.Fatalf("thumbnail is not a jpeg: %v", err)
	}
	if got := img.Bounds(); got.Dx() != 480 || got.Dy() != 240 {
		t.Fatalf("expected 480x240, got %dx%d", got.Dx(), got.Dy())
	}
}

func TestThumbnailKeepsSmallImages(t *testing.T) {
	thumb, err := Thumbnail(encodePNG(t, 200, 100), 480)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	img, err := jpeg.Decode(bytes.NewReader(thumb))
	if err != nil {
		t.Fatalf("thumbnail is not a jpeg: %v", err)
	}
	if got := img.Bounds(); got.Dx() != 200 || got.Dy() != 100 {
		t.Fatalf("expected 200x100, got %dx%d", got.Dx(), got.Dy())
	}
}

func TestThumbnailRejectsGarbage(t *testing.T) {
	if _, err := Thumbnail(nil, 480); err == nil {
		t.Fatal("expected error for empty payload")
	}
	if _, err := Thumbnail([]byte("not an image"), 480); err == nil {
		t.Fatal("expected error for undecodable payload")
	}
}

func encodeWAV(t *testing.T, seconds, sampleRate int) []byte {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tone.wav")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create wav: %v", err)
	}
	enc := wav.NewEncoder(f, sampleRate, 16, 1, 1)
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 1, SampleRate: sampleRate},
		Data:           make([]int, seconds*sampleRate),
		SourceBitDepth: 16,
	}
	if err := enc.Write(buf); err != nil {
		t.Fatalf("write wav: %v", err)
	}
	if err := enc.Close(); err != nil {
		t.Fatalf("close encoder: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("close file: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read wav: %v", err)
	}
	return data
}

func TestProbeDurationWAV(t *testing.T) {
	got, err := AudioProber{}.ProbeDuration(context.Background(), encodeWAV(t, 2, 8000), "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if math.Abs(got-2) > 0.01 {
		t.Fatalf("expected 2s, got %v", got)
	}
}

func TestProbeDurationUnsupported(t *testing.T) {
	_, err := AudioProber{}.ProbeDuration(context.Background(), []byte("OggS...."), "https://x/a.ogg")
	if !errors.Is(err, ErrUnsupportedAudio) {
		t.Fatalf("expected ErrUnsupportedAudio, got %v", err)
	}
}

func TestFFmpegArgs(t *testing.T) {
	poster := strings.Join(posterArgs("https://x/v.mp4", 320), " ")
	for _, want := range []string{"-i https://x/v.mp4", "-vframes 1", "scale='min(320,iw)':-2", "pipe:"} {
		if !strings.Contains(poster, want) {
			t.Errorf("poster args %q missing %q", poster, want)
		}
	}

	clip := strings.Join(clipArgs("https://x/v.mp4", 0, 0), " ")
	for _, want := range []string{"-t 3", "-vcodec libwebp", "fps=10,scale='min(480,iw)':-2"} {
		if !strings.Contains(clip, want) {
			t.Errorf("clip args %q missing %q", clip, want)
		}
	}
}
