package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	ffmpeg "github.com/u2takey/ffmpeg-go"

	"studio/internal/utils"
)

// FrameExtractor renders derived assets out of a video reachable at a URL.
type FrameExtractor interface {
	// Poster returns a JPEG of the first frame.
	Poster(ctx context.Context, sourceURL string, maxWidth int) ([]byte, error)
	// Clip returns a short looping animated webp of the first seconds.
	Clip(ctx context.Context, sourceURL string, seconds, maxWidth int) ([]byte, error)
}

// FFmpeg implements FrameExtractor by shelling out to the ffmpeg binary.
type FFmpeg struct {
	binary string
}

// NewFFmpeg returns an extractor using binary, or "ffmpeg" from PATH when empty.
func NewFFmpeg(binary string) *FFmpeg {
	binary = strings.TrimSpace(binary)
	if binary == "" {
		binary = "ffmpeg"
	}
	return &FFmpeg{binary: binary}
}

func scaleFilter(maxWidth int) string {
	if maxWidth <= 0 {
		maxWidth = DefaultMaxWidth
	}
	// 不放大小视频，高度保持偶数
	return fmt.Sprintf("scale='min(%d,iw)':-2", maxWidth)
}

func posterArgs(sourceURL string, maxWidth int) []string {
	return ffmpeg.Input(sourceURL, ffmpeg.KwArgs{"ss": "0"}).
		Output("pipe:", ffmpeg.KwArgs{
			"vframes": 1,
			"vf":      scaleFilter(maxWidth),
			"format":  "image2",
			"vcodec":  "mjpeg",
		}).
		GetArgs()
}

func clipArgs(sourceURL string, seconds, maxWidth int) []string {
	if seconds <= 0 {
		seconds = 3
	}
	return ffmpeg.Input(sourceURL, ffmpeg.KwArgs{"ss": "0"}).
		Output("pipe:", ffmpeg.KwArgs{
			"t":      seconds,
			"vf":     "fps=10," + scaleFilter(maxWidth),
			"vcodec": "libwebp",
			"loop":   0,
			"format": "webp",
		}).
		GetArgs()
}

func (f *FFmpeg) Poster(ctx context.Context, sourceURL string, maxWidth int) ([]byte, error) {
	return f.run(ctx, posterArgs(sourceURL, maxWidth))
}

func (f *FFmpeg) Clip(ctx context.Context, sourceURL string, seconds, maxWidth int) ([]byte, error) {
	return f.run(ctx, clipArgs(sourceURL, seconds, maxWidth))
}

func (f *FFmpeg) run(ctx context.Context, args []string) ([]byte, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, f.binary, append([]string{"-hide_banner", "-loglevel", "error", "-y"}, args...)...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("ffmpeg cancelled: %w", ctxErr)
		}
		return nil, fmt.Errorf("ffmpeg: %w: %s", err, utils.LogSnippet(stderr.String()))
	}
	if stdout.Len() == 0 {
		return nil, errors.New("ffmpeg produced no output")
	}
	return stdout.Bytes(), nil
}
