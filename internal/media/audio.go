package media

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-audio/wav"
	"github.com/hajimehoshi/go-mp3"
	ffmpeg "github.com/u2takey/ffmpeg-go"
)

// ErrUnsupportedAudio is returned when the payload is neither WAV nor MP3 and no URL can be probed.
var ErrUnsupportedAudio = errors.New("unsupported audio format")

// DurationProber measures audio length in seconds.
type DurationProber interface {
	ProbeDuration(ctx context.Context, data []byte, sourceURL string) (float64, error)
}

// AudioProber decodes WAV and MP3 in process and asks ffprobe about anything else.
type AudioProber struct {
	// UseFFprobe enables the ffprobe fallback for formats without an in-process decoder.
	UseFFprobe bool
}

func (p AudioProber) ProbeDuration(ctx context.Context, data []byte, sourceURL string) (float64, error) {
	if len(data) > 0 {
		switch {
		case isWAV(data):
			return wavDuration(data)
		case isMP3(data):
			return mp3Duration(data)
		}
	}
	if p.UseFFprobe && strings.TrimSpace(sourceURL) != "" {
		return ffprobeDuration(ctx, sourceURL)
	}
	return 0, ErrUnsupportedAudio
}

func isWAV(data []byte) bool {
	return len(data) >= 12 && string(data[0:4]) == "RIFF" && string(data[8:12]) == "WAVE"
}

func isMP3(data []byte) bool {
	if len(data) >= 3 && string(data[0:3]) == "ID3" {
		return true
	}
	// MPEG frame sync
	return len(data) >= 2 && data[0] == 0xFF && data[1]&0xE0 == 0xE0
}

func wavDuration(data []byte) (float64, error) {
	dec := wav.NewDecoder(bytes.NewReader(data))
	if !dec.IsValidFile() {
		return 0, errors.New("invalid wav file")
	}
	d, err := dec.Duration()
	if err != nil {
		return 0, fmt.Errorf("wav duration: %w", err)
	}
	return d.Seconds(), nil
}

func mp3Duration(data []byte) (float64, error) {
	dec, err := mp3.NewDecoder(bytes.NewReader(data))
	if err != nil {
		return 0, fmt.Errorf("decode mp3: %w", err)
	}
	rate := dec.SampleRate()
	length := dec.Length()
	if rate <= 0 || length <= 0 {
		return 0, errors.New("mp3 length unknown")
	}
	// 解码输出为 16-bit 双声道，每个采样 4 字节
	return float64(length) / float64(4*rate), nil
}

type probeOutput struct {
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
}

func ffprobeDuration(ctx context.Context, sourceURL string) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	raw, err := ffmpeg.Probe(sourceURL)
	if err != nil {
		return 0, fmt.Errorf("ffprobe: %w", err)
	}
	var out probeOutput
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return 0, fmt.Errorf("decode ffprobe output: %w", err)
	}
	d, err := strconv.ParseFloat(strings.TrimSpace(out.Format.Duration), 64)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("ffprobe duration %q unusable", out.Format.Duration)
	}
	return d, nil
}
