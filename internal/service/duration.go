package service

import (
	"context"
	"math"
	"strings"

	"studio/internal/entity"
	"studio/internal/media"
	"studio/internal/provider"
)

// wordsPerSecond 语音时长估算：约每秒 2 个词
const wordsPerSecond = 2.0

var durationMetadataKeys = []string{"durationSec", "duration", "audioDuration"}

// DurationSource tells where a resolved duration came from.
type DurationSource string

const (
	DurationFromProvider  DurationSource = "provider"
	DurationFromMetadata  DurationSource = "metadata"
	DurationFromProbe     DurationSource = "probe"
	DurationFromHeuristic DurationSource = "heuristic"
)

// DurationResolver determines the length of a finished audio job.
type DurationResolver struct {
	prober media.DurationProber
}

func NewDurationResolver(prober media.DurationProber) *DurationResolver {
	return &DurationResolver{prober: prober}
}

// Resolve tries the provider's result metadata, the job metadata, probing the audio and
// finally a prompt-length estimate. The result is always positive.
func (r *DurationResolver) Resolve(ctx context.Context, job *entity.DbGeneration, status *provider.TaskStatus, data []byte, sourceURL string) (float64, DurationSource) {
	if status != nil && validDuration(status.Duration) {
		return status.Duration, DurationFromProvider
	}
	for _, key := range durationMetadataKeys {
		if v, ok := job.MetadataFloat(key); ok && validDuration(v) {
			return v, DurationFromMetadata
		}
	}

	if r != nil && r.prober != nil {
		seconds, err := r.prober.ProbeDuration(ctx, data, sourceURL)
		if err == nil && validDuration(seconds) {
			return seconds, DurationFromProbe
		}
		if err != nil {
			jobLogger(job.TaskID, job.ID).WithError(err).Warn("audio_duration_probe_failed")
		}
	}

	return estimateSpeechSeconds(job.Prompt), DurationFromHeuristic
}

func validDuration(v float64) bool {
	return v > 0 && !math.IsInf(v, 0) && !math.IsNaN(v)
}

func estimateSpeechSeconds(prompt string) float64 {
	words := len(strings.Fields(prompt))
	if words == 0 {
		return 1
	}
	return math.Max(1, math.Ceil(float64(words)/wordsPerSecond))
}
