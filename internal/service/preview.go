package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"studio/internal/entity"
	"studio/internal/media"
	"studio/internal/model"
	"studio/internal/storage"
	"studio/internal/utils"
	"studio/internal/worker"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

const (
	defaultPreviewTimeout = 2 * time.Minute
	previewPersistBackoff = 500 * time.Millisecond
)

// PreviewOptions 预览生成配置
type PreviewOptions struct {
	Enabled     bool
	MaxWidth    int
	ClipSeconds int
	Timeout     time.Duration
}

// PreviewRequest describes the asset a preview is derived from.
type PreviewRequest struct {
	GenerationID string
	UserID       string
	Type         entity.GenerationType

	// SourceURL is the durable asset URL, FallbackURL the provider URL. The first absolute
	// one is used when Data is empty.
	SourceURL   string
	FallbackURL string
	// Data is the already downloaded image, if any.
	Data []byte
}

func (r PreviewRequest) sourceURL() string {
	for _, candidate := range []string{r.SourceURL, r.FallbackURL} {
		if candidate = strings.TrimSpace(candidate); isAbsoluteURL(candidate) {
			return candidate
		}
	}
	return ""
}

// PreviewScheduler dispatches preview generation without waiting for it.
type PreviewScheduler interface {
	Schedule(req PreviewRequest) bool
}

// PreviewGenerator renders thumbnails, posters and animated clips for finished jobs.
type PreviewGenerator struct {
	repo           model.GenerationRepository
	store          storage.Storage
	frames         media.FrameExtractor
	spawner        worker.Spawner
	httpClient     *http.Client
	opts           PreviewOptions
	// 写 ready 失败后重试前的等待
	persistBackoff time.Duration
}

// NewPreviewGenerator wires the generator. frames may be nil when ffmpeg is unavailable;
// video previews then end in failed.
func NewPreviewGenerator(repo model.GenerationRepository, store storage.Storage, frames media.FrameExtractor, spawner worker.Spawner, httpClient *http.Client, opts PreviewOptions) *PreviewGenerator {
	if opts.MaxWidth <= 0 {
		opts.MaxWidth = media.DefaultMaxWidth
	}
	if opts.ClipSeconds <= 0 {
		opts.ClipSeconds = 3
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultPreviewTimeout
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &PreviewGenerator{
		repo:           repo,
		store:          store,
		frames:         frames,
		spawner:        spawner,
		httpClient:     httpClient,
		opts:           opts,
		persistBackoff: previewPersistBackoff,
	}
}

// Schedule hands the request to the background spawner and reports whether it was accepted.
func (p *PreviewGenerator) Schedule(req PreviewRequest) bool {
	logger := previewLogger(req)
	if !p.opts.Enabled {
		logger.Info("preview_disabled")
		return false
	}
	if p.spawner == nil {
		logger.Warn("preview_spawner_missing")
		return false
	}
	err := p.spawner.Go("preview:"+req.GenerationID, func(ctx context.Context) {
		if err := p.Generate(ctx, req); err != nil {
			logger.WithError(err).Warn("preview_generation_failed")
		}
	})
	if err != nil {
		logger.WithError(err).Warn("preview_schedule_rejected")
		return false
	}
	return true
}

// Generate claims the preview slot and renders it. It returns nil without doing anything
// when previews are disabled, already present, or claimed by someone else.
func (p *PreviewGenerator) Generate(ctx context.Context, req PreviewRequest) error {
	logger := previewLogger(req)
	if !p.opts.Enabled {
		logger.Info("preview_disabled")
		return nil
	}
	if !req.Type.NeedsPreview() {
		return nil
	}

	job, err := p.repo.GetGeneration(ctx, req.GenerationID)
	if err != nil {
		return fmt.Errorf("load generation: %w", err)
	}
	if job.HasPreview() || job.PreviewStatus != entity.PreviewStatusNone {
		logger.WithField("preview_status", job.PreviewStatus).Debug("preview_skip_existing")
		return nil
	}

	claimed, err := p.repo.UpdateGenerationIf(ctx, job.ID,
		entity.GenerationGuard{PreviewStatusIn: []entity.PreviewStatus{entity.PreviewStatusNone}},
		entity.GenerationUpdates{PreviewStatus: entity.Ptr(entity.PreviewStatusProcessing)})
	if err != nil {
		return fmt.Errorf("claim preview: %w", err)
	}
	if !claimed {
		logger.Debug("preview_claimed_elsewhere")
		return nil
	}

	workCtx, cancel := context.WithTimeout(ctx, p.opts.Timeout)
	defer cancel()

	var patch entity.GenerationUpdates
	switch req.Type {
	case entity.GenerationTypeVideo:
		patch, err = p.renderVideo(workCtx, req, logger)
	default:
		patch, err = p.renderImage(workCtx, req)
	}

	if err != nil {
		message := "preview generation failed: " + err.Error()
		if updateErr := p.repo.UpdateGeneration(ctx, job.ID, entity.GenerationUpdates{
			PreviewStatus: entity.Ptr(entity.PreviewStatusFailed),
			Error:         entity.Ptr(message),
		}); updateErr != nil {
			logger.WithError(updateErr).Error("preview_mark_failed_error")
		}
		return err
	}

	patch.PreviewStatus = entity.Ptr(entity.PreviewStatusReady)
	if err := p.persistReady(ctx, job.ID, patch); err != nil {
		// 对象已写入存储，但记录仍停在 processing，需要人工修复
		logger.WithError(err).WithFields(logrus.Fields{
			"preview_path": derefString(patch.PreviewPath),
			"poster_path":  derefString(patch.PosterPath),
		}).Error("preview_stuck_processing")
		return fmt.Errorf("persist preview: %w", err)
	}
	logger.Info("preview_ready")
	return nil
}

// persistReady writes the ready patch, retrying once after a short pause.
func (p *PreviewGenerator) persistReady(ctx context.Context, id string, patch entity.GenerationUpdates) error {
	err := p.repo.UpdateGeneration(ctx, id, patch)
	if err == nil {
		return nil
	}
	timer := time.NewTimer(p.persistBackoff)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return errors.Join(err, ctx.Err())
	case <-timer.C:
	}
	return p.repo.UpdateGeneration(ctx, id, patch)
}

func derefString(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}

func (p *PreviewGenerator) renderImage(ctx context.Context, req PreviewRequest) (entity.GenerationUpdates, error) {
	data := req.Data
	if len(data) == 0 {
		source := req.sourceURL()
		if source == "" {
			return entity.GenerationUpdates{}, errors.New("no downloadable source asset")
		}
		downloaded, _, err := downloadAsset(ctx, p.httpClient, source)
		if err != nil {
			return entity.GenerationUpdates{}, err
		}
		data = downloaded
	}

	thumb, err := media.Thumbnail(data, p.opts.MaxWidth)
	if err != nil {
		return entity.GenerationUpdates{}, err
	}
	key, err := p.put(ctx, req, "thumb.jpg", thumb, "image/jpeg")
	if err != nil {
		return entity.GenerationUpdates{}, err
	}
	return entity.GenerationUpdates{PreviewPath: &key}, nil
}

// renderVideo extracts the poster and the animated clip concurrently. Only the poster is required.
func (p *PreviewGenerator) renderVideo(ctx context.Context, req PreviewRequest, logger *logrus.Entry) (entity.GenerationUpdates, error) {
	if p.frames == nil {
		return entity.GenerationUpdates{}, errors.New("video frame extractor is not configured")
	}
	source := req.sourceURL()
	if source == "" {
		return entity.GenerationUpdates{}, errors.New("no downloadable source asset")
	}

	var poster, clip []byte
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		data, err := p.frames.Poster(gctx, source, p.opts.MaxWidth)
		if err != nil {
			return fmt.Errorf("poster: %w", err)
		}
		poster = data
		return nil
	})
	g.Go(func() error {
		data, err := p.frames.Clip(gctx, source, p.opts.ClipSeconds, p.opts.MaxWidth)
		if err != nil {
			logger.WithError(err).Warn("preview_clip_failed")
			return nil
		}
		clip = data
		return nil
	})
	if err := g.Wait(); err != nil {
		return entity.GenerationUpdates{}, err
	}

	posterKey, err := p.put(ctx, req, "poster.jpg", poster, "image/jpeg")
	if err != nil {
		return entity.GenerationUpdates{}, err
	}
	patch := entity.GenerationUpdates{PosterPath: &posterKey}

	if len(clip) > 0 {
		clipKey, err := p.put(ctx, req, "clip.webp", clip, "image/webp")
		if err != nil {
			logger.WithError(err).Warn("preview_clip_upload_failed")
		} else {
			patch.PreviewPath = &clipKey
		}
	}
	return patch, nil
}

// put writes {userId}/previews/{id}_{suffix}. Preview names are stable so a retry overwrites.
func (p *PreviewGenerator) put(ctx context.Context, req PreviewRequest, suffix string, data []byte, contentType string) (string, error) {
	if p.store == nil {
		return "", errors.New("storage is not configured")
	}
	userSegment := strings.TrimSpace(req.UserID)
	if userSegment == "" {
		userSegment = "anonymous"
	}
	key, err := storage.BuildKey(userSegment, "previews", req.GenerationID+"_"+suffix)
	if err != nil {
		return "", fmt.Errorf("build preview key: %w", err)
	}
	if err := p.store.Put(ctx, key, data, storage.PutOptions{ContentType: contentType}); err != nil {
		return "", fmt.Errorf("upload preview: %w", err)
	}
	return key, nil
}

func previewLogger(req PreviewRequest) *logrus.Entry {
	return jobLogger("", req.GenerationID).WithFields(logrus.Fields{
		"type":   req.Type,
		"source": utils.LogSnippet(req.sourceURL()),
	})
}
