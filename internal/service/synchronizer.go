package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"studio/internal/entity"
	"studio/internal/model"
	"studio/internal/provider"
	"studio/internal/utils"
	"studio/internal/worker"

	"github.com/sirupsen/logrus"
)

const (
	defaultNotifyTimeout = 10 * time.Second
	emptyResultMessage   = "No results returned by provider"
)

// Sync outcome reasons reported to the trigger.
const (
	ReasonUpdated         = "updated"
	ReasonSucceeded       = "succeeded"
	ReasonProviderFailed  = "provider_failed"
	ReasonEmptyResult     = "empty_result"
	ReasonAlreadyFinal    = "already_finalized"
	ReasonAlreadyTerminal = "already_terminal"
	ReasonPreviewBackfill = "preview_backfill_scheduled"
	ReasonPreviewNoSource = "preview_source_missing"
	ReasonJobNotFound     = "job_not_found"
	ReasonFetchTransient  = "fetch_transient"
	ReasonProviderError   = "provider_error"
	ReasonUnknownState    = "unknown_state"
	ReasonPersistFailed   = "persist_failed"
	ReasonLookupFailed    = "lookup_failed"
	ReasonMissingTaskID   = "missing_task_id"
)

var activeStatuses = []entity.GenerationStatus{entity.GenerationStatusQueued, entity.GenerationStatusGenerating}

// SyncResult is what a trigger learns from one synchronization.
type SyncResult struct {
	OK     bool                    `json:"ok"`
	Reason string                  `json:"reason,omitempty"`
	JobID  string                  `json:"jobId,omitempty"`
	Status entity.GenerationStatus `json:"status,omitempty"`
}

// StatusFetcher queries the provider for a task.
type StatusFetcher interface {
	FetchRecord(ctx context.Context, taskID string) (*provider.TaskStatus, error)
	FetchVideo(ctx context.Context, taskID, modelID string) (*provider.TaskStatus, error)
}

// SynchronizerDeps collects the collaborators of a Synchronizer. Repo and Fetcher are
// required; everything else is optional and skipped when nil.
type SynchronizerDeps struct {
	Repo          model.GenerationRepository
	Fetcher       StatusFetcher
	Materializer  AssetMaterializer
	Previews      PreviewScheduler
	Billing       Billing
	Durations     *DurationResolver
	Notifier      Notifier
	Tracker       Tracker
	Spawner       worker.Spawner
	NotifyTimeout time.Duration
}

// Synchronizer drives a generation job to the provider's state.
type Synchronizer struct {
	repo          model.GenerationRepository
	fetcher       StatusFetcher
	materializer  AssetMaterializer
	previews      PreviewScheduler
	billing       Billing
	durations     *DurationResolver
	notifier      Notifier
	tracker       Tracker
	spawner       worker.Spawner
	notifyTimeout time.Duration
	now           func() time.Time
}

func NewSynchronizer(deps SynchronizerDeps) (*Synchronizer, error) {
	if deps.Repo == nil {
		return nil, errors.New("generation repository is required")
	}
	if deps.Fetcher == nil {
		return nil, errors.New("status fetcher is required")
	}
	if deps.NotifyTimeout <= 0 {
		deps.NotifyTimeout = defaultNotifyTimeout
	}
	if deps.Durations == nil {
		deps.Durations = NewDurationResolver(nil)
	}
	return &Synchronizer{
		repo:          deps.Repo,
		fetcher:       deps.Fetcher,
		materializer:  deps.Materializer,
		previews:      deps.Previews,
		billing:       deps.Billing,
		durations:     deps.Durations,
		notifier:      deps.Notifier,
		tracker:       deps.Tracker,
		spawner:       deps.Spawner,
		notifyTimeout: deps.NotifyTimeout,
		now:           time.Now,
	}, nil
}

// Sync fetches the provider state of taskID and applies it to the latest job with that task.
//
// Transient provider problems come back as a not-ok result with the row untouched so the
// trigger can retry. The returned error is reserved for storage failures.
func (s *Synchronizer) Sync(ctx context.Context, taskID string) (SyncResult, error) {
	taskID = strings.TrimSpace(taskID)
	if taskID == "" {
		return SyncResult{Reason: ReasonMissingTaskID}, nil
	}
	logger := jobLogger(taskID, "")

	job, err := s.repo.GetLatestByTaskID(ctx, taskID)
	if errors.Is(err, entity.ErrNotFound) {
		logger.Warn("sync_job_not_found")
		return SyncResult{Reason: ReasonJobNotFound}, nil
	}
	if err != nil {
		return SyncResult{Reason: ReasonLookupFailed}, fmt.Errorf("load generation by task: %w", err)
	}
	logger = jobLogger(taskID, job.ID).WithField("type", job.Type)

	if job.Status.IsTerminal() {
		return s.repairTerminal(ctx, job, logger)
	}

	status, err := s.fetch(ctx, job)
	if err != nil {
		result := SyncResult{JobID: job.ID, Status: job.Status, Reason: ReasonFetchTransient}
		var apiErr *provider.APIError
		if errors.As(err, &apiErr) {
			result.Reason = ReasonProviderError + ":" + apiErr.Code
		}
		logger.WithError(err).WithField("reason", result.Reason).Warn("sync_fetch_failed")
		return result, nil
	}

	logger = logger.WithFields(logrus.Fields{
		"provider_state": status.RawState,
		"recovered":      status.Recovered,
	})

	switch status.State {
	case provider.StateQueued, provider.StateGenerating:
		return s.markProgress(ctx, job, status, logger)
	case provider.StateSuccess:
		return s.finishSuccess(ctx, job, status, logger)
	case provider.StateFail:
		return s.finishFailure(ctx, job, failureMessage(status), ReasonProviderFailed, logger)
	default:
		logger.Warn("sync_unknown_provider_state")
		return SyncResult{JobID: job.ID, Status: job.Status, Reason: ReasonUnknownState + ":" + utils.Truncate(status.RawState, 64)}, nil
	}
}

func (s *Synchronizer) fetch(ctx context.Context, job *entity.DbGeneration) (*provider.TaskStatus, error) {
	if job.Type == entity.GenerationTypeVideo {
		return s.fetcher.FetchVideo(ctx, job.TaskID, job.ModelID)
	}
	return s.fetcher.FetchRecord(ctx, job.TaskID)
}

// markProgress writes the in-progress status even when unchanged so updated_at records
// the last provider answer.
func (s *Synchronizer) markProgress(ctx context.Context, job *entity.DbGeneration, status *provider.TaskStatus, logger *logrus.Entry) (SyncResult, error) {
	next := entity.GenerationStatusGenerating
	if status.State == provider.StateQueued {
		next = entity.GenerationStatusQueued
	}

	applied, err := s.repo.UpdateGenerationIf(ctx, job.ID,
		entity.GenerationGuard{StatusIn: activeStatuses},
		entity.GenerationUpdates{Status: &next})
	if err != nil {
		return SyncResult{JobID: job.ID, Status: job.Status, Reason: ReasonPersistFailed}, fmt.Errorf("persist progress: %w", err)
	}
	if !applied {
		logger.Debug("sync_progress_lost_race")
		return SyncResult{OK: true, JobID: job.ID, Status: job.Status, Reason: ReasonAlreadyFinal}, nil
	}
	if next != job.Status {
		logger.WithField("status", next).Info("sync_job_progress")
	}
	return SyncResult{OK: true, JobID: job.ID, Status: next, Reason: ReasonUpdated}, nil
}

func (s *Synchronizer) finishSuccess(ctx context.Context, job *entity.DbGeneration, status *provider.TaskStatus, logger *logrus.Entry) (SyncResult, error) {
	urls := status.URLs
	if len(urls) == 0 {
		urls = provider.ResultURLs(status.ResultPayload)
	}
	if len(urls) == 0 {
		logger.WithField("payload", utils.LogSnippet(status.ResultPayload)).Warn("sync_success_without_results")
		return s.finishFailure(ctx, job, emptyResultMessage, ReasonEmptyResult, logger)
	}

	primary := urls[0]
	resultURLs := entity.StringArray(urls)
	patch := entity.GenerationUpdates{
		Status:            entity.Ptr(entity.GenerationStatusSuccess),
		ResultURLs:        &resultURLs,
		AssetURL:          entity.Ptr(primary),
		ClearOriginalPath: true,
		PreviewStatus:     entity.Ptr(entity.PreviewStatusNone),
		ClearError:        true,
	}

	asset := s.materialize(ctx, job, primary, logger)
	if asset != nil {
		patch.AssetURL = entity.Ptr(asset.PublicURL)
		patch.OriginalPath = entity.Ptr(asset.StoragePath)
	}

	if job.Type == entity.GenerationTypeAudio {
		s.applyAudio(ctx, job, status, asset, primary, &patch, logger)
	}

	applied, err := s.repo.UpdateGenerationIf(ctx, job.ID, entity.GenerationGuard{StatusIn: activeStatuses}, patch)
	if err != nil {
		return SyncResult{JobID: job.ID, Status: job.Status, Reason: ReasonPersistFailed}, fmt.Errorf("persist success: %w", err)
	}
	if !applied {
		logger.Info("sync_success_already_finalized")
		return SyncResult{OK: true, JobID: job.ID, Reason: ReasonAlreadyFinal}, nil
	}

	logger.WithFields(logrus.Fields{
		"result_count": len(urls),
		"asset_url":    utils.LogSnippet(*patch.AssetURL),
		"materialized": asset != nil,
	}).Info("sync_job_succeeded")

	if job.Type.NeedsPreview() && s.previews != nil {
		req := PreviewRequest{
			GenerationID: job.ID,
			UserID:       job.UserID,
			Type:         job.Type,
			SourceURL:    *patch.AssetURL,
			FallbackURL:  primary,
		}
		if asset != nil && job.Type == entity.GenerationTypePhoto {
			req.Data = asset.Data
		}
		s.previews.Schedule(req)
	}
	s.notifyAsync(job, entity.GenerationStatusSuccess, "")
	s.trackAsync(job)

	return SyncResult{OK: true, JobID: job.ID, Status: entity.GenerationStatusSuccess, Reason: ReasonSucceeded}, nil
}

// materialize is best-effort: on failure the provider URL stays the asset URL.
func (s *Synchronizer) materialize(ctx context.Context, job *entity.DbGeneration, sourceURL string, logger *logrus.Entry) *MaterializedAsset {
	if s.materializer == nil {
		return nil
	}
	asset, err := s.materializer.Materialize(ctx, MaterializeRequest{
		SourceURL:    sourceURL,
		GenerationID: job.ID,
		UserID:       job.UserID,
		Kind:         job.Type.MediaKind(),
	})
	if err != nil {
		logger.WithError(err).WithField("source", utils.LogSnippet(sourceURL)).Warn("sync_materialize_failed")
		return nil
	}
	return asset
}

// applyAudio resolves the duration and, for deferred-billing jobs, charges for it. Billing
// errors never block the success write.
func (s *Synchronizer) applyAudio(ctx context.Context, job *entity.DbGeneration, status *provider.TaskStatus, asset *MaterializedAsset, sourceURL string, patch *entity.GenerationUpdates, logger *logrus.Entry) {
	var data []byte
	if asset != nil {
		data = asset.Data
	}
	duration, source := s.durations.Resolve(ctx, job, status, data, sourceURL)
	patch.DurationSec = entity.Ptr(duration)
	logger = logger.WithFields(logrus.Fields{"duration_sec": duration, "duration_source": source})

	if !job.DeferredBilling() || s.billing == nil {
		return
	}
	charge, err := s.billing.DeductForAudio(ctx, job, duration)
	if err != nil {
		logger.WithError(err).Error("sync_audio_billing_failed")
		return
	}
	spent := 0
	if charge.Charged || charge.Skipped == "already_charged" {
		spent = charge.Cost
	}
	patch.ActualStarsSpent = entity.Ptr(spent)
}

func (s *Synchronizer) finishFailure(ctx context.Context, job *entity.DbGeneration, message, reason string, logger *logrus.Entry) (SyncResult, error) {
	applied, err := s.repo.UpdateGenerationIf(ctx, job.ID,
		entity.GenerationGuard{StatusIn: activeStatuses},
		entity.GenerationUpdates{
			Status: entity.Ptr(entity.GenerationStatusFailed),
			Error:  entity.Ptr(message),
		})
	if err != nil {
		return SyncResult{JobID: job.ID, Status: job.Status, Reason: ReasonPersistFailed}, fmt.Errorf("persist failure: %w", err)
	}
	if !applied {
		logger.Info("sync_failure_already_finalized")
		return SyncResult{OK: true, JobID: job.ID, Reason: ReasonAlreadyFinal}, nil
	}
	logger.WithFields(logrus.Fields{"reason": reason, "error": utils.LogSnippet(message)}).Info("sync_job_failed")

	if s.billing != nil {
		if _, err := s.billing.Refund(ctx, job.ID, reason, message); err != nil {
			logger.WithError(err).Error("sync_refund_failed")
		}
	}
	s.notifyAsync(job, entity.GenerationStatusFailed, message)

	return SyncResult{OK: true, JobID: job.ID, Status: entity.GenerationStatusFailed, Reason: reason}, nil
}

// repairTerminal never touches status or results; it only backfills a missing preview.
func (s *Synchronizer) repairTerminal(ctx context.Context, job *entity.DbGeneration, logger *logrus.Entry) (SyncResult, error) {
	result := SyncResult{OK: true, JobID: job.ID, Status: job.Status, Reason: ReasonAlreadyTerminal}
	if job.Status != entity.GenerationStatusSuccess || !job.Type.NeedsPreview() {
		return result, nil
	}
	if job.HasPreview() || job.PreviewStatus != entity.PreviewStatusNone {
		return result, nil
	}

	source := job.PrimaryAssetURL()
	fallback := strings.TrimSpace(job.ResultURLs.First())
	if source == "" && fallback == "" {
		_, err := s.repo.UpdateGenerationIf(ctx, job.ID,
			entity.GenerationGuard{PreviewStatusIn: []entity.PreviewStatus{entity.PreviewStatusNone}},
			entity.GenerationUpdates{
				PreviewStatus: entity.Ptr(entity.PreviewStatusFailed),
				Error:         entity.Ptr("preview unavailable: no source asset url"),
			})
		if err != nil {
			return SyncResult{JobID: job.ID, Status: job.Status, Reason: ReasonPersistFailed}, fmt.Errorf("persist preview failure: %w", err)
		}
		logger.Warn("sync_preview_source_missing")
		result.Reason = ReasonPreviewNoSource
		return result, nil
	}

	if s.previews == nil {
		return result, nil
	}
	if s.previews.Schedule(PreviewRequest{
		GenerationID: job.ID,
		UserID:       job.UserID,
		Type:         job.Type,
		SourceURL:    source,
		FallbackURL:  fallback,
	}) {
		logger.Info("sync_preview_backfill_scheduled")
		result.Reason = ReasonPreviewBackfill
	}
	return result, nil
}

func (s *Synchronizer) notifyAsync(job *entity.DbGeneration, status entity.GenerationStatus, message string) {
	if s.notifier == nil {
		return
	}
	n := Notification{
		UserID: job.UserID,
		JobID:  job.ID,
		TaskID: job.TaskID,
		Kind:   job.Type,
		Status: status,
		Error:  message,
		At:     s.now(),
	}
	s.detach("notify:"+job.ID, func(ctx context.Context) {
		ctx, cancel := context.WithTimeout(ctx, s.notifyTimeout)
		defer cancel()
		if err := s.notifier.Notify(ctx, n); err != nil {
			jobLogger(job.TaskID, job.ID).WithError(err).Warn("sync_notify_failed")
		}
	})
}

func (s *Synchronizer) trackAsync(job *entity.DbGeneration) {
	if s.tracker == nil {
		return
	}
	userID, jobID, taskID := job.UserID, job.ID, job.TaskID
	s.detach("track:"+jobID, func(ctx context.Context) {
		if err := s.tracker.TrackFirstGeneration(ctx, userID, jobID); err != nil {
			jobLogger(taskID, jobID).WithError(err).Warn("sync_track_first_generation_failed")
		}
	})
}

// detach runs task on the spawner, or on a bare goroutine when none is configured.
func (s *Synchronizer) detach(name string, task worker.Task) {
	if s.spawner == nil {
		go task(context.Background())
		return
	}
	if err := s.spawner.Go(name, task); err != nil {
		logrus.WithError(err).WithField("task", name).Warn("sync_detached_task_dropped")
	}
}

func failureMessage(status *provider.TaskStatus) string {
	if msg := strings.TrimSpace(status.FailMsg); msg != "" {
		return msg
	}
	if code := strings.TrimSpace(status.FailCode); code != "" {
		return fmt.Sprintf("Generation failed (code %s)", code)
	}
	return "Generation failed"
}
