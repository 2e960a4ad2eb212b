package service

import (
	"context"
	"time"

	"studio/internal/model"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// JobSyncer is the part of Synchronizer the poller needs.
type JobSyncer interface {
	Sync(ctx context.Context, taskID string) (SyncResult, error)
}

// PollerOptions 后台轮询配置
type PollerOptions struct {
	Interval    time.Duration
	Batch       int
	Concurrency int
	// MinAge skips jobs touched more recently than this, leaving them to the callback.
	MinAge time.Duration
}

// Poller periodically syncs unfinished jobs the provider callback may have missed.
type Poller struct {
	repo   model.GenerationRepository
	syncer JobSyncer
	opts   PollerOptions
	now    func() time.Time
}

func NewPoller(repo model.GenerationRepository, syncer JobSyncer, opts PollerOptions) *Poller {
	if opts.Interval <= 0 {
		opts.Interval = 20 * time.Second
	}
	if opts.Batch <= 0 {
		opts.Batch = 25
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 4
	}
	return &Poller{repo: repo, syncer: syncer, opts: opts, now: time.Now}
}

// Run polls until ctx is cancelled.
func (p *Poller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.opts.Interval)
	defer ticker.Stop()

	logrus.WithField("interval", p.opts.Interval.String()).Info("poller_started")
	for {
		if _, err := p.PollOnce(ctx); err != nil && ctx.Err() == nil {
			logrus.WithError(err).Warn("poller_round_failed")
		}
		select {
		case <-ctx.Done():
			logrus.Info("poller_stopped")
			return
		case <-ticker.C:
		}
	}
}

// PollOnce syncs one batch of active jobs and returns how many tasks were synced.
func (p *Poller) PollOnce(ctx context.Context) (int, error) {
	jobs, err := p.repo.ListActiveGenerations(ctx, p.now().Add(-p.opts.MinAge), p.opts.Batch)
	if err != nil {
		return 0, err
	}

	// 先记下本轮轮询，失败或被拒绝的任务也会轮转到队尾，不会挤占后面的任务
	ids := make([]string, 0, len(jobs))
	for _, job := range jobs {
		ids = append(ids, job.ID)
	}
	if err := p.repo.MarkPolled(ctx, ids, p.now()); err != nil {
		logrus.WithError(err).WithField("count", len(ids)).Warn("poller_mark_polled_failed")
	}

	seen := make(map[string]struct{}, len(jobs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.opts.Concurrency)
	for _, job := range jobs {
		if _, dup := seen[job.TaskID]; dup {
			continue
		}
		seen[job.TaskID] = struct{}{}

		taskID := job.TaskID
		g.Go(func() error {
			result, err := p.syncer.Sync(gctx, taskID)
			logger := jobLogger(taskID, result.JobID).WithFields(logrus.Fields{
				"ok":     result.OK,
				"reason": result.Reason,
			})
			if err != nil {
				logger.WithError(err).Warn("poller_sync_failed")
				return nil
			}
			logger.Debug("poller_synced")
			return nil
		})
	}
	_ = g.Wait()
	return len(seen), nil
}
