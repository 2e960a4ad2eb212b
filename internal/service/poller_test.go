package service

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"studio/internal/entity"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingSyncer struct {
	mu       sync.Mutex
	tasks    []string
	inflight atomic.Int32
	peak     atomic.Int32
}

func (c *countingSyncer) Sync(_ context.Context, taskID string) (SyncResult, error) {
	n := c.inflight.Add(1)
	defer c.inflight.Add(-1)
	for {
		peak := c.peak.Load()
		if n <= peak || c.peak.CompareAndSwap(peak, n) {
			break
		}
	}
	time.Sleep(5 * time.Millisecond)

	c.mu.Lock()
	c.tasks = append(c.tasks, taskID)
	c.mu.Unlock()
	return SyncResult{OK: true}, nil
}

func TestPollOnceSyncsStaleActiveJobs(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	rows := []*entity.DbGeneration{
		{ID: "a", TaskID: "task-1", Status: entity.GenerationStatusQueued},
		{ID: "b", TaskID: "task-1", Status: entity.GenerationStatusGenerating},
		{ID: "c", TaskID: "task-2", Status: entity.GenerationStatusGenerating},
		{ID: "d", TaskID: "task-3", Status: entity.GenerationStatusGenerating},
		{ID: "e", TaskID: "task-4", Status: entity.GenerationStatusSuccess},
	}
	for _, g := range rows {
		g.Type = entity.GenerationTypePhoto
		seedGeneration(t, repo, g)
	}

	syncer := &countingSyncer{}
	poller := NewPoller(repo, syncer, PollerOptions{Batch: 10, Concurrency: 2, MinAge: time.Minute})
	poller.now = func() time.Time { return time.Now().Add(time.Hour) }

	n, err := poller.PollOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	sort.Strings(syncer.tasks)
	assert.Equal(t, []string{"task-1", "task-2", "task-3"}, syncer.tasks)
	assert.LessOrEqual(t, syncer.peak.Load(), int32(2))
}

// notOKSyncer 模拟供应商持续报错：同步不写库
type notOKSyncer struct {
	mu    sync.Mutex
	tasks []string
}

func (s *notOKSyncer) Sync(_ context.Context, taskID string) (SyncResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks = append(s.tasks, taskID)
	return SyncResult{OK: false, Reason: ReasonFetchTransient}, nil
}

func TestPollOnceRotatesPastFailingJobs(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	seedGeneration(t, repo, &entity.DbGeneration{ID: "a-stuck", TaskID: "task-stuck", Type: entity.GenerationTypeVideo})
	seedGeneration(t, repo, &entity.DbGeneration{ID: "b-healthy", TaskID: "task-healthy", Type: entity.GenerationTypeVideo})

	syncer := &notOKSyncer{}
	poller := NewPoller(repo, syncer, PollerOptions{Batch: 1, Concurrency: 1, MinAge: time.Minute})
	clock := time.Now().Add(time.Hour)
	poller.now = func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}

	for i := 0; i < 4; i++ {
		n, err := poller.PollOnce(ctx)
		require.NoError(t, err)
		require.Equal(t, 1, n)
	}
	assert.Equal(t, []string{"task-stuck", "task-healthy", "task-stuck", "task-healthy"}, syncer.tasks)
	assert.Equal(t, 2, mustGet(t, repo, "a-stuck").PollAttempts)
	assert.Equal(t, entity.GenerationStatusGenerating, mustGet(t, repo, "a-stuck").Status)
}

func TestPollOnceSkipsFreshJobs(t *testing.T) {
	repo := newTestRepo(t)
	seedGeneration(t, repo, &entity.DbGeneration{ID: "a", TaskID: "task-1", Type: entity.GenerationTypePhoto})

	syncer := &countingSyncer{}
	n, err := NewPoller(repo, syncer, PollerOptions{MinAge: time.Minute}).PollOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, syncer.tasks)
}

func TestPollerRunStopsOnCancel(t *testing.T) {
	repo := newTestRepo(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		NewPoller(repo, &countingSyncer{}, PollerOptions{Interval: 10 * time.Millisecond}).Run(ctx)
		close(done)
	}()
	time.Sleep(30 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("poller did not stop")
	}
}
