package worker

import (
	"context"
	"errors"
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"
)

var (
	ErrQueueFull = errors.New("background queue full")
	ErrClosed    = errors.New("background pool closed")
)

// Task is a unit of detached work. The context is cancelled when the pool is
// forced to stop.
type Task func(ctx context.Context)

// Spawner schedules detached work without waiting for it.
type Spawner interface {
	Go(name string, task Task) error
}

type queued struct {
	name string
	task Task
}

// Pool runs tasks from a buffered queue with bounded concurrency.
type Pool struct {
	queue chan queued
	sem   *semaphore.Weighted

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.RWMutex
	closed bool

	running    sync.WaitGroup
	dispatched chan struct{}
}

// NewPool starts a pool running at most concurrency tasks, holding up to queueSize more.
func NewPool(concurrency, queueSize int) *Pool {
	if concurrency <= 0 {
		concurrency = 4
	}
	if queueSize <= 0 {
		queueSize = 64
	}
	ctx, cancel := context.WithCancel(context.Background())
	p := &Pool{
		queue:      make(chan queued, queueSize),
		sem:        semaphore.NewWeighted(int64(concurrency)),
		ctx:        ctx,
		cancel:     cancel,
		dispatched: make(chan struct{}),
	}
	go p.dispatch()
	return p
}

// Go enqueues task. It never blocks: a full queue rejects the task.
func (p *Pool) Go(name string, task Task) error {
	if task == nil {
		return errors.New("task is nil")
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrClosed
	}
	select {
	case p.queue <- queued{name: name, task: task}:
		return nil
	default:
		logrus.WithField("task", name).Warn("background_task_rejected_queue_full")
		return ErrQueueFull
	}
}

func (p *Pool) dispatch() {
	defer close(p.dispatched)
	for item := range p.queue {
		if err := p.sem.Acquire(p.ctx, 1); err != nil {
			logrus.WithField("task", item.name).Warn("background_task_dropped_on_shutdown")
			continue
		}
		p.running.Add(1)
		go p.run(item)
	}
}

func (p *Pool) run(item queued) {
	defer p.running.Done()
	defer p.sem.Release(1)
	defer func() {
		if r := recover(); r != nil {
			logrus.WithFields(logrus.Fields{
				"task":  item.name,
				"panic": r,
			}).Error("background_task_panic")
		}
	}()
	item.task(p.ctx)
}

// Shutdown stops accepting work and waits for queued and running tasks.
// When ctx expires first, running tasks are cancelled and ctx's error returned.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.queue)
	}
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		<-p.dispatched
		p.running.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.cancel()
		return nil
	case <-ctx.Done():
		p.cancel()
		return ctx.Err()
	}
}
