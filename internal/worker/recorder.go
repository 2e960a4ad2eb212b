package worker

import (
	"context"
	"sync"
)

// Recorder is a Spawner that only records what was scheduled. Tests run the
// recorded tasks explicitly with RunAll.
type Recorder struct {
	mu    sync.Mutex
	tasks []queued
	names []string
}

func (r *Recorder) Go(name string, task Task) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tasks = append(r.tasks, queued{name: name, task: task})
	r.names = append(r.names, name)
	return nil
}

// Names lists every task name scheduled so far, including ones already run.
func (r *Recorder) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.names...)
}

// Pending is the number of tasks not yet run.
func (r *Recorder) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.tasks)
}

// RunAll runs pending tasks in order, including tasks they schedule, and reports how many ran.
func (r *Recorder) RunAll(ctx context.Context) int {
	ran := 0
	for {
		r.mu.Lock()
		if len(r.tasks) == 0 {
			r.mu.Unlock()
			return ran
		}
		next := r.tasks[0]
		r.tasks = r.tasks[1:]
		r.mu.Unlock()

		next.task(ctx)
		ran++
	}
}
