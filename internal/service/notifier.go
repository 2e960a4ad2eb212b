package service

import (
	"context"
	"errors"
	"time"

	"studio/internal/entity"
)

// Notification is a job status change pushed to other systems.
type Notification struct {
	UserID string                  `json:"userId"`
	JobID  string                  `json:"jobId"`
	TaskID string                  `json:"taskId,omitempty"`
	Kind   entity.GenerationType   `json:"kind"`
	Status entity.GenerationStatus `json:"status"`
	Error  string                  `json:"error,omitempty"`
	At     time.Time               `json:"at"`
}

// Notifier delivers notifications. Callers treat delivery as best-effort.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, n Notification) error

func (f NotifierFunc) Notify(ctx context.Context, n Notification) error {
	return f(ctx, n)
}

// MultiNotifier fans a notification out to every notifier, even when some fail.
type MultiNotifier []Notifier

func (m MultiNotifier) Notify(ctx context.Context, n Notification) error {
	var errs []error
	for _, notifier := range m {
		if notifier == nil {
			continue
		}
		if err := notifier.Notify(ctx, n); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
