package service

import (
	"context"
	"strings"

	"studio/internal/model"

	"github.com/sirupsen/logrus"
)

// Tracker records referral/analytics milestones.
type Tracker interface {
	TrackFirstGeneration(ctx context.Context, userID, jobID string) error
}

// FirstGenerationTracker stores a user's first successful generation.
type FirstGenerationTracker struct {
	store model.FirstGenerationStore
}

func NewFirstGenerationTracker(store model.FirstGenerationStore) *FirstGenerationTracker {
	return &FirstGenerationTracker{store: store}
}

func (t *FirstGenerationTracker) TrackFirstGeneration(ctx context.Context, userID, jobID string) error {
	if t == nil || t.store == nil || strings.TrimSpace(userID) == "" {
		return nil
	}
	first, err := t.store.RecordFirstGeneration(ctx, userID, jobID)
	if err != nil {
		return err
	}
	if first {
		logrus.WithFields(logrus.Fields{
			"user_id":       userID,
			"generation_id": jobID,
		}).Info("first_generation_recorded")
	}
	return nil
}
