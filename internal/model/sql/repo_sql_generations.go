package sql

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"studio/internal/entity"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// CreateGeneration persists a new generation, assigning an id when missing.
func (r *GormRepository) CreateGeneration(ctx context.Context, generation *entity.DbGeneration) error {
	if err := r.ready(); err != nil {
		return err
	}
	if generation == nil {
		return fmt.Errorf("generation is nil")
	}
	if strings.TrimSpace(generation.ID) == "" {
		generation.ID = uuid.NewString()
	}
	if generation.PreviewStatus == "" {
		generation.PreviewStatus = entity.PreviewStatusNone
	}
	return r.db.WithContext(ctx).Create(generation).Error
}

// GetGeneration loads a generation by id.
func (r *GormRepository) GetGeneration(ctx context.Context, id string) (*entity.DbGeneration, error) {
	if err := r.ready(); err != nil {
		return nil, err
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, fmt.Errorf("invalid generation id")
	}
	var generation entity.DbGeneration
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&generation).Error; err != nil {
		return nil, translateNotFound(err, "generation "+id)
	}
	return &generation, nil
}

// GetLatestByTaskID loads the most recently created generation for a provider task.
func (r *GormRepository) GetLatestByTaskID(ctx context.Context, taskID string) (*entity.DbGeneration, error) {
	if err := r.ready(); err != nil {
		return nil, err
	}
	taskID = strings.TrimSpace(taskID)
	if taskID == "" {
		return nil, fmt.Errorf("invalid task id")
	}
	var generation entity.DbGeneration
	err := r.db.WithContext(ctx).
		Where("task_id = ?", taskID).
		Order("created_at DESC, id DESC").
		First(&generation).Error
	if err != nil {
		return nil, translateNotFound(err, "task "+taskID)
	}
	return &generation, nil
}

// ListActiveGenerations lists unfinished generations for the poller, least recently polled first.
func (r *GormRepository) ListActiveGenerations(ctx context.Context, olderThan time.Time, limit int) ([]entity.DbGeneration, error) {
	if err := r.ready(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 25
	}
	var generations []entity.DbGeneration
	err := r.db.WithContext(ctx).
		Where("status IN ?", []entity.GenerationStatus{entity.GenerationStatusQueued, entity.GenerationStatusGenerating}).
		Where("task_id <> ''").
		Where("updated_at < ?", olderThan).
		// NULL 排序各方言不一致，显式把从未轮询的行放在最前
		Order("CASE WHEN polled_at IS NULL THEN 0 ELSE 1 END, polled_at ASC, updated_at ASC, id ASC").
		Limit(limit).
		Find(&generations).Error
	if err != nil {
		return nil, err
	}
	return generations, nil
}

// MarkPolled records a poll of ids. UpdateColumns skips the updated_at stamp.
func (r *GormRepository) MarkPolled(ctx context.Context, ids []string, at time.Time) error {
	if err := r.ready(); err != nil {
		return err
	}
	if len(ids) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Model(&entity.DbGeneration{}).
		Where("id IN ?", ids).
		UpdateColumns(map[string]interface{}{
			"polled_at":     at,
			"poll_attempts": gorm.Expr("poll_attempts + ?", 1),
		}).Error
}

// UpdateGeneration applies updates to the generation.
func (r *GormRepository) UpdateGeneration(ctx context.Context, id string, updates entity.GenerationUpdates) error {
	_, err := r.UpdateGenerationIf(ctx, id, entity.GenerationGuard{}, updates)
	return err
}

// UpdateGenerationIf applies updates while the row still matches guard.
//
// Columns the table does not have are dropped from the patch and the write is retried,
// up to maxDroppedColumns times, so a lagging schema never fails the whole update.
func (r *GormRepository) UpdateGenerationIf(ctx context.Context, id string, guard entity.GenerationGuard, updates entity.GenerationUpdates) (bool, error) {
	if err := r.ready(); err != nil {
		return false, err
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return false, fmt.Errorf("invalid generation id")
	}
	patch := updates.ToMap()
	if len(patch) == 0 {
		return false, entity.ErrEmptyPatch
	}
	return r.updateTolerant(ctx, id, guard, patch)
}

func (r *GormRepository) updateTolerant(ctx context.Context, id string, guard entity.GenerationGuard, patch map[string]interface{}) (bool, error) {
	var dropped []string
	for {
		query := r.db.WithContext(ctx).Model(&entity.DbGeneration{}).Where("id = ?", id)
		if len(guard.StatusIn) > 0 {
			query = query.Where("status IN ?", guard.StatusIn)
		}
		if len(guard.PreviewStatusIn) > 0 {
			query = query.Where("preview_status IN ?", guard.PreviewStatusIn)
		}

		result := query.Updates(patch)
		if result.Error == nil {
			if len(dropped) > 0 {
				logrus.WithFields(logrus.Fields{
					"generation_id": id,
					"dropped":       dropped,
				}).Warn("generation_update_dropped_unknown_columns")
			}
			return result.RowsAffected > 0, nil
		}

		column, ok := unknownColumn(result.Error)
		if !ok {
			return false, result.Error
		}
		if _, inPatch := patch[column]; !inPatch || len(dropped) >= maxDroppedColumns {
			return false, fmt.Errorf("update generation %s: %w", id, result.Error)
		}
		delete(patch, column)
		dropped = append(dropped, column)
		if len(patch) == 0 {
			return false, fmt.Errorf("update generation %s: no known columns left after dropping %v: %w", id, dropped, entity.ErrEmptyPatch)
		}
	}
}

func translateNotFound(err error, what string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%s: %w", what, entity.ErrNotFound)
	}
	return err
}
