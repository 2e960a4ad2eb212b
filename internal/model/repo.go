package model

import (
	"context"
	"time"

	"studio/internal/entity"
)

// GenerationRepository 生成记录读写
//
// 记录的所有修改都经过 UpdateGeneration / UpdateGenerationIf，二者共用同一条容忍缺列的写入路径。
type GenerationRepository interface {
	CreateGeneration(ctx context.Context, generation *entity.DbGeneration) error
	GetGeneration(ctx context.Context, id string) (*entity.DbGeneration, error)
	// GetLatestByTaskID returns the most recently created row for taskID.
	GetLatestByTaskID(ctx context.Context, taskID string) (*entity.DbGeneration, error)
	UpdateGeneration(ctx context.Context, id string, updates entity.GenerationUpdates) error
	// UpdateGenerationIf applies updates only while the row matches guard and reports whether it did.
	UpdateGenerationIf(ctx context.Context, id string, guard entity.GenerationGuard, updates entity.GenerationUpdates) (bool, error)
	// ListActiveGenerations returns queued/generating rows with a task id untouched since olderThan,
	// never-polled rows first, then least recently polled.
	ListActiveGenerations(ctx context.Context, olderThan time.Time, limit int) ([]entity.DbGeneration, error)
	// MarkPolled stamps polled_at and bumps poll_attempts without touching updated_at.
	MarkPolled(ctx context.Context, ids []string, at time.Time) error
}

// CreditLedger 积分账本
type CreditLedger interface {
	GetBalance(ctx context.Context, userID string) (int, error)
	GetUserRole(ctx context.Context, userID string) (string, error)
	// ChargedAmount is the total still charged for a generation: charges minus refunds, never negative.
	ChargedAmount(ctx context.Context, generationID string) (int, error)
	// AdjustBalance records the entry and moves the balance atomically.
	// A second entry of the same kind for the same generation returns entity.ErrDuplicateEntry.
	AdjustBalance(ctx context.Context, adjustment entity.CreditAdjustment) error
	HasCreditEntry(ctx context.Context, generationID string, kind entity.CreditKind) (bool, error)
}

// FirstGenerationStore 首次生成记录
type FirstGenerationStore interface {
	// RecordFirstGeneration inserts the row if the user has none and reports whether it did.
	RecordFirstGeneration(ctx context.Context, userID, generationID string) (bool, error)
}

// UserStore 用户管理
type UserStore interface {
	CreateUser(ctx context.Context, user *entity.DbUser) error
	GetUserByID(ctx context.Context, id string) (*entity.DbUser, error)
}

// Repository 定义数据库操作接口
type Repository interface {
	GenerationRepository
	CreditLedger
	FirstGenerationStore
	UserStore
}
