package sql

import (
	"context"
	"fmt"
	"strings"

	"studio/internal/entity"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GetBalance returns the user's current credit balance.
func (r *GormRepository) GetBalance(ctx context.Context, userID string) (int, error) {
	user, err := r.GetUserByID(ctx, userID)
	if err != nil {
		return 0, err
	}
	return user.StarsBalance, nil
}

// GetUserRole returns the user's role.
func (r *GormRepository) GetUserRole(ctx context.Context, userID string) (string, error) {
	user, err := r.GetUserByID(ctx, userID)
	if err != nil {
		return "", err
	}
	return user.Role, nil
}

// ChargedAmount sums the ledger for a generation. Charges are stored negative and refunds
// positive, so the amount still held is the negated total.
func (r *GormRepository) ChargedAmount(ctx context.Context, generationID string) (int, error) {
	if err := r.ready(); err != nil {
		return 0, err
	}
	generationID = strings.TrimSpace(generationID)
	if generationID == "" {
		return 0, fmt.Errorf("invalid generation id")
	}

	var total int64
	err := r.db.WithContext(ctx).
		Model(&entity.DbCreditTransaction{}).
		Where("generation_id = ?", generationID).
		Select("COALESCE(SUM(delta), 0)").
		Scan(&total).Error
	if err != nil {
		return 0, err
	}
	if total >= 0 {
		return 0, nil
	}
	return int(-total), nil
}

func (r *GormRepository) HasCreditEntry(ctx context.Context, generationID string, kind entity.CreditKind) (bool, error) {
	if err := r.ready(); err != nil {
		return false, err
	}
	var count int64
	err := r.db.WithContext(ctx).
		Model(&entity.DbCreditTransaction{}).
		Where("generation_id = ? AND kind = ?", strings.TrimSpace(generationID), kind).
		Count(&count).Error
	return count > 0, err
}

// AdjustBalance writes the ledger entry and moves the balance in one transaction.
func (r *GormRepository) AdjustBalance(ctx context.Context, adjustment entity.CreditAdjustment) error {
	if err := r.ready(); err != nil {
		return err
	}
	userID := strings.TrimSpace(adjustment.UserID)
	generationID := strings.TrimSpace(adjustment.GenerationID)
	if userID == "" || generationID == "" {
		return fmt.Errorf("credit adjustment needs a user and a generation")
	}
	if adjustment.Kind == "" {
		return fmt.Errorf("credit adjustment kind is empty")
	}

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing int64
		if err := tx.Model(&entity.DbCreditTransaction{}).
			Where("generation_id = ? AND kind = ?", generationID, adjustment.Kind).
			Count(&existing).Error; err != nil {
			return err
		}
		if existing > 0 {
			return entity.ErrDuplicateEntry
		}

		entry := entity.DbCreditTransaction{
			ID:           uuid.NewString(),
			UserID:       userID,
			GenerationID: generationID,
			Kind:         adjustment.Kind,
			Delta:        adjustment.Delta,
			Reason:       adjustment.Reason,
			Context:      adjustment.Context,
		}
		if err := tx.Create(&entry).Error; err != nil {
			// 并发写入时由唯一索引兜底
			if isDuplicateKey(err) {
				return entity.ErrDuplicateEntry
			}
			return err
		}

		result := tx.Model(&entity.DbUser{}).
			Where("id = ?", userID).
			Update("stars_balance", gorm.Expr("stars_balance + ?", adjustment.Delta))
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return fmt.Errorf("user %s: %w", userID, entity.ErrNotFound)
		}
		return nil
	})
}

// RecordFirstGeneration inserts the user's first generation unless one is already recorded.
func (r *GormRepository) RecordFirstGeneration(ctx context.Context, userID, generationID string) (bool, error) {
	if err := r.ready(); err != nil {
		return false, err
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return false, fmt.Errorf("invalid user id")
	}
	row := entity.DbFirstGeneration{UserID: userID, GenerationID: generationID}
	result := r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&row)
	if result.Error != nil {
		if isDuplicateKey(result.Error) {
			return false, nil
		}
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}
