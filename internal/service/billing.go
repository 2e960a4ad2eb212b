package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"studio/internal/entity"
	"studio/internal/model"

	"github.com/sirupsen/logrus"
)

// Billing adjusts credits when a job finishes.
type Billing interface {
	Refund(ctx context.Context, jobID, reasonCode, refundContext string) (int, error)
	DeductForAudio(ctx context.Context, job *entity.DbGeneration, durationSec float64) (AudioCharge, error)
}

// AudioCharge is the outcome of a deferred audio deduction.
type AudioCharge struct {
	Cost    int
	Charged bool
	// Skipped explains why nothing was charged: privileged_role, insufficient_balance or already_charged.
	Skipped string
}

// BillingAdjuster refunds failed jobs and bills deferred audio jobs by duration.
type BillingAdjuster struct {
	jobs            model.GenerationRepository
	ledger          model.CreditLedger
	privilegedRoles []string
}

func NewBillingAdjuster(jobs model.GenerationRepository, ledger model.CreditLedger, privilegedRoles []string) *BillingAdjuster {
	return &BillingAdjuster{jobs: jobs, ledger: ledger, privilegedRoles: privilegedRoles}
}

// Refund returns whatever is still charged to the job and reports the amount. Jobs that were
// never charged, or were already refunded, are a no-op.
func (b *BillingAdjuster) Refund(ctx context.Context, jobID, reasonCode, refundContext string) (int, error) {
	logger := jobLogger("", jobID).WithField("reason", reasonCode)

	charged, err := b.ledger.ChargedAmount(ctx, jobID)
	if err != nil {
		return 0, fmt.Errorf("load charged amount: %w", err)
	}
	if charged <= 0 {
		logger.Debug("billing_refund_nothing_charged")
		return 0, nil
	}

	job, err := b.jobs.GetGeneration(ctx, jobID)
	if err != nil {
		return 0, fmt.Errorf("load generation: %w", err)
	}

	err = b.ledger.AdjustBalance(ctx, entity.CreditAdjustment{
		UserID:       job.UserID,
		GenerationID: jobID,
		Kind:         entity.CreditKindRefund,
		Delta:        charged,
		Reason:       reasonCode,
		Context:      refundContext,
	})
	if errors.Is(err, entity.ErrDuplicateEntry) {
		logger.Debug("billing_refund_already_recorded")
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("record refund: %w", err)
	}

	logger.WithFields(logrus.Fields{
		"user_id": job.UserID,
		"amount":  charged,
	}).Info("billing_refund_recorded")
	return charged, nil
}

// AudioCost is one credit per started second, at least one.
func AudioCost(durationSec float64) int {
	if math.IsNaN(durationSec) || durationSec < 1 {
		return 1
	}
	return int(math.Ceil(durationSec))
}

// DeductForAudio charges a deferred-billing audio job by duration.
//
// An insufficient balance does not block the job: the deduction is skipped and logged at
// warn level, and the asset is still delivered. Credits are under-collected in that case.
func (b *BillingAdjuster) DeductForAudio(ctx context.Context, job *entity.DbGeneration, durationSec float64) (AudioCharge, error) {
	if job == nil {
		return AudioCharge{}, errors.New("generation is required")
	}
	cost := AudioCost(durationSec)
	logger := jobLogger(job.TaskID, job.ID).WithFields(logrus.Fields{
		"user_id":      job.UserID,
		"duration_sec": durationSec,
		"cost":         cost,
	})

	role, err := b.ledger.GetUserRole(ctx, job.UserID)
	if err != nil {
		return AudioCharge{Cost: cost}, fmt.Errorf("load user role: %w", err)
	}
	if entity.IsPrivilegedRole(role, b.privilegedRoles) {
		logger.WithField("role", strings.ToLower(role)).Info("billing_audio_skip_privileged")
		return AudioCharge{Cost: cost, Skipped: "privileged_role"}, nil
	}

	balance, err := b.ledger.GetBalance(ctx, job.UserID)
	if err != nil {
		return AudioCharge{Cost: cost}, fmt.Errorf("load balance: %w", err)
	}
	if balance < cost {
		// 并发同步时余额可能已被本任务扣过
		if charged, err := b.ledger.HasCreditEntry(ctx, job.ID, entity.CreditKindAudioCharge); err == nil && charged {
			logger.Debug("billing_audio_already_charged")
			return AudioCharge{Cost: cost, Skipped: "already_charged"}, nil
		}
		logger.WithFields(logrus.Fields{
			"balance":   balance,
			"shortfall": cost - balance,
		}).Warn("billing_audio_insufficient_balance")
		return AudioCharge{Cost: cost, Skipped: "insufficient_balance"}, nil
	}

	err = b.ledger.AdjustBalance(ctx, entity.CreditAdjustment{
		UserID:       job.UserID,
		GenerationID: job.ID,
		Kind:         entity.CreditKindAudioCharge,
		Delta:        -cost,
		Reason:       "audio_duration",
		Context:      fmt.Sprintf("%.2fs", durationSec),
	})
	if errors.Is(err, entity.ErrDuplicateEntry) {
		logger.Debug("billing_audio_already_charged")
		return AudioCharge{Cost: cost, Skipped: "already_charged"}, nil
	}
	if err != nil {
		return AudioCharge{Cost: cost}, fmt.Errorf("record audio charge: %w", err)
	}

	logger.WithField("balance_before", balance).Info("billing_audio_charged")
	return AudioCharge{Cost: cost, Charged: true}, nil
}
