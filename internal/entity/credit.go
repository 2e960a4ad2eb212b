package entity

import "time"

// CreditKind classifies ledger entries. At most one entry of each kind exists per generation.
type CreditKind string

const (
	// CreditKindCharge is the upfront charge recorded when the request is submitted.
	CreditKindCharge CreditKind = "charge"
	// CreditKindAudioCharge is the deferred, duration-based charge for audio jobs.
	CreditKindAudioCharge CreditKind = "audio_charge"
	// CreditKindRefund returns previously charged credits.
	CreditKindRefund CreditKind = "refund"
)

// DbCreditTransaction is a single ledger movement. Delta is negative for charges.
type DbCreditTransaction struct {
	ID           string     `gorm:"primaryKey;type:varchar(36)" json:"id"`
	CreatedAt    time.Time  `json:"created_at"`
	UserID       string     `gorm:"column:user_id;type:varchar(36);index" json:"user_id"`
	GenerationID string     `gorm:"column:generation_id;type:varchar(36);uniqueIndex:idx_credit_generation_kind" json:"generation_id"`
	Kind         CreditKind `gorm:"column:kind;type:varchar(32);uniqueIndex:idx_credit_generation_kind" json:"kind"`
	Delta        int        `gorm:"column:delta;not null" json:"delta"`
	Reason       string     `gorm:"column:reason;type:varchar(255)" json:"reason"`
	Context      string     `gorm:"column:context;type:text" json:"context,omitempty"`
}

// TableName 指定表名
func (DbCreditTransaction) TableName() string {
	return "credit_transactions"
}

// DbFirstGeneration records the first successful generation of a user for referral tracking.
type DbFirstGeneration struct {
	UserID       string    `gorm:"primaryKey;type:varchar(36)" json:"user_id"`
	GenerationID string    `gorm:"column:generation_id;type:varchar(36)" json:"generation_id"`
	CreatedAt    time.Time `json:"created_at"`
}

// TableName 指定表名
func (DbFirstGeneration) TableName() string {
	return "first_generations"
}
