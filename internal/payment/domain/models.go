package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

type Status string

const (
	StatusPending    Status = "PENDING"
	StatusAuthorized Status = "AUTHORIZED"
	StatusSucceeded  Status = "SUCCEEDED"
	StatusFailed     Status = "FAILED"
)

// Terminal reports whether a status admits no further transitions.
func (s Status) Terminal() bool {
	return s == StatusSucceeded || s == StatusFailed
}

// CanTransition is the single authority on legal status moves. Terminal
// states are absorbing and self-transitions are rejected.
func CanTransition(from, to Status) bool {
	if from == to {
		return false
	}
	switch from {
	case StatusPending:
		return to == StatusAuthorized || to == StatusSucceeded || to == StatusFailed
	case StatusAuthorized:
		return to == StatusSucceeded || to == StatusFailed
	default:
		return false
	}
}

type PaymentIntent struct {
	ID                snowflake.ID `gorm:"primaryKey" json:"id"`
	MerchantID        snowflake.ID `gorm:"column:merchant_id;not null;index" json:"merchant_id"`
	OrderID           string       `gorm:"column:order_id;not null" json:"order_id"`
	Gateway           string       `gorm:"not null" json:"gateway"`
	Method            string       `gorm:"not null" json:"method"`
	Country           string       `gorm:"not null" json:"country"`
	Amount            int64        `gorm:"not null" json:"amount"`
	Currency          string       `gorm:"not null" json:"currency"`
	Status            Status       `gorm:"not null" json:"status"`
	ProviderReference string       `gorm:"column:provider_reference" json:"provider_reference,omitempty"`
	FailureCode       string       `gorm:"column:failure_code" json:"failure_code,omitempty"`
	CreatedAt         time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt         time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (PaymentIntent) TableName() string { return "payment_intents" }

// PaymentIntentEvent is the append-only audit trail of status moves.
type PaymentIntentEvent struct {
	ID         snowflake.ID `gorm:"primaryKey" json:"id"`
	IntentID   snowflake.ID `gorm:"column:intent_id;not null;index" json:"intent_id"`
	FromStatus Status       `gorm:"column:from_status;not null" json:"from_status"`
	ToStatus   Status       `gorm:"column:to_status;not null" json:"to_status"`
	CreatedAt  time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

func (PaymentIntentEvent) TableName() string { return "payment_intent_events" }
