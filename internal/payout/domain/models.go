package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

type Status string

const (
	StatusPending    Status = "PENDING"
	StatusProcessing Status = "PROCESSING"
	StatusSucceeded  Status = "SUCCEEDED"
	StatusFailed     Status = "FAILED"
)

func (s Status) Terminal() bool {
	return s == StatusSucceeded || s == StatusFailed
}

type PayoutJob struct {
	ID                snowflake.ID      `gorm:"primaryKey" json:"id"`
	MerchantID        snowflake.ID      `gorm:"column:merchant_id;not null;index" json:"merchant_id"`
	Provider          string            `gorm:"not null" json:"provider"`
	Amount            int64             `gorm:"not null" json:"amount"`
	Currency          string            `gorm:"not null" json:"currency"`
	PayeeIdentifier   string            `gorm:"column:payee_identifier;not null" json:"payee_identifier"`
	Status            Status            `gorm:"not null" json:"status"`
	AttemptCount      int               `gorm:"column:attempt_count;not null;default:0" json:"attempt_count"`
	ExternalReference string            `gorm:"column:external_reference" json:"external_reference,omitempty"`
	Metadata          datatypes.JSONMap `gorm:"type:json" json:"metadata,omitempty"`
	LastError         string            `gorm:"column:last_error" json:"last_error,omitempty"`
	NextRetryAt       *time.Time        `gorm:"column:next_retry_at" json:"next_retry_at,omitempty"`
	CreatedAt         time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt         time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
	CompletedAt       *time.Time        `gorm:"column:completed_at" json:"completed_at,omitempty"`
}

func (PayoutJob) TableName() string { return "payout_jobs" }
