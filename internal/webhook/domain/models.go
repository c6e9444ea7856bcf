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

// WebhookDelivery is one queued notification to a merchant endpoint. The
// payload is frozen at queue time; the URL is a snapshot that Redeliver
// refreshes from current merchant config.
type WebhookDelivery struct {
	ID             snowflake.ID   `gorm:"primaryKey" json:"id"`
	MerchantID     snowflake.ID   `gorm:"column:merchant_id;not null;index" json:"merchant_id"`
	EventType      string         `gorm:"column:event_type;not null" json:"event_type"`
	URL            string         `gorm:"not null" json:"url"`
	Payload        datatypes.JSON `gorm:"type:json;not null" json:"payload"`
	Status         Status         `gorm:"not null" json:"status"`
	Attempts       int            `gorm:"not null;default:0" json:"attempts"`
	LastAttemptAt  *time.Time     `gorm:"column:last_attempt_at" json:"last_attempt_at,omitempty"`
	NextRetryAt    *time.Time     `gorm:"column:next_retry_at" json:"next_retry_at,omitempty"`
	HTTPStatusCode *int           `gorm:"column:http_status_code" json:"http_status_code,omitempty"`
	ErrorMessage   string         `gorm:"column:error_message" json:"error_message,omitempty"`
	DeliveredAt    *time.Time     `gorm:"column:delivered_at" json:"delivered_at,omitempty"`
	CreatedAt      time.Time      `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt      time.Time      `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (WebhookDelivery) TableName() string { return "webhook_deliveries" }
