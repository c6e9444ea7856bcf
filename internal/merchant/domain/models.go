package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

type Merchant struct {
	ID            snowflake.ID `gorm:"primaryKey" json:"id"`
	Name          string       `gorm:"not null" json:"name"`
	APIKey        string       `gorm:"column:api_key;uniqueIndex;not null" json:"-"`
	WebhookURL    *string      `gorm:"column:webhook_url" json:"webhook_url,omitempty"`
	WebhookSecret *string      `gorm:"column:webhook_secret" json:"-"`
	Active        bool         `gorm:"not null;default:true" json:"active"`
	CreatedAt     time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt     time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (Merchant) TableName() string { return "merchants" }

// WebhookConfig is the outward view of a merchant's webhook settings.
// The secret itself is never exposed, only whether one is set.
type WebhookConfig struct {
	URL       string `json:"webhook_url,omitempty"`
	HasSecret bool   `json:"has_secret"`
}

// WebhookTarget carries the endpoint and secret the delivery pipeline needs.
type WebhookTarget struct {
	URL    string
	Secret string
}

func (t WebhookTarget) Configured() bool { return t.URL != "" }
