package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
)

type UpdateWebhookConfigRequest struct {
	URL    *string
	Secret *string
}

type Service interface {
	GetByAPIKey(ctx context.Context, apiKey string) (*Merchant, error)
	GetWebhookConfig(ctx context.Context, merchantID snowflake.ID) (WebhookConfig, error)
	GetWebhookTarget(ctx context.Context, merchantID snowflake.ID) (WebhookTarget, error)
	SetWebhookConfig(ctx context.Context, merchantID snowflake.ID, req UpdateWebhookConfigRequest) (WebhookConfig, error)
}

var (
	ErrNotFound      = errors.New("merchant_not_found")
	ErrInvalidAPIKey = errors.New("invalid_api_key")
	ErrInvalidURL    = errors.New("invalid_webhook_url")
)
