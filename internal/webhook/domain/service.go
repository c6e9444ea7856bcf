package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

type Service interface {
	// Queue records an event for asynchronous delivery. Merchants without a
	// configured webhook URL are skipped silently.
	Queue(ctx context.Context, merchantID snowflake.ID, eventType string, payload any) error
	// ProcessPending claims and delivers up to limit due rows, returning how
	// many were claimed.
	ProcessPending(ctx context.Context, limit int) (int, error)
	ListDeliveries(ctx context.Context, merchantID snowflake.ID, status string, limit int) ([]WebhookDelivery, error)
	// Redeliver resets a FAILED delivery for a fresh attempt cycle.
	Redeliver(ctx context.Context, merchantID, id snowflake.ID) (*WebhookDelivery, error)
	ReapStuck(ctx context.Context, olderThan time.Duration) (int64, error)
}

var (
	ErrNotFound      = errors.New("webhook_delivery_not_found")
	ErrNotRetryable  = errors.New("delivery_not_in_failed_state")
	ErrNoWebhookURL  = errors.New("webhook_url_not_configured")
	ErrInvalidStatus = errors.New("invalid_status_filter")
	// ErrStaleClaim means the delivery left PROCESSING while this worker
	// held it, typically because the reaper handed it to another worker.
	ErrStaleClaim = errors.New("delivery_claim_lost")
)
