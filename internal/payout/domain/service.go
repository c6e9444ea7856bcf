package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

type EnqueueRequest struct {
	MerchantID      snowflake.ID
	Provider        string
	Amount          int64
	Currency        string
	PayeeIdentifier string
	Metadata        map[string]any
}

type Service interface {
	// Enqueue durably records the job and hands back its id. Dispatch
	// happens later on the worker loop.
	Enqueue(ctx context.Context, req EnqueueRequest) (snowflake.ID, error)
	Get(ctx context.Context, merchantID, id snowflake.ID) (*PayoutJob, error)
	// ListJobs returns the merchant's jobs newest-first, optionally filtered
	// by status.
	ListJobs(ctx context.Context, merchantID snowflake.ID, status string, limit int) ([]PayoutJob, error)
	// ProcessDue claims and dispatches up to limit due jobs, returning how
	// many were claimed.
	ProcessDue(ctx context.Context, limit int) (int, error)
	// ReapStuck reverts PROCESSING jobs older than the deadline to PENDING.
	ReapStuck(ctx context.Context, olderThan time.Duration) (int64, error)
	// Prune deletes terminal jobs past their retention window.
	Prune(ctx context.Context) (int64, error)
}

var (
	ErrNotFound        = errors.New("payout_not_found")
	ErrInvalidAmount   = errors.New("invalid_amount")
	ErrInvalidProvider = errors.New("invalid_provider")
	ErrInvalidPayee    = errors.New("invalid_payee_identifier")
	ErrInvalidStatus   = errors.New("invalid_status_filter")
	// ErrStaleClaim means the job left PROCESSING while this worker held it,
	// typically because the reaper handed it to another worker.
	ErrStaleClaim = errors.New("payout_claim_lost")
)
