package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, delivery *WebhookDelivery) error
	FindByID(ctx context.Context, db *gorm.DB, merchantID, id snowflake.ID) (*WebhookDelivery, error)
	// ClaimDue selects due PENDING rows oldest-first with FOR UPDATE SKIP
	// LOCKED and marks them PROCESSING with the attempt counted, all in one
	// transaction.
	ClaimDue(ctx context.Context, db *gorm.DB, now time.Time, limit int) ([]WebhookDelivery, error)
	// MarkSucceeded, MarkFailed and Reschedule settle a claimed delivery.
	// They only touch rows still in PROCESSING and return ErrStaleClaim when
	// the claim was lost in the meantime.
	MarkSucceeded(ctx context.Context, db *gorm.DB, id snowflake.ID, httpStatus int, now time.Time) error
	MarkFailed(ctx context.Context, db *gorm.DB, id snowflake.ID, httpStatus *int, errorMessage string, now time.Time) error
	Reschedule(ctx context.Context, db *gorm.DB, id snowflake.ID, httpStatus *int, errorMessage string, nextRetryAt time.Time) error
	// Reset returns a delivery to PENDING with a zeroed attempt counter.
	Reset(ctx context.Context, db *gorm.DB, id snowflake.ID, url string, now time.Time) error
	List(ctx context.Context, db *gorm.DB, merchantID snowflake.ID, status Status, limit int) ([]WebhookDelivery, error)
	ReapStuck(ctx context.Context, db *gorm.DB, cutoff time.Time) (int64, error)
}
