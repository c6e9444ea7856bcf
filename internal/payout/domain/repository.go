package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, job *PayoutJob) error
	FindByID(ctx context.Context, db *gorm.DB, merchantID, id snowflake.ID) (*PayoutJob, error)
	// ClaimDue selects due PENDING jobs with FOR UPDATE SKIP LOCKED and
	// flips them to PROCESSING in the same transaction.
	ClaimDue(ctx context.Context, db *gorm.DB, now time.Time, limit int) ([]PayoutJob, error)
	// MarkSucceeded, MarkFailed and Reschedule settle a claimed job. They
	// only touch rows still in PROCESSING and return ErrStaleClaim when the
	// claim was lost in the meantime.
	MarkSucceeded(ctx context.Context, db *gorm.DB, id snowflake.ID, externalRef string, now time.Time) error
	MarkFailed(ctx context.Context, db *gorm.DB, id snowflake.ID, lastError string, now time.Time) error
	// Reschedule puts a transiently failed job back to PENDING with the
	// next due time.
	Reschedule(ctx context.Context, db *gorm.DB, id snowflake.ID, lastError string, nextRetryAt time.Time) error
	List(ctx context.Context, db *gorm.DB, merchantID snowflake.ID, status Status, limit int) ([]PayoutJob, error)
	ReapStuck(ctx context.Context, db *gorm.DB, cutoff time.Time) (int64, error)
	DeleteTerminalBefore(ctx context.Context, db *gorm.DB, status Status, cutoff time.Time) (int64, error)
}
