package repository

import (
	"context"
	"time"

	"github.com/boohpay/boohpay/internal/payout/domain"
	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, job *domain.PayoutJob) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO payout_jobs
		 (id, merchant_id, provider, amount, currency, payee_identifier, status, attempt_count,
		  external_reference, metadata, last_error, next_retry_at, created_at, updated_at, completed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		job.ID,
		job.MerchantID,
		job.Provider,
		job.Amount,
		job.Currency,
		job.PayeeIdentifier,
		job.Status,
		job.AttemptCount,
		job.ExternalReference,
		job.Metadata,
		job.LastError,
		job.NextRetryAt,
		job.CreatedAt,
		job.UpdatedAt,
		job.CompletedAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, merchantID, id snowflake.ID) (*domain.PayoutJob, error) {
	var job domain.PayoutJob
	err := db.WithContext(ctx).Raw(
		`SELECT id, merchant_id, provider, amount, currency, payee_identifier, status, attempt_count,
		        external_reference, metadata, last_error, next_retry_at, created_at, updated_at, completed_at
		 FROM payout_jobs WHERE id = ? AND merchant_id = ?`,
		id,
		merchantID,
	).Scan(&job).Error
	if err != nil {
		return nil, err
	}
	if job.ID == 0 {
		return nil, nil
	}
	return &job, nil
}

func (r *repo) ClaimDue(ctx context.Context, db *gorm.DB, now time.Time, limit int) ([]domain.PayoutJob, error) {
	var jobs []domain.PayoutJob
	err := db.Transaction(func(tx *gorm.DB) error {
		err := tx.WithContext(ctx).Raw(
			`SELECT id, merchant_id, provider, amount, currency, payee_identifier, status, attempt_count,
			        external_reference, metadata, last_error, next_retry_at, created_at, updated_at, completed_at
			 FROM payout_jobs
			 WHERE status = ? AND (next_retry_at IS NULL OR next_retry_at <= ?)
			 ORDER BY next_retry_at ASC, created_at ASC
			 LIMIT ?
			 FOR UPDATE SKIP LOCKED`,
			domain.StatusPending,
			now,
			limit,
		).Scan(&jobs).Error
		if err != nil {
			return err
		}
		for i := range jobs {
			res := tx.WithContext(ctx).Exec(
				`UPDATE payout_jobs
				 SET status = ?, attempt_count = attempt_count + 1, updated_at = ?
				 WHERE id = ? AND status = ?`,
				domain.StatusProcessing,
				now,
				jobs[i].ID,
				domain.StatusPending,
			)
			if res.Error != nil {
				return res.Error
			}
			jobs[i].Status = domain.StatusProcessing
			jobs[i].AttemptCount++
			jobs[i].UpdatedAt = now
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return jobs, nil
}

// Settle writes are guarded on PROCESSING so a worker that lost its claim
// to the reaper cannot overwrite the outcome recorded by the new owner.
func (r *repo) MarkSucceeded(ctx context.Context, db *gorm.DB, id snowflake.ID, externalRef string, now time.Time) error {
	res := db.WithContext(ctx).Exec(
		`UPDATE payout_jobs
		 SET status = ?, external_reference = ?, last_error = '', next_retry_at = NULL,
		     completed_at = ?, updated_at = ?
		 WHERE id = ? AND status = ?`,
		domain.StatusSucceeded,
		externalRef,
		now,
		now,
		id,
		domain.StatusProcessing,
	)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrStaleClaim
	}
	return nil
}

func (r *repo) MarkFailed(ctx context.Context, db *gorm.DB, id snowflake.ID, lastError string, now time.Time) error {
	res := db.WithContext(ctx).Exec(
		`UPDATE payout_jobs
		 SET status = ?, last_error = ?, next_retry_at = NULL, completed_at = ?, updated_at = ?
		 WHERE id = ? AND status = ?`,
		domain.StatusFailed,
		lastError,
		now,
		now,
		id,
		domain.StatusProcessing,
	)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrStaleClaim
	}
	return nil
}

func (r *repo) Reschedule(ctx context.Context, db *gorm.DB, id snowflake.ID, lastError string, nextRetryAt time.Time) error {
	res := db.WithContext(ctx).Exec(
		`UPDATE payout_jobs
		 SET status = ?, last_error = ?, next_retry_at = ?, updated_at = ?
		 WHERE id = ? AND status = ?`,
		domain.StatusPending,
		lastError,
		nextRetryAt,
		time.Now().UTC(),
		id,
		domain.StatusProcessing,
	)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrStaleClaim
	}
	return nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, merchantID snowflake.ID, status domain.Status, limit int) ([]domain.PayoutJob, error) {
	var jobs []domain.PayoutJob
	query := `SELECT id, merchant_id, provider, amount, currency, payee_identifier, status, attempt_count,
	        external_reference, metadata, last_error, next_retry_at, created_at, updated_at, completed_at
	 FROM payout_jobs WHERE merchant_id = ?`
	args := []any{merchantID}
	if status != "" {
		query += ` AND status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY created_at DESC LIMIT ?`
	args = append(args, limit)

	err := db.WithContext(ctx).Raw(query, args...).Scan(&jobs).Error
	if err != nil {
		return nil, err
	}
	return jobs, nil
}

func (r *repo) ReapStuck(ctx context.Context, db *gorm.DB, cutoff time.Time) (int64, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE payout_jobs
		 SET status = ?, next_retry_at = ?, updated_at = ?
		 WHERE status = ? AND updated_at < ?`,
		domain.StatusPending,
		cutoff,
		time.Now().UTC(),
		domain.StatusProcessing,
		cutoff,
	)
	return res.RowsAffected, res.Error
}

func (r *repo) DeleteTerminalBefore(ctx context.Context, db *gorm.DB, status domain.Status, cutoff time.Time) (int64, error) {
	res := db.WithContext(ctx).Exec(
		`DELETE FROM payout_jobs WHERE status = ? AND completed_at < ?`,
		status,
		cutoff,
	)
	return res.RowsAffected, res.Error
}
