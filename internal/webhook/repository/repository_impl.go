package repository

import (
	"context"
	"time"

	"github.com/boohpay/boohpay/internal/webhook/domain"
	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

const deliveryColumns = `id, merchant_id, event_type, url, payload, status, attempts,
	last_attempt_at, next_retry_at, http_status_code, error_message, delivered_at,
	created_at, updated_at`

func (r *repo) Insert(ctx context.Context, db *gorm.DB, delivery *domain.WebhookDelivery) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO webhook_deliveries
		 (id, merchant_id, event_type, url, payload, status, attempts, last_attempt_at,
		  next_retry_at, http_status_code, error_message, delivered_at, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		delivery.ID,
		delivery.MerchantID,
		delivery.EventType,
		delivery.URL,
		delivery.Payload,
		delivery.Status,
		delivery.Attempts,
		delivery.LastAttemptAt,
		delivery.NextRetryAt,
		delivery.HTTPStatusCode,
		delivery.ErrorMessage,
		delivery.DeliveredAt,
		delivery.CreatedAt,
		delivery.UpdatedAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, merchantID, id snowflake.ID) (*domain.WebhookDelivery, error) {
	var delivery domain.WebhookDelivery
	err := db.WithContext(ctx).Raw(
		`SELECT `+deliveryColumns+`
		 FROM webhook_deliveries WHERE id = ? AND merchant_id = ?`,
		id,
		merchantID,
	).Scan(&delivery).Error
	if err != nil {
		return nil, err
	}
	if delivery.ID == 0 {
		return nil, nil
	}
	return &delivery, nil
}

func (r *repo) ClaimDue(ctx context.Context, db *gorm.DB, now time.Time, limit int) ([]domain.WebhookDelivery, error) {
	var deliveries []domain.WebhookDelivery
	err := db.Transaction(func(tx *gorm.DB) error {
		err := tx.WithContext(ctx).Raw(
			`SELECT `+deliveryColumns+`
			 FROM webhook_deliveries
			 WHERE status = ? AND (next_retry_at IS NULL OR next_retry_at <= ?)
			 ORDER BY created_at ASC
			 LIMIT ?
			 FOR UPDATE SKIP LOCKED`,
			domain.StatusPending,
			now,
			limit,
		).Scan(&deliveries).Error
		if err != nil {
			return err
		}
		for i := range deliveries {
			res := tx.WithContext(ctx).Exec(
				`UPDATE webhook_deliveries
				 SET status = ?, attempts = attempts + 1, last_attempt_at = ?, updated_at = ?
				 WHERE id = ? AND status = ?`,
				domain.StatusProcessing,
				now,
				now,
				deliveries[i].ID,
				domain.StatusPending,
			)
			if res.Error != nil {
				return res.Error
			}
			deliveries[i].Status = domain.StatusProcessing
			deliveries[i].Attempts++
			deliveries[i].LastAttemptAt = &now
			deliveries[i].UpdatedAt = now
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return deliveries, nil
}

// Settle writes are guarded on PROCESSING so a worker that lost its claim
// to the reaper cannot overwrite the outcome recorded by the new owner.
func (r *repo) MarkSucceeded(ctx context.Context, db *gorm.DB, id snowflake.ID, httpStatus int, now time.Time) error {
	res := db.WithContext(ctx).Exec(
		`UPDATE webhook_deliveries
		 SET status = ?, http_status_code = ?, error_message = '', next_retry_at = NULL,
		     delivered_at = ?, updated_at = ?
		 WHERE id = ? AND status = ?`,
		domain.StatusSucceeded,
		httpStatus,
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

func (r *repo) MarkFailed(ctx context.Context, db *gorm.DB, id snowflake.ID, httpStatus *int, errorMessage string, now time.Time) error {
	res := db.WithContext(ctx).Exec(
		`UPDATE webhook_deliveries
		 SET status = ?, http_status_code = ?, error_message = ?, next_retry_at = NULL, updated_at = ?
		 WHERE id = ? AND status = ?`,
		domain.StatusFailed,
		httpStatus,
		errorMessage,
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

func (r *repo) Reschedule(ctx context.Context, db *gorm.DB, id snowflake.ID, httpStatus *int, errorMessage string, nextRetryAt time.Time) error {
	res := db.WithContext(ctx).Exec(
		`UPDATE webhook_deliveries
		 SET status = ?, http_status_code = ?, error_message = ?, next_retry_at = ?, updated_at = ?
		 WHERE id = ? AND status = ?`,
		domain.StatusPending,
		httpStatus,
		errorMessage,
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

func (r *repo) Reset(ctx context.Context, db *gorm.DB, id snowflake.ID, url string, now time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE webhook_deliveries
		 SET status = ?, url = ?, attempts = 0, error_message = '', http_status_code = NULL,
		     next_retry_at = ?, delivered_at = NULL, updated_at = ?
		 WHERE id = ?`,
		domain.StatusPending,
		url,
		now,
		now,
		id,
	).Error
}

func (r *repo) List(ctx context.Context, db *gorm.DB, merchantID snowflake.ID, status domain.Status, limit int) ([]domain.WebhookDelivery, error) {
	var deliveries []domain.WebhookDelivery
	query := `SELECT ` + deliveryColumns + `
	 FROM webhook_deliveries WHERE merchant_id = ?`
	args := []any{merchantID}
	if status != "" {
		query += ` AND status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY created_at DESC LIMIT ?`
	args = append(args, limit)

	err := db.WithContext(ctx).Raw(query, args...).Scan(&deliveries).Error
	if err != nil {
		return nil, err
	}
	return deliveries, nil
}

func (r *repo) ReapStuck(ctx context.Context, db *gorm.DB, cutoff time.Time) (int64, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE webhook_deliveries
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
