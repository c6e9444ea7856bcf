package repository

import (
	"context"
	"time"

	"github.com/boohpay/boohpay/internal/payment/domain"
	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, intent *domain.PaymentIntent) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO payment_intents
		 (id, merchant_id, order_id, gateway, method, country, amount, currency, status,
		  provider_reference, failure_code, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		intent.ID,
		intent.MerchantID,
		intent.OrderID,
		intent.Gateway,
		intent.Method,
		intent.Country,
		intent.Amount,
		intent.Currency,
		intent.Status,
		intent.ProviderReference,
		intent.FailureCode,
		intent.CreatedAt,
		intent.UpdatedAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, merchantID, id snowflake.ID) (*domain.PaymentIntent, error) {
	var intent domain.PaymentIntent
	err := db.WithContext(ctx).Raw(
		`SELECT id, merchant_id, order_id, gateway, method, country, amount, currency, status,
		        provider_reference, failure_code, created_at, updated_at
		 FROM payment_intents WHERE id = ? AND merchant_id = ?`,
		id,
		merchantID,
	).Scan(&intent).Error
	if err != nil {
		return nil, err
	}
	if intent.ID == 0 {
		return nil, nil
	}
	return &intent, nil
}

func (r *repo) FindByProviderReference(ctx context.Context, db *gorm.DB, gateway, providerRef string) (*domain.PaymentIntent, error) {
	var intent domain.PaymentIntent
	err := db.WithContext(ctx).Raw(
		`SELECT id, merchant_id, order_id, gateway, method, country, amount, currency, status,
		        provider_reference, failure_code, created_at, updated_at
		 FROM payment_intents WHERE gateway = ? AND provider_reference = ?`,
		gateway,
		providerRef,
	).Scan(&intent).Error
	if err != nil {
		return nil, err
	}
	if intent.ID == 0 {
		return nil, nil
	}
	return &intent, nil
}

func (r *repo) Transition(ctx context.Context, db *gorm.DB, intent *domain.PaymentIntent, event *domain.PaymentIntentEvent) error {
	if !domain.CanTransition(event.FromStatus, event.ToStatus) {
		return domain.ErrInvalidTransition
	}
	return db.Transaction(func(tx *gorm.DB) error {
		res := tx.WithContext(ctx).Exec(
			`UPDATE payment_intents
			 SET status = ?, provider_reference = ?, failure_code = ?, updated_at = ?
			 WHERE id = ? AND status = ?`,
			event.ToStatus,
			intent.ProviderReference,
			intent.FailureCode,
			time.Now().UTC(),
			intent.ID,
			event.FromStatus,
		)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return domain.ErrInvalidTransition
		}
		return tx.WithContext(ctx).Exec(
			`INSERT INTO payment_intent_events (id, intent_id, from_status, to_status, created_at)
			 VALUES (?, ?, ?, ?, ?)`,
			event.ID,
			event.IntentID,
			event.FromStatus,
			event.ToStatus,
			event.CreatedAt,
		).Error
	})
}

func (r *repo) SetProviderReference(ctx context.Context, db *gorm.DB, id snowflake.ID, providerRef string) error {
	return db.WithContext(ctx).Exec(
		`UPDATE payment_intents SET provider_reference = ?, updated_at = ? WHERE id = ?`,
		providerRef,
		time.Now().UTC(),
		id,
	).Error
}

func (r *repo) ListEvents(ctx context.Context, db *gorm.DB, intentID snowflake.ID) ([]domain.PaymentIntentEvent, error) {
	var events []domain.PaymentIntentEvent
	err := db.WithContext(ctx).Raw(
		`SELECT id, intent_id, from_status, to_status, created_at
		 FROM payment_intent_events WHERE intent_id = ? ORDER BY created_at ASC, id ASC`,
		intentID,
	).Scan(&events).Error
	if err != nil {
		return nil, err
	}
	return events, nil
}
