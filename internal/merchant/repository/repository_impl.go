package repository

import (
	"context"
	"time"

	"github.com/boohpay/boohpay/internal/merchant/domain"
	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Merchant, error) {
	var merchant domain.Merchant
	err := db.WithContext(ctx).Raw(
		`SELECT id, name, api_key, webhook_url, webhook_secret, active, created_at, updated_at
		 FROM merchants WHERE id = ?`,
		id,
	).Scan(&merchant).Error
	if err != nil {
		return nil, err
	}
	if merchant.ID == 0 {
		return nil, nil
	}
	return &merchant, nil
}

func (r *repo) FindByAPIKey(ctx context.Context, db *gorm.DB, apiKey string) (*domain.Merchant, error) {
	var merchant domain.Merchant
	err := db.WithContext(ctx).Raw(
		`SELECT id, name, api_key, webhook_url, webhook_secret, active, created_at, updated_at
		 FROM merchants WHERE api_key = ? AND active`,
		apiKey,
	).Scan(&merchant).Error
	if err != nil {
		return nil, err
	}
	if merchant.ID == 0 {
		return nil, nil
	}
	return &merchant, nil
}

func (r *repo) UpdateWebhook(ctx context.Context, db *gorm.DB, id snowflake.ID, url, secret *string) error {
	return db.WithContext(ctx).Exec(
		`UPDATE merchants
		 SET webhook_url = ?, webhook_secret = ?, updated_at = ?
		 WHERE id = ?`,
		url,
		secret,
		time.Now().UTC(),
		id,
	).Error
}
