package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Merchant, error)
	FindByAPIKey(ctx context.Context, db *gorm.DB, apiKey string) (*Merchant, error)
	UpdateWebhook(ctx context.Context, db *gorm.DB, id snowflake.ID, url, secret *string) error
}
