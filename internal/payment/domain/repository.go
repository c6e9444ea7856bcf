package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, intent *PaymentIntent) error
	FindByID(ctx context.Context, db *gorm.DB, merchantID, id snowflake.ID) (*PaymentIntent, error)
	// FindByProviderReference resolves a settlement callback to its intent.
	FindByProviderReference(ctx context.Context, db *gorm.DB, gateway, providerRef string) (*PaymentIntent, error)
	// Transition applies the guarded status move carried by event and appends
	// the audit row in one transaction. The intent must already hold the new
	// status and provider fields. Returns ErrInvalidTransition when the guard
	// fails or the row moved under us.
	Transition(ctx context.Context, db *gorm.DB, intent *PaymentIntent, event *PaymentIntentEvent) error
	SetProviderReference(ctx context.Context, db *gorm.DB, id snowflake.ID, providerRef string) error
	ListEvents(ctx context.Context, db *gorm.DB, intentID snowflake.ID) ([]PaymentIntentEvent, error)
}
