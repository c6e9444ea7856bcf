package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
)

type SubmitRequest struct {
	MerchantID      snowflake.ID
	OrderID         string
	Method          string
	Country         string
	Amount          int64
	Currency        string
	GatewayOverride string
}

type RefundRequest struct {
	MerchantID snowflake.ID
	IntentID   snowflake.ID
	Amount     int64
}

// RefundResult reports the payout job created to move funds back.
type RefundResult struct {
	IntentID    snowflake.ID `json:"intent_id"`
	PayoutJobID snowflake.ID `json:"payout_job_id"`
	Amount      int64        `json:"amount"`
	Currency    string       `json:"currency"`
}

type Service interface {
	Submit(ctx context.Context, req SubmitRequest) (*PaymentIntent, error)
	Get(ctx context.Context, merchantID, intentID snowflake.ID) (*PaymentIntent, error)
	Refund(ctx context.Context, req RefundRequest) (*RefundResult, error)
	// HandleProviderEvent applies a provider settlement callback to the
	// intent it references. Replays and out-of-order callbacks return
	// ErrEventAlreadyProcessed; callbacks the provider sends for states we
	// do not track return ErrEventIgnored.
	HandleProviderEvent(ctx context.Context, provider string, payload []byte) error
}

var (
	ErrNotFound          = errors.New("payment_not_found")
	ErrInvalidAmount     = errors.New("invalid_amount")
	ErrInvalidCurrency   = errors.New("invalid_currency")
	ErrInvalidOrder      = errors.New("invalid_order_id")
	ErrInvalidTransition = errors.New("invalid_status_transition")
	ErrRefundNotAllowed  = errors.New("refund_not_allowed")
)
