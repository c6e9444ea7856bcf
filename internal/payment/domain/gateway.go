package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
)

type PaymentRequest struct {
	IntentID   snowflake.ID
	MerchantID snowflake.ID
	OrderID    string
	Method     string
	Country    string
	Amount     int64
	Currency   string
}

type PayoutRequest struct {
	JobID           snowflake.ID
	MerchantID      snowflake.ID
	Amount          int64
	Currency        string
	PayeeIdentifier string
	Metadata        map[string]any
}

// GatewayResult is the normalized outcome of a provider call. Status is
// already mapped into the internal state machine vocabulary.
type GatewayResult struct {
	Status            Status
	ProviderReference string
	FailureCode       string
}

// Gateway is the capability surface every provider adapter implements.
type Gateway interface {
	Name() string
	SubmitPayment(ctx context.Context, req PaymentRequest) (GatewayResult, error)
	SubmitPayout(ctx context.Context, req PayoutRequest) (GatewayResult, error)
}

// ProviderEvent is a settlement callback from a provider, normalized into
// the internal vocabulary. ProviderReference identifies the intent it
// belongs to.
type ProviderEvent struct {
	Provider          string
	ProviderReference string
	Status            Status
	FailureCode       string
}

// EventParser is implemented by gateways whose providers settle
// asynchronously and push the outcome via callback.
type EventParser interface {
	ParseEvent(payload []byte) (ProviderEvent, error)
}

var (
	ErrGatewayNotFound    = errors.New("gateway_not_found")
	ErrUnknownStatus      = errors.New("unknown_provider_status")
	ErrUnsupportedMethod  = errors.New("unsupported_payment_method")
	ErrUnsupportedCountry = errors.New("unsupported_country")

	ErrInvalidPayload        = errors.New("invalid_event_payload")
	ErrEventIgnored          = errors.New("event_ignored")
	ErrEventAlreadyProcessed = errors.New("event_already_processed")
)
