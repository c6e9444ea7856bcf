package service

import (
	"context"
	"errors"
	"strings"

	"github.com/boohpay/boohpay/internal/clock"
	"github.com/boohpay/boohpay/internal/observability/metrics"
	"github.com/boohpay/boohpay/internal/payment/domain"
	"github.com/boohpay/boohpay/internal/payment/gateway"
	payoutdomain "github.com/boohpay/boohpay/internal/payout/domain"
	webhookdomain "github.com/boohpay/boohpay/internal/webhook/domain"
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	EventPaymentSucceeded = "payment.succeeded"
	EventPaymentFailed    = "payment.failed"
	EventRefundInitiated  = "refund.initiated"
)

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	GenID    *snowflake.Node
	Clock    clock.Clock
	Repo     domain.Repository
	Registry *gateway.Registry
	Payouts  payoutdomain.Service
	Webhooks webhookdomain.Service
	Metrics  *metrics.Metrics `optional:"true"`
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	genID    *snowflake.Node
	clock    clock.Clock
	repo     domain.Repository
	registry *gateway.Registry
	payouts  payoutdomain.Service
	webhooks webhookdomain.Service
	metrics  *metrics.Metrics
}

func New(p Params) domain.Service {
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("payment.service"),
		genID:    p.GenID,
		clock:    p.Clock,
		repo:     p.Repo,
		registry: p.Registry,
		payouts:  p.Payouts,
		webhooks: p.Webhooks,
		metrics:  p.Metrics,
	}
}

func (s *Service) Submit(ctx context.Context, req domain.SubmitRequest) (*domain.PaymentIntent, error) {
	orderID := strings.TrimSpace(req.OrderID)
	if orderID == "" {
		return nil, domain.ErrInvalidOrder
	}
	if req.Amount <= 0 {
		return nil, domain.ErrInvalidAmount
	}
	currency := strings.ToUpper(strings.TrimSpace(req.Currency))
	if len(currency) != 3 {
		return nil, domain.ErrInvalidCurrency
	}

	gatewayName, err := gateway.SelectGateway(req.Method, req.Country, gateway.MerchantGatewayConfig{
		Override: req.GatewayOverride,
	})
	if err != nil {
		return nil, err
	}
	gw, err := s.registry.Get(gatewayName)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	intent := &domain.PaymentIntent{
		ID:         s.genID.Generate(),
		MerchantID: req.MerchantID,
		OrderID:    orderID,
		Gateway:    gatewayName,
		Method:     strings.ToLower(strings.TrimSpace(req.Method)),
		Country:    strings.ToUpper(strings.TrimSpace(req.Country)),
		Amount:     req.Amount,
		Currency:   currency,
		Status:     domain.StatusPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.repo.Insert(ctx, s.db, intent); err != nil {
		return nil, err
	}

	result, err := gw.SubmitPayment(ctx, domain.PaymentRequest{
		IntentID:   intent.ID,
		MerchantID: intent.MerchantID,
		OrderID:    intent.OrderID,
		Method:     intent.Method,
		Country:    intent.Country,
		Amount:     intent.Amount,
		Currency:   intent.Currency,
	})
	if err != nil {
		failureCode := gateway.FailureCode(err)
		if errors.Is(err, context.DeadlineExceeded) {
			failureCode = "gateway_timeout"
		}
		s.log.Warn("gateway dispatch failed",
			zap.String("intent_id", intent.ID.String()),
			zap.String("gateway", gatewayName),
			zap.Error(err),
		)
		if failErr := s.applyTransition(ctx, intent, domain.StatusFailed, "", failureCode); failErr != nil {
			return nil, failErr
		}
		return intent, nil
	}

	if result.Status == domain.StatusPending {
		intent.ProviderReference = result.ProviderReference
		if err := s.repo.SetProviderReference(ctx, s.db, intent.ID, result.ProviderReference); err != nil {
			return nil, err
		}
		s.metrics.RecordPaymentSubmitted(gatewayName, string(domain.StatusPending))
		return intent, nil
	}

	if err := s.applyTransition(ctx, intent, result.Status, result.ProviderReference, result.FailureCode); err != nil {
		return nil, err
	}
	return intent, nil
}

// applyTransition moves the intent out of PENDING, records the audit event
// and emits the terminal webhook when one is due.
func (s *Service) applyTransition(ctx context.Context, intent *domain.PaymentIntent, to domain.Status, providerRef, failureCode string) error {
	from := intent.Status
	intent.Status = to
	if providerRef != "" {
		intent.ProviderReference = providerRef
	}
	intent.FailureCode = failureCode
	intent.UpdatedAt = s.clock.Now()

	event := &domain.PaymentIntentEvent{
		ID:         s.genID.Generate(),
		IntentID:   intent.ID,
		FromStatus: from,
		ToStatus:   to,
		CreatedAt:  intent.UpdatedAt,
	}
	if err := s.repo.Transition(ctx, s.db, intent, event); err != nil {
		return err
	}

	s.metrics.RecordPaymentSubmitted(intent.Gateway, string(to))

	switch to {
	case domain.StatusSucceeded:
		s.queueWebhook(ctx, intent, EventPaymentSucceeded)
	case domain.StatusFailed:
		s.queueWebhook(ctx, intent, EventPaymentFailed)
	}
	return nil
}

func (s *Service) queueWebhook(ctx context.Context, intent *domain.PaymentIntent, eventType string) {
	if err := s.webhooks.Queue(ctx, intent.MerchantID, eventType, intent); err != nil {
		s.log.Error("queue webhook failed",
			zap.String("intent_id", intent.ID.String()),
			zap.String("event_type", eventType),
			zap.Error(err),
		)
	}
}

func (s *Service) HandleProviderEvent(ctx context.Context, provider string, payload []byte) error {
	gw, err := s.registry.Get(provider)
	if err != nil {
		return err
	}
	parser, ok := gw.(domain.EventParser)
	if !ok {
		return domain.ErrEventIgnored
	}
	event, err := parser.ParseEvent(payload)
	if err != nil {
		return err
	}
	if strings.TrimSpace(event.ProviderReference) == "" {
		return domain.ErrInvalidPayload
	}

	intent, err := s.repo.FindByProviderReference(ctx, s.db, gw.Name(), event.ProviderReference)
	if err != nil {
		return err
	}
	if intent == nil {
		return domain.ErrNotFound
	}
	if intent.Status.Terminal() || intent.Status == event.Status {
		return domain.ErrEventAlreadyProcessed
	}
	if event.Status == domain.StatusPending {
		return domain.ErrEventIgnored
	}

	if err := s.applyTransition(ctx, intent, event.Status, event.ProviderReference, event.FailureCode); err != nil {
		// The row moved under us; another callback won the race.
		if errors.Is(err, domain.ErrInvalidTransition) {
			return domain.ErrEventAlreadyProcessed
		}
		return err
	}

	s.log.Info("provider event applied",
		zap.String("intent_id", intent.ID.String()),
		zap.String("gateway", gw.Name()),
		zap.String("status", string(event.Status)),
	)
	return nil
}

func (s *Service) Get(ctx context.Context, merchantID, intentID snowflake.ID) (*domain.PaymentIntent, error) {
	intent, err := s.repo.FindByID(ctx, s.db, merchantID, intentID)
	if err != nil {
		return nil, err
	}
	if intent == nil {
		return nil, domain.ErrNotFound
	}
	return intent, nil
}

func (s *Service) Refund(ctx context.Context, req domain.RefundRequest) (*domain.RefundResult, error) {
	intent, err := s.repo.FindByID(ctx, s.db, req.MerchantID, req.IntentID)
	if err != nil {
		return nil, err
	}
	if intent == nil {
		return nil, domain.ErrNotFound
	}
	if intent.Status != domain.StatusSucceeded {
		return nil, domain.ErrRefundNotAllowed
	}

	amount := req.Amount
	if amount == 0 {
		amount = intent.Amount
	}
	if amount < 0 || amount > intent.Amount {
		return nil, domain.ErrInvalidAmount
	}

	jobID, err := s.payouts.Enqueue(ctx, payoutdomain.EnqueueRequest{
		MerchantID:      intent.MerchantID,
		Provider:        intent.Gateway,
		Amount:          amount,
		Currency:        intent.Currency,
		PayeeIdentifier: intent.ProviderReference,
		Metadata: map[string]any{
			"reason":    "refund",
			"intent_id": intent.ID.String(),
			"order_id":  intent.OrderID,
		},
	})
	if err != nil {
		return nil, err
	}

	result := &domain.RefundResult{
		IntentID:    intent.ID,
		PayoutJobID: jobID,
		Amount:      amount,
		Currency:    intent.Currency,
	}
	if err := s.webhooks.Queue(ctx, intent.MerchantID, EventRefundInitiated, result); err != nil {
		s.log.Error("queue webhook failed",
			zap.String("intent_id", intent.ID.String()),
			zap.String("event_type", EventRefundInitiated),
			zap.Error(err),
		)
	}

	s.log.Info("refund initiated",
		zap.String("intent_id", intent.ID.String()),
		zap.String("payout_job_id", jobID.String()),
		zap.Int64("amount", amount),
	)
	return result, nil
}
