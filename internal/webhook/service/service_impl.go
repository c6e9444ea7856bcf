package service

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/boohpay/boohpay/internal/clock"
	"github.com/boohpay/boohpay/internal/config"
	merchantdomain "github.com/boohpay/boohpay/internal/merchant/domain"
	"github.com/boohpay/boohpay/internal/observability/metrics"
	"github.com/boohpay/boohpay/internal/retry"
	"github.com/boohpay/boohpay/internal/webhook/domain"
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	signatureHeader = "X-BoohPay-Signature"
	userAgent       = "BoohPay-Webhooks/1.0"

	maxErrorLen = 500
)

// envelope is the wire shape every endpoint receives. It is frozen at queue
// time so retries and redeliveries carry identical bytes.
type envelope struct {
	Event     string          `json:"event"`
	Data      json.RawMessage `json:"data"`
	Timestamp string          `json:"timestamp"`
}

type Params struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	GenID     *snowflake.Node
	Clock     clock.Clock
	Orch      config.Orchestration
	Repo      domain.Repository
	Merchants merchantdomain.Service
	Metrics   *metrics.Metrics `optional:"true"`
}

type Service struct {
	db        *gorm.DB
	log       *zap.Logger
	genID     *snowflake.Node
	clock     clock.Clock
	repo      domain.Repository
	merchants merchantdomain.Service
	metrics   *metrics.Metrics

	policy  retry.Policy
	timeout time.Duration
	client  *http.Client
}

func New(p Params) domain.Service {
	return &Service{
		db:        p.DB,
		log:       p.Log.Named("webhook.service"),
		genID:     p.GenID,
		clock:     p.Clock,
		repo:      p.Repo,
		merchants: p.Merchants,
		metrics:   p.Metrics,
		policy: retry.Policy{
			BaseDelay:   p.Orch.WebhookBaseDelay,
			CapDelay:    p.Orch.WebhookCapDelay,
			MaxAttempts: p.Orch.WebhookMaxAttempts,
		},
		timeout: p.Orch.WebhookTimeout,
		client:  &http.Client{},
	}
}

func (s *Service) Queue(ctx context.Context, merchantID snowflake.ID, eventType string, payload any) error {
	target, err := s.merchants.GetWebhookTarget(ctx, merchantID)
	if err != nil {
		return err
	}
	if !target.Configured() {
		s.log.Debug("webhook skipped, no url configured",
			zap.String("merchant_id", merchantID.String()),
			zap.String("event_type", eventType),
		)
		return nil
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	now := s.clock.Now()
	body, err := json.Marshal(envelope{
		Event:     eventType,
		Data:      data,
		Timestamp: now.UTC().Format(time.RFC3339),
	})
	if err != nil {
		return err
	}

	delivery := &domain.WebhookDelivery{
		ID:          s.genID.Generate(),
		MerchantID:  merchantID,
		EventType:   eventType,
		URL:         target.URL,
		Payload:     body,
		Status:      domain.StatusPending,
		NextRetryAt: &now,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.repo.Insert(ctx, s.db, delivery); err != nil {
		return err
	}

	s.log.Info("webhook queued",
		zap.String("delivery_id", delivery.ID.String()),
		zap.String("merchant_id", merchantID.String()),
		zap.String("event_type", eventType),
	)
	return nil
}

func (s *Service) ProcessPending(ctx context.Context, limit int) (int, error) {
	deliveries, err := s.repo.ClaimDue(ctx, s.db, s.clock.Now(), limit)
	if err != nil {
		return 0, err
	}
	if len(deliveries) == 0 {
		return 0, nil
	}

	var wg sync.WaitGroup
	for _, delivery := range deliveries {
		wg.Add(1)
		go func(d domain.WebhookDelivery) {
			defer wg.Done()
			s.deliver(ctx, d)
		}(delivery)
	}
	wg.Wait()

	return len(deliveries), nil
}

func (s *Service) deliver(ctx context.Context, delivery domain.WebhookDelivery) {
	s.metrics.RecordWebhookAttempt()

	// A failed secret lookup must not produce an unsigned send; retry the
	// whole attempt later instead.
	target, err := s.merchants.GetWebhookTarget(ctx, delivery.MerchantID)
	if err != nil {
		s.settle(ctx, delivery, nil, "webhook target lookup: "+err.Error(), retry.KindTransient)
		return
	}
	secret := target.Secret

	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(callCtx, http.MethodPost, delivery.URL, bytes.NewReader(delivery.Payload))
	if err != nil {
		s.settle(ctx, delivery, nil, err.Error(), retry.KindPermanent)
		return
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)
	if secret != "" {
		req.Header.Set(signatureHeader, Sign(delivery.Payload, secret))
	}

	resp, err := s.client.Do(req)
	if err != nil {
		s.settle(ctx, delivery, nil, err.Error(), retry.Classify(0, err))
		return
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))

	status := resp.StatusCode
	if status >= 200 && status <= 299 {
		now := s.clock.Now()
		if err := s.repo.MarkSucceeded(ctx, s.db, delivery.ID, status, now); err != nil {
			if errors.Is(err, domain.ErrStaleClaim) {
				s.log.Warn("delivery claim lost, dropping result", zap.String("delivery_id", delivery.ID.String()))
				return
			}
			s.log.Error("mark delivery succeeded failed", zap.String("delivery_id", delivery.ID.String()), zap.Error(err))
			return
		}
		s.metrics.RecordWebhookTerminal(string(domain.StatusSucceeded))
		s.log.Info("webhook delivered",
			zap.String("delivery_id", delivery.ID.String()),
			zap.String("event_type", delivery.EventType),
			zap.Int("attempts", delivery.Attempts),
		)
		return
	}

	message := fmt.Sprintf("endpoint returned HTTP %d", status)
	s.settle(ctx, delivery, &status, message, retry.Classify(status, nil))
}

// settle routes a failed attempt to either the retry schedule or a terminal
// FAILED row.
func (s *Service) settle(ctx context.Context, delivery domain.WebhookDelivery, httpStatus *int, message string, kind retry.Kind) {
	message = truncate(message, maxErrorLen)

	if kind == retry.KindPermanent || s.policy.Exhausted(delivery.Attempts) {
		now := s.clock.Now()
		if err := s.repo.MarkFailed(ctx, s.db, delivery.ID, httpStatus, message, now); err != nil {
			if errors.Is(err, domain.ErrStaleClaim) {
				s.log.Warn("delivery claim lost, dropping result", zap.String("delivery_id", delivery.ID.String()))
				return
			}
			s.log.Error("mark delivery failed failed", zap.String("delivery_id", delivery.ID.String()), zap.Error(err))
			return
		}
		s.metrics.RecordWebhookTerminal(string(domain.StatusFailed))
		s.log.Warn("webhook failed permanently",
			zap.String("delivery_id", delivery.ID.String()),
			zap.String("event_type", delivery.EventType),
			zap.Int("attempts", delivery.Attempts),
			zap.String("error", message),
		)
		return
	}

	nextRetryAt := s.clock.Now().Add(s.policy.Delay(delivery.Attempts))
	if err := s.repo.Reschedule(ctx, s.db, delivery.ID, httpStatus, message, nextRetryAt); err != nil {
		if errors.Is(err, domain.ErrStaleClaim) {
			s.log.Warn("delivery claim lost, dropping result", zap.String("delivery_id", delivery.ID.String()))
			return
		}
		s.log.Error("reschedule delivery failed", zap.String("delivery_id", delivery.ID.String()), zap.Error(err))
		return
	}
	s.log.Warn("webhook attempt failed",
		zap.String("delivery_id", delivery.ID.String()),
		zap.Int("attempt", delivery.Attempts),
		zap.Time("next_retry_at", nextRetryAt),
		zap.String("error", message),
	)
}

func (s *Service) ListDeliveries(ctx context.Context, merchantID snowflake.ID, status string, limit int) ([]domain.WebhookDelivery, error) {
	filter, err := parseStatusFilter(status)
	if err != nil {
		return nil, err
	}
	if limit < 1 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	return s.repo.List(ctx, s.db, merchantID, filter, limit)
}

func (s *Service) Redeliver(ctx context.Context, merchantID, id snowflake.ID) (*domain.WebhookDelivery, error) {
	delivery, err := s.repo.FindByID(ctx, s.db, merchantID, id)
	if err != nil {
		return nil, err
	}
	if delivery == nil {
		return nil, domain.ErrNotFound
	}
	if delivery.Status != domain.StatusFailed {
		return nil, domain.ErrNotRetryable
	}

	target, err := s.merchants.GetWebhookTarget(ctx, merchantID)
	if err != nil {
		return nil, err
	}
	if !target.Configured() {
		return nil, domain.ErrNoWebhookURL
	}

	now := s.clock.Now()
	if err := s.repo.Reset(ctx, s.db, delivery.ID, target.URL, now); err != nil {
		return nil, err
	}

	delivery.Status = domain.StatusPending
	delivery.URL = target.URL
	delivery.Attempts = 0
	delivery.ErrorMessage = ""
	delivery.HTTPStatusCode = nil
	delivery.NextRetryAt = &now
	delivery.DeliveredAt = nil
	delivery.UpdatedAt = now

	s.log.Info("webhook redelivery scheduled",
		zap.String("delivery_id", delivery.ID.String()),
		zap.String("merchant_id", merchantID.String()),
	)
	return delivery, nil
}

func (s *Service) ReapStuck(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := s.clock.Now().Add(-olderThan)
	reaped, err := s.repo.ReapStuck(ctx, s.db, cutoff)
	if err != nil {
		return 0, err
	}
	if reaped > 0 {
		s.log.Warn("reverted stuck webhook deliveries", zap.Int64("count", reaped))
	}
	return reaped, nil
}

// Sign computes the signature header value for a payload.
func Sign(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write(payload)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func parseStatusFilter(status string) (domain.Status, error) {
	switch domain.Status(strings.ToUpper(strings.TrimSpace(status))) {
	case "":
		return "", nil
	case domain.StatusPending:
		return domain.StatusPending, nil
	case domain.StatusProcessing:
		return domain.StatusProcessing, nil
	case domain.StatusSucceeded:
		return domain.StatusSucceeded, nil
	case domain.StatusFailed:
		return domain.StatusFailed, nil
	default:
		return "", domain.ErrInvalidStatus
	}
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
