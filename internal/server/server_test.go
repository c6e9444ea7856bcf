package server

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/boohpay/boohpay/internal/config"
	"github.com/boohpay/boohpay/internal/idempotency"
	merchantdomain "github.com/boohpay/boohpay/internal/merchant/domain"
	paymentdomain "github.com/boohpay/boohpay/internal/payment/domain"
	payoutdomain "github.com/boohpay/boohpay/internal/payout/domain"
	webhookdomain "github.com/boohpay/boohpay/internal/webhook/domain"
	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testAPIKey = "sk_test_1"

type memKV struct {
	mu     sync.Mutex
	values map[string]string
}

func newMemKV() *memKV { return &memKV{values: map[string]string{}} }

func (m *memKV) Get(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	value, ok := m.values[key]
	if !ok {
		return "", errors.New("missing")
	}
	return value, nil
}

func (m *memKV) Set(_ context.Context, key string, value string, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
	return nil
}

type stubMerchants struct {
	merchant *merchantdomain.Merchant
}

func (s *stubMerchants) GetByAPIKey(_ context.Context, apiKey string) (*merchantdomain.Merchant, error) {
	if s.merchant != nil && apiKey == s.merchant.APIKey {
		return s.merchant, nil
	}
	return nil, merchantdomain.ErrInvalidAPIKey
}

func (s *stubMerchants) GetWebhookConfig(context.Context, snowflake.ID) (merchantdomain.WebhookConfig, error) {
	return merchantdomain.WebhookConfig{}, nil
}

func (s *stubMerchants) GetWebhookTarget(context.Context, snowflake.ID) (merchantdomain.WebhookTarget, error) {
	return merchantdomain.WebhookTarget{}, nil
}

func (s *stubMerchants) SetWebhookConfig(context.Context, snowflake.ID, merchantdomain.UpdateWebhookConfigRequest) (merchantdomain.WebhookConfig, error) {
	return merchantdomain.WebhookConfig{}, nil
}

type stubPayments struct {
	mu          sync.Mutex
	submits     int
	refundErr   error
	providerErr error
	events      []string
}

func (s *stubPayments) Submit(_ context.Context, req paymentdomain.SubmitRequest) (*paymentdomain.PaymentIntent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.submits++
	return &paymentdomain.PaymentIntent{
		ID:         snowflake.ID(int64(1000 + s.submits)),
		MerchantID: req.MerchantID,
		OrderID:    req.OrderID,
		Gateway:    "stripe",
		Amount:     req.Amount,
		Currency:   strings.ToUpper(req.Currency),
		Status:     paymentdomain.StatusSucceeded,
	}, nil
}

func (s *stubPayments) Get(context.Context, snowflake.ID, snowflake.ID) (*paymentdomain.PaymentIntent, error) {
	return nil, paymentdomain.ErrNotFound
}

func (s *stubPayments) Refund(context.Context, paymentdomain.RefundRequest) (*paymentdomain.RefundResult, error) {
	if s.refundErr != nil {
		return nil, s.refundErr
	}
	return &paymentdomain.RefundResult{}, nil
}

func (s *stubPayments) HandleProviderEvent(_ context.Context, provider string, _ []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.providerErr != nil {
		return s.providerErr
	}
	s.events = append(s.events, provider)
	return nil
}

func (s *stubPayments) submitCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.submits
}

func (s *stubPayments) providerEvents() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.events...)
}

type stubPayouts struct{}

func (stubPayouts) Enqueue(context.Context, payoutdomain.EnqueueRequest) (snowflake.ID, error) {
	return snowflake.ID(5000), nil
}

func (stubPayouts) Get(context.Context, snowflake.ID, snowflake.ID) (*payoutdomain.PayoutJob, error) {
	return nil, payoutdomain.ErrNotFound
}

func (stubPayouts) ListJobs(_ context.Context, merchantID snowflake.ID, status string, _ int) ([]payoutdomain.PayoutJob, error) {
	if status != "" && status != "PENDING" {
		return nil, payoutdomain.ErrInvalidStatus
	}
	return []payoutdomain.PayoutJob{{
		ID:         snowflake.ID(5000),
		MerchantID: merchantID,
		Provider:   "stripe",
		Amount:     100,
		Currency:   "USD",
		Status:     payoutdomain.StatusPending,
	}}, nil
}

func (stubPayouts) ProcessDue(context.Context, int) (int, error) { return 0, nil }

func (stubPayouts) ReapStuck(context.Context, time.Duration) (int64, error) { return 0, nil }

func (stubPayouts) Prune(context.Context) (int64, error) { return 0, nil }

type stubWebhooks struct{}

func (stubWebhooks) Queue(context.Context, snowflake.ID, string, any) error { return nil }

func (stubWebhooks) ProcessPending(context.Context, int) (int, error) { return 0, nil }

func (stubWebhooks) ListDeliveries(context.Context, snowflake.ID, string, int) ([]webhookdomain.WebhookDelivery, error) {
	return nil, nil
}

func (stubWebhooks) Redeliver(context.Context, snowflake.ID, snowflake.ID) (*webhookdomain.WebhookDelivery, error) {
	return nil, webhookdomain.ErrNotFound
}

func (stubWebhooks) ReapStuck(context.Context, time.Duration) (int64, error) { return 0, nil }

func newTestServer(t *testing.T) (*gin.Engine, *stubPayments) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	payments := &stubPayments{}
	engine := NewEngine()
	NewServer(ServerParams{
		Gin: engine,
		Cfg: config.Config{},
		Log: zap.NewNop(),
		MerchantSvc: &stubMerchants{merchant: &merchantdomain.Merchant{
			ID:     snowflake.ID(42),
			Name:   "Acme",
			APIKey: testAPIKey,
			Active: true,
		}},
		PaymentSvc: payments,
		PayoutSvc:  stubPayouts{},
		WebhookSvc: stubWebhooks{},
		IdemCache:  idempotency.NewCacheWithKV(newMemKV(), zap.NewNop()),
	})
	return engine, payments
}

func doRequest(engine *gin.Engine, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	return w
}

func authed(extra map[string]string) map[string]string {
	headers := map[string]string{"Authorization": "Bearer " + testAPIKey}
	for k, v := range extra {
		headers[k] = v
	}
	return headers
}

func TestAuthRequired(t *testing.T) {
	engine, _ := newTestServer(t)

	w := doRequest(engine, http.MethodPost, "/v1/payments", `{}`, nil)
	require.Equal(t, http.StatusUnauthorized, w.Code)

	w = doRequest(engine, http.MethodPost, "/v1/payments", `{}`, map[string]string{"Authorization": "Bearer sk_wrong"})
	require.Equal(t, http.StatusUnauthorized, w.Code)

	w = doRequest(engine, http.MethodPost, "/v1/payments", `{}`, map[string]string{"Authorization": "Basic abc"})
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestCreatePaymentReplaysIdempotentRequest(t *testing.T) {
	engine, payments := newTestServer(t)

	body := `{"order_id":"order_1","amount":1000,"currency":"usd","method":"card","country":"US"}`
	headers := authed(map[string]string{"Idempotency-Key": "idem-1"})

	first := doRequest(engine, http.MethodPost, "/v1/payments", body, headers)
	require.Equal(t, http.StatusCreated, first.Code)
	require.Equal(t, 1, payments.submitCount())

	second := doRequest(engine, http.MethodPost, "/v1/payments", body, headers)
	require.Equal(t, http.StatusCreated, second.Code)
	require.Equal(t, first.Body.String(), second.Body.String())
	// The replay never reaches the payment service.
	require.Equal(t, 1, payments.submitCount())
}

func TestCreatePaymentConflictsOnBodyMismatch(t *testing.T) {
	engine, payments := newTestServer(t)

	headers := authed(map[string]string{"Idempotency-Key": "idem-1"})
	first := doRequest(engine, http.MethodPost, "/v1/payments",
		`{"order_id":"order_1","amount":1000,"currency":"usd","method":"card","country":"US"}`, headers)
	require.Equal(t, http.StatusCreated, first.Code)

	conflict := doRequest(engine, http.MethodPost, "/v1/payments",
		`{"order_id":"order_1","amount":2000,"currency":"usd","method":"card","country":"US"}`, headers)
	require.Equal(t, http.StatusConflict, conflict.Code)
	require.Equal(t, 1, payments.submitCount())
}

func TestCreatePaymentWithoutKeySubmitsEveryTime(t *testing.T) {
	engine, payments := newTestServer(t)

	body := `{"order_id":"order_1","amount":1000,"currency":"usd","method":"card","country":"US"}`
	for i := 0; i < 2; i++ {
		w := doRequest(engine, http.MethodPost, "/v1/payments", body, authed(nil))
		require.Equal(t, http.StatusCreated, w.Code)
	}
	require.Equal(t, 2, payments.submitCount())
}

func TestCreatePaymentRejectsMalformedBody(t *testing.T) {
	engine, _ := newTestServer(t)

	w := doRequest(engine, http.MethodPost, "/v1/payments", `{not json`, authed(nil))
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetPaymentNotFound(t *testing.T) {
	engine, _ := newTestServer(t)

	w := doRequest(engine, http.MethodGet, "/v1/payments/123456789", "", authed(nil))
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestRefundNotAllowedMapsToConflict(t *testing.T) {
	engine, payments := newTestServer(t)
	payments.refundErr = paymentdomain.ErrRefundNotAllowed

	w := doRequest(engine, http.MethodPost, "/v1/payments/123456789/refunds", `{"amount":500}`, authed(nil))
	require.Equal(t, http.StatusConflict, w.Code)
}

func TestProviderWebhookNeedsNoAPIKey(t *testing.T) {
	engine, payments := newTestServer(t)

	w := doRequest(engine, http.MethodPost, "/webhooks/stripe", `{"type":"payment_intent.succeeded"}`, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, []string{"stripe"}, payments.providerEvents())
}

func TestProviderWebhookAcknowledgesReplays(t *testing.T) {
	engine, payments := newTestServer(t)
	payments.providerErr = paymentdomain.ErrEventAlreadyProcessed

	w := doRequest(engine, http.MethodPost, "/webhooks/moneroo", `{"event":"payment.success"}`, nil)
	require.Equal(t, http.StatusOK, w.Code)

	payments.providerErr = paymentdomain.ErrInvalidPayload
	w = doRequest(engine, http.MethodPost, "/webhooks/moneroo", `{broken`, nil)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestListPayoutsEndpoint(t *testing.T) {
	engine, _ := newTestServer(t)

	w := doRequest(engine, http.MethodGet, "/v1/payouts?status=PENDING", "", authed(nil))
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), `"payouts"`)

	w = doRequest(engine, http.MethodGet, "/v1/payouts?status=BOGUS", "", authed(nil))
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = doRequest(engine, http.MethodGet, "/v1/payouts", "", nil)
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestHealthEndpointIsPublic(t *testing.T) {
	engine, _ := newTestServer(t)

	w := doRequest(engine, http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
}
