package moneroo

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/boohpay/boohpay/internal/payment/domain"
	"github.com/boohpay/boohpay/internal/payment/gateway"
)

type Config struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
}

type Gateway struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

func New(cfg Config) *Gateway {
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &Gateway{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		client:  client,
	}
}

func (g *Gateway) Name() string { return "moneroo" }

func (g *Gateway) SubmitPayment(ctx context.Context, req domain.PaymentRequest) (domain.GatewayResult, error) {
	payload := map[string]any{
		"amount":      req.Amount,
		"currency":    strings.ToUpper(req.Currency),
		"description": "order " + req.OrderID,
		"metadata": map[string]string{
			"order_id":  req.OrderID,
			"intent_id": req.IntentID.String(),
		},
	}

	var resp apiResponse
	if err := g.post(ctx, "/v1/payments/initialize", payload, &resp); err != nil {
		return domain.GatewayResult{}, err
	}

	status, err := mapStatus(resp.Data.Status)
	if err != nil {
		return domain.GatewayResult{}, err
	}
	result := domain.GatewayResult{
		Status:            status,
		ProviderReference: resp.Data.ID,
	}
	if status == domain.StatusFailed {
		result.FailureCode = firstNonEmpty(resp.Data.FailureCode, "payment_"+strings.ToLower(resp.Data.Status))
	}
	return result, nil
}

func (g *Gateway) SubmitPayout(ctx context.Context, req domain.PayoutRequest) (domain.GatewayResult, error) {
	payload := map[string]any{
		"amount":   req.Amount,
		"currency": strings.ToUpper(req.Currency),
		"recipient": map[string]string{
			"msisdn": req.PayeeIdentifier,
		},
		"metadata": map[string]string{
			"job_id": req.JobID.String(),
		},
	}

	var resp apiResponse
	if err := g.post(ctx, "/v1/payouts/initialize", payload, &resp); err != nil {
		return domain.GatewayResult{}, err
	}

	status, err := mapPayoutStatus(resp.Data.Status)
	if err != nil {
		return domain.GatewayResult{}, err
	}
	result := domain.GatewayResult{
		Status:            status,
		ProviderReference: resp.Data.ID,
	}
	if status == domain.StatusFailed {
		result.FailureCode = firstNonEmpty(resp.Data.FailureCode, "payout_"+strings.ToLower(resp.Data.Status))
	}
	return result, nil
}

// ParseEvent normalizes a Moneroo webhook notification. Lifecycle pings for
// states we already hold are reported as ignored.
func (g *Gateway) ParseEvent(payload []byte) (domain.ProviderEvent, error) {
	var event webhookEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return domain.ProviderEvent{}, domain.ErrInvalidPayload
	}
	if strings.TrimSpace(event.Data.ID) == "" {
		return domain.ProviderEvent{}, domain.ErrInvalidPayload
	}

	out := domain.ProviderEvent{
		Provider:          "moneroo",
		ProviderReference: event.Data.ID,
	}
	switch strings.ToLower(strings.TrimSpace(event.Event)) {
	case "payment.success":
		out.Status = domain.StatusSucceeded
	case "payment.failed", "payment.cancelled":
		out.Status = domain.StatusFailed
		out.FailureCode = firstNonEmpty(event.Data.FailureCode, "payment_failed")
	case "payment.initiated", "payment.pending":
		return domain.ProviderEvent{}, domain.ErrEventIgnored
	default:
		return domain.ProviderEvent{}, domain.ErrEventIgnored
	}
	return out, nil
}

func (g *Gateway) post(ctx context.Context, path string, payload any, out *apiResponse) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+path, bytes.NewReader(raw))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Authorization", "Bearer "+g.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	httpResp, err := g.client.Do(httpReq)
	if err != nil {
		return err
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(httpResp.Body, 1<<20))
	if err != nil {
		return err
	}

	if httpResp.StatusCode < 200 || httpResp.StatusCode > 299 {
		var apiErr apiResponse
		_ = json.Unmarshal(body, &apiErr)
		return &gateway.ProviderError{
			Provider:   "moneroo",
			StatusCode: httpResp.StatusCode,
			Message:    firstNonEmpty(apiErr.Message, http.StatusText(httpResp.StatusCode)),
		}
	}

	return json.Unmarshal(body, out)
}

func mapStatus(status string) (domain.Status, error) {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "success":
		return domain.StatusSucceeded, nil
	case "pending", "initiated":
		return domain.StatusPending, nil
	case "failed", "cancelled":
		return domain.StatusFailed, nil
	default:
		return "", fmt.Errorf("%w: moneroo %q", domain.ErrUnknownStatus, status)
	}
}

func mapPayoutStatus(status string) (domain.Status, error) {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "success", "pending", "initiated":
		return domain.StatusSucceeded, nil
	case "failed", "cancelled":
		return domain.StatusFailed, nil
	default:
		return "", fmt.Errorf("%w: moneroo payout %q", domain.ErrUnknownStatus, status)
	}
}

type apiResponse struct {
	Message string `json:"message"`
	Data    struct {
		ID          string `json:"id"`
		Status      string `json:"status"`
		FailureCode string `json:"failure_code"`
	} `json:"data"`
}

type webhookEvent struct {
	Event string `json:"event"`
	Data  struct {
		ID          string `json:"id"`
		Status      string `json:"status"`
		FailureCode string `json:"failure_code"`
	} `json:"data"`
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
