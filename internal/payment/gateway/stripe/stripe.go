package stripe

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
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

func (g *Gateway) Name() string { return "stripe" }

func (g *Gateway) SubmitPayment(ctx context.Context, req domain.PaymentRequest) (domain.GatewayResult, error) {
	form := url.Values{}
	form.Set("amount", strconv.FormatInt(req.Amount, 10))
	form.Set("currency", strings.ToLower(req.Currency))
	form.Set("confirm", "true")
	form.Set("metadata[order_id]", req.OrderID)
	form.Set("metadata[intent_id]", req.IntentID.String())

	var resp paymentIntentResponse
	if err := g.post(ctx, "/v1/payment_intents", form, &resp); err != nil {
		return domain.GatewayResult{}, err
	}

	status, err := mapPaymentStatus(resp.Status)
	if err != nil {
		return domain.GatewayResult{}, err
	}

	result := domain.GatewayResult{
		Status:            status,
		ProviderReference: resp.ID,
	}
	if status == domain.StatusFailed && resp.LastPaymentError != nil {
		result.FailureCode = resp.LastPaymentError.Code
	}
	return result, nil
}

func (g *Gateway) SubmitPayout(ctx context.Context, req domain.PayoutRequest) (domain.GatewayResult, error) {
	form := url.Values{}
	form.Set("amount", strconv.FormatInt(req.Amount, 10))
	form.Set("currency", strings.ToLower(req.Currency))
	form.Set("destination", req.PayeeIdentifier)
	form.Set("metadata[job_id]", req.JobID.String())

	var resp payoutResponse
	if err := g.post(ctx, "/v1/payouts", form, &resp); err != nil {
		return domain.GatewayResult{}, err
	}

	status, err := mapPayoutStatus(resp.Status)
	if err != nil {
		return domain.GatewayResult{}, err
	}
	result := domain.GatewayResult{
		Status:            status,
		ProviderReference: resp.ID,
	}
	if status == domain.StatusFailed {
		result.FailureCode = resp.FailureCode
	}
	return result, nil
}

// ParseEvent normalizes a Stripe webhook event into a settlement callback.
// Event types that do not move an intent are reported as ignored.
func (g *Gateway) ParseEvent(payload []byte) (domain.ProviderEvent, error) {
	var event webhookEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return domain.ProviderEvent{}, domain.ErrInvalidPayload
	}

	var status domain.Status
	switch strings.TrimSpace(event.Type) {
	case "payment_intent.succeeded":
		status = domain.StatusSucceeded
	case "payment_intent.amount_capturable_updated":
		status = domain.StatusAuthorized
	case "payment_intent.payment_failed", "payment_intent.canceled":
		status = domain.StatusFailed
	default:
		return domain.ProviderEvent{}, domain.ErrEventIgnored
	}

	var intent paymentIntentResponse
	if err := json.Unmarshal(event.Data.Object, &intent); err != nil {
		return domain.ProviderEvent{}, domain.ErrInvalidPayload
	}
	if strings.TrimSpace(intent.ID) == "" {
		return domain.ProviderEvent{}, domain.ErrInvalidPayload
	}

	out := domain.ProviderEvent{
		Provider:          "stripe",
		ProviderReference: intent.ID,
		Status:            status,
	}
	if status == domain.StatusFailed {
		if intent.LastPaymentError != nil && intent.LastPaymentError.Code != "" {
			out.FailureCode = intent.LastPaymentError.Code
		} else {
			out.FailureCode = "payment_failed"
		}
	}
	return out, nil
}

func (g *Gateway) post(ctx context.Context, path string, form url.Values, out any) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+path, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Authorization", "Bearer "+g.apiKey)
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")

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
		var apiErr errorResponse
		_ = json.Unmarshal(body, &apiErr)
		return &gateway.ProviderError{
			Provider:   "stripe",
			StatusCode: httpResp.StatusCode,
			Code:       apiErr.Error.Code,
			Message:    firstNonEmpty(apiErr.Error.Message, http.StatusText(httpResp.StatusCode)),
		}
	}

	return json.Unmarshal(body, out)
}

func mapPaymentStatus(status string) (domain.Status, error) {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "succeeded":
		return domain.StatusSucceeded, nil
	case "requires_capture":
		return domain.StatusAuthorized, nil
	case "requires_action", "processing", "requires_payment_method", "requires_confirmation":
		return domain.StatusPending, nil
	case "canceled":
		return domain.StatusFailed, nil
	default:
		return "", fmt.Errorf("%w: stripe payment_intent %q", domain.ErrUnknownStatus, status)
	}
}

func mapPayoutStatus(status string) (domain.Status, error) {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "paid":
		return domain.StatusSucceeded, nil
	case "pending", "in_transit":
		return domain.StatusSucceeded, nil
	case "failed", "canceled":
		return domain.StatusFailed, nil
	default:
		return "", fmt.Errorf("%w: stripe payout %q", domain.ErrUnknownStatus, status)
	}
}

type paymentIntentResponse struct {
	ID               string    `json:"id"`
	Status           string    `json:"status"`
	LastPaymentError *apiError `json:"last_payment_error"`
}

type webhookEvent struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Object json.RawMessage `json:"object"`
	} `json:"data"`
}

type payoutResponse struct {
	ID          string `json:"id"`
	Status      string `json:"status"`
	FailureCode string `json:"failure_code"`
}

type errorResponse struct {
	Error apiError `json:"error"`
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
