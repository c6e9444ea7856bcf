package ebilling

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

// Gateway talks to the eBilling aggregator used for Gabonese mobile money.
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

func (g *Gateway) Name() string { return "ebilling" }

func (g *Gateway) SubmitPayment(ctx context.Context, req domain.PaymentRequest) (domain.GatewayResult, error) {
	payload := map[string]any{
		"amount":             req.Amount,
		"currency":           strings.ToUpper(req.Currency),
		"external_reference": req.OrderID,
		"description":        "order " + req.OrderID,
	}

	var resp billResponse
	if err := g.post(ctx, "/api/v1/merchant/e_bills", payload, &resp); err != nil {
		return domain.GatewayResult{}, err
	}

	status, err := mapStatus(resp.EBill.State)
	if err != nil {
		return domain.GatewayResult{}, err
	}
	result := domain.GatewayResult{
		Status:            status,
		ProviderReference: resp.EBill.BillID,
	}
	if status == domain.StatusFailed {
		result.FailureCode = "bill_" + strings.ToLower(resp.EBill.State)
	}
	return result, nil
}

func (g *Gateway) SubmitPayout(ctx context.Context, req domain.PayoutRequest) (domain.GatewayResult, error) {
	payload := map[string]any{
		"amount":       req.Amount,
		"currency":     strings.ToUpper(req.Currency),
		"payee_msisdn": req.PayeeIdentifier,
		"reference":    req.JobID.String(),
	}

	var resp payoutResponse
	if err := g.post(ctx, "/api/v1/merchant/payouts", payload, &resp); err != nil {
		return domain.GatewayResult{}, err
	}

	status, err := mapPayoutStatus(resp.State)
	if err != nil {
		return domain.GatewayResult{}, err
	}
	result := domain.GatewayResult{
		Status:            status,
		ProviderReference: resp.PayoutID,
	}
	if status == domain.StatusFailed {
		result.FailureCode = "payout_" + strings.ToLower(resp.State)
	}
	return result, nil
}

// ParseEvent normalizes an eBilling payment notification. The aggregator
// posts the bill fields flat once the payer settles or the bill expires.
func (g *Gateway) ParseEvent(payload []byte) (domain.ProviderEvent, error) {
	var notif billNotification
	if err := json.Unmarshal(payload, &notif); err != nil {
		return domain.ProviderEvent{}, domain.ErrInvalidPayload
	}
	if strings.TrimSpace(notif.BillID) == "" {
		return domain.ProviderEvent{}, domain.ErrInvalidPayload
	}

	status, err := mapStatus(notif.State)
	if err != nil {
		return domain.ProviderEvent{}, err
	}
	if status == domain.StatusPending {
		return domain.ProviderEvent{}, domain.ErrEventIgnored
	}

	out := domain.ProviderEvent{
		Provider:          "ebilling",
		ProviderReference: notif.BillID,
		Status:            status,
	}
	if status == domain.StatusFailed {
		out.FailureCode = "bill_" + strings.ToLower(strings.TrimSpace(notif.State))
	}
	return out, nil
}

func (g *Gateway) post(ctx context.Context, path string, payload any, out any) error {
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
		var apiErr struct {
			Message string `json:"message"`
		}
		_ = json.Unmarshal(body, &apiErr)
		message := apiErr.Message
		if message == "" {
			message = http.StatusText(httpResp.StatusCode)
		}
		return &gateway.ProviderError{
			Provider:   "ebilling",
			StatusCode: httpResp.StatusCode,
			Message:    message,
		}
	}

	return json.Unmarshal(body, out)
}

func mapStatus(state string) (domain.Status, error) {
	switch strings.ToLower(strings.TrimSpace(state)) {
	case "paid", "processed":
		return domain.StatusSucceeded, nil
	case "created", "pending":
		return domain.StatusPending, nil
	case "expired", "failed":
		return domain.StatusFailed, nil
	default:
		return "", fmt.Errorf("%w: ebilling %q", domain.ErrUnknownStatus, state)
	}
}

func mapPayoutStatus(state string) (domain.Status, error) {
	switch strings.ToLower(strings.TrimSpace(state)) {
	case "processed", "accepted", "pending":
		return domain.StatusSucceeded, nil
	case "rejected", "failed":
		return domain.StatusFailed, nil
	default:
		return "", fmt.Errorf("%w: ebilling payout %q", domain.ErrUnknownStatus, state)
	}
}

type billResponse struct {
	EBill struct {
		BillID string `json:"bill_id"`
		State  string `json:"state"`
	} `json:"e_bill"`
}

type payoutResponse struct {
	PayoutID string `json:"payout_id"`
	State    string `json:"state"`
}

type billNotification struct {
	BillID            string `json:"bill_id"`
	State             string `json:"state"`
	PaymentSystemName string `json:"payment_system_name"`
	TransactionID     string `json:"transaction_id"`
}
