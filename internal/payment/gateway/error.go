package gateway

import (
	"errors"
	"fmt"

	"github.com/boohpay/boohpay/internal/retry"
)

// ProviderError is a non-2xx response from a provider API. It keeps the
// HTTP status so callers can classify the failure for retry.
type ProviderError struct {
	Provider   string
	StatusCode int
	Code       string
	Message    string
}

func (e *ProviderError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s: %s (%s, http %d)", e.Provider, e.Message, e.Code, e.StatusCode)
	}
	return fmt.Sprintf("%s: %s (http %d)", e.Provider, e.Message, e.StatusCode)
}

// ClassifyError maps a provider call error to a retry kind.
func ClassifyError(err error) retry.Kind {
	var providerErr *ProviderError
	if errors.As(err, &providerErr) {
		return retry.Classify(providerErr.StatusCode, nil)
	}
	return retry.Classify(0, err)
}

// FailureCode extracts a stable failure code from a provider call error.
func FailureCode(err error) string {
	var providerErr *ProviderError
	if errors.As(err, &providerErr) {
		if providerErr.Code != "" {
			return providerErr.Code
		}
		return fmt.Sprintf("http_%d", providerErr.StatusCode)
	}
	return "gateway_error"
}
