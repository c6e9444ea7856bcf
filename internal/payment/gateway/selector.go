package gateway

import (
	"strings"

	"github.com/boohpay/boohpay/internal/payment/domain"
)

const (
	MethodCard        = "card"
	MethodMobileMoney = "mobile_money"
)

// MerchantGatewayConfig carries per-merchant routing preferences.
type MerchantGatewayConfig struct {
	Override string
}

// SelectGateway picks the provider for a payment. A merchant override wins
// outright; otherwise routing is by method and country with no fallback.
func SelectGateway(method, country string, cfg MerchantGatewayConfig) (string, error) {
	if override := strings.ToLower(strings.TrimSpace(cfg.Override)); override != "" {
		return override, nil
	}

	method = strings.ToLower(strings.TrimSpace(method))
	country = strings.ToUpper(strings.TrimSpace(country))

	switch method {
	case MethodCard:
		return "stripe", nil
	case MethodMobileMoney:
		if country == "GA" {
			return "ebilling", nil
		}
		return "moneroo", nil
	default:
		return "", domain.ErrUnsupportedMethod
	}
}
