package payment

import (
	"github.com/boohpay/boohpay/internal/config"
	"github.com/boohpay/boohpay/internal/payment/gateway"
	"github.com/boohpay/boohpay/internal/payment/gateway/ebilling"
	"github.com/boohpay/boohpay/internal/payment/gateway/moneroo"
	"github.com/boohpay/boohpay/internal/payment/gateway/stripe"
	"github.com/boohpay/boohpay/internal/payment/repository"
	"github.com/boohpay/boohpay/internal/payment/service"
	"go.uber.org/fx"
)

func newRegistry(cfg config.Config) *gateway.Registry {
	return gateway.NewRegistry(
		stripe.New(stripe.Config{
			BaseURL: cfg.GatewayStripeBaseURL,
			APIKey:  cfg.GatewayStripeAPIKey,
		}),
		moneroo.New(moneroo.Config{
			BaseURL: cfg.GatewayMonerooBaseURL,
			APIKey:  cfg.GatewayMonerooAPIKey,
		}),
		ebilling.New(ebilling.Config{
			BaseURL: cfg.GatewayEbillingBaseURL,
			APIKey:  cfg.GatewayEbillingAPIKey,
		}),
	)
}

var Module = fx.Module("payment.service",
	fx.Provide(newRegistry),
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
