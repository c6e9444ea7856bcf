package webhook

import (
	"github.com/boohpay/boohpay/internal/webhook/repository"
	"github.com/boohpay/boohpay/internal/webhook/service"
	"go.uber.org/fx"
)

var Module = fx.Module("webhook.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
