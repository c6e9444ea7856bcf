package payout

import (
	"github.com/boohpay/boohpay/internal/payout/repository"
	"github.com/boohpay/boohpay/internal/payout/service"
	"go.uber.org/fx"
)

var Module = fx.Module("payout.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
