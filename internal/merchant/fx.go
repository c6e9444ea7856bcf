package merchant

import (
	"github.com/boohpay/boohpay/internal/merchant/repository"
	"github.com/boohpay/boohpay/internal/merchant/service"
	"go.uber.org/fx"
)

var Module = fx.Module("merchant.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
