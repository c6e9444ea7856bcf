package main

import (
	"github.com/boohpay/boohpay/internal/clock"
	"github.com/boohpay/boohpay/internal/config"
	"github.com/boohpay/boohpay/internal/logger"
	"github.com/boohpay/boohpay/internal/merchant"
	"github.com/boohpay/boohpay/internal/migration"
	"github.com/boohpay/boohpay/internal/observability/metrics"
	"github.com/boohpay/boohpay/internal/payment"
	"github.com/boohpay/boohpay/internal/payout"
	"github.com/boohpay/boohpay/internal/webhook"
	"github.com/boohpay/boohpay/internal/worker"
	"github.com/boohpay/boohpay/pkg/db"
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		config.Module,
		logger.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		migration.Module,
		metrics.Module,

		merchant.Module,
		payment.Module,
		payout.Module,
		webhook.Module,

		// No server module!
		worker.Module,
		fx.Invoke(worker.Run),
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(2)
	if err != nil {
		panic(err)
	}
	return node
}
