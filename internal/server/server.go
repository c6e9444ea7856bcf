package server

import (
	"context"
	"net/http"
	"time"

	"github.com/boohpay/boohpay/internal/config"
	"github.com/boohpay/boohpay/internal/idempotency"
	merchantdomain "github.com/boohpay/boohpay/internal/merchant/domain"
	"github.com/boohpay/boohpay/internal/observability/metrics"
	paymentdomain "github.com/boohpay/boohpay/internal/payment/domain"
	payoutdomain "github.com/boohpay/boohpay/internal/payout/domain"
	webhookdomain "github.com/boohpay/boohpay/internal/webhook/domain"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(NewEngine),
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					panic(err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine      *gin.Engine
	cfg         config.Config
	log         *zap.Logger
	merchantSvc merchantdomain.Service
	paymentSvc  paymentdomain.Service
	payoutSvc   payoutdomain.Service
	webhookSvc  webhookdomain.Service
	idemCache   *idempotency.Cache
	obsMetrics  *metrics.Metrics
}

type ServerParams struct {
	fx.In

	Gin         *gin.Engine
	Cfg         config.Config
	Log         *zap.Logger
	MerchantSvc merchantdomain.Service
	PaymentSvc  paymentdomain.Service
	PayoutSvc   payoutdomain.Service
	WebhookSvc  webhookdomain.Service
	IdemCache   *idempotency.Cache
	ObsMetrics  *metrics.Metrics `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:      p.Gin,
		cfg:         p.Cfg,
		log:         p.Log.Named("server"),
		merchantSvc: p.MerchantSvc,
		paymentSvc:  p.PaymentSvc,
		payoutSvc:   p.PayoutSvc,
		webhookSvc:  p.WebhookSvc,
		idemCache:   p.IdemCache,
		obsMetrics:  p.ObsMetrics,
	}

	svc.registerAPIRoutes()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAPIRoutes() {
	// Provider callbacks carry no merchant API key; they authenticate by
	// the provider reference inside the payload.
	s.engine.POST("/webhooks/:provider", s.HandleProviderWebhook)

	v1 := s.engine.Group("/v1", s.AuthRequired())

	v1.POST("/payments", s.CreatePayment)
	v1.GET("/payments/:id", s.GetPayment)
	v1.POST("/payments/:id/refunds", s.RefundPayment)

	v1.POST("/payouts", s.CreatePayout)
	v1.GET("/payouts", s.ListPayouts)
	v1.GET("/payouts/:id", s.GetPayout)

	v1.GET("/webhooks/deliveries", s.ListWebhookDeliveries)
	v1.POST("/webhooks/deliveries/:id/redeliver", s.RedeliverWebhook)
	v1.GET("/webhooks/config", s.GetWebhookConfig)
	v1.PUT("/webhooks/config", s.SetWebhookConfig)
}
