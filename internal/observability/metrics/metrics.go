package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/fx"
)

// Metrics exposes orchestration health signals.
type Metrics struct {
	paymentsSubmitted  *prometheus.CounterVec
	webhookDeliveries  *prometheus.CounterVec
	webhookAttempts    prometheus.Counter
	payoutOutcomes     *prometheus.CounterVec
	payoutAttempts     prometheus.Counter
	idempotencyReplays prometheus.Counter
	jobRuns            *prometheus.CounterVec
	jobErrors          *prometheus.CounterVec
	jobDuration        *prometheus.HistogramVec
}

func New() *Metrics {
	return &Metrics{
		paymentsSubmitted: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "boohpay_payments_submitted_total",
			Help: "Payment intents submitted, by gateway and terminal status.",
		}, []string{"gateway", "status"}),
		webhookDeliveries: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "boohpay_webhook_deliveries_total",
			Help: "Webhook deliveries reaching a terminal status.",
		}, []string{"status"}),
		webhookAttempts: promauto.NewCounter(prometheus.CounterOpts{
			Name: "boohpay_webhook_attempts_total",
			Help: "Individual webhook delivery attempts.",
		}),
		payoutOutcomes: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "boohpay_payout_jobs_total",
			Help: "Payout jobs reaching a terminal status, by provider.",
		}, []string{"provider", "status"}),
		payoutAttempts: promauto.NewCounter(prometheus.CounterOpts{
			Name: "boohpay_payout_attempts_total",
			Help: "Individual payout provider attempts.",
		}),
		idempotencyReplays: promauto.NewCounter(prometheus.CounterOpts{
			Name: "boohpay_idempotency_replays_total",
			Help: "Requests answered from the idempotency cache.",
		}),
		jobRuns: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "boohpay_worker_job_runs_total",
			Help: "Background job executions.",
		}, []string{"job"}),
		jobErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "boohpay_worker_job_errors_total",
			Help: "Background job executions that returned an error.",
		}, []string{"job"}),
		jobDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "boohpay_worker_job_duration_seconds",
			Help:    "Background job wall time.",
			Buckets: prometheus.DefBuckets,
		}, []string{"job"}),
	}
}

func (m *Metrics) RecordPaymentSubmitted(gateway, status string) {
	if m == nil {
		return
	}
	m.paymentsSubmitted.WithLabelValues(gateway, status).Inc()
}

func (m *Metrics) RecordWebhookTerminal(status string) {
	if m == nil {
		return
	}
	m.webhookDeliveries.WithLabelValues(status).Inc()
}

func (m *Metrics) RecordWebhookAttempt() {
	if m == nil {
		return
	}
	m.webhookAttempts.Inc()
}

func (m *Metrics) RecordPayoutTerminal(provider, status string) {
	if m == nil {
		return
	}
	m.payoutOutcomes.WithLabelValues(provider, status).Inc()
}

func (m *Metrics) RecordPayoutAttempt() {
	if m == nil {
		return
	}
	m.payoutAttempts.Inc()
}

func (m *Metrics) RecordIdempotencyReplay() {
	if m == nil {
		return
	}
	m.idempotencyReplays.Inc()
}

func (m *Metrics) IncJobRun(job string) {
	if m == nil {
		return
	}
	m.jobRuns.WithLabelValues(job).Inc()
}

func (m *Metrics) IncJobError(job string) {
	if m == nil {
		return
	}
	m.jobErrors.WithLabelValues(job).Inc()
}

func (m *Metrics) ObserveJobDuration(job string, d time.Duration) {
	if m == nil {
		return
	}
	m.jobDuration.WithLabelValues(job).Observe(d.Seconds())
}

var Module = fx.Module("observability.metrics",
	fx.Provide(New),
)
