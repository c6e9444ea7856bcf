package worker

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/boohpay/boohpay/internal/clock"
	"github.com/boohpay/boohpay/internal/config"
	"github.com/boohpay/boohpay/internal/observability/metrics"
	payoutdomain "github.com/boohpay/boohpay/internal/payout/domain"
	webhookdomain "github.com/boohpay/boohpay/internal/webhook/domain"
	"github.com/google/uuid"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var ErrInvalidConfig = errors.New("worker: invalid configuration")

type Params struct {
	fx.In

	Log      *zap.Logger
	Clock    clock.Clock
	Orch     config.Orchestration
	Payouts  payoutdomain.Service
	Webhooks webhookdomain.Service
	Metrics  *metrics.Metrics `optional:"true"`
}

// Runner drives the delivery and payout machinery on a fixed interval.
type Runner struct {
	log      *zap.Logger
	clock    clock.Clock
	cfg      config.Orchestration
	payouts  payoutdomain.Service
	webhooks webhookdomain.Service
	metrics  *metrics.Metrics
}

func New(p Params) (*Runner, error) {
	if p.Log == nil || p.Clock == nil || p.Payouts == nil || p.Webhooks == nil {
		return nil, ErrInvalidConfig
	}
	return &Runner{
		log:      p.Log.Named("worker").With(zap.String("component", "worker")),
		clock:    p.Clock,
		cfg:      p.Orch,
		payouts:  p.Payouts,
		webhooks: p.Webhooks,
		metrics:  p.Metrics,
	}, nil
}

func (r *Runner) RunForever(ctx context.Context) {
	ticker := time.NewTicker(r.cfg.RunInterval)
	defer ticker.Stop()

	for {
		if err := r.RunOnce(ctx); err != nil {
			r.log.Warn("worker run failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (r *Runner) RunOnce(parent context.Context) error {
	var err error

	// Tag every log line of this sweep so interleaved runs stay greppable.
	log := r.log.With(zap.String("run_id", uuid.NewString()))

	jobs := []struct {
		Name    string
		Timeout time.Duration
		Run     func(context.Context) error
	}{
		{"webhook_sweep", r.cfg.WebhookTimeout + 30*time.Second, r.WebhookSweepJob},
		{"payout_dispatch", r.cfg.PayoutTimeout + 30*time.Second, r.PayoutDispatchJob},
		{"reap_stuck", 30 * time.Second, r.ReapStuckJob},
		{"prune_jobs", 30 * time.Second, r.PruneJob},
	}

	for _, job := range jobs {
		if !r.isJobEnabled(job.Name) {
			continue
		}
		err = errors.Join(err, r.runJob(parent, log, job.Name, job.Timeout, job.Run))
	}

	return err
}

func (r *Runner) runJob(parent context.Context, log *zap.Logger, name string, timeout time.Duration, fn func(ctx context.Context) error) (err error) {
	start := time.Now()
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	r.metrics.IncJobRun(name)
	defer func() {
		r.metrics.ObserveJobDuration(name, time.Since(start))
		if rec := recover(); rec != nil {
			r.metrics.IncJobError(name)
			log.Error("job panicked", zap.String("job", name), zap.Any("panic", rec))
			err = fmt.Errorf("%s: panic: %v", name, rec)
		}
	}()

	err = fn(ctx)
	if err == nil {
		return nil
	}

	// A deadline hit mid-batch is a soft timeout; the next tick picks the
	// remaining work back up.
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		log.Warn("job timed out",
			zap.String("job", name),
			zap.Duration("timeout", timeout),
			zap.Error(err),
		)
		return nil
	}

	r.metrics.IncJobError(name)
	return fmt.Errorf("%s: %w", name, err)
}

func (r *Runner) isJobEnabled(jobName string) bool {
	// Empty EnabledJobs means run everything (monolith mode).
	if len(r.cfg.EnabledJobs) == 0 {
		return true
	}
	for _, enabled := range r.cfg.EnabledJobs {
		if strings.EqualFold(enabled, jobName) {
			return true
		}
	}
	return false
}

func (r *Runner) WebhookSweepJob(ctx context.Context) error {
	var jobErr error
	for {
		if ctx.Err() != nil {
			return errors.Join(jobErr, ctx.Err())
		}
		claimed, err := r.webhooks.ProcessPending(ctx, r.cfg.WebhookBatchSize)
		if err != nil {
			jobErr = errors.Join(jobErr, err)
		}
		if claimed == 0 {
			break
		}
		r.log.Debug("webhook batch processed", zap.Int("claimed", claimed))
	}
	return jobErr
}

func (r *Runner) PayoutDispatchJob(ctx context.Context) error {
	var jobErr error
	for {
		if ctx.Err() != nil {
			return errors.Join(jobErr, ctx.Err())
		}
		claimed, err := r.payouts.ProcessDue(ctx, r.cfg.PayoutBatchSize)
		if err != nil {
			jobErr = errors.Join(jobErr, err)
		}
		if claimed == 0 {
			break
		}
		r.log.Debug("payout batch processed", zap.Int("claimed", claimed))
	}
	return jobErr
}

func (r *Runner) ReapStuckJob(ctx context.Context) error {
	var jobErr error
	if _, err := r.payouts.ReapStuck(ctx, r.cfg.ReapAfter); err != nil {
		jobErr = errors.Join(jobErr, err)
	}
	if _, err := r.webhooks.ReapStuck(ctx, r.cfg.ReapAfter); err != nil {
		jobErr = errors.Join(jobErr, err)
	}
	return jobErr
}

func (r *Runner) PruneJob(ctx context.Context) error {
	pruned, err := r.payouts.Prune(ctx)
	if err != nil {
		return err
	}
	if pruned > 0 {
		r.log.Info("pruned terminal payout jobs", zap.Int64("count", pruned))
	}
	return nil
}
