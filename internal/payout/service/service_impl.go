package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/boohpay/boohpay/internal/clock"
	"github.com/boohpay/boohpay/internal/config"
	"github.com/boohpay/boohpay/internal/observability/metrics"
	paymentdomain "github.com/boohpay/boohpay/internal/payment/domain"
	"github.com/boohpay/boohpay/internal/payment/gateway"
	"github.com/boohpay/boohpay/internal/payout/domain"
	"github.com/boohpay/boohpay/internal/retry"
	webhookdomain "github.com/boohpay/boohpay/internal/webhook/domain"
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	EventPayoutSucceeded = "payout.succeeded"
	EventPayoutFailed    = "payout.failed"

	maxErrorLen = 500
)

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	GenID    *snowflake.Node
	Clock    clock.Clock
	Orch     config.Orchestration
	Repo     domain.Repository
	Registry *gateway.Registry
	Webhooks webhookdomain.Service
	Metrics  *metrics.Metrics `optional:"true"`
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	genID    *snowflake.Node
	clock    clock.Clock
	repo     domain.Repository
	registry *gateway.Registry
	webhooks webhookdomain.Service
	metrics  *metrics.Metrics

	policy    retry.Policy
	timeout   time.Duration
	workers   int
	keepOK    time.Duration
	keepFatal time.Duration
}

func New(p Params) domain.Service {
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("payout.service"),
		genID:    p.GenID,
		clock:    p.Clock,
		repo:     p.Repo,
		registry: p.Registry,
		webhooks: p.Webhooks,
		metrics:  p.Metrics,
		policy: retry.Policy{
			BaseDelay:   p.Orch.PayoutBaseDelay,
			CapDelay:    p.Orch.PayoutCapDelay,
			MaxAttempts: p.Orch.PayoutMaxAttempts,
		},
		timeout:   p.Orch.PayoutTimeout,
		workers:   p.Orch.PayoutWorkers,
		keepOK:    p.Orch.SucceededRetention,
		keepFatal: p.Orch.FailedRetention,
	}
}

func (s *Service) Enqueue(ctx context.Context, req domain.EnqueueRequest) (snowflake.ID, error) {
	provider := strings.ToLower(strings.TrimSpace(req.Provider))
	if !s.registry.Exists(provider) {
		return 0, domain.ErrInvalidProvider
	}
	if req.Amount <= 0 {
		return 0, domain.ErrInvalidAmount
	}
	payee := strings.TrimSpace(req.PayeeIdentifier)
	if payee == "" {
		return 0, domain.ErrInvalidPayee
	}

	metadata := datatypes.JSONMap{}
	for k, v := range req.Metadata {
		metadata[k] = v
	}

	now := s.clock.Now()
	job := &domain.PayoutJob{
		ID:              s.genID.Generate(),
		MerchantID:      req.MerchantID,
		Provider:        provider,
		Amount:          req.Amount,
		Currency:        strings.ToUpper(strings.TrimSpace(req.Currency)),
		PayeeIdentifier: payee,
		Status:          domain.StatusPending,
		Metadata:        metadata,
		NextRetryAt:     &now,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.repo.Insert(ctx, s.db, job); err != nil {
		return 0, err
	}

	s.log.Info("payout enqueued",
		zap.String("job_id", job.ID.String()),
		zap.String("provider", provider),
		zap.Int64("amount", job.Amount),
	)
	return job.ID, nil
}

func (s *Service) Get(ctx context.Context, merchantID, id snowflake.ID) (*domain.PayoutJob, error) {
	job, err := s.repo.FindByID(ctx, s.db, merchantID, id)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, domain.ErrNotFound
	}
	return job, nil
}

func (s *Service) ListJobs(ctx context.Context, merchantID snowflake.ID, status string, limit int) ([]domain.PayoutJob, error) {
	filter, err := parseStatusFilter(status)
	if err != nil {
		return nil, err
	}
	if limit < 1 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	return s.repo.List(ctx, s.db, merchantID, filter, limit)
}

func (s *Service) ProcessDue(ctx context.Context, limit int) (int, error) {
	jobs, err := s.repo.ClaimDue(ctx, s.db, s.clock.Now(), limit)
	if err != nil {
		return 0, err
	}
	if len(jobs) == 0 {
		return 0, nil
	}

	workers := s.workers
	if workers > len(jobs) {
		workers = len(jobs)
	}

	jobCh := make(chan domain.PayoutJob)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range jobCh {
				s.dispatch(ctx, job)
			}
		}()
	}
	for _, job := range jobs {
		jobCh <- job
	}
	close(jobCh)
	wg.Wait()

	return len(jobs), nil
}

func (s *Service) dispatch(ctx context.Context, job domain.PayoutJob) {
	s.metrics.RecordPayoutAttempt()

	gw, err := s.registry.Get(job.Provider)
	if err != nil {
		s.fail(ctx, job, "unknown_provider: "+job.Provider)
		return
	}

	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	result, err := gw.SubmitPayout(callCtx, paymentdomain.PayoutRequest{
		JobID:           job.ID,
		MerchantID:      job.MerchantID,
		Amount:          job.Amount,
		Currency:        job.Currency,
		PayeeIdentifier: job.PayeeIdentifier,
		Metadata:        job.Metadata,
	})
	if err != nil {
		s.handleError(ctx, job, err)
		return
	}
	if result.Status == paymentdomain.StatusFailed {
		code := result.FailureCode
		if code == "" {
			code = "payout_rejected"
		}
		s.fail(ctx, job, code)
		return
	}

	now := s.clock.Now()
	if err := s.repo.MarkSucceeded(ctx, s.db, job.ID, result.ProviderReference, now); err != nil {
		if errors.Is(err, domain.ErrStaleClaim) {
			s.log.Warn("payout claim lost, dropping result", zap.String("job_id", job.ID.String()))
			return
		}
		s.log.Error("mark payout succeeded failed", zap.String("job_id", job.ID.String()), zap.Error(err))
		return
	}
	s.metrics.RecordPayoutTerminal(job.Provider, string(domain.StatusSucceeded))

	job.Status = domain.StatusSucceeded
	job.ExternalReference = result.ProviderReference
	job.CompletedAt = &now
	job.NextRetryAt = nil
	s.queueWebhook(ctx, job, EventPayoutSucceeded)

	s.log.Info("payout succeeded",
		zap.String("job_id", job.ID.String()),
		zap.String("provider", job.Provider),
		zap.String("external_reference", result.ProviderReference),
	)
}

// handleError decides between another attempt and a terminal failure.
// Permanent provider rejections do not burn the remaining attempts.
func (s *Service) handleError(ctx context.Context, job domain.PayoutJob, err error) {
	message := truncate(err.Error(), maxErrorLen)

	if gateway.ClassifyError(err) == retry.KindPermanent || s.policy.Exhausted(job.AttemptCount) {
		s.fail(ctx, job, message)
		return
	}

	nextRetryAt := s.clock.Now().Add(s.policy.Delay(job.AttemptCount))
	if reschedErr := s.repo.Reschedule(ctx, s.db, job.ID, message, nextRetryAt); reschedErr != nil {
		if errors.Is(reschedErr, domain.ErrStaleClaim) {
			s.log.Warn("payout claim lost, dropping result", zap.String("job_id", job.ID.String()))
			return
		}
		s.log.Error("reschedule payout failed", zap.String("job_id", job.ID.String()), zap.Error(reschedErr))
		return
	}
	s.log.Warn("payout attempt failed",
		zap.String("job_id", job.ID.String()),
		zap.String("provider", job.Provider),
		zap.Int("attempt", job.AttemptCount),
		zap.Time("next_retry_at", nextRetryAt),
		zap.Error(err),
	)
}

func (s *Service) fail(ctx context.Context, job domain.PayoutJob, lastError string) {
	now := s.clock.Now()
	if err := s.repo.MarkFailed(ctx, s.db, job.ID, truncate(lastError, maxErrorLen), now); err != nil {
		if errors.Is(err, domain.ErrStaleClaim) {
			s.log.Warn("payout claim lost, dropping result", zap.String("job_id", job.ID.String()))
			return
		}
		s.log.Error("mark payout failed failed", zap.String("job_id", job.ID.String()), zap.Error(err))
		return
	}
	s.metrics.RecordPayoutTerminal(job.Provider, string(domain.StatusFailed))

	job.Status = domain.StatusFailed
	job.LastError = truncate(lastError, maxErrorLen)
	job.CompletedAt = &now
	job.NextRetryAt = nil
	s.queueWebhook(ctx, job, EventPayoutFailed)

	s.log.Warn("payout failed permanently",
		zap.String("job_id", job.ID.String()),
		zap.String("provider", job.Provider),
		zap.Int("attempts", job.AttemptCount),
		zap.String("last_error", job.LastError),
	)
}

func (s *Service) queueWebhook(ctx context.Context, job domain.PayoutJob, eventType string) {
	if err := s.webhooks.Queue(ctx, job.MerchantID, eventType, job); err != nil {
		s.log.Error("queue webhook failed",
			zap.String("job_id", job.ID.String()),
			zap.String("event_type", eventType),
			zap.Error(err),
		)
	}
}

func (s *Service) ReapStuck(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := s.clock.Now().Add(-olderThan)
	reaped, err := s.repo.ReapStuck(ctx, s.db, cutoff)
	if err != nil {
		return 0, err
	}
	if reaped > 0 {
		s.log.Warn("reverted stuck payout jobs", zap.Int64("count", reaped))
	}
	return reaped, nil
}

func (s *Service) Prune(ctx context.Context) (int64, error) {
	now := s.clock.Now()
	succeeded, err := s.repo.DeleteTerminalBefore(ctx, s.db, domain.StatusSucceeded, now.Add(-s.keepOK))
	if err != nil {
		return 0, err
	}
	failed, err := s.repo.DeleteTerminalBefore(ctx, s.db, domain.StatusFailed, now.Add(-s.keepFatal))
	if err != nil {
		return succeeded, err
	}
	return succeeded + failed, nil
}

func parseStatusFilter(status string) (domain.Status, error) {
	switch domain.Status(strings.ToUpper(strings.TrimSpace(status))) {
	case "":
		return "", nil
	case domain.StatusPending:
		return domain.StatusPending, nil
	case domain.StatusProcessing:
		return domain.StatusProcessing, nil
	case domain.StatusSucceeded:
		return domain.StatusSucceeded, nil
	case domain.StatusFailed:
		return domain.StatusFailed, nil
	default:
		return "", domain.ErrInvalidStatus
	}
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
