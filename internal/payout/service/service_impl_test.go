package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/boohpay/boohpay/internal/clock"
	"github.com/boohpay/boohpay/internal/config"
	paymentdomain "github.com/boohpay/boohpay/internal/payment/domain"
	"github.com/boohpay/boohpay/internal/payment/gateway"
	"github.com/boohpay/boohpay/internal/payout/domain"
	"github.com/boohpay/boohpay/internal/payout/repository"
	webhookdomain "github.com/boohpay/boohpay/internal/webhook/domain"
	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:payout_svc_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)

	// sqlite has no FOR UPDATE; strip the locking clause from the claim query.
	strip := func(d *gorm.DB) {
		if d.Statement == nil || d.Statement.SQL.Len() == 0 {
			return
		}
		sql := d.Statement.SQL.String()
		if strings.Contains(sql, "FOR UPDATE SKIP LOCKED") {
			d.Statement.SQL.Reset()
			d.Statement.SQL.WriteString(strings.ReplaceAll(sql, "FOR UPDATE SKIP LOCKED", ""))
		}
	}
	require.NoError(t, db.Callback().Query().Before("gorm:query").Register("sqlite_skip_locked", strip))
	require.NoError(t, db.Callback().Row().Before("gorm:row").Register("sqlite_skip_locked_row", strip))

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.Exec(`CREATE TABLE payout_jobs (
		id BIGINT PRIMARY KEY,
		merchant_id BIGINT NOT NULL,
		provider TEXT NOT NULL,
		amount BIGINT NOT NULL,
		currency TEXT NOT NULL,
		payee_identifier TEXT NOT NULL,
		status TEXT NOT NULL,
		attempt_count INTEGER NOT NULL DEFAULT 0,
		external_reference TEXT,
		metadata TEXT,
		last_error TEXT,
		next_retry_at TIMESTAMP,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL,
		completed_at TIMESTAMP
	)`).Error)

	return db
}

type scriptedGateway struct {
	mu    sync.Mutex
	name  string
	calls int
	fn    func(call int) (paymentdomain.GatewayResult, error)
}

func (g *scriptedGateway) Name() string { return g.name }

func (g *scriptedGateway) SubmitPayment(context.Context, paymentdomain.PaymentRequest) (paymentdomain.GatewayResult, error) {
	return paymentdomain.GatewayResult{}, nil
}

func (g *scriptedGateway) SubmitPayout(context.Context, paymentdomain.PayoutRequest) (paymentdomain.GatewayResult, error) {
	g.mu.Lock()
	g.calls++
	call := g.calls
	g.mu.Unlock()
	return g.fn(call)
}

func (g *scriptedGateway) callCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

type recordingWebhooks struct {
	mu     sync.Mutex
	events []string
}

func (r *recordingWebhooks) Queue(_ context.Context, _ snowflake.ID, eventType string, _ any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, eventType)
	return nil
}

func (r *recordingWebhooks) ProcessPending(context.Context, int) (int, error) { return 0, nil }

func (r *recordingWebhooks) ListDeliveries(context.Context, snowflake.ID, string, int) ([]webhookdomain.WebhookDelivery, error) {
	return nil, nil
}

func (r *recordingWebhooks) Redeliver(context.Context, snowflake.ID, snowflake.ID) (*webhookdomain.WebhookDelivery, error) {
	return nil, webhookdomain.ErrNotFound
}

func (r *recordingWebhooks) ReapStuck(context.Context, time.Duration) (int64, error) { return 0, nil }

func (r *recordingWebhooks) eventTypes() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

func newTestService(t *testing.T, db *gorm.DB, clk clock.Clock, gw paymentdomain.Gateway) (domain.Service, *recordingWebhooks) {
	t.Helper()

	node, err := snowflake.NewNode(10)
	require.NoError(t, err)

	webhooks := &recordingWebhooks{}
	orch := config.DefaultOrchestration()
	orch.PayoutWorkers = 1

	svc := New(Params{
		DB:       db,
		Log:      zap.NewNop(),
		GenID:    node,
		Clock:    clk,
		Orch:     orch,
		Repo:     repository.Provide(),
		Registry: gateway.NewRegistry(gw),
		Webhooks: webhooks,
	})
	return svc, webhooks
}

func TestEnqueueValidation(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	clk := clock.NewFakeClock(time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC))
	gw := &scriptedGateway{name: "stripe", fn: func(int) (paymentdomain.GatewayResult, error) {
		return paymentdomain.GatewayResult{Status: paymentdomain.StatusSucceeded}, nil
	}}
	svc, _ := newTestService(t, db, clk, gw)

	_, err := svc.Enqueue(ctx, domain.EnqueueRequest{Provider: "wise", Amount: 100, PayeeIdentifier: "acct_1"})
	require.ErrorIs(t, err, domain.ErrInvalidProvider)

	_, err = svc.Enqueue(ctx, domain.EnqueueRequest{Provider: "stripe", Amount: 0, PayeeIdentifier: "acct_1"})
	require.ErrorIs(t, err, domain.ErrInvalidAmount)

	_, err = svc.Enqueue(ctx, domain.EnqueueRequest{Provider: "stripe", Amount: 100, PayeeIdentifier: "  "})
	require.ErrorIs(t, err, domain.ErrInvalidPayee)
}

func TestProcessDueDispatchesAndSucceeds(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	clk := clock.NewFakeClock(time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC))
	gw := &scriptedGateway{name: "stripe", fn: func(int) (paymentdomain.GatewayResult, error) {
		return paymentdomain.GatewayResult{Status: paymentdomain.StatusSucceeded, ProviderReference: "po_1"}, nil
	}}
	svc, webhooks := newTestService(t, db, clk, gw)

	merchantID := snowflake.ID(42)
	id, err := svc.Enqueue(ctx, domain.EnqueueRequest{
		MerchantID:      merchantID,
		Provider:        "Stripe",
		Amount:          2500,
		Currency:        "usd",
		PayeeIdentifier: "acct_1",
		Metadata:        map[string]any{"reason": "refund"},
	})
	require.NoError(t, err)

	claimed, err := svc.ProcessDue(ctx, 10)
	require.NoError(t, err)
	require.Equal(t, 1, claimed)

	job, err := svc.Get(ctx, merchantID, id)
	require.NoError(t, err)
	require.Equal(t, domain.StatusSucceeded, job.Status)
	require.Equal(t, "stripe", job.Provider)
	require.Equal(t, "USD", job.Currency)
	require.Equal(t, "po_1", job.ExternalReference)
	require.Equal(t, 1, job.AttemptCount)
	require.Nil(t, job.NextRetryAt)
	require.NotNil(t, job.CompletedAt)

	require.Equal(t, []string{"payout.succeeded"}, webhooks.eventTypes())

	// Terminal jobs are never reclaimed.
	claimed, err = svc.ProcessDue(ctx, 10)
	require.NoError(t, err)
	require.Zero(t, claimed)
}

func TestTransientFailureBacksOffUntilExhausted(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	clk := clock.NewFakeClock(time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC))
	gw := &scriptedGateway{name: "stripe", fn: func(int) (paymentdomain.GatewayResult, error) {
		return paymentdomain.GatewayResult{}, &gateway.ProviderError{Provider: "stripe", StatusCode: 502, Message: "bad gateway"}
	}}
	svc, webhooks := newTestService(t, db, clk, gw)

	merchantID := snowflake.ID(42)
	id, err := svc.Enqueue(ctx, domain.EnqueueRequest{
		MerchantID:      merchantID,
		Provider:        "stripe",
		Amount:          2500,
		Currency:        "USD",
		PayeeIdentifier: "acct_1",
	})
	require.NoError(t, err)

	wantDelays := []time.Duration{5 * time.Second, 10 * time.Second, 20 * time.Second, 40 * time.Second}
	for i, want := range wantDelays {
		claimed, err := svc.ProcessDue(ctx, 10)
		require.NoError(t, err)
		require.Equal(t, 1, claimed, "attempt %d should be claimed", i+1)

		job, err := svc.Get(ctx, merchantID, id)
		require.NoError(t, err)
		require.Equal(t, domain.StatusPending, job.Status)
		require.Equal(t, i+1, job.AttemptCount)
		require.NotNil(t, job.NextRetryAt)
		require.WithinDuration(t, clk.Now().Add(want), *job.NextRetryAt, time.Second)

		clk.Advance(2 * time.Minute)
	}

	// The fifth attempt hits the ceiling.
	claimed, err := svc.ProcessDue(ctx, 10)
	require.NoError(t, err)
	require.Equal(t, 1, claimed)

	job, err := svc.Get(ctx, merchantID, id)
	require.NoError(t, err)
	require.Equal(t, domain.StatusFailed, job.Status)
	require.Equal(t, 5, job.AttemptCount)
	require.Nil(t, job.NextRetryAt)
	require.NotNil(t, job.CompletedAt)
	require.Contains(t, job.LastError, "bad gateway")

	require.Equal(t, 5, gw.callCount())
	require.Equal(t, []string{"payout.failed"}, webhooks.eventTypes())

	clk.Advance(24 * time.Hour)
	claimed, err = svc.ProcessDue(ctx, 10)
	require.NoError(t, err)
	require.Zero(t, claimed)
}

func TestPermanentRejectionShortCircuits(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	clk := clock.NewFakeClock(time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC))
	gw := &scriptedGateway{name: "moneroo", fn: func(int) (paymentdomain.GatewayResult, error) {
		return paymentdomain.GatewayResult{}, &gateway.ProviderError{Provider: "moneroo", StatusCode: 400, Code: "invalid_account", Message: "unknown msisdn"}
	}}
	svc, webhooks := newTestService(t, db, clk, gw)

	merchantID := snowflake.ID(42)
	id, err := svc.Enqueue(ctx, domain.EnqueueRequest{
		MerchantID:      merchantID,
		Provider:        "moneroo",
		Amount:          1000,
		Currency:        "XOF",
		PayeeIdentifier: "+22501020304",
	})
	require.NoError(t, err)

	claimed, err := svc.ProcessDue(ctx, 10)
	require.NoError(t, err)
	require.Equal(t, 1, claimed)

	job, err := svc.Get(ctx, merchantID, id)
	require.NoError(t, err)
	require.Equal(t, domain.StatusFailed, job.Status)
	require.Equal(t, 1, job.AttemptCount)
	require.Contains(t, job.LastError, "invalid_account")
	require.Equal(t, 1, gw.callCount())
	require.Equal(t, []string{"payout.failed"}, webhooks.eventTypes())
}

func TestRejectedResultMarksFailed(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	clk := clock.NewFakeClock(time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC))
	gw := &scriptedGateway{name: "stripe", fn: func(int) (paymentdomain.GatewayResult, error) {
		return paymentdomain.GatewayResult{Status: paymentdomain.StatusFailed, FailureCode: "insufficient_funds"}, nil
	}}
	svc, _ := newTestService(t, db, clk, gw)

	merchantID := snowflake.ID(42)
	id, err := svc.Enqueue(ctx, domain.EnqueueRequest{
		MerchantID:      merchantID,
		Provider:        "stripe",
		Amount:          500,
		Currency:        "USD",
		PayeeIdentifier: "acct_1",
	})
	require.NoError(t, err)

	_, err = svc.ProcessDue(ctx, 10)
	require.NoError(t, err)

	job, err := svc.Get(ctx, merchantID, id)
	require.NoError(t, err)
	require.Equal(t, domain.StatusFailed, job.Status)
	require.Equal(t, "insufficient_funds", job.LastError)
}

func TestReapStuckRevertsProcessingJobs(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	clk := clock.NewFakeClock(time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC))
	gw := &scriptedGateway{name: "stripe", fn: func(int) (paymentdomain.GatewayResult, error) {
		return paymentdomain.GatewayResult{Status: paymentdomain.StatusSucceeded, ProviderReference: "po_1"}, nil
	}}
	svc, _ := newTestService(t, db, clk, gw)

	merchantID := snowflake.ID(42)
	stale := clk.Now().Add(-30 * time.Minute)
	require.NoError(t, db.Exec(
		`INSERT INTO payout_jobs
		 (id, merchant_id, provider, amount, currency, payee_identifier, status, attempt_count,
		  external_reference, metadata, last_error, next_retry_at, created_at, updated_at, completed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, '', '{}', '', NULL, ?, ?, NULL)`,
		int64(9001), merchantID, "stripe", 500, "USD", "acct_1", domain.StatusProcessing, 1, stale, stale,
	).Error)

	reaped, err := svc.ReapStuck(ctx, 10*time.Minute)
	require.NoError(t, err)
	require.Equal(t, int64(1), reaped)

	job, err := svc.Get(ctx, merchantID, snowflake.ID(9001))
	require.NoError(t, err)
	require.Equal(t, domain.StatusPending, job.Status)

	// The reverted job is immediately claimable again.
	claimed, err := svc.ProcessDue(ctx, 10)
	require.NoError(t, err)
	require.Equal(t, 1, claimed)
}

func TestSettleAfterReapDoesNotResurrectJob(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	clk := clock.NewFakeClock(time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC))
	gw := &scriptedGateway{name: "stripe", fn: func(int) (paymentdomain.GatewayResult, error) {
		return paymentdomain.GatewayResult{Status: paymentdomain.StatusSucceeded}, nil
	}}
	svc, webhooks := newTestService(t, db, clk, gw)
	repo := repository.Provide()

	merchantID := snowflake.ID(42)
	id, err := svc.Enqueue(ctx, domain.EnqueueRequest{
		MerchantID:      merchantID,
		Provider:        "stripe",
		Amount:          2500,
		Currency:        "USD",
		PayeeIdentifier: "acct_1",
	})
	require.NoError(t, err)

	// The first worker claims the job, then stalls past the reap deadline.
	stalled, err := repo.ClaimDue(ctx, db, clk.Now(), 10)
	require.NoError(t, err)
	require.Len(t, stalled, 1)

	clk.Advance(30 * time.Minute)
	reaped, err := svc.ReapStuck(ctx, 10*time.Minute)
	require.NoError(t, err)
	require.Equal(t, int64(1), reaped)

	// A second worker picks up the reverted job and settles it.
	reclaimed, err := repo.ClaimDue(ctx, db, clk.Now(), 10)
	require.NoError(t, err)
	require.Len(t, reclaimed, 1)
	require.NoError(t, repo.MarkSucceeded(ctx, db, id, "po_real", clk.Now()))

	// The stalled worker's late writes must not reopen the settled row.
	require.ErrorIs(t, repo.Reschedule(ctx, db, id, "timeout", clk.Now().Add(5*time.Second)), domain.ErrStaleClaim)
	require.ErrorIs(t, repo.MarkFailed(ctx, db, id, "timeout", clk.Now()), domain.ErrStaleClaim)
	require.ErrorIs(t, repo.MarkSucceeded(ctx, db, id, "po_dupe", clk.Now()), domain.ErrStaleClaim)

	// And its error handling drops the result without emitting a webhook.
	impl := svc.(*Service)
	impl.handleError(ctx, stalled[0], &gateway.ProviderError{Provider: "stripe", StatusCode: 503, Message: "unavailable"})

	job, err := svc.Get(ctx, merchantID, id)
	require.NoError(t, err)
	require.Equal(t, domain.StatusSucceeded, job.Status)
	require.Equal(t, "po_real", job.ExternalReference)
	require.Empty(t, webhooks.eventTypes())
}

func TestListJobsFiltersByStatus(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	clk := clock.NewFakeClock(time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC))
	gw := &scriptedGateway{name: "stripe", fn: func(int) (paymentdomain.GatewayResult, error) {
		return paymentdomain.GatewayResult{Status: paymentdomain.StatusSucceeded, ProviderReference: "po_1"}, nil
	}}
	svc, _ := newTestService(t, db, clk, gw)

	merchantID := snowflake.ID(42)
	settled, err := svc.Enqueue(ctx, domain.EnqueueRequest{
		MerchantID: merchantID, Provider: "stripe", Amount: 100, Currency: "USD", PayeeIdentifier: "acct_1",
	})
	require.NoError(t, err)
	_, err = svc.ProcessDue(ctx, 10)
	require.NoError(t, err)

	clk.Advance(time.Minute)
	open, err := svc.Enqueue(ctx, domain.EnqueueRequest{
		MerchantID: merchantID, Provider: "stripe", Amount: 200, Currency: "USD", PayeeIdentifier: "acct_2",
	})
	require.NoError(t, err)

	jobs, err := svc.ListJobs(ctx, merchantID, "", 10)
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	// Newest first.
	require.Equal(t, open, jobs[0].ID)
	require.Equal(t, settled, jobs[1].ID)

	jobs, err = svc.ListJobs(ctx, merchantID, "succeeded", 10)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	require.Equal(t, settled, jobs[0].ID)

	jobs, err = svc.ListJobs(ctx, merchantID, "PENDING", 10)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	require.Equal(t, open, jobs[0].ID)

	_, err = svc.ListJobs(ctx, merchantID, "BOGUS", 10)
	require.ErrorIs(t, err, domain.ErrInvalidStatus)

	// Listing is scoped to the merchant.
	jobs, err = svc.ListJobs(ctx, snowflake.ID(43), "", 10)
	require.NoError(t, err)
	require.Empty(t, jobs)
}

func TestPruneDeletesTerminalJobsPastRetention(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	clk := clock.NewFakeClock(time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC))
	gw := &scriptedGateway{name: "stripe", fn: func(int) (paymentdomain.GatewayResult, error) {
		return paymentdomain.GatewayResult{Status: paymentdomain.StatusSucceeded}, nil
	}}
	svc, _ := newTestService(t, db, clk, gw)

	merchantID := snowflake.ID(42)
	insert := func(id int64, status domain.Status, completedAt time.Time) {
		require.NoError(t, db.Exec(
			`INSERT INTO payout_jobs
			 (id, merchant_id, provider, amount, currency, payee_identifier, status, attempt_count,
			  external_reference, metadata, last_error, next_retry_at, created_at, updated_at, completed_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, '', '{}', '', NULL, ?, ?, ?)`,
			id, merchantID, "stripe", 500, "USD", "acct_1", status, 1, completedAt, completedAt, completedAt,
		).Error)
	}

	now := clk.Now()
	insert(1, domain.StatusSucceeded, now.Add(-48*time.Hour))  // past 24h retention
	insert(2, domain.StatusFailed, now.Add(-200*time.Hour))    // past 168h retention
	insert(3, domain.StatusSucceeded, now.Add(-1*time.Hour))   // still retained
	insert(4, domain.StatusFailed, now.Add(-100*time.Hour))    // still retained

	pruned, err := svc.Prune(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(2), pruned)

	_, err = svc.Get(ctx, merchantID, snowflake.ID(1))
	require.ErrorIs(t, err, domain.ErrNotFound)

	job, err := svc.Get(ctx, merchantID, snowflake.ID(3))
	require.NoError(t, err)
	require.Equal(t, domain.StatusSucceeded, job.Status)
}
