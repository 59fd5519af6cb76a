package background

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/BradenHooton/yoked/internal/config"
)

const defaultJobTimeout = 30 * time.Second

// Job is one periodic maintenance task. Run reports how many rows it
// affected.
type Job struct {
	Name     string
	Interval time.Duration
	Timeout  time.Duration
	Run      func(ctx context.Context) (int64, error)
}

// Scheduler runs each job on its own ticker. A job never overlaps itself.
type Scheduler struct {
	jobs     []Job
	logger   *slog.Logger
	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewScheduler creates a scheduler. Jobs with a non-positive interval are
// disabled.
func NewScheduler(logger *slog.Logger, jobs ...Job) *Scheduler {
	enabled := make([]Job, 0, len(jobs))
	for _, job := range jobs {
		if job.Interval <= 0 {
			logger.Info("scheduled job disabled", slog.String("job", job.Name))
			continue
		}
		if job.Timeout <= 0 {
			job.Timeout = defaultJobTimeout
		}
		enabled = append(enabled, job)
	}

	return &Scheduler{
		jobs:   enabled,
		logger: logger,
		stopCh: make(chan struct{}),
	}
}

// Start runs every job once immediately and then on its interval. It blocks
// until ctx is cancelled or Stop is called.
func (s *Scheduler) Start(ctx context.Context) error {
	var wg sync.WaitGroup
	for _, job := range s.jobs {
		wg.Add(1)
		go func(job Job) {
			defer wg.Done()
			s.loop(ctx, job)
		}(job)
	}

	wg.Wait()
	s.logger.Info("scheduler stopped")
	return nil
}

func (s *Scheduler) loop(ctx context.Context, job Job) {
	ticker := time.NewTicker(job.Interval)
	defer ticker.Stop()

	s.runJob(ctx, job)

	for {
		select {
		case <-ticker.C:
			s.runJob(ctx, job)
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (s *Scheduler) runJob(ctx context.Context, job Job) {
	jobCtx, cancel := context.WithTimeout(ctx, job.Timeout)
	defer cancel()

	start := time.Now()
	affected, err := job.Run(jobCtx)
	if err != nil {
		s.logger.Error("scheduled job failed",
			slog.String("job", job.Name),
			slog.Any("error", err),
		)
		return
	}

	if affected > 0 {
		s.logger.Info("scheduled job completed",
			slog.String("job", job.Name),
			slog.Int64("rows_affected", affected),
			slog.String("duration", time.Since(start).String()),
		)
	}
}

// Stop signals the scheduler to stop. Safe to call more than once.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
}

type SessionExpirer interface {
	DeleteExpired(ctx context.Context) (int64, error)
}

type PaymentMaintainer interface {
	ExpirePending(ctx context.Context) (int, error)
	LapseExpired(ctx context.Context) (int, error)
	ReconcilePending(ctx context.Context) (int, error)
}

type WebhookPruner interface {
	PruneProcessed(ctx context.Context, retention time.Duration) (int64, error)
}

func counted(fn func(context.Context) (int, error)) func(context.Context) (int64, error) {
	return func(ctx context.Context) (int64, error) {
		n, err := fn(ctx)
		return int64(n), err
	}
}

// DefaultJobs returns the maintenance jobs of the API process.
func DefaultJobs(cfg config.JobsConfig, sessions SessionExpirer, payments PaymentMaintainer, webhooks WebhookPruner) []Job {
	return []Job{
		{
			Name:     "expire_sessions",
			Interval: cfg.SessionCleanupInterval,
			Run:      sessions.DeleteExpired,
		},
		{
			Name:     "expire_pending_payments",
			Interval: cfg.PendingPaymentInterval,
			Run:      counted(payments.ExpirePending),
		},
		{
			Name:     "lapse_subscriptions",
			Interval: cfg.SubscriptionLapseInterval,
			Run:      counted(payments.LapseExpired),
		},
		{
			// Each pending payment costs a Stripe round trip.
			Name:     "reconcile_stripe",
			Interval: cfg.StripeReconcileInterval,
			Timeout:  2 * time.Minute,
			Run:      counted(payments.ReconcilePending),
		},
		{
			Name:     "prune_webhook_events",
			Interval: cfg.WebhookPruneInterval,
			Run: func(ctx context.Context) (int64, error) {
				return webhooks.PruneProcessed(ctx, cfg.WebhookRetention)
			},
		},
	}
}
