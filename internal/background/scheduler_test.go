package background

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/BradenHooton/yoked/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestScheduler_RunsImmediatelyAndOnInterval(t *testing.T) {
	var runs atomic.Int32
	s := NewScheduler(discardLogger(), Job{
		Name:     "count",
		Interval: 10 * time.Millisecond,
		Run: func(ctx context.Context) (int64, error) {
			runs.Add(1)
			return 1, nil
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Start(ctx) }()

	require.Eventually(t, func() bool { return runs.Load() >= 3 }, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop after cancel")
	}
}

func TestScheduler_FailingJobKeepsRunning(t *testing.T) {
	var runs atomic.Int32
	s := NewScheduler(discardLogger(), Job{
		Name:     "flaky",
		Interval: 5 * time.Millisecond,
		Run: func(ctx context.Context) (int64, error) {
			runs.Add(1)
			return 0, errors.New("db unavailable")
		},
	})

	done := make(chan error, 1)
	go func() { done <- s.Start(context.Background()) }()

	require.Eventually(t, func() bool { return runs.Load() >= 2 }, time.Second, 5*time.Millisecond)
	s.Stop()
	s.Stop()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop")
	}
}

func TestScheduler_AppliesTimeout(t *testing.T) {
	deadlineSeen := make(chan time.Duration, 1)
	s := NewScheduler(discardLogger(), Job{
		Name:     "bounded",
		Interval: time.Hour,
		Run: func(ctx context.Context) (int64, error) {
			deadline, ok := ctx.Deadline()
			assert.True(t, ok)
			select {
			case deadlineSeen <- time.Until(deadline):
			default:
			}
			return 0, nil
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Start(ctx)

	select {
	case remaining := <-deadlineSeen:
		assert.LessOrEqual(t, remaining, defaultJobTimeout)
		assert.Greater(t, remaining, defaultJobTimeout-time.Second)
	case <-time.After(time.Second):
		t.Fatal("job did not run")
	}
}

func TestNewScheduler_SkipsDisabledJobs(t *testing.T) {
	s := NewScheduler(discardLogger(),
		Job{Name: "off", Interval: 0, Run: func(ctx context.Context) (int64, error) { return 0, nil }},
		Job{Name: "on", Interval: time.Minute, Run: func(ctx context.Context) (int64, error) { return 0, nil }},
	)

	require.Len(t, s.jobs, 1)
	assert.Equal(t, "on", s.jobs[0].Name)
	assert.Equal(t, defaultJobTimeout, s.jobs[0].Timeout)
}

type fakeMaintenance struct {
	calls     []string
	retention time.Duration
}

func (f *fakeMaintenance) DeleteExpired(ctx context.Context) (int64, error) {
	f.calls = append(f.calls, "sessions")
	return 4, nil
}

func (f *fakeMaintenance) ExpirePending(ctx context.Context) (int, error) {
	f.calls = append(f.calls, "expire")
	return 2, nil
}

func (f *fakeMaintenance) LapseExpired(ctx context.Context) (int, error) {
	f.calls = append(f.calls, "lapse")
	return 1, nil
}

func (f *fakeMaintenance) ReconcilePending(ctx context.Context) (int, error) {
	f.calls = append(f.calls, "reconcile")
	return 3, nil
}

func (f *fakeMaintenance) PruneProcessed(ctx context.Context, retention time.Duration) (int64, error) {
	f.calls = append(f.calls, "prune")
	f.retention = retention
	return 5, nil
}

func TestDefaultJobs(t *testing.T) {
	cfg := config.JobsConfig{
		SessionCleanupInterval:    time.Hour,
		PendingPaymentInterval:    time.Hour,
		SubscriptionLapseInterval: 24 * time.Hour,
		StripeReconcileInterval:   2 * time.Hour,
		WebhookPruneInterval:      24 * time.Hour,
		WebhookRetention:          30 * 24 * time.Hour,
	}
	fake := &fakeMaintenance{}

	jobs := DefaultJobs(cfg, fake, fake, fake)

	names := make([]string, 0, len(jobs))
	var total int64
	for _, job := range jobs {
		names = append(names, job.Name)
		n, err := job.Run(context.Background())
		require.NoError(t, err)
		total += n
	}

	assert.Equal(t, []string{"expire_sessions", "expire_pending_payments", "lapse_subscriptions", "reconcile_stripe", "prune_webhook_events"}, names)
	assert.Equal(t, []string{"sessions", "expire", "lapse", "reconcile", "prune"}, fake.calls)
	assert.Equal(t, int64(15), total)
	assert.Equal(t, 30*24*time.Hour, fake.retention)
	assert.Equal(t, 2*time.Minute, jobs[3].Timeout)
}
