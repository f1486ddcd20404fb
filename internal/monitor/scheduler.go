package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/VictoriaMetrics/metrics"
	"github.com/robfig/cron/v3"

	"github.com/mr-karan/pactwatch/pkg/models"
)

// cronLogger adapts slog to cron's logger interface.
type cronLogger struct{ log *slog.Logger }

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.log.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.log.Error(msg, append(keysAndValues, "error", err)...)
}

// Start schedules the reconciliation and deadline passes. Passes run on the
// given context; cancelling it aborts in-flight passes.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cron != nil {
		return nil
	}
	if !e.cfg.Enabled {
		e.log.Info("monitoring disabled; scheduler will not start")
		return nil
	}

	logger := cronLogger{log: e.log}
	c := cron.New(cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)), cron.WithLogger(logger))

	if _, err := c.AddFunc(e.cfg.ReconcileSchedule, func() {
		e.scheduled(ctx, "reconcile", e.RunScheduledPass)
	}); err != nil {
		return fmt.Errorf("invalid reconcile schedule %q: %w", e.cfg.ReconcileSchedule, err)
	}
	if e.cfg.DeadlineSchedule != "" {
		if _, err := c.AddFunc(e.cfg.DeadlineSchedule, func() {
			e.scheduled(ctx, "deadline", e.RunDeadlinePass)
		}); err != nil {
			return fmt.Errorf("invalid deadline schedule %q: %w", e.cfg.DeadlineSchedule, err)
		}
	}

	c.Start()
	e.cron = c
	e.log.Info("monitoring scheduler started",
		"reconcile_schedule", e.cfg.ReconcileSchedule,
		"deadline_schedule", e.cfg.DeadlineSchedule,
		"workers", e.cfg.Workers)
	return nil
}

// Stop stops scheduling and waits for running passes to return.
func (e *Engine) Stop() {
	e.mu.Lock()
	c := e.cron
	e.cron = nil
	e.mu.Unlock()
	if c == nil {
		return
	}
	<-c.Stop().Done()
	e.log.Info("monitoring scheduler stopped")
}

// Running reports whether the scheduler is active.
func (e *Engine) Running() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.cron != nil
}

// Schedules returns the configured reconcile and deadline schedules.
func (e *Engine) Schedules() (reconcile, deadline string) {
	return e.cfg.ReconcileSchedule, e.cfg.DeadlineSchedule
}

// scheduled runs one pass under the pass timeout and, when configured, the
// cross-replica lease.
func (e *Engine) scheduled(ctx context.Context, name string, run func(context.Context) (*models.PassSummary, error)) {
	if ctx.Err() != nil {
		return
	}
	if e.cfg.PassTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.cfg.PassTimeout)
		defer cancel()
	}

	if e.lease != nil && e.cfg.Lease.Enabled {
		ttl := e.cfg.Lease.TTL
		if ttl <= 0 {
			ttl = e.cfg.PassTimeout
		}
		if ttl <= 0 {
			ttl = 15 * time.Minute
		}
		release, ok, err := e.lease.Acquire(ctx, name, ttl)
		if err != nil {
			// Alert uniqueness is still enforced by the store.
			e.log.Warn("pass lease unavailable, running without it", "pass", name, "error", err)
		} else if !ok {
			metrics.GetOrCreateCounter(fmt.Sprintf(`pactwatch_pass_lease_skipped_total{pass=%q}`, name)).Inc()
			e.log.Debug("pass lease held elsewhere, skipping", "pass", name)
			return
		} else {
			defer release()
		}
	}

	if _, err := run(ctx); err != nil {
		e.log.Error("scheduled pass failed", "pass", name, "error", err)
	}
}
