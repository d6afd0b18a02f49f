package orchestrator

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/buildgate/buildgate/pkg/persistence"
)

// Janitor periodically cancels runs that have sat in the queue longer than
// the configured age and frees their concurrency slots. Stale queued runs
// accumulate when a worker dies between admission and execution.
type Janitor struct {
	orchestrator *Orchestrator
	maxQueueAge  time.Duration
	cron         *cron.Cron
	logger       *slog.Logger
}

// NewJanitor creates a janitor sweeping runs queued longer than maxQueueAge.
func NewJanitor(orchestrator *Orchestrator, maxQueueAge time.Duration, logger *slog.Logger) *Janitor {
	return &Janitor{
		orchestrator: orchestrator,
		maxQueueAge:  maxQueueAge,
		cron:         cron.New(),
		logger:       logger.With("module", "janitor"),
	}
}

// Start schedules the sweep every five minutes and runs one immediately.
func (j *Janitor) Start(ctx context.Context) error {
	_, err := j.cron.AddFunc("@every 5m", func() {
		j.Sweep(ctx)
	})
	if err != nil {
		return err
	}

	j.cron.Start()
	j.Sweep(ctx)

	return nil
}

// Stop halts the schedule and waits for a running sweep to finish.
func (j *Janitor) Stop() {
	stopCtx := j.cron.Stop()
	<-stopCtx.Done()
}

// Sweep cancels every run queued before the cutoff.
func (j *Janitor) Sweep(ctx context.Context) {
	cutoff := time.Now().UTC().Add(-j.maxQueueAge)

	stale, err := j.orchestrator.persistence.RunRepository().ListQueuedBefore(ctx, cutoff)
	if err != nil {
		j.logger.ErrorContext(ctx, "Failed to list stale queued runs", "error", err)

		return
	}

	for _, run := range stale {
		err = j.orchestrator.persistence.RunRepository().MarkCancelled(ctx, run.ID, "queued past deadline")
		if err != nil && !persistence.IsRunNotFound(err) {
			j.logger.ErrorContext(ctx, "Failed to cancel stale run", "run_id", run.ID, "error", err)

			continue
		}

		err = j.orchestrator.evaluator.Evict(ctx, run)
		if err != nil {
			j.logger.ErrorContext(ctx, "Failed to evict stale run", "run_id", run.ID, "error", err)
		}

		j.logger.InfoContext(ctx, "Cancelled stale queued run",
			"run_id", run.ID,
			"queued_at", run.CreatedAt,
		)
	}
}
