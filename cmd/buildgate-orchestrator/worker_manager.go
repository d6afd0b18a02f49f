package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/buildgate/buildgate/pkg/admission"
	"github.com/buildgate/buildgate/pkg/eventbus"
	"github.com/buildgate/buildgate/pkg/events"
	"github.com/buildgate/buildgate/pkg/orchestrator"
	"github.com/buildgate/buildgate/pkg/persistence"
)

// WorkerManager consumes run admission events and drives admitted runs to a
// terminal state. Only the run holding its concurrency group's in-flight slot
// is executed; queued runs are picked up again when the slot holder finishes
// and re-announces them.
type WorkerManager struct {
	id           string
	logger       *slog.Logger
	orchestrator *orchestrator.Orchestrator
	evaluator    *admission.Evaluator
	persistence  persistence.Persistence
	eventBus     eventbus.EventBus
	janitor      *orchestrator.Janitor
}

func NewWorkerManager(
	id string,
	orch *orchestrator.Orchestrator,
	evaluator *admission.Evaluator,
	persist persistence.Persistence,
	eventBus eventbus.EventBus,
	maxQueueAge time.Duration,
	logger *slog.Logger,
) *WorkerManager {
	workerLogger := logger.With("module", "buildgate-orchestrator", "worker_id", id)

	return &WorkerManager{
		id:           id,
		logger:       workerLogger,
		orchestrator: orch,
		evaluator:    evaluator,
		persistence:  persist,
		eventBus:     eventBus,
		janitor:      orchestrator.NewJanitor(orch, maxQueueAge, workerLogger),
	}
}

func (w *WorkerManager) Start(ctx context.Context) error {
	w.logger.InfoContext(ctx, "Starting worker manager")

	err := w.eventBus.Handle(events.RunAdmittedEvent, w.handleRunAdmitted)
	if err != nil {
		return err
	}

	err = w.eventBus.Subscribe(ctx)
	if err != nil {
		w.logger.ErrorContext(ctx, "Failed to subscribe to event bus", "error", err)

		return err
	}

	err = w.janitor.Start(ctx)
	if err != nil {
		return err
	}

	w.logger.InfoContext(ctx, "Worker started successfully")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	<-sigChan
	w.logger.InfoContext(ctx, "Shutting down worker...")
	w.janitor.Stop()

	return nil
}

func (w *WorkerManager) handleRunAdmitted(ctx context.Context, event any) error {
	admittedEvent, ok := event.(*events.RunAdmitted)
	if !ok {
		w.logger.ErrorContext(ctx, "Invalid event type for RunAdmitted")

		return nil
	}

	logger := w.logger.With(
		"run_id", admittedEvent.RunID,
		"concurrency_key", admittedEvent.ConcurrencyKey,
		"event_id", admittedEvent.ID,
	)

	run, err := w.persistence.RunRepository().GetByID(ctx, admittedEvent.RunID)
	if err != nil {
		if persistence.IsRunNotFound(err) {
			logger.WarnContext(ctx, "Admitted run no longer exists")

			return nil
		}

		return err
	}

	holds, err := w.evaluator.Holds(ctx, run)
	if err != nil {
		return err
	}

	if !holds {
		logger.InfoContext(ctx, "Run queued behind in-flight run, waiting for promotion")

		return nil
	}

	logger.InfoContext(ctx, "Processing admitted run")

	err = w.orchestrator.ExecuteRun(ctx, run.ID)
	if err != nil {
		logger.ErrorContext(ctx, "Failed to execute run", "error", err)

		return err
	}

	return nil
}
