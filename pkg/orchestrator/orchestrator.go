// Package orchestrator coordinates admitted runs end to end: matrix
// expansion, DAG scheduling, step dispatch, failure propagation, and gate
// evaluation. Decisions are made at node admission and node completion time;
// all actual work happens inside opaque steps.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/buildgate/buildgate/pkg/admission"
	"github.com/buildgate/buildgate/pkg/dag"
	"github.com/buildgate/buildgate/pkg/eventbus"
	"github.com/buildgate/buildgate/pkg/events"
	"github.com/buildgate/buildgate/pkg/gate"
	"github.com/buildgate/buildgate/pkg/imageref"
	"github.com/buildgate/buildgate/pkg/models"
	"github.com/buildgate/buildgate/pkg/otelhelper"
	"github.com/buildgate/buildgate/pkg/persistence"
	"github.com/buildgate/buildgate/pkg/protocol"
	"github.com/buildgate/buildgate/pkg/registry"
)

// Orchestrator executes workflow runs.
type Orchestrator struct {
	workerID    string
	persistence persistence.Persistence
	eventBus    eventbus.EventBus
	registry    *registry.Registry
	evaluator   *admission.Evaluator
	tracer      trace.Tracer
	logger      *slog.Logger
}

// New creates an orchestrator.
func New(
	workerID string,
	persist persistence.Persistence,
	eventBus eventbus.EventBus,
	stepRegistry *registry.Registry,
	evaluator *admission.Evaluator,
	tracer trace.Tracer,
	logger *slog.Logger,
) *Orchestrator {
	return &Orchestrator{
		workerID:    workerID,
		persistence: persist,
		eventBus:    eventBus,
		registry:    stepRegistry,
		evaluator:   evaluator,
		tracer:      tracer,
		logger:      logger.With("module", "orchestrator", "worker_id", workerID),
	}
}

// Submit evaluates a run for admission. An admitted run is persisted as
// queued and announced on the bus; a run superseded by this admission is
// cancelled. Rejected runs are not persisted.
func (o *Orchestrator) Submit(ctx context.Context, run *models.WorkflowRun) (admission.Decision, error) {
	decision, err := o.evaluator.Admit(ctx, run)
	if err != nil {
		return admission.Decision{}, err
	}

	if !decision.Admitted {
		return decision, nil
	}

	err = o.persistence.RunRepository().Save(ctx, run)
	if err != nil {
		return admission.Decision{}, fmt.Errorf("failed to persist run %s: %w", run.ID, err)
	}

	if decision.Superseded != "" {
		err = o.supersede(ctx, decision.Superseded, run.ID, run.ConcurrencyKey())
		if err != nil {
			return admission.Decision{}, err
		}
	}

	event := events.RunAdmitted{
		BaseEvent:      events.NewBaseEvent(events.RunAdmittedEvent, run.ID),
		WorkflowName:   run.WorkflowName,
		ConcurrencyKey: run.ConcurrencyKey(),
		Context:        run.Context,
	}
	event.WorkerID = o.workerID

	err = o.eventBus.Publish(ctx, run.ID, event)
	if err != nil {
		return admission.Decision{}, fmt.Errorf("failed to publish admission of run %s: %w", run.ID, err)
	}

	return decision, nil
}

func (o *Orchestrator) supersede(ctx context.Context, supersededID, newRunID, key string) error {
	err := o.persistence.RunRepository().MarkCancelled(ctx, supersededID, "superseded by run "+newRunID)
	if err != nil && !persistence.IsRunNotFound(err) {
		return fmt.Errorf("failed to cancel superseded run %s: %w", supersededID, err)
	}

	event := events.RunSuperseded{
		BaseEvent:      events.NewBaseEvent(events.RunSupersededEvent, supersededID),
		SupersededBy:   newRunID,
		ConcurrencyKey: key,
	}
	event.WorkerID = o.workerID

	return o.eventBus.Publish(ctx, supersededID, event)
}

// ExecuteRun runs an admitted run to a terminal state: walks the DAG,
// dispatches ready jobs, records terminal statuses, propagates skips, and
// evaluates the gate once every gate input is terminal.
func (o *Orchestrator) ExecuteRun(ctx context.Context, runID string) error {
	ctx, span := otelhelper.StartSpan(ctx, o.tracer, "orchestrator.execute_run",
		attribute.String(otelhelper.RunIDKey, runID),
		attribute.String(otelhelper.WorkerIDKey, o.workerID),
	)
	defer span.End()

	run, err := o.persistence.RunRepository().GetByID(ctx, runID)
	if err != nil {
		otelhelper.SetError(span, err)

		return err
	}

	if run.Status.IsTerminal() {
		o.logger.InfoContext(ctx, "Run already terminal, nothing to execute", "run_id", runID, "status", run.Status)

		return nil
	}

	workflow, err := o.persistence.WorkflowRepository().GetByName(ctx, run.WorkflowName)
	if err != nil {
		otelhelper.SetError(span, err)

		return err
	}

	graph, err := dag.Build(workflow)
	if err != nil {
		otelhelper.SetError(span, err)

		return fmt.Errorf("failed to build graph for run %s: %w", runID, err)
	}

	logger := o.logger.With("run_id", run.ID, "workflow", workflow.Name)
	logger.InfoContext(ctx, "Starting run execution")

	now := time.Now().UTC()
	run.Status = models.RunStatusInProgress
	run.StartedAt = &now

	err = o.persistence.RunRepository().Save(ctx, run)
	if err != nil {
		return fmt.Errorf("failed to persist run %s: %w", runID, err)
	}

	startEvent := events.RunStarted{
		BaseEvent:    events.NewBaseEvent(events.RunStartedEvent, run.ID),
		WorkflowName: run.WorkflowName,
		Context:      run.Context,
	}
	startEvent.WorkerID = o.workerID
	_ = o.eventBus.Publish(ctx, run.ID, startEvent)

	err = o.walk(ctx, run, graph, logger)
	if err != nil {
		return err
	}

	return o.finish(ctx, run, workflow, logger)
}

// walk schedules graph nodes batch by batch until every node is terminal or
// the run is cancelled.
func (o *Orchestrator) walk(ctx context.Context, run *models.WorkflowRun, graph *dag.Graph, logger *slog.Logger) error {
	var mu sync.Mutex

	statusOf := func(id string) models.JobStatus {
		mu.Lock()
		defer mu.Unlock()

		return run.JobStatusOf(id)
	}

	for {
		if ctx.Err() != nil {
			o.cancelRemaining(run, graph)

			return nil
		}

		ready, skipped := graph.Progress(statusOf)

		for _, jobID := range skipped {
			node := graph.Node(jobID)

			mu.Lock()
			_, err := run.SetJobStatus(jobID, node.BaseName, models.JobStatusSkipped)
			mu.Unlock()

			if err != nil {
				return err
			}

			logger.InfoContext(ctx, "Job skipped", "job_id", jobID)
			o.publishJobFinished(ctx, run, node, models.JobStatusSkipped, models.FailureKindNone, "", 0)
		}

		if len(skipped) > 0 {
			err := o.persistence.RunRepository().Save(ctx, run)
			if err != nil {
				return fmt.Errorf("failed to persist run %s: %w", run.ID, err)
			}
		}

		if len(ready) == 0 {
			return nil
		}

		for _, jobID := range ready {
			node := graph.Node(jobID)

			mu.Lock()
			_, err := run.SetJobStatus(jobID, node.BaseName, models.JobStatusRunning)
			mu.Unlock()

			if err != nil {
				return err
			}
		}

		err := o.persistence.RunRepository().Save(ctx, run)
		if err != nil {
			return fmt.Errorf("failed to persist run %s: %w", run.ID, err)
		}

		var wg sync.WaitGroup

		for _, jobID := range ready {
			node := graph.Node(jobID)

			wg.Add(1)

			go func(node *dag.Node) {
				defer wg.Done()

				o.executeJob(ctx, run, node, &mu, logger)
			}(node)
		}

		wg.Wait()

		err = o.persistence.RunRepository().Save(ctx, run)
		if err != nil {
			return fmt.Errorf("failed to persist run %s: %w", run.ID, err)
		}
	}
}

// executeJob dispatches one ready job instance to its step and records the
// terminal result.
func (o *Orchestrator) executeJob(ctx context.Context, run *models.WorkflowRun, node *dag.Node, mu *sync.Mutex, logger *slog.Logger) {
	jobCtx, span := otelhelper.StartSpan(ctx, o.tracer, "orchestrator.execute_job",
		attribute.String(otelhelper.RunIDKey, run.ID),
		attribute.String(otelhelper.JobIDKey, node.ID),
		attribute.String(otelhelper.JobBaseNameKey, node.BaseName),
	)
	defer span.End()

	started := time.Now()

	startEvent := events.JobStarted{
		BaseEvent: events.NewBaseEvent(events.JobStartedEvent, run.ID),
		JobID:     node.ID,
		BaseName:  node.BaseName,
		Entry:     node.Entry,
	}
	startEvent.WorkerID = o.workerID
	_ = o.eventBus.Publish(jobCtx, run.ID, startEvent)

	result := o.runStep(jobCtx, run, node, logger)

	mu.Lock()

	jobResult, err := run.SetJobStatus(node.ID, node.BaseName, result.Status)
	if err == nil {
		jobResult.FailureKind = result.FailureKind
		jobResult.Error = result.Message
		jobResult.Output = result.Output
	}

	mu.Unlock()

	if err != nil {
		otelhelper.SetError(span, err)
		logger.ErrorContext(jobCtx, "Failed to record job result", "job_id", node.ID, "error", err)

		return
	}

	duration := time.Since(started).Milliseconds()

	logger.InfoContext(jobCtx, "Job finished",
		"job_id", node.ID,
		"status", result.Status,
		"duration_ms", duration,
	)

	o.publishJobFinished(jobCtx, run, node, result.Status, result.FailureKind, result.Message, duration)
}

// runStep creates and executes the step for a node, mapping step
// infrastructure errors to failed results.
func (o *Orchestrator) runStep(ctx context.Context, run *models.WorkflowRun, node *dag.Node, logger *slog.Logger) protocol.StepResult {
	step, err := o.registry.CreateStep(node.Spec.Type, node.Spec.Config)
	if err != nil {
		return protocol.StepResult{
			Status:      models.JobStatusFailure,
			FailureKind: models.FailureKindInfrastructure,
			Message:     err.Error(),
		}
	}

	stepCtx := protocol.StepContext{
		RunID:       run.ID,
		JobID:       node.ID,
		Context:     run.Context,
		Entry:       node.Entry,
		Delivery:    imageref.DeliveryFor(run.Context),
		Reference:   imageref.NewReference(run.Context, node.Entry.Tag).String(),
		ArtifactKey: imageref.ArtifactKey(node.Entry.Tag),
	}

	result, err := step.Execute(ctx, stepCtx, logger)
	if err != nil {
		return protocol.StepResult{
			Status:      models.JobStatusFailure,
			FailureKind: models.FailureKindInfrastructure,
			Message:     err.Error(),
		}
	}

	return result
}

func (o *Orchestrator) publishJobFinished(
	ctx context.Context,
	run *models.WorkflowRun,
	node *dag.Node,
	status models.JobStatus,
	failureKind models.FailureKind,
	message string,
	durationMs int64,
) {
	event := events.JobFinished{
		BaseEvent:   events.NewBaseEvent(events.JobFinishedEvent, run.ID),
		JobID:       node.ID,
		BaseName:    node.BaseName,
		Status:      status,
		FailureKind: failureKind,
		Error:       message,
		DurationMs:  durationMs,
	}
	event.WorkerID = o.workerID

	err := o.eventBus.Publish(ctx, run.ID, event)
	if err != nil {
		o.logger.ErrorContext(ctx, "Failed to publish job finished event", "job_id", node.ID, "error", err)
	}
}

// cancelRemaining marks every non-terminal node cancelled after the run
// itself was cancelled.
func (o *Orchestrator) cancelRemaining(run *models.WorkflowRun, graph *dag.Graph) {
	now := time.Now().UTC()

	for _, node := range graph.Nodes() {
		if run.JobStatusOf(node.ID).IsTerminal() {
			continue
		}

		result, err := run.SetJobStatus(node.ID, node.BaseName, models.JobStatusCancelled)
		if err != nil {
			continue
		}

		result.FailureKind = models.FailureKindCancellation
		result.FinishedAt = &now
	}

	run.Status = models.RunStatusCancelled
}

// finish evaluates the gate, persists the terminal run, announces the
// results, and releases the concurrency slot, re-announcing any promoted
// queued run.
func (o *Orchestrator) finish(ctx context.Context, run *models.WorkflowRun, workflow *models.Workflow, logger *slog.Logger) error {
	runCancelled := run.Status == models.RunStatusCancelled

	statuses := run.StatusesOf(workflow.GateInputs...)
	outcome := gate.Decide(runCancelled, statuses)

	run.GatePassed = &outcome.Passed
	run.GateReason = outcome.Reason

	if !runCancelled {
		if outcome.Passed {
			run.Status = models.RunStatusSuccess
		} else {
			run.Status = models.RunStatusFailure
		}
	}

	now := time.Now().UTC()
	run.FinishedAt = &now

	err := o.persistence.RunRepository().Save(ctx, run)
	if err != nil {
		return fmt.Errorf("failed to persist run %s: %w", run.ID, err)
	}

	gateEvent := events.GateEvaluated{
		BaseEvent: events.NewBaseEvent(events.GateEvaluatedEvent, run.ID),
		Passed:    outcome.Passed,
		Reason:    outcome.Reason,
	}
	gateEvent.WorkerID = o.workerID
	_ = o.eventBus.Publish(ctx, run.ID, gateEvent)

	finishedEvent := events.RunFinished{
		BaseEvent:  events.NewBaseEvent(events.RunFinishedEvent, run.ID),
		Status:     run.Status,
		DurationMs: durationMs(run),
	}
	finishedEvent.WorkerID = o.workerID
	_ = o.eventBus.Publish(ctx, run.ID, finishedEvent)

	logger.InfoContext(ctx, "Run finished",
		"status", run.Status,
		"gate_passed", outcome.Passed,
		"gate_reason", outcome.Reason,
	)

	promoted, err := o.evaluator.Release(ctx, run)
	if err != nil {
		return err
	}

	if promoted != "" {
		err = o.announcePromoted(ctx, promoted)
		if err != nil {
			return err
		}
	}

	return nil
}

// announcePromoted re-announces a queued run that took over the in-flight
// slot, so a worker picks it up.
func (o *Orchestrator) announcePromoted(ctx context.Context, runID string) error {
	run, err := o.persistence.RunRepository().GetByID(ctx, runID)
	if err != nil {
		if persistence.IsRunNotFound(err) {
			return nil
		}

		return err
	}

	event := events.RunAdmitted{
		BaseEvent:      events.NewBaseEvent(events.RunAdmittedEvent, run.ID),
		WorkflowName:   run.WorkflowName,
		ConcurrencyKey: run.ConcurrencyKey(),
		Context:        run.Context,
	}
	event.WorkerID = o.workerID

	return o.eventBus.Publish(ctx, run.ID, event)
}

func durationMs(run *models.WorkflowRun) int64 {
	if run.StartedAt == nil || run.FinishedAt == nil {
		return 0
	}

	return run.FinishedAt.Sub(*run.StartedAt).Milliseconds()
}
