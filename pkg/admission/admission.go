// Package admission decides whether a run is admitted at all and whether a
// queued run in the same concurrency group must be superseded.
package admission

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/buildgate/buildgate/pkg/models"
	"github.com/buildgate/buildgate/pkg/slots"
)

// Decision is the outcome of evaluating a run against the trigger and
// concurrency rules.
type Decision struct {
	Admitted   bool   `json:"admitted"`
	Reason     string `json:"reason"`
	Superseded string `json:"superseded,omitempty"` // run ID cancelled by this admission
}

// Evaluator applies the trigger rules and manages concurrency-group slots.
type Evaluator struct {
	store  slots.Store
	logger *slog.Logger
}

// NewEvaluator creates an admission evaluator backed by the given slot store.
func NewEvaluator(store slots.Store, logger *slog.Logger) *Evaluator {
	return &Evaluator{
		store:  store,
		logger: logger.With("module", "admission"),
	}
}

// Admit evaluates a run. Push runs are admitted for the trunk branch and for
// tags; pull request runs are always admitted; manual dispatch requires a
// reason. An admitted run takes the in-flight slot of its concurrency group
// or is queued behind it; on non-trunk refs the previously queued run is
// superseded, on trunk nothing is ever cancelled.
func (e *Evaluator) Admit(ctx context.Context, run *models.WorkflowRun) (Decision, error) {
	decision := e.evaluateTrigger(run.Context)
	if !decision.Admitted {
		e.logger.InfoContext(ctx, "Run rejected", "run_id", run.ID, "reason", decision.Reason)

		return decision, nil
	}

	replaceQueued := !run.Context.IsTrunk()

	superseded, err := e.store.Enqueue(ctx, run.ConcurrencyKey(), run.ID, replaceQueued)
	if err != nil {
		return Decision{}, fmt.Errorf("failed to enqueue run %s: %w", run.ID, err)
	}

	decision.Superseded = superseded

	e.logger.InfoContext(ctx, "Run admitted",
		"run_id", run.ID,
		"concurrency_key", run.ConcurrencyKey(),
		"superseded", superseded,
	)

	return decision, nil
}

// Release frees the run's in-flight slot and returns the promoted run ID, if
// any run was queued behind it.
func (e *Evaluator) Release(ctx context.Context, run *models.WorkflowRun) (string, error) {
	promoted, err := e.store.Release(ctx, run.ConcurrencyKey(), run.ID)
	if err != nil {
		return "", fmt.Errorf("failed to release slot for run %s: %w", run.ID, err)
	}

	return promoted, nil
}

// Holds reports whether the run currently holds the in-flight slot of its
// concurrency group. Queued runs do not hold the slot until promoted.
func (e *Evaluator) Holds(ctx context.Context, run *models.WorkflowRun) (bool, error) {
	state, err := e.store.State(ctx, run.ConcurrencyKey())
	if err != nil {
		return false, fmt.Errorf("failed to read slot state for run %s: %w", run.ID, err)
	}

	return state.InFlight == run.ID, nil
}

// Evict removes a run from its concurrency group without promoting anything,
// used when a queued run is cancelled before it ever held the in-flight slot.
func (e *Evaluator) Evict(ctx context.Context, run *models.WorkflowRun) error {
	err := e.store.Remove(ctx, run.ConcurrencyKey(), run.ID)
	if err != nil {
		return fmt.Errorf("failed to evict run %s: %w", run.ID, err)
	}

	return nil
}

func (e *Evaluator) evaluateTrigger(runContext models.RunContext) Decision {
	switch runContext.Event {
	case models.EventKindPush:
		if runContext.IsTrunk() || runContext.IsTag {
			return Decision{Admitted: true, Reason: "push to trunk or tag"}
		}

		return Decision{Admitted: false, Reason: "push to non-trunk branch"}
	case models.EventKindPullRequest:
		return Decision{Admitted: true, Reason: "pull request"}
	case models.EventKindManual:
		if runContext.Reason == "" {
			return Decision{Admitted: false, Reason: "manual dispatch requires a reason"}
		}

		return Decision{Admitted: true, Reason: "manual dispatch: " + runContext.Reason}
	default:
		return Decision{Admitted: false, Reason: "unsupported event kind " + string(runContext.Event)}
	}
}
