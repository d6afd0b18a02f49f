package orchestrator

import (
	"context"
	"log/slog"
	"sync"
	"testing"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/buildgate/buildgate/pkg/admission"
	"github.com/buildgate/buildgate/pkg/channels/gochannel"
	"github.com/buildgate/buildgate/pkg/eventbus"
	"github.com/buildgate/buildgate/pkg/models"
	"github.com/buildgate/buildgate/pkg/persistence/file"
	"github.com/buildgate/buildgate/pkg/protocol"
	"github.com/buildgate/buildgate/pkg/registry"
	"github.com/buildgate/buildgate/pkg/slots"
)

// scriptedFactory produces steps whose results are keyed by job instance ID.
type scriptedFactory struct {
	id string

	mu       sync.Mutex
	results  map[string]protocol.StepResult
	executed []string
}

func (f *scriptedFactory) ID() string {
	return f.id
}

func (f *scriptedFactory) Schema() map[string]any {
	return map[string]any{"type": "object"}
}

func (f *scriptedFactory) Create(_ map[string]any) (protocol.Step, error) {
	return &scriptedStep{factory: f}, nil
}

func (f *scriptedFactory) executedJobs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	return append([]string(nil), f.executed...)
}

type scriptedStep struct {
	factory *scriptedFactory
}

func (s *scriptedStep) Execute(_ context.Context, stepCtx protocol.StepContext, _ *slog.Logger) (protocol.StepResult, error) {
	s.factory.mu.Lock()
	defer s.factory.mu.Unlock()

	s.factory.executed = append(s.factory.executed, stepCtx.JobID)

	result, ok := s.factory.results[stepCtx.JobID]
	if !ok {
		return protocol.StepResult{Status: models.JobStatusSuccess}, nil
	}

	return result, nil
}

type fixture struct {
	orchestrator *Orchestrator
	evaluator    *admission.Evaluator
	persistence  *file.Persistence
	buildSteps   *scriptedFactory
	testSteps    *scriptedFactory
}

func newFixture(t *testing.T, buildResults, testResults map[string]protocol.StepResult) *fixture {
	t.Helper()

	persist := file.NewPersistence(t.TempDir())

	matrix := models.Matrix{
		{BaseImage: "nikolaik/python-nodejs:python3.12-nodejs22", Tag: "nikolaik"},
	}
	require.NoError(t, persist.WorkflowRepository().Save(t.Context(), models.DefaultPipeline(matrix)))

	pub, sub, err := gochannel.CreateChannel(watermill.NopLogger{})
	require.NoError(t, err)

	bus := eventbus.NewWatermillEventBus(pub, sub)

	buildSteps := &scriptedFactory{id: models.JobTypeBuild, results: buildResults}
	testSteps := &scriptedFactory{id: models.JobTypeTest, results: testResults}

	stepRegistry := registry.NewRegistry(slog.Default())
	stepRegistry.RegisterStep(buildSteps)
	stepRegistry.RegisterStep(testSteps)

	evaluator := admission.NewEvaluator(slots.NewMemoryStore(), slog.Default())

	orch := New(
		"test-worker",
		persist,
		bus,
		stepRegistry,
		evaluator,
		noop.NewTracerProvider().Tracer("test"),
		slog.Default(),
	)

	return &fixture{
		orchestrator: orch,
		evaluator:    evaluator,
		persistence:  persist,
		buildSteps:   buildSteps,
		testSteps:    testSteps,
	}
}

func trunkRun(id string) *models.WorkflowRun {
	return models.NewWorkflowRun(id, "ghcr-runtime", models.RunContext{
		Event: models.EventKindPush,
		Ref:   "main",
		SHA:   "abc123",
		Owner: "acme",
	})
}

func pullRequestRun(id, ref string) *models.WorkflowRun {
	return models.NewWorkflowRun(id, "ghcr-runtime", models.RunContext{
		Event: models.EventKindPullRequest,
		Ref:   ref,
		SHA:   "abc123",
		Owner: "acme",
	})
}

func TestSubmit_RejectedRunIsNotPersisted(t *testing.T) {
	f := newFixture(t, nil, nil)

	run := models.NewWorkflowRun("run-1", "ghcr-runtime", models.RunContext{
		Event: models.EventKindPush,
		Ref:   "feature/x",
		SHA:   "abc123",
		Owner: "acme",
	})

	decision, err := f.orchestrator.Submit(t.Context(), run)
	require.NoError(t, err)
	assert.False(t, decision.Admitted)

	_, err = f.persistence.RunRepository().GetByID(t.Context(), "run-1")
	assert.Error(t, err)
}

func TestSubmit_AdmittedRunIsPersistedQueued(t *testing.T) {
	f := newFixture(t, nil, nil)

	decision, err := f.orchestrator.Submit(t.Context(), trunkRun("run-1"))
	require.NoError(t, err)
	assert.True(t, decision.Admitted)

	persisted, err := f.persistence.RunRepository().GetByID(t.Context(), "run-1")
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusQueued, persisted.Status)
}

func TestSubmit_SupersededRunIsCancelled(t *testing.T) {
	f := newFixture(t, nil, nil)

	for _, id := range []string{"run-1", "run-2"} {
		_, err := f.orchestrator.Submit(t.Context(), pullRequestRun(id, "pr-7"))
		require.NoError(t, err)
	}

	decision, err := f.orchestrator.Submit(t.Context(), pullRequestRun("run-3", "pr-7"))
	require.NoError(t, err)
	assert.Equal(t, "run-2", decision.Superseded)

	superseded, err := f.persistence.RunRepository().GetByID(t.Context(), "run-2")
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusCancelled, superseded.Status)
}

func TestExecuteRun_AllJobsSucceedGatePasses(t *testing.T) {
	f := newFixture(t, nil, nil)

	_, err := f.orchestrator.Submit(t.Context(), trunkRun("run-1"))
	require.NoError(t, err)

	err = f.orchestrator.ExecuteRun(t.Context(), "run-1")
	require.NoError(t, err)

	run, err := f.persistence.RunRepository().GetByID(t.Context(), "run-1")
	require.NoError(t, err)

	assert.Equal(t, models.RunStatusSuccess, run.Status)
	require.NotNil(t, run.GatePassed)
	assert.True(t, *run.GatePassed)
	assert.NotNil(t, run.StartedAt)
	assert.NotNil(t, run.FinishedAt)

	assert.Equal(t, models.JobStatusSuccess, run.JobStatusOf("build-nikolaik"))
	assert.Equal(t, models.JobStatusSuccess, run.JobStatusOf("unit_test-nikolaik"))
	assert.Equal(t, models.JobStatusSuccess, run.JobStatusOf("integration_test-nikolaik"))

	// Build ran before either test job.
	assert.Equal(t, []string{"build-nikolaik"}, f.buildSteps.executedJobs())
	assert.ElementsMatch(t,
		[]string{"unit_test-nikolaik", "integration_test-nikolaik"},
		f.testSteps.executedJobs(),
	)
}

func TestExecuteRun_BuildFailureSkipsTestsAndFailsGate(t *testing.T) {
	f := newFixture(t, map[string]protocol.StepResult{
		"build-nikolaik": {
			Status:      models.JobStatusFailure,
			FailureKind: models.FailureKindBuild,
			Message:     "image build failed",
		},
	}, nil)

	_, err := f.orchestrator.Submit(t.Context(), trunkRun("run-1"))
	require.NoError(t, err)

	err = f.orchestrator.ExecuteRun(t.Context(), "run-1")
	require.NoError(t, err)

	run, err := f.persistence.RunRepository().GetByID(t.Context(), "run-1")
	require.NoError(t, err)

	assert.Equal(t, models.RunStatusFailure, run.Status)
	require.NotNil(t, run.GatePassed)
	assert.False(t, *run.GatePassed)

	assert.Equal(t, models.JobStatusFailure, run.JobStatusOf("build-nikolaik"))
	assert.Equal(t, models.JobStatusSkipped, run.JobStatusOf("unit_test-nikolaik"))
	assert.Equal(t, models.JobStatusSkipped, run.JobStatusOf("integration_test-nikolaik"))
	assert.Equal(t, models.FailureKindBuild, run.Jobs["build-nikolaik"].FailureKind)

	// Skipped jobs are never dispatched.
	assert.Empty(t, f.testSteps.executedJobs())
}

func TestExecuteRun_SingleTestFailureFailsGate(t *testing.T) {
	f := newFixture(t, nil, map[string]protocol.StepResult{
		"unit_test-nikolaik": {
			Status:      models.JobStatusFailure,
			FailureKind: models.FailureKindTest,
			Message:     "2 tests failed",
		},
	})

	_, err := f.orchestrator.Submit(t.Context(), trunkRun("run-1"))
	require.NoError(t, err)

	err = f.orchestrator.ExecuteRun(t.Context(), "run-1")
	require.NoError(t, err)

	run, err := f.persistence.RunRepository().GetByID(t.Context(), "run-1")
	require.NoError(t, err)

	assert.Equal(t, models.RunStatusFailure, run.Status)
	require.NotNil(t, run.GatePassed)
	assert.False(t, *run.GatePassed)
	assert.Contains(t, run.GateReason, "unit_test-nikolaik")

	// The sibling test job still ran to completion.
	assert.Equal(t, models.JobStatusSuccess, run.JobStatusOf("integration_test-nikolaik"))
}

func TestExecuteRun_ReleasesSlotAndPromotesQueuedRun(t *testing.T) {
	f := newFixture(t, nil, nil)

	first := trunkRun("run-1")
	second := trunkRun("run-2")

	_, err := f.orchestrator.Submit(t.Context(), first)
	require.NoError(t, err)
	_, err = f.orchestrator.Submit(t.Context(), second)
	require.NoError(t, err)

	err = f.orchestrator.ExecuteRun(t.Context(), "run-1")
	require.NoError(t, err)

	holds, err := f.evaluator.Holds(t.Context(), second)
	require.NoError(t, err)
	assert.True(t, holds, "queued run should be promoted after the slot holder finishes")
}

func TestExecuteRun_CancelledContextCancelsRemainingJobs(t *testing.T) {
	f := newFixture(t, nil, nil)

	_, err := f.orchestrator.Submit(t.Context(), trunkRun("run-1"))
	require.NoError(t, err)

	cancelled, cancel := context.WithCancel(t.Context())
	cancel()

	err = f.orchestrator.ExecuteRun(cancelled, "run-1")
	require.NoError(t, err)

	run, err := f.persistence.RunRepository().GetByID(t.Context(), "run-1")
	require.NoError(t, err)

	assert.Equal(t, models.RunStatusCancelled, run.Status)
	require.NotNil(t, run.GatePassed)
	assert.False(t, *run.GatePassed)
	assert.Equal(t, "run was cancelled", run.GateReason)

	for _, jobID := range []string{"build-nikolaik", "unit_test-nikolaik", "integration_test-nikolaik"} {
		assert.Equal(t, models.JobStatusCancelled, run.JobStatusOf(jobID))
		assert.Equal(t, models.FailureKindCancellation, run.Jobs[jobID].FailureKind)
	}
}

func TestExecuteRun_TerminalRunIsNotReexecuted(t *testing.T) {
	f := newFixture(t, nil, nil)

	_, err := f.orchestrator.Submit(t.Context(), trunkRun("run-1"))
	require.NoError(t, err)

	require.NoError(t, f.orchestrator.ExecuteRun(t.Context(), "run-1"))

	executed := len(f.buildSteps.executedJobs())

	require.NoError(t, f.orchestrator.ExecuteRun(t.Context(), "run-1"))
	assert.Len(t, f.buildSteps.executedJobs(), executed)
}
