package models

import (
	"fmt"
	"time"
)

// RunStatus is the lifecycle state of a whole workflow run.
type RunStatus string

const (
	RunStatusQueued     RunStatus = "queued"
	RunStatusInProgress RunStatus = "in_progress"
	RunStatusSuccess    RunStatus = "success"
	RunStatusFailure    RunStatus = "failure"
	RunStatusCancelled  RunStatus = "cancelled"
)

// IsTerminal reports whether the run status is a terminal state.
func (s RunStatus) IsTerminal() bool {
	switch s {
	case RunStatusSuccess, RunStatusFailure, RunStatusCancelled:
		return true
	default:
		return false
	}
}

// WorkflowRun is one admitted execution of a workflow for a given run context.
type WorkflowRun struct {
	ID           string                `json:"id"`
	WorkflowName string                `json:"workflow_name" validate:"required"`
	Context      RunContext            `json:"context"       validate:"required"`
	Status       RunStatus             `json:"status"`
	Jobs         map[string]*JobResult `json:"jobs"`
	GatePassed   *bool                 `json:"gate_passed,omitempty"`
	GateReason   string                `json:"gate_reason,omitempty"`
	CreatedAt    time.Time             `json:"created_at"`
	StartedAt    *time.Time            `json:"started_at,omitempty"`
	FinishedAt   *time.Time            `json:"finished_at,omitempty"`
}

// NewWorkflowRun creates a queued run for the given workflow and context.
func NewWorkflowRun(id, workflowName string, runContext RunContext) *WorkflowRun {
	return &WorkflowRun{
		ID:           id,
		WorkflowName: workflowName,
		Context:      runContext,
		Status:       RunStatusQueued,
		Jobs:         make(map[string]*JobResult),
		CreatedAt:    time.Now().UTC(),
	}
}

// ConcurrencyKey derives the de-duplication key for this run. Runs sharing a
// key contend for the same in-flight and queued slots.
func (r *WorkflowRun) ConcurrencyKey() string {
	return ConcurrencyKey(r.WorkflowName, r.Context.Ref)
}

// ConcurrencyKey derives the concurrency group key for a workflow and ref.
func ConcurrencyKey(workflowName, ref string) string {
	return workflowName + "@" + ref
}

// JobStatusOf returns the recorded status of a job instance, or pending when
// the job has not been recorded yet.
func (r *WorkflowRun) JobStatusOf(jobID string) JobStatus {
	result, ok := r.Jobs[jobID]
	if !ok {
		return JobStatusPending
	}

	return result.Status
}

// SetJobStatus records a status transition for a job instance. A terminal
// status is set once: transitioning a job that already reached a terminal
// state is an error.
func (r *WorkflowRun) SetJobStatus(jobID, baseName string, status JobStatus) (*JobResult, error) {
	result, ok := r.Jobs[jobID]
	if !ok {
		result = &JobResult{JobID: jobID, BaseName: baseName, Status: JobStatusPending}
		r.Jobs[jobID] = result
	}

	if result.Status.IsTerminal() {
		return nil, fmt.Errorf("job %s already terminal with status %s", jobID, result.Status)
	}

	now := time.Now().UTC()

	if status == JobStatusRunning && result.StartedAt == nil {
		result.StartedAt = &now
	}

	if status.IsTerminal() {
		result.FinishedAt = &now
	}

	result.Status = status

	return result, nil
}

// StatusesOf collects the statuses of every instance of the given base job
// names. Jobs with no recorded result count as pending.
func (r *WorkflowRun) StatusesOf(baseNames ...string) map[string]JobStatus {
	statuses := make(map[string]JobStatus)

	for _, result := range r.Jobs {
		for _, base := range baseNames {
			if result.BaseName == base {
				statuses[result.JobID] = result.Status
			}
		}
	}

	return statuses
}
