package models

import "time"

// JobStatus defines the lifecycle states of a job node. A job moves from
// pending to running to exactly one terminal state; terminal states are set
// once and never mutated.
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusSuccess   JobStatus = "success"
	JobStatusFailure   JobStatus = "failure"
	JobStatusCancelled JobStatus = "cancelled"
	JobStatusSkipped   JobStatus = "skipped"
)

// IsTerminal reports whether the status is a terminal state.
func (s JobStatus) IsTerminal() bool {
	switch s {
	case JobStatusSuccess, JobStatusFailure, JobStatusCancelled, JobStatusSkipped:
		return true
	default:
		return false
	}
}

// FailureKind classifies why a job reached a failing terminal state.
type FailureKind string

const (
	FailureKindNone           FailureKind = ""
	FailureKindInfrastructure FailureKind = "infrastructure" // disk space, artifact download, tooling
	FailureKindBuild          FailureKind = "build"          // image build or push step
	FailureKindTest           FailureKind = "test"           // test suite non-zero exit
	FailureKindCancellation   FailureKind = "cancellation"   // superseded by a newer run
)

// JobResult is the recorded outcome of a single job instance.
type JobResult struct {
	JobID       string         `json:"job_id"`
	BaseName    string         `json:"base_name"`
	Status      JobStatus      `json:"status"`
	FailureKind FailureKind    `json:"failure_kind,omitempty"`
	Error       string         `json:"error,omitempty"`
	Output      map[string]any `json:"output,omitempty"`
	StartedAt   *time.Time     `json:"started_at,omitempty"`
	FinishedAt  *time.Time     `json:"finished_at,omitempty"`
}
