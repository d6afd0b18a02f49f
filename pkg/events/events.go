// Package events defines event types and structures for run lifecycle
// notifications.
package events

import (
	"time"

	"github.com/google/uuid"

	"github.com/buildgate/buildgate/pkg/models"
)

type EventType string

// Topic carries all run lifecycle events.
const Topic = "buildgate.runs"

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	RunAdmittedEvent   EventType = "run.admitted"
	RunSupersededEvent EventType = "run.superseded"
	RunStartedEvent    EventType = "run.started"
	RunFinishedEvent   EventType = "run.finished"
	JobStartedEvent    EventType = "job.started"
	JobFinishedEvent   EventType = "job.finished"
	GateEvaluatedEvent EventType = "gate.evaluated"
)

type BaseEvent struct {
	ID        string         `json:"id"`
	Type      EventType      `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	RunID     string         `json:"run_id"`
	WorkerID  string         `json:"worker_id,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

func NewBaseEvent(eventType EventType, runID string) BaseEvent {
	return BaseEvent{
		ID:        uuid.New().String(),
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		RunID:     runID,
		Metadata:  make(map[string]any),
	}
}

// RunAdmitted is published when a run passes trigger and concurrency
// evaluation and takes or queues for its group slot.
type RunAdmitted struct {
	BaseEvent

	WorkflowName   string            `json:"workflow_name"`
	ConcurrencyKey string            `json:"concurrency_key"`
	Context        models.RunContext `json:"context"`
}

func (e RunAdmitted) GetType() EventType {
	return RunAdmittedEvent
}

// RunSuperseded is published for a queued run cancelled because a newer run
// was admitted into the same concurrency group.
type RunSuperseded struct {
	BaseEvent

	SupersededBy   string `json:"superseded_by"`
	ConcurrencyKey string `json:"concurrency_key"`
}

func (e RunSuperseded) GetType() EventType {
	return RunSupersededEvent
}

type RunStarted struct {
	BaseEvent

	WorkflowName string            `json:"workflow_name"`
	Context      models.RunContext `json:"context"`
}

func (e RunStarted) GetType() EventType {
	return RunStartedEvent
}

type RunFinished struct {
	BaseEvent

	Status     models.RunStatus `json:"status"`
	DurationMs int64            `json:"duration_ms"`
}

func (e RunFinished) GetType() EventType {
	return RunFinishedEvent
}

type JobStarted struct {
	BaseEvent

	JobID    string             `json:"job_id"`
	BaseName string             `json:"base_name"`
	Entry    models.MatrixEntry `json:"entry"`
}

func (e JobStarted) GetType() EventType {
	return JobStartedEvent
}

type JobFinished struct {
	BaseEvent

	JobID       string             `json:"job_id"`
	BaseName    string             `json:"base_name"`
	Status      models.JobStatus   `json:"status"`
	FailureKind models.FailureKind `json:"failure_kind,omitempty"`
	Error       string             `json:"error,omitempty"`
	DurationMs  int64              `json:"duration_ms"`
}

func (e JobFinished) GetType() EventType {
	return JobFinishedEvent
}

// GateEvaluated is published once all gate inputs are terminal and the
// aggregate pass/fail signal has been computed.
type GateEvaluated struct {
	BaseEvent

	Passed bool   `json:"passed"`
	Reason string `json:"reason"`
}

func (e GateEvaluated) GetType() EventType {
	return GateEvaluatedEvent
}
