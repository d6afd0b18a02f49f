// Package web provides HTTP request and response types for the run API.
package web

import "github.com/buildgate/buildgate/pkg/models"

// TriggerEventRequest represents an incoming repository event that may start
// a run.
type TriggerEventRequest struct {
	Event        string `json:"event"         validate:"required,oneof=push pull_request manual"`
	Ref          string `json:"ref"           validate:"required"`
	SHA          string `json:"sha"           validate:"required"`
	Owner        string `json:"owner"         validate:"required"`
	Repository   string `json:"repository"    validate:"required"`
	IsTag        bool   `json:"is_tag"`
	Fork         bool   `json:"fork"`
	Reason       string `json:"reason,omitempty"`
	WorkflowName string `json:"workflow_name,omitempty"`
}

// RunContext converts the request into the run context evaluated by
// admission.
func (r TriggerEventRequest) RunContext() models.RunContext {
	return models.RunContext{
		Event:      models.EventKind(r.Event),
		Ref:        r.Ref,
		SHA:        r.SHA,
		Owner:      r.Owner,
		Repository: r.Repository,
		IsTag:      r.IsTag,
		Fork:       r.Fork,
		Reason:     r.Reason,
	}
}

// TriggerEventResponse reports the admission decision for a trigger event.
type TriggerEventResponse struct {
	RunID      string `json:"run_id,omitempty"`
	Admitted   bool   `json:"admitted"`
	Reason     string `json:"reason"`
	Superseded string `json:"superseded,omitempty"`
}

// GateResponse reports the gate outcome of a run. Evaluated is false while
// the run has not reached a terminal state.
type GateResponse struct {
	RunID     string `json:"run_id"`
	Evaluated bool   `json:"evaluated"`
	Passed    bool   `json:"passed"`
	Reason    string `json:"reason,omitempty"`
}
