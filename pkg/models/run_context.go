// Package models defines the core domain models for CI run orchestration.
package models

// TrunkBranch is the repository's primary integration branch.
const TrunkBranch = "main"

// EventKind identifies the kind of event that started a run.
type EventKind string

const (
	EventKindPush        EventKind = "push"
	EventKindPullRequest EventKind = "pull_request"
	EventKindManual      EventKind = "manual"
)

// RunContext carries the repository and event metadata a run was started with.
// It is immutable for the lifetime of the run.
type RunContext struct {
	Event      EventKind `json:"event"                 validate:"required,oneof=push pull_request manual"`
	Ref        string    `json:"ref"                   validate:"required"`
	IsTag      bool      `json:"is_tag"`
	Fork       bool      `json:"fork"`
	SHA        string    `json:"sha"                   validate:"required"`
	Owner      string    `json:"owner"                 validate:"required"`
	Reason     string    `json:"reason,omitempty"`
	Repository string    `json:"repository,omitempty"`
}

// IsTrunk reports whether the run targets the trunk branch.
func (rc RunContext) IsTrunk() bool {
	return !rc.IsTag && rc.Ref == TrunkBranch
}

// IsForkPullRequest reports whether the run is a pull request whose head
// repository is a fork of the target repository. Fork runs have no registry
// credentials, so publish and consume steps must go through the artifact store.
func (rc RunContext) IsForkPullRequest() bool {
	return rc.Event == EventKindPullRequest && rc.Fork
}
