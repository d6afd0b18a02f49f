// Package gate aggregates the terminal statuses of parallel jobs into one
// synthetic pass/fail signal consumable by a branch-protection rule.
//
// The mapping is a single authoritative total function over the terminal
// status set: for every assignment of input statuses exactly one outcome is
// produced. A skipped input is tolerated on the passing path only when no
// other input failed; a skipped predecessor therefore never makes the gate
// vacuously pass when a sibling failed or the run was cancelled.
package gate

import (
	"fmt"
	"sort"

	"github.com/buildgate/buildgate/pkg/models"
)

// Outcome is the gate's terminal decision.
type Outcome struct {
	Passed bool   `json:"passed"`
	Reason string `json:"reason"`
}

// ExitCode maps the outcome to a process exit status: zero on the passing
// path, non-zero on the failing path so the aggregate check registers as
// failed rather than skipped.
func (o Outcome) ExitCode() int {
	if o.Passed {
		return 0
	}

	return 1
}

// Decide computes the gate outcome from the aggregator's own cancellation
// flag and the terminal statuses of its input jobs, keyed by job instance ID.
//
// The gate fails when the run was cancelled, or when any input status is
// failure or cancelled. It passes otherwise, including when inputs were
// skipped, because a skipped input only ever occurs alongside the failure
// that caused the skip.
func Decide(runCancelled bool, statuses map[string]models.JobStatus) Outcome {
	if runCancelled {
		return Outcome{Passed: false, Reason: "run was cancelled"}
	}

	jobIDs := make([]string, 0, len(statuses))
	for jobID := range statuses {
		jobIDs = append(jobIDs, jobID)
	}

	sort.Strings(jobIDs)

	for _, jobID := range jobIDs {
		switch statuses[jobID] {
		case models.JobStatusFailure:
			return Outcome{Passed: false, Reason: fmt.Sprintf("job %s failed", jobID)}
		case models.JobStatusCancelled:
			return Outcome{Passed: false, Reason: fmt.Sprintf("job %s was cancelled", jobID)}
		}
	}

	return Outcome{Passed: true, Reason: "all gated jobs passed"}
}
