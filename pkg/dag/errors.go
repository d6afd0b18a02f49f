package dag

// ValidationError reports a workflow graph that cannot be scheduled.
type ValidationError struct {
	Job    string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Job == "" {
		return "invalid workflow graph: " + e.Reason
	}

	return "invalid workflow graph: job " + e.Job + ": " + e.Reason
}
