package models

import "time"

// Built-in job types.
const (
	JobTypeBuild = "build"
	JobTypeTest  = "test"
)

// Well-known job names of the container pipeline.
const (
	JobNameBuild           = "build"
	JobNameUnitTest        = "unit_test"
	JobNameIntegrationTest = "integration_test"
)

// JobSpec declares one job node of a workflow: its type, configuration,
// matrix, and the jobs it depends on.
type JobSpec struct {
	Name   string         `json:"name"   validate:"required,min=1"`
	Type   string         `json:"type"   validate:"required"`
	Needs  []string       `json:"needs,omitempty"`
	Matrix Matrix         `json:"matrix,omitempty"`
	Config map[string]any `json:"config,omitempty"`
}

// Workflow is a declarative pipeline definition: a set of job specs forming a
// DAG plus the job names whose terminal states feed the gate.
type Workflow struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"        validate:"required,min=3"`
	Description string     `json:"description"`
	Jobs        []*JobSpec `json:"jobs"        validate:"required,min=1,dive"`
	GateInputs  []string   `json:"gate_inputs" validate:"required,min=1"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// JobByName returns the job spec with the given name, or nil.
func (w *Workflow) JobByName(name string) *JobSpec {
	for _, job := range w.Jobs {
		if job.Name == name {
			return job
		}
	}

	return nil
}

// DefaultMatrix lists the base images the runtime image is built and tested
// against.
func DefaultMatrix() Matrix {
	return Matrix{
		{BaseImage: "nikolaik/python-nodejs:python3.12-nodejs22", Tag: "nikolaik"},
		{BaseImage: "golang:1.21-bookworm", Tag: "golang"},
		{BaseImage: "ubuntu:22.04", Tag: "ubuntu"},
	}
}

// DefaultPipeline is the container build-test pipeline: build fans out to the
// two test jobs, and the gate aggregates the terminal states of all three.
// Build is a gate input so a failed build fails the gate directly instead of
// leaving only skipped test inputs behind.
func DefaultPipeline(matrix Matrix) *Workflow {
	return &Workflow{
		ID:          "ghcr-runtime",
		Name:        "ghcr-runtime",
		Description: "Build the runtime container image, test it, and publish it",
		Jobs: []*JobSpec{
			{Name: JobNameBuild, Type: JobTypeBuild, Matrix: matrix},
			{Name: JobNameUnitTest, Type: JobTypeTest, Needs: []string{JobNameBuild}, Matrix: matrix},
			{Name: JobNameIntegrationTest, Type: JobTypeTest, Needs: []string{JobNameBuild}, Matrix: matrix},
		},
		GateInputs: []string{JobNameBuild, JobNameUnitTest, JobNameIntegrationTest},
	}
}
