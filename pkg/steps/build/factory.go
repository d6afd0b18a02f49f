package build

import (
	"github.com/buildgate/buildgate/pkg/artifacts"
	"github.com/buildgate/buildgate/pkg/protocol"
	"github.com/buildgate/buildgate/pkg/steps"
)

// Factory creates build steps bound to an artifact store and command runner.
type Factory struct {
	store  artifacts.Store
	runner steps.CommandRunner
}

// NewFactory creates a build step factory.
func NewFactory(store artifacts.Store, runner steps.CommandRunner) *Factory {
	return &Factory{store: store, runner: runner}
}

// ID returns the unique identifier for this step type.
func (f *Factory) ID() string {
	return "build"
}

// Schema returns a JSON Schema describing the step configuration.
func (f *Factory) Schema() map[string]any {
	return map[string]any{
		"type":        "object",
		"title":       "Build Step Configuration",
		"description": "Configuration for the container image build step",
		"properties": map[string]any{
			"script": map[string]any{
				"type":        "string",
				"description": "Path to the build-and-push script",
				"default":     defaultScript,
			},
			"target": map[string]any{
				"type":        "string",
				"description": "Build target passed to the script",
				"default":     defaultTarget,
			},
			"export_dir": map[string]any{
				"type":        "string",
				"description": "Directory the script writes image exports to in artifact mode",
				"default":     "./dist",
			},
		},
		"additionalProperties": false,
	}
}

// Create instantiates a build step from configuration.
func (f *Factory) Create(config map[string]any) (protocol.Step, error) {
	step := &Step{
		script:    defaultScript,
		target:    defaultTarget,
		exportDir: "./dist",
		store:     f.store,
		runner:    f.runner,
	}

	if script, ok := config["script"].(string); ok && script != "" {
		step.script = script
	}

	if target, ok := config["target"].(string); ok && target != "" {
		step.target = target
	}

	if exportDir, ok := config["export_dir"].(string); ok && exportDir != "" {
		step.exportDir = exportDir
	}

	return step, nil
}
