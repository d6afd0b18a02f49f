package testrun

import (
	"github.com/buildgate/buildgate/pkg/artifacts"
	"github.com/buildgate/buildgate/pkg/protocol"
	"github.com/buildgate/buildgate/pkg/steps"
)

// Factory creates test steps bound to an artifact store and command runner.
type Factory struct {
	store  artifacts.Store
	runner steps.CommandRunner
}

// NewFactory creates a test step factory.
func NewFactory(store artifacts.Store, runner steps.CommandRunner) *Factory {
	return &Factory{store: store, runner: runner}
}

// ID returns the unique identifier for this step type.
func (f *Factory) ID() string {
	return "test"
}

// Schema returns a JSON Schema describing the step configuration.
func (f *Factory) Schema() map[string]any {
	return map[string]any{
		"type":        "object",
		"title":       "Test Step Configuration",
		"description": "Configuration for a test suite run against the built image",
		"properties": map[string]any{
			"command": map[string]any{
				"type":        "string",
				"description": "Test runner executable",
				"default":     defaultCommand,
			},
			"args": map[string]any{
				"type":        "array",
				"description": "Arguments passed to the test runner",
				"items":       map[string]any{"type": "string"},
			},
			"load_command": map[string]any{
				"type":        "string",
				"description": "Image loader executable used in artifact mode",
				"default":     defaultLoadCommand,
			},
			"runtime": map[string]any{
				"type":        "string",
				"description": "Value of TEST_RUNTIME passed to the suite",
				"default":     defaultRuntime,
			},
			"user_id": map[string]any{
				"type":        "integer",
				"description": "Value of SANDBOX_USER_ID passed to the suite",
				"default":     defaultUserID,
			},
			"only": map[string]any{
				"type":        "string",
				"description": "Value of TEST_ONLY limiting the suite selection",
			},
		},
		"additionalProperties": false,
	}
}

// Create instantiates a test step from configuration.
func (f *Factory) Create(config map[string]any) (protocol.Step, error) {
	step := &Step{
		command:     defaultCommand,
		loadCommand: defaultLoadCommand,
		runtime:     defaultRuntime,
		userID:      defaultUserID,
		store:       f.store,
		runner:      f.runner,
	}

	if command, ok := config["command"].(string); ok && command != "" {
		step.command = command
	}

	if args, ok := config["args"].([]any); ok {
		for _, arg := range args {
			if value, ok := arg.(string); ok {
				step.args = append(step.args, value)
			}
		}
	}

	if loadCommand, ok := config["load_command"].(string); ok && loadCommand != "" {
		step.loadCommand = loadCommand
	}

	if runtime, ok := config["runtime"].(string); ok && runtime != "" {
		step.runtime = runtime
	}

	switch userID := config["user_id"].(type) {
	case int:
		step.userID = userID
	case float64:
		step.userID = int(userID)
	}

	if only, ok := config["only"].(string); ok {
		step.only = only
	}

	return step, nil
}
