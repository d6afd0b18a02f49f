// Package registry holds the step factories available to the orchestrator
// and validates step configuration against each factory's schema.
package registry

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/buildgate/buildgate/pkg/protocol"
)

type Registry struct {
	logger        *slog.Logger
	stepFactories map[string]protocol.StepFactory
}

func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		logger:        logger,
		stepFactories: make(map[string]protocol.StepFactory),
	}
}

func (r *Registry) RegisterStep(factory protocol.StepFactory) {
	r.stepFactories[factory.ID()] = factory
}

// CreateStep validates the configuration against the factory's schema and
// instantiates the step.
func (r *Registry) CreateStep(stepType string, config map[string]any) (protocol.Step, error) {
	factory, ok := r.stepFactories[stepType]
	if !ok {
		return nil, fmt.Errorf("step type '%s' not registered", stepType)
	}

	err := validateConfig(factory.Schema(), config)
	if err != nil {
		return nil, fmt.Errorf("invalid configuration for step type '%s': %w", stepType, err)
	}

	return factory.Create(config)
}

// AvailableSteps returns the registered step type identifiers.
func (r *Registry) AvailableSteps() []string {
	types := make([]string, 0, len(r.stepFactories))
	for stepType := range r.stepFactories {
		types = append(types, stepType)
	}

	return types
}

// HealthCheck reports whether the registry has any step factories.
func (r *Registry) HealthCheck() (string, bool) {
	if len(r.stepFactories) == 0 {
		return "no step factories registered", false
	}

	return fmt.Sprintf("%d step factories registered", len(r.stepFactories)), true
}

func validateConfig(schema map[string]any, config map[string]any) error {
	if config == nil {
		config = map[string]any{}
	}

	schemaLoader := gojsonschema.NewGoLoader(schema)
	dataLoader := gojsonschema.NewGoLoader(config)

	result, err := gojsonschema.Validate(schemaLoader, dataLoader)
	if err != nil {
		return err
	}

	if !result.Valid() {
		details := make([]string, 0, len(result.Errors()))
		for _, resultError := range result.Errors() {
			details = append(details, resultError.String())
		}

		return fmt.Errorf("schema validation failed: %s", strings.Join(details, "; "))
	}

	return nil
}
