package registry

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/buildgate/buildgate/pkg/models"
	"github.com/buildgate/buildgate/pkg/protocol"
)

type mockStep struct{}

func (m *mockStep) Execute(_ context.Context, _ protocol.StepContext, _ *slog.Logger) (protocol.StepResult, error) {
	return protocol.StepResult{Status: models.JobStatusSuccess}, nil
}

type mockFactory struct{}

func (f *mockFactory) ID() string {
	return "mock"
}

func (f *mockFactory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"command": map[string]any{"type": "string"},
			"retries": map[string]any{"type": "integer", "minimum": 0},
		},
		"required":             []any{"command"},
		"additionalProperties": false,
	}
}

func (f *mockFactory) Create(_ map[string]any) (protocol.Step, error) {
	return &mockStep{}, nil
}

func newTestRegistry() *Registry {
	registry := NewRegistry(slog.Default())
	registry.RegisterStep(&mockFactory{})

	return registry
}

func TestCreateStep_ValidConfig(t *testing.T) {
	registry := newTestRegistry()

	step, err := registry.CreateStep("mock", map[string]any{"command": "make", "retries": 2})
	require.NoError(t, err)
	assert.NotNil(t, step)
}

func TestCreateStep_UnknownType(t *testing.T) {
	registry := newTestRegistry()

	_, err := registry.CreateStep("missing", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not registered")
}

func TestCreateStep_MissingRequiredProperty(t *testing.T) {
	registry := newTestRegistry()

	_, err := registry.CreateStep("mock", map[string]any{"retries": 2})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid configuration")
}

func TestCreateStep_RejectsUnknownProperty(t *testing.T) {
	registry := newTestRegistry()

	_, err := registry.CreateStep("mock", map[string]any{"command": "make", "bogus": true})
	require.Error(t, err)
}

func TestCreateStep_RejectsWrongType(t *testing.T) {
	registry := newTestRegistry()

	_, err := registry.CreateStep("mock", map[string]any{"command": 42})
	require.Error(t, err)
}

func TestAvailableSteps(t *testing.T) {
	registry := newTestRegistry()

	assert.Equal(t, []string{"mock"}, registry.AvailableSteps())
}

func TestHealthCheck(t *testing.T) {
	empty := NewRegistry(slog.Default())

	message, healthy := empty.HealthCheck()
	assert.False(t, healthy)
	assert.NotEmpty(t, message)

	registry := newTestRegistry()

	_, healthy = registry.HealthCheck()
	assert.True(t, healthy)
}
