package imageref

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/buildgate/buildgate/pkg/models"
)

func TestReference_String(t *testing.T) {
	runContext := models.RunContext{
		Event: models.EventKindPush,
		Ref:   "main",
		Owner: "Foo",
		SHA:   "abc123",
	}

	reference := NewReference(runContext, "nikolaik")

	assert.Equal(t, "ghcr.io/foo/runtime:abc123-nikolaik", reference.String())
}

func TestReference_String_LowercasesWholeReference(t *testing.T) {
	reference := Reference{
		Registry: "GHCR.IO",
		Owner:    "All-Hands-AI",
		SHA:      "ABC123DEF",
		Tag:      "Nikolaik",
	}

	assert.Equal(t, "ghcr.io/all-hands-ai/runtime:abc123def-nikolaik", reference.String())
}

func TestReference_String_DefaultsRegistry(t *testing.T) {
	reference := Reference{Owner: "foo", SHA: "abc", Tag: "golang"}

	assert.Equal(t, "ghcr.io/foo/runtime:abc-golang", reference.String())
}

func TestReference_ProducerConsumerAgree(t *testing.T) {
	runContext := models.RunContext{
		Event: models.EventKindPush,
		Ref:   "main",
		Owner: "Acme",
		SHA:   "deadBEEF",
	}

	producer := NewReference(runContext, "ubuntu").String()
	consumer := NewReference(runContext, "ubuntu").String()

	assert.Equal(t, producer, consumer)
}

func TestArtifactKey(t *testing.T) {
	assert.Equal(t, "runtime-nikolaik", ArtifactKey("nikolaik"))
	assert.Equal(t, "runtime-golang", ArtifactKey("Golang"))
}

func TestDeliveryFor(t *testing.T) {
	tests := []struct {
		name       string
		runContext models.RunContext
		want       DeliveryMode
	}{
		{
			name:       "fork pull request uses artifact handoff",
			runContext: models.RunContext{Event: models.EventKindPullRequest, Fork: true},
			want:       DeliveryArtifact,
		},
		{
			name:       "same-repo pull request uses registry",
			runContext: models.RunContext{Event: models.EventKindPullRequest, Fork: false},
			want:       DeliveryRegistry,
		},
		{
			name:       "trunk push uses registry",
			runContext: models.RunContext{Event: models.EventKindPush, Ref: "main"},
			want:       DeliveryRegistry,
		},
		{
			name:       "fork flag without pull request uses registry",
			runContext: models.RunContext{Event: models.EventKindPush, Ref: "main", Fork: true},
			want:       DeliveryRegistry,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DeliveryFor(tt.runContext))
		})
	}
}
