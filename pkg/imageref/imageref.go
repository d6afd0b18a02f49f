// Package imageref derives container image references and artifact handoff
// keys for a run, and selects the delivery mode between the registry and the
// artifact store.
package imageref

import (
	"fmt"
	"strings"

	"github.com/buildgate/buildgate/pkg/models"
)

// DefaultRegistry is the container registry images are published to.
const DefaultRegistry = "ghcr.io"

// ImageName is the repository name images are published under.
const ImageName = "runtime"

// DeliveryMode selects how the built image travels from the build job to its
// consumers. The two modes are mutually exclusive for any run.
type DeliveryMode string

const (
	// DeliveryRegistry pushes to and pulls from the container registry.
	DeliveryRegistry DeliveryMode = "registry"
	// DeliveryArtifact exports the image as a file artifact and loads it on
	// the consumer side. Used for fork pull requests, which lack registry
	// write credentials.
	DeliveryArtifact DeliveryMode = "artifact"
)

// DeliveryFor selects the delivery mode for a run context.
func DeliveryFor(runContext models.RunContext) DeliveryMode {
	if runContext.IsForkPullRequest() {
		return DeliveryArtifact
	}

	return DeliveryRegistry
}

// Reference identifies one published image. The producer and every consumer
// derive the reference from the same (owner, sha, tag) triple, so the
// rendered string is byte-identical on both sides.
type Reference struct {
	Registry string
	Owner    string
	SHA      string
	Tag      string
}

// NewReference derives the image reference for a run context and matrix tag.
func NewReference(runContext models.RunContext, tag string) Reference {
	return Reference{
		Registry: DefaultRegistry,
		Owner:    runContext.Owner,
		SHA:      runContext.SHA,
		Tag:      tag,
	}
}

// String renders the reference as {registry}/{owner}/runtime:{sha}-{tag},
// lower-cased in full. Registry namespaces are case-sensitive and
// conventionally lower-case only, so the folding is applied to the whole
// rendered string rather than per field.
func (r Reference) String() string {
	registry := r.Registry
	if registry == "" {
		registry = DefaultRegistry
	}

	return strings.ToLower(fmt.Sprintf("%s/%s/%s:%s-%s", registry, r.Owner, ImageName, r.SHA, r.Tag))
}

// ArtifactKey derives the name-addressed handoff key for an image artifact.
// The producer writes under this key and every consumer reads the same key.
func ArtifactKey(tag string) string {
	return "runtime-" + strings.ToLower(tag)
}
