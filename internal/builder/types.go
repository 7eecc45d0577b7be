package builder

import (
	"context"
	"time"

	"github.com/alvesdmateus/ecs-deployer/internal/builder/buildtypes"
	"github.com/alvesdmateus/ecs-deployer/internal/builder/registry"
	"github.com/alvesdmateus/ecs-deployer/internal/builder/strategies"
)

// BuildContext is an alias for buildtypes.BuildContext
type BuildContext = buildtypes.BuildContext

// BuildResult is an alias for buildtypes.BuildResult
type BuildResult = buildtypes.BuildResult

// BuildStrategy is an alias for strategies.Strategy
type BuildStrategy = strategies.Strategy

// RegistryClient is an alias for registry.Client
type RegistryClient = registry.Client

// Publisher builds and uploads release images
type Publisher interface {
	// Publish builds one image and pushes it as both latest and identifier
	Publish(ctx context.Context, identifier string) (*PublishResult, error)

	// RegistryURI returns the repository URI images are pushed to
	RegistryURI(ctx context.Context) (string, error)
}

// PublishResult describes the two tags pushed for one build
type PublishResult struct {
	Identifier string
	ImageRef   string
	LatestRef  string
	ImageID    string
	Duration   time.Duration
}

// Options contains local build parameters
type Options struct {
	ContextDir string
	Dockerfile string
	Platform   string
	NoCache    bool
	Timeout    time.Duration
}
