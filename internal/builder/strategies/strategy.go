package strategies

import (
	"context"

	"github.com/alvesdmateus/ecs-deployer/internal/builder/buildtypes"
)

// Strategy defines how to build container images
type Strategy interface {
	// Build builds one container image from a local build context
	Build(ctx context.Context, buildCtx *buildtypes.BuildContext) (*buildtypes.BuildResult, error)

	// TagImage adds targetTag to the image referenced by sourceTag
	TagImage(ctx context.Context, sourceTag, targetTag string) error

	// Name returns the strategy name (e.g., "docker")
	Name() string
}

// StrategyType defines the type of build strategy
type StrategyType string

const (
	StrategyTypeDocker StrategyType = "docker"
)

// ErrUnknownStrategy is returned when an unknown strategy type is requested
type ErrUnknownStrategy struct {
	Type StrategyType
}

func (e ErrUnknownStrategy) Error() string {
	return "unknown strategy type: " + string(e.Type)
}

// CreateStrategy creates a build strategy based on the specified type
func CreateStrategy(strategyType StrategyType) (Strategy, error) {
	switch strategyType {
	case StrategyTypeDocker, "":
		return NewDockerStrategy()
	default:
		return nil, ErrUnknownStrategy{Type: strategyType}
	}
}
