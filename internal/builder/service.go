package builder

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/alvesdmateus/ecs-deployer/pkg/models"
)

// ErrBuildTimeout is returned when a build exceeds the configured timeout
var ErrBuildTimeout = errors.New("build timeout exceeded")

// DefaultBuildTimeout is the default maximum time allowed for a build
const DefaultBuildTimeout = 30 * time.Minute

// Service implements Publisher
type Service struct {
	buildStrategy  BuildStrategy
	registryClient RegistryClient
	options        Options
	buildTimeout   time.Duration
}

// NewService creates a new build service
func NewService(strategy BuildStrategy, registryClient RegistryClient, options Options) *Service {
	buildTimeout := options.Timeout
	if buildTimeout <= 0 {
		buildTimeout = DefaultBuildTimeout
	}

	return &Service{
		buildStrategy:  strategy,
		registryClient: registryClient,
		options:        options,
		buildTimeout:   buildTimeout,
	}
}

// RegistryURI returns the repository URI images are pushed to
func (s *Service) RegistryURI(ctx context.Context) (string, error) {
	return s.registryClient.ResolveURI(ctx)
}

// Publish runs the publish sequence:
// 1. Build one image tagged latest
// 2. Tag the same image with the release identifier
// 3. Obtain fresh registry credentials
// 4. Push latest, then the identifier tag
func (s *Service) Publish(ctx context.Context, identifier string) (*PublishResult, error) {
	startTime := time.Now()

	uri, err := s.registryClient.ResolveURI(ctx)
	if err != nil {
		return nil, err
	}

	latestRef := models.ImageRef(uri, models.LatestTag)
	imageRef := models.ImageRef(uri, identifier)

	log.Info().
		Str("identifier", identifier).
		Str("imageRef", imageRef).
		Dur("timeout", s.buildTimeout).
		Msg("Publishing release image")

	buildCtx, cancel := context.WithTimeout(ctx, s.buildTimeout)
	defer cancel()

	result, err := s.buildStrategy.Build(buildCtx, &BuildContext{
		Identifier: identifier,
		ContextDir: s.options.ContextDir,
		Dockerfile: s.options.Dockerfile,
		Platform:   s.options.Platform,
		NoCache:    s.options.NoCache,
		Tags:       []string{latestRef},
		Labels: map[string]string{
			"org.opencontainers.image.revision": identifier,
		},
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, models.Wrap(models.ErrBuildFailure, "build image",
				fmt.Errorf("%w: build exceeded maximum duration of %v", ErrBuildTimeout, s.buildTimeout))
		}
		return nil, err
	}

	// The fallback identifier is latest itself, nothing to re-tag
	if imageRef != latestRef {
		if err := s.buildStrategy.TagImage(ctx, latestRef, imageRef); err != nil {
			return nil, err
		}
	}

	creds, err := s.registryClient.Authenticate(ctx)
	if err != nil {
		return nil, err
	}

	if err := s.registryClient.Push(ctx, latestRef, creds); err != nil {
		return nil, err
	}
	if imageRef != latestRef {
		if err := s.registryClient.Push(ctx, imageRef, creds); err != nil {
			return nil, err
		}
	}

	published := &PublishResult{
		Identifier: identifier,
		ImageRef:   imageRef,
		LatestRef:  latestRef,
		ImageID:    result.ImageID,
		Duration:   time.Since(startTime),
	}

	log.Info().
		Str("imageRef", imageRef).
		Str("imageID", published.ImageID).
		Dur("duration", published.Duration).
		Msg("Release image published")

	return published, nil
}

// Close cleans up resources
func (s *Service) Close() error {
	if closer, ok := s.registryClient.(io.Closer); ok {
		if err := closer.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close registry client")
		}
	}

	if closer, ok := s.buildStrategy.(io.Closer); ok {
		if err := closer.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close build strategy")
		}
	}

	return nil
}
