package strategies

import (
	"archive/tar"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/build"
	"github.com/docker/docker/client"
	"github.com/rs/zerolog/log"

	"github.com/alvesdmateus/ecs-deployer/internal/builder/buildtypes"
	"github.com/alvesdmateus/ecs-deployer/pkg/models"
)

// dockerAPI is the subset of the Docker Engine client used for builds
type dockerAPI interface {
	Ping(ctx context.Context) (types.Ping, error)
	ImageBuild(ctx context.Context, buildContext io.Reader, options build.ImageBuildOptions) (build.ImageBuildResponse, error)
	ImageTag(ctx context.Context, source, target string) error
	Close() error
}

// excludedDirs are never sent to the daemon
var excludedDirs = map[string]bool{
	".git":         true,
	".github":      true,
	"node_modules": true,
}

// DockerStrategy implements Strategy using the Docker Engine API
type DockerStrategy struct {
	client dockerAPI
}

// NewDockerStrategy creates a new Docker build strategy
func NewDockerStrategy() (*DockerStrategy, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, models.Wrap(models.ErrDependencyMissing, "create docker client", err)
	}

	return &DockerStrategy{
		client: cli,
	}, nil
}

// Name returns the strategy name
func (s *DockerStrategy) Name() string {
	return string(StrategyTypeDocker)
}

// VerifyAccess checks if the Docker daemon is accessible
func (s *DockerStrategy) VerifyAccess(ctx context.Context) error {
	if _, err := s.client.Ping(ctx); err != nil {
		return models.Wrap(models.ErrDependencyMissing, "ping docker daemon", err)
	}
	return nil
}

// Build builds a single image from the build context, applying every tag in
// buildCtx.Tags to that one build output
func (s *DockerStrategy) Build(ctx context.Context, buildCtx *buildtypes.BuildContext) (*buildtypes.BuildResult, error) {
	startTime := time.Now()
	result := &buildtypes.BuildResult{
		Success: false,
	}

	if len(buildCtx.Tags) == 0 {
		result.Error = models.Wrap(models.ErrBuildFailure, "build image", errors.New("no image tag given"))
		return result, result.Error
	}
	imageTag := buildCtx.Tags[0]

	dockerfile := buildCtx.Dockerfile
	if dockerfile == "" {
		dockerfile = "Dockerfile"
	}
	if _, err := os.Stat(filepath.Join(buildCtx.ContextDir, dockerfile)); err != nil {
		result.Error = models.Wrap(models.ErrBuildFailure, "locate dockerfile", err)
		return result, result.Error
	}

	log.Info().
		Str("imageTag", imageTag).
		Str("context", buildCtx.ContextDir).
		Str("dockerfile", buildCtx.Dockerfile).
		Msg("Building Docker image")

	buildContextTar, err := createBuildContext(buildCtx.ContextDir)
	if err != nil {
		result.Error = models.Wrap(models.ErrBuildFailure, "create build context", err)
		return result, result.Error
	}
	defer buildContextTar.Close()

	buildOptions := build.ImageBuildOptions{
		Tags:        buildCtx.Tags,
		Dockerfile:  dockerfile,
		Platform:    buildCtx.Platform,
		NoCache:     buildCtx.NoCache,
		Remove:      true,
		ForceRemove: true,
		PullParent:  true,
		Labels:      buildCtx.Labels,
	}

	buildResponse, err := s.client.ImageBuild(ctx, buildContextTar, buildOptions)
	if err != nil {
		result.Error = models.Wrap(models.ErrBuildFailure, "docker build", err)
		return result, result.Error
	}
	defer buildResponse.Body.Close()

	var buildLog strings.Builder
	imageID, err := streamBuildOutput(ctx, buildResponse.Body, &buildLog)
	result.BuildLog = buildLog.String()
	if err != nil {
		result.Error = models.Wrap(models.ErrBuildFailure, "docker build", err)
		return result, result.Error
	}

	result.Success = true
	result.ImageTag = imageTag
	result.ImageID = imageID
	result.BuildDuration = time.Since(startTime)

	log.Info().
		Str("imageTag", imageTag).
		Str("imageID", imageID).
		Dur("duration", result.BuildDuration).
		Msg("Docker build completed successfully")

	return result, nil
}

// TagImage tags an existing image with a new tag
func (s *DockerStrategy) TagImage(ctx context.Context, sourceTag, targetTag string) error {
	log.Info().
		Str("source", sourceTag).
		Str("target", targetTag).
		Msg("Tagging Docker image")

	if err := s.client.ImageTag(ctx, sourceTag, targetTag); err != nil {
		return models.Wrap(models.ErrBuildFailure, "tag image "+targetTag, err)
	}

	return nil
}

// Close closes the Docker client connection
func (s *DockerStrategy) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}

// createBuildContext creates a tar archive of the build context
func createBuildContext(sourcePath string) (io.ReadCloser, error) {
	info, err := os.Stat(sourcePath)
	if err != nil {
		return nil, fmt.Errorf("build context: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("build context %s is not a directory", sourcePath)
	}

	buf := new(bytes.Buffer)
	tw := tar.NewWriter(buf)

	err = filepath.Walk(sourcePath, func(file string, fi os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		relPath, err := filepath.Rel(sourcePath, file)
		if err != nil {
			return err
		}
		if relPath == "." {
			return nil
		}

		if excludedDirs[fi.Name()] {
			if fi.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		link := ""
		if fi.Mode()&os.ModeSymlink != 0 {
			if link, err = os.Readlink(file); err != nil {
				return err
			}
		}

		header, err := tar.FileInfoHeader(fi, link)
		if err != nil {
			return err
		}
		header.Name = filepath.ToSlash(relPath)

		if err := tw.WriteHeader(header); err != nil {
			return err
		}

		if !fi.Mode().IsRegular() {
			return nil
		}

		data, err := os.Open(file)
		if err != nil {
			return err
		}
		defer data.Close()

		_, err = io.Copy(tw, data)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create tar archive: %w", err)
	}

	if err := tw.Close(); err != nil {
		return nil, fmt.Errorf("failed to finalize tar archive: %w", err)
	}

	return io.NopCloser(bytes.NewReader(buf.Bytes())), nil
}

// streamBuildOutput consumes the daemon's JSON message stream and returns the
// built image ID
func streamBuildOutput(ctx context.Context, reader io.Reader, buildLog *strings.Builder) (string, error) {
	decoder := json.NewDecoder(reader)
	var imageID string

	for {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		default:
		}

		var msg struct {
			Stream      string          `json:"stream"`
			Aux         json.RawMessage `json:"aux"`
			Error       string          `json:"error"`
			ErrorDetail struct {
				Message string `json:"message"`
			} `json:"errorDetail"`
		}

		if err := decoder.Decode(&msg); err != nil {
			if err == io.EOF {
				return imageID, nil
			}
			return "", fmt.Errorf("failed to decode build output: %w", err)
		}

		if msg.Error != "" {
			buildLog.WriteString(msg.Error)
			detail := msg.ErrorDetail.Message
			if detail == "" {
				detail = msg.Error
			}
			return "", fmt.Errorf("build error: %s", detail)
		}

		if len(msg.Aux) > 0 {
			var aux struct {
				ID string `json:"ID"`
			}
			if json.Unmarshal(msg.Aux, &aux) == nil && aux.ID != "" {
				imageID = aux.ID
			}
		}

		if msg.Stream != "" {
			buildLog.WriteString(msg.Stream)
			log.Debug().Str("output", strings.TrimSpace(msg.Stream)).Msg("Build output")
		}
	}
}
