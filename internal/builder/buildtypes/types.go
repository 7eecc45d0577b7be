package buildtypes

import (
	"time"
)

// BuildContext contains all information needed for building a container image
type BuildContext struct {
	// Identifier is the release identifier the image will be pinned to
	Identifier string
	// ContextDir is the local directory sent to the daemon as build context
	ContextDir string
	// Dockerfile is relative to ContextDir
	Dockerfile string
	Platform   string
	NoCache    bool
	// Tags are applied by the build itself; the first one is the build tag
	Tags   []string
	Labels map[string]string
}

// BuildResult contains the output of a build operation
type BuildResult struct {
	ImageTag      string
	ImageID       string
	BuildDuration time.Duration
	BuildLog      string
	Success       bool
	Error         error
}
