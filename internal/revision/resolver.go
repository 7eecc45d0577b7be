package revision

import (
	"github.com/go-git/go-git/v5"
	"github.com/rs/zerolog/log"

	"github.com/alvesdmateus/ecs-deployer/pkg/models"
)

// ShortLength is the number of hex characters kept from a commit hash
const ShortLength = 7

// FallbackTag is returned when no commit can be resolved
const FallbackTag = models.LatestTag

// Resolver derives release identifiers from a git working copy
type Resolver struct {
	path string
}

// NewResolver creates a resolver for the repository containing path
func NewResolver(path string) *Resolver {
	return &Resolver{path: path}
}

// Resolve returns rollbackTag verbatim when set, otherwise the short hash of
// HEAD. Missing repository metadata yields FallbackTag.
func (r *Resolver) Resolve(rollbackTag string) string {
	if rollbackTag != "" {
		return rollbackTag
	}

	repo, err := git.PlainOpenWithOptions(r.path, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		log.Warn().
			Err(err).
			Str("path", r.path).
			Str("tag", FallbackTag).
			Msg("Not a git repository, using fallback tag")
		return FallbackTag
	}

	head, err := repo.Head()
	if err != nil {
		log.Warn().
			Err(err).
			Str("path", r.path).
			Str("tag", FallbackTag).
			Msg("No HEAD commit, using fallback tag")
		return FallbackTag
	}

	id := head.Hash().String()[:ShortLength]
	log.Debug().Str("commit", head.Hash().String()).Str("identifier", id).Msg("Resolved release identifier")
	return id
}
