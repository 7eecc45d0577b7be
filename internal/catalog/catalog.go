// Package catalog lists the release identifiers available in the image registry.
package catalog

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ecr"
	"github.com/aws/aws-sdk-go-v2/service/ecr/types"
	"github.com/rs/zerolog/log"

	"github.com/alvesdmateus/ecs-deployer/pkg/models"
)

// DefaultListLimit is how many of the most recent versions List returns
const DefaultListLimit = 10

// Version is one published image
type Version struct {
	Tag      string    `json:"tag" yaml:"tag"`
	Tags     []string  `json:"tags" yaml:"tags"`
	Digest   string    `json:"digest" yaml:"digest"`
	PushedAt time.Time `json:"pushedAt" yaml:"pushedAt"`
}

// Lister lists and looks up versions
type Lister interface {
	List(ctx context.Context) ([]Version, error)
	Exists(ctx context.Context, tag string) (bool, error)
}

// Catalog reads versions from an ECR repository
type Catalog struct {
	api        ecr.DescribeImagesAPIClient
	repository string
	limit      int
}

// New creates a catalog for the given repository
func New(api ecr.DescribeImagesAPIClient, repository string) *Catalog {
	return &Catalog{api: api, repository: repository, limit: DefaultListLimit}
}

// List returns the most recent tagged images, oldest first
func (c *Catalog) List(ctx context.Context) ([]Version, error) {
	log.Debug().Str("repository", c.repository).Msg("Listing images")

	paginator := ecr.NewDescribeImagesPaginator(c.api, &ecr.DescribeImagesInput{
		RepositoryName: aws.String(c.repository),
		Filter:         &types.DescribeImagesFilter{TagStatus: types.TagStatusTagged},
	})

	var versions []Version
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, models.Wrap(models.ErrDependencyMissing, "describe images in "+c.repository, err)
		}
		for _, detail := range page.ImageDetails {
			if len(detail.ImageTags) == 0 {
				continue
			}
			versions = append(versions, toVersion(detail))
		}
	}

	sort.SliceStable(versions, func(i, j int) bool {
		return versions[i].PushedAt.Before(versions[j].PushedAt)
	})
	if len(versions) > c.limit {
		versions = versions[len(versions)-c.limit:]
	}

	log.Debug().Int("count", len(versions)).Msg("Images listed")
	return versions, nil
}

// Exists reports whether an image with the given tag is in the repository
func (c *Catalog) Exists(ctx context.Context, tag string) (bool, error) {
	_, err := c.api.DescribeImages(ctx, &ecr.DescribeImagesInput{
		RepositoryName: aws.String(c.repository),
		ImageIds:       []types.ImageIdentifier{{ImageTag: aws.String(tag)}},
	})
	if err == nil {
		return true, nil
	}

	// A tag the registry rejects as malformed cannot name a stored image
	var notFound *types.ImageNotFoundException
	var invalid *types.InvalidParameterException
	if errors.As(err, &notFound) || errors.As(err, &invalid) {
		return false, nil
	}
	return false, models.Wrap(models.ErrDependencyMissing, "describe image "+tag, err)
}

func toVersion(detail types.ImageDetail) Version {
	tags := append([]string(nil), detail.ImageTags...)
	sort.Strings(tags)

	v := Version{
		Tag:      tags[0],
		Tags:     tags,
		Digest:   aws.ToString(detail.ImageDigest),
		PushedAt: aws.ToTime(detail.ImagePushedAt),
	}
	for _, tag := range tags {
		if tag != models.LatestTag {
			v.Tag = tag
			break
		}
	}
	return v
}
