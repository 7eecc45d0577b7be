package awsclient

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ecr"
	"github.com/aws/aws-sdk-go-v2/service/ecs"
	"github.com/rs/zerolog/log"

	"github.com/alvesdmateus/ecs-deployer/pkg/models"
)

// Clients bundles the AWS service clients used by the release workflow
type Clients struct {
	Config aws.Config
	ECR    *ecr.Client
	ECS    *ecs.Client
}

// New loads the shared AWS configuration for region and optional profile
func New(ctx context.Context, region, profile string) (*Clients, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(region),
	}
	if profile != "" {
		opts = append(opts, awsconfig.WithSharedConfigProfile(profile))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, models.Wrap(models.ErrDependencyMissing, "load aws config", err)
	}

	log.Debug().
		Str("region", cfg.Region).
		Str("profile", profile).
		Msg("AWS configuration loaded")

	return &Clients{
		Config: cfg,
		ECR:    ecr.NewFromConfig(cfg),
		ECS:    ecs.NewFromConfig(cfg),
	}, nil
}

// VerifyCredentials checks that credentials can be retrieved before any
// side effect is attempted
func (c *Clients) VerifyCredentials(ctx context.Context) error {
	if c.Config.Credentials == nil {
		return models.Wrap(models.ErrDependencyMissing, "verify aws credentials",
			fmt.Errorf("no credential provider configured"))
	}

	creds, err := c.Config.Credentials.Retrieve(ctx)
	if err != nil {
		return models.Wrap(models.ErrDependencyMissing, "verify aws credentials", err)
	}

	log.Debug().Str("source", creds.Source).Msg("AWS credentials available")
	return nil
}
