package deployer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ecs"
	"github.com/rs/zerolog/log"

	"github.com/alvesdmateus/ecs-deployer/pkg/models"
)

// ecsAPI is the subset of the ECS client used by the updater
type ecsAPI interface {
	ecs.DescribeServicesAPIClient
	UpdateService(ctx context.Context, params *ecs.UpdateServiceInput, optFns ...func(*ecs.Options)) (*ecs.UpdateServiceOutput, error)
}

// ECSUpdater implements Updater against an ECS service
type ECSUpdater struct {
	api    ecsAPI
	config Config
}

// NewECSUpdater creates a new ECS service updater
func NewECSUpdater(api ecsAPI, config Config) *ECSUpdater {
	config = config.withDefaults()

	log.Debug().
		Str("cluster", config.Cluster).
		Str("service", config.Service).
		Dur("waitTimeout", config.WaitTimeout).
		Msg("ECS updater initialized")

	return &ECSUpdater{api: api, config: config}
}

// Update points the service at taskDefinition, then waits for it to become stable.
// Running out of wait budget is reported as OutcomeTimedOut with a nil error.
func (u *ECSUpdater) Update(ctx context.Context, taskDefinition string) (models.Outcome, error) {
	log.Info().
		Str("cluster", u.config.Cluster).
		Str("service", u.config.Service).
		Str("taskDefinition", taskDefinition).
		Msg("Updating service")

	out, err := u.api.UpdateService(ctx, &ecs.UpdateServiceInput{
		Cluster:        aws.String(u.config.Cluster),
		Service:        aws.String(u.config.Service),
		TaskDefinition: aws.String(taskDefinition),
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return models.OutcomeNone, ctxErr
		}
		return models.OutcomeNone, models.Wrap(models.ErrUpdateFailure, "update service", err)
	}

	if out != nil && out.Service != nil {
		for _, d := range out.Service.Deployments {
			if aws.ToString(d.Status) == "PRIMARY" {
				log.Debug().
					Str("deploymentID", aws.ToString(d.Id)).
					Str("rolloutState", string(d.RolloutState)).
					Msg("Primary deployment created")
			}
		}
	}

	return u.wait(ctx)
}

func (u *ECSUpdater) wait(ctx context.Context) (models.Outcome, error) {
	log.Info().
		Str("service", u.config.Service).
		Dur("timeout", u.config.WaitTimeout).
		Msg("Waiting for service to become stable")

	start := time.Now()
	waiter := ecs.NewServicesStableWaiter(u.api, func(o *ecs.ServicesStableWaiterOptions) {
		o.MinDelay = u.config.MinDelay
		o.MaxDelay = u.config.MaxDelay
	})

	err := waiter.Wait(ctx, &ecs.DescribeServicesInput{
		Cluster:  aws.String(u.config.Cluster),
		Services: []string{u.config.Service},
	}, u.config.WaitTimeout)

	switch {
	case err == nil:
		log.Info().
			Str("service", u.config.Service).
			Dur("elapsed", time.Since(start)).
			Msg("Service is stable")
		return models.OutcomeStable, nil

	case ctx.Err() != nil:
		return models.OutcomeNone, ctx.Err()

	case isWaitTimeout(err):
		log.Warn().
			Str("service", u.config.Service).
			Dur("timeout", u.config.WaitTimeout).
			Msg("Service did not stabilize in time; the rollout continues in the background")
		return models.OutcomeTimedOut, nil

	default:
		return models.OutcomeNone, models.Wrap(models.ErrUpdateFailure, "wait for service",
			fmt.Errorf("service %s: %w", u.config.Service, err))
	}
}

func isWaitTimeout(err error) bool {
	return errors.Is(err, context.DeadlineExceeded) ||
		strings.Contains(err.Error(), "exceeded max wait time")
}
