package commands

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/alvesdmateus/ecs-deployer/internal/awsclient"
	"github.com/alvesdmateus/ecs-deployer/internal/builder"
	"github.com/alvesdmateus/ecs-deployer/internal/builder/registry"
	"github.com/alvesdmateus/ecs-deployer/internal/builder/strategies"
	"github.com/alvesdmateus/ecs-deployer/internal/catalog"
	"github.com/alvesdmateus/ecs-deployer/internal/deployer"
	"github.com/alvesdmateus/ecs-deployer/internal/observability"
	"github.com/alvesdmateus/ecs-deployer/internal/queue"
	"github.com/alvesdmateus/ecs-deployer/internal/release"
	"github.com/alvesdmateus/ecs-deployer/internal/revision"
	"github.com/alvesdmateus/ecs-deployer/internal/taskdef"
	"github.com/alvesdmateus/ecs-deployer/pkg/config"
)

// accessVerifier is implemented by build strategies that talk to a daemon
type accessVerifier interface {
	VerifyAccess(ctx context.Context) error
}

// app holds the wired components for one invocation
type app struct {
	cfg     config.Config
	manager *release.Manager
	service *builder.Service
	journal queue.Journal
	tracer  *observability.Tracer
}

// newApp wires every component from cfg. When needsDocker is set the Docker
// daemon is pinged before returning.
func newApp(ctx context.Context, cfg config.Config, needsDocker bool) (*app, error) {
	clients, err := awsclient.New(ctx, cfg.AWS.Region, cfg.AWS.Profile)
	if err != nil {
		return nil, err
	}
	if err := clients.VerifyCredentials(ctx); err != nil {
		return nil, err
	}

	strategy, err := strategies.CreateStrategy(strategies.StrategyTypeDocker)
	if err != nil {
		return nil, err
	}
	if verifier, ok := strategy.(accessVerifier); ok && needsDocker {
		if err := verifier.VerifyAccess(ctx); err != nil {
			return nil, err
		}
	}

	registryClient, err := registry.NewClient(registry.Config{
		Type:       string(registry.RegistryTypeECR),
		URI:        cfg.Registry.URI,
		Repository: cfg.RepositoryName(),
		Region:     cfg.AWS.Region,
	}, clients.ECR)
	if err != nil {
		return nil, err
	}

	service := builder.NewService(strategy, registryClient, builder.Options{
		ContextDir: cfg.Build.ContextDir,
		Dockerfile: cfg.Build.Dockerfile,
		Platform:   cfg.Build.Platform,
		NoCache:    cfg.Build.NoCache,
		Timeout:    cfg.Build.Timeout,
	})

	tracer, err := observability.NewTracer(ctx, observability.TracingConfig{
		Enabled:        cfg.Tracing.Enabled,
		ServiceName:    cfg.Tracing.ServiceName,
		ServiceVersion: cfg.Tracing.ServiceVersion,
		Environment:    cfg.Tracing.Environment,
		OTLPEndpoint:   cfg.Tracing.OTLPEndpoint,
		SampleRate:     cfg.Tracing.SampleRate,
		Insecure:       cfg.Tracing.Insecure,
	})
	if err != nil {
		log.Warn().Err(err).Msg("Tracing disabled")
		tracer = observability.Noop()
	}
	if tracer.IsEnabled() {
		log.Debug().
			Str("endpoint", cfg.Tracing.OTLPEndpoint).
			Float64("sampleRate", cfg.Tracing.SampleRate).
			Msg("Exporting release traces")
	}

	a := &app{cfg: cfg, service: service, tracer: tracer}

	var events queue.Publisher
	if journal := openJournal(ctx, cfg); journal != nil {
		a.journal = journal
		events = journal
	}

	a.manager = release.NewManager(
		release.Target{
			Region:  cfg.AWS.Region,
			Cluster: cfg.ECS.Cluster,
			Service: cfg.ECS.Service,
			Family:  cfg.ECS.Family,
		},
		release.Dependencies{
			Resolver:  revision.NewResolver(cfg.Build.ContextDir),
			Publisher: service,
			Specs: taskdef.NewBuilder(clients.ECS, taskdef.Template{
				Family:           cfg.ECS.Family,
				CPU:              cfg.TaskDef.CPU,
				Memory:           cfg.TaskDef.Memory,
				ContainerName:    cfg.TaskDef.ContainerName,
				Port:             int32(cfg.TaskDef.Port),
				LogGroup:         cfg.TaskDef.LogGroup,
				Region:           cfg.AWS.Region,
				ExecutionRoleARN: cfg.TaskDef.ExecutionRoleARN,
			}),
			Updater: deployer.NewECSUpdater(clients.ECS, deployer.Config{
				Cluster:     cfg.ECS.Cluster,
				Service:     cfg.ECS.Service,
				WaitTimeout: cfg.Deploy.WaitTimeout,
				MinDelay:    cfg.Deploy.WaitMinDelay,
				MaxDelay:    cfg.Deploy.WaitMaxDelay,
			}),
			Catalog: catalog.New(clients.ECR, cfg.RepositoryName()),
			Events:  events,
			Tracer:  tracer,
		},
	)

	return a, nil
}

// openJournal connects the release event journal when one is configured.
// An unreachable journal only costs the event, so it is logged and skipped.
func openJournal(ctx context.Context, cfg config.Config) queue.Journal {
	if cfg.Events.RedisURL == "" {
		return nil
	}

	journal, err := queue.NewRedisJournal(ctx, queue.Options{
		URL:      cfg.Events.RedisURL,
		Password: cfg.Events.Password,
		DB:       cfg.Events.DB,
		Retain:   cfg.Events.Retain,
	})
	if err != nil {
		log.Warn().Err(err).Msg("Release journal unavailable, events will not be recorded")
		return nil
	}
	return journal
}

// Close releases clients and flushes spans
func (a *app) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := a.service.Close(); err != nil {
		log.Warn().Err(err).Msg("Failed to close build service")
	}
	if a.journal != nil {
		if err := a.journal.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close release journal")
		}
	}
	if a.tracer.IsEnabled() {
		if err := a.tracer.Shutdown(ctx); err != nil {
			log.Warn().Err(err).Msg("Failed to flush traces")
		}
	}
}
