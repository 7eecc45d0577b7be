// Package release sequences the build, deploy and rollback workflows.
package release

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/alvesdmateus/ecs-deployer/internal/builder"
	"github.com/alvesdmateus/ecs-deployer/internal/catalog"
	"github.com/alvesdmateus/ecs-deployer/internal/deployer"
	"github.com/alvesdmateus/ecs-deployer/internal/observability"
	"github.com/alvesdmateus/ecs-deployer/internal/queue"
	"github.com/alvesdmateus/ecs-deployer/internal/taskdef"
	"github.com/alvesdmateus/ecs-deployer/pkg/models"
)

// RevisionResolver turns an optional rollback tag into a release identifier
type RevisionResolver interface {
	Resolve(rollbackTag string) string
}

// SpecBuilder renders task definition revisions and registers them
type SpecBuilder interface {
	Render(ctx context.Context, imageRef string) (*taskdef.Spec, error)
	Build(ctx context.Context, imageRef string) (string, error)
}

// Target identifies the service being released
type Target struct {
	Region  string
	Cluster string
	Service string
	Family  string
}

// Dependencies are the components a Manager coordinates. Events and Tracer are optional.
type Dependencies struct {
	Resolver  RevisionResolver
	Publisher builder.Publisher
	Specs     SpecBuilder
	Updater   deployer.Updater
	Catalog   catalog.Lister
	Events    queue.Publisher
	Tracer    *observability.Tracer
}

// Result summarises one workflow run
type Result struct {
	Action         models.ReleaseAction
	Identifier     string
	ImageRef       string
	TaskDefinition string
	Outcome        models.Outcome
	Warnings       []string
}

// Manager runs release workflows against one service
type Manager struct {
	target Target
	deps   Dependencies
}

// NewManager creates a release manager
func NewManager(target Target, deps Dependencies) *Manager {
	if deps.Tracer == nil {
		deps.Tracer = observability.Noop()
	}
	return &Manager{target: target, deps: deps}
}

// Build publishes an image for the current source revision
func (m *Manager) Build(ctx context.Context) (result *Result, err error) {
	ctx, span := m.startWorkflow(ctx, models.ActionBuild)
	defer func() { observability.EndSpan(span, err) }()

	identifier := m.resolve(ctx, "")

	published, err := m.publish(ctx, identifier)
	if err != nil {
		return nil, err
	}

	result = &Result{
		Action:     models.ActionBuild,
		Identifier: identifier,
		ImageRef:   published.ImageRef,
	}
	m.finish(ctx, span, result)
	return result, nil
}

// Deploy publishes an image for the current source revision, registers a task
// definition for it and rolls the service onto it
func (m *Manager) Deploy(ctx context.Context) (result *Result, err error) {
	ctx, span := m.startWorkflow(ctx, models.ActionDeploy)
	defer func() { observability.EndSpan(span, err) }()

	identifier := m.resolve(ctx, "")

	published, err := m.publish(ctx, identifier)
	if err != nil {
		return nil, err
	}

	result = &Result{
		Action:     models.ActionDeploy,
		Identifier: identifier,
		ImageRef:   published.ImageRef,
	}
	if err := m.release(ctx, result); err != nil {
		return nil, err
	}

	m.finish(ctx, span, result)
	return result, nil
}

// Rollback points the service at an image already in the registry. Nothing is built.
func (m *Manager) Rollback(ctx context.Context, tag string) (result *Result, err error) {
	ctx, span := m.startWorkflow(ctx, models.ActionRollback)
	defer func() { observability.EndSpan(span, err) }()

	tag = strings.TrimSpace(tag)
	if tag == "" {
		return nil, models.Wrap(models.ErrMissingInput, "rollback", fmt.Errorf("a version tag is required"))
	}

	exists, err := m.deps.Catalog.Exists(ctx, tag)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, models.Wrap(models.ErrUnknownVersion, "rollback",
			fmt.Errorf("tag %q not found in registry", tag))
	}

	identifier := m.resolve(ctx, tag)

	uri, err := m.deps.Publisher.RegistryURI(ctx)
	if err != nil {
		return nil, err
	}

	result = &Result{
		Action:     models.ActionRollback,
		Identifier: identifier,
		ImageRef:   models.ImageRef(uri, identifier),
	}

	log.Info().
		Str("identifier", identifier).
		Str("imageRef", result.ImageRef).
		Msg("Rolling back")

	if err := m.release(ctx, result); err != nil {
		return nil, err
	}

	m.finish(ctx, span, result)
	return result, nil
}

// List returns the most recent versions in the registry, oldest first
func (m *Manager) List(ctx context.Context) ([]catalog.Version, error) {
	ctx, span := m.deps.Tracer.StartSpan(ctx, "release.list", m.spanAttributes("LIST")...)
	versions, err := m.deps.Catalog.List(ctx)
	observability.EndSpan(span, err)
	return versions, err
}

// Plan renders the task definition a deploy (empty tag) or rollback would
// register, without building or changing anything
func (m *Manager) Plan(ctx context.Context, tag string) (*taskdef.Spec, error) {
	identifier := m.resolve(ctx, tag)

	uri, err := m.deps.Publisher.RegistryURI(ctx)
	if err != nil {
		return nil, err
	}

	return m.deps.Specs.Render(ctx, models.ImageRef(uri, identifier))
}

func (m *Manager) resolve(ctx context.Context, tag string) string {
	_, span := m.deps.Tracer.StartSpan(ctx, "revision.resolve")
	identifier := m.deps.Resolver.Resolve(tag)
	span.SetAttributes(observability.AttrReleaseIdentifier.String(identifier))
	span.End()

	log.Info().Str("identifier", identifier).Msg("Resolved release identifier")
	return identifier
}

func (m *Manager) publish(ctx context.Context, identifier string) (published *builder.PublishResult, err error) {
	ctx, span := m.deps.Tracer.StartSpan(ctx, "image.publish",
		observability.AttrReleaseIdentifier.String(identifier))
	defer func() { observability.EndSpan(span, err) }()

	published, err = m.deps.Publisher.Publish(ctx, identifier)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(observability.AttrImageRef.String(published.ImageRef))
	return published, nil
}

// release registers a task definition for result.ImageRef and updates the service
func (m *Manager) release(ctx context.Context, result *Result) error {
	arn, err := m.register(ctx, result.ImageRef)
	if err != nil {
		return err
	}
	result.TaskDefinition = arn

	outcome, err := m.update(ctx, arn)
	if err != nil {
		return err
	}
	result.Outcome = outcome

	if outcome == models.OutcomeTimedOut {
		warning := fmt.Sprintf("service %s did not stabilize within the wait budget; check the ECS console", m.target.Service)
		result.Warnings = append(result.Warnings, warning)
		log.Warn().Str("taskDefinition", arn).Msg(warning)
	}
	return nil
}

func (m *Manager) register(ctx context.Context, imageRef string) (arn string, err error) {
	ctx, span := m.deps.Tracer.StartSpan(ctx, "taskdef.register", observability.AttrImageRef.String(imageRef))
	defer func() { observability.EndSpan(span, err) }()

	arn, err = m.deps.Specs.Build(ctx, imageRef)
	if err != nil {
		return "", err
	}
	span.SetAttributes(observability.AttrTaskDefinition.String(arn))
	return arn, nil
}

func (m *Manager) update(ctx context.Context, arn string) (outcome models.Outcome, err error) {
	ctx, span := m.deps.Tracer.StartSpan(ctx, "service.update", observability.AttrTaskDefinition.String(arn))
	defer func() { observability.EndSpan(span, err) }()

	outcome, err = m.deps.Updater.Update(ctx, arn)
	span.SetAttributes(observability.AttrReleaseOutcome.String(string(outcome)))
	return outcome, err
}

func (m *Manager) startWorkflow(ctx context.Context, action models.ReleaseAction) (context.Context, trace.Span) {
	log.Info().
		Str("action", string(action)).
		Str("cluster", m.target.Cluster).
		Str("service", m.target.Service).
		Msg("Starting release workflow")

	return m.deps.Tracer.StartSpan(ctx, "release."+strings.ToLower(string(action)),
		m.spanAttributes(string(action))...)
}

func (m *Manager) spanAttributes(action string) []attribute.KeyValue {
	return observability.ReleaseSpanAttributes(action, m.target.Cluster, m.target.Service, m.target.Region)
}

// finish logs the summary and records the release event
func (m *Manager) finish(ctx context.Context, span trace.Span, result *Result) {
	span.SetAttributes(
		observability.AttrReleaseIdentifier.String(result.Identifier),
		observability.AttrImageRef.String(result.ImageRef),
	)

	log.Info().
		Str("action", string(result.Action)).
		Str("identifier", result.Identifier).
		Str("imageRef", result.ImageRef).
		Str("taskDefinition", result.TaskDefinition).
		Str("outcome", string(result.Outcome)).
		Msg("Release workflow finished")

	if m.deps.Events == nil {
		return
	}

	event := models.NewReleaseEvent(result.Action)
	event.Cluster = m.target.Cluster
	event.Service = m.target.Service
	event.Family = m.target.Family
	event.Identifier = result.Identifier
	event.ImageRef = result.ImageRef
	event.TaskDefinition = result.TaskDefinition
	event.Outcome = result.Outcome

	if err := m.deps.Events.Publish(ctx, event); err != nil {
		warning := "release event was not recorded: " + err.Error()
		result.Warnings = append(result.Warnings, warning)
		log.Warn().Err(err).Str("eventID", event.ID.String()).Msg("Failed to record release event")
	}
}
