package release

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ecs"
	ecstypes "github.com/aws/aws-sdk-go-v2/service/ecs/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/alvesdmateus/ecs-deployer/internal/builder"
	"github.com/alvesdmateus/ecs-deployer/internal/catalog"
	"github.com/alvesdmateus/ecs-deployer/internal/observability"
	"github.com/alvesdmateus/ecs-deployer/internal/taskdef"
	"github.com/alvesdmateus/ecs-deployer/pkg/models"
)

const (
	registryURI = "123456789012.dkr.ecr.us-east-1.amazonaws.com/app"
	newArn      = "arn:aws:ecs:us-east-1:123456789012:task-definition/app-task:7"
)

// calls records the order of side-effecting steps across all fakes
type calls []string

type fakeResolver struct {
	head string
}

func (f *fakeResolver) Resolve(rollbackTag string) string {
	if rollbackTag != "" {
		return rollbackTag
	}
	return f.head
}

type fakePublisher struct {
	log        *calls
	err        error
	uriErr     error
	identifier string
}

func (f *fakePublisher) Publish(ctx context.Context, identifier string) (*builder.PublishResult, error) {
	*f.log = append(*f.log, "publish:"+identifier)
	f.identifier = identifier
	if f.err != nil {
		return nil, f.err
	}
	return &builder.PublishResult{
		Identifier: identifier,
		ImageRef:   models.ImageRef(registryURI, identifier),
		LatestRef:  models.ImageRef(registryURI, models.LatestTag),
		ImageID:    "sha256:abc",
	}, nil
}

func (f *fakePublisher) RegistryURI(ctx context.Context) (string, error) {
	if f.uriErr != nil {
		return "", f.uriErr
	}
	return registryURI, nil
}

var specTemplate = taskdef.Template{
	Family:        "app-task",
	CPU:           "256",
	Memory:        "512",
	ContainerName: "app",
	Port:          8080,
	LogGroup:      "/ecs/app-task",
	Region:        "us-east-1",
}

type fakeSpecs struct {
	log         *calls
	registerErr error
	rendered    []string
	registered  []*taskdef.Spec
}

func (f *fakeSpecs) Render(ctx context.Context, imageRef string) (*taskdef.Spec, error) {
	f.rendered = append(f.rendered, imageRef)
	return taskdef.Default(specTemplate, imageRef), nil
}

func (f *fakeSpecs) Build(ctx context.Context, imageRef string) (string, error) {
	spec, err := f.Render(ctx, imageRef)
	if err != nil {
		return "", err
	}
	*f.log = append(*f.log, "register:"+spec.Image())
	f.registered = append(f.registered, spec)
	if f.registerErr != nil {
		return "", f.registerErr
	}
	return newArn, nil
}

type fakeUpdater struct {
	log     *calls
	outcome models.Outcome
	err     error
}

func (f *fakeUpdater) Update(ctx context.Context, taskDefinition string) (models.Outcome, error) {
	*f.log = append(*f.log, "update:"+taskDefinition)
	if f.err != nil {
		return models.OutcomeNone, f.err
	}
	return f.outcome, nil
}

type fakeCatalog struct {
	tags     map[string]bool
	versions []catalog.Version
	err      error
}

func (f *fakeCatalog) List(ctx context.Context) ([]catalog.Version, error) {
	return f.versions, f.err
}

func (f *fakeCatalog) Exists(ctx context.Context, tag string) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	return f.tags[tag], nil
}

type fakeEvents struct {
	events []*models.ReleaseEvent
	err    error
}

func (f *fakeEvents) Publish(ctx context.Context, event *models.ReleaseEvent) error {
	f.events = append(f.events, event)
	return f.err
}

type fixture struct {
	calls     *calls
	publisher *fakePublisher
	specs     *fakeSpecs
	updater   *fakeUpdater
	catalog   *fakeCatalog
	events    *fakeEvents
	recorder  *tracetest.SpanRecorder
	manager   *Manager
}

func newFixture() *fixture {
	log := &calls{}
	f := &fixture{
		calls:     log,
		publisher: &fakePublisher{log: log},
		specs:     &fakeSpecs{log: log},
		updater:   &fakeUpdater{log: log, outcome: models.OutcomeStable},
		catalog:   &fakeCatalog{tags: map[string]bool{"a1b2c3d": true, models.LatestTag: true}},
		events:    &fakeEvents{},
		recorder:  tracetest.NewSpanRecorder(),
	}

	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(f.recorder))
	f.manager = NewManager(
		Target{Region: "us-east-1", Cluster: "app-cluster", Service: "app-service", Family: "app-task"},
		Dependencies{
			Resolver:  &fakeResolver{head: "f00dbab"},
			Publisher: f.publisher,
			Specs:     f.specs,
			Updater:   f.updater,
			Catalog:   f.catalog,
			Events:    f.events,
			Tracer:    observability.NewTracerWithProvider(provider, "test"),
		},
	)
	return f
}

func (f *fixture) spanNames() []string {
	var names []string
	for _, span := range f.recorder.Ended() {
		names = append(names, span.Name())
	}
	return names
}

func TestBuild(t *testing.T) {
	f := newFixture()

	result, err := f.manager.Build(context.Background())
	require.NoError(t, err)

	assert.Equal(t, models.ActionBuild, result.Action)
	assert.Equal(t, "f00dbab", result.Identifier)
	assert.Equal(t, registryURI+":f00dbab", result.ImageRef)
	assert.Empty(t, result.TaskDefinition)
	assert.Equal(t, calls{"publish:f00dbab"}, *f.calls)

	require.Len(t, f.events.events, 1)
	assert.Equal(t, models.ActionBuild, f.events.events[0].Action)
}

func TestDeploy(t *testing.T) {
	f := newFixture()

	result, err := f.manager.Deploy(context.Background())
	require.NoError(t, err)

	assert.Equal(t, models.OutcomeStable, result.Outcome)
	assert.Equal(t, newArn, result.TaskDefinition)
	assert.Empty(t, result.Warnings)
	assert.Equal(t, calls{
		"publish:f00dbab",
		"register:" + registryURI + ":f00dbab",
		"update:" + newArn,
	}, *f.calls)

	require.Len(t, f.events.events, 1)
	event := f.events.events[0]
	assert.Equal(t, models.ActionDeploy, event.Action)
	assert.Equal(t, "app-cluster", event.Cluster)
	assert.Equal(t, "app-service", event.Service)
	assert.Equal(t, "app-task", event.Family)
	assert.Equal(t, newArn, event.TaskDefinition)
	assert.Equal(t, models.OutcomeStable, event.Outcome)

	assert.Equal(t, []string{"revision.resolve", "image.publish", "taskdef.register", "service.update", "release.deploy"}, f.spanNames())
}

func TestDeploy_TimedOutIsWarning(t *testing.T) {
	f := newFixture()
	f.updater.outcome = models.OutcomeTimedOut

	result, err := f.manager.Deploy(context.Background())
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeTimedOut, result.Outcome)
	require.Len(t, result.Warnings, 1)
	assert.Contains(t, result.Warnings[0], "app-service")
	assert.Equal(t, 0, ExitCode(err))
}

func TestDeploy_PublishFailureStopsWorkflow(t *testing.T) {
	f := newFixture()
	f.publisher.err = models.Wrap(models.ErrPushFailure, "push", errors.New("denied"))

	result, err := f.manager.Deploy(context.Background())
	assert.Nil(t, result)
	assert.ErrorIs(t, err, models.ErrPushFailure)
	assert.Equal(t, calls{"publish:f00dbab"}, *f.calls)
	assert.Empty(t, f.events.events)
	assert.Equal(t, 1, ExitCode(err))
}

func TestDeploy_RegistrationFailureSkipsUpdate(t *testing.T) {
	f := newFixture()
	f.specs.registerErr = models.Wrap(models.ErrRegistrationFailure, "register", errors.New("invalid"))

	_, err := f.manager.Deploy(context.Background())
	assert.ErrorIs(t, err, models.ErrRegistrationFailure)
	assert.NotContains(t, *f.calls, "update:"+newArn)
}

func TestDeploy_UpdateFailure(t *testing.T) {
	f := newFixture()
	f.updater.err = models.Wrap(models.ErrUpdateFailure, "update", errors.New("service not found"))

	_, err := f.manager.Deploy(context.Background())
	assert.ErrorIs(t, err, models.ErrUpdateFailure)
	assert.Empty(t, f.events.events)

	ended := f.recorder.Ended()
	require.NotEmpty(t, ended)
	root := ended[len(ended)-1]
	assert.Equal(t, "release.deploy", root.Name())
	assert.Equal(t, "Error", root.Status().Code.String())
}

func TestDeploy_EventFailureIsWarning(t *testing.T) {
	f := newFixture()
	f.events.err = errors.New("redis down")

	result, err := f.manager.Deploy(context.Background())
	require.NoError(t, err)
	require.Len(t, result.Warnings, 1)
	assert.Contains(t, result.Warnings[0], "redis down")
}

func TestDeploy_WithoutEvents(t *testing.T) {
	f := newFixture()
	f.manager.deps.Events = nil

	_, err := f.manager.Deploy(context.Background())
	require.NoError(t, err)
}

func TestRollback(t *testing.T) {
	f := newFixture()

	result, err := f.manager.Rollback(context.Background(), "a1b2c3d")
	require.NoError(t, err)

	assert.Equal(t, models.ActionRollback, result.Action)
	assert.Equal(t, "a1b2c3d", result.Identifier)
	assert.Equal(t, registryURI+":a1b2c3d", result.ImageRef)
	assert.Equal(t, models.OutcomeStable, result.Outcome)
	assert.Equal(t, calls{
		"register:" + registryURI + ":a1b2c3d",
		"update:" + newArn,
	}, *f.calls)
	assert.Empty(t, f.publisher.identifier, "rollback must not build")
}

func TestRollback_MissingTag(t *testing.T) {
	f := newFixture()

	_, err := f.manager.Rollback(context.Background(), "  ")
	assert.ErrorIs(t, err, models.ErrMissingInput)
	assert.Empty(t, *f.calls)
}

func TestRollback_UnknownVersion(t *testing.T) {
	f := newFixture()

	_, err := f.manager.Rollback(context.Background(), "deadbee")
	assert.ErrorIs(t, err, models.ErrUnknownVersion)
	assert.Empty(t, *f.calls)
	assert.Empty(t, f.specs.rendered)
}

func TestRollback_CatalogError(t *testing.T) {
	f := newFixture()
	f.catalog.err = models.Wrap(models.ErrDependencyMissing, "describe image", errors.New("no creds"))

	_, err := f.manager.Rollback(context.Background(), "a1b2c3d")
	assert.ErrorIs(t, err, models.ErrDependencyMissing)
	assert.Empty(t, *f.calls)
}

// taskDefinitions is an in-memory ECS task definition API holding one
// active revision
type taskDefinitions struct {
	active     *ecstypes.TaskDefinition
	registered []*ecs.RegisterTaskDefinitionInput
}

func (d *taskDefinitions) DescribeTaskDefinition(ctx context.Context, params *ecs.DescribeTaskDefinitionInput, optFns ...func(*ecs.Options)) (*ecs.DescribeTaskDefinitionOutput, error) {
	return &ecs.DescribeTaskDefinitionOutput{TaskDefinition: d.active}, nil
}

func (d *taskDefinitions) RegisterTaskDefinition(ctx context.Context, params *ecs.RegisterTaskDefinitionInput, optFns ...func(*ecs.Options)) (*ecs.RegisterTaskDefinitionOutput, error) {
	d.registered = append(d.registered, params)
	return &ecs.RegisterTaskDefinitionOutput{
		TaskDefinition: &ecstypes.TaskDefinition{TaskDefinitionArn: aws.String(newArn), Revision: 7},
	}, nil
}

func priorRevision() *ecstypes.TaskDefinition {
	return &ecstypes.TaskDefinition{
		TaskDefinitionArn: aws.String("arn:aws:ecs:us-east-1:123456789012:task-definition/app-task:6"),
		Family:            aws.String("app-task"),
		Revision:          6,
		Status:            ecstypes.TaskDefinitionStatusActive,
		Cpu:               aws.String("1024"),
		Memory:            aws.String("3072"),
		NetworkMode:       ecstypes.NetworkModeAwsvpc,
		TaskRoleArn:       aws.String("arn:aws:iam::123456789012:role/appTaskRole"),
		ContainerDefinitions: []ecstypes.ContainerDefinition{
			{
				Name:  aws.String("app"),
				Image: aws.String(models.ImageRef(registryURI, "0000000")),
				Environment: []ecstypes.KeyValuePair{
					{Name: aws.String("DATABASE_POOL"), Value: aws.String("20")},
				},
			},
			{
				Name:  aws.String("log-router"),
				Image: aws.String("public.ecr.aws/aws-observability/aws-for-fluent-bit:stable"),
			},
		},
		RequiresCompatibilities: []ecstypes.Compatibility{ecstypes.CompatibilityFargate},
		RuntimePlatform: &ecstypes.RuntimePlatform{
			CpuArchitecture:       ecstypes.CPUArchitectureArm64,
			OperatingSystemFamily: ecstypes.OSFamilyLinux,
		},
		EnableFaultInjection: aws.Bool(true),
		PlacementConstraints: []ecstypes.TaskDefinitionPlacementConstraint{{Expression: aws.String("attribute:ecs.os-type == linux")}},
		RequiresAttributes:   []ecstypes.Attribute{{Name: aws.String("ecs.capability.task-eni")}},
	}
}

// registerWith runs a workflow against a real task definition builder and
// returns the document it registered
func registerWith(t *testing.T, run func(ctx context.Context, m *Manager) error) *ecs.RegisterTaskDefinitionInput {
	t.Helper()

	api := &taskDefinitions{active: priorRevision()}
	f := newFixture()
	f.manager.deps.Specs = taskdef.NewBuilder(api, specTemplate)

	require.NoError(t, run(context.Background(), f.manager))
	require.Len(t, api.registered, 1)
	return api.registered[0]
}

func TestRollbackMatchesDeployForSameIdentifier(t *testing.T) {
	deployed := registerWith(t, func(ctx context.Context, m *Manager) error {
		m.deps.Resolver = &fakeResolver{head: "a1b2c3d"}
		_, err := m.Deploy(ctx)
		return err
	})
	rolledBack := registerWith(t, func(ctx context.Context, m *Manager) error {
		_, err := m.Rollback(ctx, "a1b2c3d")
		return err
	})

	assert.Equal(t, deployed, rolledBack)

	// Both went through the clone of the active revision
	require.Len(t, deployed.ContainerDefinitions, 2)
	assert.Equal(t, registryURI+":a1b2c3d", aws.ToString(deployed.ContainerDefinitions[0].Image))
	assert.Equal(t, "DATABASE_POOL", aws.ToString(deployed.ContainerDefinitions[0].Environment[0].Name))
	assert.Equal(t, "public.ecr.aws/aws-observability/aws-for-fluent-bit:stable",
		aws.ToString(deployed.ContainerDefinitions[1].Image))
	assert.Equal(t, "1024", aws.ToString(deployed.Cpu))
	assert.Equal(t, "3072", aws.ToString(deployed.Memory))
	assert.True(t, aws.ToBool(deployed.EnableFaultInjection))
	assert.Empty(t, deployed.PlacementConstraints)
}

func TestList(t *testing.T) {
	f := newFixture()
	f.catalog.versions = []catalog.Version{{Tag: "a1b2c3d"}, {Tag: "f00dbab"}}

	versions, err := f.manager.List(context.Background())
	require.NoError(t, err)
	assert.Len(t, versions, 2)
	assert.Contains(t, f.spanNames(), "release.list")
}

func TestPlan(t *testing.T) {
	f := newFixture()

	spec, err := f.manager.Plan(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, registryURI+":f00dbab", spec.Image())
	assert.Equal(t, "app-task", aws.ToString(spec.Input.Family))
	assert.Empty(t, *f.calls, "plan must not publish, register or update")

	spec, err = f.manager.Plan(context.Background(), "a1b2c3d")
	require.NoError(t, err)
	assert.Equal(t, registryURI+":a1b2c3d", spec.Image())
}

func TestPlan_RegistryUnavailable(t *testing.T) {
	f := newFixture()
	f.publisher.uriErr = models.Wrap(models.ErrDependencyMissing, "describe repository", errors.New("not found"))

	_, err := f.manager.Plan(context.Background(), "")
	assert.ErrorIs(t, err, models.ErrDependencyMissing)
}

func TestKindAndExitCode(t *testing.T) {
	assert.Equal(t, 0, ExitCode(nil))
	assert.Nil(t, Kind(nil))
	assert.Nil(t, Kind(errors.New("plain")))

	err := models.Wrap(models.ErrAuthFailure, "authenticate", errors.New("expired"))
	assert.Equal(t, models.ErrAuthFailure, Kind(err))
	assert.Equal(t, 1, ExitCode(err))
}
