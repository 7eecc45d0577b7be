package taskdef

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ecs"
	"github.com/aws/aws-sdk-go-v2/service/ecs/types"
	"github.com/rs/zerolog/log"

	"github.com/alvesdmateus/ecs-deployer/pkg/models"
)

// ecsAPI is the subset of the ECS client used for task definitions
type ecsAPI interface {
	DescribeTaskDefinition(ctx context.Context, params *ecs.DescribeTaskDefinitionInput, optFns ...func(*ecs.Options)) (*ecs.DescribeTaskDefinitionOutput, error)
	RegisterTaskDefinition(ctx context.Context, params *ecs.RegisterTaskDefinitionInput, optFns ...func(*ecs.Options)) (*ecs.RegisterTaskDefinitionOutput, error)
}

// Builder renders and registers task definition revisions for one family
type Builder struct {
	api      ecsAPI
	template Template
	tempDir  string
}

// NewBuilder creates a builder for template.Family
func NewBuilder(api ecsAPI, template Template) *Builder {
	return &Builder{
		api:      api,
		template: template,
		tempDir:  os.TempDir(),
	}
}

// SpecPath is the transient file holding the document being registered
func (b *Builder) SpecPath() string {
	return filepath.Join(b.tempDir, b.template.Family+"-task-definition.json")
}

// Render derives the next revision for imageRef from the active one, or from
// the default template when the family has no active revision
func (b *Builder) Render(ctx context.Context, imageRef string) (*Spec, error) {
	out, err := b.api.DescribeTaskDefinition(ctx, &ecs.DescribeTaskDefinitionInput{
		TaskDefinition: aws.String(b.template.Family),
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}

		var clientErr *types.ClientException
		if errors.As(err, &clientErr) {
			log.Info().
				Str("family", b.template.Family).
				Msg("No registered task definition, using default template")
		} else {
			log.Warn().
				Err(err).
				Str("family", b.template.Family).
				Msg("Could not fetch task definition, using default template")
		}
		return Default(b.template, imageRef), nil
	}

	if out.TaskDefinition == nil || len(out.TaskDefinition.ContainerDefinitions) == 0 {
		log.Warn().
			Str("family", b.template.Family).
			Msg("Registered task definition has no containers, using default template")
		return Default(b.template, imageRef), nil
	}

	spec := FromRegistered(out.TaskDefinition, imageRef)
	log.Info().
		Str("family", b.template.Family).
		Str("previous", spec.PreviousArn).
		Msg("Cloned active task definition")
	return spec, nil
}

// Build renders the next revision for imageRef and registers it, returning
// the new task definition ARN
func (b *Builder) Build(ctx context.Context, imageRef string) (string, error) {
	spec, err := b.Render(ctx, imageRef)
	if err != nil {
		return "", err
	}
	return b.register(ctx, spec)
}

// register submits spec as a new revision. The document is staged in a
// transient file that is removed before returning.
func (b *Builder) register(ctx context.Context, spec *Spec) (string, error) {
	path := b.SpecPath()
	defer func() {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			log.Warn().Err(err).Str("path", path).Msg("Failed to remove task definition file")
		}
	}()

	if err := writeSpec(path, spec.Input); err != nil {
		return "", models.Wrap(models.ErrRegistrationFailure, "write task definition", err)
	}

	input, err := readSpec(path)
	if err != nil {
		return "", models.Wrap(models.ErrRegistrationFailure, "read task definition", err)
	}

	log.Info().
		Str("family", aws.ToString(input.Family)).
		Str("image", spec.Image()).
		Str("source", string(spec.Source)).
		Msg("Registering task definition")

	out, err := b.api.RegisterTaskDefinition(ctx, input)
	if err != nil {
		return "", models.Wrap(models.ErrRegistrationFailure, "register task definition", err)
	}
	if out.TaskDefinition == nil || out.TaskDefinition.TaskDefinitionArn == nil {
		return "", models.Wrap(models.ErrRegistrationFailure, "register task definition",
			errors.New("response carried no task definition ARN"))
	}

	arn := aws.ToString(out.TaskDefinition.TaskDefinitionArn)
	log.Info().
		Str("taskDefinition", arn).
		Int32("revision", out.TaskDefinition.Revision).
		Msg("Task definition registered")

	return arn, nil
}

func writeSpec(path string, input *ecs.RegisterTaskDefinitionInput) error {
	data, err := json.MarshalIndent(input, "", "  ")
	if err != nil {
		return fmt.Errorf("encode: %w", err)
	}
	return os.WriteFile(path, data, 0o600)
}

func readSpec(path string) (*ecs.RegisterTaskDefinitionInput, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var input ecs.RegisterTaskDefinitionInput
	if err := json.Unmarshal(data, &input); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	return &input, nil
}
