// Package taskdef derives ECS task definitions for a release image.
package taskdef

import (
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ecs"
	"github.com/aws/aws-sdk-go-v2/service/ecs/types"
)

// Source records where a rendered task definition came from
type Source string

const (
	SourceRegistered Source = "registered"
	SourceDefault    Source = "default"
)

// Spec is a task definition ready to be registered as a new revision
type Spec struct {
	Source Source
	// PreviousArn is the revision the spec was cloned from, empty for defaults
	PreviousArn string
	Input       *ecs.RegisterTaskDefinitionInput
}

// Image returns the primary container's image reference
func (s *Spec) Image() string {
	if s == nil || s.Input == nil || len(s.Input.ContainerDefinitions) == 0 {
		return ""
	}
	return aws.ToString(s.Input.ContainerDefinitions[0].Image)
}

// Template describes the task definition used for a family's first deploy
type Template struct {
	Family           string
	CPU              string
	Memory           string
	ContainerName    string
	Port             int32
	LogGroup         string
	Region           string
	ExecutionRoleARN string
}

// FromRegistered builds a new revision from a registered one, replacing the
// primary container image. Only user-defined fields are carried over; every
// field the service assigns on registration is left behind.
func FromRegistered(td *types.TaskDefinition, imageRef string) *Spec {
	containers := make([]types.ContainerDefinition, len(td.ContainerDefinitions))
	copy(containers, td.ContainerDefinitions)
	if len(containers) > 0 {
		containers[0].Image = aws.String(imageRef)
	}

	return &Spec{
		Source:      SourceRegistered,
		PreviousArn: aws.ToString(td.TaskDefinitionArn),
		Input: &ecs.RegisterTaskDefinitionInput{
			Family:                  td.Family,
			ContainerDefinitions:    containers,
			Cpu:                     td.Cpu,
			Memory:                  td.Memory,
			NetworkMode:             td.NetworkMode,
			RequiresCompatibilities: td.RequiresCompatibilities,
			TaskRoleArn:             td.TaskRoleArn,
			ExecutionRoleArn:        td.ExecutionRoleArn,
			Volumes:                 td.Volumes,
			PidMode:                 td.PidMode,
			IpcMode:                 td.IpcMode,
			ProxyConfiguration:      td.ProxyConfiguration,
			InferenceAccelerators:   td.InferenceAccelerators,
			EphemeralStorage:        td.EphemeralStorage,
			RuntimePlatform:         td.RuntimePlatform,
			EnableFaultInjection:    td.EnableFaultInjection,
		},
	}
}

// Default materializes the minimal task definition for a family that has
// never been registered
func Default(tpl Template, imageRef string) *Spec {
	container := types.ContainerDefinition{
		Name:      aws.String(tpl.ContainerName),
		Image:     aws.String(imageRef),
		Essential: aws.Bool(true),
		PortMappings: []types.PortMapping{{
			ContainerPort: aws.Int32(tpl.Port),
			Protocol:      types.TransportProtocolTcp,
		}},
		LogConfiguration: &types.LogConfiguration{
			LogDriver: types.LogDriverAwslogs,
			Options: map[string]string{
				"awslogs-group":         tpl.LogGroup,
				"awslogs-region":        tpl.Region,
				"awslogs-stream-prefix": "ecs",
			},
		},
		Environment: []types.KeyValuePair{{
			Name:  aws.String("NODE_ENV"),
			Value: aws.String("production"),
		}},
	}

	input := &ecs.RegisterTaskDefinitionInput{
		Family:                  aws.String(tpl.Family),
		ContainerDefinitions:    []types.ContainerDefinition{container},
		Cpu:                     aws.String(tpl.CPU),
		Memory:                  aws.String(tpl.Memory),
		NetworkMode:             types.NetworkModeAwsvpc,
		RequiresCompatibilities: []types.Compatibility{types.CompatibilityFargate},
	}
	if tpl.ExecutionRoleARN != "" {
		input.ExecutionRoleArn = aws.String(tpl.ExecutionRoleARN)
	}

	return &Spec{Source: SourceDefault, Input: input}
}
