package registry

import (
	"fmt"

	"github.com/alvesdmateus/ecs-deployer/pkg/models"
)

// RegistryType defines the type of container registry
type RegistryType string

const (
	RegistryTypeECR RegistryType = "ecr"
)

// NewClient creates a registry client based on configuration
func NewClient(config Config, api ecrAPI) (Client, error) {
	switch RegistryType(config.Type) {
	case RegistryTypeECR, "":
		return NewECRClient(config, api)
	default:
		return nil, ErrUnknownRegistry{Type: RegistryType(config.Type)}
	}
}

// ErrUnknownRegistry is returned when an unknown registry type is requested
type ErrUnknownRegistry struct {
	Type RegistryType
}

func (e ErrUnknownRegistry) Error() string {
	return "unknown registry type: " + string(e.Type)
}

// ErrAuthenticationFailed is returned when registry authentication fails
type ErrAuthenticationFailed struct {
	Registry string
	Err      error
}

func (e ErrAuthenticationFailed) Error() string {
	return fmt.Sprintf("authentication failed for registry %s: %v", e.Registry, e.Err)
}

func (e ErrAuthenticationFailed) Unwrap() []error {
	return []error{models.ErrAuthFailure, e.Err}
}

// ErrPushFailed is returned when image push fails
type ErrPushFailed struct {
	ImageTag string
	Err      error
}

func (e ErrPushFailed) Error() string {
	return fmt.Sprintf("failed to push image %s: %v", e.ImageTag, e.Err)
}

func (e ErrPushFailed) Unwrap() []error {
	return []error{models.ErrPushFailure, e.Err}
}
