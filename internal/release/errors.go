package release

import (
	"errors"

	"github.com/alvesdmateus/ecs-deployer/pkg/models"
)

var kinds = []error{
	models.ErrMissingInput,
	models.ErrDependencyMissing,
	models.ErrUnknownVersion,
	models.ErrBuildFailure,
	models.ErrAuthFailure,
	models.ErrPushFailure,
	models.ErrRegistrationFailure,
	models.ErrUpdateFailure,
}

// Kind returns the failure kind err carries, or nil when it carries none
func Kind(err error) error {
	for _, kind := range kinds {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return nil
}

// ExitCode maps a workflow result to the process exit status
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	return 1
}
