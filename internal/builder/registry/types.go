package registry

import (
	"context"
	"time"
)

// Config contains registry-specific configuration
type Config struct {
	Type       string // ecr
	URI        string // account.dkr.ecr.region.amazonaws.com/repository
	Repository string // repository name, used to resolve URI when empty
	Region     string
}

// Credentials are short-lived registry credentials for a single operation.
// They are handed to the caller and never retained by the client.
type Credentials struct {
	Username      string
	Password      string
	ServerAddress string
	ExpiresAt     time.Time
}

// Client handles container registry operations
type Client interface {
	// ResolveURI returns the repository URI images are pushed to
	ResolveURI(ctx context.Context) (string, error)

	// Authenticate obtains fresh credentials for the registry
	Authenticate(ctx context.Context) (Credentials, error)

	// Push pushes a locally tagged image using the given credentials
	Push(ctx context.Context, imageTag string, creds Credentials) error
}
