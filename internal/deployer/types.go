package deployer

import (
	"context"
	"time"

	"github.com/alvesdmateus/ecs-deployer/pkg/models"
)

const (
	// DefaultDeployTimeout bounds how long Update waits for the service to settle
	DefaultDeployTimeout = 10 * time.Minute

	DefaultMinDelay = 15 * time.Second
	DefaultMaxDelay = 2 * time.Minute
)

// Updater points a running service at a registered task definition
type Updater interface {
	// Update rolls the service to the given task definition and waits for it to settle
	Update(ctx context.Context, taskDefinition string) (models.Outcome, error)
}

// Config holds updater configuration
type Config struct {
	Cluster string
	Service string

	WaitTimeout time.Duration // Optional: defaults to 10 minutes
	MinDelay    time.Duration
	MaxDelay    time.Duration
}

func (c Config) withDefaults() Config {
	if c.WaitTimeout <= 0 {
		c.WaitTimeout = DefaultDeployTimeout
	}
	if c.MinDelay <= 0 {
		c.MinDelay = DefaultMinDelay
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = DefaultMaxDelay
	}
	if c.MaxDelay < c.MinDelay {
		c.MaxDelay = c.MinDelay
	}
	return c
}
