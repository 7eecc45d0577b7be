package queue

import (
	"context"
	"fmt"

	"github.com/alvesdmateus/ecs-deployer/pkg/models"
)

// DefaultRetain is how many events are kept per service
const DefaultRetain = 100

// Publisher records finished releases
type Publisher interface {
	Publish(ctx context.Context, event *models.ReleaseEvent) error
}

// Journal is a Publisher that can also read back recent events
type Journal interface {
	Publisher
	Recent(ctx context.Context, cluster, service string, limit int) ([]models.ReleaseEvent, error)
	Close() error
}

// Key returns the list key holding events for one service
func Key(cluster, service string) string {
	return fmt.Sprintf("deployer:releases:%s:%s", cluster, service)
}
