//go:build integration

package containers

import (
	"context"
	"fmt"
	"testing"

	"github.com/testcontainers/testcontainers-go/modules/redpanda"
)

// RedpandaContainer is a single-broker Kafka-compatible cluster for
// integration tests.
type RedpandaContainer struct {
	Container *redpanda.Container
	Broker    string
}

// NewRedpandaContainer starts a Redpanda broker and resolves its seed
// address. The container is terminated on test cleanup.
func NewRedpandaContainer(ctx context.Context, t *testing.T) (*RedpandaContainer, error) {
	t.Helper()

	container, err := redpanda.Run(ctx, "docker.redpanda.com/redpandadata/redpanda:v24.1.2")
	if err != nil {
		return nil, fmt.Errorf("start redpanda container: %w", err)
	}
	t.Cleanup(func() {
		_ = container.Terminate(context.Background())
	})

	broker, err := container.KafkaSeedBroker(ctx)
	if err != nil {
		return nil, fmt.Errorf("resolve seed broker: %w", err)
	}

	return &RedpandaContainer{Container: container, Broker: broker}, nil
}
