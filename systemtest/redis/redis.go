package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

const image = "redis:7-alpine"

// StartRedis runs a throwaway Redis server and returns it together with its
// host:port address.
func StartRedis(ctx context.Context) (testcontainers.Container, string, error) {
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        image,
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor: wait.ForLog("Ready to accept connections").
				WithStartupTimeout(30 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		return nil, "", fmt.Errorf("failed to start Redis container: %w", err)
	}

	addr, err := container.PortEndpoint(ctx, "6379/tcp", "")
	if err != nil {
		return container, "", fmt.Errorf("failed to get Redis address: %w", err)
	}
	return container, addr, nil
}

func TerminateRedis(ctx context.Context, container testcontainers.Container) error {
	if container == nil {
		return nil
	}
	if err := container.Terminate(ctx); err != nil {
		return fmt.Errorf("failed to terminate Redis container: %w", err)
	}
	return nil
}
