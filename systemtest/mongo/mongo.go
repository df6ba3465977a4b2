package mongo

import (
	"context"
	"fmt"

	"github.com/testcontainers/testcontainers-go/modules/mongodb"
)

const image = "mongo:7"

// StartMongo runs a throwaway single-node MongoDB server and returns it
// together with a connection URI.
func StartMongo(ctx context.Context) (*mongodb.MongoDBContainer, string, error) {
	container, err := mongodb.Run(ctx, image)
	if err != nil {
		return nil, "", fmt.Errorf("failed to start MongoDB container: %w", err)
	}

	uri, err := container.ConnectionString(ctx)
	if err != nil {
		return container, "", fmt.Errorf("failed to get MongoDB connection string: %w", err)
	}
	return container, uri, nil
}

func TerminateMongo(ctx context.Context, container *mongodb.MongoDBContainer) error {
	if container == nil {
		return nil
	}
	if err := container.Terminate(ctx); err != nil {
		return fmt.Errorf("failed to terminate MongoDB container: %w", err)
	}
	return nil
}
