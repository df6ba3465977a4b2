package db

import (
	"context"
	"fmt"
	"log/slog"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

const (
	defaultMongoDatabase   = "keygate"
	defaultMongoCollection = "api_keys"
)

// InitMongo connects to MongoDB and returns the key collection.
func InitMongo(ctx context.Context, cfg Config) (*mongo.Client, *mongo.Collection, error) {
	opts := options.Client().
		ApplyURI(cfg.Url).
		SetConnectTimeout(connectTimeout(cfg))
	if cfg.MaxConns > 0 {
		opts.SetMaxPoolSize(uint64(cfg.MaxConns))
	}
	if cfg.Timeout > 0 {
		opts.SetTimeout(cfg.Timeout)
	}

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, nil, fmt.Errorf("unable to connect to MongoDB: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, connectTimeout(cfg))
	defer cancel()
	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, nil, fmt.Errorf("unable to ping MongoDB: %w", err)
	}

	name := cfg.Name
	if name == "" {
		name = defaultMongoDatabase
	}
	collection := cfg.Collection
	if collection == "" {
		collection = defaultMongoCollection
	}

	slog.Info("Connected to MongoDB", "database", name, "collection", collection)
	return client, client.Database(name).Collection(collection), nil
}
