package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/EternisAI/keygate/internal/db"
	"github.com/EternisAI/keygate/internal/keys"
	"github.com/EternisAI/keygate/internal/keys/memstore"
	"github.com/EternisAI/keygate/internal/keys/mongostore"
	"github.com/EternisAI/keygate/internal/keys/pgstore"
)

// openStore connects the key store selected by cfg.Driver.
func openStore(ctx context.Context, cfg db.Config) (keys.Repository, error) {
	switch cfg.Driver {
	case db.DriverPostgres, "":
		if err := db.RunMigrations(cfg.Url, cfg.Schema); err != nil {
			return nil, fmt.Errorf("failed to run migrations: %w", err)
		}
		pool, err := db.InitPostgres(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return pgstore.New(pool), nil

	case db.DriverMongo:
		_, coll, err := db.InitMongo(ctx, cfg)
		if err != nil {
			return nil, err
		}
		store := mongostore.New(coll)
		if err := store.EnsureIndexes(ctx); err != nil {
			_ = store.Close(ctx)
			return nil, fmt.Errorf("failed to create indexes: %w", err)
		}
		return store, nil

	case db.DriverMemory:
		slog.Warn("Using in-memory key store, keys will not survive a restart")
		return memstore.New(), nil
	}
	return nil, fmt.Errorf("unknown database driver %q", cfg.Driver)
}
