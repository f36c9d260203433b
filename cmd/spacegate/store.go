package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Strob0t/spacegate/internal/adapter/memory"
	"github.com/Strob0t/spacegate/internal/adapter/postgres"
	"github.com/Strob0t/spacegate/internal/config"
	"github.com/Strob0t/spacegate/internal/domain"
	"github.com/Strob0t/spacegate/internal/domain/space"
	"github.com/Strob0t/spacegate/internal/port/directory"
)

// openDirectory connects the backend selected by tenancy.directory and
// applies pending migrations for postgres.
func openDirectory(ctx context.Context, cfg *config.Config) (directoryStore, func(), error) {
	if cfg.Tenancy.Directory == "memory" {
		slog.Warn("using in-memory space directory; data is lost on restart")
		d := memory.NewDirectory()
		return directoryStore{dir: d, users: d}, func() {}, nil
	}

	pool, err := postgres.NewPool(ctx, cfg.Postgres)
	if err != nil {
		return directoryStore{}, nil, fmt.Errorf("postgres: %w", err)
	}
	slog.Info("postgres connected")

	if err := postgres.RunMigrations(ctx, cfg.Postgres.DSN); err != nil {
		pool.Close()
		return directoryStore{}, nil, fmt.Errorf("migrations: %w", err)
	}
	slog.Info("migrations applied")

	s := postgres.NewStore(pool)
	return directoryStore{dir: s, users: s}, pool.Close, nil
}

// ensureDefaultSpace creates the space that local aliases resolve to when the
// directory does not have it yet.
func ensureDefaultSpace(ctx context.Context, dir directory.Directory, id string) error {
	_, err := dir.GetSpace(ctx, id)
	if err == nil {
		return nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return err
	}
	s := &space.Space{ID: id, Name: id, Creator: "system"}
	s.Normalize()
	if err := dir.CreateSpace(ctx, s); err != nil && !errors.Is(err, domain.ErrConflict) {
		return err
	}
	slog.Info("default space created", "space_id", id)
	return nil
}
