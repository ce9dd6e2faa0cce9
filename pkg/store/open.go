package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/hyperledger-archives/quilt-sub000/pkg/config"
)

// Open returns the store selected by cfg.StoreDriver.
func Open(ctx context.Context, cfg *config.Config) (Store, error) {
	logger := slog.Default().With("component", "store")

	switch cfg.StoreDriver {
	case "", "memory":
		logger.InfoContext(ctx, "using in-memory condition store")
		return NewMemoryStore(), nil
	case "sqlite":
		db, err := sql.Open("sqlite", cfg.StoreDSN)
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		s, err := NewSQLiteStore(db)
		if err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("migrate sqlite: %w", err)
		}
		logger.InfoContext(ctx, "using sqlite condition store")
		return s, nil
	case "postgres":
		db, err := sql.Open("postgres", cfg.StoreDSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		s := NewPostgresStore(db)
		if err := s.Init(ctx); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("init postgres: %w", err)
		}
		logger.InfoContext(ctx, "using postgres condition store")
		return s, nil
	case "redis":
		s := NewRedisStore(cfg.RedisAddr, "", 0)
		if err := s.Ping(ctx); err != nil {
			_ = s.Close()
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		logger.InfoContext(ctx, "using redis condition store", "addr", cfg.RedisAddr)
		return s, nil
	default:
		return nil, fmt.Errorf("store: unsupported driver %q", cfg.StoreDriver)
	}
}
