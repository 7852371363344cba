// Package app wires the configured ledger backend for the binaries under cmd.
package app

import (
	"context"
	"fmt"

	"github.com/vncsmyrnk/servervote/internal/adapters/repository/memory"
	"github.com/vncsmyrnk/servervote/internal/adapters/repository/postgres"
	"github.com/vncsmyrnk/servervote/internal/adapters/repository/redis"
	"github.com/vncsmyrnk/servervote/internal/adapters/repository/sqlite"
	"github.com/vncsmyrnk/servervote/internal/config"
	"github.com/vncsmyrnk/servervote/internal/core/ports"
)

// Ledger is every repository a backend provides.
type Ledger struct {
	Targets ports.TargetRepository
	Votes   ports.VoteRepository
	Counts  ports.VoteCountRepository
	Close   func() error
}

func PostgresConfig(cfg config.PostgresConfig) postgres.Config {
	return postgres.Config{
		Host:     cfg.Host,
		Port:     cfg.Port,
		User:     cfg.User,
		Password: cfg.Password,
		DBName:   cfg.DB,
		SSLMode:  cfg.SSLMode,
	}
}

// OpenLedger connects to the backend named by cfg.Storage.Driver.
func OpenLedger(ctx context.Context, cfg *config.Config) (*Ledger, error) {
	switch cfg.Storage.Driver {
	case config.DriverPostgres:
		db, err := postgres.Open(ctx, PostgresConfig(cfg.Postgres).ConnString())
		if err != nil {
			return nil, err
		}
		return &Ledger{
			Targets: postgres.NewTargetRepository(db),
			Votes:   postgres.NewVoteRepository(db),
			Counts:  postgres.NewVoteCountRepository(db),
			Close:   db.Close,
		}, nil

	case config.DriverSQLite:
		store, err := sqlite.Open(cfg.SQLite.Path)
		if err != nil {
			return nil, err
		}
		return &Ledger{Targets: store, Votes: store, Counts: store, Close: store.Close}, nil

	case config.DriverRedis:
		store, err := redis.Open(ctx, redis.Config{
			Address:  cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			return nil, err
		}
		return &Ledger{Targets: store, Votes: store, Counts: store, Close: store.Close}, nil

	case config.DriverMemory:
		store := memory.NewStore()
		return &Ledger{Targets: store, Votes: store, Counts: store, Close: func() error { return nil }}, nil
	}
	return nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
}
