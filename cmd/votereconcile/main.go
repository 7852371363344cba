package main

import (
	"context"
	"flag"
	"time"

	"github.com/vncsmyrnk/servervote/internal/app"
	"github.com/vncsmyrnk/servervote/internal/config"
	"github.com/vncsmyrnk/servervote/internal/core/services"
	"github.com/vncsmyrnk/servervote/internal/logging"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	var timeout time.Duration
	flag.StringVar(&cfg.Storage.Driver, "storage", cfg.Storage.Driver, "Ledger backend: postgres, sqlite or redis")
	flag.StringVar(&cfg.Postgres.Host, "db-host", cfg.Postgres.Host, "Database host")
	flag.StringVar(&cfg.Postgres.Port, "db-port", cfg.Postgres.Port, "Database port")
	flag.StringVar(&cfg.Postgres.User, "db-user", cfg.Postgres.User, "Database user")
	flag.StringVar(&cfg.Postgres.Password, "db-pass", cfg.Postgres.Password, "Database password")
	flag.StringVar(&cfg.Postgres.DB, "db-name", cfg.Postgres.DB, "Database name")
	flag.DurationVar(&timeout, "timeout", 5*time.Minute, "Job timeout")
	flag.Parse()

	log := logging.New(cfg.Log.Level, cfg.Log.Format)

	// Use a timeout for the job execution to prevent it from hanging indefinitely
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	ledger, err := app.OpenLedger(ctx, cfg)
	if err != nil {
		log.WithError(err).Fatal("failed to open ledger")
	}
	defer ledger.Close()

	reconcileService := services.NewReconcileService(ledger.Targets, ledger.Counts, log)

	log.Info("starting vote count reconciliation")
	if err := reconcileService.ReconcileAll(ctx); err != nil {
		log.WithError(err).Fatal("vote count reconciliation failed")
	}
	log.Info("vote count reconciliation completed")
}
