package main

import (
	"context"
	"errors"
	"flag"
	stdhttp "net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/vncsmyrnk/servervote/internal/adapters/handler/http"
	"github.com/vncsmyrnk/servervote/internal/adapters/notifier/votifier"
	"github.com/vncsmyrnk/servervote/internal/app"
	"github.com/vncsmyrnk/servervote/internal/config"
	"github.com/vncsmyrnk/servervote/internal/core/ports"
	"github.com/vncsmyrnk/servervote/internal/core/services"
	"github.com/vncsmyrnk/servervote/internal/logging"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	flag.StringVar(&cfg.Server.Address, "addr", cfg.Server.Address, "Listen address")
	flag.StringVar(&cfg.Storage.Driver, "storage", cfg.Storage.Driver, "Ledger backend: postgres, sqlite, redis or memory")
	flag.Parse()

	log := logging.New(cfg.Log.Level, cfg.Log.Format)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ledger, err := app.OpenLedger(ctx, cfg)
	if err != nil {
		log.WithError(err).Fatal("failed to open ledger")
	}
	defer ledger.Close()

	clock := ports.SystemClock{}
	notifier := votifier.NewNotifier(cfg.Notify.ServiceName)
	dispatcher := services.NewDispatcher(notifier, services.DispatcherConfig{
		Workers:   cfg.Notify.Workers,
		QueueSize: cfg.Notify.QueueSize,
		Timeout:   cfg.Notify.Timeout,
	}, log.WithField("component", "dispatcher"))

	dispatcherDone := make(chan error, 1)
	go func() { dispatcherDone <- dispatcher.Run(context.Background()) }()

	checker := services.NewEligibilityService(ledger.Targets, ledger.Votes, cfg.Vote.Cooldown)
	voteService := services.NewVoteService(checker, ledger.Votes, dispatcher, services.VoteServiceConfig{
		Window:      cfg.Vote.Cooldown,
		MaxAttempts: cfg.Vote.MaxAttempts,
	}, log.WithField("component", "votes"))
	targetService := services.NewTargetService(ledger.Targets, notifier, clock)

	handler := http.NewHandler(
		http.NewTargetHandler(targetService, log),
		http.NewVoteHandler(voteService, checker, clock, log),
		http.RouterConfig{
			TrustProxy: cfg.Server.TrustProxy,
			RateLimit: http.RateLimitConfig{
				RPS:   cfg.Server.RateLimit.RPS,
				Burst: cfg.Server.RateLimit.Burst,
			},
		},
	)
	server := &stdhttp.Server{
		Addr:              cfg.Server.Address,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.WithFields(logrus.Fields{
			"addr":    cfg.Server.Address,
			"storage": cfg.Storage.Driver,
		}).Info("listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, stdhttp.ErrServerClosed) {
			log.WithError(err).Fatal("server failed")
		}
	}()

	<-ctx.Done()
	log.Info("gracefully shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("failed to shut down http server")
	}

	dispatcher.Close()
	select {
	case <-dispatcherDone:
	case <-shutdownCtx.Done():
		log.Warn("pending vote notifications abandoned")
	}
}
