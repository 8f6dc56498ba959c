package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"scribe-pipeline-go/internal/config"
	"scribe-pipeline-go/internal/logger"
	"scribe-pipeline-go/internal/metrics"
	"scribe-pipeline-go/internal/policy"
	"scribe-pipeline-go/internal/processor"
	"scribe-pipeline-go/internal/progress"
	"scribe-pipeline-go/internal/retry"
	"scribe-pipeline-go/internal/types"
)

func main() {
	_ = godotenv.Load() // loads .env

	cfg, err := config.Load()
	if err != nil {
		logger.New().WithError(err).Fatal("invalid configuration")
	}
	log := logger.NewWithOutput(os.Stdout, cfg.Environment, cfg.LogLevel)
	log.WithField("service", "scribe-pipeline-go").
		WithField("preset", cfg.Preset().String()).
		Info("starting service")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv, err := newServer(ctx, cfg, log)
	if err != nil {
		log.WithError(err).Fatal("failed to build server")
	}

	addr := fmt.Sprintf(":%s", cfg.Port)
	httpSrv := &http.Server{
		Addr:         addr,
		Handler:      srv.routes(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		<-ctx.Done()
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			log.WithError(err).Warn("shutdown incomplete")
		}
	}()

	log.WithField("addr", addr).Info("listening")
	if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.WithError(err).Fatal("server terminated")
	}
}

// newServer wires the policy table, executor, tracker and processor. Jobs
// started through the server are cancelled when ctx ends.
func newServer(ctx context.Context, cfg config.Config, log *logger.Logger) (*server, error) {
	var overrides map[string]types.StageKind
	if cfg.TaskMapPath != "" {
		m, err := policy.LoadTaskMap(cfg.TaskMapPath)
		if err != nil {
			return nil, fmt.Errorf("task map: %w", err)
		}
		overrides = m
		log.WithField("path", cfg.TaskMapPath).WithField("tasks", len(m)).Info("task map loaded")
	}
	resolver := policy.NewResolver(policy.NewTable(cfg.Preset()), policy.NewClassifier(overrides))

	bus := progress.NewEventBus(0)
	tracker := progress.NewTracker(bus, metrics.RecordState)
	exec := retry.New(retry.Options{
		Jitter:      cfg.Jitter,
		GracePeriod: cfg.GracePeriod,
		Observer:    metrics.Observer{},
		Logger:      log.Entry,
	})

	return &server{
		ctx:         ctx,
		cfg:         cfg,
		log:         log,
		resolver:    resolver,
		bus:         bus,
		tracker:     tracker,
		proc:        processor.New(resolver, exec, tracker, log),
		mockLatency: 150 * time.Millisecond,
	}, nil
}
