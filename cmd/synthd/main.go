// main package for synthd, the speech synthesis job service.
package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/book-expert/logger"
	"github.com/espeech/synthd/internal/artifact"
	"github.com/espeech/synthd/internal/cleanup"
	"github.com/espeech/synthd/internal/config"
	"github.com/espeech/synthd/internal/core"
	"github.com/espeech/synthd/internal/engine"
	"github.com/espeech/synthd/internal/events"
	"github.com/espeech/synthd/internal/httpapi"
	"github.com/espeech/synthd/internal/registry"
	"github.com/espeech/synthd/internal/scheduler"
	"github.com/espeech/synthd/internal/voices"
	"github.com/espeech/synthd/internal/webhook"
	"github.com/nats-io/nats.go"
	"golang.org/x/sync/errgroup"
)

const (
	readHeaderTimeout = 10 * time.Second
	shutdownTimeout   = 10 * time.Second
)

func setupLogger(logPath string) (*logger.Logger, error) {
	log, err := logger.New(logPath, "synthd.log")
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	return log, nil
}

func run() error {
	// 1. Create a temporary logger for the bootstrap process
	bootstrapLog, err := setupLogger(os.TempDir())
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: Failed to create bootstrap logger: %v\n", err)

		return err
	}

	// 2. Load configuration using the central configurator
	cfg, err := config.Load(bootstrapLog)
	if err != nil {
		bootstrapLog.Error("Failed to load configuration: %v", err)

		return fmt.Errorf("failed to load configuration: %w", err)
	}

	// 3. Initialize the final logger based on the loaded configuration
	finalLog, err := setupLogger(cfg.Paths.BaseLogsDir)
	if err != nil {
		bootstrapLog.Error("Failed to create final logger: %v", err)

		return fmt.Errorf("failed to create final logger: %w", err)
	}

	defer func() {
		closeErr := finalLog.Close()
		if closeErr != nil {
			fmt.Fprintf(os.Stderr, "error closing final logger: %v\n", closeErr)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return serve(ctx, cfg, finalLog)
}

// serve assembles the service and runs it until ctx is cancelled.
func serve(ctx context.Context, cfg *config.Config, log *logger.Logger) error {
	catalog, err := voices.New(cfg.Paths.VoicesDir)
	if err != nil {
		return fmt.Errorf("failed to load voice catalog: %w", err)
	}

	log.Info("Voice catalog loaded with %d voice(s) from %s",
		len(catalog.List()), cfg.Paths.VoicesDir)

	store, err := artifact.New(cfg.Paths.OutputDir)
	if err != nil {
		return fmt.Errorf("failed to prepare artifact store: %w", err)
	}

	reg := registry.New()

	synth := engine.New(
		cfg.Engine.URL,
		time.Duration(cfg.Engine.TimeoutSeconds)*time.Second,
		log,
	)

	healthCtx, cancelHealth := context.WithTimeout(ctx, 5*time.Second)
	defer cancelHealth()

	err = synth.HealthCheck(healthCtx)
	if err != nil {
		// The sidecar may still be loading the model; jobs will fail
		// individually until it comes up.
		log.Warn("Synthesis engine not ready at startup: %v", err)
	}

	dispatcher := webhook.New(
		cfg.Webhook.Workers,
		cfg.Webhook.QueueDepth,
		time.Duration(cfg.Webhook.TimeoutSeconds)*time.Second,
		log,
	)

	notifiers := []core.Notifier{dispatcher}

	if cfg.NATS.URL != "" {
		conn, connErr := nats.Connect(cfg.NATS.URL)
		if connErr != nil {
			return fmt.Errorf("failed to connect to NATS at %s: %w", cfg.NATS.URL, connErr)
		}

		defer conn.Close()

		notifiers = append(notifiers, events.New(conn, cfg.NATS.CompletedSubject, log))
		log.Info("Publishing completion events to %s", cfg.NATS.CompletedSubject)
	}

	pool := scheduler.New(
		reg, store, synth,
		cfg.Scheduler.Workers, cfg.Scheduler.QueueDepth,
		log, notifiers...,
	)

	sweeper := cleanup.New(
		reg, store,
		time.Duration(cfg.Cleanup.RetentionSeconds)*time.Second,
		time.Duration(cfg.Cleanup.IntervalSeconds)*time.Second,
		log,
	)

	api := httpapi.New(catalog, reg, pool, synth, cfg.Synthesis, cfg.Server.APIBase, log)

	server := &http.Server{
		Addr:              net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port)),
		Handler:           api.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
	}

	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error { return pool.Run(groupCtx) })
	group.Go(func() error { return dispatcher.Run(groupCtx) })
	group.Go(func() error { return sweeper.Run(groupCtx) })

	group.Go(func() error {
		log.System("synthd listening on %s", server.Addr)

		serveErr := server.ListenAndServe()
		if serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			return fmt.Errorf("http server failed: %w", serveErr)
		}

		return nil
	})

	group.Go(func() error {
		<-groupCtx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		shutdownErr := server.Shutdown(shutdownCtx)
		if shutdownErr != nil {
			return fmt.Errorf("http server shutdown failed: %w", shutdownErr)
		}

		return nil
	})

	err = group.Wait()
	if err != nil {
		return err
	}

	log.System("synthd stopped.")

	return nil
}

func main() {
	err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Service exited with error: %v\n", err)
		os.Exit(1)
	}
}
