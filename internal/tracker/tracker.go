// Copyright 2026 The Heeler Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package tracker

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	_ "net/http/pprof" // #nosec G108
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/heeler-io/heeler"
	"github.com/heeler-io/heeler/internal/config"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func Run(cfg *config.Config, logger *slog.Logger) error {
	logger.Debug(fmt.Sprintf("config: %+v", cfg), "component", "tracker")

	// Parse shutdown timeout
	shutdownTimeout := 30 * time.Second // Default timeout
	if cfg.ShutdownTimeout != "" {
		var err error
		shutdownTimeout, err = time.ParseDuration(cfg.ShutdownTimeout)
		if err != nil {
			return fmt.Errorf("invalid shutdown timeout: %w", err)
		}
	}
	// Use the package-level defaults to avoid drift
	pruneInterval := heeler.DefaultPruneInterval
	if cfg.PruneInterval != "" {
		var err error
		pruneInterval, err = time.ParseDuration(cfg.PruneInterval)
		if err != nil {
			return fmt.Errorf("invalid prune interval: %w", err)
		}
	}
	snapshotInterval := heeler.DefaultSnapshotInterval
	if cfg.SnapshotInterval != "" {
		var err error
		snapshotInterval, err = time.ParseDuration(cfg.SnapshotInterval)
		if err != nil {
			return fmt.Errorf("invalid snapshot interval: %w", err)
		}
	}

	t, err := heeler.New(
		heeler.NewConfig(
			heeler.WithLogger(logger),
			heeler.WithDatabasePath(cfg.DatabasePath),
			heeler.WithNodeRPC(cfg.RpcHost, cfg.RpcUser, cfg.RpcPass),
			heeler.WithNodeZMQEndpoint(cfg.ZmqEndpoint),
			heeler.WithQueueSize(cfg.QueueSize),
			heeler.WithWorkers(cfg.Workers),
			heeler.WithPruneInterval(pruneInterval),
			heeler.WithSnapshotInterval(snapshotInterval),
			heeler.WithKeepWitness(cfg.KeepWitness),
			heeler.WithShutdownTimeout(shutdownTimeout),
			// Enable metrics with default prometheus registry
			heeler.WithPrometheusRegistry(prometheus.DefaultRegisterer),
			heeler.WithTracing(cfg.Tracing),
			heeler.WithTracingStdout(cfg.TracingStdout),
		),
	)
	if err != nil {
		return err
	}

	// Metrics and debug listener
	http.Handle("/metrics", promhttp.Handler())
	logger.Info(
		"serving prometheus metrics on "+fmt.Sprintf(
			"%s:%d",
			cfg.BindAddr,
			cfg.MetricsPort,
		),
		"component",
		"tracker",
	)
	metricsServer := &http.Server{
		Addr: fmt.Sprintf(
			"%s:%d",
			cfg.BindAddr,
			cfg.MetricsPort,
		),
		ReadHeaderTimeout: 60 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil &&
			err != http.ErrServerClosed {
			logger.Error(
				fmt.Sprintf("failed to start metrics listener: %s", err),
				"component", "tracker",
			)
			os.Exit(1)
		}
	}()

	// Wait for interrupt/termination signal
	signalCtx, signalCtxStop := signal.NotifyContext(
		context.Background(),
		syscall.SIGINT,
		syscall.SIGTERM,
	)
	defer signalCtxStop()

	// Run tracker in goroutine
	errChan := make(chan error, 1)
	go func() {
		err := t.Run()
		select {
		case errChan <- err:
		case <-signalCtx.Done():
		}
	}()

	// Wait for signal or error
	select {
	case <-signalCtx.Done():
		logger.Info("signal received, initiating graceful shutdown")

		// Shutdown metrics server
		shutdownCtx, cancel := context.WithTimeout(
			context.Background(),
			shutdownTimeout,
		)
		defer cancel()
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("metrics server shutdown error", "error", err)
		}

		// Shutdown tracker
		if err := t.Stop(); err != nil {
			logger.Error("shutdown errors occurred", "error", err)
			return err
		}
		logger.Info("shutdown complete")
		return nil

	case err := <-errChan:
		if err == nil {
			logger.Info("tracker stopped")
			// Graceful cleanup
			shutdownCtx, cancel := context.WithTimeout(
				context.Background(),
				shutdownTimeout,
			)
			defer cancel()
			if err := metricsServer.Shutdown(shutdownCtx); err != nil {
				logger.Error("metrics server shutdown error", "error", err)
			}
			if err := t.Stop(); err != nil {
				logger.Error("shutdown errors occurred", "error", err)
				return err
			}
			return nil
		}
		logger.Error("tracker error", "error", err)
		signalCtxStop()

		// Shutdown tracker resources
		if stopErr := t.Stop(); stopErr != nil {
			logger.Error(
				"shutdown errors occurred during error cleanup",
				"error",
				stopErr,
			)
		}

		// Cleanup on error
		shutdownCtx, cancel := context.WithTimeout(
			context.Background(),
			shutdownTimeout,
		)
		defer cancel()
		if shutdownErr := metricsServer.Shutdown(shutdownCtx); shutdownErr != nil {
			logger.Error("metrics server shutdown error", "error", shutdownErr)
		}

		return err
	}
}
