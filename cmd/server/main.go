// Package main is the entry point for the vaultd reallocation decision
// engine. The service consumes an upstream change feed (ledger entries,
// market data, vault configuration), reconciles vault allocations from the
// append-only ledger, optimizes target weights, and executes reallocation
// decisions.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/absfi/vaultd/internal/config"
	"github.com/absfi/vaultd/internal/di"
	"github.com/absfi/vaultd/internal/server"
	"github.com/absfi/vaultd/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fallbackLog := logger.New(logger.Config{
			Level:  "info",
			Pretty: true,
		})
		fallbackLog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.DevMode,
	})

	log.Info().Msg("Starting vaultd")

	container, err := di.Wire(cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to wire dependencies")
	}
	defer container.Close()

	// Outcomes must flow before any decision cycle can run.
	container.NotifyQueue.Start()

	// Rebuild every vault's allocation from the ledger before accepting
	// events; the feed delivers at least once and may replay.
	if err := container.Engine.ReconcileAll(); err != nil {
		log.Fatal().Err(err).Msg("Startup reconciliation failed")
	}

	container.Scheduler.Start()

	if container.FeedClient != nil {
		if err := container.FeedClient.Start(); err != nil {
			log.Warn().Err(err).Msg("Feed connection failed, retrying in background")
		}
	} else {
		log.Info().Msg("No feed URL configured, events arrive via HTTP only")
	}

	srv := server.New(server.Config{
		Log:        log,
		Config:     cfg,
		Engine:     container.Engine,
		Registry:   container.Registry,
		Reconciler: container.Reconciler,
		Optimizer:  container.Optimizer,
		Manager:    container.EventManager,
		Port:       cfg.Port,
		DevMode:    cfg.DevMode,
	})

	go func() {
		if err := srv.Start(); err != nil {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	log.Info().Int("port", cfg.Port).Msg("Server started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down...")

	if container.FeedClient != nil {
		if err := container.FeedClient.Stop(); err != nil {
			log.Error().Err(err).Msg("Error stopping feed client")
		}
	}

	container.Scheduler.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	// Persist the return series so the next start comes up warm, then drain
	// the outcome queue.
	if err := container.SnapshotStore.Save(container.ReturnsCache); err != nil {
		log.Error().Err(err).Msg("Failed to save return snapshots")
	}
	container.NotifyQueue.Stop()

	log.Info().Msg("Stopped")
}
