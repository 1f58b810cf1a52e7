// Package main is the entry point for the climate finance engine.
//
// The engine serves classification, reconciliation, channel resolution and
// imputation over HTTP and keeps its channel catalogue and run history in a
// single SQLite database.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/climate-finance/engine/internal/config"
	"github.com/climate-finance/engine/internal/di"
	"github.com/climate-finance/engine/internal/server"
	"github.com/climate-finance/engine/pkg/logger"
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
		Pretty: true,
	})
	logger.SetGlobalLogger(log)

	log.Info().
		Str("data_dir", cfg.DataDir).
		Int("port", cfg.Port).
		Msg("Starting climate finance engine")

	container, jobs, err := di.Wire(cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to wire dependencies")
	}
	defer container.Close()

	// Seed the catalogue on first start so the resolver has something to match against
	if jobs.ChannelRefresh != nil {
		count, err := container.ChannelRepo.Count(context.Background())
		if err != nil {
			log.Error().Err(err).Msg("Failed to count stored channels")
		} else if count == 0 {
			if err := container.Scheduler.RunNow(jobs.ChannelRefresh); err != nil {
				log.Error().Err(err).Msg("Initial channel catalogue refresh failed")
			}
		}
	}
	if err := container.Resolver.Load(context.Background()); err != nil {
		log.Warn().Err(err).Msg("Channel catalogue not loaded, resolver will retry lazily")
	}

	container.Scheduler.Start()

	srv := server.New(server.Config{
		Log:       log,
		Port:      cfg.Port,
		DevMode:   cfg.DevMode,
		DataDir:   cfg.DataDir,
		Container: container,
		Jobs:      jobs,
	})

	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start HTTP server")
		}
	}()

	log.Info().Int("port", cfg.Port).Msg("Engine started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down engine...")

	container.Scheduler.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Engine stopped")
}
