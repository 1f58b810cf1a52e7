package di

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/climate-finance/engine/internal/config"
	"github.com/climate-finance/engine/internal/modules/channels"
	"github.com/climate-finance/engine/internal/modules/runs"
	"github.com/climate-finance/engine/internal/reliability"
)

// RegisterJobs creates the background jobs and registers them with the scheduler
func RegisterJobs(container *Container, cfg *config.Config, log zerolog.Logger) (*JobInstances, error) {
	if container == nil || container.Scheduler == nil {
		return nil, fmt.Errorf("services must be initialized first")
	}

	instances := &JobInstances{
		RunCleanup:  runs.NewCleanupJob(container.RunRepo, cfg.Runs.Retention, log),
		Maintenance: reliability.NewMaintenanceJob(container.DB, log),
	}

	// Channel catalogue refresh (only with an upstream mapping file)
	if cfg.Channels.CSVPath != "" {
		instances.ChannelRefresh = channels.NewRefreshJob(
			channels.NewCSVSource(cfg.Channels.CSVPath),
			container.ChannelRepo,
			container.Resolver,
			log,
		)
		if cfg.Channels.RefreshSchedule != "" {
			if err := container.Scheduler.AddJob(cfg.Channels.RefreshSchedule, instances.ChannelRefresh); err != nil {
				return nil, fmt.Errorf("failed to register channel refresh job: %w", err)
			}
		}
	}

	if cfg.Runs.Retention > 0 && cfg.Runs.CleanupSchedule != "" {
		if err := container.Scheduler.AddJob(cfg.Runs.CleanupSchedule, instances.RunCleanup); err != nil {
			return nil, fmt.Errorf("failed to register run cleanup job: %w", err)
		}
	}

	if err := container.Scheduler.AddJob("0 0 2 * * *", instances.Maintenance); err != nil {
		return nil, fmt.Errorf("failed to register maintenance job: %w", err)
	}

	// Backups share the export bucket
	if container.Uploader != nil {
		instances.Backup = reliability.NewBackupJob(container.DB, container.Uploader, cfg.Export.S3Bucket, cfg.DataDir, log)
		if cfg.Export.BackupSchedule != "" {
			if err := container.Scheduler.AddJob(cfg.Export.BackupSchedule, instances.Backup); err != nil {
				return nil, fmt.Errorf("failed to register backup job: %w", err)
			}
		}
	}

	return instances, nil
}
