// Package reliability keeps the engine database healthy between restarts.
package reliability

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/climate-finance/engine/internal/database"
)

// MaintenanceJob checks database integrity, truncates the WAL and logs growth
type MaintenanceJob struct {
	db      *database.DB
	timeout time.Duration
	log     zerolog.Logger
}

// NewMaintenanceJob creates a new maintenance job
func NewMaintenanceJob(db *database.DB, log zerolog.Logger) *MaintenanceJob {
	return &MaintenanceJob{
		db:      db,
		timeout: 5 * time.Minute,
		log:     log.With().Str("job", "database_maintenance").Logger(),
	}
}

// Name returns the job name for scheduler
func (j *MaintenanceJob) Name() string {
	return "database_maintenance"
}

// Run executes the maintenance
func (j *MaintenanceJob) Run() error {
	start := time.Now()
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	if err := j.db.HealthCheck(ctx); err != nil {
		j.log.Error().Err(err).Str("database", j.db.Name()).Msg("Database health check failed")
		return fmt.Errorf("failed health check: %w", err)
	}

	// Not critical, the next run retries
	if err := j.db.WALCheckpoint("TRUNCATE"); err != nil {
		j.log.Warn().Err(err).Str("database", j.db.Name()).Msg("WAL checkpoint failed")
	}

	stats, err := j.db.GetStats()
	if err != nil {
		j.log.Warn().Err(err).Msg("Failed to read database stats")
	} else {
		j.log.Info().
			Str("database", j.db.Name()).
			Float64("size_mb", float64(stats.SizeBytes)/1024/1024).
			Int64("pages", stats.PageCount).
			Dur("duration", time.Since(start)).
			Msg("Database maintenance completed")
	}
	return nil
}
