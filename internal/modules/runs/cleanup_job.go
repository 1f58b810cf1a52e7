package runs

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// CleanupJob removes stored runs past their retention period
type CleanupJob struct {
	repo      *Repository
	retention time.Duration
	now       func() time.Time
	log       zerolog.Logger
}

// NewCleanupJob creates a cleanup job
func NewCleanupJob(repo *Repository, retention time.Duration, log zerolog.Logger) *CleanupJob {
	return &CleanupJob{
		repo:      repo,
		retention: retention,
		now:       time.Now,
		log:       log.With().Str("job", "run_cleanup").Logger(),
	}
}

// Name returns the job name
func (j *CleanupJob) Name() string {
	return "run_cleanup"
}

// Run executes the cleanup
func (j *CleanupJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	removed, err := j.repo.DeleteOlderThan(ctx, j.now().Add(-j.retention))
	if err != nil {
		return fmt.Errorf("failed to clean up runs: %w", err)
	}
	if removed > 0 {
		j.log.Info().Int("removed", removed).Dur("retention", j.retention).Msg("Removed expired runs")
	}
	return nil
}
