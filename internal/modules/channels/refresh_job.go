package channels

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// Store is where a refreshed catalogue is persisted
type Store interface {
	ReplaceAll(ctx context.Context, entities []Entity) error
}

// RefreshJob reloads the authoritative mapping into the store and rebuilds
// the resolver's catalogue and rules
type RefreshJob struct {
	upstream Source
	store    Store
	resolver *Resolver
	timeout  time.Duration
	log      zerolog.Logger
}

// NewRefreshJob creates a refresh job. A nil store skips persistence.
func NewRefreshJob(upstream Source, store Store, resolver *Resolver, log zerolog.Logger) *RefreshJob {
	return &RefreshJob{
		upstream: upstream,
		store:    store,
		resolver: resolver,
		timeout:  2 * time.Minute,
		log:      log.With().Str("job", "channel_catalogue_refresh").Logger(),
	}
}

// Name returns the job name
func (j *RefreshJob) Name() string {
	return "channel_catalogue_refresh"
}

// Run executes the refresh
func (j *RefreshJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	entities, err := j.upstream.LoadChannels(ctx)
	if err != nil {
		return fmt.Errorf("failed to load upstream channels: %w", err)
	}
	if len(entities) == 0 {
		j.log.Warn().Msg("Upstream channel mapping is empty, keeping current catalogue")
		return nil
	}

	if j.store != nil {
		if err := j.store.ReplaceAll(ctx, entities); err != nil {
			return fmt.Errorf("failed to store channels: %w", err)
		}
	}

	j.resolver.Invalidate()
	if err := j.resolver.Load(ctx); err != nil {
		return fmt.Errorf("failed to rebuild channel catalogue: %w", err)
	}

	j.log.Info().Int("channels", len(entities)).Msg("Channel catalogue refreshed")
	return nil
}
