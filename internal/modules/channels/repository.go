package channels

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/climate-finance/engine/internal/database"
)

// Repository stores the channel catalogue in the channels table
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a new channel repository
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "channels").Logger(),
	}
}

// LoadChannels returns every stored channel ordered by code
func (r *Repository) LoadChannels(ctx context.Context) ([]Entity, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT channel_code, channel_name, COALESCE(en_acronym, ''), COALESCE(fr_acronym, '')
		FROM channels
		ORDER BY channel_code
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query channels: %w", err)
	}
	defer rows.Close()

	var entities []Entity
	for rows.Next() {
		var e Entity
		if err := rows.Scan(&e.Code, &e.Name, &e.EnAcronym, &e.FrAcronym); err != nil {
			return nil, fmt.Errorf("failed to scan channel: %w", err)
		}
		entities = append(entities, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating channels: %w", err)
	}
	return entities, nil
}

// Upsert inserts or replaces one channel
func (r *Repository) Upsert(ctx context.Context, e Entity) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO channels (channel_code, channel_name, en_acronym, fr_acronym, updated_at)
		VALUES (?, ?, ?, ?, ?)
	`, e.Code, e.Name, nullable(e.EnAcronym), nullable(e.FrAcronym), time.Now().Unix())
	if err != nil {
		return fmt.Errorf("failed to upsert channel %s: %w", e.Code, err)
	}
	return nil
}

// ReplaceAll swaps the stored catalogue for a new one in a single transaction
func (r *Repository) ReplaceAll(ctx context.Context, entities []Entity) error {
	now := time.Now().Unix()
	err := database.WithTransaction(r.db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "DELETE FROM channels"); err != nil {
			return fmt.Errorf("failed to clear channels: %w", err)
		}

		stmt, err := tx.PrepareContext(ctx, `
			INSERT OR REPLACE INTO channels (channel_code, channel_name, en_acronym, fr_acronym, updated_at)
			VALUES (?, ?, ?, ?, ?)
		`)
		if err != nil {
			return fmt.Errorf("failed to prepare channel insert: %w", err)
		}
		defer stmt.Close()

		for _, e := range entities {
			if e.Code == "" {
				continue
			}
			if _, err := stmt.ExecContext(ctx, e.Code, e.Name, nullable(e.EnAcronym), nullable(e.FrAcronym), now); err != nil {
				return fmt.Errorf("failed to insert channel %s: %w", e.Code, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	r.log.Info().Int("channels", len(entities)).Msg("Replaced channel catalogue")
	return nil
}

// Count returns the number of stored channels
func (r *Repository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM channels").Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count channels: %w", err)
	}
	return n, nil
}

func nullable(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
