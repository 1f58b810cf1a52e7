package runs

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/climate-finance/engine/internal/database"
	"github.com/climate-finance/engine/internal/domain"
)

// Repository persists runs in the runs, run_records and run_warnings tables
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a new run repository
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "runs").Logger(),
	}
}

// Create stores a run, assigning its ID and creation time
func (r *Repository) Create(ctx context.Context, run *Run) error {
	run.ID = uuid.New().String()
	run.CreatedAt = time.Now().UTC().Truncate(time.Second)

	params := "{}"
	if len(run.Parameters) > 0 {
		params = string(run.Parameters)
	}

	err := database.WithTransaction(r.db, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO runs (id, kind, view, methodology, parameters, record_count, warning_count, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`, run.ID, string(run.Kind), run.View, run.Methodology, params,
			len(run.Records), len(run.Warnings), run.CreatedAt.Unix())
		if err != nil {
			return fmt.Errorf("failed to insert run: %w", err)
		}

		if err := insertRecords(ctx, tx, run.ID, run.Records); err != nil {
			return err
		}
		return insertWarnings(ctx, tx, run.ID, run.Warnings)
	})
	if err != nil {
		return err
	}

	r.log.Info().
		Str("run_id", run.ID).
		Str("kind", string(run.Kind)).
		Int("records", len(run.Records)).
		Int("warnings", len(run.Warnings)).
		Msg("Stored run")
	return nil
}

func insertRecords(ctx context.Context, tx *sql.Tx, runID string, records []domain.OutputRecord) error {
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO run_records (
			run_id, seq, provider_code, agency_code, recipient_code, year, flow_type,
			category, value, currency, prices, base_year, activity_id, channel_code,
			view, source, matched, fallback
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare record insert: %w", err)
	}
	defer stmt.Close()

	for i, rec := range records {
		_, err := stmt.ExecContext(ctx,
			runID, i, rec.ProviderCode, rec.AgencyCode, rec.RecipientCode, rec.Year, string(rec.FlowType),
			string(rec.Category), rec.Value, rec.Currency, string(rec.Prices.Prices), rec.Prices.BaseYear,
			rec.ActivityID, rec.ChannelCode, rec.View, string(rec.Source), boolToInt(rec.Matched), boolToInt(rec.Fallback),
		)
		if err != nil {
			return fmt.Errorf("failed to insert record %d: %w", i, err)
		}
	}
	return nil
}

func insertWarnings(ctx context.Context, tx *sql.Tx, runID string, warnings domain.Warnings) error {
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO run_warnings (run_id, seq, code, message, provider, year, subject)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare warning insert: %w", err)
	}
	defer stmt.Close()

	for i, w := range warnings {
		if _, err := stmt.ExecContext(ctx, runID, i, string(w.Code), w.Message, w.Provider, w.Year, w.Subject); err != nil {
			return fmt.Errorf("failed to insert warning %d: %w", i, err)
		}
	}
	return nil
}

// Get loads a run with its records and warnings
func (r *Repository) Get(ctx context.Context, id string) (*Run, error) {
	var (
		run       Run
		kind      string
		params    string
		createdAt int64
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT id, kind, view, methodology, parameters, created_at
		FROM runs
		WHERE id = ?
	`, id).Scan(&run.ID, &kind, &run.View, &run.Methodology, &params, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query run: %w", err)
	}
	run.Kind = Kind(kind)
	run.Parameters = []byte(params)
	run.CreatedAt = time.Unix(createdAt, 0).UTC()

	if run.Records, err = r.records(ctx, id); err != nil {
		return nil, err
	}
	if run.Warnings, err = r.warnings(ctx, id); err != nil {
		return nil, err
	}
	return &run, nil
}

func (r *Repository) records(ctx context.Context, id string) ([]domain.OutputRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT provider_code, agency_code, recipient_code, year, flow_type, category, value,
			currency, prices, base_year, activity_id, channel_code, view, source, matched, fallback
		FROM run_records
		WHERE run_id = ?
		ORDER BY seq
	`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query run records: %w", err)
	}
	defer rows.Close()

	records := []domain.OutputRecord{}
	for rows.Next() {
		var (
			rec                            domain.OutputRecord
			flow, category, prices, source string
			matched, fallback              int
		)
		if err := rows.Scan(
			&rec.ProviderCode, &rec.AgencyCode, &rec.RecipientCode, &rec.Year, &flow, &category, &rec.Value,
			&rec.Currency, &prices, &rec.Prices.BaseYear, &rec.ActivityID, &rec.ChannelCode, &rec.View,
			&source, &matched, &fallback,
		); err != nil {
			return nil, fmt.Errorf("failed to scan run record: %w", err)
		}
		rec.FlowType = domain.FlowType(flow)
		rec.Category = domain.Category(category)
		rec.Prices.Prices = domain.Prices(prices)
		rec.Source = domain.Source(source)
		rec.Matched = matched == 1
		rec.Fallback = fallback == 1
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating run records: %w", err)
	}
	return records, nil
}

func (r *Repository) warnings(ctx context.Context, id string) (domain.Warnings, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT code, message, provider, year, subject
		FROM run_warnings
		WHERE run_id = ?
		ORDER BY seq
	`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query run warnings: %w", err)
	}
	defer rows.Close()

	warnings := domain.Warnings{}
	for rows.Next() {
		var (
			w    domain.Warning
			code string
		)
		if err := rows.Scan(&code, &w.Message, &w.Provider, &w.Year, &w.Subject); err != nil {
			return nil, fmt.Errorf("failed to scan run warning: %w", err)
		}
		w.Code = domain.WarningCode(code)
		warnings = append(warnings, w)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating run warnings: %w", err)
	}
	return warnings, nil
}

// List returns the most recent runs, newest first
func (r *Repository) List(ctx context.Context, limit int) ([]Summary, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, kind, view, methodology, record_count, warning_count, created_at
		FROM runs
		ORDER BY created_at DESC, id
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	summaries := []Summary{}
	for rows.Next() {
		var (
			s         Summary
			kind      string
			createdAt int64
		)
		if err := rows.Scan(&s.ID, &kind, &s.View, &s.Methodology, &s.Records, &s.Warnings, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		s.Kind = Kind(kind)
		s.CreatedAt = time.Unix(createdAt, 0).UTC()
		summaries = append(summaries, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating runs: %w", err)
	}
	return summaries, nil
}

// DeleteOlderThan removes runs created before the cutoff and returns how many were removed
func (r *Repository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	var removed int64
	err := database.WithTransaction(r.db, func(tx *sql.Tx) error {
		stale := `SELECT id FROM runs WHERE created_at < ?`
		if _, err := tx.ExecContext(ctx, `DELETE FROM run_records WHERE run_id IN (`+stale+`)`, cutoff.Unix()); err != nil {
			return fmt.Errorf("failed to delete run records: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM run_warnings WHERE run_id IN (`+stale+`)`, cutoff.Unix()); err != nil {
			return fmt.Errorf("failed to delete run warnings: %w", err)
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM runs WHERE created_at < ?`, cutoff.Unix())
		if err != nil {
			return fmt.Errorf("failed to delete runs: %w", err)
		}
		removed, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return 0, err
	}
	return int(removed), nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
