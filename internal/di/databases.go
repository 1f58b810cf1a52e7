package di

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/climate-finance/engine/internal/config"
	"github.com/climate-finance/engine/internal/database"
)

// InitializeDatabases opens the engine database and applies its schema
func InitializeDatabases(cfg *config.Config, log zerolog.Logger) (*Container, error) {
	db, err := database.New(database.Config{
		Path:    cfg.DatabasePath(),
		Profile: database.ProfileStandard,
		Name:    "engine",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize engine database: %w", err)
	}

	if err := db.Migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate engine database: %w", err)
	}

	log.Info().Str("path", db.Path()).Msg("Database initialized")
	return &Container{DB: db}, nil
}
