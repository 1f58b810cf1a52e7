package reliability

import (
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/climate-finance/engine/internal/database"
)

func TestMaintenanceJob(t *testing.T) {
	db, err := database.New(database.Config{
		Path: filepath.Join(t.TempDir(), "engine.db"),
		Name: "engine",
	})
	require.NoError(t, err)
	defer db.Close()
	require.NoError(t, db.Migrate())

	job := NewMaintenanceJob(db, zerolog.New(nil).Level(zerolog.Disabled))
	assert.Equal(t, "database_maintenance", job.Name())
	assert.NoError(t, job.Run())
}

func TestMaintenanceJob_ClosedDatabase(t *testing.T) {
	db, err := database.New(database.Config{
		Path: filepath.Join(t.TempDir(), "engine.db"),
		Name: "engine",
	})
	require.NoError(t, err)
	require.NoError(t, db.Close())

	job := NewMaintenanceJob(db, zerolog.New(nil).Level(zerolog.Disabled))
	assert.Error(t, job.Run())
}
