package di

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/climate-finance/engine/internal/config"
	"github.com/climate-finance/engine/internal/domain"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	return &config.Config{
		DataDir: dir,
		Port:    8080,
		Channels: config.ChannelsConfig{
			RuleCachePath:    filepath.Join(dir, "cache", "rules.msgpack"),
			NameThreshold:    90,
			AcronymThreshold: 95,
			RefreshSchedule:  "0 0 3 * * *",
		},
		Runs: config.RunsConfig{Retention: 24 * time.Hour, CleanupSchedule: "@daily"},
	}
}

func TestWire(t *testing.T) {
	cfg := testConfig(t)

	container, jobs, err := Wire(cfg, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { container.Close() })

	assert.NotNil(t, container.DB)
	assert.NotNil(t, container.ChannelRepo)
	assert.NotNil(t, container.RunRepo)
	assert.NotNil(t, container.Resolver)
	assert.NotNil(t, container.Calculator)
	assert.Nil(t, container.Exporter)
	assert.Nil(t, container.Uploader)
	assert.Nil(t, jobs.Backup)
	assert.IsType(t, domain.IdentityConverter{}, container.Converter)
	assert.FileExists(t, filepath.Join(cfg.DataDir, "engine.db"))

	assert.Nil(t, jobs.ChannelRefresh)
	assert.NotNil(t, jobs.RunCleanup)
	assert.NotNil(t, jobs.Maintenance)
	assert.ElementsMatch(t, []string{"run_cleanup", "database_maintenance"}, container.Scheduler.Jobs())
}

func TestWire_WithChannelMappingAndConversion(t *testing.T) {
	cfg := testConfig(t)

	cfg.Channels.CSVPath = filepath.Join(cfg.DataDir, "channels.csv")
	require.NoError(t, os.WriteFile(cfg.Channels.CSVPath,
		[]byte("channel_code,channel_name,en_acronym,fr_acronym\n41114,United Nations Development Programme,UNDP,PNUD\n"), 0644))

	cfg.Conversion.CSVPath = filepath.Join(cfg.DataDir, "rates.csv")
	require.NoError(t, os.WriteFile(cfg.Conversion.CSVPath, []byte("rate,EUR,2021,0.8\n"), 0644))

	container, jobs, err := Wire(cfg, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { container.Close() })

	require.NotNil(t, jobs.ChannelRefresh)
	require.NoError(t, jobs.ChannelRefresh.Run())

	code, ok := container.Resolver.ResolveCode("UNDP")
	assert.True(t, ok)
	assert.Equal(t, "41114", code)

	v, err := container.Converter.Convert(80, domain.Basis{Currency: "EUR"}, 2021, domain.Basis{Currency: "USD"})
	require.NoError(t, err)
	assert.InDelta(t, 100, v, 1e-9)
}

func TestWire_BadConversionFile(t *testing.T) {
	cfg := testConfig(t)
	cfg.Conversion.CSVPath = filepath.Join(cfg.DataDir, "missing.csv")

	_, _, err := Wire(cfg, zerolog.Nop())
	assert.Error(t, err)
}

func TestInitializeRepositories_RequiresDatabase(t *testing.T) {
	assert.Error(t, InitializeRepositories(&Container{}, zerolog.Nop()))
	assert.Error(t, InitializeServices(&Container{}, testConfig(t), zerolog.Nop()))

	_, err := RegisterJobs(&Container{}, testConfig(t), zerolog.Nop())
	assert.Error(t, err)
}
