// Package di provides dependency injection type definitions.
//
// The Container holds every long-lived dependency of the engine. It is built by
// Wire() and handed to the HTTP server and the scheduler.
package di

import (
	"github.com/climate-finance/engine/internal/database"
	"github.com/climate-finance/engine/internal/domain"
	"github.com/climate-finance/engine/internal/modules/channels"
	"github.com/climate-finance/engine/internal/modules/imputation"
	"github.com/climate-finance/engine/internal/modules/reconciliation"
	"github.com/climate-finance/engine/internal/modules/runs"
	"github.com/climate-finance/engine/internal/reliability"
	"github.com/climate-finance/engine/internal/scheduler"
)

// Container holds all dependencies for the application
type Container struct {
	// Database
	DB *database.DB

	// Repositories
	ChannelRepo *channels.Repository
	RunRepo     *runs.Repository

	// Services
	Resolver    *channels.Resolver
	Uploader    channels.Uploader // nil unless a bucket is configured
	Exporter    channels.Exporter
	Converter   domain.Converter
	Preferences reconciliation.Preferences
	Calculator  *imputation.Calculator

	Scheduler *scheduler.Scheduler
}

// Close releases the database
func (c *Container) Close() error {
	if c.DB == nil {
		return nil
	}
	return c.DB.Close()
}

// JobInstances holds the registered jobs for manual triggering
type JobInstances struct {
	ChannelRefresh *channels.RefreshJob // nil without an upstream mapping
	RunCleanup     *runs.CleanupJob
	Maintenance    *reliability.MaintenanceJob
	Backup         *reliability.BackupJob // nil unless a bucket is configured
}
