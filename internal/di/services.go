package di

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/climate-finance/engine/internal/config"
	"github.com/climate-finance/engine/internal/conversion"
	"github.com/climate-finance/engine/internal/domain"
	"github.com/climate-finance/engine/internal/modules/channels"
	"github.com/climate-finance/engine/internal/modules/imputation"
	"github.com/climate-finance/engine/internal/modules/methodology"
	"github.com/climate-finance/engine/internal/modules/reconciliation"
	"github.com/climate-finance/engine/internal/scheduler"
)

// InitializeServices creates the resolver, converter, reconciler preferences
// and imputation calculator
func InitializeServices(container *Container, cfg *config.Config, log zerolog.Logger) error {
	if container == nil || container.ChannelRepo == nil {
		return fmt.Errorf("repositories must be initialized first")
	}

	opts := []channels.Option{
		channels.WithThresholds(cfg.Channels.NameThreshold, cfg.Channels.AcronymThreshold),
	}
	if cfg.Channels.RuleCachePath != "" {
		opts = append(opts, channels.WithRuleCache(channels.NewRuleCache(cfg.Channels.RuleCachePath, log)))
	}
	container.Resolver = channels.NewResolver(container.ChannelRepo, log, opts...)

	if cfg.Export.Enabled() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		uploader, err := channels.NewS3Uploader(ctx, channels.S3Config{
			Bucket:    cfg.Export.S3Bucket,
			Endpoint:  cfg.Export.S3Endpoint,
			Region:    cfg.Export.S3Region,
			AccessKey: cfg.Export.S3AccessKey,
			SecretKey: cfg.Export.S3SecretKey,
		})
		if err != nil {
			return fmt.Errorf("failed to create s3 uploader: %w", err)
		}
		container.Uploader = uploader

		exporter := channels.NewS3Exporter(uploader, cfg.Export.S3Bucket, cfg.Export.S3Prefix, log)
		container.Exporter = exporter
		log.Info().Str("destination", exporter.Destination()).Msg("Unresolved channel export configured")
	}

	container.Converter = domain.IdentityConverter{}
	if cfg.Conversion.CSVPath != "" {
		table, err := conversion.LoadFile(cfg.Conversion.CSVPath)
		if err != nil {
			return fmt.Errorf("failed to load conversion table: %w", err)
		}
		container.Converter = table
		log.Info().Str("path", cfg.Conversion.CSVPath).Msg("Conversion table loaded")
	}

	container.Preferences = reconciliation.DefaultPreferences()

	classifier, err := methodology.NewClassifier(methodology.OECD(), log)
	if err != nil {
		return fmt.Errorf("failed to create default classifier: %w", err)
	}
	container.Calculator = imputation.NewCalculator(classifier, container.Resolver, container.Converter, log)

	container.Scheduler = scheduler.New(log)

	log.Debug().Msg("Services initialized")
	return nil
}
