package migrate

import (
	"context"
	"fmt"

	"github.com/duka/supermarket-backend/pkg/config"
	"github.com/duka/supermarket-backend/pkg/db"
	"github.com/duka/supermarket-backend/pkg/logger"
)

// AutoRunEnabled reports whether a service should migrate on boot. Only
// dev deployments with SUPERMARKET_AUTO_MIGRATE set qualify.
func AutoRunEnabled(app config.AppConfig) bool {
	return app.IsDev() && app.AutoMigrate
}

// MaybeRunDev validates the embedded migrations and applies any pending
// ones when AutoRunEnabled holds. Other environments run cmd/migrate.
func MaybeRunDev(ctx context.Context, cfg *config.Config, logg *logger.Logger, client *db.Client) error {
	if !AutoRunEnabled(cfg.App) {
		return nil
	}
	if err := ValidateDir(DefaultDir); err != nil {
		return fmt.Errorf("validating embedded migrations: %w", err)
	}

	sqlDB, err := client.DB().DB()
	if err != nil {
		return fmt.Errorf("extracting sql.DB: %w", err)
	}
	before, err := CurrentVersion(sqlDB)
	if err != nil {
		return err
	}

	ctx = logg.WithFields(ctx, map[string]any{"env": cfg.App.Env, "from_version": before})
	logg.Info(ctx, "migrate.autorun.start")

	if err := Run(ctx, sqlDB, DefaultDir, "up"); err != nil {
		return fmt.Errorf("running goose up: %w", err)
	}

	after, err := CurrentVersion(sqlDB)
	if err != nil {
		return err
	}
	logg.Info(logg.WithField(ctx, "to_version", after), "migrate.autorun.done")
	return nil
}
