package migrate

import (
	"context"
	"fmt"

	"github.com/angelmondragon/poflow-backend/pkg/config"
	"github.com/angelmondragon/poflow-backend/pkg/db"
	"github.com/angelmondragon/poflow-backend/pkg/logger"
)

// MaybeRunDev applies the embedded migrations when running in dev with
// POFLOW_AUTO_MIGRATE set. The bundle is validated first so a malformed file
// never reaches the database.
func MaybeRunDev(ctx context.Context, cfg *config.Config, logg *logger.Logger, client *db.Client) error {
	if !cfg.App.IsDev() || !cfg.FeatureFlags.AutoMigrate {
		return nil
	}
	if err := ValidateFS(Embedded()); err != nil {
		return fmt.Errorf("validating embedded migrations: %w", err)
	}

	sqlDB, err := client.DB().DB()
	if err != nil {
		return fmt.Errorf("extracting sql.DB: %w", err)
	}

	pending, err := PendingEmbedded(sqlDB)
	if err != nil {
		return err
	}
	ctx = logg.WithFields(ctx, map[string]any{"env": cfg.App.Env, "source": "embedded", "pending": pending})
	if pending == 0 {
		logg.Info(ctx, "schema up to date, skipping dev auto-migrate")
		return nil
	}

	logg.Info(ctx, "applying migrations (dev auto-run)")
	if err := RunEmbedded(ctx, sqlDB, "up"); err != nil {
		return fmt.Errorf("running goose up: %w", err)
	}
	logg.Info(ctx, "migrations applied")
	return nil
}
