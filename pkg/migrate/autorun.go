package migrate

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/angelmondragon/cartengine/pkg/config"
	"github.com/angelmondragon/cartengine/pkg/logger"
)

// AutoRun applies pending migrations at startup when CARTENGINE_AUTO_MIGRATE
// is set. Production always migrates through cmd/migrate, so the flag is
// ignored there. It reports whether migrations were attempted.
func AutoRun(ctx context.Context, cfg *config.Config, logg *logger.Logger, sqlDB *sql.DB, dir string) (bool, error) {
	if !cfg.FeatureFlags.AutoMigrate || cfg.App.IsProd() {
		return false, nil
	}

	dialect := DialectFor(cfg.DB)
	if logg != nil {
		ctx = logg.WithFields(ctx, map[string]any{"env": cfg.App.Env, "dir": dir, "dialect": dialect})
		logg.Info(ctx, "migrate.autorun.start")
	}

	if err := Run(ctx, sqlDB, dialect, dir, "up"); err != nil {
		return true, fmt.Errorf("auto-migrate: %w", err)
	}

	if logg != nil {
		logg.Info(ctx, "migrate.autorun.complete")
	}
	return true, nil
}
