package migration

import (
	"context"
	"strings"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/smallbiznis/scorebench/internal/billing/pricing"
	"github.com/smallbiznis/scorebench/internal/clock"
	"github.com/smallbiznis/scorebench/internal/config"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config, catalog *pricing.Catalog, clk clock.Clock, log *zap.Logger) error {
		if !cfg.DBRunMigrations || !strings.EqualFold(cfg.DBType, "postgres") {
			log.Info("schema migrations skipped", zap.String("db_type", cfg.DBType))
			return nil
		}

		sqlDB, err := conn.DB()
		if err != nil {
			return err
		}
		if err := RunMigrations(sqlDB); err != nil {
			return err
		}

		return SyncPlanLimits(context.Background(), conn, catalog.PlanLimits(), clk.Now())
	}),
)
