package migration

import (
	"strings"

	"github.com/smallbiznis/wattwatch/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config, log *zap.Logger) error {
		switch strings.ToLower(strings.TrimSpace(cfg.DBType)) {
		case "sqlite":
			return ApplySQLiteSchema(conn)
		case "postgres", "":
			sqlDB, err := conn.DB()
			if err != nil {
				return err
			}
			return RunMigrations(sqlDB)
		default:
			log.Warn("schema migrations skipped for database type", zap.String("db_type", cfg.DBType))
			return nil
		}
	}),
)
