package migration

import (
	"github.com/smallbiznis/barberconnect/internal/config"
	connectdomain "github.com/smallbiznis/barberconnect/internal/connectaccount/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(Apply),
)

// Apply runs the embedded SQL migrations on postgres. Other dialects are only
// used for local development and get their schema from the gorm models.
func Apply(conn *gorm.DB, cfg config.Config, log *zap.Logger) error {
	if cfg.DBType != "postgres" {
		log.Info("auto-migrating schema", zap.String("type", cfg.DBType))
		return AutoMigrate(conn)
	}

	sqlDB, err := conn.DB()
	if err != nil {
		return err
	}
	return RunMigrations(sqlDB)
}

func AutoMigrate(conn *gorm.DB) error {
	return conn.AutoMigrate(
		&connectdomain.PaymentAccount{},
		&connectdomain.OrphanedAccount{},
	)
}
