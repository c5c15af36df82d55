// Package datastore opens the database connection and runs migrations for
// the prediction and alert dispatch engine.
package datastore

import (
	"fmt"

	"github.com/floodsense/floodsense-go/internal/conf"
	"github.com/floodsense/floodsense-go/internal/datastore/entities"
	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gorm_logger "gorm.io/gorm/logger"
)

// Open connects to the configured database and migrates the schema.
func Open(settings *conf.DatabaseSettings) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch settings.Type {
	case "sqlite":
		// foreign_keys pragma keeps the cascade constraints on
		// alert_events enforced.
		dialector = sqlite.Open(settings.Path + "?_foreign_keys=ON")
	case "mysql":
		dialector = mysql.Open(settings.DSN)
	default:
		return nil, fmt.Errorf("unsupported database type %q", settings.Type)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gorm_logger.Default.LogMode(gorm_logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", settings.Type, err)
	}
	if err := Migrate(db); err != nil {
		return nil, err
	}
	return db, nil
}

// Migrate creates or updates the schema for all engine entities.
func Migrate(db *gorm.DB) error {
	err := db.AutoMigrate(
		&entities.Region{},
		&entities.Observation{},
		&entities.Prediction{},
		&entities.Subscription{},
		&entities.AlertEvent{},
	)
	if err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}
	return nil
}
