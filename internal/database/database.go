// Package database persists profile records in SQLite via GORM. It is the
// one component that touches the backing medium; the pipeline consumes it
// only through the profile.Store contract.
package database

import (
	"os"
	"path/filepath"
	"time"

	"github.com/LakePipiCAKA/self-discovery/config"

	"github.com/glebarez/sqlite" // Pure Go
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
	gormlog "gorm.io/gorm/logger"
)

// Open connects to the SQLite database file and runs migrations. The
// returned handle is passed explicitly to whoever needs it; there is no
// package-level connection.
func Open(cfg config.DBConfig) (*gorm.DB, error) {
	dbDir := filepath.Dir(cfg.File)
	if err := os.MkdirAll(dbDir, 0750); err != nil {
		log.Errorf("Failed to create database directory '%s': %v", dbDir, err)
		return nil, err
	}

	// Route GORM logging through the configured logrus instance.
	gormConfiguredLogger := gormlog.New(
		log.StandardLogger(),
		gormlog.Config{
			SlowThreshold:             time.Second * 2,
			LogLevel:                  gormlog.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)

	log.Infof("Connecting to database: %s", cfg.File)
	db, err := gorm.Open(sqlite.Open(cfg.File), &gorm.Config{
		Logger: gormConfiguredLogger,
	})
	if err != nil {
		log.Errorf("Failed to connect to database '%s': %v", cfg.File, err)
		return nil, err
	}

	log.Info("Database connection established.")

	log.Info("Running database migrations...")
	if err := db.AutoMigrate(&ProfileRecord{}); err != nil {
		log.Errorf("Database migration failed: %v", err)
		return nil, err
	}
	log.Info("Database migrations completed.")

	return db, nil
}
