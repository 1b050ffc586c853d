package database

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/mmmaly/chcemvediet-sub000/internal/database/models"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Initialize creates and returns a database connection. driver is "sqlite"
// (dsn is a file path) or "postgres" (dsn is a connection string).
func Initialize(driver, dsn string) (*gorm.DB, error) {
	gormConfig := &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	}

	var db *gorm.DB
	var err error
	switch driver {
	case "", "sqlite":
		// Ensure the directory exists
		dir := filepath.Dir(dsn)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, err
		}
		db, err = gorm.Open(sqlite.Open(dsn), gormConfig)
	case "postgres":
		db, err = gorm.Open(postgres.Open(dsn), gormConfig)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
	if err != nil {
		return nil, err
	}

	// Run migrations
	if err := runMigrations(db); err != nil {
		return nil, err
	}

	return db, nil
}

// runMigrations runs all database migrations
func runMigrations(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.Obligee{},
		&models.Inforequest{},
		&models.Branch{},
		&models.Action{},
		&models.ActionDraft{},
		&models.Message{},
		&models.Recipient{},
		&models.InforequestEmail{},
		&models.Attachment{},
		&models.JobRun{},
		&models.Log{},
	)
}
