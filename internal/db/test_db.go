package db

import (
	"fmt"

	appLogger "github.com/ikkim/delivery-tracker/pkg/logger"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// each connection to :memory: opens its own empty database
const testDSN = ":memory:"

// SetupTestDB returns a migrated in-memory SQLite database. The pool is pinned
// to one connection so every query sees the same schema; callers must not hold
// a transaction open while issuing reads on the outer handle.
func SetupTestDB() (*gorm.DB, error) {
	conn, err := gorm.Open(sqlite.Open(testDSN), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open test database: %w", err)
	}

	sqlDB, err := conn.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get test database instance: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := conn.AutoMigrate(Models()...); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to migrate test database: %w", err)
	}
	return conn, nil
}

func CleanupTestDB(conn *gorm.DB) {
	sqlDB, err := conn.DB()
	if err != nil {
		appLogger.Warn("Test database already detached", map[string]interface{}{
			"error": err.Error(),
		})
		return
	}
	sqlDB.Close()
}
