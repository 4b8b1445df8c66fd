package database

import (
	"fmt"
	"strings"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/veilchat/whispermatch/internal/models"
)

// DB holds the database connection for the session archive
var DB *gorm.DB

// Initialize opens the archive database. Postgres in production; a
// sqlite:// URL works for development.
func Initialize(databaseURL, environment string) error {
	logMode := gormlogger.Default
	if environment == "development" {
		logMode = gormlogger.Default.LogMode(gormlogger.Info)
	}

	config := &gorm.Config{
		Logger: logMode,
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	}

	var (
		db  *gorm.DB
		err error
	)
	if path, ok := strings.CutPrefix(databaseURL, "sqlite://"); ok {
		db, err = gorm.Open(sqlite.Open(path), config)
	} else {
		db, err = gorm.Open(postgres.Open(databaseURL), config)
	}
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetMaxOpenConns(20)
	sqlDB.SetConnMaxLifetime(time.Hour)

	DB = db
	return nil
}

// Migrate runs auto-migration for the archive models
func Migrate() error {
	if DB == nil {
		return fmt.Errorf("database not initialized")
	}
	return DB.AutoMigrate(&models.ArchivedSession{})
}

// Close closes the underlying connection
func Close() error {
	if DB == nil {
		return nil
	}
	sqlDB, err := DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
