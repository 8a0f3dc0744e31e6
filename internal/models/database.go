package models

import (
	"fmt"

	"github.com/ibkchat/insight/backend/internal/config"
	"gorm.io/driver/clickhouse"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var DB *gorm.DB

// analyticsDB is a separate read-only connection to the columnar engine
// holding the raw chat logs. It is never migrated.
var analyticsDB *gorm.DB

func InitDB(cfg *config.DatabaseConfig) error {
	var dialector gorm.Dialector

	switch cfg.Driver {
	case "sqlite":
		dialector = sqlite.Open(cfg.DSN)
	case "mysql":
		dialector = mysql.Open(cfg.DSN)
	case "postgres":
		dialector = postgres.Open(cfg.DSN)
	default:
		return fmt.Errorf("unsupported database driver: %s", cfg.Driver)
	}

	gormConfig := &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	}

	db, err := gorm.Open(dialector, gormConfig)
	if err != nil {
		return fmt.Errorf("failed to connect database: %w", err)
	}

	DB = db
	return nil
}

func InitAnalyticsDB(cfg *config.AnalyticsConfig) error {
	db, err := gorm.Open(clickhouse.Open(cfg.DSN), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return fmt.Errorf("failed to connect analytics engine: %w", err)
	}

	analyticsDB = db
	return nil
}

func AutoMigrate() error {
	return DB.AutoMigrate(
		&ChatReport{},
		&IMBot{},
		&LLMConfig{},
		&SystemConfig{},
		&SystemLog{},
		&AIUsageLog{},
	)
}

func GetDB() *gorm.DB {
	return DB
}

func GetAnalyticsDB() *gorm.DB {
	return analyticsDB
}

// SeedDefaultData creates default runtime settings if not present.
func SeedDefaultData() error {
	defaults := []SystemConfig{
		{Key: "chat_report_enabled", Value: "true", Type: "bool", Group: "report", Label: "Daily chat report enabled"},
		{Key: "chat_report_time", Value: "08:00", Type: "string", Group: "report", Label: "Daily chat report schedule (HH:MM)"},
		{Key: "chat_report_country", Value: "NONE", Type: "string", Group: "report", Label: "Holiday calendar for the report schedule"},
		{Key: "log_retention_days", Value: "30", Type: "int", Group: "general", Label: "System log retention days"},
	}

	for _, cfg := range defaults {
		var count int64
		DB.Model(&SystemConfig{}).Where("`key` = ?", cfg.Key).Count(&count)
		if count == 0 {
			if err := DB.Create(&cfg).Error; err != nil {
				return err
			}
		}
	}
	return nil
}
