// internal/database/connection.go
package database

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/aetflow/aet-backend/internal/config"
	"github.com/aetflow/aet-backend/internal/models"
)

func gormLogLevel(level string) logger.LogLevel {
	switch level {
	case "info":
		return logger.Info
	case "warn":
		return logger.Warn
	case "error":
		return logger.Error
	default:
		return logger.Silent
	}
}

func Initialize(cfg config.DatabaseConfig) (*gorm.DB, error) {
	gormConfig := &gorm.Config{
		Logger:         logger.Default.LogMode(gormLogLevel(cfg.LogLevel)),
		TranslateError: true,
	}

	db, err := gorm.Open(postgres.Open(cfg.DSN()), gormConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(time.Duration(cfg.MaxLifetime) * time.Second)

	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"host":     cfg.Host,
		"database": cfg.Database,
	}).Info("Database connection established")
	return db, nil
}

func Close(db *gorm.DB) {
	sqlDB, err := db.DB()
	if err != nil {
		logrus.WithError(err).Error("Error getting underlying sql.DB")
		return
	}

	if err := sqlDB.Close(); err != nil {
		logrus.WithError(err).Error("Error closing database connection")
	} else {
		logrus.Info("Database connection closed")
	}
}

func RunMigrations(db *gorm.DB) error {
	logrus.Info("Running database migrations")

	// gen_random_uuid() lives in pgcrypto before PostgreSQL 13
	if err := db.Exec("CREATE EXTENSION IF NOT EXISTS \"pgcrypto\"").Error; err != nil {
		return fmt.Errorf("failed to create pgcrypto extension: %w", err)
	}

	err := db.AutoMigrate(
		&models.Vehicle{},
		&models.LicenseRequest{},
		&models.LicenseStateStatus{},
		&models.IssuedLicense{},
		&models.AuditLog{},
	)
	if err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	createIndexes(db)

	logrus.Info("Database migrations completed")
	return nil
}

func createIndexes(db *gorm.DB) {
	indexes := []string{
		// Candidate lookups: state + status + validity, then any plate slot
		"CREATE INDEX IF NOT EXISTS idx_issued_licenses_candidates ON issued_licenses(state, status, valid_until DESC)",
		"CREATE INDEX IF NOT EXISTS idx_issued_licenses_composition ON issued_licenses(state, tractor_plate, trailer1_plate, trailer2_plate)",

		"CREATE INDEX IF NOT EXISTS idx_license_requests_states ON license_requests USING GIN(requested_states)",
		"CREATE INDEX IF NOT EXISTS idx_license_requests_created_at ON license_requests(created_at DESC)",
		"CREATE INDEX IF NOT EXISTS idx_state_statuses_state_status ON license_state_statuses(state, status)",

		"CREATE INDEX IF NOT EXISTS idx_audit_logs_user_action ON audit_logs(user_id, action)",
		"CREATE INDEX IF NOT EXISTS idx_audit_logs_resource ON audit_logs(resource_type, resource_id)",
		"CREATE INDEX IF NOT EXISTS idx_audit_logs_created ON audit_logs(created_at DESC)",
	}

	for _, index := range indexes {
		if err := db.Exec(index).Error; err != nil {
			// Continue with other indexes instead of failing completely
			logrus.WithError(err).WithField("index", index).Warn("Failed to create index")
		}
	}
}

// Transaction helper
func WithTransaction(db *gorm.DB, fn func(*gorm.DB) error) error {
	tx := db.Begin()
	if tx.Error != nil {
		return tx.Error
	}

	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
			panic(r)
		}
	}()

	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}

	return tx.Commit().Error
}
