package database

import (
	"fmt"
	"time"

	"mailflow/internal/model"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// NewConnection initializes a new connection pool using GORM. Driver errors
// are translated so unique violations surface as gorm.ErrDuplicatedKey.
func NewConnection(dsn string, log *zap.Logger) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)

	if err := Migrate(db); err != nil {
		if log != nil {
			log.Warn("failed to auto-migrate models", zap.Error(err))
		}
	}

	return db, nil
}

// Migrate creates or updates the workflow tables
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&model.User{},
		&model.UserRoleAudit{},
		&model.RolePermission{},
		&model.IncomingMail{},
		&model.OutgoingMail{},
		&model.Archive{},
		&model.MailHistory{},
		&model.EntityHistory{},
		&model.AuditLog{},
		&model.Notification{},
	); err != nil {
		return fmt.Errorf("auto-migrate: %w", err)
	}
	return nil
}
