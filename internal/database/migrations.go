package database

import (
	"gorm.io/gorm"

	"github.com/abdullahafiq394-creator/garagehub-backend-sub000/internal/models"
)

// AutoMigrate creates or updates the database schema for all models.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.User{},
		&models.RefreshToken{},
		&models.MFAEnrollment{},
		&models.SecurityEvent{},
		&models.CacheEntry{},
		&models.SystemSetting{},
	)
}
