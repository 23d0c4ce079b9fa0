package database

import (
	"fmt"

	"github.com/docvault/backend/internal/config"
	"github.com/docvault/backend/internal/models"
	"github.com/docvault/backend/pkg/utils"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// Connect opens the connection pool. It performs no schema work; Migrate is
// run explicitly at deployment via cmd/migrate.
func Connect(cfg config.DBConfig) (*gorm.DB, error) {
	dsn := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host,
		cfg.Port,
		cfg.User,
		cfg.Password,
		cfg.Name,
		cfg.SSLMode,
	)

	return gorm.Open(postgres.Open(dsn), &gorm.Config{TranslateError: true})
}

// Migrate brings the schema to the current shape and seeds the bootstrap
// administrator. It is idempotent: AutoMigrate only adds what is missing and
// the seed is skipped once a bootstrap row exists.
func Migrate(db *gorm.DB, bootstrapPassword string) error {
	if err := db.AutoMigrate(
		&models.User{},
		&models.Group{},
		&models.Document{},
	); err != nil {
		return err
	}

	return seedBootstrapAdmin(db, bootstrapPassword)
}

func seedBootstrapAdmin(db *gorm.DB, password string) error {
	var count int64
	if err := db.Model(&models.User{}).Where("bootstrap = ?", true).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	if password == "" {
		password = "admin123"
	}
	hash, err := utils.HashPassword(password)
	if err != nil {
		return err
	}

	admin := models.User{
		Username:     "admin",
		PasswordHash: hash,
		Role:         models.UserRoleAdmin,
		Bootstrap:    true,
	}

	return db.Create(&admin).Error
}
