package database

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/noah-isme/mural-go-api/internal/models"
)

// Migrate creates or updates the relational schema.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&models.Activity{}); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}
	return nil
}
