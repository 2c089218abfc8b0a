package database

import (
	"gorm.io/gorm"

	"github.com/noah-isme/gema-submission-gateway/internal/models"
)

// Migrate creates the tables owned by the gateway.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(&models.LifecycleEvent{})
}
