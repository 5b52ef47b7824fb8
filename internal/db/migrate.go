package db

import (
	"fmt"

	"github.com/taskwire/taskwire/internal/models"
	"gorm.io/gorm"
)

// AllModels returns the list of all GORM models for migration.
func AllModels() []interface{} {
	return []interface{}{
		&models.Conversation{},
		&models.ConversationMessage{},
		&models.InteractionResponse{},
		&models.ResearchTask{},
		&models.ScheduledRun{},
	}
}

// AutoMigrate creates or updates all Taskwire tables.
func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(AllModels()...); err != nil {
		return fmt.Errorf("db: auto-migrate: %w", err)
	}
	return nil
}
