package db

import (
	"fmt"

	"github.com/therapybridge/therapybridge/internal/models"
	"gorm.io/gorm"
)

// AllModels returns the list of all GORM models for migration.
func AllModels() []interface{} {
	return []interface{}{
		&models.User{},
		&models.AuthSession{},
		&models.Patient{},
		&models.TherapySession{},
		&models.TreatmentGoal{},
		&models.GoalMilestone{},
		&models.NoteTemplate{},
		&models.ChatConversation{},
		&models.ChatMessage{},
		&models.ProcessingJob{},
	}
}

// AutoMigrate creates or updates all tables.
func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(AllModels()...); err != nil {
		return fmt.Errorf("db: auto-migrate: %w", err)
	}
	return nil
}
