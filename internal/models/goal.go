package models

import "time"

// TreatmentGoal statuses.
const (
	GoalActive    = "active"
	GoalCompleted = "completed"
	GoalAbandoned = "abandoned"
)

// TreatmentGoal is a patient-level therapeutic objective.
type TreatmentGoal struct {
	ID          string `gorm:"primaryKey;size:36"`
	PatientID   string `gorm:"size:36;not null;index"`
	TherapistID string `gorm:"size:36;not null;index"`
	Title       string `gorm:"size:255;not null"`
	Description string `gorm:"type:text"`
	Status      string `gorm:"size:16;default:active;index"`
	TargetDate  *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
	CompletedAt *time.Time

	Patient    Patient         `gorm:"foreignKey:PatientID"`
	Milestones []GoalMilestone `gorm:"foreignKey:GoalID;constraint:OnDelete:CASCADE"`
}

// GoalMilestone is a checkable step toward a treatment goal.
type GoalMilestone struct {
	ID        uint   `gorm:"primaryKey;autoIncrement"`
	GoalID    string `gorm:"size:36;not null;index"`
	Title     string `gorm:"size:255;not null"`
	Done      bool   `gorm:"default:false"`
	DoneAt    *time.Time
	CreatedAt time.Time

	Goal TreatmentGoal `gorm:"foreignKey:GoalID"`
}
