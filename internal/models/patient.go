package models

import "time"

// Patient is a person receiving therapy, owned by one therapist.
type Patient struct {
	ID               string `gorm:"primaryKey;size:36"`
	TherapistID      string `gorm:"size:36;not null;index"`
	FullName         string `gorm:"size:128;not null"`
	Email            string `gorm:"size:255"`
	Phone            string `gorm:"size:32"`
	DateOfBirth      *time.Time
	EmergencyContact string `gorm:"size:255"`
	Notes            string `gorm:"type:text"`
	CreatedAt        time.Time
	UpdatedAt        time.Time

	Therapist User            `gorm:"foreignKey:TherapistID"`
	Sessions  []TherapySession `gorm:"foreignKey:PatientID"`
	Goals     []TreatmentGoal  `gorm:"foreignKey:PatientID"`
}
