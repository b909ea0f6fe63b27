package models

import "time"

// NoteTemplate is a therapist-defined outline for session notes.
type NoteTemplate struct {
	ID          string `gorm:"primaryKey;size:36"`
	TherapistID string `gorm:"size:36;not null;index"`
	Name        string `gorm:"size:128;not null"`
	Description string `gorm:"size:512"`
	Sections    string `gorm:"type:json"` // JSON array of section names
	IsDefault   bool   `gorm:"default:false"`
	CreatedAt   time.Time
	UpdatedAt   time.Time

	Therapist User `gorm:"foreignKey:TherapistID"`
}
