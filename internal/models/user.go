package models

import "time"

// User roles.
const (
	RoleTherapist = "therapist"
	RoleAdmin     = "admin"
)

// User is a therapist or administrator account.
type User struct {
	ID           string `gorm:"primaryKey;size:36"`
	Email        string `gorm:"size:255;uniqueIndex;not null"`
	PasswordHash string `gorm:"size:128;not null"`
	FullName     string `gorm:"size:128;not null"`
	Role         string `gorm:"size:16;default:therapist;index"`
	Active       bool   `gorm:"default:true"`
	CreatedAt    time.Time
	UpdatedAt    time.Time

	AuthSessions []AuthSession `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE"`
	Patients     []Patient     `gorm:"foreignKey:TherapistID"`
}
