package models

import "time"

// ChatConversation is an assistant conversation a therapist keeps about a
// patient (or free-standing when PatientID is nil).
type ChatConversation struct {
	ID          string  `gorm:"primaryKey;size:36"`
	TherapistID string  `gorm:"size:36;not null;index"`
	PatientID   *string `gorm:"size:36;index"`
	Title       string  `gorm:"size:255"`
	CreatedAt   time.Time
	UpdatedAt   time.Time

	Messages []ChatMessage `gorm:"foreignKey:ConversationID;constraint:OnDelete:CASCADE"`
}

// ChatMessage is a single turn in a conversation.
type ChatMessage struct {
	ID             uint   `gorm:"primaryKey;autoIncrement"`
	ConversationID string `gorm:"size:36;not null;index"`
	Role           string `gorm:"size:16;not null"` // "user" or "assistant"
	Content        string `gorm:"type:text;not null"`
	CreatedAt      time.Time

	Conversation ChatConversation `gorm:"foreignKey:ConversationID"`
}
