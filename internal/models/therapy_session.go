package models

import "time"

// TherapySession statuses. Status only moves forward through
// uploading → transcribing → transcribed → extracting_notes → processed;
// failed is a terminal absorbing state reachable from any non-terminal one.
const (
	StatusUploading       = "uploading"
	StatusTranscribing    = "transcribing"
	StatusTranscribed     = "transcribed"
	StatusExtractingNotes = "extracting_notes"
	StatusProcessed       = "processed"
	StatusFailed          = "failed"
)

// Error categories recorded on failed sessions.
const (
	ErrCategoryValidation  = "validation"
	ErrCategoryTransient   = "transient"
	ErrCategoryPermanent   = "permanent"
	ErrCategoryPersistence = "persistence"
)

// TherapySession is one recorded therapy appointment and the artifacts the
// processing pipeline derives from its audio. Only the pipeline writes
// Status, TranscriptText, TranscriptSegments and ExtractedNotes.
type TherapySession struct {
	ID                 string  `gorm:"primaryKey;size:36"`
	PatientID          string  `gorm:"size:36;not null;index"`
	TherapistID        string  `gorm:"size:36;not null;index"`
	AudioFilename      string  `gorm:"size:255;index"`
	DurationSeconds    float64 `gorm:"default:0"`
	TranscriptText     string  `gorm:"type:text"`
	TranscriptSegments string  `gorm:"type:json"` // JSON array of speaker turns
	ExtractedNotes     string  `gorm:"type:json"` // JSON structured notes
	Status             string  `gorm:"size:20;default:uploading;index"`
	ErrorCategory      string  `gorm:"size:16"`
	ErrorMessage       string  `gorm:"size:512"`
	CreatedAt          time.Time
	UpdatedAt          time.Time
	ProcessedAt        *time.Time

	Patient   Patient `gorm:"foreignKey:PatientID"`
	Therapist User    `gorm:"foreignKey:TherapistID"`
}

// IsTerminal reports whether the session's status is an end state.
func (s *TherapySession) IsTerminal() bool {
	return s.Status == StatusProcessed || s.Status == StatusFailed
}
