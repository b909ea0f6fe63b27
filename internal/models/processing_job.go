package models

import "time"

// ProcessingJob states.
const (
	JobPending = "pending"
	JobRunning = "running"
	JobDone    = "done"
	JobFailed  = "failed"
)

// ProcessingJob kinds.
const (
	JobFullPipeline = "full_pipeline"
	JobExtractOnly  = "extract_only"
)

// ProcessingJob is one unit of durable pipeline work. Jobs survive process
// restarts: a worker claims a pending job by setting ClaimedBy/ClaimedAt,
// and claims older than the stale-claim window are reclaimed.
type ProcessingJob struct {
	ID        uint   `gorm:"primaryKey;autoIncrement"`
	SessionID string `gorm:"size:36;not null;index"`
	Kind      string `gorm:"size:16;default:full_pipeline"`
	State     string `gorm:"size:16;default:pending;index"`
	Attempts  int    `gorm:"default:0"`
	NextRunAt time.Time `gorm:"index"`
	ClaimedBy string    `gorm:"size:64"`
	ClaimedAt *time.Time
	LastError string `gorm:"size:512"`
	CreatedAt time.Time
	UpdatedAt time.Time

	Session TherapySession `gorm:"foreignKey:SessionID"`
}
