package pipeline

import (
	"fmt"
	"time"

	"github.com/therapybridge/therapybridge/internal/models"
	"gorm.io/gorm"
)

// Queue is the durable work queue backed by the processing_jobs table.
type Queue struct {
	db *gorm.DB
}

// NewQueue wraps the database in a Queue.
func NewQueue(db *gorm.DB) *Queue {
	return &Queue{db: db}
}

// Enqueue inserts a pending job for the session. Pass the upload
// transaction as tx so the session row and its job commit atomically.
func (q *Queue) Enqueue(tx *gorm.DB, sessionID, kind string) error {
	if tx == nil {
		tx = q.db
	}
	job := models.ProcessingJob{
		SessionID: sessionID,
		Kind:      kind,
		State:     models.JobPending,
		NextRunAt: time.Now(),
	}
	if err := tx.Create(&job).Error; err != nil {
		return fmt.Errorf("pipeline: enqueue %s for session %s: %w", kind, sessionID, err)
	}
	return nil
}

// ClaimNext atomically claims the oldest due pending job for workerID.
// Returns nil when no job is due.
func (q *Queue) ClaimNext(workerID string) (*models.ProcessingJob, error) {
	now := time.Now()
	var job models.ProcessingJob
	err := q.db.Where("state = ? AND next_run_at <= ?", models.JobPending, now).
		Order("id ASC").First(&job).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("pipeline: find pending job: %w", err)
	}

	// Guard the claim on the observed state so two workers can't both win.
	res := q.db.Model(&models.ProcessingJob{}).
		Where("id = ? AND state = ?", job.ID, models.JobPending).
		Updates(map[string]interface{}{
			"state":      models.JobRunning,
			"claimed_by": workerID,
			"claimed_at": now,
			"attempts":   gorm.Expr("attempts + 1"),
		})
	if res.Error != nil {
		return nil, fmt.Errorf("pipeline: claim job %d: %w", job.ID, res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, nil // lost the race
	}

	job.State = models.JobRunning
	job.ClaimedBy = workerID
	job.ClaimedAt = &now
	job.Attempts++
	return &job, nil
}

// ReclaimStale returns running jobs whose claim is older than window to the
// pending state. This is the crash-recovery path: a worker that died
// mid-job leaves a stale claim behind.
func (q *Queue) ReclaimStale(window time.Duration) (int64, error) {
	cutoff := time.Now().Add(-window)
	res := q.db.Model(&models.ProcessingJob{}).
		Where("state = ? AND claimed_at < ?", models.JobRunning, cutoff).
		Updates(map[string]interface{}{
			"state":      models.JobPending,
			"claimed_by": "",
			"claimed_at": nil,
		})
	if res.Error != nil {
		return 0, fmt.Errorf("pipeline: reclaim stale jobs: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// MarkDone completes the job.
func (q *Queue) MarkDone(job *models.ProcessingJob) error {
	err := q.db.Model(job).Updates(map[string]interface{}{
		"state":      models.JobDone,
		"last_error": "",
	}).Error
	if err != nil {
		return fmt.Errorf("pipeline: mark job %d done: %w", job.ID, err)
	}
	return nil
}

// MarkFailed terminates the job with its final error text.
func (q *Queue) MarkFailed(job *models.ProcessingJob, errText string) error {
	err := q.db.Model(job).Updates(map[string]interface{}{
		"state":      models.JobFailed,
		"last_error": truncate(errText, 500),
	}).Error
	if err != nil {
		return fmt.Errorf("pipeline: mark job %d failed: %w", job.ID, err)
	}
	return nil
}

// Reschedule returns the job to pending with a delay before its next run.
func (q *Queue) Reschedule(job *models.ProcessingJob, delay time.Duration, errText string) error {
	err := q.db.Model(job).Updates(map[string]interface{}{
		"state":       models.JobPending,
		"claimed_by":  "",
		"claimed_at":  nil,
		"next_run_at": time.Now().Add(delay),
		"last_error":  truncate(errText, 500),
	}).Error
	if err != nil {
		return fmt.Errorf("pipeline: reschedule job %d: %w", job.ID, err)
	}
	return nil
}

// PendingCount reports the queue depth.
func (q *Queue) PendingCount() (int64, error) {
	var n int64
	if err := q.db.Model(&models.ProcessingJob{}).Where("state = ?", models.JobPending).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("pipeline: count pending jobs: %w", err)
	}
	return n, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
