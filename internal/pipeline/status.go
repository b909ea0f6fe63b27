// Package pipeline runs the audio-processing state machine: uploaded
// session audio is transcribed, structured notes are extracted, and the
// results are persisted. Work is durable: each session has a processing_jobs
// row claimed and executed by a polling worker.
package pipeline

import (
	"fmt"

	"github.com/therapybridge/therapybridge/internal/models"
	"gorm.io/gorm"
)

// transitions is the forward edge set of the status machine. failed is
// additionally reachable from every non-terminal state.
var transitions = map[string]string{
	models.StatusUploading:       models.StatusTranscribing,
	models.StatusTranscribing:    models.StatusTranscribed,
	models.StatusTranscribed:     models.StatusExtractingNotes,
	models.StatusExtractingNotes: models.StatusProcessed,
}

// CanTransition reports whether a session may move from one status to
// another. Terminal states absorb.
func CanTransition(from, to string) bool {
	if from == models.StatusProcessed || from == models.StatusFailed {
		return false
	}
	if to == models.StatusFailed {
		return true
	}
	return transitions[from] == to
}

// advance moves the session to the next status, persisting extra column
// updates in the same statement. It refuses invalid transitions so a stale
// or duplicate worker can never move a session backward.
func advance(db *gorm.DB, session *models.TherapySession, to string, updates map[string]interface{}) error {
	if !CanTransition(session.Status, to) {
		return fmt.Errorf("pipeline: illegal transition %s → %s for session %s", session.Status, to, session.ID)
	}
	if updates == nil {
		updates = map[string]interface{}{}
	}
	updates["status"] = to

	res := db.Model(&models.TherapySession{}).
		Where("id = ? AND status = ?", session.ID, session.Status).
		Updates(updates)
	if res.Error != nil {
		return fmt.Errorf("pipeline: persist %s → %s: %w", session.Status, to, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("pipeline: session %s changed status concurrently (expected %s)", session.ID, session.Status)
	}
	session.Status = to
	return nil
}
