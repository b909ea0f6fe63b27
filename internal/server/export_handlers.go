package server

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/therapybridge/therapybridge/internal/clinical"
	"github.com/therapybridge/therapybridge/internal/models"
)

// handleExportSessionsCSV streams every visible session as CSV.
func (s *Server) handleExportSessionsCSV(c *gin.Context) {
	var sessions []models.TherapySession
	err := s.sessionScope(c).Preload("Patient").Order("created_at ASC").Find(&sessions).Error
	if err != nil {
		s.failInternal(c, err)
		return
	}

	c.Header("Content-Type", "text/csv")
	c.Header("Content-Disposition", `attachment; filename="sessions.csv"`)
	w := csv.NewWriter(c.Writer)
	w.Write([]string{"id", "patient_id", "patient_name", "created_at", "status", "duration_seconds", "session_mood", "risk_flags"})
	for i := range sessions {
		sess := &sessions[i]
		mood, risks := "", ""
		if sess.Status == models.StatusProcessed && sess.ExtractedNotes != "" {
			var notes clinical.ExtractedNotes
			if err := json.Unmarshal([]byte(sess.ExtractedNotes), &notes); err == nil {
				mood = notes.SessionMood
				labels := make([]string, 0, len(notes.RiskFlags))
				for _, f := range notes.RiskFlags {
					labels = append(labels, f.Concern)
				}
				risks = strings.Join(labels, "; ")
			}
		}
		w.Write([]string{
			sess.ID,
			sess.PatientID,
			sess.Patient.FullName,
			sess.CreatedAt.Format(time.RFC3339),
			sess.Status,
			fmt.Sprintf("%.1f", sess.DurationSeconds),
			mood,
			risks,
		})
	}
	w.Flush()
}

// handleExportSessionJSON returns the complete record of one session,
// with segments and notes parsed. Accepts an optional .json suffix on the
// ID so exported links read naturally.
func (s *Server) handleExportSessionJSON(c *gin.Context) {
	id := strings.TrimSuffix(c.Param("id"), ".json")
	session, ok := s.loadSession(c, id)
	if !ok {
		return
	}
	var patient models.Patient
	if err := s.db.First(&patient, "id = ?", session.PatientID).Error; err != nil {
		s.failInternal(c, err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="session-%s.json"`, session.ID))
	c.JSON(http.StatusOK, gin.H{
		"session": toSessionResponse(session),
		"patient": gin.H{
			"id":        patient.ID,
			"full_name": patient.FullName,
		},
		"exported_at": time.Now().UTC().Format(time.RFC3339),
	})
}

// handleExportPatientsCSV streams every visible patient as CSV.
func (s *Server) handleExportPatientsCSV(c *gin.Context) {
	var patients []models.Patient
	if err := s.patientScope(c).Order("full_name ASC").Find(&patients).Error; err != nil {
		s.failInternal(c, err)
		return
	}

	c.Header("Content-Type", "text/csv")
	c.Header("Content-Disposition", `attachment; filename="patients.csv"`)
	w := csv.NewWriter(c.Writer)
	w.Write([]string{"id", "full_name", "email", "phone", "date_of_birth", "created_at"})
	for i := range patients {
		p := &patients[i]
		dob := ""
		if p.DateOfBirth != nil {
			dob = p.DateOfBirth.Format("2006-01-02")
		}
		w.Write([]string{p.ID, p.FullName, p.Email, p.Phone, dob, p.CreatedAt.Format(time.RFC3339)})
	}
	w.Flush()
}
