package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/therapybridge/therapybridge/internal/auth"
	"github.com/therapybridge/therapybridge/internal/models"
	"github.com/therapybridge/therapybridge/internal/validate"
)

// sessionResponse is the API shape of a therapy session. Transcript
// segments and notes are emitted as parsed JSON, null until populated.
type sessionResponse struct {
	ID                 string          `json:"id"`
	PatientID          string          `json:"patient_id"`
	TherapistID        string          `json:"therapist_id"`
	Status             string          `json:"status"`
	DurationSeconds    float64         `json:"duration_seconds"`
	TranscriptText     string          `json:"transcript_text,omitempty"`
	TranscriptSegments json.RawMessage `json:"transcript_segments,omitempty"`
	ExtractedNotes     json.RawMessage `json:"extracted_notes,omitempty"`
	ErrorCategory      string          `json:"error_category,omitempty"`
	ErrorMessage       string          `json:"error_message,omitempty"`
	CreatedAt          time.Time       `json:"created_at"`
	ProcessedAt        *time.Time      `json:"processed_at,omitempty"`
}

func toSessionResponse(m *models.TherapySession) sessionResponse {
	resp := sessionResponse{
		ID:              m.ID,
		PatientID:       m.PatientID,
		TherapistID:     m.TherapistID,
		Status:          m.Status,
		DurationSeconds: m.DurationSeconds,
		TranscriptText:  m.TranscriptText,
		ErrorCategory:   m.ErrorCategory,
		ErrorMessage:    m.ErrorMessage,
		CreatedAt:       m.CreatedAt,
		ProcessedAt:     m.ProcessedAt,
	}
	if m.TranscriptSegments != "" {
		resp.TranscriptSegments = json.RawMessage(m.TranscriptSegments)
	}
	if m.ExtractedNotes != "" {
		resp.ExtractedNotes = json.RawMessage(m.ExtractedNotes)
	}
	return resp
}

// sessionScope narrows session queries to the caller's own sessions unless
// the caller is an admin.
func (s *Server) sessionScope(c *gin.Context) *gorm.DB {
	q := s.db.Model(&models.TherapySession{})
	if c.GetString(auth.CtxRole) != models.RoleAdmin {
		q = q.Where("therapist_id = ?", auth.UserID(c))
	}
	return q
}

// loadSession fetches one session the caller may see, or writes a 404.
func (s *Server) loadSession(c *gin.Context, id string) (*models.TherapySession, bool) {
	var session models.TherapySession
	err := s.sessionScope(c).Where("id = ?", id).First(&session).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		s.fail(c, http.StatusNotFound, "not_found", "session not found")
		return nil, false
	}
	if err != nil {
		s.failInternal(c, err)
		return nil, false
	}
	return &session, true
}

// handleSessionUpload accepts a multipart audio upload, creates the session
// row and its processing job atomically, and returns immediately. Every
// rejection happens before any row or file exists.
func (s *Server) handleSessionUpload(c *gin.Context) {
	patientID := c.Query("patient_id")
	if patientID == "" {
		patientID = c.PostForm("patient_id")
	}
	if patientID == "" {
		s.fail(c, http.StatusBadRequest, "bad_request", "patient_id is required")
		return
	}

	var patient models.Patient
	q := s.db.Where("id = ?", patientID)
	if c.GetString(auth.CtxRole) != models.RoleAdmin {
		q = q.Where("therapist_id = ?", auth.UserID(c))
	}
	if err := q.First(&patient).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			s.fail(c, http.StatusNotFound, "not_found", "patient not found")
			return
		}
		s.failInternal(c, err)
		return
	}

	header, err := c.FormFile("audio")
	if err != nil {
		s.fail(c, http.StatusBadRequest, "bad_request", "multipart field \"audio\" is required")
		return
	}
	if header.Size > s.cfg.MaxUploadBytes() {
		s.fail(c, http.StatusRequestEntityTooLarge, "too_large", "audio file exceeds the upload size limit")
		return
	}
	if err := validate.SafeFilename(header.Filename); err != nil {
		s.fail(c, http.StatusUnprocessableEntity, "invalid_file", "filename is not acceptable")
		return
	}
	if !validate.AllowedExtension(header.Filename, s.cfg.Uploads.AllowedExtensions) {
		s.fail(c, http.StatusUnprocessableEntity, "invalid_file", "file extension is not an accepted audio format")
		return
	}

	src, err := header.Open()
	if err != nil {
		s.failInternal(c, err)
		return
	}
	defer src.Close()

	head := make([]byte, 12)
	n, err := io.ReadFull(src, head)
	if err != nil && err != io.ErrUnexpectedEOF {
		s.fail(c, http.StatusUnprocessableEntity, "invalid_file", "file is empty or unreadable")
		return
	}
	if _, err := validate.AudioHeader(head[:n]); err != nil {
		s.fail(c, http.StatusUnprocessableEntity, "invalid_file", "file content is not recognized audio")
		return
	}

	sessionID := uuid.NewString()
	stored := sessionID + strings.ToLower(filepath.Ext(header.Filename))
	if err := os.MkdirAll(s.cfg.Uploads.Dir, 0o755); err != nil {
		s.failInternal(c, err)
		return
	}
	dstPath := filepath.Join(s.cfg.Uploads.Dir, stored)
	dst, err := os.Create(dstPath)
	if err != nil {
		s.failInternal(c, err)
		return
	}
	if _, err := dst.Write(head[:n]); err == nil {
		_, err = io.Copy(dst, src)
	}
	if cerr := dst.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(dstPath)
		s.failInternal(c, err)
		return
	}

	session := models.TherapySession{
		ID:            sessionID,
		PatientID:     patient.ID,
		TherapistID:   patient.TherapistID,
		AudioFilename: stored,
		Status:        models.StatusUploading,
	}
	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&session).Error; err != nil {
			return err
		}
		return s.queue.Enqueue(tx, session.ID, models.JobFullPipeline)
	})
	if err != nil {
		os.Remove(dstPath)
		s.failInternal(c, err)
		return
	}

	reqLog(c).Info().Str("session", session.ID).Str("patient", patient.ID).Msg("audio uploaded")
	c.JSON(http.StatusCreated, gin.H{"id": session.ID, "status": session.Status})
}

func (s *Server) handleSessionList(c *gin.Context) {
	q := s.sessionScope(c)
	if patientID := c.Query("patient_id"); patientID != "" {
		q = q.Where("patient_id = ?", patientID)
	}
	if status := c.Query("status"); status != "" {
		q = q.Where("status = ?", status)
	}

	var sessions []models.TherapySession
	if err := q.Order("created_at DESC").Find(&sessions).Error; err != nil {
		s.failInternal(c, err)
		return
	}
	resp := make([]sessionResponse, 0, len(sessions))
	for i := range sessions {
		resp = append(resp, toSessionResponse(&sessions[i]))
	}
	c.JSON(http.StatusOK, gin.H{"sessions": resp})
}

func (s *Server) handleSessionGet(c *gin.Context) {
	session, ok := s.loadSession(c, c.Param("id"))
	if !ok {
		return
	}
	c.JSON(http.StatusOK, toSessionResponse(session))
}

// handleSessionDelete removes a session row and its audio file. Admin only.
func (s *Server) handleSessionDelete(c *gin.Context) {
	session, ok := s.loadSession(c, c.Param("id"))
	if !ok {
		return
	}
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("session_id = ?", session.ID).Delete(&models.ProcessingJob{}).Error; err != nil {
			return err
		}
		return tx.Delete(&models.TherapySession{}, "id = ?", session.ID).Error
	})
	if err != nil {
		s.failInternal(c, err)
		return
	}
	if session.AudioFilename != "" {
		if err := os.Remove(filepath.Join(s.cfg.Uploads.Dir, session.AudioFilename)); err != nil && !os.IsNotExist(err) {
			reqLog(c).Warn().Err(err).Str("session", session.ID).Msg("remove audio after delete")
		}
	}
	c.Status(http.StatusNoContent)
}

// handleSessionNotes returns the structured notes, only once the session
// has fully processed.
func (s *Server) handleSessionNotes(c *gin.Context) {
	session, ok := s.loadSession(c, c.Param("id"))
	if !ok {
		return
	}
	if session.Status != models.StatusProcessed || session.ExtractedNotes == "" {
		s.fail(c, http.StatusNotFound, "not_found", "notes are not available for this session")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"session_id": session.ID,
		"notes":      json.RawMessage(session.ExtractedNotes),
	})
}

// handleExtractNotes queues a re-run of note extraction against the stored
// transcript. Rejected when no transcript exists yet.
func (s *Server) handleExtractNotes(c *gin.Context) {
	session, ok := s.loadSession(c, c.Param("id"))
	if !ok {
		return
	}
	if session.TranscriptText == "" {
		s.fail(c, http.StatusConflict, "no_transcript", "session has no transcript to extract notes from")
		return
	}
	if err := s.queue.Enqueue(nil, session.ID, models.JobExtractOnly); err != nil {
		s.failInternal(c, err)
		return
	}
	reqLog(c).Info().Str("session", session.ID).Msg("extraction re-run queued")
	c.JSON(http.StatusAccepted, gin.H{"id": session.ID, "status": "queued"})
}
