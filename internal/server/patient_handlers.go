package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/therapybridge/therapybridge/internal/auth"
	"github.com/therapybridge/therapybridge/internal/models"
	"github.com/therapybridge/therapybridge/internal/validate"
)

type patientRequest struct {
	FullName         string `json:"full_name" binding:"required"`
	Email            string `json:"email"`
	Phone            string `json:"phone"`
	DateOfBirth      string `json:"date_of_birth"` // YYYY-MM-DD
	EmergencyContact string `json:"emergency_contact"`
	Notes            string `json:"notes"`
}

// validateAndApply checks the optional fields and copies the request onto
// the model. Returns a user-facing message on rejection.
func (r *patientRequest) validateAndApply(p *models.Patient) string {
	if r.Email != "" && !validate.Email(r.Email) {
		return "email address is not valid"
	}
	if r.Phone != "" && !validate.Phone(r.Phone) {
		return "phone number is not valid"
	}
	var dob *time.Time
	if r.DateOfBirth != "" {
		t, err := time.Parse("2006-01-02", r.DateOfBirth)
		if err != nil {
			return "date_of_birth must be YYYY-MM-DD"
		}
		dob = &t
	}
	p.FullName = r.FullName
	p.Email = r.Email
	p.Phone = r.Phone
	p.DateOfBirth = dob
	p.EmergencyContact = r.EmergencyContact
	p.Notes = r.Notes
	return ""
}

// patientScope narrows patient queries to the caller's own patients unless
// the caller is an admin.
func (s *Server) patientScope(c *gin.Context) *gorm.DB {
	q := s.db.Model(&models.Patient{})
	if c.GetString(auth.CtxRole) != models.RoleAdmin {
		q = q.Where("therapist_id = ?", auth.UserID(c))
	}
	return q
}

// loadPatient fetches one patient the caller may see, or writes a 404.
func (s *Server) loadPatient(c *gin.Context, id string) (*models.Patient, bool) {
	var patient models.Patient
	err := s.patientScope(c).Where("id = ?", id).First(&patient).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		s.fail(c, http.StatusNotFound, "not_found", "patient not found")
		return nil, false
	}
	if err != nil {
		s.failInternal(c, err)
		return nil, false
	}
	return &patient, true
}

func (s *Server) handlePatientList(c *gin.Context) {
	var patients []models.Patient
	if err := s.patientScope(c).Order("full_name ASC").Find(&patients).Error; err != nil {
		s.failInternal(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"patients": patients})
}

func (s *Server) handlePatientCreate(c *gin.Context) {
	var req patientRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.fail(c, http.StatusBadRequest, "bad_request", "full_name is required")
		return
	}
	patient := models.Patient{
		ID:          uuid.NewString(),
		TherapistID: auth.UserID(c),
	}
	if msg := req.validateAndApply(&patient); msg != "" {
		s.fail(c, http.StatusUnprocessableEntity, "invalid_patient", msg)
		return
	}
	if err := s.db.Create(&patient).Error; err != nil {
		s.failInternal(c, err)
		return
	}
	c.JSON(http.StatusCreated, patient)
}

func (s *Server) handlePatientGet(c *gin.Context) {
	patient, ok := s.loadPatient(c, c.Param("id"))
	if !ok {
		return
	}
	c.JSON(http.StatusOK, patient)
}

func (s *Server) handlePatientUpdate(c *gin.Context) {
	patient, ok := s.loadPatient(c, c.Param("id"))
	if !ok {
		return
	}
	var req patientRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.fail(c, http.StatusBadRequest, "bad_request", "full_name is required")
		return
	}
	if msg := req.validateAndApply(patient); msg != "" {
		s.fail(c, http.StatusUnprocessableEntity, "invalid_patient", msg)
		return
	}
	if err := s.db.Save(patient).Error; err != nil {
		s.failInternal(c, err)
		return
	}
	c.JSON(http.StatusOK, patient)
}

// handlePatientDelete removes a patient, refusing while any session still
// references them so the clinical record stays intact.
func (s *Server) handlePatientDelete(c *gin.Context) {
	patient, ok := s.loadPatient(c, c.Param("id"))
	if !ok {
		return
	}
	var sessions int64
	if err := s.db.Model(&models.TherapySession{}).Where("patient_id = ?", patient.ID).Count(&sessions).Error; err != nil {
		s.failInternal(c, err)
		return
	}
	if sessions > 0 {
		s.fail(c, http.StatusConflict, "patient_in_use", "patient has recorded sessions and cannot be deleted")
		return
	}
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("goal_id IN (?)",
			tx.Model(&models.TreatmentGoal{}).Select("id").Where("patient_id = ?", patient.ID),
		).Delete(&models.GoalMilestone{}).Error; err != nil {
			return err
		}
		if err := tx.Where("patient_id = ?", patient.ID).Delete(&models.TreatmentGoal{}).Error; err != nil {
			return err
		}
		return tx.Delete(&models.Patient{}, "id = ?", patient.ID).Error
	})
	if err != nil {
		s.failInternal(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
