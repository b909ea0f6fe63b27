package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/therapybridge/therapybridge/internal/auth"
	"github.com/therapybridge/therapybridge/internal/models"
)

type templateRequest struct {
	Name        string   `json:"name" binding:"required"`
	Description string   `json:"description"`
	Sections    []string `json:"sections" binding:"required,min=1"`
	IsDefault   bool     `json:"is_default"`
}

// templateResponse surfaces the section list as JSON rather than the raw
// stored string.
type templateResponse struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Sections    []string `json:"sections"`
	IsDefault   bool     `json:"is_default"`
}

func toTemplateResponse(c *gin.Context, m *models.NoteTemplate) templateResponse {
	var sections []string
	if err := json.Unmarshal([]byte(m.Sections), &sections); err != nil {
		reqLog(c).Warn().Err(err).Str("template", m.ID).Msg("stored sections unparseable")
	}
	return templateResponse{
		ID:          m.ID,
		Name:        m.Name,
		Description: m.Description,
		Sections:    sections,
		IsDefault:   m.IsDefault,
	}
}

func (s *Server) loadTemplate(c *gin.Context, id string) (*models.NoteTemplate, bool) {
	var tpl models.NoteTemplate
	q := s.db.Where("id = ?", id)
	if c.GetString(auth.CtxRole) != models.RoleAdmin {
		q = q.Where("therapist_id = ?", auth.UserID(c))
	}
	err := q.First(&tpl).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		s.fail(c, http.StatusNotFound, "not_found", "template not found")
		return nil, false
	}
	if err != nil {
		s.failInternal(c, err)
		return nil, false
	}
	return &tpl, true
}

func (s *Server) handleTemplateList(c *gin.Context) {
	var templates []models.NoteTemplate
	q := s.db.Order("name ASC")
	if c.GetString(auth.CtxRole) != models.RoleAdmin {
		q = q.Where("therapist_id = ?", auth.UserID(c))
	}
	if err := q.Find(&templates).Error; err != nil {
		s.failInternal(c, err)
		return
	}
	resp := make([]templateResponse, 0, len(templates))
	for i := range templates {
		resp = append(resp, toTemplateResponse(c, &templates[i]))
	}
	c.JSON(http.StatusOK, gin.H{"templates": resp})
}

// applyTemplate copies the request onto the model, clearing any previous
// default when this one claims it.
func (s *Server) applyTemplate(c *gin.Context, tpl *models.NoteTemplate, req *templateRequest) error {
	sections, err := json.Marshal(req.Sections)
	if err != nil {
		return err
	}
	tpl.Name = req.Name
	tpl.Description = req.Description
	tpl.Sections = string(sections)
	tpl.IsDefault = req.IsDefault
	if !req.IsDefault {
		return nil
	}
	return s.db.Model(&models.NoteTemplate{}).
		Where("therapist_id = ? AND id != ?", tpl.TherapistID, tpl.ID).
		Update("is_default", false).Error
}

func (s *Server) handleTemplateCreate(c *gin.Context) {
	var req templateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.fail(c, http.StatusBadRequest, "bad_request", "name and at least one section are required")
		return
	}
	tpl := models.NoteTemplate{
		ID:          uuid.NewString(),
		TherapistID: auth.UserID(c),
	}
	if err := s.applyTemplate(c, &tpl, &req); err != nil {
		s.failInternal(c, err)
		return
	}
	if err := s.db.Create(&tpl).Error; err != nil {
		s.failInternal(c, err)
		return
	}
	c.JSON(http.StatusCreated, toTemplateResponse(c, &tpl))
}

func (s *Server) handleTemplateUpdate(c *gin.Context) {
	tpl, ok := s.loadTemplate(c, c.Param("id"))
	if !ok {
		return
	}
	var req templateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.fail(c, http.StatusBadRequest, "bad_request", "name and at least one section are required")
		return
	}
	if err := s.applyTemplate(c, tpl, &req); err != nil {
		s.failInternal(c, err)
		return
	}
	if err := s.db.Save(tpl).Error; err != nil {
		s.failInternal(c, err)
		return
	}
	c.JSON(http.StatusOK, toTemplateResponse(c, tpl))
}

func (s *Server) handleTemplateDelete(c *gin.Context) {
	tpl, ok := s.loadTemplate(c, c.Param("id"))
	if !ok {
		return
	}
	if err := s.db.Delete(&models.NoteTemplate{}, "id = ?", tpl.ID).Error; err != nil {
		s.failInternal(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
