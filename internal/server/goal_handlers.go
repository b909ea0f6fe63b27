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
)

type goalRequest struct {
	Title       string `json:"title" binding:"required"`
	Description string `json:"description"`
	Status      string `json:"status"`
	TargetDate  string `json:"target_date"` // YYYY-MM-DD
}

// goalScope narrows goal queries to the caller's own goals unless the
// caller is an admin.
func (s *Server) goalScope(c *gin.Context) *gorm.DB {
	q := s.db.Model(&models.TreatmentGoal{})
	if c.GetString(auth.CtxRole) != models.RoleAdmin {
		q = q.Where("therapist_id = ?", auth.UserID(c))
	}
	return q
}

func (s *Server) loadGoal(c *gin.Context, id string) (*models.TreatmentGoal, bool) {
	var goal models.TreatmentGoal
	err := s.goalScope(c).Where("id = ?", id).First(&goal).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		s.fail(c, http.StatusNotFound, "not_found", "goal not found")
		return nil, false
	}
	if err != nil {
		s.failInternal(c, err)
		return nil, false
	}
	return &goal, true
}

func (s *Server) handleGoalList(c *gin.Context) {
	patient, ok := s.loadPatient(c, c.Param("id"))
	if !ok {
		return
	}
	var goals []models.TreatmentGoal
	err := s.db.Preload("Milestones").
		Where("patient_id = ?", patient.ID).
		Order("created_at ASC").
		Find(&goals).Error
	if err != nil {
		s.failInternal(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"goals": goals})
}

func (s *Server) handleGoalCreate(c *gin.Context) {
	patient, ok := s.loadPatient(c, c.Param("id"))
	if !ok {
		return
	}
	var req goalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.fail(c, http.StatusBadRequest, "bad_request", "title is required")
		return
	}
	goal := models.TreatmentGoal{
		ID:          uuid.NewString(),
		PatientID:   patient.ID,
		TherapistID: patient.TherapistID,
		Title:       req.Title,
		Description: req.Description,
		Status:      models.GoalActive,
	}
	if msg := applyGoalFields(&goal, &req); msg != "" {
		s.fail(c, http.StatusUnprocessableEntity, "invalid_goal", msg)
		return
	}
	if err := s.db.Create(&goal).Error; err != nil {
		s.failInternal(c, err)
		return
	}
	c.JSON(http.StatusCreated, goal)
}

// applyGoalFields validates and applies the optional status and target
// date. A goal moving to completed stamps CompletedAt once.
func applyGoalFields(goal *models.TreatmentGoal, req *goalRequest) string {
	if req.Status != "" {
		switch req.Status {
		case models.GoalActive, models.GoalCompleted, models.GoalAbandoned:
		default:
			return "status must be active, completed or abandoned"
		}
		if req.Status == models.GoalCompleted && goal.Status != models.GoalCompleted {
			now := time.Now()
			goal.CompletedAt = &now
		}
		goal.Status = req.Status
	}
	if req.TargetDate != "" {
		t, err := time.Parse("2006-01-02", req.TargetDate)
		if err != nil {
			return "target_date must be YYYY-MM-DD"
		}
		goal.TargetDate = &t
	}
	return ""
}

func (s *Server) handleGoalGet(c *gin.Context) {
	goal, ok := s.loadGoal(c, c.Param("id"))
	if !ok {
		return
	}
	if err := s.db.Preload("Milestones").First(goal, "id = ?", goal.ID).Error; err != nil {
		s.failInternal(c, err)
		return
	}
	c.JSON(http.StatusOK, goal)
}

func (s *Server) handleGoalUpdate(c *gin.Context) {
	goal, ok := s.loadGoal(c, c.Param("id"))
	if !ok {
		return
	}
	var req goalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.fail(c, http.StatusBadRequest, "bad_request", "title is required")
		return
	}
	goal.Title = req.Title
	goal.Description = req.Description
	if msg := applyGoalFields(goal, &req); msg != "" {
		s.fail(c, http.StatusUnprocessableEntity, "invalid_goal", msg)
		return
	}
	if err := s.db.Save(goal).Error; err != nil {
		s.failInternal(c, err)
		return
	}
	c.JSON(http.StatusOK, goal)
}

func (s *Server) handleGoalDelete(c *gin.Context) {
	goal, ok := s.loadGoal(c, c.Param("id"))
	if !ok {
		return
	}
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("goal_id = ?", goal.ID).Delete(&models.GoalMilestone{}).Error; err != nil {
			return err
		}
		return tx.Delete(&models.TreatmentGoal{}, "id = ?", goal.ID).Error
	})
	if err != nil {
		s.failInternal(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type milestoneRequest struct {
	Title string `json:"title" binding:"required"`
}

func (s *Server) handleMilestoneCreate(c *gin.Context) {
	goal, ok := s.loadGoal(c, c.Param("id"))
	if !ok {
		return
	}
	var req milestoneRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.fail(c, http.StatusBadRequest, "bad_request", "title is required")
		return
	}
	milestone := models.GoalMilestone{
		GoalID: goal.ID,
		Title:  req.Title,
	}
	if err := s.db.Create(&milestone).Error; err != nil {
		s.failInternal(c, err)
		return
	}
	c.JSON(http.StatusCreated, milestone)
}

// handleMilestoneToggle flips a milestone's done flag, stamping or clearing
// DoneAt to match.
func (s *Server) handleMilestoneToggle(c *gin.Context) {
	var milestone models.GoalMilestone
	err := s.db.Joins("Goal").
		Where("goal_milestones.id = ?", c.Param("id")).
		First(&milestone).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		s.fail(c, http.StatusNotFound, "not_found", "milestone not found")
		return
	}
	if err != nil {
		s.failInternal(c, err)
		return
	}
	if c.GetString(auth.CtxRole) != models.RoleAdmin && milestone.Goal.TherapistID != auth.UserID(c) {
		s.fail(c, http.StatusNotFound, "not_found", "milestone not found")
		return
	}

	milestone.Done = !milestone.Done
	if milestone.Done {
		now := time.Now()
		milestone.DoneAt = &now
	} else {
		milestone.DoneAt = nil
	}
	err = s.db.Model(&models.GoalMilestone{}).Where("id = ?", milestone.ID).
		Updates(map[string]interface{}{"done": milestone.Done, "done_at": milestone.DoneAt}).Error
	if err != nil {
		s.failInternal(c, err)
		return
	}
	c.JSON(http.StatusOK, milestone)
}
