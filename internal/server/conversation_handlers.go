package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/therapybridge/therapybridge/internal/auth"
	"github.com/therapybridge/therapybridge/internal/models"
)

type conversationRequest struct {
	Title     string  `json:"title"`
	PatientID *string `json:"patient_id"`
}

type messageRequest struct {
	Role    string `json:"role" binding:"required"`
	Content string `json:"content" binding:"required"`
}

func (s *Server) loadConversation(c *gin.Context, id string) (*models.ChatConversation, bool) {
	var conv models.ChatConversation
	q := s.db.Where("id = ?", id)
	if c.GetString(auth.CtxRole) != models.RoleAdmin {
		q = q.Where("therapist_id = ?", auth.UserID(c))
	}
	err := q.First(&conv).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		s.fail(c, http.StatusNotFound, "not_found", "conversation not found")
		return nil, false
	}
	if err != nil {
		s.failInternal(c, err)
		return nil, false
	}
	return &conv, true
}

func (s *Server) handleConversationList(c *gin.Context) {
	var convs []models.ChatConversation
	q := s.db.Order("updated_at DESC")
	if c.GetString(auth.CtxRole) != models.RoleAdmin {
		q = q.Where("therapist_id = ?", auth.UserID(c))
	}
	if patientID := c.Query("patient_id"); patientID != "" {
		q = q.Where("patient_id = ?", patientID)
	}
	if err := q.Find(&convs).Error; err != nil {
		s.failInternal(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"conversations": convs})
}

func (s *Server) handleConversationCreate(c *gin.Context) {
	var req conversationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.fail(c, http.StatusBadRequest, "bad_request", "invalid request body")
		return
	}
	if req.PatientID != nil {
		if _, ok := s.loadPatient(c, *req.PatientID); !ok {
			return
		}
	}
	conv := models.ChatConversation{
		ID:          uuid.NewString(),
		TherapistID: auth.UserID(c),
		PatientID:   req.PatientID,
		Title:       req.Title,
	}
	if err := s.db.Create(&conv).Error; err != nil {
		s.failInternal(c, err)
		return
	}
	c.JSON(http.StatusCreated, conv)
}

func (s *Server) handleConversationGet(c *gin.Context) {
	conv, ok := s.loadConversation(c, c.Param("id"))
	if !ok {
		return
	}
	var messages []models.ChatMessage
	err := s.db.Where("conversation_id = ?", conv.ID).
		Order("id ASC").Find(&messages).Error
	if err != nil {
		s.failInternal(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"conversation": conv, "messages": messages})
}

func (s *Server) handleMessageCreate(c *gin.Context) {
	conv, ok := s.loadConversation(c, c.Param("id"))
	if !ok {
		return
	}
	var req messageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.fail(c, http.StatusBadRequest, "bad_request", "role and content are required")
		return
	}
	if req.Role != "user" && req.Role != "assistant" {
		s.fail(c, http.StatusUnprocessableEntity, "invalid_message", "role must be user or assistant")
		return
	}
	msg := models.ChatMessage{
		ConversationID: conv.ID,
		Role:           req.Role,
		Content:        req.Content,
	}
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&msg).Error; err != nil {
			return err
		}
		// Bump the conversation so list ordering tracks activity.
		return tx.Model(&models.ChatConversation{}).Where("id = ?", conv.ID).
			Update("updated_at", gorm.Expr("CURRENT_TIMESTAMP")).Error
	})
	if err != nil {
		s.failInternal(c, err)
		return
	}
	c.JSON(http.StatusCreated, msg)
}

func (s *Server) handleConversationDelete(c *gin.Context) {
	conv, ok := s.loadConversation(c, c.Param("id"))
	if !ok {
		return
	}
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("conversation_id = ?", conv.ID).Delete(&models.ChatMessage{}).Error; err != nil {
			return err
		}
		return tx.Delete(&models.ChatConversation{}, "id = ?", conv.ID).Error
	})
	if err != nil {
		s.failInternal(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
