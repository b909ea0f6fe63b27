package server

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/therapybridge/therapybridge/internal/models"
)

// handleAdminCleanup runs a cleanup sweep on demand. dry_run=true reports
// candidates without deleting.
func (s *Server) handleAdminCleanup(c *gin.Context) {
	dryRun, _ := strconv.ParseBool(c.DefaultQuery("dry_run", "false"))
	result, err := s.cleanup.Sweep(c.Request.Context(), dryRun)
	if err != nil {
		s.failInternal(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// handleAdminCleanupPreview is dry-run shorthand for operators.
func (s *Server) handleAdminCleanupPreview(c *gin.Context) {
	result, err := s.cleanup.Sweep(c.Request.Context(), true)
	if err != nil {
		s.failInternal(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// handleAdminJobs lists recent processing jobs, optionally filtered by
// state, newest first.
func (s *Server) handleAdminJobs(c *gin.Context) {
	q := s.db.Model(&models.ProcessingJob{})
	if state := c.Query("state"); state != "" {
		q = q.Where("state = ?", state)
	}
	limit := 100
	if v, err := strconv.Atoi(c.Query("limit")); err == nil && v > 0 && v <= 500 {
		limit = v
	}

	var jobs []models.ProcessingJob
	if err := q.Order("id DESC").Limit(limit).Find(&jobs).Error; err != nil {
		s.failInternal(c, err)
		return
	}
	var pending int64
	if err := s.db.Model(&models.ProcessingJob{}).Where("state = ?", models.JobPending).Count(&pending).Error; err != nil {
		s.failInternal(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"jobs": jobs, "pending": pending})
}
