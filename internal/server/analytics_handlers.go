package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/therapybridge/therapybridge/internal/clinical"
	"github.com/therapybridge/therapybridge/internal/models"
)

// weekBuckets is how many trailing weeks the overview reports.
const weekBuckets = 8

type weekCount struct {
	WeekStart string `json:"week_start"` // YYYY-MM-DD, Monday
	Count     int    `json:"count"`
}

type moodPoint struct {
	SessionID  string `json:"session_id"`
	Date       string `json:"date"`
	Mood       string `json:"mood"`
	Trajectory string `json:"trajectory"`
}

type goalProgress struct {
	GoalID         string `json:"goal_id"`
	Title          string `json:"title"`
	Status         string `json:"status"`
	MilestonesDone int    `json:"milestones_done"`
	MilestonesAll  int    `json:"milestones_total"`
}

// handleAnalyticsOverview aggregates the caller's practice: sessions by
// status, weekly volume, and mood/risk distributions over processed
// sessions. Week bucketing and note parsing happen in Go so the numbers
// come out identical on sqlite and mysql.
func (s *Server) handleAnalyticsOverview(c *gin.Context) {
	var statusRows []struct {
		Status string
		N      int
	}
	err := s.sessionScope(c).Select("status, COUNT(*) as n").Group("status").Scan(&statusRows).Error
	if err != nil {
		s.failInternal(c, err)
		return
	}
	byStatus := map[string]int{}
	for _, r := range statusRows {
		byStatus[r.Status] = r.N
	}

	var sessions []models.TherapySession
	if err := s.sessionScope(c).Find(&sessions).Error; err != nil {
		s.failInternal(c, err)
		return
	}

	weeks := make([]weekCount, weekBuckets)
	oldest := weekStart(time.Now()).AddDate(0, 0, -7*(weekBuckets-1))
	for i := range weeks {
		weeks[i].WeekStart = oldest.AddDate(0, 0, 7*i).Format("2006-01-02")
	}

	moodDist := map[string]int{}
	riskBySeverity := map[string]int{}
	for i := range sessions {
		sess := &sessions[i]
		if idx := int(weekStart(sess.CreatedAt).Sub(oldest).Hours() / (24 * 7)); idx >= 0 && idx < weekBuckets {
			weeks[idx].Count++
		}
		if sess.Status != models.StatusProcessed || sess.ExtractedNotes == "" {
			continue
		}
		var notes clinical.ExtractedNotes
		if err := json.Unmarshal([]byte(sess.ExtractedNotes), &notes); err != nil {
			reqLog(c).Warn().Err(err).Str("session", sess.ID).Msg("stored notes unparseable")
			continue
		}
		moodDist[notes.SessionMood]++
		for _, f := range notes.RiskFlags {
			riskBySeverity[f.Severity]++
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"sessions_by_status": byStatus,
		"sessions_per_week":  weeks,
		"mood_distribution":  moodDist,
		"risk_flags":         riskBySeverity,
	})
}

// handleAnalyticsPatient reports one patient's mood trajectory across
// processed sessions and their goal progress.
func (s *Server) handleAnalyticsPatient(c *gin.Context) {
	patient, ok := s.loadPatient(c, c.Param("id"))
	if !ok {
		return
	}

	var sessions []models.TherapySession
	err := s.db.Where("patient_id = ? AND status = ?", patient.ID, models.StatusProcessed).
		Order("created_at ASC").Find(&sessions).Error
	if err != nil {
		s.failInternal(c, err)
		return
	}

	moods := make([]moodPoint, 0, len(sessions))
	for i := range sessions {
		sess := &sessions[i]
		if sess.ExtractedNotes == "" {
			continue
		}
		var notes clinical.ExtractedNotes
		if err := json.Unmarshal([]byte(sess.ExtractedNotes), &notes); err != nil {
			continue
		}
		moods = append(moods, moodPoint{
			SessionID:  sess.ID,
			Date:       sess.CreatedAt.Format("2006-01-02"),
			Mood:       notes.SessionMood,
			Trajectory: notes.MoodTrajectory,
		})
	}

	var goals []models.TreatmentGoal
	err = s.db.Preload("Milestones").Where("patient_id = ?", patient.ID).
		Order("created_at ASC").Find(&goals).Error
	if err != nil {
		s.failInternal(c, err)
		return
	}
	progress := make([]goalProgress, 0, len(goals))
	for i := range goals {
		g := &goals[i]
		done := 0
		for _, m := range g.Milestones {
			if m.Done {
				done++
			}
		}
		progress = append(progress, goalProgress{
			GoalID:         g.ID,
			Title:          g.Title,
			Status:         g.Status,
			MilestonesDone: done,
			MilestonesAll:  len(g.Milestones),
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"patient_id":      patient.ID,
		"mood_trajectory": moods,
		"goal_progress":   progress,
	})
}

// weekStart returns the Monday 00:00 UTC of t's week.
func weekStart(t time.Time) time.Time {
	t = t.UTC()
	offset := (int(t.Weekday()) + 6) % 7
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	return day.AddDate(0, 0, -offset)
}
