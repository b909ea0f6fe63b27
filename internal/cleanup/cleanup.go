// Package cleanup reclaims audio files from the upload directory: orphans
// nothing references, and files kept by failed sessions past retention.
package cleanup

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/therapybridge/therapybridge/internal/metrics"
	"github.com/therapybridge/therapybridge/internal/models"
	"gorm.io/gorm"
)

// Result reports one sweep. Database rows are never touched; for failed
// sessions only the audio file is removed, preserving the audit trail.
type Result struct {
	DryRun       bool     `json:"dry_run"`
	DeletedFiles []string `json:"deleted_files"`
	SpaceFreedMB float64  `json:"space_freed_mb"`
	Errors       []string `json:"errors"`
}

// Service scans the upload directory against session references.
type Service struct {
	db              *gorm.DB
	dir             string
	orphanRetention time.Duration
	failedRetention time.Duration
	log             zerolog.Logger
}

// New builds a cleanup Service.
func New(db *gorm.DB, dir string, orphanRetention, failedRetention time.Duration, log zerolog.Logger) *Service {
	return &Service{
		db:              db,
		dir:             dir,
		orphanRetention: orphanRetention,
		failedRetention: failedRetention,
		log:             log.With().Str("component", "cleanup").Logger(),
	}
}

// Sweep runs both passes. With dryRun the candidates are reported but no
// file is removed. A failure on one file is recorded and the sweep
// continues.
func (s *Service) Sweep(ctx context.Context, dryRun bool) (*Result, error) {
	result := &Result{
		DryRun:       dryRun,
		DeletedFiles: []string{},
		Errors:       []string{},
	}

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("cleanup: read upload dir %s: %w", s.dir, err)
	}

	refs, err := s.loadReferences()
	if err != nil {
		return nil, err
	}

	now := time.Now()
	var freedBytes int64
	for _, entry := range entries {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if entry.IsDir() {
			continue
		}
		name := entry.Name()

		session, referenced := refs[name]
		var candidate bool
		switch {
		case !referenced:
			// Orphan pass: young orphans may belong to an upload still in
			// flight, so the retention window leaves them alone.
			info, err := entry.Info()
			if err != nil {
				result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", name, err))
				continue
			}
			candidate = now.Sub(info.ModTime()) >= s.orphanRetention
		case session.Status == models.StatusFailed:
			// Failed-session pass, keyed on session age.
			candidate = now.Sub(session.CreatedAt) >= s.failedRetention
		default:
			// Referenced by a live or processed session: never a candidate,
			// regardless of age.
			candidate = false
		}
		if !candidate {
			continue
		}

		path := filepath.Join(s.dir, name)
		info, err := os.Stat(path)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", name, err))
			continue
		}
		if !dryRun {
			if err := os.Remove(path); err != nil {
				result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", name, err))
				continue
			}
			metrics.CleanupFilesDeleted.Inc()
		}
		result.DeletedFiles = append(result.DeletedFiles, name)
		freedBytes += info.Size()
	}

	result.SpaceFreedMB = float64(freedBytes) / (1024 * 1024)
	s.log.Info().
		Bool("dry_run", dryRun).
		Int("deleted", len(result.DeletedFiles)).
		Int("errors", len(result.Errors)).
		Float64("space_freed_mb", result.SpaceFreedMB).
		Msg("cleanup sweep complete")
	return result, nil
}

// loadReferences maps every referenced audio filename to its session.
func (s *Service) loadReferences() (map[string]*models.TherapySession, error) {
	var sessions []models.TherapySession
	if err := s.db.Where("audio_filename != ''").Find(&sessions).Error; err != nil {
		return nil, fmt.Errorf("cleanup: load session references: %w", err)
	}
	refs := make(map[string]*models.TherapySession, len(sessions))
	for i := range sessions {
		refs[sessions[i].AudioFilename] = &sessions[i]
	}
	return refs, nil
}
