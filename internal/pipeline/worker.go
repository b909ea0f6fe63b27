package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/therapybridge/therapybridge/internal/clinical"
	"github.com/therapybridge/therapybridge/internal/metrics"
	"github.com/therapybridge/therapybridge/internal/models"
	"github.com/therapybridge/therapybridge/internal/transcribe"
	"gorm.io/gorm"
)

// Notifier receives failure alerts. Implementations must be safe to call
// with a nil receiver check already done by the worker.
type Notifier interface {
	SessionFailed(session *models.TherapySession)
}

// transientBackoff is the delay schedule between retries of transient
// upstream failures, indexed by completed attempts.
var transientBackoff = []time.Duration{65 * time.Second, 100 * time.Second, 135 * time.Second}

// Options configures a Worker.
type Options struct {
	DB                   *gorm.DB
	Transcriber          transcribe.Transcriber
	Extractor            clinical.Extractor
	Notifier             Notifier
	Log                  zerolog.Logger
	WorkerID             string
	UploadDir            string
	PollInterval         time.Duration
	RequestTimeout       time.Duration
	StaleClaimWindow     time.Duration
	MaxTransientAttempts int
}

// Worker claims processing jobs and drives sessions through the status
// machine. Multiple workers may run against the same database; the claim
// protocol keeps each job on exactly one of them.
type Worker struct {
	db    *gorm.DB
	queue *Queue
	opts  Options
	log   zerolog.Logger
}

// NewWorker validates options and builds a Worker.
func NewWorker(opts Options) (*Worker, error) {
	if opts.DB == nil {
		return nil, fmt.Errorf("pipeline: db is required")
	}
	if opts.Transcriber == nil {
		return nil, fmt.Errorf("pipeline: transcriber is required")
	}
	if opts.Extractor == nil {
		return nil, fmt.Errorf("pipeline: extractor is required")
	}
	if opts.WorkerID == "" {
		host, _ := os.Hostname()
		opts.WorkerID = fmt.Sprintf("%s-%d", host, os.Getpid())
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 5 * time.Second
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 2 * time.Minute
	}
	if opts.StaleClaimWindow <= 0 {
		opts.StaleClaimWindow = 15 * time.Minute
	}
	if opts.MaxTransientAttempts <= 0 {
		opts.MaxTransientAttempts = 3
	}
	return &Worker{
		db:    opts.DB,
		queue: NewQueue(opts.DB),
		opts:  opts,
		log:   opts.Log.With().Str("component", "pipeline").Str("worker", opts.WorkerID).Logger(),
	}, nil
}

// Queue returns the worker's job queue, shared with the upload handler.
func (w *Worker) Queue() *Queue {
	return w.queue
}

// Run polls for work until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	w.log.Info().Dur("poll_interval", w.opts.PollInterval).Msg("pipeline worker starting")
	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("pipeline worker stopping")
			return nil
		default:
		}

		if n, err := w.queue.ReclaimStale(w.opts.StaleClaimWindow); err != nil {
			w.log.Error().Err(err).Msg("reclaim stale jobs")
		} else if n > 0 {
			w.log.Warn().Int64("jobs", n).Msg("reclaimed stale job claims")
		}

		if depth, err := w.queue.PendingCount(); err == nil {
			metrics.QueueDepth.Set(float64(depth))
		}

		// Drain due jobs before sleeping.
		for {
			job, err := w.queue.ClaimNext(w.opts.WorkerID)
			if err != nil {
				w.log.Error().Err(err).Msg("claim job")
				break
			}
			if job == nil {
				break
			}
			w.processJob(ctx, job)
			if ctx.Err() != nil {
				return nil
			}
		}

		sleepWithContext(ctx, w.opts.PollInterval)
	}
}

// processJob runs one claimed job to a terminal or rescheduled state.
func (w *Worker) processJob(ctx context.Context, job *models.ProcessingJob) {
	log := w.log.With().Uint("job", job.ID).Str("session", job.SessionID).Str("kind", job.Kind).Logger()

	var session models.TherapySession
	if err := w.db.First(&session, "id = ?", job.SessionID).Error; err != nil {
		log.Error().Err(err).Msg("load session")
		if err := w.queue.MarkFailed(job, "session row missing"); err != nil {
			log.Error().Err(err).Msg("mark job failed")
		}
		return
	}

	var stepErr *StepError
	switch job.Kind {
	case models.JobExtractOnly:
		stepErr = w.runExtractOnly(ctx, &session)
	default:
		stepErr = w.runFull(ctx, &session)
	}

	if stepErr == nil {
		if err := w.queue.MarkDone(job); err != nil {
			log.Error().Err(err).Msg("mark job done")
		}
		return
	}

	// A shutdown mid-call is not a session failure: the persisted status is
	// exactly what a resumed job needs, so put the job back in the queue and
	// leave the session alone.
	if ctx.Err() != nil || errors.Is(stepErr.Err, context.Canceled) {
		log.Info().Str("step", stepErr.Step).Msg("job interrupted by shutdown, requeued")
		if err := w.queue.Reschedule(job, 0, stepErr.Error()); err != nil {
			log.Error().Err(err).Msg("requeue interrupted job")
		}
		return
	}

	// Raw error text is logged, never persisted on the session row.
	log.Error().Err(stepErr.Err).
		Str("step", stepErr.Step).
		Str("category", stepErr.Category).
		Int("attempt", job.Attempts).
		Msg("pipeline step failed")

	if stepErr.Category == models.ErrCategoryTransient && job.Attempts < w.opts.MaxTransientAttempts {
		delay := transientBackoff[min(job.Attempts, len(transientBackoff))-1]
		metrics.JobRetries.Inc()
		if err := w.queue.Reschedule(job, delay, stepErr.Error()); err != nil {
			log.Error().Err(err).Msg("reschedule job")
		}
		return
	}

	w.failSession(&session, stepErr)
	if err := w.queue.MarkFailed(job, stepErr.Error()); err != nil {
		log.Error().Err(err).Msg("mark job failed")
	}
}

// runFull drives a session from wherever it stands to processed. Steps are
// idempotent so a reclaimed job resumes instead of redoing finished work.
func (w *Worker) runFull(ctx context.Context, session *models.TherapySession) *StepError {
	if session.Status == models.StatusFailed {
		return &StepError{Step: "resume", Category: models.ErrCategoryValidation,
			Err: fmt.Errorf("session %s already failed", session.ID)}
	}

	if session.Status == models.StatusUploading || session.Status == models.StatusTranscribing {
		if err := w.stepTranscribe(ctx, session); err != nil {
			return err
		}
	}
	if session.Status == models.StatusTranscribed || session.Status == models.StatusExtractingNotes {
		if err := w.stepExtract(ctx, session); err != nil {
			return err
		}
	}
	return nil
}

// runExtractOnly re-runs the extraction step against an existing
// transcript. This is the manual recovery path, so it may pull a session
// out of the failed or processed terminal states.
func (w *Worker) runExtractOnly(ctx context.Context, session *models.TherapySession) *StepError {
	if session.TranscriptText == "" {
		return &StepError{Step: "extract", Category: models.ErrCategoryValidation,
			Err: fmt.Errorf("session %s has no transcript", session.ID)}
	}

	if session.Status != models.StatusTranscribed {
		// Manual override: reset to the pre-extraction state.
		err := w.db.Model(&models.TherapySession{}).Where("id = ?", session.ID).
			Updates(map[string]interface{}{
				"status":         models.StatusTranscribed,
				"error_category": "",
				"error_message":  "",
			}).Error
		if err != nil {
			return &StepError{Step: "persist", Category: models.ErrCategoryPersistence, Err: err}
		}
		session.Status = models.StatusTranscribed
		session.ErrorCategory = ""
		session.ErrorMessage = ""
	}
	return w.stepExtract(ctx, session)
}

// stepTranscribe runs the transcription call and persists its results
// together with the transcribed status.
func (w *Worker) stepTranscribe(ctx context.Context, session *models.TherapySession) *StepError {
	if session.Status == models.StatusUploading {
		if err := advance(w.db, session, models.StatusTranscribing, nil); err != nil {
			return &StepError{Step: "transcribe", Category: models.ErrCategoryPersistence, Err: err}
		}
	}

	start := time.Now()
	callCtx, cancel := context.WithTimeout(ctx, w.opts.RequestTimeout)
	defer cancel()

	result, err := w.opts.Transcriber.Transcribe(callCtx, w.audioPath(session))
	metrics.StepDuration.WithLabelValues("transcribe").Observe(time.Since(start).Seconds())
	if err != nil {
		return stepFail("transcribe", err)
	}

	segments, err := marshalJSON(result.Segments)
	if err != nil {
		return &StepError{Step: "transcribe", Category: models.ErrCategoryPersistence, Err: err}
	}
	updates := map[string]interface{}{
		"transcript_text":     result.Text,
		"transcript_segments": segments,
		"duration_seconds":    result.DurationSeconds,
	}
	if err := advance(w.db, session, models.StatusTranscribed, updates); err != nil {
		return &StepError{Step: "transcribe", Category: models.ErrCategoryPersistence, Err: err}
	}
	session.TranscriptText = result.Text
	session.TranscriptSegments = segments
	session.DurationSeconds = result.DurationSeconds
	return nil
}

// stepExtract runs note extraction and persists the structured result with
// the processed status, then removes the audio file.
func (w *Worker) stepExtract(ctx context.Context, session *models.TherapySession) *StepError {
	if session.Status == models.StatusTranscribed {
		if err := advance(w.db, session, models.StatusExtractingNotes, nil); err != nil {
			return &StepError{Step: "extract", Category: models.ErrCategoryPersistence, Err: err}
		}
	}

	var segments []transcribe.Segment
	_ = unmarshalJSON(session.TranscriptSegments, &segments)

	start := time.Now()
	callCtx, cancel := context.WithTimeout(ctx, w.opts.RequestTimeout)
	defer cancel()

	notes, err := w.opts.Extractor.Extract(callCtx, session.TranscriptText, segments)
	metrics.StepDuration.WithLabelValues("extract").Observe(time.Since(start).Seconds())
	if err != nil {
		return stepFail("extract", err)
	}

	encoded, err := marshalJSON(notes)
	if err != nil {
		return &StepError{Step: "extract", Category: models.ErrCategoryPersistence, Err: err}
	}
	now := time.Now()
	updates := map[string]interface{}{
		"extracted_notes": encoded,
		"processed_at":    now,
	}
	if err := advance(w.db, session, models.StatusProcessed, updates); err != nil {
		return &StepError{Step: "persist", Category: models.ErrCategoryPersistence, Err: err}
	}
	metrics.SessionsProcessed.Inc()

	// Cleanup-on-success. The database row keeps the filename for audit.
	if session.AudioFilename != "" {
		if err := os.Remove(w.audioPath(session)); err != nil && !os.IsNotExist(err) {
			w.log.Warn().Err(err).Str("session", session.ID).Msg("remove processed audio")
		}
	}
	return nil
}

// failSession moves the session to the absorbing failed state with its
// category and a sanitized message.
func (w *Worker) failSession(session *models.TherapySession, stepErr *StepError) {
	if session.IsTerminal() {
		return
	}
	err := w.db.Model(&models.TherapySession{}).Where("id = ?", session.ID).
		Updates(map[string]interface{}{
			"status":         models.StatusFailed,
			"error_category": stepErr.Category,
			"error_message":  sanitizedMessage(stepErr.Step, stepErr.Category),
		}).Error
	if err != nil {
		w.log.Error().Err(err).Str("session", session.ID).Msg("persist failed status")
		return
	}
	session.Status = models.StatusFailed
	session.ErrorCategory = stepErr.Category
	session.ErrorMessage = sanitizedMessage(stepErr.Step, stepErr.Category)
	metrics.SessionsFailed.WithLabelValues(stepErr.Category).Inc()

	if w.opts.Notifier != nil {
		w.opts.Notifier.SessionFailed(session)
	}
}

func (w *Worker) audioPath(session *models.TherapySession) string {
	return filepath.Join(w.opts.UploadDir, session.AudioFilename)
}

// sleepWithContext sleeps for d or until ctx is cancelled.
func sleepWithContext(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
