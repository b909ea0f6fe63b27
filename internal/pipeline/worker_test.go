package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/therapybridge/therapybridge/internal/clinical"
	"github.com/therapybridge/therapybridge/internal/models"
	"github.com/therapybridge/therapybridge/internal/transcribe"
	"gorm.io/gorm"
)

type stubTranscriber struct {
	result *transcribe.Result
	errs   []error // consumed per call; nil entries mean success
	calls  int
}

func (s *stubTranscriber) Transcribe(ctx context.Context, audioPath string) (*transcribe.Result, error) {
	s.calls++
	if len(s.errs) > 0 {
		err := s.errs[0]
		s.errs = s.errs[1:]
		if err != nil {
			return nil, err
		}
	}
	if s.result != nil {
		return s.result, nil
	}
	return &transcribe.Result{
		Text:            "Patient discussed work stress and sleep.",
		DurationSeconds: 61.5,
		Segments: []transcribe.Segment{
			{ID: 0, Start: 0, End: 30, Text: "How was your week?"},
			{ID: 1, Start: 30, End: 61.5, Text: "Stressful, mostly work."},
		},
	}, nil
}

type stubExtractor struct {
	notes *clinical.ExtractedNotes
	err   error
	calls int
}

func (s *stubExtractor) Extract(ctx context.Context, transcript string, segments []transcribe.Segment) (*clinical.ExtractedNotes, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	if s.notes != nil {
		return s.notes, nil
	}
	return &clinical.ExtractedNotes{
		KeyTopics:        []string{"work stress", "sleep"},
		SessionMood:      clinical.MoodNeutral,
		MoodTrajectory:   clinical.TrajectoryStable,
		TherapistSummary: "Work-related stress, mild sleep disruption.",
		PatientSummary:   "We explored what has been making work feel heavy.",
	}, nil
}

type stubNotifier struct {
	failed []string
}

func (s *stubNotifier) SessionFailed(session *models.TherapySession) {
	s.failed = append(s.failed, session.ID)
}

type workerFixture struct {
	db          *gorm.DB
	worker      *Worker
	transcriber *stubTranscriber
	extractor   *stubExtractor
	notifier    *stubNotifier
	uploadDir   string
}

func newWorkerFixture(t *testing.T) *workerFixture {
	t.Helper()
	gdb := newTestDB(t)
	dir := t.TempDir()
	tr := &stubTranscriber{}
	ex := &stubExtractor{}
	no := &stubNotifier{}
	w, err := NewWorker(Options{
		DB:                   gdb,
		Transcriber:          tr,
		Extractor:            ex,
		Notifier:             no,
		Log:                  zerolog.Nop(),
		WorkerID:             "test-worker",
		UploadDir:            dir,
		MaxTransientAttempts: 3,
	})
	if err != nil {
		t.Fatalf("NewWorker() error = %v", err)
	}
	return &workerFixture{db: gdb, worker: w, transcriber: tr, extractor: ex, notifier: no, uploadDir: dir}
}

// uploadSession seeds a session in uploading state with an audio file on
// disk and a pending job, mirroring what the upload handler commits.
func (f *workerFixture) uploadSession(t *testing.T, id string) *models.TherapySession {
	t.Helper()
	s := seedSession(t, f.db, id, models.StatusUploading)
	if err := os.WriteFile(filepath.Join(f.uploadDir, s.AudioFilename), []byte("RIFF....WAVE"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := f.worker.Queue().Enqueue(nil, id, models.JobFullPipeline); err != nil {
		t.Fatal(err)
	}
	return s
}

// runOnce claims and processes a single job.
func (f *workerFixture) runOnce(t *testing.T) {
	t.Helper()
	job, err := f.worker.Queue().ClaimNext("test-worker")
	if err != nil {
		t.Fatalf("ClaimNext() error = %v", err)
	}
	if job == nil {
		t.Fatal("no job to run")
	}
	f.worker.processJob(context.Background(), job)
}

func (f *workerFixture) reload(t *testing.T, id string) *models.TherapySession {
	t.Helper()
	var s models.TherapySession
	if err := f.db.First(&s, "id = ?", id).Error; err != nil {
		t.Fatalf("reload session: %v", err)
	}
	return &s
}

func TestWorker_HappyPath(t *testing.T) {
	f := newWorkerFixture(t)
	f.uploadSession(t, "s1")
	f.runOnce(t)

	s := f.reload(t, "s1")
	if s.Status != models.StatusProcessed {
		t.Fatalf("status = %s, want processed (error: %s)", s.Status, s.ErrorMessage)
	}
	if s.TranscriptText == "" {
		t.Error("transcript_text is empty after processing")
	}
	if s.DurationSeconds != 61.5 {
		t.Errorf("duration = %v, want 61.5", s.DurationSeconds)
	}
	if s.ProcessedAt == nil {
		t.Error("processed_at not set")
	}

	var notes clinical.ExtractedNotes
	if err := unmarshalJSON(s.ExtractedNotes, &notes); err != nil {
		t.Fatalf("decode notes: %v", err)
	}
	if len(notes.KeyTopics) == 0 {
		t.Error("notes.key_topics is empty")
	}
	if notes.SessionMood != clinical.MoodNeutral {
		t.Errorf("session_mood = %q", notes.SessionMood)
	}

	// Cleanup-on-success removes the audio file; the row keeps the name.
	if _, err := os.Stat(filepath.Join(f.uploadDir, s.AudioFilename)); !os.IsNotExist(err) {
		t.Error("audio file still on disk after processing")
	}
	if s.AudioFilename == "" {
		t.Error("audio filename cleared from the row")
	}

	var job models.ProcessingJob
	if err := f.db.First(&job, "session_id = ?", "s1").Error; err != nil {
		t.Fatal(err)
	}
	if job.State != models.JobDone {
		t.Errorf("job state = %s, want done", job.State)
	}
}

func TestWorker_PermanentFailureFailsSession(t *testing.T) {
	f := newWorkerFixture(t)
	f.uploadSession(t, "s1")
	f.transcriber.errs = []error{errors.New("unsupported audio codec")}

	f.runOnce(t)

	s := f.reload(t, "s1")
	if s.Status != models.StatusFailed {
		t.Fatalf("status = %s, want failed", s.Status)
	}
	if s.ErrorCategory != models.ErrCategoryPermanent {
		t.Errorf("error_category = %q, want permanent", s.ErrorCategory)
	}
	if s.ErrorMessage == "" {
		t.Error("error_message is empty")
	}
	// Sanitized: the raw upstream text must not leak into the row.
	if s.ErrorMessage == "unsupported audio codec" {
		t.Error("error_message contains raw upstream text")
	}

	// Failure leaves the audio on disk for the retention-based sweep.
	if _, err := os.Stat(filepath.Join(f.uploadDir, s.AudioFilename)); err != nil {
		t.Error("audio file missing after failure")
	}

	if len(f.notifier.failed) != 1 || f.notifier.failed[0] != "s1" {
		t.Errorf("notifier calls = %v, want [s1]", f.notifier.failed)
	}
}

func TestWorker_TransientRetriesThenSucceeds(t *testing.T) {
	f := newWorkerFixture(t)
	f.uploadSession(t, "s1")
	f.transcriber.errs = []error{errors.New("429 too many requests"), nil}

	f.runOnce(t)

	// First attempt hit a transient error: session not failed, job pending.
	s := f.reload(t, "s1")
	if s.Status == models.StatusFailed {
		t.Fatal("session failed on a transient error under the attempt cap")
	}
	var job models.ProcessingJob
	if err := f.db.First(&job, "session_id = ?", "s1").Error; err != nil {
		t.Fatal(err)
	}
	if job.State != models.JobPending {
		t.Fatalf("job state = %s, want pending (rescheduled)", job.State)
	}

	// Make the retry due now, then run it.
	if err := f.db.Model(&job).Update("next_run_at", time.Now().Add(-time.Second)).Error; err != nil {
		t.Fatal(err)
	}
	f.runOnce(t)

	s = f.reload(t, "s1")
	if s.Status != models.StatusProcessed {
		t.Fatalf("status after retry = %s, want processed", s.Status)
	}
	if f.transcriber.calls != 2 {
		t.Errorf("transcriber calls = %d, want 2", f.transcriber.calls)
	}
}

func TestWorker_TransientExhaustsAttempts(t *testing.T) {
	f := newWorkerFixture(t)
	f.uploadSession(t, "s1")
	f.transcriber.errs = []error{
		errors.New("429 too many requests"),
		errors.New("429 too many requests"),
		errors.New("429 too many requests"),
	}

	for i := 0; i < 3; i++ {
		f.db.Model(&models.ProcessingJob{}).Where("session_id = ?", "s1").
			Update("next_run_at", time.Now().Add(-time.Second))
		f.runOnce(t)
	}

	s := f.reload(t, "s1")
	if s.Status != models.StatusFailed {
		t.Fatalf("status = %s, want failed after exhausted retries", s.Status)
	}
	if s.ErrorCategory != models.ErrCategoryTransient {
		t.Errorf("error_category = %q, want transient", s.ErrorCategory)
	}
}

func TestWorker_ExtractionFailure(t *testing.T) {
	f := newWorkerFixture(t)
	f.uploadSession(t, "s1")
	f.extractor.err = errors.New("clinical: invalid notes: session_mood \"odd\" not on the five-point scale")

	f.runOnce(t)

	s := f.reload(t, "s1")
	if s.Status != models.StatusFailed {
		t.Fatalf("status = %s, want failed", s.Status)
	}
	if s.ErrorCategory != models.ErrCategoryValidation {
		t.Errorf("error_category = %q, want validation", s.ErrorCategory)
	}
	// The transcript from the completed step survives the failure.
	if s.TranscriptText == "" {
		t.Error("transcript lost on extraction failure")
	}
}

func TestWorker_ResumesAfterCrashMidTranscribe(t *testing.T) {
	f := newWorkerFixture(t)
	f.uploadSession(t, "s1")

	// Simulate a crash: session advanced to transcribing, nothing persisted,
	// job back in pending after reclaim.
	if err := f.db.Model(&models.TherapySession{}).Where("id = ?", "s1").
		Update("status", models.StatusTranscribing).Error; err != nil {
		t.Fatal(err)
	}

	f.runOnce(t)

	s := f.reload(t, "s1")
	if s.Status != models.StatusProcessed {
		t.Fatalf("status = %s, want processed after resume", s.Status)
	}
}

func TestWorker_ShutdownMidStepLeavesSessionResumable(t *testing.T) {
	f := newWorkerFixture(t)
	f.uploadSession(t, "s1")

	// Shutdown arrives mid-transcription: the call comes back with the
	// cancellation error and the worker's context is already done.
	f.transcriber.errs = []error{context.Canceled}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	job, err := f.worker.Queue().ClaimNext("test-worker")
	if err != nil {
		t.Fatalf("ClaimNext() error = %v", err)
	}
	if job == nil {
		t.Fatal("no job to run")
	}
	f.worker.processJob(ctx, job)

	// The session must not be failed; the persisted status is what the
	// resumed job picks up from.
	s := f.reload(t, "s1")
	if s.Status == models.StatusFailed {
		t.Fatalf("session failed during shutdown: category=%s message=%q", s.ErrorCategory, s.ErrorMessage)
	}
	if len(f.notifier.failed) != 0 {
		t.Errorf("failure alert sent for a shutdown interruption: %v", f.notifier.failed)
	}

	// The job is back in the queue, immediately due.
	var requeued models.ProcessingJob
	if err := f.db.First(&requeued, "session_id = ?", "s1").Error; err != nil {
		t.Fatal(err)
	}
	if requeued.State != models.JobPending {
		t.Fatalf("job state = %s, want pending after interruption", requeued.State)
	}

	// The next worker finishes the session.
	f.runOnce(t)
	s = f.reload(t, "s1")
	if s.Status != models.StatusProcessed {
		t.Fatalf("status after restart = %s, want processed", s.Status)
	}
}

func TestWorker_ExtractOnlyRecoversFailedSession(t *testing.T) {
	f := newWorkerFixture(t)
	s := seedSession(t, f.db, "s1", models.StatusUploading)
	// A failed session that still holds a transcript.
	if err := f.db.Model(s).Updates(map[string]interface{}{
		"status":          models.StatusFailed,
		"transcript_text": "existing transcript",
		"error_category":  models.ErrCategoryTransient,
		"error_message":   "note extraction failed after retries due to a temporary upstream problem",
	}).Error; err != nil {
		t.Fatal(err)
	}
	if err := f.worker.Queue().Enqueue(nil, "s1", models.JobExtractOnly); err != nil {
		t.Fatal(err)
	}

	f.runOnce(t)

	got := f.reload(t, "s1")
	if got.Status != models.StatusProcessed {
		t.Fatalf("status = %s, want processed", got.Status)
	}
	if got.ErrorMessage != "" || got.ErrorCategory != "" {
		t.Errorf("error fields not cleared: %q/%q", got.ErrorCategory, got.ErrorMessage)
	}
	if f.transcriber.calls != 0 {
		t.Errorf("transcriber called %d times during extract-only", f.transcriber.calls)
	}
}

func TestWorker_ExtractOnlyWithoutTranscript(t *testing.T) {
	f := newWorkerFixture(t)
	s := seedSession(t, f.db, "s1", models.StatusUploading)
	if err := f.db.Model(s).Update("status", models.StatusFailed).Error; err != nil {
		t.Fatal(err)
	}
	if err := f.worker.Queue().Enqueue(nil, "s1", models.JobExtractOnly); err != nil {
		t.Fatal(err)
	}

	f.runOnce(t)

	got := f.reload(t, "s1")
	if got.Status != models.StatusFailed {
		t.Errorf("status = %s, want failed (cannot recover a transcription failure)", got.Status)
	}
	if f.extractor.calls != 0 {
		t.Errorf("extractor called despite missing transcript")
	}
}

func TestWorker_RunStopsOnCancel(t *testing.T) {
	f := newWorkerFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.worker.Run(ctx) }()
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run() did not stop after cancel")
	}
}
