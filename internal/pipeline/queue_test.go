package pipeline

import (
	"testing"
	"time"

	"github.com/therapybridge/therapybridge/internal/db"
	"github.com/therapybridge/therapybridge/internal/models"
	"gorm.io/gorm"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	gdb, err := db.OpenMemory()
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := db.AutoMigrate(gdb); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return gdb
}

func seedSession(t *testing.T, gdb *gorm.DB, id, status string) *models.TherapySession {
	t.Helper()
	if err := gdb.FirstOrCreate(&models.User{ID: "therapist-1", Email: "t@x.co", PasswordHash: "h", FullName: "T"}).Error; err != nil {
		t.Fatalf("seed user: %v", err)
	}
	if err := gdb.FirstOrCreate(&models.Patient{ID: "patient-1", TherapistID: "therapist-1", FullName: "P"}).Error; err != nil {
		t.Fatalf("seed patient: %v", err)
	}
	s := models.TherapySession{
		ID:            id,
		PatientID:     "patient-1",
		TherapistID:   "therapist-1",
		AudioFilename: id + ".mp3",
		Status:        status,
	}
	if err := gdb.Create(&s).Error; err != nil {
		t.Fatalf("seed session: %v", err)
	}
	return &s
}

func TestQueue_EnqueueClaim(t *testing.T) {
	gdb := newTestDB(t)
	q := NewQueue(gdb)
	seedSession(t, gdb, "s1", models.StatusUploading)

	if err := q.Enqueue(nil, "s1", models.JobFullPipeline); err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}

	job, err := q.ClaimNext("worker-a")
	if err != nil {
		t.Fatalf("ClaimNext() error = %v", err)
	}
	if job == nil {
		t.Fatal("ClaimNext() = nil, want job")
	}
	if job.SessionID != "s1" || job.State != models.JobRunning || job.Attempts != 1 {
		t.Errorf("claimed job = %+v", job)
	}

	// The claimed job is gone from the pending pool.
	second, err := q.ClaimNext("worker-b")
	if err != nil {
		t.Fatalf("ClaimNext() error = %v", err)
	}
	if second != nil {
		t.Errorf("ClaimNext() claimed the same job twice: %+v", second)
	}
}

func TestQueue_ClaimOrder(t *testing.T) {
	gdb := newTestDB(t)
	q := NewQueue(gdb)
	seedSession(t, gdb, "s1", models.StatusUploading)
	seedSession(t, gdb, "s2", models.StatusUploading)

	if err := q.Enqueue(nil, "s1", models.JobFullPipeline); err != nil {
		t.Fatal(err)
	}
	if err := q.Enqueue(nil, "s2", models.JobFullPipeline); err != nil {
		t.Fatal(err)
	}

	job, _ := q.ClaimNext("w")
	if job == nil || job.SessionID != "s1" {
		t.Errorf("first claim = %+v, want s1", job)
	}
}

func TestQueue_RescheduleDelays(t *testing.T) {
	gdb := newTestDB(t)
	q := NewQueue(gdb)
	seedSession(t, gdb, "s1", models.StatusUploading)
	if err := q.Enqueue(nil, "s1", models.JobFullPipeline); err != nil {
		t.Fatal(err)
	}

	job, _ := q.ClaimNext("w")
	if err := q.Reschedule(job, time.Hour, "transient blip"); err != nil {
		t.Fatalf("Reschedule() error = %v", err)
	}

	// Not due yet.
	if got, _ := q.ClaimNext("w"); got != nil {
		t.Errorf("ClaimNext() claimed a job scheduled an hour out: %+v", got)
	}

	var row models.ProcessingJob
	if err := gdb.First(&row, job.ID).Error; err != nil {
		t.Fatal(err)
	}
	if row.State != models.JobPending || row.LastError != "transient blip" {
		t.Errorf("rescheduled row = %+v", row)
	}
}

func TestQueue_ReclaimStale(t *testing.T) {
	gdb := newTestDB(t)
	q := NewQueue(gdb)
	seedSession(t, gdb, "s1", models.StatusUploading)
	if err := q.Enqueue(nil, "s1", models.JobFullPipeline); err != nil {
		t.Fatal(err)
	}

	job, _ := q.ClaimNext("dead-worker")
	if job == nil {
		t.Fatal("no job claimed")
	}

	// Fresh claims are left alone.
	n, err := q.ReclaimStale(time.Hour)
	if err != nil {
		t.Fatalf("ReclaimStale() error = %v", err)
	}
	if n != 0 {
		t.Errorf("ReclaimStale() reclaimed %d fresh jobs", n)
	}

	// Backdate the claim past the window.
	old := time.Now().Add(-2 * time.Hour)
	if err := gdb.Model(&models.ProcessingJob{}).Where("id = ?", job.ID).Update("claimed_at", old).Error; err != nil {
		t.Fatal(err)
	}
	n, err = q.ReclaimStale(time.Hour)
	if err != nil {
		t.Fatalf("ReclaimStale() error = %v", err)
	}
	if n != 1 {
		t.Fatalf("ReclaimStale() = %d, want 1", n)
	}

	// The job is claimable again.
	again, _ := q.ClaimNext("live-worker")
	if again == nil || again.ID != job.ID {
		t.Errorf("reclaimed job not claimable: %+v", again)
	}
	if again.Attempts != 2 {
		t.Errorf("attempts = %d, want 2", again.Attempts)
	}
}

func TestQueue_PendingCount(t *testing.T) {
	gdb := newTestDB(t)
	q := NewQueue(gdb)
	seedSession(t, gdb, "s1", models.StatusUploading)
	seedSession(t, gdb, "s2", models.StatusUploading)
	_ = q.Enqueue(nil, "s1", models.JobFullPipeline)
	_ = q.Enqueue(nil, "s2", models.JobExtractOnly)

	n, err := q.PendingCount()
	if err != nil {
		t.Fatalf("PendingCount() error = %v", err)
	}
	if n != 2 {
		t.Errorf("PendingCount() = %d, want 2", n)
	}
}
