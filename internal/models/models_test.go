package models

import (
	"reflect"
	"strings"
	"testing"
	"time"
)

// gormTag extracts the gorm tag from a struct field.
func gormTag(t *testing.T, typ reflect.Type, fieldName string) string {
	t.Helper()
	f, ok := typ.FieldByName(fieldName)
	if !ok {
		t.Fatalf("%s.%s: field not found", typ.Name(), fieldName)
	}
	return f.Tag.Get("gorm")
}

// assertGormTag checks that a struct field's gorm tag contains the expected value.
func assertGormTag(t *testing.T, typ reflect.Type, fieldName, expected string) {
	t.Helper()
	tag := gormTag(t, typ, fieldName)
	if !strings.Contains(tag, expected) {
		t.Errorf("%s.%s gorm tag = %q, want to contain %q", typ.Name(), fieldName, tag, expected)
	}
}

func TestTherapySession_Fields(t *testing.T) {
	typ := reflect.TypeOf(TherapySession{})

	assertGormTag(t, typ, "ID", "primaryKey")
	assertGormTag(t, typ, "ID", "size:36")
	assertGormTag(t, typ, "PatientID", "not null")
	assertGormTag(t, typ, "PatientID", "index")
	assertGormTag(t, typ, "TherapistID", "not null")
	assertGormTag(t, typ, "TranscriptText", "type:text")
	assertGormTag(t, typ, "TranscriptSegments", "type:json")
	assertGormTag(t, typ, "ExtractedNotes", "type:json")
	assertGormTag(t, typ, "Status", "default:uploading")
	assertGormTag(t, typ, "Status", "index")
	assertGormTag(t, typ, "AudioFilename", "size:255")
}

func TestAuthSession_Fields(t *testing.T) {
	typ := reflect.TypeOf(AuthSession{})

	assertGormTag(t, typ, "TokenHash", "uniqueIndex")
	assertGormTag(t, typ, "TokenHash", "size:64")
	assertGormTag(t, typ, "UserID", "not null")
	assertGormTag(t, typ, "ExpiresAt", "not null")
	assertGormTag(t, typ, "Revoked", "default:false")
}

func TestUser_Fields(t *testing.T) {
	typ := reflect.TypeOf(User{})

	assertGormTag(t, typ, "Email", "uniqueIndex")
	assertGormTag(t, typ, "Role", "default:therapist")
	assertGormTag(t, typ, "PasswordHash", "not null")
}

func TestProcessingJob_Fields(t *testing.T) {
	typ := reflect.TypeOf(ProcessingJob{})

	assertGormTag(t, typ, "SessionID", "not null")
	assertGormTag(t, typ, "State", "default:pending")
	assertGormTag(t, typ, "Kind", "default:full_pipeline")
	assertGormTag(t, typ, "NextRunAt", "index")
}

func TestSessionStatuses(t *testing.T) {
	want := []string{"uploading", "transcribing", "transcribed", "extracting_notes", "processed", "failed"}
	got := []string{StatusUploading, StatusTranscribing, StatusTranscribed, StatusExtractingNotes, StatusProcessed, StatusFailed}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("statuses = %v, want %v", got, want)
	}
}

func TestTherapySession_IsTerminal(t *testing.T) {
	tests := []struct {
		status string
		want   bool
	}{
		{StatusUploading, false},
		{StatusTranscribing, false},
		{StatusTranscribed, false},
		{StatusExtractingNotes, false},
		{StatusProcessed, true},
		{StatusFailed, true},
	}
	for _, tt := range tests {
		s := TherapySession{Status: tt.status}
		if got := s.IsTerminal(); got != tt.want {
			t.Errorf("IsTerminal(%s) = %v, want %v", tt.status, got, tt.want)
		}
	}
}

func TestAuthSession_Usable(t *testing.T) {
	now := time.Now()
	tests := []struct {
		name    string
		session AuthSession
		want    bool
	}{
		{"live", AuthSession{ExpiresAt: now.Add(time.Hour)}, true},
		{"expired", AuthSession{ExpiresAt: now.Add(-time.Hour)}, false},
		{"revoked", AuthSession{ExpiresAt: now.Add(time.Hour), Revoked: true}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.session.Usable(now); got != tt.want {
				t.Errorf("Usable() = %v, want %v", got, tt.want)
			}
		})
	}
}
