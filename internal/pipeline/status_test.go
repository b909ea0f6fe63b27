package pipeline

import (
	"testing"

	"github.com/therapybridge/therapybridge/internal/models"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to string
		want     bool
	}{
		// The forward path.
		{models.StatusUploading, models.StatusTranscribing, true},
		{models.StatusTranscribing, models.StatusTranscribed, true},
		{models.StatusTranscribed, models.StatusExtractingNotes, true},
		{models.StatusExtractingNotes, models.StatusProcessed, true},

		// No skipping.
		{models.StatusUploading, models.StatusTranscribed, false},
		{models.StatusUploading, models.StatusProcessed, false},
		{models.StatusTranscribing, models.StatusExtractingNotes, false},

		// No going backward.
		{models.StatusTranscribed, models.StatusTranscribing, false},
		{models.StatusExtractingNotes, models.StatusUploading, false},

		// failed is reachable from every non-terminal state.
		{models.StatusUploading, models.StatusFailed, true},
		{models.StatusTranscribing, models.StatusFailed, true},
		{models.StatusTranscribed, models.StatusFailed, true},
		{models.StatusExtractingNotes, models.StatusFailed, true},

		// Terminal states absorb.
		{models.StatusFailed, models.StatusUploading, false},
		{models.StatusFailed, models.StatusTranscribing, false},
		{models.StatusFailed, models.StatusProcessed, false},
		{models.StatusFailed, models.StatusFailed, false},
		{models.StatusProcessed, models.StatusFailed, false},
		{models.StatusProcessed, models.StatusExtractingNotes, false},
	}

	for _, tt := range tests {
		if got := CanTransition(tt.from, tt.to); got != tt.want {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}
