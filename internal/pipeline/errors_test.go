package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/therapybridge/therapybridge/internal/models"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"rate limit status", errors.New("openai: 429 Too Many Requests"), models.ErrCategoryTransient},
		{"rate limit text", errors.New("rate limit exceeded, retry later"), models.ErrCategoryTransient},
		{"server error", errors.New("http 500 internal server error"), models.ErrCategoryTransient},
		{"bad gateway", errors.New("received 502 from upstream"), models.ErrCategoryTransient},
		{"deadline", context.DeadlineExceeded, models.ErrCategoryTransient},
		{"wrapped deadline", fmt.Errorf("transcribe: whisper call: %w", context.DeadlineExceeded), models.ErrCategoryTransient},
		{"connection refused", errors.New("dial tcp: connection refused"), models.ErrCategoryTransient},
		{"invalid notes", errors.New("clinical: invalid notes: session_mood \"happy\" not on the five-point scale"), models.ErrCategoryValidation},
		{"empty transcript", errors.New("clinical: transcript is empty"), models.ErrCategoryValidation},
		{"unsupported codec", errors.New("unsupported audio codec"), models.ErrCategoryPermanent},
		{"anything else", errors.New("boom"), models.ErrCategoryPermanent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := classify(tt.err); got != tt.want {
				t.Errorf("classify(%v) = %q, want %q", tt.err, got, tt.want)
			}
		})
	}
}

func TestStepFail_PreservesExistingStepError(t *testing.T) {
	orig := &StepError{Step: "persist", Category: models.ErrCategoryPersistence, Err: errors.New("db gone")}
	wrapped := fmt.Errorf("outer: %w", orig)
	got := stepFail("extract", wrapped)
	if got.Step != "persist" || got.Category != models.ErrCategoryPersistence {
		t.Errorf("stepFail() = %+v, want original step error preserved", got)
	}
}

func TestSanitizedMessage_NoRawText(t *testing.T) {
	for _, step := range []string{"transcribe", "extract", "persist"} {
		for _, cat := range []string{models.ErrCategoryTransient, models.ErrCategoryValidation, models.ErrCategoryPermanent, models.ErrCategoryPersistence} {
			msg := sanitizedMessage(step, cat)
			if msg == "" {
				t.Errorf("sanitizedMessage(%s, %s) is empty", step, cat)
			}
			// Sanitized text must never echo upstream error details.
			for _, leak := range []string{"429", "sk-", "http", "%!"} {
				if strings.Contains(msg, leak) {
					t.Errorf("sanitizedMessage(%s, %s) = %q leaks %q", step, cat, msg, leak)
				}
			}
		}
	}
}
