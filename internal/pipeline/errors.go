package pipeline

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/therapybridge/therapybridge/internal/models"
)

// StepError tags a pipeline failure with the step it occurred in and an
// error category, so transient upstream failures can be retried while
// everything else fails fast.
type StepError struct {
	Step     string // "transcribe" or "extract"
	Category string // models.ErrCategory*
	Err      error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("pipeline: %s step (%s): %v", e.Step, e.Category, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

// stepFail wraps err with its step and classified category.
func stepFail(step string, err error) *StepError {
	var se *StepError
	if errors.As(err, &se) {
		return se
	}
	return &StepError{Step: step, Category: classify(err), Err: err}
}

// classify maps an error onto the failure taxonomy. Upstream APIs surface
// rate limits and server trouble as text, so classification matches on the
// rendered error the way their SDKs document it.
func classify(err error) string {
	if err == nil {
		return ""
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return models.ErrCategoryTransient
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return models.ErrCategoryTransient
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "429"),
		strings.Contains(msg, "rate limit"),
		strings.Contains(msg, "too many requests"),
		strings.Contains(msg, "500"),
		strings.Contains(msg, "502"),
		strings.Contains(msg, "503"),
		strings.Contains(msg, "internal server error"),
		strings.Contains(msg, "server_error"),
		strings.Contains(msg, "connection refused"),
		strings.Contains(msg, "connection reset"),
		strings.Contains(msg, "timeout"):
		return models.ErrCategoryTransient
	case strings.Contains(msg, "invalid notes"),
		strings.Contains(msg, "transcript is empty"):
		return models.ErrCategoryValidation
	}
	return models.ErrCategoryPermanent
}

// sanitizedMessage is the operator-safe error text stored on the session
// row. Raw upstream error text goes to the log only.
func sanitizedMessage(step, category string) string {
	var what string
	switch step {
	case "transcribe":
		what = "audio transcription"
	case "extract":
		what = "note extraction"
	case "persist":
		what = "saving results"
	default:
		what = "processing"
	}
	switch category {
	case models.ErrCategoryTransient:
		return what + " failed after retries due to a temporary upstream problem"
	case models.ErrCategoryValidation:
		return what + " failed because the input could not be processed"
	case models.ErrCategoryPersistence:
		return what + " failed while writing to the database"
	default:
		return what + " failed due to an unrecoverable error"
	}
}
