// Package clinical extracts structured session notes from transcripts via a
// hosted chat-completion API.
package clinical

import (
	"fmt"
	"strings"
)

// Five-point session mood scale.
const (
	MoodVeryNegative = "very_negative"
	MoodNegative     = "negative"
	MoodNeutral      = "neutral"
	MoodPositive     = "positive"
	MoodVeryPositive = "very_positive"
)

// MoodScale lists the five mood values in order.
var MoodScale = []string{MoodVeryNegative, MoodNegative, MoodNeutral, MoodPositive, MoodVeryPositive}

// Mood trajectory over the course of a session.
const (
	TrajectoryImproving = "improving"
	TrajectoryStable    = "stable"
	TrajectoryDeclining = "declining"
)

// Risk flag severities.
const (
	SeverityLow    = "low"
	SeverityMedium = "medium"
	SeverityHigh   = "high"
)

// RiskFlag is one independently-assessed clinical concern.
type RiskFlag struct {
	Concern  string `json:"concern" jsonschema:"description=Short name of the concern"`
	Severity string `json:"severity" jsonschema:"enum=low,enum=medium,enum=high"`
	Evidence string `json:"evidence" jsonschema:"description=Transcript evidence supporting the flag"`
}

// ExtractedNotes is the structured clinical record derived from one
// session transcript.
type ExtractedNotes struct {
	KeyTopics             []string   `json:"key_topics" jsonschema:"description=Main topics discussed"`
	TherapeuticStrategies []string   `json:"therapeutic_strategies" jsonschema:"description=Techniques the therapist applied"`
	Triggers              []string   `json:"triggers" jsonschema:"description=Identified emotional triggers"`
	ActionItems           []string   `json:"action_items" jsonschema:"description=Agreed follow-ups for the patient"`
	SessionMood           string     `json:"session_mood" jsonschema:"enum=very_negative,enum=negative,enum=neutral,enum=positive,enum=very_positive"`
	MoodTrajectory        string     `json:"mood_trajectory" jsonschema:"enum=improving,enum=stable,enum=declining"`
	TherapistSummary      string     `json:"therapist_summary" jsonschema:"description=Clinical summary for the therapist"`
	PatientSummary        string     `json:"patient_summary" jsonschema:"description=Plain-language summary for the patient"`
	RiskFlags             []RiskFlag `json:"risk_flags" jsonschema:"description=Clinical concerns observed in the session"`
}

// Validate checks the all-or-nothing contract: every enum value must be
// drawn from its scale and the load-bearing fields must be populated.
func (n *ExtractedNotes) Validate() error {
	var errs []string
	if !contains(MoodScale, n.SessionMood) {
		errs = append(errs, fmt.Sprintf("session_mood %q not on the five-point scale", n.SessionMood))
	}
	switch n.MoodTrajectory {
	case TrajectoryImproving, TrajectoryStable, TrajectoryDeclining:
	default:
		errs = append(errs, fmt.Sprintf("mood_trajectory %q invalid", n.MoodTrajectory))
	}
	if len(n.KeyTopics) == 0 {
		errs = append(errs, "key_topics is empty")
	}
	if strings.TrimSpace(n.TherapistSummary) == "" {
		errs = append(errs, "therapist_summary is empty")
	}
	if strings.TrimSpace(n.PatientSummary) == "" {
		errs = append(errs, "patient_summary is empty")
	}
	for i, f := range n.RiskFlags {
		switch f.Severity {
		case SeverityLow, SeverityMedium, SeverityHigh:
		default:
			errs = append(errs, fmt.Sprintf("risk_flags[%d].severity %q invalid", i, f.Severity))
		}
		if strings.TrimSpace(f.Concern) == "" {
			errs = append(errs, fmt.Sprintf("risk_flags[%d].concern is empty", i))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("clinical: invalid notes: %s", strings.Join(errs, "; "))
	}
	return nil
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
