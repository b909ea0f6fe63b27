package clinical

import (
	"fmt"
	"strings"

	"github.com/therapybridge/therapybridge/internal/transcribe"
)

const extractionInstructions = `You are a clinical documentation assistant for licensed therapists.

You will receive the transcript of one therapy session. Produce structured
session notes as JSON matching the provided schema.

Guidelines:
- key_topics: the main subjects discussed, most significant first.
- therapeutic_strategies: techniques the therapist actually used (e.g. CBT
  reframing, grounding exercises), not ones merely mentioned.
- triggers: situations, people, or thoughts identified as distressing to the
  patient.
- action_items: concrete follow-ups the patient agreed to before the next
  session.
- session_mood: the patient's overall mood on the five-point scale.
- mood_trajectory: how the patient's mood moved across the session.
- therapist_summary: a concise clinical summary in professional language.
- patient_summary: a supportive plain-language summary suitable to share
  with the patient.
- risk_flags: any indications of self-harm, harm to others, substance
  misuse, or crisis, each with severity and the supporting evidence. Use an
  empty list when there are none. Never invent concerns.

Base every field strictly on the transcript. Do not speculate.`

// maxPromptChars caps the transcript portion of the prompt.
const maxPromptChars = 96_000

// buildInput renders the transcript (and speaker turns when available) into
// the user message for the extraction call.
func buildInput(transcript string, segments []transcribe.Segment) string {
	var b strings.Builder
	b.WriteString("SESSION TRANSCRIPT:\n\n")
	if len(segments) > 0 {
		for _, s := range segments {
			speaker := s.Speaker
			if speaker == "" {
				speaker = fmt.Sprintf("[%.0fs]", s.Start)
			}
			b.WriteString(speaker)
			b.WriteString(": ")
			b.WriteString(strings.TrimSpace(s.Text))
			b.WriteString("\n")
		}
	} else {
		b.WriteString(transcript)
	}
	out := b.String()
	if len(out) > maxPromptChars {
		out = out[:maxPromptChars]
	}
	return out
}
