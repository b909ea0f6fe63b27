// Package transcribe turns session audio into text via a hosted
// speech-to-text API.
package transcribe

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/openai/openai-go"
)

// Segment is one contiguous stretch of transcribed speech.
type Segment struct {
	ID      int     `json:"id"`
	Start   float64 `json:"start"`
	End     float64 `json:"end"`
	Speaker string  `json:"speaker,omitempty"`
	Text    string  `json:"text"`
}

// Result is a completed transcription.
type Result struct {
	Text            string
	Language        string
	DurationSeconds float64
	Segments        []Segment
}

// Transcriber converts an audio file on disk into a Result.
type Transcriber interface {
	Transcribe(ctx context.Context, audioPath string) (*Result, error)
}

// OpenAI transcribes audio with the Whisper API.
type OpenAI struct {
	client *openai.Client
	model  string
}

// NewOpenAI builds a Whisper-backed Transcriber.
func NewOpenAI(client *openai.Client, model string) *OpenAI {
	return &OpenAI{client: client, model: model}
}

// verboseTranscription mirrors the verbose_json response body, which carries
// duration and segments beyond the plain text.
type verboseTranscription struct {
	Text     string  `json:"text"`
	Language string  `json:"language"`
	Duration float64 `json:"duration"`
	Segments []struct {
		ID    int     `json:"id"`
		Start float64 `json:"start"`
		End   float64 `json:"end"`
		Text  string  `json:"text"`
	} `json:"segments"`
}

// Transcribe uploads the audio file and returns the verbose transcription.
func (o *OpenAI) Transcribe(ctx context.Context, audioPath string) (*Result, error) {
	f, err := os.Open(audioPath)
	if err != nil {
		return nil, fmt.Errorf("transcribe: open %s: %w", audioPath, err)
	}
	defer f.Close()

	resp, err := o.client.Audio.Transcriptions.New(ctx, openai.AudioTranscriptionNewParams{
		File:           f,
		Model:          openai.AudioModel(o.model),
		ResponseFormat: openai.AudioResponseFormatVerboseJSON,
	})
	if err != nil {
		return nil, fmt.Errorf("transcribe: whisper call: %w", err)
	}

	var verbose verboseTranscription
	if err := json.Unmarshal([]byte(resp.RawJSON()), &verbose); err != nil {
		return nil, fmt.Errorf("transcribe: decode verbose response: %w", err)
	}
	if verbose.Text == "" {
		verbose.Text = resp.Text
	}

	result := &Result{
		Text:            verbose.Text,
		Language:        verbose.Language,
		DurationSeconds: verbose.Duration,
	}
	for _, s := range verbose.Segments {
		result.Segments = append(result.Segments, Segment{
			ID:    s.ID,
			Start: s.Start,
			End:   s.End,
			Text:  s.Text,
		})
	}
	return result, nil
}
