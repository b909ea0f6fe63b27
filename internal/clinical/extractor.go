package clinical

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/responses"
	"github.com/openai/openai-go/shared"
	"github.com/therapybridge/therapybridge/internal/transcribe"
)

// Extractor derives structured notes from a transcript. Implementations
// return either a fully schema-valid ExtractedNotes or an error; there is
// no partial result.
type Extractor interface {
	Extract(ctx context.Context, transcript string, segments []transcribe.Segment) (*ExtractedNotes, error)
}

var notesSchema = generateSchema[ExtractedNotes]()

// OpenAIExtractor calls the Responses API with a strict JSON schema.
type OpenAIExtractor struct {
	client *openai.Client
	model  string
}

// NewOpenAIExtractor builds the hosted extractor.
func NewOpenAIExtractor(client *openai.Client, model string) *OpenAIExtractor {
	return &OpenAIExtractor{client: client, model: model}
}

// Extract requests structured notes for the transcript.
func (o *OpenAIExtractor) Extract(ctx context.Context, transcript string, segments []transcribe.Segment) (*ExtractedNotes, error) {
	if strings.TrimSpace(transcript) == "" {
		return nil, fmt.Errorf("clinical: transcript is empty")
	}

	format := responses.ResponseFormatTextConfigUnionParam{
		OfJSONSchema: &responses.ResponseFormatTextJSONSchemaConfigParam{
			Name:        "SessionNotes",
			Schema:      notesSchema,
			Strict:      openai.Bool(true),
			Description: openai.String("Structured therapy session notes"),
			Type:        "json_schema",
		},
	}

	params := responses.ResponseNewParams{
		Model:           shared.ResponsesModel(o.model),
		MaxOutputTokens: openai.Int(3000),
		Instructions:    openai.String(extractionInstructions),
		Input: responses.ResponseNewParamsInputUnion{
			OfInputItemList: []responses.ResponseInputItemUnionParam{
				responses.ResponseInputItemParamOfMessage(buildInput(transcript, segments), responses.EasyInputMessageRoleUser),
			},
		},
		Text: responses.ResponseTextConfigParam{
			Format: format,
		},
	}

	resp, err := o.client.Responses.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("clinical: extraction call: %w", err)
	}

	var notes ExtractedNotes
	if err := decodeModelJSON(resp.OutputText(), &notes); err != nil {
		return nil, fmt.Errorf("clinical: decode notes: %w", err)
	}
	if err := notes.Validate(); err != nil {
		return nil, err
	}
	return &notes, nil
}

// decodeModelJSON unmarshals JSON from a model response, tolerating wrapped
// or whitespace-padded output.
func decodeModelJSON(outputText string, v any) error {
	s := strings.TrimSpace(outputText)
	if s == "" {
		return io.ErrUnexpectedEOF
	}
	if err := json.Unmarshal([]byte(s), v); err == nil {
		return nil
	}
	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start == -1 || end == -1 || end <= start {
		return fmt.Errorf("no JSON object found in model output (len=%d)", len(s))
	}
	sub := s[start : end+1]
	if err := json.Unmarshal([]byte(sub), v); err != nil {
		return fmt.Errorf("unmarshal extracted JSON: %w", err)
	}
	return nil
}
