package peers

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/bdobrica/Kagemusha/internal/kagemusha/llm"
	"github.com/bdobrica/Kagemusha/internal/kagemusha/store"
)

const analysisSystemPrompt = "You are an expert in social psychology and communication analysis. " +
	"Read the dialogue carefully and draw measured conclusions about the tone, warmth, " +
	"and dynamics between the two participants. Base every conclusion strictly on the " +
	"provided text, without speculation."

// analysisSchema constrains the LLM's JSON output. Responses that do not
// validate are rejected so a malformed completion never becomes a stored
// relationship summary.
const analysisSchema = `{
	"type": "object",
	"required": ["summary"],
	"properties": {
		"summary": {"type": "string"},
		"tone": {"type": "string"},
		"formality": {"type": "string"},
		"teasing_level": {"type": "string"},
		"respect_level": {"type": "string"},
		"emotional_notes": {"type": "string"},
		"example_quotes": {"type": "array", "items": {"type": "string"}, "maxItems": 3}
	}
}`

// Analysis is the structured result of one relationship reanalysis.
type Analysis struct {
	Summary        string   `json:"summary"`
	Tone           string   `json:"tone"`
	Formality      string   `json:"formality"`
	TeasingLevel   string   `json:"teasing_level"`
	RespectLevel   string   `json:"respect_level"`
	EmotionalNotes string   `json:"emotional_notes"`
	ExampleQuotes  []string `json:"example_quotes"`
}

// Analyzer asks the generation service to characterize how two users talk to
// each other, validating the structured response before accepting it.
type Analyzer struct {
	provider llm.Provider
	schema   *jsonschema.Schema
}

// NewAnalyzer creates an Analyzer over the given provider.
func NewAnalyzer(provider llm.Provider) *Analyzer {
	return &Analyzer{
		provider: provider,
		schema:   jsonschema.MustCompileString("relationship_analysis.json", analysisSchema),
	}
}

// Analyze builds the analysis prompt from pair excerpts, calls the provider,
// and returns the validated result.
func (a *Analyzer) Analyze(ctx context.Context, nameA, nameB string, excerpts []store.ChatMessage) (*Analysis, error) {
	if len(excerpts) == 0 {
		return nil, fmt.Errorf("peers analyze: no excerpts for %s and %s", nameA, nameB)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Analyze how two chat participants talk to each other. Participants: %s and %s.\n", nameA, nameB)
	b.WriteString("Use the excerpts below as your only material.\n")
	b.WriteString("Return the result strictly as a single JSON object with these fields: ")
	b.WriteString(`{"summary": string, "tone": string, "formality": string, "teasing_level": string, "respect_level": string, "emotional_notes": string, "example_quotes": array}.`)
	b.WriteString(` "example_quotes" is a list of up to three characteristic quotes.`)
	b.WriteString(" Fill any field you cannot assess with the string 'unknown'.\n\nDialogue:\n")
	for _, msg := range excerpts {
		fmt.Fprintf(&b, "%s: %s\n", msg.Speaker, msg.Text)
	}
	b.WriteString("\nThe answer must contain only one JSON object with no commentary.")

	text, err := a.provider.Complete(ctx, llm.Request{
		System: analysisSystemPrompt,
		User:   b.String(),
	})
	if err != nil {
		return nil, fmt.Errorf("peers analyze: %w", err)
	}

	raw := stripCodeFence(text)

	var doc any
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return nil, fmt.Errorf("peers analyze: decode JSON: %w", err)
	}
	if err := a.schema.Validate(doc); err != nil {
		return nil, fmt.Errorf("peers analyze: response failed validation: %w", err)
	}

	var analysis Analysis
	if err := json.Unmarshal([]byte(raw), &analysis); err != nil {
		return nil, fmt.Errorf("peers analyze: decode analysis: %w", err)
	}
	analysis.Summary = strings.TrimSpace(analysis.Summary)
	if analysis.Summary == "" {
		analysis.Summary = fmt.Sprintf("Tone: %s. Emotional notes: %s.",
			orUnknown(analysis.Tone), orUnknown(analysis.EmotionalNotes))
	}
	return &analysis, nil
}

// stripCodeFence removes a surrounding markdown code fence, which some models
// emit despite JSON-only instructions.
func stripCodeFence(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "```") {
		return text
	}
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(strings.TrimSpace(text), "```")
	return strings.TrimSpace(text)
}

func orUnknown(s string) string {
	if strings.TrimSpace(s) == "" {
		return "unknown"
	}
	return s
}
