package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/example/studyengine/pkg/models"
)

// ErrEmptyCompletion signals a model response with no usable text block.
var ErrEmptyCompletion = errors.New("empty completion")

// ErrDisabled is returned by the Disabled synthesizer.
var ErrDisabled = errors.New("content generation is disabled")

// Disabled is a synthesizer that always fails. It keeps the engine usable
// on existing content when no API key is configured; generation failures
// are non-fatal downstream.
type Disabled struct{}

// Synthesize always returns ErrDisabled.
func (Disabled) Synthesize(context.Context, string, string, int) ([]models.Atom, error) {
	return nil, ErrDisabled
}

const (
	defaultModel       = "claude-3-5-haiku-latest"
	defaultMaxTokens   = 2048
	defaultTemperature = 0.7

	systemPrompt = "You are a study content author. You write small, self-contained " +
		"study items (atoms) for an adaptive learning system. You respond with a JSON " +
		"array only, no prose and no code fences."
)

// Synthesizer generates study atoms through the Anthropic API. It satisfies
// the generation orchestrator's Synthesizer interface.
type Synthesizer struct {
	client      *anthropic.Client
	model       string
	maxTokens   int
	temperature float64
}

// New creates a synthesizer. An empty model selects the default.
func New(apiKey, model string) (*Synthesizer, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("anthropic api key is not set")
	}
	if model == "" {
		model = defaultModel
	}

	client := anthropic.NewClient(option.WithAPIKey(apiKey))
	return &Synthesizer{
		client:      &client,
		model:       model,
		maxTokens:   defaultMaxTokens,
		temperature: defaultTemperature,
	}, nil
}

// generatedAtom is the wire shape the model is asked to produce.
type generatedAtom struct {
	Format     string   `json:"format"`
	Difficulty float64  `json:"difficulty"`
	Body       string   `json:"body"`
	Tags       []string `json:"tags"`
}

// Synthesize asks the model for count atoms of one content type about the
// concept and parses the JSON reply. Provenance fields (id, section, skill
// links) are the orchestrator's job, not the model's.
func (s *Synthesizer) Synthesize(ctx context.Context, concept, contentType string, count int) ([]models.Atom, error) {
	if count <= 0 {
		return nil, nil
	}

	prompt := buildPrompt(concept, contentType, count)
	message, err := s.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:       anthropic.Model(s.model),
		MaxTokens:   int64(s.maxTokens),
		Temperature: anthropic.Float(s.temperature),
		System: []anthropic.TextBlockParam{
			{Text: systemPrompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		var apiErr *anthropic.Error
		if errors.As(err, &apiErr) {
			return nil, fmt.Errorf("anthropic api error (status %d): %w", apiErr.StatusCode, err)
		}
		return nil, fmt.Errorf("failed to call anthropic api: %w", err)
	}

	var text string
	for _, block := range message.Content {
		if block.Type == "text" {
			text = block.Text
			break
		}
	}
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyCompletion
	}

	return ParseAtoms(text, concept, contentType)
}

func buildPrompt(concept, contentType string, count int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Write %d study atoms of type %q for the concept %q.\n\n", count, contentType, concept)
	b.WriteString("Each atom is a JSON object with these fields:\n")
	b.WriteString(`  "format": one of "recognition", "recall", "cloze", "procedural", "sequencing"` + "\n")
	b.WriteString(`  "difficulty": a number in [0,1], 0.3 for typical items` + "\n")
	b.WriteString(`  "body": the full item text, including the answer after "---"` + "\n")
	b.WriteString(`  "tags": optional short topic tags` + "\n\n")
	b.WriteString("Return a JSON array of these objects and nothing else.")
	return b.String()
}

// ParseAtoms converts the model's JSON reply into atoms. Code fences are
// tolerated even though the prompt forbids them; models add them anyway.
func ParseAtoms(raw, concept, contentType string) ([]models.Atom, error) {
	cleaned := stripFences(raw)

	var generated []generatedAtom
	if err := json.Unmarshal([]byte(cleaned), &generated); err != nil {
		return nil, fmt.Errorf("failed to parse generated atoms: %w", err)
	}

	atoms := make([]models.Atom, 0, len(generated))
	for _, g := range generated {
		if strings.TrimSpace(g.Body) == "" {
			continue
		}
		format := models.PresentationFormat(g.Format)
		switch format {
		case models.FormatRecognition, models.FormatRecall, models.FormatCloze,
			models.FormatProcedural, models.FormatSequencing:
		default:
			format = models.FormatRecall
		}
		difficulty := g.Difficulty
		if difficulty < 0 || difficulty > 1 {
			difficulty = 0.3
		}
		atoms = append(atoms, models.Atom{
			Concept:     concept,
			ContentType: contentType,
			Format:      format,
			Difficulty:  difficulty,
			Body:        g.Body,
			Tags:        models.StringList(g.Tags),
		})
	}
	return atoms, nil
}

func stripFences(raw string) string {
	cleaned := strings.TrimSpace(raw)
	if strings.HasPrefix(cleaned, "```") {
		cleaned = strings.TrimPrefix(cleaned, "```json")
		cleaned = strings.TrimPrefix(cleaned, "```")
		cleaned = strings.TrimSuffix(strings.TrimSpace(cleaned), "```")
		cleaned = strings.TrimSpace(cleaned)
	}
	return cleaned
}
