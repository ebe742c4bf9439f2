// Package narrator turns phase results into a short story for the change feed.
package narrator

import (
	"context"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
	"github.com/tmc/langchaingo/schema"
)

const systemPrompt = `You narrate a social-deduction game set in a council of virtues and vices. ` +
	`Given what just happened, tell it in two or three atmospheric sentences. Never reveal anyone's role.`

// Recap is what happened when a game entered a phase.
type Recap struct {
	GameCode string
	Day      int
	Phase    string
	Events   []string
}

// Empty reports whether there is nothing worth narrating.
func (r Recap) Empty() bool { return len(r.Events) == 0 }

// Narrator generates stories with a language model.
type Narrator struct {
	llm      llms.Model
	callOpts []llms.CallOption
}

// New builds a narrator for provider ("ollama" or "openai"). An empty provider
// disables narration and returns nil.
func New(provider, model, serverURL string, opts ...llms.CallOption) (*Narrator, error) {
	switch provider {
	case "":
		return nil, nil
	case "ollama":
		o := []ollama.Option{ollama.WithModel(model)}
		if serverURL != "" {
			o = append(o, ollama.WithServerURL(serverURL))
		}
		llm, err := ollama.New(o...)
		if err != nil {
			return nil, fmt.Errorf("narrator: ollama %s: %w", model, err)
		}
		return WithModel(llm, opts...), nil
	case "openai":
		o := []openai.Option{openai.WithModel(model)}
		if serverURL != "" {
			o = append(o, openai.WithBaseURL(serverURL))
		}
		llm, err := openai.New(o...)
		if err != nil {
			return nil, fmt.Errorf("narrator: openai %s: %w", model, err)
		}
		return WithModel(llm, opts...), nil
	default:
		return nil, fmt.Errorf("narrator: unknown provider %q", provider)
	}
}

// WithModel wraps an already constructed model.
func WithModel(llm llms.Model, opts ...llms.CallOption) *Narrator {
	return &Narrator{llm: llm, callOpts: opts}
}

// Narrate streams the story for r through onChunk and returns the full text.
func (n *Narrator) Narrate(ctx context.Context, r Recap, onChunk func(string)) (string, error) {
	messages := []llms.MessageContent{
		llms.TextParts(schema.ChatMessageTypeSystem, systemPrompt),
		llms.TextParts(schema.ChatMessageTypeHuman, prompt(r)),
	}

	var full strings.Builder
	opts := append(append([]llms.CallOption(nil), n.callOpts...), llms.WithStreamingFunc(func(_ context.Context, chunk []byte) error {
		text := string(chunk)
		full.WriteString(text)
		if onChunk != nil {
			onChunk(text)
		}
		return nil
	}))

	resp, err := n.llm.GenerateContent(ctx, messages, opts...)
	if err != nil {
		return "", err
	}
	if full.Len() == 0 && resp != nil && len(resp.Choices) > 0 {
		full.WriteString(resp.Choices[0].Content)
	}
	return strings.TrimSpace(full.String()), nil
}

func prompt(r Recap) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Day %d, phase %s.\n", r.Day, r.Phase)
	for _, e := range r.Events {
		b.WriteString("- ")
		b.WriteString(e)
		b.WriteByte('\n')
	}
	b.WriteString("\nNarrate this moment.")
	return b.String()
}
