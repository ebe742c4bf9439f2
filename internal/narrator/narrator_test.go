package narrator

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/tmc/langchaingo/llms"
)

type fakeModel struct {
	chunks []string
	reply  string
	err    error
	seen   []llms.MessageContent
}

func (f *fakeModel) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	f.seen = messages
	if f.err != nil {
		return nil, f.err
	}
	var o llms.CallOptions
	for _, opt := range options {
		opt(&o)
	}
	for _, c := range f.chunks {
		if o.StreamingFunc != nil {
			if err := o.StreamingFunc(ctx, []byte(c)); err != nil {
				return nil, err
			}
		}
	}
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: f.reply}}}, nil
}

func (f *fakeModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, f, prompt, options...)
}

func TestNarrateStreams(t *testing.T) {
	m := &fakeModel{chunks: []string{"The council ", "fell silent. "}}
	n := WithModel(m)
	var got []string
	text, err := n.Narrate(context.Background(), Recap{Day: 2, Phase: "Reflection_MiniGame", Events: []string{"Ada was found dead"}}, func(s string) {
		got = append(got, s)
	})
	if err != nil {
		t.Fatal(err)
	}
	if text != "The council fell silent." || len(got) != 2 {
		t.Fatalf("text=%q chunks=%v", text, got)
	}
	human, ok := m.seen[1].Parts[0].(llms.TextContent)
	if !ok || !strings.Contains(human.Text, "Ada was found dead") || !strings.Contains(human.Text, "Day 2") {
		t.Fatalf("prompt missing recap: %+v", m.seen[1])
	}
}

func TestNarrateFallsBackToResponse(t *testing.T) {
	text, err := WithModel(&fakeModel{reply: " quiet night "}).Narrate(context.Background(), Recap{Events: []string{"x"}}, nil)
	if err != nil || text != "quiet night" {
		t.Fatalf("text=%q err=%v", text, err)
	}
}

func TestNarrateError(t *testing.T) {
	boom := errors.New("offline")
	if _, err := WithModel(&fakeModel{err: boom}).Narrate(context.Background(), Recap{}, nil); !errors.Is(err, boom) {
		t.Fatalf("expected model error, got %v", err)
	}
}

func TestNewProviders(t *testing.T) {
	n, err := New("", "m", "")
	if err != nil || n != nil {
		t.Fatalf("empty provider must disable narration: %v %v", n, err)
	}
	if _, err := New("carrier-pigeon", "m", ""); err == nil {
		t.Fatal("expected unknown provider error")
	}
	if n, err := New("ollama", "llama3.2", "http://127.0.0.1:11434"); err != nil || n == nil {
		t.Fatalf("ollama client: %v", err)
	}
}
