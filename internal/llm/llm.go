package llm

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// TokenUsage tracks the tokens consumed by a request.
type TokenUsage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
	Model            string
}

// Call describes one finished generation, for usage accounting.
type Call struct {
	Caller  string
	Usage   TokenUsage
	Latency time.Duration
}

// ContentResponse contains the generated text and metadata like token usage.
type ContentResponse struct {
	Content string
	Usage   TokenUsage
}

// TextGenerator is an interface for generating text from a prompt.
type TextGenerator interface {
	GenerateContent(ctx context.Context, prompt string) (ContentResponse, error)
}

// Fallback tries each generator in order and returns the first success.
type Fallback []TextGenerator

// GenerateContent implements TextGenerator.
func (f Fallback) GenerateContent(ctx context.Context, prompt string) (ContentResponse, error) {
	if len(f) == 0 {
		return ContentResponse{}, fmt.Errorf("no text generator configured")
	}
	var errs []error
	for _, g := range f {
		resp, err := g.GenerateContent(ctx, prompt)
		if err == nil {
			return resp, nil
		}
		if ctx.Err() != nil {
			return ContentResponse{}, ctx.Err()
		}
		errs = append(errs, err)
	}
	return ContentResponse{}, fmt.Errorf("all text generators failed: %w", errors.Join(errs...))
}
