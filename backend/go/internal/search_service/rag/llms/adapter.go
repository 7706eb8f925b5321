package llms

import (
	"Neurologix/backend/go/internal/llm"
	"Neurologix/backend/go/internal/models"
	"Neurologix/backend/go/internal/search_service/rag/interfaces"
	"Neurologix/backend/go/pkg/circuitbreaker"
	"context"
	"errors"
	"fmt"
)

// errEmptyResponse marks a provider reply without text.
var errEmptyResponse = errors.New("llm response was empty")

// AdapterOption configures a ProviderAdapter.
type AdapterOption func(*ProviderAdapter)

// WithBreaker guards provider calls. While the circuit is open, calls fail
// immediately and the synthesizer reports a generation failure without
// waiting on the provider.
func WithBreaker(cb circuitbreaker.CircuitBreaker) AdapterOption {
	return func(a *ProviderAdapter) {
		a.breaker = cb
	}
}

// ProviderAdapter adapts a provider client from internal/llm to the
// pipeline's LLM interface.
type ProviderAdapter struct {
	client  llm.LLM
	breaker circuitbreaker.CircuitBreaker
}

// compile-time check to ensure ProviderAdapter implements the LLM interface
var _ interfaces.LLM = (*ProviderAdapter)(nil)

// NewProviderAdapter creates a new adapter.
func NewProviderAdapter(client llm.LLM, opts ...AdapterOption) *ProviderAdapter {
	a := &ProviderAdapter{client: client}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *ProviderAdapter) guard(call func() error) error {
	if a.breaker == nil {
		return call()
	}
	return a.breaker.Execute(call)
}

// Generate renders the prompt for req.Mode, calls the provider and returns the full text.
func (a *ProviderAdapter) Generate(ctx context.Context, req interfaces.GenerationRequest) (string, error) {
	prompt, err := BuildPrompt(req)
	if err != nil {
		return "", err
	}
	var text string
	err = a.guard(func() error {
		resp, err := a.client.GenerateContent(ctx, prompt)
		if err != nil {
			return err
		}
		if text = resp.Text(); text == "" {
			return errEmptyResponse
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("llm client failed to generate content: %w", err)
	}
	return text, nil
}

// Stream starts a streaming generation. Provider errors, including those
// reported mid-stream, arrive as a final Fragment with Err set.
func (a *ProviderAdapter) Stream(ctx context.Context, req interfaces.GenerationRequest) (<-chan interfaces.Fragment, error) {
	prompt, err := BuildPrompt(req)
	if err != nil {
		return nil, err
	}
	var upstream <-chan *models.GenerateContentResponse
	err = a.guard(func() error {
		var err error
		upstream, err = a.client.GenerateContentStream(ctx, prompt)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("llm client failed to start stream: %w", err)
	}

	out := make(chan interfaces.Fragment)
	go func() {
		defer close(out)
		for resp := range upstream {
			frag := interfaces.Fragment{Text: resp.Text(), Err: resp.Err}
			if frag.Err == nil && frag.Text == "" {
				continue
			}
			select {
			case out <- frag:
			case <-ctx.Done():
				// Drain so the provider goroutine can exit.
				for range upstream {
				}
				return
			}
			if frag.Err != nil {
				return
			}
		}
	}()
	return out, nil
}
