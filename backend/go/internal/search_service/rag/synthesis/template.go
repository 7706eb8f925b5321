package synthesis

import (
	"Neurologix/backend/go/internal/search_service/rag/interfaces"
	"context"
	"fmt"
	"regexp"
	"strings"
)

var evidenceLine = regexp.MustCompile(`^\[(\d+)\] \(([^)]*)\) (.*)$`)

// TemplateGenerator is a deterministic generator that restates each evidence
// line with its citation marker. It is selected with the "template" provider
// and needs no model.
type TemplateGenerator struct{}

var _ interfaces.LLM = TemplateGenerator{}

// NewTemplateGenerator creates a TemplateGenerator.
func NewTemplateGenerator() TemplateGenerator {
	return TemplateGenerator{}
}

// Generate returns the full answer. Intent extraction is not supported and
// yields an empty JSON object.
func (TemplateGenerator) Generate(ctx context.Context, req interfaces.GenerationRequest) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if req.Mode == interfaces.ModeExtractIntent {
		return "{}", nil
	}
	return render(req.Evidence), nil
}

// Stream emits the answer word by word.
func (t TemplateGenerator) Stream(ctx context.Context, req interfaces.GenerationRequest) (<-chan interfaces.Fragment, error) {
	text, err := t.Generate(ctx, req)
	if err != nil {
		return nil, err
	}
	out := make(chan interfaces.Fragment)
	go func() {
		defer close(out)
		for _, word := range strings.SplitAfter(text, " ") {
			select {
			case <-ctx.Done():
				return
			case out <- interfaces.Fragment{Text: word}:
			}
		}
	}()
	return out, nil
}

func render(evidence string) string {
	var sentences []string
	for _, line := range strings.Split(evidence, "\n") {
		m := evidenceLine.FindStringSubmatch(strings.TrimSpace(line))
		if m == nil {
			continue
		}
		body := strings.TrimRight(m[3], ". ")
		sentences = append(sentences, fmt.Sprintf("%s [%s].", body, m[1]))
	}
	if len(sentences) == 0 {
		return ""
	}
	return "Based on the available records: " + strings.Join(sentences, " ")
}
