package intent

import (
	"Neurologix/backend/go/internal/search_service/rag/catalog"
	"Neurologix/backend/go/internal/search_service/rag/interfaces"
	"Neurologix/backend/go/internal/search_service/rag/schema"
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// LLMExtractor asks the language generation service for slots in extract-intent mode.
type LLMExtractor struct {
	llm     interfaces.LLM
	catalog *catalog.Catalog
}

var _ Extractor = (*LLMExtractor)(nil)

// NewLLMExtractor creates an extractor; the catalog's metric names are sent as context.
func NewLLMExtractor(llm interfaces.LLM, cat *catalog.Catalog) *LLMExtractor {
	return &LLMExtractor{llm: llm, catalog: cat}
}

// Extract returns the model's slot guess. The response must contain one JSON object.
func (e *LLMExtractor) Extract(ctx context.Context, question string) (*Extraction, error) {
	raw, err := e.llm.Generate(ctx, interfaces.GenerationRequest{
		Mode:     interfaces.ModeExtractIntent,
		Question: question,
		Evidence: e.metricList(),
	})
	if err != nil {
		return nil, fmt.Errorf("extract-intent generation failed: %w", err)
	}

	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("extract-intent response has no JSON object")
	}
	var ext Extraction
	if err := json.Unmarshal([]byte(raw[start:end+1]), &ext); err != nil {
		return nil, fmt.Errorf("failed to decode extract-intent response: %w", err)
	}
	return &ext, nil
}

func (e *LLMExtractor) metricList() string {
	var b strings.Builder
	b.WriteString("Available metrics:\n")
	for _, f := range e.catalog.Fields() {
		if f.Type != schema.FieldNumeric {
			continue
		}
		fmt.Fprintf(&b, "- %s (%s)\n", f.Name, strings.Join(f.Synonyms, ", "))
	}
	fmt.Fprintf(&b, "Time anchors: %s, %s\n", schema.AnchorBaseline, schema.AnchorPostInjury)
	return b.String()
}
