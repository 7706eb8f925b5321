package embeddings

import (
	"Neurologix/backend/go/internal/embedding"
	"Neurologix/backend/go/internal/search_service/rag/interfaces"
	"context"
	"fmt"
)

// ProviderModel adapts a provider client from internal/embedding to the
// pipeline's EmbeddingModel interface.
type ProviderModel struct {
	client embedding.Embedding
}

var _ interfaces.EmbeddingModel = (*ProviderModel)(nil)

// NewProviderModel wraps client.
func NewProviderModel(client embedding.Embedding) *ProviderModel {
	return &ProviderModel{client: client}
}

// Embed embeds texts in one provider call.
func (m *ProviderModel) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	if len(texts) == 1 {
		vec, err := m.client.Embed(ctx, texts[0])
		if err != nil {
			return nil, err
		}
		return [][]float32{vec}, nil
	}
	vecs, err := m.client.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, err
	}
	if len(vecs) != len(texts) {
		return nil, fmt.Errorf("embedding provider returned %d vectors for %d texts", len(vecs), len(texts))
	}
	return vecs, nil
}
