package interfaces

import (
	"Neurologix/backend/go/internal/search_service/rag/schema"
	"context"
)

// Loader reads assessment documents from a source (file, database) for indexing.
type Loader interface {
	Load(ctx context.Context, path string) ([]*schema.Document, error)
}

// StructuredStore executes scoped, parameterized read queries against the
// assessment tables. Implementations must reject queries lacking a scope filter.
type StructuredStore interface {
	Query(ctx context.Context, q schema.StructuredQuery) ([]schema.Row, error)
}

// DocStore is the interface for storing and retrieving assessment documents by their ID.
type DocStore interface {
	Add(ctx context.Context, docs []*schema.Document) error
	Get(ctx context.Context, ids []string) (map[string]*schema.Document, error)
}

// VectorStore is the interface for storing and querying document vectors.
type VectorStore interface {
	Add(ctx context.Context, docs []*schema.Document) error
	Search(ctx context.Context, embedding []float32, topK int, filter schema.VectorFilter) ([]schema.VectorHit, error)
	// Dimension is the configured vector dimension of the store.
	Dimension() int
}

// EmbeddingModel is the interface for a text embedding model.
type EmbeddingModel interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// GenerationMode selects what the language generation service is asked to do.
type GenerationMode string

const (
	ModeExtractIntent    GenerationMode = "extract-intent"
	ModeSynthesizeAnswer GenerationMode = "synthesize-answer"
)

// GenerationRequest is a question plus its evidence serialized as text.
type GenerationRequest struct {
	Mode     GenerationMode
	Question string
	Evidence string
}

// Fragment is one streamed piece of generated text. A non-nil Err ends the stream.
type Fragment struct {
	Text string
	Err  error
}

// LLM is the language generation service.
type LLM interface {
	Generate(ctx context.Context, req GenerationRequest) (string, error)
	// Stream returns incremental fragments; the channel is closed when generation ends.
	Stream(ctx context.Context, req GenerationRequest) (<-chan Fragment, error)
}

// AuditSink receives one audit event per answered request.
type AuditSink interface {
	Publish(ctx context.Context, event schema.AuditEvent) error
}
