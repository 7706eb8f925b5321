package pipeline

import (
	"Neurologix/backend/go/internal/search_service/rag/interfaces"
	"Neurologix/backend/go/internal/search_service/rag/schema"
	"Neurologix/backend/go/pkg/logger"
	"context"
	"fmt"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// DefaultIndexBatchSize is the number of documents embedded per call.
const DefaultIndexBatchSize = 32

// Progress reports the state of an indexing run.
type Progress struct {
	Message  string
	Progress int
}

// IndexingPipeline embeds assessment documents and stores them in the doc
// store and the vector store.
type IndexingPipeline struct {
	embedder    interfaces.EmbeddingModel
	docStore    interfaces.DocStore
	vectorStore interfaces.VectorStore
	batchSize   int
	log         *logger.Logger
}

// NewIndexingPipeline creates a new IndexingPipeline.
func NewIndexingPipeline(
	embedder interfaces.EmbeddingModel,
	docStore interfaces.DocStore,
	vectorStore interfaces.VectorStore,
	batchSize int,
	log *logger.Logger,
) *IndexingPipeline {
	if batchSize <= 0 {
		batchSize = DefaultIndexBatchSize
	}
	if log == nil {
		log = logger.Discard()
	}
	return &IndexingPipeline{
		embedder:    embedder,
		docStore:    docStore,
		vectorStore: vectorStore,
		batchSize:   batchSize,
		log:         log,
	}
}

// Run indexes docs and streams progress updates. progress may be nil; when
// set it is closed when Run returns.
func (p *IndexingPipeline) Run(ctx context.Context, docs []*schema.Document, progress chan<- Progress) error {
	report := func(msg string, pct int) {
		if progress == nil {
			return
		}
		select {
		case progress <- Progress{Message: msg, Progress: pct}:
		case <-ctx.Done():
		}
	}
	if progress != nil {
		defer close(progress)
	}

	// 1. Validate scope metadata; unscoped documents would be invisible to every user.
	for i, doc := range docs {
		if doc.ID == "" {
			doc.ID = uuid.NewString()
		}
		if doc.Metadata[schema.MetadataKeyTeamID] == "" {
			return fmt.Errorf("document %d (%s) has no %s", i, doc.ID, schema.MetadataKeyTeamID)
		}
	}
	p.log.Info(fmt.Sprintf("Starting indexing of %d documents", len(docs)))
	report(fmt.Sprintf("Validated %d documents", len(docs)), 10)

	// 2. Embed in batches
	if dim := p.vectorStore.Dimension(); dim <= 0 {
		return schema.NewError(schema.ConfigurationError, "vector store has no dimension", nil)
	}
	for start := 0; start < len(docs); start += p.batchSize {
		end := start + p.batchSize
		if end > len(docs) {
			end = len(docs)
		}
		texts := make([]string, 0, end-start)
		for _, doc := range docs[start:end] {
			texts = append(texts, doc.Text)
		}
		vecs, err := p.embedder.Embed(ctx, texts)
		if err != nil {
			p.log.Error(fmt.Sprintf("Failed to embed documents %d-%d: %v", start, end, err))
			return err
		}
		if len(vecs) != len(texts) {
			return fmt.Errorf("embedding service returned %d vectors for %d texts", len(vecs), len(texts))
		}
		for i, doc := range docs[start:end] {
			if len(vecs[i]) != p.vectorStore.Dimension() {
				return schema.NewError(schema.ConfigurationError,
					fmt.Sprintf("embedding dimension %d does not match vector store dimension %d", len(vecs[i]), p.vectorStore.Dimension()),
					schema.ErrDimensionMismatch)
			}
			doc.Embedding = vecs[i]
		}
		report(fmt.Sprintf("Embedded %d/%d documents", end, len(docs)), 10+50*end/max(len(docs), 1))
	}

	// 3. Store concurrently
	eg, gCtx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		p.log.Info("Adding documents to DocStore...")
		if err := p.docStore.Add(gCtx, docs); err != nil {
			p.log.Error(fmt.Sprintf("Failed to add documents to DocStore: %v", err))
			return err
		}
		report("Successfully added documents to DocStore", 80)
		return nil
	})
	eg.Go(func() error {
		p.log.Info("Adding documents to VectorStore...")
		if err := p.vectorStore.Add(gCtx, docs); err != nil {
			p.log.Error(fmt.Sprintf("Failed to add documents to VectorStore: %v", err))
			return err
		}
		report("Successfully added documents to VectorStore", 95)
		return nil
	})
	if err := eg.Wait(); err != nil {
		return err
	}

	p.log.Info(fmt.Sprintf("Successfully indexed %d documents", len(docs)))
	report(fmt.Sprintf("Successfully indexed %d documents", len(docs)), 100)
	return nil
}
