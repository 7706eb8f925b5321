package docstore

import (
	"Neurologix/backend/go/internal/search_service/rag/interfaces"
	"Neurologix/backend/go/internal/search_service/rag/schema"
	"context"
	"sync"
)

// InMemoryDocStore is a thread-safe, in-memory implementation of the DocStore interface.
// Scope is carried in document metadata, so keys are plain document ids.
type InMemoryDocStore struct {
	mu   sync.RWMutex
	docs map[string]*schema.Document
}

// NewInMemoryDocStore creates a new instance of InMemoryDocStore.
func NewInMemoryDocStore() *InMemoryDocStore {
	return &InMemoryDocStore{
		docs: make(map[string]*schema.Document),
	}
}

// Add stores documents, replacing any with the same id. Embeddings are not kept.
func (s *InMemoryDocStore) Add(ctx context.Context, docs []*schema.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, doc := range docs {
		if doc == nil {
			continue
		}
		cp := *doc
		cp.Embedding = nil
		s.docs[doc.ID] = &cp
	}
	return nil
}

// Get retrieves documents by id. Unknown ids are absent from the result.
func (s *InMemoryDocStore) Get(ctx context.Context, ids []string) (map[string]*schema.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make(map[string]*schema.Document, len(ids))
	for _, id := range ids {
		if doc, ok := s.docs[id]; ok {
			result[id] = doc
		}
	}
	return result, nil
}

// Delete removes documents by id.
func (s *InMemoryDocStore) Delete(ctx context.Context, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range ids {
		delete(s.docs, id)
	}
	return nil
}

// compile-time check to ensure InMemoryDocStore implements the DocStore interface
var _ interfaces.DocStore = (*InMemoryDocStore)(nil)
