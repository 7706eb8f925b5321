package vectorstore

import (
	"Neurologix/backend/go/internal/search_service/rag/interfaces"
	"Neurologix/backend/go/internal/search_service/rag/schema"
	"context"
	"fmt"
	"sort"
	"sync"
)

// InMemoryStore is a brute-force vector store using squared L2 distance, the
// same metric the Milvus collection is indexed with.
type InMemoryStore struct {
	mu        sync.RWMutex
	dimension int
	entries   []entry
}

type entry struct {
	id       string
	vector   []float32
	metadata map[string]string
}

// NewInMemoryStore creates a store for vectors of the given dimension.
func NewInMemoryStore(dimension int) *InMemoryStore {
	return &InMemoryStore{dimension: dimension}
}

// Dimension returns the configured vector dimension.
func (s *InMemoryStore) Dimension() int {
	return s.dimension
}

// Add stores document vectors. Every vector must match the store dimension.
func (s *InMemoryStore) Add(ctx context.Context, docs []*schema.Document) error {
	for _, d := range docs {
		if len(d.Embedding) != s.dimension {
			return fmt.Errorf("document %s: %w", d.ID, schema.ErrDimensionMismatch)
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, d := range docs {
		meta := make(map[string]string, len(d.Metadata))
		for k, v := range d.Metadata {
			meta[k] = v
		}
		s.entries = append(s.entries, entry{id: d.ID, vector: d.Embedding, metadata: meta})
	}
	return nil
}

// Search returns the topK nearest documents inside the filter, closest first.
func (s *InMemoryStore) Search(ctx context.Context, embedding []float32, topK int, filter schema.VectorFilter) ([]schema.VectorHit, error) {
	if len(filter.TeamIDs) == 0 {
		return nil, schema.ErrScopeViolation
	}
	if len(embedding) != s.dimension {
		return nil, schema.ErrDimensionMismatch
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	teams := toSet(filter.TeamIDs)
	patients := toSet(filter.PatientIDs)

	s.mu.RLock()
	hits := make([]schema.VectorHit, 0, len(s.entries))
	for _, e := range s.entries {
		if !teams[e.metadata[schema.MetadataKeyTeamID]] {
			continue
		}
		if len(patients) > 0 && !patients[e.metadata[schema.MetadataKeyPatientID]] {
			continue
		}
		hits = append(hits, schema.VectorHit{DocumentID: e.id, Distance: squaredL2(e.vector, embedding), Metadata: e.metadata})
	}
	s.mu.RUnlock()

	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Distance != hits[j].Distance {
			return hits[i].Distance < hits[j].Distance
		}
		return hits[i].DocumentID < hits[j].DocumentID
	})
	if topK > 0 && len(hits) > topK {
		hits = hits[:topK]
	}
	return hits, nil
}

func squaredL2(a, b []float32) float64 {
	sum := 0.0
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return sum
}

func toSet(ids []string) map[string]bool {
	set := make(map[string]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set
}

var _ interfaces.VectorStore = (*InMemoryStore)(nil)
