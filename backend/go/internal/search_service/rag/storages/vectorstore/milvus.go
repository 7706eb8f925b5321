package vectorstore

import (
	"Neurologix/backend/go/internal/database/milvus"
	"Neurologix/backend/go/internal/search_service/rag/interfaces"
	"Neurologix/backend/go/internal/search_service/rag/schema"
	"Neurologix/backend/go/pkg/logger"
	"context"
	"fmt"
	"strings"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"
)

const (
	// Schema fields for the Milvus collection that we filter on or output.
	FieldID        = "id"
	FieldEmbedding = "embedding"
)

// metadataFields are stored as VarChar columns next to the vector.
var metadataFields = []string{
	schema.MetadataKeyTeamID,
	schema.MetadataKeyPatientID,
	schema.MetadataKeyAssessmentDate,
	schema.MetadataKeyAssessmentType,
	schema.MetadataKeySourceTable,
	schema.MetadataKeySourceRowID,
}

// collection is the part of *milvus.MilvusClient the store uses.
type collection interface {
	Insert(ctx context.Context, columns ...entity.Column) error
	Search(ctx context.Context, expr string, outputFields []string, vector []float32, topK int) ([]client.SearchResult, error)
	Dimension() int
}

// MilvusStore is the VectorStore backed by a Milvus collection indexed with L2.
type MilvusStore struct {
	log        *logger.Logger
	collection collection
}

// compile-time check to ensure MilvusStore implements the VectorStore interface
var _ interfaces.VectorStore = (*MilvusStore)(nil)

// NewMilvusStore creates a new MilvusStore over the project's Milvus client.
func NewMilvusStore(milvusClient *milvus.MilvusClient, log *logger.Logger) (*MilvusStore, error) {
	if milvusClient == nil || milvusClient.Client == nil {
		return nil, fmt.Errorf("milvus client is not initialized")
	}
	return newMilvusStore(milvusClient, log), nil
}

func newMilvusStore(c collection, log *logger.Logger) *MilvusStore {
	if log == nil {
		log = logger.Discard()
	}
	return &MilvusStore{log: log, collection: c}
}

// Dimension returns the vector dimension of the collection schema.
func (s *MilvusStore) Dimension() int {
	return s.collection.Dimension()
}

// Add inserts document vectors together with their scope metadata.
func (s *MilvusStore) Add(ctx context.Context, docs []*schema.Document) error {
	if len(docs) == 0 {
		return nil
	}
	dim := s.Dimension()
	ids := make([]string, len(docs))
	embeddings := make([][]float32, len(docs))
	meta := make(map[string][]string, len(metadataFields))
	for i, doc := range docs {
		if len(doc.Embedding) != dim {
			return fmt.Errorf("document %s: %w", doc.ID, schema.ErrDimensionMismatch)
		}
		ids[i] = doc.ID
		embeddings[i] = doc.Embedding
		for _, f := range metadataFields {
			meta[f] = append(meta[f], doc.Metadata[f])
		}
	}

	columns := []entity.Column{
		entity.NewColumnVarChar(FieldID, ids),
		entity.NewColumnFloatVector(FieldEmbedding, dim, embeddings),
	}
	for _, f := range metadataFields {
		columns = append(columns, entity.NewColumnVarChar(f, meta[f]))
	}

	s.log.Info(fmt.Sprintf("Inserting %d documents into Milvus", len(docs)))
	if err := s.collection.Insert(ctx, columns...); err != nil {
		s.log.Error(fmt.Sprintf("Failed to insert data into Milvus: %v", err))
		return err
	}
	return nil
}

// Search performs a filtered L2 search. Hits are returned closest first.
func (s *MilvusStore) Search(ctx context.Context, embedding []float32, topK int, filter schema.VectorFilter) ([]schema.VectorHit, error) {
	if len(filter.TeamIDs) == 0 {
		return nil, schema.ErrScopeViolation
	}
	if len(embedding) != s.Dimension() {
		return nil, schema.ErrDimensionMismatch
	}

	expr := buildFilterExpression(filter)
	s.log.Debug(fmt.Sprintf("Querying Milvus with filter: '%s'", expr))
	results, err := s.collection.Search(ctx, expr, append([]string{FieldID}, metadataFields...), embedding, topK)
	if err != nil {
		return nil, err
	}

	var hits []schema.VectorHit
	for _, res := range results {
		findColumn := func(name string) *entity.ColumnVarChar {
			for _, field := range res.Fields {
				if field.Name() == name {
					if col, ok := field.(*entity.ColumnVarChar); ok {
						return col
					}
				}
			}
			return nil
		}

		idCol := findColumn(FieldID)
		if idCol == nil {
			if col, ok := res.IDs.(*entity.ColumnVarChar); ok {
				idCol = col
			}
		}
		if idCol == nil {
			s.log.Warn("Search result is missing ID field or has wrong type, skipping.")
			continue
		}
		idData := idCol.Data()
		columns := make(map[string][]string, len(metadataFields))
		for _, f := range metadataFields {
			if col := findColumn(f); col != nil {
				columns[f] = col.Data()
			}
		}

		for i := 0; i < res.ResultCount && i < len(idData) && i < len(res.Scores); i++ {
			meta := make(map[string]string, len(metadataFields))
			for f, data := range columns {
				if i < len(data) && data[i] != "" {
					meta[f] = data[i]
				}
			}
			hits = append(hits, schema.VectorHit{
				DocumentID: idData[i],
				Distance:   float64(res.Scores[i]),
				Metadata:   meta,
			})
		}
	}
	return hits, nil
}

// buildFilterExpression renders the scope filter as a Milvus boolean expression.
func buildFilterExpression(filter schema.VectorFilter) string {
	conditions := []string{fmt.Sprintf("%s in %s", schema.MetadataKeyTeamID, milvus.QuoteList(filter.TeamIDs))}
	if len(filter.PatientIDs) > 0 {
		conditions = append(conditions, fmt.Sprintf("%s in %s", schema.MetadataKeyPatientID, milvus.QuoteList(filter.PatientIDs)))
	}
	return strings.Join(conditions, " && ")
}
