package dal

import (
	"Neurologix/backend/go/internal/models"
	"Neurologix/backend/go/internal/search_service/rag/interfaces"
	"Neurologix/backend/go/internal/search_service/rag/schema"
	"context"
	"fmt"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// DocumentDAL stores assessment document text in MySQL. It is the DocStore
// used to hydrate semantic hits.
type DocumentDAL struct {
	db *gorm.DB
}

var _ interfaces.DocStore = (*DocumentDAL)(nil)

// NewDocumentDAL creates a new DocumentDAL.
func NewDocumentDAL(db *gorm.DB) *DocumentDAL {
	return &DocumentDAL{db: db}
}

// Add upserts documents by id. Embeddings are not stored here.
func (dal *DocumentDAL) Add(ctx context.Context, docs []*schema.Document) error {
	if len(docs) == 0 {
		return nil
	}
	records := make([]models.AssessmentDocument, 0, len(docs))
	for _, d := range docs {
		records = append(records, toRecord(d))
	}
	result := dal.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		CreateInBatches(records, 100)
	if result.Error != nil {
		return fmt.Errorf("failed to store %d documents: %w", len(docs), result.Error)
	}
	return nil
}

// Get returns the documents with the given ids. Missing ids are absent from the map.
func (dal *DocumentDAL) Get(ctx context.Context, ids []string) (map[string]*schema.Document, error) {
	out := make(map[string]*schema.Document, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var records []models.AssessmentDocument
	if err := dal.db.WithContext(ctx).Where("id IN ?", ids).Find(&records).Error; err != nil {
		return nil, fmt.Errorf("failed to load documents: %w", err)
	}
	for _, r := range records {
		out[r.ID] = fromRecord(r)
	}
	return out, nil
}

func toRecord(d *schema.Document) models.AssessmentDocument {
	meta := make(datatypes.JSONMap, len(d.Metadata))
	for k, v := range d.Metadata {
		meta[k] = v
	}
	return models.AssessmentDocument{
		ID:        d.ID,
		TeamID:    d.Metadata[schema.MetadataKeyTeamID],
		PatientID: d.Metadata[schema.MetadataKeyPatientID],
		Text:      d.Text,
		Metadata:  meta,
	}
}

func fromRecord(r models.AssessmentDocument) *schema.Document {
	meta := make(map[string]string, len(r.Metadata))
	for k, v := range r.Metadata {
		if s, ok := v.(string); ok {
			meta[k] = s
		} else if v != nil {
			meta[k] = fmt.Sprint(v)
		}
	}
	// The indexed columns are authoritative for scope.
	meta[schema.MetadataKeyTeamID] = r.TeamID
	if r.PatientID != "" {
		meta[schema.MetadataKeyPatientID] = r.PatientID
	}
	return &schema.Document{ID: r.ID, Text: r.Text, Metadata: meta}
}
