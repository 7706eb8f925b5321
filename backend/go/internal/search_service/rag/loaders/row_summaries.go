package loaders

import (
	"Neurologix/backend/go/internal/search_service/rag/catalog"
	"Neurologix/backend/go/internal/search_service/rag/schema"
	"fmt"
	"strings"
)

// RowSummaries renders each structured row as a short narrative document so
// that semantic questions can reach assessments that have no clinician notes.
// Metrics are listed in catalog order; the document id is derived from the row
// so re-indexing overwrites instead of duplicating.
func RowSummaries(rows []schema.Row, cat *catalog.Catalog) []*schema.Document {
	docs := make([]*schema.Document, 0, len(rows))
	for _, r := range rows {
		var parts []string
		for _, f := range cat.Fields() {
			if f.Table != r.Table {
				continue
			}
			v, ok := r.Values[f.Name]
			if !ok || v == nil {
				continue
			}
			part := fmt.Sprintf("%s %v", strings.ReplaceAll(f.Name, "_", " "), v)
			if f.Unit != "" {
				part += " " + f.Unit
			}
			parts = append(parts, part)
		}

		kind := strings.ReplaceAll(r.AssessmentType, "_", "-")
		text := fmt.Sprintf("%s %s %s on %s: %s.", r.PatientID, kind, describeTable(r.Table),
			r.AssessmentDate.Format(schema.DateLayout), strings.Join(parts, ", "))

		docs = append(docs, &schema.Document{
			ID:   "row-" + r.Table + "-" + r.RowID,
			Text: text,
			Metadata: map[string]string{
				schema.MetadataKeyTeamID:         r.TeamID,
				schema.MetadataKeyPatientID:      r.PatientID,
				schema.MetadataKeyAssessmentDate: r.AssessmentDate.Format(schema.DateLayout),
				schema.MetadataKeyAssessmentType: r.AssessmentType,
				schema.MetadataKeySourceTable:    r.Table,
				schema.MetadataKeySourceRowID:    r.RowID,
			},
		})
	}
	return docs
}

func describeTable(table string) string {
	switch table {
	case catalog.TableSymptom:
		return "symptom assessment"
	case catalog.TableReactionTime:
		return "reaction time test"
	}
	return strings.ReplaceAll(table, "_", " ")
}
