package dal

import (
	"Neurologix/backend/go/internal/models"
	"Neurologix/backend/go/internal/search_service/rag/catalog"
	"Neurologix/backend/go/internal/search_service/rag/interfaces"
	"Neurologix/backend/go/internal/search_service/rag/schema"
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var baseColumns = map[string]bool{
	schema.ColumnPatientID:      true,
	schema.ColumnTeamID:         true,
	schema.ColumnAssessmentDate: true,
	schema.ColumnAssessmentType: true,
}

// AssessmentDAL runs structured queries against the assessment tables. Table
// and column names are checked against the catalog; values are always bound
// as parameters.
type AssessmentDAL struct {
	db      *gorm.DB
	catalog *catalog.Catalog
}

var _ interfaces.StructuredStore = (*AssessmentDAL)(nil)

// NewAssessmentDAL creates a new AssessmentDAL.
func NewAssessmentDAL(db *gorm.DB, cat *catalog.Catalog) *AssessmentDAL {
	return &AssessmentDAL{db: db, catalog: cat}
}

// Query executes q. A query without scope is rejected before reaching MySQL.
func (dal *AssessmentDAL) Query(ctx context.Context, q schema.StructuredQuery) ([]schema.Row, error) {
	tx, err := dal.build(dal.db.WithContext(ctx), q)
	if err != nil {
		return nil, err
	}

	switch q.Table {
	case catalog.TableSymptom:
		var records []models.SymptomAssessment
		if err := tx.Find(&records).Error; err != nil {
			return nil, fmt.Errorf("query %s: %w", q.Table, err)
		}
		rows := make([]schema.Row, 0, len(records))
		for _, r := range records {
			rows = append(rows, toRow(q, r.ID, r.PatientID, r.TeamID, r.AssessmentType, r.AssessmentDate, r.Metrics()))
		}
		return rows, nil
	case catalog.TableReactionTime:
		var records []models.ReactionTimeTest
		if err := tx.Find(&records).Error; err != nil {
			return nil, fmt.Errorf("query %s: %w", q.Table, err)
		}
		rows := make([]schema.Row, 0, len(records))
		for _, r := range records {
			rows = append(rows, toRow(q, r.ID, r.PatientID, r.TeamID, r.AssessmentType, r.AssessmentDate, r.Metrics()))
		}
		return rows, nil
	}
	return nil, fmt.Errorf("unsupported table %q", q.Table)
}

// build validates q and translates it into a gorm statement on tx.
func (dal *AssessmentDAL) build(tx *gorm.DB, q schema.StructuredQuery) (*gorm.DB, error) {
	if len(q.ScopeTeamIDs) == 0 {
		return nil, schema.ErrScopeViolation
	}
	if q.Table != catalog.TableSymptom && q.Table != catalog.TableReactionTime {
		return nil, fmt.Errorf("unsupported table %q", q.Table)
	}
	for _, c := range q.Columns {
		if !dal.catalog.HasColumn(q.Table, c) {
			return nil, fmt.Errorf("column %q is not queryable on %s", c, q.Table)
		}
	}

	tx = tx.Table(q.Table).Where(schema.ColumnTeamID+" IN ?", q.ScopeTeamIDs)
	for _, p := range q.Predicates {
		if !schema.AllowedOps[p.Op] {
			return nil, fmt.Errorf("unsupported operator %q", p.Op)
		}
		if !baseColumns[p.Column] && !dal.catalog.HasColumn(q.Table, p.Column) {
			return nil, fmt.Errorf("column %q is not queryable on %s", p.Column, q.Table)
		}
		if p.Op == schema.OpIn {
			tx = tx.Where(p.Column+" IN ?", p.Value)
			continue
		}
		tx = tx.Where(p.Column+" "+p.Op+" ?", p.Value)
	}
	for _, o := range q.OrderBy {
		if !baseColumns[o.Column] && !dal.catalog.HasColumn(q.Table, o.Column) {
			return nil, fmt.Errorf("cannot order by %q", o.Column)
		}
		tx = tx.Order(clause.OrderByColumn{Column: clause.Column{Name: o.Column}, Desc: o.Desc})
	}
	// Ties resolve by primary key so results are stable across runs.
	tx = tx.Order(clause.OrderByColumn{Column: clause.Column{Name: "id"}})
	if q.Limit > 0 {
		tx = tx.Limit(q.Limit)
	}
	return tx, nil
}

func toRow(q schema.StructuredQuery, id, patient, team, kind string, date time.Time, metrics map[string]interface{}) schema.Row {
	row := schema.Row{
		Table:          q.Table,
		RowID:          id,
		PatientID:      patient,
		TeamID:         team,
		AssessmentDate: time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, time.UTC),
		AssessmentType: kind,
		Values:         metrics,
	}
	if len(q.Columns) > 0 {
		row.Values = make(map[string]interface{}, len(q.Columns))
		for _, c := range q.Columns {
			if v, ok := metrics[c]; ok {
				row.Values[c] = v
			}
		}
	}
	return row
}
