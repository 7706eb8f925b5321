package dal

import (
	"Neurologix/backend/go/internal/search_service/rag/catalog"
	"Neurologix/backend/go/internal/search_service/rag/schema"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
)

// dryRunDB returns a gorm handle that renders SQL without connecting.
func dryRunDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(mysql.New(mysql.Config{
		DSN:                       "user:pass@tcp(127.0.0.1:3306)/neurologix?parseTime=True",
		SkipInitializeWithVersion: true,
	}), &gorm.Config{DryRun: true, DisableAutomaticPing: true})
	require.NoError(t, err)
	return db
}

func TestAssessmentDAL_BuildsScopedParameterizedSQL(t *testing.T) {
	db := dryRunDB(t)
	dal := NewAssessmentDAL(db, catalog.Default())

	q := schema.StructuredQuery{
		Table:        catalog.TableSymptom,
		Columns:      []string{"headache_severity"},
		ScopeTeamIDs: []string{"LSU_TIGERS"},
		Predicates: []schema.Predicate{
			{Column: schema.ColumnPatientID, Op: schema.OpIn, Value: []string{"P001"}},
			{Column: schema.ColumnAssessmentDate, Op: schema.OpGte, Value: time.Date(2024, 8, 1, 0, 0, 0, 0, time.UTC)},
			{Column: "headache_severity", Op: schema.OpGte, Value: 4},
		},
		OrderBy: []schema.Order{{Column: schema.ColumnAssessmentDate, Desc: true}},
		Limit:   10,
	}
	sql := db.ToSQL(func(tx *gorm.DB) *gorm.DB {
		built, err := dal.build(tx, q)
		require.NoError(t, err)
		return built.Find(&[]map[string]interface{}{})
	})

	assert.Contains(t, sql, "FROM `symptom_assessments`")
	assert.Contains(t, sql, "team_id IN ('LSU_TIGERS')")
	assert.Contains(t, sql, "patient_id IN ('P001')")
	assert.Contains(t, sql, "headache_severity >= 4")
	assert.Contains(t, sql, "ORDER BY `assessment_date` DESC,`id`")
	assert.Contains(t, sql, "LIMIT 10")
}

func TestAssessmentDAL_Rejections(t *testing.T) {
	dal := NewAssessmentDAL(dryRunDB(t), catalog.Default())
	ctx := context.Background()
	scope := []string{"LSU_TIGERS"}

	_, err := dal.Query(ctx, schema.StructuredQuery{Table: catalog.TableSymptom})
	assert.True(t, errors.Is(err, schema.ErrScopeViolation))

	_, err = dal.Query(ctx, schema.StructuredQuery{Table: "users", ScopeTeamIDs: scope})
	assert.ErrorContains(t, err, "unsupported table")

	_, err = dal.Query(ctx, schema.StructuredQuery{Table: catalog.TableSymptom, ScopeTeamIDs: scope, Columns: []string{"password"}})
	assert.ErrorContains(t, err, "not queryable")

	_, err = dal.Query(ctx, schema.StructuredQuery{
		Table:        catalog.TableSymptom,
		ScopeTeamIDs: scope,
		Predicates:   []schema.Predicate{{Column: "headache_severity", Op: "; DROP TABLE", Value: 1}},
	})
	assert.ErrorContains(t, err, "unsupported operator")

	_, err = dal.Query(ctx, schema.StructuredQuery{
		Table:        catalog.TableReactionTime,
		ScopeTeamIDs: scope,
		Predicates:   []schema.Predicate{{Column: "headache_severity", Op: schema.OpEq, Value: 1}},
	})
	assert.ErrorContains(t, err, "not queryable")
}

func TestToRowProjectsColumns(t *testing.T) {
	q := schema.StructuredQuery{Table: catalog.TableSymptom, Columns: []string{"headache_severity"}}
	date := time.Date(2024, 9, 20, 0, 0, 0, 0, time.Local)
	row := toRow(q, "S002", "P001", "LSU_TIGERS", schema.AnchorPostInjury, date, map[string]interface{}{
		"headache_severity": 4,
		"nausea_severity":   2,
	})
	assert.Equal(t, map[string]interface{}{"headache_severity": 4}, row.Values)
	assert.Equal(t, "2024-09-20", row.AssessmentDate.Format(schema.DateLayout))
	assert.Equal(t, time.UTC, row.AssessmentDate.Location())
}

func TestDocumentRecordRoundTrip(t *testing.T) {
	doc := &schema.Document{
		ID:   "doc-s002",
		Text: "Post-injury check",
		Metadata: map[string]string{
			schema.MetadataKeyTeamID:      "LSU_TIGERS",
			schema.MetadataKeyPatientID:   "P001",
			schema.MetadataKeySourceTable: catalog.TableSymptom,
		},
		Embedding: []float32{1, 2},
	}
	rec := toRecord(doc)
	assert.Equal(t, "LSU_TIGERS", rec.TeamID)
	assert.Equal(t, "P001", rec.PatientID)

	back := fromRecord(rec)
	assert.Equal(t, doc.Metadata, back.Metadata)
	assert.Nil(t, back.Embedding)
}
