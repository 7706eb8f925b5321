package querybuilder

import (
	"Neurologix/backend/go/internal/search_service/rag/catalog"
	"Neurologix/backend/go/internal/search_service/rag/sampledata"
	"Neurologix/backend/go/internal/search_service/rag/schema"
	"Neurologix/backend/go/internal/search_service/rag/storages/structstore"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockStore struct {
	mock.Mock
}

func (m *mockStore) Query(ctx context.Context, q schema.StructuredQuery) ([]schema.Row, error) {
	args := m.Called(ctx, q)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]schema.Row), args.Error(1)
}

var (
	lsu  = schema.UserScope{AllowedTeamIDs: []string{sampledata.TeamLSU}}
	demo = schema.UserScope{AllowedTeamIDs: []string{sampledata.TeamDemo}}
)

func metric(name string) *schema.SchemaField {
	return catalog.Default().Resolve(name)
}

func newSampleBuilder(opts ...Option) *Builder {
	return NewBuilder(catalog.Default(), structstore.NewInMemoryStore(sampledata.Rows()...), opts...)
}

func TestRetrieve_EmptyScopeNeverReachesStore(t *testing.T) {
	store := new(mockStore)
	b := NewBuilder(catalog.Default(), store)

	intent := &schema.ParsedIntent{Metric: metric("headache_severity")}
	for _, scope := range []schema.UserScope{{}, {AllowedTeamIDs: []string{""}}} {
		_, err := b.Retrieve(context.Background(), intent, scope)
		require.Error(t, err)
		assert.Equal(t, schema.ScopeViolation, schema.KindOf(err))
		assert.True(t, errors.Is(err, schema.ErrScopeViolation))
	}
	store.AssertNotCalled(t, "Query", mock.Anything, mock.Anything)
}

func TestRetrieve_BaselineHeadache(t *testing.T) {
	b := newSampleBuilder()
	intent := &schema.ParsedIntent{
		SubjectRefs: []schema.EntityRef{{Kind: schema.EntityPatient, ID: "P001"}},
		Metric:      metric("headache_severity"),
		TimeScope:   schema.TimeScope{Kind: schema.TimeAnchor, Anchor: schema.AnchorBaseline},
	}

	set, err := b.Retrieve(context.Background(), intent, lsu)
	require.NoError(t, err)
	require.Len(t, set, 1)

	item := set[0]
	assert.Equal(t, schema.SourceStructured, item.Source)
	assert.Equal(t, "symptom_assessments:S001", item.ReferenceID)
	assert.Equal(t, "symptom_assessments:S001:2024-08-15", item.Provenance)
	assert.Equal(t, 1.0, item.Score)
	assert.Equal(t, 2, item.Payload["headache_severity"])
	assert.NotContains(t, item.Payload, "nausea_severity")
}

func TestRetrieve_OutOfScopeIsEmpty(t *testing.T) {
	b := newSampleBuilder()
	intent := &schema.ParsedIntent{
		SubjectRefs: []schema.EntityRef{{Kind: schema.EntityPatient, ID: "P001"}},
		Metric:      metric("headache_severity"),
		TimeScope:   schema.TimeScope{Kind: schema.TimeAnchor, Anchor: schema.AnchorBaseline},
	}

	set, err := b.Retrieve(context.Background(), intent, demo)
	require.NoError(t, err)
	assert.Empty(t, set)
}

func TestBuild_TeamRefsNarrowButNeverWiden(t *testing.T) {
	b := newSampleBuilder()
	both := schema.UserScope{AllowedTeamIDs: []string{sampledata.TeamLSU, sampledata.TeamDemo}}

	queries, err := b.Build(&schema.ParsedIntent{
		SubjectRefs: []schema.EntityRef{{Kind: schema.EntityTeam, ID: sampledata.TeamDemo}},
		Metric:      metric("nausea"),
	}, both)
	require.NoError(t, err)
	require.Len(t, queries, 1)
	assert.Equal(t, []string{sampledata.TeamDemo}, queries[0].ScopeTeamIDs)

	queries, err = b.Build(&schema.ParsedIntent{
		SubjectRefs: []schema.EntityRef{{Kind: schema.EntityTeam, ID: "OTHER_TEAM"}},
		Metric:      metric("nausea"),
	}, lsu)
	require.NoError(t, err)
	assert.Empty(t, queries)
}

func TestBuild_NoMetricQueriesEveryTable(t *testing.T) {
	b := newSampleBuilder()
	queries, err := b.Build(&schema.ParsedIntent{RequiresSemantic: true}, lsu)
	require.NoError(t, err)
	require.Len(t, queries, 2)
	assert.Equal(t, catalog.TableSymptom, queries[0].Table)
	assert.Contains(t, queries[0].Columns, "total_symptom_score")
	assert.Equal(t, catalog.TableReactionTime, queries[1].Table)
	for _, q := range queries {
		assert.Equal(t, []string{sampledata.TeamLSU}, q.ScopeTeamIDs)
		assert.Equal(t, DefaultRowLimit, q.Limit)
	}
}

func TestBuild_RelativeRangeUsesClock(t *testing.T) {
	now := time.Date(2024, 10, 10, 15, 30, 0, 0, time.UTC)
	b := newSampleBuilder(WithClock(func() time.Time { return now }))

	queries, err := b.Build(&schema.ParsedIntent{
		Metric:    metric("nausea"),
		TimeScope: schema.TimeScope{Kind: schema.TimeRelative, Relative: schema.RelativeLastWeek},
	}, lsu)
	require.NoError(t, err)
	require.Len(t, queries, 1)
	assert.Equal(t, []schema.Predicate{
		{Column: schema.ColumnAssessmentDate, Op: schema.OpGte, Value: time.Date(2024, 10, 3, 0, 0, 0, 0, time.UTC)},
		{Column: schema.ColumnAssessmentDate, Op: schema.OpLt, Value: time.Date(2024, 10, 11, 0, 0, 0, 0, time.UTC)},
	}, queries[0].Predicates)
}

func TestResolveRelative(t *testing.T) {
	now := time.Date(2024, 3, 31, 9, 0, 0, 0, time.UTC)

	from, to := ResolveRelative(schema.RelativeYesterday, now)
	assert.Equal(t, time.Date(2024, 3, 30, 0, 0, 0, 0, time.UTC), from)
	assert.Equal(t, time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC), to)

	from, _ = ResolveRelative(schema.RelativeLast30Days, now)
	assert.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), from)

	from, to = ResolveRelative(schema.RelativeMostRecent, now)
	assert.True(t, from.IsZero())
	assert.True(t, to.IsZero())
}

func TestRetrieve_Threshold(t *testing.T) {
	b := newSampleBuilder()
	set, err := b.Retrieve(context.Background(), &schema.ParsedIntent{
		Metric:     metric("headache_severity"),
		Comparison: schema.Comparison{Kind: schema.ComparisonThreshold, Op: ">=", Value: 4},
	}, lsu)
	require.NoError(t, err)
	require.Len(t, set, 1)
	assert.Equal(t, "symptom_assessments:S002", set[0].ReferenceID)
}

func TestRetrieve_DeltaIgnoresAnchor(t *testing.T) {
	b := newSampleBuilder()
	set, err := b.Retrieve(context.Background(), &schema.ParsedIntent{
		SubjectRefs: []schema.EntityRef{{Kind: schema.EntityPatient, ID: "P001"}},
		Metric:      metric("symptom score"),
		TimeScope:   schema.TimeScope{Kind: schema.TimeAnchor, Anchor: schema.AnchorPostInjury},
		Comparison:  schema.Comparison{Kind: schema.ComparisonDelta},
	}, lsu)
	require.NoError(t, err)
	require.Len(t, set, 3)

	delta := set[2]
	assert.Equal(t, "delta:symptom_assessments:P001:total_symptom_score", delta.ReferenceID)
	assert.Equal(t, 35.0, delta.Payload["from_value"])
	assert.Equal(t, 78.0, delta.Payload["to_value"])
	assert.Equal(t, 43.0, delta.Payload["delta"])
	assert.Equal(t, "increased", delta.Payload["direction"])
	assert.Equal(t, "symptom_assessments:S002:2024-09-20", delta.Provenance)
	assert.Equal(t, []string{"symptom_assessments:S001:2024-08-15"}, delta.Related)
}

func TestRetrieve_MostRecentDeltaKeepsOlderAssessment(t *testing.T) {
	b := newSampleBuilder()
	set, err := b.Retrieve(context.Background(), &schema.ParsedIntent{
		SubjectRefs: []schema.EntityRef{{Kind: schema.EntityPatient, ID: "P001"}},
		Metric:      metric("symptom score"),
		TimeScope:   schema.TimeScope{Kind: schema.TimeRelative, Relative: schema.RelativeMostRecent},
		Comparison:  schema.Comparison{Kind: schema.ComparisonDelta},
	}, lsu)
	require.NoError(t, err)
	require.Len(t, set, 2)

	assert.Equal(t, "symptom_assessments:S002", set[0].ReferenceID)
	delta := set[1]
	assert.Equal(t, "delta:symptom_assessments:P001:total_symptom_score", delta.ReferenceID)
	assert.Equal(t, 43.0, delta.Payload["delta"])
	assert.Equal(t, "increased", delta.Payload["direction"])
	assert.Equal(t, []string{"symptom_assessments:S002:2024-09-20", "symptom_assessments:S001:2024-08-15"}, delta.Citations())
}

func TestRetrieve_AggregatesAndMostRecent(t *testing.T) {
	b := newSampleBuilder()

	set, err := b.Retrieve(context.Background(), &schema.ParsedIntent{
		Metric:    metric("reaction time"),
		Aggregate: schema.AggregateAverage,
	}, lsu)
	require.NoError(t, err)
	require.Len(t, set, 4)
	agg := set[3]
	assert.Equal(t, "aggregate:reaction_time_tests:average_reaction_time:average", agg.ReferenceID)
	assert.Equal(t, 268.13, agg.Payload["value"])
	assert.Equal(t, []string{
		"reaction_time_tests:R002:2024-09-20",
		"reaction_time_tests:R003:2024-08-16",
		"reaction_time_tests:R001:2024-08-15",
	}, agg.Citations())

	set, err = b.Retrieve(context.Background(), &schema.ParsedIntent{
		Metric:    metric("headache"),
		TimeScope: schema.TimeScope{Kind: schema.TimeRelative, Relative: schema.RelativeMostRecent},
	}, lsu)
	require.NoError(t, err)
	require.Len(t, set, 2)
	assert.Equal(t, "symptom_assessments:S004", set[0].ReferenceID)
	assert.Equal(t, "symptom_assessments:S002", set[1].ReferenceID)
}

func byReference(set schema.EvidenceSet) map[string]schema.EvidenceItem {
	out := make(map[string]schema.EvidenceItem, len(set))
	for _, item := range set {
		out[item.ReferenceID] = item
	}
	return out
}

func TestRetrieve_CountWithoutMetric(t *testing.T) {
	b := newSampleBuilder()
	set, err := b.Retrieve(context.Background(), &schema.ParsedIntent{
		SubjectRefs: []schema.EntityRef{{Kind: schema.EntityTeam, ID: sampledata.TeamLSU}},
		Aggregate:   schema.AggregateCount,
	}, lsu)
	require.NoError(t, err)
	require.Len(t, set, 9)

	items := byReference(set)
	symptoms := items["aggregate:symptom_assessments:count"]
	assert.Equal(t, 2, symptoms.Payload["patient_count"])
	assert.Equal(t, 4, symptoms.Payload["assessment_count"])
	assert.Equal(t, "symptom_assessments:S004:2024-09-25", symptoms.Provenance)
	assert.Len(t, symptoms.Related, 3)

	reactions := items["aggregate:reaction_time_tests:count"]
	assert.Equal(t, 2, reactions.Payload["patient_count"])
	assert.Equal(t, 3, reactions.Payload["assessment_count"])
	assert.Contains(t, reactions.Snippet, "3 assessments across 2 patients")
}

func TestRetrieve_AverageWithoutMetric(t *testing.T) {
	b := newSampleBuilder()
	set, err := b.Retrieve(context.Background(), &schema.ParsedIntent{
		SubjectRefs: []schema.EntityRef{{Kind: schema.EntityTeam, ID: sampledata.TeamLSU}},
		Aggregate:   schema.AggregateAverage,
	}, lsu)
	require.NoError(t, err)

	items := byReference(set)
	assert.Equal(t, 2.5, items["aggregate:symptom_assessments:headache_severity:average"].Payload["value"])
	assert.Equal(t, 45.0, items["aggregate:symptom_assessments:total_symptom_score:average"].Payload["value"])
	assert.Equal(t, 268.13, items["aggregate:reaction_time_tests:average_reaction_time:average"].Payload["value"])
	assert.Contains(t, items, "aggregate:symptom_assessments:count")
	assert.Contains(t, items, "aggregate:reaction_time_tests:count")
	// 7 rows, 2 table counts, 7 symptom and 6 reaction columns.
	assert.Len(t, set, 22)
	for _, item := range set {
		for _, p := range item.Citations() {
			assert.Regexp(t, `^(symptom_assessments|reaction_time_tests):[SR]\d{3}:\d{4}-\d{2}-\d{2}$`, p)
		}
	}
}

func TestRetrieve_ListAddsNoDerivedItems(t *testing.T) {
	b := newSampleBuilder()
	set, err := b.Retrieve(context.Background(), &schema.ParsedIntent{
		Metric:    metric("headache"),
		Aggregate: schema.AggregateList,
	}, lsu)
	require.NoError(t, err)
	assert.Len(t, set, 4)
}

func TestRetrieve_StoreFailureIsStructuredSourceFailure(t *testing.T) {
	store := new(mockStore)
	store.On("Query", mock.Anything, mock.Anything).Return(nil, errors.New("connection refused")).Once()
	b := NewBuilder(catalog.Default(), store)

	_, err := b.Retrieve(context.Background(), &schema.ParsedIntent{Metric: metric("nausea")}, lsu)
	require.Error(t, err)
	assert.Equal(t, schema.StructuredSourceFailure, schema.KindOf(err))
	store.AssertNumberOfCalls(t, "Query", 1)
}
