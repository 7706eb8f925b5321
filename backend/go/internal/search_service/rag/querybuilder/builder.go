package querybuilder

import (
	"Neurologix/backend/go/internal/search_service/rag/catalog"
	"Neurologix/backend/go/internal/search_service/rag/interfaces"
	"Neurologix/backend/go/internal/search_service/rag/schema"
	"Neurologix/backend/go/pkg/logger"
	"context"
	"errors"
	"fmt"
	"time"
)

// DefaultRowLimit caps the rows read per table.
const DefaultRowLimit = 100

// Option configures a Builder.
type Option func(*Builder)

// WithClock sets the clock used to resolve relative time ranges.
func WithClock(now func() time.Time) Option {
	return func(b *Builder) {
		if now != nil {
			b.now = now
		}
	}
}

// WithRowLimit sets the per-table row limit.
func WithRowLimit(limit int) Option {
	return func(b *Builder) {
		if limit > 0 {
			b.rowLimit = limit
		}
	}
}

// WithLogger sets the logger.
func WithLogger(log *logger.Logger) Option {
	return func(b *Builder) {
		b.log = log
	}
}

// Builder turns a ParsedIntent into scoped, parameterized structured queries
// and converts the returned rows into evidence.
type Builder struct {
	catalog  *catalog.Catalog
	store    interfaces.StructuredStore
	now      func() time.Time
	rowLimit int
	log      *logger.Logger
}

// NewBuilder creates a Builder reading from store.
func NewBuilder(cat *catalog.Catalog, store interfaces.StructuredStore, opts ...Option) *Builder {
	b := &Builder{
		catalog:  cat,
		store:    store,
		now:      time.Now,
		rowLimit: DefaultRowLimit,
		log:      logger.Discard(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Build returns the queries for intent. An empty scope is a ScopeViolation.
// A nil slice with a nil error means the intent can match nothing in scope.
func (b *Builder) Build(intent *schema.ParsedIntent, scope schema.UserScope) ([]schema.StructuredQuery, error) {
	if scope.IsEmpty() {
		return nil, schema.NewError(schema.ScopeViolation, "user scope has no allowed teams", schema.ErrScopeViolation)
	}
	if intent == nil {
		return nil, schema.NewError(schema.InternalFailure, "nil intent", nil)
	}

	teams := scope.TeamIDs()
	if refs := intent.RefsOfKind(schema.EntityTeam); len(refs) > 0 {
		teams = intersect(refs, teams)
		if len(teams) == 0 {
			return nil, nil
		}
	}

	targets, err := b.targets(intent)
	if err != nil {
		return nil, err
	}

	common := b.predicates(intent)
	queries := make([]schema.StructuredQuery, 0, len(targets))
	for _, t := range targets {
		preds := append([]schema.Predicate(nil), common...)
		if intent.Metric != nil && intent.Comparison.Kind == schema.ComparisonThreshold {
			if !schema.AllowedOps[intent.Comparison.Op] {
				return nil, schema.NewError(schema.InternalFailure, fmt.Sprintf("unsupported comparison operator %q", intent.Comparison.Op), nil)
			}
			preds = append(preds, schema.Predicate{Column: intent.Metric.Name, Op: intent.Comparison.Op, Value: intent.Comparison.Value})
		}
		queries = append(queries, schema.StructuredQuery{
			Table:        t.table,
			Columns:      t.columns,
			Predicates:   preds,
			ScopeTeamIDs: teams,
			OrderBy:      []schema.Order{{Column: schema.ColumnAssessmentDate, Desc: true}},
			Limit:        b.rowLimit,
		})
	}
	return queries, nil
}

type target struct {
	table   string
	columns []string
}

func (b *Builder) targets(intent *schema.ParsedIntent) ([]target, error) {
	if intent.Metric != nil {
		m := intent.Metric
		if !b.catalog.HasColumn(m.Table, m.Name) {
			return nil, schema.NewError(schema.InternalFailure, fmt.Sprintf("metric %q is not a catalog column", m.Name), nil)
		}
		return []target{{table: m.Table, columns: []string{m.Name}}}, nil
	}
	var out []target
	for _, table := range b.catalog.Tables() {
		out = append(out, target{table: table, columns: b.catalog.Columns(table)})
	}
	return out, nil
}

func (b *Builder) predicates(intent *schema.ParsedIntent) []schema.Predicate {
	var preds []schema.Predicate
	if patients := intent.RefsOfKind(schema.EntityPatient); len(patients) > 0 {
		preds = append(preds, schema.Predicate{Column: schema.ColumnPatientID, Op: schema.OpIn, Value: patients})
	}

	ts := intent.TimeScope
	switch ts.Kind {
	case schema.TimeAnchor:
		// A delta needs both sides of the anchor.
		if intent.Comparison.Kind != schema.ComparisonDelta {
			preds = append(preds, schema.Predicate{Column: schema.ColumnAssessmentType, Op: schema.OpEq, Value: ts.Anchor})
		}
	case schema.TimeAbsolute:
		preds = append(preds, dateRange(ts.From, ts.To)...)
	case schema.TimeRelative:
		from, to := ResolveRelative(ts.Relative, b.now())
		preds = append(preds, dateRange(from, to)...)
	}
	return preds
}

func dateRange(from, to time.Time) []schema.Predicate {
	var preds []schema.Predicate
	if !from.IsZero() {
		preds = append(preds, schema.Predicate{Column: schema.ColumnAssessmentDate, Op: schema.OpGte, Value: from})
	}
	if !to.IsZero() {
		preds = append(preds, schema.Predicate{Column: schema.ColumnAssessmentDate, Op: schema.OpLt, Value: to})
	}
	return preds
}

// ResolveRelative turns a relative period into an explicit [from, to) interval.
// Periods that do not restrict dates return zero times.
func ResolveRelative(relative string, now time.Time) (time.Time, time.Time) {
	startOfDay := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	tomorrow := startOfDay.AddDate(0, 0, 1)
	switch relative {
	case schema.RelativeToday:
		return startOfDay, tomorrow
	case schema.RelativeYesterday:
		return startOfDay.AddDate(0, 0, -1), startOfDay
	case schema.RelativeLastWeek:
		return startOfDay.AddDate(0, 0, -7), tomorrow
	case schema.RelativeLastMonth:
		return startOfDay.AddDate(0, -1, 0), tomorrow
	case schema.RelativeLast30Days:
		return startOfDay.AddDate(0, 0, -30), tomorrow
	}
	return time.Time{}, time.Time{}
}

// Retrieve builds and runs the queries and returns structured evidence.
// Zero matching rows is an empty set, not an error. Store failures are not retried.
func (b *Builder) Retrieve(ctx context.Context, intent *schema.ParsedIntent, scope schema.UserScope) (schema.EvidenceSet, error) {
	queries, err := b.Build(intent, scope)
	if err != nil {
		return nil, err
	}

	var set schema.EvidenceSet
	for _, q := range queries {
		rows, err := b.store.Query(ctx, q)
		if err != nil {
			if errors.Is(err, schema.ErrScopeViolation) {
				return nil, schema.NewError(schema.ScopeViolation, "structured store rejected an unscoped query", err)
			}
			return nil, schema.NewError(schema.StructuredSourceFailure, fmt.Sprintf("query on %s failed", q.Table), err)
		}
		b.log.Debug(fmt.Sprintf("structured query on %s returned %d rows", q.Table, len(rows)))

		// Deltas are derived before the most-recent collapse so that both
		// sides of the change are still present.
		var deltas schema.EvidenceSet
		if intent.Metric != nil && intent.Comparison.Kind == schema.ComparisonDelta {
			deltas = deltaEvidence(rows, intent)
		}
		if intent.TimeScope.Kind == schema.TimeRelative && intent.TimeScope.Relative == schema.RelativeMostRecent {
			rows = latestPerPatient(rows)
		}
		for _, row := range rows {
			set = append(set, rowEvidence(row, q.Columns))
		}
		set = append(set, deltas...)
		set = append(set, aggregates(rows, q, intent)...)
	}
	return set, nil
}

// aggregates folds the metric when one resolved. Without a metric every
// queried column is folded and the table gets a patient and assessment count.
func aggregates(rows []schema.Row, q schema.StructuredQuery, intent *schema.ParsedIntent) schema.EvidenceSet {
	if intent.Aggregate == schema.AggregateNone || intent.Aggregate == schema.AggregateList {
		return nil
	}
	var out schema.EvidenceSet
	if intent.Metric != nil {
		if item, ok := aggregateEvidence(rows, intent.Metric.Table, intent.Metric.Name, intent.Aggregate); ok {
			out = append(out, item)
		}
		return out
	}
	if item, ok := countEvidence(rows, q.Table); ok {
		out = append(out, item)
	}
	if intent.Aggregate == schema.AggregateCount {
		return out
	}
	for _, col := range q.Columns {
		if item, ok := aggregateEvidence(rows, q.Table, col, intent.Aggregate); ok {
			out = append(out, item)
		}
	}
	return out
}

func intersect(a, b []string) []string {
	allowed := make(map[string]bool, len(b))
	for _, id := range b {
		allowed[id] = true
	}
	var out []string
	for _, id := range a {
		if allowed[id] {
			out = append(out, id)
		}
	}
	return out
}
