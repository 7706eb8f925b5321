package structstore

import (
	"Neurologix/backend/go/internal/search_service/rag/interfaces"
	"Neurologix/backend/go/internal/search_service/rag/schema"
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// InMemoryStore is a structured store over rows held in memory. It applies
// the same scope and whitelist rules as the MySQL store.
type InMemoryStore struct {
	mu   sync.RWMutex
	rows []schema.Row
}

// Ensure InMemoryStore implements the StructuredStore interface.
var _ interfaces.StructuredStore = (*InMemoryStore)(nil)

// NewInMemoryStore creates a store holding rows.
func NewInMemoryStore(rows ...schema.Row) *InMemoryStore {
	s := &InMemoryStore{}
	s.Insert(rows...)
	return s
}

// Insert appends rows.
func (s *InMemoryStore) Insert(rows ...schema.Row) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows = append(s.rows, rows...)
}

// Query runs q. Queries without a scope are rejected with schema.ErrScopeViolation.
func (s *InMemoryStore) Query(ctx context.Context, q schema.StructuredQuery) ([]schema.Row, error) {
	if len(q.ScopeTeamIDs) == 0 {
		return nil, schema.ErrScopeViolation
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	for _, p := range q.Predicates {
		if !schema.AllowedOps[p.Op] {
			return nil, fmt.Errorf("unsupported operator %q", p.Op)
		}
	}

	teams := make(map[string]bool, len(q.ScopeTeamIDs))
	for _, id := range q.ScopeTeamIDs {
		teams[id] = true
	}

	s.mu.RLock()
	var out []schema.Row
	for _, r := range s.rows {
		if r.Table != q.Table || !teams[r.TeamID] {
			continue
		}
		ok := true
		for _, p := range q.Predicates {
			if !matches(r, p) {
				ok = false
				break
			}
		}
		if ok {
			out = append(out, project(r, q.Columns))
		}
	}
	s.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		for _, o := range q.OrderBy {
			c := compare(column(out[i], o.Column), column(out[j], o.Column))
			if c == 0 {
				continue
			}
			if o.Desc {
				return c > 0
			}
			return c < 0
		}
		return out[i].RowID < out[j].RowID
	})
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func project(r schema.Row, columns []string) schema.Row {
	cp := r
	cp.Values = make(map[string]interface{}, len(columns))
	if len(columns) == 0 {
		for k, v := range r.Values {
			cp.Values[k] = v
		}
		return cp
	}
	for _, c := range columns {
		if v, ok := r.Values[c]; ok {
			cp.Values[c] = v
		}
	}
	return cp
}

func column(r schema.Row, name string) interface{} {
	switch name {
	case schema.ColumnPatientID:
		return r.PatientID
	case schema.ColumnTeamID:
		return r.TeamID
	case schema.ColumnAssessmentDate:
		return r.AssessmentDate
	case schema.ColumnAssessmentType:
		return r.AssessmentType
	}
	return r.Values[name]
}

func matches(r schema.Row, p schema.Predicate) bool {
	v := column(r, p.Column)
	if p.Op == schema.OpIn {
		list, ok := p.Value.([]string)
		if !ok {
			return false
		}
		for _, item := range list {
			if compare(v, item) == 0 {
				return true
			}
		}
		return false
	}
	c := compare(v, p.Value)
	switch p.Op {
	case schema.OpEq:
		return c == 0
	case schema.OpNe:
		return c != 0
	case schema.OpGt:
		return c > 0
	case schema.OpGte:
		return c >= 0
	case schema.OpLt:
		return c < 0
	case schema.OpLte:
		return c <= 0
	}
	return false
}

// compare orders times, numbers and strings; mismatched kinds compare by their string form.
func compare(a, b interface{}) int {
	if ta, ok := a.(time.Time); ok {
		if tb, ok := b.(time.Time); ok {
			return ta.Compare(tb)
		}
	}
	fa, aok := number(a)
	fb, bok := number(b)
	if aok && bok {
		switch {
		case fa < fb:
			return -1
		case fa > fb:
			return 1
		}
		return 0
	}
	sa, sb := fmt.Sprint(a), fmt.Sprint(b)
	switch {
	case sa < sb:
		return -1
	case sa > sb:
		return 1
	}
	return 0
}

func number(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	}
	return 0, false
}
