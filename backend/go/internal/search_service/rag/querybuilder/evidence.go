package querybuilder

import (
	"Neurologix/backend/go/internal/search_service/rag/schema"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// structuredScore is the relevance of every structured hit; rows are authoritative.
const structuredScore = 1.0

func rowEvidence(row schema.Row, columns []string) schema.EvidenceItem {
	payload := map[string]interface{}{
		schema.ColumnPatientID:      row.PatientID,
		schema.ColumnTeamID:         row.TeamID,
		schema.ColumnAssessmentType: row.AssessmentType,
	}
	if !row.AssessmentDate.IsZero() {
		payload[schema.ColumnAssessmentDate] = row.AssessmentDate.Format(schema.DateLayout)
	}

	parts := make([]string, 0, len(columns))
	for _, col := range columns {
		v, ok := row.Values[col]
		if !ok || v == nil {
			continue
		}
		payload[col] = v
		parts = append(parts, fmt.Sprintf("%s=%v", col, v))
	}

	return schema.EvidenceItem{
		Source:      schema.SourceStructured,
		ReferenceID: schema.StructuredReference(row.Table, row.RowID),
		Payload:     payload,
		Snippet:     fmt.Sprintf("%s %s %s: %s", row.PatientID, row.AssessmentType, payload[schema.ColumnAssessmentDate], strings.Join(parts, ", ")),
		Score:       structuredScore,
		Provenance:  provenance(row),
	}
}

// latestPerPatient keeps the first row seen for each patient; rows arrive newest first.
func latestPerPatient(rows []schema.Row) []schema.Row {
	seen := make(map[string]bool)
	var out []schema.Row
	for _, r := range rows {
		if seen[r.PatientID] {
			continue
		}
		seen[r.PatientID] = true
		out = append(out, r)
	}
	return out
}

// deltaEvidence derives, per patient, the change of the metric between the
// newest assessment and the one before it. With a since-baseline scope the
// older side is the most recent baseline assessment instead.
func deltaEvidence(rows []schema.Row, intent *schema.ParsedIntent) []schema.EvidenceItem {
	metric := intent.Metric.Name
	byPatient := make(map[string][]schema.Row)
	var order []string
	for _, r := range rows {
		if _, ok := toFloat(r.Values[metric]); !ok {
			continue
		}
		if _, ok := byPatient[r.PatientID]; !ok {
			order = append(order, r.PatientID)
		}
		byPatient[r.PatientID] = append(byPatient[r.PatientID], r)
	}

	sinceBaseline := intent.TimeScope.Kind == schema.TimeRelative && intent.TimeScope.Relative == schema.RelativeSinceBaseline
	var items []schema.EvidenceItem
	for _, patient := range order {
		prs := byPatient[patient]
		sort.SliceStable(prs, func(i, j int) bool { return prs[i].AssessmentDate.After(prs[j].AssessmentDate) })
		if len(prs) < 2 {
			continue
		}
		newer, older := prs[0], prs[1]
		if sinceBaseline {
			found := false
			for _, r := range prs[1:] {
				if r.AssessmentType == schema.AnchorBaseline {
					older, found = r, true
					break
				}
			}
			if !found || newer.AssessmentType == schema.AnchorBaseline {
				continue
			}
		}

		from, _ := toFloat(older.Values[metric])
		to, _ := toFloat(newer.Values[metric])
		change := round2(to - from)
		direction := "unchanged"
		switch {
		case change > 0:
			direction = "increased"
		case change < 0:
			direction = "decreased"
		}
		items = append(items, schema.EvidenceItem{
			Source:      schema.SourceStructured,
			ReferenceID: fmt.Sprintf("delta:%s:%s:%s", newer.Table, patient, metric),
			Payload: map[string]interface{}{
				schema.ColumnPatientID: patient,
				"metric":               metric,
				"from_value":           from,
				"to_value":             to,
				"delta":                change,
				"from_date":            older.AssessmentDate.Format(schema.DateLayout),
				"to_date":              newer.AssessmentDate.Format(schema.DateLayout),
				"direction":            direction,
			},
			Snippet: fmt.Sprintf("%s %s %s from %s (%s) to %s (%s), change %s",
				patient, metric, direction, formatNumber(from), older.AssessmentType, formatNumber(to), newer.AssessmentType, formatNumber(change)),
			Score:      structuredScore,
			Provenance: provenance(newer),
			Related:    []string{provenance(older)},
		})
	}
	return items
}

// aggregateEvidence folds column over rows. The item cites the newest
// contributing row and lists the others as related.
func aggregateEvidence(rows []schema.Row, table, column, aggregate string) (schema.EvidenceItem, bool) {
	var (
		values      []float64
		contributed []schema.Row
	)
	patients := make(map[string]bool)
	for _, r := range rows {
		v, ok := toFloat(r.Values[column])
		if !ok {
			continue
		}
		values = append(values, v)
		contributed = append(contributed, r)
		patients[r.PatientID] = true
	}
	if len(values) == 0 {
		return schema.EvidenceItem{}, false
	}

	var result float64
	switch aggregate {
	case schema.AggregateAverage:
		sum := 0.0
		for _, v := range values {
			sum += v
		}
		result = round2(sum / float64(len(values)))
	case schema.AggregateMaximum:
		result = values[0]
		for _, v := range values[1:] {
			result = math.Max(result, v)
		}
	case schema.AggregateMinimum:
		result = values[0]
		for _, v := range values[1:] {
			result = math.Min(result, v)
		}
	case schema.AggregateCount:
		result = float64(len(patients))
	default:
		return schema.EvidenceItem{}, false
	}

	primary, related := citeRows(contributed)
	return schema.EvidenceItem{
		Source:      schema.SourceStructured,
		ReferenceID: fmt.Sprintf("aggregate:%s:%s:%s", table, column, aggregate),
		Payload: map[string]interface{}{
			"metric":        column,
			"aggregate":     aggregate,
			"value":         result,
			"row_count":     len(values),
			"patient_count": len(patients),
		},
		Snippet:    fmt.Sprintf("%s of %s over %d assessments (%d patients): %s", aggregate, column, len(values), len(patients), formatNumber(result)),
		Score:      structuredScore,
		Provenance: primary,
		Related:    related,
	}, true
}

// countEvidence summarizes how many assessments and distinct patients a
// table returned.
func countEvidence(rows []schema.Row, table string) (schema.EvidenceItem, bool) {
	if len(rows) == 0 {
		return schema.EvidenceItem{}, false
	}
	patients := make(map[string]bool)
	for _, r := range rows {
		patients[r.PatientID] = true
	}
	primary, related := citeRows(rows)
	return schema.EvidenceItem{
		Source:      schema.SourceStructured,
		ReferenceID: fmt.Sprintf("aggregate:%s:count", table),
		Payload: map[string]interface{}{
			"aggregate":        schema.AggregateCount,
			"patient_count":    len(patients),
			"assessment_count": len(rows),
		},
		Snippet:    fmt.Sprintf("%s: %d assessments across %d patients", table, len(rows), len(patients)),
		Score:      structuredScore,
		Provenance: primary,
		Related:    related,
	}, true
}

func provenance(r schema.Row) string {
	return schema.StructuredProvenance(r.Table, r.RowID, r.AssessmentDate)
}

// citeRows splits the provenances of rows into the first and the rest.
func citeRows(rows []schema.Row) (string, []string) {
	related := make([]string, 0, len(rows)-1)
	for _, r := range rows[1:] {
		related = append(related, provenance(r))
	}
	return provenance(rows[0]), related
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case []byte:
		f, err := strconv.ParseFloat(string(n), 64)
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	}
	return 0, false
}

func round2(f float64) float64 {
	return math.Round(f*100) / 100
}

func formatNumber(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
