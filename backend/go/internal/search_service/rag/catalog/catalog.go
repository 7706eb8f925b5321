package catalog

import (
	"Neurologix/backend/go/internal/search_service/rag/schema"
	"strings"
)

// Version identifies the built-in field catalog.
const Version = "2024.1"

// Structured tables known to the catalog.
const (
	TableSymptom      = "symptom_assessments"
	TableReactionTime = "reaction_time_tests"
)

// Catalog is an immutable, enumerable description of queryable fields.
// It is safe to share between goroutines without locking.
type Catalog struct {
	fields []schema.SchemaField
	index  map[string]int
}

// New builds a catalog from the given fields. Names and synonyms are matched
// case-insensitively; the first field claiming a token wins.
func New(fields []schema.SchemaField) *Catalog {
	c := &Catalog{
		fields: make([]schema.SchemaField, len(fields)),
		index:  make(map[string]int),
	}
	copy(c.fields, fields)
	for i, f := range c.fields {
		c.claim(f.Name, i)
		for _, syn := range f.Synonyms {
			c.claim(syn, i)
		}
	}
	return c
}

func (c *Catalog) claim(token string, i int) {
	key := normalize(token)
	if key == "" {
		return
	}
	if _, taken := c.index[key]; !taken {
		c.index[key] = i
	}
}

// Default returns the built-in concussion assessment catalog.
func Default() *Catalog {
	return New(defaultFields())
}

// Fields returns the catalog fields in declaration order.
func (c *Catalog) Fields() []schema.SchemaField {
	out := make([]schema.SchemaField, len(c.fields))
	copy(out, c.fields)
	return out
}

// Resolve finds the field whose name or synonym equals token, or nil.
func (c *Catalog) Resolve(token string) *schema.SchemaField {
	i, ok := c.index[normalize(token)]
	if !ok {
		return nil
	}
	f := c.fields[i]
	return &f
}

// IsExactName reports whether token is a field name rather than a synonym.
func (c *Catalog) IsExactName(token string) bool {
	key := normalize(token)
	for _, f := range c.fields {
		if normalize(f.Name) == key {
			return true
		}
	}
	return false
}

// Columns returns the numeric metric columns of a table.
func (c *Catalog) Columns(table string) []string {
	var cols []string
	for _, f := range c.fields {
		if f.Table == table && f.Type == schema.FieldNumeric {
			cols = append(cols, f.Name)
		}
	}
	return cols
}

// Tables returns the distinct tables referenced by metric fields.
func (c *Catalog) Tables() []string {
	seen := make(map[string]bool)
	var tables []string
	for _, f := range c.fields {
		if f.Table == "" || f.Type != schema.FieldNumeric || seen[f.Table] {
			continue
		}
		seen[f.Table] = true
		tables = append(tables, f.Table)
	}
	return tables
}

// HasColumn reports whether the column belongs to the table.
func (c *Catalog) HasColumn(table, column string) bool {
	for _, f := range c.fields {
		if f.Table == table && f.Name == column {
			return true
		}
	}
	return false
}

func normalize(token string) string {
	t := strings.ToLower(strings.TrimSpace(token))
	t = strings.ReplaceAll(t, "_", " ")
	return strings.Join(strings.Fields(t), " ")
}

func severity(name string, synonyms ...string) schema.SchemaField {
	return schema.SchemaField{
		Name:     name,
		Type:     schema.FieldNumeric,
		Min:      0,
		Max:      6,
		Synonyms: synonyms,
		Table:    TableSymptom,
	}
}

func defaultFields() []schema.SchemaField {
	return []schema.SchemaField{
		severity("headache_severity", "headache", "headaches", "headache severity", "headache score", "head pain"),
		severity("nausea_severity", "nausea", "nauseous", "nausea severity"),
		severity("dizziness_severity", "dizziness", "dizzy", "dizziness severity", "balance problems"),
		severity("confusion_severity", "confusion", "confused", "confusion severity"),
		severity("memory_problems_severity", "memory", "memory problems", "memory problem", "forgetfulness"),
		severity("emotional_symptoms_severity", "emotional", "emotional symptoms", "mood", "irritability"),
		{
			Name:     "total_symptom_score",
			Type:     schema.FieldNumeric,
			Min:      0,
			Max:      132,
			Synonyms: []string{"symptom score", "total score", "symptom scores", "symptom total", "symptoms", "symptom"},
			Table:    TableSymptom,
		},
		{
			Name:     "average_reaction_time",
			Type:     schema.FieldNumeric,
			Min:      0,
			Max:      5000,
			Synonyms: []string{"reaction time", "reaction times", "average reaction time", "response time", "reaction speed", "reaction"},
			Table:    TableReactionTime,
			Unit:     "ms",
		},
		{
			Name:     "best_reaction_time",
			Type:     schema.FieldNumeric,
			Min:      0,
			Max:      5000,
			Synonyms: []string{"best reaction time", "fastest reaction time", "fastest reaction"},
			Table:    TableReactionTime,
			Unit:     "ms",
		},
		{
			Name:     "worst_reaction_time",
			Type:     schema.FieldNumeric,
			Min:      0,
			Max:      5000,
			Synonyms: []string{"worst reaction time", "slowest reaction time", "slowest reaction"},
			Table:    TableReactionTime,
			Unit:     "ms",
		},
		{
			Name:     "total_attempts",
			Type:     schema.FieldNumeric,
			Min:      1,
			Max:      1000,
			Synonyms: []string{"attempts", "total attempts", "trials"},
			Table:    TableReactionTime,
		},
		{
			Name:     "successful_attempts",
			Type:     schema.FieldNumeric,
			Min:      0,
			Max:      1000,
			Synonyms: []string{"successful attempts", "successes", "hits"},
			Table:    TableReactionTime,
		},
		{
			Name:     "accuracy_percentage",
			Type:     schema.FieldNumeric,
			Min:      0,
			Max:      100,
			Synonyms: []string{"accuracy", "accuracy percentage", "accuracy rate"},
			Table:    TableReactionTime,
			Unit:     "%",
		},
		{
			Name: "assessment_type",
			Type: schema.FieldCategorical,
			Enum: []string{schema.AnchorBaseline, schema.AnchorPostInjury},
		},
		{
			Name:     "assessment_date",
			Type:     schema.FieldDate,
			Synonyms: []string{"assessment date", "test date"},
		},
	}
}
