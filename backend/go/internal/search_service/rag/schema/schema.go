package schema

import (
	"sort"
	"time"
)

// FieldType is the semantic type of a queryable structured field.
type FieldType string

const (
	FieldNumeric     FieldType = "numeric"
	FieldCategorical FieldType = "categorical"
	FieldDate        FieldType = "date"
	FieldText        FieldType = "text"
)

// SchemaField describes one queryable column of the structured store.
// Fields are loaded once at process start and never mutated afterwards.
type SchemaField struct {
	Name     string
	Type     FieldType
	Min      float64
	Max      float64
	Enum     []string
	Synonyms []string
	// Table is the structured table holding the column.
	Table string
	Unit  string
}

// EntityKind identifies what an entity reference points at.
type EntityKind string

const (
	EntityPatient     EntityKind = "patient"
	EntityTeam        EntityKind = "team"
	EntityUnspecified EntityKind = "unspecified"
)

// EntityRef is a subject mentioned in a question.
type EntityRef struct {
	Kind EntityKind `json:"kind"`
	ID   string     `json:"id"`
}

// TimeScopeKind selects how TimeScope should be read.
type TimeScopeKind string

const (
	TimeNone     TimeScopeKind = "none"
	TimeAbsolute TimeScopeKind = "absolute"
	TimeRelative TimeScopeKind = "relative"
	TimeAnchor   TimeScopeKind = "anchor"
)

// Categorical time anchors, stored in the assessment_type column.
const (
	AnchorBaseline   = "baseline"
	AnchorPostInjury = "post_injury"
)

// Relative periods understood by the query builder.
const (
	RelativeLastWeek      = "last_week"
	RelativeLastMonth     = "last_month"
	RelativeLast30Days    = "last_30_days"
	RelativeToday         = "today"
	RelativeYesterday     = "yesterday"
	RelativeMostRecent    = "most_recent"
	RelativeSinceBaseline = "since_baseline"
)

// TimeScope is the temporal restriction of a question.
type TimeScope struct {
	Kind     TimeScopeKind `json:"kind"`
	From     time.Time     `json:"from,omitempty"`
	To       time.Time     `json:"to,omitempty"`
	Relative string        `json:"relative,omitempty"`
	Anchor   string        `json:"anchor,omitempty"`
}

// ComparisonKind describes whether the question compares values.
type ComparisonKind string

const (
	ComparisonNone      ComparisonKind = "none"
	ComparisonDelta     ComparisonKind = "delta"
	ComparisonThreshold ComparisonKind = "threshold"
)

// Comparison holds the comparison slot. Op and Value are only set for thresholds.
type Comparison struct {
	Kind  ComparisonKind `json:"kind"`
	Op    string         `json:"op,omitempty"`
	Value float64        `json:"value,omitempty"`
}

// Aggregations recognised in questions.
const (
	AggregateNone    = ""
	AggregateAverage = "average"
	AggregateMaximum = "maximum"
	AggregateMinimum = "minimum"
	AggregateCount   = "count"
	// AggregateList asks for the matching rows themselves.
	AggregateList = "list"
)

// ParsedIntent is the typed interpretation of one question. It is owned by a
// single request and discarded when the request completes.
type ParsedIntent struct {
	Question         string       `json:"question"`
	SubjectRefs      []EntityRef  `json:"subject_refs"`
	Metric           *SchemaField `json:"-"`
	TimeScope        TimeScope    `json:"time_scope"`
	Comparison       Comparison   `json:"comparison"`
	Aggregate        string       `json:"aggregate,omitempty"`
	RequiresSemantic bool         `json:"requires_semantic"`
	// Alert marks questions about values that may need clinical attention.
	Alert      bool    `json:"alert,omitempty"`
	Confidence float64 `json:"confidence"`
}

// MetricName returns the metric field name or "" when no metric resolved.
func (p *ParsedIntent) MetricName() string {
	if p == nil || p.Metric == nil {
		return ""
	}
	return p.Metric.Name
}

// RefsOfKind returns the ids of all subject references of the given kind.
func (p *ParsedIntent) RefsOfKind(kind EntityKind) []string {
	var ids []string
	for _, ref := range p.SubjectRefs {
		if ref.Kind == kind {
			ids = append(ids, ref.ID)
		}
	}
	return ids
}

// Strategy is the retrieval route chosen for an intent.
type Strategy string

const (
	StrategyStructured Strategy = "STRUCTURED"
	StrategySemantic   Strategy = "SEMANTIC"
	StrategyHybrid     Strategy = "HYBRID"
)

// EvidenceSource tells which store produced an evidence item.
type EvidenceSource string

const (
	SourceStructured EvidenceSource = "structured"
	SourceSemantic   EvidenceSource = "semantic"
)

// priority orders sources for tie breaking; lower sorts first.
func (s EvidenceSource) priority() int {
	if s == SourceStructured {
		return 0
	}
	return 1
}

// EvidenceItem is one retrieved record used to ground an answer.
type EvidenceItem struct {
	Source      EvidenceSource         `json:"source"`
	ReferenceID string                 `json:"reference_id"`
	Payload     map[string]interface{} `json:"payload,omitempty"`
	Snippet     string                 `json:"snippet,omitempty"`
	Score       float64                `json:"relevance_score"`
	Provenance  string                 `json:"provenance"`
	// Related holds the provenances of the other rows a derived item was
	// computed from, such as the older side of a delta.
	Related []string `json:"related_provenances,omitempty"`
}

// Citations returns Provenance followed by the related provenances.
func (i EvidenceItem) Citations() []string {
	return append([]string{i.Provenance}, i.Related...)
}

// EvidenceSet is an ordered, deduplicated sequence of evidence.
type EvidenceSet []EvidenceItem

// DefaultMaxEvidence caps fused sets when no limit is configured.
const DefaultMaxEvidence = 20

// Less reports whether item i sorts before item j: score descending, then
// structured before semantic, then reference id ascending.
func (s EvidenceSet) Less(i, j int) bool {
	a, b := s[i], s[j]
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	if a.Source.priority() != b.Source.priority() {
		return a.Source.priority() < b.Source.priority()
	}
	return a.ReferenceID < b.ReferenceID
}

func (s EvidenceSet) Len() int      { return len(s) }
func (s EvidenceSet) Swap(i, j int) { s[i], s[j] = s[j], s[i] }

// Sort orders the set in place.
func (s EvidenceSet) Sort() { sort.Stable(s) }

// Provenances returns the distinct citation strings of every item in order.
func (s EvidenceSet) Provenances() []string {
	out := make([]string, 0, len(s))
	seen := make(map[string]bool, len(s))
	for _, item := range s {
		for _, p := range item.Citations() {
			if !seen[p] {
				seen[p] = true
				out = append(out, p)
			}
		}
	}
	return out
}

// CountBySource counts the items produced by the given source.
func (s EvidenceSet) CountBySource(src EvidenceSource) int {
	n := 0
	for _, item := range s {
		if item.Source == src {
			n++
		}
	}
	return n
}

// ChunkError marks a terminal chunk produced by a failure.
type ChunkError struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
}

// AnswerChunk is one incremental piece of a streamed answer. The terminal
// chunk has IsFinal set and aggregates every citation used.
type AnswerChunk struct {
	Text      string      `json:"text"`
	IsFinal   bool        `json:"is_final"`
	Citations []string    `json:"citations"`
	Error     *ChunkError `json:"error,omitempty"`
}

// UserScope is the set of teams the caller may see. It is supplied by the
// auth layer and is never widened by the pipeline.
type UserScope struct {
	UserID         string   `json:"user_id,omitempty"`
	AllowedTeamIDs []string `json:"allowed_team_ids"`
}

// IsEmpty reports whether the scope grants access to nothing.
func (s UserScope) IsEmpty() bool {
	for _, id := range s.AllowedTeamIDs {
		if id != "" {
			return false
		}
	}
	return true
}

// Allows reports whether the team is inside the scope.
func (s UserScope) Allows(teamID string) bool {
	for _, id := range s.AllowedTeamIDs {
		if id != "" && id == teamID {
			return true
		}
	}
	return false
}

// TeamIDs returns the non-empty team ids of the scope.
func (s UserScope) TeamIDs() []string {
	out := make([]string, 0, len(s.AllowedTeamIDs))
	for _, id := range s.AllowedTeamIDs {
		if id != "" {
			out = append(out, id)
		}
	}
	return out
}
