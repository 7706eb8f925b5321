package schema

import "time"

const (
	// MetadataKeyPatientID is the patient a document belongs to.
	MetadataKeyPatientID = "patient_id"
	// MetadataKeyTeamID is the team a document belongs to; it drives scope filtering.
	MetadataKeyTeamID = "team_id"
	// MetadataKeyAssessmentDate is the YYYY-MM-DD date of the originating assessment.
	MetadataKeyAssessmentDate = "assessment_date"
	// MetadataKeyAssessmentType is baseline or post_injury.
	MetadataKeyAssessmentType = "assessment_type"
	// MetadataKeySourceTable links a document to the structured table row it was derived from.
	MetadataKeySourceTable = "source_table"
	// MetadataKeySourceRowID is the row id inside MetadataKeySourceTable.
	MetadataKeySourceRowID = "source_row_id"
)

// DateLayout is the date format used in provenance strings and metadata.
const DateLayout = "2006-01-02"

// Document is an assessment document as it flows through indexing and
// semantic retrieval.
type Document struct {
	// ID is the unique identifier for this document.
	ID string

	// Text is the flattened, embeddable text of the document.
	Text string

	// Embedding is the vector representation of the text.
	Embedding []float32

	// Metadata holds scope and provenance information (see the MetadataKey constants).
	Metadata map[string]string
}

// Predicate is one parameterized column condition.
type Predicate struct {
	Column string
	Op     string
	Value  interface{}
}

// Order is one ORDER BY term.
type Order struct {
	Column string
	Desc   bool
}

// StructuredQuery is the only query shape the structured store accepts.
// ScopeTeamIDs is mandatory; stores reject queries without it.
type StructuredQuery struct {
	Table        string
	Columns      []string
	Predicates   []Predicate
	ScopeTeamIDs []string
	OrderBy      []Order
	Limit        int
}

// Row is one record returned by the structured store.
type Row struct {
	Table          string
	RowID          string
	PatientID      string
	TeamID         string
	AssessmentDate time.Time
	AssessmentType string
	Values         map[string]interface{}
}

// VectorHit is one nearest-neighbour result. Hits are ordered by ascending Distance.
type VectorHit struct {
	DocumentID string
	Distance   float64
	Metadata   map[string]string
}

// VectorFilter restricts a vector search to documents visible in a scope.
type VectorFilter struct {
	TeamIDs    []string
	PatientIDs []string
}

// AuditEvent summarises one answered request. It never carries answer text.
type AuditEvent struct {
	RequestID       string    `json:"request_id"`
	UserID          string    `json:"user_id,omitempty"`
	TeamIDs         []string  `json:"team_ids"`
	Route           Strategy  `json:"route,omitempty"`
	Metric          string    `json:"metric,omitempty"`
	StructuredCount int       `json:"structured_count"`
	SemanticCount   int       `json:"semantic_count"`
	Degraded        bool      `json:"degraded"`
	EmptyEvidence   bool      `json:"empty_evidence"`
	ErrorKind       ErrorKind `json:"error_kind,omitempty"`
	LatencyMs       int64     `json:"latency_ms"`
	Timestamp       time.Time `json:"timestamp"`
}

// StructuredReference is the reference id of a structured row. Documents
// derived from the same row reuse it so fusion can deduplicate them.
func StructuredReference(table, rowID string) string {
	return table + ":" + rowID
}

// StructuredProvenance is the citation string of a structured row.
func StructuredProvenance(table, rowID string, date time.Time) string {
	if date.IsZero() {
		return StructuredReference(table, rowID)
	}
	return StructuredReference(table, rowID) + ":" + date.Format(DateLayout)
}

// Columns every structured table carries besides its metrics.
const (
	ColumnPatientID      = "patient_id"
	ColumnTeamID         = "team_id"
	ColumnAssessmentDate = "assessment_date"
	ColumnAssessmentType = "assessment_type"
)

// Predicate operators accepted by structured stores.
const (
	OpEq  = "="
	OpNe  = "!="
	OpGt  = ">"
	OpGte = ">="
	OpLt  = "<"
	OpLte = "<="
	OpIn  = "in"
)

// AllowedOps is the operator whitelist shared by every structured store.
var AllowedOps = map[string]bool{OpEq: true, OpNe: true, OpGt: true, OpGte: true, OpLt: true, OpLte: true, OpIn: true}
