package loaders

import (
	"Neurologix/backend/go/internal/search_service/rag/interfaces"
	"Neurologix/backend/go/internal/search_service/rag/schema"
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// AssessmentRecord is one narrative assessment document as exported by the
// clinic's records system.
type AssessmentRecord struct {
	ID             string `json:"id"`
	TeamID         string `json:"team_id"`
	PatientID      string `json:"patient_id"`
	AssessmentDate string `json:"assessment_date"`
	AssessmentType string `json:"assessment_type"`
	SourceTable    string `json:"source_table"`
	SourceRowID    string `json:"source_row_id"`
	Text           string `json:"text"`
}

// JSONLoader implements the Loader interface for a JSON array of
// AssessmentRecords or for JSON Lines (.jsonl) with one record per line.
type JSONLoader struct{}

// NewJSONLoader creates a new JSONLoader.
func NewJSONLoader() *JSONLoader {
	return &JSONLoader{}
}

// compile-time check to ensure JSONLoader implements the Loader interface
var _ interfaces.Loader = (*JSONLoader)(nil)

// Load reads path and returns one Document per record.
func (l *JSONLoader) Load(ctx context.Context, path string) ([]*schema.Document, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var records []AssessmentRecord
	trimmed := bytes.TrimSpace(content)
	if strings.EqualFold(filepath.Ext(path), ".jsonl") || (len(trimmed) > 0 && trimmed[0] == '{') {
		records, err = decodeLines(trimmed)
	} else {
		err = json.Unmarshal(trimmed, &records)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", filepath.Base(path), err)
	}

	docs := make([]*schema.Document, 0, len(records))
	for i, rec := range records {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		doc, err := rec.Document()
		if err != nil {
			return nil, fmt.Errorf("%s record %d: %w", filepath.Base(path), i+1, err)
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

func decodeLines(content []byte) ([]AssessmentRecord, error) {
	var records []AssessmentRecord
	scanner := bufio.NewScanner(bytes.NewReader(content))
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		raw := bytes.TrimSpace(scanner.Bytes())
		if len(raw) == 0 {
			continue
		}
		var rec AssessmentRecord
		if err := json.Unmarshal(raw, &rec); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		records = append(records, rec)
	}
	return records, scanner.Err()
}

// Document validates the record and converts it. Records need a team and
// text; the date, when present, must be YYYY-MM-DD.
func (r AssessmentRecord) Document() (*schema.Document, error) {
	if strings.TrimSpace(r.TeamID) == "" {
		return nil, fmt.Errorf("missing team_id")
	}
	if strings.TrimSpace(r.Text) == "" {
		return nil, fmt.Errorf("missing text")
	}
	if r.AssessmentDate != "" {
		if _, err := time.Parse(schema.DateLayout, r.AssessmentDate); err != nil {
			return nil, fmt.Errorf("invalid assessment_date %q", r.AssessmentDate)
		}
	}
	id := r.ID
	if id == "" {
		id = uuid.NewString()
	}

	meta := map[string]string{schema.MetadataKeyTeamID: r.TeamID}
	for k, v := range map[string]string{
		schema.MetadataKeyPatientID:      r.PatientID,
		schema.MetadataKeyAssessmentDate: r.AssessmentDate,
		schema.MetadataKeyAssessmentType: r.AssessmentType,
		schema.MetadataKeySourceTable:    r.SourceTable,
		schema.MetadataKeySourceRowID:    r.SourceRowID,
	} {
		if v != "" {
			meta[k] = v
		}
	}
	return &schema.Document{ID: id, Text: r.Text, Metadata: meta}, nil
}
