// Package sampledata holds a small, fixed set of concussion assessments used
// by the demo configuration, the indexer's --sample flag and tests.
package sampledata

import (
	"Neurologix/backend/go/internal/search_service/rag/catalog"
	"Neurologix/backend/go/internal/search_service/rag/schema"
	"time"
)

// Team ids present in the sample data.
const (
	TeamLSU  = "LSU_TIGERS"
	TeamDemo = "DEMO_TEAM"
)

// Patient is a sample athlete.
type Patient struct {
	ID     string
	Name   string
	TeamID string
}

// Patients returns the sample athletes.
func Patients() []Patient {
	return []Patient{
		{ID: "P001", Name: "John Smith", TeamID: TeamLSU},
		{ID: "P002", Name: "Sarah Wilson", TeamID: TeamLSU},
		{ID: "P003", Name: "Alex Rivera", TeamID: TeamDemo},
	}
}

func day(year int, month time.Month, d int) time.Time {
	return time.Date(year, month, d, 0, 0, 0, 0, time.UTC)
}

func symptom(id, patient, team, kind string, date time.Time, headache, nausea, dizziness, confusion, memory, emotional, total int) schema.Row {
	return schema.Row{
		Table:          catalog.TableSymptom,
		RowID:          id,
		PatientID:      patient,
		TeamID:         team,
		AssessmentDate: date,
		AssessmentType: kind,
		Values: map[string]interface{}{
			"headache_severity":           headache,
			"nausea_severity":             nausea,
			"dizziness_severity":          dizziness,
			"confusion_severity":          confusion,
			"memory_problems_severity":    memory,
			"emotional_symptoms_severity": emotional,
			"total_symptom_score":         total,
		},
	}
}

func reaction(id, patient, team, kind string, date time.Time, avg, best, worst float64, attempts, successes int, accuracy float64) schema.Row {
	return schema.Row{
		Table:          catalog.TableReactionTime,
		RowID:          id,
		PatientID:      patient,
		TeamID:         team,
		AssessmentDate: date,
		AssessmentType: kind,
		Values: map[string]interface{}{
			"average_reaction_time": avg,
			"best_reaction_time":    best,
			"worst_reaction_time":   worst,
			"total_attempts":        attempts,
			"successful_attempts":   successes,
			"accuracy_percentage":   accuracy,
		},
	}
}

// Rows returns the structured assessment rows.
func Rows() []schema.Row {
	return []schema.Row{
		symptom("S001", "P001", TeamLSU, schema.AnchorBaseline, day(2024, time.August, 15), 2, 0, 1, 0, 1, 1, 35),
		symptom("S002", "P001", TeamLSU, schema.AnchorPostInjury, day(2024, time.September, 20), 4, 2, 3, 2, 2, 3, 78),
		symptom("S003", "P002", TeamLSU, schema.AnchorBaseline, day(2024, time.August, 16), 1, 0, 0, 0, 0, 1, 15),
		symptom("S004", "P002", TeamLSU, schema.AnchorPostInjury, day(2024, time.September, 25), 3, 1, 2, 1, 1, 2, 52),
		symptom("S005", "P003", TeamDemo, schema.AnchorBaseline, day(2024, time.August, 20), 0, 0, 0, 0, 0, 0, 8),
		reaction("R001", "P001", TeamLSU, schema.AnchorBaseline, day(2024, time.August, 15), 245.5, 198, 312, 20, 19, 94),
		reaction("R002", "P001", TeamLSU, schema.AnchorPostInjury, day(2024, time.September, 20), 298.7, 240, 402, 20, 17, 85),
		reaction("R003", "P002", TeamLSU, schema.AnchorBaseline, day(2024, time.August, 16), 260.2, 210, 330, 20, 19, 95),
	}
}

// Documents returns the narrative assessment documents, linked to their rows.
func Documents() []*schema.Document {
	doc := func(id, rowTable, rowID, patient, team, kind string, date time.Time, text string) *schema.Document {
		return &schema.Document{
			ID:   id,
			Text: text,
			Metadata: map[string]string{
				schema.MetadataKeyPatientID:      patient,
				schema.MetadataKeyTeamID:         team,
				schema.MetadataKeyAssessmentDate: date.Format(schema.DateLayout),
				schema.MetadataKeyAssessmentType: kind,
				schema.MetadataKeySourceTable:    rowTable,
				schema.MetadataKeySourceRowID:    rowID,
			},
		}
	}
	return []*schema.Document{
		doc("doc-s001", catalog.TableSymptom, "S001", "P001", TeamLSU, schema.AnchorBaseline, day(2024, time.August, 15),
			"Preseason baseline for P001. Athlete reports occasional mild headaches after long film sessions and otherwise feels well."),
		doc("doc-s002", catalog.TableSymptom, "S002", "P001", TeamLSU, schema.AnchorPostInjury, day(2024, time.September, 20),
			"Post-injury check for P001 after a helmet-to-helmet collision in practice. Athlete reported persistent headaches, sensitivity to light and trouble concentrating in class."),
		doc("doc-s004", catalog.TableSymptom, "S004", "P002", TeamLSU, schema.AnchorPostInjury, day(2024, time.September, 25),
			"P002 evaluated after a fall during conditioning. She described dizziness when standing quickly and mild nausea in the evenings."),
		doc("doc-s005", catalog.TableSymptom, "S005", "P003", TeamDemo, schema.AnchorBaseline, day(2024, time.August, 20),
			"Baseline for P003 on the demo team. No complaints reported."),
		{
			ID:   "note-p002-trainer",
			Text: "Trainer note: P002 mentioned feeling more irritable since the fall and asked to skip film review.",
			Metadata: map[string]string{
				schema.MetadataKeyPatientID:      "P002",
				schema.MetadataKeyTeamID:         TeamLSU,
				schema.MetadataKeyAssessmentDate: day(2024, time.September, 27).Format(schema.DateLayout),
			},
		},
	}
}
