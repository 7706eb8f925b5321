package dal

import (
	"Neurologix/backend/go/internal/models"
	"Neurologix/backend/go/internal/search_service/rag/catalog"
	"Neurologix/backend/go/internal/search_service/rag/schema"
	"context"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Upsert 写入结构化评估行，主键冲突时覆盖指标值。
func (dal *AssessmentDAL) Upsert(ctx context.Context, rows []schema.Row) error {
	symptoms, reactions, err := toModels(rows)
	if err != nil {
		return err
	}
	return dal.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		upsert := tx.Clauses(clause.OnConflict{UpdateAll: true})
		if len(symptoms) > 0 {
			if err := upsert.Create(&symptoms).Error; err != nil {
				return fmt.Errorf("failed to write symptom assessments: %w", err)
			}
		}
		if len(reactions) > 0 {
			if err := upsert.Create(&reactions).Error; err != nil {
				return fmt.Errorf("failed to write reaction time tests: %w", err)
			}
		}
		return nil
	})
}

func toModels(rows []schema.Row) ([]models.SymptomAssessment, []models.ReactionTimeTest, error) {
	var symptoms []models.SymptomAssessment
	var reactions []models.ReactionTimeTest
	for _, r := range rows {
		switch r.Table {
		case catalog.TableSymptom:
			symptoms = append(symptoms, models.SymptomAssessment{
				ID:                        r.RowID,
				PatientID:                 r.PatientID,
				TeamID:                    r.TeamID,
				AssessmentDate:            r.AssessmentDate,
				AssessmentType:            r.AssessmentType,
				HeadacheSeverity:          intValue(r.Values["headache_severity"]),
				NauseaSeverity:            intValue(r.Values["nausea_severity"]),
				DizzinessSeverity:         intValue(r.Values["dizziness_severity"]),
				ConfusionSeverity:         intValue(r.Values["confusion_severity"]),
				MemoryProblemsSeverity:    intValue(r.Values["memory_problems_severity"]),
				EmotionalSymptomsSeverity: intValue(r.Values["emotional_symptoms_severity"]),
				TotalSymptomScore:         intValue(r.Values["total_symptom_score"]),
			})
		case catalog.TableReactionTime:
			reactions = append(reactions, models.ReactionTimeTest{
				ID:                  r.RowID,
				PatientID:           r.PatientID,
				TeamID:              r.TeamID,
				AssessmentDate:      r.AssessmentDate,
				AssessmentType:      r.AssessmentType,
				AverageReactionTime: floatValue(r.Values["average_reaction_time"]),
				BestReactionTime:    floatValue(r.Values["best_reaction_time"]),
				WorstReactionTime:   floatValue(r.Values["worst_reaction_time"]),
				TotalAttempts:       intValue(r.Values["total_attempts"]),
				SuccessfulAttempts:  intValue(r.Values["successful_attempts"]),
				AccuracyPercentage:  floatValue(r.Values["accuracy_percentage"]),
			})
		default:
			return nil, nil, fmt.Errorf("row %s: unknown table %q", r.RowID, r.Table)
		}
	}
	return symptoms, reactions, nil
}

func intValue(v interface{}) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	}
	return 0
}

func floatValue(v interface{}) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	case int64:
		return float64(n)
	}
	return 0
}
