package models

import (
	"time"

	"gorm.io/datatypes"
)

// SymptomAssessment 对应 symptom_assessments 表，每行是一次症状评估。
// 严重程度字段取值 0-6，总分取值 0-132。
type SymptomAssessment struct {
	ID                        string    `gorm:"primaryKey;size:64"`
	PatientID                 string    `gorm:"size:64;not null;index:idx_symptom_patient_date"`
	TeamID                    string    `gorm:"size:64;not null;index"`
	AssessmentDate            time.Time `gorm:"type:date;not null;index:idx_symptom_patient_date"`
	AssessmentType            string    `gorm:"size:32;not null"` // baseline 或 post_injury
	HeadacheSeverity          int       `gorm:"not null;default:0"`
	NauseaSeverity            int       `gorm:"not null;default:0"`
	DizzinessSeverity         int       `gorm:"not null;default:0"`
	ConfusionSeverity         int       `gorm:"not null;default:0"`
	MemoryProblemsSeverity    int       `gorm:"not null;default:0"`
	EmotionalSymptomsSeverity int       `gorm:"not null;default:0"`
	TotalSymptomScore         int       `gorm:"not null;default:0"`
	CreatedAt                 time.Time
}

// TableName 指定表名。
func (SymptomAssessment) TableName() string { return "symptom_assessments" }

// Metrics 返回按列名索引的指标值。
func (s SymptomAssessment) Metrics() map[string]interface{} {
	return map[string]interface{}{
		"headache_severity":           s.HeadacheSeverity,
		"nausea_severity":             s.NauseaSeverity,
		"dizziness_severity":          s.DizzinessSeverity,
		"confusion_severity":          s.ConfusionSeverity,
		"memory_problems_severity":    s.MemoryProblemsSeverity,
		"emotional_symptoms_severity": s.EmotionalSymptomsSeverity,
		"total_symptom_score":         s.TotalSymptomScore,
	}
}

// ReactionTimeTest 对应 reaction_time_tests 表，时间单位为毫秒。
type ReactionTimeTest struct {
	ID                  string    `gorm:"primaryKey;size:64"`
	PatientID           string    `gorm:"size:64;not null;index:idx_reaction_patient_date"`
	TeamID              string    `gorm:"size:64;not null;index"`
	AssessmentDate      time.Time `gorm:"type:date;not null;index:idx_reaction_patient_date"`
	AssessmentType      string    `gorm:"size:32;not null"`
	AverageReactionTime float64   `gorm:"not null"`
	BestReactionTime    float64   `gorm:"not null"`
	WorstReactionTime   float64   `gorm:"not null"`
	TotalAttempts       int       `gorm:"not null"`
	SuccessfulAttempts  int       `gorm:"not null"`
	AccuracyPercentage  float64   `gorm:"not null"`
	CreatedAt           time.Time
}

// TableName 指定表名。
func (ReactionTimeTest) TableName() string { return "reaction_time_tests" }

// Metrics 返回按列名索引的指标值。
func (r ReactionTimeTest) Metrics() map[string]interface{} {
	return map[string]interface{}{
		"average_reaction_time": r.AverageReactionTime,
		"best_reaction_time":    r.BestReactionTime,
		"worst_reaction_time":   r.WorstReactionTime,
		"total_attempts":        r.TotalAttempts,
		"successful_attempts":   r.SuccessfulAttempts,
		"accuracy_percentage":   r.AccuracyPercentage,
	}
}

// AssessmentDocument 是用于语义检索的评估文档，向量保存在 Milvus，正文保存在这里。
type AssessmentDocument struct {
	ID        string            `gorm:"primaryKey;size:128"`
	TeamID    string            `gorm:"size:64;not null;index"`
	PatientID string            `gorm:"size:64;index"`
	Text      string            `gorm:"type:text;not null"`
	Metadata  datatypes.JSONMap // 作用域与出处信息，键见 rag/schema 中的 MetadataKey 常量
	Content   datatypes.JSON    // 文档来源的原始 JSON 记录，可为空
	CreatedAt time.Time
	UpdatedAt time.Time
}

// TableName 指定表名。
func (AssessmentDocument) TableName() string { return "assessment_documents" }
