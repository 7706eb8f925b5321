package router

import (
	"Neurologix/backend/go/internal/search_service/rag/schema"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRoute_AllCombinations(t *testing.T) {
	metric := &schema.SchemaField{Name: "headache_severity", Type: schema.FieldNumeric}

	tests := []struct {
		name     string
		intent   *schema.ParsedIntent
		expected schema.Strategy
	}{
		{"metric only", &schema.ParsedIntent{Metric: metric}, schema.StrategyStructured},
		{"narrative only", &schema.ParsedIntent{RequiresSemantic: true}, schema.StrategySemantic},
		{"metric and narrative", &schema.ParsedIntent{Metric: metric, RequiresSemantic: true}, schema.StrategyHybrid},
		{"nothing resolved", &schema.ParsedIntent{}, schema.StrategyHybrid},
		{"nil intent", nil, schema.StrategySemantic},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Route(tt.intent))
			// Same input, same answer.
			assert.Equal(t, Route(tt.intent), Route(tt.intent))
		})
	}
}

func TestNeeds(t *testing.T) {
	assert.True(t, NeedsStructured(schema.StrategyStructured))
	assert.True(t, NeedsStructured(schema.StrategyHybrid))
	assert.False(t, NeedsStructured(schema.StrategySemantic))
	assert.True(t, NeedsSemantic(schema.StrategySemantic))
	assert.True(t, NeedsSemantic(schema.StrategyHybrid))
	assert.False(t, NeedsSemantic(schema.StrategyStructured))
}
