package router

import "Neurologix/backend/go/internal/search_service/rag/schema"

// Route picks the retrieval strategy for an intent. It is a pure function:
// a resolved metric without narrative language is STRUCTURED, narrative
// language without a metric is SEMANTIC and everything else is HYBRID.
func Route(intent *schema.ParsedIntent) schema.Strategy {
	hasMetric := intent != nil && intent.Metric != nil
	semantic := intent == nil || intent.RequiresSemantic
	switch {
	case hasMetric && !semantic:
		return schema.StrategyStructured
	case !hasMetric && semantic:
		return schema.StrategySemantic
	default:
		return schema.StrategyHybrid
	}
}

// NeedsStructured reports whether the strategy queries the structured store.
func NeedsStructured(s schema.Strategy) bool {
	return s == schema.StrategyStructured || s == schema.StrategyHybrid
}

// NeedsSemantic reports whether the strategy queries the vector store.
func NeedsSemantic(s schema.Strategy) bool {
	return s == schema.StrategySemantic || s == schema.StrategyHybrid
}
