package semantic

import (
	"fmt"
	"math"
)

// Score transform names accepted in configuration.
const (
	TransformInverse     = "inverse"
	TransformExponential = "exponential"
	TransformLinear      = "linear"
)

// ScoreTransform maps a vector distance to a relevance score in [0,1].
// Implementations must be monotonically non-increasing in distance.
type ScoreTransform func(distance float64) float64

// NewScoreTransform returns the named transform. scale tunes exponential
// (decay length) and linear (distance at which the score reaches zero);
// inverse ignores it.
func NewScoreTransform(name string, scale float64) (ScoreTransform, error) {
	if scale <= 0 {
		scale = 1
	}
	switch name {
	case "", TransformInverse:
		return func(d float64) float64 { return clamp(1 / (1 + math.Max(d, 0))) }, nil
	case TransformExponential:
		return func(d float64) float64 { return clamp(math.Exp(-math.Max(d, 0) / scale)) }, nil
	case TransformLinear:
		return func(d float64) float64 { return clamp(1 - math.Max(d, 0)/scale) }, nil
	}
	return nil, fmt.Errorf("unknown score transform %q", name)
}

func clamp(f float64) float64 {
	if math.IsNaN(f) {
		return 0
	}
	return math.Min(1, math.Max(0, f))
}
