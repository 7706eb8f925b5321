package embeddings

import (
	"Neurologix/backend/go/internal/search_service/rag/interfaces"
	"context"
	"hash/fnv"
	"math"
	"regexp"
	"strings"
)

var tokenPattern = regexp.MustCompile(`[a-z0-9]+`)

// HashingModel is a local embedding model that hashes word unigrams and
// bigrams into a fixed number of buckets and L2-normalizes the result. It
// needs no network and is used by the demo configuration and by tests.
type HashingModel struct {
	dimension int
}

var _ interfaces.EmbeddingModel = (*HashingModel)(nil)

// NewHashingModel creates a HashingModel producing vectors of dimension dim.
func NewHashingModel(dim int) *HashingModel {
	if dim <= 0 {
		dim = 64
	}
	return &HashingModel{dimension: dim}
}

// Dimension returns the vector length.
func (m *HashingModel) Dimension() int { return m.dimension }

// Embed returns one vector per text.
func (m *HashingModel) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make([][]float32, 0, len(texts))
	for _, t := range texts {
		out = append(out, m.vector(t))
	}
	return out, nil
}

func (m *HashingModel) vector(text string) []float32 {
	vec := make([]float32, m.dimension)
	words := tokenPattern.FindAllString(strings.ToLower(text), -1)
	for i, w := range words {
		vec[m.bucket(w)] += 1
		if i > 0 {
			vec[m.bucket(words[i-1]+" "+w)] += 0.5
		}
	}
	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		return vec
	}
	norm = math.Sqrt(norm)
	for i := range vec {
		vec[i] = float32(float64(vec[i]) / norm)
	}
	return vec
}

func (m *HashingModel) bucket(s string) int {
	h := fnv.New32a()
	h.Write([]byte(s))
	return int(h.Sum32() % uint32(m.dimension))
}
