package vectorstore

import (
	"Neurologix/backend/go/internal/search_service/rag/schema"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func vdoc(id, team, patient string, vec ...float32) *schema.Document {
	return &schema.Document{ID: id, Embedding: vec, Metadata: map[string]string{
		schema.MetadataKeyTeamID:    team,
		schema.MetadataKeyPatientID: patient,
	}}
}

func TestInMemoryStore_Search(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore(2)
	require.NoError(t, s.Add(ctx, []*schema.Document{
		vdoc("a", "T1", "P1", 0, 0),
		vdoc("b", "T1", "P2", 1, 0),
		vdoc("c", "T2", "P3", 0, 0),
		vdoc("d", "T1", "P1", 3, 4),
	}))

	hits, err := s.Search(ctx, []float32{0, 0}, 10, schema.VectorFilter{TeamIDs: []string{"T1"}})
	require.NoError(t, err)
	require.Len(t, hits, 3)
	assert.Equal(t, "a", hits[0].DocumentID)
	assert.Equal(t, 0.0, hits[0].Distance)
	assert.Equal(t, "b", hits[1].DocumentID)
	assert.Equal(t, 1.0, hits[1].Distance)
	assert.Equal(t, 25.0, hits[2].Distance)

	hits, err = s.Search(ctx, []float32{0, 0}, 1, schema.VectorFilter{TeamIDs: []string{"T1"}, PatientIDs: []string{"P2"}})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "b", hits[0].DocumentID)
}

func TestInMemoryStore_Rejections(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore(2)

	err := s.Add(ctx, []*schema.Document{vdoc("a", "T1", "P1", 1)})
	assert.True(t, errors.Is(err, schema.ErrDimensionMismatch))

	_, err = s.Search(ctx, []float32{0, 0}, 5, schema.VectorFilter{})
	assert.True(t, errors.Is(err, schema.ErrScopeViolation))

	_, err = s.Search(ctx, []float32{0}, 5, schema.VectorFilter{TeamIDs: []string{"T1"}})
	assert.True(t, errors.Is(err, schema.ErrDimensionMismatch))
}
