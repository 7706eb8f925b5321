package docstore

import (
	"Neurologix/backend/go/internal/search_service/rag/schema"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInMemoryDocStore(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryDocStore()

	doc := &schema.Document{ID: "d1", Text: "note", Embedding: []float32{1}, Metadata: map[string]string{"team_id": "T"}}
	require.NoError(t, s.Add(ctx, []*schema.Document{doc, nil}))

	got, err := s.Get(ctx, []string{"d1", "missing"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "note", got["d1"].Text)
	assert.Nil(t, got["d1"].Embedding)
	assert.NotNil(t, doc.Embedding, "caller's document must not be modified")

	require.NoError(t, s.Delete(ctx, []string{"d1"}))
	got, err = s.Get(ctx, []string{"d1"})
	require.NoError(t, err)
	assert.Empty(t, got)
}
