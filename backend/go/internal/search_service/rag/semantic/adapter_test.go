package semantic

import (
	"Neurologix/backend/go/internal/search_service/rag/embeddings"
	"Neurologix/backend/go/internal/search_service/rag/sampledata"
	"Neurologix/backend/go/internal/search_service/rag/schema"
	"Neurologix/backend/go/internal/search_service/rag/storages/docstore"
	"Neurologix/backend/go/internal/search_service/rag/storages/vectorstore"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const testDim = 64

type mockEmbedder struct {
	mock.Mock
}

func (m *mockEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	args := m.Called(ctx, texts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([][]float32), args.Error(1)
}

var (
	lsu  = schema.UserScope{AllowedTeamIDs: []string{sampledata.TeamLSU}}
	demo = schema.UserScope{AllowedTeamIDs: []string{sampledata.TeamDemo}}
)

func newSampleStores(t *testing.T) (*vectorstore.InMemoryStore, *docstore.InMemoryDocStore) {
	t.Helper()
	ctx := context.Background()
	model := embeddings.NewHashingModel(testDim)
	vectors := vectorstore.NewInMemoryStore(testDim)
	docs := docstore.NewInMemoryDocStore()

	sample := sampledata.Documents()
	for _, d := range sample {
		vecs, err := model.Embed(ctx, []string{d.Text})
		require.NoError(t, err)
		d.Embedding = vecs[0]
	}
	require.NoError(t, vectors.Add(ctx, sample))
	require.NoError(t, docs.Add(ctx, sample))
	return vectors, docs
}

func newSampleAdapter(t *testing.T, opts ...Option) *Adapter {
	vectors, docs := newSampleStores(t)
	opts = append([]Option{WithDocStore(docs), WithRetryBackoff(0)}, opts...)
	return NewAdapter(embeddings.NewHashingModel(testDim), vectors, opts...)
}

func TestRetrieve_ScopedAndHydrated(t *testing.T) {
	a := newSampleAdapter(t)

	set, err := a.Retrieve(context.Background(), "persistent headaches after a helmet collision", lsu, 3)
	require.NoError(t, err)
	require.NotEmpty(t, set)
	assert.LessOrEqual(t, len(set), 3)

	var found bool
	for i, item := range set {
		assert.Equal(t, schema.SourceSemantic, item.Source)
		assert.Equal(t, sampledata.TeamLSU, item.Payload[schema.MetadataKeyTeamID])
		assert.GreaterOrEqual(t, item.Score, 0.0)
		assert.LessOrEqual(t, item.Score, 1.0)
		if i > 0 {
			assert.GreaterOrEqual(t, set[i-1].Score, item.Score)
		}
		if item.Payload["document_id"] == "doc-s002" {
			found = true
			assert.Equal(t, "symptom_assessments:S002", item.ReferenceID)
			assert.Equal(t, "assessment_documents:doc-s002:2024-09-20", item.Provenance)
			assert.Contains(t, item.Snippet, "helmet-to-helmet")
		}
	}
	assert.True(t, found, "expected the post-injury note for P001")
}

func TestRetrieve_NeverLeavesScope(t *testing.T) {
	a := newSampleAdapter(t)

	set, err := a.Retrieve(context.Background(), "persistent headaches", demo, 10)
	require.NoError(t, err)
	require.Len(t, set, 1)
	assert.Equal(t, "symptom_assessments:S005", set[0].ReferenceID)
}

func TestRetrieve_EmptyScopeNeverEmbeds(t *testing.T) {
	embedder := new(mockEmbedder)
	a := NewAdapter(embedder, vectorstore.NewInMemoryStore(testDim))

	_, err := a.Retrieve(context.Background(), "anything", schema.UserScope{}, 5)
	require.Error(t, err)
	assert.Equal(t, schema.ScopeViolation, schema.KindOf(err))
	embedder.AssertNotCalled(t, "Embed", mock.Anything, mock.Anything)
}

func TestRetrieveFor_PatientNarrowing(t *testing.T) {
	a := newSampleAdapter(t)
	intent := &schema.ParsedIntent{
		Question:    "what did the trainer say about irritability",
		SubjectRefs: []schema.EntityRef{{Kind: schema.EntityPatient, ID: "P002"}},
	}

	set, err := a.RetrieveFor(context.Background(), intent, lsu, 10)
	require.NoError(t, err)
	require.Len(t, set, 2)
	ids := []string{set[0].ReferenceID, set[1].ReferenceID}
	assert.ElementsMatch(t, []string{"note-p002-trainer", "symptom_assessments:S004"}, ids)
	for _, item := range set {
		assert.Equal(t, "P002", item.Payload[schema.MetadataKeyPatientID])
	}
}

func TestRetrieveFor_ForeignTeamRefIsEmpty(t *testing.T) {
	a := newSampleAdapter(t)
	intent := &schema.ParsedIntent{
		Question:    "notes",
		SubjectRefs: []schema.EntityRef{{Kind: schema.EntityTeam, ID: sampledata.TeamDemo}},
	}
	set, err := a.RetrieveFor(context.Background(), intent, lsu, 10)
	require.NoError(t, err)
	assert.Empty(t, set)
}

func TestRetrieve_RetriesOnce(t *testing.T) {
	vectors, _ := newSampleStores(t)
	vec, _ := embeddings.NewHashingModel(testDim).Embed(context.Background(), []string{"dizziness"})

	embedder := new(mockEmbedder)
	embedder.On("Embed", mock.Anything, []string{"dizziness"}).Return(nil, errors.New("503 unavailable")).Once()
	embedder.On("Embed", mock.Anything, []string{"dizziness"}).Return(vec, nil).Once()

	a := NewAdapter(embedder, vectors, WithRetryBackoff(0))
	set, err := a.Retrieve(context.Background(), "dizziness", lsu, 2)
	require.NoError(t, err)
	assert.Len(t, set, 2)
	embedder.AssertNumberOfCalls(t, "Embed", 2)
}

func TestRetrieve_SecondFailureIsSemanticSourceFailure(t *testing.T) {
	embedder := new(mockEmbedder)
	embedder.On("Embed", mock.Anything, mock.Anything).Return(nil, errors.New("connection reset"))

	a := NewAdapter(embedder, vectorstore.NewInMemoryStore(testDim), WithRetryBackoff(0))
	_, err := a.Retrieve(context.Background(), "dizziness", lsu, 2)
	require.Error(t, err)
	assert.Equal(t, schema.SemanticSourceFailure, schema.KindOf(err))
	embedder.AssertNumberOfCalls(t, "Embed", 2)
}

func TestRetrieve_DimensionMismatchIsNotRetried(t *testing.T) {
	embedder := new(mockEmbedder)
	embedder.On("Embed", mock.Anything, mock.Anything).Return([][]float32{{1, 2, 3}}, nil)

	a := NewAdapter(embedder, vectorstore.NewInMemoryStore(testDim), WithRetryBackoff(0))
	_, err := a.Retrieve(context.Background(), "dizziness", lsu, 2)
	require.Error(t, err)
	assert.True(t, errors.Is(err, schema.ErrDimensionMismatch))
	embedder.AssertNumberOfCalls(t, "Embed", 1)
}

func TestRetrieve_CancelledContext(t *testing.T) {
	a := newSampleAdapter(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := a.Retrieve(ctx, "dizziness", lsu, 2)
	require.Error(t, err)
	assert.Equal(t, schema.SemanticSourceFailure, schema.KindOf(err))
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestVerifyDimension(t *testing.T) {
	vectors := vectorstore.NewInMemoryStore(testDim)

	assert.NoError(t, NewAdapter(embeddings.NewHashingModel(testDim), vectors).VerifyDimension(context.Background()))

	err := NewAdapter(embeddings.NewHashingModel(16), vectors).VerifyDimension(context.Background())
	require.Error(t, err)
	assert.Equal(t, schema.ConfigurationError, schema.KindOf(err))
	assert.True(t, errors.Is(err, schema.ErrDimensionMismatch))
}

func TestScoreTransforms(t *testing.T) {
	inverse, err := NewScoreTransform("", 0)
	require.NoError(t, err)
	assert.Equal(t, 1.0, inverse(0))
	assert.Equal(t, 0.5, inverse(1))
	assert.Equal(t, 1.0, inverse(-3))

	exp, err := NewScoreTransform(TransformExponential, 2)
	require.NoError(t, err)
	assert.InDelta(t, 0.3679, exp(2), 1e-4)

	linear, err := NewScoreTransform(TransformLinear, 4)
	require.NoError(t, err)
	assert.Equal(t, 0.75, linear(1))
	assert.Equal(t, 0.0, linear(10))

	for _, f := range []ScoreTransform{inverse, exp, linear} {
		prev := f(0)
		for d := 0.25; d < 8; d += 0.25 {
			assert.LessOrEqual(t, f(d), prev)
			prev = f(d)
		}
	}

	_, err = NewScoreTransform("cosine", 1)
	assert.Error(t, err)
}
