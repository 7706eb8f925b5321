package synthesis

import (
	"Neurologix/backend/go/internal/search_service/rag/interfaces"
	"Neurologix/backend/go/internal/search_service/rag/schema"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockLLM struct {
	mock.Mock
}

func (m *mockLLM) Generate(ctx context.Context, req interfaces.GenerationRequest) (string, error) {
	args := m.Called(ctx, req)
	return args.String(0), args.Error(1)
}

func (m *mockLLM) Stream(ctx context.Context, req interfaces.GenerationRequest) (<-chan interfaces.Fragment, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(<-chan interfaces.Fragment), args.Error(1)
}

func fragments(parts ...interfaces.Fragment) <-chan interfaces.Fragment {
	ch := make(chan interfaces.Fragment, len(parts))
	for _, p := range parts {
		ch <- p
	}
	close(ch)
	return ch
}

func texts(parts ...string) <-chan interfaces.Fragment {
	frags := make([]interfaces.Fragment, 0, len(parts))
	for _, p := range parts {
		frags = append(frags, interfaces.Fragment{Text: p})
	}
	return fragments(frags...)
}

func collect(t *testing.T, ch <-chan schema.AnswerChunk) []schema.AnswerChunk {
	t.Helper()
	var chunks []schema.AnswerChunk
	timeout := time.After(2 * time.Second)
	for {
		select {
		case c, ok := <-ch:
			if !ok {
				return chunks
			}
			chunks = append(chunks, c)
		case <-timeout:
			t.Fatal("answer stream did not close")
		}
	}
}

func joined(chunks []schema.AnswerChunk) string {
	var sb strings.Builder
	for _, c := range chunks {
		sb.WriteString(c.Text)
	}
	return sb.String()
}

var baseline = schema.EvidenceSet{{
	Source:      schema.SourceStructured,
	ReferenceID: "symptom_assessments:S001",
	Payload:     map[string]interface{}{"patient_id": "P001", "headache_severity": 2},
	Snippet:     "P001 baseline 2024-08-15: headache_severity=2",
	Score:       1,
	Provenance:  "symptom_assessments:S001:2024-08-15",
}}

func TestSynthesize_EmptyEvidence(t *testing.T) {
	llm := new(mockLLM)
	chunks := collect(t, New(llm).Synthesize(context.Background(), "anything", nil))

	require.Len(t, chunks, 1)
	assert.True(t, chunks[0].IsFinal)
	assert.Equal(t, InsufficientEvidence, chunks[0].Text)
	assert.Empty(t, chunks[0].Citations)
	assert.Nil(t, chunks[0].Error)
	llm.AssertNotCalled(t, "Stream", mock.Anything, mock.Anything)
}

func TestSynthesize_CitationsAndWordBoundaries(t *testing.T) {
	llm := new(mockLLM)
	llm.On("Stream", mock.Anything, mock.MatchedBy(func(req interfaces.GenerationRequest) bool {
		return req.Mode == interfaces.ModeSynthesizeAnswer && strings.Contains(req.Evidence, "[1] (symptom_assessments:S001:2024-08-15)")
	})).Return(texts("P001 had a head", "ache severity of 2 [", "1] at baseline."), nil)

	chunks := collect(t, New(llm).Synthesize(context.Background(), "q", baseline))
	require.NotEmpty(t, chunks)

	final := chunks[len(chunks)-1]
	assert.True(t, final.IsFinal)
	assert.Equal(t, []string{"symptom_assessments:S001:2024-08-15"}, final.Citations)
	assert.Equal(t, "P001 had a headache severity of 2 at baseline.", joined(chunks))

	for _, c := range chunks[:len(chunks)-1] {
		assert.False(t, c.IsFinal)
		assert.NotContains(t, c.Text, "head ")
	}
	var cited bool
	for _, c := range chunks {
		if len(c.Citations) > 0 && !c.IsFinal {
			cited = true
			assert.Equal(t, []string{"symptom_assessments:S001:2024-08-15"}, c.Citations)
		}
	}
	assert.True(t, cited)
}

func TestSynthesize_RedactsUngroundedNumbers(t *testing.T) {
	llm := new(mockLLM)
	llm.On("Stream", mock.Anything, mock.Anything).
		Return(texts("Severity was 2, up from 7 (about 35%) on 2024-08-15."), nil)

	chunks := collect(t, New(llm).Synthesize(context.Background(), "q", baseline))
	text := joined(chunks)
	assert.Contains(t, text, "Severity was 2,")
	assert.Contains(t, text, "up from [unverified]")
	assert.Contains(t, text, "(about [unverified]%)")
	assert.Contains(t, text, "2024-08-15.")
}

func TestSynthesize_RedactsNumbersInsideTokens(t *testing.T) {
	llm := new(mockLLM)
	llm.On("Stream", mock.Anything, mock.Anything).
		Return(texts("Headache was 9/6 and reaction 999ms severity=7 [1]. ", "Total 1,234 (7%)x but P001 had 2."), nil)

	chunks := collect(t, New(llm).Synthesize(context.Background(), "q", baseline))
	text := joined(chunks)

	assert.Contains(t, text, "Headache was [unverified]/[unverified] and reaction [unverified]ms severity=[unverified].")
	assert.Contains(t, text, "Total 1,[unverified] ([unverified]%)x but P001 had 2.")
	for _, leaked := range []string{"9", "6", "999", "7", "234"} {
		assert.NotContains(t, text, leaked)
	}
}

func TestSynthesize_DerivedItemCitesEveryRow(t *testing.T) {
	delta := schema.EvidenceSet{{
		Source:      schema.SourceStructured,
		ReferenceID: "delta:symptom_assessments:P001:total_symptom_score",
		Snippet:     "P001 total_symptom_score increased from 35 (baseline) to 78 (post_injury), change 43",
		Score:       1,
		Provenance:  "symptom_assessments:S002:2024-09-20",
		Related:     []string{"symptom_assessments:S001:2024-08-15"},
	}}
	llm := new(mockLLM)
	llm.On("Stream", mock.Anything, mock.Anything).Return(texts("The score rose by 43 [1]."), nil)

	chunks := collect(t, New(llm).Synthesize(context.Background(), "q", delta))
	require.GreaterOrEqual(t, len(chunks), 2)
	want := []string{"symptom_assessments:S002:2024-09-20", "symptom_assessments:S001:2024-08-15"}
	assert.Equal(t, want, chunks[len(chunks)-2].Citations)
	assert.Equal(t, want, chunks[len(chunks)-1].Citations)
	assert.Equal(t, "The score rose by 43.", joined(chunks))
}

func TestSynthesize_UncitedAnswerCitesAllEvidence(t *testing.T) {
	set := append(schema.EvidenceSet{}, baseline...)
	set = append(set, schema.EvidenceItem{Source: schema.SourceSemantic, ReferenceID: "note", Snippet: "no complaints", Provenance: "assessment_documents:note"})

	llm := new(mockLLM)
	llm.On("Stream", mock.Anything, mock.Anything).Return(texts("Nothing notable."), nil)

	chunks := collect(t, New(llm).Synthesize(context.Background(), "q", set))
	final := chunks[len(chunks)-1]
	assert.Equal(t, []string{"symptom_assessments:S001:2024-08-15", "assessment_documents:note"}, final.Citations)
}

func TestSynthesize_StartFailure(t *testing.T) {
	llm := new(mockLLM)
	llm.On("Stream", mock.Anything, mock.Anything).Return(nil, errors.New("401 unauthorized"))

	chunks := collect(t, New(llm).Synthesize(context.Background(), "q", baseline))
	require.Len(t, chunks, 1)
	assert.True(t, chunks[0].IsFinal)
	assert.Empty(t, chunks[0].Text)
	require.NotNil(t, chunks[0].Error)
	assert.Equal(t, schema.GenerationFailure, chunks[0].Error.Kind)
}

func TestSynthesize_MidStreamFailure(t *testing.T) {
	llm := new(mockLLM)
	llm.On("Stream", mock.Anything, mock.Anything).Return(fragments(
		interfaces.Fragment{Text: "P001 had a "},
		interfaces.Fragment{Err: errors.New("stream reset")},
	), nil)

	chunks := collect(t, New(llm).Synthesize(context.Background(), "q", baseline))
	require.Len(t, chunks, 2)
	assert.Equal(t, "P001 had a", chunks[0].Text)
	last := chunks[1]
	assert.True(t, last.IsFinal)
	assert.Empty(t, last.Text)
	require.NotNil(t, last.Error)
	assert.Equal(t, schema.GenerationFailure, last.Error.Kind)
}

func TestSynthesize_EmptyGenerationIsFailure(t *testing.T) {
	llm := new(mockLLM)
	llm.On("Stream", mock.Anything, mock.Anything).Return(texts(), nil)

	chunks := collect(t, New(llm).Synthesize(context.Background(), "q", baseline))
	require.Len(t, chunks, 1)
	require.NotNil(t, chunks[0].Error)
}

func TestSynthesize_CancelledCallerClosesStream(t *testing.T) {
	never := make(chan interfaces.Fragment)
	llm := new(mockLLM)
	llm.On("Stream", mock.Anything, mock.Anything).Return((<-chan interfaces.Fragment)(never), nil)

	ctx, cancel := context.WithCancel(context.Background())
	ch := New(llm).Synthesize(ctx, "q", baseline)
	cancel()
	collect(t, ch)
}

func TestTemplateGenerator(t *testing.T) {
	chunks := collect(t, New(NewTemplateGenerator()).Synthesize(context.Background(), "q", baseline))
	final := chunks[len(chunks)-1]
	assert.True(t, final.IsFinal)
	assert.Nil(t, final.Error)
	assert.Equal(t, []string{"symptom_assessments:S001:2024-08-15"}, final.Citations)
	assert.Equal(t, "Based on the available records: P001 baseline 2024-08-15: headache_severity=2.", joined(chunks))
	assert.NotContains(t, joined(chunks), "[unverified]")

	out, err := NewTemplateGenerator().Generate(context.Background(), interfaces.GenerationRequest{Mode: interfaces.ModeExtractIntent})
	require.NoError(t, err)
	assert.Equal(t, "{}", out)
}

func TestRenderEvidence(t *testing.T) {
	set := schema.EvidenceSet{
		{Provenance: "a:1", Snippet: "first\nline"},
		{Provenance: "b:2", Payload: map[string]interface{}{"k": 1}},
	}
	assert.Equal(t, "[1] (a:1) first line\n[2] (b:2) map[k:1]\n", RenderEvidence(set))
}
