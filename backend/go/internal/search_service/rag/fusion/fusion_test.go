package fusion

import (
	"Neurologix/backend/go/internal/search_service/rag/schema"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func structured(ref string, score float64) schema.EvidenceItem {
	return schema.EvidenceItem{Source: schema.SourceStructured, ReferenceID: ref, Score: score, Provenance: ref}
}

func semantic(ref string, score float64) schema.EvidenceItem {
	return schema.EvidenceItem{Source: schema.SourceSemantic, ReferenceID: ref, Score: score, Provenance: "docs:" + ref}
}

func TestFuse_DeduplicatesFirstWins(t *testing.T) {
	fused := Fuse(10,
		schema.EvidenceSet{structured("symptom_assessments:S002", 1)},
		schema.EvidenceSet{semantic("symptom_assessments:S002", 0.9), semantic("note-1", 0.4)},
	)
	require.Len(t, fused, 2)
	assert.Equal(t, schema.SourceStructured, fused[0].Source)
	assert.Equal(t, "symptom_assessments:S002", fused[0].ReferenceID)
	assert.Equal(t, "note-1", fused[1].ReferenceID)
}

func TestFuse_OrderingAndTies(t *testing.T) {
	fused := Fuse(10,
		schema.EvidenceSet{structured("b", 0.5), structured("a", 0.5)},
		schema.EvidenceSet{semantic("0", 0.5), semantic("z", 0.9)},
	)
	var refs []string
	for _, item := range fused {
		refs = append(refs, item.ReferenceID)
	}
	assert.Equal(t, []string{"z", "a", "b", "0"}, refs)
	for i := 1; i < len(fused); i++ {
		assert.GreaterOrEqual(t, fused[i-1].Score, fused[i].Score)
	}
}

func TestFuse_Truncates(t *testing.T) {
	var set schema.EvidenceSet
	for i := 0; i < 30; i++ {
		set = append(set, semantic(fmt.Sprintf("doc-%02d", i), float64(i)/30))
	}
	assert.Len(t, Fuse(5, set), 5)
	assert.Len(t, Fuse(0, set), schema.DefaultMaxEvidence)
	assert.Equal(t, "doc-29", Fuse(1, set)[0].ReferenceID)
}

func TestFuse_Empty(t *testing.T) {
	assert.Empty(t, Fuse(10))
	assert.Empty(t, Fuse(10, nil, schema.EvidenceSet{}))
}

func TestFuse_DoesNotMutateInputs(t *testing.T) {
	in := schema.EvidenceSet{semantic("a", 0.1), semantic("b", 0.9)}
	_ = Fuse(10, in)
	assert.Equal(t, "a", in[0].ReferenceID)
}
