// Package fusion merges evidence from the structured and semantic sources.
package fusion

import (
	"Neurologix/backend/go/internal/search_service/rag/schema"
)

// Fuse concatenates sets in the order given, keeps the first item seen for
// each reference id, orders the result and truncates it to limit items. Callers
// pass the structured set first so that a record surfaced by both sources is
// kept in its structured form. limit <= 0 selects schema.DefaultMaxEvidence.
func Fuse(limit int, sets ...schema.EvidenceSet) schema.EvidenceSet {
	if limit <= 0 {
		limit = schema.DefaultMaxEvidence
	}
	total := 0
	for _, s := range sets {
		total += len(s)
	}

	fused := make(schema.EvidenceSet, 0, total)
	seen := make(map[string]bool, total)
	for _, s := range sets {
		for _, item := range s {
			if seen[item.ReferenceID] {
				continue
			}
			seen[item.ReferenceID] = true
			fused = append(fused, item)
		}
	}

	fused.Sort()
	if len(fused) > limit {
		fused = fused[:limit]
	}
	return fused
}
