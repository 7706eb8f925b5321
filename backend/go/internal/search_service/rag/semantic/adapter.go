package semantic

import (
	"Neurologix/backend/go/internal/search_service/rag/interfaces"
	"Neurologix/backend/go/internal/search_service/rag/schema"
	"Neurologix/backend/go/pkg/logger"
	"context"
	"errors"
	"fmt"
	"time"
)

const (
	// DefaultTopK is the number of neighbours requested when none is configured.
	DefaultTopK = 5
	// DefaultCollection names the semantic source in provenance strings.
	DefaultCollection = "assessment_documents"
	// DefaultRetryBackoff is the pause before the single retry.
	DefaultRetryBackoff = 200 * time.Millisecond

	maxSnippet = 500
)

// Option configures an Adapter.
type Option func(*Adapter)

// WithDocStore hydrates hits with document text.
func WithDocStore(docs interfaces.DocStore) Option {
	return func(a *Adapter) {
		a.docs = docs
	}
}

// WithScoreTransform replaces the distance-to-score transform.
func WithScoreTransform(t ScoreTransform) Option {
	return func(a *Adapter) {
		if t != nil {
			a.transform = t
		}
	}
}

// WithCollection sets the collection name used in provenance.
func WithCollection(name string) Option {
	return func(a *Adapter) {
		if name != "" {
			a.collection = name
		}
	}
}

// WithRetryBackoff sets the pause before retrying a failed lookup.
func WithRetryBackoff(d time.Duration) Option {
	return func(a *Adapter) {
		a.backoff = d
	}
}

// WithLogger sets the logger.
func WithLogger(log *logger.Logger) Option {
	return func(a *Adapter) {
		a.log = log
	}
}

// Adapter wraps the embedding service and vector store and produces semantic evidence.
type Adapter struct {
	embedder   interfaces.EmbeddingModel
	vectors    interfaces.VectorStore
	docs       interfaces.DocStore
	transform  ScoreTransform
	collection string
	backoff    time.Duration
	log        *logger.Logger
}

// NewAdapter creates an Adapter.
func NewAdapter(embedder interfaces.EmbeddingModel, vectors interfaces.VectorStore, opts ...Option) *Adapter {
	inverse, _ := NewScoreTransform(TransformInverse, 1)
	a := &Adapter{
		embedder:   embedder,
		vectors:    vectors,
		transform:  inverse,
		collection: DefaultCollection,
		backoff:    DefaultRetryBackoff,
		log:        logger.Discard(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// VerifyDimension embeds a probe text and compares its length with the
// vector store dimension. A mismatch is a ConfigurationError.
func (a *Adapter) VerifyDimension(ctx context.Context) error {
	vecs, err := a.embedder.Embed(ctx, []string{"dimension probe"})
	if err != nil {
		return schema.NewError(schema.ConfigurationError, "embedding service unreachable during dimension check", err)
	}
	if len(vecs) != 1 {
		return schema.NewError(schema.ConfigurationError, fmt.Sprintf("embedding service returned %d vectors for 1 text", len(vecs)), nil)
	}
	if got, want := len(vecs[0]), a.vectors.Dimension(); got != want {
		return schema.NewError(schema.ConfigurationError,
			fmt.Sprintf("embedding dimension %d does not match vector store dimension %d", got, want), schema.ErrDimensionMismatch)
	}
	return nil
}

// RetrieveFor searches with the question of intent, narrowed to the intent's
// patient and team references.
func (a *Adapter) RetrieveFor(ctx context.Context, intent *schema.ParsedIntent, scope schema.UserScope, topK int) (schema.EvidenceSet, error) {
	if scope.IsEmpty() {
		return nil, schema.NewError(schema.ScopeViolation, "user scope has no allowed teams", schema.ErrScopeViolation)
	}
	filter := schema.VectorFilter{
		TeamIDs:    scope.TeamIDs(),
		PatientIDs: intent.RefsOfKind(schema.EntityPatient),
	}
	if refs := intent.RefsOfKind(schema.EntityTeam); len(refs) > 0 {
		allowed := make(map[string]bool)
		for _, id := range filter.TeamIDs {
			allowed[id] = true
		}
		var narrowed []string
		for _, id := range refs {
			if allowed[id] {
				narrowed = append(narrowed, id)
			}
		}
		if len(narrowed) == 0 {
			return nil, nil
		}
		filter.TeamIDs = narrowed
	}
	return a.search(ctx, intent.Question, scope, filter, topK)
}

// Retrieve searches the vector store for text within scope.
func (a *Adapter) Retrieve(ctx context.Context, text string, scope schema.UserScope, topK int) (schema.EvidenceSet, error) {
	return a.search(ctx, text, scope, schema.VectorFilter{TeamIDs: scope.TeamIDs()}, topK)
}

func (a *Adapter) search(ctx context.Context, text string, scope schema.UserScope, filter schema.VectorFilter, topK int) (schema.EvidenceSet, error) {
	if scope.IsEmpty() || len(filter.TeamIDs) == 0 {
		return nil, schema.NewError(schema.ScopeViolation, "user scope has no allowed teams", schema.ErrScopeViolation)
	}
	if topK <= 0 {
		topK = DefaultTopK
	}

	var hits []schema.VectorHit
	lookup := func() error {
		vecs, err := a.embedder.Embed(ctx, []string{text})
		if err != nil {
			return fmt.Errorf("embedding failed: %w", err)
		}
		if len(vecs) != 1 {
			return fmt.Errorf("embedding service returned %d vectors for 1 text", len(vecs))
		}
		if len(vecs[0]) != a.vectors.Dimension() {
			return schema.ErrDimensionMismatch
		}
		hits, err = a.vectors.Search(ctx, vecs[0], topK, filter)
		if err != nil {
			return fmt.Errorf("vector search failed: %w", err)
		}
		return nil
	}

	err := lookup()
	if err != nil && retryable(ctx, err) {
		a.log.Warn(fmt.Sprintf("semantic lookup failed, retrying once: %v", err))
		select {
		case <-ctx.Done():
		case <-time.After(a.backoff):
			err = lookup()
		}
	}
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && !errors.Is(err, ctxErr) {
			err = fmt.Errorf("%w: %v", ctxErr, err)
		}
		return nil, schema.NewError(schema.SemanticSourceFailure, "semantic search unavailable", err)
	}

	return a.toEvidence(ctx, hits, scope), nil
}

func retryable(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	return !errors.Is(err, schema.ErrDimensionMismatch) && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}

func (a *Adapter) toEvidence(ctx context.Context, hits []schema.VectorHit, scope schema.UserScope) schema.EvidenceSet {
	var docs map[string]*schema.Document
	if a.docs != nil && len(hits) > 0 {
		ids := make([]string, 0, len(hits))
		for _, h := range hits {
			ids = append(ids, h.DocumentID)
		}
		var err error
		docs, err = a.docs.Get(ctx, ids)
		if err != nil {
			// Hits are still usable without text.
			a.log.Warn(fmt.Sprintf("failed to hydrate %d semantic hits: %v", len(ids), err))
		}
	}

	set := make(schema.EvidenceSet, 0, len(hits))
	for _, h := range hits {
		meta := h.Metadata
		doc := docs[h.DocumentID]
		if doc != nil && len(meta) == 0 {
			meta = doc.Metadata
		}
		// The store filtered by scope already; drop anything that slipped through.
		if !scope.Allows(meta[schema.MetadataKeyTeamID]) {
			a.log.Warn(fmt.Sprintf("dropping out-of-scope semantic hit %s", h.DocumentID))
			continue
		}

		payload := map[string]interface{}{"document_id": h.DocumentID, "distance": h.Distance}
		for k, v := range meta {
			payload[k] = v
		}
		item := schema.EvidenceItem{
			Source:      schema.SourceSemantic,
			ReferenceID: referenceID(h.DocumentID, meta),
			Payload:     payload,
			Score:       a.transform(h.Distance),
			Provenance:  a.provenance(h.DocumentID, meta),
		}
		if doc != nil {
			item.Snippet = truncate(doc.Text, maxSnippet)
		}
		set = append(set, item)
	}
	return set
}

func referenceID(docID string, meta map[string]string) string {
	table, row := meta[schema.MetadataKeySourceTable], meta[schema.MetadataKeySourceRowID]
	if table != "" && row != "" {
		return schema.StructuredReference(table, row)
	}
	return docID
}

func (a *Adapter) provenance(docID string, meta map[string]string) string {
	p := a.collection + ":" + docID
	if date := meta[schema.MetadataKeyAssessmentDate]; date != "" {
		p += ":" + date
	}
	return p
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
