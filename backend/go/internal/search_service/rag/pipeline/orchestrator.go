// Package pipeline drives a question through classification, routing,
// retrieval, fusion and synthesis.
package pipeline

import (
	"Neurologix/backend/go/internal/models"
	"Neurologix/backend/go/internal/search_service/rag/fusion"
	"Neurologix/backend/go/internal/search_service/rag/interfaces"
	"Neurologix/backend/go/internal/search_service/rag/router"
	"Neurologix/backend/go/internal/search_service/rag/schema"
	"Neurologix/backend/go/pkg/logger"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// Caveat citations appended to the final chunk.
const (
	CaveatSemanticTimeout     = "(semantic search timed out)"
	CaveatSemanticUnavailable = "(semantic search unavailable)"
	// CaveatClinicalAttention follows answers to alert questions.
	CaveatClinicalAttention = "(may require clinical attention if values are significantly elevated from baseline)"
)

const auditTimeout = 2 * time.Second

// Classifier parses a question into an intent.
type Classifier interface {
	Classify(ctx context.Context, question string, scope schema.UserScope) (*schema.ParsedIntent, error)
}

// StructuredRetriever produces structured evidence for an intent.
type StructuredRetriever interface {
	Retrieve(ctx context.Context, intent *schema.ParsedIntent, scope schema.UserScope) (schema.EvidenceSet, error)
}

// SemanticRetriever produces semantic evidence for an intent.
type SemanticRetriever interface {
	RetrieveFor(ctx context.Context, intent *schema.ParsedIntent, scope schema.UserScope, topK int) (schema.EvidenceSet, error)
}

// AnswerSynthesizer streams an answer grounded in evidence.
type AnswerSynthesizer interface {
	Synthesize(ctx context.Context, question string, set schema.EvidenceSet) <-chan schema.AnswerChunk
}

// Config holds the orchestrator budgets.
type Config struct {
	RequestTimeout    time.Duration
	StructuredTimeout time.Duration
	SemanticTimeout   time.Duration
	TopK              int
	MaxEvidence       int
}

// DefaultConfig returns the budgets used when none are configured.
func DefaultConfig() Config {
	return Config{
		RequestTimeout:    30 * time.Second,
		StructuredTimeout: 5 * time.Second,
		SemanticTimeout:   3 * time.Second,
		TopK:              5,
		MaxEvidence:       schema.DefaultMaxEvidence,
	}
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithConfig replaces the budgets. Zero fields keep their defaults.
func WithConfig(cfg Config) Option {
	return func(o *Orchestrator) {
		if cfg.RequestTimeout > 0 {
			o.cfg.RequestTimeout = cfg.RequestTimeout
		}
		if cfg.StructuredTimeout > 0 {
			o.cfg.StructuredTimeout = cfg.StructuredTimeout
		}
		if cfg.SemanticTimeout > 0 {
			o.cfg.SemanticTimeout = cfg.SemanticTimeout
		}
		if cfg.TopK > 0 {
			o.cfg.TopK = cfg.TopK
		}
		if cfg.MaxEvidence > 0 {
			o.cfg.MaxEvidence = cfg.MaxEvidence
		}
	}
}

// WithAuditSink publishes one audit event per request.
func WithAuditSink(sink interfaces.AuditSink) Option {
	return func(o *Orchestrator) {
		o.audit = sink
	}
}

// WithLogger sets the logger.
func WithLogger(log *logger.Logger) Option {
	return func(o *Orchestrator) {
		o.log = log
	}
}

// WithRequestIDs replaces the request id generator.
func WithRequestIDs(next func() string) Option {
	return func(o *Orchestrator) {
		o.newID = next
	}
}

// Orchestrator is the single entry point of the question answering core.
type Orchestrator struct {
	classifier  Classifier
	structured  StructuredRetriever
	semantic    SemanticRetriever
	synthesizer AnswerSynthesizer
	audit       interfaces.AuditSink
	cfg         Config
	log         *logger.Logger
	newID       func() string
}

// NewOrchestrator creates an Orchestrator. semantic may be nil, in which case
// hybrid questions are answered from structured evidence with a caveat.
func NewOrchestrator(classifier Classifier, structured StructuredRetriever, semantic SemanticRetriever, synthesizer AnswerSynthesizer, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		classifier:  classifier,
		structured:  structured,
		semantic:    semantic,
		synthesizer: synthesizer,
		cfg:         DefaultConfig(),
		log:         logger.Discard(),
		newID:       uuid.NewString,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Answer streams the answer to question. The channel always delivers exactly
// one final chunk before it is closed. Cancelling ctx abandons every
// in-flight call.
func (o *Orchestrator) Answer(ctx context.Context, question string, scope schema.UserScope) <-chan schema.AnswerChunk {
	out := make(chan schema.AnswerChunk, 8)
	go func() {
		defer close(out)

		start := time.Now()
		requestID := o.newID()
		log := o.log.WithTrace(requestID, scope.UserID)
		event := schema.AuditEvent{RequestID: requestID, UserID: scope.UserID, TeamIDs: scope.TeamIDs()}
		defer func() {
			event.LatencyMs = time.Since(start).Milliseconds()
			event.Timestamp = time.Now().UTC()
			o.publish(log, event)
		}()

		ctx, cancel := context.WithTimeout(ctx, o.cfg.RequestTimeout)
		defer cancel()

		abort := func(err error) {
			event.ErrorKind = schema.KindOf(err)
			log.WithError(models.ErrorInfo{Message: err.Error(), Type: string(event.ErrorKind)}).Error("request aborted")
			send(ctx, out, schema.AnswerChunk{IsFinal: true, Citations: []string{}, Error: schema.ToChunkError(err)})
		}

		if scope.IsEmpty() {
			abort(schema.NewError(schema.ScopeViolation, "user scope has no allowed teams", schema.ErrScopeViolation))
			return
		}

		intent, err := o.classifier.Classify(ctx, question, scope)
		if err != nil {
			abort(err)
			return
		}
		route := router.Route(intent)
		event.Route = route
		event.Metric = intent.MetricName()
		log.WithPayload(map[string]interface{}{
			"route":             route,
			"metric":            intent.MetricName(),
			"requires_semantic": intent.RequiresSemantic,
			"confidence":        intent.Confidence,
		}).Info("question classified")

		structured, semantic, caveat, err := o.retrieve(ctx, log, route, intent, scope)
		if err != nil {
			abort(err)
			return
		}
		set := fusion.Fuse(o.cfg.MaxEvidence, structured, semantic)
		event.StructuredCount = set.CountBySource(schema.SourceStructured)
		event.SemanticCount = set.CountBySource(schema.SourceSemantic)
		event.Degraded = caveat != ""
		event.EmptyEvidence = len(set) == 0
		log.Info(fmt.Sprintf("fused %d evidence items (%d structured, %d semantic)", len(set), event.StructuredCount, event.SemanticCount))

		for chunk := range o.synthesizer.Synthesize(ctx, question, set) {
			if chunk.IsFinal {
				if chunk.Error != nil {
					event.ErrorKind = chunk.Error.Kind
				} else {
					if caveat != "" {
						chunk.Citations = append(chunk.Citations, caveat)
					}
					if intent.Alert && len(set) > 0 {
						chunk.Citations = append(chunk.Citations, CaveatClinicalAttention)
					}
				}
				send(ctx, out, chunk)
				return
			}
			if !send(ctx, out, chunk) {
				return
			}
		}
		// The synthesizer closed without a final chunk; only cancellation does that.
		abort(schema.NewError(schema.GenerationFailure, "answer stream ended early", ctx.Err()))
	}()
	return out
}

// retrieve runs the branches the route selects. A non-empty caveat marks a
// hybrid answer that lost its semantic half.
func (o *Orchestrator) retrieve(ctx context.Context, log *logger.Logger, route schema.Strategy, intent *schema.ParsedIntent, scope schema.UserScope) (structured, semantic schema.EvidenceSet, caveat string, err error) {
	switch route {
	case schema.StrategyStructured:
		structured, err = o.retrieveStructured(ctx, intent, scope)
		return structured, nil, "", err

	case schema.StrategySemantic:
		semantic, err = o.retrieveSemantic(ctx, intent, scope)
		return nil, semantic, "", err
	}

	var semErr error
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		structured, err = o.retrieveStructured(gctx, intent, scope)
		return err
	})
	g.Go(func() error {
		semantic, semErr = o.retrieveSemantic(gctx, intent, scope)
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, nil, "", err
	}
	if semErr != nil {
		if ctx.Err() != nil {
			return nil, nil, "", schema.NewError(schema.InternalFailure, "request cancelled", ctx.Err())
		}
		caveat = CaveatSemanticUnavailable
		if errors.Is(semErr, context.DeadlineExceeded) {
			caveat = CaveatSemanticTimeout
		}
		log.Warn(fmt.Sprintf("semantic branch degraded: %v", semErr))
		semantic = nil
	}
	return structured, semantic, caveat, nil
}

func (o *Orchestrator) retrieveStructured(ctx context.Context, intent *schema.ParsedIntent, scope schema.UserScope) (schema.EvidenceSet, error) {
	ctx, cancel := context.WithTimeout(ctx, o.cfg.StructuredTimeout)
	defer cancel()
	set, err := bounded(ctx, func(ctx context.Context) (schema.EvidenceSet, error) {
		return o.structured.Retrieve(ctx, intent, scope)
	})
	if err == nil {
		return set, nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return nil, schema.NewError(schema.StructuredSourceFailure, "structured search timed out", err)
	}
	var perr *schema.PipelineError
	if errors.As(err, &perr) {
		return nil, err
	}
	return nil, schema.NewError(schema.StructuredSourceFailure, "structured search failed", err)
}

func (o *Orchestrator) retrieveSemantic(ctx context.Context, intent *schema.ParsedIntent, scope schema.UserScope) (schema.EvidenceSet, error) {
	if o.semantic == nil {
		return nil, schema.NewError(schema.SemanticSourceFailure, "semantic search is not configured", nil)
	}
	ctx, cancel := context.WithTimeout(ctx, o.cfg.SemanticTimeout)
	defer cancel()
	set, err := bounded(ctx, func(ctx context.Context) (schema.EvidenceSet, error) {
		return o.semantic.RetrieveFor(ctx, intent, scope, o.cfg.TopK)
	})
	if err == nil {
		return set, nil
	}
	var perr *schema.PipelineError
	if errors.As(err, &perr) {
		return nil, err
	}
	return nil, schema.NewError(schema.SemanticSourceFailure, "semantic search unavailable", err)
}

type branchResult struct {
	set schema.EvidenceSet
	err error
}

// bounded stops waiting for fetch once ctx ends. A collaborator that ignores
// ctx keeps running in the background and its result is dropped.
func bounded(ctx context.Context, fetch func(ctx context.Context) (schema.EvidenceSet, error)) (schema.EvidenceSet, error) {
	done := make(chan branchResult, 1)
	go func() {
		set, err := fetch(ctx)
		done <- branchResult{set: set, err: err}
	}()
	select {
	case r := <-done:
		return r.set, r.err
	case <-ctx.Done():
		select {
		case r := <-done:
			return r.set, r.err
		default:
		}
		return nil, ctx.Err()
	}
}

func (o *Orchestrator) publish(log *logger.Logger, event schema.AuditEvent) {
	if o.audit == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), auditTimeout)
	defer cancel()
	if err := o.audit.Publish(ctx, event); err != nil {
		log.Warn(fmt.Sprintf("failed to publish audit event: %v", err))
	}
}

func send(ctx context.Context, out chan<- schema.AnswerChunk, chunk schema.AnswerChunk) bool {
	select {
	case <-ctx.Done():
		// A terminal chunk is still delivered when the buffer has room.
		if chunk.IsFinal {
			select {
			case out <- chunk:
				return true
			default:
			}
		}
		return false
	case out <- chunk:
		return true
	}
}
