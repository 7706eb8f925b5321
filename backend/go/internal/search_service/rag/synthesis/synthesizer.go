// Package synthesis turns a question and its fused evidence into a streamed,
// citation-annotated answer.
package synthesis

import (
	"Neurologix/backend/go/internal/search_service/rag/interfaces"
	"Neurologix/backend/go/internal/search_service/rag/schema"
	"Neurologix/backend/go/pkg/logger"
	"context"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"unicode"
)

// InsufficientEvidence is the fixed answer for an empty evidence set.
const InsufficientEvidence = "I couldn't find any data matching your query. Please try with different criteria."

var markerPattern = regexp.MustCompile(`\s*\[(\d+)\]`)

// Option configures a Synthesizer.
type Option func(*Synthesizer)

// WithLogger sets the logger.
func WithLogger(log *logger.Logger) Option {
	return func(s *Synthesizer) {
		s.log = log
	}
}

// Synthesizer streams grounded answers from a language generation service.
type Synthesizer struct {
	llm interfaces.LLM
	log *logger.Logger
}

// New creates a Synthesizer.
func New(llm interfaces.LLM, opts ...Option) *Synthesizer {
	s := &Synthesizer{llm: llm, log: logger.Discard()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Synthesize answers question from set. The returned channel always ends
// with exactly one chunk whose IsFinal is set and is then closed; a
// generation failure ends it with an empty final chunk carrying the error.
func (s *Synthesizer) Synthesize(ctx context.Context, question string, set schema.EvidenceSet) <-chan schema.AnswerChunk {
	out := make(chan schema.AnswerChunk, 4)
	go func() {
		defer close(out)

		if len(set) == 0 {
			send(ctx, out, schema.AnswerChunk{Text: InsufficientEvidence, IsFinal: true, Citations: []string{}})
			return
		}

		frags, err := s.llm.Stream(ctx, interfaces.GenerationRequest{
			Mode:     interfaces.ModeSynthesizeAnswer,
			Question: question,
			Evidence: RenderEvidence(set),
		})
		if err != nil {
			s.fail(ctx, out, err)
			return
		}

		g := newGrounder(set)
		var pending strings.Builder
		produced := false
		emit := func(text string) bool {
			chunk, ok := g.process(text)
			if !ok {
				return true
			}
			produced = true
			return send(ctx, out, chunk)
		}

		for {
			select {
			case <-ctx.Done():
				s.fail(ctx, out, ctx.Err())
				return
			case frag, ok := <-frags:
				if !ok {
					if pending.Len() > 0 && !emit(pending.String()) {
						return
					}
					if !produced {
						s.fail(ctx, out, fmt.Errorf("language generation produced no text"))
						return
					}
					send(ctx, out, schema.AnswerChunk{IsFinal: true, Citations: g.finalCitations()})
					return
				}
				if frag.Err != nil {
					s.fail(ctx, out, frag.Err)
					return
				}
				pending.WriteString(frag.Text)
				buffered := pending.String()
				cut := lastBoundary(buffered)
				if cut <= 0 {
					continue
				}
				pending.Reset()
				pending.WriteString(buffered[cut:])
				if !emit(buffered[:cut]) {
					return
				}
			}
		}
	}()
	return out
}

func (s *Synthesizer) fail(ctx context.Context, out chan<- schema.AnswerChunk, err error) {
	s.log.Error(fmt.Sprintf("answer generation failed: %v", err))
	perr := schema.NewError(schema.GenerationFailure, "answer generation failed", err)
	send(ctx, out, schema.AnswerChunk{IsFinal: true, Citations: []string{}, Error: schema.ToChunkError(perr)})
}

func send(ctx context.Context, out chan<- schema.AnswerChunk, chunk schema.AnswerChunk) bool {
	select {
	case <-ctx.Done():
		return false
	case out <- chunk:
		return true
	}
}

// lastBoundary returns the index of the last whitespace in s, or -1. The
// whitespace stays with the following word so that a citation marker at the
// start of the next segment absorbs it.
func lastBoundary(s string) int {
	return strings.LastIndexFunc(s, unicode.IsSpace)
}

// RenderEvidence serializes set as the numbered list the generator cites from.
func RenderEvidence(set schema.EvidenceSet) string {
	var sb strings.Builder
	for i, item := range set {
		text := item.Snippet
		if text == "" {
			text = fmt.Sprint(item.Payload)
		}
		fmt.Fprintf(&sb, "[%d] (%s) %s\n", i+1, item.Provenance, strings.Join(strings.Fields(text), " "))
	}
	return sb.String()
}

// grounder attaches citations to segments and redacts numbers that the
// evidence does not contain.
type grounder struct {
	set     schema.EvidenceSet
	numbers []float64
	used    []string
	seen    map[string]bool
}

var evidenceNumber = regexp.MustCompile(`\d+(?:\.\d+)?`)

func newGrounder(set schema.EvidenceSet) *grounder {
	g := &grounder{set: set, seen: make(map[string]bool)}
	for _, item := range set {
		g.collect(item.Snippet)
		for _, p := range item.Citations() {
			g.collect(p)
		}
		for _, v := range item.Payload {
			switch n := v.(type) {
			case string:
				g.collect(n)
			default:
				if f, err := strconv.ParseFloat(fmt.Sprint(n), 64); err == nil {
					g.numbers = append(g.numbers, f)
				}
			}
		}
	}
	return g
}

func (g *grounder) collect(text string) {
	for _, m := range evidenceNumber.FindAllString(text, -1) {
		if f, err := strconv.ParseFloat(m, 64); err == nil {
			g.numbers = append(g.numbers, f)
		}
	}
}

// process turns a complete run of words into a chunk. ok is false when the
// segment carries neither text nor citations.
func (g *grounder) process(segment string) (schema.AnswerChunk, bool) {
	var citations []string
	local := make(map[string]bool)
	for _, m := range markerPattern.FindAllStringSubmatch(segment, -1) {
		n, err := strconv.Atoi(m[1])
		if err != nil || n < 1 || n > len(g.set) {
			continue
		}
		for _, p := range g.set[n-1].Citations() {
			if !local[p] {
				local[p] = true
				citations = append(citations, p)
			}
			if !g.seen[p] {
				g.seen[p] = true
				g.used = append(g.used, p)
			}
		}
	}
	text := g.redact(markerPattern.ReplaceAllString(segment, ""))
	if strings.TrimSpace(text) == "" && len(citations) == 0 {
		return schema.AnswerChunk{}, false
	}
	if citations == nil {
		citations = []string{}
	}
	return schema.AnswerChunk{Text: text, Citations: citations}, true
}

const unverified = "[unverified]"

// redact replaces every digit run the evidence does not contain, including
// runs inside tokens such as 999ms, 9/6 or severity=7.
func (g *grounder) redact(text string) string {
	return evidenceNumber.ReplaceAllStringFunc(text, func(literal string) string {
		if g.verified(literal) {
			return literal
		}
		return unverified
	})
}

// verified reports whether literal equals some evidence number rounded to
// the literal's precision.
func (g *grounder) verified(literal string) bool {
	f, err := strconv.ParseFloat(literal, 64)
	if err != nil {
		return false
	}
	decimals := 0
	if i := strings.IndexByte(literal, '.'); i >= 0 {
		decimals = len(literal) - i - 1
	}
	scale := math.Pow(10, float64(decimals))
	for _, n := range g.numbers {
		r := math.Round(n*scale) / scale
		if r == f || r == math.Abs(f) {
			return true
		}
	}
	return false
}

func (g *grounder) finalCitations() []string {
	if len(g.used) > 0 {
		return append([]string(nil), g.used...)
	}
	return g.set.Provenances()
}
