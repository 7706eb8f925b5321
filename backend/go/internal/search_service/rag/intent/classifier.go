package intent

import (
	"Neurologix/backend/go/internal/search_service/rag/catalog"
	"Neurologix/backend/go/internal/search_service/rag/schema"
	"Neurologix/backend/go/pkg/logger"
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

const (
	// DefaultConfidenceThreshold is the minimum metric confidence accepted.
	DefaultConfidenceThreshold = 0.7
	// DefaultMaxQuestionLength bounds accepted questions, in bytes.
	DefaultMaxQuestionLength = 2000

	confidenceExact      = 1.0
	confidenceMultiWord  = 0.9
	confidenceSingleWord = 0.75
	confidenceExtracted  = 0.8

	maxGram = 3
)

// DefaultTeamAliases maps colloquial team names to team ids.
var DefaultTeamAliases = map[string]string{
	"lsu":        "LSU_TIGERS",
	"tigers":     "LSU_TIGERS",
	"lsu tigers": "LSU_TIGERS",
}

// Extraction is the slot guess returned by a model-assisted extractor.
// It is validated against the catalog before use and never affects scope.
type Extraction struct {
	Metric     string   `json:"metric"`
	PatientIDs []string `json:"patient_ids"`
	TimeAnchor string   `json:"time_anchor"`
}

// Extractor is a fallback slot extractor consulted when no metric resolves.
type Extractor interface {
	Extract(ctx context.Context, question string) (*Extraction, error)
}

// Option configures a Classifier.
type Option func(*Classifier)

// WithConfidenceThreshold sets the minimum accepted metric confidence.
func WithConfidenceThreshold(threshold float64) Option {
	return func(c *Classifier) {
		if threshold > 0 {
			c.threshold = threshold
		}
	}
}

// WithTeamAliases replaces the alias table used to recognise team names.
func WithTeamAliases(aliases map[string]string) Option {
	return func(c *Classifier) {
		if len(aliases) == 0 {
			return
		}
		c.aliases = make(map[string]string, len(aliases))
		for k, v := range aliases {
			c.aliases[strings.ToLower(strings.TrimSpace(k))] = v
		}
	}
}

// WithExtractor enables model-assisted extraction for questions with no resolvable metric.
func WithExtractor(e Extractor) Option {
	return func(c *Classifier) {
		c.extractor = e
	}
}

// WithLogger sets the logger.
func WithLogger(log *logger.Logger) Option {
	return func(c *Classifier) {
		c.log = log
	}
}

// Classifier turns free text into a ParsedIntent by pattern matching against the catalog.
type Classifier struct {
	catalog   *catalog.Catalog
	threshold float64
	aliases   map[string]string
	maxLen    int
	extractor Extractor
	log       *logger.Logger
}

// NewClassifier creates a Classifier over the given catalog.
func NewClassifier(cat *catalog.Catalog, opts ...Option) *Classifier {
	c := &Classifier{
		catalog:   cat,
		threshold: DefaultConfidenceThreshold,
		maxLen:    DefaultMaxQuestionLength,
		log:       logger.Discard(),
	}
	WithTeamAliases(DefaultTeamAliases)(c)
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Classify parses the question. Empty or unparseable input fails with ParseFailure.
func (c *Classifier) Classify(ctx context.Context, question string, scope schema.UserScope) (*schema.ParsedIntent, error) {
	q := strings.TrimSpace(question)
	if q == "" {
		return nil, schema.NewError(schema.ParseFailure, "question is empty", schema.ErrEmptyQuestion)
	}
	if len(q) > c.maxLen {
		return nil, schema.NewError(schema.ParseFailure, fmt.Sprintf("question exceeds %d characters", c.maxLen), schema.ErrEmptyQuestion)
	}
	lower := strings.ToLower(q)
	words := wordPattern.FindAllString(lower, -1)
	if len(words) == 0 {
		return nil, schema.NewError(schema.ParseFailure, "question contains no words", schema.ErrEmptyQuestion)
	}
	// joined is padded so phrases only match on word boundaries.
	joined := " " + strings.Join(words, " ") + " "

	intent := &schema.ParsedIntent{
		Question:   q,
		TimeScope:  schema.TimeScope{Kind: schema.TimeNone},
		Comparison: schema.Comparison{Kind: schema.ComparisonNone},
	}
	intent.SubjectRefs = c.subjectRefs(q, words)

	metric, confidence, start, end := c.resolveMetric(words)
	if metric != nil && confidence >= c.threshold {
		intent.Metric = metric
		intent.Confidence = confidence
	}

	intent.Aggregate = detectAggregate(joined, words, start, end)
	intent.Comparison = detectComparison(lower, joined, words)
	intent.TimeScope = detectTimeScope(lower, joined)
	if intent.TimeScope.Kind == schema.TimeNone && hasAny(joined, baselinePhrases) && hasAny(joined, postInjuryPhrases) {
		// Both anchors named: the question compares them.
		intent.TimeScope = schema.TimeScope{Kind: schema.TimeRelative, Relative: schema.RelativeSinceBaseline}
		if intent.Comparison.Kind == schema.ComparisonNone {
			intent.Comparison = schema.Comparison{Kind: schema.ComparisonDelta}
		}
	}

	if intent.Metric == nil && c.extractor != nil {
		c.applyExtraction(ctx, intent, scope)
	}
	if intent.Metric != nil && intent.Comparison.Kind == schema.ComparisonNone && intent.Metric.Max == 6 {
		for _, w := range words {
			if level, ok := severityLevels[w]; ok {
				intent.Comparison = schema.Comparison{Kind: schema.ComparisonThreshold, Op: ">=", Value: level}
				break
			}
		}
	}

	narrative := false
	for _, w := range words {
		if narrativeWords[w] {
			narrative = true
		}
		if alertWords[w] {
			intent.Alert = true
		}
	}
	// A table-wide aggregate or count resolves against every column even
	// without a metric.
	tableWide := intent.Aggregate != schema.AggregateNone && intent.Aggregate != schema.AggregateList
	intent.RequiresSemantic = narrative || (intent.Metric == nil && !tableWide)
	return intent, nil
}

func (c *Classifier) applyExtraction(ctx context.Context, intent *schema.ParsedIntent, scope schema.UserScope) {
	ext, err := c.extractor.Extract(ctx, intent.Question)
	if err != nil {
		c.log.WithField("user_id", scope.UserID).Warn(fmt.Sprintf("model-assisted slot extraction failed: %v", err))
		return
	}
	if ext == nil {
		return
	}
	if f := c.catalog.Resolve(ext.Metric); f != nil && f.Type == schema.FieldNumeric && confidenceExtracted >= c.threshold {
		intent.Metric = f
		intent.Confidence = confidenceExtracted
	}
	if len(intent.RefsOfKind(schema.EntityPatient)) == 0 {
		for _, id := range ext.PatientIDs {
			id = strings.ToUpper(strings.TrimSpace(id))
			if patientPattern.FindString(id) == id && id != "" {
				intent.SubjectRefs = append(intent.SubjectRefs, schema.EntityRef{Kind: schema.EntityPatient, ID: id})
			}
		}
	}
	if intent.TimeScope.Kind == schema.TimeNone {
		switch ext.TimeAnchor {
		case schema.AnchorBaseline, schema.AnchorPostInjury:
			intent.TimeScope = schema.TimeScope{Kind: schema.TimeAnchor, Anchor: ext.TimeAnchor}
		}
	}
}

// resolveMetric scans n-grams from longest to shortest and keeps the most
// confident catalog match. It returns the matched word span [start, end).
func (c *Classifier) resolveMetric(words []string) (*schema.SchemaField, float64, int, int) {
	var (
		best       *schema.SchemaField
		bestConf   float64
		start, end = -1, -1
	)
	for n := maxGram; n >= 1; n-- {
		for i := 0; i+n <= len(words); i++ {
			token := strings.Join(words[i:i+n], " ")
			f := c.catalog.Resolve(token)
			if f == nil || f.Type != schema.FieldNumeric {
				continue
			}
			conf := confidenceSingleWord
			switch {
			case c.catalog.IsExactName(token):
				conf = confidenceExact
			case n > 1:
				conf = confidenceMultiWord
			}
			if conf > bestConf {
				best, bestConf, start, end = f, conf, i, i+n
			}
		}
	}
	return best, bestConf, start, end
}

type positioned struct {
	pos int
	ref schema.EntityRef
}

func (c *Classifier) subjectRefs(original string, words []string) []schema.EntityRef {
	var found []positioned
	seen := make(map[schema.EntityRef]bool)
	add := func(pos int, ref schema.EntityRef) {
		if seen[ref] {
			return
		}
		seen[ref] = true
		found = append(found, positioned{pos: pos, ref: ref})
	}

	for _, loc := range patientPattern.FindAllStringIndex(original, -1) {
		add(loc[0], schema.EntityRef{Kind: schema.EntityPatient, ID: strings.ToUpper(original[loc[0]:loc[1]])})
	}
	for _, loc := range teamPattern.FindAllStringIndex(original, -1) {
		add(loc[0], schema.EntityRef{Kind: schema.EntityTeam, ID: original[loc[0]:loc[1]]})
	}

	lower := strings.ToLower(original)
	for n := 2; n >= 1; n-- {
		for i := 0; i+n <= len(words); i++ {
			phrase := strings.Join(words[i:i+n], " ")
			team, ok := c.aliases[phrase]
			if !ok {
				continue
			}
			add(strings.Index(lower, words[i]), schema.EntityRef{Kind: schema.EntityTeam, ID: team})
		}
	}

	sort.SliceStable(found, func(i, j int) bool { return found[i].pos < found[j].pos })
	refs := make([]schema.EntityRef, 0, len(found))
	for _, f := range found {
		refs = append(refs, f.ref)
	}
	return refs
}

func detectAggregate(joined string, words []string, metricStart, metricEnd int) string {
	if hasAny(joined, []string{"how many", "number of"}) {
		return schema.AggregateCount
	}
	for i, w := range words {
		if i >= metricStart && i < metricEnd {
			continue
		}
		if agg, ok := aggregateWords[w]; ok {
			return agg
		}
	}
	for _, w := range words {
		if listWords[w] {
			return schema.AggregateList
		}
	}
	return schema.AggregateNone
}

func detectComparison(lower, joined string, words []string) schema.Comparison {
	if m := thresholdPattern.FindStringSubmatch(lower); m != nil {
		if v, err := strconv.ParseFloat(m[2], 64); err == nil {
			return schema.Comparison{Kind: schema.ComparisonThreshold, Op: thresholdOps[m[1]], Value: v}
		}
	}
	for _, w := range words {
		if deltaWords[w] {
			return schema.Comparison{Kind: schema.ComparisonDelta}
		}
	}
	if hasAny(joined, deltaPhrases) {
		return schema.Comparison{Kind: schema.ComparisonDelta}
	}
	return schema.Comparison{Kind: schema.ComparisonNone}
}

func detectTimeScope(lower, joined string) schema.TimeScope {
	if ts, ok := detectDates(lower); ok {
		return ts
	}
	for _, rp := range relativePhrases {
		if hasAny(joined, []string{rp.phrase}) {
			return schema.TimeScope{Kind: schema.TimeRelative, Relative: rp.relative}
		}
	}
	hasBaseline := hasAny(joined, baselinePhrases)
	hasPost := hasAny(joined, postInjuryPhrases)
	switch {
	case hasBaseline && hasPost:
		return schema.TimeScope{Kind: schema.TimeNone}
	case hasBaseline:
		return schema.TimeScope{Kind: schema.TimeAnchor, Anchor: schema.AnchorBaseline}
	case hasPost:
		return schema.TimeScope{Kind: schema.TimeAnchor, Anchor: schema.AnchorPostInjury}
	}
	return schema.TimeScope{Kind: schema.TimeNone}
}

type datedMatch struct {
	day time.Time
	pos int
}

// detectDates reads explicit M/D/YYYY and YYYY-MM-DD dates. One date covers
// that day unless preceded by since/after/from (open end) or before/until
// (open start); two or more dates cover the span between them.
func detectDates(lower string) (schema.TimeScope, bool) {
	var dates []datedMatch
	for _, m := range usDatePattern.FindAllStringSubmatchIndex(lower, -1) {
		month, _ := strconv.Atoi(lower[m[2]:m[3]])
		day, _ := strconv.Atoi(lower[m[4]:m[5]])
		year, _ := strconv.Atoi(lower[m[6]:m[7]])
		if d, ok := makeDate(year, month, day); ok {
			dates = append(dates, datedMatch{day: d, pos: m[0]})
		}
	}
	for _, m := range isoDatePattern.FindAllStringSubmatchIndex(lower, -1) {
		year, _ := strconv.Atoi(lower[m[2]:m[3]])
		month, _ := strconv.Atoi(lower[m[4]:m[5]])
		day, _ := strconv.Atoi(lower[m[6]:m[7]])
		if d, ok := makeDate(year, month, day); ok {
			dates = append(dates, datedMatch{day: d, pos: m[0]})
		}
	}
	if len(dates) == 0 {
		return schema.TimeScope{}, false
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].day.Before(dates[j].day) })

	if len(dates) == 1 {
		d := dates[0]
		prefix := strings.Fields(lower[:d.pos])
		prev := ""
		if len(prefix) > 0 {
			prev = prefix[len(prefix)-1]
		}
		switch prev {
		case "since", "after", "from":
			return schema.TimeScope{Kind: schema.TimeAbsolute, From: d.day}, true
		case "before", "until":
			return schema.TimeScope{Kind: schema.TimeAbsolute, To: d.day}, true
		}
		return schema.TimeScope{Kind: schema.TimeAbsolute, From: d.day, To: d.day.AddDate(0, 0, 1)}, true
	}
	last := dates[len(dates)-1].day
	return schema.TimeScope{Kind: schema.TimeAbsolute, From: dates[0].day, To: last.AddDate(0, 0, 1)}, true
}

func makeDate(year, month, day int) (time.Time, bool) {
	if month < 1 || month > 12 || day < 1 {
		return time.Time{}, false
	}
	t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	if t.Day() != day {
		return time.Time{}, false
	}
	return t, true
}

// hasAny reports whether the padded word string contains any phrase as whole words.
func hasAny(joined string, phrases []string) bool {
	for _, p := range phrases {
		if strings.Contains(joined, " "+p+" ") {
			return true
		}
	}
	return false
}
