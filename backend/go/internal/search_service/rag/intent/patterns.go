package intent

import (
	"Neurologix/backend/go/internal/search_service/rag/schema"
	"regexp"
)

var (
	patientPattern = regexp.MustCompile(`(?i)\bP\d{1,6}\b`)
	// Team ids are stored upper snake case, e.g. LSU_TIGERS.
	teamPattern = regexp.MustCompile(`\b[A-Z][A-Z0-9]*(?:_[A-Z0-9]+)+\b`)
	wordPattern = regexp.MustCompile(`[a-z0-9]+(?:_[a-z0-9]+)*`)

	usDatePattern  = regexp.MustCompile(`\b(\d{1,2})/(\d{1,2})/(\d{4})\b`)
	isoDatePattern = regexp.MustCompile(`\b(\d{4})-(\d{2})-(\d{2})\b`)

	thresholdPattern = regexp.MustCompile(`(?i)(?:^|[^a-z0-9])(at least|at most|greater than|more than|higher than|less than|lower than|exceeds?|above|over|below|under|>=|<=|>|<)\s*(\d+(?:\.\d+)?)`)
)

var thresholdOps = map[string]string{
	"at least":     ">=",
	">=":           ">=",
	"at most":      "<=",
	"<=":           "<=",
	"greater than": ">",
	"more than":    ">",
	"higher than":  ">",
	"exceed":       ">",
	"exceeds":      ">",
	"above":        ">",
	"over":         ">",
	">":            ">",
	"less than":    "<",
	"lower than":   "<",
	"below":        "<",
	"under":        "<",
	"<":            "<",
}

// relativePhrases are checked in order; the first hit wins.
var relativePhrases = []struct {
	phrase   string
	relative string
}{
	{"since baseline", schema.RelativeSinceBaseline},
	{"since the baseline", schema.RelativeSinceBaseline},
	{"last 30 days", schema.RelativeLast30Days},
	{"past 30 days", schema.RelativeLast30Days},
	{"last week", schema.RelativeLastWeek},
	{"past week", schema.RelativeLastWeek},
	{"this week", schema.RelativeLastWeek},
	{"last month", schema.RelativeLastMonth},
	{"past month", schema.RelativeLastMonth},
	{"yesterday", schema.RelativeYesterday},
	{"today", schema.RelativeToday},
	{"most recent", schema.RelativeMostRecent},
	{"latest", schema.RelativeMostRecent},
	{"current", schema.RelativeMostRecent},
}

// Anchor phrases are matched against the tokenized question, so hyphens are already spaces.
var postInjuryPhrases = []string{
	"after injury", "after the injury", "after his injury", "after her injury", "after their injury",
	"post injury", "post_injury", "following injury", "following the injury",
	"since injury", "since the injury", "after concussion", "after the concussion",
}

var baselinePhrases = []string{"baseline", "baselines", "pre injury", "before injury", "before the injury"}

var deltaWords = map[string]bool{
	"worse": true, "worsen": true, "worsened": true, "worsening": true,
	"better": true, "improve": true, "improved": true, "improvement": true, "improving": true,
	"increase": true, "increased": true, "increasing": true,
	"decrease": true, "decreased": true, "decreasing": true,
	"change": true, "changed": true, "changes": true,
	"compare": true, "compared": true, "comparison": true,
	"difference": true, "delta": true, "trend": true, "progression": true,
	"versus": true, "vs": true, "recover": true, "recovered": true,
}

var deltaPhrases = []string{"over time"}

var aggregateWords = map[string]string{
	"average": schema.AggregateAverage,
	"avg":     schema.AggregateAverage,
	"mean":    schema.AggregateAverage,
	"max":     schema.AggregateMaximum,
	"maximum": schema.AggregateMaximum,
	"highest": schema.AggregateMaximum,
	"worst":   schema.AggregateMaximum,
	"peak":    schema.AggregateMaximum,
	"min":     schema.AggregateMinimum,
	"minimum": schema.AggregateMinimum,
	"lowest":  schema.AggregateMinimum,
	"best":    schema.AggregateMinimum,
	"count":   schema.AggregateCount,
}

// listWords ask for the matching rows; any other aggregation word wins over them.
var listWords = map[string]bool{"list": true, "show": true, "display": true, "who": true}

var alertWords = map[string]bool{
	"alert": true, "alerts": true,
	"concern": true, "concerns": true, "concerning": true, "concerned": true,
}

// narrativeWords signal that the answer lives in free text rather than a column.
var narrativeWords = map[string]bool{
	"report": true, "reported": true, "reports": true, "reporting": true,
	"say": true, "said": true, "says": true,
	"describe": true, "described": true, "describes": true, "description": true,
	"note": true, "notes": true, "noted": true,
	"complain": true, "complained": true, "complaint": true, "complaints": true, "complaining": true,
	"mention": true, "mentioned": true, "mentions": true,
	"feel": true, "feeling": true, "feelings": true, "felt": true,
	"narrative": true, "comment": true, "comments": true,
	"observation": true, "observations": true, "observed": true,
	"explain": true, "why": true, "history": true,
}

// Severity words map to a threshold on 0-6 severity scales.
var severityLevels = map[string]float64{
	"severe":   4,
	"moderate": 2,
}
