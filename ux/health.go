package ux

import (
	"strings"
	"time"

	"github.com/superagent-run/superagent/types"
)

// Status is the overall health verdict for a UnifiedContext.
type Status string

const (
	StatusHealthy  Status = "HEALTHY"
	StatusWarning  Status = "WARNING"
	StatusCritical Status = "CRITICAL"
	StatusUnknown  Status = "UNKNOWN"
)

// Severity classifies one health Issue.
type Severity string

const (
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Issue is one failed health check.
type Issue struct {
	Check    string   `json:"check"`
	Severity Severity `json:"severity"`
	Detail   string   `json:"detail"`
}

// Metrics carries the raw values each health check computed, independent
// of the thresholds applied to them.
type Metrics struct {
	TokenUtilization float64 `json:"token_utilization"`
	Redundancy       float64 `json:"redundancy"`
	Coherence        float64 `json:"coherence"`
	FreshnessHours   float64 `json:"freshness_hours"`
}

// Report is the result of scoring one UnifiedContext.
type Report struct {
	Status  Status   `json:"status"`
	Score   int      `json:"score"`
	Issues  []Issue  `json:"issues"`
	Metrics Metrics  `json:"metrics"`
}

const (
	scoreStart            = 100
	scoreDeductCritical   = 30
	scoreDeductWarning    = 15
	tokenUtilCritical     = 0.9
	tokenUtilWarning      = 0.75
	redundancyWarning     = 0.3
	coherenceWarning      = 0.7
	freshnessWarningHours = 24
	warningScoreCeiling   = 70
)

// ContextHealthMonitor scores a UnifiedContext's token budget, redundancy,
// coherence, and freshness against a configured token limit.
type ContextHealthMonitor struct {
	tokenLimit int
}

// NewContextHealthMonitor builds a monitor against the given token
// budget (e.g. the active model's context window).
func NewContextHealthMonitor(tokenLimit int) *ContextHealthMonitor {
	return &ContextHealthMonitor{tokenLimit: tokenLimit}
}

// Score runs all four checks against uc and produces a Report.
func (m *ContextHealthMonitor) Score(uc *types.UnifiedContext) Report {
	var issues []Issue
	metrics := Metrics{}

	if m.tokenLimit > 0 {
		used := estimateTokens(uc)
		metrics.TokenUtilization = float64(used) / float64(m.tokenLimit)
		switch {
		case metrics.TokenUtilization > tokenUtilCritical:
			issues = append(issues, Issue{Check: "token_utilization", Severity: SeverityCritical,
				Detail: "token usage exceeds 90% of limit"})
		case metrics.TokenUtilization > tokenUtilWarning:
			issues = append(issues, Issue{Check: "token_utilization", Severity: SeverityWarning,
				Detail: "token usage exceeds 75% of limit"})
		}
	}

	metrics.Redundancy = redundancyRatio(uc.ConversationHistory)
	if metrics.Redundancy > redundancyWarning {
		issues = append(issues, Issue{Check: "redundancy", Severity: SeverityWarning,
			Detail: "more than 30% of words are repeated"})
	}

	metrics.Coherence = meanAdjacentJaccard(uc.ConversationHistory)
	if len(uc.ConversationHistory) > 1 && metrics.Coherence < coherenceWarning {
		issues = append(issues, Issue{Check: "coherence", Severity: SeverityWarning,
			Detail: "adjacent messages overlap less than 70%"})
	}

	metrics.FreshnessHours = time.Since(uc.CreatedAt).Hours()
	if metrics.FreshnessHours > freshnessWarningHours {
		issues = append(issues, Issue{Check: "freshness", Severity: SeverityWarning,
			Detail: "context is more than 24 hours old"})
	}

	return Report{Status: statusFor(issues, score(issues)), Score: score(issues), Issues: issues, Metrics: metrics}
}

func score(issues []Issue) int {
	s := scoreStart
	for _, iss := range issues {
		if iss.Severity == SeverityCritical {
			s -= scoreDeductCritical
		} else {
			s -= scoreDeductWarning
		}
	}
	if s < 0 {
		s = 0
	}
	if s > 100 {
		s = 100
	}
	return s
}

func statusFor(issues []Issue, s int) Status {
	for _, iss := range issues {
		if iss.Severity == SeverityCritical {
			return StatusCritical
		}
	}
	if s < warningScoreCeiling {
		return StatusWarning
	}
	return StatusHealthy
}

// estimateTokens approximates token count as word count across the
// conversation history — a cheap proxy that avoids pulling a tokenizer
// into the health monitor's hot path.
func estimateTokens(uc *types.UnifiedContext) int {
	total := 0
	for _, msg := range uc.ConversationHistory {
		total += len(strings.Fields(msg.Content))
	}
	return total
}

// redundancyRatio is 1 - unique_words/total_words across the history.
func redundancyRatio(history []types.Message) float64 {
	total := 0
	seen := make(map[string]bool)
	for _, msg := range history {
		for _, w := range strings.Fields(strings.ToLower(msg.Content)) {
			total++
			seen[w] = true
		}
	}
	if total == 0 {
		return 0
	}
	return 1 - float64(len(seen))/float64(total)
}

// meanAdjacentJaccard is the mean Jaccard similarity of each pair of
// adjacent messages' word sets.
func meanAdjacentJaccard(history []types.Message) float64 {
	if len(history) < 2 {
		return 1
	}
	var sum float64
	for i := 1; i < len(history); i++ {
		sum += jaccard(wordSet(history[i-1].Content), wordSet(history[i].Content))
	}
	return sum / float64(len(history)-1)
}

func wordSet(s string) map[string]bool {
	set := make(map[string]bool)
	for _, w := range strings.Fields(strings.ToLower(s)) {
		set[w] = true
	}
	return set
}

func jaccard(a, b map[string]bool) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1
	}
	intersection := 0
	for w := range a {
		if b[w] {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}
