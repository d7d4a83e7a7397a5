package pipeline

import (
	"strings"
	"unicode/utf8"

	"quotemine/pkg/domain"
)

// EngagingThreshold is the quality_score at or above which a quote counts
// as engaging on its own.
const EngagingThreshold = 0.60

var practicalTerms = []string{
	"how", "why", "method", "way", "technique", "tool",
	"example", "case", "story", "experience",
	"advice", "rule", "principle", "step", "result", "strategy",
}

// Score fills in the candidate's quality signals. It is deterministic:
// identical text and metadata always produce identical scores, which keeps
// reprocessing idempotent.
func Score(c *domain.Candidate) {
	c.Completeness = completeness(c.QuoteText)
	c.Clarity = clarity(c.QuoteText)
	c.PracticalValue = practicalValue(c.QuoteText)

	base := (c.Completeness + c.Clarity + c.PracticalValue) / 3

	var hinted bool
	if conf, ok := confidenceHint(c.Metadata); ok {
		base = (base + conf) / 2
	}
	if v, ok := c.Metadata["engaging_hint"].(bool); ok && v {
		hinted = true
	}

	c.QualityScore = clamp01(base)
	c.IsEngaging = c.QualityScore >= EngagingThreshold || hinted
}

// completeness rewards terminal punctuation and penalizes fragments below
// the minimum length toward zero rather than erroring.
func completeness(text string) float64 {
	score := 0.4
	if strings.HasSuffix(text, ".") || strings.HasSuffix(text, "!") ||
		strings.HasSuffix(text, "?") || strings.HasSuffix(text, "…") ||
		strings.HasSuffix(text, "\"") || strings.HasSuffix(text, "'") {
		score = 1.0
	}
	if utf8.RuneCountInString(text) < MinQuoteLength {
		score *= 0.2
	}
	return clamp01(score)
}

// clarity approximates readability from the share of substantive words.
func clarity(text string) float64 {
	words := strings.Fields(text)
	if len(words) == 0 {
		return 0
	}
	meaningful := 0
	long := 0
	for _, w := range words {
		if utf8.RuneCountInString(w) > 3 {
			meaningful++
		}
		if utf8.RuneCountInString(w) > 20 {
			long++
		}
	}
	ratio := float64(meaningful) / float64(len(words))
	score := 0.3 + 0.7*ratio
	if long > 0 {
		score *= 0.9
	}
	if len(words) < 5 {
		score *= 0.5
	}
	return clamp01(score)
}

// practicalValue counts advice-flavored terms, saturating at three hits.
func practicalValue(text string) float64 {
	low := strings.ToLower(text)
	hits := 0
	for _, term := range practicalTerms {
		if strings.Contains(low, term) {
			hits++
		}
	}
	if hits > 3 {
		hits = 3
	}
	return 0.25 + 0.25*float64(hits)
}

func confidenceHint(meta map[string]any) (float64, bool) {
	raw, ok := meta["confidence"]
	if !ok {
		return 0, false
	}
	switch v := raw.(type) {
	case float64:
		return clamp01(v), true
	case float32:
		return clamp01(float64(v)), true
	case int:
		return clamp01(float64(v)), true
	default:
		return 0, false
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
