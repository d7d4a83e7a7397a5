package extract

import (
	"context"
	"regexp"
	"strings"
	"unicode"

	"quotemine/pkg/domain"
)

// HeuristicExtractor picks candidate sentences without calling a model.
// It is the fallback when no API key is configured and keeps the pipeline
// usable offline.
type HeuristicExtractor struct {
	MaxPerPage int
}

// NewHeuristicExtractor returns an extractor yielding at most two
// candidates per page.
func NewHeuristicExtractor() *HeuristicExtractor {
	return &HeuristicExtractor{MaxPerPage: 2}
}

var (
	sentenceSplit = regexp.MustCompile(`(?:[.!?…])\s+`)

	topicTerms = []string{
		"funnel", "convert", "sales", "lead", "traffic", "audience",
		"attention", "offer", "market", "launch", "product", "viral",
		"revenue", "customer", "value", "promise", "strategy", "growth",
	}
	actionTerms = []string{
		"must", "should", "need", "build", "understand", "test",
		"launch", "focus", "start", "stop", "never", "always",
	}
)

// Extract scores each sentence by topic and action terms and returns the
// strongest ones as candidates.
func (h *HeuristicExtractor) Extract(_ context.Context, _ domain.Book, page domain.PageText) ([]RawCandidate, error) {
	max := h.MaxPerPage
	if max <= 0 {
		max = 2
	}
	var out []RawCandidate
	for _, sentence := range splitSentences(page.Text) {
		sentence = strings.TrimSpace(sentence)
		if len(sentence) < 60 || len(sentence) > 400 {
			continue
		}
		low := strings.ToLower(sentence)
		if !containsAny(low, topicTerms) || !containsAny(low, actionTerms) {
			continue
		}
		confidence := heuristicConfidence(low)
		out = append(out, RawCandidate{
			Quote:      sentence,
			Original:   page.Text,
			Category:   "marketing",
			Style:      string(domain.StyleInsight),
			Confidence: &confidence,
			Meta:       map[string]any{"extractor": "heuristic"},
		})
		if len(out) >= max {
			break
		}
	}
	return out, nil
}

func splitSentences(text string) []string {
	// Keep the terminal punctuation with each sentence. The match covers
	// the terminator plus trailing whitespace; trimming the whitespace off
	// the matched span keeps multi-byte terminators like … intact.
	var sentences []string
	rest := text
	for {
		loc := sentenceSplit.FindStringIndex(rest)
		if loc == nil {
			break
		}
		sentences = append(sentences, strings.TrimRightFunc(rest[:loc[1]], unicode.IsSpace))
		rest = rest[loc[1]:]
	}
	if strings.TrimSpace(rest) != "" {
		sentences = append(sentences, rest)
	}
	return sentences
}

func containsAny(s string, terms []string) bool {
	for _, t := range terms {
		if strings.Contains(s, t) {
			return true
		}
	}
	return false
}

// heuristicConfidence counts term hits, capped so heuristic candidates
// never outrank model-extracted ones by default.
func heuristicConfidence(low string) float64 {
	hits := 0
	for _, t := range topicTerms {
		if strings.Contains(low, t) {
			hits++
		}
	}
	for _, t := range actionTerms {
		if strings.Contains(low, t) {
			hits++
		}
	}
	conf := 0.4 + 0.05*float64(hits)
	if conf > 0.75 {
		conf = 0.75
	}
	return conf
}
