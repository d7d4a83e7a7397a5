package pipeline

import (
	"regexp"
	"strings"

	"quotemine/pkg/domain"
	"quotemine/pkg/extract"
)

const (
	// MaxQuoteLength is the longest quote kept, matching the publish limit.
	MaxQuoteLength = 500
	// MinQuoteLength is the shortest text still treated as a complete
	// thought; shorter candidates are heavily penalized on completeness.
	MinQuoteLength = 30
)

var (
	whitespaceRun = regexp.MustCompile(`\s+`)

	// boilerplateMarkers flag text that is navigation or advertising
	// rather than a quotation.
	boilerplateMarkers = []string{
		"scan to download",
		"www.",
		"http://",
		"https://",
		"table of contents",
		"copyright",
		"all rights reserved",
		"©",
	}
	chapterLine = regexp.MustCompile(`(?i)^(chapter|part|appendix)\s+\d+`)
)

// Normalize converts a raw extraction record into a canonical candidate.
// It returns ok=false when the candidate must be discarded: empty quote
// text after trimming, or boilerplate. Discarding is not an error; callers
// count it as skipped.
func Normalize(raw extract.RawCandidate, page domain.PageText) (domain.Candidate, bool) {
	text := collapseWhitespace(raw.Quote)
	if text == "" {
		return domain.Candidate{}, false
	}
	if isBoilerplate(text) {
		return domain.Candidate{}, false
	}
	text = truncateBySentence(text, MaxQuoteLength)

	original := collapseWhitespace(raw.Original)
	if original == "" {
		original = strings.TrimSpace(page.Text)
	}
	category := strings.TrimSpace(raw.Category)
	if category == "" {
		category = "general"
	}
	style := domain.QuoteStyle(strings.TrimSpace(raw.Style))
	if style == "" {
		style = domain.StyleInsight
	}

	meta := make(map[string]any, len(raw.Meta)+2)
	for k, v := range raw.Meta {
		meta[k] = v
	}
	if raw.Confidence != nil {
		meta["confidence"] = *raw.Confidence
	}
	if raw.Engaging != nil {
		meta["engaging_hint"] = *raw.Engaging
	}

	return domain.Candidate{
		PageNumber:     page.Number,
		OriginalText:   original,
		QuoteText:      text,
		TranslatedText: collapseWhitespace(raw.Translated),
		Summary:        collapseWhitespace(raw.Summary),
		Category:       category,
		Style:          style,
		TargetAudience: strings.TrimSpace(raw.TargetAudience),
		Length:         len([]rune(text)),
		Metadata:       meta,
	}, true
}

func collapseWhitespace(s string) string {
	return strings.TrimSpace(whitespaceRun.ReplaceAllString(s, " "))
}

func isBoilerplate(text string) bool {
	low := strings.ToLower(text)
	for _, marker := range boilerplateMarkers {
		if strings.Contains(low, marker) {
			return true
		}
	}
	return chapterLine.MatchString(text)
}

// truncateBySentence cuts overlong text at a sentence boundary, falling
// back to a word boundary with an ellipsis when no sentence fits.
func truncateBySentence(text string, max int) string {
	if len([]rune(text)) <= max {
		return text
	}
	var b strings.Builder
	for _, sentence := range splitAfterPunct(text) {
		if len([]rune(b.String()))+len([]rune(sentence)) > max {
			break
		}
		b.WriteString(sentence)
	}
	out := strings.TrimSpace(b.String())
	if len([]rune(out)) >= MinQuoteLength {
		return out
	}
	words := strings.Fields(text)
	b.Reset()
	for _, word := range words {
		if len([]rune(b.String()))+len([]rune(word))+4 > max {
			break
		}
		b.WriteString(word)
		b.WriteString(" ")
	}
	return strings.TrimSpace(b.String()) + "…"
}

// splitAfterPunct splits text into sentences, keeping each sentence's
// terminal punctuation and trailing space.
func splitAfterPunct(text string) []string {
	var parts []string
	start := 0
	runes := []rune(text)
	for i, r := range runes {
		if r == '.' || r == '!' || r == '?' || r == '…' {
			end := i + 1
			for end < len(runes) && runes[end] == ' ' {
				end++
			}
			parts = append(parts, string(runes[start:end]))
			start = end
		}
	}
	if start < len(runes) {
		parts = append(parts, string(runes[start:]))
	}
	return parts
}
