package dedup

import (
	"strings"
	"unicode"

	"quotemine/pkg/domain"
)

// Action is the reconciliation outcome for one candidate.
type Action int

const (
	// ActionInsert means no stored quote is a near-duplicate.
	ActionInsert Action = iota
	// ActionSkip means a stored near-duplicate is at least as good.
	ActionSkip
	// ActionReplace means a stored near-duplicate should be overwritten in place.
	ActionReplace
)

func (a Action) String() string {
	switch a {
	case ActionSkip:
		return "skip"
	case ActionReplace:
		return "replace"
	default:
		return "insert"
	}
}

// Decision carries the action plus, for ActionReplace, the quote to overwrite.
type Decision struct {
	Action     Action
	ExistingID string
	Similarity float64
}

const (
	// DefaultThreshold is the token-overlap similarity above which two
	// quotes count as near-duplicates. Identical normalized text is always
	// a duplicate regardless of this value.
	DefaultThreshold = 0.90
	// DefaultEpsilon is the quality margin a candidate must beat an
	// existing duplicate by before it replaces it. Within the margin we
	// keep the stored quote to avoid churn.
	DefaultEpsilon = 0.01
)

// Engine detects near-duplicate quotes within a book.
type Engine struct {
	Threshold float64
	Epsilon   float64
}

// NewEngine returns an Engine with the documented default constants.
func NewEngine() *Engine {
	return &Engine{Threshold: DefaultThreshold, Epsilon: DefaultEpsilon}
}

// Decide reconciles a candidate against the quotes already stored for the
// same book. It returns the action to take and, for replace, the target ID.
// The most similar existing quote wins when several cross the threshold.
func (e *Engine) Decide(c domain.Candidate, existing []domain.Quote) Decision {
	normalized := Normalize(c.QuoteText)
	if normalized == "" {
		return Decision{Action: ActionSkip}
	}

	best := Decision{Action: ActionInsert}
	for _, q := range existing {
		stored := Normalize(q.QuoteText)
		sim := similarity(normalized, stored)
		if sim < e.Threshold {
			continue
		}
		if best.Action == ActionInsert || sim > best.Similarity {
			best = Decision{ExistingID: q.ID, Similarity: sim}
			if c.QualityScore > q.QualityScore+e.Epsilon {
				best.Action = ActionReplace
			} else {
				best.Action = ActionSkip
			}
		}
	}
	return best
}

// Normalize lowercases, strips punctuation, and collapses whitespace so that
// trivially different renderings of the same quote compare equal.
func Normalize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	lastSpace := true
	for _, r := range strings.ToLower(s) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			lastSpace = false
		case unicode.IsSpace(r) || unicode.IsPunct(r) || unicode.IsSymbol(r):
			if !lastSpace {
				b.WriteRune(' ')
				lastSpace = true
			}
		}
	}
	return strings.TrimSpace(b.String())
}

// similarity compares two already-normalized texts. Equal strings score 1.0;
// otherwise it is the Jaccard overlap of their token sets.
func similarity(a, b string) float64 {
	if a == b {
		return 1.0
	}
	if a == "" || b == "" {
		return 0
	}
	setA := tokenSet(a)
	setB := tokenSet(b)
	inter := 0
	for tok := range setA {
		if _, ok := setB[tok]; ok {
			inter++
		}
	}
	union := len(setA) + len(setB) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}

func tokenSet(s string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, tok := range strings.Fields(s) {
		set[tok] = struct{}{}
	}
	return set
}
