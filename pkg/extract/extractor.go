package extract

import (
	"context"

	"quotemine/pkg/domain"
)

// RawCandidate is the loosely-shaped record an extraction call returns for
// one candidate quote. Any field may be missing; the pipeline normalizer
// applies defaults and discards empty candidates.
type RawCandidate struct {
	Quote          string         `json:"quote"`
	Original       string         `json:"original,omitempty"`
	Translated     string         `json:"translated,omitempty"`
	Summary        string         `json:"summary,omitempty"`
	Category       string         `json:"category,omitempty"`
	Style          string         `json:"style,omitempty"`
	TargetAudience string         `json:"target_audience,omitempty"`
	Engaging       *bool          `json:"engaging,omitempty"`
	Confidence     *float64       `json:"confidence,omitempty"`
	Meta           map[string]any `json:"meta,omitempty"`
}

// Extractor produces candidate quotes for one page of book text.
// A failed call for one page must not abort the book: callers log the
// error and continue with the next page.
type Extractor interface {
	Extract(ctx context.Context, book domain.Book, page domain.PageText) ([]RawCandidate, error)
}
