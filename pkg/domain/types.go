package domain

import "time"

// QuoteStyle labels how a quote reads.
type QuoteStyle string

const (
	StyleInsight     QuoteStyle = "insight"
	StyleRule        QuoteStyle = "rule"
	StyleAdvice      QuoteStyle = "advice"
	StyleMistake     QuoteStyle = "mistake"
	StyleObservation QuoteStyle = "observation"
)

type Book struct {
	ID          string         `json:"id"`
	Title       string         `json:"title"`
	Author      string         `json:"author"`
	Topic       string         `json:"topic"`
	SourceFile  string         `json:"sourceFile"`
	TotalQuotes int            `json:"totalQuotes"`
	ProcessedAt time.Time      `json:"processedAt"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

type Quote struct {
	ID             string     `json:"id"`
	BookID         string     `json:"bookId"`
	PageNumber     int        `json:"pageNumber"`
	OriginalText   string     `json:"originalText"`
	QuoteText      string     `json:"quoteText"`
	TranslatedText string     `json:"translatedText,omitempty"`
	Summary        string     `json:"summary,omitempty"`
	Category       string     `json:"category"`
	Style          QuoteStyle `json:"style"`
	TargetAudience string     `json:"targetAudience,omitempty"`

	IsEngaging     bool    `json:"isEngaging"`
	QualityScore   float64 `json:"qualityScore"`
	Completeness   float64 `json:"completeness"`
	Clarity        float64 `json:"clarity"`
	PracticalValue float64 `json:"practicalValue"`
	Length         int     `json:"length"`

	Published   bool       `json:"published"`
	PublishedAt *time.Time `json:"publishedAt,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`

	Metadata map[string]any `json:"metadata,omitempty"`
}

// Candidate is a normalized, scored quote ready for dedup and storage.
// The store copies its fields onto a Quote on insert.
type Candidate struct {
	PageNumber     int
	OriginalText   string
	QuoteText      string
	TranslatedText string
	Summary        string
	Category       string
	Style          QuoteStyle
	TargetAudience string

	IsEngaging     bool
	QualityScore   float64
	Completeness   float64
	Clarity        float64
	PracticalValue float64
	Length         int

	Metadata map[string]any
}

// PageText is one page of source text. Numbers are 1-based.
type PageText struct {
	Number int
	Text   string
}

// QuoteFilter narrows GetQuotes results. Zero values mean "no constraint";
// set fields combine with logical AND.
type QuoteFilter struct {
	BookID          string
	Category        string
	MinQuality      float64
	OnlyEngaging    bool
	OnlyUnpublished bool
	Limit           int
	Offset          int
}

// Stats aggregates store-wide counters.
type Stats struct {
	TotalBooks      int            `json:"totalBooks"`
	TotalQuotes     int            `json:"totalQuotes"`
	PublishedQuotes int            `json:"publishedQuotes"`
	AvgQuality      float64        `json:"avgQuality"`
	ByCategory      map[string]int `json:"byCategory"`
}

// ProcessReport summarizes one processing run over a book.
type ProcessReport struct {
	BookID     string `json:"bookId"`
	Pages      int    `json:"pages"`
	Candidates int    `json:"candidates"`
	Skipped    int    `json:"skipped"`
	Duplicates int    `json:"duplicates"`
	Replaced   int    `json:"replaced"`
	Inserted   int    `json:"inserted"`
	Errors     int    `json:"errors"`
}
