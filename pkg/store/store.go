package store

import (
	"errors"
	"time"

	"quotemine/pkg/dedup"
	"quotemine/pkg/domain"
)

// ErrNotFound is returned when a book or quote does not exist.
var ErrNotFound = errors.New("store: not found")

// Store defines persistence for books and their quotes. Two backends
// implement it: a per-book JSON document store and a GORM/Postgres store.
//
// Mutations on a single book assume one writer at a time; writes to
// different books may run concurrently. Every implementation runs the
// dedup engine inside AddQuote, so reprocessing a book is idempotent.
type Store interface {
	// AddBook registers a book, idempotent by title: a second call with
	// the same title returns the existing book's ID without creating a
	// duplicate.
	AddBook(title, author, topic, sourceFile string, metadata map[string]any) (string, error)

	// AddQuote reconciles the candidate against the book's stored quotes
	// and reports the action taken. On insert it returns the new quote's
	// ID; on skip, the existing near-duplicate's ID; on replace it
	// overwrites the existing quote in place (same ID, published state
	// preserved) and returns that ID. Skip and replace are normal
	// outcomes, not errors.
	AddQuote(bookID string, c domain.Candidate) (string, dedup.Action, error)

	GetBook(id string) (domain.Book, bool, error)
	GetBookByTitle(title string) (domain.Book, bool, error)

	// ListBooks returns books in insertion order.
	ListBooks() ([]domain.Book, error)

	// GetQuotes returns quotes matching the filter, ordered by page number
	// ascending and insertion order within a page. The ordering is stable
	// across paginated reads with no intervening writes.
	GetQuotes(f domain.QuoteFilter) ([]domain.Quote, error)

	// SearchQuotes ranks quotes by relevance of the query against
	// quote_text, translated_text, and summary. A query matching a unique
	// substring of exactly one quote returns that quote first.
	SearchQuotes(query string, limit int) ([]domain.Quote, error)

	// MarkPublished sets published=true and published_at=now. Calling it
	// again is a no-op; published_at is set exactly once.
	MarkPublished(quoteID string) error

	// MarkPublishedAt is MarkPublished with an explicit timestamp, so
	// migration can preserve a source document's published_at.
	MarkPublishedAt(quoteID string, at time.Time) error

	// UpdateBookStats recomputes total_quotes from the stored quote count
	// and persists it. Safe to call at any time as a repair operation.
	UpdateBookStats(bookID string) (int, error)

	Stats() (domain.Stats, error)

	Close() error
}
