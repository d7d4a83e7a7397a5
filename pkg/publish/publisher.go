package publish

import (
	"context"
	"fmt"
	"strings"

	"quotemine/pkg/domain"
)

// MaxPostLength is the hard cap Threads enforces on a text post.
const MaxPostLength = 500

// Publisher posts a quote to an external channel. Implementations must be
// safe to retry: the caller marks the quote published only after a
// successful return.
type Publisher interface {
	Publish(ctx context.Context, book domain.Book, quote domain.Quote) (postID string, err error)
}

// FormatPost renders the quote as post text with attribution, trimmed to
// the channel limit.
func FormatPost(book domain.Book, quote domain.Quote) string {
	text := quote.QuoteText
	if quote.TranslatedText != "" {
		text = quote.TranslatedText
	}
	attribution := fmt.Sprintf("\n\n— %s", book.Title)
	if book.Author != "" {
		attribution = fmt.Sprintf("\n\n— %s, %s", book.Author, book.Title)
	}
	budget := MaxPostLength - len([]rune(attribution))
	runes := []rune(text)
	if len(runes) > budget {
		text = strings.TrimSpace(string(runes[:budget-1])) + "…"
	}
	return text + attribution
}

// LogPublisher records the post instead of sending it, for dry runs.
type LogPublisher struct{}

func (LogPublisher) Publish(_ context.Context, book domain.Book, quote domain.Quote) (string, error) {
	_ = FormatPost(book, quote)
	return "dry-run:" + quote.ID, nil
}
