package store

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"quotemine/pkg/dedup"
	"quotemine/pkg/domain"
)

func newStore(t *testing.T) (*JSONStore, string) {
	t.Helper()
	dir := t.TempDir()
	s, err := NewJSONStore(dir, nil)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	return s, dir
}

func candidate(page int, text string, quality float64) domain.Candidate {
	return domain.Candidate{
		PageNumber:   page,
		QuoteText:    text,
		OriginalText: text,
		Category:     "marketing",
		Style:        domain.StyleInsight,
		QualityScore: quality,
		Length:       len([]rune(text)),
	}
}

func TestAddBookIdempotentByTitle(t *testing.T) {
	s, _ := newStore(t)
	id1, err := s.AddBook("DotCom Secrets", "Russell Brunson", "marketing", "dotcom.pdf", nil)
	if err != nil {
		t.Fatalf("add book: %v", err)
	}
	id2, err := s.AddBook("DotCom Secrets", "Someone Else", "other", "copy.pdf", nil)
	if err != nil {
		t.Fatalf("add book twice: %v", err)
	}
	if id1 != id2 {
		t.Fatalf("ids differ: %q vs %q", id1, id2)
	}
	books, err := s.ListBooks()
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(books) != 1 {
		t.Fatalf("books = %d, want 1", len(books))
	}
	// First registration wins.
	if books[0].Author != "Russell Brunson" {
		t.Fatalf("author = %q", books[0].Author)
	}
}

func TestAddQuoteActions(t *testing.T) {
	s, _ := newStore(t)
	bookID, _ := s.AddBook("DotCom Secrets", "", "", "", nil)

	id1, action, err := s.AddQuote(bookID, candidate(5, "Marketing beats product.", 0.6))
	if err != nil || action != dedup.ActionInsert {
		t.Fatalf("first add: action=%v err=%v", action, err)
	}

	// Near-identical rendering with no quality edge: skip.
	id2, action, err := s.AddQuote(bookID, candidate(9, `"Marketing beats product"`, 0.6))
	if err != nil || action != dedup.ActionSkip {
		t.Fatalf("duplicate add: action=%v err=%v", action, err)
	}
	if id2 != id1 {
		t.Fatalf("skip should report the existing id, got %q want %q", id2, id1)
	}

	// Clearly better quality: replace in place, same id.
	id3, action, err := s.AddQuote(bookID, candidate(9, "Marketing beats product.", 0.9))
	if err != nil || action != dedup.ActionReplace {
		t.Fatalf("replace add: action=%v err=%v", action, err)
	}
	if id3 != id1 {
		t.Fatalf("replace should keep the existing id, got %q want %q", id3, id1)
	}

	quotes, err := s.GetQuotes(domain.QuoteFilter{BookID: bookID})
	if err != nil {
		t.Fatalf("get quotes: %v", err)
	}
	if len(quotes) != 1 {
		t.Fatalf("quotes = %d, want 1", len(quotes))
	}
	if quotes[0].QualityScore != 0.9 || quotes[0].PageNumber != 9 {
		t.Fatalf("replace did not overwrite: %+v", quotes[0])
	}
}

func TestReplacePreservesPublishedState(t *testing.T) {
	s, _ := newStore(t)
	bookID, _ := s.AddBook("Expert Secrets", "", "", "", nil)
	id, _, err := s.AddQuote(bookID, candidate(1, "Your message matters more than your product.", 0.5))
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := s.MarkPublished(id); err != nil {
		t.Fatalf("publish: %v", err)
	}

	if _, action, err := s.AddQuote(bookID, candidate(1, "Your message matters more than your product.", 0.95)); err != nil || action != dedup.ActionReplace {
		t.Fatalf("replace: action=%v err=%v", action, err)
	}
	quotes, _ := s.GetQuotes(domain.QuoteFilter{BookID: bookID})
	if len(quotes) != 1 || !quotes[0].Published || quotes[0].PublishedAt == nil {
		t.Fatalf("published state lost on replace: %+v", quotes[0])
	}
}

func TestAddQuoteUnknownBook(t *testing.T) {
	s, _ := newStore(t)
	_, _, err := s.AddQuote("missing", candidate(1, "anything at all", 0.5))
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestGetQuotesOrderingAndPagination(t *testing.T) {
	s, _ := newStore(t)
	bookID, _ := s.AddBook("Traffic Secrets", "", "", "", nil)
	texts := map[int]string{
		42: "Dream customers congregate in streams you can tap into.",
		7:  "Your job is to find where attention already flows.",
		19: "Hooks earn the right to tell your story to strangers.",
	}
	for _, page := range []int{42, 7, 19} {
		if _, _, err := s.AddQuote(bookID, candidate(page, texts[page], 0.7)); err != nil {
			t.Fatalf("add: %v", err)
		}
	}

	quotes, err := s.GetQuotes(domain.QuoteFilter{BookID: bookID})
	if err != nil {
		t.Fatalf("get quotes: %v", err)
	}
	if len(quotes) != 3 {
		t.Fatalf("quotes = %d, want 3", len(quotes))
	}
	for i, want := range []int{7, 19, 42} {
		if quotes[i].PageNumber != want {
			t.Fatalf("position %d: page %d, want %d", i, quotes[i].PageNumber, want)
		}
	}

	// Two paginated reads cover the list exactly once, in the same order.
	first, _ := s.GetQuotes(domain.QuoteFilter{BookID: bookID, Limit: 2})
	second, _ := s.GetQuotes(domain.QuoteFilter{BookID: bookID, Limit: 2, Offset: 2})
	if len(first) != 2 || len(second) != 1 {
		t.Fatalf("pagination sizes: %d + %d", len(first), len(second))
	}
	if first[0].ID != quotes[0].ID || first[1].ID != quotes[1].ID || second[0].ID != quotes[2].ID {
		t.Fatal("paginated reads disagree with the full read")
	}
}

func TestGetQuotesFilters(t *testing.T) {
	s, _ := newStore(t)
	bookID, _ := s.AddBook("DotCom Secrets", "", "", "", nil)

	high := candidate(1, "The money is in the follow-up sequence, not the first sale.", 0.9)
	high.IsEngaging = true
	low := candidate(2, "Some mildly interesting fact about typography and layout.", 0.3)
	low.Category = "design"

	id1, _, _ := s.AddQuote(bookID, high)
	if _, _, err := s.AddQuote(bookID, low); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := s.MarkPublished(id1); err != nil {
		t.Fatalf("publish: %v", err)
	}

	got, _ := s.GetQuotes(domain.QuoteFilter{BookID: bookID, MinQuality: 0.5})
	if len(got) != 1 || got[0].ID != id1 {
		t.Fatalf("minQuality filter: %+v", got)
	}
	got, _ = s.GetQuotes(domain.QuoteFilter{BookID: bookID, Category: "design"})
	if len(got) != 1 || got[0].Category != "design" {
		t.Fatalf("category filter: %+v", got)
	}
	got, _ = s.GetQuotes(domain.QuoteFilter{BookID: bookID, OnlyEngaging: true})
	if len(got) != 1 || got[0].ID != id1 {
		t.Fatalf("engaging filter: %+v", got)
	}
	got, _ = s.GetQuotes(domain.QuoteFilter{BookID: bookID, OnlyUnpublished: true})
	if len(got) != 1 || got[0].ID == id1 {
		t.Fatalf("unpublished filter: %+v", got)
	}
}

func TestSearchQuotesUniqueSubstringFirst(t *testing.T) {
	s, _ := newStore(t)
	bookID, _ := s.AddBook("DotCom Secrets", "", "", "", nil)
	want, _, _ := s.AddQuote(bookID, candidate(3, "A value ladder turns one-time buyers into lifetime customers.", 0.8))
	s.AddQuote(bookID, candidate(5, "Traffic you own is the only asset that compounds.", 0.9))
	s.AddQuote(bookID, candidate(8, "Stories sell because facts only justify decisions.", 0.7))

	results, err := s.SearchQuotes("value ladder", 10)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(results) == 0 || results[0].ID != want {
		t.Fatalf("unique substring match not first: %+v", results)
	}
}

func TestMarkPublishedIdempotent(t *testing.T) {
	s, _ := newStore(t)
	bookID, _ := s.AddBook("Expert Secrets", "", "", "", nil)
	id, _, _ := s.AddQuote(bookID, candidate(1, "Beliefs, not features, close the sale every time.", 0.7))

	if err := s.MarkPublished(id); err != nil {
		t.Fatalf("first publish: %v", err)
	}
	quotes, _ := s.GetQuotes(domain.QuoteFilter{BookID: bookID})
	firstStamp := quotes[0].PublishedAt
	if firstStamp == nil {
		t.Fatal("publishedAt not set")
	}

	time.Sleep(5 * time.Millisecond)
	if err := s.MarkPublished(id); err != nil {
		t.Fatalf("second publish: %v", err)
	}
	quotes, _ = s.GetQuotes(domain.QuoteFilter{BookID: bookID})
	if !quotes[0].PublishedAt.Equal(*firstStamp) {
		t.Fatalf("publishedAt changed on second call: %v vs %v", quotes[0].PublishedAt, firstStamp)
	}

	if err := s.MarkPublished("missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("missing quote err = %v, want ErrNotFound", err)
	}
}

func TestGetQuotesNegativeOffset(t *testing.T) {
	s, _ := newStore(t)
	bookID, _ := s.AddBook("DotCom Secrets", "", "", "", nil)
	if _, _, err := s.AddQuote(bookID, candidate(1, "Negative offsets must not blow up the read path.", 0.5)); err != nil {
		t.Fatalf("add: %v", err)
	}
	quotes, err := s.GetQuotes(domain.QuoteFilter{BookID: bookID, Offset: -3})
	if err != nil {
		t.Fatalf("get quotes: %v", err)
	}
	if len(quotes) != 1 {
		t.Fatalf("quotes = %d, want 1 (negative offset treated as 0)", len(quotes))
	}
}

// blockWrites occupies the document's temp path so the next writeDocument
// fails, simulating a store that is temporarily unwritable.
func blockWrites(t *testing.T, path string) func() {
	t.Helper()
	if err := os.Mkdir(path+".tmp", 0o755); err != nil {
		t.Fatalf("block writes: %v", err)
	}
	return func() {
		if err := os.Remove(path + ".tmp"); err != nil {
			t.Fatalf("unblock writes: %v", err)
		}
	}
}

func TestMarkPublishedRetryAfterWriteFailure(t *testing.T) {
	s, _ := newStore(t)
	bookID, _ := s.AddBook("Expert Secrets", "", "", "", nil)
	id, _, err := s.AddQuote(bookID, candidate(1, "Durability means the flag survives the process.", 0.7))
	if err != nil {
		t.Fatalf("add: %v", err)
	}

	unblock := blockWrites(t, s.paths[bookID])
	if err := s.MarkPublished(id); err == nil {
		t.Fatal("expected publish to fail while the store is unwritable")
	}
	// The failed write must not leave the quote flagged in memory.
	quotes, _ := s.GetQuotes(domain.QuoteFilter{BookID: bookID})
	if quotes[0].Published {
		t.Fatal("quote flagged published after a failed write")
	}

	unblock()
	if err := s.MarkPublished(id); err != nil {
		t.Fatalf("retry after recovery: %v", err)
	}
	doc, err := ReadDocument(s.paths[bookID])
	if err != nil {
		t.Fatalf("read document: %v", err)
	}
	if !doc.Quotes[0].Published || doc.Quotes[0].PublishedAt == nil {
		t.Fatal("retry did not persist published=true to disk")
	}
}

func TestReplaceRolledBackOnWriteFailure(t *testing.T) {
	s, _ := newStore(t)
	bookID, _ := s.AddBook("DotCom Secrets", "", "", "", nil)
	if _, _, err := s.AddQuote(bookID, candidate(1, "Marketing beats product.", 0.5)); err != nil {
		t.Fatalf("add: %v", err)
	}

	unblock := blockWrites(t, s.paths[bookID])
	if _, _, err := s.AddQuote(bookID, candidate(2, "Marketing beats product.", 0.9)); err == nil {
		t.Fatal("expected replace to fail while the store is unwritable")
	}
	quotes, _ := s.GetQuotes(domain.QuoteFilter{BookID: bookID})
	if quotes[0].QualityScore != 0.5 || quotes[0].PageNumber != 1 {
		t.Fatalf("failed replace mutated memory: %+v", quotes[0])
	}

	unblock()
	if _, action, err := s.AddQuote(bookID, candidate(2, "Marketing beats product.", 0.9)); err != nil || action != dedup.ActionReplace {
		t.Fatalf("retry: action=%v err=%v", action, err)
	}
	quotes, _ = s.GetQuotes(domain.QuoteFilter{BookID: bookID})
	if quotes[0].QualityScore != 0.9 {
		t.Fatalf("retry did not apply the replace: %+v", quotes[0])
	}
}

func TestStats(t *testing.T) {
	s, _ := newStore(t)
	bookID, _ := s.AddBook("DotCom Secrets", "", "", "", nil)
	id, _, _ := s.AddQuote(bookID, candidate(1, "Publish everywhere your dream customers already gather.", 0.8))
	s.AddQuote(bookID, candidate(2, "An offer so good people feel stupid saying no.", 0.6))
	s.MarkPublished(id)

	stats, err := s.Stats()
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.TotalBooks != 1 || stats.TotalQuotes != 2 || stats.PublishedQuotes != 1 {
		t.Fatalf("stats = %+v", stats)
	}
	if stats.AvgQuality < 0.69 || stats.AvgQuality > 0.71 {
		t.Fatalf("avg quality = %v, want 0.7", stats.AvgQuality)
	}
	if stats.ByCategory["marketing"] != 2 {
		t.Fatalf("category counts = %v", stats.ByCategory)
	}
}

func TestReloadFromDisk(t *testing.T) {
	s, dir := newStore(t)
	bookID, _ := s.AddBook("DotCom Secrets", "Russell Brunson", "marketing", "dotcom.pdf", nil)
	s.AddQuote(bookID, candidate(4, "Funnels replace salespeople, they never sleep.", 0.75))
	s.UpdateBookStats(bookID)

	reopened, err := NewJSONStore(dir, nil)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	book, ok, err := reopened.GetBookByTitle("DotCom Secrets")
	if err != nil || !ok {
		t.Fatalf("book lookup after reload: ok=%v err=%v", ok, err)
	}
	if book.TotalQuotes != 1 || book.Author != "Russell Brunson" {
		t.Fatalf("book after reload = %+v", book)
	}
	quotes, _ := reopened.GetQuotes(domain.QuoteFilter{BookID: book.ID})
	if len(quotes) != 1 || quotes[0].QuoteText != "Funnels replace salespeople, they never sleep." {
		t.Fatalf("quotes after reload = %+v", quotes)
	}
}

func TestAdoptsLegacyDocument(t *testing.T) {
	dir := t.TempDir()
	// Legacy export: short keys only, no ids, no seq.
	legacy := `{
  "book": "Old Export",
  "quotes": [
    {"page": 3, "quote": "Wisdom from the legacy format.", "original": "page text", "engaging": true}
  ]
}`
	if err := os.WriteFile(filepath.Join(dir, "old-export.json"), []byte(legacy), 0o644); err != nil {
		t.Fatalf("write legacy: %v", err)
	}
	// A malformed file must be skipped, not fatal.
	if err := os.WriteFile(filepath.Join(dir, "broken.json"), []byte("{nope"), 0o644); err != nil {
		t.Fatalf("write broken: %v", err)
	}

	s, err := NewJSONStore(dir, nil)
	if err != nil {
		t.Fatalf("open over legacy dir: %v", err)
	}
	book, ok, err := s.GetBookByTitle("Old Export")
	if err != nil || !ok {
		t.Fatalf("legacy book not adopted: ok=%v err=%v", ok, err)
	}
	if book.ID == "" {
		t.Fatal("legacy book id not backfilled")
	}
	quotes, _ := s.GetQuotes(domain.QuoteFilter{BookID: book.ID})
	if len(quotes) != 1 || quotes[0].ID == "" || !quotes[0].IsEngaging {
		t.Fatalf("legacy quote not adopted: %+v", quotes)
	}
}
