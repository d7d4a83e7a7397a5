package store

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"quotemine/internal/util"
	"quotemine/pkg/dedup"
	"quotemine/pkg/domain"
)

// JSONStore keeps one serialized document per book under a base directory.
type JSONStore struct {
	mu      sync.RWMutex
	dir     string
	engine  *dedup.Engine
	docs    map[string]*Document // book ID -> document
	paths   map[string]string    // book ID -> file path
	byTitle map[string]string    // title -> book ID
	nextSeq int
}

// NewJSONStore loads every *.json document under dir, creating it if missing.
func NewJSONStore(dir string, engine *dedup.Engine) (*JSONStore, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, fmt.Errorf("json store: base directory is required")
	}
	if engine == nil {
		engine = dedup.NewEngine()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create store dir: %w", err)
	}
	s := &JSONStore{
		dir:     dir,
		engine:  engine,
		docs:    make(map[string]*Document),
		paths:   make(map[string]string),
		byTitle: make(map[string]string),
		nextSeq: 1,
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read store dir: %w", err)
	}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		doc, err := ReadDocument(path)
		if err != nil {
			// A malformed file must not take the whole store down.
			continue
		}
		s.adopt(path, doc)
	}
	return s, nil
}

// adopt registers a loaded document, backfilling IDs missing from legacy files.
func (s *JSONStore) adopt(path string, doc Document) {
	if doc.ID == "" {
		doc.ID = util.NewID()
	}
	if doc.Seq == 0 {
		doc.Seq = s.nextSeq
	}
	if doc.Seq >= s.nextSeq {
		s.nextSeq = doc.Seq + 1
	}
	for i := range doc.Quotes {
		if doc.Quotes[i].ID == "" {
			doc.Quotes[i].ID = util.NewID()
		}
	}
	s.docs[doc.ID] = &doc
	s.paths[doc.ID] = path
	s.byTitle[doc.Book] = doc.ID
}

// AddBook registers a book, idempotent by title.
func (s *JSONStore) AddBook(title, author, topic, sourceFile string, metadata map[string]any) (string, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return "", fmt.Errorf("json store: book title is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.byTitle[title]; ok {
		return id, nil
	}
	doc := Document{
		ID:          util.NewID(),
		Seq:         s.nextSeq,
		Book:        title,
		Author:      author,
		Topic:       topic,
		SourceFile:  sourceFile,
		ProcessedAt: time.Now().UTC(),
		Metadata:    metadata,
		Quotes:      []DocumentQuote{},
	}
	s.nextSeq++
	path := filepath.Join(s.dir, s.uniqueFilename(title))
	if err := writeDocument(path, doc); err != nil {
		return "", err
	}
	s.docs[doc.ID] = &doc
	s.paths[doc.ID] = path
	s.byTitle[title] = doc.ID
	return doc.ID, nil
}

// AddQuote runs the dedup engine against the book's stored quotes and then
// inserts, skips, or replaces in place.
func (s *JSONStore) AddQuote(bookID string, c domain.Candidate) (string, dedup.Action, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.docs[bookID]
	if !ok {
		return "", dedup.ActionSkip, fmt.Errorf("json store: add quote: %w", ErrNotFound)
	}

	existing := make([]domain.Quote, 0, len(doc.Quotes))
	for _, dq := range doc.Quotes {
		existing = append(existing, docQuoteToDomain(bookID, dq))
	}
	decision := s.engine.Decide(c, existing)

	switch decision.Action {
	case dedup.ActionSkip:
		return decision.ExistingID, dedup.ActionSkip, nil
	case dedup.ActionReplace:
		for i := range doc.Quotes {
			if doc.Quotes[i].ID != decision.ExistingID {
				continue
			}
			prev := doc.Quotes[i]
			replaced := candidateToDocQuote(c)
			replaced.ID = prev.ID
			replaced.Published = prev.Published
			replaced.PublishedAt = prev.PublishedAt
			replaced.CreatedAt = prev.CreatedAt
			doc.Quotes[i] = replaced
			if err := writeDocument(s.paths[bookID], *doc); err != nil {
				doc.Quotes[i] = prev
				return "", dedup.ActionReplace, err
			}
			break
		}
		return decision.ExistingID, dedup.ActionReplace, nil
	default:
		dq := candidateToDocQuote(c)
		dq.ID = util.NewID()
		dq.CreatedAt = time.Now().UTC()
		doc.Quotes = append(doc.Quotes, dq)
		if err := writeDocument(s.paths[bookID], *doc); err != nil {
			doc.Quotes = doc.Quotes[:len(doc.Quotes)-1]
			return "", dedup.ActionInsert, err
		}
		return dq.ID, dedup.ActionInsert, nil
	}
}

func (s *JSONStore) GetBook(id string) (domain.Book, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.docs[id]
	if !ok {
		return domain.Book{}, false, nil
	}
	return docToBook(*doc), true, nil
}

func (s *JSONStore) GetBookByTitle(title string) (domain.Book, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byTitle[strings.TrimSpace(title)]
	if !ok {
		return domain.Book{}, false, nil
	}
	return docToBook(*s.docs[id]), true, nil
}

// ListBooks returns books in insertion order.
func (s *JSONStore) ListBooks() ([]domain.Book, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	docs := make([]*Document, 0, len(s.docs))
	for _, doc := range s.docs {
		docs = append(docs, doc)
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].Seq < docs[j].Seq })
	books := make([]domain.Book, 0, len(docs))
	for _, doc := range docs {
		books = append(books, docToBook(*doc))
	}
	return books, nil
}

// GetQuotes filters quotes, ordered by page ascending then insertion order.
func (s *JSONStore) GetQuotes(f domain.QuoteFilter) ([]domain.Quote, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	quotes := s.collect(f.BookID)
	filtered := quotes[:0:0]
	for _, q := range quotes {
		if matchesFilter(q, f) {
			filtered = append(filtered, q)
		}
	}
	return paginate(filtered, f.Limit, f.Offset), nil
}

// SearchQuotes ranks by keyword relevance over quote, translation, and
// summary, falling back to substring matching. Ties break on quality.
func (s *JSONStore) SearchQuotes(query string, limit int) ([]domain.Quote, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if limit <= 0 {
		limit = 50
	}
	type hit struct {
		quote domain.Quote
		score float64
	}
	var hits []hit
	for _, q := range s.collect("") {
		score := searchScore(q, query)
		if score > 0 {
			hits = append(hits, hit{quote: q, score: score})
		}
	}
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].score != hits[j].score {
			return hits[i].score > hits[j].score
		}
		return hits[i].quote.QualityScore > hits[j].quote.QualityScore
	})
	if len(hits) > limit {
		hits = hits[:limit]
	}
	result := make([]domain.Quote, 0, len(hits))
	for _, h := range hits {
		result = append(result, h.quote)
	}
	return result, nil
}

// MarkPublished is idempotent: the second call leaves published_at untouched.
func (s *JSONStore) MarkPublished(quoteID string) error {
	return s.MarkPublishedAt(quoteID, time.Now().UTC())
}

// MarkPublishedAt records publication with an explicit timestamp, used by
// migration to carry the source's published_at. The in-memory flag is set
// only after the document hits disk, so a failed write stays retryable.
func (s *JSONStore) MarkPublishedAt(quoteID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, doc := range s.docs {
		for i := range doc.Quotes {
			if doc.Quotes[i].ID != quoteID {
				continue
			}
			if doc.Quotes[i].Published {
				return nil
			}
			prev := doc.Quotes[i]
			stamp := at.UTC()
			doc.Quotes[i].Published = true
			doc.Quotes[i].PublishedAt = &stamp
			if err := writeDocument(s.paths[id], *doc); err != nil {
				doc.Quotes[i] = prev
				return err
			}
			return nil
		}
	}
	return fmt.Errorf("json store: mark published: %w", ErrNotFound)
}

// UpdateBookStats recomputes total_quotes from the stored quote count.
func (s *JSONStore) UpdateBookStats(bookID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.docs[bookID]
	if !ok {
		return 0, fmt.Errorf("json store: update stats: %w", ErrNotFound)
	}
	count := len(doc.Quotes)
	if doc.TotalQuotes != count {
		prev := doc.TotalQuotes
		doc.TotalQuotes = count
		if err := writeDocument(s.paths[bookID], *doc); err != nil {
			doc.TotalQuotes = prev
			return 0, err
		}
	}
	return count, nil
}

func (s *JSONStore) Stats() (domain.Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stats := domain.Stats{
		TotalBooks: len(s.docs),
		ByCategory: make(map[string]int),
	}
	var qualitySum float64
	for _, doc := range s.docs {
		for _, dq := range doc.Quotes {
			stats.TotalQuotes++
			if dq.Published {
				stats.PublishedQuotes++
			}
			if dq.QualityScore != nil {
				qualitySum += *dq.QualityScore
			}
			category := dq.Category
			if category == "" {
				category = "general"
			}
			stats.ByCategory[category]++
		}
	}
	if stats.TotalQuotes > 0 {
		stats.AvgQuality = qualitySum / float64(stats.TotalQuotes)
	}
	return stats, nil
}

// Close flushes nothing: every mutation writes through to disk.
func (s *JSONStore) Close() error { return nil }

// Dir returns the base directory, used by the migrator to enumerate documents.
func (s *JSONStore) Dir() string { return s.dir }

// collect returns quotes for one book (or all books in insertion order),
// each book's quotes sorted by page then original insert order.
func (s *JSONStore) collect(bookID string) []domain.Quote {
	var docs []*Document
	if bookID != "" {
		doc, ok := s.docs[bookID]
		if !ok {
			return nil
		}
		docs = []*Document{doc}
	} else {
		for _, doc := range s.docs {
			docs = append(docs, doc)
		}
		sort.Slice(docs, func(i, j int) bool { return docs[i].Seq < docs[j].Seq })
	}
	var quotes []domain.Quote
	for _, doc := range docs {
		booked := make([]domain.Quote, 0, len(doc.Quotes))
		for _, dq := range doc.Quotes {
			booked = append(booked, docQuoteToDomain(doc.ID, dq))
		}
		sort.SliceStable(booked, func(i, j int) bool {
			return booked[i].PageNumber < booked[j].PageNumber
		})
		quotes = append(quotes, booked...)
	}
	return quotes
}

func (s *JSONStore) uniqueFilename(title string) string {
	base := slugify(title)
	name := base + ".json"
	for i := 2; ; i++ {
		if _, err := os.Stat(filepath.Join(s.dir, name)); os.IsNotExist(err) {
			return name
		}
		name = fmt.Sprintf("%s-%d.json", base, i)
	}
}

func slugify(title string) string {
	slug := strings.ToLower(strings.TrimSpace(title))
	var b strings.Builder
	for _, r := range slug {
		switch {
		case r >= 'a' && r <= 'z' || r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ' || r == '-' || r == '_':
			b.WriteRune('-')
		}
	}
	out := strings.Trim(b.String(), "-")
	if out == "" {
		return "book"
	}
	return out
}

func docToBook(doc Document) domain.Book {
	return domain.Book{
		ID:          doc.ID,
		Title:       doc.Book,
		Author:      doc.Author,
		Topic:       doc.Topic,
		SourceFile:  doc.SourceFile,
		TotalQuotes: doc.TotalQuotes,
		ProcessedAt: doc.ProcessedAt,
		Metadata:    doc.Metadata,
	}
}

func docQuoteToDomain(bookID string, dq DocumentQuote) domain.Quote {
	style := domain.QuoteStyle(dq.Style)
	if style == "" {
		style = domain.StyleInsight
	}
	var quality float64
	if dq.QualityScore != nil {
		quality = *dq.QualityScore
	}
	return domain.Quote{
		ID:             dq.ID,
		BookID:         bookID,
		PageNumber:     dq.Page,
		OriginalText:   dq.Original,
		QuoteText:      dq.Quote,
		TranslatedText: dq.Translated,
		Summary:        dq.Summary,
		Category:       dq.Category,
		Style:          style,
		TargetAudience: dq.TargetAudience,
		IsEngaging:     dq.Engaging,
		QualityScore:   quality,
		Completeness:   dq.Completeness,
		Clarity:        dq.Clarity,
		PracticalValue: dq.PracticalValue,
		Length:         dq.Length,
		Published:      dq.Published,
		PublishedAt:    dq.PublishedAt,
		CreatedAt:      dq.CreatedAt,
		Metadata:       dq.Meta,
	}
}

func candidateToDocQuote(c domain.Candidate) DocumentQuote {
	quality := c.QualityScore
	return DocumentQuote{
		Page:           c.PageNumber,
		Original:       c.OriginalText,
		Quote:          c.QuoteText,
		Translated:     c.TranslatedText,
		Summary:        c.Summary,
		Category:       c.Category,
		Style:          string(c.Style),
		TargetAudience: c.TargetAudience,
		Engaging:       c.IsEngaging,
		QualityScore:   &quality,
		Completeness:   c.Completeness,
		Clarity:        c.Clarity,
		PracticalValue: c.PracticalValue,
		Length:         c.Length,
		Meta:           c.Metadata,
	}
}

func matchesFilter(q domain.Quote, f domain.QuoteFilter) bool {
	if f.Category != "" && q.Category != f.Category {
		return false
	}
	if f.MinQuality > 0 && q.QualityScore < f.MinQuality {
		return false
	}
	if f.OnlyEngaging && !q.IsEngaging {
		return false
	}
	if f.OnlyUnpublished && q.Published {
		return false
	}
	return true
}

func paginate(quotes []domain.Quote, limit, offset int) []domain.Quote {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(quotes) {
		return []domain.Quote{}
	}
	quotes = quotes[offset:]
	if limit > 0 && len(quotes) > limit {
		quotes = quotes[:limit]
	}
	return quotes
}

func searchScore(q domain.Quote, query string) float64 {
	query = strings.TrimSpace(strings.ToLower(query))
	if query == "" {
		return 0
	}
	haystack := strings.ToLower(q.QuoteText + " " + q.TranslatedText + " " + q.Summary)
	var score float64
	if strings.Contains(haystack, query) {
		score += 2
	}
	for _, tok := range strings.Fields(dedup.Normalize(query)) {
		if strings.Contains(haystack, tok) {
			score++
		}
	}
	return score
}
