package migrate

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"quotemine/pkg/dedup"
	"quotemine/pkg/domain"
	"quotemine/pkg/store"
)

// Report sums up a migration run.
type Report struct {
	Files      int
	Failed     int
	Books      int
	Inserted   int
	Duplicates int
	Replaced   int
	Published  int
}

// Migrator copies per-book document files into a target store, keeping the
// target's dedup and publication semantics intact.
type Migrator struct {
	target store.Store
	log    *slog.Logger

	// Workers caps concurrent file migrations during MigrateAll.
	Workers int
}

// NewMigrator builds a migrator writing to target.
func NewMigrator(target store.Store, log *slog.Logger) *Migrator {
	if log == nil {
		log = slog.Default()
	}
	return &Migrator{target: target, log: log, Workers: 4}
}

// MigrateAll migrates every *.json document under dir. A failing file is
// logged and counted, never fatal for the run.
func (m *Migrator) MigrateAll(ctx context.Context, dir string) (Report, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return Report{}, fmt.Errorf("read source dir: %w", err)
	}

	var (
		mu    sync.Mutex
		total Report
	)
	g, ctx := errgroup.WithContext(ctx)
	workers := m.Workers
	if workers <= 0 {
		workers = 4
	}
	g.SetLimit(workers)

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			rep, err := m.MigrateFile(ctx, path)
			mu.Lock()
			defer mu.Unlock()
			total.Files++
			if err != nil {
				total.Failed++
				m.log.Warn("file migration failed", "file", path, "err", err)
				return nil
			}
			total.Books += rep.Books
			total.Inserted += rep.Inserted
			total.Duplicates += rep.Duplicates
			total.Replaced += rep.Replaced
			total.Published += rep.Published
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return total, err
	}
	m.log.Info("migration finished",
		"files", total.Files,
		"failed", total.Failed,
		"books", total.Books,
		"inserted", total.Inserted,
		"duplicates", total.Duplicates,
		"replaced", total.Replaced,
		"published", total.Published,
	)
	return total, nil
}

// MigrateFile migrates one document file. Re-running it against the same
// target is safe: the book registration is idempotent by title and the
// dedup engine absorbs repeated quotes.
func (m *Migrator) MigrateFile(ctx context.Context, path string) (Report, error) {
	var rep Report
	doc, err := store.ReadDocument(path)
	if err != nil {
		return rep, err
	}
	if err := ctx.Err(); err != nil {
		return rep, err
	}

	bookID, err := m.target.AddBook(doc.Book, doc.Author, doc.Topic, doc.SourceFile, doc.Metadata)
	if err != nil {
		return rep, fmt.Errorf("register book %q: %w", doc.Book, err)
	}
	rep.Books = 1

	for _, dq := range doc.Quotes {
		cand := documentQuoteToCandidate(dq)
		id, action, err := m.target.AddQuote(bookID, cand)
		if err != nil {
			return rep, fmt.Errorf("migrate quote (page %d): %w", dq.Page, err)
		}
		switch action {
		case dedup.ActionSkip:
			rep.Duplicates++
		case dedup.ActionReplace:
			rep.Replaced++
		default:
			rep.Inserted++
		}
		if dq.Published {
			at := time.Now().UTC()
			if dq.PublishedAt != nil {
				at = *dq.PublishedAt
			}
			if err := m.target.MarkPublishedAt(id, at); err != nil {
				return rep, fmt.Errorf("carry published flag: %w", err)
			}
			rep.Published++
		}
	}

	if _, err := m.target.UpdateBookStats(bookID); err != nil {
		return rep, fmt.Errorf("update book stats: %w", err)
	}
	m.log.Info("document migrated", "file", path, "book", doc.Book,
		"inserted", rep.Inserted, "duplicates", rep.Duplicates)
	return rep, nil
}

// documentQuoteToCandidate maps a stored quote back to candidate form.
// Legacy files carry no quality field at all; only then does the quote get
// a neutral score so the dedup engine still has something to compare. A
// stored score of 0 is a real value and round-trips unchanged.
func documentQuoteToCandidate(dq store.DocumentQuote) domain.Candidate {
	style := domain.QuoteStyle(dq.Style)
	if style == "" {
		style = domain.StyleInsight
	}
	category := dq.Category
	if category == "" {
		category = "general"
	}
	var quality float64
	switch {
	case dq.QualityScore != nil:
		quality = *dq.QualityScore
	default:
		if conf, ok := dq.Meta["confidence"].(float64); ok {
			quality = conf
		} else {
			quality = 0.5
		}
	}
	return domain.Candidate{
		PageNumber:     dq.Page,
		OriginalText:   dq.Original,
		QuoteText:      dq.Quote,
		TranslatedText: dq.Translated,
		Summary:        dq.Summary,
		Category:       category,
		Style:          style,
		TargetAudience: dq.TargetAudience,
		IsEngaging:     dq.Engaging,
		QualityScore:   quality,
		Completeness:   dq.Completeness,
		Clarity:        dq.Clarity,
		PracticalValue: dq.PracticalValue,
		Length:         dq.Length,
		Metadata:       dq.Meta,
	}
}
