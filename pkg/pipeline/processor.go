package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"quotemine/pkg/dedup"
	"quotemine/pkg/domain"
	"quotemine/pkg/extract"
	"quotemine/pkg/store"
)

// ProgressTracker remembers the last fully processed page per book so an
// interrupted run can resume without re-extracting pages. Dedup keeps a
// full reprocess safe anyway; the tracker just makes restarts cheap.
type ProgressTracker interface {
	LastPage(ctx context.Context, bookID string) (int, error)
	SetLastPage(ctx context.Context, bookID string, page int) error
	Clear(ctx context.Context, bookID string) error
}

// BookInput describes the book a processing run belongs to.
type BookInput struct {
	Title      string
	Author     string
	Topic      string
	SourceFile string
	Metadata   map[string]any
}

// Processor drives page text through extraction, normalization, scoring,
// and dedup-gated storage for one book at a time.
type Processor struct {
	store     store.Store
	extractor extract.Extractor
	progress  ProgressTracker
	log       *slog.Logger
}

// NewProcessor wires the pipeline. progress may be nil.
func NewProcessor(st store.Store, ex extract.Extractor, progress ProgressTracker, log *slog.Logger) *Processor {
	if log == nil {
		log = slog.Default()
	}
	return &Processor{store: st, extractor: ex, progress: progress, log: log}
}

// ProcessBook runs the pipeline over the given pages in ascending page
// order. Per-page extraction failures and discarded candidates are counted
// in the report, not surfaced as errors; only store unavailability aborts
// the run.
func (p *Processor) ProcessBook(ctx context.Context, input BookInput, pages []domain.PageText) (domain.ProcessReport, error) {
	report := domain.ProcessReport{}

	bookID, err := p.store.AddBook(input.Title, input.Author, input.Topic, input.SourceFile, input.Metadata)
	if err != nil {
		return report, fmt.Errorf("register book: %w", err)
	}
	report.BookID = bookID
	book, _, err := p.store.GetBook(bookID)
	if err != nil {
		return report, fmt.Errorf("load book: %w", err)
	}

	sorted := make([]domain.PageText, len(pages))
	copy(sorted, pages)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Number < sorted[j].Number })

	resumeAfter := 0
	if p.progress != nil {
		if last, err := p.progress.LastPage(ctx, bookID); err == nil {
			resumeAfter = last
		}
	}

	for _, page := range sorted {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		if page.Number <= resumeAfter {
			continue
		}
		report.Pages++

		raws, err := p.extractor.Extract(ctx, book, page)
		if err != nil {
			report.Errors++
			p.log.Warn("extraction failed, skipping page",
				"book", input.Title, "page", page.Number, "err", err)
			continue
		}

		for _, raw := range raws {
			report.Candidates++
			cand, ok := Normalize(raw, page)
			if !ok {
				report.Skipped++
				p.log.Debug("candidate discarded", "book", input.Title, "page", page.Number)
				continue
			}
			Score(&cand)

			_, action, err := p.store.AddQuote(bookID, cand)
			if err != nil {
				return report, fmt.Errorf("store quote (page %d): %w", page.Number, err)
			}
			switch action {
			case dedup.ActionSkip:
				report.Duplicates++
			case dedup.ActionReplace:
				report.Replaced++
			default:
				report.Inserted++
			}
		}

		if p.progress != nil {
			if err := p.progress.SetLastPage(ctx, bookID, page.Number); err != nil {
				p.log.Warn("progress update failed", "book", input.Title, "err", err)
			}
		}
	}

	if _, err := p.store.UpdateBookStats(bookID); err != nil {
		return report, fmt.Errorf("update book stats: %w", err)
	}
	if p.progress != nil {
		if err := p.progress.Clear(ctx, bookID); err != nil {
			p.log.Warn("progress clear failed", "book", input.Title, "err", err)
		}
	}

	p.log.Info("book processed",
		"book", input.Title,
		"pages", report.Pages,
		"candidates", report.Candidates,
		"inserted", report.Inserted,
		"duplicates", report.Duplicates,
		"replaced", report.Replaced,
		"skipped", report.Skipped,
		"errors", report.Errors,
	)
	return report, nil
}
