package store

import (
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"quotemine/internal/util"
	"quotemine/pkg/dedup"
	"quotemine/pkg/domain"
)

const searchVector = "to_tsvector('simple', quote_text || ' ' || translated_text || ' ' || summary)"

// GormStore implements Store using GORM + Postgres.
type GormStore struct {
	db     *gorm.DB
	engine *dedup.Engine
}

// NewGormStore opens the DB, runs auto-migrations, and ensures the
// full-text search index exists.
func NewGormStore(dsn string, engine *dedup.Engine) (*GormStore, error) {
	if engine == nil {
		engine = dedup.NewEngine()
	}
	gormLog := gormlogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormlogger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: gormLog})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := db.AutoMigrate(&BookModel{}, &QuoteModel{}); err != nil {
		return nil, fmt.Errorf("auto migrate: %w", err)
	}
	if err := db.Exec(fmt.Sprintf(
		"CREATE INDEX IF NOT EXISTS idx_quotes_search ON quote_models USING GIN (%s)", searchVector,
	)).Error; err != nil {
		return nil, fmt.Errorf("create search index: %w", err)
	}
	return &GormStore{db: db, engine: engine}, nil
}

// AddBook registers a book, idempotent by title.
func (s *GormStore) AddBook(title, author, topic, sourceFile string, metadata map[string]any) (string, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return "", fmt.Errorf("gorm store: book title is required")
	}
	var existing BookModel
	err := s.db.Where("title = ?", title).First(&existing).Error
	if err == nil {
		return existing.ID, nil
	}
	if err != gorm.ErrRecordNotFound {
		return "", fmt.Errorf("lookup book: %w", err)
	}
	model := BookModel{
		ID:          util.NewID(),
		Title:       title,
		Author:      author,
		Topic:       topic,
		SourceFile:  sourceFile,
		TotalQuotes: 0,
		ProcessedAt: time.Now().UTC(),
		CreatedAt:   time.Now().UTC(),
		Metadata:    metadata,
	}
	if err := s.db.Create(&model).Error; err != nil {
		return "", fmt.Errorf("create book: %w", err)
	}
	return model.ID, nil
}

// AddQuote reconciles through the dedup engine inside one transaction, so a
// replace never leaves both the old and new rows behind.
func (s *GormStore) AddQuote(bookID string, c domain.Candidate) (string, dedup.Action, error) {
	var resultID string
	action := dedup.ActionInsert
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var book BookModel
		if err := tx.First(&book, "id = ?", bookID).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				return fmt.Errorf("add quote: %w", ErrNotFound)
			}
			return err
		}
		var models []QuoteModel
		if err := tx.Where("book_id = ?", bookID).
			Order("page_number ASC").Order("created_at ASC").
			Find(&models).Error; err != nil {
			return err
		}
		existing := make([]domain.Quote, 0, len(models))
		for _, m := range models {
			existing = append(existing, quoteFromModel(m))
		}

		decision := s.engine.Decide(c, existing)
		action = decision.Action
		switch decision.Action {
		case dedup.ActionSkip:
			resultID = decision.ExistingID
			return nil
		case dedup.ActionReplace:
			updates := candidateUpdates(c)
			if err := tx.Model(&QuoteModel{}).Where("id = ?", decision.ExistingID).
				Updates(updates).Error; err != nil {
				return err
			}
			resultID = decision.ExistingID
			return nil
		default:
			model := candidateToModel(bookID, c)
			if err := tx.Create(&model).Error; err != nil {
				return err
			}
			resultID = model.ID
			return nil
		}
	})
	if err != nil {
		return "", action, err
	}
	return resultID, action, nil
}

func (s *GormStore) GetBook(id string) (domain.Book, bool, error) {
	var model BookModel
	if err := s.db.First(&model, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.Book{}, false, nil
		}
		return domain.Book{}, false, err
	}
	return bookFromModel(model), true, nil
}

func (s *GormStore) GetBookByTitle(title string) (domain.Book, bool, error) {
	var model BookModel
	if err := s.db.Where("title = ?", strings.TrimSpace(title)).First(&model).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.Book{}, false, nil
		}
		return domain.Book{}, false, err
	}
	return bookFromModel(model), true, nil
}

// ListBooks returns books in insertion order.
func (s *GormStore) ListBooks() ([]domain.Book, error) {
	var models []BookModel
	if err := s.db.Order("created_at ASC").Find(&models).Error; err != nil {
		return nil, err
	}
	books := make([]domain.Book, 0, len(models))
	for _, m := range models {
		books = append(books, bookFromModel(m))
	}
	return books, nil
}

// GetQuotes filters quotes, ordered by page then insertion order. The ID
// tie-break keeps pagination stable when timestamps collide.
func (s *GormStore) GetQuotes(f domain.QuoteFilter) ([]domain.Quote, error) {
	tx := s.db.Model(&QuoteModel{})
	if f.BookID != "" {
		tx = tx.Where("book_id = ?", f.BookID)
	}
	if f.Category != "" {
		tx = tx.Where("category = ?", f.Category)
	}
	if f.MinQuality > 0 {
		tx = tx.Where("quality_score >= ?", f.MinQuality)
	}
	if f.OnlyEngaging {
		tx = tx.Where("is_engaging = true")
	}
	if f.OnlyUnpublished {
		tx = tx.Where("published = false")
	}
	tx = tx.Order("page_number ASC").Order("created_at ASC").Order("id ASC")
	if f.Limit > 0 {
		tx = tx.Limit(f.Limit)
	}
	if f.Offset > 0 {
		tx = tx.Offset(f.Offset)
	}
	var models []QuoteModel
	if err := tx.Find(&models).Error; err != nil {
		return nil, err
	}
	quotes := make([]domain.Quote, 0, len(models))
	for _, m := range models {
		quotes = append(quotes, quoteFromModel(m))
	}
	return quotes, nil
}

// SearchQuotes restricts to substring matches and ranks by full-text
// relevance, then quality. The substring filter guarantees a query matching
// exactly one quote returns that quote first.
func (s *GormStore) SearchQuotes(query string, limit int) ([]domain.Quote, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return []domain.Quote{}, nil
	}
	if limit <= 0 {
		limit = 50
	}
	pattern := "%" + strings.ToLower(query) + "%"
	var models []QuoteModel
	if err := s.db.Model(&QuoteModel{}).
		Where("LOWER(quote_text) LIKE ? OR LOWER(translated_text) LIKE ? OR LOWER(summary) LIKE ?",
			pattern, pattern, pattern).
		Order(clause.Expr{
			SQL:  fmt.Sprintf("ts_rank(%s, plainto_tsquery('simple', ?)) DESC", searchVector),
			Vars: []any{query},
		}).
		Order("quality_score DESC").
		Limit(limit).
		Find(&models).Error; err != nil {
		return nil, err
	}
	quotes := make([]domain.Quote, 0, len(models))
	for _, m := range models {
		quotes = append(quotes, quoteFromModel(m))
	}
	return quotes, nil
}

// MarkPublished is idempotent; published_at is written exactly once.
func (s *GormStore) MarkPublished(quoteID string) error {
	return s.MarkPublishedAt(quoteID, time.Now().UTC())
}

// MarkPublishedAt records publication with an explicit timestamp, used by
// migration to carry the source's published_at.
func (s *GormStore) MarkPublishedAt(quoteID string, at time.Time) error {
	res := s.db.Model(&QuoteModel{}).
		Where("id = ? AND published = false", quoteID).
		Updates(map[string]any{
			"published":    true,
			"published_at": at.UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		var count int64
		if err := s.db.Model(&QuoteModel{}).Where("id = ?", quoteID).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return fmt.Errorf("mark published: %w", ErrNotFound)
		}
	}
	return nil
}

// UpdateBookStats recomputes total_quotes from the actual row count.
func (s *GormStore) UpdateBookStats(bookID string) (int, error) {
	var count int64
	if err := s.db.Model(&QuoteModel{}).Where("book_id = ?", bookID).Count(&count).Error; err != nil {
		return 0, err
	}
	res := s.db.Model(&BookModel{}).Where("id = ?", bookID).Update("total_quotes", count)
	if res.Error != nil {
		return 0, res.Error
	}
	if res.RowsAffected == 0 {
		return 0, fmt.Errorf("update stats: %w", ErrNotFound)
	}
	return int(count), nil
}

func (s *GormStore) Stats() (domain.Stats, error) {
	stats := domain.Stats{ByCategory: make(map[string]int)}

	var books int64
	if err := s.db.Model(&BookModel{}).Count(&books).Error; err != nil {
		return stats, err
	}
	stats.TotalBooks = int(books)

	var quotes int64
	if err := s.db.Model(&QuoteModel{}).Count(&quotes).Error; err != nil {
		return stats, err
	}
	stats.TotalQuotes = int(quotes)

	var published int64
	if err := s.db.Model(&QuoteModel{}).Where("published = true").Count(&published).Error; err != nil {
		return stats, err
	}
	stats.PublishedQuotes = int(published)

	if quotes > 0 {
		var avg *float64
		if err := s.db.Model(&QuoteModel{}).Select("AVG(quality_score)").Scan(&avg).Error; err != nil {
			return stats, err
		}
		if avg != nil {
			stats.AvgQuality = *avg
		}
	}

	type categoryCount struct {
		Category string
		Count    int
	}
	var rows []categoryCount
	if err := s.db.Model(&QuoteModel{}).
		Select("COALESCE(NULLIF(category, ''), 'general') AS category, COUNT(*) AS count").
		Group("COALESCE(NULLIF(category, ''), 'general')").
		Scan(&rows).Error; err != nil {
		return stats, err
	}
	for _, row := range rows {
		stats.ByCategory[row.Category] = row.Count
	}
	return stats, nil
}

// Clear deletes all quotes and books. Destructive; callers must confirm at
// the boundary before invoking it.
func (s *GormStore) Clear() error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("1 = 1").Delete(&QuoteModel{}).Error; err != nil {
			return err
		}
		return tx.Where("1 = 1").Delete(&BookModel{}).Error
	})
}

// Close releases the underlying connection pool.
func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func candidateToModel(bookID string, c domain.Candidate) QuoteModel {
	return QuoteModel{
		ID:             util.NewID(),
		BookID:         bookID,
		PageNumber:     c.PageNumber,
		OriginalText:   c.OriginalText,
		QuoteText:      c.QuoteText,
		TranslatedText: c.TranslatedText,
		Summary:        c.Summary,
		Category:       c.Category,
		Style:          string(c.Style),
		TargetAudience: c.TargetAudience,
		IsEngaging:     c.IsEngaging,
		QualityScore:   c.QualityScore,
		Completeness:   c.Completeness,
		Clarity:        c.Clarity,
		PracticalValue: c.PracticalValue,
		Length:         c.Length,
		CreatedAt:      time.Now().UTC(),
		Metadata:       c.Metadata,
	}
}

// candidateUpdates lists the columns a replace overwrites. ID, created_at,
// published, and published_at stay as stored.
func candidateUpdates(c domain.Candidate) map[string]any {
	return map[string]any{
		"page_number":     c.PageNumber,
		"original_text":   c.OriginalText,
		"quote_text":      c.QuoteText,
		"translated_text": c.TranslatedText,
		"summary":         c.Summary,
		"category":        c.Category,
		"style":           string(c.Style),
		"target_audience": c.TargetAudience,
		"is_engaging":     c.IsEngaging,
		"quality_score":   c.QualityScore,
		"completeness":    c.Completeness,
		"clarity":         c.Clarity,
		"practical_value": c.PracticalValue,
		"length":          c.Length,
		"metadata":        toJSONMap(c.Metadata),
	}
}

func toJSONMap(m map[string]any) datatypes.JSONMap {
	if m == nil {
		return datatypes.JSONMap{}
	}
	return datatypes.JSONMap(m)
}

func bookFromModel(m BookModel) domain.Book {
	return domain.Book{
		ID:          m.ID,
		Title:       m.Title,
		Author:      m.Author,
		Topic:       m.Topic,
		SourceFile:  m.SourceFile,
		TotalQuotes: m.TotalQuotes,
		ProcessedAt: m.ProcessedAt,
		Metadata:    m.Metadata,
	}
}

func quoteFromModel(m QuoteModel) domain.Quote {
	style := domain.QuoteStyle(m.Style)
	if style == "" {
		style = domain.StyleInsight
	}
	return domain.Quote{
		ID:             m.ID,
		BookID:         m.BookID,
		PageNumber:     m.PageNumber,
		OriginalText:   m.OriginalText,
		QuoteText:      m.QuoteText,
		TranslatedText: m.TranslatedText,
		Summary:        m.Summary,
		Category:       m.Category,
		Style:          style,
		TargetAudience: m.TargetAudience,
		IsEngaging:     m.IsEngaging,
		QualityScore:   m.QualityScore,
		Completeness:   m.Completeness,
		Clarity:        m.Clarity,
		PracticalValue: m.PracticalValue,
		Length:         m.Length,
		Published:      m.Published,
		PublishedAt:    m.PublishedAt,
		CreatedAt:      m.CreatedAt,
		Metadata:       m.Metadata,
	}
}
