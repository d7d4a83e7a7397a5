package store

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"
)

// Document is the per-book flat file: the book's fields plus its quote list.
// Field names stay compatible with the historical export format ("book",
// "quotes", and the short quote keys), so old files remain a valid import
// target for migration.
type Document struct {
	ID          string          `json:"id,omitempty"`
	Seq         int             `json:"seq,omitempty"`
	Book        string          `json:"book"`
	Author      string          `json:"author,omitempty"`
	Topic       string          `json:"topic,omitempty"`
	SourceFile  string          `json:"sourceFile,omitempty"`
	ProcessedAt time.Time       `json:"processedAt,omitempty"`
	TotalQuotes int             `json:"totalQuotes,omitempty"`
	Metadata    map[string]any  `json:"metadata,omitempty"`
	Quotes      []DocumentQuote `json:"quotes"`
}

// DocumentQuote is one quote inside a Document. Older files carry only the
// short keys (page, original, quote, translated, summary, engaging, meta);
// everything else is optional on read.
type DocumentQuote struct {
	ID             string         `json:"id,omitempty"`
	Page           int            `json:"page"`
	Original       string         `json:"original,omitempty"`
	Quote          string         `json:"quote"`
	Translated     string         `json:"translated,omitempty"`
	Summary        string         `json:"summary,omitempty"`
	Category       string         `json:"category,omitempty"`
	Style          string         `json:"style,omitempty"`
	TargetAudience string         `json:"targetAudience,omitempty"`
	Engaging       bool           `json:"engaging,omitempty"`
	QualityScore   *float64       `json:"qualityScore,omitempty"`
	Completeness   float64        `json:"completeness,omitempty"`
	Clarity        float64        `json:"clarity,omitempty"`
	PracticalValue float64        `json:"practicalValue,omitempty"`
	Length         int            `json:"length,omitempty"`
	Published      bool           `json:"published,omitempty"`
	PublishedAt    *time.Time     `json:"publishedAt,omitempty"`
	CreatedAt      time.Time      `json:"createdAt,omitempty"`
	Meta           map[string]any `json:"meta,omitempty"`
}

// ReadDocument parses a per-book document file.
func ReadDocument(path string) (Document, error) {
	var doc Document
	data, err := os.ReadFile(path)
	if err != nil {
		return doc, fmt.Errorf("read document: %w", err)
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return doc, fmt.Errorf("parse document %s: %w", path, err)
	}
	if strings.TrimSpace(doc.Book) == "" {
		return doc, fmt.Errorf("parse document %s: missing book title", path)
	}
	return doc, nil
}

// writeDocument persists a document atomically: write to a temp file in the
// same directory, then rename over the target.
func writeDocument(path string, doc Document) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode document: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write document: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("replace document: %w", err)
	}
	return nil
}
