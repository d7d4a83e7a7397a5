package pdfreader

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"

	"quotemine/pkg/domain"
)

// ReadPages extracts per-page text from a book file. PDFs keep their page
// structure; plain text files become a single page 1.
func ReadPages(path string) ([]domain.PageText, error) {
	if strings.EqualFold(filepath.Ext(path), ".pdf") {
		return readPDF(path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read source file: %w", err)
	}
	text := normalizeText(string(data))
	if text == "" {
		return nil, fmt.Errorf("no text in %s", path)
	}
	return []domain.PageText{{Number: 1, Text: text}}, nil
}

func readPDF(path string) ([]domain.PageText, error) {
	file, reader, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}
	defer file.Close()

	var pages []domain.PageText
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			// A broken page must not sink the whole book.
			continue
		}
		text = normalizeText(text)
		if text == "" {
			continue
		}
		pages = append(pages, domain.PageText{Number: i, Text: text})
	}
	if len(pages) == 0 {
		return nil, fmt.Errorf("no text extracted from %s", path)
	}
	return pages, nil
}

func normalizeText(text string) string {
	text = strings.ReplaceAll(text, "\x00", " ")
	text = strings.ToValidUTF8(text, "")
	text = strings.TrimSpace(text)
	if text == "" {
		return ""
	}
	return strings.Join(strings.Fields(text), " ")
}
