package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"quotemine/internal/util"
	"quotemine/pkg/domain"
	"quotemine/pkg/publish"
	"quotemine/pkg/store"
)

// Config wires required dependencies for the HTTP server.
type Config struct {
	Store     store.Store
	Publisher publish.Publisher
}

// Server exposes read and publish endpoints over the quote store.
type Server struct {
	store     store.Store
	publisher publish.Publisher
	mux       *http.ServeMux
}

// New constructs the server with routes configured.
func New(cfg Config) *Server {
	s := &Server{
		store:     cfg.Store,
		publisher: cfg.Publisher,
		mux:       http.NewServeMux(),
	}
	s.routes()
	return s
}

// Router returns the configured handler.
func (s *Server) Router() http.Handler {
	return util.WithRequestID(util.WithRequestLog(util.WithSecurityHeaders(s.mux)))
}

func (s *Server) routes() {
	s.mux.HandleFunc("/healthz", s.handleHealth)

	s.mux.HandleFunc("/books", s.handleBooks)
	s.mux.HandleFunc("/books/", s.handleBookByID)
	s.mux.HandleFunc("/quotes", s.handleQuotes)
	s.mux.HandleFunc("/quotes/search", s.handleSearch)
	s.mux.HandleFunc("/quotes/", s.handleQuoteAction)
	s.mux.HandleFunc("/stats", s.handleStats)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleBooks(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	books, err := s.store.ListBooks()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"items": books,
		"count": len(books),
	})
}

func (s *Server) handleBookByID(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/books/")
	if id == "" || strings.Contains(id, "/") {
		notFound(w, "book not found")
		return
	}
	book, ok, err := s.store.GetBook(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if !ok {
		notFound(w, "book not found")
		return
	}
	writeJSON(w, http.StatusOK, book)
}

func (s *Server) handleQuotes(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	filter, err := parseQuoteFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	quotes, err := s.store.GetQuotes(filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"items":  quotes,
		"count":  len(quotes),
		"offset": filter.Offset,
	})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if query == "" {
		writeError(w, http.StatusBadRequest, "query parameter q is required")
		return
	}
	limit := parseIntDefault(r.URL.Query().Get("limit"), 20)
	quotes, err := s.store.SearchQuotes(query, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"items": quotes,
		"count": len(quotes),
		"query": query,
	})
}

// handleQuoteAction routes /quotes/{id}/publish.
func (s *Server) handleQuoteAction(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/quotes/")
	parts := strings.Split(rest, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] != "publish" {
		notFound(w, "not found")
		return
	}
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	s.handlePublish(w, r, parts[0])
}

func (s *Server) handlePublish(w http.ResponseWriter, r *http.Request, quoteID string) {
	quote, book, err := s.findQuote(quoteID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			notFound(w, "quote not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	var postID string
	if s.publisher != nil && !quote.Published {
		postID, err = s.publisher.Publish(r.Context(), book, quote)
		if err != nil {
			writeError(w, http.StatusBadGateway, "publish failed: "+err.Error())
			return
		}
	}
	if err := s.store.MarkPublished(quoteID); err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"id":        quoteID,
		"published": true,
		"postId":    postID,
	})
}

// findQuote loads the quote and its book. The store has no point lookup for
// quotes, so this filters per book; acceptable for a publish-rate endpoint.
func (s *Server) findQuote(quoteID string) (domain.Quote, domain.Book, error) {
	books, err := s.store.ListBooks()
	if err != nil {
		return domain.Quote{}, domain.Book{}, err
	}
	for _, book := range books {
		quotes, err := s.store.GetQuotes(domain.QuoteFilter{BookID: book.ID})
		if err != nil {
			return domain.Quote{}, domain.Book{}, err
		}
		for _, q := range quotes {
			if q.ID == quoteID {
				return q, book, nil
			}
		}
	}
	return domain.Quote{}, domain.Book{}, store.ErrNotFound
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	stats, err := s.store.Stats()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func parseQuoteFilter(r *http.Request) (domain.QuoteFilter, error) {
	q := r.URL.Query()
	filter := domain.QuoteFilter{
		BookID:          strings.TrimSpace(q.Get("book")),
		Category:        strings.TrimSpace(q.Get("category")),
		OnlyEngaging:    q.Get("engaging") == "true",
		OnlyUnpublished: q.Get("unpublished") == "true",
		Limit:           parseIntDefault(q.Get("limit"), 50),
		Offset:          parseIntDefault(q.Get("offset"), 0),
	}
	if v := q.Get("minQuality"); v != "" {
		min, err := strconv.ParseFloat(v, 64)
		if err != nil || min < 0 || min > 1 {
			return filter, errors.New("minQuality must be a number between 0 and 1")
		}
		filter.MinQuality = min
	}
	return filter, nil
}

func parseIntDefault(v string, def int) int {
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return def
	}
	return n
}

func methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

func notFound(w http.ResponseWriter, msg string) {
	writeError(w, http.StatusNotFound, msg)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

type errorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"requestId,omitempty"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{
		Error:     msg,
		RequestID: strings.TrimSpace(w.Header().Get("X-Request-Id")),
	})
}
