package publish

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"quotemine/pkg/domain"
)

func TestFormatPost(t *testing.T) {
	book := domain.Book{Title: "DotCom Secrets", Author: "Russell Brunson"}
	quote := domain.Quote{QuoteText: "A value ladder turns buyers into lifetime customers."}
	got := FormatPost(book, quote)
	if !strings.HasPrefix(got, quote.QuoteText) {
		t.Fatalf("post = %q", got)
	}
	if !strings.HasSuffix(got, "— Russell Brunson, DotCom Secrets") {
		t.Fatalf("attribution missing: %q", got)
	}
}

func TestFormatPostPrefersTranslation(t *testing.T) {
	book := domain.Book{Title: "DotCom Secrets"}
	quote := domain.Quote{QuoteText: "original", TranslatedText: "translated rendering"}
	got := FormatPost(book, quote)
	if !strings.HasPrefix(got, "translated rendering") {
		t.Fatalf("post = %q", got)
	}
	if !strings.HasSuffix(got, "— DotCom Secrets") {
		t.Fatalf("attribution = %q", got)
	}
}

func TestFormatPostTrimsToLimit(t *testing.T) {
	book := domain.Book{Title: "T", Author: "A"}
	quote := domain.Quote{QuoteText: strings.Repeat("funnel economics ", 60)}
	got := FormatPost(book, quote)
	if n := len([]rune(got)); n > MaxPostLength {
		t.Fatalf("post length = %d, want <= %d", n, MaxPostLength)
	}
	if !strings.Contains(got, "…") {
		t.Fatalf("trimmed post should carry an ellipsis: %q", got)
	}
}

func TestThreadsPublisherTwoStep(t *testing.T) {
	var paths []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse form: %v", err)
		}
		paths = append(paths, r.URL.Path)
		switch {
		case strings.HasSuffix(r.URL.Path, "/threads"):
			if r.Form.Get("media_type") != "TEXT" || r.Form.Get("text") == "" {
				t.Errorf("container form = %v", r.Form)
			}
			json.NewEncoder(w).Encode(map[string]string{"id": "container-1"})
		case strings.HasSuffix(r.URL.Path, "/threads_publish"):
			if r.Form.Get("creation_id") != "container-1" {
				t.Errorf("creation_id = %q", r.Form.Get("creation_id"))
			}
			json.NewEncoder(w).Encode(map[string]string{"id": "post-1"})
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))
	defer srv.Close()

	pub, err := NewThreadsPublisher("user-1", "token")
	if err != nil {
		t.Fatalf("new publisher: %v", err)
	}
	pub.baseURL = srv.URL

	postID, err := pub.Publish(context.Background(),
		domain.Book{Title: "DotCom Secrets"},
		domain.Quote{ID: "q1", QuoteText: "Marketing beats product."})
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	if postID != "post-1" {
		t.Fatalf("post id = %q", postID)
	}
	if len(paths) != 2 || paths[0] != "/user-1/threads" || paths[1] != "/user-1/threads_publish" {
		t.Fatalf("paths = %v", paths)
	}
}

func TestThreadsPublisherAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]any{"error": map[string]any{"message": "token expired"}})
	}))
	defer srv.Close()

	pub, _ := NewThreadsPublisher("user-1", "token")
	pub.baseURL = srv.URL
	_, err := pub.Publish(context.Background(), domain.Book{}, domain.Quote{QuoteText: "x"})
	if err == nil || !strings.Contains(err.Error(), "token expired") {
		t.Fatalf("err = %v, want api error", err)
	}
}

func TestNewThreadsPublisherValidation(t *testing.T) {
	if _, err := NewThreadsPublisher("", "token"); err == nil {
		t.Fatal("expected error for empty user id")
	}
	if _, err := NewThreadsPublisher("user", "  "); err == nil {
		t.Fatal("expected error for empty token")
	}
}
