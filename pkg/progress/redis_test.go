package progress

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestTracker(t *testing.T) *RedisTracker {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisTrackerFromClient(client)
}

func TestLastPageDefaultsToZero(t *testing.T) {
	tr := newTestTracker(t)
	page, err := tr.LastPage(context.Background(), "book-1")
	if err != nil {
		t.Fatalf("last page: %v", err)
	}
	if page != 0 {
		t.Fatalf("page = %d, want 0 for unknown book", page)
	}
}

func TestSetAndGetLastPage(t *testing.T) {
	tr := newTestTracker(t)
	ctx := context.Background()
	if err := tr.SetLastPage(ctx, "book-1", 17); err != nil {
		t.Fatalf("set: %v", err)
	}
	page, err := tr.LastPage(ctx, "book-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if page != 17 {
		t.Fatalf("page = %d, want 17", page)
	}

	// Cursors are independent per book.
	other, err := tr.LastPage(ctx, "book-2")
	if err != nil || other != 0 {
		t.Fatalf("other book page = %d err = %v, want 0", other, err)
	}
}

func TestClear(t *testing.T) {
	tr := newTestTracker(t)
	ctx := context.Background()
	if err := tr.SetLastPage(ctx, "book-1", 4); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := tr.Clear(ctx, "book-1"); err != nil {
		t.Fatalf("clear: %v", err)
	}
	page, err := tr.LastPage(ctx, "book-1")
	if err != nil || page != 0 {
		t.Fatalf("page after clear = %d err = %v, want 0", page, err)
	}
	// Clearing a missing cursor is not an error.
	if err := tr.Clear(ctx, "book-1"); err != nil {
		t.Fatalf("double clear: %v", err)
	}
}

func TestCorruptValue(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	tr := NewRedisTrackerFromClient(client)

	mr.Set("quotemine:progress:book-1", "not-a-number")
	if _, err := tr.LastPage(context.Background(), "book-1"); err == nil {
		t.Fatal("expected error for corrupt cursor value")
	}
}
