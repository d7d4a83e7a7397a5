package progress

import (
	"context"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"
)

// RedisTracker stores per-book processing cursors in Redis so interrupted
// runs resume from the last finished page.
type RedisTracker struct {
	client *redis.Client
	prefix string
}

// NewRedisTracker connects to addr and verifies the connection.
func NewRedisTracker(ctx context.Context, addr, password string, db int) (*RedisTracker, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	return &RedisTracker{client: client, prefix: "quotemine:progress:"}, nil
}

// NewRedisTrackerFromClient wraps an existing client, mainly for tests.
func NewRedisTrackerFromClient(client *redis.Client) *RedisTracker {
	return &RedisTracker{client: client, prefix: "quotemine:progress:"}
}

func (t *RedisTracker) key(bookID string) string {
	return t.prefix + bookID
}

// LastPage returns the highest fully processed page for the book, or 0 when
// no cursor exists.
func (t *RedisTracker) LastPage(ctx context.Context, bookID string) (int, error) {
	val, err := t.client.Get(ctx, t.key(bookID)).Result()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read progress: %w", err)
	}
	page, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("corrupt progress value %q: %w", val, err)
	}
	return page, nil
}

// SetLastPage records that page finished processing.
func (t *RedisTracker) SetLastPage(ctx context.Context, bookID string, page int) error {
	if err := t.client.Set(ctx, t.key(bookID), strconv.Itoa(page), 0).Err(); err != nil {
		return fmt.Errorf("write progress: %w", err)
	}
	return nil
}

// Clear drops the book's cursor after a complete run.
func (t *RedisTracker) Clear(ctx context.Context, bookID string) error {
	if err := t.client.Del(ctx, t.key(bookID)).Err(); err != nil {
		return fmt.Errorf("clear progress: %w", err)
	}
	return nil
}

// Close releases the underlying connection.
func (t *RedisTracker) Close() error {
	return t.client.Close()
}
