package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Keys used across the query core and projector (§6). Centralized here
// so the two writers (Query on miss, Projector on invalidation) and the
// one reader (Query) can never drift out of sync on key shape.
func UserTicketsPageKey(userID string, page, limit int) string {
	return fmt.Sprintf("user:%s:tickets:page:%d:limit:%d", userID, page, limit)
}

func UserTicketsPrefix(userID string) string {
	return fmt.Sprintf("user:%s:tickets:*", userID)
}

func TicketKey(bookingID string) string {
	return fmt.Sprintf("ticket:%s", bookingID)
}

func ScheduleAvailabilityKey(scheduleID string) string {
	return fmt.Sprintf("schedule:%s:availability", scheduleID)
}

// Cache wraps a redis client (possibly nil) with JSON get/set and
// delete/delete-by-prefix helpers. Every method tolerates a nil client or
// a redis error by behaving as a cache miss / no-op — per spec §5, the
// cache is best-effort and every caller falls back to the read store.
type Cache struct {
	rdb *redis.Client
}

// New wraps an existing client (which may be nil when redis is down at
// startup; NewClient already returns nil in that case).
func New(rdb *redis.Client) *Cache { return &Cache{rdb: rdb} }

// Get unmarshals the cached value for key into dest. ok is false on miss,
// error, or a nil client.
func (c *Cache) Get(ctx context.Context, key string, dest any) (ok bool) {
	if c.rdb == nil {
		return false
	}
	bs, err := c.rdb.Get(ctx, key).Bytes()
	if err != nil {
		return false
	}
	if err := json.Unmarshal(bs, dest); err != nil {
		return false
	}
	return true
}

// Set marshals value and stores it with the given TTL. Errors are
// swallowed — a failed cache write just means the next read is a miss.
func (c *Cache) Set(ctx context.Context, key string, value any, ttl time.Duration) {
	if c.rdb == nil {
		return
	}
	bs, err := json.Marshal(value)
	if err != nil {
		return
	}
	_ = c.rdb.Set(ctx, key, bs, ttl).Err()
}

// Del deletes a single key, swallowing errors.
func (c *Cache) Del(ctx context.Context, key string) {
	if c.rdb == nil {
		return
	}
	_ = c.rdb.Del(ctx, key).Err()
}

// DelPrefix deletes every key matching a glob pattern (used for
// user:{userId}:tickets:* invalidation, §4.3 step 4). Uses SCAN rather
// than KEYS to avoid blocking the redis event loop on a large keyspace.
func (c *Cache) DelPrefix(ctx context.Context, pattern string) {
	if c.rdb == nil {
		return
	}
	var cursor uint64
	for {
		keys, next, err := c.rdb.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return
		}
		if len(keys) > 0 {
			_ = c.rdb.Del(ctx, keys...).Err()
		}
		cursor = next
		if cursor == 0 {
			return
		}
	}
}

// Enabled reports whether a live redis connection backs this cache.
func (c *Cache) Enabled() bool { return c.rdb != nil }
