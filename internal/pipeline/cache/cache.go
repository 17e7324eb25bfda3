package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	errx "github.com/proplens/server/internal/core/error"
	logx "github.com/proplens/server/pkg/logger"
)

// Namespaces used by the pipeline stages.
const (
	NSSimilarity = "similarity"
	NSRewrite    = "rewrite"
	NSSchema     = "schema"
)

// Cache is a content-addressed, fail-open cache over Redis. Keys are derived
// from a stage namespace plus the normalized input, tagged with the schema
// version so an operator bump invalidates everything at once. A nil or
// unreachable client degrades every Get to a miss and every Set to a no-op;
// cache trouble is never surfaced to the pipeline.
type Cache struct {
	rdb     redis.Cmdable
	version string
}

func New(rdb redis.Cmdable, schemaVersion string) *Cache {
	return &Cache{rdb: rdb, version: schemaVersion}
}

// Normalize lower-cases the input and collapses runs of whitespace so
// trivially different phrasings of the same question share a key.
func Normalize(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// Key derives the storage key for a namespace and raw input.
func (c *Cache) Key(namespace, input string) string {
	h := sha256.Sum256([]byte(c.version + "\n" + Normalize(input)))
	return fmt.Sprintf("cache:%s:%s", namespace, hex.EncodeToString(h[:]))
}

// Get returns the cached value and whether it was present.
func (c *Cache) Get(ctx context.Context, namespace, input string) (string, bool) {
	if c == nil || c.rdb == nil {
		return "", false
	}

	key := c.Key(namespace, input)
	val, err := c.rdb.Get(ctx, key).Result()
	if err != nil {
		if wrapped := errx.WrapRedis(err); !errors.Is(wrapped, errx.ErrCacheMiss) {
			logx.Warn().Err(err).Str("key", key).Msg("cache get failed, treating as miss")
		}
		return "", false
	}
	return val, true
}

// Set stores a value with the given TTL. Failures are logged and swallowed.
func (c *Cache) Set(ctx context.Context, namespace, input, value string, ttl time.Duration) {
	if c == nil || c.rdb == nil {
		return
	}

	key := c.Key(namespace, input)
	if err := c.rdb.Set(ctx, key, value, ttl).Err(); err != nil {
		logx.Warn().Err(err).Str("key", key).Msg("cache set failed, skipping")
	}
}

// GetJSON unmarshals a cached JSON value into dest, reporting presence.
func (c *Cache) GetJSON(ctx context.Context, namespace, input string, dest any) bool {
	val, ok := c.Get(ctx, namespace, input)
	if !ok {
		return false
	}
	if err := json.Unmarshal([]byte(val), dest); err != nil {
		logx.Warn().Err(err).Str("namespace", namespace).Msg("cached value is not valid JSON, treating as miss")
		return false
	}
	return true
}

// SetJSON marshals data and stores it with the given TTL.
func (c *Cache) SetJSON(ctx context.Context, namespace, input string, data any, ttl time.Duration) {
	b, err := json.Marshal(data)
	if err != nil {
		logx.Warn().Err(err).Str("namespace", namespace).Msg("failed to marshal cache value, skipping")
		return
	}
	c.Set(ctx, namespace, input, string(b), ttl)
}
