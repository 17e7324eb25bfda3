package errx

import (
	"errors"

	"github.com/redis/go-redis/v9"
)

const (
	// CacheErrorMessage describes Redis related cache failures. They are
	// never surfaced to callers; the cache layer logs and degrades.
	CacheErrorMessage = "cache store operation failed"
)

// ErrCacheMiss marks an absent cache entry.
var ErrCacheMiss = errors.New("cache miss")

// WrapRedis maps Redis errors to the unified PipelineError type.
// redis.Nil becomes ErrCacheMiss so callers can branch on absence.
func WrapRedis(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, redis.Nil) {
		return ErrCacheMiss
	}

	return New(KindCache, StageCache, CacheErrorMessage, err)
}
