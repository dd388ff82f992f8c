package format

import (
	"crypto/sha256"

	"github.com/coocood/freecache"
)

// DefaultCacheBytes is the cache size used when none is configured.
const DefaultCacheBytes = 4 * 1024 * 1024

// Cached memoizes a Formatter by input text. Only successful results are
// cached; a failing input is re-parsed every time so its error stays exact.
type Cached struct {
	next  Formatter
	cache *freecache.Cache
}

var _ Formatter = (*Cached)(nil)

// NewCached wraps next with a cache of sizeBytes. freecache enforces its own
// minimum of 512KB.
func NewCached(next Formatter, sizeBytes int) *Cached {
	if sizeBytes <= 0 {
		sizeBytes = DefaultCacheBytes
	}
	return &Cached{next: next, cache: freecache.NewCache(sizeBytes)}
}

// Format returns the cached result for sql, formatting and storing it on a
// miss. Keys are SHA-256 digests so long inputs stay under freecache's key
// size limit.
func (c *Cached) Format(sql string) (string, error) {
	sum := sha256.Sum256([]byte(sql))
	key := sum[:]

	if v, err := c.cache.Get(key); err == nil {
		return string(v), nil
	}

	out, err := c.next.Format(sql)
	if err != nil {
		return "", err
	}
	// Entries over 1/1024 of the cache are rejected; the result is still
	// returned, just not remembered.
	_ = c.cache.Set(key, []byte(out), 0)
	return out, nil
}

// HitCount reports cache hits since creation.
func (c *Cached) HitCount() int64 { return c.cache.HitCount() }

// MissCount reports cache misses since creation.
func (c *Cached) MissCount() int64 { return c.cache.MissCount() }
