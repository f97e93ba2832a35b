// Package activation reduces the action registry to the cycle's eligible
// set. Cheap policies (always/never/random/keyword) evaluate inline;
// LLM-judged policies fan out to the reasoning model with bounded
// parallelism and a TTL cache.
package activation

import (
	"hash/fnv"
	"strconv"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

const (
	// DefaultCacheTTL bounds how long a judgment is reused for an
	// identical (action, transcript) pair.
	DefaultCacheTTL = 30 * time.Second

	// DefaultCacheSize caps retained judgments across conversations.
	DefaultCacheSize = 512
)

// JudgmentCache memoizes LLM activation judgments. Writes are
// last-writer-wins; entries are idempotent per key so concurrent judge
// calls racing on the same key are harmless.
type JudgmentCache struct {
	lru *expirable.LRU[string, bool]
}

// NewJudgmentCache creates a TTL-bounded cache. size <= 0 and ttl <= 0
// fall back to the defaults.
func NewJudgmentCache(size int, ttl time.Duration) *JudgmentCache {
	if size <= 0 {
		size = DefaultCacheSize
	}
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &JudgmentCache{lru: expirable.NewLRU[string, bool](size, nil, ttl)}
}

// Key derives the cache key from the action name and the rendered
// transcript the judgment was made against.
func Key(action, transcript string) string {
	h := fnv.New64a()
	h.Write([]byte(action))
	h.Write([]byte{0})
	h.Write([]byte(transcript))
	return strconv.FormatUint(h.Sum64(), 16)
}

// Get returns a cached judgment if present and unexpired.
func (c *JudgmentCache) Get(key string) (bool, bool) {
	return c.lru.Get(key)
}

// Put stores a judgment under key.
func (c *JudgmentCache) Put(key string, activated bool) {
	c.lru.Add(key, activated)
}

// Len returns the number of live entries (expired entries excluded
// opportunistically by the underlying LRU).
func (c *JudgmentCache) Len() int {
	return c.lru.Len()
}
