package bus

import (
	"sync"
	"time"
)

// dedupeCache drops platform message IDs already seen within a TTL
// window. Entries are pruned lazily on each check; when the map still
// exceeds maxSize afterwards, arbitrary entries are evicted (map
// iteration order is random, which is sufficient here).
type dedupeCache struct {
	mu      sync.Mutex
	seen    map[string]int64 // id → unix millis
	ttl     time.Duration
	maxSize int
}

func newDedupeCache(ttl time.Duration, maxSize int) *dedupeCache {
	if ttl <= 0 {
		ttl = 20 * time.Minute
	}
	if maxSize <= 0 {
		maxSize = 5000
	}
	return &dedupeCache{
		seen:    make(map[string]int64, 256),
		ttl:     ttl,
		maxSize: maxSize,
	}
}

// isDuplicate reports whether id was seen within the TTL window,
// recording it for future checks when it was not.
func (d *dedupeCache) isDuplicate(id string) bool {
	if id == "" {
		return false
	}
	now := time.Now().UnixMilli()
	cutoff := now - d.ttl.Milliseconds()

	d.mu.Lock()
	defer d.mu.Unlock()

	if ts, ok := d.seen[id]; ok && ts >= cutoff {
		return true
	}

	for k, ts := range d.seen {
		if ts < cutoff {
			delete(d.seen, k)
		}
	}
	if len(d.seen) >= d.maxSize {
		excess := len(d.seen) - d.maxSize + 1
		for k := range d.seen {
			if excess <= 0 {
				break
			}
			delete(d.seen, k)
			excess--
		}
	}

	d.seen[id] = now
	return false
}
