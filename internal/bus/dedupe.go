package bus

import (
	"sync"
	"time"
)

// DedupeCache is a TTL-based deduplication cache.
//
// IsDuplicate returns true if the key has been seen within the TTL.
// Entries expire after TTL and are pruned lazily on each check.
type DedupeCache struct {
	mu      sync.Mutex
	entries map[string]int64 // key → unix millis
	ttl     time.Duration
	maxSize int
	now     func() time.Time
}

// NewDedupeCache creates a new dedup cache. maxSize <= 0 means unbounded.
func NewDedupeCache(ttl time.Duration, maxSize int) *DedupeCache {
	return &DedupeCache{
		entries: make(map[string]int64, 64),
		ttl:     ttl,
		maxSize: maxSize,
		now:     time.Now,
	}
}

// IsDuplicate returns true if key was already seen within the TTL window.
// If not a duplicate, records the key for future checks.
func (d *DedupeCache) IsDuplicate(key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now().UnixMilli()
	cutoff := now - d.ttl.Milliseconds()

	if ts, ok := d.entries[key]; ok && ts > cutoff {
		return true
	}

	d.cleanup(cutoff)

	d.entries[key] = now
	return false
}

// Len returns the number of live entries.
func (d *DedupeCache) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.entries)
}

// cleanup removes expired entries and evicts oldest if over maxSize.
// Must be called with d.mu held.
func (d *DedupeCache) cleanup(cutoff int64) {
	for k, ts := range d.entries {
		if ts <= cutoff {
			delete(d.entries, k)
		}
	}

	if d.maxSize <= 0 {
		return
	}
	for len(d.entries) >= d.maxSize {
		var (
			oldestKey string
			oldestTS  int64 = -1
		)
		for k, ts := range d.entries {
			if oldestTS < 0 || ts < oldestTS {
				oldestKey, oldestTS = k, ts
			}
		}
		delete(d.entries, oldestKey)
	}
}
