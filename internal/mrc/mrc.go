// Package mrc is the request-code cache described in spec.md §4.6: a
// fixed-capacity, time-aligned cache of per-manifest request codes, with
// single-flight fetching against the upstream so two clients racing for
// the same manifest ID only trigger one CM round-trip.
package mrc

import (
	"context"
	"sort"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

const maxEntries = 128

// refreshOffset is added past the next 5-minute wall-clock boundary so the
// cache entry's expiry lands just after Steam's own refresh cadence rather
// than racing it, per spec.md §4.6.
const refreshOffset = 240 * time.Second

type entry struct {
	code   uint64
	expiry time.Time
	timer  *time.Timer
}

// Cache is the MRC cache plus its single-flight gate. Safe for concurrent
// use; every public method takes its own lock rather than assuming a
// caller-held catalog lock, since the MRC cache is a narrower piece of
// state than the full catalog.
type Cache struct {
	mu      sync.Mutex
	entries map[uint64]*entry

	group singleflight.Group
}

func New() *Cache {
	return &Cache{entries: map[uint64]*entry{}}
}

// Fetch is spec.md §4.6's full lookup algorithm. manifestID is the cache
// key; fetch is called at most once per manifestID among any concurrently
// racing callers, and is expected to perform the actual upstream
// GetManifestRequestCode call (including its own per-call timeout). maxAge
// is the number of seconds until this entry's scheduled expiry, suitable
// for a Cache-Control header.
func (c *Cache) Fetch(ctx context.Context, manifestID uint64, fetch func(ctx context.Context) (uint64, error)) (code uint64, maxAge int, err error) {
	c.mu.Lock()
	if e, ok := c.entries[manifestID]; ok {
		code, expiry := e.code, e.expiry
		c.mu.Unlock()
		return code, maxAgeSeconds(time.Until(expiry)), nil
	}
	c.mu.Unlock()

	v, err, _ := c.group.Do(strconv.FormatUint(manifestID, 10), func() (interface{}, error) {
		return fetch(ctx)
	})
	if err != nil {
		return 0, 0, err
	}
	code = v.(uint64)

	expiry := c.insert(manifestID, code)
	return code, maxAgeSeconds(time.Until(expiry)), nil
}

// insert records a freshly-fetched code, evicting the smallest manifest ID
// if the cache is already at capacity (spec.md §4.6's open question:
// smallest key, not oldest by insertion time, is evicted), and arms the
// one-shot expiry timer at the next Steam refresh boundary.
func (c *Cache) insert(manifestID, code uint64) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	if old, exists := c.entries[manifestID]; exists {
		old.timer.Stop()
	} else if len(c.entries) >= maxEntries {
		c.evictSmallestLocked()
	}

	expiry := nextRefreshBoundary(time.Now())
	e := &entry{code: code, expiry: expiry}
	e.timer = time.AfterFunc(time.Until(expiry), func() { c.expire(manifestID) })
	c.entries[manifestID] = e
	return expiry
}

func (c *Cache) evictSmallestLocked() {
	if len(c.entries) == 0 {
		return
	}
	ids := make([]uint64, 0, len(c.entries))
	for id := range c.entries {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	smallest := ids[0]
	if e, ok := c.entries[smallest]; ok {
		e.timer.Stop()
		delete(c.entries, smallest)
	}
}

func (c *Cache) expire(manifestID uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, manifestID)
}

// Len reports the current entry count, for tests and metrics.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// nextRefreshBoundary rounds up to the next 5-minute wall-clock boundary
// and adds refreshOffset, per spec.md §4.6.
func nextRefreshBoundary(now time.Time) time.Time {
	const interval = 5 * time.Minute
	next := now.Truncate(interval)
	if !next.After(now) {
		next = next.Add(interval)
	}
	return next.Add(refreshOffset)
}

func maxAgeSeconds(d time.Duration) int {
	secs := int(d / time.Second)
	if secs < 0 {
		return 0
	}
	return secs
}
