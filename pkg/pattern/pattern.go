// Package pattern compiles the regular-expression path patterns used by the
// dispatcher's route and filter tables.
package pattern

import (
	"errors"
	"fmt"
	"regexp"
	"sync"
)

// ErrInvalidPattern is returned when a pattern is not a valid regular expression.
var ErrInvalidPattern = errors.New("sdispatch(pattern): invalid pattern")

// Pattern is a compiled path pattern. Matches is a full match: the
// expression has to consume the whole path.
type Pattern struct {
	raw string
	re  *regexp.Regexp
}

// String returns the pattern as registered.
func (p *Pattern) String() string { return p.raw }

// Matches reports whether the whole path matches the expression.
func (p *Pattern) Matches(path string) bool {
	return p.re.MatchString(path)
}

// Equals reports whether path is literally the registered pattern string.
func (p *Pattern) Equals(path string) bool {
	return p.raw == path
}

// Event names reported to a cache observer.
const (
	EventHit      = "hit"
	EventMiss     = "miss"
	EventEviction = "eviction"
)

// DefaultCacheSize is the maximum number of compiled patterns kept by a Cache
// created with a non-positive size.
const DefaultCacheSize = 1000

// cacheEntry holds a compiled pattern and its access order for LRU eviction.
type cacheEntry struct {
	pattern     *Pattern
	accessOrder int64
}

// Cache is a bounded LRU cache of compiled patterns. It is safe for
// concurrent use.
type Cache struct {
	mu       sync.Mutex
	size     int
	entries  map[string]*cacheEntry
	counter  int64
	observer func(event string)
}

// NewCache creates a cache holding at most size patterns. observer, when
// non-nil, receives EventHit, EventMiss and EventEviction.
func NewCache(size int, observer func(event string)) *Cache {
	if size <= 0 {
		size = DefaultCacheSize
	}
	return &Cache{
		size:     size,
		entries:  make(map[string]*cacheEntry),
		observer: observer,
	}
}

// Compile returns the compiled form of raw, reusing a cached one when present.
func (c *Cache) Compile(raw string) (*Pattern, error) {
	c.mu.Lock()
	if entry, ok := c.entries[raw]; ok {
		c.counter++
		entry.accessOrder = c.counter
		c.mu.Unlock()
		c.notify(EventHit)
		return entry.pattern, nil
	}
	c.mu.Unlock()
	c.notify(EventMiss)

	// Compile outside the lock.
	p, err := Compile(raw)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	// Another goroutine may have added it meanwhile.
	if existing, ok := c.entries[raw]; ok {
		c.counter++
		existing.accessOrder = c.counter
		return existing.pattern, nil
	}

	if len(c.entries) >= c.size {
		c.evictLocked()
	}
	c.counter++
	c.entries[raw] = &cacheEntry{pattern: p, accessOrder: c.counter}
	return p, nil
}

// Len returns the number of cached patterns.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// evictLocked removes the least recently used entry. c.mu must be held.
func (c *Cache) evictLocked() {
	var lruKey string
	var lruOrder int64 = -1
	for key, entry := range c.entries {
		if lruOrder == -1 || entry.accessOrder < lruOrder {
			lruOrder = entry.accessOrder
			lruKey = key
		}
	}
	if lruOrder != -1 {
		delete(c.entries, lruKey)
		c.notify(EventEviction)
	}
}

func (c *Cache) notify(event string) {
	if c.observer != nil {
		c.observer(event)
	}
}

// Compile compiles raw without caching.
func Compile(raw string) (*Pattern, error) {
	re, err := regexp.Compile("^(?:" + raw + ")$")
	if err != nil {
		return nil, fmt.Errorf("%w %q: %v", ErrInvalidPattern, raw, err)
	}
	return &Pattern{raw: raw, re: re}, nil
}
