package proximity

import (
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/unklstewy/plane-spotter/pkg/airports"
)

// DefaultCacheSize is used when NewCachedResolver is given a non-positive size.
const DefaultCacheSize = 256

// cachedResult stores a lookup outcome by value so cached entries cannot
// be modified through a returned pointer.
type cachedResult struct {
	match Match
	found bool
}

// CachedResolver memoizes lookups in an LRU keyed by the exact query.
// The catalog is immutable, so entries never go stale. Invalid queries are
// rejected before the cache is consulted and are never stored.
type CachedResolver struct {
	catalog *airports.Catalog
	cache   *lru.Cache[Query, cachedResult]
}

// NewCachedResolver returns a Resolver backed by an LRU of the given size.
func NewCachedResolver(c *airports.Catalog, size int) (*CachedResolver, error) {
	if size <= 0 {
		size = DefaultCacheSize
	}
	cache, err := lru.New[Query, cachedResult](size)
	if err != nil {
		return nil, fmt.Errorf("create resolver cache: %w", err)
	}
	return &CachedResolver{catalog: c, cache: cache}, nil
}

// Nearest implements Resolver.
func (r *CachedResolver) Nearest(q Query) (*Match, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	if hit, ok := r.cache.Get(q); ok {
		return hit.toMatch(), nil
	}

	m, err := Nearest(r.catalog, q)
	if err != nil {
		return nil, err
	}

	entry := cachedResult{found: m != nil}
	if m != nil {
		entry.match = *m
	}
	r.cache.Add(q, entry)

	return m, nil
}

// Len returns the number of cached lookups.
func (r *CachedResolver) Len() int {
	return r.cache.Len()
}

func (c cachedResult) toMatch() *Match {
	if !c.found {
		return nil
	}
	m := c.match
	return &m
}
