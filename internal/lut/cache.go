package lut

import (
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/framescope/server/pkg/colormap"
)

type cacheKey struct {
	domain   Domain
	window   Window
	colormap string
}

// Cache keeps recently built tables so that a table is only rebuilt when
// its domain, window or palette changes. It is safe for concurrent use.
type Cache struct {
	tables *lru.Cache[cacheKey, *LookupTable]
}

// NewCache creates a cache holding up to size tables.
func NewCache(size int) (*Cache, error) {
	if size <= 0 {
		size = 16
	}
	tables, err := lru.New[cacheKey, *LookupTable](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create lut cache: %w", err)
	}
	return &Cache{tables: tables}, nil
}

// Get returns the table for (d, w, cm), building it on a miss.
func (c *Cache) Get(d Domain, w Window, cm colormap.Colormap) (*LookupTable, error) {
	key := cacheKey{domain: d, window: w, colormap: cm.Name()}
	if t, ok := c.tables.Get(key); ok {
		return t, nil
	}
	t, err := Build(d, w, cm)
	if err != nil {
		return nil, err
	}
	c.tables.Add(key, t)
	return t, nil
}

// Len reports how many tables are cached.
func (c *Cache) Len() int {
	return c.tables.Len()
}
