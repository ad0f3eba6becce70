// Package cache provides caching for rendered views, decoded frames and
// histogram results.
package cache

import (
	"context"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/allegro/bigcache/v3"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/minio/highwayhash"

	"github.com/framescope/server/internal/lut"
	"github.com/framescope/server/internal/npy"
	"github.com/framescope/server/internal/viewport"
)

// fingerprintKey is the fixed highwayhash key. Fingerprints only need to be
// stable within one process.
var fingerprintKey = []byte("framescope.frame.fingerprint.v01")

// Config contains cache configuration.
type Config struct {
	ImageCacheSizeMB int
	ImageTTL         time.Duration
	FrameCacheSize   int
	QueryCacheSize   int
}

// Manager manages the image, frame and query caches.
type Manager struct {
	imageCache *bigcache.BigCache
	frameCache *lru.Cache[string, *npy.Array]
	queryCache *lru.Cache[string, []byte]
}

// NewManager creates a new cache manager.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.ImageTTL <= 0 {
		cfg.ImageTTL = 5 * time.Minute
	}
	if cfg.FrameCacheSize <= 0 {
		cfg.FrameCacheSize = 8
	}
	if cfg.QueryCacheSize <= 0 {
		cfg.QueryCacheSize = 256
	}

	// Configure image cache
	imageCacheConfig := bigcache.Config{
		Shards:             64,
		LifeWindow:         cfg.ImageTTL,
		CleanWindow:        cfg.ImageTTL / 2,
		MaxEntriesInWindow: 10000,
		MaxEntrySize:       512 * 1024, // 512KB per view
		HardMaxCacheSize:   cfg.ImageCacheSizeMB,
		Verbose:            false,
	}

	imageCache, err := bigcache.New(context.Background(), imageCacheConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create image cache: %w", err)
	}

	frameCache, err := lru.New[string, *npy.Array](cfg.FrameCacheSize)
	if err != nil {
		imageCache.Close()
		return nil, fmt.Errorf("failed to create frame cache: %w", err)
	}

	queryCache, err := lru.New[string, []byte](cfg.QueryCacheSize)
	if err != nil {
		imageCache.Close()
		return nil, fmt.Errorf("failed to create query cache: %w", err)
	}

	return &Manager{
		imageCache: imageCache,
		frameCache: frameCache,
		queryCache: queryCache,
	}, nil
}

// GetImage retrieves an encoded view from cache.
func (m *Manager) GetImage(key string) ([]byte, bool) {
	data, err := m.imageCache.Get(key)
	if err != nil {
		return nil, false
	}
	return data, true
}

// SetImage stores an encoded view in cache.
func (m *Manager) SetImage(key string, data []byte) error {
	return m.imageCache.Set(key, data)
}

// GetFrame retrieves a decoded frame by fingerprint.
func (m *Manager) GetFrame(fingerprint string) (*npy.Array, bool) {
	return m.frameCache.Get(fingerprint)
}

// SetFrame stores a decoded frame by fingerprint.
func (m *Manager) SetFrame(fingerprint string, arr *npy.Array) {
	m.frameCache.Add(fingerprint, arr)
}

// GetQuery retrieves a query result from cache.
func (m *Manager) GetQuery(key string) ([]byte, bool) {
	return m.queryCache.Get(key)
}

// SetQuery stores a query result in cache.
func (m *Manager) SetQuery(key string, data []byte) {
	m.queryCache.Add(key, data)
}

// Fingerprint hashes a raw frame payload.
func Fingerprint(data []byte) string {
	sum := highwayhash.Sum128(data, fingerprintKey)
	return hex.EncodeToString(sum[:])
}

// ImageKey generates a cache key for a rendered view.
func ImageKey(fingerprint string, v viewport.Viewport, width, height int, colormap string, w lut.Window) string {
	return fmt.Sprintf("view:%s:%g,%g,%g,%g:%dx%d:%s:%g,%g",
		fingerprint, v.Left, v.Right, v.Bottom, v.Top, width, height, colormap, w.Low, w.High)
}

// HistogramKey generates a cache key for a histogram result.
func HistogramKey(fingerprint string, bins int) string {
	return fmt.Sprintf("hist:%s:%d", fingerprint, bins)
}

// Stats returns cache statistics.
func (m *Manager) Stats() map[string]interface{} {
	return map[string]interface{}{
		"image_cache_len":  m.imageCache.Len(),
		"image_cache_cap":  m.imageCache.Capacity(),
		"image_cache_hits": m.imageCache.Stats().Hits,
		"frame_cache_len":  m.frameCache.Len(),
		"query_cache_len":  m.queryCache.Len(),
	}
}

// Close closes the cache manager.
func (m *Manager) Close() error {
	return m.imageCache.Close()
}
