// Package cache implements the result caches used by the extraction engine:
// an in-memory LRU bounded by a byte budget and an entry age budget, with
// per-key single-flight computation and an optional SQLite persistence tier.
//
// Disk-tier failures never fail a lookup or computation — the cache degrades
// to memory-only behaviour and logs the problem.
package cache

import (
	"container/list"
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// Config configures a cache instance.
type Config struct {
	// MaxBytes is the cumulative size budget. Default: 64 MB.
	MaxBytes int64
	// MaxAge is the entry retention window. Default: 30 minutes.
	MaxAge time.Duration
	// SweepInterval is the delay between background expiry sweeps.
	// Default: 5 minutes. Negative disables the sweeper.
	SweepInterval time.Duration
	// Path enables the SQLite persistence tier when non-empty.
	Path string
	// Logger overrides the default slog logger.
	Logger *slog.Logger
}

func (c *Config) defaults() {
	if c.MaxBytes <= 0 {
		c.MaxBytes = 64 * 1024 * 1024
	}
	if c.MaxAge <= 0 {
		c.MaxAge = 30 * time.Minute
	}
	if c.SweepInterval == 0 {
		c.SweepInterval = 5 * time.Minute
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Stats is a point-in-time snapshot of cache counters.
type Stats struct {
	Entries   int    `json:"entries"`
	Bytes     int64  `json:"bytes"`
	Hits      uint64 `json:"hits"`
	Misses    uint64 `json:"misses"`
	Evictions uint64 `json:"evictions"`
}

type entry struct {
	key       string
	val       []byte
	size      int64
	createdAt time.Time
}

// Cache is a byte/age-budgeted LRU with single-flight computation.
type Cache struct {
	cfg   Config
	group singleflight.Group

	mu        sync.Mutex
	elems     map[string]*list.Element
	lru       *list.List // front = most recently used
	bytes     int64
	hits      uint64
	misses    uint64
	evictions uint64

	disk *diskStore

	done      chan struct{}
	closeOnce sync.Once
}

// New creates a cache. A failing persistence tier is logged and skipped —
// the cache still works memory-only.
func New(cfg Config) *Cache {
	cfg.defaults()
	c := &Cache{
		cfg:   cfg,
		elems: make(map[string]*list.Element),
		lru:   list.New(),
		done:  make(chan struct{}),
	}

	if cfg.Path != "" {
		disk, err := openDiskStore(cfg.Path)
		if err != nil {
			cfg.Logger.Warn("cache: persistence tier unavailable, running memory-only",
				"path", cfg.Path, "error", err)
		} else {
			c.disk = disk
		}
	}

	if cfg.SweepInterval > 0 {
		go c.sweepLoop()
	}
	return c
}

// Get returns the cached value for key, refreshing its recency. Entries past
// the age budget are evicted lazily here and reported as a miss.
func (c *Cache) Get(key string) ([]byte, bool) {
	c.mu.Lock()
	if el, ok := c.elems[key]; ok {
		e := el.Value.(*entry)
		if time.Since(e.createdAt) > c.cfg.MaxAge {
			c.removeLocked(el)
			c.evictions++
			c.misses++
			c.mu.Unlock()
			c.diskDelete(key)
			return nil, false
		}
		c.lru.MoveToFront(el)
		c.hits++
		val := e.val
		c.mu.Unlock()
		return val, true
	}
	c.misses++
	c.mu.Unlock()

	// Promote from the persistence tier on memory miss.
	if c.disk != nil {
		if val, createdAt, ok := c.diskGet(key); ok {
			if time.Since(createdAt) > c.cfg.MaxAge {
				c.diskDelete(key)
				return nil, false
			}
			c.putWithTime(key, val, createdAt)
			return val, true
		}
	}
	return nil, false
}

// Put stores a value, evicting least-recently-used entries while the byte
// budget is exceeded.
func (c *Cache) Put(key string, val []byte) {
	c.putWithTime(key, val, time.Now())
	if c.disk != nil {
		if err := c.disk.put(key, val); err != nil {
			c.cfg.Logger.Warn("cache: disk write failed", "key", key, "error", err)
		}
	}
}

func (c *Cache) putWithTime(key string, val []byte, createdAt time.Time) {
	size := int64(len(val)) + int64(len(key))

	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.elems[key]; ok {
		c.removeLocked(el)
	}
	el := c.lru.PushFront(&entry{key: key, val: val, size: size, createdAt: createdAt})
	c.elems[key] = el
	c.bytes += size

	for c.bytes > c.cfg.MaxBytes && c.lru.Len() > 1 {
		oldest := c.lru.Back()
		if oldest == nil {
			break
		}
		c.removeLocked(oldest)
		c.evictions++
	}
}

// GetOrCompute returns the cached value for key or runs compute to produce
// it, guaranteeing at most one concurrent computation per key. Concurrent
// callers for the same key share the single in-flight result.
func (c *Cache) GetOrCompute(ctx context.Context, key string, compute func(ctx context.Context) ([]byte, error)) ([]byte, error) {
	if val, ok := c.Get(key); ok {
		return val, nil
	}

	v, err, _ := c.group.Do(key, func() (any, error) {
		// Re-check: another caller may have completed between Get and Do.
		if val, ok := c.Get(key); ok {
			return val, nil
		}
		val, err := compute(ctx)
		if err != nil {
			return nil, err
		}
		c.Put(key, val)
		return val, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]byte), nil
}

// Clear drops every entry from both tiers immediately.
func (c *Cache) Clear() {
	c.mu.Lock()
	c.elems = make(map[string]*list.Element)
	c.lru.Init()
	c.bytes = 0
	c.mu.Unlock()

	if c.disk != nil {
		if err := c.disk.clear(); err != nil {
			c.cfg.Logger.Warn("cache: disk clear failed", "error", err)
		}
	}
}

// Stats returns a snapshot of the cache counters.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{
		Entries:   c.lru.Len(),
		Bytes:     c.bytes,
		Hits:      c.hits,
		Misses:    c.misses,
		Evictions: c.evictions,
	}
}

// Close stops the sweeper and closes the persistence tier.
func (c *Cache) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		if c.disk != nil {
			err = c.disk.close()
		}
	})
	return err
}

func (c *Cache) removeLocked(el *list.Element) {
	e := el.Value.(*entry)
	c.lru.Remove(el)
	delete(c.elems, e.key)
	c.bytes -= e.size
}

func (c *Cache) sweepLoop() {
	ticker := time.NewTicker(c.cfg.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.sweep()
		}
	}
}

// sweep removes entries past the age budget from both tiers.
func (c *Cache) sweep() {
	cutoff := time.Now().Add(-c.cfg.MaxAge)

	c.mu.Lock()
	for el := c.lru.Back(); el != nil; {
		prev := el.Prev()
		if el.Value.(*entry).createdAt.Before(cutoff) {
			c.removeLocked(el)
			c.evictions++
		}
		el = prev
	}
	c.mu.Unlock()

	if c.disk != nil {
		if err := c.disk.deleteOlderThan(cutoff); err != nil {
			c.cfg.Logger.Warn("cache: disk sweep failed", "error", err)
		}
	}
}

func (c *Cache) diskGet(key string) ([]byte, time.Time, bool) {
	val, createdAt, err := c.disk.get(key)
	if err != nil {
		c.cfg.Logger.Warn("cache: disk read failed", "key", key, "error", err)
		return nil, time.Time{}, false
	}
	if val == nil {
		return nil, time.Time{}, false
	}
	return val, createdAt, true
}

func (c *Cache) diskDelete(key string) {
	if c.disk == nil {
		return
	}
	if err := c.disk.delete(key); err != nil {
		c.cfg.Logger.Warn("cache: disk delete failed", "key", key, "error", err)
	}
}
