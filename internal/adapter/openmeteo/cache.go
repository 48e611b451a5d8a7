package openmeteo

import (
	"context"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/couchcryptid/disease-risk-service/internal/domain"
	"github.com/couchcryptid/disease-risk-service/internal/observability"
	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/singleflight"
)

// Fetcher returns the raw upstream body for a query.
type Fetcher interface {
	Fetch(ctx context.Context, q Query) ([]byte, error)
}

// CacheOptions configures a CachedSource.
type CacheOptions struct {
	Dir        string
	TTL        time.Duration
	MaxEntries int
	Clock      clockwork.Clock
	// FetchTimeout bounds a shared upstream call. Zero leaves it to the
	// inner fetcher.
	FetchTimeout time.Duration
}

// CachedSource wraps a Fetcher with a memory LRU tier and a file tier.
// Concurrent misses for one key share a single upstream call, which keeps
// running when the caller that started it goes away.
type CachedSource struct {
	inner        Fetcher
	memory       *lruCache
	files        *fileCache
	ttl          time.Duration
	fetchTimeout time.Duration
	clock        clockwork.Clock
	group        singleflight.Group
	logger       *slog.Logger
	metrics      *observability.Metrics
}

// NewCachedSource creates a cache decorator around a fetcher. An empty Dir
// disables the file tier.
func NewCachedSource(inner Fetcher, opts CacheOptions, logger *slog.Logger, metrics *observability.Metrics) *CachedSource {
	clock := opts.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	var files *fileCache
	if opts.Dir != "" {
		files = newFileCache(opts.Dir)
	}
	return &CachedSource{
		inner:        inner,
		memory:       newLRUCache(opts.MaxEntries),
		files:        files,
		ttl:          opts.TTL,
		fetchTimeout: opts.FetchTimeout,
		clock:        clock,
		logger:       logger,
		metrics:      metrics,
	}
}

// FetchForecast implements domain.WeatherSource.
func (c *CachedSource) FetchForecast(ctx context.Context, lat, lon float64) (*domain.Series, domain.LocationMeta, error) {
	f, err := c.fetch(ctx, Query{Kind: KindForecast, Latitude: lat, Longitude: lon})
	if err != nil {
		return nil, domain.LocationMeta{}, err
	}
	return f.series, f.meta, nil
}

// FetchArchive returns cached or fresh archive data between start and end.
func (c *CachedSource) FetchArchive(ctx context.Context, lat, lon float64, start, end domain.Date) (*domain.Series, domain.LocationMeta, error) {
	f, err := c.fetch(ctx, Query{Kind: KindArchive, Latitude: lat, Longitude: lon, Start: start, End: end})
	if err != nil {
		return nil, domain.LocationMeta{}, err
	}
	return f.series, f.meta, nil
}

// Fetch returns a fresh cached body for q or fetches and stores it. Bodies
// that do not parse into a valid series are returned as errors and never
// cached.
func (c *CachedSource) Fetch(ctx context.Context, q Query) ([]byte, error) {
	f, err := c.fetch(ctx, q)
	if err != nil {
		return nil, err
	}
	return f.body, nil
}

// fetched is a validated body with its parsed form. The series is shared
// between callers and must not be modified.
type fetched struct {
	body   []byte
	series *domain.Series
	meta   domain.LocationMeta
}

func (c *CachedSource) fetch(ctx context.Context, q Query) (*fetched, error) {
	key := cacheKey(q)
	if f, ok := c.cached(key); ok {
		return f, nil
	}

	ch := c.group.DoChan(key, func() (any, error) {
		if f, ok := c.cached(key); ok {
			return f, nil
		}
		// The upstream call is shared, so one caller hanging up must not
		// fail the others.
		fetchCtx, cancel := c.detach(ctx)
		defer cancel()

		body, err := c.inner.Fetch(fetchCtx, q)
		if err != nil {
			return nil, err
		}
		series, meta, err := Parse(body)
		if err != nil {
			c.logger.Warn("discarding unusable weather response", "key", key, "error", err)
			return nil, err
		}
		c.store(key, body)
		return &fetched{body: body, series: series, meta: meta}, nil
	})

	select {
	case <-ctx.Done():
		return nil, domain.WeatherError("weather data unavailable", ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		if res.Shared {
			c.logger.Debug("weather fetch shared", "key", key)
		}
		return res.Val.(*fetched), nil
	}
}

// detach drops the caller's cancellation, bounded by fetchTimeout when set.
func (c *CachedSource) detach(ctx context.Context) (context.Context, context.CancelFunc) {
	base := context.WithoutCancel(ctx)
	if c.fetchTimeout > 0 {
		return context.WithTimeout(base, c.fetchTimeout)
	}
	return context.WithCancel(base)
}

// cached returns a fresh entry that still parses. Anything else is a miss.
func (c *CachedSource) cached(key string) (*fetched, bool) {
	body, ok := c.lookup(key)
	if !ok {
		return nil, false
	}
	series, meta, err := Parse(body)
	if err != nil {
		c.logger.Warn("discarding unparseable cache entry", "key", key, "error", err)
		return nil, false
	}
	return &fetched{body: body, series: series, meta: meta}, true
}

func cacheKey(q Query) string {
	return strconv.FormatUint(xxhash.Sum64String(q.Key()), 16)
}

func (c *CachedSource) fresh(fetchedAt time.Time) bool {
	return c.clock.Since(fetchedAt) < c.ttl
}

func (c *CachedSource) lookup(key string) ([]byte, bool) {
	if e, ok := c.memory.get(key); ok && c.fresh(e.fetchedAt) {
		c.metrics.WeatherCache.WithLabelValues("memory", "hit").Inc()
		return e.body, true
	}
	c.metrics.WeatherCache.WithLabelValues("memory", "miss").Inc()

	if c.files == nil {
		return nil, false
	}
	e, err := c.files.read(key)
	if err != nil || !c.fresh(e.fetchedAt) {
		if err != nil && !isNotExist(err) {
			c.logger.Warn("discarding unreadable cache entry", "key", key, "error", err)
		}
		c.metrics.WeatherCache.WithLabelValues("file", "miss").Inc()
		return nil, false
	}
	c.metrics.WeatherCache.WithLabelValues("file", "hit").Inc()
	c.memory.put(key, e)
	return e.body, true
}

func (c *CachedSource) store(key string, body []byte) {
	e := cachedBody{body: body, fetchedAt: c.clock.Now()}
	c.memory.put(key, e)
	if c.files == nil {
		return
	}
	if err := c.files.write(key, e); err != nil {
		c.logger.Warn("weather cache write failed", "key", key, "error", err)
	}
}

type cachedBody struct {
	body      []byte
	fetchedAt time.Time
}

// lruCache is a simple thread-safe LRU cache for response bodies.
type lruCache struct {
	maxEntries int
	mu         sync.Mutex
	entries    map[string]*entry
	head       *entry // most recently used
	tail       *entry // least recently used
}

type entry struct {
	key   string
	value cachedBody
	prev  *entry
	next  *entry
}

func newLRUCache(maxEntries int) *lruCache {
	return &lruCache{
		maxEntries: max(1, maxEntries),
		entries:    make(map[string]*entry),
	}
}

func (c *lruCache) get(key string) (cachedBody, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return cachedBody{}, false
	}
	c.moveToFront(e)
	return e.value, true
}

func (c *lruCache) put(key string, value cachedBody) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok {
		e.value = value
		c.moveToFront(e)
		return
	}

	e := &entry{key: key, value: value}
	c.entries[key] = e
	c.addToFront(e)

	if len(c.entries) > c.maxEntries {
		c.evictTail()
	}
}

func (c *lruCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *lruCache) moveToFront(e *entry) {
	if e == c.head {
		return
	}
	c.remove(e)
	c.addToFront(e)
}

func (c *lruCache) addToFront(e *entry) {
	e.next = c.head
	e.prev = nil
	if c.head != nil {
		c.head.prev = e
	}
	c.head = e
	if c.tail == nil {
		c.tail = e
	}
}

func (c *lruCache) remove(e *entry) {
	if e.prev != nil {
		e.prev.next = e.next
	} else {
		c.head = e.next
	}
	if e.next != nil {
		e.next.prev = e.prev
	} else {
		c.tail = e.prev
	}
}

func (c *lruCache) evictTail() {
	if c.tail == nil {
		return
	}
	delete(c.entries, c.tail.key)
	c.remove(c.tail)
}
