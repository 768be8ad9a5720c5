package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/Domenick1991/flightsync/internal/domain"
	"github.com/Domenick1991/flightsync/internal/metrics"
	"github.com/goccy/go-json"
	"go.uber.org/zap"
)

const (
	searchPrefix = "cache:search:"
	bypassFlag   = "search_cache_bypass"
)

type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	DeleteByPrefix(ctx context.Context, prefix string) (int, error)
}

// FlagStore is implemented by stores that can share the bypass switch between processes.
type FlagStore interface {
	Flag(ctx context.Context, name string) (bool, error)
	SetFlag(ctx context.Context, name string, on bool) error
}

type entry struct {
	Key       string                    `json:"key"`
	Payload   []domain.NormalizedFlight `json:"payload"`
	WrittenAt time.Time                 `json:"written_at"`
	TTL       time.Duration             `json:"ttl"`
}

func (e entry) validAt(now time.Time) bool {
	return now.Before(e.WrittenAt.Add(e.TTL))
}

// SearchCache is a cache-aside view of search results keyed by route, date and filters.
// It is never authoritative: any read or decode problem is reported as a miss.
type SearchCache struct {
	store  Store
	ttl    time.Duration
	bypass atomic.Bool
	now    func() time.Time
	log    *zap.Logger
}

func NewSearchCache(store Store, ttl time.Duration, bypass bool, log *zap.Logger) *SearchCache {
	if log == nil {
		log = zap.NewNop()
	}
	c := &SearchCache{store: store, ttl: ttl, now: time.Now, log: log}
	c.bypass.Store(bypass)
	return c
}

// SetBypass toggles the bypass switch locally and, when supported, for every process.
func (c *SearchCache) SetBypass(ctx context.Context, on bool) error {
	c.bypass.Store(on)
	if fs, ok := c.store.(FlagStore); ok {
		return fs.SetFlag(ctx, bypassFlag, on)
	}
	return nil
}

func (c *SearchCache) Bypassed(ctx context.Context) bool {
	if c.bypass.Load() {
		return true
	}
	if fs, ok := c.store.(FlagStore); ok {
		on, err := fs.Flag(ctx, bypassFlag)
		if err != nil {
			c.log.Debug("bypass flag unavailable", zap.Error(err))
			return false
		}
		return on
	}
	return false
}

// Get returns domain.ErrCacheMiss when there is no entry, the entry is older
// than its ttl, or the bypass switch is on.
func (c *SearchCache) Get(ctx context.Context, route domain.Route, date time.Time, filters domain.SearchFilters) ([]domain.NormalizedFlight, error) {
	if c.Bypassed(ctx) {
		metrics.SearchCacheMisses.Inc()
		return nil, domain.ErrCacheMiss
	}

	key := Key(route, date, filters)
	data, err := c.store.Get(ctx, key)
	if err != nil {
		metrics.SearchCacheMisses.Inc()
		if !errors.Is(err, domain.ErrCacheMiss) {
			c.log.Warn("search cache read failed", zap.String("key", key), zap.Error(err))
		}
		return nil, domain.ErrCacheMiss
	}

	var e entry
	if err := json.Unmarshal(data, &e); err != nil {
		metrics.SearchCacheMisses.Inc()
		c.log.Warn("search cache entry corrupt", zap.String("key", key), zap.Error(err))
		return nil, domain.ErrCacheMiss
	}
	if !e.validAt(c.now()) {
		metrics.SearchCacheMisses.Inc()
		return nil, domain.ErrCacheMiss
	}

	metrics.SearchCacheHits.Inc()
	return e.Payload, nil
}

func (c *SearchCache) Put(ctx context.Context, route domain.Route, date time.Time, filters domain.SearchFilters, flights []domain.NormalizedFlight) error {
	key := Key(route, date, filters)
	if flights == nil {
		flights = []domain.NormalizedFlight{}
	}
	data, err := json.Marshal(entry{Key: key, Payload: flights, WrittenAt: c.now(), TTL: c.ttl})
	if err != nil {
		return fmt.Errorf("encode cache entry: %w", err)
	}
	if err := c.store.Set(ctx, key, data, c.ttl); err != nil {
		return fmt.Errorf("write cache entry %s: %w", key, err)
	}
	return nil
}

// Invalidate drops every filter variant cached for route and date.
func (c *SearchCache) Invalidate(ctx context.Context, route domain.Route, date time.Time) (int, error) {
	n, err := c.store.DeleteByPrefix(ctx, routePrefix(route, date))
	if err != nil {
		return n, fmt.Errorf("invalidate %s %s: %w", route, date.Format(domain.DateLayout), err)
	}
	metrics.SearchCacheInvalidations.Add(float64(n))
	return n, nil
}

func routePrefix(route domain.Route, date time.Time) string {
	return searchPrefix + route.Departure + ":" + route.Arrival + ":" + date.Format(domain.DateLayout) + ":"
}

// Key builds the cache key. Filters are folded into a short fingerprint.
func Key(route domain.Route, date time.Time, filters domain.SearchFilters) string {
	return routePrefix(route, date) + Fingerprint(filters)
}

func Fingerprint(f domain.SearchFilters) string {
	if f == (domain.SearchFilters{}) {
		return "all"
	}
	canonical := fmt.Sprintf("airline=%s|cabin=%s|max=%.2f",
		strings.ToUpper(strings.TrimSpace(f.AirlineCode)),
		strings.ToUpper(strings.TrimSpace(f.CabinClass)),
		f.MaxPrice)
	sum := sha256.Sum256([]byte(canonical))
	return hex.EncodeToString(sum[:8])
}
