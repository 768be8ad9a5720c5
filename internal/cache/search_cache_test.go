package cache

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Domenick1991/flightsync/config"
	"github.com/Domenick1991/flightsync/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memStore struct {
	mu    sync.Mutex
	data  map[string][]byte
	flags map[string]bool
	err   error
}

func newMemStore() *memStore {
	return &memStore{data: map[string][]byte{}, flags: map[string]bool{}}
}

func (s *memStore) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	v, ok := s.data[key]
	if !ok {
		return nil, domain.ErrCacheMiss
	}
	return v, nil
}

func (s *memStore) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = value
	return nil
}

func (s *memStore) DeleteByPrefix(_ context.Context, prefix string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for k := range s.data {
		if strings.HasPrefix(k, prefix) {
			delete(s.data, k)
			n++
		}
	}
	return n, nil
}

type flagStore struct {
	*memStore
}

func (s flagStore) Flag(_ context.Context, name string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flags[name], nil
}

func (s flagStore) SetFlag(_ context.Context, name string, on bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flags[name] = on
	return nil
}

var (
	route = domain.NewRoute("TPE", "NRT")
	date  = time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
)

func payload() []domain.NormalizedFlight {
	dep := time.Date(2025, 6, 1, 8, 50, 0, 0, time.UTC)
	return []domain.NormalizedFlight{
		{FlightNumber: "BR198", AirlineCode: "BR", ScheduledDeparture: dep, ScheduledArrival: dep.Add(3 * time.Hour)},
		{FlightNumber: "JL099", AirlineCode: "JL", ScheduledDeparture: dep.Add(time.Hour), ScheduledArrival: dep.Add(4 * time.Hour)},
	}
}

func newCache(store Store, clock *time.Time) *SearchCache {
	c := NewSearchCache(store, time.Hour, false, nil)
	c.now = func() time.Time { return *clock }
	return c
}

func TestSearchCache_PutThenGetWithinTTL(t *testing.T) {
	now := time.Date(2025, 5, 31, 10, 0, 0, 0, time.UTC)
	c := newCache(newMemStore(), &now)
	ctx := context.Background()

	_, err := c.Get(ctx, route, date, domain.SearchFilters{})
	assert.ErrorIs(t, err, domain.ErrCacheMiss)

	require.NoError(t, c.Put(ctx, route, date, domain.SearchFilters{}, payload()))

	now = now.Add(59 * time.Minute)
	got, err := c.Get(ctx, route, date, domain.SearchFilters{})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "BR198", got[0].FlightNumber)
	assert.True(t, got[0].ScheduledDeparture.Equal(payload()[0].ScheduledDeparture))
}

func TestSearchCache_ExpiredEntryIsMiss(t *testing.T) {
	now := time.Date(2025, 5, 31, 10, 0, 0, 0, time.UTC)
	c := newCache(newMemStore(), &now)
	ctx := context.Background()

	require.NoError(t, c.Put(ctx, route, date, domain.SearchFilters{}, payload()))
	now = now.Add(time.Hour)

	_, err := c.Get(ctx, route, date, domain.SearchFilters{})
	assert.ErrorIs(t, err, domain.ErrCacheMiss)
}

func TestSearchCache_Bypass(t *testing.T) {
	now := time.Now()
	c := newCache(newMemStore(), &now)
	ctx := context.Background()

	require.NoError(t, c.Put(ctx, route, date, domain.SearchFilters{}, payload()))
	require.NoError(t, c.SetBypass(ctx, true))
	_, err := c.Get(ctx, route, date, domain.SearchFilters{})
	assert.ErrorIs(t, err, domain.ErrCacheMiss)

	require.NoError(t, c.SetBypass(ctx, false))
	_, err = c.Get(ctx, route, date, domain.SearchFilters{})
	assert.NoError(t, err)
}

func TestSearchCache_SharedBypassFlag(t *testing.T) {
	now := time.Now()
	store := flagStore{newMemStore()}
	writer := newCache(store, &now)
	reader := newCache(store, &now)
	ctx := context.Background()

	require.NoError(t, reader.Put(ctx, route, date, domain.SearchFilters{}, payload()))
	require.NoError(t, writer.SetBypass(ctx, true))

	assert.True(t, reader.Bypassed(ctx))
	_, err := reader.Get(ctx, route, date, domain.SearchFilters{})
	assert.ErrorIs(t, err, domain.ErrCacheMiss)
}

func TestSearchCache_InvalidateDropsAllFilterVariants(t *testing.T) {
	now := time.Now()
	store := newMemStore()
	c := newCache(store, &now)
	ctx := context.Background()

	filtered := domain.SearchFilters{AirlineCode: "BR"}
	other := domain.NewRoute("TPE", "KIX")
	require.NoError(t, c.Put(ctx, route, date, domain.SearchFilters{}, payload()))
	require.NoError(t, c.Put(ctx, route, date, filtered, payload()[:1]))
	require.NoError(t, c.Put(ctx, other, date, domain.SearchFilters{}, payload()))

	n, err := c.Invalidate(ctx, route, date)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	_, err = c.Get(ctx, route, date, filtered)
	assert.ErrorIs(t, err, domain.ErrCacheMiss)
	_, err = c.Get(ctx, other, date, domain.SearchFilters{})
	assert.NoError(t, err)
}

func TestSearchCache_StoreErrorIsMiss(t *testing.T) {
	now := time.Now()
	store := newMemStore()
	store.err = errors.New("connection refused")
	c := newCache(store, &now)

	_, err := c.Get(context.Background(), route, date, domain.SearchFilters{})
	assert.ErrorIs(t, err, domain.ErrCacheMiss)
}

func TestSearchCache_CorruptEntryIsMiss(t *testing.T) {
	now := time.Now()
	store := newMemStore()
	c := newCache(store, &now)
	store.data[Key(route, date, domain.SearchFilters{})] = []byte("{not json")

	_, err := c.Get(context.Background(), route, date, domain.SearchFilters{})
	assert.ErrorIs(t, err, domain.ErrCacheMiss)
}

func TestKey(t *testing.T) {
	assert.Equal(t, "cache:search:TPE:NRT:2025-06-01:all", Key(route, date, domain.SearchFilters{}))

	a := Fingerprint(domain.SearchFilters{AirlineCode: "br", CabinClass: "economy"})
	b := Fingerprint(domain.SearchFilters{AirlineCode: "BR ", CabinClass: "ECONOMY"})
	assert.Equal(t, a, b)
	assert.Len(t, a, 16)
	assert.NotEqual(t, a, Fingerprint(domain.SearchFilters{AirlineCode: "BR", CabinClass: "ECONOMY", MaxPrice: 9000}))
}

func TestNewRedisCache(t *testing.T) {
	c := NewRedisCache(config.RedisConfig{Addr: "localhost:6379"})
	assert.NotNil(t, c)
	assert.Equal(t, "flag:x", flagKey("x"))
}
