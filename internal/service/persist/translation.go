package persist

import (
	"context"
	"strings"
	"sync"

	"github.com/Domenick1991/flightsync/internal/domain"
)

// TranslationCache maps airport and airline codes to display names.
// Readers see a consistent snapshot; writers swap in a new map.
type TranslationCache struct {
	mu       sync.RWMutex
	airports map[string]string
	airlines map[string]string
}

func NewTranslationCache() *TranslationCache {
	return &TranslationCache{
		airports: map[string]string{},
		airlines: map[string]string{},
	}
}

type TranslationLoader interface {
	LoadTranslations(ctx context.Context) (airports, airlines map[string]string, err error)
}

// Reload replaces the cache content with what the store holds.
func (c *TranslationCache) Reload(ctx context.Context, loader TranslationLoader) error {
	airports, airlines, err := loader.LoadTranslations(ctx)
	if err != nil {
		return err
	}
	ap := make(map[string]string, len(airports))
	for k, v := range airports {
		ap[strings.ToUpper(k)] = v
	}
	al := make(map[string]string, len(airlines))
	for k, v := range airlines {
		al[strings.ToUpper(k)] = v
	}

	c.mu.Lock()
	c.airports, c.airlines = ap, al
	c.mu.Unlock()
	return nil
}

func displayName(local, en string) string {
	if strings.TrimSpace(local) != "" {
		return local
	}
	return en
}

func (c *TranslationCache) PutAirports(airports []domain.NormalizedAirport) {
	if len(airports) == 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	next := make(map[string]string, len(c.airports)+len(airports))
	for k, v := range c.airports {
		next[k] = v
	}
	for _, a := range airports {
		if name := displayName(a.NameLocal, a.NameEN); name != "" && a.Code != "" {
			next[strings.ToUpper(a.Code)] = name
		}
	}
	c.airports = next
}

func (c *TranslationCache) PutAirlines(airlines []domain.NormalizedAirline) {
	if len(airlines) == 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	next := make(map[string]string, len(c.airlines)+len(airlines))
	for k, v := range c.airlines {
		next[k] = v
	}
	for _, a := range airlines {
		if name := displayName(a.NameLocal, a.NameEN); name != "" && a.Code != "" {
			next[strings.ToUpper(a.Code)] = name
		}
	}
	c.airlines = next
}

func (c *TranslationCache) AirportName(code string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	name, ok := c.airports[strings.ToUpper(code)]
	return name, ok
}

func (c *TranslationCache) AirlineName(code string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	name, ok := c.airlines[strings.ToUpper(code)]
	return name, ok
}

// Enrich fills display names from the cache, overriding upstream names.
func (c *TranslationCache) Enrich(flights []domain.NormalizedFlight) []domain.NormalizedFlight {
	c.mu.RLock()
	airports, airlines := c.airports, c.airlines
	c.mu.RUnlock()

	out := make([]domain.NormalizedFlight, len(flights))
	for i, f := range flights {
		if name, ok := airlines[strings.ToUpper(f.AirlineCode)]; ok {
			f.AirlineName = name
		}
		if name, ok := airports[strings.ToUpper(f.DepartureAirportCode)]; ok {
			f.DepartureAirportName = name
		}
		if name, ok := airports[strings.ToUpper(f.ArrivalAirportCode)]; ok {
			f.ArrivalAirportName = name
		}
		out[i] = f
	}
	return out
}

func (c *TranslationCache) Len() (airports, airlines int) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.airports), len(c.airlines)
}
