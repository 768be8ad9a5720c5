package persist

import (
	"context"
	"strings"

	"github.com/Domenick1991/flightsync/internal/domain"
	"github.com/Domenick1991/flightsync/internal/metrics"
	"go.uber.org/zap"
)

// Store writes one record per call in its own transaction.
type Store interface {
	UpsertFlight(ctx context.Context, f domain.NormalizedFlight) (domain.UpsertOutcome, error)
	UpsertAirport(ctx context.Context, a domain.NormalizedAirport) (domain.UpsertOutcome, error)
	UpsertAirline(ctx context.Context, a domain.NormalizedAirline) (domain.UpsertOutcome, error)
	TranslationLoader
}

// Sync upserts normalized records by natural key and keeps the translation cache current.
type Sync struct {
	store        Store
	translations *TranslationCache
	log          *zap.Logger
}

func NewSync(store Store, translations *TranslationCache, log *zap.Logger) *Sync {
	if log == nil {
		log = zap.NewNop()
	}
	if translations == nil {
		translations = NewTranslationCache()
	}
	return &Sync{store: store, translations: translations, log: log}
}

func (s *Sync) Translations() *TranslationCache { return s.translations }

// LoadTranslations primes the translation cache from the store.
func (s *Sync) LoadTranslations(ctx context.Context) error {
	return s.translations.Reload(ctx, s.store)
}

type counter struct {
	domain.UpsertCounts
}

func (c *counter) record(outcome domain.UpsertOutcome) {
	switch outcome {
	case domain.OutcomeInserted:
		c.Inserted++
	case domain.OutcomeUpdated:
		c.Updated++
	default:
		c.Unchanged++
	}
}

// UpsertFlights writes each flight independently. A record lacking required
// fields is skipped; a failed write is counted as errored and the batch goes on.
func (s *Sync) UpsertFlights(ctx context.Context, flights []domain.NormalizedFlight) domain.UpsertCounts {
	var c counter
	var names []domain.NormalizedAirline

	for _, f := range flights {
		f.FlightNumber = strings.ToUpper(f.FlightNumber)
		if missing := f.MissingFields(); len(missing) > 0 {
			c.Skipped++
			verr := &domain.ValidationError{Record: f.FlightNumber, Fields: missing}
			s.log.Debug("skipping flight", zap.Error(verr))
			continue
		}

		outcome, err := s.store.UpsertFlight(ctx, f)
		if err != nil {
			c.Errored++
			perr := &domain.PersistenceError{Record: f.Key().String(), Err: err}
			s.log.Warn("flight upsert failed", zap.Error(perr))
			continue
		}
		c.record(outcome)

		if f.AirlineName != "" {
			if _, ok := s.translations.AirlineName(f.AirlineCode); !ok {
				names = append(names, domain.NormalizedAirline{Code: f.AirlineCode, NameEN: f.AirlineName})
			}
		}
	}

	s.translations.PutAirlines(names)
	metrics.RecordCounts(c.Inserted, c.Updated, c.Unchanged, c.Skipped, c.Errored)
	s.log.Info("flights upserted",
		zap.Int("inserted", c.Inserted),
		zap.Int("updated", c.Updated),
		zap.Int("unchanged", c.Unchanged),
		zap.Int("skipped", c.Skipped),
		zap.Int("errored", c.Errored))
	return c.UpsertCounts
}

// UpsertReference writes airports and airlines by code and refreshes translations.
func (s *Sync) UpsertReference(ctx context.Context, airports []domain.NormalizedAirport, airlines []domain.NormalizedAirline) domain.UpsertCounts {
	var c counter

	written := make([]domain.NormalizedAirport, 0, len(airports))
	for _, a := range airports {
		a.Code = strings.ToUpper(strings.TrimSpace(a.Code))
		if len(a.Code) != 3 {
			c.Skipped++
			continue
		}
		outcome, err := s.store.UpsertAirport(ctx, a)
		if err != nil {
			c.Errored++
			s.log.Warn("airport upsert failed", zap.Error(&domain.PersistenceError{Record: a.Code, Err: err}))
			continue
		}
		c.record(outcome)
		written = append(written, a)
	}

	writtenAirlines := make([]domain.NormalizedAirline, 0, len(airlines))
	for _, a := range airlines {
		a.Code = strings.ToUpper(strings.TrimSpace(a.Code))
		if a.Code == "" {
			c.Skipped++
			continue
		}
		outcome, err := s.store.UpsertAirline(ctx, a)
		if err != nil {
			c.Errored++
			s.log.Warn("airline upsert failed", zap.Error(&domain.PersistenceError{Record: a.Code, Err: err}))
			continue
		}
		c.record(outcome)
		writtenAirlines = append(writtenAirlines, a)
	}

	s.translations.PutAirports(written)
	s.translations.PutAirlines(writtenAirlines)
	metrics.RecordCounts(c.Inserted, c.Updated, c.Unchanged, c.Skipped, c.Errored)
	return c.UpsertCounts
}
