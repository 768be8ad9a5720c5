package flights

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Domenick1991/flightsync/internal/cache"
	"github.com/Domenick1991/flightsync/internal/domain"
	"github.com/Domenick1991/flightsync/internal/logger"
	"github.com/Domenick1991/flightsync/internal/metrics"
	"github.com/Domenick1991/flightsync/internal/service/persist"
	"github.com/Domenick1991/flightsync/internal/service/reconcile"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

type FlightUseCase interface {
	Search(ctx context.Context, route domain.Route, date time.Time, filters domain.SearchFilters) ([]domain.NormalizedFlight, error)
	SyncRoute(ctx context.Context, route domain.Route, date time.Time) (domain.SyncResult, error)
	SyncReference(ctx context.Context) (domain.SyncResult, error)
}

type Reconciler interface {
	SyncRoute(ctx context.Context, route domain.Route, date time.Time) (reconcile.Result, error)
	Reference(ctx context.Context) (reconcile.ReferenceResult, error)
}

type Persister interface {
	UpsertFlights(ctx context.Context, flights []domain.NormalizedFlight) domain.UpsertCounts
	UpsertReference(ctx context.Context, airports []domain.NormalizedAirport, airlines []domain.NormalizedAirline) domain.UpsertCounts
	Translations() *persist.TranslationCache
}

type FlightReader interface {
	ListByRoute(ctx context.Context, route domain.Route, date time.Time) ([]domain.NormalizedFlight, error)
}

type SearchCache interface {
	Get(ctx context.Context, route domain.Route, date time.Time, filters domain.SearchFilters) ([]domain.NormalizedFlight, error)
	Put(ctx context.Context, route domain.Route, date time.Time, filters domain.SearchFilters, flights []domain.NormalizedFlight) error
	Invalidate(ctx context.Context, route domain.Route, date time.Time) (int, error)
}

type EventPublisher interface {
	PublishSyncCompleted(ctx context.Context, res domain.SyncResult) error
}

type FlightService struct {
	engine     Reconciler
	persist    Persister
	reader     FlightReader
	cache      SearchCache
	events     EventPublisher
	jobTimeout time.Duration
	sf         singleflight.Group
	now        func() time.Time
	log        *zap.Logger
}

type Option func(*FlightService)

func WithEvents(p EventPublisher) Option {
	return func(s *FlightService) { s.events = p }
}

func WithJobTimeout(d time.Duration) Option {
	return func(s *FlightService) {
		if d > 0 {
			s.jobTimeout = d
		}
	}
}

func NewFlightService(engine Reconciler, persister Persister, reader FlightReader, cache SearchCache, log *zap.Logger, opts ...Option) *FlightService {
	if log == nil {
		log = zap.NewNop()
	}
	s := &FlightService{
		engine:     engine,
		persist:    persister,
		reader:     reader,
		cache:      cache,
		jobTimeout: 60 * time.Second,
		now:        time.Now,
		log:        log,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SyncRoute runs fetch, reconcile, upsert and cache invalidation for one route and day.
// The job deadline bounds the upstream phase only; records already fetched are still written.
func (s *FlightService) SyncRoute(ctx context.Context, route domain.Route, date time.Time) (domain.SyncResult, error) {
	res := domain.SyncResult{
		JobID:   uuid.NewString(),
		Route:   route,
		Date:    date.Format(domain.DateLayout),
		Started: s.now(),
	}
	log := logger.ForJob(s.log, res.JobID, route.String(), res.Date)

	fetchCtx, cancel := context.WithTimeout(ctx, s.jobTimeout)
	rec, err := s.engine.SyncRoute(fetchCtx, route, date)
	cancel()
	if err != nil {
		res.Finished = s.now()
		res.Message = err.Error()
		metrics.SyncJobs.WithLabelValues("route", "failed").Inc()
		log.Error("sync aborted", zap.Error(err))
		s.publish(ctx, res)
		return res, err
	}

	res.Sources = rec.Sources
	res.Partial = rec.Partial
	res.UpsertCounts = s.persist.UpsertFlights(ctx, rec.Flights)

	if res.Changed() && s.cache != nil {
		if n, err := s.cache.Invalidate(ctx, route, date); err != nil {
			log.Warn("cache invalidation failed", zap.Error(err))
		} else {
			log.Debug("cache invalidated", zap.Int("keys", n))
		}
	}

	res.Finished = s.now()
	res.Message = fmt.Sprintf("%s; inserted=%d updated=%d unchanged=%d skipped=%d errored=%d",
		rec.Message, res.Inserted, res.Updated, res.Unchanged, res.Skipped, res.Errored)

	result := "ok"
	if res.Partial || res.Errored > 0 {
		result = "partial"
	}
	metrics.SyncJobs.WithLabelValues("route", result).Inc()
	metrics.SyncJobDuration.WithLabelValues("route").Observe(res.Finished.Sub(res.Started).Seconds())
	log.Info("sync finished",
		zap.Int("inserted", res.Inserted),
		zap.Int("updated", res.Updated),
		zap.Int("unchanged", res.Unchanged),
		zap.Int("skipped", res.Skipped),
		zap.Int("errored", res.Errored),
		zap.Bool("partial", res.Partial))

	s.publish(ctx, res)
	return res, nil
}

// SyncReference refreshes airports and airlines from both upstreams.
func (s *FlightService) SyncReference(ctx context.Context) (domain.SyncResult, error) {
	res := domain.SyncResult{JobID: uuid.NewString(), Started: s.now()}

	fetchCtx, cancel := context.WithTimeout(ctx, s.jobTimeout)
	ref, err := s.engine.Reference(fetchCtx)
	cancel()
	if err != nil {
		res.Finished = s.now()
		res.Message = err.Error()
		metrics.SyncJobs.WithLabelValues("reference", "failed").Inc()
		return res, err
	}

	res.Partial = ref.Partial
	res.UpsertCounts = s.persist.UpsertReference(ctx, ref.Airports, ref.Airlines)
	res.Finished = s.now()
	res.Message = fmt.Sprintf("%d airports, %d airlines", len(ref.Airports), len(ref.Airlines))
	metrics.SyncJobs.WithLabelValues("reference", "ok").Inc()
	metrics.SyncJobDuration.WithLabelValues("reference").Observe(res.Finished.Sub(res.Started).Seconds())
	s.log.Info("reference sync finished", zap.String("job_id", res.JobID), zap.String("message", res.Message), zap.Bool("partial", res.Partial))
	return res, nil
}

// Search answers from the cache when possible. On a miss it reads the store,
// syncing the route first when the store has nothing for that day.
func (s *FlightService) Search(ctx context.Context, route domain.Route, date time.Time, filters domain.SearchFilters) ([]domain.NormalizedFlight, error) {
	if s.cache != nil {
		if cached, err := s.cache.Get(ctx, route, date, filters); err == nil {
			return cached, nil
		}
	}

	ch := s.sf.DoChan(cache.Key(route, date, filters), func() (any, error) {
		// Shared by every waiter on this key, so it must outlive the caller that started it.
		loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*s.jobTimeout)
		defer cancel()
		return s.load(loadCtx, route, date, filters)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.([]domain.NormalizedFlight), nil
	}
}

func (s *FlightService) load(ctx context.Context, route domain.Route, date time.Time, filters domain.SearchFilters) ([]domain.NormalizedFlight, error) {
	flights, err := s.reader.ListByRoute(ctx, route, date)
	if err != nil {
		return nil, fmt.Errorf("read flights: %w", err)
	}
	if len(flights) == 0 {
		if _, err := s.SyncRoute(ctx, route, date); err != nil {
			return nil, err
		}
		if flights, err = s.reader.ListByRoute(ctx, route, date); err != nil {
			return nil, fmt.Errorf("read flights: %w", err)
		}
	}

	result := filters.Apply(s.persist.Translations().Enrich(flights))
	if s.cache != nil {
		if err := s.cache.Put(ctx, route, date, filters, result); err != nil {
			s.log.Warn("cache write failed", zap.String("route", route.String()), zap.Error(err))
		}
	}
	return result, nil
}

func (s *FlightService) publish(ctx context.Context, res domain.SyncResult) {
	if s.events == nil {
		return
	}
	if err := s.events.PublishSyncCompleted(ctx, res); err != nil && !errors.Is(err, context.Canceled) {
		s.log.Warn("publish sync event failed", zap.String("job_id", res.JobID), zap.Error(err))
	}
}

var _ FlightUseCase = (*FlightService)(nil)
