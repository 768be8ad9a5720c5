package reconcile

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/Domenick1991/flightsync/internal/domain"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type SourceAdapter interface {
	Source() domain.Source
	FetchFlights(ctx context.Context, departure, arrival string, date time.Time) ([]domain.NormalizedFlight, error)
	FetchAirports(ctx context.Context) ([]domain.NormalizedAirport, error)
	FetchAirlines(ctx context.Context) ([]domain.NormalizedAirline, error)
}

type Config struct {
	DomesticAirports []string
	TargetAirlines   []string
	MinResults       int
}

// Engine decides which upstreams to ask for a route and merges their answers.
type Engine struct {
	domestic      SourceAdapter
	international SourceAdapter
	domesticSet   domain.CodeSet
	allow         domain.CodeSet
	minResults    int
	log           *zap.Logger
}

func NewEngine(domestic, international SourceAdapter, cfg Config, log *zap.Logger) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	minResults := cfg.MinResults
	if minResults <= 0 {
		minResults = 3
	}
	return &Engine{
		domestic:      domestic,
		international: international,
		domesticSet:   domain.NewCodeSet(cfg.DomesticAirports),
		allow:         domain.NewCodeSet(cfg.TargetAirlines),
		minResults:    minResults,
		log:           log,
	}
}

type Result struct {
	Flights []domain.NormalizedFlight
	Sources []domain.Source
	Partial bool
	Message string
}

// IsDomesticRoute reports whether both airports are in the domestic set.
func (e *Engine) IsDomesticRoute(route domain.Route) bool {
	return e.domesticSet.IsDomesticRoute(route)
}

func (e *Engine) IsTargetAirline(code string) bool {
	return len(e.allow) == 0 || e.allow.Contains(code)
}

type fetchOutcome struct {
	source  domain.Source
	flights []domain.NormalizedFlight
	err     error
}

func (e *Engine) fetch(ctx context.Context, a SourceAdapter, route domain.Route, date time.Time) fetchOutcome {
	flights, err := a.FetchFlights(ctx, route.Departure, route.Arrival, date)
	out := fetchOutcome{source: a.Source(), err: err}
	if err != nil {
		e.log.Warn("source failed",
			zap.String("source", string(a.Source())),
			zap.String("route", route.String()),
			zap.Bool("auth", domain.IsAuthError(err)),
			zap.Error(err))
		return out
	}
	out.flights = FilterAirlines(flights, e.allow)
	if dropped := len(flights) - len(out.flights); dropped > 0 {
		e.log.Debug("dropped non-target carriers", zap.String("source", string(a.Source())), zap.Int("dropped", dropped))
	}
	return out
}

// SyncRoute fetches and reconciles the flights of route on date.
//
// Domestic routes ask the domestic source and fall back to the international
// one when it has nothing. Other routes ask the international source and
// supplement with the domestic view when fewer than MinResults come back.
// Only authentication failing on every queried source aborts; any other
// failure yields a partial result.
func (e *Engine) SyncRoute(ctx context.Context, route domain.Route, date time.Time) (Result, error) {
	primary, secondary := e.international, e.domestic
	domesticRoute := e.IsDomesticRoute(route)
	if domesticRoute {
		primary, secondary = e.domestic, e.international
	}

	outcomes := []fetchOutcome{e.fetch(ctx, primary, route, date)}
	first := outcomes[0]
	needMore := len(first.flights) == 0
	if !domesticRoute {
		needMore = len(first.flights) < e.minResults
	}
	if needMore {
		outcomes = append(outcomes, e.fetch(ctx, secondary, route, date))
	}

	var (
		res     Result
		batches [][]domain.NormalizedFlight
		errs    []error
		authErr int
	)
	for _, o := range outcomes {
		if o.err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", strings.ToLower(string(o.source)), o.err))
			if domain.IsAuthError(o.err) {
				authErr++
			}
			continue
		}
		res.Sources = append(res.Sources, o.source)
		batches = append(batches, o.flights)
	}

	if authErr == len(outcomes) {
		return res, fmt.Errorf("sync %s %s: %w", route, date.Format(domain.DateLayout), errors.Join(errs...))
	}

	res.Flights = Merge(batches...)
	res.Partial = len(errs) > 0
	res.Message = e.message(res, errs)
	return res, nil
}

func (e *Engine) message(res Result, errs []error) string {
	var sources []string
	for _, s := range res.Sources {
		sources = append(sources, strings.ToLower(string(s)))
	}
	msg := fmt.Sprintf("%d flights from [%s]", len(res.Flights), strings.Join(sources, ","))
	if len(errs) > 0 {
		msg += "; degraded: " + errors.Join(errs...).Error()
	}
	return msg
}

type ReferenceResult struct {
	Airports []domain.NormalizedAirport
	Airlines []domain.NormalizedAirline
	Partial  bool
}

// Reference fetches airports and airlines from both sources concurrently and
// merges them by code.
func (e *Engine) Reference(ctx context.Context) (ReferenceResult, error) {
	var (
		mu       sync.Mutex
		airports = make(map[domain.Source][]domain.NormalizedAirport)
		airlines = make(map[domain.Source][]domain.NormalizedAirline)
		errs     []error
		authErr  int
	)
	record := func(src domain.Source, what string, err error) {
		mu.Lock()
		defer mu.Unlock()
		errs = append(errs, fmt.Errorf("%s %s: %w", strings.ToLower(string(src)), what, err))
		if domain.IsAuthError(err) {
			authErr++
		}
	}

	var g errgroup.Group
	for _, a := range []SourceAdapter{e.domestic, e.international} {
		g.Go(func() error {
			aps, err := a.FetchAirports(ctx)
			if err != nil {
				record(a.Source(), "airports", err)
				return nil
			}
			mu.Lock()
			airports[a.Source()] = aps
			mu.Unlock()
			return nil
		})
		g.Go(func() error {
			als, err := a.FetchAirlines(ctx)
			if err != nil {
				record(a.Source(), "airlines", err)
				return nil
			}
			mu.Lock()
			airlines[a.Source()] = als
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	if authErr == 4 {
		return ReferenceResult{}, fmt.Errorf("sync reference: %w", errors.Join(errs...))
	}
	for _, err := range errs {
		e.log.Warn("reference source failed", zap.Error(err))
	}

	return ReferenceResult{
		Airports: MergeAirports(airports[domain.SourceDomestic], airports[domain.SourceInternational]),
		Airlines: MergeAirlines(airlines[domain.SourceDomestic], airlines[domain.SourceInternational]),
		Partial:  len(errs) > 0,
	}, nil
}
