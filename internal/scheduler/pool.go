// Package scheduler runs independent sync jobs on a bounded set of workers.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/Domenick1991/flightsync/internal/domain"
	"github.com/Domenick1991/flightsync/internal/metrics"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

type JobKind string

const (
	KindRoute     JobKind = "route"
	KindReference JobKind = "reference"
)

type Job struct {
	Kind  JobKind
	Route domain.Route
	Date  time.Time
}

func (j Job) String() string {
	if j.Kind == KindReference {
		return string(KindReference)
	}
	return j.Route.String() + "@" + j.Date.Format(domain.DateLayout)
}

type Syncer interface {
	SyncRoute(ctx context.Context, route domain.Route, date time.Time) (domain.SyncResult, error)
	SyncReference(ctx context.Context) (domain.SyncResult, error)
}

// Outcome pairs a job with what the syncer returned for it.
type Outcome struct {
	Job    Job
	Result domain.SyncResult
	Err    error
}

// Pool bounds in-flight jobs across every concurrent Run call.
type Pool struct {
	syncer  Syncer
	workers int
	sem     *semaphore.Weighted
	log     *zap.Logger
}

func NewPool(syncer Syncer, workers int, log *zap.Logger) *Pool {
	if workers <= 0 {
		workers = 1
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Pool{syncer: syncer, workers: workers, sem: semaphore.NewWeighted(int64(workers)), log: log}
}

// Run executes every job with at most p.workers in flight and returns outcomes
// in job order. A failing job never cancels its siblings.
func (p *Pool) Run(ctx context.Context, jobs []Job) []Outcome {
	out := make([]Outcome, len(jobs))
	g := new(errgroup.Group)

	for i, job := range jobs {
		out[i].Job = job
		if err := p.sem.Acquire(ctx, 1); err != nil {
			out[i].Err = err
			continue
		}
		g.Go(func() error {
			defer p.sem.Release(1)
			metrics.WorkerQueueDepth.Inc()
			defer metrics.WorkerQueueDepth.Dec()
			out[i].Result, out[i].Err = p.runOne(ctx, job)
			return nil
		})
	}
	_ = g.Wait()
	return out
}

func (p *Pool) runOne(ctx context.Context, job Job) (res domain.SyncResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("sync job %s panicked: %v", job, r)
			p.log.Error("job panic", zap.String("job", job.String()), zap.Any("panic", r))
		}
	}()

	if err := ctx.Err(); err != nil {
		return res, err
	}
	switch job.Kind {
	case KindReference:
		res, err = p.syncer.SyncReference(ctx)
	default:
		res, err = p.syncer.SyncRoute(ctx, job.Route, job.Date)
	}
	if err != nil {
		p.log.Warn("job failed", zap.String("job", job.String()), zap.Error(err))
	}
	return res, err
}

// SyncRange syncs route for days consecutive days starting at from.
func (p *Pool) SyncRange(ctx context.Context, route domain.Route, from time.Time, days int) []Outcome {
	return p.Run(ctx, RangeJobs(route, from, days))
}

// RangeJobs builds one route job per day starting at from.
func RangeJobs(route domain.Route, from time.Time, days int) []Job {
	if days <= 0 {
		days = 1
	}
	jobs := make([]Job, 0, days)
	for d := 0; d < days; d++ {
		jobs = append(jobs, Job{Kind: KindRoute, Route: route, Date: from.AddDate(0, 0, d)})
	}
	return jobs
}

// PopularJobs expands configured routes over today and the following daysAhead days.
func PopularJobs(routes []domain.Route, today time.Time, daysAhead int) []Job {
	if daysAhead < 0 {
		daysAhead = 0
	}
	jobs := make([]Job, 0, len(routes)*(daysAhead+1))
	for _, r := range routes {
		jobs = append(jobs, RangeJobs(domain.NewRoute(r.Departure, r.Arrival), today, daysAhead+1)...)
	}
	return jobs
}

// Results drops the failed outcomes and reports how many there were.
func Results(outcomes []Outcome) ([]domain.SyncResult, int) {
	results := make([]domain.SyncResult, 0, len(outcomes))
	failed := 0
	for _, o := range outcomes {
		if o.Err != nil {
			failed++
			continue
		}
		results = append(results, o.Result)
	}
	return results, failed
}
