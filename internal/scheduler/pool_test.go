package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Domenick1991/flightsync/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSyncer struct {
	delay    time.Duration
	fail     map[string]error
	panicOn  string
	inFlight atomic.Int32
	peak     atomic.Int32

	mu    sync.Mutex
	calls []string
}

func (f *fakeSyncer) enter() func() {
	n := f.inFlight.Add(1)
	for {
		p := f.peak.Load()
		if n <= p || f.peak.CompareAndSwap(p, n) {
			break
		}
	}
	return func() { f.inFlight.Add(-1) }
}

func (f *fakeSyncer) SyncRoute(ctx context.Context, route domain.Route, date time.Time) (domain.SyncResult, error) {
	defer f.enter()()
	key := route.String() + "@" + date.Format(domain.DateLayout)
	f.mu.Lock()
	f.calls = append(f.calls, key)
	f.mu.Unlock()

	if key == f.panicOn {
		panic("boom")
	}
	select {
	case <-time.After(f.delay):
	case <-ctx.Done():
		return domain.SyncResult{}, ctx.Err()
	}
	if err := f.fail[key]; err != nil {
		return domain.SyncResult{}, err
	}
	return domain.SyncResult{Route: route, Date: date.Format(domain.DateLayout), UpsertCounts: domain.UpsertCounts{Inserted: 1}}, nil
}

func (f *fakeSyncer) SyncReference(context.Context) (domain.SyncResult, error) {
	defer f.enter()()
	return domain.SyncResult{Message: "reference"}, nil
}

func day(s string) time.Time {
	t, _ := time.Parse(domain.DateLayout, s)
	return t
}

func TestRangeJobs(t *testing.T) {
	jobs := RangeJobs(domain.NewRoute("TPE", "NRT"), day("2025-06-30"), 3)
	require.Len(t, jobs, 3)
	assert.Equal(t, "TPE-NRT@2025-06-30", jobs[0].String())
	assert.Equal(t, "TPE-NRT@2025-07-01", jobs[1].String())
	assert.Equal(t, "TPE-NRT@2025-07-02", jobs[2].String())

	assert.Len(t, RangeJobs(domain.NewRoute("TPE", "NRT"), day("2025-06-30"), 0), 1)
}

func TestPopularJobs(t *testing.T) {
	routes := []domain.Route{{Departure: "tsa", Arrival: "khh"}, {Departure: "TPE", Arrival: "HKG"}}
	jobs := PopularJobs(routes, day("2025-06-01"), 1)
	require.Len(t, jobs, 4)
	assert.Equal(t, "TSA-KHH@2025-06-01", jobs[0].String())
	assert.Equal(t, "TSA-KHH@2025-06-02", jobs[1].String())
	assert.Equal(t, "TPE-HKG@2025-06-01", jobs[2].String())
}

func TestPool_RespectsWorkerLimit(t *testing.T) {
	s := &fakeSyncer{delay: 20 * time.Millisecond}
	p := NewPool(s, 2, nil)

	jobs := RangeJobs(domain.NewRoute("TPE", "NRT"), day("2025-06-01"), 8)
	out := p.Run(context.Background(), jobs)

	require.Len(t, out, 8)
	for i, o := range out {
		assert.NoError(t, o.Err)
		assert.Equal(t, jobs[i], o.Job)
		assert.Equal(t, jobs[i].Date.Format(domain.DateLayout), o.Result.Date)
	}
	assert.LessOrEqual(t, s.peak.Load(), int32(2))
}

func TestPool_LimitHoldsAcrossConcurrentRuns(t *testing.T) {
	s := &fakeSyncer{delay: 20 * time.Millisecond}
	p := NewPool(s, 2, nil)

	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out := p.SyncRange(context.Background(), domain.NewRoute("TPE", "NRT"), day("2025-06-01"), 4)
			for _, o := range out {
				assert.NoError(t, o.Err)
			}
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, s.peak.Load(), int32(2))
	assert.Len(t, s.calls, 12)
}

func TestPool_FailureDoesNotCancelSiblings(t *testing.T) {
	s := &fakeSyncer{
		fail:    map[string]error{"TPE-NRT@2025-06-02": &domain.AuthError{API: "domestic", Err: errors.New("401")}},
		panicOn: "TPE-NRT@2025-06-03",
	}
	p := NewPool(s, 4, nil)

	out := p.Run(context.Background(), RangeJobs(domain.NewRoute("TPE", "NRT"), day("2025-06-01"), 4))
	assert.NoError(t, out[0].Err)
	assert.True(t, domain.IsAuthError(out[1].Err))
	assert.ErrorContains(t, out[2].Err, "panicked")
	assert.NoError(t, out[3].Err)

	results, failed := Results(out)
	assert.Len(t, results, 2)
	assert.Equal(t, 2, failed)
}

func TestPool_SyncRange(t *testing.T) {
	s := &fakeSyncer{}
	out := NewPool(s, 3, nil).SyncRange(context.Background(), domain.NewRoute("TSA", "KHH"), day("2025-06-01"), 5)
	results, failed := Results(out)
	assert.Len(t, results, 5)
	assert.Zero(t, failed)
	assert.Len(t, s.calls, 5)
}

func TestPool_ReferenceJob(t *testing.T) {
	out := NewPool(&fakeSyncer{}, 1, nil).Run(context.Background(), []Job{{Kind: KindReference}})
	require.Len(t, out, 1)
	require.NoError(t, out[0].Err)
	assert.Equal(t, "reference", out[0].Result.Message)
}

func TestPool_CancelledContext(t *testing.T) {
	s := &fakeSyncer{delay: time.Second}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out := NewPool(s, 2, nil).Run(ctx, RangeJobs(domain.NewRoute("TPE", "NRT"), day("2025-06-01"), 3))
	for _, o := range out {
		assert.ErrorIs(t, o.Err, context.Canceled)
	}
	assert.Empty(t, s.calls)
}
