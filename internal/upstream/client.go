package upstream

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/Domenick1991/flightsync/config"
	"github.com/Domenick1991/flightsync/internal/domain"
	"github.com/Domenick1991/flightsync/internal/metrics"
	"github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const maxErrorBody = 512

type Request struct {
	Method string
	URL    string
	Query  url.Values
	Header http.Header
	Body   []byte
}

type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

func (r *Response) Decode(v any) error {
	if err := json.Unmarshal(r.Body, v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// Client performs HTTP calls against one upstream with rate limiting,
// a circuit breaker and exponential backoff.
type Client struct {
	api     string
	http    *http.Client
	policy  Policy
	timeout time.Duration
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker[*Response]
	log     *zap.Logger

	jitter func(time.Duration) time.Duration
	sleep  func(context.Context, time.Duration) error
	now    func() time.Time
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithSleep replaces the wait between attempts.
func WithSleep(fn func(context.Context, time.Duration) error) Option {
	return func(c *Client) { c.sleep = fn }
}

func WithJitter(fn func(time.Duration) time.Duration) Option {
	return func(c *Client) { c.jitter = fn }
}

func NewClient(api string, cfg config.UpstreamConfig, log *zap.Logger, opts ...Option) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	c := &Client{
		api:     api,
		http:    &http.Client{},
		policy:  PolicyFromConfig(cfg),
		timeout: cfg.RequestTimeout,
		log:     log.With(zap.String("api", api)),
		jitter:  randomJitter,
		sleep:   sleepCtx,
		now:     time.Now,
	}
	if cfg.RequestsPerSecond > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), max(cfg.Burst, 1))
	}
	c.breaker = gobreaker.NewCircuitBreaker[*Response](gobreaker.Settings{
		Name:        api,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 10
		},
		IsSuccessful: func(err error) bool {
			var rl *domain.RateLimitError
			return err == nil || domain.IsClientError(err) || errors.As(err, &rl)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			metrics.BreakerState.WithLabelValues(name).Set(float64(to))
			c.log.Warn("circuit breaker state change", zap.String("from", from.String()), zap.String("to", to.String()))
		},
	})
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) API() string { return c.api }

func (c *Client) Get(ctx context.Context, rawURL string, query url.Values, header http.Header) (*Response, error) {
	return c.Do(ctx, Request{Method: http.MethodGet, URL: rawURL, Query: query, Header: header})
}

// Do runs the request until it succeeds, hits a permanent 4xx, or retries are exhausted.
// Exhaustion and network failures surface as *domain.UpstreamError, permanent 4xx as *domain.ClientError.
func (c *Client) Do(ctx context.Context, req Request) (*Response, error) {
	var (
		lastErr    error
		lastStatus int
		attempts   int
	)

	for attempt := 0; attempt <= c.policy.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, c.exhausted(lastStatus, attempts, err)
		}
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return nil, c.exhausted(lastStatus, attempts, err)
			}
		}

		attempts++
		resp, err := c.breaker.Execute(func() (*Response, error) {
			return c.attempt(ctx, req)
		})
		if err == nil {
			metrics.UpstreamRequests.WithLabelValues(c.api, "ok").Inc()
			return resp, nil
		}

		var (
			ce *domain.ClientError
			rl *domain.RateLimitError
		)
		switch {
		case errors.As(err, &ce):
			metrics.UpstreamRequests.WithLabelValues(c.api, "client_error").Inc()
			return nil, err
		case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
			metrics.UpstreamRequests.WithLabelValues(c.api, "failed").Inc()
			return nil, c.exhausted(lastStatus, attempts, err)
		case ctx.Err() != nil:
			metrics.UpstreamRequests.WithLabelValues(c.api, "failed").Inc()
			return nil, c.exhausted(lastStatus, attempts, ctx.Err())
		}

		lastErr = err
		if attempt == c.policy.MaxRetries {
			break
		}

		var delay time.Duration
		if errors.As(err, &rl) {
			lastStatus = http.StatusTooManyRequests
			delay = c.policy.RateLimitBackoff(attempt, rl.RetryAfter, c.jitter(c.policy.MaxJitter))
			metrics.UpstreamRequests.WithLabelValues(c.api, "rate_limited").Inc()
		} else {
			var se *statusError
			if errors.As(err, &se) {
				lastStatus = se.status
			}
			delay = c.policy.Backoff(attempt, c.jitter(c.policy.MaxJitter))
			metrics.UpstreamRequests.WithLabelValues(c.api, "retry").Inc()
		}

		c.log.Debug("retrying upstream call",
			zap.String("url", req.URL),
			zap.Int("attempt", attempt+1),
			zap.Duration("delay", delay),
			zap.Error(err))

		if err := c.sleep(ctx, delay); err != nil {
			return nil, c.exhausted(lastStatus, attempts, err)
		}
	}

	metrics.UpstreamRequests.WithLabelValues(c.api, "failed").Inc()
	c.log.Warn("upstream retries exhausted", zap.String("url", req.URL), zap.Int("attempts", attempts), zap.Error(lastErr))
	return nil, c.exhausted(lastStatus, attempts, lastErr)
}

type statusError struct {
	status int
	body   string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("status %d: %s", e.status, e.body)
}

func (c *Client) attempt(ctx context.Context, req Request) (*Response, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	target := req.URL
	if len(req.Query) > 0 {
		target += "?" + req.Query.Encode()
	}
	var body io.Reader = http.NoBody
	if req.Body != nil {
		body = bytes.NewReader(req.Body)
	}
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, &domain.ClientError{API: c.api, Body: err.Error()}
	}
	for k, vs := range req.Header {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}
	if httpReq.Header.Get("Accept") == "" {
		httpReq.Header.Set("Accept", "application/json")
	}

	start := time.Now()
	resp, err := c.http.Do(httpReq)
	metrics.UpstreamDuration.WithLabelValues(c.api).Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, &domain.RateLimitError{API: c.api, RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After"), c.now())}
	case resp.StatusCode >= 500:
		return nil, &statusError{status: resp.StatusCode, body: truncate(data)}
	case resp.StatusCode >= 400:
		return nil, &domain.ClientError{API: c.api, StatusCode: resp.StatusCode, Body: truncate(data)}
	}
	return &Response{StatusCode: resp.StatusCode, Header: resp.Header, Body: data}, nil
}

func (c *Client) exhausted(status, attempts int, err error) error {
	return &domain.UpstreamError{API: c.api, StatusCode: status, Attempts: attempts, Err: err}
}

func truncate(b []byte) string {
	if len(b) > maxErrorBody {
		b = b[:maxErrorBody]
	}
	return string(b)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
