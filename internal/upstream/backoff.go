package upstream

import (
	"math/rand/v2"
	"net/http"
	"strconv"
	"time"

	"github.com/Domenick1991/flightsync/config"
)

// Policy is the retry policy of one upstream.
type Policy struct {
	MaxRetries     int
	BaseDelay      time.Duration
	MaxDelay       time.Duration
	RateLimitDelay time.Duration
	MaxJitter      time.Duration
}

func PolicyFromConfig(cfg config.UpstreamConfig) Policy {
	return Policy{
		MaxRetries:     cfg.MaxRetries,
		BaseDelay:      cfg.BaseDelay,
		MaxDelay:       cfg.MaxDelay,
		RateLimitDelay: cfg.RateLimitDelay,
		MaxJitter:      cfg.MaxJitter,
	}
}

// Backoff returns min(base*2^attempt, max) + jitter.
func (p Policy) Backoff(attempt int, jitter time.Duration) time.Duration {
	return capped(p.BaseDelay, attempt, p.MaxDelay) + jitter
}

// RateLimitBackoff honors a positive Retry-After, otherwise it grows from
// RateLimitDelay. Both are capped at the larger of MaxDelay and RateLimitDelay
// before jitter is added.
func (p Policy) RateLimitBackoff(attempt int, retryAfter, jitter time.Duration) time.Duration {
	ceiling := max(p.MaxDelay, p.RateLimitDelay)
	if retryAfter > 0 {
		return min(retryAfter, ceiling) + jitter
	}
	return capped(p.RateLimitDelay, attempt, ceiling) + jitter
}

func capped(base time.Duration, attempt int, ceiling time.Duration) time.Duration {
	if attempt > 30 {
		attempt = 30
	}
	d := base << uint(attempt)
	if d <= 0 || d > ceiling {
		return ceiling
	}
	return d
}

func randomJitter(maxJitter time.Duration) time.Duration {
	if maxJitter <= 0 {
		return 0
	}
	return rand.N(maxJitter)
}

// parseRetryAfter accepts both delta-seconds and HTTP-date forms.
func parseRetryAfter(v string, now time.Time) time.Duration {
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil {
		if secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := t.Sub(now); d > 0 {
			return d
		}
	}
	return 0
}
