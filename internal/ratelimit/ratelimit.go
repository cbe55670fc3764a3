package ratelimit

import (
	"context"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

// DomainLimiter spaces out requests per destination host.
type DomainLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	every    time.Duration
	burst    int

	waits    int
	requests int
}

// NewDomainLimiter allows one request per host every interval, with burst
// requests in flight before throttling starts. A non-positive interval
// disables limiting.
func NewDomainLimiter(every time.Duration, burst int) *DomainLimiter {
	if burst <= 0 {
		burst = 1
	}
	return &DomainLimiter{
		limiters: make(map[string]*rate.Limiter),
		every:    every,
		burst:    burst,
	}
}

// Wait blocks until a request to rawURL's host may proceed or ctx ends.
func (dl *DomainLimiter) Wait(ctx context.Context, rawURL string) error {
	if dl == nil || dl.every <= 0 {
		return nil
	}
	host := Host(rawURL)

	dl.mu.Lock()
	lim, ok := dl.limiters[host]
	if !ok {
		lim = rate.NewLimiter(rate.Every(dl.every), dl.burst)
		dl.limiters[host] = lim
	}
	dl.requests++
	throttled := lim.Tokens() < 1
	if throttled {
		dl.waits++
	}
	dl.mu.Unlock()

	if throttled {
		log.Debug().Str("host", host).Msg("Throttling feed request")
	}
	return lim.Wait(ctx)
}

// GetStats returns request and throttle counters.
func (dl *DomainLimiter) GetStats() map[string]interface{} {
	dl.mu.Lock()
	defer dl.mu.Unlock()

	return map[string]interface{}{
		"hosts":     len(dl.limiters),
		"requests":  dl.requests,
		"throttled": dl.waits,
	}
}

// Host extracts a lower-cased host without the www. prefix.
func Host(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return "unknown"
	}
	return strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
}
