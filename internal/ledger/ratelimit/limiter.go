package ratelimit

import (
	"context"
	"errors"
	"time"

	"golang.org/x/time/rate"

	"github.com/sanjulaonline/algorand-live-pool-Monitor/internal/metrics"
)

var errNoToken = errors.New("rate: cannot reserve token")

// Limiter is a token bucket shared by every call to one ledger service.
type Limiter struct {
	limiter *rate.Limiter
	service string
}

// NewLimiter allows rps calls per second with the given burst. A non-positive
// rps disables limiting.
func NewLimiter(rps float64, burst int, service string) *Limiter {
	limit := rate.Limit(rps)
	if rps <= 0 {
		limit = rate.Inf
	}
	if burst < 1 {
		burst = 1
	}
	return &Limiter{
		limiter: rate.NewLimiter(limit, burst),
		service: service,
	}
}

// Wait consumes exactly one token, blocking until it is available or ctx is
// done. A cancelled wait returns its token.
func (l *Limiter) Wait(ctx context.Context) error {
	r := l.limiter.Reserve()
	if !r.OK() {
		return errNoToken
	}
	delay := r.Delay()
	if delay <= 0 {
		return nil
	}
	metrics.RPCRateLimitWaits.WithLabelValues(l.service).Inc()

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		r.Cancel()
		return ctx.Err()
	}
}
