package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/sanjulaonline/algorand-live-pool-Monitor/internal/circuitbreaker"
	"github.com/sanjulaonline/algorand-live-pool-Monitor/internal/domain/model"
	"github.com/sanjulaonline/algorand-live-pool-Monitor/internal/ledger/ratelimit"
	"github.com/sanjulaonline/algorand-live-pool-Monitor/internal/metrics"
)

// Guard throttles calls to one ledger service and sheds them while the
// service is failing. Only ErrUnavailable counts as a service failure.
type Guard struct {
	service string
	limiter *ratelimit.Limiter
	breaker *circuitbreaker.Breaker
}

func NewGuard(service string, limiter *ratelimit.Limiter, breaker *circuitbreaker.Breaker) *Guard {
	return &Guard{service: service, limiter: limiter, breaker: breaker}
}

// NewBreaker returns a breaker that trips on ErrUnavailable only and
// publishes its state to the circuit breaker gauge.
func NewBreaker(service string, failureThreshold int, openTimeout time.Duration) *circuitbreaker.Breaker {
	metrics.CircuitBreakerState.WithLabelValues(service).Set(float64(circuitbreaker.StateClosed))
	return circuitbreaker.New(circuitbreaker.Config{
		FailureThreshold: failureThreshold,
		OpenTimeout:      openTimeout,
		IsFailure: func(err error) bool {
			return errors.Is(err, ErrUnavailable)
		},
		OnStateChange: func(_, to circuitbreaker.State) {
			metrics.CircuitBreakerState.WithLabelValues(service).Set(float64(to))
		},
	})
}

func (g *Guard) call(ctx context.Context, method string, fn func() error) error {
	if g.limiter != nil {
		if err := g.limiter.Wait(ctx); err != nil {
			return err
		}
	}
	start := time.Now()
	var err error
	if g.breaker != nil {
		err = g.breaker.Do(fn)
	} else {
		err = fn()
	}
	metrics.RPCLatency.WithLabelValues(g.service, method).Observe(time.Since(start).Seconds())
	metrics.RPCCallsTotal.WithLabelValues(g.service, method, Status(err)).Inc()
	return err
}

// Status maps a ledger error to a metrics label.
func Status(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, circuitbreaker.ErrCircuitOpen):
		return "circuit_open"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, ErrNotYetFinalized):
		return "not_yet_finalized"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrInvalidQuery):
		return "invalid_query"
	case errors.Is(err, ErrUnavailable):
		return "unavailable"
	default:
		return "error"
	}
}

type guardedNode struct {
	next  Node
	guard *Guard
}

// GuardNode wraps a Node so every call passes through g.
func GuardNode(next Node, g *Guard) Node {
	return &guardedNode{next: next, guard: g}
}

func (n *guardedNode) Tip(ctx context.Context) (model.Round, error) {
	var tip model.Round
	err := n.guard.call(ctx, "tip", func() error {
		var err error
		tip, err = n.next.Tip(ctx)
		return err
	})
	return tip, err
}

func (n *guardedNode) Round(ctx context.Context, round model.Round) ([]model.Transaction, error) {
	var txns []model.Transaction
	err := n.guard.call(ctx, "round", func() error {
		var err error
		txns, err = n.next.Round(ctx, round)
		return err
	})
	return txns, err
}

// WaitForRoundAfter bypasses the rate limiter: it is a long poll and the
// loop issues at most one at a time.
func (n *guardedNode) WaitForRoundAfter(ctx context.Context, round model.Round) (model.Round, error) {
	var last model.Round
	g := &Guard{service: n.guard.service, breaker: n.guard.breaker}
	err := g.call(ctx, "wait_for_round", func() error {
		var err error
		last, err = n.next.WaitForRoundAfter(ctx, round)
		return err
	})
	return last, err
}

type guardedIndex struct {
	next  Index
	guard *Guard
}

func GuardIndex(next Index, g *Guard) Index {
	return &guardedIndex{next: next, guard: g}
}

func (i *guardedIndex) SearchTransactions(ctx context.Context, q Query, next string) (*Page, error) {
	var page *Page
	err := i.guard.call(ctx, "search_transactions", func() error {
		var err error
		page, err = i.next.SearchTransactions(ctx, q, next)
		return err
	})
	return page, err
}
