package dispatcher

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	otelTrace "go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/sanjulaonline/algorand-live-pool-Monitor/internal/domain/event"
	"github.com/sanjulaonline/algorand-live-pool-Monitor/internal/domain/model"
	"github.com/sanjulaonline/algorand-live-pool-Monitor/internal/metrics"
	"github.com/sanjulaonline/algorand-live-pool-Monitor/internal/tracing"
)

const defaultHandlerTimeout = 10 * time.Second

const (
	outcomeOK      = "ok"
	outcomeError   = "error"
	outcomeTimeout = "timeout"
	outcomePanic   = "panic"
)

type Config struct {
	HandlerTimeout time.Duration
	// Workers > 1 runs filter buckets concurrently. Order within a bucket
	// is kept either way.
	Workers int
}

// Dispatcher delivers a MatchSet to the bound handlers: filters in
// registration order, then handlers in bind order, then transactions in
// ledger order.
type Dispatcher struct {
	registry *Registry
	cfg      Config
	logger   *slog.Logger
}

func New(registry *Registry, cfg Config, logger *slog.Logger) *Dispatcher {
	if cfg.HandlerTimeout <= 0 {
		cfg.HandlerTimeout = defaultHandlerTimeout
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		registry: registry,
		cfg:      cfg,
		logger:   logger.With("component", "dispatcher"),
	}
}

// Dispatch invokes every bound handler for every match. Handler failures are
// isolated; the only error returned is the context's, in which case the
// batch must not be committed.
func (d *Dispatcher) Dispatch(ctx context.Context, ms *event.MatchSet) (err error) {
	batchID := uuid.NewString()
	ctx, span := tracing.Tracer("dispatcher").Start(ctx, "dispatcher.Dispatch",
		otelTrace.WithAttributes(tracing.RoundRange(uint64(ms.FromRound), uint64(ms.ToRound))...),
		otelTrace.WithAttributes(
			attribute.String("batch_id", batchID),
			attribute.Int("matches", ms.Total()),
		),
	)
	defer func() { tracing.End(span, err) }()

	log := d.logger.With("batch_id", batchID)

	if d.cfg.Workers == 1 {
		for i := range ms.Buckets {
			if err := d.dispatchBucket(ctx, log, &ms.Buckets[i]); err != nil {
				return err
			}
		}
		return nil
	}

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(d.cfg.Workers)
	for i := range ms.Buckets {
		i := i
		g.Go(func() error {
			return d.dispatchBucket(gCtx, log, &ms.Buckets[i])
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

func (d *Dispatcher) dispatchBucket(ctx context.Context, log *slog.Logger, bucket *event.FilterMatches) error {
	if len(bucket.Transactions) == 0 {
		return nil
	}
	for _, b := range d.registry.bound(bucket.Filter) {
		for _, tx := range bucket.Transactions {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := d.invoke(ctx, log, bucket.Filter, b, tx); err != nil {
				return err
			}
		}
	}
	return nil
}

type result struct {
	err      error
	panicked bool
}

// invoke runs one handler under the per-invocation timeout. A handler that
// outlives its timeout is abandoned to finish against its cancelled context.
func (d *Dispatcher) invoke(ctx context.Context, log *slog.Logger, filter string, b binding, tx *model.Transaction) error {
	hctx, cancel := context.WithTimeout(ctx, d.cfg.HandlerTimeout)
	defer cancel()

	done := make(chan result, 1)
	start := time.Now()
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- result{err: fmt.Errorf("handler panic: %v\n%s", r, debug.Stack()), panicked: true}
			}
		}()
		done <- result{err: b.handler(hctx, tx, filter)}
	}()

	var outcome string
	select {
	case res := <-done:
		switch {
		case res.panicked:
			outcome = outcomePanic
			log.Error("handler panicked", "filter", filter, "handler", b.name, "tx_id", tx.ID, "error", res.err)
		case res.err != nil:
			outcome = outcomeError
			log.Warn("handler failed", "filter", filter, "handler", b.name, "tx_id", tx.ID, "error", res.err)
		default:
			outcome = outcomeOK
		}
	case <-hctx.Done():
		if err := ctx.Err(); err != nil {
			return err
		}
		outcome = outcomeTimeout
		log.Warn("handler timed out",
			"filter", filter,
			"handler", b.name,
			"tx_id", tx.ID,
			"timeout", d.cfg.HandlerTimeout,
		)
	}

	metrics.DispatcherInvocations.WithLabelValues(filter, b.name, outcome).Inc()
	metrics.DispatcherLatency.WithLabelValues(filter, b.name).Observe(time.Since(start).Seconds())
	return nil
}
