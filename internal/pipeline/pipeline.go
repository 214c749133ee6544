package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/looplab/fsm"
	"go.opentelemetry.io/otel/attribute"
	otelTrace "go.opentelemetry.io/otel/trace"

	"github.com/sanjulaonline/algorand-live-pool-Monitor/internal/alert"
	"github.com/sanjulaonline/algorand-live-pool-Monitor/internal/domain/event"
	"github.com/sanjulaonline/algorand-live-pool-Monitor/internal/domain/model"
	"github.com/sanjulaonline/algorand-live-pool-Monitor/internal/metrics"
	"github.com/sanjulaonline/algorand-live-pool-Monitor/internal/pipeline/coordinator"
	"github.com/sanjulaonline/algorand-live-pool-Monitor/internal/pipeline/fetcher"
	"github.com/sanjulaonline/algorand-live-pool-Monitor/internal/pipeline/retry"
	"github.com/sanjulaonline/algorand-live-pool-Monitor/internal/store"
	"github.com/sanjulaonline/algorand-live-pool-Monitor/internal/tracing"
)

type State string

const (
	StateInit     State = "INIT"
	StateCatchup  State = "CATCHUP"
	StateLivePoll State = "LIVE_POLL"
	StateStopped  State = "STOPPED"
	StateFailed   State = "FAILED"
)

var allStates = []State{StateInit, StateCatchup, StateLivePoll, StateStopped, StateFailed}

const (
	eventCatchup = "catchup"
	eventLive    = "live"
	eventStop    = "stop"
	eventFail    = "fail"
)

// ErrTooManyFailures stops the loop after MaxConsecutiveFailures failed
// batches in a row.
var ErrTooManyFailures = errors.New("too many consecutive batch failures")

const (
	defaultMaxRoundsToSync     = 50
	defaultPollInterval        = time.Second
	defaultProgressLogInterval = 100
	defaultBatchBackoffInitial = time.Second
	defaultBatchBackoffMax     = 30 * time.Second
	watermarkWriteTimeout      = 10 * time.Second
	alertTimeout               = 15 * time.Second
)

type Config struct {
	Subscription          string
	SyncBehaviour         model.SyncBehaviour
	MaxRoundsToSync       uint64
	WaitForBlockWhenAtTip bool
	PollInterval          time.Duration
	// BatchBackoff spaces out retries of a failed batch. Only Initial, Max
	// and SleepFn are used.
	BatchBackoff retry.Backoff
	// MaxConsecutiveFailures moves the loop to FAILED; 0 retries forever.
	MaxConsecutiveFailures int
	ProgressLogInterval    uint64
	UnhealthyThreshold     int
	Alerter                alert.Alerter
}

// RoundSource is the ledger side of the loop.
type RoundSource interface {
	Tip(ctx context.Context) (model.Round, error)
	WaitForRoundAfter(ctx context.Context, r model.Round) (model.Round, error)
	CanIndex() bool
	Fetch(ctx context.Context, from, to model.Round, strategy fetcher.Strategy) ([]event.RoundContents, error)
}

type Matcher interface {
	Match(ctx context.Context, rounds []event.RoundContents) (*event.MatchSet, error)
}

type Dispatcher interface {
	Dispatch(ctx context.Context, ms *event.MatchSet) error
}

// Pipeline is the subscription loop: it moves the watermark forward one
// fully dispatched batch at a time.
type Pipeline struct {
	cfg        Config
	source     RoundSource
	matcher    Matcher
	dispatcher Dispatcher
	store      store.WatermarkStore
	filters    []string
	health     *Health
	machine    *fsm.FSM
	logger     *slog.Logger

	mu        sync.RWMutex
	watermark model.Round
	tip       model.Round
	lastError string
	updatedAt time.Time
}

func New(
	cfg Config,
	source RoundSource,
	matcher Matcher,
	dispatcher Dispatcher,
	watermarks store.WatermarkStore,
	filters []string,
	logger *slog.Logger,
) *Pipeline {
	if cfg.MaxRoundsToSync == 0 {
		cfg.MaxRoundsToSync = defaultMaxRoundsToSync
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	if cfg.ProgressLogInterval == 0 {
		cfg.ProgressLogInterval = defaultProgressLogInterval
	}
	if cfg.BatchBackoff.Initial <= 0 {
		cfg.BatchBackoff.Initial = defaultBatchBackoffInitial
	}
	if cfg.BatchBackoff.Max <= 0 {
		cfg.BatchBackoff.Max = defaultBatchBackoffMax
	}
	if cfg.SyncBehaviour == "" {
		cfg.SyncBehaviour = model.SyncSkipNewest
	}

	p := &Pipeline{
		cfg:        cfg,
		source:     source,
		matcher:    matcher,
		dispatcher: dispatcher,
		store:      watermarks,
		filters:    filters,
		health:     NewHealth(cfg.Subscription, cfg.UnhealthyThreshold),
		logger:     logger.With("component", "pipeline", "subscription", cfg.Subscription),
	}
	running := []string{string(StateInit), string(StateCatchup), string(StateLivePoll)}
	p.machine = fsm.NewFSM(
		string(StateInit),
		fsm.Events{
			{Name: eventCatchup, Src: running, Dst: string(StateCatchup)},
			{Name: eventLive, Src: running, Dst: string(StateLivePoll)},
			{Name: eventStop, Src: running, Dst: string(StateStopped)},
			{Name: eventFail, Src: running, Dst: string(StateFailed)},
		},
		fsm.Callbacks{
			"enter_state": func(e *fsm.Event) {
				p.logger.Info("subscription state changed", "from", e.Src, "to", e.Dst)
				p.exportState(State(e.Dst))
			},
		},
	)
	p.exportState(StateInit)
	return p
}

func (p *Pipeline) State() State {
	return State(p.machine.Current())
}

func (p *Pipeline) Health() *Health { return p.health }

func (p *Pipeline) Watermark() model.Round {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.watermark
}

func (p *Pipeline) transition(to State) {
	if p.State() == to {
		return
	}
	var name string
	switch to {
	case StateCatchup:
		name = eventCatchup
	case StateLivePoll:
		name = eventLive
	case StateStopped:
		name = eventStop
	case StateFailed:
		name = eventFail
	default:
		return
	}
	if err := p.machine.Event(name); err != nil {
		p.logger.Warn("invalid state transition", "from", p.State(), "to", to, "error", err)
	}
}

func (p *Pipeline) exportState(current State) {
	for _, s := range allStates {
		v := 0.0
		if s == current {
			v = 1
		}
		metrics.SubscriptionState.WithLabelValues(p.cfg.Subscription, string(s)).Set(v)
	}
}

// Run drives the loop until ctx is cancelled (STOPPED, returns ctx.Err()) or
// an unrecoverable error occurs (FAILED, returns the error).
func (p *Pipeline) Run(ctx context.Context) error {
	wm, err := p.store.Get(ctx, p.cfg.Subscription)
	if err != nil {
		if ctx.Err() != nil {
			p.stop()
			return ctx.Err()
		}
		return p.fail(ctx, fmt.Errorf("load watermark: %w", err))
	}
	p.setWatermark(wm)
	p.logger.Info("subscription started",
		"watermark", wm,
		"sync_behaviour", p.cfg.SyncBehaviour,
		"max_rounds_to_sync", p.cfg.MaxRoundsToSync,
		"filters", p.filters,
	)

	for {
		if err := ctx.Err(); err != nil {
			p.stop()
			return err
		}

		advanced, err := p.cycle(ctx)
		if err != nil {
			if ctx.Err() != nil {
				p.stop()
				return ctx.Err()
			}
			if stopErr := p.recordFailure(ctx, err); stopErr != nil {
				return stopErr
			}
			continue
		}
		if !advanced {
			p.waitAtTip(ctx)
		}
	}
}

// cycle runs tip → plan → fetch → match → dispatch → persist once. It
// reports whether the watermark moved.
func (p *Pipeline) cycle(ctx context.Context) (bool, error) {
	tip, err := p.source.Tip(ctx)
	if err != nil {
		return false, &stageError{stage: "tip", err: err}
	}
	watermark := p.Watermark()
	p.observeTip(watermark, tip)

	rng, ok := coordinator.Plan(watermark, tip, p.cfg.SyncBehaviour, p.cfg.MaxRoundsToSync, p.source.CanIndex())
	if !ok {
		p.transition(StateLivePoll)
		return false, nil
	}
	if coordinator.CatchingUp(watermark, tip, p.cfg.MaxRoundsToSync) {
		p.transition(StateCatchup)
	} else {
		p.transition(StateLivePoll)
	}

	if rng.Skipped > 0 {
		metrics.SubscriptionRoundsSkipped.WithLabelValues(p.cfg.Subscription).Add(float64(rng.Skipped))
		p.logger.Warn("skipping rounds to stay at the newest",
			"watermark", watermark,
			"tip", tip,
			"skipped", rng.Skipped,
			"resume_from", rng.From,
		)
		p.sendAlert(ctx, alert.Alert{
			Type:    alert.AlertTypeSkipped,
			Title:   "Rounds skipped",
			Message: fmt.Sprintf("%d rounds between %d and %d were not processed", rng.Skipped, watermark+1, rng.From-1),
			Fields: map[string]string{
				"watermark": strconv.FormatUint(uint64(watermark), 10),
				"tip":       strconv.FormatUint(uint64(tip), 10),
			},
		})
	}

	if err := p.processBatch(ctx, rng); err != nil {
		return false, err
	}
	return true, nil
}

type stageError struct {
	stage string
	err   error
}

func (e *stageError) Error() string { return e.stage + ": " + e.err.Error() }
func (e *stageError) Unwrap() error { return e.err }

func stageOf(err error) string {
	var se *stageError
	if errors.As(err, &se) {
		return se.stage
	}
	return "unknown"
}

func (p *Pipeline) processBatch(ctx context.Context, rng coordinator.Range) (err error) {
	ctx, span := tracing.Tracer("pipeline").Start(ctx, "pipeline.processBatch",
		otelTrace.WithAttributes(tracing.RoundRange(uint64(rng.From), uint64(rng.To))...),
		otelTrace.WithAttributes(
			attribute.String("subscription", p.cfg.Subscription),
			attribute.String("strategy", rng.Strategy.String()),
		),
	)
	defer func() { tracing.End(span, err) }()
	start := time.Now()

	rounds, err := p.source.Fetch(ctx, rng.From, rng.To, rng.Strategy)
	if err != nil {
		return &stageError{stage: "fetch", err: err}
	}
	matches, err := p.matcher.Match(ctx, rounds)
	if err != nil {
		return &stageError{stage: "match", err: err}
	}
	if err := p.dispatcher.Dispatch(ctx, matches); err != nil {
		return &stageError{stage: "dispatch", err: err}
	}

	// Every handler has run; a cancellation now must not lose the commit.
	setCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), watermarkWriteTimeout)
	defer cancel()
	if err := p.store.Set(setCtx, p.cfg.Subscription, rng.To); err != nil {
		return &stageError{stage: "persist", err: err}
	}

	latency := time.Since(start)
	previous := p.Watermark()
	p.setWatermark(rng.To)
	metrics.SubscriptionBatches.WithLabelValues(p.cfg.Subscription).Inc()
	metrics.SubscriptionBatchLatency.WithLabelValues(p.cfg.Subscription).Observe(latency.Seconds())

	if p.health.RecordSuccess(latency) {
		p.logger.Info("subscription recovered", "watermark", rng.To)
		p.sendAlert(ctx, alert.Alert{
			Type:    alert.AlertTypeRecovery,
			Title:   "Subscription recovered",
			Message: fmt.Sprintf("batch committed at round %d", rng.To),
		})
	}

	p.logger.Debug("batch committed",
		"from", rng.From,
		"to", rng.To,
		"strategy", rng.Strategy,
		"transactions", event.CountTransactions(rounds),
		"matches", matches.Total(),
		"duration", latency,
	)
	interval := model.Round(p.cfg.ProgressLogInterval)
	if previous/interval != rng.To/interval {
		p.mu.RLock()
		tip := p.tip
		p.mu.RUnlock()
		p.logger.Info("progress",
			"watermark", rng.To,
			"tip", tip,
			"lag", lag(rng.To, tip),
			"state", p.State(),
		)
	}
	return nil
}

// recordFailure handles a failed cycle and sleeps the batch backoff. It
// returns a non-nil error when the loop must stop.
func (p *Pipeline) recordFailure(ctx context.Context, err error) error {
	stage := stageOf(err)
	metrics.SubscriptionBatchFailures.WithLabelValues(p.cfg.Subscription, stage).Inc()

	p.mu.Lock()
	p.lastError = err.Error()
	p.mu.Unlock()

	if p.health.RecordFailure(err) {
		p.sendAlert(ctx, alert.Alert{
			Type:    alert.AlertTypeUnhealthy,
			Title:   "Subscription unhealthy",
			Message: err.Error(),
			Fields: map[string]string{
				"stage":     stage,
				"watermark": strconv.FormatUint(uint64(p.Watermark()), 10),
			},
		})
	}

	failures := p.health.ConsecutiveFailures()
	if p.cfg.MaxConsecutiveFailures > 0 && failures >= p.cfg.MaxConsecutiveFailures {
		return p.fail(ctx, fmt.Errorf("%w: %d in a row, last at stage %s: %w", ErrTooManyFailures, failures, stage, err))
	}

	delay := p.cfg.BatchBackoff.Delay(failures)
	p.logger.Warn("batch failed; retrying the same range",
		"stage", stage,
		"watermark", p.Watermark(),
		"consecutive_failures", failures,
		"backoff", delay,
		"error", err,
	)
	if sleepErr := p.cfg.BatchBackoff.Sleep(ctx, delay); sleepErr != nil {
		p.stop()
		return sleepErr
	}
	return nil
}

// waitAtTip blocks until the next round may exist.
func (p *Pipeline) waitAtTip(ctx context.Context) {
	if !p.cfg.WaitForBlockWhenAtTip {
		_ = p.cfg.BatchBackoff.Sleep(ctx, p.cfg.PollInterval)
		return
	}

	waitCtx, cancel := context.WithTimeout(ctx, p.cfg.PollInterval)
	defer cancel()
	if _, err := p.source.WaitForRoundAfter(waitCtx, p.Watermark()); err != nil {
		if ctx.Err() != nil || errors.Is(err, context.DeadlineExceeded) {
			return
		}
		p.logger.Debug("wait for round failed", "error", err)
		_ = p.cfg.BatchBackoff.Sleep(ctx, p.cfg.PollInterval)
	}
}

func (p *Pipeline) stop() {
	p.transition(StateStopped)
	p.health.SetStatus(HealthStatusStopped)
	p.logger.Info("subscription stopped", "watermark", p.Watermark())
}

func (p *Pipeline) fail(ctx context.Context, err error) error {
	p.mu.Lock()
	p.lastError = err.Error()
	p.mu.Unlock()

	p.transition(StateFailed)
	p.health.SetStatus(HealthStatusUnhealthy)
	p.logger.Error("subscription failed", "watermark", p.Watermark(), "error", err)
	p.sendAlert(ctx, alert.Alert{
		Type:    alert.AlertTypeFailed,
		Title:   "Subscription failed",
		Message: err.Error(),
	})
	return err
}

func (p *Pipeline) setWatermark(r model.Round) {
	p.mu.Lock()
	p.watermark = r
	p.updatedAt = time.Now()
	tip := p.tip
	p.mu.Unlock()

	metrics.SubscriptionWatermark.WithLabelValues(p.cfg.Subscription).Set(float64(r))
	metrics.SubscriptionLag.WithLabelValues(p.cfg.Subscription).Set(float64(lag(r, tip)))
}

func (p *Pipeline) observeTip(watermark, tip model.Round) {
	p.mu.Lock()
	p.tip = tip
	p.mu.Unlock()

	metrics.SubscriptionTip.WithLabelValues(p.cfg.Subscription).Set(float64(tip))
	metrics.SubscriptionLag.WithLabelValues(p.cfg.Subscription).Set(float64(lag(watermark, tip)))
}

func lag(watermark, tip model.Round) uint64 {
	if tip <= watermark {
		return 0
	}
	return uint64(tip - watermark)
}

// sendAlert delivers in the background so a slow channel never holds up the
// loop.
func (p *Pipeline) sendAlert(ctx context.Context, a alert.Alert) {
	if p.cfg.Alerter == nil {
		return
	}
	a.Subscription = p.cfg.Subscription
	go func() {
		sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), alertTimeout)
		defer cancel()
		if err := p.cfg.Alerter.Send(sendCtx, a); err != nil {
			p.logger.Warn("alert delivery failed", "type", a.Type, "error", err)
		}
	}()
}

// Status is the JSON view served on /status.
type Status struct {
	Subscription        string         `json:"subscription"`
	State               State          `json:"state"`
	SyncBehaviour       string         `json:"sync_behaviour"`
	Watermark           uint64         `json:"watermark"`
	Tip                 uint64         `json:"tip"`
	Lag                 uint64         `json:"lag"`
	ConsecutiveFailures int            `json:"consecutive_failures"`
	LastError           string         `json:"last_error,omitempty"`
	Filters             []string       `json:"filters"`
	UpdatedAt           time.Time      `json:"updated_at"`
	Health              HealthSnapshot `json:"health"`
}

func (p *Pipeline) Status() Status {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return Status{
		Subscription:        p.cfg.Subscription,
		State:               p.State(),
		SyncBehaviour:       p.cfg.SyncBehaviour.String(),
		Watermark:           uint64(p.watermark),
		Tip:                 uint64(p.tip),
		Lag:                 lag(p.watermark, p.tip),
		ConsecutiveFailures: p.health.ConsecutiveFailures(),
		LastError:           p.lastError,
		Filters:             p.filters,
		UpdatedAt:           p.updatedAt,
		Health:              p.health.Snapshot(),
	}
}

// StatusSnapshot satisfies admin.StatusProvider.
func (p *Pipeline) StatusSnapshot() any {
	return p.Status()
}

// Healthy is false once the loop has failed or stopped, or while batches
// keep failing past the unhealthy threshold.
func (p *Pipeline) Healthy() bool {
	switch p.State() {
	case StateFailed, StateStopped:
		return false
	}
	return p.health.Snapshot().Status != string(HealthStatusUnhealthy)
}
