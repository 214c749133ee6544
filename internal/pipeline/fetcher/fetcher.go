package fetcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	otelTrace "go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/sanjulaonline/algorand-live-pool-Monitor/internal/cache"
	"github.com/sanjulaonline/algorand-live-pool-Monitor/internal/domain/event"
	"github.com/sanjulaonline/algorand-live-pool-Monitor/internal/domain/model"
	"github.com/sanjulaonline/algorand-live-pool-Monitor/internal/ledger"
	"github.com/sanjulaonline/algorand-live-pool-Monitor/internal/metrics"
	"github.com/sanjulaonline/algorand-live-pool-Monitor/internal/pipeline/retry"
	"github.com/sanjulaonline/algorand-live-pool-Monitor/internal/tracing"
)

// ErrInvalidRange is returned for an empty range or one wider than MaxBatch.
var ErrInvalidRange = errors.New("invalid round range")

type Strategy string

const (
	StrategySequential Strategy = "sequential"
	StrategyIndexed    Strategy = "indexed"
)

func (s Strategy) String() string {
	return string(s)
}

const (
	defaultConcurrency   = 4
	defaultPageSize      = 1000
	defaultCacheCapacity = 256
	defaultCacheTTL      = 2 * time.Minute
)

type Config struct {
	// MaxBatch bounds the number of rounds per Fetch; 0 means unbounded.
	MaxBatch      int
	Concurrency   int
	PageSize      int
	Retry         retry.Backoff
	CacheCapacity int
	CacheTTL      time.Duration
}

// Fetcher returns the contents of a contiguous round range, either by
// replaying every block from the node or by querying the index per filter.
type Fetcher struct {
	node    ledger.Node
	index   ledger.Index
	filters *model.FilterSet
	cfg     Config
	rounds  *cache.LRU[model.Round, []model.Transaction]
	logger  *slog.Logger
}

// New builds a Fetcher. index may be nil, in which case indexed fetches fall
// back to sequential replay.
func New(node ledger.Node, index ledger.Index, filters *model.FilterSet, cfg Config, logger *slog.Logger) *Fetcher {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = defaultConcurrency
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = defaultPageSize
	}
	if cfg.CacheCapacity <= 0 {
		cfg.CacheCapacity = defaultCacheCapacity
	}
	if cfg.CacheTTL == 0 {
		cfg.CacheTTL = defaultCacheTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Fetcher{
		node:    node,
		index:   index,
		filters: filters,
		cfg:     cfg,
		rounds:  cache.NewLRU[model.Round, []model.Transaction](cfg.CacheCapacity, cfg.CacheTTL),
		logger:  logger.With("component", "fetcher"),
	}
}

// CanIndex reports whether an indexed fetch can serve every registered
// filter without false negatives. Catch-all and note-prefix filters cannot be
// expressed as index queries.
func (f *Fetcher) CanIndex() bool {
	if f.index == nil || f.filters == nil || f.filters.Len() == 0 {
		return false
	}
	for _, nf := range f.filters.All() {
		if nf.Filter.IsCatchAll() || nf.Filter.NotePrefix != nil {
			return false
		}
	}
	return true
}

// Tip returns the node's latest round, retrying transient failures.
func (f *Fetcher) Tip(ctx context.Context) (model.Round, error) {
	return withRetry(ctx, f, "fetcher.tip", func(ctx context.Context) (model.Round, error) {
		return f.node.Tip(ctx)
	})
}

// WaitForRoundAfter blocks on the node until a round after r exists. It is
// not retried; the caller polls again.
func (f *Fetcher) WaitForRoundAfter(ctx context.Context, r model.Round) (model.Round, error) {
	return f.node.WaitForRoundAfter(ctx, r)
}

// Fetch returns one RoundContents per round in [from, to], ascending.
func (f *Fetcher) Fetch(ctx context.Context, from, to model.Round, strategy Strategy) (_ []event.RoundContents, err error) {
	if to < from {
		return nil, fmt.Errorf("%w: from=%d to=%d", ErrInvalidRange, from, to)
	}
	if f.cfg.MaxBatch > 0 && uint64(to-from)+1 > uint64(f.cfg.MaxBatch) {
		return nil, fmt.Errorf("%w: %d rounds exceeds max batch %d", ErrInvalidRange, uint64(to-from)+1, f.cfg.MaxBatch)
	}
	if strategy == StrategyIndexed && !f.CanIndex() {
		strategy = StrategySequential
	}

	ctx, span := tracing.Tracer("fetcher").Start(ctx, "fetcher.Fetch",
		otelTrace.WithAttributes(tracing.RoundRange(uint64(from), uint64(to))...),
		otelTrace.WithAttributes(attribute.String("strategy", strategy.String())),
	)
	start := time.Now()
	defer func() {
		metrics.FetcherLatency.WithLabelValues(strategy.String()).Observe(time.Since(start).Seconds())
		if err != nil {
			metrics.FetcherErrors.WithLabelValues(strategy.String()).Inc()
		}
		tracing.End(span, err)
	}()

	var rounds []event.RoundContents
	switch strategy {
	case StrategyIndexed:
		rounds, err = f.fetchIndexed(ctx, from, to)
	default:
		rounds, err = f.fetchSequential(ctx, from, to)
	}
	if err != nil {
		return nil, err
	}

	metrics.FetcherRoundsFetched.WithLabelValues(strategy.String()).Add(float64(len(rounds)))
	metrics.FetcherTxFetched.WithLabelValues(strategy.String()).Add(float64(event.CountTransactions(rounds)))
	f.logger.Debug("rounds fetched",
		"from", from,
		"to", to,
		"strategy", strategy,
		"tx_count", event.CountTransactions(rounds),
	)
	return rounds, nil
}

func (f *Fetcher) fetchSequential(ctx context.Context, from, to model.Round) ([]event.RoundContents, error) {
	out := make([]event.RoundContents, int(to-from)+1)

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(f.cfg.Concurrency)
	for i := range out {
		i := i
		r := from + model.Round(i)
		g.Go(func() error {
			txns, err := f.fetchRound(gCtx, r)
			if err != nil {
				return fmt.Errorf("round %d: %w", r, err)
			}
			out[i] = event.RoundContents{Round: r, Transactions: txns}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (f *Fetcher) fetchRound(ctx context.Context, r model.Round) ([]model.Transaction, error) {
	if txns, ok := f.rounds.Get(r); ok {
		metrics.FetcherCacheHits.Inc()
		return txns, nil
	}
	metrics.FetcherCacheMisses.Inc()

	txns, err := withRetry(ctx, f, "fetcher.round", func(ctx context.Context) ([]model.Transaction, error) {
		return f.node.Round(ctx, r)
	})
	if err != nil {
		return nil, err
	}
	f.rounds.Put(r, txns)
	return txns, nil
}

// fetchIndexed runs one paginated query per (filter, allow-listed id) and
// merges the results into every round of the range.
func (f *Fetcher) fetchIndexed(ctx context.Context, from, to model.Round) ([]event.RoundContents, error) {
	var (
		mu   sync.Mutex
		seen = make(map[string]model.Transaction)
	)

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(f.cfg.Concurrency)
	for _, nf := range f.filters.All() {
		for _, q := range queriesFor(nf.Filter, from, to, f.cfg.PageSize) {
			q := q
			filterName := nf.Name
			g.Go(func() error {
				txns, err := f.searchAll(gCtx, q, to)
				if err != nil {
					return fmt.Errorf("filter %s: %w", filterName, err)
				}
				mu.Lock()
				for _, tx := range txns {
					seen[tx.ID] = tx
				}
				mu.Unlock()
				return nil
			})
		}
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	merged := make([]model.Transaction, 0, len(seen))
	for _, tx := range seen {
		if tx.ConfirmedRound < from || tx.ConfirmedRound > to {
			continue
		}
		merged = append(merged, tx)
	}
	sort.Slice(merged, func(i, j int) bool {
		if merged[i].ConfirmedRound != merged[j].ConfirmedRound {
			return merged[i].ConfirmedRound < merged[j].ConfirmedRound
		}
		return merged[i].IntraRoundOffset < merged[j].IntraRoundOffset
	})

	out := make([]event.RoundContents, int(to-from)+1)
	for i := range out {
		out[i].Round = from + model.Round(i)
	}
	for _, tx := range merged {
		rc := &out[tx.ConfirmedRound-from]
		rc.Transactions = append(rc.Transactions, tx)
	}
	return out, nil
}

func (f *Fetcher) searchAll(ctx context.Context, q ledger.Query, to model.Round) ([]model.Transaction, error) {
	var (
		all  []model.Transaction
		next string
	)
	for {
		page, err := withRetry(ctx, f, "fetcher.index_page", func(ctx context.Context) (*ledger.Page, error) {
			page, err := f.index.SearchTransactions(ctx, q, next)
			if err != nil {
				return nil, err
			}
			// An index that has not ingested the whole range would report
			// its missing rounds as empty.
			if page.CurrentRound > 0 && page.CurrentRound < to {
				return nil, retry.Transient("index_behind", fmt.Errorf("index at round %d behind %d", page.CurrentRound, to))
			}
			return page, nil
		})
		if err != nil {
			return nil, err
		}
		metrics.FetcherIndexPages.Inc()
		all = append(all, page.Transactions...)
		if page.NextToken == "" || page.NextToken == next {
			return all, nil
		}
		next = page.NextToken
	}
}

// queriesFor expands a filter's allow-lists into index queries. Predicates
// the index cannot express are left to the matcher.
func queriesFor(filter model.Filter, from, to model.Round, limit int) []ledger.Query {
	base := ledger.Query{
		MinRound:  from,
		MaxRound:  to,
		Type:      filter.Type,
		MinAmount: filter.MinAmount,
		Limit:     limit,
	}

	appIDs := filter.ApplicationID
	if len(appIDs) == 0 {
		appIDs = []uint64{0}
	}
	assetIDs := filter.AssetID
	if len(assetIDs) == 0 {
		assetIDs = []uint64{0}
	}

	queries := make([]ledger.Query, 0, len(appIDs)*len(assetIDs))
	for _, app := range appIDs {
		for _, asset := range assetIDs {
			q := base
			q.ApplicationID = app
			q.AssetID = asset
			queries = append(queries, q)
		}
	}
	return queries
}

// withRetry calls fn until it succeeds, fails terminally, or the backoff
// schedule is exhausted.
func withRetry[T any](ctx context.Context, f *Fetcher, stage string, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	attempts := f.cfg.Retry.Attempts()

	var lastErr error
	lastDecision := retry.Decision{
		Class:  retry.ClassTerminal,
		Reason: "unset",
	}
	for attempt := 1; attempt <= attempts; attempt++ {
		v, err := fn(ctx)
		if err == nil {
			return v, nil
		}
		lastErr = err
		lastDecision = retry.Classify(err)

		if ctx.Err() != nil {
			return zero, ctx.Err()
		}
		if !lastDecision.IsTransient() {
			return zero, fmt.Errorf("terminal_failure stage=%s attempt=%d reason=%s: %w", stage, attempt, lastDecision.Reason, err)
		}
		if attempt == attempts {
			break
		}

		metrics.FetcherRetries.WithLabelValues(stage).Inc()
		f.logger.Warn("ledger call failed; retrying",
			"stage", stage,
			"classification", lastDecision.Class,
			"classification_reason", lastDecision.Reason,
			"attempt", attempt,
			"error", err,
		)
		if sleepErr := f.cfg.Retry.Sleep(ctx, f.cfg.Retry.Delay(attempt)); sleepErr != nil {
			return zero, sleepErr
		}
	}

	return zero, fmt.Errorf("transient_recovery_exhausted stage=%s attempts=%d reason=%s: %w", stage, attempts, lastDecision.Reason, lastErr)
}
