package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Subscription stage counters and histograms, partitioned by subscription name
// where a stage runs per subscription.

var (
	// Subscription loop
	SubscriptionState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "monitor",
		Subsystem: "subscription",
		Name:      "state",
		Help:      "1 for the current loop state, 0 otherwise",
	}, []string{"subscription", "state"})

	SubscriptionWatermark = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "monitor",
		Subsystem: "subscription",
		Name:      "watermark_round",
		Help:      "Last fully dispatched and persisted round",
	}, []string{"subscription"})

	SubscriptionTip = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "monitor",
		Subsystem: "subscription",
		Name:      "tip_round",
		Help:      "Latest finalized round reported by the node",
	}, []string{"subscription"})

	SubscriptionLag = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "monitor",
		Subsystem: "subscription",
		Name:      "lag_rounds",
		Help:      "Rounds between watermark and tip",
	}, []string{"subscription"})

	SubscriptionBatches = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "monitor",
		Subsystem: "subscription",
		Name:      "batches_total",
		Help:      "Total batches fully dispatched and persisted",
	}, []string{"subscription"})

	SubscriptionBatchFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "monitor",
		Subsystem: "subscription",
		Name:      "batch_failures_total",
		Help:      "Total aborted batches by failing stage",
	}, []string{"subscription", "stage"})

	SubscriptionRoundsSkipped = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "monitor",
		Subsystem: "subscription",
		Name:      "rounds_skipped_total",
		Help:      "Rounds skipped by skip-sync-newest",
	}, []string{"subscription"})

	SubscriptionBatchLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "monitor",
		Subsystem: "subscription",
		Name:      "batch_duration_seconds",
		Help:      "Fetch, match, dispatch and persist duration per batch",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
	}, []string{"subscription"})

	// Fetcher
	FetcherRoundsFetched = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "monitor",
		Subsystem: "fetcher",
		Name:      "rounds_fetched_total",
		Help:      "Total rounds delivered by the round fetcher",
	}, []string{"strategy"})

	FetcherTxFetched = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "monitor",
		Subsystem: "fetcher",
		Name:      "transactions_fetched_total",
		Help:      "Total root transactions fetched",
	}, []string{"strategy"})

	FetcherRetries = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "monitor",
		Subsystem: "fetcher",
		Name:      "retries_total",
		Help:      "Total transient fetch retries",
	}, []string{"stage"})

	FetcherErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "monitor",
		Subsystem: "fetcher",
		Name:      "errors_total",
		Help:      "Total fetch errors after retry exhaustion",
	}, []string{"strategy"})

	FetcherLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "monitor",
		Subsystem: "fetcher",
		Name:      "fetch_duration_seconds",
		Help:      "Round range fetch duration",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	}, []string{"strategy"})

	FetcherCacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "monitor",
		Subsystem: "fetcher",
		Name:      "round_cache_hits_total",
		Help:      "Rounds served from the round cache",
	})

	FetcherCacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "monitor",
		Subsystem: "fetcher",
		Name:      "round_cache_misses_total",
		Help:      "Rounds fetched from the node after a cache miss",
	})

	FetcherIndexPages = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "monitor",
		Subsystem: "fetcher",
		Name:      "index_pages_total",
		Help:      "Indexer result pages consumed",
	})

	// Matcher
	MatcherMatches = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "monitor",
		Subsystem: "matcher",
		Name:      "matches_total",
		Help:      "Total transactions matched per filter",
	}, []string{"filter"})

	MatcherLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "monitor",
		Subsystem: "matcher",
		Name:      "match_duration_seconds",
		Help:      "Matching duration per batch",
		Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
	})

	// Dispatcher
	DispatcherInvocations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "monitor",
		Subsystem: "dispatcher",
		Name:      "invocations_total",
		Help:      "Handler invocations by outcome (ok, error, panic, timeout)",
	}, []string{"filter", "handler", "outcome"})

	DispatcherLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "monitor",
		Subsystem: "dispatcher",
		Name:      "handler_duration_seconds",
		Help:      "Handler invocation duration",
		Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 10},
	}, []string{"filter", "handler"})

	HandlerDuplicatesSkipped = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "monitor",
		Subsystem: "handlers",
		Name:      "duplicates_skipped_total",
		Help:      "Redelivered transactions dropped by idempotent handlers",
	}, []string{"filter"})

	// Ledger RPC
	RPCCallsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "monitor",
		Subsystem: "rpc",
		Name:      "calls_total",
		Help:      "Ledger API calls by service, method and status",
	}, []string{"service", "method", "status"})

	RPCLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "monitor",
		Subsystem: "rpc",
		Name:      "call_duration_seconds",
		Help:      "Ledger API call duration",
		Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	}, []string{"service", "method"})

	RPCRateLimitWaits = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "monitor",
		Subsystem: "rpc",
		Name:      "rate_limit_waits_total",
		Help:      "Calls delayed by the client-side rate limiter",
	}, []string{"service"})

	CircuitBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "monitor",
		Subsystem: "rpc",
		Name:      "circuit_breaker_state",
		Help:      "Circuit breaker state (0 closed, 1 open, 2 half-open)",
	}, []string{"service"})

	// Watermark store
	WatermarkStoreOps = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "monitor",
		Subsystem: "watermark_store",
		Name:      "operations_total",
		Help:      "Watermark store operations by backend, op and status",
	}, []string{"backend", "op", "status"})

	// Alerts
	AlertsSentTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "monitor",
		Subsystem: "alert",
		Name:      "sent_total",
		Help:      "Alerts delivered per channel and type",
	}, []string{"channel", "type"})

	AlertsCooldownSkipped = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "monitor",
		Subsystem: "alert",
		Name:      "cooldown_skipped_total",
		Help:      "Alerts suppressed by cooldown per channel and type",
	}, []string{"channel", "type"})
)

// StoreStatus maps an error to the status label of WatermarkStoreOps.
func StoreStatus(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
