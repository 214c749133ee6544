package pipeline

import (
	"slices"
	"sync"
	"time"
)

// HealthStatus is the coarse health of a subscription as seen by operators.
type HealthStatus string

const (
	HealthStatusUnknown   HealthStatus = "UNKNOWN"
	HealthStatusHealthy   HealthStatus = "HEALTHY"
	HealthStatusDegraded  HealthStatus = "DEGRADED"
	HealthStatusUnhealthy HealthStatus = "UNHEALTHY"
	HealthStatusStopped   HealthStatus = "STOPPED"

	DefaultUnhealthyThreshold = 5

	// DefaultDegradedLatencyThreshold is the p95 batch latency above which a
	// healthy subscription is reported degraded.
	DefaultDegradedLatencyThreshold = 5 * time.Second

	latencyWindowSize = 10
)

// Health tracks consecutive batch failures and recent batch latencies of one
// subscription.
type Health struct {
	mu                       sync.RWMutex
	subscription             string
	status                   HealthStatus
	consecutiveFailures      int
	lastSuccessAt            *time.Time
	lastFailureAt            *time.Time
	lastError                string
	unhealthyThreshold       int
	recentLatencies          []time.Duration
	degradedLatencyThreshold time.Duration
}

// NewHealth returns a tracker that turns unhealthy after threshold
// consecutive failures (DefaultUnhealthyThreshold when <= 0).
func NewHealth(subscription string, threshold int) *Health {
	if threshold <= 0 {
		threshold = DefaultUnhealthyThreshold
	}
	return &Health{
		subscription:             subscription,
		status:                   HealthStatusUnknown,
		unhealthyThreshold:       threshold,
		recentLatencies:          make([]time.Duration, 0, latencyWindowSize),
		degradedLatencyThreshold: DefaultDegradedLatencyThreshold,
	}
}

func (h *Health) SetStatus(status HealthStatus) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.status = status
}

// RecordSuccess records a committed batch and its latency. It returns true
// when this success ends an unhealthy period.
func (h *Health) RecordSuccess(latency time.Duration) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	now := time.Now()
	wasUnhealthy := h.status == HealthStatusUnhealthy
	h.consecutiveFailures = 0
	h.lastSuccessAt = &now
	h.lastError = ""

	if len(h.recentLatencies) >= latencyWindowSize {
		h.recentLatencies = h.recentLatencies[1:]
	}
	h.recentLatencies = append(h.recentLatencies, latency)

	if h.latencyDegraded() {
		h.status = HealthStatusDegraded
	} else {
		h.status = HealthStatusHealthy
	}
	return wasUnhealthy
}

// RecordFailure returns true when the subscription turns unhealthy on this
// call.
func (h *Health) RecordFailure(err error) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	now := time.Now()
	h.consecutiveFailures++
	h.lastFailureAt = &now
	if err != nil {
		h.lastError = err.Error()
	}
	if h.consecutiveFailures >= h.unhealthyThreshold && h.status != HealthStatusUnhealthy {
		h.status = HealthStatusUnhealthy
		return true
	}
	return false
}

func (h *Health) ConsecutiveFailures() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.consecutiveFailures
}

// Must be called with mu held.
func (h *Health) latencyDegraded() bool {
	if len(h.recentLatencies) < 2 {
		return false
	}
	return h.p95() > h.degradedLatencyThreshold
}

// Must be called with mu held.
func (h *Health) p95() time.Duration {
	n := len(h.recentLatencies)
	if n == 0 {
		return 0
	}
	sorted := slices.Clone(h.recentLatencies)
	slices.Sort(sorted)
	idx := (95*n - 1) / 100
	return sorted[max(0, min(idx, n-1))]
}

func (h *Health) Snapshot() HealthSnapshot {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return HealthSnapshot{
		Subscription:        h.subscription,
		Status:              string(h.status),
		ConsecutiveFailures: h.consecutiveFailures,
		LastSuccessAt:       h.lastSuccessAt,
		LastFailureAt:       h.lastFailureAt,
		LastError:           h.lastError,
		P95BatchLatencyMS:   h.p95().Milliseconds(),
	}
}

// HealthSnapshot is a JSON-safe point-in-time view of Health.
type HealthSnapshot struct {
	Subscription        string     `json:"subscription"`
	Status              string     `json:"status"`
	ConsecutiveFailures int        `json:"consecutive_failures"`
	LastSuccessAt       *time.Time `json:"last_success_at,omitempty"`
	LastFailureAt       *time.Time `json:"last_failure_at,omitempty"`
	LastError           string     `json:"last_error,omitempty"`
	P95BatchLatencyMS   int64      `json:"p95_batch_latency_ms"`
}
