// Package retry decides whether a failed ledger call is worth repeating and
// paces the repeats.
package retry

import (
	"context"
	"errors"
	"net"
	"strings"
	"time"

	"github.com/sanjulaonline/algorand-live-pool-Monitor/internal/circuitbreaker"
	"github.com/sanjulaonline/algorand-live-pool-Monitor/internal/ledger"
)

type Class string

const (
	ClassTerminal  Class = "terminal"
	ClassTransient Class = "transient"
)

// Decision is a classification plus a snake_case reason used in logs and
// error prefixes.
type Decision struct {
	Class  Class
	Reason string
}

func (d Decision) IsTransient() bool {
	return d.Class == ClassTransient
}

type marked struct {
	error
	decision Decision
}

func (m *marked) Unwrap() error { return m.error }

// Transient marks err as retryable under reason, overriding any rule below.
func Transient(reason string, err error) error {
	return mark(err, Decision{Class: ClassTransient, Reason: reason})
}

// Terminal marks err as not retryable under reason.
func Terminal(reason string, err error) error {
	return mark(err, Decision{Class: ClassTerminal, Reason: reason})
}

func mark(err error, d Decision) error {
	if err == nil {
		return nil
	}
	return &marked{error: err, decision: d}
}

type sentinelRule struct {
	target error
	Decision
}

// Checked in order; the first sentinel found in the chain wins.
var sentinelRules = []sentinelRule{
	{context.Canceled, Decision{ClassTerminal, "context_canceled"}},
	// A per-request deadline. Callers check their own context first.
	{context.DeadlineExceeded, Decision{ClassTransient, "context_deadline_exceeded"}},
	{circuitbreaker.ErrCircuitOpen, Decision{ClassTransient, "circuit_open"}},
	{ledger.ErrNotYetFinalized, Decision{ClassTransient, "not_yet_finalized"}},
	{ledger.ErrNotFound, Decision{ClassTransient, "not_found"}},
	{ledger.ErrUnavailable, Decision{ClassTransient, "unavailable"}},
	{ledger.ErrInvalidQuery, Decision{ClassTerminal, "invalid_query"}},
}

// Message fragments from errors that reach us unwrapped, e.g. from decoders
// and the net stack.
var (
	terminalFragments = []string{
		"decode block",
		"msgpack:",
		"invalid character",
		"unsupported transaction type",
	}
	transientFragments = []string{
		"timeout",
		"timed out",
		"temporar",
		"connection reset",
		"connection refused",
		"broken pipe",
		"too many requests",
		"server closed idle connection",
		"unexpected eof",
	}
)

func Classify(err error) Decision {
	if err == nil {
		return Decision{ClassTerminal, "nil_error"}
	}

	var m *marked
	if errors.As(err, &m) {
		return m.decision
	}
	for _, rule := range sentinelRules {
		if errors.Is(err, rule.target) {
			return rule.Decision
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return Decision{ClassTransient, "net_timeout"}
	}

	msg := strings.ToLower(err.Error())
	switch {
	case anyFragment(msg, terminalFragments):
		return Decision{ClassTerminal, "message_terminal"}
	case anyFragment(msg, transientFragments):
		return Decision{ClassTransient, "message_transient"}
	}
	return Decision{ClassTerminal, "unknown_terminal_default"}
}

func anyFragment(msg string, fragments []string) bool {
	for _, f := range fragments {
		if strings.Contains(msg, f) {
			return true
		}
	}
	return false
}

const (
	DefaultMaxAttempts = 4
	DefaultInitial     = 200 * time.Millisecond
	DefaultMax         = 3 * time.Second
)

// Backoff is a doubling delay schedule capped at Max. Zero fields take the
// package defaults.
type Backoff struct {
	MaxAttempts int
	Initial     time.Duration
	Max         time.Duration
	// SleepFn replaces the real timer in tests.
	SleepFn func(ctx context.Context, d time.Duration) error
}

func (b Backoff) Attempts() int {
	if b.MaxAttempts <= 0 {
		return DefaultMaxAttempts
	}
	return b.MaxAttempts
}

// Delay returns the wait after the given 1-based failed attempt.
func (b Backoff) Delay(attempt int) time.Duration {
	initial := cmpOr(b.Initial, DefaultInitial)
	ceiling := max(cmpOr(b.Max, DefaultMax), initial)

	d := initial
	for n := 1; n < attempt && d < ceiling; n++ {
		d *= 2
	}
	return min(d, ceiling)
}

func cmpOr(d, fallback time.Duration) time.Duration {
	if d <= 0 {
		return fallback
	}
	return d
}

// Sleep waits d or until ctx is done.
func (b Backoff) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	if b.SleepFn != nil {
		return b.SleepFn(ctx, d)
	}

	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
