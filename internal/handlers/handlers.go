// Package handlers holds the named transaction handlers that filter bindings
// refer to from configuration.
package handlers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/sanjulaonline/algorand-live-pool-Monitor/internal/cache"
	"github.com/sanjulaonline/algorand-live-pool-Monitor/internal/domain/model"
	"github.com/sanjulaonline/algorand-live-pool-Monitor/internal/metrics"
	"github.com/sanjulaonline/algorand-live-pool-Monitor/internal/pipeline/dispatcher"
)

var ErrUnknownHandler = errors.New("unknown handler")

const (
	TinymanApp        = "tinyman_app"
	PactApp           = "pact_app"
	AssetTransfer     = "asset_transfer"
	AlgoTransfer      = "algo_transfer"
	NotedTransaction  = "noted_transaction"
	TrackStats        = "track_stats"
	microAlgosPerAlgo = 1_000_000

	defaultStatsInterval = 20
	defaultSeenCapacity  = 100_000
	defaultSeenTTL       = time.Hour
)

// KnownAssets names the assets the asset_transfer handler reports by symbol.
var KnownAssets = map[uint64]string{
	31566704:  "USDC",
	312769:    "USDT",
	386192725: "goBTC",
	386195940: "goETH",
}

type Options struct {
	// StatsInterval is how many matches track_stats counts between log lines.
	StatsInterval int
	// Idempotent wraps every handler with a seen-set of (filter, txid).
	Idempotent   bool
	SeenCapacity int
	SeenTTL      time.Duration
}

// Catalog resolves handler names to handlers. Each Lookup returns a fresh
// handler, so stateful handlers such as track_stats count per binding and
// idempotent handlers deduplicate per binding.
type Catalog struct {
	opts     Options
	logger   *slog.Logger
	seen     *cache.ShardedLRU[struct{}]
	bindings atomic.Uint64
	makers   map[string]func() dispatcher.Handler
}

func NewCatalog(logger *slog.Logger, opts Options) *Catalog {
	if opts.StatsInterval <= 0 {
		opts.StatsInterval = defaultStatsInterval
	}
	if opts.SeenCapacity <= 0 {
		opts.SeenCapacity = defaultSeenCapacity
	}
	if opts.SeenTTL <= 0 {
		opts.SeenTTL = defaultSeenTTL
	}
	logger = logger.With("component", "handlers")

	c := &Catalog{opts: opts, logger: logger}
	if opts.Idempotent {
		c.seen = cache.NewShardedLRU[struct{}](opts.SeenCapacity, opts.SeenTTL, 0)
	}
	c.makers = map[string]func() dispatcher.Handler{
		TinymanApp:       func() dispatcher.Handler { return appCallHandler(logger, "tinyman") },
		PactApp:          func() dispatcher.Handler { return appCallHandler(logger, "pact") },
		AssetTransfer:    func() dispatcher.Handler { return assetTransferHandler(logger) },
		AlgoTransfer:     func() dispatcher.Handler { return algoTransferHandler(logger) },
		NotedTransaction: func() dispatcher.Handler { return notedTransactionHandler(logger) },
		TrackStats:       func() dispatcher.Handler { return NewStats(logger, opts.StatsInterval).Handle },
	}
	return c
}

func (c *Catalog) Lookup(name string) (dispatcher.Handler, error) {
	mk, ok := c.makers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q (known: %s)", ErrUnknownHandler, name, strings.Join(c.Names(), ", "))
	}
	h := mk()
	if c.seen != nil {
		h = Idempotent(fmt.Sprintf("%s#%d", name, c.bindings.Add(1)), h, c.seen)
	}
	return h, nil
}

func (c *Catalog) Names() []string {
	names := make([]string, 0, len(c.makers))
	for name := range c.makers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Idempotent drops deliveries of a (filter, txid) pair that the binding
// called name already handled successfully. A failed invocation is forgotten
// so a redelivery retries it. seen may be shared between bindings with
// distinct names.
func Idempotent(name string, h dispatcher.Handler, seen cache.SeenSet[string]) dispatcher.Handler {
	return func(ctx context.Context, tx *model.Transaction, filter string) error {
		key := name + "|" + filter + "|" + tx.ID
		if !seen.PutIfAbsent(key, struct{}{}) {
			metrics.HandlerDuplicatesSkipped.WithLabelValues(filter).Inc()
			return nil
		}
		if err := h(ctx, tx, filter); err != nil {
			seen.Remove(key)
			return err
		}
		return nil
	}
}

func appCallHandler(logger *slog.Logger, dex string) dispatcher.Handler {
	return func(ctx context.Context, tx *model.Transaction, filter string) error {
		appID, _ := tx.ApplicationID()
		attrs := []any{
			"dex", dex,
			"filter", filter,
			"sender", short(tx.Sender),
			"app_id", appID,
			"tx_id", tx.ID,
			"round", tx.ConfirmedRound,
		}
		if tx.ApplicationCall != nil {
			onCompletion := tx.ApplicationCall.OnCompletion
			if onCompletion == "" {
				onCompletion = model.OnCompletionNoOp
			}
			attrs = append(attrs, "on_completion", onCompletion, "args", len(tx.ApplicationCall.Args))
		}
		if n := len(tx.InnerTxns); n > 0 {
			attrs = append(attrs, "inner_txns", n)
		}
		logger.InfoContext(ctx, "app call", attrs...)
		return nil
	}
}

func assetTransferHandler(logger *slog.Logger) dispatcher.Handler {
	return func(ctx context.Context, tx *model.Transaction, filter string) error {
		axfer := tx.AssetTransfer
		if axfer == nil {
			// A root app call matched through one of its inner transfers.
			axfer = firstInnerAssetTransfer(tx)
		}
		if axfer == nil {
			logger.DebugContext(ctx, "asset transfer handler got no transfer", "filter", filter, "tx_id", tx.ID)
			return nil
		}
		logger.InfoContext(ctx, "asset transfer",
			"filter", filter,
			"sender", short(tx.Sender),
			"receiver", short(axfer.Receiver),
			"asset", AssetName(axfer.AssetID),
			"asset_id", axfer.AssetID,
			"amount", axfer.Amount,
			"tx_id", tx.ID,
			"round", tx.ConfirmedRound,
		)
		return nil
	}
}

func firstInnerAssetTransfer(tx *model.Transaction) *model.AssetTransferFields {
	var found *model.AssetTransferFields
	tx.Walk(func(t *model.Transaction) bool {
		if t.AssetTransfer != nil {
			found = t.AssetTransfer
			return false
		}
		return true
	})
	return found
}

// AssetName returns the symbol of a known asset or "ASA-<id>".
func AssetName(id uint64) string {
	if name, ok := KnownAssets[id]; ok {
		return name
	}
	return fmt.Sprintf("ASA-%d", id)
}

func algoTransferHandler(logger *slog.Logger) dispatcher.Handler {
	return func(ctx context.Context, tx *model.Transaction, filter string) error {
		var amount uint64
		var receiver string
		if tx.Payment != nil {
			amount, receiver = tx.Payment.Amount, tx.Payment.Receiver
		}
		logger.InfoContext(ctx, "algo transfer",
			"filter", filter,
			"sender", short(tx.Sender),
			"receiver", short(receiver),
			"algo", FormatAlgo(amount),
			"tx_id", tx.ID,
			"round", tx.ConfirmedRound,
		)
		return nil
	}
}

// FormatAlgo renders microAlgos as ALGO with six decimals.
func FormatAlgo(microAlgos uint64) string {
	return fmt.Sprintf("%d.%06d", microAlgos/microAlgosPerAlgo, microAlgos%microAlgosPerAlgo)
}

// NoteKind classifies a decoded note.
type NoteKind string

const (
	NoteNone    NoteKind = ""
	NoteTinyman NoteKind = "tinyman"
	NotePact    NoteKind = "pact"
	NoteOther   NoteKind = "other"
)

// ClassifyNote decodes note leniently (invalid UTF-8 is replaced) and looks
// for a DEX name, case-insensitively. Blank notes are NoteNone.
func ClassifyNote(note []byte) (NoteKind, string) {
	if len(note) == 0 {
		return NoteNone, ""
	}
	text := strings.ToValidUTF8(string(note), "�")
	lower := strings.ToLower(text)
	switch {
	case strings.Contains(lower, "tinyman"):
		return NoteTinyman, text
	case strings.Contains(lower, "pact"):
		return NotePact, text
	case strings.TrimSpace(text) == "":
		return NoteNone, text
	}
	return NoteOther, text
}

func notedTransactionHandler(logger *slog.Logger) dispatcher.Handler {
	return func(ctx context.Context, tx *model.Transaction, filter string) error {
		kind, text := ClassifyNote(tx.Note)
		switch kind {
		case NoteNone:
			return nil
		case NoteTinyman, NotePact:
			logger.InfoContext(ctx, "dex note",
				"dex", string(kind),
				"filter", filter,
				"sender", short(tx.Sender),
				"note", truncate(text, 50),
				"tx_id", tx.ID,
				"round", tx.ConfirmedRound,
			)
		default:
			logger.InfoContext(ctx, "transaction with note",
				"type", strings.ToUpper(tx.Type.String()),
				"filter", filter,
				"sender", short(tx.Sender),
				"note", truncate(text, 100),
				"tx_id", tx.ID,
				"round", tx.ConfirmedRound,
			)
		}
		return nil
	}
}

// Stats counts matches and logs the running total every interval matches.
type Stats struct {
	count    atomic.Uint64
	interval uint64
	logger   *slog.Logger
}

func NewStats(logger *slog.Logger, interval int) *Stats {
	if interval <= 0 {
		interval = defaultStatsInterval
	}
	return &Stats{interval: uint64(interval), logger: logger}
}

func (s *Stats) Handle(ctx context.Context, _ *model.Transaction, filter string) error {
	n := s.count.Add(1)
	if n%s.interval == 0 {
		s.logger.InfoContext(ctx, "relevant transactions processed", "filter", filter, "count", n)
	}
	return nil
}

func (s *Stats) Count() uint64 {
	return s.count.Load()
}

func short(addr string) string {
	return truncate(addr, 8)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
