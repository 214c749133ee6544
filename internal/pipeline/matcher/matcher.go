package matcher

import (
	"bytes"
	"context"
	"log/slog"
	"slices"
	"time"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"

	"github.com/sanjulaonline/algorand-live-pool-Monitor/internal/domain/event"
	"github.com/sanjulaonline/algorand-live-pool-Monitor/internal/domain/model"
	"github.com/sanjulaonline/algorand-live-pool-Monitor/internal/metrics"
)

// Matches reports whether tx, or any of its inner transactions at any depth,
// satisfies filter.
func Matches(tx *model.Transaction, filter model.Filter) bool {
	matched := false
	tx.Walk(func(t *model.Transaction) bool {
		if matchesOne(t, filter) {
			matched = true
			return false
		}
		return true
	})
	return matched
}

func matchesOne(tx *model.Transaction, f model.Filter) bool {
	if f.Type != "" && tx.Type != f.Type {
		return false
	}
	if len(f.ApplicationID) > 0 {
		id, ok := tx.ApplicationID()
		if !ok || !slices.Contains(f.ApplicationID, id) {
			return false
		}
	}
	if len(f.AssetID) > 0 {
		id, ok := tx.AssetID()
		if !ok || !slices.Contains(f.AssetID, id) {
			return false
		}
	}
	if f.MinAmount != nil {
		amount, ok := tx.Amount()
		if !ok || amount < *f.MinAmount {
			return false
		}
	}
	if f.NotePrefix != nil && !hasNotePrefix(tx.Note, *f.NotePrefix) {
		return false
	}
	return true
}

// hasNotePrefix treats a note that is not valid UTF-8 as a non-match.
func hasNotePrefix(note []byte, prefix string) bool {
	if !utf8.Valid(note) {
		return false
	}
	return bytes.HasPrefix(note, []byte(prefix))
}

// Matcher groups the root transactions of a batch by filter.
type Matcher struct {
	filters *model.FilterSet
	workers int
	logger  *slog.Logger
}

func New(filters *model.FilterSet, workers int, logger *slog.Logger) *Matcher {
	if workers <= 0 {
		workers = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Matcher{
		filters: filters,
		workers: workers,
		logger:  logger.With("component", "matcher"),
	}
}

// Match evaluates every filter against every root transaction of rounds,
// which must be ascending. Each bucket lists matching roots in ledger order,
// once per filter. The result does not depend on the worker count.
func (m *Matcher) Match(ctx context.Context, rounds []event.RoundContents) (*event.MatchSet, error) {
	start := time.Now()
	defer func() {
		metrics.MatcherLatency.Observe(time.Since(start).Seconds())
	}()

	var from, to model.Round
	if len(rounds) > 0 {
		from, to = rounds[0].Round, rounds[len(rounds)-1].Round
	}
	ms := event.NewMatchSet(from, to, m.filters.Names())
	filters := m.filters.All()

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(m.workers)
	for i := range filters {
		i := i
		g.Go(func() error {
			bucket, err := matchFilter(gCtx, filters[i].Filter, rounds)
			if err != nil {
				return err
			}
			ms.Buckets[i].Transactions = bucket
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for _, b := range ms.Buckets {
		if len(b.Transactions) > 0 {
			metrics.MatcherMatches.WithLabelValues(b.Filter).Add(float64(len(b.Transactions)))
		}
	}
	m.logger.Debug("batch matched",
		"from", from,
		"to", to,
		"matches", ms.Total(),
	)
	return ms, nil
}

func matchFilter(ctx context.Context, filter model.Filter, rounds []event.RoundContents) ([]*model.Transaction, error) {
	var bucket []*model.Transaction
	for r := range rounds {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		txns := rounds[r].Transactions
		for i := range txns {
			if Matches(&txns[i], filter) {
				bucket = append(bucket, &txns[i])
			}
		}
	}
	return bucket, nil
}
