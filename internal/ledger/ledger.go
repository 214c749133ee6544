package ledger

//go:generate mockgen -source=ledger.go -destination=mocks/mock_ledger.go -package=mocks

import (
	"context"
	"errors"

	"github.com/sanjulaonline/algorand-live-pool-Monitor/internal/domain/model"
)

var (
	// ErrNotYetFinalized is returned for a round above the node's last round.
	ErrNotYetFinalized = errors.New("round not yet finalized")
	// ErrNotFound is returned when the node has no data for a round it
	// should know, e.g. a pruned non-archival node.
	ErrNotFound = errors.New("round not found")
	// ErrUnavailable covers transport failures, throttling and 5xx replies.
	ErrUnavailable = errors.New("ledger service unavailable")
	// ErrInvalidQuery is returned when the index rejects a query.
	ErrInvalidQuery = errors.New("invalid index query")
)

// Node is the block source: the current tip and full round contents.
type Node interface {
	// Tip returns the latest finalized round.
	Tip(ctx context.Context) (model.Round, error)
	// Round returns all root transactions of a round in block order.
	Round(ctx context.Context, round model.Round) ([]model.Transaction, error)
	// WaitForRoundAfter blocks until a round after the given one exists or
	// the node-side wait expires, and returns the node's last round.
	WaitForRoundAfter(ctx context.Context, round model.Round) (model.Round, error)
}

// Query is one indexed search. Zero-valued fields are unrestricted.
type Query struct {
	MinRound      model.Round
	MaxRound      model.Round
	Type          model.TxType
	ApplicationID uint64
	AssetID       uint64
	// MinAmount is inclusive; clients translate it to the index's
	// exclusive currency bound.
	MinAmount *uint64
	Limit     int
}

// Page is one page of index results. An empty NextToken ends pagination.
type Page struct {
	Transactions []model.Transaction
	NextToken    string
	CurrentRound model.Round
}

// Index is the optional bulk query path.
type Index interface {
	SearchTransactions(ctx context.Context, q Query, next string) (*Page, error)
}

// IsTransient reports whether err is worth retrying.
func IsTransient(err error) bool {
	return errors.Is(err, ErrNotYetFinalized) ||
		errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrUnavailable)
}
