package event

import "github.com/sanjulaonline/algorand-live-pool-Monitor/internal/domain/model"

// FilterMatches holds the transactions matched by one filter, in ledger order.
type FilterMatches struct {
	Filter       string
	Transactions []*model.Transaction
}

// MatchSet maps filter name to matched transactions. Buckets are kept in
// filter registration order, including filters that matched nothing.
type MatchSet struct {
	FromRound model.Round
	ToRound   model.Round
	Buckets   []FilterMatches
}

func NewMatchSet(from, to model.Round, filterNames []string) *MatchSet {
	ms := &MatchSet{
		FromRound: from,
		ToRound:   to,
		Buckets:   make([]FilterMatches, len(filterNames)),
	}
	for i, name := range filterNames {
		ms.Buckets[i].Filter = name
	}
	return ms
}

// Get returns the matches for a filter, or nil when the filter is unknown.
func (ms *MatchSet) Get(filter string) []*model.Transaction {
	for i := range ms.Buckets {
		if ms.Buckets[i].Filter == filter {
			return ms.Buckets[i].Transactions
		}
	}
	return nil
}

// Total is the number of (filter, transaction) pairs.
func (ms *MatchSet) Total() int {
	n := 0
	for i := range ms.Buckets {
		n += len(ms.Buckets[i].Transactions)
	}
	return n
}
