package event

import "github.com/sanjulaonline/algorand-live-pool-Monitor/internal/domain/model"

// RoundContents is the full, ordered transaction list of one round as
// delivered by the round fetcher. Transactions holds root transactions only;
// inner transactions stay nested.
type RoundContents struct {
	Round        model.Round
	Transactions []model.Transaction
}

// CountTransactions returns the number of root transactions across rounds.
func CountTransactions(rounds []RoundContents) int {
	n := 0
	for _, rc := range rounds {
		n += len(rc.Transactions)
	}
	return n
}
