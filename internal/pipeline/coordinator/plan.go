package coordinator

import (
	"github.com/sanjulaonline/algorand-live-pool-Monitor/internal/domain/model"
	"github.com/sanjulaonline/algorand-live-pool-Monitor/internal/pipeline/fetcher"
)

// Range is the next batch of rounds to process, both ends inclusive.
type Range struct {
	From     model.Round
	To       model.Round
	Strategy fetcher.Strategy
	// Skipped counts rounds between the watermark and From that will never
	// be processed.
	Skipped uint64
}

func (r Range) Len() uint64 {
	return uint64(r.To-r.From) + 1
}

// Plan picks the next range after watermark given the current tip. It
// returns false when the subscription is caught up. batch is clamped to 1.
func Plan(watermark, tip model.Round, behaviour model.SyncBehaviour, batch uint64, canIndex bool) (Range, bool) {
	if tip <= watermark {
		return Range{}, false
	}
	if batch == 0 {
		batch = 1
	}

	lag := uint64(tip - watermark)
	switch behaviour {
	case model.SyncSkipNewest:
		if lag > batch {
			return Range{
				From:     tip - model.Round(batch) + 1,
				To:       tip,
				Strategy: fetcher.StrategySequential,
				Skipped:  lag - batch,
			}, true
		}
		return Range{From: watermark + 1, To: tip, Strategy: fetcher.StrategySequential}, true

	case model.SyncCatchupWithIndexer:
		strategy := fetcher.StrategySequential
		if canIndex {
			strategy = fetcher.StrategyIndexed
		}
		return Range{From: watermark + 1, To: watermark + model.Round(min(batch, lag)), Strategy: strategy}, true

	default:
		return Range{From: watermark + 1, To: watermark + model.Round(min(batch, lag)), Strategy: fetcher.StrategySequential}, true
	}
}

// CatchingUp reports whether the lag is more than one batch.
func CatchingUp(watermark, tip model.Round, batch uint64) bool {
	return tip > watermark && uint64(tip-watermark) > batch
}
