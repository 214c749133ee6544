package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// Duplicate deliveries hit the seen-set on every matched transaction, so the
// rejecting path must not allocate.

func TestAllocs_LRU_PutIfAbsentDuplicate(t *testing.T) {
	seen := NewLRU[string, struct{}](1000, time.Hour)
	seen.PutIfAbsent("track_stats|all_transactions|TX1", struct{}{})

	allocs := testing.AllocsPerRun(100, func() {
		seen.PutIfAbsent("track_stats|all_transactions|TX1", struct{}{})
	})
	assert.Equal(t, float64(0), allocs)
}

func TestAllocs_ShardedLRU_PutIfAbsentDuplicate(t *testing.T) {
	seen := NewShardedLRU[struct{}](1000, time.Hour, 0)
	seen.PutIfAbsent("algo_transfer|algo_transfers|TX1", struct{}{})

	allocs := testing.AllocsPerRun(100, func() {
		seen.PutIfAbsent("algo_transfer|algo_transfers|TX1", struct{}{})
	})
	assert.Equal(t, float64(0), allocs)
}

func TestAllocs_LRU_GetRound(t *testing.T) {
	rounds := NewLRU[uint64, []byte](64, time.Minute)
	rounds.Put(42, []byte("round"))

	allocs := testing.AllocsPerRun(100, func() {
		rounds.Get(42)
		rounds.Get(43)
	})
	assert.Equal(t, float64(0), allocs)
}
