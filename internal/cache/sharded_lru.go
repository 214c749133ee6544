package cache

import (
	"hash/maphash"
	"time"
)

const defaultShards = 16

// SeenSet records keys for a bounded time. Both LRU and ShardedLRU qualify.
type SeenSet[K comparable] interface {
	// PutIfAbsent reports whether key was newly recorded.
	PutIfAbsent(key K, value struct{}) bool
	Remove(key K)
}

var (
	_ SeenSet[string] = (*LRU[string, struct{}])(nil)
	_ SeenSet[string] = (*ShardedLRU[struct{}])(nil)
)

// ShardedLRU spreads string keys over independent LRU shards so concurrent
// dispatch workers rarely contend on one lock. Capacity is split evenly.
type ShardedLRU[V any] struct {
	seed   maphash.Seed
	shards []*LRU[string, V]
}

// NewShardedLRU returns a cache of roughly totalCapacity entries across
// shards shards (defaultShards when <= 0).
func NewShardedLRU[V any](totalCapacity int, ttl time.Duration, shards int) *ShardedLRU[V] {
	if shards <= 0 {
		shards = defaultShards
	}
	perShard := max(totalCapacity/shards, 1)

	s := &ShardedLRU[V]{
		seed:   maphash.MakeSeed(),
		shards: make([]*LRU[string, V], shards),
	}
	for i := range s.shards {
		s.shards[i] = NewLRU[string, V](perShard, ttl)
	}
	return s
}

func (s *ShardedLRU[V]) shard(key string) *LRU[string, V] {
	return s.shards[maphash.String(s.seed, key)%uint64(len(s.shards))]
}

func (s *ShardedLRU[V]) Get(key string) (V, bool) {
	return s.shard(key).Get(key)
}

func (s *ShardedLRU[V]) Put(key string, value V) {
	s.shard(key).Put(key, value)
}

func (s *ShardedLRU[V]) PutIfAbsent(key string, value V) bool {
	return s.shard(key).PutIfAbsent(key, value)
}

func (s *ShardedLRU[V]) Remove(key string) {
	s.shard(key).Remove(key)
}

func (s *ShardedLRU[V]) Len() int {
	total := 0
	for _, sh := range s.shards {
		total += sh.Len()
	}
	return total
}

func (s *ShardedLRU[V]) Stats() (hits, misses int64) {
	for _, sh := range s.shards {
		h, m := sh.Stats()
		hits += h
		misses += m
	}
	return
}
