package cache

import (
	"runtime"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru"
)

// shardCount mirrors the session pool's partitioning idea (splitting
// into a fixed set of independently-locked partitions) but sizes to
// the machine instead of a fixed constant, so the plan and result
// caches get at least one shard per CPU.
func shardCount() int {
	if n := runtime.NumCPU(); n > 0 {
		return n
	}
	return 1
}

// shardedLRU is a fixed set of independently-locked LRU caches keyed
// by a pre-hashed uint64, so routing to a shard is a cheap modulo
// rather than a second hash pass. Each underlying *lru.Cache is
// already internally synchronized.
type shardedLRU struct {
	shards   []*lru.Cache
	capacity int64 // perShard * len(shards), the usable total after flooring
	hits     int64
	misses   int64
}

func newShardedLRU(capacity int) *shardedLRU {
	if capacity < 1 {
		capacity = 1
	}
	n := shardCount()
	perShard := capacity / n
	if perShard < 1 {
		perShard = 1
	}
	s := &shardedLRU{shards: make([]*lru.Cache, n), capacity: int64(perShard * n)}
	for i := range s.shards {
		c, err := lru.New(perShard)
		if err != nil {
			// lru.New only fails for size <= 0, excluded by the floor above.
			panic(err)
		}
		s.shards[i] = c
	}
	return s
}

func (s *shardedLRU) shardFor(key uint64) *lru.Cache {
	return s.shards[key%uint64(len(s.shards))]
}

func (s *shardedLRU) get(key uint64) (interface{}, bool) {
	v, ok := s.shardFor(key).Get(key)
	if ok {
		atomic.AddInt64(&s.hits, 1)
	} else {
		atomic.AddInt64(&s.misses, 1)
	}
	return v, ok
}

func (s *shardedLRU) add(key uint64, value interface{}) {
	s.shardFor(key).Add(key, value)
}

func (s *shardedLRU) remove(key uint64) {
	s.shardFor(key).Remove(key)
}

func (s *shardedLRU) purge() {
	for _, sh := range s.shards {
		sh.Purge()
	}
}

func (s *shardedLRU) len() int {
	n := 0
	for _, sh := range s.shards {
		n += sh.Len()
	}
	return n
}

func (s *shardedLRU) statSnapshot(name string) statSnapshot {
	return statSnapshot{
		Name:     name,
		Hits:     atomic.LoadInt64(&s.hits),
		Misses:   atomic.LoadInt64(&s.misses),
		Size:     int64(s.len()),
		Capacity: s.capacity,
	}
}

type statSnapshot struct {
	Name     string
	Hits     int64
	Misses   int64
	Size     int64
	Capacity int64
}
