package partition

import "hash/fnv"

// Count is the number of lock shards used by the in-process caches
// (dedup window, rate limiter buckets, fingerprint index).
const Count = 256

// For returns the shard for key in [0, Count).
// The mapping is stable for the life of the process and across processes.
func For(key string) int {
	h := fnv.New32a()
	h.Write([]byte(key))
	return int(h.Sum32() % Count)
}

// Sharded holds Count independently locked values of type T.
// Callers lock the shard they receive; Sharded itself holds no lock.
type Sharded[T any] struct {
	shards [Count]T
}

// NewSharded builds every shard with init.
func NewSharded[T any](init func() T) *Sharded[T] {
	s := &Sharded[T]{}
	for i := range s.shards {
		s.shards[i] = init()
	}
	return s
}

// Get returns the shard owning key.
func (s *Sharded[T]) Get(key string) T {
	return s.shards[For(key)]
}

// Each visits every shard in order, stopping early when fn returns false.
func (s *Sharded[T]) Each(fn func(i int, shard T) bool) {
	for i := range s.shards {
		if !fn(i, s.shards[i]) {
			return
		}
	}
}
