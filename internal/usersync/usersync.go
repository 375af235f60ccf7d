// Package usersync provides striped per-key mutexes used to serialize
// active-organization writes for a single user without a lock per user ID.
package usersync

import (
	"hash/fnv"
	"sync"
)

// Striped is a fixed set of mutexes addressed by key hash. Two distinct keys
// may share a stripe; a key always maps to the same stripe, which is the only
// property the write path needs.
type Striped struct {
	stripes []sync.Mutex
	mask    uint32
}

// New creates a Striped lock set. n is rounded up to the next power of two;
// values below 1 default to 64.
func New(n int) *Striped {
	if n < 1 {
		n = 64
	}
	size := 1
	for size < n {
		size <<= 1
	}
	return &Striped{
		stripes: make([]sync.Mutex, size),
		mask:    uint32(size - 1),
	}
}

// Lock acquires the stripe for key and returns its unlock func.
func (s *Striped) Lock(key string) func() {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	mu := &s.stripes[h.Sum32()&s.mask]
	mu.Lock()
	return mu.Unlock
}
