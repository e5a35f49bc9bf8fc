package service

import (
	"sync"

	"github.com/spaolacci/murmur3"
)

const lockStripes = 64

// rowLocks serializes writes per persisted row. Scylla has no row locks, so
// without this two concurrent handlers could interleave updates to the same
// dues cell or permit field.
type rowLocks struct {
	stripes [lockStripes]sync.Mutex
}

func newRowLocks() *rowLocks {
	return &rowLocks{}
}

func (l *rowLocks) lock(key string) *sync.Mutex {
	h := murmur3.Sum64([]byte(key))
	mu := &l.stripes[h%lockStripes]
	mu.Lock()
	return mu
}
