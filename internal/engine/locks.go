package engine

import (
	"sort"
	"sync"
)

const lockStripes = 256

// stripedLocks serializes mutations touching the same users inside one process.
// Stripes are always taken in ascending index order, so two callers locking
// the same pair from opposite ends cannot deadlock.
type stripedLocks struct {
	stripes [lockStripes]sync.Mutex
}

func stripeOf(id uint64) int {
	return int(id % lockStripes)
}

// Lock acquires the stripes for ids and returns the matching unlock.
func (l *stripedLocks) Lock(ids ...uint64) (unlock func()) {
	idx := make([]int, 0, len(ids))
	seen := make(map[int]struct{}, len(ids))
	for _, id := range ids {
		s := stripeOf(id)
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		idx = append(idx, s)
	}
	sort.Ints(idx)

	for _, s := range idx {
		l.stripes[s].Lock()
	}
	return func() {
		for i := len(idx) - 1; i >= 0; i-- {
			l.stripes[idx[i]].Unlock()
		}
	}
}
