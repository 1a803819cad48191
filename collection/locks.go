package collection

import (
	"hash/fnv"
	"sort"
	"sync"
)

const stripeCount = 64

// stripes serializes writers of the same id without a mutex per id.
type stripes [stripeCount]sync.Mutex

func stripeOf(id string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(id))
	return int(h.Sum32() % stripeCount)
}

// lock acquires the stripes of ids in ascending order and returns the unlock
// function.
func (s *stripes) lock(ids ...string) func() {
	seen := make(map[int]struct{}, len(ids))
	order := make([]int, 0, len(ids))
	for _, id := range ids {
		n := stripeOf(id)
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		order = append(order, n)
	}
	sort.Ints(order)
	for _, n := range order {
		s[n].Lock()
	}
	return func() {
		for i := len(order) - 1; i >= 0; i-- {
			s[order[i]].Unlock()
		}
	}
}
