// Package state tracks visited pages and persists small records in bbolt.
package state

import (
	"sync"

	"github.com/bits-and-blooms/bloom/v3"
)

// VisitedSet records normalized page keys. A bloom filter answers most
// negative lookups; the exact map settles positives.
type VisitedSet struct {
	mu     sync.RWMutex
	filter *bloom.BloomFilter
	exact  map[string]struct{}
}

// NewVisitedSet creates a set sized for estimatedItems keys.
func NewVisitedSet(estimatedItems int) *VisitedSet {
	if estimatedItems < 1000 {
		estimatedItems = 1000
	}

	return &VisitedSet{
		filter: bloom.NewWithEstimates(uint(estimatedItems), 0.001),
		exact:  make(map[string]struct{}),
	}
}

// Add records key and reports whether it was new.
func (v *VisitedSet) Add(key string) bool {
	v.mu.Lock()
	defer v.mu.Unlock()

	if _, exists := v.exact[key]; exists {
		return false
	}
	v.filter.AddString(key)
	v.exact[key] = struct{}{}
	return true
}

// Has checks if key has been recorded.
func (v *VisitedSet) Has(key string) bool {
	v.mu.RLock()
	defer v.mu.RUnlock()

	if !v.filter.TestString(key) {
		return false
	}
	_, exists := v.exact[key]
	return exists
}

// Count returns the number of recorded keys.
func (v *VisitedSet) Count() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return len(v.exact)
}

// Reset empties the set.
func (v *VisitedSet) Reset() {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.filter.ClearAll()
	v.exact = make(map[string]struct{})
}
