package queue

import (
	"errors"
	"sync"
)

var (
	ErrQueueEmpty  = errors.New("queue is empty")
	ErrQueueClosed = errors.New("queue is closed")
)

// KeyFunc maps a URL to its dedup key.
type KeyFunc func(url string) string

// Frontier is a thread-safe FIFO queue of pages. A URL whose key is already
// queued is not queued again.
type Frontier struct {
	mu     sync.Mutex
	items  []*QueueItem
	head   int
	keys   map[string]struct{}
	keyFn  KeyFunc
	closed bool
}

var _ Queue = (*Frontier)(nil)

// NewFrontier creates an empty frontier. A nil keyFn keys by the raw URL.
func NewFrontier(keyFn KeyFunc) *Frontier {
	if keyFn == nil {
		keyFn = func(u string) string { return u }
	}
	return &Frontier{
		keys:  make(map[string]struct{}),
		keyFn: keyFn,
	}
}

// Push appends an item.
func (f *Frontier) Push(item *QueueItem) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return false, ErrQueueClosed
	}

	key := f.keyFn(item.URL)
	if _, exists := f.keys[key]; exists {
		return false, nil
	}

	f.keys[key] = struct{}{}
	f.items = append(f.items, item)
	return true, nil
}

// Pop removes and returns the oldest item.
func (f *Frontier) Pop() (*QueueItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return nil, ErrQueueClosed
	}
	if f.head == len(f.items) {
		return nil, ErrQueueEmpty
	}

	item := f.items[f.head]
	f.items[f.head] = nil
	f.head++
	if f.head == len(f.items) {
		f.items = f.items[:0]
		f.head = 0
	}

	delete(f.keys, f.keyFn(item.URL))
	return item, nil
}

// Len returns the number of queued items.
func (f *Frontier) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.items) - f.head
}

// IsEmpty returns true if nothing is queued.
func (f *Frontier) IsEmpty() bool {
	return f.Len() == 0
}

// Close rejects further pushes and pops.
func (f *Frontier) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}
