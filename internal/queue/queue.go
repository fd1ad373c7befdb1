// Package queue provides the crawl frontier.
package queue

// Queue defines the interface for URL queues.
type Queue interface {
	// Push adds an item; it reports false when the item was already queued.
	Push(item *QueueItem) (bool, error)

	// Pop removes and returns the next item from the queue
	Pop() (*QueueItem, error)

	// Len returns the number of items in the queue
	Len() int

	// IsEmpty returns true if the queue is empty
	IsEmpty() bool

	// Close closes the queue
	Close() error
}
