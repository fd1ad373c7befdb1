package queue

import "time"

// QueueItem is a page waiting to be visited.
type QueueItem struct {
	URL       string
	Depth     int
	ParentURL string
	Timestamp time.Time
}
