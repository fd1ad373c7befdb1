// Package metrics collects counters for a hunt run.
package metrics

import (
	"sync"
	"sync/atomic"
	"time"
)

// Collector collects and aggregates metrics.
type Collector struct {
	// Counters
	pagesVisited         atomic.Int64
	pagesSkipped         atomic.Int64
	pagesFailed          atomic.Int64
	linksQueued          atomic.Int64
	requestsSeen         atomic.Int64
	captured             atomic.Int64
	duplicatesSuppressed atomic.Int64
	responsesUnmatched   atomic.Int64
	bodyErrors           atomic.Int64
	interactions         atomic.Int64
	interactionFailures  atomic.Int64
	snapshots            atomic.Int64
	errorsTotal          atomic.Int64
	retriesTotal         atomic.Int64

	// Gauges
	queueDepth atomic.Int64
	inFlight   atomic.Int64

	// Navigation time tracking
	navTimesSum atomic.Int64
	navTimesNum atomic.Int64
	// Histogram buckets in ms: <100, <250, <500, <1000, <2500, <5000, <10000, <30000, >=30000
	navTimeBuckets [9]atomic.Int64

	// Error breakdown
	errorCounts map[string]*atomic.Int64
	errorMu     sync.RWMutex

	// Status code breakdown of captured responses
	statusCodes map[int]*atomic.Int64
	statusMu    sync.RWMutex

	startMu   sync.RWMutex
	startTime time.Time
}

// New creates a new metrics collector.
func New() *Collector {
	return &Collector{
		errorCounts: make(map[string]*atomic.Int64),
		statusCodes: make(map[int]*atomic.Int64),
		startTime:   time.Now(),
	}
}

// RecordPageVisited increments visited pages.
func (c *Collector) RecordPageVisited() { c.pagesVisited.Add(1) }

// RecordPageSkipped counts a dequeued URL that failed the visit predicate.
func (c *Collector) RecordPageSkipped() { c.pagesSkipped.Add(1) }

// RecordPageFailed counts a page whose navigation failed.
func (c *Collector) RecordPageFailed() { c.pagesFailed.Add(1) }

// RecordLinksQueued adds n enqueued links.
func (c *Collector) RecordLinksQueued(n int) { c.linksQueued.Add(int64(n)) }

// RecordRequest counts a request event accepted by the capture filter.
func (c *Collector) RecordRequest() { c.requestsSeen.Add(1) }

// RecordCapture counts a completed capture and its status code.
func (c *Collector) RecordCapture(status int) {
	c.captured.Add(1)

	c.statusMu.Lock()
	if c.statusCodes[status] == nil {
		c.statusCodes[status] = &atomic.Int64{}
	}
	c.statusCodes[status].Add(1)
	c.statusMu.Unlock()
}

// RecordDuplicate counts a request dropped because its pattern was already captured.
func (c *Collector) RecordDuplicate() { c.duplicatesSuppressed.Add(1) }

// RecordUnmatched counts a response with no pending request.
func (c *Collector) RecordUnmatched() { c.responsesUnmatched.Add(1) }

// RecordBodyError counts a response body that could not be read as text.
func (c *Collector) RecordBodyError() { c.bodyErrors.Add(1) }

// RecordInteraction counts a click, failed or not.
func (c *Collector) RecordInteraction(ok bool) {
	c.interactions.Add(1)
	if !ok {
		c.interactionFailures.Add(1)
	}
}

// RecordSnapshot counts a saved screenshot.
func (c *Collector) RecordSnapshot() { c.snapshots.Add(1) }

// RecordRetry records a retry attempt.
func (c *Collector) RecordRetry() { c.retriesTotal.Add(1) }

// RecordError records an error by type.
func (c *Collector) RecordError(errorType string) {
	c.errorsTotal.Add(1)

	c.errorMu.Lock()
	if c.errorCounts[errorType] == nil {
		c.errorCounts[errorType] = &atomic.Int64{}
	}
	c.errorCounts[errorType].Add(1)
	c.errorMu.Unlock()
}

// RecordNavigationTime records how long a page took to load.
func (c *Collector) RecordNavigationTime(d time.Duration) {
	ms := d.Milliseconds()
	c.navTimesSum.Add(ms)
	c.navTimesNum.Add(1)
	c.navTimeBuckets[bucket(ms)].Add(1)
}

func bucket(ms int64) int {
	switch {
	case ms < 100:
		return 0
	case ms < 250:
		return 1
	case ms < 500:
		return 2
	case ms < 1000:
		return 3
	case ms < 2500:
		return 4
	case ms < 5000:
		return 5
	case ms < 10000:
		return 6
	case ms < 30000:
		return 7
	default:
		return 8
	}
}

// SetQueueDepth sets the current frontier size.
func (c *Collector) SetQueueDepth(depth int) { c.queueDepth.Store(int64(depth)) }

// SetInFlight sets the number of requests awaiting a response.
func (c *Collector) SetInFlight(n int) { c.inFlight.Store(int64(n)) }

// GetAverageNavigationTime returns the mean navigation time.
func (c *Collector) GetAverageNavigationTime() time.Duration {
	sum := c.navTimesSum.Load()
	num := c.navTimesNum.Load()
	if num == 0 {
		return 0
	}
	return time.Duration(sum/num) * time.Millisecond
}

// Snapshot returns a point-in-time snapshot of all metrics.
func (c *Collector) Snapshot() *Snapshot {
	c.startMu.RLock()
	start := c.startTime
	c.startMu.RUnlock()

	s := &Snapshot{
		Timestamp:             time.Now(),
		Uptime:                time.Since(start),
		PagesVisited:          c.pagesVisited.Load(),
		PagesSkipped:          c.pagesSkipped.Load(),
		PagesFailed:           c.pagesFailed.Load(),
		LinksQueued:           c.linksQueued.Load(),
		RequestsSeen:          c.requestsSeen.Load(),
		Captured:              c.captured.Load(),
		DuplicatesSuppressed:  c.duplicatesSuppressed.Load(),
		ResponsesUnmatched:    c.responsesUnmatched.Load(),
		BodyErrors:            c.bodyErrors.Load(),
		Interactions:          c.interactions.Load(),
		InteractionFailures:   c.interactionFailures.Load(),
		Snapshots:             c.snapshots.Load(),
		ErrorsTotal:           c.errorsTotal.Load(),
		RetriesTotal:          c.retriesTotal.Load(),
		QueueDepth:            c.queueDepth.Load(),
		InFlight:              c.inFlight.Load(),
		AverageNavigationTime: c.GetAverageNavigationTime(),
		ErrorCounts:           make(map[string]int64),
		StatusCodes:           make(map[int]int64),
		NavigationTimeHist:    make([]int64, len(c.navTimeBuckets)),
	}

	c.errorMu.RLock()
	for k, v := range c.errorCounts {
		s.ErrorCounts[k] = v.Load()
	}
	c.errorMu.RUnlock()

	c.statusMu.RLock()
	for k, v := range c.statusCodes {
		s.StatusCodes[k] = v.Load()
	}
	c.statusMu.RUnlock()

	for i := range c.navTimeBuckets {
		s.NavigationTimeHist[i] = c.navTimeBuckets[i].Load()
	}
	return s
}

// Reset clears every counter and restarts the uptime clock.
func (c *Collector) Reset() {
	for _, v := range []*atomic.Int64{
		&c.pagesVisited, &c.pagesSkipped, &c.pagesFailed, &c.linksQueued,
		&c.requestsSeen, &c.captured, &c.duplicatesSuppressed, &c.responsesUnmatched,
		&c.bodyErrors, &c.interactions, &c.interactionFailures, &c.snapshots,
		&c.errorsTotal, &c.retriesTotal, &c.queueDepth, &c.inFlight,
		&c.navTimesSum, &c.navTimesNum,
	} {
		v.Store(0)
	}
	for i := range c.navTimeBuckets {
		c.navTimeBuckets[i].Store(0)
	}

	c.errorMu.Lock()
	c.errorCounts = make(map[string]*atomic.Int64)
	c.errorMu.Unlock()

	c.statusMu.Lock()
	c.statusCodes = make(map[int]*atomic.Int64)
	c.statusMu.Unlock()

	c.startMu.Lock()
	c.startTime = time.Now()
	c.startMu.Unlock()
}

// Snapshot represents a point-in-time view of metrics.
type Snapshot struct {
	Timestamp             time.Time        `json:"timestamp"`
	Uptime                time.Duration    `json:"uptime"`
	PagesVisited          int64            `json:"pages_visited"`
	PagesSkipped          int64            `json:"pages_skipped"`
	PagesFailed           int64            `json:"pages_failed"`
	LinksQueued           int64            `json:"links_queued"`
	RequestsSeen          int64            `json:"requests_seen"`
	Captured              int64            `json:"captured"`
	DuplicatesSuppressed  int64            `json:"duplicates_suppressed"`
	ResponsesUnmatched    int64            `json:"responses_unmatched"`
	BodyErrors            int64            `json:"body_errors"`
	Interactions          int64            `json:"interactions"`
	InteractionFailures   int64            `json:"interaction_failures"`
	Snapshots             int64            `json:"snapshots"`
	ErrorsTotal           int64            `json:"errors_total"`
	RetriesTotal          int64            `json:"retries_total"`
	QueueDepth            int64            `json:"queue_depth"`
	InFlight              int64            `json:"in_flight"`
	AverageNavigationTime time.Duration    `json:"average_navigation_time"`
	ErrorCounts           map[string]int64 `json:"error_counts"`
	StatusCodes           map[int]int64    `json:"status_codes"`
	NavigationTimeHist    []int64          `json:"navigation_time_histogram"`
}

// DuplicateRate returns the share of accepted requests dropped as duplicate patterns.
func (s *Snapshot) DuplicateRate() float64 {
	if s.RequestsSeen == 0 {
		return 0
	}
	return float64(s.DuplicatesSuppressed) / float64(s.RequestsSeen)
}

// Summary returns the headline numbers for logging.
func (s *Snapshot) Summary() map[string]interface{} {
	return map[string]interface{}{
		"uptime":                s.Uptime.Round(time.Millisecond).String(),
		"pages_visited":         s.PagesVisited,
		"pages_failed":          s.PagesFailed,
		"captured":              s.Captured,
		"duplicates_suppressed": s.DuplicatesSuppressed,
		"duplicate_rate":        s.DuplicateRate(),
		"responses_unmatched":   s.ResponsesUnmatched,
		"interactions":          s.Interactions,
		"snapshots":             s.Snapshots,
		"errors_total":          s.ErrorsTotal,
		"avg_navigation_ms":     s.AverageNavigationTime.Milliseconds(),
	}
}
