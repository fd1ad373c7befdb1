// Package crawler drives a browser through a target site and collects the API
// calls its pages make.
package crawler

import (
	"time"

	"github.com/PentesterFlow/APIHunter/internal/auth"
	"github.com/PentesterFlow/APIHunter/internal/browser"
	"github.com/PentesterFlow/APIHunter/internal/errors"
	"github.com/PentesterFlow/APIHunter/internal/models"
)

// SnapshotHook is called after each screenshot is written.
type SnapshotHook = browser.SnapshotHook

// CrawlResult is the outcome of one hunt.
type CrawlResult struct {
	RunID        string         `json:"run_id"`
	StartURL     string         `json:"start_url"`
	VisitedURLs  []string       `json:"visited_urls"`
	StartTime    time.Time      `json:"start_time"`
	EndTime      time.Time      `json:"end_time"`
	Duration     time.Duration  `json:"duration"`
	Errors       []errors.Entry `json:"errors,omitempty"`
	Stats        CrawlStats     `json:"stats"`
	Auth         *auth.Result   `json:"auth,omitempty"`
	SnapshotsDir string         `json:"snapshots_dir,omitempty"`
}

// CrawlStats summarizes a hunt.
type CrawlStats struct {
	PagesVisited         int     `json:"pages_visited"`
	PagesFailed          int     `json:"pages_failed"`
	PagesSkipped         int     `json:"pages_skipped"`
	LinksQueued          int     `json:"links_queued"`
	RequestsSeen         int     `json:"requests_seen"`
	Captured             int     `json:"captured"`
	DuplicatesSuppressed int     `json:"duplicates_suppressed"`
	ResponsesUnmatched   int     `json:"responses_unmatched"`
	AbandonedRequests    int     `json:"abandoned_requests"`
	Snapshots            int     `json:"snapshots"`
	Interactions         int     `json:"interactions"`
	ErrorCount           int     `json:"error_count"`
	AvgNavigationMS      float64 `json:"avg_navigation_ms"`
}

// EventType names a live event.
type EventType string

const (
	EventPage     EventType = "page"
	EventCaptured EventType = "captured"
	EventSnapshot EventType = "snapshot"
	EventStatus   EventType = "status"
	EventError    EventType = "error"
)

// Event is pushed to the notifier while a hunt runs.
type Event struct {
	Type      EventType   `json:"type"`
	Data      interface{} `json:"data"`
	Timestamp time.Time   `json:"timestamp"`
}

// Notifier receives live events. It is called from the crawl goroutine and from
// the interceptor's correlator, so it must not block.
type Notifier func(Event)

// PageVisit is the payload of EventPage.
type PageVisit struct {
	Index    int    `json:"index"`
	URL      string `json:"url"`
	Depth    int    `json:"depth"`
	MaxPages int    `json:"max_pages"`
}

// CaptureNotice is the payload of EventCaptured.
type CaptureNotice struct {
	Method     models.HTTPMethod `json:"method"`
	URL        string            `json:"url"`
	Status     int               `json:"status"`
	SourcePage string            `json:"source_page"`
	Total      int               `json:"total"`
}

// SnapshotNotice is the payload of EventSnapshot.
type SnapshotNotice struct {
	Path      string `json:"path"`
	URL       string `json:"url"`
	PageIndex int    `json:"page_index"`
}

// Status is the payload of EventStatus.
type Status struct {
	State        string `json:"state"`
	PagesVisited int    `json:"pages_visited"`
	MaxPages     int    `json:"max_pages"`
	Queue        int    `json:"queue"`
	Captured     int    `json:"captured"`
	Duplicates   int    `json:"duplicates"`
	Errors       int    `json:"errors"`
	// NavRate is the adaptive navigation rate; zero when unthrottled.
	NavRate float64 `json:"nav_rate,omitempty"`
}

// Crawl states reported in Status.
const (
	StateAuthenticating = "authenticating"
	StateCrawling       = "crawling"
	StateFinishing      = "finishing"
	StateDone           = "done"
)
