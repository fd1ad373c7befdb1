package errors

import (
	"sync"
	"time"
)

// Entry is one record in the run-level error log.
type Entry struct {
	Type      string    `json:"type" yaml:"type"`
	URL       string    `json:"url,omitempty" yaml:"url,omitempty"`
	Operation string    `json:"operation,omitempty" yaml:"operation,omitempty"`
	Message   string    `json:"message" yaml:"message"`
	Timestamp time.Time `json:"timestamp" yaml:"timestamp"`
}

// Log accumulates per-page and per-request errors without unwinding the run.
type Log struct {
	mu      sync.Mutex
	entries []Entry
}

// NewLog creates an empty error log.
func NewLog() *Log {
	return &Log{}
}

// Add categorizes err and appends it.
func (l *Log) Add(err error, url string) Entry {
	he := Categorize(err, url)
	entry := Entry{
		Type:      he.Type.String(),
		URL:       he.URL,
		Operation: he.Operation,
		Message:   err.Error(),
		Timestamp: time.Now(),
	}
	if entry.URL == "" {
		entry.URL = url
	}

	l.mu.Lock()
	l.entries = append(l.entries, entry)
	l.mu.Unlock()

	return entry
}

// Entries returns a copy of the log.
func (l *Log) Entries() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]Entry, len(l.entries))
	copy(out, l.entries)
	return out
}

// Len returns the number of entries.
func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// CountByType groups entry counts by error type.
func (l *Log) CountByType() map[string]int {
	l.mu.Lock()
	defer l.mu.Unlock()

	counts := make(map[string]int)
	for _, e := range l.entries {
		counts[e.Type]++
	}
	return counts
}
