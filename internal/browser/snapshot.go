package browser

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/PentesterFlow/APIHunter/internal/logger"
	"github.com/PentesterFlow/APIHunter/internal/metrics"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

var unsafeLabelChars = regexp.MustCompile(`[^\w\-]`)

// SnapshotIndexFile is written next to the screenshots.
const SnapshotIndexFile = "index.json"

// Snapshot describes one saved screenshot.
type Snapshot struct {
	Path      string    `json:"path"`
	URL       string    `json:"url"`
	PageIndex int       `json:"pageIndex"`
	Label     string    `json:"label"`
	Timestamp time.Time `json:"timestamp"`
}

// SnapshotHook is notified after every saved screenshot.
type SnapshotHook func(path, url string, pageIndex int)

// Snapshotter saves viewport screenshots and keeps an index of them.
type Snapshotter struct {
	dir     string
	hook    SnapshotHook
	log     *logger.Logger
	metrics *metrics.Collector
	now     func() time.Time

	mu      sync.Mutex
	entries []Snapshot
}

// NewSnapshotter creates a snapshotter writing into dir. An empty dir disables screenshots.
func NewSnapshotter(dir string, hook SnapshotHook, log *logger.Logger, m *metrics.Collector) *Snapshotter {
	if log == nil {
		log = logger.Nop()
	}
	return &Snapshotter{
		dir:     dir,
		hook:    hook,
		log:     log.WithComponent("snapshot"),
		metrics: m,
		now:     time.Now,
	}
}

// Enabled reports whether screenshots are written.
func (s *Snapshotter) Enabled() bool {
	return s.dir != ""
}

// Dir returns the snapshot directory.
func (s *Snapshotter) Dir() string {
	return s.dir
}

// Filename builds page_NNN_HHMMSS_label.png.
func Filename(pageIndex int, at time.Time, label string) string {
	safe := unsafeLabelChars.ReplaceAllString(label, "_")
	if len(safe) > 30 {
		safe = safe[:30]
	}
	return fmt.Sprintf("page_%03d_%s_%s.png", pageIndex, at.Format("150405"), safe)
}

// Take screenshots page and returns the saved path. Failures are logged and
// reported with an empty path; they never stop the crawl.
func (s *Snapshotter) Take(page Page, pageIndex int, label string) string {
	if !s.Enabled() {
		return ""
	}

	at := s.now()
	path := filepath.Join(s.dir, Filename(pageIndex, at, label))

	data, err := page.Screenshot()
	if err == nil {
		err = os.MkdirAll(s.dir, 0o755)
	}
	if err == nil {
		err = os.WriteFile(path, data, 0o644)
	}
	if err != nil {
		s.log.WithError(err).Debugf("Snapshot %q failed", label)
		return ""
	}

	url := page.URL()
	s.mu.Lock()
	s.entries = append(s.entries, Snapshot{
		Path:      path,
		URL:       url,
		PageIndex: pageIndex,
		Label:     label,
		Timestamp: at,
	})
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.RecordSnapshot()
	}
	s.log.Debugf("Snapshot: %s", filepath.Base(path))
	if s.hook != nil {
		s.hook(path, url, pageIndex)
	}
	return path
}

// Entries returns the snapshots taken so far.
func (s *Snapshotter) Entries() []Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Snapshot, len(s.entries))
	copy(out, s.entries)
	return out
}

// WriteIndex writes index.json listing every snapshot.
func (s *Snapshotter) WriteIndex() error {
	if !s.Enabled() {
		return nil
	}

	entries := s.Entries()
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot index: %w", err)
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create snapshot dir: %w", err)
	}
	return os.WriteFile(filepath.Join(s.dir, SnapshotIndexFile), data, 0o644)
}
