package progress

import (
	"bytes"
	"strings"
	"testing"
	"time"
)

// =============================================================================
// Display Tests
// =============================================================================

func TestDisplay_UpdateBeforeStart(t *testing.T) {
	var buf bytes.Buffer
	d := NewWithWriter(&buf)

	d.Update(1, 2, 3, 4, 5)
	if buf.Len() != 0 {
		t.Errorf("output before Start = %q, want empty", buf.String())
	}
	pages, captured, dups, errs := d.Stats()
	if pages != 1 || captured != 3 || dups != 4 || errs != 5 {
		t.Errorf("Stats() = %d,%d,%d,%d, want 1,3,4,5", pages, captured, dups, errs)
	}
}

func TestDisplay_Update(t *testing.T) {
	var buf bytes.Buffer
	d := NewWithWriter(&buf)
	d.Start("https://example.com", 10)

	d.Update(5, 3, 7, 2, 1)
	out := buf.String()
	for _, want := range []string{"50%", "Pages: 5/10", "Queue: 3", "APIs: 7", "Dups: 2", "Errors: 1"} {
		if !strings.Contains(out, want) {
			t.Errorf("line %q missing %q", out, want)
		}
	}

	d.Update(20, 0, 7, 2, 1)
	if !strings.Contains(buf.String(), "100%") {
		t.Error("progress should cap at 100%")
	}
}

func TestDisplay_StopAndSummary(t *testing.T) {
	var buf bytes.Buffer
	d := NewWithWriter(&buf)
	d.Start("https://example.com", 5)
	d.Update(2, 0, 4, 1, 0)
	d.Stop()
	d.Stop()

	n := buf.Len()
	d.Update(3, 0, 4, 1, 0)
	if buf.Len() != n {
		t.Error("Update after Stop should not draw")
	}

	d.PrintSummary(3)
	out := buf.String()
	if !strings.Contains(out, "Unique Endpoints:    3") {
		t.Errorf("summary missing endpoint count: %q", out)
	}
	if !strings.Contains(out, "API Calls Captured:  4") {
		t.Errorf("summary missing capture count: %q", out)
	}
}

// =============================================================================
// Helper Tests
// =============================================================================

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{5 * time.Second, "5s"},
		{90 * time.Second, "1m30s"},
		{time.Hour + 2*time.Minute + 3*time.Second, "1h02m03s"},
	}
	for _, tt := range tests {
		if got := formatDuration(tt.d); got != tt.want {
			t.Errorf("formatDuration(%v) = %q, want %q", tt.d, got, tt.want)
		}
	}
}

func TestTruncateURL(t *testing.T) {
	if got := truncateURL("https://a.b", 50); got != "https://a.b" {
		t.Errorf("truncateURL short = %q", got)
	}
	got := truncateURL(strings.Repeat("x", 60), 10)
	if got != "xxxxxxx..." {
		t.Errorf("truncateURL long = %q, want xxxxxxx...", got)
	}
}
