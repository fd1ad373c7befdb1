package browser

import (
	"context"
	"time"
)

// Selectors of spinners and skeletons rendered while an SPA fetches its data.
var loadingSelectors = []string{
	".loading", ".spinner", ".loader", ".skeleton",
	"[class*='loading']", "[class*='spinner']",
	"mat-spinner", "mat-progress-spinner",
	".ng-loading", "[data-loading]", "[aria-busy='true']",
}

// Loading reports whether a loading indicator is visible on the page.
func Loading(page Page) bool {
	for _, sel := range loadingSelectors {
		elements, err := page.Elements(sel)
		if err != nil {
			continue
		}
		for _, el := range elements {
			if el.Visible() {
				return true
			}
		}
	}
	return false
}

// WaitForContent polls until no loading indicator is visible or maxWait elapses.
// It reports whether the page settled.
func WaitForContent(ctx context.Context, page Page, maxWait time.Duration) bool {
	deadline := time.Now().Add(maxWait)
	for {
		if !Loading(page) {
			return true
		}
		if time.Now().After(deadline) {
			return false
		}
		if err := sleep(ctx, 200*time.Millisecond); err != nil {
			return false
		}
	}
}
