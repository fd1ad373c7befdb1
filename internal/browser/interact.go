package browser

import (
	"context"
	"fmt"
	"time"

	"github.com/PentesterFlow/APIHunter/internal/errors"
	"github.com/PentesterFlow/APIHunter/internal/logger"
	"github.com/PentesterFlow/APIHunter/internal/metrics"
)

// Elements that usually open a detail view and fire a detail API call.
var listItemSelectors = []string{
	"table tbody tr",
	"tr[data-id]", "tr[data-row]", "tr[onclick]",
	"li[onclick]", "li[data-id]", ".list-item", ".list-group-item",
	".card[onclick]", `[class*="card"][data-id]`, ".card-body[onclick]",
	"[data-id][onclick]", "[data-item]", "[data-record]",
	"a.list-item", `a[class*="item"]`,
}

// Elements that toggle or expand content in place.
var interactiveSelectors = []string{
	`button:not([type="submit"])`,
	`[role="button"]`,
	`[class*="expand"]`, `[class*="toggle"]`,
	`[class*="dropdown"]`, `[class*="accordion"]`,
	`[class*="tab"]:not(.active)`,
	"[data-toggle]", "[onclick]",
	`[class*="view"]`, `[class*="detail"]`, `[class*="open"]`,
	`[class*="edit"]`, `[class*="show"]`,
}

const scrollScript = `async () => {
	const delay = ms => new Promise(resolve => setTimeout(resolve, ms));
	const height = document.body ? document.body.scrollHeight : 0;
	const step = window.innerHeight || 800;
	for (let y = 0; y < height; y += step) {
		window.scrollTo(0, y);
		await delay(%d);
	}
	window.scrollTo(0, 0);
}`

// InteractTimings controls click timeouts and settle delays.
type InteractTimings struct {
	ListClickTimeout   time.Duration
	ListSettle         time.Duration
	ButtonClickTimeout time.Duration
	ButtonSettle       time.Duration
	BackTimeout        time.Duration
	BackSettle         time.Duration
	ScrollStep         time.Duration
	ScrollSettle       time.Duration
}

// DefaultInteractTimings returns the timings used during a crawl.
func DefaultInteractTimings() InteractTimings {
	return InteractTimings{
		ListClickTimeout:   3 * time.Second,
		ListSettle:         time.Second,
		ButtonClickTimeout: 2 * time.Second,
		ButtonSettle:       500 * time.Millisecond,
		BackTimeout:        5 * time.Second,
		BackSettle:         500 * time.Millisecond,
		ScrollStep:         300 * time.Millisecond,
		ScrollSettle:       500 * time.Millisecond,
	}
}

// ClickObserver is called after each list-item click with a short label for the element.
type ClickObserver func(label string)

// Interactor clicks and scrolls through a page to make it fire API requests.
type Interactor struct {
	timings  InteractTimings
	perGroup int
	log      *logger.Logger
	metrics  *metrics.Collector
	observer ClickObserver
}

// InteractorOption configures an Interactor.
type InteractorOption func(*Interactor)

// WithTimings overrides the default timings.
func WithTimings(t InteractTimings) InteractorOption {
	return func(i *Interactor) { i.timings = t }
}

// WithClickObserver registers the list-item click observer.
func WithClickObserver(fn ClickObserver) InteractorOption {
	return func(i *Interactor) { i.observer = fn }
}

// WithInteractMetrics records clicks in m.
func WithInteractMetrics(m *metrics.Collector) InteractorOption {
	return func(i *Interactor) { i.metrics = m }
}

// WithInteractLogger sets the logger.
func WithInteractLogger(l *logger.Logger) InteractorOption {
	return func(i *Interactor) {
		if l != nil {
			i.log = l.WithComponent("interact")
		}
	}
}

// NewInteractor creates an interaction engine.
func NewInteractor(opts ...InteractorOption) *Interactor {
	i := &Interactor{
		timings:  DefaultInteractTimings(),
		perGroup: 2,
		log:      logger.Nop(),
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Interact clicks list items, then interactive controls, then scrolls the page.
// Element failures are swallowed; only cancellation is returned.
func (i *Interactor) Interact(ctx context.Context, page Page) error {
	origin := page.URL()

	clicked := make(map[string]struct{})
	for _, sel := range listItemSelectors {
		if err := ctx.Err(); err != nil {
			return err
		}
		elements, err := page.Elements(sel)
		if err != nil {
			continue
		}
		for n, el := range first(elements, i.perGroup) {
			if !clickable(el) {
				continue
			}

			label := truncate(el.Text(), 50)
			if label == "" {
				label = fmt.Sprintf("elem_%d", n)
			}
			if _, done := clicked[label]; done {
				continue
			}
			clicked[label] = struct{}{}

			i.log.Debugf("Clicking %q", truncate(label, 40))
			if !i.click(ctx, page, el, sel, i.timings.ListClickTimeout, i.timings.ListSettle) {
				continue
			}
			if i.observer != nil {
				i.observer(label)
			}
			i.returnTo(ctx, page, origin)
		}
	}

	for _, sel := range interactiveSelectors {
		if err := ctx.Err(); err != nil {
			return err
		}
		elements, err := page.Elements(sel)
		if err != nil {
			continue
		}
		for _, el := range first(elements, i.perGroup) {
			if !clickable(el) {
				continue
			}
			if i.click(ctx, page, el, sel, i.timings.ButtonClickTimeout, i.timings.ButtonSettle) {
				i.returnTo(ctx, page, origin)
			}
		}
	}

	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := page.Eval(fmt.Sprintf(scrollScript, i.timings.ScrollStep.Milliseconds())); err != nil {
		i.log.WithError(err).Debug("Scroll failed")
	}
	return sleep(ctx, i.timings.ScrollSettle)
}

func (i *Interactor) click(ctx context.Context, page Page, el Element, selector string, timeout, settle time.Duration) bool {
	if err := el.Click(ctx, timeout); err != nil {
		i.fail(page.URL(), selector, err)
		return false
	}
	if i.metrics != nil {
		i.metrics.RecordInteraction(true)
	}
	_ = sleep(ctx, settle)
	return true
}

func (i *Interactor) fail(pageURL, selector string, cause error) {
	err := errors.NewInteractionError(pageURL, selector, cause)
	i.log.WithError(err).Debug("Interaction failed")
	if i.metrics != nil {
		i.metrics.RecordInteraction(false)
		i.metrics.RecordError(err.Type.String())
	}
}

// returnTo goes back when a click navigated away from origin.
func (i *Interactor) returnTo(ctx context.Context, page Page, origin string) {
	if page.URL() == origin {
		return
	}
	backCtx, cancel := context.WithTimeout(ctx, i.timings.BackTimeout)
	defer cancel()
	if err := page.NavigateBack(backCtx); err != nil {
		i.log.WithURL(page.URL()).WithError(err).Debug("Navigate back failed")
		return
	}
	_ = sleep(ctx, i.timings.BackSettle)
}

func clickable(el Element) bool {
	if !el.Visible() {
		return false
	}
	_, ok := el.Box()
	return ok
}

func first(elements []Element, n int) []Element {
	if len(elements) > n {
		return elements[:n]
	}
	return elements
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) > n {
		return string(r[:n])
	}
	return s
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
