package crawler

import (
	"context"
	stderrors "errors"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/PentesterFlow/APIHunter/internal/analyzer"
	"github.com/PentesterFlow/APIHunter/internal/auth"
	"github.com/PentesterFlow/APIHunter/internal/browser"
	"github.com/PentesterFlow/APIHunter/internal/errors"
	"github.com/PentesterFlow/APIHunter/internal/logger"
	"github.com/PentesterFlow/APIHunter/internal/metrics"
	"github.com/PentesterFlow/APIHunter/internal/models"
	"github.com/PentesterFlow/APIHunter/internal/parser"
	"github.com/PentesterFlow/APIHunter/internal/progress"
	"github.com/PentesterFlow/APIHunter/internal/queue"
	"github.com/PentesterFlow/APIHunter/internal/ratelimit"
	"github.com/PentesterFlow/APIHunter/internal/scope"
	"github.com/PentesterFlow/APIHunter/internal/state"
)

// ErrAlreadyRunning is returned when Crawl is called while a crawl is in progress.
var ErrAlreadyRunning = stderrors.New("crawl already running")

const (
	defaultSettle  = time.Second
	defaultQuiet   = 500 * time.Millisecond
	finishTimeout  = 5 * time.Second
	reportInterval = time.Second
)

// Crawler is the hunt orchestrator. It owns the frontier, the visited set and
// the browser session for the duration of a crawl.
type Crawler struct {
	config          *Config
	driver          browser.Driver
	codeProvider    auth.CodeProvider
	snapshotHook    SnapshotHook
	notify          Notifier
	logger          *logger.Logger
	metrics         *metrics.Collector
	errLog          *errors.Log
	authTimings     *auth.Timings
	interactTimings *browser.InteractTimings
	settle          time.Duration
	idleQuiet       time.Duration

	showProgress bool
	progress     *progress.Display

	running atomic.Bool
	mu      sync.Mutex
	cancel  context.CancelFunc
}

// New creates a new crawler with the given options.
func New(opts ...Option) (*Crawler, error) {
	c := &Crawler{
		config:    DefaultConfig(),
		settle:    defaultSettle,
		idleQuiet: defaultQuiet,
	}

	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, fmt.Errorf("failed to apply option: %w", err)
		}
	}

	if err := c.config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	if c.logger == nil {
		logLevel := logger.InfoLevel
		if c.config.Debug {
			logLevel = logger.DebugLevel
		} else if !c.config.Verbose {
			logLevel = logger.WarnLevel
		}
		c.logger = logger.New(logger.Config{
			Level:     logLevel,
			Pretty:    true,
			Component: "crawler",
		})
	} else {
		c.logger = c.logger.WithComponent("crawler")
	}

	if c.metrics == nil {
		c.metrics = metrics.New()
	}
	if c.errLog == nil {
		c.errLog = errors.NewLog()
	}
	if c.driver == nil {
		c.driver = browser.NewRodDriver(c.config.BrowserConfig(), c.logger)
	}
	if c.showProgress {
		c.progress = progress.New()
	}

	return c, nil
}

// Config returns a copy of the crawl configuration.
func (c *Crawler) Config() *Config {
	return c.config.Clone()
}

// Metrics returns the metrics collector.
func (c *Crawler) Metrics() *metrics.Collector {
	return c.metrics
}

// ErrorLog returns the run error log.
func (c *Crawler) ErrorLog() *errors.Log {
	return c.errLog
}

// Progress returns the progress display, or nil when disabled.
func (c *Crawler) Progress() *progress.Display {
	return c.progress
}

// IsRunning reports whether a crawl is in progress.
func (c *Crawler) IsRunning() bool {
	return c.running.Load()
}

// Stop cancels the running crawl. Crawl returns the partial results.
func (c *Crawler) Stop() {
	c.mu.Lock()
	cancel := c.cancel
	c.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Crawl visits pages breadth-first from the start URL and returns the visit
// summary and every captured API call. A cancelled crawl returns what it
// gathered so far together with a fatal error wrapping context.Canceled.
func (c *Crawler) Crawl(ctx context.Context) (*CrawlResult, []models.CapturedEndpoint, error) {
	if !c.running.CompareAndSwap(false, true) {
		return nil, nil, ErrAlreadyRunning
	}
	defer c.running.Store(false)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	c.mu.Lock()
	c.cancel = cancel
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.cancel = nil
		c.mu.Unlock()
	}()

	c.metrics.Reset()
	r, err := c.newRun()
	if err != nil {
		return nil, nil, err
	}
	defer r.interceptor.Close()

	return r.execute(ctx)
}

func (c *Crawler) emit(t EventType, data interface{}) {
	if c.notify == nil {
		return
	}
	c.notify(Event{Type: t, Data: data, Timestamp: time.Now()})
}

// run is the state of one Crawl call.
type run struct {
	c      *Crawler
	cfg    *Config
	id     string
	log    *logger.Logger
	result *CrawlResult

	checker     *scope.Checker
	interceptor *browser.Interceptor
	snapshots   *browser.Snapshotter
	interactor  *browser.Interactor
	frontier    *queue.Frontier
	visited     *state.VisitedSet
	limiter     *ratelimit.AdaptiveLimiter
	session     browser.Session

	captures atomic.Int64

	// Per-page state read by the click observer.
	page      browser.Page
	pageIndex int
	lastCount int
}

func (c *Crawler) newRun() (*run, error) {
	cfg := c.config
	id := uuid.NewString()

	checker, err := scope.NewChecker(cfg.StartURL, scope.Rules{
		ExcludePatterns:   cfg.ExcludePatterns,
		IncludeSubdomains: cfg.IncludeSubdomains,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create scope checker: %w", err)
	}

	interceptor, err := browser.NewInterceptor(browser.InterceptorConfig{
		IncludePatterns: cfg.IncludePatterns,
		ExcludePatterns: cfg.ExcludePatterns,
		BufferSize:      cfg.EventBuffer,
		Logger:          c.logger,
		Metrics:         c.metrics,
		ErrorLog:        c.errLog,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create interceptor: %w", err)
	}

	r := &run{
		c:           c,
		cfg:         cfg,
		id:          id,
		log:         c.logger.WithField("run_id", id),
		checker:     checker,
		interceptor: interceptor,
		frontier:    queue.NewFrontier(scope.NormalizeURL),
		visited:     state.NewVisitedSet(cfg.MaxPages * 4),
		limiter:     ratelimit.NewAdaptiveLimiter(cfg.RateLimit/4, cfg.RateLimit, 1, 10),
		result: &CrawlResult{
			RunID:       id,
			StartURL:    cfg.StartURL,
			VisitedURLs: []string{},
		},
	}

	interceptor.OnCapture(r.onCapture)

	snapshotDir := ""
	if cfg.Screenshots {
		snapshotDir = filepath.Join(cfg.OutputDir, "snapshots")
		r.result.SnapshotsDir = snapshotDir
	}
	r.snapshots = browser.NewSnapshotter(snapshotDir, r.onSnapshot, c.logger, c.metrics)

	interactOpts := []browser.InteractorOption{
		browser.WithInteractLogger(c.logger),
		browser.WithInteractMetrics(c.metrics),
		browser.WithClickObserver(r.afterClick),
	}
	if c.interactTimings != nil {
		interactOpts = append(interactOpts, browser.WithTimings(*c.interactTimings))
	}
	r.interactor = browser.NewInteractor(interactOpts...)

	return r, nil
}

func (r *run) execute(ctx context.Context) (*CrawlResult, []models.CapturedEndpoint, error) {
	r.result.StartTime = time.Now()
	r.log.Infof("Starting hunt of %s (max %d pages, depth %d)", r.cfg.StartURL, r.cfg.MaxPages, r.cfg.MaxDepth)

	session, err := r.c.driver.Open(ctx, r.interceptor.Handle)
	if err != nil {
		fatal := errors.NewFatalError(r.cfg.StartURL, "open browser", err)
		r.c.errLog.Add(fatal, r.cfg.StartURL)
		r.finalize(0)
		return r.result, nil, fatal
	}
	r.session = session

	if p := r.c.progress; p != nil {
		p.Start(r.cfg.StartURL, r.cfg.MaxPages)
	}
	reporterDone := make(chan struct{})
	reporterCtx, stopReporter := context.WithCancel(ctx)
	go func() {
		defer close(reporterDone)
		r.statusReporter(reporterCtx)
	}()

	r.authenticate(ctx)

	runErr := r.loop(ctx)
	if runErr == nil && ctx.Err() != nil {
		runErr = errors.NewCancelledError(r.cfg.StartURL, "crawl")
	}
	if runErr != nil && errors.IsFatal(runErr) && !stderrors.Is(runErr, context.Canceled) {
		r.log.WithError(runErr).Error("Hunt aborted")
	} else if runErr != nil {
		r.log.Warn("Hunt cancelled, returning partial results")
	}

	stopReporter()
	<-reporterDone
	if p := r.c.progress; p != nil {
		p.Stop()
	}

	abandoned := r.finish()
	captured := r.interceptor.Captured()
	r.finalize(abandoned)

	r.c.logger.StatsEvent(r.c.metrics.Snapshot().Summary())
	r.c.emit(EventStatus, r.status(StateDone))
	return r.result, captured, runErr
}

// loop drains the frontier until it is empty or the page budget is spent.
func (r *run) loop(ctx context.Context) error {
	_, _ = r.frontier.Push(&queue.QueueItem{URL: r.cfg.StartURL, Depth: 0, Timestamp: time.Now()})

	for !r.frontier.IsEmpty() && r.visited.Count() < r.cfg.MaxPages {
		if ctx.Err() != nil {
			return nil
		}

		item, err := r.frontier.Pop()
		if err != nil {
			break
		}

		key := scope.NormalizeURL(item.URL)
		if r.visited.Has(key) || !r.checker.ShouldVisit(item.URL) {
			r.c.metrics.RecordPageSkipped()
			continue
		}
		r.visited.Add(key)
		r.result.VisitedURLs = append(r.result.VisitedURLs, item.URL)

		if err := r.visit(ctx, item, r.visited.Count()); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
	}
	return nil
}

// visit processes one page. It returns a non-nil error only for fatal
// conditions and cancellation.
func (r *run) visit(ctx context.Context, item *queue.QueueItem, index int) error {
	cfg := r.cfg
	log := r.log.WithPage(index, item.URL, item.Depth)
	r.c.logger.PageEvent(index, item.URL, item.Depth, cfg.MaxDepth)
	r.c.emit(EventPage, PageVisit{Index: index, URL: item.URL, Depth: item.Depth, MaxPages: cfg.MaxPages})

	if err := r.limiter.WaitHost(ctx, scope.Host(item.URL)); err != nil && ctx.Err() != nil {
		return ctx.Err()
	}

	page := r.session.Page()
	r.interceptor.SetSourcePage(item.URL)

	navCtx, cancel := context.WithTimeout(ctx, orDefault(cfg.Browser.NavigationTimeout, 30*time.Second))
	started := time.Now()
	err := page.Navigate(navCtx, item.URL)
	cancel()
	r.c.metrics.RecordNavigationTime(time.Since(started))

	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !r.session.Alive() {
			fatal := errors.NewFatalError(item.URL, "navigate", err)
			r.c.errLog.Add(fatal, item.URL)
			r.c.metrics.RecordError(errors.Fatal.String())
			return fatal
		}

		navErr := errors.NewNavigationError(item.URL, err)
		r.c.errLog.Add(navErr, item.URL)
		r.c.metrics.RecordPageFailed()
		r.c.metrics.RecordError(errors.Navigation.String())
		r.limiter.RecordError()
		log.ErrorEvent(navErr, item.URL, "navigate")
		r.c.emit(EventError, errors.Entry{Type: errors.Navigation.String(), URL: item.URL, Message: navErr.Error(), Timestamp: time.Now()})
		r.snapshots.Take(page, index, "error")
		return nil
	}
	r.limiter.RecordSuccess()
	r.c.metrics.RecordPageVisited()

	if err := sleep(ctx, msDuration(cfg.WaitTime)); err != nil {
		return err
	}
	r.waitIdle(ctx, log)
	if !browser.WaitForContent(ctx, page, orDefault(cfg.Browser.IdleTimeout, 10*time.Second)) && ctx.Err() == nil {
		log.Debug("Loading indicators still visible, continuing")
	}

	r.snapshots.Take(page, index, "initial")

	r.page, r.pageIndex, r.lastCount = page, index, r.interceptor.Count()
	if err := r.interactor.Interact(ctx, page); err != nil {
		return err
	}

	r.snapshots.Take(page, index, "after_interactions")

	if err := sleep(ctx, r.c.settle); err != nil {
		return err
	}
	if err := r.interceptor.Flush(ctx); err != nil {
		return err
	}

	if item.Depth < cfg.MaxDepth {
		r.enqueueLinks(page, item, log)
	}
	return nil
}

func (r *run) waitIdle(ctx context.Context, log *logger.Logger) {
	idleCtx, cancel := context.WithTimeout(ctx, orDefault(r.cfg.Browser.IdleTimeout, 10*time.Second))
	defer cancel()
	if err := r.session.WaitIdle(idleCtx, r.c.idleQuiet); err != nil && ctx.Err() == nil {
		log.Debug("Network not idle, continuing")
	}
}

// enqueueLinks queues the page's in-scope links while the page budget allows.
func (r *run) enqueueLinks(page browser.Page, item *queue.QueueItem, log *logger.Logger) {
	html, err := page.HTML()
	if err != nil {
		log.WithError(err).Debug("Failed to read page HTML")
		return
	}

	base := page.URL()
	if base == "" {
		base = item.URL
	}
	extractor, err := parser.NewLinkExtractor(base)
	if err != nil {
		return
	}
	links, err := extractor.Extract(html)
	if err != nil {
		log.WithError(err).Debug("Failed to extract links")
		return
	}

	queued := 0
	for _, link := range links {
		if r.visited.Count()+r.frontier.Len() >= r.cfg.MaxPages {
			break
		}
		if !r.checker.ShouldVisit(link) || r.visited.Has(scope.NormalizeURL(link)) {
			continue
		}
		added, err := r.frontier.Push(&queue.QueueItem{
			URL:       link,
			Depth:     item.Depth + 1,
			ParentURL: item.URL,
			Timestamp: time.Now(),
		})
		if err == nil && added {
			queued++
		}
	}

	r.c.metrics.RecordLinksQueued(queued)
	log.Debugf("Queued %d of %d links", queued, len(links))
}

// authenticate installs session material and logs in. Failure is logged and the crawl continues.
func (r *run) authenticate(ctx context.Context) {
	cfg := r.cfg
	if !cfg.HasAuth() {
		return
	}
	r.c.emit(EventStatus, r.status(StateAuthenticating))

	source := cfg.LoginURL
	if source == "" {
		source = cfg.StartURL
	}
	r.interceptor.SetSourcePage(source)

	opts := []auth.Option{
		auth.WithLogger(r.c.logger),
		auth.WithErrorLog(r.c.errLog),
	}
	if r.c.codeProvider != nil {
		opts = append(opts, auth.WithCodeProvider(r.c.codeProvider))
	}
	if r.c.authTimings != nil {
		opts = append(opts, auth.WithTimings(*r.c.authTimings))
	} else {
		t := auth.DefaultTimings()
		t.NavigationTimeout = cfg.Browser.NavigationTimeout
		t.IdleTimeout = cfg.Browser.IdleTimeout
		opts = append(opts, auth.WithTimings(t))
	}

	controller := auth.NewController(auth.Config{
		StartURL:         cfg.StartURL,
		LoginURL:         cfg.LoginURL,
		Username:         cfg.Username,
		Password:         cfg.Password,
		UsernameSelector: cfg.UsernameField,
		PasswordSelector: cfg.PasswordField,
		Headers:          cfg.AuthHeaders,
		Cookies:          cfg.Cookies,
		MaxCodeAttempts:  cfg.TwoFactorAttempts,
	}, opts...)

	res := controller.Authenticate(ctx, r.session)
	r.result.Auth = &res
	if !res.Success {
		r.log.Warnf("Authentication failed (%s), continuing unauthenticated", res.Reason)
		r.c.emit(EventError, errors.Entry{Type: errors.AuthFailure.String(), URL: cfg.LoginURL, Message: res.Reason, Timestamp: time.Now()})
		return
	}
	r.log.Infof("Authentication finished: %s", res.State)
}

// afterClick snapshots the page when a click produced new captures.
func (r *run) afterClick(label string) {
	flushCtx, cancel := context.WithTimeout(context.Background(), finishTimeout)
	defer cancel()
	_ = r.interceptor.Flush(flushCtx)

	n := r.interceptor.Count()
	if n <= r.lastCount {
		return
	}
	r.lastCount = n
	r.snapshots.Take(r.page, r.pageIndex, "after_click_"+label)
}

func (r *run) onCapture(ep models.CapturedEndpoint) {
	total := r.captures.Add(1)
	notice := CaptureNotice{
		Method:     ep.Request.Method,
		URL:        ep.Request.URL,
		Status:     ep.Response.StatusCode,
		SourcePage: ep.SourcePage,
		Total:      int(total),
	}
	if r.cfg.RedactSensitive {
		notice.URL = analyzer.RedactURL(notice.URL)
		notice.SourcePage = analyzer.RedactURL(notice.SourcePage)
	}
	r.c.emit(EventCaptured, notice)
}

func (r *run) onSnapshot(path, url string, pageIndex int) {
	if r.c.snapshotHook != nil {
		r.c.snapshotHook(path, url, pageIndex)
	}
	r.c.emit(EventSnapshot, SnapshotNotice{Path: path, URL: url, PageIndex: pageIndex})
}

// finish drains the interceptor, drops unmatched requests, closes the browser
// and writes the snapshot index. It returns the number of abandoned requests.
func (r *run) finish() int {
	r.c.emit(EventStatus, r.status(StateFinishing))

	flushCtx, cancel := context.WithTimeout(context.Background(), finishTimeout)
	defer cancel()
	if err := r.interceptor.Flush(flushCtx); err != nil {
		r.log.WithError(err).Warn("Interceptor did not drain")
	}

	abandoned := r.interceptor.Abandon()
	if abandoned > 0 {
		r.log.Debugf("Abandoned %d request(s) without a response", abandoned)
	}

	if err := r.session.Close(); err != nil {
		r.log.WithError(err).Debug("Failed to close browser")
	}

	if r.snapshots.Enabled() {
		if err := r.snapshots.WriteIndex(); err != nil {
			r.log.WithError(err).Warn("Failed to write snapshot index")
		}
	}
	return abandoned
}

func (r *run) finalize(abandoned int) {
	res := r.result
	res.EndTime = time.Now()
	if res.StartTime.IsZero() {
		res.StartTime = res.EndTime
	}
	res.Duration = res.EndTime.Sub(res.StartTime)
	res.Errors = r.c.errLog.Entries()

	snap := r.c.metrics.Snapshot()
	is := r.interceptor.Stats()
	res.Stats = CrawlStats{
		PagesVisited:         len(res.VisitedURLs),
		PagesFailed:          int(snap.PagesFailed),
		PagesSkipped:         int(snap.PagesSkipped),
		LinksQueued:          int(snap.LinksQueued),
		RequestsSeen:         is.Requests,
		Captured:             is.Captured,
		DuplicatesSuppressed: is.Duplicates,
		ResponsesUnmatched:   is.Unmatched,
		AbandonedRequests:    abandoned,
		Snapshots:            int(snap.Snapshots),
		Interactions:         int(snap.Interactions),
		ErrorCount:           len(res.Errors),
		AvgNavigationMS:      float64(snap.AverageNavigationTime.Microseconds()) / 1000,
	}
}

func (r *run) status(s string) Status {
	is := r.interceptor.Stats()
	st := Status{
		State:        s,
		PagesVisited: r.visited.Count(),
		MaxPages:     r.cfg.MaxPages,
		Queue:        r.frontier.Len(),
		Captured:     is.Captured,
		Duplicates:   is.Duplicates,
		Errors:       r.c.errLog.Len(),
	}
	if !r.limiter.Unlimited() {
		st.NavRate = r.limiter.CurrentRate()
	}
	return st
}

// statusReporter feeds metrics, the progress line and the notifier once a second.
func (r *run) statusReporter(ctx context.Context) {
	ticker := time.NewTicker(reportInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			st := r.status(StateCrawling)
			r.c.metrics.SetQueueDepth(st.Queue)

			if p := r.c.progress; p != nil {
				p.Update(st.PagesVisited, st.Queue, st.Captured, st.Duplicates, st.Errors)
			} else {
				r.c.logger.StatsEvent(map[string]interface{}{
					"pages_visited": st.PagesVisited,
					"queue_depth":   st.Queue,
					"captured":      st.Captured,
					"duplicates":    st.Duplicates,
					"errors":        st.Errors,
					"nav_rate":      st.NavRate,
				})
			}
			r.c.emit(EventStatus, st)
		}
	}
}

func orDefault(d, def time.Duration) time.Duration {
	if d <= 0 {
		return def
	}
	return d
}

func msDuration(ms int) time.Duration {
	return time.Duration(ms) * time.Millisecond
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
