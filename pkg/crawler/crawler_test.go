package crawler_test

import (
	"context"
	stderrors "errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/PentesterFlow/APIHunter/internal/analyzer"
	"github.com/PentesterFlow/APIHunter/internal/auth"
	"github.com/PentesterFlow/APIHunter/internal/browser"
	"github.com/PentesterFlow/APIHunter/internal/browser/browsertest"
	"github.com/PentesterFlow/APIHunter/internal/errors"
	"github.com/PentesterFlow/APIHunter/internal/logger"
	"github.com/PentesterFlow/APIHunter/internal/models"
	"github.com/PentesterFlow/APIHunter/pkg/crawler"
)

const origin = "https://x.test"

func testConfig(t *testing.T) *crawler.Config {
	t.Helper()
	cfg := crawler.DefaultConfig()
	cfg.StartURL = origin + "/"
	cfg.WaitTime = 0
	cfg.Screenshots = false
	cfg.OutputDir = t.TempDir()
	return cfg
}

// newCrawler builds a crawler over a fake site with every wait shortened.
func newCrawler(t *testing.T, cfg *crawler.Config, driver browser.Driver, opts ...crawler.Option) *crawler.Crawler {
	t.Helper()
	base := []crawler.Option{
		crawler.WithConfig(cfg),
		crawler.WithDriver(driver),
		crawler.WithLogger(logger.Nop()),
		crawler.WithSettleTime(0),
		crawler.WithIdleQuiet(0),
		crawler.WithInteractTimings(browser.InteractTimings{
			ListClickTimeout:   time.Second,
			ButtonClickTimeout: time.Second,
			BackTimeout:        time.Second,
		}),
		crawler.WithAuthTimings(auth.Timings{
			NavigationTimeout: time.Second,
			IdleTimeout:       time.Second,
			ClickTimeout:      time.Second,
		}),
	}
	c, err := crawler.New(append(base, opts...)...)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return c
}

func links(paths ...string) string {
	var b strings.Builder
	b.WriteString("<html><body>")
	for _, p := range paths {
		fmt.Fprintf(&b, `<a href="%s">%s</a>`, p, p)
	}
	b.WriteString("</body></html>")
	return b.String()
}

// =============================================================================
// New Tests
// =============================================================================

func TestNew_InvalidConfig(t *testing.T) {
	if _, err := crawler.New(crawler.WithLogger(logger.Nop())); err == nil {
		t.Error("New() without a start URL should fail")
	}
	if _, err := crawler.New(crawler.WithConfig(nil)); err == nil {
		t.Error("New(WithConfig(nil)) should fail")
	}
	if _, err := crawler.New(crawler.WithStartURL(origin), crawler.WithRateLimit(-1)); err == nil {
		t.Error("New() with a negative rate should fail")
	}
}

func TestNew_DoesNotMutateConfig(t *testing.T) {
	cfg := testConfig(t)
	c := newCrawler(t, cfg, browsertest.NewDriver(browsertest.NewSite()), crawler.WithMaxPages(2))

	if cfg.MaxPages != 50 {
		t.Errorf("caller config MaxPages = %d, want 50", cfg.MaxPages)
	}
	if c.Config().MaxPages != 2 {
		t.Errorf("crawler MaxPages = %d, want 2", c.Config().MaxPages)
	}
}

// =============================================================================
// Crawl Tests
// =============================================================================

func TestCrawl_EndToEnd(t *testing.T) {
	row := &browsertest.Element{
		Label: "a",
		Calls: []browsertest.Call{
			browsertest.JSON("GET", origin+"/api/users/1", 200, `{"id":1,"name":"a","email":"a@x.com"}`),
		},
	}
	site := browsertest.NewSite().
		Add(origin+"/", &browsertest.PageSpec{HTML: links("/users")}).
		Add(origin+"/users", &browsertest.PageSpec{
			HTML:     `<table><tbody><tr><td>a</td></tr></tbody></table>`,
			Calls:    []browsertest.Call{browsertest.JSON("GET", origin+"/api/users", 200, `[{"id":1,"name":"a"}]`)},
			Elements: map[string][]*browsertest.Element{"table tbody tr": {row}},
		})

	c := newCrawler(t, testConfig(t), browsertest.NewDriver(site))
	res, captured, err := c.Crawl(context.Background())
	if err != nil {
		t.Fatalf("Crawl() error = %v", err)
	}

	if got := res.VisitedURLs; len(got) != 2 || got[0] != origin+"/" || got[1] != origin+"/users" {
		t.Errorf("VisitedURLs = %v, want [/ /users]", got)
	}
	if len(captured) != 2 {
		t.Fatalf("captured = %d, want 2", len(captured))
	}
	for _, ep := range captured {
		if ep.SourcePage != origin+"/users" {
			t.Errorf("SourcePage of %s = %q, want /users", ep.Request.URL, ep.SourcePage)
		}
	}
	if res.Stats.Captured != 2 {
		t.Errorf("Stats.Captured = %d, want 2", res.Stats.Captured)
	}
	if row.Clicks() != 1 {
		t.Errorf("row clicks = %d, want 1", row.Clicks())
	}

	groups := analyzer.New(analyzer.DefaultConfig()).Analyze(captured)
	if len(groups) != 2 {
		t.Fatalf("groups = %d, want 2", len(groups))
	}
	if groups[0].Method != models.MethodGet || groups[0].PathPattern != "/api/users" {
		t.Errorf("groups[0] = %s %s, want GET /api/users", groups[0].Method, groups[0].PathPattern)
	}
	detail := groups[1]
	if detail.Method != models.MethodGet || detail.PathPattern != "/api/users/{id}" {
		t.Fatalf("groups[1] = %s %s, want GET /api/users/{id}", detail.Method, detail.PathPattern)
	}

	id := detail.Parameter("id", models.InPath)
	if id == nil {
		t.Fatal("missing path parameter id")
	}
	if id.Type != models.TypeInteger {
		t.Errorf("id type = %v, want integer", id.Type)
	}
	if !id.Example.Equal(models.Int(1)) {
		t.Errorf("id example = %s, want 1", id.Example.JSON())
	}

	resp := detail.Response(200)
	if resp == nil {
		t.Fatal("missing 200 response")
	}
	if email := resp.Property("email"); email == nil || email.Format != "email" {
		t.Errorf("email property = %+v, want format email", email)
	}
}

func TestCrawl_VisitedBound(t *testing.T) {
	tests := []struct {
		maxPages int
	}{
		{1}, {3}, {5}, {10},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("max_%d", tt.maxPages), func(t *testing.T) {
			site := browsertest.NewSite()
			var hub []string
			for i := 0; i < 20; i++ {
				p := fmt.Sprintf("/p%d", i)
				hub = append(hub, p)
				var sub []string
				for j := 0; j < 20; j++ {
					sub = append(sub, fmt.Sprintf("%s/q%d", p, j))
				}
				site.Add(origin+p, &browsertest.PageSpec{HTML: links(sub...)})
			}
			site.Add(origin+"/", &browsertest.PageSpec{HTML: links(hub...)})

			cfg := testConfig(t)
			cfg.MaxPages = tt.maxPages
			res, _, err := newCrawler(t, cfg, browsertest.NewDriver(site)).Crawl(context.Background())
			if err != nil {
				t.Fatalf("Crawl() error = %v", err)
			}

			if got := len(res.VisitedURLs); got > tt.maxPages {
				t.Errorf("visited %d pages, want <= %d", got, tt.maxPages)
			}
			if got := len(res.VisitedURLs); got != tt.maxPages {
				t.Errorf("visited %d pages, want exactly %d on a large site", got, tt.maxPages)
			}
		})
	}
}

func TestCrawl_QueryOrderDedup(t *testing.T) {
	site := browsertest.NewSite().
		Add(origin+"/", &browsertest.PageSpec{HTML: links("/a?b=1&amp;c=2", "/a?c=2&amp;b=1", "/a?b=1&amp;c=2#top")}).
		Add(origin+"/a?b=1&c=2", &browsertest.PageSpec{HTML: links("/a?c=2&amp;b=1")})

	res, _, err := newCrawler(t, testConfig(t), browsertest.NewDriver(site)).Crawl(context.Background())
	if err != nil {
		t.Fatalf("Crawl() error = %v", err)
	}

	if len(res.VisitedURLs) != 2 {
		t.Errorf("VisitedURLs = %v, want start and one /a", res.VisitedURLs)
	}
	if len(res.Errors) != 0 {
		t.Errorf("Errors = %v, want none", res.Errors)
	}
}

func TestCrawl_MaxDepth(t *testing.T) {
	site := browsertest.NewSite().
		Add(origin+"/", &browsertest.PageSpec{HTML: links("/one")}).
		Add(origin+"/one", &browsertest.PageSpec{HTML: links("/two")}).
		Add(origin+"/two", &browsertest.PageSpec{HTML: links("/three")}).
		Add(origin+"/three", &browsertest.PageSpec{})

	tests := []struct {
		depth int
		want  int
	}{
		{0, 1},
		{1, 2},
		{2, 3},
		{5, 4},
	}
	for _, tt := range tests {
		cfg := testConfig(t)
		cfg.MaxDepth = tt.depth
		res, _, err := newCrawler(t, cfg, browsertest.NewDriver(site)).Crawl(context.Background())
		if err != nil {
			t.Fatalf("Crawl() error = %v", err)
		}
		if got := len(res.VisitedURLs); got != tt.want {
			t.Errorf("depth %d: visited %d, want %d", tt.depth, got, tt.want)
		}
	}
}

func TestCrawl_Scope(t *testing.T) {
	site := browsertest.NewSite().
		Add(origin+"/", &browsertest.PageSpec{HTML: links(
			"/admin/users",
			"https://other.test/page",
			"/logo.png",
			"/docs",
			"mailto:a@x.test",
		)}).
		Add(origin+"/docs", &browsertest.PageSpec{})

	cfg := testConfig(t)
	cfg.ExcludePatterns = append(cfg.ExcludePatterns, origin+"/admin")
	res, _, err := newCrawler(t, cfg, browsertest.NewDriver(site)).Crawl(context.Background())
	if err != nil {
		t.Fatalf("Crawl() error = %v", err)
	}

	want := []string{origin + "/", origin + "/docs"}
	if len(res.VisitedURLs) != len(want) {
		t.Fatalf("VisitedURLs = %v, want %v", res.VisitedURLs, want)
	}
	for i := range want {
		if res.VisitedURLs[i] != want[i] {
			t.Errorf("VisitedURLs[%d] = %q, want %q", i, res.VisitedURLs[i], want[i])
		}
	}
}

func TestCrawl_NavigationErrorContinues(t *testing.T) {
	site := browsertest.NewSite().
		Add(origin+"/", &browsertest.PageSpec{HTML: links("/broken", "/ok")}).
		Add(origin+"/broken", &browsertest.PageSpec{Err: stderrors.New("net::ERR_CONNECTION_REFUSED")}).
		Add(origin+"/ok", &browsertest.PageSpec{
			Calls: []browsertest.Call{browsertest.JSON("GET", origin+"/api/ok", 200, `{}`)},
		})

	res, captured, err := newCrawler(t, testConfig(t), browsertest.NewDriver(site)).Crawl(context.Background())
	if err != nil {
		t.Fatalf("Crawl() error = %v", err)
	}

	if len(res.VisitedURLs) != 3 {
		t.Errorf("VisitedURLs = %v, want 3 entries", res.VisitedURLs)
	}
	if len(res.Errors) != 1 {
		t.Fatalf("Errors = %v, want 1", res.Errors)
	}
	if res.Errors[0].Type != errors.Navigation.String() || res.Errors[0].URL != origin+"/broken" {
		t.Errorf("Errors[0] = %+v, want navigation error for /broken", res.Errors[0])
	}
	if res.Stats.PagesFailed != 1 {
		t.Errorf("Stats.PagesFailed = %d, want 1", res.Stats.PagesFailed)
	}
	if len(captured) != 1 {
		t.Errorf("captured = %d, want 1", len(captured))
	}
}

func TestCrawl_DeadBrowserIsFatal(t *testing.T) {
	site := browsertest.NewSite().
		Add(origin+"/", &browsertest.PageSpec{HTML: links("/a", "/b")}).
		Add(origin+"/a", &browsertest.PageSpec{}).
		Add(origin+"/b", &browsertest.PageSpec{})

	driver := browsertest.NewDriver(site)
	driver.DieAfter = 1

	res, _, err := newCrawler(t, testConfig(t), driver).Crawl(context.Background())
	if err == nil {
		t.Fatal("Crawl() error = nil, want fatal")
	}
	if !errors.IsFatal(err) {
		t.Errorf("error %v should be fatal", err)
	}
	if stderrors.Is(err, context.Canceled) {
		t.Error("dead browser should not look like cancellation")
	}
	if len(res.VisitedURLs) != 2 {
		t.Errorf("VisitedURLs = %v, want 2 entries", res.VisitedURLs)
	}
	if !driver.Sessions()[0].Closed() {
		t.Error("session should be closed")
	}
}

func TestCrawl_OpenFailure(t *testing.T) {
	driver := browsertest.NewDriver(browsertest.NewSite())
	driver.OpenErr = stderrors.New("chrome not found")

	res, captured, err := newCrawler(t, testConfig(t), driver).Crawl(context.Background())
	if !errors.IsFatal(err) {
		t.Errorf("Crawl() error = %v, want fatal", err)
	}
	if res == nil || len(res.VisitedURLs) != 0 {
		t.Errorf("result = %+v, want empty result", res)
	}
	if captured != nil {
		t.Errorf("captured = %v, want nil", captured)
	}
}

func TestCrawl_Cancellation(t *testing.T) {
	site := browsertest.NewSite().
		Add(origin+"/", &browsertest.PageSpec{
			HTML:  links("/a", "/b", "/c"),
			Calls: []browsertest.Call{browsertest.JSON("GET", origin+"/api/home", 200, `{}`)},
		}).
		Add(origin+"/a", &browsertest.PageSpec{}).
		Add(origin+"/b", &browsertest.PageSpec{}).
		Add(origin+"/c", &browsertest.PageSpec{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	driver := browsertest.NewDriver(site)
	c := newCrawler(t, testConfig(t), driver, crawler.WithNotifier(func(ev crawler.Event) {
		if pv, ok := ev.Data.(crawler.PageVisit); ok && pv.Index == 2 {
			cancel()
		}
	}))

	res, captured, err := c.Crawl(ctx)
	if !stderrors.Is(err, context.Canceled) {
		t.Fatalf("Crawl() error = %v, want wrapping context.Canceled", err)
	}
	if !errors.IsFatal(err) {
		t.Errorf("cancellation error %v should be fatal", err)
	}
	if len(res.VisitedURLs) == 0 || len(res.VisitedURLs) >= 4 {
		t.Errorf("VisitedURLs = %v, want partial", res.VisitedURLs)
	}
	if len(captured) != 1 {
		t.Errorf("captured = %d, want the first page's call", len(captured))
	}
	if !driver.Sessions()[0].Closed() {
		t.Error("session should be closed")
	}
	if c.IsRunning() {
		t.Error("IsRunning() = true after Crawl returned")
	}
}

func TestCrawl_Stop(t *testing.T) {
	site := browsertest.NewSite().
		Add(origin+"/", &browsertest.PageSpec{HTML: links("/a", "/b")}).
		Add(origin+"/a", &browsertest.PageSpec{}).
		Add(origin+"/b", &browsertest.PageSpec{})

	var c *crawler.Crawler
	c = newCrawler(t, testConfig(t), browsertest.NewDriver(site), crawler.WithNotifier(func(ev crawler.Event) {
		if ev.Type == crawler.EventPage {
			c.Stop()
		}
	}))

	res, _, err := c.Crawl(context.Background())
	if !stderrors.Is(err, context.Canceled) {
		t.Fatalf("Crawl() error = %v, want cancellation", err)
	}
	if len(res.VisitedURLs) != 1 {
		t.Errorf("VisitedURLs = %v, want only the start page", res.VisitedURLs)
	}

	c.Stop()
}

func TestCrawl_AuthCookies(t *testing.T) {
	site := browsertest.NewSite().Add(origin+"/", &browsertest.PageSpec{})
	driver := browsertest.NewDriver(site)

	cfg := testConfig(t)
	cfg.StartURL = "https://x.test:8443/"
	site.Add("https://x.test:8443/", &browsertest.PageSpec{})

	c := newCrawler(t, cfg, driver,
		crawler.WithCookie("sid", "abc"),
		crawler.WithAuthHeader("Authorization", "Bearer t"),
	)
	res, _, err := c.Crawl(context.Background())
	if err != nil {
		t.Fatalf("Crawl() error = %v", err)
	}

	if res.Auth == nil || !res.Auth.Success {
		t.Fatalf("Auth = %+v, want success", res.Auth)
	}
	page := driver.Sessions()[0].FakePage()
	cookies := page.Cookies()
	if len(cookies) != 1 || cookies[0].Name != "sid" || cookies[0].Domain != "x.test" || cookies[0].Path != "/" {
		t.Errorf("cookies = %+v, want sid on x.test /", cookies)
	}
	if page.Headers()["Authorization"] != "Bearer t" {
		t.Errorf("headers = %v", page.Headers())
	}
}

func TestCrawl_AuthFailureContinues(t *testing.T) {
	site := browsertest.NewSite().
		Add(origin+"/", &browsertest.PageSpec{
			Calls: []browsertest.Call{browsertest.JSON("GET", origin+"/api/public", 200, `{}`)},
		}).
		Add(origin+"/login", &browsertest.PageSpec{HTML: "<form></form>"})

	cfg := testConfig(t)
	cfg.LoginURL = origin + "/login"
	cfg.Username = "alice"
	cfg.Password = "secret"

	res, captured, err := newCrawler(t, cfg, browsertest.NewDriver(site)).Crawl(context.Background())
	if err != nil {
		t.Fatalf("Crawl() error = %v", err)
	}
	if res.Auth == nil || res.Auth.Success {
		t.Fatalf("Auth = %+v, want failure", res.Auth)
	}
	if len(res.VisitedURLs) != 1 || len(captured) != 1 {
		t.Errorf("crawl should continue after auth failure: visited %v, captured %d", res.VisitedURLs, len(captured))
	}
	var authErrors int
	for _, e := range res.Errors {
		if e.Type == errors.AuthFailure.String() {
			authErrors++
		}
	}
	if authErrors != 1 {
		t.Errorf("auth errors = %d, want 1", authErrors)
	}
}

func TestCrawl_Snapshots(t *testing.T) {
	row := &browsertest.Element{
		Label: "Row 1",
		Calls: []browsertest.Call{browsertest.JSON("GET", origin+"/api/items/1", 200, `{"id":1}`)},
	}
	quiet := &browsertest.Element{Label: "Row 2"}
	site := browsertest.NewSite().
		Add(origin+"/", &browsertest.PageSpec{
			Elements: map[string][]*browsertest.Element{"table tbody tr": {row, quiet}},
		})

	cfg := testConfig(t)
	cfg.Screenshots = true

	var mu sync.Mutex
	var paths []string
	hook := func(path, url string, pageIndex int) {
		mu.Lock()
		paths = append(paths, filepath.Base(path))
		mu.Unlock()
		if pageIndex != 1 || url != origin+"/" {
			t.Errorf("hook(%q, %q, %d), want page 1 at /", path, url, pageIndex)
		}
	}

	res, _, err := newCrawler(t, cfg, browsertest.NewDriver(site), crawler.WithSnapshotHook(hook)).Crawl(context.Background())
	if err != nil {
		t.Fatalf("Crawl() error = %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(paths) != 3 {
		t.Fatalf("snapshots = %v, want initial, one click and after_interactions", paths)
	}
	for i, suffix := range []string{"_initial.png", "_after_click_Row_1.png", "_after_interactions.png"} {
		if !strings.HasSuffix(paths[i], suffix) {
			t.Errorf("snapshot %d = %q, want suffix %q", i, paths[i], suffix)
		}
	}
	if res.Stats.Snapshots != 3 {
		t.Errorf("Stats.Snapshots = %d, want 3", res.Stats.Snapshots)
	}

	index := filepath.Join(res.SnapshotsDir, browser.SnapshotIndexFile)
	if _, err := os.Stat(index); err != nil {
		t.Errorf("snapshot index not written: %v", err)
	}
}

func TestCrawl_Events(t *testing.T) {
	site := browsertest.NewSite().
		Add(origin+"/", &browsertest.PageSpec{
			Calls: []browsertest.Call{browsertest.JSON("POST", origin+"/api/track", 201, `{}`)},
		})

	var mu sync.Mutex
	seen := make(map[crawler.EventType]int)
	var last crawler.Status
	var notice crawler.CaptureNotice
	notify := func(ev crawler.Event) {
		mu.Lock()
		defer mu.Unlock()
		seen[ev.Type]++
		switch d := ev.Data.(type) {
		case crawler.Status:
			last = d
		case crawler.CaptureNotice:
			notice = d
		}
	}

	if _, _, err := newCrawler(t, testConfig(t), browsertest.NewDriver(site), crawler.WithNotifier(notify)).Crawl(context.Background()); err != nil {
		t.Fatalf("Crawl() error = %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if seen[crawler.EventPage] != 1 {
		t.Errorf("page events = %d, want 1", seen[crawler.EventPage])
	}
	if seen[crawler.EventCaptured] != 1 {
		t.Errorf("captured events = %d, want 1", seen[crawler.EventCaptured])
	}
	if notice.Method != models.MethodPost || notice.Status != 201 || notice.Total != 1 {
		t.Errorf("capture notice = %+v", notice)
	}
	if last.State != crawler.StateDone || last.PagesVisited != 1 || last.Captured != 1 {
		t.Errorf("final status = %+v, want done with 1 page and 1 capture", last)
	}
}

func TestCrawl_IncludePatterns(t *testing.T) {
	site := browsertest.NewSite().
		Add(origin+"/", &browsertest.PageSpec{
			Calls: []browsertest.Call{
				browsertest.JSON("GET", origin+"/api/v1/users", 200, `[]`),
				browsertest.JSON("GET", origin+"/api/v2/users", 200, `[]`),
			},
		})

	cfg := testConfig(t)
	cfg.IncludePatterns = []string{origin + "/api/v2/"}

	_, captured, err := newCrawler(t, cfg, browsertest.NewDriver(site)).Crawl(context.Background())
	if err != nil {
		t.Fatalf("Crawl() error = %v", err)
	}
	if len(captured) != 1 || !strings.Contains(captured[0].Request.URL, "/v2/") {
		t.Errorf("captured = %+v, want only the v2 call", captured)
	}
}

func TestCrawl_StatusNavRate(t *testing.T) {
	tests := []struct {
		name string
		rate float64
		want float64
	}{
		{"throttled", 50, 50},
		{"unlimited", 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			site := browsertest.NewSite().Add(origin+"/", &browsertest.PageSpec{})

			var mu sync.Mutex
			var last crawler.Status
			notify := func(ev crawler.Event) {
				if st, ok := ev.Data.(crawler.Status); ok {
					mu.Lock()
					last = st
					mu.Unlock()
				}
			}

			cfg := testConfig(t)
			cfg.RateLimit = tt.rate
			if _, _, err := newCrawler(t, cfg, browsertest.NewDriver(site), crawler.WithNotifier(notify)).Crawl(context.Background()); err != nil {
				t.Fatalf("Crawl() error = %v", err)
			}

			mu.Lock()
			defer mu.Unlock()
			if last.NavRate != tt.want {
				t.Errorf("NavRate = %v, want %v", last.NavRate, tt.want)
			}
		})
	}
}

func TestCrawl_CaptureNoticeRedacted(t *testing.T) {
	site := browsertest.NewSite().
		Add(origin+"/", &browsertest.PageSpec{
			Calls: []browsertest.Call{browsertest.JSON("GET", origin+"/api/me?api_key=KEY123&page=2", 200, `{}`)},
		})

	var mu sync.Mutex
	var notice crawler.CaptureNotice
	notify := func(ev crawler.Event) {
		if n, ok := ev.Data.(crawler.CaptureNotice); ok {
			mu.Lock()
			notice = n
			mu.Unlock()
		}
	}

	if _, _, err := newCrawler(t, testConfig(t), browsertest.NewDriver(site), crawler.WithNotifier(notify)).Crawl(context.Background()); err != nil {
		t.Fatalf("Crawl() error = %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if strings.Contains(notice.URL, "KEY123") {
		t.Errorf("notice URL = %q, want api_key redacted", notice.URL)
	}
	if !strings.Contains(notice.URL, "page=2") {
		t.Errorf("notice URL = %q, want non-sensitive query kept", notice.URL)
	}
}
