package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"

	"github.com/PentesterFlow/APIHunter/internal/auth"
	"github.com/PentesterFlow/APIHunter/internal/browser"
	"github.com/PentesterFlow/APIHunter/internal/browser/browsertest"
	"github.com/PentesterFlow/APIHunter/internal/output"
	"github.com/PentesterFlow/APIHunter/pkg/crawler"
)

const origin = "https://shop.test"

// =============================================================================
// Test Helpers
// =============================================================================

// execute runs the root command with args and returns stdout.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

// useFakeBrowser routes every crawl through site for the duration of the test.
func useFakeBrowser(t *testing.T, site *browsertest.Site) {
	t.Helper()
	prev := extraCrawlOptions
	extraCrawlOptions = []crawler.Option{
		crawler.WithDriver(browsertest.NewDriver(site)),
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
	t.Cleanup(func() { extraCrawlOptions = prev })
}

func parseCrawl(t *testing.T, g *globalFlags, args ...string) (*cobra.Command, *crawlFlags, []string) {
	t.Helper()
	f := &crawlFlags{}
	cmd := &cobra.Command{Use: "crawl"}
	bindCrawlFlags(cmd, f)
	if err := cmd.ParseFlags(args); err != nil {
		t.Fatalf("ParseFlags(%v) error = %v", args, err)
	}
	return cmd, f, cmd.Flags().Args()
}

func shopSite() *browsertest.Site {
	return browsertest.NewSite().
		Add(origin+"/", &browsertest.PageSpec{
			HTML:  `<html><body><a href="/products">Products</a></body></html>`,
			Calls: []browsertest.Call{browsertest.JSON("GET", origin+"/api/cart", 200, `{"items":[]}`)},
		}).
		Add(origin+"/products", &browsertest.PageSpec{
			Calls: []browsertest.Call{browsertest.JSON("GET", origin+"/api/products", 200, `[{"id":1,"price":9.5}]`)},
		})
}

// =============================================================================
// Config Tests
// =============================================================================

func TestBuildConfig_Defaults(t *testing.T) {
	g := &globalFlags{}
	cmd, f, args := parseCrawl(t, g, origin+"/")

	cfg, err := buildConfig(cmd, args, g, f, nil)
	if err != nil {
		t.Fatalf("buildConfig() error = %v", err)
	}
	def := crawler.DefaultConfig()
	if cfg.StartURL != origin+"/" || cfg.MaxPages != def.MaxPages || !cfg.Headless || !cfg.Screenshots || !cfg.RedactSensitive {
		t.Errorf("config = %+v, want defaults with the start URL", cfg)
	}
}

func TestBuildConfig_Flags(t *testing.T) {
	g := &globalFlags{verbose: true}
	cmd, f, args := parseCrawl(t, g,
		origin+"/",
		"-l", origin+"/login", "-u", "alice", "-p", "secret",
		"-H", "Authorization: Bearer abc",
		"-H", "X-Tenant: 42",
		"-c", "sid=1; theme=dark",
		"-n", "7", "-d", "1", "-w", "0", "--rate-limit", "2.5",
		"-o", "out", "-f", "OpenAPI",
		"--headless=false", "--stealth",
		"-i", "^https://shop.test/app", "-e", "logout",
		"--no-screenshots", "--no-redact",
	)

	cfg, err := buildConfig(cmd, args, g, f, nil)
	if err != nil {
		t.Fatalf("buildConfig() error = %v", err)
	}

	checks := []struct {
		name string
		got  interface{}
		want interface{}
	}{
		{"LoginURL", cfg.LoginURL, origin + "/login"},
		{"Username", cfg.Username, "alice"},
		{"Password", cfg.Password, "secret"},
		{"Authorization", cfg.AuthHeaders["Authorization"], "Bearer abc"},
		{"X-Tenant", cfg.AuthHeaders["X-Tenant"], "42"},
		{"sid", cfg.Cookies["sid"], "1"},
		{"theme", cfg.Cookies["theme"], "dark"},
		{"MaxPages", cfg.MaxPages, 7},
		{"MaxDepth", cfg.MaxDepth, 1},
		{"WaitTime", cfg.WaitTime, 0},
		{"RateLimit", cfg.RateLimit, 2.5},
		{"OutputDir", cfg.OutputDir, "out"},
		{"OutputFormat", cfg.OutputFormat, output.FormatOpenAPI},
		{"Headless", cfg.Headless, false},
		{"Stealth", cfg.Browser.Stealth, true},
		{"Screenshots", cfg.Screenshots, false},
		{"RedactSensitive", cfg.RedactSensitive, false},
		{"Verbose", cfg.Verbose, true},
		{"IncludePatterns", len(cfg.IncludePatterns), 1},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s = %v, want %v", c.name, c.got, c.want)
		}
	}

	last := cfg.ExcludePatterns[len(cfg.ExcludePatterns)-1]
	if last != "logout" || len(cfg.ExcludePatterns) != len(crawler.DefaultConfig().ExcludePatterns)+1 {
		t.Errorf("ExcludePatterns = %v, want defaults plus logout", cfg.ExcludePatterns)
	}
}

func TestBuildConfig_ProfileThenFlags(t *testing.T) {
	saved := crawler.DefaultConfig()
	saved.StartURL = origin + "/"
	saved.MaxPages = 99
	saved.Username = "bob"
	saved.Headless = false

	var loaded string
	load := func(name string) (*crawler.Config, error) {
		loaded = name
		return saved.Clone(), nil
	}

	g := &globalFlags{}
	cmd, f, args := parseCrawl(t, g, "--profile", "shop", "-n", "3")
	cfg, err := buildConfig(cmd, args, g, f, load)
	if err != nil {
		t.Fatalf("buildConfig() error = %v", err)
	}
	if loaded != "shop" {
		t.Errorf("loaded profile %q, want shop", loaded)
	}
	if cfg.StartURL != origin+"/" || cfg.Username != "bob" || cfg.Headless {
		t.Errorf("config = %+v, want profile values", cfg)
	}
	if cfg.MaxPages != 3 {
		t.Errorf("MaxPages = %d, want flag to win over profile", cfg.MaxPages)
	}
}

func TestBuildConfig_ConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hunt.yaml")
	data := "start_url: https://shop.test/\nmax_pages: 12\noutput_format: markdown\n"
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatal(err)
	}

	g := &globalFlags{}
	cmd, f, args := parseCrawl(t, g, "--config", path, "-d", "0")
	cfg, err := buildConfig(cmd, args, g, f, nil)
	if err != nil {
		t.Fatalf("buildConfig() error = %v", err)
	}
	if cfg.StartURL != origin+"/" || cfg.MaxPages != 12 || cfg.OutputFormat != output.FormatMarkdown || cfg.MaxDepth != 0 {
		t.Errorf("config = %+v", cfg)
	}
}

func TestCrawlFlags_FilterUsage(t *testing.T) {
	cmd, _, _ := parseCrawl(t, &globalFlags{})

	tests := []struct {
		flag string
		want string
	}{
		{"include", "capture API requests"},
		{"exclude", "pages and API requests"},
	}
	for _, tt := range tests {
		fl := cmd.Flags().Lookup(tt.flag)
		if fl == nil {
			t.Fatalf("flag %q not registered", tt.flag)
		}
		if !strings.Contains(fl.Usage, tt.want) {
			t.Errorf("--%s usage = %q, want it to mention %q", tt.flag, fl.Usage, tt.want)
		}
	}
	if strings.Contains(cmd.Flags().Lookup("include").Usage, "visit") {
		t.Errorf("--include usage = %q, must not claim to limit page visits", cmd.Flags().Lookup("include").Usage)
	}
}

func TestBuildConfig_Errors(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"no url", nil},
		{"bad header", []string{origin + "/", "-H", "no-colon"}},
		{"bad format", []string{origin + "/", "-f", "pdf"}},
		{"bad pattern", []string{origin + "/", "-i", "("}},
		{"relative url", []string{"/just/a/path"}},
		{"missing config", []string{"--config", "/does/not/exist.yaml"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := &globalFlags{}
			cmd, f, args := parseCrawl(t, g, tt.args...)
			if _, err := buildConfig(cmd, args, g, f, nil); err == nil {
				t.Error("buildConfig() should fail")
			}
		})
	}
}

// =============================================================================
// Command Tests
// =============================================================================

func TestVersionCmd(t *testing.T) {
	out, err := execute(t, "version")
	if err != nil {
		t.Fatalf("version error = %v", err)
	}
	if strings.TrimSpace(out) != "apihunter "+version {
		t.Errorf("version output = %q", out)
	}
}

func TestLogLevelFlag(t *testing.T) {
	if _, err := execute(t, "version", "--log-level", "loud"); err == nil {
		t.Error("unknown --log-level should fail")
	}
	if _, err := execute(t, "version", "--log-level", "debug"); err != nil {
		t.Errorf("--log-level debug error = %v", err)
	}

	g := &globalFlags{verbose: true, logLevel: "error"}
	var buf bytes.Buffer
	g.newLogger(&buf).Warn("hidden")
	if buf.Len() != 0 {
		t.Errorf("--log-level error should win over -v, got %q", buf.String())
	}
}

func TestCrawlCmd(t *testing.T) {
	useFakeBrowser(t, shopSite())
	dir := t.TempDir()
	db := filepath.Join(t.TempDir(), "profiles.db")

	out, err := execute(t, "crawl", origin+"/",
		"-o", dir, "-w", "0", "--no-progress", "--no-screenshots",
		"--profiles-db", db, "--save-as", "shop", "--description", "Demo shop",
	)
	if err != nil {
		t.Fatalf("crawl error = %v\n%s", err, out)
	}

	for _, want := range []string{
		"Profile saved: shop",
		"Discovered 2 endpoint(s)",
		"/api/cart",
		"/api/products",
		filepath.Join(dir, output.OpenAPIYAMLFile),
		filepath.Join(dir, output.MarkdownFile),
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	for _, name := range []string{output.OpenAPIYAMLFile, output.OpenAPIJSONFile, output.MarkdownFile, output.RawFile} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Errorf("%s not written: %v", name, err)
		}
	}

	list, err := execute(t, "profile", "list", "--profiles-db", db)
	if err != nil {
		t.Fatalf("profile list error = %v", err)
	}
	if !strings.Contains(list, "shop") || !strings.Contains(list, "Demo shop") || !strings.Contains(list, "Total: 1 profile(s)") {
		t.Errorf("profile list =\n%s", list)
	}

	// The saved profile replays the hunt without a URL argument.
	out, err = execute(t, "crawl", "--profile", "shop", "--profiles-db", db, "--no-progress")
	if err != nil {
		t.Fatalf("crawl --profile error = %v\n%s", err, out)
	}
	if !strings.Contains(out, "Discovered 2 endpoint(s)") {
		t.Errorf("profile crawl output:\n%s", out)
	}
}

func TestCrawlCmd_NoEndpoints(t *testing.T) {
	useFakeBrowser(t, browsertest.NewSite().Add(origin+"/", &browsertest.PageSpec{}))
	dir := t.TempDir()

	out, err := execute(t, "crawl", origin+"/", "-o", dir, "-w", "0", "--no-progress", "--no-screenshots", "-f", "markdown")
	if err != nil {
		t.Fatalf("crawl error = %v", err)
	}
	if !strings.Contains(out, "No API endpoints discovered.") {
		t.Errorf("output:\n%s", out)
	}
	if _, err := os.Stat(filepath.Join(dir, output.OpenAPIYAMLFile)); err == nil {
		t.Error("openapi.yaml written for markdown format")
	}
}

func TestCrawlCmd_MissingProfile(t *testing.T) {
	db := filepath.Join(t.TempDir(), "profiles.db")
	if _, err := execute(t, "crawl", "--profile", "ghost", "--profiles-db", db); err == nil {
		t.Error("crawl with an unknown profile should fail")
	}
}

func TestProfileCmds(t *testing.T) {
	db := filepath.Join(t.TempDir(), "profiles.db")
	exported := filepath.Join(t.TempDir(), "shop.json")

	src := filepath.Join(t.TempDir(), "in.json")
	data := `{"name":"shop","description":"Demo","config":{"start_url":"https://shop.test/","password":"hunter2","auth_headers":{"X-Api-Key":"k-123"}}}`
	if err := os.WriteFile(src, []byte(data), 0o600); err != nil {
		t.Fatal(err)
	}

	out, err := execute(t, "profile", "import", src, "--profiles-db", db)
	if err != nil || !strings.Contains(out, "Profile imported: shop") {
		t.Fatalf("import = %q, %v", out, err)
	}

	out, err = execute(t, "profile", "show", "shop", "--profiles-db", db)
	if err != nil {
		t.Fatalf("show error = %v", err)
	}
	if strings.Contains(out, "hunter2") || strings.Contains(out, "k-123") {
		t.Errorf("show leaks secrets:\n%s", out)
	}
	if !strings.Contains(out, "start_url: https://shop.test/") || !strings.Contains(out, "X-Api-Key:") || !strings.Contains(out, masked) {
		t.Errorf("show output:\n%s", out)
	}

	if _, err := execute(t, "profile", "export", "shop", exported, "--profiles-db", db); err != nil {
		t.Fatalf("export error = %v", err)
	}
	raw, _ := os.ReadFile(exported)
	if !strings.Contains(string(raw), "hunter2") {
		t.Error("export should keep credentials")
	}

	if _, err := execute(t, "profile", "import", exported, "--name", "shop-copy", "--profiles-db", db); err != nil {
		t.Fatalf("import --name error = %v", err)
	}
	list, _ := execute(t, "profile", "list", "--profiles-db", db)
	if !strings.Contains(list, "shop-copy") || !strings.Contains(list, "Total: 2 profile(s)") {
		t.Errorf("list =\n%s", list)
	}

	if _, err := execute(t, "profile", "delete", "shop", "--profiles-db", db); err != nil {
		t.Fatalf("delete error = %v", err)
	}
	if _, err := execute(t, "profile", "show", "shop", "--profiles-db", db); err == nil {
		t.Error("show after delete should fail")
	}
	if _, err := execute(t, "profile", "delete", "shop", "--profiles-db", db); err == nil {
		t.Error("second delete should fail")
	}
}

func TestProfileList_Empty(t *testing.T) {
	out, err := execute(t, "profile", "list", "--profiles-db", filepath.Join(t.TempDir(), "p.db"))
	if err != nil {
		t.Fatalf("list error = %v", err)
	}
	if !strings.Contains(out, "No saved profiles") {
		t.Errorf("list = %q", out)
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		input string
		n     int
		want  string
	}{
		{"short", 10, "short"},
		{"exactly10!", 10, "exactly10!"},
		{"this is far too long", 10, "this is..."},
	}
	for _, tt := range tests {
		if got := truncate(tt.input, tt.n); got != tt.want {
			t.Errorf("truncate(%q, %d) = %q, want %q", tt.input, tt.n, got, tt.want)
		}
	}
}
