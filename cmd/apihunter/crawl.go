package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/PentesterFlow/APIHunter/internal/analyzer"
	"github.com/PentesterFlow/APIHunter/internal/auth"
	"github.com/PentesterFlow/APIHunter/internal/logger"
	"github.com/PentesterFlow/APIHunter/internal/models"
	"github.com/PentesterFlow/APIHunter/internal/output"
	"github.com/PentesterFlow/APIHunter/internal/shutdown"
	"github.com/PentesterFlow/APIHunter/pkg/crawler"
)

const maxListedEndpoints = 20

type crawlFlags struct {
	loginURL      string
	username      string
	password      string
	usernameField string
	passwordField string
	authHeaders   []string
	cookies       []string

	maxPages  int
	maxDepth  int
	waitTime  int
	rateLimit float64

	outputDir string
	format    string
	headless  bool
	stealth   bool
	include   []string
	exclude   []string

	configFile  string
	profileName string
	saveAs      string
	description string

	noScreenshots bool
	noRedact      bool
	noProgress    bool
}

func newCrawlCmd(g *globalFlags) *cobra.Command {
	f := &crawlFlags{}

	cmd := &cobra.Command{
		Use:   "crawl [url]",
		Short: "Hunt for API endpoints starting at url",
		Long: `Crawl a web application in a browser, capture the API calls its pages make and
write OpenAPI and Markdown documentation for every endpoint found.

The url may be omitted when --profile or --config supplies one.`,
		Example: `  apihunter crawl https://app.example.com
  apihunter crawl https://app.example.com -l https://app.example.com/login -u alice -p secret
  apihunter crawl https://app.example.com -H "Authorization: Bearer eyJ..." -n 100
  apihunter crawl --profile staging`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCrawl(cmd, args, g, f)
		},
	}

	bindCrawlFlags(cmd, f)
	return cmd
}

func bindCrawlFlags(cmd *cobra.Command, f *crawlFlags) {
	def := crawler.DefaultConfig()
	flags := cmd.Flags()
	flags.StringVarP(&f.loginURL, "login-url", "l", "", "Login page URL")
	flags.StringVarP(&f.username, "username", "u", "", "Login username or email")
	flags.StringVarP(&f.password, "password", "p", "", "Login password")
	flags.StringVar(&f.usernameField, "username-field", "", "CSS selector of the username field")
	flags.StringVar(&f.passwordField, "password-field", "", "CSS selector of the password field")
	flags.StringArrayVarP(&f.authHeaders, "auth-header", "H", nil, `Header sent with every request, "Name: Value" (repeatable)`)
	flags.StringArrayVarP(&f.cookies, "cookie", "c", nil, `Session cookie, "name=value" (repeatable)`)

	flags.IntVarP(&f.maxPages, "max-pages", "n", def.MaxPages, "Maximum pages to visit")
	flags.IntVarP(&f.maxDepth, "max-depth", "d", def.MaxDepth, "Maximum link depth")
	flags.IntVarP(&f.waitTime, "wait-time", "w", def.WaitTime, "Settle time after each navigation in milliseconds")
	flags.Float64Var(&f.rateLimit, "rate-limit", 0, "Maximum page navigations per second (0 = unlimited)")

	flags.StringVarP(&f.outputDir, "output", "o", def.OutputDir, "Output directory")
	flags.StringVarP(&f.format, "format", "f", def.OutputFormat, "Output format: openapi, markdown or both")
	flags.BoolVar(&f.headless, "headless", def.Headless, "Run the browser headless (--headless=false to watch)")
	flags.BoolVar(&f.stealth, "stealth", false, "Hide browser automation fingerprints")
	flags.StringArrayVarP(&f.include, "include", "i", nil, "Only capture API requests whose URL matches this regex (repeatable)")
	flags.StringArrayVarP(&f.exclude, "exclude", "e", nil, "Skip pages and API requests whose URL matches this regex (repeatable)")

	flags.StringVar(&f.configFile, "config", "", "Configuration file (YAML or JSON)")
	flags.StringVar(&f.profileName, "profile", "", "Load a saved profile")
	flags.StringVar(&f.saveAs, "save-as", "", "Save the resulting configuration as a profile")
	flags.StringVar(&f.description, "description", "", "Description for --save-as")

	flags.BoolVar(&f.noScreenshots, "no-screenshots", false, "Do not capture page snapshots")
	flags.BoolVar(&f.noRedact, "no-redact", false, "Keep sensitive values in the documentation")
	flags.BoolVar(&f.noProgress, "no-progress", false, "Disable the progress line")
}

// buildConfig resolves the hunt configuration. Sources are applied in order:
// defaults, profile, config file, then flags the user set explicitly.
func buildConfig(cmd *cobra.Command, args []string, g *globalFlags, f *crawlFlags, loadProfile func(string) (*crawler.Config, error)) (*crawler.Config, error) {
	cfg := crawler.DefaultConfig()

	if f.profileName != "" {
		p, err := loadProfile(f.profileName)
		if err != nil {
			return nil, err
		}
		cfg = p
	}
	if f.configFile != "" {
		fileCfg, err := crawler.LoadFromFile(f.configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
		if f.profileName != "" {
			cfg = cfg.Merge(fileCfg)
		} else {
			cfg = fileCfg
		}
	}

	if len(args) > 0 {
		cfg.StartURL = args[0]
	}

	changed := cmd.Flags().Changed
	if changed("login-url") {
		cfg.LoginURL = f.loginURL
	}
	if changed("username") {
		cfg.Username = f.username
	}
	if changed("password") {
		cfg.Password = f.password
	}
	if changed("username-field") {
		cfg.UsernameField = f.usernameField
	}
	if changed("password-field") {
		cfg.PasswordField = f.passwordField
	}
	for _, h := range f.authHeaders {
		name, value, err := auth.ParseHeader(h)
		if err != nil {
			return nil, err
		}
		if cfg.AuthHeaders == nil {
			cfg.AuthHeaders = make(map[string]string)
		}
		cfg.AuthHeaders[name] = value
	}
	for _, c := range f.cookies {
		parsed, err := auth.ParseCookieString(c)
		if err != nil {
			return nil, err
		}
		for name, value := range parsed {
			if cfg.Cookies == nil {
				cfg.Cookies = make(map[string]string)
			}
			cfg.Cookies[name] = value
		}
	}

	if changed("max-pages") {
		cfg.MaxPages = f.maxPages
	}
	if changed("max-depth") {
		cfg.MaxDepth = f.maxDepth
	}
	if changed("wait-time") {
		cfg.WaitTime = f.waitTime
	}
	if changed("rate-limit") {
		cfg.RateLimit = f.rateLimit
	}
	if changed("output") {
		cfg.OutputDir = f.outputDir
	}
	if changed("format") {
		cfg.OutputFormat = strings.ToLower(f.format)
	}
	if changed("headless") {
		cfg.Headless = f.headless
	}
	if changed("stealth") {
		cfg.Browser.Stealth = f.stealth
	}
	if len(f.include) > 0 {
		cfg.IncludePatterns = append([]string(nil), f.include...)
	}
	if len(f.exclude) > 0 {
		cfg.ExcludePatterns = append(cfg.ExcludePatterns, f.exclude...)
	}
	if f.noScreenshots {
		cfg.Screenshots = false
	}
	if f.noRedact {
		cfg.RedactSensitive = false
	}
	cfg.Verbose = cfg.Verbose || g.verbose
	cfg.Debug = cfg.Debug || g.debug

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func runCrawl(cmd *cobra.Command, args []string, g *globalFlags, f *crawlFlags) error {
	log := g.newLogger(cmd.ErrOrStderr())

	if f.profileName == "" && f.saveAs == "" {
		cfg, err := buildConfig(cmd, args, g, f, nil)
		if err != nil {
			return err
		}
		return hunt(cmd, cfg, g, f, log)
	}

	// The store is closed before the hunt so other commands can use it meanwhile.
	store, err := g.openProfiles(log)
	if err != nil {
		return err
	}
	cfg, err := buildConfig(cmd, args, g, f, store.Load)
	if err == nil && f.saveAs != "" {
		if _, err = store.Save(f.saveAs, f.description, cfg); err == nil {
			fmt.Fprintf(cmd.OutOrStdout(), "Profile saved: %s\n", f.saveAs)
		}
	}
	if cerr := store.Close(); err == nil && cerr != nil {
		err = cerr
	}
	if err != nil {
		return err
	}
	return hunt(cmd, cfg, g, f, log)
}

// hunt runs the crawl, analysis and documentation steps.
func hunt(cmd *cobra.Command, cfg *crawler.Config, g *globalFlags, f *crawlFlags, log *logger.Logger) error {
	out := cmd.OutOrStdout()

	sd := shutdown.New(shutdown.Config{
		Logger: log,
		OnForce: func(os.Signal) {
			fmt.Fprintln(cmd.ErrOrStderr(), "Aborted")
			os.Exit(130)
		},
	})
	sd.Listen()
	defer sd.Close()

	showProgress := !f.noProgress && !g.verbose && !g.debug
	opts := append([]crawler.Option{
		crawler.WithConfig(cfg),
		crawler.WithLogger(log),
		crawler.WithProgress(showProgress),
		crawler.WithCodeProvider(auth.NewTerminalPrompt()),
	}, extraCrawlOptions...)

	c, err := crawler.New(opts...)
	if err != nil {
		return fmt.Errorf("failed to create crawler: %w", err)
	}
	sd.RegisterFunc("crawler", c.Stop)

	if !showProgress {
		printBanner(out, cfg)
	}

	result, captured, err := c.Crawl(sd.Context())
	if err != nil {
		if !sd.Interrupted() && (result == nil || len(result.VisitedURLs) == 0) {
			return fmt.Errorf("hunt failed: %w", err)
		}
		log.WithError(err).Warn("Hunt ended early, documenting what was captured")
	}

	acfg := cfg.AnalyzerConfig()
	acfg.Logger = log
	acfg.ErrorLog = c.ErrorLog()
	groups := analyzer.New(acfg).Analyze(captured)

	if p := c.Progress(); p != nil {
		p.PrintSummary(len(groups))
	} else if result != nil {
		printResult(out, result)
	}
	printEndpoints(out, groups)

	manifest, err := output.NewGenerator(cfg.OutputDir, cfg.OutputFormat, log).Write(groups, cfg.DocOptions())
	if err != nil {
		return err
	}
	fmt.Fprintln(out, "Documentation:")
	for _, file := range manifest.Files() {
		fmt.Fprintf(out, "  %s\n", file)
	}
	if result != nil && result.SnapshotsDir != "" {
		fmt.Fprintf(out, "  %s (snapshots)\n", result.SnapshotsDir)
	}
	fmt.Fprintln(out)
	return nil
}

func printBanner(w io.Writer, cfg *crawler.Config) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, "╔══════════════════════════════════════════════════════════════╗")
	fmt.Fprintf(w, "║                   API Endpoint Hunter v%-5s                 ║\n", version)
	fmt.Fprintln(w, "╚══════════════════════════════════════════════════════════════╝")
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Target:     %s\n", cfg.StartURL)
	if cfg.LoginURL != "" {
		fmt.Fprintf(w, "Login:      %s\n", cfg.LoginURL)
	}
	fmt.Fprintf(w, "Max Pages:  %d\n", cfg.MaxPages)
	fmt.Fprintf(w, "Max Depth:  %d\n", cfg.MaxDepth)
	fmt.Fprintf(w, "Output:     %s (%s)\n", cfg.OutputDir, cfg.OutputFormat)
	fmt.Fprintln(w)
}

func printResult(w io.Writer, res *crawler.CrawlResult) {
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Duration:           %v\n", res.Duration.Round(time.Millisecond))
	fmt.Fprintf(w, "Pages Visited:      %d\n", res.Stats.PagesVisited)
	fmt.Fprintf(w, "API Calls Captured: %d\n", res.Stats.Captured)
	fmt.Fprintf(w, "Duplicates Skipped: %d\n", res.Stats.DuplicatesSuppressed)
	fmt.Fprintf(w, "Errors:             %d\n", res.Stats.ErrorCount)
	fmt.Fprintln(w)
}

// printEndpoints writes the endpoint summary table.
func printEndpoints(w io.Writer, groups []models.EndpointGroup) {
	sum := output.Summarize(groups)
	if sum.Total == 0 {
		fmt.Fprintln(w, "No API endpoints discovered.")
		fmt.Fprintln(w)
		return
	}

	methods := make([]string, 0, len(sum.ByMethod))
	for _, m := range sum.ByMethod {
		methods = append(methods, fmt.Sprintf("%s %d", m.Method, m.Count))
	}
	fmt.Fprintf(w, "Discovered %d endpoint(s) on %d path(s) from %d call(s): %s\n\n",
		sum.Total, sum.PathCount, sum.Captured, strings.Join(methods, ", "))

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "METHOD\tPATH\tCALLS\tSTATUS\tSUMMARY")
	for i, g := range groups {
		if i == maxListedEndpoints {
			break
		}
		statuses := make([]string, 0, len(g.Responses))
		for _, r := range g.Responses {
			statuses = append(statuses, fmt.Sprint(r.StatusCode))
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\n", g.Method, g.PathPattern, len(g.Captured), strings.Join(statuses, ","), g.Summary)
	}
	tw.Flush()
	if len(groups) > maxListedEndpoints {
		fmt.Fprintf(w, "... and %d more\n", len(groups)-maxListedEndpoints)
	}
	fmt.Fprintln(w)
}
