package crawler

import (
	"fmt"
	"net/url"
	"os"
	"sort"
	"strings"

	jsoniter "github.com/json-iterator/go"
	"gopkg.in/yaml.v3"

	"github.com/PentesterFlow/APIHunter/internal/analyzer"
	"github.com/PentesterFlow/APIHunter/internal/browser"
	"github.com/PentesterFlow/APIHunter/internal/output"
	"github.com/PentesterFlow/APIHunter/internal/scope"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Output formats.
const (
	FormatOpenAPI  = output.FormatOpenAPI
	FormatMarkdown = output.FormatMarkdown
	FormatBoth     = output.FormatBoth
)

// Config holds all hunt configuration. The crawler never mutates it.
type Config struct {
	// Target
	StartURL string `json:"start_url" yaml:"start_url"`

	// Authentication
	LoginURL      string            `json:"login_url,omitempty" yaml:"login_url,omitempty"`
	Username      string            `json:"username,omitempty" yaml:"username,omitempty"`
	Password      string            `json:"password,omitempty" yaml:"password,omitempty"`
	UsernameField string            `json:"username_field,omitempty" yaml:"username_field,omitempty"`
	PasswordField string            `json:"password_field,omitempty" yaml:"password_field,omitempty"`
	AuthHeaders   map[string]string `json:"auth_headers,omitempty" yaml:"auth_headers,omitempty"`
	Cookies       map[string]string `json:"cookies,omitempty" yaml:"cookies,omitempty"`
	// TwoFactorAttempts bounds the 2FA code loop.
	TwoFactorAttempts int `json:"two_factor_attempts" yaml:"two_factor_attempts"`

	// Crawl limits
	MaxPages int `json:"max_pages" yaml:"max_pages"`
	MaxDepth int `json:"max_depth" yaml:"max_depth"`
	// WaitTime is the settle time after each navigation, in milliseconds.
	WaitTime          int     `json:"wait_time" yaml:"wait_time"`
	RateLimit         float64 `json:"rate_limit" yaml:"rate_limit"`
	IncludeSubdomains bool    `json:"include_subdomains" yaml:"include_subdomains"`

	// Filters, anchored at the start of the URL
	IncludePatterns []string `json:"include_patterns,omitempty" yaml:"include_patterns,omitempty"`
	ExcludePatterns []string `json:"exclude_patterns,omitempty" yaml:"exclude_patterns,omitempty"`

	// Browser
	Headless    bool           `json:"headless" yaml:"headless"`
	Browser     browser.Config `json:"browser" yaml:"browser"`
	Screenshots bool           `json:"screenshots" yaml:"screenshots"`
	EventBuffer int            `json:"event_buffer" yaml:"event_buffer"`

	// Output
	OutputDir       string `json:"output_dir" yaml:"output_dir"`
	OutputFormat    string `json:"output_format" yaml:"output_format"`
	RedactSensitive bool   `json:"redact_sensitive" yaml:"redact_sensitive"`
	FilterNonAPI    bool   `json:"filter_non_api" yaml:"filter_non_api"`

	Verbose bool `json:"verbose" yaml:"verbose"`
	Debug   bool `json:"debug" yaml:"debug"`
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		TwoFactorAttempts: 3,
		MaxPages:          50,
		MaxDepth:          3,
		WaitTime:          2000,
		ExcludePatterns:   append([]string(nil), scope.DefaultExcludePatterns...),
		Headless:          true,
		Browser:           browser.DefaultConfig(),
		Screenshots:       true,
		EventBuffer:       1024,
		OutputDir:         "./api-docs",
		OutputFormat:      FormatBoth,
		RedactSensitive:   true,
		FilterNonAPI:      true,
	}
}

// LoadFromFile loads configuration from a file (YAML or JSON) over the defaults.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()

	// Try YAML first, then JSON
	if err := yaml.Unmarshal(data, config); err != nil {
		config = DefaultConfig()
		if err := json.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	return config, nil
}

// SaveToFile saves configuration to a file. A .json extension writes JSON, anything else YAML.
func (c *Config) SaveToFile(path string) error {
	var (
		data []byte
		err  error
	)
	if strings.HasSuffix(strings.ToLower(path), ".json") {
		data, err = json.MarshalIndent(c, "", "  ")
	} else {
		data, err = yaml.Marshal(c)
	}
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	return os.WriteFile(path, data, 0600)
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.StartURL == "" {
		return fmt.Errorf("start URL is required")
	}
	u, err := url.Parse(c.StartURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("start URL %q must be an absolute http(s) URL", c.StartURL)
	}
	if c.LoginURL != "" {
		if u, err := url.Parse(c.LoginURL); err != nil || u.Host == "" {
			return fmt.Errorf("login URL %q must be absolute", c.LoginURL)
		}
	}

	if c.MaxPages < 1 {
		return fmt.Errorf("max pages must be at least 1")
	}
	if c.MaxDepth < 0 {
		return fmt.Errorf("max depth must not be negative")
	}
	if c.WaitTime < 0 {
		return fmt.Errorf("wait time must not be negative")
	}
	if c.RateLimit < 0 {
		return fmt.Errorf("rate limit must not be negative")
	}
	if c.TwoFactorAttempts < 1 {
		return fmt.Errorf("two factor attempts must be at least 1")
	}

	if !output.ValidFormat(c.OutputFormat) {
		return fmt.Errorf("output format must be one of openapi, markdown, both (got %q)", c.OutputFormat)
	}

	if _, err := scope.CompilePatterns(c.IncludePatterns); err != nil {
		return fmt.Errorf("include patterns: %w", err)
	}
	if _, err := scope.CompilePatterns(c.ExcludePatterns); err != nil {
		return fmt.Errorf("exclude patterns: %w", err)
	}

	return nil
}

// HasAuth reports whether any authentication material is configured.
func (c *Config) HasAuth() bool {
	return (c.LoginURL != "" && c.Username != "") || len(c.AuthHeaders) > 0 || len(c.Cookies) > 0
}

// DocOptions describes the crawl to the documentation writers. Only header
// and cookie names are passed on, never their values.
func (c *Config) DocOptions() output.Options {
	opts := output.Options{StartURL: c.StartURL}
	if c.Username != "" {
		opts.LoginURL = c.LoginURL
	}
	for name := range c.AuthHeaders {
		opts.AuthHeaders = append(opts.AuthHeaders, name)
	}
	for name := range c.Cookies {
		opts.Cookies = append(opts.Cookies, name)
	}
	sort.Strings(opts.AuthHeaders)
	sort.Strings(opts.Cookies)
	return opts
}

// AnalyzerConfig returns the analyzer settings for this hunt.
func (c *Config) AnalyzerConfig() analyzer.Config {
	return analyzer.Config{
		FilterNonAPI:    c.FilterNonAPI,
		RedactSensitive: c.RedactSensitive,
	}
}

// Clone creates a deep copy of the configuration.
func (c *Config) Clone() *Config {
	clone := *c
	clone.AuthHeaders = copyMap(c.AuthHeaders)
	clone.Cookies = copyMap(c.Cookies)
	clone.IncludePatterns = append([]string(nil), c.IncludePatterns...)
	clone.ExcludePatterns = append([]string(nil), c.ExcludePatterns...)
	return &clone
}

// Merge returns a copy of c overlaid with the non-zero fields of o. Maps are
// merged key by key and pattern lists are replaced when o sets them. Booleans
// can only be switched on; callers clear them explicitly.
func (c *Config) Merge(o *Config) *Config {
	m := c.Clone()
	if o == nil {
		return m
	}

	setString(&m.StartURL, o.StartURL)
	setString(&m.LoginURL, o.LoginURL)
	setString(&m.Username, o.Username)
	setString(&m.Password, o.Password)
	setString(&m.UsernameField, o.UsernameField)
	setString(&m.PasswordField, o.PasswordField)
	setString(&m.OutputDir, o.OutputDir)
	setString(&m.OutputFormat, o.OutputFormat)

	setInt(&m.TwoFactorAttempts, o.TwoFactorAttempts)
	setInt(&m.MaxPages, o.MaxPages)
	setInt(&m.MaxDepth, o.MaxDepth)
	setInt(&m.WaitTime, o.WaitTime)
	setInt(&m.EventBuffer, o.EventBuffer)
	if o.RateLimit > 0 {
		m.RateLimit = o.RateLimit
	}

	for k, v := range o.AuthHeaders {
		if m.AuthHeaders == nil {
			m.AuthHeaders = make(map[string]string)
		}
		m.AuthHeaders[k] = v
	}
	for k, v := range o.Cookies {
		if m.Cookies == nil {
			m.Cookies = make(map[string]string)
		}
		m.Cookies[k] = v
	}
	if len(o.IncludePatterns) > 0 {
		m.IncludePatterns = append([]string(nil), o.IncludePatterns...)
	}
	if len(o.ExcludePatterns) > 0 {
		m.ExcludePatterns = append([]string(nil), o.ExcludePatterns...)
	}

	m.IncludeSubdomains = m.IncludeSubdomains || o.IncludeSubdomains
	m.Browser.Stealth = m.Browser.Stealth || o.Browser.Stealth
	m.Verbose = m.Verbose || o.Verbose
	m.Debug = m.Debug || o.Debug

	return m
}

// BrowserConfig is the browser configuration with the top-level headless switch applied.
func (c *Config) BrowserConfig() browser.Config {
	b := c.Browser
	b.Headless = c.Headless
	return b
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setInt(dst *int, v int) {
	if v != 0 {
		*dst = v
	}
}

func copyMap(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
