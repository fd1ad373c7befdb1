// Package scope decides which pages a crawl visits and how visited URLs are keyed.
package scope

import (
	"fmt"
	"net/url"
	"regexp"
	"sort"
	"strings"

	"golang.org/x/net/publicsuffix"
)

// skipExtensions are document types the crawler never navigates to.
var skipExtensions = []string{
	".png", ".jpg", ".jpeg", ".gif", ".svg", ".ico",
	".css", ".js", ".woff", ".woff2", ".ttf", ".eot",
	".pdf", ".zip", ".tar", ".gz", ".mp4", ".mp3",
}

// Checker validates candidate page URLs against the start URL's origin.
type Checker struct {
	rules          Rules
	host           string
	registrable    string
	excludeRegexps []*regexp.Regexp
}

// NewChecker creates a checker anchored on startURL.
func NewChecker(startURL string, rules Rules) (*Checker, error) {
	parsed, err := url.Parse(startURL)
	if err != nil {
		return nil, fmt.Errorf("parse start url: %w", err)
	}
	if parsed.Host == "" {
		return nil, fmt.Errorf("start url %q has no host", startURL)
	}

	exclude, err := CompilePatterns(rules.ExcludePatterns)
	if err != nil {
		return nil, err
	}

	c := &Checker{
		rules:          rules,
		host:           strings.ToLower(parsed.Host),
		excludeRegexps: exclude,
	}
	if rules.IncludeSubdomains {
		c.registrable = registrableDomain(parsed.Hostname())
	}
	return c, nil
}

// SameOrigin reports whether u shares the start URL's host, or its registrable
// domain when subdomains are included.
func (c *Checker) SameOrigin(u string) bool {
	parsed, err := url.Parse(u)
	if err != nil {
		return false
	}
	host := strings.ToLower(parsed.Host)
	if host == c.host {
		return true
	}
	if c.registrable == "" || host == "" {
		return false
	}
	return registrableDomain(parsed.Hostname()) == c.registrable
}

// ShouldVisit is the page predicate minus the visited check, which the caller owns.
func (c *Checker) ShouldVisit(u string) bool {
	if !IsValidURL(u) || !c.SameOrigin(u) {
		return false
	}
	return !MatchAny(c.excludeRegexps, u)
}

func registrableDomain(hostname string) string {
	hostname = strings.ToLower(hostname)
	domain, err := publicsuffix.EffectiveTLDPlusOne(hostname)
	if err != nil {
		return hostname
	}
	return domain
}

// CompilePatterns compiles regexes so that they only match at the start of the input.
func CompilePatterns(patterns []string) ([]*regexp.Regexp, error) {
	out := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile(`^(?:` + p + `)`)
		if err != nil {
			return nil, fmt.Errorf("invalid pattern %q: %w", p, err)
		}
		out = append(out, re)
	}
	return out, nil
}

// MatchAny reports whether any regex matches s.
func MatchAny(res []*regexp.Regexp, s string) bool {
	for _, re := range res {
		if re.MatchString(s) {
			return true
		}
	}
	return false
}

// NormalizeURL builds the visited-set key: scheme, host and path, with the raw
// query tokens sorted, fragment dropped and trailing slashes trimmed.
func NormalizeURL(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return strings.TrimRight(rawURL, "/")
	}

	normalized := parsed.Scheme + "://" + parsed.Host + parsed.EscapedPath()
	if parsed.RawQuery != "" {
		tokens := strings.Split(parsed.RawQuery, "&")
		sort.Strings(tokens)
		normalized += "?" + strings.Join(tokens, "&")
	}
	return strings.TrimRight(normalized, "/")
}

// ResolveURL resolves a relative URL against a base URL and drops the fragment.
func ResolveURL(baseURL, relativeURL string) (string, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return "", err
	}

	ref, err := url.Parse(strings.TrimSpace(relativeURL))
	if err != nil {
		return "", err
	}

	resolved := base.ResolveReference(ref)
	resolved.Fragment = ""
	return resolved.String(), nil
}

// IsValidURL checks that a URL is an http(s) document the crawler can navigate to.
func IsValidURL(urlStr string) bool {
	parsed, err := url.Parse(urlStr)
	if err != nil {
		return false
	}

	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return false
	}
	if parsed.Host == "" {
		return false
	}

	path := strings.ToLower(parsed.Path)
	for _, ext := range skipExtensions {
		if strings.HasSuffix(path, ext) {
			return false
		}
	}

	return true
}

// Host returns the hostname of a URL without its port.
func Host(urlStr string) string {
	parsed, err := url.Parse(urlStr)
	if err != nil {
		return ""
	}
	return parsed.Hostname()
}
