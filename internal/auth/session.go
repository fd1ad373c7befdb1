package auth

import (
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"

	"github.com/PentesterFlow/APIHunter/internal/browser"
)

// CookieDomain returns the host of startURL without its port.
func CookieDomain(startURL string) string {
	u, err := url.Parse(startURL)
	if err != nil {
		return ""
	}
	return u.Hostname()
}

// SessionCookies converts a name/value map into browser cookies scoped to the
// start host, sorted by name.
func SessionCookies(startURL string, cookies map[string]string) []browser.Cookie {
	if len(cookies) == 0 {
		return nil
	}

	names := make([]string, 0, len(cookies))
	for name := range cookies {
		names = append(names, name)
	}
	sort.Strings(names)

	domain := CookieDomain(startURL)
	out := make([]browser.Cookie, 0, len(names))
	for _, name := range names {
		out = append(out, browser.Cookie{
			Name:   name,
			Value:  cookies[name],
			Domain: domain,
			Path:   "/",
		})
	}
	return out
}

// ParseCookieString parses a Cookie header value such as "a=1; b=2".
func ParseCookieString(s string) (map[string]string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	cookies, err := http.ParseCookie(s)
	if err != nil {
		return nil, fmt.Errorf("invalid cookie string: %w", err)
	}

	out := make(map[string]string, len(cookies))
	for _, c := range cookies {
		out[c.Name] = c.Value
	}
	return out, nil
}

// ParseHeader splits "Name: value".
func ParseHeader(s string) (string, string, error) {
	name, value, ok := strings.Cut(s, ":")
	name = strings.TrimSpace(name)
	if !ok || name == "" {
		return "", "", fmt.Errorf("invalid header %q, want \"Name: value\"", s)
	}
	return name, strings.TrimSpace(value), nil
}
