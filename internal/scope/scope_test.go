package scope

import (
	"testing"
)

// =============================================================================
// Checker Tests
// =============================================================================

func TestNewChecker(t *testing.T) {
	tests := []struct {
		name     string
		startURL string
		rules    Rules
		wantErr  bool
	}{
		{"valid URL", "https://example.com", Rules{}, false},
		{"URL with path", "https://example.com/app", Rules{}, false},
		{"invalid URL", "://invalid", Rules{}, true},
		{"no host", "/relative/only", Rules{}, true},
		{"with default excludes", "https://example.com", Rules{ExcludePatterns: DefaultExcludePatterns}, false},
		{"invalid exclude pattern", "https://example.com", Rules{ExcludePatterns: []string{`[invalid`}}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			checker, err := NewChecker(tt.startURL, tt.rules)
			if (err != nil) != tt.wantErr {
				t.Errorf("NewChecker() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if !tt.wantErr && checker == nil {
				t.Error("NewChecker() returned nil without error")
			}
		})
	}
}

func TestChecker_ShouldVisit(t *testing.T) {
	checker, err := NewChecker("https://app.example.com/", Rules{ExcludePatterns: DefaultExcludePatterns})
	if err != nil {
		t.Fatalf("NewChecker() error = %v", err)
	}

	tests := []struct {
		url  string
		want bool
	}{
		{"https://app.example.com/users", true},
		{"https://app.example.com/users?page=2", true},
		{"https://other.example.com/users", false},
		{"https://app.example.com:8443/users", false},
		{"https://app.example.com/logo.png", false},
		{"https://app.example.com/bundle.js", false},
		{"https://app.example.com/report.PDF", false},
		{"https://app.example.com/sockjs-node/info", false},
		{"mailto:admin@example.com", false},
		{"ftp://app.example.com/file", false},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			if got := checker.ShouldVisit(tt.url); got != tt.want {
				t.Errorf("ShouldVisit(%q) = %v, want %v", tt.url, got, tt.want)
			}
		})
	}
}

func TestChecker_IncludeSubdomains(t *testing.T) {
	checker, err := NewChecker("https://app.example.co.uk/", Rules{IncludeSubdomains: true})
	if err != nil {
		t.Fatalf("NewChecker() error = %v", err)
	}

	tests := []struct {
		url  string
		want bool
	}{
		{"https://api.example.co.uk/v1", true},
		{"https://example.co.uk/", true},
		{"https://example-other.co.uk/", false},
		{"https://evil.co.uk/", false},
	}

	for _, tt := range tests {
		if got := checker.SameOrigin(tt.url); got != tt.want {
			t.Errorf("SameOrigin(%q) = %v, want %v", tt.url, got, tt.want)
		}
	}
}

func TestCompilePatterns_Anchored(t *testing.T) {
	res, err := CompilePatterns([]string{`https://x\.test/admin`})
	if err != nil {
		t.Fatalf("CompilePatterns() error = %v", err)
	}

	if !MatchAny(res, "https://x.test/admin/users") {
		t.Error("prefix should match")
	}
	if MatchAny(res, "https://x.test/?next=https://x.test/admin") {
		t.Error("pattern must be anchored at the start")
	}
}

// =============================================================================
// Normalization Tests
// =============================================================================

func TestNormalizeURL(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"https://x/a?b=1&c=2", "https://x/a?b=1&c=2"},
		{"https://x/a?c=2&b=1", "https://x/a?b=1&c=2"},
		{"https://x/a#section", "https://x/a"},
		{"https://x/a/", "https://x/a"},
		{"https://x/", "https://x"},
		{"https://x", "https://x"},
		{"https://x/a?z&a=1", "https://x/a?a=1&z"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := NormalizeURL(tt.input); got != tt.want {
				t.Errorf("NormalizeURL(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestNormalizeURL_QueryOrderInsensitive(t *testing.T) {
	a := NormalizeURL("https://x/a?b=1&c=2")
	b := NormalizeURL("https://x/a?c=2&b=1")
	if a != b {
		t.Errorf("keys differ: %q vs %q", a, b)
	}
}

func TestResolveURL(t *testing.T) {
	tests := []struct {
		base string
		ref  string
		want string
	}{
		{"https://x.test/users/", "42", "https://x.test/users/42"},
		{"https://x.test/users/1", "/orders", "https://x.test/orders"},
		{"https://x.test/", "https://y.test/a#frag", "https://y.test/a"},
		{"https://x.test/a", " /b ", "https://x.test/b"},
	}

	for _, tt := range tests {
		got, err := ResolveURL(tt.base, tt.ref)
		if err != nil {
			t.Fatalf("ResolveURL() error = %v", err)
		}
		if got != tt.want {
			t.Errorf("ResolveURL(%q, %q) = %q, want %q", tt.base, tt.ref, got, tt.want)
		}
	}
}

// =============================================================================
// Rules Tests
// =============================================================================

func TestIsAPIPath(t *testing.T) {
	tests := []struct {
		path string
		want bool
	}{
		{"/api/users", true},
		{"/v1/items", true},
		{"/V2/items", true},
		{"/graphql", true},
		{"/rest/orders", true},
		{"/data/feed", true},
		{"/ajax/load", true},
		{"/json/config", true},
		{"/users", false},
		{"/video/1", false},
	}

	for _, tt := range tests {
		if got := IsAPIPath(tt.path); got != tt.want {
			t.Errorf("IsAPIPath(%q) = %v, want %v", tt.path, got, tt.want)
		}
	}
}

func TestLooksLikeLogin(t *testing.T) {
	tests := []struct {
		url       string
		loginPath string
		want      bool
	}{
		{"https://x.test/login", "", true},
		{"https://x.test/users/sign-in?next=/", "", true},
		{"https://x.test/sso/start", "", true},
		{"https://x.test/portal/enter", "/portal/enter", true},
		{"https://x.test/dashboard", "/login", false},
		{"https://x.test/?next=/login", "", false},
	}

	for _, tt := range tests {
		if got := LooksLikeLogin(tt.url, tt.loginPath); got != tt.want {
			t.Errorf("LooksLikeLogin(%q, %q) = %v, want %v", tt.url, tt.loginPath, got, tt.want)
		}
	}
}
