package scope

import (
	"net/url"
	"regexp"
	"strings"
)

// DefaultExcludePatterns skip static assets and dev-server noise.
var DefaultExcludePatterns = []string{
	`.*\.(png|jpg|jpeg|gif|svg|ico|css|js|woff|woff2|ttf|eot)(\?.*)?$`,
	`.*/sockjs-node/.*`,
	`.*/hot-update\.json$`,
	`.*/__webpack_hmr.*`,
	`.*/favicon\.ico$`,
}

// apiIndicators are path fragments that mark a request as an API call.
var apiIndicators = []string{
	"/api/",
	"/graphql",
	"/rest/",
	"/data/",
	"/ajax/",
	"/json/",
}

var versionSegment = regexp.MustCompile(`/v[0-9]+/`)

// IsAPIPath checks if a path looks like an API endpoint.
func IsAPIPath(path string) bool {
	path = strings.ToLower(path)

	for _, ind := range apiIndicators {
		if strings.Contains(path, ind) {
			return true
		}
	}
	return versionSegment.MatchString(path)
}

// loginIndicators mark URLs that serve a sign-in form.
var loginIndicators = []string{"/login", "/signin", "/sign-in", "/auth", "/sso"}

// LooksLikeLogin reports whether a URL points at a sign-in page.
// loginPath, when set, is matched as an extra indicator.
func LooksLikeLogin(rawURL, loginPath string) bool {
	path := strings.ToLower(rawURL)
	if parsed, err := url.Parse(rawURL); err == nil {
		path = strings.ToLower(parsed.Path)
	}

	if loginPath != "" && loginPath != "/" && strings.Contains(path, strings.ToLower(loginPath)) {
		return true
	}
	for _, ind := range loginIndicators {
		if strings.Contains(path, ind) {
			return true
		}
	}
	return false
}
