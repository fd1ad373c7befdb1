// Package parser extracts crawlable links from rendered page HTML.
package parser

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// routeAttributes carry client-side routes on non-anchor elements.
var routeAttributes = []string{"data-href", "data-link", "data-route"}

// LinkExtractor resolves links found in a page against the page URL.
type LinkExtractor struct {
	baseURL *url.URL
}

// NewLinkExtractor creates an extractor for a page at baseURL.
func NewLinkExtractor(baseURL string) (*LinkExtractor, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, err
	}
	return &LinkExtractor{baseURL: u}, nil
}

// Extract returns absolute link targets in document order, without duplicates.
func (p *LinkExtractor) Extract(html string) ([]string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{})
	links := make([]string, 0)
	add := func(raw string) {
		resolved := p.resolveURL(raw)
		if resolved == "" {
			return
		}
		if _, dup := seen[resolved]; dup {
			return
		}
		seen[resolved] = struct{}{}
		links = append(links, resolved)
	}

	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		if href, ok := s.Attr("href"); ok {
			add(href)
		}
	})

	doc.Find("[data-href], [data-link], [data-route]").Each(func(_ int, s *goquery.Selection) {
		for _, attr := range routeAttributes {
			if v, ok := s.Attr(attr); ok {
				add(v)
			}
		}
	})

	return links, nil
}

// resolveURL resolves a relative URL against the base URL.
func (p *LinkExtractor) resolveURL(href string) string {
	href = strings.TrimSpace(href)
	if href == "" {
		return ""
	}

	lower := strings.ToLower(href)
	if strings.HasPrefix(lower, "javascript:") ||
		strings.HasPrefix(lower, "mailto:") ||
		strings.HasPrefix(lower, "tel:") ||
		strings.HasPrefix(lower, "data:") {
		return ""
	}

	// #/users and #!/users are hash routes; #top is an in-page anchor.
	if strings.HasPrefix(href, "#") {
		if len(href) > 1 && (href[1] == '/' || href[1] == '!') {
			return p.baseURL.Scheme + "://" + p.baseURL.Host + "/" + href
		}
		return ""
	}

	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}

	resolved := p.baseURL.ResolveReference(ref)
	if resolved.Fragment != "" && !strings.HasPrefix(resolved.Fragment, "/") && !strings.HasPrefix(resolved.Fragment, "!") {
		resolved.Fragment = ""
	}
	return resolved.String()
}
