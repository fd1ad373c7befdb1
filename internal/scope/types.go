package scope

// Rules configures which pages a crawl may visit.
type Rules struct {
	// ExcludePatterns are matched anchored at the start of the URL.
	ExcludePatterns []string
	// IncludeSubdomains widens same-origin to the registrable domain.
	IncludeSubdomains bool
}
