package output

import (
	"sort"
	"time"

	"github.com/PentesterFlow/APIHunter/internal/models"
)

// Manifest lists what a Generator wrote.
type Manifest struct {
	Dir         string    `json:"dir"`
	OpenAPIYAML string    `json:"openapi_yaml,omitempty"`
	OpenAPIJSON string    `json:"openapi_json,omitempty"`
	Markdown    string    `json:"markdown,omitempty"`
	Raw         string    `json:"raw"`
	Endpoints   int       `json:"endpoints"`
	WrittenAt   time.Time `json:"written_at"`
}

// Files returns every written path.
func (m *Manifest) Files() []string {
	var files []string
	for _, f := range []string{m.OpenAPIYAML, m.OpenAPIJSON, m.Markdown, m.Raw} {
		if f != "" {
			files = append(files, f)
		}
	}
	return files
}

// MethodCount is a method and how many groups use it.
type MethodCount struct {
	Method string `json:"method"`
	Count  int    `json:"count"`
}

// Summary counts endpoint groups for the terminal report.
type Summary struct {
	Total     int           `json:"total"`
	Captured  int           `json:"captured"`
	ByMethod  []MethodCount `json:"by_method"`
	WithBody  int           `json:"with_body"`
	PathCount int           `json:"path_count"`
}

// Summarize builds a Summary from analyzed groups.
func Summarize(groups []models.EndpointGroup) Summary {
	s := Summary{Total: len(groups)}
	methods := make(map[string]int)
	paths := make(map[string]struct{})
	for _, g := range groups {
		methods[string(g.Method)]++
		paths[g.PathPattern] = struct{}{}
		s.Captured += len(g.Captured)
		if g.RequestBody != nil {
			s.WithBody++
		}
	}
	for _, m := range sortedKeys(methods) {
		s.ByMethod = append(s.ByMethod, MethodCount{Method: m, Count: methods[m]})
	}
	sort.SliceStable(s.ByMethod, func(i, j int) bool {
		return s.ByMethod[i].Count > s.ByMethod[j].Count
	})
	s.PathCount = len(paths)
	return s
}
