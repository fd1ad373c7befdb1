// Package analyzer turns captured traffic into a de-duplicated API model.
package analyzer

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/PentesterFlow/APIHunter/internal/discovery"
	"github.com/PentesterFlow/APIHunter/internal/errors"
	"github.com/PentesterFlow/APIHunter/internal/logger"
	"github.com/PentesterFlow/APIHunter/internal/models"
)

const (
	maxParamExamples = 5
	maxBodyExamples  = 3
	// maxTextExample caps opaque (non-JSON) examples, in runes.
	maxTextExample = 2000
)

var nonAPIPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)^/resources/`),
	regexp.MustCompile(`(?i)\.(properties|json|xml|yaml|yml)$`),
	regexp.MustCompile(`(?i)^/static/`),
	regexp.MustCompile(`(?i)^/assets/`),
	regexp.MustCompile(`(?i)^/_next/`),
	regexp.MustCompile(`(?i)^/__`),
	regexp.MustCompile(`(?i)\.(css|js|map|ico|png|jpg|jpeg|gif|svg|woff|woff2|ttf|eot)(\?.*)?$`),
}

// Config controls filtering and redaction.
type Config struct {
	FilterNonAPI    bool
	RedactSensitive bool
	Logger          *logger.Logger
	// ErrorLog receives malformed-body errors. Optional.
	ErrorLog *errors.Log
}

// DefaultConfig filters non-API traffic and redacts secrets.
func DefaultConfig() Config {
	return Config{
		FilterNonAPI:    true,
		RedactSensitive: true,
	}
}

// Analyzer groups captures and infers their parameters and schemas.
type Analyzer struct {
	config Config
	log    *logger.Logger
}

// New creates an analyzer.
func New(config Config) *Analyzer {
	log := config.Logger
	if log == nil {
		log = logger.Nop()
	}
	return &Analyzer{
		config: config,
		log:    log.WithComponent("analyzer"),
	}
}

// Analyze builds one EndpointGroup per fingerprint, sorted by path pattern then method.
func (a *Analyzer) Analyze(captured []models.CapturedEndpoint) []models.EndpointGroup {
	var (
		order  []string
		groups = make(map[string][]models.CapturedEndpoint)
	)

	filtered := 0
	for _, c := range captured {
		if a.config.FilterNonAPI && !IsAPIEndpoint(&c) {
			filtered++
			continue
		}
		fp := c.Fingerprint()
		if _, ok := groups[fp]; !ok {
			order = append(order, fp)
		}
		groups[fp] = append(groups[fp], c)
	}

	result := make([]models.EndpointGroup, 0, len(order))
	for _, fp := range order {
		g := a.analyzeGroup(groups[fp])
		if a.config.RedactSensitive {
			g = RedactGroup(g)
		}
		result = append(result, g)
	}

	sort.SliceStable(result, func(i, j int) bool {
		if result[i].PathPattern != result[j].PathPattern {
			return result[i].PathPattern < result[j].PathPattern
		}
		return result[i].Method < result[j].Method
	})

	a.log.Infof("Analyzed %d captures into %d endpoints (%d filtered as non-API)",
		len(captured), len(result), filtered)
	return result
}

// IsAPIEndpoint separates API calls from asset and page traffic.
func IsAPIEndpoint(c *models.CapturedEndpoint) bool {
	path := c.Request.Parsed().Path
	if strings.Contains(path, "/api/") {
		return true
	}
	for _, re := range nonAPIPatterns {
		if re.MatchString(path) {
			return false
		}
	}
	switch c.Response.ContentType() {
	case models.ContentJSON:
		return true
	case models.ContentHTML:
		return false
	}
	return true
}

func (a *Analyzer) analyzeGroup(captures []models.CapturedEndpoint) models.EndpointGroup {
	first := &captures[0]
	parts := first.Request.Parsed()
	pattern := models.NormalizePath(parts.Path)
	method := first.Request.Method

	g := models.EndpointGroup{
		Method:      method,
		PathPattern: pattern,
		BaseURL:     parts.Scheme + "://" + parts.Host,
		Captured:    captures,
		Tags:        Tags(pattern),
		Summary:     Summary(method, pattern),
		OperationID: OperationID(method, pattern),
		Description: fmt.Sprintf("Observed %d time(s)", len(captures)),
	}

	g.Parameters = append(pathParameters(pattern, captures), queryParameters(captures)...)
	if method.HasBody() {
		g.RequestBody = a.requestBody(captures)
	}
	g.Responses = a.responses(captures)
	return g
}

// pathParameters maps the first placeholder back to the literal segments seen there.
func pathParameters(pattern string, captures []models.CapturedEndpoint) []models.Parameter {
	segments := strings.Split(pattern, "/")
	idx := -1
	for i, s := range segments {
		if s == models.Placeholder {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil
	}

	var raw []string
	for _, c := range captures {
		actual := strings.Split(c.Request.Parsed().Path, "/")
		if idx < len(actual) {
			raw = appendDistinct(raw, actual[idx])
		}
	}

	p := models.Parameter{
		Name:     "id",
		In:       models.InPath,
		Required: true,
		Type:     models.TypeString,
	}
	if len(raw) > 0 {
		p.Type = discovery.InferType(raw[0])
		p.Examples = typedValues(raw)
		p.Example = p.Examples[0]
	}
	return []models.Parameter{p}
}

func queryParameters(captures []models.CapturedEndpoint) []models.Parameter {
	seen := make(map[string][]string)
	for _, c := range captures {
		for name, values := range c.Request.Parsed().Query {
			for _, v := range values {
				seen[name] = appendDistinct(seen[name], v)
			}
			if _, ok := seen[name]; !ok {
				seen[name] = nil
			}
		}
	}

	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)

	params := make([]models.Parameter, 0, len(names))
	for _, name := range names {
		p := models.Parameter{
			Name: name,
			In:   models.InQuery,
			Type: models.TypeString,
		}
		if raw := seen[name]; len(raw) > 0 {
			p.Type = discovery.InferType(raw[0])
			p.Examples = typedValues(raw)
			p.Example = p.Examples[0]
		}
		params = append(params, p)
	}
	return params
}

func (a *Analyzer) requestBody(captures []models.CapturedEndpoint) *models.RequestBody {
	var (
		body     *models.RequestBody
		examples []models.Value
	)
	for i := range captures {
		req := &captures[i].Request
		if req.BodyText() == "" {
			continue
		}

		ct := req.ContentType()
		v := a.parseBody(req.BodyText(), ct, req.URL)
		if body == nil {
			body = &models.RequestBody{ContentType: ct, Example: v}
			if ct == models.ContentUnknown && v.Kind() != models.KindString {
				body.ContentType = models.ContentJSON
			}
		}
		if len(examples) < maxBodyExamples {
			examples = append(examples, v)
		}
	}
	if body == nil {
		return nil
	}

	body.Examples = examples
	body.Properties = InferSchema(body.Example)
	return body
}

func (a *Analyzer) responses(captures []models.CapturedEndpoint) []models.ResponseBody {
	byStatus := make(map[int][]*models.CapturedEndpoint)
	for i := range captures {
		status := captures[i].Response.StatusCode
		byStatus[status] = append(byStatus[status], &captures[i])
	}

	statuses := make([]int, 0, len(byStatus))
	for s := range byStatus {
		statuses = append(statuses, s)
	}
	sort.Ints(statuses)

	out := make([]models.ResponseBody, 0, len(statuses))
	for _, status := range statuses {
		group := byStatus[status]
		r := models.ResponseBody{
			StatusCode:  status,
			ContentType: group[0].Response.ContentType(),
			Headers:     group[0].Response.Headers,
		}

		for _, c := range group {
			text := c.Response.BodyText()
			if text == "" {
				continue
			}
			v := models.String(truncateText(text, maxTextExample))
			if c.Response.ContentType() == models.ContentJSON {
				v = a.parseBody(text, models.ContentJSON, c.Request.URL)
			}
			if !r.Example.IsValid() {
				r.Example = v
			}
			if len(r.Examples) < maxBodyExamples {
				r.Examples = append(r.Examples, v)
			}
		}

		switch r.Example.Kind() {
		case models.KindObject:
			r.Properties = InferSchema(r.Example)
		case models.KindArray:
			r.IsArray = true
			if items := r.Example.Items(); len(items) > 0 && items[0].IsObject() {
				r.Properties = InferSchema(items[0])
			}
		}
		out = append(out, r)
	}
	return out
}

// parseBody decodes JSON and form bodies. Anything else, or malformed JSON, stays an opaque string.
func (a *Analyzer) parseBody(text string, ct models.ContentType, url string) models.Value {
	switch ct {
	case models.ContentForm:
		return discovery.ParseForm(text)
	case models.ContentJSON, models.ContentUnknown:
		v, err := models.ParseJSON([]byte(text))
		if err == nil {
			return v
		}
		if ct == models.ContentJSON {
			a.recordError(errors.NewAnalysisError(url, fmt.Errorf("malformed JSON body: %w", err)), url)
		}
	}
	return models.String(text)
}

func (a *Analyzer) recordError(err error, url string) {
	a.log.WithURL(url).WithError(err).Warn("Body analysis failed")
	if a.config.ErrorLog != nil {
		a.config.ErrorLog.Add(err, url)
	}
}

func truncateText(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}

func appendDistinct(list []string, v string) []string {
	if len(list) >= maxParamExamples {
		return list
	}
	for _, existing := range list {
		if existing == v {
			return list
		}
	}
	return append(list, v)
}

func typedValues(raw []string) []models.Value {
	out := make([]models.Value, len(raw))
	for i, r := range raw {
		out[i] = discovery.TypedValue(r)
	}
	return out
}
