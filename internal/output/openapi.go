package output

import (
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/PentesterFlow/APIHunter/internal/models"
)

// OpenAPI builds an OpenAPI 3.0 document from analyzed endpoint groups.
func OpenAPI(groups []models.EndpointGroup, opts Options) *Document {
	doc := &Document{
		OpenAPI: OpenAPIVersion,
		Info: Info{
			Title:   title(opts.StartURL),
			Version: "1.0.0",
			Description: fmt.Sprintf("Discovered by crawling %s on %s. %d endpoints.",
				opts.StartURL, opts.generatedAt().UTC().Format("2006-01-02 15:04 MST"), len(groups)),
		},
		Paths: make(map[string]PathItem),
	}

	servers := make(map[string]struct{})
	tags := make(map[string]struct{})

	for i := range groups {
		g := &groups[i]
		if g.BaseURL != "" {
			servers[g.BaseURL] = struct{}{}
		}
		for _, t := range g.Tags {
			tags[t] = struct{}{}
		}

		item, ok := doc.Paths[g.PathPattern]
		if !ok {
			item = make(PathItem)
			doc.Paths[g.PathPattern] = item
		}
		item[strings.ToLower(string(g.Method))] = operation(g)
	}

	for _, s := range sortedKeys(servers) {
		doc.Servers = append(doc.Servers, Server{URL: s})
	}
	if len(doc.Servers) == 0 {
		if origin := originOf(opts.StartURL); origin != "" {
			doc.Servers = append(doc.Servers, Server{URL: origin})
		}
	}

	for _, t := range sortedKeys(tags) {
		doc.Tags = append(doc.Tags, Tag{Name: t, Description: "Operations on " + t})
	}

	doc.Components, doc.Security = security(opts)
	return doc
}

// MarshalOpenAPIYAML encodes doc as YAML with two-space indentation.
func MarshalOpenAPIYAML(doc *Document) ([]byte, error) {
	var b strings.Builder
	enc := yaml.NewEncoder(&b)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return nil, fmt.Errorf("encode openapi yaml: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return []byte(b.String()), nil
}

// MarshalOpenAPIJSON encodes doc as indented JSON.
func MarshalOpenAPIJSON(doc *Document) ([]byte, error) {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode openapi json: %w", err)
	}
	return data, nil
}

func operation(g *models.EndpointGroup) *Operation {
	op := &Operation{
		Tags:        g.Tags,
		Summary:     g.Summary,
		Description: describe(g),
		OperationID: g.OperationID,
		Responses:   make(map[string]Response),
	}

	for _, p := range g.Parameters {
		if p.In == models.InBody {
			continue
		}
		param := Parameter{
			Name:        p.Name,
			In:          string(p.In),
			Description: p.Description,
			Required:    p.Required || p.In == models.InPath,
			Schema:      &Schema{Type: schemaType(p.Type)},
		}
		if p.Example.IsValid() {
			ex := p.Example
			param.Schema.Example = &ex
		}
		op.Parameters = append(op.Parameters, param)
	}

	if rb := g.RequestBody; rb != nil {
		op.RequestBody = &RequestBody{
			Required: true,
			Content: map[string]MediaType{
				mediaType(rb.ContentType): {
					Schema:  objectSchema(rb.Properties, false),
					Example: example(rb.Example),
				},
			},
		}
	}

	for _, r := range g.Responses {
		resp := Response{Description: statusDescription(r.StatusCode)}
		if len(r.Properties) > 0 || r.Example.IsValid() {
			resp.Content = map[string]MediaType{
				mediaType(r.ContentType): {
					Schema:  objectSchema(r.Properties, r.IsArray),
					Example: example(r.Example),
				},
			}
		}
		op.Responses[strconv.Itoa(r.StatusCode)] = resp
	}
	if len(op.Responses) == 0 {
		op.Responses["default"] = Response{Description: "No response observed"}
	}

	return op
}

func describe(g *models.EndpointGroup) string {
	if g.Description != "" {
		return g.Description
	}
	pages := sourcePages(g)
	if len(pages) == 0 {
		return fmt.Sprintf("Observed %d times.", len(g.Captured))
	}
	return fmt.Sprintf("Observed %d times from %s.", len(g.Captured), strings.Join(pages, ", "))
}

func objectSchema(props []models.SchemaProperty, isArray bool) *Schema {
	obj := &Schema{Type: "object"}
	if len(props) > 0 {
		obj.Properties = make(map[string]*Schema, len(props))
		for i := range props {
			obj.Properties[props[i].Name] = propertySchema(&props[i])
		}
	}
	if isArray {
		return &Schema{Type: "array", Items: obj}
	}
	return obj
}

func propertySchema(p *models.SchemaProperty) *Schema {
	s := &Schema{
		Type:     schemaType(p.Type),
		Format:   p.Format,
		Nullable: p.Nullable || p.Type == models.TypeNull,
	}
	if len(p.Properties) > 0 {
		s.Properties = make(map[string]*Schema, len(p.Properties))
		for i := range p.Properties {
			s.Properties[p.Properties[i].Name] = propertySchema(&p.Properties[i])
		}
	}
	if p.Items != nil {
		s.Items = propertySchema(p.Items)
	}
	if p.Example.IsScalar() {
		ex := p.Example
		s.Example = &ex
	}
	return s
}

// schemaType maps inferred types to OpenAPI 3.0, which has no null type.
func schemaType(t models.SchemaType) string {
	switch t {
	case models.TypeNull, "":
		return "string"
	}
	return string(t)
}

func example(v models.Value) *models.Value {
	if !v.IsValid() {
		return nil
	}
	return &v
}

func mediaType(ct models.ContentType) string {
	if ct == "" || ct == models.ContentUnknown {
		return "application/json"
	}
	return string(ct)
}

func statusDescription(code int) string {
	if text := http.StatusText(code); text != "" {
		return text
	}
	return "Status " + strconv.Itoa(code)
}

func security(opts Options) (*Components, []SecurityRequirement) {
	schemes := make(map[string]SecurityScheme)

	for _, h := range opts.AuthHeaders {
		if strings.EqualFold(h, "Authorization") {
			schemes["bearerAuth"] = SecurityScheme{Type: "http", Scheme: "bearer"}
			continue
		}
		schemes[schemeName(h)] = SecurityScheme{Type: "apiKey", Name: h, In: "header"}
	}
	for _, c := range opts.Cookies {
		schemes[schemeName(c)] = SecurityScheme{Type: "apiKey", Name: c, In: "cookie"}
	}
	if len(schemes) == 0 && opts.LoginURL != "" {
		schemes["sessionAuth"] = SecurityScheme{Type: "apiKey", Name: "session", In: "cookie"}
	}
	if len(schemes) == 0 {
		return nil, nil
	}

	reqs := make([]SecurityRequirement, 0, len(schemes))
	for _, name := range sortedKeys(schemes) {
		reqs = append(reqs, SecurityRequirement{name: {}})
	}
	return &Components{SecuritySchemes: schemes}, reqs
}

func schemeName(s string) string {
	var b strings.Builder
	upper := false
	for _, r := range s {
		if r == '-' || r == '_' || r == ' ' {
			upper = true
			continue
		}
		if upper && b.Len() > 0 {
			r = []rune(strings.ToUpper(string(r)))[0]
		} else if b.Len() == 0 {
			r = []rune(strings.ToLower(string(r)))[0]
		}
		upper = false
		b.WriteRune(r)
	}
	return b.String() + "Auth"
}

func title(startURL string) string {
	u, err := url.Parse(startURL)
	if err != nil || u.Host == "" {
		return "Discovered API"
	}
	return u.Host + " API"
}

func originOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return ""
	}
	return u.Scheme + "://" + u.Host
}

func sourcePages(g *models.EndpointGroup) []string {
	seen := make(map[string]struct{})
	for _, c := range g.Captured {
		if c.SourcePage != "" {
			seen[c.SourcePage] = struct{}{}
		}
	}
	return sortedKeys(seen)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
