package analyzer

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/PentesterFlow/APIHunter/internal/models"
)

// RedactedMarker replaces every sensitive value.
const RedactedMarker = "***REDACTED***"

var sensitiveFields = []string{
	"password", "passwd", "pwd", "pass", "secret", "token",
	"api_key", "apikey", "api-key", "auth", "authorization", "bearer",
	"credential", "private", "key", "session", "cookie", "jwt",
	"access_token", "refresh_token", "client_secret", "client_id",
}

// IsSensitive reports whether a field or header name looks like it carries a secret.
func IsSensitive(name string) bool {
	lower := strings.ToLower(name)
	for _, f := range sensitiveFields {
		if strings.Contains(lower, f) {
			return true
		}
	}
	return false
}

var (
	// key=value, key: value and "key": "value" pairs inside free text.
	textAssignment = regexp.MustCompile(`([A-Za-z0-9_.\-]+)(["']?\s*[:=]\s*["']?)((?i:bearer|basic|token)\s+)?([^"'&\s,;<>{}]+)`)
	// <key>value</key> elements inside XML bodies.
	textElement = regexp.MustCompile(`<([A-Za-z0-9_.:\-]+)>([^<]*)</([A-Za-z0-9_.:\-]+)>`)
)

func marker() models.Value {
	return models.String(RedactedMarker)
}

// RedactValue returns a copy of v with the values of sensitive object keys replaced.
func RedactValue(v models.Value) models.Value {
	switch v.Kind() {
	case models.KindObject:
		members := v.Members()
		out := make([]models.Member, len(members))
		for i, m := range members {
			if IsSensitive(m.Key) {
				out[i] = models.Field(m.Key, marker())
			} else {
				out[i] = models.Field(m.Key, RedactValue(m.Value))
			}
		}
		return models.Object(out...)
	case models.KindArray:
		items := v.Items()
		out := make([]models.Value, len(items))
		for i, item := range items {
			out[i] = RedactValue(item)
		}
		return models.Array(out...)
	}
	return v
}

// RedactText masks the values of sensitive keys in an opaque text body.
func RedactText(s string) string {
	s = textAssignment.ReplaceAllStringFunc(s, func(m string) string {
		sub := textAssignment.FindStringSubmatch(m)
		if !IsSensitive(sub[1]) {
			return m
		}
		return sub[1] + sub[2] + sub[3] + RedactedMarker
	})
	return textElement.ReplaceAllStringFunc(s, func(m string) string {
		sub := textElement.FindStringSubmatch(m)
		if sub[1] != sub[3] || !IsSensitive(sub[1]) {
			return m
		}
		return "<" + sub[1] + ">" + RedactedMarker + "</" + sub[3] + ">"
	})
}

// redactExample redacts structured examples by key and opaque text examples by pattern.
func redactExample(v models.Value) models.Value {
	if s, ok := v.AsString(); ok {
		return models.String(RedactText(s))
	}
	return RedactValue(v)
}

func redactValues(vs []models.Value) []models.Value {
	if vs == nil {
		return nil
	}
	out := make([]models.Value, len(vs))
	for i, v := range vs {
		out[i] = redactExample(v)
	}
	return out
}

func redactQuery(q url.Values) (url.Values, bool) {
	changed := false
	out := make(url.Values, len(q))
	for k, vs := range q {
		if IsSensitive(k) {
			masked := make([]string, len(vs))
			for i := range masked {
				masked[i] = RedactedMarker
			}
			out[k] = masked
			changed = true
			continue
		}
		out[k] = vs
	}
	return out, changed
}

// RedactURL masks sensitive query parameters. URLs without any keep their
// original encoding.
func RedactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		if i := strings.IndexByte(raw, '?'); i >= 0 {
			return raw[:i]
		}
		return raw
	}
	if u.RawQuery == "" {
		return raw
	}
	q, err := url.ParseQuery(u.RawQuery)
	if err != nil {
		u.RawQuery = ""
		return u.String()
	}
	q, changed := redactQuery(q)
	if !changed {
		return raw
	}
	u.RawQuery = q.Encode()
	return u.String()
}

func redactExtracted(params []models.ExtractedParam) []models.ExtractedParam {
	if params == nil {
		return nil
	}
	out := make([]models.ExtractedParam, len(params))
	for i, p := range params {
		if IsSensitive(p.Name) {
			p.Value = marker()
		}
		out[i] = p
	}
	return out
}

// redactBody returns a redacted copy of a captured body. Bodies that are
// neither JSON nor form encoded are dropped.
func redactBody(body *string, ct models.ContentType) *string {
	if body == nil || *body == "" {
		return body
	}
	var out string
	switch ct {
	case models.ContentForm:
		q, err := url.ParseQuery(*body)
		if err != nil {
			return nil
		}
		if q, changed := redactQuery(q); changed {
			out = q.Encode()
		} else {
			out = *body
		}
	case models.ContentJSON, models.ContentUnknown:
		v, err := models.ParseJSON([]byte(*body))
		if err != nil {
			return nil
		}
		out = RedactValue(v).JSON()
	default:
		return nil
	}
	return &out
}

func redactCapture(c models.CapturedEndpoint) models.CapturedEndpoint {
	c.SourcePage = RedactURL(c.SourcePage)

	req := &c.Request
	req.Body = redactBody(req.Body, req.ContentType())
	req.URL = RedactURL(req.URL)
	req.Headers = redactHeaders(req.Headers)
	req.PathParams = redactExtracted(req.PathParams)
	req.QueryParams = redactExtracted(req.QueryParams)
	req.BodyParams = RedactValue(req.BodyParams)

	resp := &c.Response
	resp.Body = redactBody(resp.Body, resp.ContentType())
	resp.Headers = redactHeaders(resp.Headers)
	return c
}

// RedactProperties returns a copy of a schema tree with sensitive examples replaced.
// Array items inherit the name of the array they belong to.
func RedactProperties(props []models.SchemaProperty) []models.SchemaProperty {
	if props == nil {
		return nil
	}
	out := make([]models.SchemaProperty, len(props))
	for i, p := range props {
		out[i] = redactProperty(p, IsSensitive(p.Name))
	}
	return out
}

func redactProperty(p models.SchemaProperty, sensitive bool) models.SchemaProperty {
	if sensitive && p.Example.IsValid() {
		p.Example = marker()
	}
	p.Properties = RedactProperties(p.Properties)
	if p.Items != nil {
		item := redactProperty(*p.Items, sensitive)
		p.Items = &item
	}
	return p
}

func redactHeaders(h map[string]string) map[string]string {
	if h == nil {
		return nil
	}
	out := make(map[string]string, len(h))
	for k, v := range h {
		if IsSensitive(k) {
			v = RedactedMarker
		}
		out[k] = v
	}
	return out
}

func redactParameters(params []models.Parameter) []models.Parameter {
	if params == nil {
		return nil
	}
	out := make([]models.Parameter, len(params))
	for i, p := range params {
		if IsSensitive(p.Name) {
			p.Example = marker()
			examples := make([]models.Value, len(p.Examples))
			for j := range examples {
				examples[j] = marker()
			}
			p.Examples = examples
		}
		out[i] = p
	}
	return out
}

// RedactGroup returns a redacted copy of g; g itself is not modified.
func RedactGroup(g models.EndpointGroup) models.EndpointGroup {
	g.Parameters = redactParameters(g.Parameters)

	if g.RequestBody != nil {
		body := *g.RequestBody
		body.Example = redactExample(body.Example)
		body.Examples = redactValues(body.Examples)
		body.Properties = RedactProperties(body.Properties)
		g.RequestBody = &body
	}

	if g.Responses != nil {
		responses := make([]models.ResponseBody, len(g.Responses))
		for i, r := range g.Responses {
			r.Example = redactExample(r.Example)
			r.Examples = redactValues(r.Examples)
			r.Properties = RedactProperties(r.Properties)
			r.Headers = redactHeaders(r.Headers)
			responses[i] = r
		}
		g.Responses = responses
	}

	if g.Captured != nil {
		captured := make([]models.CapturedEndpoint, len(g.Captured))
		for i, c := range g.Captured {
			captured[i] = redactCapture(c)
		}
		g.Captured = captured
	}
	return g
}
