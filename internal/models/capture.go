// Package models holds the captured traffic and the API model built from it.
package models

import (
	"net/url"
	"strings"
	"time"
)

// HTTPMethod is one of the methods the hunter records.
type HTTPMethod string

const (
	MethodGet     HTTPMethod = "GET"
	MethodPost    HTTPMethod = "POST"
	MethodPut     HTTPMethod = "PUT"
	MethodPatch   HTTPMethod = "PATCH"
	MethodDelete  HTTPMethod = "DELETE"
	MethodHead    HTTPMethod = "HEAD"
	MethodOptions HTTPMethod = "OPTIONS"
)

// ParseMethod maps a raw method to a known HTTPMethod.
func ParseMethod(raw string) (HTTPMethod, bool) {
	switch m := HTTPMethod(strings.ToUpper(raw)); m {
	case MethodGet, MethodPost, MethodPut, MethodPatch, MethodDelete, MethodHead, MethodOptions:
		return m, true
	}
	return "", false
}

// HasBody reports whether requests with this method conventionally carry a body.
func (m HTTPMethod) HasBody() bool {
	return m == MethodPost || m == MethodPut || m == MethodPatch
}

// ContentType classifies a Content-Type header.
type ContentType string

const (
	ContentJSON      ContentType = "application/json"
	ContentForm      ContentType = "application/x-www-form-urlencoded"
	ContentMultipart ContentType = "multipart/form-data"
	ContentXML       ContentType = "application/xml"
	ContentText      ContentType = "text/plain"
	ContentHTML      ContentType = "text/html"
	ContentUnknown   ContentType = "unknown"
)

// ExtractedParam is a parameter observed on a single request.
type ExtractedParam struct {
	Name   string     `json:"name" yaml:"name"`
	Type   SchemaType `json:"type" yaml:"type"`
	Format string     `json:"format,omitempty" yaml:"format,omitempty"`
	Value  Value      `json:"value" yaml:"value"`
}

// URLParts are the parsed components of a captured URL.
type URLParts struct {
	Scheme string
	Host   string
	Path   string
	Query  url.Values
}

// CapturedRequest is an outgoing request seen by the interceptor. Immutable once built.
type CapturedRequest struct {
	URL       string            `json:"url" yaml:"url"`
	Method    HTTPMethod        `json:"method" yaml:"method"`
	Headers   map[string]string `json:"headers" yaml:"headers"`
	Body      *string           `json:"body,omitempty" yaml:"body,omitempty"`
	Timestamp time.Time         `json:"timestamp" yaml:"timestamp"`

	PathParams  []ExtractedParam `json:"path_params,omitempty" yaml:"path_params,omitempty"`
	QueryParams []ExtractedParam `json:"query_params,omitempty" yaml:"query_params,omitempty"`
	BodyParams  Value            `json:"body_params" yaml:"body_params"`
}

// Parsed splits the request URL. An unparsable URL yields empty parts.
func (r *CapturedRequest) Parsed() URLParts {
	u, err := url.Parse(r.URL)
	if err != nil {
		return URLParts{Query: url.Values{}}
	}
	return URLParts{
		Scheme: u.Scheme,
		Host:   u.Host,
		Path:   u.Path,
		Query:  u.Query(),
	}
}

// Header returns a header value, matching the name case-insensitively.
func (r *CapturedRequest) Header(name string) string {
	return headerValue(r.Headers, name)
}

// BodyText returns the body or "" when absent.
func (r *CapturedRequest) BodyText() string {
	if r.Body == nil {
		return ""
	}
	return *r.Body
}

// ContentType classifies the request by its Content-Type header.
func (r *CapturedRequest) ContentType() ContentType {
	ct := strings.ToLower(r.Header("content-type"))
	switch {
	case strings.Contains(ct, "json"):
		return ContentJSON
	case strings.Contains(ct, "form-urlencoded"):
		return ContentForm
	case strings.Contains(ct, "multipart"):
		return ContentMultipart
	case strings.Contains(ct, "xml"):
		return ContentXML
	}
	return ContentUnknown
}

// CapturedResponse is the response matched to a CapturedRequest.
type CapturedResponse struct {
	StatusCode int               `json:"status_code" yaml:"status_code"`
	Headers    map[string]string `json:"headers" yaml:"headers"`
	Body       *string           `json:"body,omitempty" yaml:"body,omitempty"`
	Timestamp  time.Time         `json:"timestamp" yaml:"timestamp"`
}

// Header returns a header value, matching the name case-insensitively.
func (r *CapturedResponse) Header(name string) string {
	return headerValue(r.Headers, name)
}

// BodyText returns the body or "" when absent.
func (r *CapturedResponse) BodyText() string {
	if r.Body == nil {
		return ""
	}
	return *r.Body
}

// ContentType classifies the response by its Content-Type header.
func (r *CapturedResponse) ContentType() ContentType {
	ct := strings.ToLower(r.Header("content-type"))
	switch {
	case strings.Contains(ct, "json"):
		return ContentJSON
	case strings.Contains(ct, "xml"):
		return ContentXML
	case strings.Contains(ct, "html"):
		return ContentHTML
	case strings.Contains(ct, "text"):
		return ContentText
	}
	return ContentUnknown
}

// CapturedEndpoint pairs a request with its response and the page that issued it.
type CapturedEndpoint struct {
	Request    CapturedRequest  `json:"request" yaml:"request"`
	Response   CapturedResponse `json:"response" yaml:"response"`
	SourcePage string           `json:"source_page" yaml:"source_page"`
}

// Fingerprint identifies the endpoint pattern this capture belongs to.
func (e *CapturedEndpoint) Fingerprint() string {
	return Fingerprint(e.Request.Method, e.Request.Parsed().Path)
}

// PathPattern is the request path with identifiers replaced by {id}.
func (e *CapturedEndpoint) PathPattern() string {
	return NormalizePath(e.Request.Parsed().Path)
}

func headerValue(headers map[string]string, name string) string {
	if v, ok := headers[name]; ok {
		return v
	}
	for k, v := range headers {
		if strings.EqualFold(k, name) {
			return v
		}
	}
	return ""
}
