// Package discovery extracts path, query and body parameters from captured requests.
package discovery

import (
	"math"
	"net/url"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/PentesterFlow/APIHunter/internal/models"
)

var (
	slugPattern     = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)+$`)
	objectIDPattern = regexp.MustCompile(`(?i)^[0-9a-f]{24}$`)
	datePattern     = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
	dateTimePattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}[T ]\d{2}:\d{2}`)
	digitPattern    = regexp.MustCompile(`\d`)
)

// Annotate fills the derived parameter fields of a request.
// A body that cannot be parsed leaves BodyParams invalid and returns the parse error.
func Annotate(req *models.CapturedRequest) error {
	parts := req.Parsed()
	req.PathParams = PathParams(parts.Path)
	req.QueryParams = QueryParams(parts.Query)

	if req.Body == nil || *req.Body == "" {
		return nil
	}
	body, err := BodyParams(*req.Body, req.ContentType())
	if err != nil {
		return err
	}
	req.BodyParams = body
	return nil
}

// PathParams returns the dynamic-looking segments of path.
func PathParams(path string) []models.ExtractedParam {
	var params []models.ExtractedParam

	segments := strings.Split(path, "/")
	for i, seg := range segments {
		if seg == "" {
			continue
		}
		typ, format, ok := classifySegment(seg)
		if !ok {
			continue
		}
		value := models.String(seg)
		if typ == models.TypeInteger {
			value = TypedValue(seg)
		}
		params = append(params, models.ExtractedParam{
			Name:   suggestParamName(segments, i),
			Type:   typ,
			Format: format,
			Value:  value,
		})
	}
	return params
}

// classifySegment detects numeric ids, UUIDs, object ids and slugs.
func classifySegment(seg string) (models.SchemaType, string, bool) {
	switch {
	case isDigits(seg):
		return models.TypeInteger, "", true
	case models.IsUUID(seg):
		return models.TypeString, "uuid", true
	case objectIDPattern.MatchString(seg):
		return models.TypeString, "objectid", true
	case slugPattern.MatchString(seg) && digitPattern.MatchString(seg):
		return models.TypeString, "slug", true
	}
	return "", "", false
}

// suggestParamName names a path value after the segment before it.
func suggestParamName(parts []string, idx int) string {
	if idx == 0 || parts[idx-1] == "" {
		return "id"
	}
	prev := parts[idx-1]
	if models.IsIdentifierSegment(prev) {
		return "id"
	}
	return strings.TrimSuffix(prev, "s") + "_id"
}

// QueryParams infers one parameter per query key, sorted by name.
func QueryParams(query url.Values) []models.ExtractedParam {
	names := make([]string, 0, len(query))
	for name := range query {
		names = append(names, name)
	}
	sort.Strings(names)

	params := make([]models.ExtractedParam, 0, len(names))
	for _, name := range names {
		raw := ""
		if values := query[name]; len(values) > 0 {
			raw = values[0]
		}
		typ, format := inferQueryType(raw)
		value := models.String(raw)
		if typ != models.TypeString {
			value = TypedValue(raw)
		}
		params = append(params, models.ExtractedParam{
			Name:   name,
			Type:   typ,
			Format: format,
			Value:  value,
		})
	}
	return params
}

func inferQueryType(raw string) (models.SchemaType, string) {
	switch {
	case isDigits(raw):
		return models.TypeInteger, ""
	case strings.EqualFold(raw, "true") || strings.EqualFold(raw, "false"):
		return models.TypeBoolean, ""
	case datePattern.MatchString(raw):
		return models.TypeString, "date"
	case dateTimePattern.MatchString(raw):
		return models.TypeString, "date-time"
	}
	return models.TypeString, ""
}

// BodyParams parses a JSON or form-encoded body. Other content types yield an invalid Value.
func BodyParams(body string, contentType models.ContentType) (models.Value, error) {
	switch contentType {
	case models.ContentJSON:
		return models.ParseJSON([]byte(body))
	case models.ContentForm:
		return ParseForm(body), nil
	}
	return models.Value{}, nil
}

// ParseForm decodes a form body into an object, keeping field order.
// Repeated keys become arrays.
func ParseForm(body string) models.Value {
	var keys []string
	fields := make(map[string][]models.Value)

	for _, pair := range strings.Split(body, "&") {
		if pair == "" {
			continue
		}
		key, raw, _ := strings.Cut(pair, "=")
		if k, err := url.QueryUnescape(key); err == nil {
			key = k
		}
		if v, err := url.QueryUnescape(raw); err == nil {
			raw = v
		}
		if _, seen := fields[key]; !seen {
			keys = append(keys, key)
		}
		fields[key] = append(fields[key], TypedValue(raw))
	}

	members := make([]models.Member, 0, len(keys))
	for _, key := range keys {
		values := fields[key]
		if len(values) == 1 {
			members = append(members, models.Field(key, values[0]))
			continue
		}
		members = append(members, models.Field(key, models.Array(values...)))
	}
	return models.Object(members...)
}

// InferType guesses the schema type of a raw string taken from a URL.
func InferType(raw string) models.SchemaType {
	if isDigits(raw) {
		return models.TypeInteger
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil && !math.IsNaN(f) && !math.IsInf(f, 0) {
		return models.TypeNumber
	}
	if strings.EqualFold(raw, "true") || strings.EqualFold(raw, "false") {
		return models.TypeBoolean
	}
	return models.TypeString
}

// TypedValue converts a raw string to the Value its inferred type implies.
func TypedValue(raw string) models.Value {
	switch InferType(raw) {
	case models.TypeInteger:
		if i, err := strconv.ParseInt(raw, 10, 64); err == nil {
			return models.Int(i)
		}
	case models.TypeNumber:
		if f, err := strconv.ParseFloat(raw, 64); err == nil {
			return models.Number(f)
		}
	case models.TypeBoolean:
		return models.Bool(strings.EqualFold(raw, "true"))
	}
	return models.String(raw)
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}
