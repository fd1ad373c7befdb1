package analyzer

import (
	"strings"

	"github.com/PentesterFlow/APIHunter/internal/models"
)

var (
	timeNameTokens = []string{"date", "time", "timestamp", "created", "updated", "modified"}
	uriNameTokens  = []string{"url", "link", "href", "uri"}
)

// Format descriptions attached to inferred properties.
const (
	descTimestampMillis  = "Unix timestamp in milliseconds"
	descTimestampSeconds = "Unix timestamp in seconds"
	descUUID             = "UUID identifier"
)

// InferSchema expands every member of an object into a property tree.
// Non-object values produce no properties.
func InferSchema(obj models.Value) []models.SchemaProperty {
	if !obj.IsObject() {
		return nil
	}

	props := make([]models.SchemaProperty, 0, obj.Len())
	for _, m := range obj.Members() {
		props = append(props, inferProperty(m.Key, m.Value))
	}
	return props
}

func inferProperty(name string, v models.Value) models.SchemaProperty {
	prop := models.SchemaProperty{
		Name:     name,
		Type:     models.TypeOf(v),
		Nullable: v.IsNull(),
	}
	if v.IsScalar() {
		prop.Example = v
	}

	prop.Format = inferFormat(name, v)
	switch prop.Format {
	case "timestamp-ms":
		prop.Description = descTimestampMillis
	case "timestamp":
		prop.Description = descTimestampSeconds
	case "uuid":
		prop.Description = descUUID
	}

	switch v.Kind() {
	case models.KindObject:
		prop.Properties = InferSchema(v)
	case models.KindArray:
		// The first element stands in for every element; an empty array has no item schema.
		if items := v.Items(); len(items) > 0 {
			item := inferProperty("items", items[0])
			prop.Items = &item
		}
	}
	return prop
}

// inferFormat tags timestamps, emails, URIs and UUIDs.
func inferFormat(name string, v models.Value) string {
	lower := strings.ToLower(name)

	if containsAny(lower, timeNameTokens) {
		if n, ok := v.AsInt(); ok {
			switch {
			case n >= 1_000_000_000_000 && n <= 9_999_999_999_999:
				return "timestamp-ms"
			case n >= 1_000_000_000 && n <= 9_999_999_999:
				return "timestamp"
			}
		}
	}

	if strings.Contains(lower, "email") {
		return "email"
	}
	if containsAny(lower, uriNameTokens) {
		return "uri"
	}
	if s, ok := v.AsString(); ok && models.IsUUID(s) {
		return "uuid"
	}
	return ""
}

func containsAny(s string, tokens []string) bool {
	for _, t := range tokens {
		if strings.Contains(s, t) {
			return true
		}
	}
	return false
}
