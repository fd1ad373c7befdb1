package analyzer

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/PentesterFlow/APIHunter/internal/models"
)

var tagPrefix = regexp.MustCompile(`^/?(api|v\d+)/`)

// resourceParts returns the non-placeholder segments of a path pattern.
func resourceParts(pattern string) []string {
	var parts []string
	for _, p := range strings.Split(pattern, "/") {
		if p != "" && !strings.HasPrefix(p, "{") {
			parts = append(parts, p)
		}
	}
	return parts
}

// Tags derives the single tag of a path pattern from its first meaningful segment.
func Tags(pattern string) []string {
	trimmed := pattern
	for tagPrefix.MatchString(trimmed) {
		trimmed = tagPrefix.ReplaceAllString(trimmed, "")
	}
	parts := resourceParts(trimmed)
	if len(parts) == 0 {
		return []string{"General"}
	}
	return []string{titleWords(humanize(parts[0]))}
}

var methodActions = map[models.HTTPMethod]string{
	models.MethodPost:    "Create",
	models.MethodPut:     "Update",
	models.MethodPatch:   "Partially update",
	models.MethodDelete:  "Delete",
	models.MethodHead:    "Check",
	models.MethodOptions: "Get options for",
}

// Summary generates a one-line description such as "List users" or "Get users".
func Summary(method models.HTTPMethod, pattern string) string {
	resource := "resource"
	if parts := resourceParts(pattern); len(parts) > 0 {
		resource = humanize(parts[len(parts)-1])
	}

	action, ok := methodActions[method]
	if method == models.MethodGet {
		action = "List"
		if strings.Contains(pattern, models.Placeholder) {
			action = "Get"
		}
	} else if !ok {
		action = string(method)
	}
	return action + " " + resource
}

// OperationID builds a camelCase id: the lowercased method followed by each
// resource segment in title case, e.g. getUsers or postUsersOrders.
func OperationID(method models.HTTPMethod, pattern string) string {
	prefix := strings.ToLower(string(method))
	parts := resourceParts(pattern)
	if len(parts) == 0 {
		return prefix + "Root"
	}

	var b strings.Builder
	b.WriteString(prefix)
	for _, p := range parts {
		b.WriteString(strings.ReplaceAll(titleWords(humanize(p)), " ", ""))
	}
	return b.String()
}

func humanize(s string) string {
	return strings.NewReplacer("-", " ", "_", " ").Replace(s)
}

// titleWords upper-cases the first letter of each word and lower-cases the rest.
func titleWords(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		r, size := utf8.DecodeRuneInString(w)
		words[i] = string(unicode.ToUpper(r)) + strings.ToLower(w[size:])
	}
	return strings.Join(words, " ")
}
