package output

import (
	"fmt"
	"sort"
	"strings"

	"github.com/microcosm-cc/bluemonday"

	"github.com/PentesterFlow/APIHunter/internal/models"
)

const (
	untagged       = "Other"
	maxCellExample = 60
	maxSourcePages = 5
)

// strict strips any markup captured from the target before it lands in the docs.
var strict = bluemonday.StrictPolicy()

// Markdown renders analyzed endpoint groups as a human-readable reference.
func Markdown(groups []models.EndpointGroup, opts Options) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# %s\n\n", title(opts.StartURL))
	fmt.Fprintf(&b, "Generated %s from a crawl of `%s`.\n\n",
		opts.generatedAt().UTC().Format("2006-01-02 15:04 MST"), opts.StartURL)

	writeOverview(&b, groups, opts)

	sections, order := byTag(groups)
	if len(order) > 0 {
		b.WriteString("## Contents\n\n")
		for _, tag := range order {
			fmt.Fprintf(&b, "- [%s](#%s) (%d)\n", tag, anchor(tag), len(sections[tag]))
		}
		b.WriteString("\n")
	}

	for _, tag := range order {
		fmt.Fprintf(&b, "## %s\n\n", tag)
		for _, g := range sections[tag] {
			writeEndpoint(&b, g)
		}
	}

	return b.String()
}

func writeOverview(b *strings.Builder, groups []models.EndpointGroup, opts Options) {
	b.WriteString("## Overview\n\n")
	fmt.Fprintf(b, "- **Endpoints:** %d\n", len(groups))

	methods := make(map[string]int)
	for _, g := range groups {
		methods[string(g.Method)]++
	}
	if len(methods) > 0 {
		parts := make([]string, 0, len(methods))
		for _, m := range sortedKeys(methods) {
			parts = append(parts, fmt.Sprintf("%s %d", m, methods[m]))
		}
		fmt.Fprintf(b, "- **By method:** %s\n", strings.Join(parts, ", "))
	}

	servers := make(map[string]struct{})
	for _, g := range groups {
		if g.BaseURL != "" {
			servers[g.BaseURL] = struct{}{}
		}
	}
	for _, s := range sortedKeys(servers) {
		fmt.Fprintf(b, "- **Base URL:** `%s`\n", s)
	}

	var auth []string
	if opts.LoginURL != "" {
		auth = append(auth, fmt.Sprintf("form login at `%s`", opts.LoginURL))
	}
	for _, h := range opts.AuthHeaders {
		auth = append(auth, fmt.Sprintf("header `%s`", h))
	}
	for _, c := range opts.Cookies {
		auth = append(auth, fmt.Sprintf("cookie `%s`", c))
	}
	if len(auth) > 0 {
		fmt.Fprintf(b, "- **Authentication:** %s\n", strings.Join(auth, ", "))
	}
	b.WriteString("\n")
}

func writeEndpoint(b *strings.Builder, g *models.EndpointGroup) {
	fmt.Fprintf(b, "### `%s %s`\n\n", g.Method, g.PathPattern)
	if g.Summary != "" {
		fmt.Fprintf(b, "%s\n\n", clean(g.Summary))
	}
	if g.Description != "" {
		fmt.Fprintf(b, "%s\n\n", clean(g.Description))
	}

	params := make([]models.Parameter, 0, len(g.Parameters))
	for _, p := range g.Parameters {
		if p.In != models.InBody {
			params = append(params, p)
		}
	}
	if len(params) > 0 {
		b.WriteString("**Parameters**\n\n")
		b.WriteString("| Name | In | Type | Required | Example |\n")
		b.WriteString("|------|----|------|----------|---------|\n")
		for _, p := range params {
			required := "no"
			if p.Required || p.In == models.InPath {
				required = "yes"
			}
			fmt.Fprintf(b, "| `%s` | %s | %s | %s | %s |\n",
				cell(p.Name), p.In, schemaType(p.Type), required, exampleCell(p.Example))
		}
		b.WriteString("\n")
	}

	if rb := g.RequestBody; rb != nil {
		fmt.Fprintf(b, "**Request body** (`%s`)\n\n", mediaType(rb.ContentType))
		writeFields(b, rb.Properties, "")
		writeExample(b, rb.Example)
	}

	if len(g.Responses) > 0 {
		b.WriteString("**Responses**\n\n")
		for _, r := range g.Responses {
			shape := "object"
			if r.IsArray {
				shape = "array of objects"
			}
			fmt.Fprintf(b, "- `%d` %s, %s (`%s`)\n", r.StatusCode, statusDescription(r.StatusCode), shape, mediaType(r.ContentType))
		}
		b.WriteString("\n")
		for _, r := range g.Responses {
			if len(r.Properties) == 0 && !r.Example.IsValid() {
				continue
			}
			fmt.Fprintf(b, "Response `%d`:\n\n", r.StatusCode)
			writeFields(b, r.Properties, "")
			writeExample(b, r.Example)
		}
	}

	if pages := sourcePages(g); len(pages) > 0 {
		more := ""
		if len(pages) > maxSourcePages {
			more = fmt.Sprintf(" and %d more", len(pages)-maxSourcePages)
			pages = pages[:maxSourcePages]
		}
		for i := range pages {
			pages[i] = "`" + pages[i] + "`"
		}
		fmt.Fprintf(b, "_Captured %d times from %s%s._\n\n", len(g.Captured), strings.Join(pages, ", "), more)
	}
}

func writeFields(b *strings.Builder, props []models.SchemaProperty, prefix string) {
	if len(props) == 0 {
		return
	}
	if prefix == "" {
		b.WriteString("| Field | Type | Format | Example |\n")
		b.WriteString("|-------|------|--------|---------|\n")
	}
	for i := range props {
		p := &props[i]
		name := prefix + p.Name
		typ := string(p.Type)
		if p.Items != nil {
			typ = fmt.Sprintf("array of %s", p.Items.Type)
		}
		if p.Nullable {
			typ += ", nullable"
		}
		fmt.Fprintf(b, "| `%s` | %s | %s | %s |\n", cell(name), typ, p.Format, exampleCell(p.Example))

		writeFields(b, p.Properties, name+".")
		if p.Items != nil {
			writeFields(b, p.Items.Properties, name+"[].")
		}
	}
	if prefix == "" {
		b.WriteString("\n")
	}
}

func writeExample(b *strings.Builder, v models.Value) {
	if !v.IsValid() {
		return
	}
	fmt.Fprintf(b, "```json\n%s\n```\n\n", v.IndentJSON())
}

func exampleCell(v models.Value) string {
	if !v.IsValid() || !v.IsScalar() {
		return ""
	}
	text := v.Text()
	if r := []rune(text); len(r) > maxCellExample {
		text = string(r[:maxCellExample]) + "..."
	}
	return "`" + cell(text) + "`"
}

// clean strips markup and collapses whitespace.
func clean(s string) string {
	return strings.Join(strings.Fields(strict.Sanitize(s)), " ")
}

// cell makes s safe inside a table cell.
func cell(s string) string {
	s = clean(s)
	s = strings.ReplaceAll(s, "|", `\|`)
	return strings.ReplaceAll(s, "`", "'")
}

// byTag groups endpoints under their first tag, keeping the analyzer's order within a tag.
func byTag(groups []models.EndpointGroup) (map[string][]*models.EndpointGroup, []string) {
	sections := make(map[string][]*models.EndpointGroup)
	for i := range groups {
		tag := untagged
		if len(groups[i].Tags) > 0 {
			tag = groups[i].Tags[0]
		}
		sections[tag] = append(sections[tag], &groups[i])
	}

	order := make([]string, 0, len(sections))
	for tag := range sections {
		order = append(order, tag)
	}
	sort.Slice(order, func(i, j int) bool {
		if order[i] == untagged || order[j] == untagged {
			return order[j] == untagged && order[i] != untagged
		}
		return order[i] < order[j]
	})
	return sections, order
}

func anchor(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		case r == ' ':
			b.WriteRune('-')
		}
	}
	return b.String()
}
