// Package output renders analyzed endpoints as OpenAPI, Markdown and raw JSON.
package output

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/PentesterFlow/APIHunter/internal/logger"
	"github.com/PentesterFlow/APIHunter/internal/models"
)

// Output formats.
const (
	FormatOpenAPI  = "openapi"
	FormatMarkdown = "markdown"
	FormatBoth     = "both"
)

// File names written under the output directory.
const (
	OpenAPIYAMLFile = "openapi.yaml"
	OpenAPIJSONFile = "openapi.json"
	MarkdownFile    = "api-docs.md"
	RawFile         = "endpoints.json"
)

// ValidFormat reports whether f is a known format selector.
func ValidFormat(f string) bool {
	switch f {
	case FormatOpenAPI, FormatMarkdown, FormatBoth:
		return true
	}
	return false
}

// Generator writes the documentation set to a directory.
type Generator struct {
	dir    string
	format string
	log    *logger.Logger
}

// NewGenerator creates a generator. An empty format means both.
func NewGenerator(dir, format string, log *logger.Logger) *Generator {
	if format == "" {
		format = FormatBoth
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Generator{dir: dir, format: format, log: log.WithComponent("output")}
}

// Write renders groups according to the format selector. endpoints.json is
// always written.
func (g *Generator) Write(groups []models.EndpointGroup, opts Options) (*Manifest, error) {
	if !ValidFormat(g.format) {
		return nil, fmt.Errorf("unknown output format %q", g.format)
	}
	if err := os.MkdirAll(g.dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	if opts.GeneratedAt.IsZero() {
		opts.GeneratedAt = time.Now()
	}

	m := &Manifest{Dir: g.dir, Endpoints: len(groups), WrittenAt: opts.GeneratedAt}

	if g.format == FormatOpenAPI || g.format == FormatBoth {
		doc := OpenAPI(groups, opts)

		data, err := MarshalOpenAPIYAML(doc)
		if err != nil {
			return nil, err
		}
		if m.OpenAPIYAML, err = g.write(OpenAPIYAMLFile, data); err != nil {
			return nil, err
		}

		data, err = MarshalOpenAPIJSON(doc)
		if err != nil {
			return nil, err
		}
		if m.OpenAPIJSON, err = g.write(OpenAPIJSONFile, data); err != nil {
			return nil, err
		}
	}

	if g.format == FormatMarkdown || g.format == FormatBoth {
		path, err := g.write(MarkdownFile, []byte(Markdown(groups, opts)))
		if err != nil {
			return nil, err
		}
		m.Markdown = path
	}

	data, err := Raw(groups, opts)
	if err != nil {
		return nil, err
	}
	if m.Raw, err = g.write(RawFile, data); err != nil {
		return nil, err
	}

	g.log.Infof("Wrote %d endpoints to %s", len(groups), g.dir)
	return m, nil
}

func (g *Generator) write(name string, data []byte) (string, error) {
	path := filepath.Join(g.dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write %s: %w", name, err)
	}
	g.log.Debugf("Wrote %s (%d bytes)", path, len(data))
	return path, nil
}
