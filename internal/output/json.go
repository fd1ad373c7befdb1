package output

import (
	"fmt"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/PentesterFlow/APIHunter/internal/models"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// RawDocument is the endpoints.json dump: every analyzed group with its captures.
type RawDocument struct {
	GeneratedAt time.Time              `json:"generated_at"`
	StartURL    string                 `json:"start_url,omitempty"`
	Total       int                    `json:"total"`
	Endpoints   []models.EndpointGroup `json:"endpoints"`
}

// Raw encodes groups as indented JSON.
func Raw(groups []models.EndpointGroup, opts Options) ([]byte, error) {
	if groups == nil {
		groups = []models.EndpointGroup{}
	}
	doc := RawDocument{
		GeneratedAt: opts.generatedAt().UTC(),
		StartURL:    opts.StartURL,
		Total:       len(groups),
		Endpoints:   groups,
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode endpoints: %w", err)
	}
	return data, nil
}

// ReadRaw decodes an endpoints.json dump.
func ReadRaw(data []byte) (*RawDocument, error) {
	var doc RawDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode endpoints: %w", err)
	}
	return &doc, nil
}
