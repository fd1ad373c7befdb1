package models

// SchemaType is the inferred JSON type of a value.
type SchemaType string

const (
	TypeString  SchemaType = "string"
	TypeInteger SchemaType = "integer"
	TypeNumber  SchemaType = "number"
	TypeBoolean SchemaType = "boolean"
	TypeArray   SchemaType = "array"
	TypeObject  SchemaType = "object"
	TypeNull    SchemaType = "null"
)

// TypeOf returns the schema type of a parsed value. The zero Value is reported as null.
func TypeOf(v Value) SchemaType {
	switch v.Kind() {
	case KindString:
		return TypeString
	case KindInt:
		return TypeInteger
	case KindNumber:
		return TypeNumber
	case KindBool:
		return TypeBoolean
	case KindArray:
		return TypeArray
	case KindObject:
		return TypeObject
	}
	return TypeNull
}

// ParameterLocation is where a parameter travels.
type ParameterLocation string

const (
	InPath   ParameterLocation = "path"
	InQuery  ParameterLocation = "query"
	InHeader ParameterLocation = "header"
	InCookie ParameterLocation = "cookie"
	InBody   ParameterLocation = "body"
)

// Parameter is an inferred operation parameter.
type Parameter struct {
	Name        string            `json:"name" yaml:"name"`
	In          ParameterLocation `json:"in" yaml:"in"`
	Required    bool              `json:"required" yaml:"required"`
	Type        SchemaType        `json:"type" yaml:"type"`
	Description string            `json:"description,omitempty" yaml:"description,omitempty"`
	Example     Value             `json:"example" yaml:"example"`
	Examples    []Value           `json:"examples,omitempty" yaml:"examples,omitempty"`
}

// SchemaProperty is one node of an inferred schema tree.
type SchemaProperty struct {
	Name        string           `json:"name" yaml:"name"`
	Type        SchemaType       `json:"type" yaml:"type"`
	Format      string           `json:"format,omitempty" yaml:"format,omitempty"`
	Description string           `json:"description,omitempty" yaml:"description,omitempty"`
	Nullable    bool             `json:"nullable,omitempty" yaml:"nullable,omitempty"`
	Example     Value            `json:"example" yaml:"example"`
	Properties  []SchemaProperty `json:"properties,omitempty" yaml:"properties,omitempty"`
	Items       *SchemaProperty  `json:"items,omitempty" yaml:"items,omitempty"`
}

// Property looks up a direct child property by name.
func (p *SchemaProperty) Property(name string) *SchemaProperty {
	return findProperty(p.Properties, name)
}

// RequestBody describes the body sent to an operation.
type RequestBody struct {
	ContentType ContentType      `json:"content_type" yaml:"content_type"`
	Properties  []SchemaProperty `json:"properties,omitempty" yaml:"properties,omitempty"`
	Example     Value            `json:"example" yaml:"example"`
	Examples    []Value          `json:"examples,omitempty" yaml:"examples,omitempty"`
}

// Property looks up a top-level body property by name.
func (b *RequestBody) Property(name string) *SchemaProperty {
	return findProperty(b.Properties, name)
}

// ResponseBody describes the responses observed for one status code.
type ResponseBody struct {
	StatusCode  int               `json:"status_code" yaml:"status_code"`
	ContentType ContentType       `json:"content_type" yaml:"content_type"`
	Properties  []SchemaProperty  `json:"properties,omitempty" yaml:"properties,omitempty"`
	IsArray     bool              `json:"is_array,omitempty" yaml:"is_array,omitempty"`
	Example     Value             `json:"example" yaml:"example"`
	Examples    []Value           `json:"examples,omitempty" yaml:"examples,omitempty"`
	Headers     map[string]string `json:"headers,omitempty" yaml:"headers,omitempty"`
}

// Property looks up a top-level response property by name.
func (b *ResponseBody) Property(name string) *SchemaProperty {
	return findProperty(b.Properties, name)
}

// EndpointGroup is every capture sharing one fingerprint, plus what was inferred from them.
type EndpointGroup struct {
	Method      HTTPMethod         `json:"method" yaml:"method"`
	PathPattern string             `json:"path_pattern" yaml:"path_pattern"`
	BaseURL     string             `json:"base_url" yaml:"base_url"`
	Captured    []CapturedEndpoint `json:"captured" yaml:"captured"`
	Parameters  []Parameter        `json:"parameters" yaml:"parameters"`
	RequestBody *RequestBody       `json:"request_body,omitempty" yaml:"request_body,omitempty"`
	Responses   []ResponseBody     `json:"responses" yaml:"responses"`
	Tags        []string           `json:"tags" yaml:"tags"`
	Summary     string             `json:"summary" yaml:"summary"`
	Description string             `json:"description,omitempty" yaml:"description,omitempty"`
	OperationID string             `json:"operation_id" yaml:"operation_id"`
}

// Parameter returns the parameter with the given name and location.
func (g *EndpointGroup) Parameter(name string, in ParameterLocation) *Parameter {
	for i := range g.Parameters {
		if g.Parameters[i].Name == name && g.Parameters[i].In == in {
			return &g.Parameters[i]
		}
	}
	return nil
}

// Response returns the response for a status code.
func (g *EndpointGroup) Response(status int) *ResponseBody {
	for i := range g.Responses {
		if g.Responses[i].StatusCode == status {
			return &g.Responses[i]
		}
	}
	return nil
}

func findProperty(props []SchemaProperty, name string) *SchemaProperty {
	for i := range props {
		if props[i].Name == name {
			return &props[i]
		}
	}
	return nil
}
