package output

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/PentesterFlow/APIHunter/internal/analyzer"
	"github.com/PentesterFlow/APIHunter/internal/models"
)

var fixedTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func testGroups() []models.EndpointGroup {
	user := models.Object(
		models.Field("id", models.Int(1)),
		models.Field("name", models.String("a")),
		models.Field("email", models.String("a@x.test")),
	)
	return []models.EndpointGroup{
		{
			Method:      models.MethodGet,
			PathPattern: "/api/users",
			BaseURL:     "https://x.test",
			Tags:        []string{"Users"},
			Summary:     "List users",
			OperationID: "listUsers",
			Captured:    []models.CapturedEndpoint{{SourcePage: "https://x.test/users"}},
			Parameters: []models.Parameter{
				{Name: "page", In: models.InQuery, Type: models.TypeInteger, Example: models.Int(2)},
			},
			Responses: []models.ResponseBody{{
				StatusCode:  200,
				ContentType: models.ContentJSON,
				IsArray:     true,
				Properties: []models.SchemaProperty{
					{Name: "id", Type: models.TypeInteger, Example: models.Int(1)},
					{Name: "email", Type: models.TypeString, Format: "email", Example: models.String("a@x.test")},
				},
				Example: models.Array(user),
			}},
		},
		{
			Method:      models.MethodPost,
			PathPattern: "/api/users",
			BaseURL:     "https://x.test",
			Tags:        []string{"Users"},
			Summary:     "Create user",
			OperationID: "createUser",
			RequestBody: &models.RequestBody{
				ContentType: models.ContentJSON,
				Properties: []models.SchemaProperty{
					{Name: "name", Type: models.TypeString, Example: models.String("a")},
					{Name: "password", Type: models.TypeString, Example: models.String("***REDACTED***")},
				},
				Example: models.Object(models.Field("name", models.String("a"))),
			},
			Responses: []models.ResponseBody{{StatusCode: 201, ContentType: models.ContentJSON}},
		},
		{
			Method:      models.MethodGet,
			PathPattern: "/api/users/{id}",
			BaseURL:     "https://api.x.test",
			Tags:        []string{"Users"},
			Summary:     "Get user",
			OperationID: "getUser",
			Parameters: []models.Parameter{
				{Name: "id", In: models.InPath, Type: models.TypeInteger, Example: models.Int(1)},
			},
			Responses: []models.ResponseBody{{
				StatusCode:  200,
				ContentType: models.ContentJSON,
				Properties: []models.SchemaProperty{
					{Name: "id", Type: models.TypeInteger},
					{Name: "deleted_at", Type: models.TypeNull, Nullable: true},
					{Name: "profile", Type: models.TypeObject, Properties: []models.SchemaProperty{
						{Name: "bio", Type: models.TypeString},
					}},
				},
				Example: user,
			}},
		},
		{
			Method:      models.MethodDelete,
			PathPattern: "/health",
			Summary:     "Delete <script>alert(1)</script>health | check",
		},
	}
}

func testOptions() Options {
	return Options{
		StartURL:    "https://x.test/app",
		AuthHeaders: []string{"Authorization", "X-Api-Key"},
		Cookies:     []string{"sid"},
		GeneratedAt: fixedTime,
	}
}

// =============================================================================
// OpenAPI Tests
// =============================================================================

func TestOpenAPI_Structure(t *testing.T) {
	doc := OpenAPI(testGroups(), testOptions())

	if doc.OpenAPI != "3.0.3" {
		t.Errorf("OpenAPI = %q, want 3.0.3", doc.OpenAPI)
	}
	if doc.Info.Title != "x.test API" {
		t.Errorf("Info.Title = %q, want x.test API", doc.Info.Title)
	}
	if len(doc.Paths) != 3 {
		t.Fatalf("Paths = %d, want 3", len(doc.Paths))
	}

	users := doc.Paths["/api/users"]
	if users["get"] == nil || users["post"] == nil {
		t.Fatalf("/api/users methods = %v, want get and post", users)
	}
	if users["get"].OperationID != "listUsers" {
		t.Errorf("OperationID = %q, want listUsers", users["get"].OperationID)
	}
	if !strings.Contains(users["get"].Description, "https://x.test/users") {
		t.Errorf("Description = %q, want source page", users["get"].Description)
	}

	if len(doc.Servers) != 2 || doc.Servers[0].URL != "https://api.x.test" || doc.Servers[1].URL != "https://x.test" {
		t.Errorf("Servers = %+v, want both base URLs sorted", doc.Servers)
	}
	if len(doc.Tags) != 1 || doc.Tags[0].Name != "Users" {
		t.Errorf("Tags = %+v, want [Users]", doc.Tags)
	}
}

func TestOpenAPI_Parameters(t *testing.T) {
	doc := OpenAPI(testGroups(), testOptions())

	get := doc.Paths["/api/users/{id}"]["get"]
	if len(get.Parameters) != 1 {
		t.Fatalf("Parameters = %+v, want 1", get.Parameters)
	}
	id := get.Parameters[0]
	if id.In != "path" || !id.Required {
		t.Errorf("id = %+v, want required path parameter", id)
	}
	if id.Schema.Type != "integer" {
		t.Errorf("id type = %q, want integer", id.Schema.Type)
	}
	if id.Schema.Example == nil || !id.Schema.Example.Equal(models.Int(1)) {
		t.Errorf("id example = %v, want 1", id.Schema.Example)
	}

	page := doc.Paths["/api/users"]["get"].Parameters[0]
	if page.In != "query" || page.Required {
		t.Errorf("page = %+v, want optional query parameter", page)
	}
}

func TestOpenAPI_Schemas(t *testing.T) {
	doc := OpenAPI(testGroups(), testOptions())

	list := doc.Paths["/api/users"]["get"].Responses["200"]
	media, ok := list.Content["application/json"]
	if !ok {
		t.Fatalf("200 content = %v, want application/json", list.Content)
	}
	if media.Schema.Type != "array" || media.Schema.Items == nil {
		t.Fatalf("schema = %+v, want array of objects", media.Schema)
	}
	if f := media.Schema.Items.Properties["email"].Format; f != "email" {
		t.Errorf("email format = %q, want email", f)
	}

	detail := doc.Paths["/api/users/{id}"]["get"].Responses["200"].Content["application/json"].Schema
	deleted := detail.Properties["deleted_at"]
	if deleted.Type != "string" || !deleted.Nullable {
		t.Errorf("deleted_at = %+v, want nullable string", deleted)
	}
	if detail.Properties["profile"].Properties["bio"] == nil {
		t.Error("nested profile.bio missing")
	}

	post := doc.Paths["/api/users"]["post"]
	if post.RequestBody == nil || post.RequestBody.Content["application/json"].Schema.Properties["password"] == nil {
		t.Errorf("request body = %+v, want password property", post.RequestBody)
	}
	if resp, ok := post.Responses["201"]; !ok || resp.Description != "Created" || resp.Content != nil {
		t.Errorf("201 = %+v, want Created without content", resp)
	}

	health := doc.Paths["/health"]["delete"]
	if _, ok := health.Responses["default"]; !ok {
		t.Errorf("responses = %v, want default when none observed", health.Responses)
	}
}

func TestOpenAPI_Security(t *testing.T) {
	tests := []struct {
		name    string
		opts    Options
		schemes []string
	}{
		{"none", Options{StartURL: "https://x.test"}, nil},
		{"bearer", Options{AuthHeaders: []string{"authorization"}}, []string{"bearerAuth"}},
		{"api key header", Options{AuthHeaders: []string{"X-Api-Key"}}, []string{"xApiKeyAuth"}},
		{"cookie", Options{Cookies: []string{"session_id"}}, []string{"sessionIdAuth"}},
		{"login only", Options{LoginURL: "https://x.test/login"}, []string{"sessionAuth"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := OpenAPI(nil, tt.opts)
			if tt.schemes == nil {
				if doc.Components != nil || doc.Security != nil {
					t.Errorf("Components = %+v, want none", doc.Components)
				}
				return
			}
			if doc.Components == nil {
				t.Fatal("Components = nil")
			}
			for _, name := range tt.schemes {
				if _, ok := doc.Components.SecuritySchemes[name]; !ok {
					t.Errorf("SecuritySchemes = %v, want %s", doc.Components.SecuritySchemes, name)
				}
			}
			if len(doc.Security) != len(tt.schemes) {
				t.Errorf("Security = %v, want %d entries", doc.Security, len(tt.schemes))
			}
		})
	}
}

func TestOpenAPI_ServerFallback(t *testing.T) {
	doc := OpenAPI(nil, Options{StartURL: "https://x.test:8443/app/"})
	if len(doc.Servers) != 1 || doc.Servers[0].URL != "https://x.test:8443" {
		t.Errorf("Servers = %+v, want start URL origin", doc.Servers)
	}
	if doc.Paths == nil {
		t.Error("Paths should be an empty map, not nil")
	}
}

func TestMarshalOpenAPIYAML(t *testing.T) {
	data, err := MarshalOpenAPIYAML(OpenAPI(testGroups(), testOptions()))
	if err != nil {
		t.Fatalf("MarshalOpenAPIYAML() error = %v", err)
	}
	text := string(data)

	if !strings.HasPrefix(text, "openapi: 3.0.3\n") {
		t.Errorf("document should start with the version, got %q", text[:30])
	}
	if !strings.Contains(text, `"200":`) {
		t.Error("status codes should be quoted keys")
	}

	// Example objects keep their captured key order.
	idx := strings.Index(text, "id: 1")
	name := strings.Index(text, "name: a")
	email := strings.Index(text, "email: a@x.test")
	if idx < 0 || name < idx || email < name {
		t.Errorf("example key order lost (id %d, name %d, email %d)", idx, name, email)
	}

	var decoded map[string]interface{}
	if err := yaml.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("output is not valid YAML: %v", err)
	}
	if _, ok := decoded["paths"].(map[string]interface{})["/api/users/{id}"]; !ok {
		t.Error("decoded paths missing /api/users/{id}")
	}
}

func TestMarshalOpenAPIJSON(t *testing.T) {
	data, err := MarshalOpenAPIJSON(OpenAPI(testGroups(), testOptions()))
	if err != nil {
		t.Fatalf("MarshalOpenAPIJSON() error = %v", err)
	}

	var decoded Document
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
	if decoded.OpenAPI != "3.0.3" || len(decoded.Paths) != 3 {
		t.Errorf("decoded = %s with %d paths", decoded.OpenAPI, len(decoded.Paths))
	}
	if !strings.Contains(string(data), `"operationId": "getUser"`) {
		t.Error("JSON should use OpenAPI field names")
	}
}

// =============================================================================
// Markdown Tests
// =============================================================================

func TestMarkdown(t *testing.T) {
	md := Markdown(testGroups(), testOptions())

	wants := []string{
		"# x.test API",
		"Generated 2026-03-01 12:00 UTC",
		"- **Endpoints:** 4",
		"- **By method:** DELETE 1, GET 2, POST 1",
		"header `Authorization`",
		"cookie `sid`",
		"- [Users](#users) (3)",
		"### `GET /api/users/{id}`",
		"| `id` | path | integer | yes | `1` |",
		"| `page` | query | integer | no | `2` |",
		"| `email` | string | email | `a@x.test` |",
		"**Request body** (`application/json`)",
		"- `201` Created, object (`application/json`)",
		"- `200` OK, array of objects",
		"| `profile.bio` | string |",
		"_Captured 1 times from `https://x.test/users`._",
		"```json\n{\n  \"id\": 1,\n  \"name\": \"a\",",
	}
	for _, want := range wants {
		if !strings.Contains(md, want) {
			t.Errorf("markdown missing %q", want)
		}
	}

	if strings.Contains(md, "<script>") {
		t.Error("markup from captured text should be stripped")
	}
	if !strings.Contains(md, "## Other") {
		t.Error("untagged endpoints should go under Other")
	}
	if strings.Index(md, "## Other") < strings.Index(md, "## Users") {
		t.Error("Other should be the last section")
	}
}

func TestMarkdown_Empty(t *testing.T) {
	md := Markdown(nil, Options{StartURL: "https://x.test", GeneratedAt: fixedTime})
	if !strings.Contains(md, "- **Endpoints:** 0") {
		t.Errorf("markdown = %q, want zero endpoints", md)
	}
	if strings.Contains(md, "## Contents") {
		t.Error("no contents section expected for an empty run")
	}
}

func TestCell(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"plain", "plain"},
		{"a|b", `a\|b`},
		{"code `x`", "code 'x'"},
		{"<b>bold</b>", "bold"},
		{"  spaced\n out  ", "spaced out"},
	}
	for _, tt := range tests {
		if got := cell(tt.in); got != tt.want {
			t.Errorf("cell(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestExampleCell_Truncates(t *testing.T) {
	long := strings.Repeat("é", 100)
	got := exampleCell(models.String(long))
	if !strings.HasSuffix(got, "...`") || len([]rune(got)) != maxCellExample+5 {
		t.Errorf("exampleCell() = %q, want %d runes plus ellipsis", got, maxCellExample)
	}
	if exampleCell(models.Object()) != "" {
		t.Error("objects should not be rendered in cells")
	}
}

func TestAnchor(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Users", "users"},
		{"Order Items", "order-items"},
		{"v2_Things!", "v2_things"},
	}
	for _, tt := range tests {
		if got := anchor(tt.in); got != tt.want {
			t.Errorf("anchor(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

// =============================================================================
// Raw Tests
// =============================================================================

func TestRaw(t *testing.T) {
	data, err := Raw(testGroups(), testOptions())
	if err != nil {
		t.Fatalf("Raw() error = %v", err)
	}

	doc, err := ReadRaw(data)
	if err != nil {
		t.Fatalf("ReadRaw() error = %v", err)
	}
	if doc.Total != 4 || len(doc.Endpoints) != 4 {
		t.Errorf("Total = %d, endpoints = %d, want 4", doc.Total, len(doc.Endpoints))
	}
	if !doc.GeneratedAt.Equal(fixedTime) {
		t.Errorf("GeneratedAt = %v, want %v", doc.GeneratedAt, fixedTime)
	}
	got := doc.Endpoints[2].Responses[0].Example
	if !got.Equal(testGroups()[2].Responses[0].Example) {
		t.Errorf("example = %s, want the captured object", got.JSON())
	}
}

func TestRaw_RedactsSecrets(t *testing.T) {
	reqBody := `{"password":"hunter2","remember":true}`
	respBody := `{"user":{"id":7,"session_token":"tok-SECRET"}}`
	c := models.CapturedEndpoint{
		Request: models.CapturedRequest{
			URL:         "https://x.test/api/login?api_key=KEY123&lang=en",
			Method:      models.MethodPost,
			Headers:     map[string]string{"Content-Type": "application/json"},
			Body:        &reqBody,
			QueryParams: []models.ExtractedParam{{Name: "api_key", Type: models.TypeString, Value: models.String("KEY123")}},
			BodyParams:  models.Object(models.Field("password", models.String("hunter2"))),
		},
		Response: models.CapturedResponse{
			StatusCode: 200,
			Headers:    map[string]string{"Content-Type": "application/json"},
			Body:       &respBody,
		},
		SourcePage: "https://x.test/login",
	}

	groups := analyzer.New(analyzer.DefaultConfig()).Analyze([]models.CapturedEndpoint{c})
	data, err := Raw(groups, testOptions())
	if err != nil {
		t.Fatalf("Raw() error = %v", err)
	}

	out := string(data)
	for _, secret := range []string{"hunter2", "tok-SECRET", "KEY123"} {
		if strings.Contains(out, secret) {
			t.Errorf("Raw() output contains %q", secret)
		}
	}
	for _, kept := range []string{"lang=en", "remember", "/api/login"} {
		if !strings.Contains(out, kept) {
			t.Errorf("Raw() output lost %q", kept)
		}
	}
}

func TestRaw_Empty(t *testing.T) {
	data, err := Raw(nil, Options{})
	if err != nil {
		t.Fatalf("Raw() error = %v", err)
	}
	if !strings.Contains(string(data), `"endpoints": []`) {
		t.Errorf("Raw(nil) = %s, want empty endpoints array", data)
	}
}

func TestReadRaw_Invalid(t *testing.T) {
	if _, err := ReadRaw([]byte("{not json")); err == nil {
		t.Error("ReadRaw() should fail on invalid JSON")
	}
}

// =============================================================================
// Generator Tests
// =============================================================================

func TestGenerator_Write(t *testing.T) {
	tests := []struct {
		format string
		files  []string
	}{
		{FormatBoth, []string{OpenAPIYAMLFile, OpenAPIJSONFile, MarkdownFile, RawFile}},
		{FormatOpenAPI, []string{OpenAPIYAMLFile, OpenAPIJSONFile, RawFile}},
		{FormatMarkdown, []string{MarkdownFile, RawFile}},
		{"", []string{OpenAPIYAMLFile, OpenAPIJSONFile, MarkdownFile, RawFile}},
	}

	for _, tt := range tests {
		t.Run("format_"+tt.format, func(t *testing.T) {
			dir := filepath.Join(t.TempDir(), "docs")
			m, err := NewGenerator(dir, tt.format, nil).Write(testGroups(), testOptions())
			if err != nil {
				t.Fatalf("Write() error = %v", err)
			}

			if got := len(m.Files()); got != len(tt.files) {
				t.Errorf("Files() = %v, want %d files", m.Files(), len(tt.files))
			}
			for _, name := range tt.files {
				info, err := os.Stat(filepath.Join(dir, name))
				if err != nil {
					t.Errorf("%s not written: %v", name, err)
					continue
				}
				if info.Size() == 0 {
					t.Errorf("%s is empty", name)
				}
			}
			if m.Endpoints != 4 {
				t.Errorf("Endpoints = %d, want 4", m.Endpoints)
			}
		})
	}
}

func TestGenerator_WriteErrors(t *testing.T) {
	if _, err := NewGenerator(t.TempDir(), "pdf", nil).Write(nil, Options{}); err == nil {
		t.Error("Write() should reject an unknown format")
	}

	file := filepath.Join(t.TempDir(), "file")
	if err := os.WriteFile(file, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := NewGenerator(filepath.Join(file, "docs"), FormatBoth, nil).Write(nil, Options{}); err == nil {
		t.Error("Write() should fail when the directory cannot be created")
	}
}

func TestValidFormat(t *testing.T) {
	for _, f := range []string{FormatOpenAPI, FormatMarkdown, FormatBoth} {
		if !ValidFormat(f) {
			t.Errorf("ValidFormat(%q) = false", f)
		}
	}
	if ValidFormat("html") {
		t.Error(`ValidFormat("html") = true`)
	}
}

// =============================================================================
// Summary Tests
// =============================================================================

func TestSummarize(t *testing.T) {
	s := Summarize(testGroups())

	if s.Total != 4 || s.PathCount != 3 || s.WithBody != 1 || s.Captured != 1 {
		t.Errorf("Summary = %+v", s)
	}
	if len(s.ByMethod) != 3 || s.ByMethod[0].Method != "GET" || s.ByMethod[0].Count != 2 {
		t.Errorf("ByMethod = %+v, want GET first with 2", s.ByMethod)
	}
}
