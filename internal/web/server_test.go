package web

import (
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/PentesterFlow/APIHunter/internal/auth"
	"github.com/PentesterFlow/APIHunter/internal/browser"
	"github.com/PentesterFlow/APIHunter/internal/browser/browsertest"
	"github.com/PentesterFlow/APIHunter/internal/models"
	"github.com/PentesterFlow/APIHunter/internal/output"
	ws "github.com/PentesterFlow/APIHunter/internal/websocket"
	"github.com/PentesterFlow/APIHunter/pkg/crawler"
)

const origin = "https://app.test"

// =============================================================================
// Test Helpers
// =============================================================================

// startServer serves a monitor whose crawls run against site.
func startServer(t *testing.T, site *browsertest.Site, opts ...Option) (*Server, *httptest.Server) {
	t.Helper()
	crawlOpts := WithCrawlOptions(
		crawler.WithDriver(browsertest.NewDriver(site)),
		crawler.WithSettleTime(0),
		crawler.WithIdleQuiet(0),
		crawler.WithInteractTimings(browser.InteractTimings{
			ListClickTimeout:   time.Second,
			ButtonClickTimeout: time.Second,
			BackTimeout:        time.Second,
		}),
		crawler.WithAuthTimings(auth.Timings{
			NavigationTimeout: time.Second,
			IdleTimeout:       time.Second,
			ClickTimeout:      time.Second,
		}),
	)
	s := NewServer(t.TempDir(), append([]Option{crawlOpts}, opts...)...)
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(func() {
		s.Stop()
		s.Wait()
		s.hub.Close()
		srv.Close()
	})
	return s, srv
}

func apiSite() *browsertest.Site {
	return browsertest.NewSite().
		Add(origin+"/", &browsertest.PageSpec{
			HTML:  `<html><body><a href="/users">Users</a></body></html>`,
			Calls: []browsertest.Call{browsertest.JSON("GET", origin+"/api/session", 200, `{"user":"alice"}`)},
		}).
		Add(origin+"/users", &browsertest.PageSpec{
			Calls: []browsertest.Call{
				browsertest.JSON("GET", origin+"/api/users", 200, `[{"id":1,"email":"a@x.com"}]`),
				browsertest.JSON("POST", origin+"/api/users", 201, `{"id":2}`),
			},
		})
}

// challengeSite logs in through an OTP form that accepts only valid.
func challengeSite(valid string) *browsertest.Site {
	otp := &browsertest.Element{}
	var challenge *browsertest.PageSpec
	verify := &browsertest.Element{Label: "Verify", OnClick: func(p *browsertest.Page) {
		if otp.Value() == valid {
			p.Redirect(origin + "/")
			return
		}
		p.Show(challenge)
	}}
	challenge = &browsertest.PageSpec{
		Text: "Enter the verification code from your authenticator app",
		Elements: map[string][]*browsertest.Element{
			`input[autocomplete="one-time-code"]`: {otp},
			`button[type="submit"]`:               {verify},
		},
	}

	return browsertest.NewSite().
		Add(origin+"/login", &browsertest.PageSpec{
			Elements: map[string][]*browsertest.Element{
				`input[type="email"]`:    {{}},
				`input[type="password"]`: {{}},
				`button[type="submit"]`: {{Label: "Sign in", OnClick: func(p *browsertest.Page) {
					p.Show(challenge)
				}}},
			},
		}).
		Add(origin+"/", &browsertest.PageSpec{
			Calls:    []browsertest.Call{browsertest.JSON("GET", origin+"/api/me", 200, `{"id":7}`)},
			Elements: map[string][]*browsertest.Element{`[href*="logout"]`: {{}}},
		})
}

const loginBody = `{"url":"https://app.test/","login_url":"https://app.test/login","username":"alice","password":"secret","wait_time":0,"screenshots":false}`

func post(t *testing.T, srv *httptest.Server, path, body string) (int, map[string]string) {
	t.Helper()
	resp, err := http.Post(srv.URL+path, "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("POST %s error = %v", path, err)
	}
	defer resp.Body.Close()
	var out map[string]string
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp.StatusCode, out
}

func get(t *testing.T, srv *httptest.Server, path string, v interface{}) *http.Response {
	t.Helper()
	resp, err := http.Get(srv.URL + path)
	if err != nil {
		t.Fatalf("GET %s error = %v", path, err)
	}
	defer resp.Body.Close()
	if v != nil {
		if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
			t.Fatalf("GET %s decode error = %v", path, err)
		}
	}
	return resp
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

// readUntil reads messages until one of type want arrives.
func readUntil(t *testing.T, conn *websocket.Conn, want ws.MessageType) ws.Message {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for {
		conn.SetReadDeadline(deadline)
		_, data, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("waiting for %s: %v", want, err)
		}
		var msg ws.Message
		if err := json.Unmarshal(data, &msg); err != nil {
			t.Fatalf("Unmarshal() error = %v", err)
		}
		if msg.Type == want {
			return msg
		}
	}
}

func waitChallenge(t *testing.T, s *Server) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !s.Status().WaitingFor2FA {
		if time.Now().After(deadline) {
			t.Fatalf("no 2FA challenge pending, status = %+v", s.Status())
		}
		time.Sleep(10 * time.Millisecond)
	}
}

// =============================================================================
// Idle Server Tests
// =============================================================================

func TestServer_IdleStatus(t *testing.T) {
	_, srv := startServer(t, browsertest.NewSite())

	var st Status
	resp := get(t, srv, "/api/status", &st)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status code = %d, want 200", resp.StatusCode)
	}
	if resp.Header.Get("Content-Type") != "application/json" {
		t.Errorf("Content-Type = %q", resp.Header.Get("Content-Type"))
	}
	if st.Running || st.Phase != PhaseIdle || st.WaitingFor2FA {
		t.Errorf("Status = %+v, want idle", st)
	}

	var eps []EndpointSummary
	get(t, srv, "/api/endpoints", &eps)
	if eps == nil || len(eps) != 0 {
		t.Errorf("endpoints = %v, want empty list", eps)
	}
}

func TestServer_DocsNotGenerated(t *testing.T) {
	_, srv := startServer(t, browsertest.NewSite())

	for _, path := range []string{"/api/docs/openapi", "/api/docs/markdown"} {
		var body map[string]string
		resp := get(t, srv, path, &body)
		if resp.StatusCode != http.StatusNotFound {
			t.Errorf("GET %s = %d, want 404", path, resp.StatusCode)
		}
		if body["error"] == "" {
			t.Errorf("GET %s body = %v, want error", path, body)
		}
	}
}

func TestServer_CrawlBadRequest(t *testing.T) {
	_, srv := startServer(t, browsertest.NewSite())

	tests := []struct {
		name string
		body string
	}{
		{"not json", "not json"},
		{"empty body", ""},
		{"missing url", `{"max_pages":5}`},
		{"relative url", `{"url":"/only/a/path"}`},
		{"bad scheme", `{"url":"ftp://app.test/"}`},
		{"zero pages", `{"url":"https://app.test/","max_pages":0}`},
		{"bad format", `{"url":"https://app.test/","output_format":"pdf"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, body := post(t, srv, "/api/crawl", tt.body)
			if code != http.StatusBadRequest {
				t.Errorf("POST /api/crawl = %d, want 400", code)
			}
			if body["error"] == "" {
				t.Errorf("body = %v, want error", body)
			}
		})
	}
}

func TestServer_StopIdle(t *testing.T) {
	_, srv := startServer(t, browsertest.NewSite())
	if code, _ := post(t, srv, "/api/stop", ""); code != http.StatusConflict {
		t.Errorf("POST /api/stop = %d, want 409", code)
	}
}

func TestServer_TwoFactorRequests(t *testing.T) {
	_, srv := startServer(t, browsertest.NewSite())

	tests := []struct {
		name string
		body string
		want int
	}{
		{"invalid json", "{", http.StatusBadRequest},
		{"empty code", `{"code":"  "}`, http.StatusBadRequest},
		{"no challenge", `{"code":"123456"}`, http.StatusConflict},
	}
	for _, tt := range tests {
		if code, _ := post(t, srv, "/api/2fa", tt.body); code != tt.want {
			t.Errorf("%s: POST /api/2fa = %d, want %d", tt.name, code, tt.want)
		}
	}
}

// =============================================================================
// Hunt Tests
// =============================================================================

func TestServer_Crawl(t *testing.T) {
	s, srv := startServer(t, apiSite())
	conn := dial(t, srv)

	code, body := post(t, srv, "/api/crawl", `{"url":"https://app.test/","wait_time":0,"screenshots":false}`)
	if code != http.StatusAccepted || body["status"] != "started" {
		t.Fatalf("POST /api/crawl = %d %v, want 202 started", code, body)
	}

	endpoints := readUntil(t, conn, ws.TypeEndpoints)
	if rows, ok := endpoints.Data.([]interface{}); !ok || len(rows) != 3 {
		t.Errorf("endpoints message = %v, want 3 rows", endpoints.Data)
	}
	done := readUntil(t, conn, ws.TypeComplete)
	s.Wait()

	data, ok := done.Data.(map[string]interface{})
	if !ok {
		t.Fatalf("complete data = %T", done.Data)
	}
	if data["pages_visited"] != float64(2) || data["endpoints_found"] != float64(3) || data["stopped"] != false {
		t.Errorf("complete = %v", data)
	}

	var st Status
	get(t, srv, "/api/status", &st)
	if st.Running || st.Phase != PhaseDone {
		t.Errorf("Status = %+v, want done", st)
	}
	if st.PagesVisited != 2 || st.Captured != 3 || st.Endpoints != 3 || st.RunID == "" {
		t.Errorf("Status counters = %+v", st)
	}

	var eps []EndpointSummary
	get(t, srv, "/api/endpoints", &eps)
	found := make(map[string]EndpointSummary)
	for _, ep := range eps {
		found[ep.Method+" "+ep.Path] = ep
	}
	post201, ok := found["POST /api/users"]
	if !ok {
		t.Fatalf("endpoints = %+v, want POST /api/users", eps)
	}
	if post201.CapturedCount != 1 || len(post201.Responses) != 1 || post201.Responses[0] != 201 {
		t.Errorf("POST /api/users = %+v", post201)
	}

	resp, err := http.Get(srv.URL + "/api/docs/openapi")
	if err != nil {
		t.Fatal(err)
	}
	yaml, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || resp.Header.Get("Content-Type") != "application/yaml" {
		t.Errorf("GET openapi = %d %q", resp.StatusCode, resp.Header.Get("Content-Type"))
	}
	if !strings.HasPrefix(string(yaml), "openapi: "+output.OpenAPIVersion) || !strings.Contains(string(yaml), "/api/users:") {
		t.Errorf("openapi.yaml =\n%s", yaml)
	}

	resp, err = http.Get(srv.URL + "/api/docs/markdown")
	if err != nil {
		t.Fatal(err)
	}
	md, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(md), "# app.test API") {
		t.Errorf("GET markdown = %d\n%s", resp.StatusCode, md)
	}

	for _, name := range []string{output.OpenAPIJSONFile, output.RawFile} {
		if _, err := os.Stat(filepath.Join(s.outputDir, name)); err != nil {
			t.Errorf("%s not written: %v", name, err)
		}
	}
}

func TestServer_CrawlOutputFormat(t *testing.T) {
	s, srv := startServer(t, apiSite())

	code, _ := post(t, srv, "/api/crawl", `{"url":"https://app.test/","wait_time":0,"screenshots":false,"output_format":"markdown","output_dir":"/elsewhere"}`)
	if code != http.StatusAccepted {
		t.Fatalf("POST /api/crawl = %d, want 202", code)
	}
	s.Wait()

	if _, err := os.Stat(filepath.Join(s.outputDir, output.MarkdownFile)); err != nil {
		t.Errorf("markdown not written to the server directory: %v", err)
	}
	if _, err := os.Stat(filepath.Join(s.outputDir, output.OpenAPIYAMLFile)); err == nil {
		t.Error("openapi.yaml written for markdown-only format")
	}
	if resp := get(t, srv, "/api/docs/openapi", nil); resp.StatusCode != http.StatusNotFound {
		t.Errorf("GET openapi = %d, want 404", resp.StatusCode)
	}
}

func TestServer_TwoFactorOverHTTP(t *testing.T) {
	s, srv := startServer(t, challengeSite("123456"))
	conn := dial(t, srv)

	if code, _ := post(t, srv, "/api/crawl", loginBody); code != http.StatusAccepted {
		t.Fatalf("POST /api/crawl = %d, want 202", code)
	}

	required := readUntil(t, conn, ws.TypeTwoFactorRequired)
	if data, ok := required.Data.(map[string]interface{}); !ok || data["id"] == "" {
		t.Errorf("2fa_required data = %v", required.Data)
	}
	waitChallenge(t, s)

	var st Status
	get(t, srv, "/api/status", &st)
	if !st.Running || !st.WaitingFor2FA || st.Challenge == nil {
		t.Errorf("Status = %+v, want waiting for 2FA", st)
	}

	if code, _ := post(t, srv, "/api/crawl", loginBody); code != http.StatusConflict {
		t.Errorf("second POST /api/crawl = %d, want 409", code)
	}

	if code, body := post(t, srv, "/api/2fa", `{"code":"123456"}`); code != http.StatusOK || body["status"] != "submitted" {
		t.Fatalf("POST /api/2fa = %d %v, want 200 submitted", code, body)
	}

	readUntil(t, conn, ws.TypeComplete)
	s.Wait()

	st = s.Status()
	if st.Phase != PhaseDone || st.WaitingFor2FA {
		t.Errorf("Status = %+v, want done", st)
	}
	eps := s.Endpoints()
	if len(eps) != 1 || eps[0].Path != "/api/me" {
		t.Errorf("Endpoints() = %+v, want /api/me captured after login", eps)
	}

	if code, _ := post(t, srv, "/api/2fa", `{"code":"123456"}`); code != http.StatusConflict {
		t.Errorf("POST /api/2fa after login = %d, want 409", code)
	}
}

func TestServer_TwoFactorOverWebSocket(t *testing.T) {
	s, srv := startServer(t, challengeSite("654321"))
	conn := dial(t, srv)

	if code, _ := post(t, srv, "/api/crawl", loginBody); code != http.StatusAccepted {
		t.Fatalf("POST /api/crawl = %d, want 202", code)
	}
	readUntil(t, conn, ws.TypeTwoFactorRequired)

	msg := `{"type":"2fa_code","data":{"code":"654321"}}`
	if err := conn.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
		t.Fatal(err)
	}

	readUntil(t, conn, ws.TypeComplete)
	s.Wait()
	if st := s.Status(); st.Phase != PhaseDone {
		t.Errorf("Phase = %q, want done", st.Phase)
	}
}

func TestServer_Stop(t *testing.T) {
	s, srv := startServer(t, challengeSite("123456"))

	if code, _ := post(t, srv, "/api/crawl", loginBody); code != http.StatusAccepted {
		t.Fatalf("POST /api/crawl = %d, want 202", code)
	}
	waitChallenge(t, s)

	if code, body := post(t, srv, "/api/stop", ""); code != http.StatusOK || body["status"] != "stopping" {
		t.Fatalf("POST /api/stop = %d %v, want 200 stopping", code, body)
	}
	s.Wait()

	st := s.Status()
	if st.Running || st.Phase != PhaseStopped {
		t.Errorf("Status = %+v, want stopped", st)
	}
	if _, err := os.Stat(filepath.Join(s.outputDir, output.RawFile)); err != nil {
		t.Errorf("stopped hunt should still write documents: %v", err)
	}

	// The server accepts a new hunt once the previous one is over.
	if code, _ := post(t, srv, "/api/crawl", loginBody); code != http.StatusAccepted {
		t.Errorf("POST /api/crawl after stop = %d, want 202", code)
	}
}

func TestServer_ReplayForLateClients(t *testing.T) {
	s, srv := startServer(t, apiSite())

	if code, _ := post(t, srv, "/api/crawl", `{"url":"https://app.test/","wait_time":0,"screenshots":false}`); code != http.StatusAccepted {
		t.Fatalf("POST /api/crawl = %d, want 202", code)
	}
	s.Wait()

	conn := dial(t, srv)
	first := readUntil(t, conn, ws.TypeStatus)
	if first.Type != ws.TypeStatus {
		t.Errorf("first replayed type = %q, want status", first.Type)
	}
	readUntil(t, conn, ws.TypeComplete)
}

// =============================================================================
// Summary Tests
// =============================================================================

func TestSummarize(t *testing.T) {
	groups := []models.EndpointGroup{
		{
			Method:      models.MethodGet,
			PathPattern: "/api/users/{id}",
			Summary:     "Get user by id",
			Tags:        []string{"users"},
			Captured:    make([]models.CapturedEndpoint, 3),
			Responses:   []models.ResponseBody{{StatusCode: 200}, {StatusCode: 404}},
		},
		{Method: models.MethodDelete, PathPattern: "/health"},
	}

	got := summarize(groups)
	if len(got) != 2 {
		t.Fatalf("summarize() = %d rows, want 2", len(got))
	}
	if got[0].Method != "GET" || got[0].Path != "/api/users/{id}" || got[0].CapturedCount != 3 {
		t.Errorf("row 0 = %+v", got[0])
	}
	if len(got[0].Responses) != 2 || got[0].Responses[1] != 404 {
		t.Errorf("row 0 responses = %v, want [200 404]", got[0].Responses)
	}
	if got[1].Tags == nil || got[1].Responses == nil {
		t.Errorf("row 1 = %+v, want empty lists instead of nil", got[1])
	}
}
