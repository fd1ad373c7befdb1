// Package browsertest provides an in-memory browser for tests. Pages are
// described up front; navigating to one emits its API calls as network events.
package browsertest

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ysmood/gson"

	"github.com/PentesterFlow/APIHunter/internal/browser"
)

// Call is an API request a page or element fires.
type Call struct {
	Method       string
	URL          string
	ResourceType string
	RequestBody  string
	Headers      map[string]string
	Status       int
	ContentType  string
	Body         string
	// Fail emits loadingFailed instead of a response.
	Fail bool
}

// PageSpec describes one page of the fake site.
type PageSpec struct {
	HTML string
	// Text is returned for document.body.innerText.
	Text     string
	Calls    []Call
	Elements map[string][]*Element
	// Err makes navigation fail.
	Err error
	// RedirectTo makes navigation land on another registered page.
	RedirectTo string
}

// Element is a scripted DOM element.
type Element struct {
	Hidden   bool
	ZeroBox  bool
	Label    string
	Attrs    map[string]string
	ClickErr error
	// Calls fire on click.
	Calls []Call
	// NavigateTo loads another page on click.
	NavigateTo string
	// OnClick runs after Calls and NavigateTo.
	OnClick func(p *Page)
	// OnEnter runs when Enter is pressed in the element.
	OnEnter func(p *Page)

	page   *Page
	mu     sync.Mutex
	value  string
	clicks int
}

// Site maps URLs to pages.
type Site struct {
	mu    sync.Mutex
	pages map[string]*PageSpec
}

// NewSite creates an empty site.
func NewSite() *Site {
	return &Site{pages: make(map[string]*PageSpec)}
}

// Add registers a page.
func (s *Site) Add(url string, spec *PageSpec) *Site {
	s.mu.Lock()
	s.pages[url] = spec
	s.mu.Unlock()
	return s
}

func (s *Site) get(url string) (*PageSpec, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	spec, ok := s.pages[url]
	return spec, ok
}

// Driver opens sessions against a Site.
type Driver struct {
	Site    *Site
	OpenErr error
	// DieAfter marks the session dead after that many navigations (0 = never).
	DieAfter int

	mu       sync.Mutex
	sessions []*Session
}

var _ browser.Driver = (*Driver)(nil)

// NewDriver creates a driver for site.
func NewDriver(site *Site) *Driver {
	return &Driver{Site: site}
}

// Open starts a fake session.
func (d *Driver) Open(_ context.Context, sink browser.EventSink) (browser.Session, error) {
	if d.OpenErr != nil {
		return nil, d.OpenErr
	}
	s := &Session{dieAfter: d.DieAfter}
	s.page = &Page{site: d.Site, pump: browser.NewPump(sink), session: s}

	d.mu.Lock()
	d.sessions = append(d.sessions, s)
	d.mu.Unlock()
	return s, nil
}

// Sessions returns every session opened so far.
func (d *Driver) Sessions() []*Session {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*Session(nil), d.sessions...)
}

// Session is a fake browser session.
type Session struct {
	page     *Page
	dieAfter int

	mu     sync.Mutex
	closed bool
	dead   bool
}

// Page returns the session tab.
func (s *Session) Page() browser.Page { return s.page }

// FakePage returns the tab with its test helpers.
func (s *Session) FakePage() *Page { return s.page }

// WaitIdle waits on the event pump.
func (s *Session) WaitIdle(ctx context.Context, quiet time.Duration) error {
	return s.page.pump.WaitIdle(ctx, quiet)
}

// Alive reports false once the session was killed or closed.
func (s *Session) Alive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.dead && !s.closed
}

// Kill simulates a crashed browser.
func (s *Session) Kill() {
	s.mu.Lock()
	s.dead = true
	s.mu.Unlock()
}

// Closed reports whether Close was called.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Close ends the session.
func (s *Session) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

// Page is the fake tab.
type Page struct {
	site    *Site
	pump    *browser.Pump
	session *Session

	mu        sync.Mutex
	url       string
	history   []string
	visits    []string
	cookies   []browser.Cookie
	headers   map[string]string
	override  *PageSpec
	requestID int
}

var _ browser.Page = (*Page)(nil)

// Navigate loads url and emits its calls.
func (p *Page) Navigate(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !p.session.Alive() {
		return fmt.Errorf("browser disconnected")
	}

	spec, ok := p.site.get(url)
	if !ok {
		return fmt.Errorf("net::ERR_NAME_NOT_RESOLVED at %s", url)
	}

	p.mu.Lock()
	p.visits = append(p.visits, url)
	n := len(p.visits)
	p.mu.Unlock()

	if d := p.session.dieAfter; d > 0 && n > d {
		p.session.Kill()
		return fmt.Errorf("browser disconnected")
	}
	if spec.Err != nil {
		return spec.Err
	}
	if spec.RedirectTo != "" {
		target, ok := p.site.get(spec.RedirectTo)
		if !ok {
			return fmt.Errorf("redirect to unknown page %s", spec.RedirectTo)
		}
		url, spec = spec.RedirectTo, target
	}

	p.load(url)
	p.emit(Call{Method: "GET", URL: url, ResourceType: "document", Status: 200, ContentType: "text/html", Body: spec.HTML})
	for _, c := range spec.Calls {
		p.emit(c)
	}
	return nil
}

func (p *Page) load(url string) {
	p.mu.Lock()
	if p.url != "" {
		p.history = append(p.history, p.url)
	}
	p.url = url
	p.override = nil
	p.mu.Unlock()
}

// NavigateBack returns to the previous URL without re-emitting its calls.
func (p *Page) NavigateBack(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.history) == 0 {
		return fmt.Errorf("no history")
	}
	p.url = p.history[len(p.history)-1]
	p.history = p.history[:len(p.history)-1]
	p.override = nil
	return nil
}

// URL returns the current URL.
func (p *Page) URL() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.url
}

// Show replaces the current page content without navigating, like an SPA re-render.
func (p *Page) Show(spec *PageSpec) {
	p.mu.Lock()
	p.override = spec
	p.mu.Unlock()
}

// Redirect moves to url without emitting calls, like a client-side route change.
func (p *Page) Redirect(url string) {
	p.load(url)
}

func (p *Page) current() *PageSpec {
	p.mu.Lock()
	override, url := p.override, p.url
	p.mu.Unlock()
	if override != nil {
		return override
	}
	spec, _ := p.site.get(url)
	return spec
}

// HTML returns the page markup.
func (p *Page) HTML() (string, error) {
	spec := p.current()
	if spec == nil {
		return "", fmt.Errorf("no page loaded")
	}
	return spec.HTML, nil
}

// Elements returns the elements registered for selector.
func (p *Page) Elements(selector string) ([]browser.Element, error) {
	spec := p.current()
	if spec == nil {
		return nil, nil
	}
	els := spec.Elements[selector]
	out := make([]browser.Element, len(els))
	for i, el := range els {
		el.mu.Lock()
		el.page = p
		el.mu.Unlock()
		out[i] = el
	}
	return out, nil
}

// Eval answers the innerText query and ignores everything else.
func (p *Page) Eval(js string, _ ...interface{}) (gson.JSON, error) {
	if strings.Contains(js, "innerText") {
		if spec := p.current(); spec != nil {
			return gson.New(spec.Text), nil
		}
	}
	return gson.New(nil), nil
}

// Screenshot returns a placeholder image.
func (p *Page) Screenshot() ([]byte, error) {
	return []byte("\x89PNG fake"), nil
}

// SetCookies records cookies.
func (p *Page) SetCookies(cookies []browser.Cookie) error {
	p.mu.Lock()
	p.cookies = append(p.cookies, cookies...)
	p.mu.Unlock()
	return nil
}

// SetExtraHeaders records headers.
func (p *Page) SetExtraHeaders(headers map[string]string) error {
	p.mu.Lock()
	p.headers = headers
	p.mu.Unlock()
	return nil
}

// Cookies returns the installed cookies.
func (p *Page) Cookies() []browser.Cookie {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]browser.Cookie(nil), p.cookies...)
}

// Headers returns the extra headers.
func (p *Page) Headers() map[string]string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.headers
}

// Visits returns every navigated URL in order.
func (p *Page) Visits() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.visits...)
}

// Fire emits calls as if the page had made them.
func (p *Page) Fire(calls ...Call) {
	for _, c := range calls {
		p.emit(c)
	}
}

func (p *Page) emit(c Call) {
	p.mu.Lock()
	p.requestID++
	id := fmt.Sprintf("fake.%d", p.requestID)
	p.mu.Unlock()

	rt := c.ResourceType
	if rt == "" {
		rt = "xhr"
	}
	method := c.Method
	if method == "" {
		method = "GET"
	}
	var postData *string
	if c.RequestBody != "" {
		body := c.RequestBody
		postData = &body
	}

	p.pump.Emit(browser.NetworkEvent{
		Kind: browser.EventRequest, RequestID: id, URL: c.URL, Method: method,
		Headers: c.Headers, PostData: postData, ResourceType: rt,
	})
	if c.Fail {
		p.pump.Emit(browser.NetworkEvent{Kind: browser.EventLoadingFailed, RequestID: id})
		return
	}

	status := c.Status
	if status == 0 {
		status = 200
	}
	respHeaders := map[string]string{}
	if c.ContentType != "" {
		respHeaders["Content-Type"] = c.ContentType
	}
	body := c.Body
	p.pump.Emit(browser.NetworkEvent{
		Kind: browser.EventResponse, RequestID: id, URL: c.URL,
		Status: status, ResponseHeaders: respHeaders,
	})
	p.pump.Emit(browser.NetworkEvent{
		Kind: browser.EventLoadingFinished, RequestID: id,
		Body: func(context.Context) (string, bool, error) { return body, false, nil },
	})
}

// Visible reports whether the element is shown.
func (e *Element) Visible() bool { return !e.Hidden }

// Box returns a fixed box, empty when ZeroBox is set.
func (e *Element) Box() (browser.Box, bool) {
	if e.ZeroBox {
		return browser.Box{}, false
	}
	return browser.Box{Width: 100, Height: 20}, true
}

// Text returns the label.
func (e *Element) Text() string { return e.Label }

// Attribute returns an attribute value.
func (e *Element) Attribute(name string) (string, bool) {
	v, ok := e.Attrs[name]
	return v, ok
}

// Click fires the element's calls and hooks.
func (e *Element) Click(ctx context.Context, _ time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if e.ClickErr != nil {
		return e.ClickErr
	}

	e.mu.Lock()
	e.clicks++
	p := e.page
	e.mu.Unlock()
	if p == nil {
		return nil
	}

	p.Fire(e.Calls...)
	if e.NavigateTo != "" {
		if spec, ok := p.site.get(e.NavigateTo); ok {
			p.load(e.NavigateTo)
			p.Fire(spec.Calls...)
		}
	}
	if e.OnClick != nil {
		e.OnClick(p)
	}
	return nil
}

// Fill sets the element value.
func (e *Element) Fill(text string) error {
	e.mu.Lock()
	e.value = text
	e.mu.Unlock()
	return nil
}

// PressEnter runs OnEnter.
func (e *Element) PressEnter() error {
	e.mu.Lock()
	p := e.page
	e.mu.Unlock()
	if e.OnEnter != nil && p != nil {
		e.OnEnter(p)
	}
	return nil
}

// Value returns the last filled text.
func (e *Element) Value() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.value
}

// Clicks returns how many times the element was clicked.
func (e *Element) Clicks() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.clicks
}

// JSON is a JSON API call.
func JSON(method, url string, status int, body string) Call {
	return Call{Method: method, URL: url, Status: status, ContentType: "application/json", Body: body}
}
