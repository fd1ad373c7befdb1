package browser

import (
	"context"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/input"
	"github.com/go-rod/rod/lib/proto"
	"github.com/ysmood/gson"
)

// Box is an element's bounding box in CSS pixels.
type Box struct {
	X, Y, Width, Height float64
}

// Cookie is installed in the browser before the first navigation.
type Cookie struct {
	Name   string
	Value  string
	Domain string
	Path   string
}

// Element is a DOM element the crawler can inspect and act on.
type Element interface {
	Visible() bool
	// Box reports the bounding box and whether it has a non-zero area.
	Box() (Box, bool)
	Text() string
	Attribute(name string) (string, bool)
	Click(ctx context.Context, timeout time.Duration) error
	// Fill replaces the element's value with text.
	Fill(text string) error
	PressEnter() error
}

// Page is the browser tab driven by the crawler.
type Page interface {
	// Navigate loads url and waits for DOMContentLoaded, bounded by ctx.
	Navigate(ctx context.Context, url string) error
	NavigateBack(ctx context.Context) error
	URL() string
	HTML() (string, error)
	Elements(selector string) ([]Element, error)
	Eval(js string, args ...interface{}) (gson.JSON, error)
	Screenshot() ([]byte, error)
	SetCookies(cookies []Cookie) error
	SetExtraHeaders(headers map[string]string) error
}

// BodyText returns the visible text of the page body.
func BodyText(p Page) string {
	res, err := p.Eval(`() => document.body ? document.body.innerText : ''`)
	if err != nil {
		return ""
	}
	return res.Str()
}

type rodPage struct {
	page *rod.Page
}

var _ Page = (*rodPage)(nil)

// WrapPage adapts a rod page.
func WrapPage(p *rod.Page) Page {
	return &rodPage{page: p}
}

func (p *rodPage) Navigate(ctx context.Context, url string) error {
	page := p.page.Context(ctx)
	wait := page.WaitNavigation(proto.PageLifecycleEventNameDOMContentLoaded)
	if err := page.Navigate(url); err != nil {
		return err
	}
	wait()
	return ctx.Err()
}

func (p *rodPage) NavigateBack(ctx context.Context) error {
	return p.page.Context(ctx).NavigateBack()
}

func (p *rodPage) URL() string {
	info, err := p.page.Info()
	if err != nil || info == nil {
		return ""
	}
	return info.URL
}

func (p *rodPage) HTML() (string, error) {
	return p.page.HTML()
}

func (p *rodPage) Elements(selector string) ([]Element, error) {
	els, err := p.page.Elements(selector)
	if err != nil {
		return nil, err
	}
	out := make([]Element, len(els))
	for i, el := range els {
		out[i] = &rodElement{el: el}
	}
	return out, nil
}

func (p *rodPage) Eval(js string, args ...interface{}) (gson.JSON, error) {
	res, err := p.page.Eval(js, args...)
	if err != nil {
		return gson.JSON{}, err
	}
	return res.Value, nil
}

func (p *rodPage) Screenshot() ([]byte, error) {
	return p.page.Screenshot(false, nil)
}

func (p *rodPage) SetCookies(cookies []Cookie) error {
	params := make([]*proto.NetworkCookieParam, 0, len(cookies))
	for _, c := range cookies {
		params = append(params, &proto.NetworkCookieParam{
			Name:   c.Name,
			Value:  c.Value,
			Domain: c.Domain,
			Path:   c.Path,
		})
	}
	return p.page.SetCookies(params)
}

func (p *rodPage) SetExtraHeaders(headers map[string]string) error {
	h := make(proto.NetworkHeaders, len(headers))
	for k, v := range headers {
		h[k] = gson.New(v)
	}
	return proto.NetworkSetExtraHTTPHeaders{Headers: h}.Call(p.page)
}

type rodElement struct {
	el *rod.Element
}

func (e *rodElement) Visible() bool {
	v, err := e.el.Visible()
	return err == nil && v
}

func (e *rodElement) Box() (Box, bool) {
	shape, err := e.el.Shape()
	if err != nil || shape == nil {
		return Box{}, false
	}
	r := shape.Box()
	if r == nil {
		return Box{}, false
	}
	b := Box{X: r.X, Y: r.Y, Width: r.Width, Height: r.Height}
	return b, b.Width > 0 && b.Height > 0
}

func (e *rodElement) Text() string {
	t, err := e.el.Text()
	if err != nil {
		return ""
	}
	return t
}

func (e *rodElement) Attribute(name string) (string, bool) {
	v, err := e.el.Attribute(name)
	if err != nil || v == nil {
		return "", false
	}
	return *v, true
}

func (e *rodElement) Click(ctx context.Context, timeout time.Duration) error {
	return e.el.Context(ctx).Timeout(timeout).Click(proto.InputMouseButtonLeft, 1)
}

func (e *rodElement) Fill(text string) error {
	if err := e.el.SelectAllText(); err != nil {
		return err
	}
	return e.el.Input(text)
}

func (e *rodElement) PressEnter() error {
	return e.el.Type(input.Enter)
}
