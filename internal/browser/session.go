// Package browser drives Chrome through rod and exposes the page, the network
// event stream and the interaction engine to the crawler.
package browser

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"

	"github.com/PentesterFlow/APIHunter/internal/errors"
	"github.com/PentesterFlow/APIHunter/internal/logger"
)

// Config defines browser configuration.
type Config struct {
	Headless          bool          `json:"headless" yaml:"headless"`
	Stealth           bool          `json:"stealth" yaml:"stealth"`
	UserAgent         string        `json:"user_agent" yaml:"user_agent"`
	ViewportWidth     int           `json:"viewport_width" yaml:"viewport_width"`
	ViewportHeight    int           `json:"viewport_height" yaml:"viewport_height"`
	NavigationTimeout time.Duration `json:"navigation_timeout" yaml:"navigation_timeout"`
	IdleTimeout       time.Duration `json:"idle_timeout" yaml:"idle_timeout"`
	IgnoreHTTPSErrors bool          `json:"ignore_https_errors" yaml:"ignore_https_errors"`
	// ControlURL connects to an already running browser instead of launching one.
	ControlURL string `json:"control_url,omitempty" yaml:"control_url,omitempty"`
}

// DefaultConfig returns default browser configuration.
func DefaultConfig() Config {
	return Config{
		Headless:          true,
		UserAgent:         "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
		ViewportWidth:     1920,
		ViewportHeight:    1080,
		NavigationTimeout: 30 * time.Second,
		IdleTimeout:       10 * time.Second,
		IgnoreHTTPSErrors: true,
	}
}

// Session is one running browser with the tab the crawl drives.
type Session interface {
	Page() Page
	// WaitIdle waits until the network has been quiet for quiet, bounded by ctx.
	WaitIdle(ctx context.Context, quiet time.Duration) error
	Alive() bool
	Close() error
}

// Driver opens browser sessions. Network events of the main tab and of every
// popup it opens are delivered to sink.
type Driver interface {
	Open(ctx context.Context, sink EventSink) (Session, error)
}

// RodDriver launches Chrome through rod.
type RodDriver struct {
	config  Config
	retrier *errors.Retrier
	log     *logger.Logger
}

var _ Driver = (*RodDriver)(nil)

// NewRodDriver creates a driver. A nil logger discards output.
func NewRodDriver(config Config, log *logger.Logger) *RodDriver {
	if log == nil {
		log = logger.Nop()
	}
	return &RodDriver{
		config:  config,
		retrier: errors.NewRetrier(errors.DefaultRetryConfig()),
		log:     log.WithComponent("browser"),
	}
}

// Open launches (or connects to) Chrome and opens the crawl tab.
func (d *RodDriver) Open(ctx context.Context, sink EventSink) (Session, error) {
	b, res := errors.DoWithResult(ctx, d.retrier, "launch browser", d.config.ControlURL,
		func(ctx context.Context) (*rod.Browser, error) {
			b, err := d.connect(ctx)
			if err != nil {
				he := errors.New(errors.Fatal, d.config.ControlURL, "launch browser", "browser failed to start", err)
				he.Retryable = true
				return nil, he
			}
			return b, nil
		})
	if !res.Success {
		return nil, res.LastError
	}
	if res.Attempts > 1 {
		d.log.Warnf("Browser started after %d attempts", res.Attempts)
	}

	s := &rodSession{
		browser: b,
		pump:    NewPump(sink),
		log:     d.log,
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())

	page, err := d.newPage(b)
	if err != nil {
		s.Close()
		return nil, errors.NewFatalError("", "open page", err)
	}
	s.page = page

	if err := watchNetwork(s.ctx, page, s.pump); err != nil {
		s.Close()
		return nil, errors.NewFatalError("", "enable network events", err)
	}
	if err := s.watchPopups(); err != nil {
		d.log.WithError(err).Warn("Popup tracking unavailable")
	}

	d.log.Info("Browser session opened")
	return s, nil
}

func (d *RodDriver) connect(ctx context.Context) (*rod.Browser, error) {
	controlURL := d.config.ControlURL
	if controlURL == "" {
		l := launcher.New().
			Context(ctx).
			Headless(d.config.Headless).
			Set("disable-blink-features", "AutomationControlled")
		if d.config.IgnoreHTTPSErrors {
			l = l.Set("ignore-certificate-errors")
		}

		u, err := l.Launch()
		if err != nil {
			return nil, fmt.Errorf("failed to launch browser: %w", err)
		}
		controlURL = u
	}

	b := rod.New().ControlURL(controlURL)
	if err := b.Connect(); err != nil {
		return nil, fmt.Errorf("failed to connect to browser: %w", err)
	}
	return b, nil
}

func (d *RodDriver) newPage(b *rod.Browser) (*rod.Page, error) {
	var (
		page *rod.Page
		err  error
	)
	if d.config.Stealth {
		page, err = stealth.Page(b)
	} else {
		page, err = b.Page(proto.TargetCreateTarget{URL: "about:blank"})
	}
	if err != nil {
		return nil, err
	}

	if d.config.ViewportWidth > 0 && d.config.ViewportHeight > 0 {
		_ = page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
			Width:  d.config.ViewportWidth,
			Height: d.config.ViewportHeight,
		})
	}
	if d.config.UserAgent != "" {
		_ = proto.NetworkSetUserAgentOverride{UserAgent: d.config.UserAgent}.Call(page)
	}
	return page, nil
}

type rodSession struct {
	browser *rod.Browser
	page    *rod.Page
	pump    *Pump
	log     *logger.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	popups []*rod.Page
	closed bool
}

func (s *rodSession) Page() Page {
	return WrapPage(s.page)
}

func (s *rodSession) WaitIdle(ctx context.Context, quiet time.Duration) error {
	return s.pump.WaitIdle(ctx, quiet)
}

// Alive asks the browser for its version to verify the connection.
func (s *rodSession) Alive() bool {
	_, err := proto.BrowserGetVersion{}.Call(s.browser)
	return err == nil
}

// watchPopups attaches the network watcher to every tab opened by the crawl tab.
func (s *rodSession) watchPopups() error {
	if err := (proto.TargetSetDiscoverTargets{Discover: true}).Call(s.browser); err != nil {
		return err
	}

	opener := s.page.TargetID
	wait := s.browser.Context(s.ctx).EachEvent(func(e *proto.TargetTargetCreated) {
		info := e.TargetInfo
		if info == nil || info.Type != "page" || info.OpenerID != opener {
			return
		}

		popup, err := s.browser.PageFromTarget(info.TargetID)
		if err != nil {
			s.log.WithError(err).Debug("Failed to attach to popup")
			return
		}
		if err := watchNetwork(s.ctx, popup, s.pump); err != nil {
			s.log.WithError(err).Debug("Failed to watch popup network")
			return
		}

		s.mu.Lock()
		s.popups = append(s.popups, popup)
		s.mu.Unlock()
		s.log.WithURL(info.URL).Debug("Tracking popup")
	})
	go wait()
	return nil
}

func (s *rodSession) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	popups := s.popups
	s.mu.Unlock()

	s.cancel()
	for _, p := range popups {
		_ = p.Close()
	}
	return s.browser.Close()
}
