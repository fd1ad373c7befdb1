// Package auth logs the crawl session in: it installs cookies and headers,
// drives the login form and resolves a two-factor challenge.
package auth

import (
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/PentesterFlow/APIHunter/internal/browser"
	"github.com/PentesterFlow/APIHunter/internal/errors"
	"github.com/PentesterFlow/APIHunter/internal/logger"
)

// State is the authentication progress of a session.
type State int

const (
	Unauthenticated State = iota
	LoggingIn
	Verifying
	AwaitingChallenge
	Verified
	Failed
)

func (s State) String() string {
	switch s {
	case Unauthenticated:
		return "unauthenticated"
	case LoggingIn:
		return "logging_in"
	case Verifying:
		return "verifying"
	case AwaitingChallenge:
		return "awaiting_challenge"
	case Verified:
		return "verified"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// MarshalText encodes the state name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Config holds credentials and session material.
type Config struct {
	StartURL         string
	LoginURL         string
	Username         string
	Password         string
	UsernameSelector string
	PasswordSelector string
	Headers          map[string]string
	Cookies          map[string]string
	// MaxCodeAttempts bounds the 2FA loop. Zero means 3.
	MaxCodeAttempts int
}

// HasCredentials reports whether a form login should be attempted.
func (c Config) HasCredentials() bool {
	return c.LoginURL != "" && c.Username != "" && c.Password != ""
}

// Timings are the waits of the login flow.
type Timings struct {
	NavigationTimeout time.Duration
	FormSettle        time.Duration
	SubmitWait        time.Duration
	IdleTimeout       time.Duration
	IdleQuiet         time.Duration
	ClickTimeout      time.Duration
}

// DefaultTimings returns the waits used against real sites.
func DefaultTimings() Timings {
	return Timings{
		NavigationTimeout: 30 * time.Second,
		FormSettle:        time.Second,
		SubmitWait:        2 * time.Second,
		IdleTimeout:       10 * time.Second,
		IdleQuiet:         500 * time.Millisecond,
		ClickTimeout:      5 * time.Second,
	}
}

// Result is the outcome of Authenticate.
type Result struct {
	Success bool   `json:"success"`
	State   State  `json:"state"`
	Reason  string `json:"reason,omitempty"`
	// Attempts counts 2FA codes tried.
	Attempts int `json:"attempts"`
}

// Controller runs the authentication state machine against one session.
type Controller struct {
	config   Config
	provider CodeProvider
	timings  Timings
	log      *logger.Logger
	errLog   *errors.Log

	state State
}

// Option configures a Controller.
type Option func(*Controller)

// WithCodeProvider sets where 2FA codes come from. The default prompts on the terminal.
func WithCodeProvider(p CodeProvider) Option {
	return func(c *Controller) {
		if p != nil {
			c.provider = p
		}
	}
}

// WithTimings overrides the default waits.
func WithTimings(t Timings) Option {
	return func(c *Controller) { c.timings = t }
}

// WithLogger sets the logger.
func WithLogger(l *logger.Logger) Option {
	return func(c *Controller) {
		if l != nil {
			c.log = l.WithComponent("auth")
		}
	}
}

// WithErrorLog records authentication failures in l.
func WithErrorLog(l *errors.Log) Option {
	return func(c *Controller) { c.errLog = l }
}

// NewController creates a controller.
func NewController(config Config, opts ...Option) *Controller {
	if config.MaxCodeAttempts <= 0 {
		config.MaxCodeAttempts = 3
	}
	c := &Controller{
		config:  config,
		timings: DefaultTimings(),
		log:     logger.Nop(),
		state:   Unauthenticated,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.provider == nil {
		c.provider = NewTerminalPrompt()
	}
	return c
}

// State returns the current state.
func (c *Controller) State() State {
	return c.state
}

func (c *Controller) transition(to State, reason string) {
	c.log.AuthEvent(c.state.String(), to.String(), reason)
	c.state = to
}

// Authenticate installs session material and, when credentials are set, logs in.
// The session is usable whatever the outcome.
func (c *Controller) Authenticate(ctx context.Context, session browser.Session) Result {
	page := session.Page()

	if cookies := SessionCookies(c.config.StartURL, c.config.Cookies); len(cookies) > 0 {
		if err := page.SetCookies(cookies); err != nil {
			c.log.WithError(err).Warn("Failed to set cookies")
		} else {
			c.log.Infof("Set %d cookie(s)", len(cookies))
		}
	}
	if len(c.config.Headers) > 0 {
		if err := page.SetExtraHeaders(c.config.Headers); err != nil {
			c.log.WithError(err).Warn("Failed to set headers")
		} else {
			c.log.Infof("Set %d auth header(s)", len(c.config.Headers))
		}
		c.checkBearer()
	}

	if !c.config.HasCredentials() {
		return Result{Success: true, State: c.state, Reason: "no login configured"}
	}

	res := c.login(ctx, session)
	if !res.Success && c.errLog != nil {
		c.errLog.Add(errors.NewAuthError(c.config.LoginURL, res.Reason, nil), c.config.LoginURL)
	}
	return res
}

func (c *Controller) checkBearer() {
	token, ok := BearerToken(c.config.Headers)
	if !ok {
		return
	}
	exp, err := TokenExpiry(token)
	if err != nil {
		return
	}
	if time.Now().After(exp) {
		c.log.Warnf("Bearer token expired at %s", exp.Format(time.RFC3339))
	}
}

func (c *Controller) fail(reason string, attempts int) Result {
	c.transition(Failed, reason)
	return Result{Success: false, State: Failed, Reason: reason, Attempts: attempts}
}

// confirm re-opens the start URL and fails when the site sends it back to a login page.
func (c *Controller) confirm(ctx context.Context, session browser.Session, attempts int) Result {
	page := session.Page()
	if err := c.navigate(ctx, page, c.config.StartURL); err != nil {
		return c.fail("start URL unreachable after login: "+err.Error(), attempts)
	}
	_ = c.waitIdle(ctx, session)

	current := page.URL()
	if samePath(current, c.config.LoginURL) || (looksLikeLogin(current) && !looksLikeLogin(c.config.StartURL)) {
		return c.fail("redirected back to login page", attempts)
	}

	c.transition(Verified, "start URL reachable")
	return Result{Success: true, State: Verified, Attempts: attempts}
}

func (c *Controller) navigate(ctx context.Context, page browser.Page, target string) error {
	navCtx, cancel := context.WithTimeout(ctx, c.timings.NavigationTimeout)
	defer cancel()
	return page.Navigate(navCtx, target)
}

func (c *Controller) waitIdle(ctx context.Context, session browser.Session) error {
	idleCtx, cancel := context.WithTimeout(ctx, c.timings.IdleTimeout)
	defer cancel()
	return session.WaitIdle(idleCtx, c.timings.IdleQuiet)
}

func samePath(a, b string) bool {
	ua, err1 := url.Parse(a)
	ub, err2 := url.Parse(b)
	if err1 != nil || err2 != nil {
		return false
	}
	return strings.TrimSuffix(ua.Path, "/") == strings.TrimSuffix(ub.Path, "/")
}

var loginPathWords = []string{"login", "signin", "sign-in", "sign_in", "auth", "sso"}

func looksLikeLogin(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return containsAny(strings.ToLower(u.Path), loginPathWords)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
