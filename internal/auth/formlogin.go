package auth

import (
	"context"
	"fmt"

	"github.com/PentesterFlow/APIHunter/internal/browser"
)

// login drives the login form and any 2FA challenge that follows it.
func (c *Controller) login(ctx context.Context, session browser.Session) Result {
	page := session.Page()
	c.transition(LoggingIn, c.config.LoginURL)

	if err := c.navigate(ctx, page, c.config.LoginURL); err != nil {
		return c.fail("login page unreachable: "+err.Error(), 0)
	}
	if err := sleep(ctx, c.timings.FormSettle); err != nil {
		return c.fail("cancelled", 0)
	}

	username, us, ok := resolve(page, c.config.UsernameSelector, usernameStrategies)
	if !ok {
		return c.fail("username field not found", 0)
	}
	password, ps, ok := resolve(page, c.config.PasswordSelector, passwordStrategies)
	if !ok {
		return c.fail("password field not found", 0)
	}
	c.log.Debugf("Username field: %s, password field: %s", us.Name, ps.Name)

	if err := username.Fill(c.config.Username); err != nil {
		return c.fail(fmt.Sprintf("failed to fill username: %v", err), 0)
	}
	if err := password.Fill(c.config.Password); err != nil {
		return c.fail(fmt.Sprintf("failed to fill password: %v", err), 0)
	}

	if err := c.submit(ctx, page, submitStrategies, password); err != nil {
		return c.fail(fmt.Sprintf("failed to submit login form: %v", err), 0)
	}
	if err := sleep(ctx, c.timings.SubmitWait); err != nil {
		return c.fail("cancelled", 0)
	}
	if err := c.waitIdle(ctx, session); err != nil {
		c.log.Debug("Network not idle after login, continuing")
	}

	if text, found := visibleError(page); found {
		return c.fail("login rejected: "+text, 0)
	}

	attempts := 0
	if input, found := detectChallenge(page); found {
		c.transition(AwaitingChallenge, "one-time code requested")
		var res Result
		res, attempts = c.resolveChallenge(ctx, session, input)
		if !res.Success {
			return res
		}
	} else {
		c.transition(Verifying, "form submitted")
		c.logOutcome(page)
	}

	return c.confirm(ctx, session, attempts)
}

// submit clicks the first matching button, or presses Enter in fallback.
func (c *Controller) submit(ctx context.Context, page browser.Page, strategies []Strategy, fallback browser.Element) error {
	if btn, s, ok := find(page, strategies); ok {
		c.log.Debugf("Submitting with %s", s.Name)
		if err := btn.Click(ctx, c.timings.ClickTimeout); err == nil {
			return nil
		}
	}
	c.log.Debug("No submit button found, pressing Enter")
	return fallback.PressEnter()
}

// logOutcome reports the optimistic login heuristic. It never fails the login.
func (c *Controller) logOutcome(page browser.Page) {
	switch {
	case !samePath(page.URL(), c.config.LoginURL):
		c.log.Info("Login appears successful (redirected)")
	case loggedIn(page):
		c.log.Info("Login successful (found logged-in indicator)")
	default:
		c.log.Warn("Login status unclear, continuing anyway")
	}
}
