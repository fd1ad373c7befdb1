package auth

import (
	"context"
	"fmt"
	"strings"

	"github.com/PentesterFlow/APIHunter/internal/browser"
)

const codePrompt = "Enter 2FA code"

// detectChallenge looks for a one-time code input: a dedicated OTP field, or
// a plain input on a page that talks about a second factor.
func detectChallenge(page browser.Page) (browser.Element, bool) {
	if el, _, ok := find(page, otpStrategies); ok {
		return el, true
	}

	text := strings.ToLower(browser.BodyText(page))
	if !containsAny(text, twoFactorKeywords) {
		return nil, false
	}
	el, _, ok := find(page, codeInputStrategies)
	return el, ok
}

// resolveChallenge asks for codes until the challenge disappears or the
// attempts run out. It returns the failure result, if any, and the attempts used.
func (c *Controller) resolveChallenge(ctx context.Context, session browser.Session, input browser.Element) (Result, int) {
	page := session.Page()
	limit := c.config.MaxCodeAttempts

	for attempt := 1; attempt <= limit; attempt++ {
		if ctx.Err() != nil {
			return c.fail("cancelled during 2FA", attempt-1), attempt - 1
		}

		prompt := codePrompt
		if attempt > 1 {
			prompt = fmt.Sprintf("%s (attempt %d/%d)", codePrompt, attempt, limit)
		}
		code, err := c.provider.RequestCode(ctx, prompt)
		if err != nil {
			return c.fail("no 2FA code: "+err.Error(), attempt), attempt
		}
		code = strings.TrimSpace(code)
		if code == "" {
			c.log.Warnf("Empty 2FA code (attempt %d/%d)", attempt, limit)
			continue
		}

		if err := input.Fill(code); err != nil {
			c.log.WithError(err).Debug("Failed to fill 2FA input")
		}
		if err := c.submit(ctx, page, verifyStrategies, input); err != nil {
			c.log.WithError(err).Debug("Failed to submit 2FA code")
		}
		if err := sleep(ctx, c.timings.SubmitWait); err != nil {
			return c.fail("cancelled during 2FA", attempt), attempt
		}
		_ = c.waitIdle(ctx, session)

		next, still := detectChallenge(page)
		if !still {
			c.log.Info("2FA verification successful")
			return Result{Success: true}, attempt
		}
		if text, found := visibleError(page); found {
			c.log.Warnf("2FA code rejected (attempt %d/%d): %s", attempt, limit, text)
			input = next
			continue
		}

		c.log.Warn("2FA status unclear, assuming success")
		return Result{Success: true}, attempt
	}

	return c.fail(fmt.Sprintf("2FA failed after %d attempts", limit), limit), limit
}
