package auth

import (
	"strings"

	"github.com/PentesterFlow/APIHunter/internal/browser"
)

// Strategy locates one kind of form control. Text, when set, must appear in
// the element's text (case-insensitive).
type Strategy struct {
	Name     string
	Selector string
	Text     string
}

var usernameStrategies = []Strategy{
	{Name: "email-type", Selector: `input[type="email"]`},
	{Name: "email-name", Selector: `input[name="email"]`},
	{Name: "username-name", Selector: `input[name="username"]`},
	{Name: "user-name", Selector: `input[name="user"]`},
	{Name: "login-name", Selector: `input[name="login"]`},
	{Name: "email-id", Selector: `input[id="email"]`},
	{Name: "username-id", Selector: `input[id="username"]`},
	{Name: "email-autocomplete", Selector: `input[autocomplete="email"]`},
	{Name: "username-autocomplete", Selector: `input[autocomplete="username"]`},
	{Name: "email-placeholder", Selector: `input[placeholder*="email" i]`},
	{Name: "username-placeholder", Selector: `input[placeholder*="username" i]`},
	{Name: "first-text", Selector: `input[type="text"]:first-of-type`},
}

var passwordStrategies = []Strategy{
	{Name: "password-type", Selector: `input[type="password"]`},
	{Name: "password-name", Selector: `input[name="password"]`},
	{Name: "pass-name", Selector: `input[name="pass"]`},
	{Name: "password-id", Selector: `input[id="password"]`},
	{Name: "current-password", Selector: `input[autocomplete="current-password"]`},
}

var submitStrategies = []Strategy{
	{Name: "submit-button", Selector: `button[type="submit"]`},
	{Name: "submit-input", Selector: `input[type="submit"]`},
	{Name: "log-in-text", Selector: "button", Text: "log in"},
	{Name: "login-text", Selector: "button", Text: "login"},
	{Name: "sign-in-text", Selector: "button", Text: "sign in"},
	{Name: "submit-text", Selector: "button", Text: "submit"},
	{Name: "login-container", Selector: `[class*="login"] button`},
	{Name: "submit-class", Selector: `[class*="submit"]`},
	{Name: "last-form-button", Selector: "form button:last-of-type"},
}

var verifyStrategies = []Strategy{
	{Name: "submit-button", Selector: `button[type="submit"]`},
	{Name: "submit-input", Selector: `input[type="submit"]`},
	{Name: "verify-text", Selector: "button", Text: "verify"},
	{Name: "confirm-text", Selector: "button", Text: "confirm"},
	{Name: "continue-text", Selector: "button", Text: "continue"},
	{Name: "submit-text", Selector: "button", Text: "submit"},
	{Name: "verify-class", Selector: `[class*="verify"]`},
}

// Inputs that ask for a one-time code.
var otpStrategies = []Strategy{
	{Name: "one-time-code", Selector: `input[autocomplete="one-time-code"]`},
	{Name: "otp-name", Selector: `input[name*="otp" i]`},
	{Name: "otp-id", Selector: `input[id*="otp" i]`},
	{Name: "2fa-name", Selector: `input[name*="2fa" i]`},
	{Name: "2fa-id", Selector: `input[id*="2fa" i]`},
	{Name: "mfa-name", Selector: `input[name*="mfa" i]`},
	{Name: "mfa-id", Selector: `input[id*="mfa" i]`},
	{Name: "totp-name", Selector: `input[name*="totp" i]`},
	{Name: "code-name", Selector: `input[name*="code" i]`},
	{Name: "code-id", Selector: `input[id*="code" i]`},
	{Name: "numeric-inputmode", Selector: `input[inputmode="numeric"]`},
	{Name: "numeric-pattern", Selector: `input[pattern="[0-9]*"]`},
}

// Free-text inputs considered once the page text mentions a second factor.
var codeInputStrategies = []Strategy{
	{Name: "text", Selector: `input[type="text"]`},
	{Name: "number", Selector: `input[type="number"]`},
	{Name: "tel", Selector: `input[type="tel"]`},
	{Name: "untyped", Selector: `input:not([type])`},
}

var twoFactorKeywords = []string{
	"two-factor", "two factor", "2fa", "2-step", "two-step",
	"verification code", "authentication code", "security code",
	"one-time", "otp", "authenticator", "enter the code", "6-digit",
}

var errorSelectors = []string{
	".error", ".alert-danger", ".login-error",
	`[class*="error"]`, `[class*="invalid"]`,
	"#error", "#login-error", `[role="alert"]`,
}

var errorKeywords = []string{
	"invalid", "incorrect", "wrong", "failed", "error",
	"expired", "denied", "not match", "try again", "unauthorized",
}

var loggedInSelectors = []string{
	`[class*="logout"]`, `[class*="signout"]`,
	`[href*="logout"]`, `[href*="signout"]`,
	".user-menu", ".profile-menu", ".account-menu",
}

// find returns the first visible element matched by the strategies, in order.
func find(page browser.Page, strategies []Strategy) (browser.Element, Strategy, bool) {
	for _, s := range strategies {
		elements, err := page.Elements(s.Selector)
		if err != nil {
			continue
		}
		for _, el := range elements {
			if !el.Visible() {
				continue
			}
			if s.Text != "" && !strings.Contains(strings.ToLower(el.Text()), s.Text) {
				continue
			}
			return el, s, true
		}
	}
	return nil, Strategy{}, false
}

// resolve prefers an explicit selector over the strategy list.
func resolve(page browser.Page, selector string, strategies []Strategy) (browser.Element, Strategy, bool) {
	if selector != "" {
		return find(page, []Strategy{{Name: "configured", Selector: selector}})
	}
	return find(page, strategies)
}

// visibleError returns the text of a visible error element carrying an error keyword.
func visibleError(page browser.Page) (string, bool) {
	for _, sel := range errorSelectors {
		elements, err := page.Elements(sel)
		if err != nil {
			continue
		}
		for _, el := range elements {
			if !el.Visible() {
				continue
			}
			text := strings.TrimSpace(el.Text())
			if containsAny(strings.ToLower(text), errorKeywords) {
				if len(text) > 100 {
					text = text[:100]
				}
				return text, true
			}
		}
	}
	return "", false
}

func loggedIn(page browser.Page) bool {
	for _, sel := range loggedInSelectors {
		if elements, err := page.Elements(sel); err == nil && len(elements) > 0 {
			return true
		}
	}
	return false
}

func containsAny(s string, words []string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}
