package auth

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultCodeTimeout bounds how long a remote 2FA challenge waits for a code.
const DefaultCodeTimeout = 5 * time.Minute

// ErrNoChallenge is returned by Submit when no code is being waited for.
var ErrNoChallenge = fmt.Errorf("no 2FA challenge pending")

// CodeProvider supplies one-time codes for a 2FA challenge.
type CodeProvider interface {
	RequestCode(ctx context.Context, prompt string) (string, error)
}

// CodeProviderFunc adapts a function to CodeProvider.
type CodeProviderFunc func(ctx context.Context, prompt string) (string, error)

// RequestCode calls f.
func (f CodeProviderFunc) RequestCode(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}

// TerminalPrompt asks for the code on a terminal.
type TerminalPrompt struct {
	In  io.Reader
	Out io.Writer

	once   sync.Once
	reader *bufio.Reader
}

// NewTerminalPrompt prompts on stdin/stdout.
func NewTerminalPrompt() *TerminalPrompt {
	return &TerminalPrompt{In: os.Stdin, Out: os.Stdout}
}

// RequestCode prints prompt and reads one line. Cancelling ctx abandons the read.
func (t *TerminalPrompt) RequestCode(ctx context.Context, prompt string) (string, error) {
	t.once.Do(func() { t.reader = bufio.NewReader(t.In) })

	fmt.Fprintf(t.Out, "\n%s: ", prompt)

	type line struct {
		text string
		err  error
	}
	ch := make(chan line, 1)
	go func() {
		text, err := t.reader.ReadString('\n')
		if err == io.EOF && text != "" {
			err = nil
		}
		ch <- line{text: strings.TrimSpace(text), err: err}
	}()

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case l := <-ch:
		if l.err != nil {
			return "", fmt.Errorf("failed to read code: %w", l.err)
		}
		return l.text, nil
	}
}

// Challenge is a code request waiting for a remote answer.
type Challenge struct {
	ID        string    `json:"id"`
	Prompt    string    `json:"prompt"`
	CreatedAt time.Time `json:"created_at"`
}

// ChannelProvider bridges code requests to a remote client. Each request is
// announced through notify and resolved by Submit.
type ChannelProvider struct {
	timeout time.Duration
	notify  func(Challenge)

	mu        sync.Mutex
	challenge *Challenge
	codes     chan string
}

// NewChannelProvider creates a remote provider. A zero timeout uses DefaultCodeTimeout.
func NewChannelProvider(timeout time.Duration, notify func(Challenge)) *ChannelProvider {
	if timeout <= 0 {
		timeout = DefaultCodeTimeout
	}
	return &ChannelProvider{timeout: timeout, notify: notify}
}

// RequestCode announces a challenge and waits for Submit, the timeout or ctx.
func (c *ChannelProvider) RequestCode(ctx context.Context, prompt string) (string, error) {
	ch := Challenge{ID: uuid.NewString(), Prompt: prompt, CreatedAt: time.Now()}
	codes := make(chan string, 1)

	c.mu.Lock()
	c.challenge = &ch
	c.codes = codes
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		if c.codes == codes {
			c.challenge = nil
			c.codes = nil
		}
		c.mu.Unlock()
	}()

	if c.notify != nil {
		c.notify(ch)
	}

	timer := time.NewTimer(c.timeout)
	defer timer.Stop()

	select {
	case code := <-codes:
		return code, nil
	case <-timer.C:
		return "", fmt.Errorf("no 2FA code received within %s", c.timeout)
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Submit answers the pending challenge.
func (c *ChannelProvider) Submit(code string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.codes == nil {
		return ErrNoChallenge
	}
	select {
	case c.codes <- strings.TrimSpace(code):
		return nil
	default:
		return fmt.Errorf("a code was already submitted")
	}
}

// Pending returns the challenge currently waiting for a code.
func (c *ChannelProvider) Pending() (Challenge, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.challenge == nil {
		return Challenge{}, false
	}
	return *c.challenge, true
}
