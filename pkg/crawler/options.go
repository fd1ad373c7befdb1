package crawler

import (
	"fmt"
	"time"

	"github.com/PentesterFlow/APIHunter/internal/auth"
	"github.com/PentesterFlow/APIHunter/internal/browser"
	"github.com/PentesterFlow/APIHunter/internal/errors"
	"github.com/PentesterFlow/APIHunter/internal/logger"
	"github.com/PentesterFlow/APIHunter/internal/metrics"
)

// Option is a functional option for configuring the Crawler.
type Option func(*Crawler) error

// WithConfig replaces the whole configuration with a copy of config.
func WithConfig(config *Config) Option {
	return func(c *Crawler) error {
		if config == nil {
			return fmt.Errorf("config is nil")
		}
		c.config = config.Clone()
		return nil
	}
}

// WithStartURL sets the start URL.
func WithStartURL(url string) Option {
	return func(c *Crawler) error {
		c.config.StartURL = url
		return nil
	}
}

// WithMaxPages sets the page budget.
func WithMaxPages(n int) Option {
	return func(c *Crawler) error {
		if n < 1 {
			n = 1
		}
		c.config.MaxPages = n
		return nil
	}
}

// WithMaxDepth sets the maximum link depth.
func WithMaxDepth(depth int) Option {
	return func(c *Crawler) error {
		if depth < 0 {
			depth = 0
		}
		c.config.MaxDepth = depth
		return nil
	}
}

// WithWaitTime sets the settle time after each navigation, in milliseconds.
func WithWaitTime(ms int) Option {
	return func(c *Crawler) error {
		c.config.WaitTime = ms
		return nil
	}
}

// WithLogin sets form login credentials.
func WithLogin(loginURL, username, password string) Option {
	return func(c *Crawler) error {
		c.config.LoginURL = loginURL
		c.config.Username = username
		c.config.Password = password
		return nil
	}
}

// WithAuthHeader adds a header sent with every request.
func WithAuthHeader(name, value string) Option {
	return func(c *Crawler) error {
		if c.config.AuthHeaders == nil {
			c.config.AuthHeaders = make(map[string]string)
		}
		c.config.AuthHeaders[name] = value
		return nil
	}
}

// WithCookie adds a session cookie.
func WithCookie(name, value string) Option {
	return func(c *Crawler) error {
		if c.config.Cookies == nil {
			c.config.Cookies = make(map[string]string)
		}
		c.config.Cookies[name] = value
		return nil
	}
}

// WithIncludePatterns adds capture include patterns.
func WithIncludePatterns(patterns ...string) Option {
	return func(c *Crawler) error {
		c.config.IncludePatterns = append(c.config.IncludePatterns, patterns...)
		return nil
	}
}

// WithExcludePatterns adds exclude patterns.
func WithExcludePatterns(patterns ...string) Option {
	return func(c *Crawler) error {
		c.config.ExcludePatterns = append(c.config.ExcludePatterns, patterns...)
		return nil
	}
}

// WithOutputDir sets where snapshots and docs are written.
func WithOutputDir(dir string) Option {
	return func(c *Crawler) error {
		c.config.OutputDir = dir
		return nil
	}
}

// WithScreenshots toggles page snapshots.
func WithScreenshots(enabled bool) Option {
	return func(c *Crawler) error {
		c.config.Screenshots = enabled
		return nil
	}
}

// WithRateLimit sets the page navigation rate. Zero means unlimited.
func WithRateLimit(pagesPerSecond float64) Option {
	return func(c *Crawler) error {
		if pagesPerSecond < 0 {
			return fmt.Errorf("rate limit must not be negative")
		}
		c.config.RateLimit = pagesPerSecond
		return nil
	}
}

// WithDriver overrides how browser sessions are opened.
func WithDriver(d browser.Driver) Option {
	return func(c *Crawler) error {
		c.driver = d
		return nil
	}
}

// WithCodeProvider sets where 2FA codes come from.
func WithCodeProvider(p auth.CodeProvider) Option {
	return func(c *Crawler) error {
		c.codeProvider = p
		return nil
	}
}

// WithSnapshotHook sets the callback run after each screenshot.
func WithSnapshotHook(hook SnapshotHook) Option {
	return func(c *Crawler) error {
		c.snapshotHook = hook
		return nil
	}
}

// WithNotifier sets the live event receiver.
func WithNotifier(n Notifier) Option {
	return func(c *Crawler) error {
		c.notify = n
		return nil
	}
}

// WithLogger sets a custom logger.
func WithLogger(l *logger.Logger) Option {
	return func(c *Crawler) error {
		c.logger = l
		return nil
	}
}

// WithMetrics sets a custom metrics collector.
func WithMetrics(m *metrics.Collector) Option {
	return func(c *Crawler) error {
		c.metrics = m
		return nil
	}
}

// WithErrorLog sets the run error log.
func WithErrorLog(l *errors.Log) Option {
	return func(c *Crawler) error {
		c.errLog = l
		return nil
	}
}

// WithAuthTimings overrides the login flow waits.
func WithAuthTimings(t auth.Timings) Option {
	return func(c *Crawler) error {
		c.authTimings = &t
		return nil
	}
}

// WithInteractTimings overrides the interaction engine waits.
func WithInteractTimings(t browser.InteractTimings) Option {
	return func(c *Crawler) error {
		c.interactTimings = &t
		return nil
	}
}

// WithSettleTime overrides the fixed wait before flushing the interceptor.
func WithSettleTime(ms int) Option {
	return func(c *Crawler) error {
		c.settle = msDuration(ms)
		return nil
	}
}

// WithIdleQuiet sets how long the network must be quiet before a page counts as idle.
func WithIdleQuiet(d time.Duration) Option {
	return func(c *Crawler) error {
		c.idleQuiet = d
		return nil
	}
}

// WithProgress renders a progress line while crawling.
func WithProgress(enabled bool) Option {
	return func(c *Crawler) error {
		c.showProgress = enabled
		return nil
	}
}
