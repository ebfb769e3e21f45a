// Package browser defines the automation backend abstraction used by
// browser agents. Concrete drivers (CDP, remote grid, test fakes) implement
// Driver/Session/Page; the execution core only depends on these interfaces.
package browser

import (
	"context"
	"time"
)

// Config configures a browser session.
type Config struct {
	Headless          bool          `yaml:"headless" json:"headless"`
	Timeout           time.Duration `yaml:"timeout" json:"timeout"`
	NavigationTimeout time.Duration `yaml:"navigation_timeout" json:"navigation_timeout"`
	ViewportWidth     int           `yaml:"viewport_width" json:"viewport_width"`
	ViewportHeight    int           `yaml:"viewport_height" json:"viewport_height"`
	UserAgent         string        `yaml:"user_agent" json:"user_agent,omitempty"`
	ProxyURL          string        `yaml:"proxy_url" json:"proxy_url,omitempty"`
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Headless:          true,
		Timeout:           30 * time.Second,
		NavigationTimeout: 30 * time.Second,
		ViewportWidth:     1920,
		ViewportHeight:    1080,
	}
}

// Driver launches browser sessions.
type Driver interface {
	Launch(ctx context.Context, cfg Config) (Session, error)
}

// Session is a running browser instance owning one or more pages.
type Session interface {
	NewPage(ctx context.Context) (Page, error)
	Close(ctx context.Context) error
}

// Page is a single browser tab.
type Page interface {
	Goto(ctx context.Context, url string) error
	Click(ctx context.Context, selector string) error
	Fill(ctx context.Context, selector, value string) error
	Text(ctx context.Context, selector string) (string, error)
	Evaluate(ctx context.Context, script string) (any, error)
	WaitForSelector(ctx context.Context, selector string, timeout time.Duration) error
	URL(ctx context.Context) (string, error)
	Title(ctx context.Context) (string, error)
	Cookies(ctx context.Context) (map[string]string, error)
	LocalStorage(ctx context.Context) (map[string]string, error)
	Screenshot(ctx context.Context) ([]byte, error)
	Close(ctx context.Context) error
}
