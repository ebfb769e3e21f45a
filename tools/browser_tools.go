package tools

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/BaSui01/canvasflow/browser"
)

// CategoryBrowser groups the built-in browser automation tools.
const CategoryBrowser = "browser"

const defaultWaitTimeout = 10 * time.Second

// stringParam extracts a required string parameter.
func stringParam(params map[string]any, key string) (string, bool) {
	v, ok := params[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	if !ok || s == "" {
		return "", false
	}
	return s, true
}

func requireStrings(params map[string]any, keys ...string) ValidationResult {
	var errs []string
	for _, key := range keys {
		if _, ok := stringParam(params, key); !ok {
			errs = append(errs, fmt.Sprintf("%s is required and must be a non-empty string", key))
		}
	}
	if len(errs) > 0 {
		return Invalid(errs...)
	}
	return Valid()
}

// RegisterBrowserTools registers the browser automation tool set against
// the given page. Registering again for a new page replaces the handlers.
func RegisterBrowserTools(r *Registry, page browser.Page) {
	r.Register(Descriptor{
		Name:        "navigate",
		Description: "Navigate the browser to a URL",
		Category:    CategoryBrowser,
		Validate: func(params map[string]any) ValidationResult {
			res := requireStrings(params, "url")
			if !res.Valid {
				return res
			}
			raw, _ := stringParam(params, "url")
			if u, err := url.Parse(raw); err != nil || u.Scheme == "" || u.Host == "" {
				return Invalid("url must be absolute")
			}
			return Valid()
		},
		Handler: func(ctx context.Context, params map[string]any) (any, error) {
			raw, _ := stringParam(params, "url")
			if err := page.Goto(ctx, raw); err != nil {
				return nil, err
			}
			return fmt.Sprintf("navigated to %s", raw), nil
		},
	})

	r.Register(Descriptor{
		Name:        "click",
		Description: "Click the element matching a CSS selector",
		Category:    CategoryBrowser,
		Validate: func(params map[string]any) ValidationResult {
			return requireStrings(params, "selector")
		},
		Handler: func(ctx context.Context, params map[string]any) (any, error) {
			selector, _ := stringParam(params, "selector")
			if err := page.Click(ctx, selector); err != nil {
				return nil, err
			}
			return fmt.Sprintf("clicked %s", selector), nil
		},
	})

	r.Register(Descriptor{
		Name:        "fill",
		Description: "Fill the input matching a CSS selector with a value",
		Category:    CategoryBrowser,
		Validate: func(params map[string]any) ValidationResult {
			return requireStrings(params, "selector", "value")
		},
		Handler: func(ctx context.Context, params map[string]any) (any, error) {
			selector, _ := stringParam(params, "selector")
			value, _ := stringParam(params, "value")
			if err := page.Fill(ctx, selector, value); err != nil {
				return nil, err
			}
			return fmt.Sprintf("filled %s", selector), nil
		},
	})

	r.Register(Descriptor{
		Name:        "read_text",
		Description: "Read the text content of the element matching a CSS selector",
		Category:    CategoryBrowser,
		Validate: func(params map[string]any) ValidationResult {
			return requireStrings(params, "selector")
		},
		Handler: func(ctx context.Context, params map[string]any) (any, error) {
			selector, _ := stringParam(params, "selector")
			return page.Text(ctx, selector)
		},
	})

	r.Register(Descriptor{
		Name:        "evaluate",
		Description: "Evaluate a JavaScript expression in the page and return its result",
		Category:    CategoryBrowser,
		Validate: func(params map[string]any) ValidationResult {
			return requireStrings(params, "script")
		},
		Handler: func(ctx context.Context, params map[string]any) (any, error) {
			script, _ := stringParam(params, "script")
			return page.Evaluate(ctx, script)
		},
	})

	r.Register(Descriptor{
		Name:        "wait_for_selector",
		Description: "Wait until the element matching a CSS selector appears",
		Category:    CategoryBrowser,
		Validate: func(params map[string]any) ValidationResult {
			return requireStrings(params, "selector")
		},
		Handler: func(ctx context.Context, params map[string]any) (any, error) {
			selector, _ := stringParam(params, "selector")
			timeout := defaultWaitTimeout
			if raw, ok := stringParam(params, "timeout"); ok {
				if d, err := time.ParseDuration(raw); err == nil {
					timeout = d
				}
			}
			if err := page.WaitForSelector(ctx, selector, timeout); err != nil {
				return nil, err
			}
			return fmt.Sprintf("selector %s appeared", selector), nil
		},
	})

	r.Register(Descriptor{
		Name:        "current_url",
		Description: "Return the current page URL",
		Category:    CategoryBrowser,
		Handler: func(ctx context.Context, _ map[string]any) (any, error) {
			return page.URL(ctx)
		},
	})

	r.Register(Descriptor{
		Name:        "screenshot",
		Description: "Capture a screenshot of the current page",
		Category:    CategoryBrowser,
		Handler: func(ctx context.Context, _ map[string]any) (any, error) {
			data, err := page.Screenshot(ctx)
			if err != nil {
				return nil, err
			}
			return map[string]any{"data": fmt.Sprintf("screenshot captured (%d bytes)", len(data))}, nil
		},
	})
}
