package tools

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/canvasflow/browser/browsertest"
)

func setupBrowserTools(t *testing.T) (*Registry, *browsertest.FakePage) {
	t.Helper()
	page := browsertest.NewFakePage()
	r := NewRegistry()
	RegisterBrowserTools(r, page)
	return r, page
}

func TestBrowserTools_Registered(t *testing.T) {
	r, _ := setupBrowserTools(t)

	for _, name := range []string{"navigate", "click", "fill", "read_text", "evaluate", "wait_for_selector", "current_url", "screenshot"} {
		_, ok := r.Get(name)
		assert.True(t, ok, name)
	}
	assert.Len(t, r.ByCategory(CategoryBrowser), 8)
}

func TestBrowserTools_NavigateValidation(t *testing.T) {
	r, _ := setupBrowserTools(t)

	res := r.Validate("navigate", map[string]any{})
	assert.False(t, res.Valid)
	assert.Contains(t, res.Errors[0], "url is required")

	res = r.Validate("navigate", map[string]any{"url": "not a url"})
	assert.False(t, res.Valid)

	res = r.Validate("navigate", map[string]any{"url": "https://example.com"})
	assert.True(t, res.Valid)
}

func TestBrowserTools_NavigateHandler(t *testing.T) {
	r, page := setupBrowserTools(t)

	d, _ := r.Get("navigate")
	out, err := d.Handler(context.Background(), map[string]any{"url": "https://example.com"})
	require.NoError(t, err)
	assert.Equal(t, "navigated to https://example.com", out)
	assert.Equal(t, "https://example.com", page.CurrentURL)
}

func TestBrowserTools_FillValidationCollectsAllErrors(t *testing.T) {
	r, _ := setupBrowserTools(t)

	res := r.Validate("fill", map[string]any{})
	require.False(t, res.Valid)
	assert.Len(t, res.Errors, 2)
}

func TestBrowserTools_ReadText(t *testing.T) {
	r, page := setupBrowserTools(t)
	page.Texts["#price"] = "$42.00"

	d, _ := r.Get("read_text")
	out, err := d.Handler(context.Background(), map[string]any{"selector": "#price"})
	require.NoError(t, err)
	assert.Equal(t, "$42.00", out)
}

func TestBrowserTools_ScreenshotReturnsDataField(t *testing.T) {
	r, _ := setupBrowserTools(t)

	d, _ := r.Get("screenshot")
	out, err := d.Handler(context.Background(), nil)
	require.NoError(t, err)

	m, ok := out.(map[string]any)
	require.True(t, ok)
	assert.Contains(t, m["data"], "screenshot captured")
}
