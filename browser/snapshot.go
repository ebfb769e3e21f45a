package browser

import "context"

// Snapshot captures the observable page context after an execution step.
type Snapshot struct {
	CurrentURL   string            `json:"current_url"`
	PageTitle    string            `json:"page_title"`
	Cookies      map[string]string `json:"cookies,omitempty"`
	LocalStorage map[string]string `json:"local_storage,omitempty"`
}

// Capture reads the current page context. Cookie or storage read failures
// leave the corresponding field empty rather than failing the capture;
// URL and title failures abort it.
func Capture(ctx context.Context, page Page) (*Snapshot, error) {
	url, err := page.URL(ctx)
	if err != nil {
		return nil, err
	}
	title, err := page.Title(ctx)
	if err != nil {
		return nil, err
	}

	snap := &Snapshot{CurrentURL: url, PageTitle: title}
	if cookies, err := page.Cookies(ctx); err == nil {
		snap.Cookies = cookies
	}
	if storage, err := page.LocalStorage(ctx); err == nil {
		snap.LocalStorage = storage
	}
	return snap, nil
}
