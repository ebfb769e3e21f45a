// Package browsertest provides an in-memory scripted driver for tests.
package browsertest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/BaSui01/canvasflow/browser"
)

// FakeDriver launches FakeSession instances. Zero value is usable.
type FakeDriver struct {
	mu        sync.Mutex
	LaunchErr error
	Sessions  []*FakeSession
}

// Launch implements browser.Driver.
func (d *FakeDriver) Launch(_ context.Context, cfg browser.Config) (browser.Session, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.LaunchErr != nil {
		return nil, d.LaunchErr
	}
	s := &FakeSession{Config: cfg}
	d.Sessions = append(d.Sessions, s)
	return s, nil
}

// LaunchedSessions returns a copy of the session list, safe to read while
// executions are still running.
func (d *FakeDriver) LaunchedSessions() []*FakeSession {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*FakeSession(nil), d.Sessions...)
}

// FakeSession records lifecycle calls and hands out a single FakePage.
type FakeSession struct {
	mu     sync.Mutex
	Config browser.Config
	Page   *FakePage
	Closed bool
}

func (s *FakeSession) NewPage(context.Context) (browser.Page, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Page == nil {
		s.Page = NewFakePage()
	}
	return s.Page, nil
}

func (s *FakeSession) Close(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Closed = true
	return nil
}

// IsClosed reports whether Close has run.
func (s *FakeSession) IsClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Closed
}

// FakePage is a scriptable page: per-selector text, per-script results,
// and optional per-operation errors.
type FakePage struct {
	mu sync.Mutex

	CurrentURL string
	PageTitle  string
	CookieJar  map[string]string
	Storage    map[string]string
	Texts      map[string]string
	EvalResult map[string]any
	Calls      []string
	Closed     bool

	FailOn map[string]error // operation name -> error
}

// NewFakePage returns an empty scripted page.
func NewFakePage() *FakePage {
	return &FakePage{
		CookieJar:  map[string]string{},
		Storage:    map[string]string{},
		Texts:      map[string]string{},
		EvalResult: map[string]any{},
		FailOn:     map[string]error{},
	}
}

func (p *FakePage) record(op string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Calls = append(p.Calls, op)
	return p.FailOn[op]
}

func (p *FakePage) Goto(_ context.Context, url string) error {
	if err := p.record("goto"); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.CurrentURL = url
	return nil
}

func (p *FakePage) Click(_ context.Context, selector string) error {
	return p.record("click " + selector)
}

func (p *FakePage) Fill(_ context.Context, selector, value string) error {
	return p.record(fmt.Sprintf("fill %s=%s", selector, value))
}

func (p *FakePage) Text(_ context.Context, selector string) (string, error) {
	if err := p.record("text " + selector); err != nil {
		return "", err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.Texts[selector], nil
}

func (p *FakePage) Evaluate(_ context.Context, script string) (any, error) {
	if err := p.record("evaluate"); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.EvalResult[script], nil
}

func (p *FakePage) WaitForSelector(_ context.Context, selector string, _ time.Duration) error {
	return p.record("wait " + selector)
}

func (p *FakePage) URL(context.Context) (string, error) {
	if err := p.record("url"); err != nil {
		return "", err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.CurrentURL, nil
}

func (p *FakePage) Title(context.Context) (string, error) {
	if err := p.record("title"); err != nil {
		return "", err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.PageTitle, nil
}

func (p *FakePage) Cookies(context.Context) (map[string]string, error) {
	if err := p.record("cookies"); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make(map[string]string, len(p.CookieJar))
	for k, v := range p.CookieJar {
		out[k] = v
	}
	return out, nil
}

func (p *FakePage) LocalStorage(context.Context) (map[string]string, error) {
	if err := p.record("localstorage"); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make(map[string]string, len(p.Storage))
	for k, v := range p.Storage {
		out[k] = v
	}
	return out, nil
}

func (p *FakePage) Screenshot(context.Context) ([]byte, error) {
	if err := p.record("screenshot"); err != nil {
		return nil, err
	}
	return []byte("png"), nil
}

func (p *FakePage) Close(context.Context) error {
	if err := p.record("close"); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Closed = true
	return nil
}
