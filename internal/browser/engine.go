// Package browser drives Chromium through Playwright on behalf of scenario
// actors. Each Session owns its own browser context, so cookies, storage
// and cache are never shared between actors.
package browser

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/playwright-community/playwright-go"

	"github.com/kuitang/aurora-verify/internal/errs"
	"github.com/kuitang/aurora-verify/internal/obs"
	"github.com/kuitang/aurora-verify/internal/ratelimit"
)

// Viewport is a page size in CSS pixels. The zero value keeps the
// Playwright default.
type Viewport struct {
	Width  int `yaml:"width" json:"width"`
	Height int `yaml:"height" json:"height"`
}

// IsSet reports whether both dimensions are positive.
func (v Viewport) IsSet() bool { return v.Width > 0 && v.Height > 0 }

// Options configures the launched browser and every session created from it.
type Options struct {
	Headless bool
	// Viewport is the default page size of new sessions.
	Viewport       Viewport
	SlowMo         time.Duration
	DefaultTimeout time.Duration
	// Pacer throttles actions per actor. Nil disables pacing.
	Pacer *ratelimit.Pacer
}

// Engine is one running Chromium instance.
type Engine struct {
	pw      *playwright.Playwright
	browser playwright.Browser
	opts    Options

	mu       sync.Mutex
	sessions map[*Session]struct{}
	closed   bool
}

// Launch starts Playwright and Chromium. Any failure is a launch error.
func Launch(ctx context.Context, opts Options) (*Engine, error) {
	log := obs.From(ctx).With("pkg", "browser")

	pw, err := playwright.Run()
	if err != nil {
		return nil, errs.Wrap(errs.Launch, "start playwright", err)
	}

	launchOpts := playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(opts.Headless),
	}
	if opts.SlowMo > 0 {
		launchOpts.SlowMo = playwright.Float(float64(opts.SlowMo.Milliseconds()))
	}
	b, err := pw.Chromium.Launch(launchOpts)
	if err != nil {
		_ = pw.Stop()
		return nil, errs.Wrap(errs.Launch, "launch chromium", err)
	}

	log.Info("browser_launched", "headless", opts.Headless, "version", b.Version())
	return &Engine{
		pw:       pw,
		browser:  b,
		opts:     opts,
		sessions: make(map[*Session]struct{}),
	}, nil
}

// NewSession opens an isolated browser context and page for actor. A set
// viewport overrides the engine default.
func (e *Engine) NewSession(ctx context.Context, actor string, viewport Viewport) (*Session, error) {
	e.mu.Lock()
	closed := e.closed
	e.mu.Unlock()
	if closed {
		return nil, errs.New(errs.Resource, "browser engine is closed")
	}

	if !viewport.IsSet() {
		viewport = e.opts.Viewport
	}
	var ctxOpts playwright.BrowserNewContextOptions
	if viewport.IsSet() {
		ctxOpts.Viewport = &playwright.Size{Width: viewport.Width, Height: viewport.Height}
	}
	bctx, err := e.browser.NewContext(ctxOpts)
	if err != nil {
		return nil, errs.Wrap(errs.Resource, fmt.Sprintf("new browser context for %s", actor), err)
	}
	if e.opts.DefaultTimeout > 0 {
		bctx.SetDefaultTimeout(float64(e.opts.DefaultTimeout.Milliseconds()))
		bctx.SetDefaultNavigationTimeout(float64(e.opts.DefaultTimeout.Milliseconds()))
	}
	page, err := bctx.NewPage()
	if err != nil {
		_ = bctx.Close()
		return nil, errs.Wrap(errs.Resource, fmt.Sprintf("new page for %s", actor), err)
	}

	s := &Session{
		actor:   actor,
		context: bctx,
		page:    page,
		pacer:   e.opts.Pacer,
		expect:  playwright.NewPlaywrightAssertions(),
		engine:  e,
	}
	e.mu.Lock()
	e.sessions[s] = struct{}{}
	e.mu.Unlock()

	obs.From(ctx).Debug("session_opened", "pkg", "browser", "session_actor", actor)
	return s, nil
}

func (e *Engine) forget(s *Session) {
	e.mu.Lock()
	delete(e.sessions, s)
	e.mu.Unlock()
}

// OpenSessions returns the number of sessions not yet closed.
func (e *Engine) OpenSessions() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.sessions)
}

// Close closes any session still open, then the browser and the Playwright
// driver. Errors are reported as resource errors.
func (e *Engine) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	leftover := make([]*Session, 0, len(e.sessions))
	for s := range e.sessions {
		leftover = append(leftover, s)
	}
	e.mu.Unlock()

	var problems []error
	for _, s := range leftover {
		if err := s.Close(); err != nil {
			problems = append(problems, err)
		}
	}
	if err := e.browser.Close(); err != nil {
		problems = append(problems, fmt.Errorf("close browser: %w", err))
	}
	if err := e.pw.Stop(); err != nil {
		problems = append(problems, fmt.Errorf("stop playwright: %w", err))
	}
	if len(problems) > 0 {
		return errs.Wrap(errs.Resource, "close browser engine", errors.Join(problems...))
	}
	return nil
}
