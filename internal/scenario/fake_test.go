package scenario

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/kuitang/aurora-verify/internal/browser"
	"github.com/kuitang/aurora-verify/internal/config"
	"github.com/kuitang/aurora-verify/internal/errs"
)

// =============================================================================
// Fake session: a page reduced to a set of visible elements and their text
// =============================================================================

type fakeSession struct {
	actor string

	mu          sync.Mutex
	visible     map[string]bool
	disabled    map[string]bool
	texts       map[string]string
	fills       map[string]string
	fillHints   map[string][]string
	url         string
	title       string
	calls       []string
	screenshots []string
	closed      bool
	closeErr    error
	// block makes Click on the listed locators hang until ctx is done.
	block   map[string]bool
	onClick map[string]func(s *fakeSession)
}

func newFakeSession(actor string) *fakeSession {
	return &fakeSession{
		actor:     actor,
		visible:   make(map[string]bool),
		disabled:  make(map[string]bool),
		texts:     make(map[string]string),
		fills:     make(map[string]string),
		fillHints: make(map[string][]string),
		block:     make(map[string]bool),
		onClick:   make(map[string]func(*fakeSession)),
	}
}

func (s *fakeSession) show(loc browser.Locator, text string) {
	s.visible[loc.String()] = true
	if text != "" {
		s.texts[loc.String()] = text
	}
}

func (s *fakeSession) record(format string, args ...any) {
	s.calls = append(s.calls, fmt.Sprintf(format, args...))
}

func (s *fakeSession) Navigate(ctx context.Context, url string, timeout time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("navigate %s", url)
	s.url = url
	return nil
}

func (s *fakeSession) WaitFor(ctx context.Context, loc browser.Locator, cond browser.Condition, timeout time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("wait %s %s", loc, cond)
	if err := ctx.Err(); err != nil {
		return errs.Wrap(errs.Timeout, "wait", err)
	}
	key := loc.String()
	switch cond {
	case browser.Hidden:
		if !s.visible[key] {
			return nil
		}
	case browser.Enabled:
		if s.visible[key] && !s.disabled[key] {
			return nil
		}
	default:
		if s.visible[key] {
			return nil
		}
	}
	return errs.New(errs.Timeout, fmt.Sprintf("wait for %s to be %s", key, cond))
}

func (s *fakeSession) Fill(ctx context.Context, loc browser.Locator, text string, hints ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("fill %s=%s", loc, text)
	s.fills[loc.String()] = text
	s.fillHints[loc.String()] = hints
	return nil
}

func (s *fakeSession) Click(ctx context.Context, loc browser.Locator) error {
	s.mu.Lock()
	key := loc.String()
	s.record("click %s", key)
	blocked := s.block[key]
	hook := s.onClick[key]
	s.mu.Unlock()

	if blocked {
		<-ctx.Done()
		return ctx.Err()
	}
	if hook != nil {
		s.mu.Lock()
		hook(s)
		s.mu.Unlock()
	}
	return nil
}

func (s *fakeSession) AssertText(ctx context.Context, loc browser.Locator, substring string, timeout time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("assert_text %s %s", loc, substring)
	if !strings.Contains(s.texts[loc.String()], substring) {
		return errs.New(errs.Assertion, fmt.Sprintf("%s does not contain %q", loc, substring))
	}
	return nil
}

func (s *fakeSession) AssertURL(ctx context.Context, url string, timeout time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("assert_url %s", url)
	if s.url != url {
		return errs.New(errs.Assertion, fmt.Sprintf("url is %s, want %s", s.url, url))
	}
	return nil
}

func (s *fakeSession) AssertTitle(ctx context.Context, title string, timeout time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("assert_title %s", title)
	if s.title != title {
		return errs.New(errs.Assertion, fmt.Sprintf("title is %q, want %q", s.title, title))
	}
	return nil
}

func (s *fakeSession) ReadText(ctx context.Context, loc browser.Locator, timeout time.Duration) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("read_text %s", loc)
	return s.texts[loc.String()], nil
}

func (s *fakeSession) Screenshot(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.screenshots = append(s.screenshots, path)
	return nil
}

func (s *fakeSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return s.closeErr
}

// =============================================================================
// Fake browser: hands out sessions and remembers them
// =============================================================================

type fakeBrowser struct {
	mu        sync.Mutex
	viewports []browser.Viewport
	setup     func(s *fakeSession)
	openErr   map[string]error
	sessions  []*fakeSession
}

func (b *fakeBrowser) opener() Opener {
	return func(ctx context.Context, actor string, viewport browser.Viewport) (Session, error) {
		b.mu.Lock()
		defer b.mu.Unlock()
		b.viewports = append(b.viewports, viewport)
		if err := b.openErr[actor]; err != nil {
			return nil, err
		}
		s := newFakeSession(actor)
		if b.setup != nil {
			b.setup(s)
		}
		b.sessions = append(b.sessions, s)
		return s, nil
	}
}

func (b *fakeBrowser) all() []*fakeSession {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]*fakeSession(nil), b.sessions...)
}

func (b *fakeBrowser) allClosed() bool {
	for _, s := range b.all() {
		s.mu.Lock()
		closed := s.closed
		s.mu.Unlock()
		if !closed {
			return false
		}
	}
	return true
}

func (b *fakeBrowser) screenshotCount() int {
	n := 0
	for _, s := range b.all() {
		s.mu.Lock()
		n += len(s.screenshots)
		s.mu.Unlock()
	}
	return n
}

func testActors() map[string]config.Actor {
	return map[string]config.Actor{
		"user1": {Key: "user1", Email: "user1@example.com", Password: "password", Name: "User One"},
		"user2": {Key: "user2", Email: "user2@example.com", Password: "password", Name: "User Two"},
	}
}

func testRunner(b *fakeBrowser, dir string) *Runner {
	return NewRunner(b.opener(), Options{
		TargetURL:         "http://127.0.0.1:8080",
		Actors:            testActors(),
		DefaultTimeout:    time.Second,
		NavigationTimeout: 2 * time.Second,
		ArtifactDir:       dir,
	})
}
