package browser

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/playwright-community/playwright-go"

	"github.com/kuitang/aurora-verify/internal/errs"
	"github.com/kuitang/aurora-verify/internal/logutil"
	"github.com/kuitang/aurora-verify/internal/obs"
	"github.com/kuitang/aurora-verify/internal/ratelimit"
	"github.com/kuitang/aurora-verify/internal/urlutil"
)

const contentPreviewChars = 500

// Session is one actor's isolated browser context and page.
type Session struct {
	actor   string
	context playwright.BrowserContext
	page    playwright.Page
	pacer   *ratelimit.Pacer
	expect  playwright.PlaywrightAssertions
	engine  *Engine

	closeOnce sync.Once
	closeErr  error
}

// Actor returns the actor key the session was opened for.
func (s *Session) Actor() string { return s.actor }

// URL returns the page's current URL.
func (s *Session) URL() string { return s.page.URL() }

// Navigate loads url and waits for DOMContentLoaded.
func (s *Session) Navigate(ctx context.Context, url string, timeout time.Duration) error {
	ms, err := budgetMillis(ctx, timeout)
	if err != nil {
		return errs.Wrap(errs.Navigation, fmt.Sprintf("navigate to %s", url), err)
	}
	if err := s.pacer.Wait(ctx, s.actor); err != nil {
		return errs.Wrap(errs.Navigation, fmt.Sprintf("navigate to %s", url), err)
	}

	start := time.Now()
	resp, err := s.page.Goto(url, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
		Timeout:   timeoutOption(ms),
	})
	if err != nil {
		return errs.Wrap(errs.Navigation, fmt.Sprintf("navigate to %s", url), err)
	}
	status := 0
	if resp != nil {
		status = resp.Status()
	}
	obs.From(ctx).Debug("navigated", "pkg", "browser", "url", url, "status", status, "dur_ms", time.Since(start).Milliseconds())
	return nil
}

// WaitFor blocks until the first element matched by loc satisfies cond or
// the timeout elapses. It is the only polling primitive; every other
// operation acts once.
func (s *Session) WaitFor(ctx context.Context, loc Locator, cond Condition, timeout time.Duration) error {
	if !cond.Valid() {
		return errs.New(errs.InvalidArgument, fmt.Sprintf("unknown condition %q", cond))
	}
	if err := loc.Validate(); err != nil {
		return errs.Wrap(errs.InvalidArgument, "wait", err)
	}
	ms, err := budgetMillis(ctx, timeout)
	if err != nil {
		return errs.Wrap(errs.Timeout, fmt.Sprintf("wait for %s to be %s", loc, cond), err)
	}
	deadline := time.Now().Add(time.Duration(ms) * time.Millisecond)

	target := resolve(s.page, loc)
	switch cond {
	case Visible, Hidden:
		state := playwright.WaitForSelectorStateVisible
		if cond == Hidden {
			state = playwright.WaitForSelectorStateHidden
		}
		err = target.WaitFor(playwright.LocatorWaitForOptions{State: state, Timeout: timeoutOption(ms)})
	case Enabled:
		err = target.WaitFor(playwright.LocatorWaitForOptions{
			State:   playwright.WaitForSelectorStateVisible,
			Timeout: timeoutOption(ms),
		})
		if err == nil {
			var remaining *float64
			if ms > 0 {
				remaining = playwright.Float(remainingMillis(ctx, deadline))
			}
			err = s.expect.Locator(target).ToBeEnabled(playwright.LocatorAssertionsToBeEnabledOptions{
				Timeout: remaining,
			})
		}
	}
	if err != nil {
		s.logPageState(ctx, fmt.Sprintf("wait for %s to be %s", loc, cond))
		return errs.Wrap(errs.Timeout, fmt.Sprintf("wait for %s to be %s", loc, cond), err)
	}
	return nil
}

// Fill sets the value of the first element matched by loc. The caller is
// expected to have waited for it to be visible. hints name where the text
// came from, such as a variable name, and join the locator's own hints
// when deciding whether to redact it from logs.
func (s *Session) Fill(ctx context.Context, loc Locator, text string, hints ...string) error {
	if err := s.pacer.Wait(ctx, s.actor); err != nil {
		return errs.Wrap(errs.Timeout, fmt.Sprintf("fill %s", loc), err)
	}
	ms, err := budgetMillis(ctx, 0)
	if err != nil {
		return errs.Wrap(errs.Timeout, fmt.Sprintf("fill %s", loc), err)
	}
	opts := playwright.LocatorFillOptions{Timeout: timeoutOption(ms)}
	if err := resolve(s.page, loc).Fill(text, opts); err != nil {
		return classify(err, errs.Internal, fmt.Sprintf("fill %s", loc))
	}
	obs.From(ctx).Debug("filled", "pkg", "browser", "locator", loc.String(),
		"value", logutil.RedactFillValue(text, append(loc.Hints(), hints...)...))
	return nil
}

// Click clicks the first element matched by loc. Effects of the click are
// not awaited; follow it with WaitFor.
func (s *Session) Click(ctx context.Context, loc Locator) error {
	if err := s.pacer.Wait(ctx, s.actor); err != nil {
		return errs.Wrap(errs.Timeout, fmt.Sprintf("click %s", loc), err)
	}
	ms, err := budgetMillis(ctx, 0)
	if err != nil {
		return errs.Wrap(errs.Timeout, fmt.Sprintf("click %s", loc), err)
	}
	opts := playwright.LocatorClickOptions{Timeout: timeoutOption(ms)}
	if err := resolve(s.page, loc).Click(opts); err != nil {
		return classify(err, errs.Internal, fmt.Sprintf("click %s", loc))
	}
	obs.From(ctx).Debug("clicked", "pkg", "browser", "locator", loc.String())
	return nil
}

// AssertText fails unless the first element matched by loc contains
// substring within timeout.
func (s *Session) AssertText(ctx context.Context, loc Locator, substring string, timeout time.Duration) error {
	ms, err := budgetMillis(ctx, timeout)
	if err != nil {
		return errs.Wrap(errs.Assertion, fmt.Sprintf("expect %s to contain %q", loc, substring), err)
	}
	err = s.expect.Locator(resolve(s.page, loc)).ToContainText(substring, playwright.LocatorAssertionsToContainTextOptions{
		Timeout: timeoutOption(ms),
	})
	if err != nil {
		s.logPageState(ctx, fmt.Sprintf("expect %s to contain %q", loc, substring))
		return errs.Wrap(errs.Assertion, fmt.Sprintf("expect %s to contain %q", loc, substring), err)
	}
	return nil
}

// AssertURL fails unless the page URL matches want within timeout. Trailing
// slashes, fragments and host case are ignored.
func (s *Session) AssertURL(ctx context.Context, want string, timeout time.Duration) error {
	ms, err := budgetMillis(ctx, timeout)
	if err != nil {
		return errs.Wrap(errs.Assertion, fmt.Sprintf("expect url %s", want), err)
	}
	err = s.page.WaitForURL(func(current string) bool {
		return urlutil.SameURL(current, want)
	}, playwright.PageWaitForURLOptions{
		Timeout:   timeoutOption(ms),
		WaitUntil: playwright.WaitUntilStateCommit,
	})
	if err != nil {
		return errs.Wrap(errs.Assertion, fmt.Sprintf("expect url %s, got %s", want, s.page.URL()), err)
	}
	return nil
}

// AssertTitle fails unless the page title equals want within timeout.
func (s *Session) AssertTitle(ctx context.Context, want string, timeout time.Duration) error {
	ms, err := budgetMillis(ctx, timeout)
	if err != nil {
		return errs.Wrap(errs.Assertion, fmt.Sprintf("expect title %q", want), err)
	}
	err = s.expect.Page(s.page).ToHaveTitle(want, playwright.PageAssertionsToHaveTitleOptions{
		Timeout: timeoutOption(ms),
	})
	if err != nil {
		title, _ := s.page.Title()
		return errs.Wrap(errs.Assertion, fmt.Sprintf("expect title %q, got %q", want, title), err)
	}
	return nil
}

// ReadText waits for the first element matched by loc to be visible and
// returns its inner text.
func (s *Session) ReadText(ctx context.Context, loc Locator, timeout time.Duration) (string, error) {
	if err := s.WaitFor(ctx, loc, Visible, timeout); err != nil {
		return "", err
	}
	ms, err := budgetMillis(ctx, timeout)
	if err != nil {
		return "", errs.Wrap(errs.Timeout, fmt.Sprintf("read %s", loc), err)
	}
	text, err := resolve(s.page, loc).InnerText(playwright.LocatorInnerTextOptions{Timeout: timeoutOption(ms)})
	if err != nil {
		return "", classify(err, errs.Internal, fmt.Sprintf("read %s", loc))
	}
	return text, nil
}

// Screenshot writes a full-page PNG to path, creating parent directories.
func (s *Session) Screenshot(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return errs.Wrap(errs.Resource, "create screenshot directory", err)
		}
	}
	if _, err := s.page.Screenshot(playwright.PageScreenshotOptions{
		Path:     playwright.String(path),
		FullPage: playwright.Bool(true),
	}); err != nil {
		return errs.Wrap(errs.Resource, fmt.Sprintf("screenshot %s", path), err)
	}
	return nil
}

// Close closes the session's browser context. Later calls return the first
// result.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		if err := s.context.Close(); err != nil {
			s.closeErr = errs.Wrap(errs.Resource, fmt.Sprintf("close session %s", s.actor), err)
		}
		if s.engine != nil {
			s.engine.forget(s)
		}
	})
	return s.closeErr
}

// logPageState records where the page was when a wait or assertion gave up.
func (s *Session) logPageState(ctx context.Context, what string) {
	title, _ := s.page.Title()
	content, _ := s.page.Content()
	obs.From(ctx).Warn("page_state_on_failure",
		"pkg", "browser",
		"what", what,
		"url", s.page.URL(),
		"title", title,
		"content_preview", logutil.TruncateForLog(content, contentPreviewChars),
	)
}

// budgetMillis returns the timeout in milliseconds, clamped to the time
// left on ctx. A zero timeout means "whatever ctx allows", which is 0 when
// ctx has no deadline; see timeoutOption.
func budgetMillis(ctx context.Context, timeout time.Duration) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	effective := timeout
	if deadline, ok := ctx.Deadline(); ok {
		left := time.Until(deadline)
		if left <= 0 {
			return 0, context.DeadlineExceeded
		}
		if effective <= 0 || left < effective {
			effective = left
		}
	}
	if effective <= 0 {
		return 0, nil
	}
	ms := float64(effective.Milliseconds())
	if ms < 1 {
		ms = 1
	}
	return ms, nil
}

// timeoutOption turns a budget into a Playwright timeout. Zero leaves the
// option unset so the browser context default applies; Playwright reads an
// explicit 0 as no timeout at all.
func timeoutOption(ms float64) *float64 {
	if ms <= 0 {
		return nil
	}
	return playwright.Float(ms)
}

func remainingMillis(ctx context.Context, deadline time.Time) float64 {
	left := time.Until(deadline)
	if d, ok := ctx.Deadline(); ok && time.Until(d) < left {
		left = time.Until(d)
	}
	if left < time.Millisecond {
		return 1
	}
	return float64(left.Milliseconds())
}

func classify(err error, fallback errs.Code, message string) error {
	switch {
	case errors.Is(err, playwright.ErrTimeout):
		return errs.Wrap(errs.Timeout, message, err)
	case errors.Is(err, playwright.ErrTargetClosed):
		return errs.Wrap(errs.Resource, message, err)
	default:
		return errs.Wrap(fallback, message, err)
	}
}
