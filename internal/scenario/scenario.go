// Package scenario sequences multi-actor browser steps against a target
// application and captures screenshots for review.
//
// A Scenario is an ordered list of Steps. Each step names the actor whose
// session it runs in; sessions are opened lazily and always closed. Steps
// that act on an element are preceded by an explicit wait on the element's
// precondition, so a scenario never advances past an unmet precondition.
package scenario

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/kuitang/aurora-verify/internal/browser"
	"github.com/kuitang/aurora-verify/internal/errs"
)

// DefaultActor runs steps that do not name an actor.
const DefaultActor = "user1"

// Action is what a step does.
type Action string

const (
	Navigate    Action = "navigate"
	Wait        Action = "wait"
	Fill        Action = "fill"
	Click       Action = "click"
	AssertText  Action = "assert_text"
	AssertURL   Action = "assert_url"
	AssertTitle Action = "assert_title"
	ReadText    Action = "read_text"
	Screenshot  Action = "screenshot"
	Pause       Action = "pause"
)

// Step is one action in one actor's session.
type Step struct {
	Name      string            `yaml:"name,omitempty" json:"name,omitempty"`
	Actor     string            `yaml:"actor,omitempty" json:"actor,omitempty"`
	Action    Action            `yaml:"action" json:"action"`
	Locator   browser.Locator   `yaml:"locator,omitempty" json:"locator,omitempty"`
	Condition browser.Condition `yaml:"condition,omitempty" json:"condition,omitempty"`
	// Value is the URL or path for navigate, the text for fill, the
	// expected text for the assertions.
	Value string `yaml:"value,omitempty" json:"value,omitempty"`
	// SaveAs stores the text read by read_text in the scenario's vars.
	SaveAs string `yaml:"save_as,omitempty" json:"save_as,omitempty"`
	// Path is the screenshot location for screenshot steps.
	Path string `yaml:"path,omitempty" json:"path,omitempty"`
	// Timeout bounds the step's wait; zero uses the runner default.
	Timeout time.Duration `yaml:"timeout,omitempty" json:"timeout,omitempty"`
	// Duration is how long a pause step sleeps.
	Duration time.Duration `yaml:"duration,omitempty" json:"duration,omitempty"`
}

// Scenario is an ordered script of steps verifying one user-facing flow.
type Scenario struct {
	Name        string            `yaml:"name" json:"name"`
	Description string            `yaml:"description,omitempty" json:"description,omitempty"`
	Vars        map[string]string `yaml:"vars,omitempty" json:"vars,omitempty"`
	Steps       []Step            `yaml:"steps" json:"steps"`
	// FinalActor is the session captured by the success screenshot; the
	// last step's actor when empty.
	FinalActor string `yaml:"final_actor,omitempty" json:"final_actor,omitempty"`
	// SuccessShot is the success screenshot path; "<name>.png" when empty.
	SuccessShot string `yaml:"success_shot,omitempty" json:"success_shot,omitempty"`
	// Viewport overrides the browser's default page size for every session
	// of the scenario.
	Viewport browser.Viewport `yaml:"viewport,omitempty" json:"viewport,omitempty"`
}

// Session is one actor's isolated browser context, as seen by the runner.
// *browser.Session implements it.
type Session interface {
	Navigate(ctx context.Context, url string, timeout time.Duration) error
	WaitFor(ctx context.Context, loc browser.Locator, cond browser.Condition, timeout time.Duration) error
	Fill(ctx context.Context, loc browser.Locator, text string, hints ...string) error
	Click(ctx context.Context, loc browser.Locator) error
	AssertText(ctx context.Context, loc browser.Locator, substring string, timeout time.Duration) error
	AssertURL(ctx context.Context, url string, timeout time.Duration) error
	AssertTitle(ctx context.Context, title string, timeout time.Duration) error
	ReadText(ctx context.Context, loc browser.Locator, timeout time.Duration) (string, error)
	Screenshot(path string) error
	Close() error
}

// Opener opens a fresh isolated session for actor. A zero viewport keeps
// the browser default.
type Opener func(ctx context.Context, actor string, viewport browser.Viewport) (Session, error)

// EngineOpener adapts a browser engine to an Opener.
func EngineOpener(e *browser.Engine) Opener {
	return func(ctx context.Context, actor string, viewport browser.Viewport) (Session, error) {
		s, err := e.NewSession(ctx, actor, viewport)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
}

func (s Step) actor() string {
	if s.Actor == "" {
		return DefaultActor
	}
	return s.Actor
}

// precondition returns the condition the runner waits for before running
// the step, and false when the step has none.
func (s Step) precondition() (browser.Condition, bool) {
	switch s.Action {
	case Wait:
		if s.Condition == "" {
			return browser.Visible, true
		}
		return s.Condition, true
	case Fill, ReadText:
		return browser.Visible, true
	case Click:
		return browser.Enabled, true
	default:
		return "", false
	}
}

func (s Step) label(index int) string {
	if s.Name != "" {
		return s.Name
	}
	return fmt.Sprintf("%d-%s", index+1, s.Action)
}

func (s Step) needsLocator() bool {
	switch s.Action {
	case Wait, Fill, Click, AssertText, ReadText:
		return true
	default:
		return false
	}
}

// Validate checks the scenario's structure. Actors are checked against
// known when it is non-nil.
func (sc Scenario) Validate(known func(actor string) bool) error {
	var problems []string
	if strings.TrimSpace(sc.Name) == "" {
		problems = append(problems, "name is required")
	}
	if len(sc.Steps) == 0 {
		problems = append(problems, "at least one step is required")
	}
	for i, st := range sc.Steps {
		where := fmt.Sprintf("step %s", st.label(i))
		if known != nil && !known(st.actor()) {
			problems = append(problems, fmt.Sprintf("%s: unknown actor %q", where, st.actor()))
		}
		switch st.Action {
		case Navigate, AssertURL, AssertTitle, AssertText:
			if st.Value == "" {
				problems = append(problems, fmt.Sprintf("%s: value is required for %s", where, st.Action))
			}
		case Wait:
			if st.Condition != "" && !st.Condition.Valid() {
				problems = append(problems, fmt.Sprintf("%s: unknown condition %q", where, st.Condition))
			}
		case Screenshot:
			if st.Path == "" {
				problems = append(problems, fmt.Sprintf("%s: path is required for screenshot", where))
			}
		case Pause:
			if st.Duration <= 0 {
				problems = append(problems, fmt.Sprintf("%s: duration must be positive", where))
			}
		case Fill, Click, ReadText:
		default:
			problems = append(problems, fmt.Sprintf("%s: unknown action %q", where, st.Action))
		}
		if st.needsLocator() {
			if err := st.Locator.Validate(); err != nil {
				problems = append(problems, fmt.Sprintf("%s: %v", where, err))
			}
		}
		if st.SaveAs != "" && st.Action != ReadText {
			problems = append(problems, fmt.Sprintf("%s: save_as is only valid for read_text", where))
		}
		if st.Timeout < 0 {
			problems = append(problems, fmt.Sprintf("%s: timeout must not be negative", where))
		}
	}
	if sc.FinalActor != "" {
		if known != nil && !known(sc.FinalActor) {
			problems = append(problems, fmt.Sprintf("unknown final actor %q", sc.FinalActor))
		} else if len(sc.Steps) > 0 && !slices.Contains(sc.Actors(), sc.FinalActor) {
			problems = append(problems, fmt.Sprintf("final actor %q runs no step, so no session exists to capture", sc.FinalActor))
		}
	}
	if len(problems) > 0 {
		return errs.New(errs.InvalidArgument, fmt.Sprintf("scenario %q: %s", sc.Name, strings.Join(problems, "; ")))
	}
	return nil
}

// Actors returns the distinct actors in first-use order.
func (sc Scenario) Actors() []string {
	seen := make(map[string]bool)
	var out []string
	for _, st := range sc.Steps {
		a := st.actor()
		if !seen[a] {
			seen[a] = true
			out = append(out, a)
		}
	}
	return out
}

func (sc Scenario) finalActor() string {
	if sc.FinalActor != "" {
		return sc.FinalActor
	}
	if len(sc.Steps) == 0 {
		return DefaultActor
	}
	return sc.Steps[len(sc.Steps)-1].actor()
}
