package browser

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/playwright-community/playwright-go"
	"pgregory.net/rapid"

	"github.com/kuitang/aurora-verify/internal/errs"
)

func TestLocator_String(t *testing.T) {
	t.Parallel()
	tests := []struct {
		loc  Locator
		want string
	}{
		{ByID("#auth-email"), "#auth-email"},
		{ByID("auth-email"), "#auth-email"},
		{ByRole("button", "Join Group"), `role=button[name="Join Group"]`},
		{ByRole("heading", ""), "role=heading"},
		{ByPlaceholder("Group name"), `placeholder="Group name"`},
		{ByLabel("Email"), `label="Email"`},
		{ByText("Invalid join code"), `text="Invalid join code"`},
		{ByCSS("code", ""), "code"},
		{ByCSS(".card", "Overdue Task!"), `.card:has-text("Overdue Task!")`},
		{ByTestIDPrefix("group-card-"), `[data-testid^="group-card-"]`},
		{Locator{TestID: "toast"}, `[data-testid="toast"]`},
		{Locator{}, "<empty>"},
		{
			ByRole("button", "Open Chat").In(ByTestIDPrefix("group-card-")),
			`[data-testid^="group-card-"] >> role=button[name="Open Chat"]`,
		},
	}
	for _, tt := range tests {
		if got := tt.loc.String(); got != tt.want {
			t.Errorf("String() = %s, want %s", got, tt.want)
		}
	}
}

func TestLocator_StringPrefersMostSpecific(t *testing.T) {
	t.Parallel()
	l := Locator{ID: "x", CSS: "div", Role: "button", Text: "hi"}
	if got := l.String(); got != "#x" {
		t.Fatalf("String() = %s", got)
	}
	l.ID = ""
	if got := l.String(); got != "div" {
		t.Fatalf("String() = %s", got)
	}
}

func TestLocator_Validate(t *testing.T) {
	t.Parallel()
	if err := (Locator{}).Validate(); err == nil {
		t.Fatal("empty locator should be invalid")
	}
	if err := ByText("ok").Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// Name alone selects nothing.
	if err := (Locator{Name: "Submit"}).Validate(); err == nil {
		t.Fatal("name without role should be invalid")
	}
	bad := ByText("child").In(Locator{})
	err := bad.Validate()
	if err == nil || !strings.Contains(err.Error(), "within") {
		t.Fatalf("expected within error, got %v", err)
	}
}

func TestLocator_InDoesNotAlias(t *testing.T) {
	t.Parallel()
	parent := ByTestIDPrefix("group-card-")
	child := ByRole("button", "Open Chat").In(parent)
	parent.TestIDPrefix = "changed-"
	if child.Within.TestIDPrefix != "group-card-" {
		t.Fatal("In must copy the parent")
	}
}

func testLocator_MapReachesEveryLevel(t *rapid.T) {
	depth := rapid.IntRange(0, 4).Draw(t, "depth")
	text := rapid.StringMatching(`[a-z]{1,8}`).Draw(t, "text")

	loc := ByText(text)
	for i := 0; i < depth; i++ {
		loc = ByCSS("div", text).In(loc)
	}
	orig := loc.String()

	mapped := loc.Map(strings.ToUpper)
	if loc.String() != orig {
		t.Fatalf("Map modified its receiver: %s -> %s", orig, loc.String())
	}
	levels := 0
	for l := &mapped; l != nil; l = l.Within {
		levels++
		if l.Text != "" && l.Text != strings.ToUpper(text) {
			t.Fatalf("text not mapped: %q", l.Text)
		}
		if l.HasText != "" && l.HasText != strings.ToUpper(text) {
			t.Fatalf("has_text not mapped: %q", l.HasText)
		}
	}
	if levels != depth+1 {
		t.Fatalf("levels = %d, want %d", levels, depth+1)
	}
}

func TestLocator_MapReachesEveryLevel(t *testing.T) {
	rapid.Check(t, testLocator_MapReachesEveryLevel)
}

func TestCondition_Valid(t *testing.T) {
	t.Parallel()
	for _, c := range []Condition{Visible, Hidden, Enabled} {
		if !c.Valid() {
			t.Errorf("%s should be valid", c)
		}
	}
	if Condition("attached").Valid() {
		t.Error("attached is not a supported condition")
	}
}

func TestViewport_IsSet(t *testing.T) {
	t.Parallel()
	if (Viewport{}).IsSet() || (Viewport{Width: 10}).IsSet() {
		t.Fatal("partial viewport should not count as set")
	}
	if !(Viewport{Width: 1920, Height: 1080}).IsSet() {
		t.Fatal("full viewport should be set")
	}
}

func TestBudgetMillis(t *testing.T) {
	t.Parallel()

	ms, err := budgetMillis(context.Background(), 2*time.Second)
	if err != nil || ms != 2000 {
		t.Fatalf("no deadline: got %v %v", ms, err)
	}

	ms, err = budgetMillis(context.Background(), 0)
	if err != nil || ms != 0 {
		t.Fatalf("zero timeout without deadline should defer to Playwright: got %v %v", ms, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	ms, err = budgetMillis(ctx, 10*time.Second)
	if err != nil || ms <= 0 || ms > 500 {
		t.Fatalf("deadline should clamp: got %v %v", ms, err)
	}

	done, cancelDone := context.WithCancel(context.Background())
	cancelDone()
	if _, err := budgetMillis(done, time.Second); !errors.Is(err, context.Canceled) {
		t.Fatalf("cancelled ctx: got %v", err)
	}
}

func TestTimeoutOption_ZeroDefersToContextDefault(t *testing.T) {
	t.Parallel()
	if got := timeoutOption(0); got != nil {
		t.Fatalf("zero budget must leave the timeout unset, got %v", *got)
	}
	if got := timeoutOption(-5); got != nil {
		t.Fatalf("negative budget must leave the timeout unset, got %v", *got)
	}
	got := timeoutOption(1500)
	if got == nil || *got != 1500 {
		t.Fatalf("timeoutOption(1500) = %v", got)
	}
}

func TestClassify(t *testing.T) {
	t.Parallel()
	tests := []struct {
		err  error
		want errs.Code
	}{
		{playwright.ErrTimeout, errs.Timeout},
		{playwright.ErrTargetClosed, errs.Resource},
		{errors.New("boom"), errs.Assertion},
	}
	for _, tt := range tests {
		got := classify(tt.err, errs.Assertion, "check")
		if errs.CodeOf(got) != tt.want {
			t.Errorf("classify(%v) code = %s, want %s", tt.err, errs.CodeOf(got), tt.want)
		}
		if !errors.Is(got, tt.err) {
			t.Errorf("classify(%v) lost its cause", tt.err)
		}
	}
}
