package scenario

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/kuitang/aurora-verify/internal/browser"
	"github.com/kuitang/aurora-verify/internal/errs"
)

// =============================================================================
// State machine
// =============================================================================

func TestCanTransition(t *testing.T) {
	t.Parallel()
	legal := [][2]StepState{
		{StatePending, StateWaiting},
		{StateWaiting, StateSatisfied},
		{StateSatisfied, StateExecuted},
		{StateWaiting, StateTimedOut},
		{StateTimedOut, StateFailed},
		{StatePending, StateExecuted},
		{StatePending, StateSkipped},
	}
	for _, tr := range legal {
		if !CanTransition(tr[0], tr[1]) {
			t.Errorf("%s -> %s should be legal", tr[0], tr[1])
		}
	}
	illegal := [][2]StepState{
		{StatePending, StateSatisfied},
		{StateWaiting, StateExecuted},
		{StateTimedOut, StateExecuted},
		{StateExecuted, StateFailed},
		{StateSkipped, StateExecuted},
		{StateFailed, StatePending},
	}
	for _, tr := range illegal {
		if CanTransition(tr[0], tr[1]) {
			t.Errorf("%s -> %s should be illegal", tr[0], tr[1])
		}
	}
	for _, s := range []StepState{StateExecuted, StateFailed, StateSkipped} {
		if !s.Terminal() {
			t.Errorf("%s should be terminal", s)
		}
	}
}

func TestStepTracker_PanicsOnIllegalMove(t *testing.T) {
	t.Parallel()
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic")
		}
	}()
	res := &StepResult{State: StatePending}
	stepTracker{res}.move(StateSatisfied)
}

// =============================================================================
// Vars
// =============================================================================

func TestVars_Expand(t *testing.T) {
	t.Parallel()
	v := newVars("http://app.test", testActors(), map[string]string{"group": "Test Group"})
	v.Set("join_code", "ABC123")

	got, err := v.Expand("${target}/join?code=${join_code}&by=${user2.email}&g=${group}")
	require.NoError(t, err)
	require.Equal(t, "http://app.test/join?code=ABC123&by=user2@example.com&g=Test Group", got)

	plain := `[data-testid^="group-card-"] a[href$=".png"]`
	got, err = v.Expand(plain)
	require.NoError(t, err)
	require.Equal(t, plain, got)

	_, err = v.Expand("${zeta} and ${alpha}")
	require.Error(t, err)
	require.True(t, errs.Is(err, errs.InvalidArgument))
	require.Contains(t, err.Error(), "alpha, zeta")
}

func testVars_SavedValueRoundTrips(t *rapid.T) {
	value := rapid.String().Draw(t, "value")
	v := newVars("", nil, nil)
	v.Set("code", value)
	got, err := v.Expand("${code}")
	if err != nil {
		t.Fatalf("Expand: %v", err)
	}
	if got != value {
		t.Fatalf("round trip mismatch: got %q want %q", got, value)
	}
}

func TestVars_SavedValueRoundTrips(t *testing.T) {
	t.Parallel()
	rapid.Check(t, testVars_SavedValueRoundTrips)
}

func TestVars_ExpandStepCoversLocatorChain(t *testing.T) {
	t.Parallel()
	v := newVars("", nil, map[string]string{"card": "group-card-", "title": "Chat"})
	st := Step{
		Action:  Click,
		Locator: browser.ByRole("button", "Open ${title}").In(browser.ByTestIDPrefix("${card}")),
	}
	out, err := v.expandStep(st)
	require.NoError(t, err)
	require.Equal(t, "Open Chat", out.Locator.Name)
	require.Equal(t, "group-card-", out.Locator.Within.TestIDPrefix)
	require.Equal(t, "${card}", st.Locator.Within.TestIDPrefix, "original step must not change")
}

// =============================================================================
// Validation
// =============================================================================

func TestScenarioValidate(t *testing.T) {
	t.Parallel()
	known := func(a string) bool { return a == "user1" || a == "user2" }

	good := Scenario{Name: "ok", Steps: []Step{
		{Action: Navigate, Value: "/"},
		{Action: Click, Locator: browser.ByRole("button", "Go")},
		{Action: Pause, Duration: time.Second},
	}}
	require.NoError(t, good.Validate(known))

	bad := Scenario{Steps: []Step{
		{Action: "hover"},
		{Actor: "user7", Action: Navigate},
		{Action: Fill},
		{Action: Screenshot},
		{Action: Pause},
		{Action: Navigate, Value: "/", SaveAs: "x"},
		{Action: Wait, Locator: browser.ByText("x"), Condition: "blinking"},
	}}
	err := bad.Validate(known)
	require.Error(t, err)
	require.Equal(t, errs.InvalidArgument, errs.CodeOf(err))
	for _, want := range []string{
		"name is required",
		`unknown action "hover"`,
		`unknown actor "user7"`,
		"value is required for navigate",
		"locator has no matching attribute",
		"path is required",
		"duration must be positive",
		"save_as is only valid",
		`unknown condition "blinking"`,
	} {
		require.Contains(t, err.Error(), want)
	}
}

func TestScenarioValidate_FinalActorMustRunAStep(t *testing.T) {
	t.Parallel()
	known := func(a string) bool { return a == "user1" || a == "user2" }
	steps := []Step{{Action: Navigate, Value: "/"}}

	idle := Scenario{Name: "idle", FinalActor: "user2", Steps: steps}
	err := idle.Validate(known)
	require.Error(t, err)
	require.Equal(t, errs.InvalidArgument, errs.CodeOf(err))
	require.Contains(t, err.Error(), `final actor "user2" runs no step`)

	active := Scenario{Name: "active", FinalActor: "user1", Steps: steps}
	require.NoError(t, active.Validate(known))
}

func TestScenarioActors(t *testing.T) {
	t.Parallel()
	sc := Scenario{Steps: []Step{{}, {Actor: "user2"}, {Actor: "user1"}, {Actor: "user2"}}}
	require.Equal(t, []string{"user1", "user2"}, sc.Actors())
	require.Equal(t, "user2", sc.finalActor())
	sc.FinalActor = "user1"
	require.Equal(t, "user1", sc.finalActor())
}

// =============================================================================
// YAML loading
// =============================================================================

func TestLoadFile_ListAndDocuments(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "scenarios.yaml")
	content := `scenarios:
  - name: smoke
    steps:
      - action: navigate
        value: /
        timeout: 45s
      - action: wait
        locator:
          role: heading
          name: Aurora
        condition: visible
---
name: chat
final_actor: user1
success_shot: chat.png
vars:
  msg: hello
steps:
  - action: click
    locator:
      role: button
      name: Open Chat
      within:
        test_id_prefix: group-card-
  - action: pause
    duration: 3s
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	got, err := LoadFile(path)
	require.NoError(t, err)
	require.Len(t, got, 2)

	require.Equal(t, "smoke", got[0].Name)
	require.Equal(t, 45*time.Second, got[0].Steps[0].Timeout)
	require.Equal(t, browser.Visible, got[0].Steps[1].Condition)
	require.Equal(t, "Aurora", got[0].Steps[1].Locator.Name)

	require.Equal(t, "chat", got[1].Name)
	require.Equal(t, "hello", got[1].Vars["msg"])
	require.NotNil(t, got[1].Steps[0].Locator.Within)
	require.Equal(t, "group-card-", got[1].Steps[0].Locator.Within.TestIDPrefix)
	require.Equal(t, 3*time.Second, got[1].Steps[1].Duration)
}

func TestLoadFile_Errors(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	require.Equal(t, errs.InvalidArgument, errs.CodeOf(err))

	_, err = Parse([]byte("scenarios: []\n"))
	require.Error(t, err)

	_, err = Parse([]byte("name: x\nsteps: [\n"))
	require.Error(t, err)
	require.True(t, strings.Contains(err.Error(), "document 1"), err.Error())
}
