package errs

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"pgregory.net/rapid"
)

var allCodes = []Code{
	Launch,
	Navigation,
	Timeout,
	Assertion,
	Resource,
	InvalidArgument,
	Internal,
}

func testCodeOf_RoundtripForTypedErrors(t *rapid.T) {
	code := rapid.SampledFrom(allCodes).Draw(t, "code")
	message := rapid.StringMatching(`[a-zA-Z0-9 _:\-]{1,80}`).Draw(t, "message")

	err := New(code, message)
	if got := CodeOf(err); got != code {
		t.Fatalf("CodeOf(New) mismatch: got=%q want=%q", got, code)
	}
	if got := err.Error(); got != message {
		t.Fatalf("New(...).Error() mismatch: got=%q want=%q", got, message)
	}
	if !Is(err, code) {
		t.Fatalf("Is(%q) = false for error with that code", code)
	}
}

func TestCodeOf_RoundtripForTypedErrors(t *testing.T) {
	t.Parallel()
	rapid.Check(t, testCodeOf_RoundtripForTypedErrors)
}

func testWrap_PreservesCauseAndCode(t *rapid.T) {
	code := rapid.SampledFrom(allCodes).Draw(t, "code")
	message := rapid.StringMatching(`[a-zA-Z0-9 _:\-]{1,80}`).Draw(t, "message")
	cause := errors.New(rapid.StringMatching(`[a-zA-Z0-9 _:\-]{1,80}`).Draw(t, "cause"))

	err := Wrap(code, message, cause)
	wrapped := fmt.Errorf("step 3: %w", err)

	if got := CodeOf(wrapped); got != code {
		t.Fatalf("CodeOf(wrapped) mismatch: got=%q want=%q", got, code)
	}
	if !errors.Is(wrapped, cause) {
		t.Fatal("errors.Is should reach the original cause")
	}
	if !strings.Contains(wrapped.Error(), cause.Error()) {
		t.Fatalf("error text should include cause: %q", wrapped.Error())
	}
}

func TestWrap_PreservesCauseAndCode(t *testing.T) {
	t.Parallel()
	rapid.Check(t, testWrap_PreservesCauseAndCode)
}

func TestUntypedAndNilFallbacks(t *testing.T) {
	t.Parallel()

	raw := errors.New("socket closed")
	if got := CodeOf(raw); got != Internal {
		t.Fatalf("CodeOf(untyped) = %q, want %q", got, Internal)
	}
	if got := CodeOf(nil); got != Internal {
		t.Fatalf("CodeOf(nil) = %q, want %q", got, Internal)
	}
	if Is(nil, Internal) {
		t.Fatal("Is(nil) must be false")
	}
}

func TestExitStatus_Mapping(t *testing.T) {
	t.Parallel()
	cases := map[Code]int{
		InvalidArgument: ExitConfig,
		Launch:          ExitLaunch,
		Navigation:      ExitScenarioFailed,
		Timeout:         ExitScenarioFailed,
		Assertion:       ExitScenarioFailed,
		Resource:        ExitScenarioFailed,
		Internal:        ExitScenarioFailed,
		Code("unknown"): ExitScenarioFailed,
	}
	for code, want := range cases {
		if got := ExitStatus(code); got != want {
			t.Errorf("ExitStatus(%q) = %d, want %d", code, got, want)
		}
	}
}
