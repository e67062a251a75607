package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/kuitang/aurora-verify/internal/errs"
)

func runCLI(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	t.Setenv("AURORA_TARGET_URL", "http://127.0.0.1:8080")
	t.Setenv("ARTIFACT_DIR", t.TempDir())
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func writeScenarios(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "scenarios.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestRun_ListsBuiltins(t *testing.T) {
	code, out, _ := runCLI(t, "-list")
	if code != errs.ExitOK {
		t.Fatalf("exit = %d", code)
	}
	for _, name := range []string{"notification", "join", "layout", "task-notification", "username-display"} {
		if !strings.Contains(out, name) {
			t.Errorf("listing is missing %s:\n%s", name, out)
		}
	}
}

func TestRun_ListIncludesFileScenarios(t *testing.T) {
	path := writeScenarios(t, `
name: smoke
description: Home page loads
steps:
  - action: navigate
    value: /
`)
	code, out, _ := runCLI(t, "-list", "-scenarios-file", path)
	if code != errs.ExitOK {
		t.Fatalf("exit = %d", code)
	}
	if !strings.Contains(out, "smoke") || !strings.Contains(out, "Home page loads") {
		t.Fatalf("file scenario not listed:\n%s", out)
	}
}

func TestRun_ConfigErrorsExitTwo(t *testing.T) {
	tests := []struct {
		name string
		args []string
		env  map[string]string
		want string
	}{
		{name: "bad flag", args: []string{"-bogus"}, want: "bogus"},
		{name: "bad target", args: []string{"-target", "ftp://nowhere"}, want: "AURORA_TARGET_URL"},
		{name: "unknown scenario", args: []string{"-scenario", "nope"}, want: "nope"},
		{name: "bad viewport", env: map[string]string{"VIEWPORT": "wide"}, want: "VIEWPORT"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			code, _, stderr := runCLI(t, tt.args...)
			if code != errs.ExitConfig {
				t.Fatalf("exit = %d, want %d (stderr: %s)", code, errs.ExitConfig, stderr)
			}
			if !strings.Contains(stderr, tt.want) {
				t.Fatalf("stderr should mention %q: %s", tt.want, stderr)
			}
		})
	}
}

func TestRun_InvalidScenarioFileExitsTwo(t *testing.T) {
	path := writeScenarios(t, `
name: broken
steps:
  - action: click
    actor: user9
`)
	code, _, stderr := runCLI(t, "-scenarios-file", path, "-scenario", "broken")
	if code != errs.ExitConfig {
		t.Fatalf("exit = %d", code)
	}
	for _, want := range []string{`unknown actor "user9"`, "locator"} {
		if !strings.Contains(stderr, want) {
			t.Errorf("stderr should mention %q: %s", want, stderr)
		}
	}

	code, _, _ = runCLI(t, "-scenarios-file", filepath.Join(t.TempDir(), "missing.yaml"))
	if code != errs.ExitConfig {
		t.Fatalf("missing scenarios file: exit = %d", code)
	}
}

func TestExitFor_MapsCodes(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{errs.Wrap(errs.InvalidArgument, "configuration", errors.New("bad")), errs.ExitConfig},
		{errs.Wrap(errs.Launch, "launch chromium", errors.New("no binary")), errs.ExitLaunch},
		{errors.Join(errs.New(errs.InvalidArgument, "scenario a"), errs.New(errs.InvalidArgument, "scenario b")), errs.ExitConfig},
		{fmt.Errorf("outer: %w", errs.New(errs.Launch, "driver")), errs.ExitLaunch},
	}
	for _, tt := range tests {
		var stderr bytes.Buffer
		if got := exitFor(&stderr, tt.err); got != tt.want {
			t.Errorf("exitFor(%v) = %d, want %d", tt.err, got, tt.want)
		}
		if !strings.Contains(stderr.String(), tt.err.Error()) {
			t.Errorf("stderr should carry the error: %q", stderr.String())
		}
	}
}
