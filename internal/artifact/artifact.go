// Package artifact names, records and optionally publishes the screenshots a
// verification run produces.
package artifact

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Kind says why a screenshot was taken.
type Kind string

const (
	Success    Kind = "success"
	Checkpoint Kind = "checkpoint"
	Failure    Kind = "failure"
)

// Artifact is one screenshot file.
type Artifact struct {
	Scenario string `json:"scenario"`
	Actor    string `json:"actor"`
	Step     string `json:"step,omitempty"`
	Kind     Kind   `json:"kind"`
	Path     string `json:"path"`
	// URL is set once the file has been uploaded.
	URL string `json:"url,omitempty"`
}

// FailurePath is where the failure screenshot of actor's session goes.
func FailurePath(dir, scenario, actor string) string {
	return filepath.Join(dir, fmt.Sprintf("%s-%s-error.png", safeName(scenario), safeName(actor)))
}

// SuccessPath is the default success screenshot location of a scenario.
func SuccessPath(dir, scenario string) string {
	return filepath.Join(dir, safeName(scenario)+".png")
}

// Resolve places a relative screenshot path under dir. Leading ".."
// segments are dropped so a relative path never leaves dir. Absolute paths
// and paths that already start with dir are returned cleaned but otherwise
// unchanged.
func Resolve(dir, path string) string {
	if path == "" {
		return ""
	}
	path = filepath.Clean(path)
	if filepath.IsAbs(path) || dir == "" {
		return path
	}
	cleanDir := filepath.Clean(dir)
	if path == cleanDir || strings.HasPrefix(path, cleanDir+string(filepath.Separator)) {
		return path
	}
	// Clean leaves ".." only at the front of a relative path.
	parent := ".." + string(filepath.Separator)
	for strings.HasPrefix(path, parent) {
		path = strings.TrimPrefix(path, parent)
	}
	if path == ".." {
		path = "."
	}
	return filepath.Join(cleanDir, path)
}

// safeName keeps letters, digits, dot, dash and underscore.
func safeName(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return "unnamed"
	}
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}
