package scenario

import (
	"time"

	"github.com/kuitang/aurora-verify/internal/artifact"
	"github.com/kuitang/aurora-verify/internal/errs"
)

// Status is a scenario outcome.
type Status string

const (
	Passed Status = "passed"
	Failed Status = "failed"
)

// StepResult is what happened to one step.
type StepResult struct {
	Index    int           `json:"index"`
	Name     string        `json:"name"`
	Actor    string        `json:"actor"`
	Action   Action        `json:"action"`
	State    StepState     `json:"state"`
	History  []StepState   `json:"history,omitempty"`
	Error    string        `json:"error,omitempty"`
	Code     errs.Code     `json:"code,omitempty"`
	Duration time.Duration `json:"duration_ns"`
}

// ScenarioResult is the outcome of one scenario.
type ScenarioResult struct {
	Name        string              `json:"name"`
	Description string              `json:"description,omitempty"`
	Status      Status              `json:"status"`
	Steps       []StepResult        `json:"steps"`
	Artifacts   []artifact.Artifact `json:"artifacts,omitempty"`
	Error       string              `json:"error,omitempty"`
	Code        errs.Code           `json:"code,omitempty"`
	// FailedStep is the index of the failing step, -1 when none failed.
	FailedStep int `json:"failed_step"`
	// CleanupErrors are session close failures. They never change Status.
	CleanupErrors []string      `json:"cleanup_errors,omitempty"`
	Duration      time.Duration `json:"duration_ns"`
}

// Passed reports whether the scenario passed.
func (r ScenarioResult) Passed() bool { return r.Status == Passed }

// ArtifactsOf returns the artifacts of the given kind.
func (r ScenarioResult) ArtifactsOf(kind artifact.Kind) []artifact.Artifact {
	var out []artifact.Artifact
	for _, a := range r.Artifacts {
		if a.Kind == kind {
			out = append(out, a)
		}
	}
	return out
}

// Report is the outcome of one run.
type Report struct {
	RunID      string           `json:"run_id"`
	Target     string           `json:"target"`
	StartedAt  time.Time        `json:"started_at"`
	FinishedAt time.Time        `json:"finished_at"`
	Scenarios  []ScenarioResult `json:"scenarios"`
}

// Counts returns the number of passed and failed scenarios.
func (r *Report) Counts() (passed, failed int) {
	for _, s := range r.Scenarios {
		if s.Passed() {
			passed++
		} else {
			failed++
		}
	}
	return passed, failed
}

// ExitStatus is 0 when every scenario passed and 1 otherwise.
func (r *Report) ExitStatus() int {
	if _, failed := r.Counts(); failed > 0 {
		return errs.ExitScenarioFailed
	}
	return errs.ExitOK
}

// Artifacts returns every artifact in scenario order.
func (r *Report) Artifacts() []artifact.Artifact {
	var out []artifact.Artifact
	for _, s := range r.Scenarios {
		out = append(out, s.Artifacts...)
	}
	return out
}
