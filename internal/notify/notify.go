// Package notify emails a summary of failed scenarios after a run.
package notify

import (
	"context"
	"fmt"

	"github.com/kuitang/aurora-verify/internal/artifact"
	"github.com/kuitang/aurora-verify/internal/obs"
	"github.com/kuitang/aurora-verify/internal/scenario"
)

// Sender delivers one templated email.
type Sender interface {
	// Send sends templateName rendered with data to the recipient.
	Send(to, templateName string, data any) error
}

// TemplateRunFailed is the failure summary template.
const TemplateRunFailed = "run_failed"

// RunFailedData feeds TemplateRunFailed.
type RunFailedData struct {
	RunID     string
	Target    string
	Passed    int
	Failed    int
	ReportURL string
	Failures  []Failure
}

// Failure is one failed scenario as shown in the email.
type Failure struct {
	Scenario   string
	Step       string
	Code       string
	Error      string
	Screenshot string // URL or local path of the failure screenshot
}

// Summarize builds the failure summary for r. reportURL may be empty.
func Summarize(r *scenario.Report, reportURL string) RunFailedData {
	passed, failed := r.Counts()
	data := RunFailedData{
		RunID:     r.RunID,
		Target:    r.Target,
		Passed:    passed,
		Failed:    failed,
		ReportURL: reportURL,
	}
	for _, s := range r.Scenarios {
		if s.Passed() {
			continue
		}
		f := Failure{Scenario: s.Name, Code: string(s.Code), Error: s.Error}
		if s.FailedStep >= 0 && s.FailedStep < len(s.Steps) {
			f.Step = s.Steps[s.FailedStep].Name
		}
		for _, a := range s.ArtifactsOf(artifact.Failure) {
			f.Screenshot = a.Path
			if a.URL != "" {
				f.Screenshot = a.URL
			}
		}
		data.Failures = append(data.Failures, f)
	}
	return data
}

// NotifyFailures sends the failure summary to each recipient when r has
// failed scenarios. It reports whether anything was sent.
func NotifyFailures(ctx context.Context, s Sender, recipients []string, r *scenario.Report, reportURL string) (bool, error) {
	if _, failed := r.Counts(); failed == 0 || len(recipients) == 0 {
		return false, nil
	}
	data := Summarize(r, reportURL)
	for _, to := range recipients {
		if err := s.Send(to, TemplateRunFailed, data); err != nil {
			return false, fmt.Errorf("notify %s: %w", to, err)
		}
	}
	obs.From(ctx).Info("failure_notification_sent", "pkg", "notify",
		"recipients", len(recipients), "failed", data.Failed)
	return true, nil
}
