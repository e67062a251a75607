// Package report turns a run report into the files a reviewer reads: a
// JSON record, a console summary table, and a screenshot gallery in
// Markdown and sanitized HTML.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gomarkdown/markdown"
	mdhtml "github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/microcosm-cc/bluemonday"

	"github.com/kuitang/aurora-verify/internal/artifact"
	"github.com/kuitang/aurora-verify/internal/errs"
	"github.com/kuitang/aurora-verify/internal/scenario"
)

// File names written by Write.
const (
	JSONFile     = "report.json"
	MarkdownFile = "report.md"
	HTMLFile     = "report.html"
)

const errorColumnWidth = 60

// Files are the paths Write produced.
type Files struct {
	JSON     string
	Markdown string
	HTML     string
}

// Write writes the JSON report and the gallery into dir.
func Write(dir string, r *scenario.Report) (Files, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Files{}, errs.Wrap(errs.Resource, "create report directory", err)
	}
	files := Files{
		JSON:     filepath.Join(dir, JSONFile),
		Markdown: filepath.Join(dir, MarkdownFile),
		HTML:     filepath.Join(dir, HTMLFile),
	}

	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return Files{}, errs.Wrap(errs.Internal, "encode report", err)
	}
	if err := os.WriteFile(files.JSON, data, 0o644); err != nil {
		return Files{}, errs.Wrap(errs.Resource, "write report json", err)
	}

	md := Markdown(r, dir)
	if err := os.WriteFile(files.Markdown, []byte(md), 0o644); err != nil {
		return Files{}, errs.Wrap(errs.Resource, "write report markdown", err)
	}
	page := fmt.Sprintf("<!doctype html>\n<html lang=\"en\"><head><meta charset=\"utf-8\"><title>aurora-verify %s</title></head><body>\n%s</body></html>\n",
		r.RunID, RenderHTML(md))
	if err := os.WriteFile(files.HTML, []byte(page), 0o644); err != nil {
		return Files{}, errs.Wrap(errs.Resource, "write report html", err)
	}
	return files, nil
}

// Load reads a JSON report written by Write.
func Load(path string) (*scenario.Report, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errs.Wrap(errs.Resource, "read report", err)
	}
	var r scenario.Report
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, errs.Wrap(errs.InvalidArgument, fmt.Sprintf("parse report %s", path), err)
	}
	return &r, nil
}

// PrintSummary renders one row per scenario and a totals footer to w.
// Color selects the colored table style for terminals.
func PrintSummary(w io.Writer, r *scenario.Report, color bool) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetTitle(fmt.Sprintf("Verification Results %s (%s)", r.RunID, formatDuration(r.FinishedAt.Sub(r.StartedAt))))
	t.AppendHeader(table.Row{"Scenario", "Status", "Steps", "Failed Step", "Code", "Duration", "Error"})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Name: "Steps", Align: text.AlignRight},
		{Name: "Duration", Align: text.AlignRight},
		{Name: "Error", WidthMax: errorColumnWidth, WidthMaxEnforcer: text.WrapSoft},
	})

	for _, s := range r.Scenarios {
		failedStep := "-"
		if s.FailedStep >= 0 && s.FailedStep < len(s.Steps) {
			failedStep = s.Steps[s.FailedStep].Name
		}
		t.AppendRow(table.Row{
			s.Name,
			strings.ToUpper(string(s.Status)),
			fmt.Sprintf("%d/%d", executed(s), len(s.Steps)),
			failedStep,
			string(s.Code),
			formatDuration(s.Duration),
			s.Error,
		})
	}

	passed, failed := r.Counts()
	if color {
		if failed == 0 {
			t.SetStyle(table.StyleColoredBlackOnGreenWhite)
		} else {
			t.SetStyle(table.StyleColoredBlackOnRedWhite)
		}
	} else {
		t.SetStyle(table.StyleLight)
	}
	t.AppendFooter(table.Row{
		"TOTAL",
		fmt.Sprintf("%d passed, %d failed", passed, failed),
		"", "", "",
		formatDuration(r.FinishedAt.Sub(r.StartedAt)),
		"",
	})
	t.Render()
}

// Markdown renders the review gallery. Screenshot links point at the
// uploaded URL when there is one and otherwise at the local file relative
// to dir.
func Markdown(r *scenario.Report, dir string) string {
	var b strings.Builder
	passed, failed := r.Counts()
	fmt.Fprintf(&b, "# Verification run %s\n\n", r.RunID)
	fmt.Fprintf(&b, "- Target: %s\n", r.Target)
	fmt.Fprintf(&b, "- Started: %s\n", r.StartedAt.Format(time.RFC3339))
	fmt.Fprintf(&b, "- Result: %d passed, %d failed\n\n", passed, failed)

	for _, s := range r.Scenarios {
		fmt.Fprintf(&b, "## %s: %s\n\n", s.Name, strings.ToUpper(string(s.Status)))
		if s.Description != "" {
			fmt.Fprintf(&b, "%s\n\n", s.Description)
		}
		if !s.Passed() {
			step := "setup"
			if s.FailedStep >= 0 && s.FailedStep < len(s.Steps) {
				step = s.Steps[s.FailedStep].Name
			}
			fmt.Fprintf(&b, "Failed at **%s** (%s)\n\n", step, s.Code)
			fmt.Fprintf(&b, "```\n%s\n```\n\n", strings.ReplaceAll(s.Error, "```", "'''"))
		}
		for _, a := range s.Artifacts {
			fmt.Fprintf(&b, "### %s (%s)\n\n", a.Kind, a.Actor)
			fmt.Fprintf(&b, "![%s](%s)\n\n", altText(a), link(a, dir))
		}
		if len(s.CleanupErrors) > 0 {
			b.WriteString("Cleanup problems:\n\n")
			for _, e := range s.CleanupErrors {
				fmt.Fprintf(&b, "- %s\n", e)
			}
			b.WriteString("\n")
		}
	}
	return b.String()
}

// RenderHTML converts Markdown to HTML and strips anything unsafe. Error
// text copied from the page under test ends up in the gallery, so the
// output is always sanitized.
func RenderHTML(md string) []byte {
	p := parser.NewWithExtensions(parser.CommonExtensions | parser.AutoHeadingIDs | parser.NoEmptyLineBeforeBlock)
	doc := p.Parse([]byte(md))
	renderer := mdhtml.NewRenderer(mdhtml.RendererOptions{Flags: mdhtml.CommonFlags | mdhtml.HrefTargetBlank})
	return bluemonday.UGCPolicy().SanitizeBytes(markdown.Render(doc, renderer))
}

func executed(s scenario.ScenarioResult) int {
	n := 0
	for _, st := range s.Steps {
		if st.State == scenario.StateExecuted {
			n++
		}
	}
	return n
}

func link(a artifact.Artifact, dir string) string {
	if a.URL != "" {
		return a.URL
	}
	if rel, err := filepath.Rel(dir, a.Path); err == nil {
		return filepath.ToSlash(rel)
	}
	return filepath.ToSlash(a.Path)
}

func altText(a artifact.Artifact) string {
	return fmt.Sprintf("%s %s %s", a.Scenario, a.Kind, filepath.Base(a.Path))
}

func formatDuration(d time.Duration) string {
	return fmt.Sprintf("%.1fs", d.Seconds())
}
