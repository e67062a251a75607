// aurora-verify drives a browser through the Aurora web app's key flows and
// captures screenshots for review.
//
// Exit status: 0 when every scenario passed, 1 when any failed, 2 for
// configuration errors, 3 when the browser could not be launched.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/kuitang/aurora-verify/internal/artifact"
	"github.com/kuitang/aurora-verify/internal/browser"
	"github.com/kuitang/aurora-verify/internal/config"
	"github.com/kuitang/aurora-verify/internal/errs"
	"github.com/kuitang/aurora-verify/internal/notify"
	"github.com/kuitang/aurora-verify/internal/obs"
	"github.com/kuitang/aurora-verify/internal/ratelimit"
	"github.com/kuitang/aurora-verify/internal/report"
	"github.com/kuitang/aurora-verify/internal/scenario"
	"github.com/kuitang/aurora-verify/internal/scenarios"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	cancel()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	flags, err := config.ParseFlags(args)
	if err != nil {
		return exitFor(stderr, errs.Wrap(errs.InvalidArgument, "flags", err))
	}
	cfg, err := config.LoadConfig(flags)
	if err != nil {
		return exitFor(stderr, errs.Wrap(errs.InvalidArgument, "configuration", err))
	}
	obs.Init()

	all, err := loadScenarios(cfg)
	if err != nil {
		return exitFor(stderr, err)
	}
	if cfg.ListOnly {
		printScenarios(stdout, all)
		return errs.ExitOK
	}
	selected, err := scenarios.Select(all, cfg.Scenarios)
	if err != nil {
		return exitFor(stderr, err)
	}
	known := func(actor string) bool { _, ok := cfg.Actor(actor); return ok }
	var invalid []error
	for _, sc := range selected {
		if err := sc.Validate(known); err != nil {
			invalid = append(invalid, err)
		}
	}
	if len(invalid) > 0 {
		return exitFor(stderr, errors.Join(invalid...))
	}

	cfg.PrintStartupSummary(stdout)

	runID := obs.NewRunID()
	ctx = obs.WithRunID(ctx, runID)
	log := obs.From(ctx).With("pkg", "main")

	pacer := ratelimit.NewPacer(cfg.Pacing)
	defer pacer.Stop()

	engine, err := browser.Launch(ctx, browser.Options{
		Headless:       cfg.Headless,
		Viewport:       browser.Viewport{Width: cfg.Viewport.Width, Height: cfg.Viewport.Height},
		SlowMo:         cfg.SlowMo,
		DefaultTimeout: cfg.DefaultTimeout,
		Pacer:          pacer,
	})
	if err != nil {
		log.Error("browser_launch_failed", "code", errs.CodeOf(err), "error", err)
		return exitFor(stderr, err)
	}
	defer func() {
		if err := engine.Close(); err != nil {
			log.Warn("browser_close_failed", "error", err)
		}
	}()

	runner := scenario.NewRunner(scenario.EngineOpener(engine), scenario.OptionsFromConfig(cfg))
	rep := runner.RunAll(ctx, selected)

	var store *artifact.Store
	if cfg.UploadEnabled() {
		store, err = artifact.NewStore(ctx, artifact.StoreConfig{
			Endpoint:        cfg.AWSEndpointS3,
			Region:          cfg.AWSRegion,
			AccessKeyID:     cfg.AWSAccessKeyID,
			SecretAccessKey: cfg.AWSSecretAccessKey,
			BucketName:      cfg.AWSBucketName,
			PublicURL:       cfg.AWSPublicURL,
			Prefix:          cfg.ArtifactPrefix,
			UsePathStyle:    cfg.AWSEndpointS3 != "",
		})
		if err != nil {
			log.Warn("artifact_store_unavailable", "error", err)
		}
	}
	if store != nil {
		for i := range rep.Scenarios {
			if err := store.UploadAll(ctx, rep.RunID, rep.Scenarios[i].Artifacts); err != nil {
				log.Warn("artifact_upload_failed", "scenario", rep.Scenarios[i].Name, "error", err)
			}
		}
	}

	var reportURL string
	files, err := report.Write(cfg.ReportDir, rep)
	if err != nil {
		log.Warn("report_write_failed", "error", err)
	} else {
		log.Info("report_written", "json", files.JSON, "html", files.HTML)
		if store != nil {
			if reportURL, err = store.UploadFile(ctx, rep.RunID, files.HTML); err != nil {
				log.Warn("report_upload_failed", "error", err)
			}
		}
	}

	report.PrintSummary(stdout, rep, isTerminal(stdout))

	if cfg.NotifyEnabled() {
		sender := notify.NewResendSender(cfg.ResendAPIKey, cfg.ReportEmailFrom)
		if _, err := notify.NotifyFailures(ctx, sender, cfg.ReportRecipients(), rep, reportURL); err != nil {
			log.Warn("failure_notification_failed", "error", err)
		}
	}

	return rep.ExitStatus()
}

// exitFor prints err and returns the exit status for its code.
func exitFor(stderr io.Writer, err error) int {
	fmt.Fprintln(stderr, err)
	return errs.ExitStatus(errs.CodeOf(err))
}

// loadScenarios returns the built-ins merged with the scenarios file, if any.
func loadScenarios(cfg *config.Config) ([]scenario.Scenario, error) {
	all := scenarios.Builtin(cfg)
	if cfg.ScenariosFile == "" {
		return all, nil
	}
	extra, err := scenario.LoadFile(cfg.ScenariosFile)
	if err != nil {
		return nil, err
	}
	return scenarios.Merge(all, extra), nil
}

func printScenarios(w io.Writer, all []scenario.Scenario) {
	sorted := append([]scenario.Scenario(nil), all...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Scenario", "Steps", "Actors", "Description"})
	for _, sc := range sorted {
		t.AppendRow(table.Row{sc.Name, len(sc.Steps), strings.Join(sc.Actors(), ", "), sc.Description})
	}
	t.Render()
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	info, err := f.Stat()
	return err == nil && info.Mode()&os.ModeCharDevice != 0
}
