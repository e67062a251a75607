package scenario

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kuitang/aurora-verify/internal/artifact"
	"github.com/kuitang/aurora-verify/internal/browser"
	"github.com/kuitang/aurora-verify/internal/config"
	"github.com/kuitang/aurora-verify/internal/errs"
	"github.com/kuitang/aurora-verify/internal/obs"
	"github.com/kuitang/aurora-verify/internal/urlutil"
)

// Options configures a Runner.
type Options struct {
	TargetURL         string
	Actors            map[string]config.Actor
	DefaultTimeout    time.Duration
	NavigationTimeout time.Duration
	ArtifactDir       string
	// Parallelism bounds how many scenarios run at once; values below 1
	// mean 1.
	Parallelism int
}

// OptionsFromConfig builds runner options from the loaded configuration.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		TargetURL:         cfg.TargetURL,
		Actors:            cfg.Actors,
		DefaultTimeout:    cfg.DefaultTimeout,
		NavigationTimeout: cfg.NavigationTimeout,
		ArtifactDir:       cfg.ArtifactDir,
		Parallelism:       cfg.Parallelism,
	}
}

// Runner executes scenarios.
type Runner struct {
	open Opener
	opts Options
}

// NewRunner creates a runner opening sessions through open.
func NewRunner(open Opener, opts Options) *Runner {
	if opts.DefaultTimeout <= 0 {
		opts.DefaultTimeout = 30 * time.Second
	}
	if opts.NavigationTimeout <= 0 {
		opts.NavigationTimeout = opts.DefaultTimeout
	}
	if opts.Parallelism < 1 {
		opts.Parallelism = 1
	}
	return &Runner{open: open, opts: opts}
}

// KnowsActor reports whether actor has configured credentials.
func (r *Runner) KnowsActor(actor string) bool {
	_, ok := r.opts.Actors[actor]
	return ok
}

// RunAll runs scenarios with bounded parallelism. A failing scenario never
// cancels its siblings. Results keep the input order.
func (r *Runner) RunAll(ctx context.Context, scenarios []Scenario) *Report {
	corr := obs.CorrelationFromContext(ctx)
	if corr.RunID == "" {
		corr.RunID = obs.NewRunID()
		ctx = obs.WithRunID(ctx, corr.RunID)
	}
	report := &Report{
		RunID:     corr.RunID,
		Target:    r.opts.TargetURL,
		StartedAt: time.Now().UTC(),
		Scenarios: make([]ScenarioResult, len(scenarios)),
	}

	g := new(errgroup.Group)
	g.SetLimit(r.opts.Parallelism)
	for i := range scenarios {
		g.Go(func() error {
			report.Scenarios[i] = r.Run(ctx, scenarios[i])
			return nil
		})
	}
	_ = g.Wait()

	report.FinishedAt = time.Now().UTC()
	passed, failed := report.Counts()
	obs.From(ctx).Info("run_finished", "pkg", "scenario", "passed", passed, "failed", failed,
		"dur_ms", report.FinishedAt.Sub(report.StartedAt).Milliseconds())
	return report
}

// Budget is the longest a scenario may run: the sum of its step timeouts,
// using the navigation timeout for navigate steps, the default timeout for
// steps without one and the sleep for pause steps.
func (r *Runner) Budget(sc Scenario) time.Duration {
	var total time.Duration
	for _, st := range sc.Steps {
		total += r.stepTimeout(st)
	}
	return total
}

func (r *Runner) stepTimeout(st Step) time.Duration {
	switch {
	case st.Action == Pause:
		return st.Duration
	case st.Timeout > 0:
		return st.Timeout
	case st.Action == Navigate:
		return r.opts.NavigationTimeout
	default:
		return r.opts.DefaultTimeout
	}
}

// Run executes one scenario inside the scoped failure handler: the first
// failing step is logged and captured in exactly one screenshot, the
// remaining steps are skipped, and every opened session is closed on every
// path. A passing scenario produces exactly one success screenshot.
func (r *Runner) Run(ctx context.Context, sc Scenario) (res ScenarioResult) {
	ctx = obs.WithScenario(ctx, sc.Name)
	log := obs.From(ctx).With("pkg", "scenario")
	start := time.Now()

	res = ScenarioResult{
		Name:        sc.Name,
		Description: sc.Description,
		Status:      Passed,
		FailedStep:  -1,
		Steps:       make([]StepResult, len(sc.Steps)),
	}
	for i, st := range sc.Steps {
		res.Steps[i] = StepResult{
			Index:  i,
			Name:   st.label(i),
			Actor:  st.actor(),
			Action: st.Action,
			State:  StatePending,
		}
	}

	if err := sc.Validate(r.KnowsActor); err != nil {
		r.fail(&res, err)
		for i := range res.Steps {
			stepTracker{&res.Steps[i]}.move(StateSkipped)
		}
		res.Duration = time.Since(start)
		log.Error("scenario_invalid", "error", err)
		return res
	}

	budget := r.Budget(sc)
	runCtx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()
	log.Info("scenario_started", "steps", len(sc.Steps), "budget_ms", budget.Milliseconds())

	sessions := newSessionSet(r.open, sc.Viewport)
	// Runs after the final return assignment, so close errors reach the result.
	defer func() {
		for _, cerr := range sessions.closeAll(context.WithoutCancel(ctx)) {
			res.CleanupErrors = append(res.CleanupErrors, cerr.Error())
		}
	}()

	vars := newVars(r.opts.TargetURL, r.opts.Actors, sc.Vars)
	for i, st := range sc.Steps {
		if res.Status == Failed {
			stepTracker{&res.Steps[i]}.move(StateSkipped)
			continue
		}
		if shot, err := r.runStep(runCtx, sessions, vars, sc, i, &res.Steps[i]); err != nil {
			if errors.Is(runCtx.Err(), context.DeadlineExceeded) && errs.CodeOf(err) != errs.Timeout {
				err = errs.Wrap(errs.Timeout, fmt.Sprintf("scenario budget of %s exhausted", budget), err)
			}
			r.fail(&res, err)
			res.FailedStep = i
			log.Error("step_failed", "step", res.Steps[i].Name, "actor", st.actor(), "action", st.Action,
				"code", errs.CodeOf(err), "error", err)
			r.captureFailure(ctx, sessions, sc, st.actor(), &res)
		} else if shot != nil {
			res.Artifacts = append(res.Artifacts, *shot)
		}
	}

	if res.Status == Passed {
		r.captureSuccess(ctx, sessions, vars, sc, &res)
	}
	res.Duration = time.Since(start)
	log.Info("scenario_finished", "status", res.Status, "dur_ms", res.Duration.Milliseconds())
	return res
}

func (r *Runner) fail(res *ScenarioResult, err error) {
	res.Status = Failed
	res.Error = err.Error()
	res.Code = errs.CodeOf(err)
}

// runStep executes one step and returns the checkpoint artifact for
// screenshot steps.
func (r *Runner) runStep(ctx context.Context, sessions *sessionSet, vars *Vars, sc Scenario, i int, res *StepResult) (*artifact.Artifact, error) {
	raw := sc.Steps[i]
	actor := raw.actor()
	ctx = obs.WithCorrelation(ctx, obs.Correlation{Actor: actor, Step: res.Name})
	log := obs.From(ctx).With("pkg", "scenario")
	track := stepTracker{res}
	start := time.Now()
	defer func() { res.Duration = time.Since(start) }()

	failStep := func(err error) error {
		if res.State == StateWaiting && errs.CodeOf(err) == errs.Timeout {
			track.move(StateTimedOut)
		}
		track.move(StateFailed)
		res.Error = err.Error()
		res.Code = errs.CodeOf(err)
		return err
	}

	st, err := vars.expandStep(raw)
	if err != nil {
		return nil, failStep(err)
	}

	sess, err := sessions.get(ctx, actor)
	if err != nil {
		return nil, failStep(err)
	}

	timeout := r.stepTimeout(st)
	if cond, ok := st.precondition(); ok {
		track.move(StateWaiting)
		if err := sess.WaitFor(ctx, st.Locator, cond, timeout); err != nil {
			if errs.CodeOf(err) != errs.Timeout && errs.CodeOf(err) != errs.InvalidArgument {
				err = errs.Wrap(errs.Timeout, "precondition", err)
			}
			return nil, failStep(err)
		}
		track.move(StateSatisfied)
	}

	var shot *artifact.Artifact
	switch st.Action {
	case Navigate:
		err = sess.Navigate(ctx, urlutil.BuildAbsolute(r.opts.TargetURL, st.Value), timeout)
	case Wait:
	case Fill:
		err = sess.Fill(ctx, st.Locator, st.Value, referencedVars(raw.Value)...)
	case Click:
		err = sess.Click(ctx, st.Locator)
	case AssertText:
		err = sess.AssertText(ctx, st.Locator, st.Value, timeout)
	case AssertURL:
		err = sess.AssertURL(ctx, urlutil.BuildAbsolute(r.opts.TargetURL, st.Value), timeout)
	case AssertTitle:
		err = sess.AssertTitle(ctx, st.Value, timeout)
	case ReadText:
		var text string
		text, err = sess.ReadText(ctx, st.Locator, timeout)
		if err == nil && st.SaveAs != "" {
			vars.Set(st.SaveAs, text)
			log.Info("value_saved", "var", st.SaveAs, "chars", len(text))
		}
	case Screenshot:
		path := artifact.Resolve(r.opts.ArtifactDir, st.Path)
		if serr := sess.Screenshot(path); serr != nil {
			log.Warn("checkpoint_screenshot_failed", "path", path, "error", serr)
		} else {
			shot = &artifact.Artifact{Scenario: sc.Name, Actor: actor, Step: res.Name, Kind: artifact.Checkpoint, Path: path}
		}
	case Pause:
		err = sleep(ctx, st.Duration)
	default:
		err = errs.New(errs.InvalidArgument, fmt.Sprintf("unknown action %q", st.Action))
	}
	if err != nil {
		return nil, failStep(err)
	}
	track.move(StateExecuted)
	log.Debug("step_executed", "action", st.Action, "dur_ms", time.Since(start).Milliseconds())
	return shot, nil
}

// captureFailure takes the single failure screenshot of the failing actor's
// session. A session that never opened cannot be captured.
func (r *Runner) captureFailure(ctx context.Context, sessions *sessionSet, sc Scenario, actor string, res *ScenarioResult) {
	sess, ok := sessions.existing(actor)
	if !ok {
		obs.From(ctx).Warn("failure_screenshot_skipped", "pkg", "scenario", "actor", actor, "reason", "no session")
		return
	}
	path := artifact.FailurePath(r.opts.ArtifactDir, sc.Name, actor)
	if err := sess.Screenshot(path); err != nil {
		obs.From(ctx).Warn("failure_screenshot_failed", "pkg", "scenario", "actor", actor, "path", path, "error", err)
		return
	}
	res.Artifacts = append(res.Artifacts, artifact.Artifact{Scenario: sc.Name, Actor: actor, Kind: artifact.Failure, Path: path})
}

func (r *Runner) captureSuccess(ctx context.Context, sessions *sessionSet, vars *Vars, sc Scenario, res *ScenarioResult) {
	actor := sc.finalActor()
	path := artifact.SuccessPath(r.opts.ArtifactDir, sc.Name)
	if sc.SuccessShot != "" {
		expanded, err := vars.Expand(sc.SuccessShot)
		if err != nil {
			obs.From(ctx).Warn("success_screenshot_path_invalid", "pkg", "scenario", "error", err)
		} else {
			path = artifact.Resolve(r.opts.ArtifactDir, expanded)
		}
	}
	sess, ok := sessions.existing(actor)
	if !ok {
		obs.From(ctx).Warn("success_screenshot_skipped", "pkg", "scenario", "actor", actor, "reason", "no session")
		return
	}
	if err := sess.Screenshot(path); err != nil {
		obs.From(ctx).Warn("success_screenshot_failed", "pkg", "scenario", "actor", actor, "path", path, "error", err)
		return
	}
	res.Artifacts = append(res.Artifacts, artifact.Artifact{Scenario: sc.Name, Actor: actor, Kind: artifact.Success, Path: path})
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return errs.Wrap(errs.Timeout, "pause interrupted", ctx.Err())
	}
}

// sessionSet opens sessions lazily, one per actor, and closes them all.
type sessionSet struct {
	open     Opener
	viewport browser.Viewport
	mu       sync.Mutex
	order    []string
	byKey    map[string]Session
}

func newSessionSet(open Opener, viewport browser.Viewport) *sessionSet {
	return &sessionSet{open: open, viewport: viewport, byKey: make(map[string]Session)}
}

func (s *sessionSet) get(ctx context.Context, actor string) (Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.byKey[actor]; ok {
		return sess, nil
	}
	if s.open == nil {
		return nil, errs.New(errs.Internal, "no session opener configured")
	}
	sess, err := s.open(ctx, actor, s.viewport)
	if err != nil {
		if errs.CodeOf(err) == errs.Internal {
			err = errs.Wrap(errs.Resource, fmt.Sprintf("open session for %s", actor), err)
		}
		return nil, err
	}
	s.byKey[actor] = sess
	s.order = append(s.order, actor)
	obs.From(ctx).Info("session_opened", "pkg", "scenario", "session_actor", actor)
	return sess, nil
}

func (s *sessionSet) existing(actor string) (Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.byKey[actor]
	return sess, ok
}

// closeAll closes every session in opening order. Close failures are
// logged as resource errors and returned for the report.
func (s *sessionSet) closeAll(ctx context.Context) []error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var problems []error
	for _, actor := range s.order {
		if err := s.byKey[actor].Close(); err != nil {
			if !errs.Is(err, errs.Resource) {
				err = errs.Wrap(errs.Resource, fmt.Sprintf("close session %s", actor), err)
			}
			obs.From(ctx).Error("session_close_failed", "pkg", "scenario", "session_actor", actor, "code", errs.Resource, "error", err)
			problems = append(problems, err)
		}
		delete(s.byKey, actor)
	}
	s.order = nil
	return problems
}
