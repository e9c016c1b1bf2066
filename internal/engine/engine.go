package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"adosweep/internal/azdo"
	"adosweep/internal/config"
	"adosweep/internal/output"
	"adosweep/internal/report"
	"adosweep/internal/retry"
)

// Engine wires the pipeline together: resolve scope, run every repository
// through scan → plan → (report | apply) under the scheduler, and fold the
// outcomes into the run summary. All platform access goes through API; all
// result delivery goes through Out.
type Engine struct {
	API    azdo.API
	Config *config.Config
	Out    *output.Manager

	// Policy is the shared retry schedule for scanner and executor calls.
	Policy retry.Policy

	// Logw receives progress and skip notices; defaults to stderr.
	Logw io.Writer
}

func New(api azdo.API, cfg *config.Config, out *output.Manager) *Engine {
	return &Engine{
		API:    api,
		Config: cfg,
		Out:    out,
		Policy: retry.Default(),
		Logw:   os.Stderr,
	}
}

// Run executes the whole run and returns its summary. A non-nil error means
// the run was fatal (bad scope, bad credential) or canceled; outcomes
// already collected are still summarized and reported.
func (e *Engine) Run(ctx context.Context) (report.Summary, error) {
	if ctx == nil {
		return report.Summary{}, errors.New("context is nil")
	}
	if e.API == nil || e.Config == nil || e.Out == nil {
		return report.Summary{}, errors.New("engine is not initialized (use New)")
	}

	e.logf("Resolving scope for organization %s...", e.Config.Targeting.Organization)
	targets, err := ResolveScope(ctx, e.API, e.Config)
	if err != nil {
		return report.Summary{}, err
	}
	if len(targets) == 0 {
		e.logf("Scope resolved to no repositories.")
	} else {
		e.logf("Processing %d repositories...", len(targets))
	}

	_ = e.Out.Write(output.Event{
		Type:   output.EventRunStarted,
		Repos:  len(targets),
		DryRun: e.Config.Targeting.DryRun,
	})

	scanner := NewScanner(e.API, e.Config.Rules, e.Policy, e.Logw)
	executor := NewExecutor(e.API, e.Policy, e.Config.Commit.Message)

	process := func(ctx context.Context, target RepoTarget) report.RunOutcome {
		return e.processTarget(ctx, target, scanner, executor)
	}
	scheduler, err := NewScheduler(process, e.Config.Runtime.Concurrency)
	if err != nil {
		return report.Summary{}, err
	}

	resultsCh, errCh := scheduler.Execute(ctx, targets)

	var outcomes []report.RunOutcome
	for outcome := range resultsCh {
		outcomes = append(outcomes, outcome)
		_ = e.Out.Write(outcome)
	}
	runErr := <-errCh

	summary := report.Summarize(outcomes)
	exitCode := summary.ExitCode(e.Config.Targeting.DryRun)
	_ = e.Out.Write(output.Event{
		Type:     output.EventRunFinished,
		Summary:  &summary,
		ExitCode: &exitCode,
	})

	return summary, runErr
}

// processTarget runs one repository through the pipeline and produces its
// terminal outcome. It never returns an error: every failure mode lands in
// the outcome so sibling repositories stay isolated.
func (e *Engine) processTarget(ctx context.Context, target RepoTarget, scanner *Scanner, executor *Executor) report.RunOutcome {
	outcome := report.RunOutcome{
		Project: target.Ref.Project.Name,
		Repo:    target.Ref.Name,
		Branch:  target.Branch,
	}

	if target.Branch == "" {
		// Bare repository: nothing to scan.
		outcome.Status = report.StatusNoChanges
		return outcome
	}

	scan, err := scanner.Scan(ctx, target)
	if err != nil {
		outcome.Status = report.StatusSkippedError
		outcome.Error = err.Error()
		return outcome
	}

	plan := BuildPlan(target, scan.HeadObjectID, scan.Matches, scan.FileErrors)
	outcome.FileErrors = plan.FileErrors

	if plan.Empty() {
		outcome.Status = report.StatusNoChanges
		return outcome
	}

	outcome.Files = len(plan.Files)
	outcome.Matches = plan.TotalMatches()
	outcome.Changes = plan.fileChanges()

	if e.Config.Targeting.DryRun {
		outcome.Status = report.StatusWouldApply
		return outcome
	}

	commitID, err := executor.Apply(ctx, plan)
	if err != nil {
		// Pushes are atomic: a failed apply changed zero files.
		outcome.Status = report.StatusSkippedError
		outcome.Error = err.Error()
		outcome.Files = 0
		outcome.Matches = 0
		outcome.Changes = nil
		return outcome
	}

	outcome.Status = report.StatusApplied
	outcome.CommitID = commitID
	return outcome
}

func (e *Engine) logf(format string, args ...any) {
	if e.Logw == nil {
		return
	}
	_, _ = fmt.Fprintf(e.Logw, format+"\n", args...)
}
