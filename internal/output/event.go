package output

import "adosweep/internal/report"

const (
	EventRunStarted  = "run.started"
	EventRepoResult  = "repo.result"
	EventRunFinished = "run.finished"
)

// Event is a lifecycle record for NDJSON streaming output.
//
// In NDJSON mode, sinks emit Events (one JSON object per line):
// - run.started (repo count, dry-run flag)
// - repo.result (one per repository, with the nested outcome)
// - run.finished (summary counts and exit code)
//
// JSON mode remains an aggregate of report.RunOutcome values.
type Event struct {
	Type string `json:"type"`
	Repo string `json:"repo,omitempty"`

	Outcome *report.RunOutcome `json:"outcome,omitempty"`
	Summary *report.Summary    `json:"summary,omitempty"`

	Repos  int  `json:"repos,omitempty"`
	DryRun bool `json:"dry_run,omitempty"`

	// ExitCode is a pointer so a clean run's 0 still serializes; consumers
	// can tell "clean" from "absent". A fatal setup failure (exit 3) aborts
	// before run.finished, so 3 never appears here.
	ExitCode *int `json:"exit_code,omitempty"`
}

func eventFromOutcome(o report.RunOutcome) Event {
	return Event{Type: EventRepoResult, Repo: o.RepoFullName(), Outcome: &o}
}
