package report

// Status is the terminal state of one repository in a run.
type Status string

const (
	// StatusApplied: the plan was pushed as one commit.
	StatusApplied Status = "applied"

	// StatusWouldApply: dry run; the plan has changes that were not pushed.
	StatusWouldApply Status = "would-apply"

	// StatusNoChanges: no file matched any rule (or every match was a no-op).
	StatusNoChanges Status = "no-changes"

	// StatusSkippedError: the repository failed terminally; siblings are
	// unaffected.
	StatusSkippedError Status = "skipped-error"
)

// FileChange is one affected file in an outcome, with the match count from
// scanning. Contents are deliberately not carried here: outcomes ride the
// output sinks and must stay small.
type FileChange struct {
	Path    string `json:"path"`
	Matches int    `json:"matches"`
}

// FileError is a file that was excluded from a plan after its reads kept
// failing. Its repository still proceeds with the remaining files.
type FileError struct {
	Path  string `json:"path"`
	Error string `json:"error"`
}

// RunOutcome is the immutable terminal record for one repository. Created
// exactly once when that repository's pipeline finishes, then only read.
type RunOutcome struct {
	Project string `json:"project"`
	Repo    string `json:"repo"`
	Branch  string `json:"branch,omitempty"`

	Status  Status `json:"status"`
	Files   int    `json:"files_changed"`
	Matches int    `json:"matches,omitempty"`

	Changes    []FileChange `json:"changes,omitempty"`
	FileErrors []FileError  `json:"file_errors,omitempty"`

	// CommitID is set when Status is applied.
	CommitID string `json:"commit_id,omitempty"`

	// Error is the detail for skipped-error outcomes.
	Error string `json:"error,omitempty"`
}

func (o RunOutcome) RepoFullName() string {
	return o.Project + "/" + o.Repo
}

// Summary is a pure fold over a run's outcomes.
type Summary struct {
	Repos        int `json:"repos"`
	Applied      int `json:"applied"`
	WouldApply   int `json:"would_apply"`
	NoChanges    int `json:"no_changes"`
	SkippedError int `json:"skipped_error"`

	// FilesChanged is summed across applied and would-apply outcomes.
	FilesChanged int `json:"files_changed"`

	// DegradedFiles counts per-file errors across all outcomes: files that
	// were silently at risk of being dropped are instead surfaced here.
	DegradedFiles int `json:"degraded_files,omitempty"`
}

func Summarize(outcomes []RunOutcome) Summary {
	var s Summary
	for _, o := range outcomes {
		s.Repos++
		switch o.Status {
		case StatusApplied:
			s.Applied++
			s.FilesChanged += o.Files
		case StatusWouldApply:
			s.WouldApply++
			s.FilesChanged += o.Files
		case StatusNoChanges:
			s.NoChanges++
		case StatusSkippedError:
			s.SkippedError++
		}
		s.DegradedFiles += len(o.FileErrors)
	}
	return s
}

// ExitCode maps a summary to the process exit code.
//
// Exit code contract:
// 0 = clean run
// 1 = dry run found pending changes
// 2 = partial failure (some repositories skipped)
// 3 = fatal error (run did not start; assigned by the CLI, not here)
func (s Summary) ExitCode(dryRun bool) int {
	if s.SkippedError > 0 {
		return 2
	}
	if dryRun && s.WouldApply > 0 {
		return 1
	}
	return 0
}
