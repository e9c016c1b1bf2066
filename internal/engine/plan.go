package engine

import "adosweep/internal/report"

// FileMatch is one file whose content changes under the rule set. Only files
// with at least one effective match are ever represented; OldContent is kept
// so the executor can build whole-file replacement pushes.
type FileMatch struct {
	Path       string
	OldContent string
	NewContent string
	Matches    int
}

// ChangePlan is the computed change set for one repository: which files
// change, against which branch head. A plan with no files is reported as
// no-changes and never reaches the executor.
type ChangePlan struct {
	Target RepoTarget
	Files  []FileMatch

	// HeadObjectID is the branch head captured at scan time. The executor
	// re-reads the head before pushing; this one exists for reporting and to
	// detect how far the branch moved mid-run.
	HeadObjectID string

	// FileErrors are files excluded after persistent read failures. They
	// degrade the plan, not the repository.
	FileErrors []report.FileError
}

// BuildPlan filters the scanner's matches into a plan. Matches whose new
// content equals the old content are dropped here: a rule whose replacement
// equals its search text must be a no-op, not a reported change.
func BuildPlan(target RepoTarget, headObjectID string, matches []FileMatch, fileErrors []report.FileError) ChangePlan {
	plan := ChangePlan{
		Target:       target,
		HeadObjectID: headObjectID,
		FileErrors:   fileErrors,
	}
	for _, m := range matches {
		if m.NewContent == m.OldContent {
			continue
		}
		plan.Files = append(plan.Files, m)
	}
	return plan
}

func (p ChangePlan) Empty() bool {
	return len(p.Files) == 0
}

// TotalMatches sums per-file match counts, for reporting.
func (p ChangePlan) TotalMatches() int {
	total := 0
	for _, m := range p.Files {
		total += m.Matches
	}
	return total
}

func (p ChangePlan) fileChanges() []report.FileChange {
	changes := make([]report.FileChange, 0, len(p.Files))
	for _, m := range p.Files {
		changes = append(changes, report.FileChange{Path: m.Path, Matches: m.Matches})
	}
	return changes
}
