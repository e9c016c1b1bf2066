package engine

import (
	"context"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"adosweep/internal/azdo"
	"adosweep/internal/report"
	"adosweep/internal/retry"
	"adosweep/internal/rules"
)

// Scanner reads a repository's files at the target branch and finds every
// file the rule set would change. It never mutates anything.
type Scanner struct {
	api   azdo.API
	rules rules.Set
	retry retry.Policy

	// logw receives skip notices (binary files, degraded files); nil
	// discards them.
	logw io.Writer
}

// ScanResult is everything downstream stages need from one repository scan.
type ScanResult struct {
	// HeadObjectID is the branch head at scan time.
	HeadObjectID string

	// Matches lists only files with at least one match; clean files are
	// dropped during the scan and never carried forward.
	Matches []FileMatch

	// FileErrors are files whose reads kept failing after retries. They are
	// excluded from the result, recorded, and do not fail the repository.
	FileErrors []report.FileError
}

func NewScanner(api azdo.API, ruleSet rules.Set, policy retry.Policy, logw io.Writer) *Scanner {
	return &Scanner{api: api, rules: ruleSet, retry: policy, logw: logw}
}

// Scan enumerates and reads the target's files, applying the rule set to
// each. A repository-level error (branch head or file listing unavailable)
// is returned as err; per-file read failures only degrade the result.
func (s *Scanner) Scan(ctx context.Context, target RepoTarget) (ScanResult, error) {
	var res ScanResult

	err := s.retry.Do(ctx, azdo.IsTransient, func(ctx context.Context) error {
		head, headErr := s.api.GetBranchHead(ctx, target.Ref, target.Branch)
		if headErr != nil {
			return headErr
		}
		res.HeadObjectID = head
		return nil
	})
	if err != nil {
		return ScanResult{}, fmt.Errorf("read branch head %q: %w", target.Branch, err)
	}

	var items []azdo.ItemRef
	err = s.retry.Do(ctx, azdo.IsTransient, func(ctx context.Context) error {
		listed, listErr := s.api.ListItems(ctx, target.Ref, target.Branch)
		if listErr != nil {
			return listErr
		}
		items = listed
		return nil
	})
	if err != nil {
		return ScanResult{}, fmt.Errorf("list files: %w", err)
	}

	for _, item := range items {
		if ctx.Err() != nil {
			return ScanResult{}, ctx.Err()
		}
		if item.Binary {
			s.logf("skipping binary file %s:%s", target.FullName(), item.Path)
			continue
		}

		var content string
		err := s.retry.Do(ctx, azdo.IsTransient, func(ctx context.Context) error {
			c, readErr := s.api.GetItemContent(ctx, target.Ref, item.Path, target.Branch)
			if readErr != nil {
				return readErr
			}
			content = c
			return nil
		})
		if err != nil {
			if ctx.Err() != nil {
				return ScanResult{}, ctx.Err()
			}
			res.FileErrors = append(res.FileErrors, report.FileError{Path: item.Path, Error: err.Error()})
			s.logf("excluding %s:%s after read failures: %v", target.FullName(), item.Path, err)
			continue
		}

		// The platform's content-type flag is best effort; double-check
		// before treating the payload as text.
		if looksBinary(content) {
			s.logf("skipping binary file %s:%s", target.FullName(), item.Path)
			continue
		}

		if !s.rules.Matches(content) {
			continue
		}
		newContent, matches := s.rules.Apply(content)
		if matches == 0 {
			continue
		}
		res.Matches = append(res.Matches, FileMatch{
			Path:       item.Path,
			OldContent: content,
			NewContent: newContent,
			Matches:    matches,
		})
	}

	return res, nil
}

func (s *Scanner) logf(format string, args ...any) {
	if s.logw == nil {
		return
	}
	_, _ = fmt.Fprintf(s.logw, format+"\n", args...)
}

// looksBinary applies the usual NUL-byte and UTF-8 validity heuristic to
// content the platform did not flag as binary.
func looksBinary(content string) bool {
	if strings.IndexByte(content, 0) >= 0 {
		return true
	}
	return !utf8.ValidString(content)
}
