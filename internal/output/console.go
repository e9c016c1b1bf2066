package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/fatih/color"

	"adosweep/internal/report"
)

// ConsoleSink renders run results for a human (text) or a pipeline
// (json/ndjson) on the console.
type ConsoleSink struct {
	writer  io.Writer
	format  string // "text", "json", "ndjson"
	mu      sync.Mutex
	results []report.RunOutcome // For JSON array output
}

func NewConsoleSink(w io.Writer, format string) *ConsoleSink {
	if w == nil {
		w = os.Stdout
	}
	if format == "" {
		format = "text"
	}
	return &ConsoleSink{
		writer: w,
		format: format,
	}
}

func (s *ConsoleSink) Write(v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writeLocked(v)
}

func (s *ConsoleSink) writeLocked(v any) error {
	switch s.format {
	case "json":
		o, ok := v.(report.RunOutcome)
		if !ok {
			// Ignore lifecycle events in JSON console mode.
			return nil
		}
		s.results = append(s.results, o)
		return nil
	case "ndjson":
		encoder := json.NewEncoder(s.writer)
		switch t := v.(type) {
		case Event:
			if err := encoder.Encode(t); err != nil {
				return err
			}
			return flushIfPossible(s.writer)
		case report.RunOutcome:
			e := eventFromOutcome(t)
			if err := encoder.Encode(e); err != nil {
				return err
			}
			return flushIfPossible(s.writer)
		default:
			return nil
		}
	case "text":
		switch t := v.(type) {
		case report.RunOutcome:
			if err := s.writeTextOutcome(t); err != nil {
				return err
			}
			return flushIfPossible(s.writer)
		case Event:
			if t.Type == EventRunFinished && t.Summary != nil {
				if err := s.writeTextSummary(*t.Summary); err != nil {
					return err
				}
				return flushIfPossible(s.writer)
			}
			return nil
		default:
			return nil
		}
	default:
		return fmt.Errorf("unsupported console format: %s", s.format)
	}
}

var (
	appliedColor = color.New(color.FgGreen)
	pendingColor = color.New(color.FgCyan)
	skippedColor = color.New(color.FgRed)
	quietColor   = color.New(color.Faint)
)

func statusLabel(status report.Status) string {
	switch status {
	case report.StatusApplied:
		return appliedColor.Sprint("APPLIED")
	case report.StatusWouldApply:
		return pendingColor.Sprint("WOULD-APPLY")
	case report.StatusNoChanges:
		return quietColor.Sprint("NO-CHANGES")
	case report.StatusSkippedError:
		return skippedColor.Sprint("SKIPPED")
	default:
		return string(status)
	}
}

func (s *ConsoleSink) writeTextOutcome(o report.RunOutcome) error {
	printf := func(format string, args ...any) error {
		_, err := fmt.Fprintf(s.writer, format, args...)
		return err
	}

	if err := printf("[%s] %s", statusLabel(o.Status), o.RepoFullName()); err != nil {
		return err
	}
	switch o.Status {
	case report.StatusApplied:
		if err := printf(" - %d file(s) changed, %d replacement(s)", o.Files, o.Matches); err != nil {
			return err
		}
		if o.CommitID != "" {
			if err := printf(" (commit %.8s)", o.CommitID); err != nil {
				return err
			}
		}
	case report.StatusWouldApply:
		if err := printf(" - %d file(s) would change, %d replacement(s)", o.Files, o.Matches); err != nil {
			return err
		}
	case report.StatusSkippedError:
		if o.Error != "" {
			if err := printf(" - %s", o.Error); err != nil {
				return err
			}
		}
	}
	if _, err := fmt.Fprintln(s.writer); err != nil {
		return err
	}

	for _, c := range o.Changes {
		if err := printf("    %s (%d)\n", c.Path, c.Matches); err != nil {
			return err
		}
	}
	for _, fe := range o.FileErrors {
		if err := printf("    %s: %s\n", fe.Path, skippedColor.Sprint(fe.Error)); err != nil {
			return err
		}
	}
	return nil
}

func (s *ConsoleSink) writeTextSummary(sum report.Summary) error {
	_, err := fmt.Fprintf(s.writer,
		"\n%d repositories: %d applied, %d would-apply, %d no-changes, %d skipped\n",
		sum.Repos, sum.Applied, sum.WouldApply, sum.NoChanges, sum.SkippedError)
	if err != nil {
		return err
	}
	if sum.DegradedFiles > 0 {
		_, err = fmt.Fprintf(s.writer, "%d file(s) excluded after read failures\n", sum.DegradedFiles)
	}
	return err
}

func (s *ConsoleSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.format == "json" {
		encoder := json.NewEncoder(s.writer)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(s.results); err != nil {
			return err
		}
		return flushIfPossible(s.writer)
	}
	if s.format != "text" && s.format != "ndjson" {
		return fmt.Errorf("unsupported console format: %s", s.format)
	}
	return nil
}

type flusher interface {
	Flush() error
}

func flushIfPossible(w io.Writer) error {
	f, ok := w.(flusher)
	if !ok {
		return nil
	}
	return f.Flush()
}
