package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"adosweep/internal/rules"
)

type Config struct {
	// MAINTAINER NOTE: If you add/change/remove config fields that affect run
	// behavior, keep these in sync:
	// - CLI flags in internal/cli/run.go
	// - the settings.yaml schema in Settings below
	Targeting Targeting
	Rules     rules.Set
	Commit    Commit
	Output    Output
	Runtime   Runtime
}

type Targeting struct {
	// Organization is the Azure DevOps organization to run against (see --org).
	Organization string

	// BaseURL is the platform endpoint; empty means https://dev.azure.com
	// (see ado_base_url in settings).
	BaseURL string

	// Targets restricts the run to specific projects or project/repository
	// pairs (see --target). Empty means the entire organization.
	Targets []Target

	// MaxRepos limits how many repositories to process (see --max-repos).
	// 0 means unlimited.
	MaxRepos int

	// DryRun computes and reports intended changes without pushing anything
	// (see --dry-run).
	DryRun bool
}

// Target is one scope entry. An empty Repo means every repository in the
// project.
type Target struct {
	Project string `yaml:"project"`
	Repo    string `yaml:"repo,omitempty"`
}

func (t Target) String() string {
	if t.Repo == "" {
		return t.Project
	}
	return t.Project + "/" + t.Repo
}

type Commit struct {
	// Branch is the branch to scan and commit to (see --branch and
	// source_branch in settings). Empty means each repository's default
	// branch.
	Branch string

	// Message is the commit comment for applied changes.
	Message string
}

type Output struct {
	// ConsoleFormat controls the console sink format (see --console-format).
	// Allowed values: text, json, ndjson.
	ConsoleFormat string

	// Out writes structured output to this path (see --out).
	Out string

	// OutFormat selects the format for --out (see --out-format).
	// Allowed values: json, ndjson. If empty, it is inferred from the --out
	// file extension.
	OutFormat string

	// NoConsole suppresses the console sink (see --no-console).
	NoConsole bool
}

type Runtime struct {
	// Concurrency controls how many repositories are processed in parallel
	// (see --concurrency). Must be >= 1.
	Concurrency int

	// Timeout is the global timeout for the run (see --timeout). Must be > 0.
	Timeout time.Duration

	// Verbose enables per-API-call diagnostics on stderr.
	Verbose bool
}

func New() *Config {
	return &Config{
		Commit: Commit{
			Message: "Bulk update",
		},
		Output: Output{
			ConsoleFormat: "text",
		},
		Runtime: Runtime{
			Concurrency: 5,
			Timeout:     30 * time.Minute,
		},
	}
}

// Settings is the on-disk document (settings.yaml). Field names follow the
// original script's schema so existing settings files keep working.
type Settings struct {
	OrganizationName string       `yaml:"organization_name"`
	ADOBaseURL       string       `yaml:"ado_base_url"`
	ProjectsAndRepos []Target     `yaml:"projects_and_repos"`
	StringsToReplace []rules.Rule `yaml:"strings_to_replace"`
	SourceBranch     string       `yaml:"source_branch"`
	CommitMessage    string       `yaml:"commit_message"`
	DryRun           *bool        `yaml:"dry_run"`
}

// LoadSettings reads a settings.yaml and overlays it onto c. CLI flags are
// applied after this, so flags win field by field.
func (c *Config) LoadSettings(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read settings: %w", err)
	}

	var s Settings
	dec := yaml.NewDecoder(strings.NewReader(string(raw)))
	dec.KnownFields(true)
	if err := dec.Decode(&s); err != nil {
		return fmt.Errorf("parse settings %s: %w", path, err)
	}

	if s.OrganizationName != "" {
		c.Targeting.Organization = s.OrganizationName
	}
	if s.ADOBaseURL != "" {
		c.Targeting.BaseURL = s.ADOBaseURL
	}
	if len(s.ProjectsAndRepos) > 0 {
		c.Targeting.Targets = s.ProjectsAndRepos
	}
	if len(s.StringsToReplace) > 0 {
		c.Rules = s.StringsToReplace
	}
	if s.SourceBranch != "" {
		c.Commit.Branch = s.SourceBranch
	}
	if s.CommitMessage != "" {
		c.Commit.Message = s.CommitMessage
	}
	if s.DryRun != nil {
		c.Targeting.DryRun = *s.DryRun
	}
	return nil
}

func (c *Config) Validate() error {
	// Targeting validation
	c.Targeting.Organization = strings.TrimSpace(c.Targeting.Organization)
	if c.Targeting.Organization == "" {
		return errors.New("organization is required (set organization_name in settings or pass --org)")
	}
	if strings.Contains(c.Targeting.Organization, "/") {
		return fmt.Errorf("invalid organization %q: must be a bare organization name", c.Targeting.Organization)
	}
	for i, t := range c.Targeting.Targets {
		t.Project = strings.TrimSpace(t.Project)
		t.Repo = strings.TrimSpace(t.Repo)
		if t.Project == "" {
			return fmt.Errorf("scope entry %d: project must not be empty", i)
		}
		c.Targeting.Targets[i] = t
	}
	if c.Targeting.MaxRepos < 0 {
		return errors.New("--max-repos must be >= 0")
	}

	// Rules validation
	if err := c.Rules.Validate(); err != nil {
		return err
	}

	if strings.TrimSpace(c.Commit.Message) == "" {
		return errors.New("commit message must not be empty")
	}

	// Output validation
	c.Output.ConsoleFormat = normalizeEnumValue(c.Output.ConsoleFormat)
	if c.Output.ConsoleFormat == "" {
		c.Output.ConsoleFormat = "text"
	}
	if c.Output.ConsoleFormat != "text" && c.Output.ConsoleFormat != "json" && c.Output.ConsoleFormat != "ndjson" {
		return fmt.Errorf("unsupported --console-format: %s (must be one of: text, json, ndjson)", c.Output.ConsoleFormat)
	}

	if c.Output.Out != "" {
		c.Output.OutFormat = normalizeEnumValue(c.Output.OutFormat)
		if c.Output.OutFormat == "" {
			ext := strings.ToLower(filepath.Ext(c.Output.Out))
			switch ext {
			case ".json":
				c.Output.OutFormat = "json"
			case ".ndjson":
				c.Output.OutFormat = "ndjson"
			default:
				if ext == "" {
					return errors.New("cannot infer output format from file extension (missing extension); use --out-format")
				}
				return fmt.Errorf("cannot infer output format from file extension %q; use --out-format", ext)
			}
		} else if c.Output.OutFormat != "json" && c.Output.OutFormat != "ndjson" {
			return fmt.Errorf("unsupported output format: %s", c.Output.OutFormat)
		}
	}

	// Runtime validation
	if c.Runtime.Concurrency <= 0 {
		return errors.New("--concurrency must be >= 1")
	}
	if c.Runtime.Timeout <= 0 {
		return errors.New("--timeout must be > 0")
	}

	return nil
}

// ParseTargetSelectors parses repeated --target values of the form
// "PROJECT" or "PROJECT/REPO". Entries may be comma-delimited.
func ParseTargetSelectors(values []string) ([]Target, error) {
	var out []Target
	for _, raw := range splitCommaList(values) {
		project, repo, _ := strings.Cut(raw, "/")
		project = strings.TrimSpace(project)
		repo = strings.TrimSpace(repo)
		if project == "" {
			return nil, fmt.Errorf("invalid --target entry %q: expected PROJECT or PROJECT/REPO", raw)
		}
		if strings.Contains(repo, "/") {
			return nil, fmt.Errorf("invalid --target entry %q: too many path segments", raw)
		}
		out = append(out, Target{Project: project, Repo: repo})
	}
	return out, nil
}

// ParseRuleAssignments parses repeated --rule values of the form "OLD=NEW".
// Unlike --target, values are NOT comma-split: search and replacement text
// may legitimately contain commas.
func ParseRuleAssignments(values []string) (rules.Set, error) {
	var out rules.Set
	for _, raw := range values {
		search, replace, ok := strings.Cut(raw, "=")
		if !ok {
			return nil, fmt.Errorf("invalid --rule entry %q: expected OLD=NEW", raw)
		}
		if search == "" {
			return nil, fmt.Errorf("invalid --rule entry %q: search text must not be empty", raw)
		}
		out = append(out, rules.Rule{Search: search, Replace: replace})
	}
	return out, nil
}

func normalizeEnumValue(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}

func splitCommaList(values []string) []string {
	var out []string
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			p := strings.TrimSpace(part)
			if p == "" {
				continue
			}
			out = append(out, p)
		}
	}
	return out
}
