package cli

import (
	"os"
	"path/filepath"
	"testing"
)

func writeSettings(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "settings.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write settings: %v", err)
	}
	return path
}

// setRunFlag marks a run flag as explicitly set and restores it afterwards, so
// buildConfig's flags-beat-settings overlay can be exercised in-process.
func setRunFlag(t *testing.T, name, value string) {
	t.Helper()
	f := runCmd.Flags().Lookup(name)
	if f == nil {
		t.Fatalf("unknown run flag %q", name)
	}
	if err := runCmd.Flags().Set(name, value); err != nil {
		t.Fatalf("set --%s=%s: %v", name, value, err)
	}
	t.Cleanup(func() {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	})
}

const sampleSettings = `organization_name: contoso
projects_and_repos:
  - project: Platform
    repo: infra
strings_to_replace:
  - old: old.host
    new: new.host
source_branch: main
commit_message: Swap hosts
dry_run: true
`

func TestBuildConfigReadsSettingsFile(t *testing.T) {
	runOpts.settings = writeSettings(t, sampleSettings)
	t.Cleanup(func() { runOpts.settings = "" })

	cfg, err := buildConfig(runCmd)
	if err != nil {
		t.Fatalf("buildConfig: %v", err)
	}

	if cfg.Targeting.Organization != "contoso" {
		t.Errorf("organization = %q, want contoso", cfg.Targeting.Organization)
	}
	if len(cfg.Targeting.Targets) != 1 || cfg.Targeting.Targets[0].String() != "Platform/infra" {
		t.Errorf("targets = %+v, want [Platform/infra]", cfg.Targeting.Targets)
	}
	if len(cfg.Rules) != 1 || cfg.Rules[0].Search != "old.host" || cfg.Rules[0].Replace != "new.host" {
		t.Errorf("rules = %+v", cfg.Rules)
	}
	if cfg.Commit.Branch != "main" || cfg.Commit.Message != "Swap hosts" {
		t.Errorf("commit = %+v", cfg.Commit)
	}
	if !cfg.Targeting.DryRun {
		t.Error("dry_run: true in settings was not honored")
	}
}

func TestBuildConfigFlagsOverrideSettings(t *testing.T) {
	runOpts.settings = writeSettings(t, sampleSettings)
	t.Cleanup(func() { runOpts.settings = "" })

	setRunFlag(t, "org", "fabrikam")
	setRunFlag(t, "branch", "release")
	setRunFlag(t, "dry-run", "false")

	cfg, err := buildConfig(runCmd)
	if err != nil {
		t.Fatalf("buildConfig: %v", err)
	}

	if cfg.Targeting.Organization != "fabrikam" {
		t.Errorf("organization = %q, want flag value fabrikam", cfg.Targeting.Organization)
	}
	if cfg.Commit.Branch != "release" {
		t.Errorf("branch = %q, want flag value release", cfg.Commit.Branch)
	}
	if cfg.Targeting.DryRun {
		t.Error("explicit --dry-run=false did not override dry_run: true")
	}
	// Untouched fields still come from the settings file.
	if cfg.Commit.Message != "Swap hosts" {
		t.Errorf("commit message = %q, want settings value", cfg.Commit.Message)
	}
}

func TestBuildConfigRejectsUnknownSettingsKeys(t *testing.T) {
	runOpts.settings = writeSettings(t, "organization_name: contoso\nmystery_knob: 7\n")
	t.Cleanup(func() { runOpts.settings = "" })

	if _, err := buildConfig(runCmd); err == nil {
		t.Fatal("expected unknown settings key to be rejected")
	}
}

func TestBuildConfigValidatesMergedResult(t *testing.T) {
	// Settings provide rules but no organization; nothing overrides it.
	runOpts.settings = writeSettings(t, "strings_to_replace:\n  - old: a\n    new: b\n")
	t.Cleanup(func() { runOpts.settings = "" })

	if _, err := buildConfig(runCmd); err == nil {
		t.Fatal("expected missing organization to fail validation")
	}
}
