package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"adosweep/internal/azdo"
	"adosweep/internal/config"
	"adosweep/internal/engine"
	"adosweep/internal/output"
)

// defaultSettingsFile is loaded when it exists and --settings is not given.
const defaultSettingsFile = "settings.yaml"

// runOpts holds the raw flag values. They are overlaid onto the config after
// settings are loaded, so explicit flags win over the settings file field by
// field.
var runOpts struct {
	settings      string
	org           string
	targets       []string
	rules         []string
	dryRun        bool
	branch        string
	commitMessage string
	pat           string
	maxRepos      int
	consoleFormat string
	out           string
	outFormat     string
	noConsole     bool
	concurrency   int
	timeout       time.Duration
}

const runHelpTemplate = `{{with (or .Long .Short)}}{{. | trimTrailingWhitespaces}}

{{end}}Usage:
  {{.UseLine}}

{{if .HasAvailableLocalFlags}}Flags:
{{.LocalFlags.FlagUsages | trimTrailingWhitespaces}}

{{end}}{{if .HasAvailableInheritedFlags}}Global Flags:
{{.InheritedFlags.FlagUsages | trimTrailingWhitespaces}}

{{end}}Environment:
	Adosweep authenticates to Azure DevOps with a personal access token or an
	Azure CLI access token.

	Sources (in order):
	1) --pat flag
	2) AZURE_DEVOPS_EXT_PAT environment variable
	3) Azure CLI (az) login via az account get-access-token (if az is installed
	   and logged in)

	Token guidance (brief):
	- The PAT needs Code: Read & Write on every repository in scope, and
	  Project and Team: Read when scanning whole projects or the organization.

	Examples:
		# PAT via environment variable
		export AZURE_DEVOPS_EXT_PAT="<your_token>"
		adosweep run --org my-org --rule "old=new"

		# Azure CLI auth
		az login
		adosweep run --settings settings.yaml

{{if .HasAvailableSubCommands}}Available Commands:
{{range .Commands}}{{if (or .IsAvailableCommand (eq .Name "help"))}}
  {{rpad .Name .NamePadding }} {{.Short}}{{end}}{{end}}

{{end}}{{if .HasAvailableSubCommands}}Use "{{.CommandPath}} [command] --help" for more information about a command.
{{end}}`

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Scan repositories and apply the configured string replacements",
	Long: `Scan a set of Azure DevOps Git repositories and replace the configured
literal strings, pushing at most one commit per repository.

Scope:
	The run covers the whole organization unless narrowed with --target or the
	projects_and_repos list in the settings file. Each --target entry is a
	project name (every repository in it) or PROJECT/REPO.

Settings:
	Configuration can come from a YAML settings file (see --settings; a
	./settings.yaml is picked up automatically). Explicit flags override the
	settings file field by field.

Output:
	Console output is controlled by --console-format (default: text).
	Structured outputs can be written via:
	- --out / --out-format: write an aggregate JSON array or NDJSON stream to a file
	- --no-console: suppress the console sink (use with --out for machine output)

	NDJSON mode emits one JSON object per line: lifecycle Events with a "type"
	field (run.started, repo.result, run.finished).

Exit codes:
	0 = clean run (changes applied, or nothing to change)
	1 = dry run found pending changes
	2 = partial failure (some repositories skipped on errors)
	3 = fatal error (run did not start)

Examples:
	# Everything from the settings file
	adosweep run --settings settings.yaml

	# Preview only, exit 1 if anything would change
	adosweep run --settings settings.yaml --dry-run

	# Ad-hoc replacement over two projects
	adosweep run --org my-org --target Platform,Web --rule "old.host=new.host"
`,
	Run: func(cmd *cobra.Command, args []string) {
		if len(args) == 0 && cmd.Flags().NFlag() == 0 {
			if _, err := os.Stat(defaultSettingsFile); err != nil {
				_ = cmd.Help()
				return
			}
		}

		cfg, err := buildConfig(cmd)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(3)
		}

		ctx, cancel := context.WithTimeout(context.Background(), cfg.Runtime.Timeout)
		defer cancel()

		cred, err := azdo.ResolveCredential(ctx, runOpts.pat)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: failed to resolve Azure DevOps credential: %v\n", err)
			os.Exit(3)
		}
		if cred.Token == "" {
			fmt.Fprintln(os.Stderr, "Error: an Azure DevOps credential is required (pass --pat, set AZURE_DEVOPS_EXT_PAT, or run 'az login')")
			os.Exit(3)
		}
		if cfg.Runtime.Verbose {
			fmt.Fprintf(os.Stderr, "[verbose] using credential from %s\n", cred.Source)
		}

		client, err := azdo.NewClient(ctx,
			azdo.OrganizationURL(cfg.Targeting.BaseURL, cfg.Targeting.Organization),
			cred,
			azdo.WithVerbose(cfg.Runtime.Verbose, nil))
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: failed to create Azure DevOps client: %v\n", err)
			os.Exit(3)
		}

		outMgr, err := buildOutputManager(cfg)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(3)
		}

		eng := engine.New(client, cfg, outMgr)
		summary, runErr := eng.Run(ctx)
		if closeErr := outMgr.Close(); closeErr != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", closeErr)
		}
		if runErr != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", describeFatal(runErr))
			os.Exit(3)
		}
		os.Exit(summary.ExitCode(cfg.Targeting.DryRun))
	},
}

// buildConfig assembles the effective run config: defaults, then the settings
// file, then any flag the user actually set.
func buildConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg := config.New()

	settingsPath := runOpts.settings
	if settingsPath == "" {
		if _, err := os.Stat(defaultSettingsFile); err == nil {
			settingsPath = defaultSettingsFile
		}
	}
	if settingsPath != "" {
		if err := cfg.LoadSettings(settingsPath); err != nil {
			return nil, err
		}
	}

	flagSet := cmd.Flags()
	if flagSet.Changed("org") {
		cfg.Targeting.Organization = runOpts.org
	}
	if flagSet.Changed("target") {
		targets, err := config.ParseTargetSelectors(runOpts.targets)
		if err != nil {
			return nil, err
		}
		cfg.Targeting.Targets = targets
	}
	if flagSet.Changed("rule") {
		set, err := config.ParseRuleAssignments(runOpts.rules)
		if err != nil {
			return nil, err
		}
		cfg.Rules = set
	}
	if flagSet.Changed("dry-run") {
		cfg.Targeting.DryRun = runOpts.dryRun
	}
	if flagSet.Changed("branch") {
		cfg.Commit.Branch = runOpts.branch
	}
	if flagSet.Changed("commit-message") {
		cfg.Commit.Message = runOpts.commitMessage
	}
	if flagSet.Changed("max-repos") {
		cfg.Targeting.MaxRepos = runOpts.maxRepos
	}
	if flagSet.Changed("console-format") {
		cfg.Output.ConsoleFormat = runOpts.consoleFormat
	}
	if flagSet.Changed("out") {
		cfg.Output.Out = runOpts.out
	}
	if flagSet.Changed("out-format") {
		cfg.Output.OutFormat = runOpts.outFormat
	}
	if flagSet.Changed("no-console") {
		cfg.Output.NoConsole = runOpts.noConsole
	}
	if flagSet.Changed("concurrency") {
		cfg.Runtime.Concurrency = runOpts.concurrency
	}
	if flagSet.Changed("timeout") {
		cfg.Runtime.Timeout = runOpts.timeout
	}
	cfg.Runtime.Verbose = verbose

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// buildOutputManager wires the sinks the config asks for.
func buildOutputManager(cfg *config.Config) (*output.Manager, error) {
	mgr := output.NewManager()
	if !cfg.Output.NoConsole {
		if err := mgr.AddSink(output.NewConsoleSink(nil, cfg.Output.ConsoleFormat)); err != nil {
			return nil, fmt.Errorf("failed to add console sink: %w", err)
		}
	}
	if cfg.Output.Out != "" {
		fs, err := output.NewFileSink(cfg.Output.Out, cfg.Output.OutFormat)
		if err != nil {
			return nil, fmt.Errorf("failed to create output file %s: %w", cfg.Output.Out, err)
		}
		if err := mgr.AddSink(fs); err != nil {
			return nil, fmt.Errorf("failed to add file sink: %w", err)
		}
	}
	return mgr, nil
}

// describeFatal adds a hint for the common fatal cases.
func describeFatal(err error) string {
	var authErr *engine.AuthenticationError
	if errors.As(err, &authErr) {
		return fmt.Sprintf("%v (check the token's scopes and expiry)", err)
	}
	var scopeErr *engine.ScopeResolutionError
	if errors.As(err, &scopeErr) {
		return fmt.Sprintf("%v (check organization_name and projects_and_repos)", err)
	}
	return err.Error()
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.SetHelpTemplate(runHelpTemplate)

	// MAINTAINER NOTE: If you add/change/remove any run-affecting flags here,
	// keep buildConfig's overlay and the settings.yaml schema in
	// internal/config/config.go in sync.

	// Targeting
	runCmd.Flags().StringVar(&runOpts.settings, "settings", "", "Path to a YAML settings file (default: ./settings.yaml if present)")
	runCmd.Flags().StringVar(&runOpts.org, "org", "", "Azure DevOps organization name")
	runCmd.Flags().StringSliceVar(&runOpts.targets, "target", nil, "Scope entry as PROJECT or PROJECT/REPO (repeatable; comma-separated accepted)")
	runCmd.Flags().IntVar(&runOpts.maxRepos, "max-repos", 0, "Maximum number of repositories to process (0 = unlimited)")
	runCmd.Flags().BoolVar(&runOpts.dryRun, "dry-run", false, "Report intended changes without pushing anything")

	// Rules and commit
	runCmd.Flags().StringArrayVar(&runOpts.rules, "rule", nil, "Replacement as OLD=NEW (repeatable; not comma-split)")
	runCmd.Flags().StringVar(&runOpts.branch, "branch", "", "Branch to scan and commit to (default: each repository's default branch)")
	runCmd.Flags().StringVar(&runOpts.commitMessage, "commit-message", "", "Commit message for applied changes (default: Bulk update)")

	// Authentication
	runCmd.Flags().StringVar(&runOpts.pat, "pat", "", "Personal access token (default: AZURE_DEVOPS_EXT_PAT, then az CLI)")

	// Output
	runCmd.Flags().StringVar(&runOpts.consoleFormat, "console-format", "text", "Console output format: text|json|ndjson (default: text)")
	runCmd.Flags().StringVar(&runOpts.out, "out", "", "Write structured output to this path")
	runCmd.Flags().StringVar(&runOpts.outFormat, "out-format", "", "Structured output format for --out: json|ndjson (default: inferred from file extension)")
	runCmd.Flags().BoolVar(&runOpts.noConsole, "no-console", false, "Suppress console output (use with --out)")

	// Runtime
	runCmd.Flags().IntVar(&runOpts.concurrency, "concurrency", 5, "Concurrent repository workers (default: 5)")
	runCmd.Flags().DurationVar(&runOpts.timeout, "timeout", 30*time.Minute, "Global timeout (default: 30m)")
}
