package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	buildVersion = "dev"
	buildCommit  = "unknown"
	buildDate    = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "adosweep",
	Short: "Bulk literal string replacement across Azure DevOps repositories",
	Long: `Adosweep replaces literal strings across the files of many Azure DevOps
Git repositories in one run: resolve scope, scan file contents, and push the
replacements as a single commit per repository (or report them with --dry-run).

Examples:
	# Show available commands and global flags
	adosweep --help

	# Preview what a settings.yaml run would change
	adosweep run --settings settings.yaml --dry-run

	# Replace one string in one repository
	adosweep run --org my-org --target MyProject/my-repo --rule "old.host=new.host"

	# Print build info
	adosweep version

Output:
	By default, run writes human-readable output to stdout.
	Structured output is available via --console-format and --out (see run --help).`,
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "Enable verbose logging (prints every Azure DevOps API call and full error details)")
}

var verbose bool

func SetBuildInfo(version, commit, date string) {
	if version != "" {
		buildVersion = version
	}
	if commit != "" {
		buildCommit = commit
	}
	if date != "" {
		buildDate = date
	}

	rootCmd.Version = fmt.Sprintf("%s (%s) %s", buildVersion, buildCommit, buildDate)
	rootCmd.SetVersionTemplate("{{.Version}}\n")
}

func BuildInfo() (version, commit, date string) {
	return buildVersion, buildCommit, buildDate
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
