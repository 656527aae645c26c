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
	Use:   "covmeter",
	Short: "Inspect, query and combine execution-coverage measurements",
	Long: `Covmeter works with execution-coverage measurement stores: files recording
which source lines and control-flow transitions actually ran.

Measurement itself happens inside the monitored program, which writes one
store file per process. This tool handles everything after that.

Examples:
	# Show the static structure of a source file
	covmeter analyze pkg/server.go

	# Merge store files from many processes or machines
	covmeter combine -o merged.cov runs/*.cov

	# Report missing lines and branches for a file
	covmeter query --data merged.cov pkg/server.go

	# Print build info
	covmeter version

Diagnostics:
	Set COVMETER_DEBUG to a log level (trace, debug, info, warn) to see the
	core's internal diagnostics on stderr.`,
}

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
