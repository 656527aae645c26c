package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"covmeter/internal/analyze"
)

var analyzeShowArcs bool

var analyzeCmd = &cobra.Command{
	Use:   "analyze FILE...",
	Short: "Show the static structure of source files",
	Long: `Analyze source files without any execution data: which lines are
executable, which lines a directive excludes, and which lines branch.

A line is excluded by placing a "nocover" marker in a comment on it; on a
line that opens a function or control-flow block, the marker excludes the
whole block.

A file that fails to parse is reported and the remaining files are still
analyzed.

Examples:
  covmeter analyze pkg/server.go
  covmeter analyze --arcs pkg/server.go
`,
	Args: cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		failed := 0
		for _, path := range args {
			if err := analyzeOne(out, path); err != nil {
				color.New(color.FgRed).Fprintf(out, "%v\n", err)
				failed++
			}
		}
		if failed > 0 {
			os.Exit(1)
		}
	},
}

func analyzeOne(w io.Writer, path string) error {
	content, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	a, ok := analyze.For(path)
	if !ok {
		return fmt.Errorf("no analyzer handles %s", path)
	}
	unit, err := a.Analyze(path, content)
	if err != nil {
		return err
	}

	bold := color.New(color.Bold)
	bold.Fprintf(w, "%s\n", path)
	fmt.Fprintf(w, "  signature:  %s\n", unit.Signature[:12])
	fmt.Fprintf(w, "  executable: %v\n", unit.ExecutableLines)
	if len(unit.ExcludedLines) > 0 {
		fmt.Fprintf(w, "  excluded:   %v\n", unit.ExcludedLines)
	}
	if branches := unit.BranchLines(); len(branches) > 0 {
		fmt.Fprintf(w, "  branches:   %v\n", branches)
	}
	if analyzeShowArcs {
		fmt.Fprintf(w, "  arcs:\n")
		for _, arc := range unit.Arcs {
			fmt.Fprintf(w, "    %s -> %s\n", arcEnd(arc.From), arcEnd(arc.To))
		}
	}
	return nil
}

func arcEnd(line int) string {
	if line == analyze.SentinelLine {
		return "(entry/exit)"
	}
	return fmt.Sprintf("%d", line)
}

func init() {
	rootCmd.AddCommand(analyzeCmd)
	analyzeCmd.Flags().BoolVar(&analyzeShowArcs, "arcs", false, "Also list every possible control-flow arc")
}
