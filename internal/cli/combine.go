package cli

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"covmeter/internal/combine"
	"covmeter/internal/store"
)

var (
	combineOut   string
	combineLabel string
	combineJobs  int
)

var combineCmd = &cobra.Command{
	Use:   "combine -o OUTPUT STORE...",
	Short: "Merge measurement stores into one",
	Long: `Merge N measurement store files into one.

Merging is a union: a line or arc counts as executed if any input saw it
execute, so combining is order-independent and safe for stores collected by
parallel workers on different machines. Each input's own path-alias rules
are applied before merging, letting stores written under different
filesystem layouts meet at the same canonical paths.

Inputs that cannot be read are reported and skipped; combination of the
remaining valid stores still proceeds. Paths whose content signatures
disagree after alias resolution are reported as conflicts and left
unmerged.

Exit codes:
	0 = all inputs combined cleanly
	1 = combined, but some inputs were skipped or conflicted
	3 = fatal error (nothing was combined)

Examples:
  covmeter combine -o merged.cov worker1.cov worker2.cov
  covmeter combine -o merged.cov runs/*.cov
`,
	Args: cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		report, err := combine.Files(cmd.Context(), combineLabel, args, combineJobs)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(3)
		}
		if err := store.WriteFile(report.Store, combineOut); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(3)
		}

		out := cmd.OutOrStdout()
		merged := len(args) - len(report.Skipped)
		fmt.Fprintf(out, "combined %d of %d stores into %s (%d paths)\n",
			merged, report.Inputs, combineOut, len(report.Store.Paths()))

		warn := color.New(color.FgYellow)
		for _, skipped := range report.Skipped {
			warn.Fprintf(out, "skipped %s: %v\n", skipped.Path, skipped.Err)
		}
		for _, conflict := range report.Conflicts {
			warn.Fprintf(out, "conflict: %v\n", conflict)
		}
		if len(report.Skipped) > 0 || len(report.Conflicts) > 0 {
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(combineCmd)
	combineCmd.Flags().StringVarP(&combineOut, "out", "o", "", "Path of the combined store to write (required)")
	combineCmd.Flags().StringVar(&combineLabel, "label", "", "Label for the combined store")
	combineCmd.Flags().IntVar(&combineJobs, "jobs", 4, "How many store files to load in parallel")
	_ = combineCmd.MarkFlagRequired("out")
}
