package cli

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"covmeter/internal/analyze"
	"covmeter/internal/report"
	"covmeter/internal/store"
)

var (
	queryData    string
	queryContext string
)

var queryCmd = &cobra.Command{
	Use:   "query --data STORE FILE...",
	Short: "Report missing lines and branches for source files",
	Long: `Join a measurement store against freshly analyzed source and report, per
file: executed and missing lines, and branching lines whose possible
transitions were only partly taken.

The executable-line set is never stored in measurement files; it is
recomputed here from the source, so the source must match the content that
was measured (a signature mismatch is reported as drift).

By default all measurement contexts are merged; --context restricts the
query to one recorded context label.

Examples:
  covmeter query --data merged.cov pkg/server.go
  covmeter query --data merged.cov --context "test:alpha" pkg/server.go
`,
	Args: cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		s, err := store.ReadFile(queryData)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(3)
		}

		out := cmd.OutOrStdout()
		failed := 0
		for _, path := range args {
			if err := queryOne(out, s, path); err != nil {
				color.New(color.FgRed).Fprintf(out, "%v\n", err)
				failed++
			}
		}
		if failed > 0 {
			os.Exit(1)
		}
	},
}

func queryOne(w io.Writer, s *store.Store, path string) error {
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

	canonical := s.Canonical(path)
	var rec *store.Record
	if queryContext != "" {
		rec, _ = s.Record(canonical, queryContext)
	} else {
		rec, _ = s.Merged(canonical)
	}

	summary, err := report.Query(unit, rec)
	if err != nil {
		return err
	}

	bold := color.New(color.Bold)
	red := color.New(color.FgRed)
	green := color.New(color.FgGreen)

	executed, executable := summary.LineCounts()
	bold.Fprintf(w, "%s\n", path)
	fmt.Fprintf(w, "  lines executed: %d of %d\n", executed, executable)
	if len(summary.MissingLines) > 0 {
		red.Fprintf(w, "  missing lines:  %s\n", joinInts(summary.MissingLines))
	} else if executable > 0 {
		green.Fprintf(w, "  all executable lines ran\n")
	}
	// A record without arc data came from a line-mode run; untaken
	// branches would be an artifact of the mode, not a coverage gap.
	if rec != nil && len(rec.Arcs) > 0 {
		for _, b := range summary.Branches {
			switch {
			case b.Full():
				continue
			case b.Partial():
				red.Fprintf(w, "  line %d: %d of %d branches taken, never jumped to %s\n",
					b.Line, b.Taken, b.Possible, joinInts(b.Missing))
			default:
				red.Fprintf(w, "  line %d: no branches taken\n", b.Line)
			}
		}
	}
	return nil
}

func joinInts(nums []int) string {
	parts := make([]string, len(nums))
	for i, n := range nums {
		parts[i] = fmt.Sprintf("%d", n)
	}
	return strings.Join(parts, ", ")
}

func init() {
	rootCmd.AddCommand(queryCmd)
	queryCmd.Flags().StringVar(&queryData, "data", "", "Measurement store to query (required)")
	queryCmd.Flags().StringVar(&queryContext, "context", "", "Restrict the query to one context label")
	_ = queryCmd.MarkFlagRequired("data")
}
