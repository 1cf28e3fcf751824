package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/B-Whitt/redhat-ai-workflow-sub008/internal/toolguard"
)

var (
	// summary command flags
	sumTop     int
	sumMinConf float64
	sumJSON    bool
)

func init() {
	rootCmd.AddCommand(summaryCmd)

	summaryCmd.Flags().IntVar(&sumTop, "top", 0, "maximum patterns per tool (0 = all)")
	summaryCmd.Flags().Float64Var(&sumMinConf, "min-conf", 0, "exclude patterns below this confidence")
	summaryCmd.Flags().BoolVar(&sumJSON, "json", false, "output as JSON")
}

var summaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Show the learned patterns grouped by tool",
	Long: `Show the learned patterns grouped by tool, ranked by confidence.

Examples:
  # Everything the store knows
  toolguard summary

  # The three strongest patterns per tool
  toolguard summary --top 3 --min-conf 0.75

  # Machine-readable output
  toolguard summary --json`,
	RunE: runSummary,
}

func runSummary(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadRuntime()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx := context.Background()
	st, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	svc := toolguard.New(cfg, st, nil, logger)
	summaries := svc.Summary(ctx, toolguard.SummaryRequest{
		TopN:          sumTop,
		MinConfidence: sumMinConf,
	})

	if sumJSON {
		return outputJSON(summaries)
	}

	if len(summaries) == 0 {
		fmt.Println("No patterns learned yet")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TOOL\tCATEGORY\tCONF\tOBS\tSUCC\tLAST SEEN\tID")
	for _, s := range summaries {
		for _, p := range s.Patterns {
			fmt.Fprintf(w, "%s\t%s\t%.2f\t%d\t%d\t%s\t%s\n",
				s.Tool,
				p.Category,
				p.Confidence,
				p.Observations,
				p.SuccessAfterPrevention,
				p.LastSeen.Format("2006-01-02"),
				truncate(p.ID, 16),
			)
		}
	}
	w.Flush()

	return nil
}
