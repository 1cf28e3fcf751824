package main

import (
	"context"
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/B-Whitt/redhat-ai-workflow-sub008/internal/pattern"
)

var statsJSON bool

func init() {
	rootCmd.AddCommand(statsCmd)
	statsCmd.Flags().BoolVar(&statsJSON, "json", false, "output as JSON")
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show aggregate statistics over the pattern store",
	Long: `Show aggregate statistics: pattern and observation counts, prevention
success rate, and the category and confidence-band breakdowns.

Examples:
  toolguard stats
  toolguard stats --json`,
	RunE: runStats,
}

func runStats(cmd *cobra.Command, args []string) error {
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

	stats := st.Stats()

	if statsJSON {
		return outputJSON(stats)
	}

	fmt.Printf("Total patterns:       %d\n", stats.TotalPatterns)
	fmt.Printf("Total observations:   %d\n", stats.TotalObservations)
	fmt.Printf("Prevention successes: %d (rate %.2f)\n", stats.PreventionSuccesses, stats.PreventionSuccessRate)

	if len(stats.ByCategory) > 0 {
		fmt.Println("\nBy category:")
		categories := make([]string, 0, len(stats.ByCategory))
		for c := range stats.ByCategory {
			categories = append(categories, string(c))
		}
		sort.Strings(categories)
		for _, c := range categories {
			fmt.Printf("  %-22s %d\n", c, stats.ByCategory[pattern.ErrorCategory(c)])
		}
	}

	if len(stats.ByBand) > 0 {
		fmt.Println("\nBy confidence band:")
		for _, band := range []pattern.ConfidenceBand{
			pattern.BandVeryHigh,
			pattern.BandHigh,
			pattern.BandMedium,
			pattern.BandLow,
		} {
			if n, ok := stats.ByBand[band]; ok {
				fmt.Printf("  %-22s %d\n", band, n)
			}
		}
	}

	return nil
}
