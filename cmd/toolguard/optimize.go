package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/B-Whitt/redhat-ai-workflow-sub008/internal/config"
	"github.com/B-Whitt/redhat-ai-workflow-sub008/internal/optimize"
)

var (
	// optimize command flags
	optPrune          bool
	optDecay          bool
	optDryRun         bool
	optMaxAgeDays     int
	optMinConf        float64
	optDecayRate      float64
	optInactiveMonths int
)

func init() {
	rootCmd.AddCommand(optimizeCmd)

	optimizeCmd.Flags().BoolVar(&optPrune, "prune", false, "run only the prune phase")
	optimizeCmd.Flags().BoolVar(&optDecay, "decay", false, "run only the decay phase")
	optimizeCmd.Flags().BoolVar(&optDryRun, "dry-run", false, "report what would change without saving")
	optimizeCmd.Flags().IntVar(&optMaxAgeDays, "max-age", 90, "prune age threshold in days")
	optimizeCmd.Flags().Float64Var(&optMinConf, "min-conf", 0.70, "prune confidence threshold for stale patterns")
	optimizeCmd.Flags().Float64Var(&optDecayRate, "decay-rate", 0.05, "confidence deducted per inactive period")
	optimizeCmd.Flags().IntVar(&optInactiveMonths, "inactive-months", 1, "months of inactivity per decay period")
}

var optimizeCmd = &cobra.Command{
	Use:   "optimize",
	Short: "Decay and prune the learned patterns",
	Long: `Optimize the pattern store by decaying the confidence of patterns that
stopped recurring and pruning the ones not worth keeping.

With neither or both of --decay and --prune the full pass runs: decay
first, then prune against the decayed values. Flags override the
corresponding config values only when set.

Examples:
  # Full maintenance pass
  toolguard optimize

  # See what a prune would remove, without saving
  toolguard optimize --prune --dry-run

  # Harsher decay for a quiet store
  toolguard optimize --decay --decay-rate 0.1 --inactive-months 2`,
	RunE: runOptimize,
}

func runOptimize(cmd *cobra.Command, args []string) error {
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

	opts := optimizerOptions(cfg.Optimizer)
	if cmd.Flags().Changed("decay-rate") {
		opts.Decay.Rate = optDecayRate
	}
	if cmd.Flags().Changed("inactive-months") {
		opts.Decay.InactivePeriod = time.Duration(optInactiveMonths) * 30 * 24 * time.Hour
	}
	if cmd.Flags().Changed("max-age") {
		opts.Prune.MaxAge = time.Duration(optMaxAgeDays) * 24 * time.Hour
	}
	if cmd.Flags().Changed("min-conf") {
		opts.Prune.MinConfidence = optMinConf
	}
	opts.DryRun = optDryRun
	opts.Decay.DryRun = optDryRun
	opts.Prune.DryRun = optDryRun

	opt := optimize.NewOptimizer(st, logger)

	var report *optimize.Report
	switch {
	case optDecay == optPrune:
		report, err = opt.Optimize(ctx, opts)
	case optDecay:
		report, err = opt.ApplyDecay(ctx, opts.Decay)
	default:
		report, err = opt.PruneOldPatterns(ctx, opts.Prune)
	}
	if err != nil {
		return fmt.Errorf("optimize: %w", err)
	}

	printReport(report)
	return nil
}

// optimizerOptions maps the optimizer config section onto pass options.
func optimizerOptions(cfg config.OptimizerConfig) optimize.Options {
	return optimize.Options{
		Decay: optimize.DecayOptions{
			Rate:           cfg.DecayRate,
			InactivePeriod: cfg.InactivePeriod,
		},
		Prune: optimize.PruneOptions{
			MaxAge:        cfg.MaxAge,
			MinConfidence: cfg.PruneMinConfidence,
		},
	}
}

func printReport(r *optimize.Report) {
	if r.DryRun {
		fmt.Println("Dry run: no changes were saved")
	}
	fmt.Printf("Patterns:        %d -> %d\n", r.StatsBefore.TotalPatterns, r.StatsAfter.TotalPatterns)
	fmt.Printf("Mean confidence: %.2f -> %.2f\n", r.MeanConfidenceBefore, r.MeanConfidenceAfter)

	if len(r.Decayed) > 0 {
		fmt.Printf("\nDecayed %d pattern(s):\n", len(r.Decayed))
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		for _, d := range r.Decayed {
			fmt.Fprintf(w, "  %s\t%.2f -> %.2f\t%d period(s)\n", d.ID, d.Before, d.After, d.Periods)
		}
		w.Flush()
	}

	if len(r.Pruned) > 0 {
		fmt.Printf("\nPruned %d pattern(s):\n", len(r.Pruned))
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		for _, p := range r.Pruned {
			fmt.Fprintf(w, "  %s\tconf %.2f\tlast seen %s\t%s\n",
				p.ID, p.Confidence, p.LastSeen.Format("2006-01-02"), p.Reason)
		}
		w.Flush()
	}
}
