package main

import (
	"fmt"
	"path/filepath"
	"strconv"

	"github.com/spf13/cobra"

	"snapsift/internal/sweep"
)

// bucketOrder fixes table ordering for plan and status output.
var bucketOrder = []sweep.Bucket{
	sweep.BucketDocuments,
	sweep.BucketToDelete,
	sweep.BucketUnsure,
	sweep.BucketLowKeep,
	sweep.BucketUnknown,
}

func newSweepCommand(ctx *commandContext) *cobra.Command {
	sweepCmd := &cobra.Command{
		Use:   "sweep",
		Short: "Move flagged images through two-phase review",
	}

	sweepCmd.AddCommand(newSweepPlanCommand(ctx))
	sweepCmd.AddCommand(newSweepCopyCommand(ctx))
	sweepCmd.AddCommand(newSweepFinalizeCommand(ctx))
	sweepCmd.AddCommand(newSweepStatusCommand(ctx))
	sweepCmd.AddCommand(newSweepRunsCommand(ctx))

	return sweepCmd
}

// buildSweeper wires a sweeper against the cache and the run journal. The
// caller must close the returned journal.
func (c *commandContext) buildSweeper(provider string, limit int) (*sweep.Sweeper, *sweep.Journal, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, nil, err
	}
	logger, err := c.ensureLogger()
	if err != nil {
		return nil, nil, err
	}
	cache, err := c.openCache()
	if err != nil {
		return nil, nil, err
	}
	model, err := c.primaryModel(provider)
	if err != nil {
		return nil, nil, err
	}

	journal, err := sweep.OpenJournal(filepath.Join(cfg.Paths.SweepRoot, "journal.db"))
	if err != nil {
		return nil, nil, err
	}
	sweeper, err := sweep.New(sweep.Options{
		Cache:     cache,
		Journal:   journal,
		SweepRoot: cfg.Paths.SweepRoot,
		Model:     model,
		Size:      cfg.Analysis.Size,
		Thresholds: sweep.Thresholds{
			Delete:  cfg.Sweep.ThreshDelete,
			Unsure:  cfg.Sweep.ThreshUnsure,
			LowKeep: cfg.Sweep.ThreshLowKeep,
		},
		Limit:  limit,
		Logger: logger,
	})
	if err != nil {
		journal.Close()
		return nil, nil, err
	}
	return sweeper, journal, nil
}

// resolveRun picks the newest run when the flag is empty.
func resolveRun(sweeper *sweep.Sweeper, runID string) (string, error) {
	if runID != "" {
		return runID, nil
	}
	runs, err := sweeper.ListRuns()
	if err != nil {
		return "", err
	}
	if len(runs) == 0 {
		return "", fmt.Errorf("no sweep runs found; start one with `snapsift sweep copy`")
	}
	return runs[0], nil
}

func bucketRows(counts map[sweep.Bucket]int) [][]string {
	var rows [][]string
	for _, bucket := range bucketOrder {
		if counts[bucket] > 0 {
			rows = append(rows, []string{string(bucket), strconv.Itoa(counts[bucket])})
		}
	}
	return rows
}

func newSweepPlanCommand(ctx *commandContext) *cobra.Command {
	var provider string

	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Show which buckets a sweep would fill, without copying",
		RunE: func(cmd *cobra.Command, args []string) error {
			sweeper, journal, err := ctx.buildSweeper(provider, 0)
			if err != nil {
				return err
			}
			defer journal.Close()

			plan, err := sweeper.Plan(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(plan) == 0 {
				fmt.Fprintln(out, "Nothing to sweep")
				return nil
			}
			fmt.Fprintln(out, renderTable(
				[]string{"Bucket", "Files"},
				bucketRows(plan),
				[]columnAlignment{alignLeft, alignRight},
			))
			return nil
		},
	}

	cmd.Flags().StringVar(&provider, "provider", "", "Provider whose verdicts drive the sweep")
	return cmd
}

func newSweepCopyCommand(ctx *commandContext) *cobra.Command {
	var provider string
	var runID string
	var limit int

	cmd := &cobra.Command{
		Use:   "copy",
		Short: "Phase 1: copy flagged images into review buckets",
		RunE: func(cmd *cobra.Command, args []string) error {
			sweeper, journal, err := ctx.buildSweeper(provider, limit)
			if err != nil {
				return err
			}
			defer journal.Close()

			sctx, stop := signalContext(cmd.Context())
			defer stop()

			report, err := sweeper.Copy(sctx, runID)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Run %s: copied %d, skipped %d\n", report.RunID, report.Copied, report.Skipped)
			if rows := bucketRows(report.Buckets); len(rows) > 0 {
				fmt.Fprintln(out, renderTable(
					[]string{"Bucket", "Files"},
					rows,
					[]columnAlignment{alignLeft, alignRight},
				))
			}
			fmt.Fprintf(out, "Review the buckets under %s, then run `snapsift sweep finalize --run %s`\n",
				sweeper.RunDir(report.RunID), report.RunID)
			return nil
		},
	}

	cmd.Flags().StringVar(&provider, "provider", "", "Provider whose verdicts drive the sweep")
	cmd.Flags().StringVar(&runID, "run", "", "Resume an existing run instead of starting a new one")
	cmd.Flags().IntVar(&limit, "limit", 0, "Copy at most this many files (0 = all)")
	return cmd
}

func newSweepFinalizeCommand(ctx *commandContext) *cobra.Command {
	var provider string
	var runID string
	var yes bool

	cmd := &cobra.Command{
		Use:   "finalize",
		Short: "Phase 2: move reviewed buckets into final_deletion",
		RunE: func(cmd *cobra.Command, args []string) error {
			sweeper, journal, err := ctx.buildSweeper(provider, 0)
			if err != nil {
				return err
			}
			defer journal.Close()

			run, err := resolveRun(sweeper, runID)
			if err != nil {
				return err
			}

			status, err := sweeper.Status(cmd.Context(), run)
			if err != nil {
				return err
			}
			pending := 0
			for _, count := range status.Remaining {
				pending += count
			}
			if pending == 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "Run %s has no files left to finalize\n", run)
				return nil
			}
			if !yes {
				return fmt.Errorf("run %s would move %d file(s) into final_deletion; pass --yes to confirm", run, pending)
			}

			sctx, stop := signalContext(cmd.Context())
			defer stop()

			report, err := sweeper.Finalize(sctx, run)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Run %s: moved %d file(s) into %s\n",
				report.RunID, report.Moved, filepath.Join(sweeper.RunDir(report.RunID), "final_deletion"))
			return nil
		},
	}

	cmd.Flags().StringVar(&provider, "provider", "", "Provider whose verdicts drive the sweep")
	cmd.Flags().StringVar(&runID, "run", "", "Run to finalize (defaults to the newest)")
	cmd.Flags().BoolVar(&yes, "yes", false, "Confirm the moves")
	return cmd
}

func newSweepStatusCommand(ctx *commandContext) *cobra.Command {
	var provider string
	var runID string

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show a run's remaining buckets and journal counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			sweeper, journal, err := ctx.buildSweeper(provider, 0)
			if err != nil {
				return err
			}
			defer journal.Close()

			run, err := resolveRun(sweeper, runID)
			if err != nil {
				return err
			}
			status, err := sweeper.Status(cmd.Context(), run)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Run %s\n", run)
			if rows := bucketRows(status.Remaining); len(rows) > 0 {
				fmt.Fprintln(out, renderTable(
					[]string{"Bucket", "Remaining"},
					rows,
					[]columnAlignment{alignLeft, alignRight},
				))
			} else {
				fmt.Fprintln(out, "All review buckets are empty")
			}
			fmt.Fprintf(out, "Finalized: %d\n", status.Finalized)
			for _, phase := range []string{"copy", "finalize"} {
				if count, ok := status.Journal[phase]; ok {
					fmt.Fprintf(out, "Journaled %s actions: %d\n", phase, count)
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&provider, "provider", "", "Provider whose verdicts drive the sweep")
	cmd.Flags().StringVar(&runID, "run", "", "Run to inspect (defaults to the newest)")
	return cmd
}

func newSweepRunsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "runs",
		Short: "List sweep runs, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			sweeper, journal, err := ctx.buildSweeper("", 0)
			if err != nil {
				return err
			}
			defer journal.Close()

			runs, err := sweeper.ListRuns()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(runs) == 0 {
				fmt.Fprintln(out, "No sweep runs found")
				return nil
			}
			for _, run := range runs {
				fmt.Fprintln(out, run)
			}
			return nil
		},
	}
}
