package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"
)

func newCacheCommand(ctx *commandContext) *cobra.Command {
	cacheCmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect and prune the analysis cache",
	}

	cacheCmd.AddCommand(newCacheStatsCommand(ctx))
	cacheCmd.AddCommand(newCacheCleanupCommand(ctx))
	cacheCmd.AddCommand(newCacheClearCommand(ctx))

	return cacheCmd
}

func newCacheStatsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show cache totals and per-model record counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			cache, err := ctx.openCache()
			if err != nil {
				return err
			}
			stats := cache.Stats()

			rows := [][]string{
				{"Path", cache.Path()},
				{"Records", strconv.Itoa(stats.TotalRecords)},
				{"Images", strconv.Itoa(stats.TotalImages)},
				{"Stale versions", strconv.Itoa(stats.StaleVersions)},
			}
			if !stats.OldestRecord.IsZero() {
				rows = append(rows,
					[]string{"Oldest record", stats.OldestRecord.UTC().Format(time.RFC3339)},
					[]string{"Newest record", stats.NewestRecord.UTC().Format(time.RFC3339)},
				)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, renderTable(
				[]string{"Cache", "Value"},
				rows,
				[]columnAlignment{alignLeft, alignLeft},
			))
			if len(stats.PerModel) > 0 {
				fmt.Fprintln(out, renderTable(
					[]string{"Model", "Records"},
					countRows(stats.PerModel),
					[]columnAlignment{alignLeft, alignRight},
				))
			}
			return nil
		},
	}
}

func newCacheCleanupCommand(ctx *commandContext) *cobra.Command {
	var maxAgeDays int
	var maxEntries int

	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Prune old records and cap the cache size",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("max-age-days") {
				maxAgeDays = cfg.Cache.MaxAgeDays
			}
			if !cmd.Flags().Changed("max-entries") {
				maxEntries = cfg.Cache.MaxEntries
			}

			cache, err := ctx.openCache()
			if err != nil {
				return err
			}

			// The command treats zero as "no age bound"; the cache itself
			// reads zero as "prune everything", which only --all should do.
			age := maxAgeDays
			if age <= 0 {
				age = -1
			}
			removed, err := cache.Cleanup(age, maxEntries)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %d record(s); %d remain\n", removed, cache.Count())
			return nil
		},
	}

	cmd.Flags().IntVar(&maxAgeDays, "max-age-days", 0, "Remove records older than this many days (0 disables)")
	cmd.Flags().IntVar(&maxEntries, "max-entries", 0, "Keep at most this many records (0 disables)")
	return cmd
}

func newCacheClearCommand(ctx *commandContext) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete every cached verdict",
		RunE: func(cmd *cobra.Command, args []string) error {
			cache, err := ctx.openCache()
			if err != nil {
				return err
			}
			count := cache.Count()
			if !yes {
				return fmt.Errorf("refusing to clear %d record(s); pass --yes to confirm", count)
			}
			if err := cache.Clear(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Cleared %d record(s)\n", count)
			return nil
		},
	}

	cmd.Flags().BoolVar(&yes, "yes", false, "Confirm deletion")
	return cmd
}
