package main

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"snapsift/internal/scan"
)

func newScanCommand(ctx *commandContext) *cobra.Command {
	var nearDups bool
	var coverage bool
	var provider string

	cmd := &cobra.Command{
		Use:   "scan [root]",
		Short: "Walk the image collection and report histograms",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			root := cfg.Paths.ImagesRoot
			if len(args) == 1 {
				root = args[0]
			}
			if strings.TrimSpace(root) == "" {
				return fmt.Errorf("images root required: set paths.images_root or pass a directory")
			}
			logger, err := ctx.ensureLogger()
			if err != nil {
				return err
			}

			sctx, stop := signalContext(cmd.Context())
			defer stop()

			stderr := cmd.ErrOrStderr()
			engine, err := scan.New(root, scan.Options{
				NearDupDistance: cfg.Scan.NearDupDistance,
				OnProgress: func(scanned, total int) {
					fmt.Fprintf(stderr, "\rscanned %d/%d files", scanned, total)
				},
				Logger: logger,
			})
			if err != nil {
				return err
			}

			summary, err := engine.Scan(sctx)
			fmt.Fprintln(stderr)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, renderTable(
				[]string{"Metric", "Count"},
				[][]string{
					{"Total files", strconv.Itoa(summary.TotalFiles)},
					{"Images", strconv.Itoa(summary.ImageCount())},
					{"Non-images", strconv.Itoa(summary.NonImageCount)},
				},
				[]columnAlignment{alignLeft, alignRight},
			))

			if len(summary.ExtCounts) > 0 {
				fmt.Fprintln(out, renderTable(
					[]string{"Extension", "Count"},
					countRows(summary.ExtCounts),
					[]columnAlignment{alignLeft, alignRight},
				))
			}
			if len(summary.YearExtCounts) > 0 {
				fmt.Fprintln(out, renderTable(
					[]string{"Year", "Extension", "Count"},
					yearRows(summary.YearExtCounts),
					[]columnAlignment{alignLeft, alignLeft, alignRight},
				))
			}
			if len(summary.DeviceCounts) > 0 {
				fmt.Fprintln(out, renderTable(
					[]string{"Device", "Count"},
					countRows(summary.DeviceCounts),
					[]columnAlignment{alignLeft, alignRight},
				))
			}

			if coverage {
				model, err := ctx.primaryModel(provider)
				if err != nil {
					return err
				}
				cache, err := ctx.openCache()
				if err != nil {
					return err
				}
				cov, err := engine.CacheCoverage(sctx, cache, summary.ImagePaths, model, cfg.Analysis.Size)
				if err != nil {
					return err
				}
				fmt.Fprintln(out, renderTable(
					[]string{"Coverage", "Count"},
					[][]string{
						{fmt.Sprintf("Cached (%s)", model), strconv.Itoa(cov.Cached)},
						{"Uncached", strconv.Itoa(len(cov.UncachedPaths))},
					},
					[]columnAlignment{alignLeft, alignRight},
				))
			}

			if nearDups {
				groups, err := engine.NearDuplicates(sctx, summary.ImagePaths)
				if err != nil {
					return err
				}
				if len(groups) == 0 {
					fmt.Fprintln(out, "No near-duplicate groups found")
				}
				for i, group := range groups {
					fmt.Fprintf(out, "Group %d (%d images):\n", i+1, len(group))
					for _, member := range group {
						fmt.Fprintf(out, "  %s\n", member)
					}
				}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&nearDups, "near-dups", false, "Group images by perceptual-hash similarity")
	cmd.Flags().BoolVar(&coverage, "coverage", false, "Report how many images already have cached verdicts")
	cmd.Flags().StringVar(&provider, "provider", "", "Provider whose model keys the coverage check")
	return cmd
}

// countRows sorts a histogram by descending count, then name.
func countRows(counts map[string]int) [][]string {
	names := make([]string, 0, len(counts))
	for name := range counts {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		if counts[names[i]] != counts[names[j]] {
			return counts[names[i]] > counts[names[j]]
		}
		return names[i] < names[j]
	})
	rows := make([][]string, 0, len(names))
	for _, name := range names {
		rows = append(rows, []string{name, strconv.Itoa(counts[name])})
	}
	return rows
}

func yearRows(years map[string]map[string]int) [][]string {
	yearKeys := make([]string, 0, len(years))
	for year := range years {
		yearKeys = append(yearKeys, year)
	}
	sort.Strings(yearKeys)

	var rows [][]string
	for _, year := range yearKeys {
		exts := make([]string, 0, len(years[year]))
		for ext := range years[year] {
			exts = append(exts, ext)
		}
		sort.Strings(exts)
		for _, ext := range exts {
			rows = append(rows, []string{year, ext, strconv.Itoa(years[year][ext])})
		}
	}
	return rows
}
