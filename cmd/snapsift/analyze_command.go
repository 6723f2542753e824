package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"snapsift/internal/analyze"
	"snapsift/internal/ratelimit"
	"snapsift/internal/scan"
)

const maxFailureRows = 20

func newAnalyzeCommand(ctx *commandContext) *cobra.Command {
	var providers []string
	var limit int

	cmd := &cobra.Command{
		Use:   "analyze [image|directory...]",
		Short: "Run uncached images through the configured vision providers",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.ensureLogger()
			if err != nil {
				return err
			}

			targets := args
			if len(targets) == 0 {
				if strings.TrimSpace(cfg.Paths.ImagesRoot) == "" {
					return fmt.Errorf("no images given and paths.images_root is not set")
				}
				targets = []string{cfg.Paths.ImagesRoot}
			}
			var paths []string
			for _, target := range targets {
				info, err := os.Stat(target)
				if err != nil {
					return err
				}
				if info.IsDir() {
					listed, err := scan.ListImages(target)
					if err != nil {
						return err
					}
					paths = append(paths, listed...)
				} else {
					paths = append(paths, target)
				}
			}
			if len(paths) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "Nothing to analyze")
				return nil
			}
			if limit > 0 && len(paths) > limit {
				paths = paths[:limit]
			}

			clients, err := ctx.buildClients(providers)
			if err != nil {
				return err
			}
			cache, err := ctx.openCache()
			if err != nil {
				return err
			}
			limiter, err := ratelimit.New(cfg.Analysis.RequestsPerMinute)
			if err != nil {
				return err
			}
			pool, err := analyze.New(analyze.Options{
				Cache:          cache,
				Clients:        clients,
				MaxConcurrent:  cfg.Analysis.MaxConcurrent,
				Limiter:        limiter,
				Policy:         retryPolicy(cfg),
				Size:           cfg.Analysis.Size,
				RequestTimeout: requestTimeout(cfg),
				Logger:         logger,
			})
			if err != nil {
				return err
			}

			sctx, stop := signalContext(cmd.Context())
			defer stop()

			report, runErr := pool.AnalyzeAll(sctx, paths)

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, renderTable(
				[]string{"Outcome", "Count"},
				[][]string{
					{"Pairs", strconv.Itoa(report.Total())},
					{"Cached", strconv.Itoa(report.Cached)},
					{"Succeeded", strconv.Itoa(report.Succeeded)},
					{"Failed", strconv.Itoa(report.Failed)},
					{"Cancelled", strconv.Itoa(report.Cancelled)},
				},
				[]columnAlignment{alignLeft, alignRight},
			))

			if report.Failed > 0 {
				var rows [][]string
				for _, outcome := range report.Outcomes {
					if outcome.Kind != analyze.OutcomeFailed {
						continue
					}
					rows = append(rows, []string{outcome.Path, outcome.Model, outcome.Err.Error()})
					if len(rows) == maxFailureRows {
						break
					}
				}
				fmt.Fprintln(out, renderTable(
					[]string{"Failed image", "Model", "Error"},
					rows,
					[]columnAlignment{alignLeft, alignLeft, alignLeft},
				))
				if report.Failed > maxFailureRows {
					fmt.Fprintf(out, "... and %d more failures\n", report.Failed-maxFailureRows)
				}
			}
			return runErr
		},
	}

	cmd.Flags().StringSliceVar(&providers, "provider", nil, "Provider(s) to use instead of the configured list")
	cmd.Flags().IntVar(&limit, "limit", 0, "Analyze at most this many images (0 = all)")
	return cmd
}
