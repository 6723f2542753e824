package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"snapsift/internal/viewer"
)

func newServeCommand(ctx *commandContext) *cobra.Command {
	var bind string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the cache document and image files for the web viewer",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.ensureLogger()
			if err != nil {
				return err
			}
			if strings.TrimSpace(cfg.Paths.ImagesRoot) == "" {
				return fmt.Errorf("paths.images_root must be set to serve images")
			}
			if bind == "" {
				bind = cfg.Paths.ViewerBind
			}

			srv, err := viewer.New(viewer.Options{
				Bind:       bind,
				CachePath:  cfg.Paths.CacheFile,
				ImagesRoot: cfg.Paths.ImagesRoot,
				Logger:     logger,
			})
			if err != nil {
				return err
			}

			sctx, stop := signalContext(cmd.Context())
			defer stop()

			if err := srv.Start(sctx); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Viewer listening on http://%s (Ctrl-C to stop)\n", srv.Addr())

			<-sctx.Done()
			srv.Stop()
			return nil
		},
	}

	cmd.Flags().StringVar(&bind, "bind", "", "Listen address (defaults to paths.viewer_bind)")
	return cmd
}
