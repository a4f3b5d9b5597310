package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sigreer/jbod/internal/exporter"
	"github.com/sigreer/jbod/internal/registry"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve enclosure status as Prometheus metrics",
	Long: `Run an HTTP server exposing enclosure status on /metrics.

Every scrape runs a fresh discovery, so hot plugged enclosures appear without
a restart. The log level can be read and changed at runtime on /verbosity.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().String("listen", "", "Listen address (default from config, "+exporter.DefaultListen+")")
}

func runServe(cmd *cobra.Command, args []string) error {
	listen, _ := cmd.Flags().GetString("listen")
	if listen == "" {
		listen = cfg.Exporter.Listen
	}

	ctx, stop := signalContext()
	defer stop()
	a := newApp(cfg)
	defer a.Close()

	collector := exporter.NewCollector(func(ctx context.Context) registry.Outcomes {
		return a.discover(ctx)
	}, cfg.Exporter.ScrapeTimeout)

	zap.L().Info("serving metrics", zap.String("listen", listen))
	if err := exporter.NewServer(listen, collector).ListenAndServe(ctx); err != nil {
		return fmt.Errorf("serving metrics: %w", err)
	}
	fmt.Fprintln(os.Stderr, "Shut down")
	return nil
}
