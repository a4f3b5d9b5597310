package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sigreer/jbod/internal/config"
	"github.com/sigreer/jbod/internal/logger"
)

var (
	cfgFile  string
	logLevel string
	jsonOut  bool

	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "jbod",
	Short: "SES enclosure status and slot LED control",
	Long: `jbod talks SCSI Enclosure Services to JBOD enclosures through the
Linux sg driver. It lists enclosures, disks, fans and sensors, drives the
identify and fault LEDs of disk slots, and serves the same status as
Prometheus metrics.

Enclosures are found by scanning /sys/class/scsi_generic unless targets are
listed in the configuration file.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		if logLevel != "" {
			c.Logging.Level = logLevel
		}
		logger.Initialize("jbod", logger.Options{
			Level:      c.Logging.Level,
			File:       c.Logging.File,
			MaxSizeMB:  c.Logging.MaxSizeMB,
			MaxBackups: c.Logging.MaxBackups,
			MaxAgeDays: c.Logging.MaxAgeDays,
		})
		cfg = c
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logger.Flush()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is /etc/jbod/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn or error")
	rootCmd.PersistentFlags().BoolVar(&jsonOut, "json", false, "Output as JSON")

	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(ledCmd)
	rootCmd.AddCommand(locateCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(versionCmd)
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		logger.Flush()
		os.Exit(1)
	}
}
