// Package cmd implements the ragfile command-line tool.
package cmd

import (
	"fmt"
	"os"

	"github.com/jpl-au/ragfile"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// globals holds the state shared by every subcommand.
type globals struct {
	logLevel    string
	retries     int
	throttle    int
	metricsFile string

	log      *zap.Logger
	registry *prometheus.Registry
	metrics  *ragfile.Metrics
}

// options returns library options carrying the shared logger and metrics.
func (g *globals) options() ragfile.Options {
	return ragfile.Options{Retries: g.retries, Logger: g.log, Metrics: g.metrics}
}

// flush writes collected metrics when --metrics-file is set.
func (g *globals) flush() error {
	if g.metricsFile == "" {
		return nil
	}
	if err := prometheus.WriteToTextfile(g.metricsFile, g.registry); err != nil {
		return fmt.Errorf("failed to write metrics: %w", err)
	}
	return nil
}

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	g := &globals{}
	root := &cobra.Command{
		Use:   "ragfile",
		Short: "Build and inspect RAGFile containers",
		Long: `ragfile builds single-file containers that hold the document stores
of several retrieval strategies, and inspects, verifies, dumps and searches
existing files. Files may be local paths, s3://bucket/key or
minio://endpoint/bucket/key URLs.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			log, err := newLogger(g.logLevel)
			if err != nil {
				return err
			}
			g.log = log
			g.registry = prometheus.NewRegistry()
			g.metrics = ragfile.NewMetrics(g.registry)
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			_ = g.log.Sync()
			return g.flush()
		},
	}

	root.PersistentFlags().StringVar(&g.logLevel, "log-level", "warn", "Log level (debug, info, warn, error)")
	root.PersistentFlags().IntVar(&g.retries, "retries", ragfile.DefaultRetries, "Retries for transient read/write failures")
	root.PersistentFlags().IntVar(&g.throttle, "throttle", 0, "Limit reads to this many bytes per second (0 = unlimited)")
	root.PersistentFlags().StringVar(&g.metricsFile, "metrics-file", "", "Write Prometheus metrics to this file on exit")

	root.AddCommand(
		newBuildCmd(g),
		newInspectCmd(g),
		newVerifyCmd(g),
		newDumpCmd(g),
		newSearchCmd(g),
	)
	return root
}

// newLogger builds a production logger at level, writing to stderr.
func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = lvl
	cfg.Encoding = "console"
	cfg.EncoderConfig = zap.NewDevelopmentEncoderConfig()
	cfg.DisableStacktrace = true
	return cfg.Build()
}

// Execute runs the command tree. This is called by main.main().
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
