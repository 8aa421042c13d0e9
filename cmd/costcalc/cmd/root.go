// Package cmd provides the CLI commands for costcalc.
package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Simplici0/importcost/internal/config"
	"github.com/Simplici0/importcost/internal/logging"
	"github.com/Simplici0/importcost/internal/metrics"
	"github.com/Simplici0/importcost/internal/pricing"
	"github.com/Simplici0/importcost/internal/report"
)

// Version is set at build time with -ldflags.
var Version = "dev"

// app carries what every subcommand shares.
type app struct {
	verbose     bool
	showMetrics bool
	cfg         config.Config
	log         *zap.Logger
	registry    *prometheus.Registry
	metrics     *metrics.Metrics
}

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	reg := prometheus.NewRegistry()
	a := &app{log: zap.NewNop(), registry: reg, metrics: metrics.New(reg)}

	root := &cobra.Command{
		Use:   "costcalc",
		Short: "Compute landed cost and profit of imported goods",
		Long: `costcalc computes the landed cost of a shipment line, and its profit once
sold, with exact decimal arithmetic.

Examples:
  costcalc compute --unit-price 200 --quantity 2
  costcalc compute --unit-price 200 --quantity 2 --sale-price 1500 --format json
  costcalc report lines.json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init()
		},
	}

	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "enable debug logging on stderr")
	root.PersistentFlags().BoolVar(&a.showMetrics, "metrics", false, "write the computation counters to stderr in Prometheus text format on exit")

	root.AddCommand(newComputeCmd(a))
	root.AddCommand(newReportCmd(a))
	root.AddCommand(newVersionCmd())
	return root
}

func (a *app) init() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	a.cfg = cfg

	level := "warn"
	if a.verbose {
		level = "debug"
	}
	logger, err := logging.New(logging.Config{Level: level, Format: "console", Output: "stderr"})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	a.log = logger
	return nil
}

// writeMetrics dumps the registry when --metrics is set. It runs whether or not
// the command failed, so rejected inputs are counted too.
func (a *app) writeMetrics(w io.Writer) {
	if !a.showMetrics {
		return
	}
	families, err := a.registry.Gather()
	if err != nil {
		a.log.Warn("gather metrics", zap.Error(err))
		return
	}
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			a.log.Warn("write metrics", zap.Error(err))
			return
		}
	}
}

// Execute runs the CLI and prints errors to stderr. Invalid input is reported
// as "field: reason".
func Execute() error {
	root := NewRootCmd()
	err := root.Execute()
	if err != nil {
		fmt.Fprintln(os.Stderr, describe(err))
	}
	return err
}

func describe(err error) string {
	var invalid *pricing.InvalidInputError
	if !errors.As(err, &invalid) {
		return fmt.Sprintf("Error: %v", err)
	}
	msg := fmt.Sprintf("%s: %s", invalid.Field, invalid.Reason)
	var lineErr *report.LineError
	if errors.As(err, &lineErr) {
		msg = fmt.Sprintf("line %d (%s): %s", lineErr.Index, lineErr.ID, msg)
	}
	return msg
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "costcalc version %s\n", Version)
		},
	}
}
