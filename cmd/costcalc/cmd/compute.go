package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Simplici0/importcost/internal/form"
	"github.com/Simplici0/importcost/internal/metrics"
	"github.com/Simplici0/importcost/internal/pricing"
)

type computeOptions struct {
	fields       map[string]*string
	percentMode  string
	fillDefaults bool
	format       string
}

// computeFlags maps flag names to form field names.
var computeFlags = []struct {
	flag, field, usage string
}{
	{"unit-price", pricing.FieldUnitPriceUSD, "unit price in USD"},
	{"admin-fee", pricing.FieldAdminFeeFixedUSD, "fixed administrative fee in USD"},
	{"admin-fee-percent", pricing.FieldAdminFeePercent, "administrative fee percentage, read per --percent-mode"},
	{"domestic-freight", pricing.FieldDomesticFreightUSD, "domestic freight in USD"},
	{"handling-fee", pricing.FieldHandlingFeeUSD, "handling fee in USD"},
	{"exchange-rate", pricing.FieldExchangeRate, "local currency units per USD"},
	{"freight-rate", pricing.FieldIntlFreightRateUSD, "international freight rate in USD"},
	{"freight-extra", pricing.FieldIntlFreightExtraUSD, "international freight extra in USD"},
	{"quantity", pricing.FieldQuantity, "number of units"},
	{"sale-price", pricing.FieldSalePriceUnitLocal, "sale price per unit in local currency; empty means not sold"},
}

func newComputeCmd(a *app) *cobra.Command {
	opts := &computeOptions{fields: map[string]*string{}}

	cmd := &cobra.Command{
		Use:   "compute",
		Short: "Compute the landed cost of one shipment line",
		Long: `Compute the landed cost of one shipment line, and its profit when a sale
price is given. Decimal values accept "." or "," as separator.

Examples:
  costcalc compute --unit-price 200 --exchange-rate 5,56 --quantity 2 --fill-defaults
  costcalc compute --unit-price 200 --quantity 2 --fill-defaults --sale-price 1500 --format json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			defer a.writeMetrics(cmd.ErrOrStderr())
			return a.runCompute(cmd.OutOrStdout(), opts)
		},
	}

	for _, f := range computeFlags {
		opts.fields[f.field] = cmd.Flags().String(f.flag, "", f.usage)
	}
	cmd.Flags().StringVar(&opts.percentMode, "percent-mode", "", "percent, legacy or fraction (default from PERCENT_MODE)")
	cmd.Flags().BoolVar(&opts.fillDefaults, "fill-defaults", false, "fill empty values from the configured defaults")
	cmd.Flags().StringVarP(&opts.format, "format", "f", "text", "output format (text, json)")
	_ = cmd.MarkFlagRequired("unit-price")
	_ = cmd.MarkFlagRequired("quantity")

	return cmd
}

func (a *app) runCompute(out io.Writer, opts *computeOptions) error {
	if err := checkFormat(opts.format); err != nil {
		return err
	}
	mode := a.cfg.PercentMode
	if opts.percentMode != "" {
		parsed, err := form.ParsePercentMode(opts.percentMode)
		if err != nil {
			return err
		}
		mode = parsed
	}
	parseOpts := form.Options{PercentMode: mode}
	if opts.fillDefaults || a.cfg.FillDefaults {
		defaults := a.cfg.FormDefaults()
		parseOpts.Defaults = &defaults
	}

	fields := form.Fields{}
	for field, value := range opts.fields {
		fields[field] = *value
	}

	in, err := form.ParseInput(fields, parseOpts)
	if err != nil {
		a.observe(metrics.SourceCLI, err)
		return err
	}
	a.log.Debug("compute input",
		zap.String("percent_mode", string(mode)),
		zap.Stringer("admin_fee_percent", in.AdminFeePercent),
		zap.Stringer("exchange_rate", in.ExchangeRate),
		zap.Int("quantity", in.Quantity),
	)

	res, err := pricing.Compute(in)
	a.observe(metrics.SourceCLI, err)
	if err != nil {
		return err
	}
	return writeResult(out, opts.format, res.Display())
}

// observe counts successful and invalid computations; other failures are not
// computations at all.
func (a *app) observe(source string, err error) {
	var invalid *pricing.InvalidInputError
	switch {
	case err == nil:
		a.metrics.ObserveComputation(source, "")
	case errors.As(err, &invalid):
		a.metrics.ObserveComputation(source, invalid.Field)
	}
}

func writeResult(out io.Writer, format string, d pricing.Display) error {
	switch format {
	case "json":
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(d)
	default:
		tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		rows := []struct {
			label string
			value *string
		}{
			{"Base cost (USD)", &d.BaseCostUSD},
			{"Total cost (USD)", &d.TotalCostUSD},
			{"Total cost (local)", &d.TotalCostLocal},
			{"Freight (USD)", &d.FreightUSD},
			{"Freight (local)", &d.FreightLocal},
			{"Landed cost per unit (USD)", &d.LandedCostUnitUSD},
			{"Landed cost per unit (local)", &d.LandedCostUnitLocal},
			{"Landed cost total (USD)", &d.LandedCostTotalUSD},
			{"Landed cost total (local)", &d.LandedCostTotalLocal},
			{"Profit per unit (local)", d.ProfitUnitLocal},
			{"Profit total (local)", d.ProfitTotalLocal},
			{"Margin (%)", d.MarginPercent},
		}
		for _, row := range rows {
			value := "-"
			if row.value != nil {
				value = *row.value
			}
			fmt.Fprintf(tw, "%s\t%s\t\n", row.label, value)
		}
		return tw.Flush()
	}
}

func checkFormat(format string) error {
	if format != "text" && format != "json" {
		return fmt.Errorf("unknown format %q (want text or json)", format)
	}
	return nil
}
