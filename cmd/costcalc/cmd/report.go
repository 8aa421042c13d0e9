package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Simplici0/importcost/internal/metrics"
	"github.com/Simplici0/importcost/internal/pricing"
	"github.com/Simplici0/importcost/internal/report"
)

func newReportCmd(a *app) *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "report [file|-]",
		Short: "Build portfolio reports from a JSON array of shipment lines",
		Long: `Read a JSON array of shipment lines from a file, or stdin when the file is
"-" or omitted, and print profitability, status, freight and return reports.

Examples:
  costcalc report lines.json
  cat lines.json | costcalc report --format json`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := checkFormat(format); err != nil {
				return err
			}
			defer a.writeMetrics(cmd.ErrOrStderr())
			path := "-"
			if len(args) > 0 {
				path = args[0]
			}
			return a.runReport(cmd.InOrStdin(), cmd.OutOrStdout(), path, format)
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "text", "output format (text, json)")
	return cmd
}

func (a *app) runReport(stdin io.Reader, out io.Writer, path, format string) error {
	in := stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("open lines: %w", err)
		}
		defer f.Close()
		in = f
	}

	var raw []json.RawMessage
	if err := json.NewDecoder(in).Decode(&raw); err != nil {
		return fmt.Errorf("decode lines: %w", err)
	}
	lines, err := report.DecodeLines(raw)
	if err != nil {
		a.observe(metrics.SourceReport, err)
		return err
	}
	a.log.Debug("building report", zap.String("source", path), zap.Int("lines", len(lines)))

	rep, err := report.Build(lines)
	a.observe(metrics.SourceReport, err)
	if err != nil {
		return err
	}

	if format == "json" {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(rep)
	}
	return writeReportText(out, rep)
}

func fixed(d decimal.Decimal) string {
	return d.StringFixed(pricing.DisplayPlaces)
}

func writeReportText(out io.Writer, rep report.Report) error {
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)

	fmt.Fprintln(tw, "PROFITABILITY BY MODEL")
	writeProfitability(tw, rep.ByModel)
	fmt.Fprintln(tw)
	fmt.Fprintln(tw, "PROFITABILITY BY GRADE")
	writeProfitability(tw, rep.ByGrade)
	fmt.Fprintln(tw)

	fmt.Fprintln(tw, "STATUS\tLINES\tUNITS\tVALUE\tAVERAGE\t")
	for _, s := range rep.ByStatus {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%s\t%s\t\n", s.Status, s.Lines, s.Units, fixed(s.TotalValue), fixed(s.AverageValue))
	}
	fmt.Fprintln(tw)

	fmt.Fprintln(tw, "LINE\tMODEL\tPRE-FREIGHT\tLANDED\tDIFFERENCE\tDIFF %\t")
	for _, f := range rep.FreightImpact {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t\n", f.LineID, f.Model, fixed(f.PreFreightLocal), fixed(f.LandedLocal), fixed(f.Difference), fixed(f.DifferencePercent))
	}
	fmt.Fprintln(tw)

	fmt.Fprintln(tw, "LINE\tMODEL\tPROFIT/UNIT\tRETURN %\t")
	for _, r := range rep.Returns {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t\n", r.LineID, r.Model, fixed(r.ProfitUnit), fixed(r.ReturnOnCost))
	}
	fmt.Fprintln(tw)

	s := rep.Summary
	fmt.Fprintf(tw, "Lines\t%d\t\n", s.Lines)
	fmt.Fprintf(tw, "Units\t%d\t\n", s.Units)
	fmt.Fprintf(tw, "Invested (USD)\t%s\t\n", fixed(s.InvestedUSD))
	fmt.Fprintf(tw, "Invested (local)\t%s\t\n", fixed(s.InvestedLocal))
	fmt.Fprintf(tw, "Average landed unit (local)\t%s\t\n", fixed(s.AverageLandedUnitLocal))
	fmt.Fprintf(tw, "Sold (local)\t%s\t\n", fixed(s.TotalSold))
	fmt.Fprintf(tw, "Profit (local)\t%s\t\n", fixed(s.TotalProfit))
	fmt.Fprintf(tw, "Profitable / loss-making models\t%d / %d\t\n", s.ProfitableModels, s.LossMakingModels)
	if s.BestModel != "" {
		fmt.Fprintf(tw, "Best / worst model\t%s / %s\t\n", s.BestModel, s.WorstModel)
	}
	return tw.Flush()
}

func writeProfitability(w io.Writer, rows []report.Profitability) {
	fmt.Fprintln(w, "KEY\tLINES\tUNITS\tINVESTED\tSOLD\tPROFIT\tMARGIN %\t")
	for _, p := range rows {
		fmt.Fprintf(w, "%s\t%d\t%d\t%s\t%s\t%s\t%s\t\n", p.Key, p.Lines, p.Units, fixed(p.Invested), fixed(p.SoldRevenue), fixed(p.Profit), fixed(p.AverageMargin))
	}
}
