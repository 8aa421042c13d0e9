// Package report aggregates shipment lines into portfolio reports.
//
// Nothing here is stored: every figure comes from calling pricing.Compute on
// each line, so a report always agrees with the calculator.
package report

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/Simplici0/importcost/internal/pricing"
)

// Status is a line's place in the import pipeline.
type Status string

const (
	StatusPlanned   Status = "planned"
	StatusInTransit Status = "in_transit"
	StatusReceived  Status = "received"
	StatusSold      Status = "sold"
)

// Statuses lists every status in display order.
var Statuses = []Status{StatusPlanned, StatusInTransit, StatusReceived, StatusSold}

// Grade is the cosmetic condition of the units on a line.
type Grade string

const (
	GradeAPlus Grade = "A+"
	GradeA     Grade = "A"
	GradeBPlus Grade = "B+"
	GradeB     Grade = "B"
	GradeC     Grade = "C"
)

// Line is one shipment line: a batch of identical units.
type Line struct {
	ID         string `json:"id" validate:"required"`
	Model      string `json:"model" validate:"required"`
	CapacityGB int    `json:"capacity_gb" validate:"gte=0"`
	Grade      Grade  `json:"grade" validate:"required,oneof=A+ A B+ B C"`
	Status     Status `json:"status" validate:"required,oneof=planned in_transit received sold"`

	pricing.Input `validate:"-"`
}

// Profitability aggregates the lines sharing a model or a grade.
type Profitability struct {
	Key           string          `json:"key"`
	Lines         int             `json:"lines"`
	Units         int             `json:"units"`
	Invested      decimal.Decimal `json:"invested_local"`
	SoldRevenue   decimal.Decimal `json:"sold_revenue_local"`
	Profit        decimal.Decimal `json:"profit_local"`
	AverageMargin decimal.Decimal `json:"average_margin_percent"`
}

type StatusSummary struct {
	Status       Status          `json:"status"`
	Lines        int             `json:"lines"`
	Units        int             `json:"units"`
	TotalValue   decimal.Decimal `json:"total_value_local"`
	AverageValue decimal.Decimal `json:"average_value_local"`
}

// FreightImpact compares a line's unit cost before and after freight.
type FreightImpact struct {
	LineID            string          `json:"line_id"`
	Model             string          `json:"model"`
	CapacityGB        int             `json:"capacity_gb"`
	Grade             Grade           `json:"grade"`
	PreFreightLocal   decimal.Decimal `json:"pre_freight_local"`
	LandedLocal       decimal.Decimal `json:"landed_local"`
	Difference        decimal.Decimal `json:"difference_local"`
	DifferencePercent decimal.Decimal `json:"difference_percent"`
}

// LineReturn is the return on landed cost of a priced line.
type LineReturn struct {
	LineID       string          `json:"line_id"`
	Model        string          `json:"model"`
	Grade        Grade           `json:"grade"`
	Status       Status          `json:"status"`
	ProfitUnit   decimal.Decimal `json:"profit_unit_local"`
	ReturnOnCost decimal.Decimal `json:"return_on_cost_percent"`
}

type Summary struct {
	Lines                  int             `json:"lines"`
	Units                  int             `json:"units"`
	InvestedUSD            decimal.Decimal `json:"invested_usd"`
	InvestedLocal          decimal.Decimal `json:"invested_local"`
	AverageLandedUnitLocal decimal.Decimal `json:"average_landed_unit_local"`
	UniqueModels           int             `json:"unique_models"`
	UniqueGrades           int             `json:"unique_grades"`

	TotalInvested    decimal.Decimal `json:"total_invested_local"`
	TotalSold        decimal.Decimal `json:"total_sold_local"`
	TotalProfit      decimal.Decimal `json:"total_profit_local"`
	ProfitableModels int             `json:"profitable_models"`
	LossMakingModels int             `json:"loss_making_models"`
	BestModel        string          `json:"best_model,omitempty"`
	WorstModel       string          `json:"worst_model,omitempty"`
}

// Report is the full set of portfolio views. Figures are rounded to
// pricing.DisplayPlaces; sums are taken before rounding.
type Report struct {
	ByModel       []Profitability `json:"by_model"`
	ByGrade       []Profitability `json:"by_grade"`
	ByStatus      []StatusSummary `json:"by_status"`
	FreightImpact []FreightImpact `json:"freight_impact"`
	Returns       []LineReturn    `json:"returns"`
	Summary       Summary         `json:"summary"`
}

var (
	validate = validator.New(validator.WithRequiredStructEnabled())
	hundred  = decimal.NewFromInt(100)
)

// UnmarshalJSON decodes the descriptive fields and then the cost fields, which
// pricing.Input checks strictly. Descriptive fields are set even when the cost
// fields fail, so the caller can still name the line.
func (l *Line) UnmarshalJSON(data []byte) error {
	var desc struct {
		ID         string `json:"id"`
		Model      string `json:"model"`
		CapacityGB int    `json:"capacity_gb"`
		Grade      Grade  `json:"grade"`
		Status     Status `json:"status"`
	}
	if err := json.Unmarshal(data, &desc); err != nil {
		return err
	}
	l.ID, l.Model, l.CapacityGB, l.Grade, l.Status = desc.ID, desc.Model, desc.CapacityGB, desc.Grade, desc.Status
	return json.Unmarshal(data, &l.Input)
}

// LineError is a failure tied to one line. Index is 1-based.
type LineError struct {
	Index int
	ID    string
	Err   error
}

func (e *LineError) Error() string {
	return fmt.Sprintf("line %d (%s): %v", e.Index, e.ID, e.Err)
}

func (e *LineError) Unwrap() error { return e.Err }

// DecodeLines decodes each raw line. The first failing line is returned as a
// *LineError.
func DecodeLines(raw []json.RawMessage) ([]Line, error) {
	lines := make([]Line, len(raw))
	for i, msg := range raw {
		if err := json.Unmarshal(msg, &lines[i]); err != nil {
			return nil, &LineError{Index: i + 1, ID: lines[i].ID, Err: err}
		}
	}
	return lines, nil
}

// Validate checks the line's descriptive fields. Cost fields are checked by
// pricing.Compute.
func (l Line) Validate() error {
	return validate.Struct(l)
}

type computed struct {
	line   Line
	result pricing.Result
}

// Build computes every line and aggregates the results. A line that fails
// validation or computation fails the whole report; the error names the line
// in a *LineError wrapping the cause, so errors.As also finds a
// *pricing.InvalidInputError.
func Build(lines []Line) (Report, error) {
	rows := make([]computed, 0, len(lines))
	for i, line := range lines {
		if err := line.Validate(); err != nil {
			return Report{}, &LineError{Index: i + 1, ID: line.ID, Err: err}
		}
		res, err := pricing.Compute(line.Input)
		if err != nil {
			return Report{}, &LineError{Index: i + 1, ID: line.ID, Err: err}
		}
		rows = append(rows, computed{line: line, result: res})
	}

	byModel := profitability(rows, func(l Line) string { return l.Model })
	rep := Report{
		ByModel:       byModel,
		ByGrade:       profitability(rows, func(l Line) string { return string(l.Grade) }),
		ByStatus:      byStatus(rows),
		FreightImpact: freightImpact(rows),
		Returns:       returns(rows),
		Summary:       summary(rows, byModel),
	}
	return rep, nil
}

func round(d decimal.Decimal) decimal.Decimal {
	return d.Round(pricing.DisplayPlaces)
}

// percentOf returns part/whole*100, or zero when whole is not positive.
func percentOf(part, whole decimal.Decimal) decimal.Decimal {
	if !whole.IsPositive() {
		return decimal.Zero
	}
	return part.Div(whole).Mul(hundred)
}

// soldFigures reports the revenue and profit a line contributes to the
// profitability views: only lines marked sold that carry a sale price count.
func soldFigures(row computed) (revenue, profit decimal.Decimal, ok bool) {
	if row.line.Status != StatusSold || !row.result.Sold() {
		return decimal.Zero, decimal.Zero, false
	}
	qty := decimal.NewFromInt(int64(row.line.Quantity))
	return row.line.SalePriceUnitLocal.Decimal.Mul(qty), row.result.ProfitTotalLocal.Decimal, true
}

func profitability(rows []computed, key func(Line) string) []Profitability {
	type acc struct {
		Profitability
		margin decimal.Decimal
	}
	groups := map[string]*acc{}
	var order []string

	for _, row := range rows {
		k := key(row.line)
		g, ok := groups[k]
		if !ok {
			g = &acc{Profitability: Profitability{Key: k}}
			groups[k] = g
			order = append(order, k)
		}
		g.Lines++
		g.Units += row.line.Quantity
		g.Invested = g.Invested.Add(row.result.LandedCostTotalLocal)
		if revenue, profit, sold := soldFigures(row); sold {
			g.SoldRevenue = g.SoldRevenue.Add(revenue)
			g.Profit = g.Profit.Add(profit)
		}
	}

	accs := make([]*acc, 0, len(order))
	for _, k := range order {
		g := groups[k]
		g.margin = percentOf(g.Profit, g.Invested)
		accs = append(accs, g)
	}
	sort.SliceStable(accs, func(i, j int) bool {
		if !accs[i].margin.Equal(accs[j].margin) {
			return accs[i].margin.GreaterThan(accs[j].margin)
		}
		return accs[i].Key < accs[j].Key
	})

	out := make([]Profitability, 0, len(accs))
	for _, g := range accs {
		p := g.Profitability
		p.Invested = round(p.Invested)
		p.SoldRevenue = round(p.SoldRevenue)
		p.Profit = round(p.Profit)
		p.AverageMargin = round(g.margin)
		out = append(out, p)
	}
	return out
}

func byStatus(rows []computed) []StatusSummary {
	out := make([]StatusSummary, 0, len(Statuses))
	for _, status := range Statuses {
		s := StatusSummary{Status: status}
		for _, row := range rows {
			if row.line.Status != status {
				continue
			}
			s.Lines++
			s.Units += row.line.Quantity
			s.TotalValue = s.TotalValue.Add(row.result.LandedCostTotalLocal)
		}
		if s.Lines == 0 {
			continue
		}
		s.AverageValue = round(s.TotalValue.Div(decimal.NewFromInt(int64(s.Lines))))
		s.TotalValue = round(s.TotalValue)
		out = append(out, s)
	}
	return out
}

func freightImpact(rows []computed) []FreightImpact {
	out := make([]FreightImpact, 0, len(rows))
	for _, row := range rows {
		pre := row.result.TotalCostLocal
		landed := row.result.LandedCostUnitLocal
		diff := landed.Sub(pre)
		out = append(out, FreightImpact{
			LineID:            row.line.ID,
			Model:             row.line.Model,
			CapacityGB:        row.line.CapacityGB,
			Grade:             row.line.Grade,
			PreFreightLocal:   round(pre),
			LandedLocal:       round(landed),
			Difference:        round(diff),
			DifferencePercent: round(percentOf(diff, pre)),
		})
	}
	return out
}

func returns(rows []computed) []LineReturn {
	type ranked struct {
		LineReturn
		roc decimal.Decimal
	}
	var items []ranked
	for _, row := range rows {
		if !row.result.Sold() || row.result.ProfitUnitLocal.Decimal.IsZero() {
			continue
		}
		profit := row.result.ProfitUnitLocal.Decimal
		items = append(items, ranked{
			LineReturn: LineReturn{
				LineID:     row.line.ID,
				Model:      row.line.Model,
				Grade:      row.line.Grade,
				Status:     row.line.Status,
				ProfitUnit: round(profit),
			},
			roc: percentOf(profit, row.result.LandedCostUnitLocal),
		})
	}
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].roc.GreaterThan(items[j].roc)
	})

	out := make([]LineReturn, 0, len(items))
	for _, it := range items {
		r := it.LineReturn
		r.ReturnOnCost = round(it.roc)
		out = append(out, r)
	}
	return out
}

func summary(rows []computed, byModel []Profitability) Summary {
	s := Summary{Lines: len(rows)}

	var landedUnitSum, invested, sold, profit decimal.Decimal
	grades := map[Grade]struct{}{}
	for _, row := range rows {
		s.Units += row.line.Quantity
		s.InvestedUSD = s.InvestedUSD.Add(row.result.LandedCostTotalUSD)
		invested = invested.Add(row.result.LandedCostTotalLocal)
		landedUnitSum = landedUnitSum.Add(row.result.LandedCostUnitLocal)
		grades[row.line.Grade] = struct{}{}
		if r, p, ok := soldFigures(row); ok {
			sold = sold.Add(r)
			profit = profit.Add(p)
		}
	}

	s.InvestedUSD = round(s.InvestedUSD)
	s.InvestedLocal = round(invested)
	if len(rows) > 0 {
		s.AverageLandedUnitLocal = round(landedUnitSum.Div(decimal.NewFromInt(int64(len(rows)))))
	}
	s.UniqueModels = len(byModel)
	s.UniqueGrades = len(grades)

	s.TotalInvested = round(invested)
	s.TotalSold = round(sold)
	s.TotalProfit = round(profit)
	for _, m := range byModel {
		switch {
		case m.Profit.IsPositive():
			s.ProfitableModels++
		case m.Profit.IsNegative():
			s.LossMakingModels++
		}
	}
	if len(byModel) > 0 {
		s.BestModel = byModel[0].Key
		s.WorstModel = byModel[len(byModel)-1].Key
	}
	return s
}
