package pricing

import "github.com/shopspring/decimal"

// Display is a Result formatted with exactly DisplayPlaces fractional digits.
// Profit figures are nil when the line is not sold; the margin is also nil
// when the landed cost is zero.
type Display struct {
	BaseCostUSD          string `json:"base_cost_usd"`
	TotalCostUSD         string `json:"total_cost_usd"`
	TotalCostLocal       string `json:"total_cost_local"`
	FreightUSD           string `json:"freight_usd"`
	FreightLocal         string `json:"freight_local"`
	LandedCostUnitUSD    string `json:"landed_cost_unit_usd"`
	LandedCostUnitLocal  string `json:"landed_cost_unit_local"`
	LandedCostTotalUSD   string `json:"landed_cost_total_usd"`
	LandedCostTotalLocal string `json:"landed_cost_total_local"`

	ProfitUnitLocal  *string `json:"profit_unit_local"`
	ProfitTotalLocal *string `json:"profit_total_local"`
	MarginPercent    *string `json:"margin_percent"`
}

// Display formats r for presentation.
func (r Result) Display() Display {
	fixed := func(d decimal.Decimal) string { return d.StringFixed(DisplayPlaces) }
	fixedNull := func(d decimal.NullDecimal) *string {
		if !d.Valid {
			return nil
		}
		s := fixed(d.Decimal)
		return &s
	}

	return Display{
		BaseCostUSD:          fixed(r.BaseCostUSD),
		TotalCostUSD:         fixed(r.TotalCostUSD),
		TotalCostLocal:       fixed(r.TotalCostLocal),
		FreightUSD:           fixed(r.FreightUSD),
		FreightLocal:         fixed(r.FreightLocal),
		LandedCostUnitUSD:    fixed(r.LandedCostUnitUSD),
		LandedCostUnitLocal:  fixed(r.LandedCostUnitLocal),
		LandedCostTotalUSD:   fixed(r.LandedCostTotalUSD),
		LandedCostTotalLocal: fixed(r.LandedCostTotalLocal),
		ProfitUnitLocal:      fixedNull(r.ProfitUnitLocal),
		ProfitTotalLocal:     fixedNull(r.ProfitTotalLocal),
		MarginPercent:        fixedNull(r.MarginPercent),
	}
}
