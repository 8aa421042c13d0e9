package pricing

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Field names used in validation errors. They match the snake_case names
// accepted by the entry forms and the JSON API.
const (
	FieldUnitPriceUSD        = "unit_price_usd"
	FieldAdminFeeFixedUSD    = "admin_fee_fixed_usd"
	FieldAdminFeePercent     = "admin_fee_percent"
	FieldDomesticFreightUSD  = "domestic_freight_usd"
	FieldHandlingFeeUSD      = "handling_fee_usd"
	FieldExchangeRate        = "exchange_rate"
	FieldIntlFreightRateUSD  = "intl_freight_rate_usd"
	FieldIntlFreightExtraUSD = "intl_freight_extra_usd"
	FieldQuantity            = "quantity"
	FieldSalePriceUnitLocal  = "sale_price_unit_local"
)

// DisplayPlaces is the number of fractional digits used when rounding
// results for presentation.
const DisplayPlaces = 2

var hundred = decimal.NewFromInt(100)

// Input holds one shipment line's unit economics.
// Decimal fields decode from JSON numbers or strings.
type Input struct {
	UnitPriceUSD        decimal.Decimal     `json:"unit_price_usd"`
	AdminFeeFixedUSD    decimal.Decimal     `json:"admin_fee_fixed_usd"`
	AdminFeePercent     decimal.Decimal     `json:"admin_fee_percent"` // canonical fraction, 0.005 means 0.5%
	DomesticFreightUSD  decimal.Decimal     `json:"domestic_freight_usd"`
	HandlingFeeUSD      decimal.Decimal     `json:"handling_fee_usd"` // POL
	ExchangeRate        decimal.Decimal     `json:"exchange_rate"`    // local currency units per USD
	IntlFreightRateUSD  decimal.Decimal     `json:"intl_freight_rate_usd"`
	IntlFreightExtraUSD decimal.Decimal     `json:"intl_freight_extra_usd"`
	Quantity            int                 `json:"quantity"`
	SalePriceUnitLocal  decimal.NullDecimal `json:"sale_price_unit_local"` // set once the line is sold
}

// Result contains every figure derived from an Input. It is never stored;
// callers recompute it whenever they need it.
type Result struct {
	BaseCostUSD          decimal.Decimal `json:"base_cost_usd"`
	TotalCostUSD         decimal.Decimal `json:"total_cost_usd"`
	TotalCostLocal       decimal.Decimal `json:"total_cost_local"`
	FreightUSD           decimal.Decimal `json:"freight_usd"`
	FreightLocal         decimal.Decimal `json:"freight_local"`
	LandedCostUnitUSD    decimal.Decimal `json:"landed_cost_unit_usd"`
	LandedCostUnitLocal  decimal.Decimal `json:"landed_cost_unit_local"`
	LandedCostTotalUSD   decimal.Decimal `json:"landed_cost_total_usd"`
	LandedCostTotalLocal decimal.Decimal `json:"landed_cost_total_local"`

	ProfitUnitLocal  decimal.NullDecimal `json:"profit_unit_local"`
	ProfitTotalLocal decimal.NullDecimal `json:"profit_total_local"`
	MarginPercent    decimal.NullDecimal `json:"margin_percent"`
}

// InvalidInputError reports the first Input field that violates a constraint.
type InvalidInputError struct {
	Field  string
	Reason string
}

func (e *InvalidInputError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Invalid returns an InvalidInputError for field.
func Invalid(field, reason string) *InvalidInputError {
	return &InvalidInputError{Field: field, Reason: reason}
}

// Validate checks the Input constraints in field order and returns the first
// violation.
func (in Input) Validate() error {
	nonNegative := []struct {
		field string
		value decimal.Decimal
	}{
		{FieldUnitPriceUSD, in.UnitPriceUSD},
		{FieldAdminFeeFixedUSD, in.AdminFeeFixedUSD},
		{FieldAdminFeePercent, in.AdminFeePercent},
		{FieldDomesticFreightUSD, in.DomesticFreightUSD},
		{FieldHandlingFeeUSD, in.HandlingFeeUSD},
	}
	for _, f := range nonNegative {
		if f.value.IsNegative() {
			return Invalid(f.field, "must be greater than or equal to 0")
		}
	}

	if !in.ExchangeRate.IsPositive() {
		return Invalid(FieldExchangeRate, "must be greater than 0")
	}
	if in.IntlFreightRateUSD.IsNegative() {
		return Invalid(FieldIntlFreightRateUSD, "must be greater than or equal to 0")
	}
	if in.IntlFreightExtraUSD.IsNegative() {
		return Invalid(FieldIntlFreightExtraUSD, "must be greater than or equal to 0")
	}
	if in.Quantity < 1 {
		return Invalid(FieldQuantity, "must be at least 1")
	}
	if in.SalePriceUnitLocal.Valid && in.SalePriceUnitLocal.Decimal.IsNegative() {
		return Invalid(FieldSalePriceUnitLocal, "must be greater than or equal to 0")
	}
	return nil
}

// Compute derives the landed cost, and profit when the line is sold, from in.
// It either returns a fully populated Result or an *InvalidInputError.
func Compute(in Input) (Result, error) {
	if err := in.Validate(); err != nil {
		return Result{}, err
	}

	quantity := decimal.NewFromInt(int64(in.Quantity))

	base := in.UnitPriceUSD.Add(in.AdminFeeFixedUSD).Add(in.DomesticFreightUSD).Add(in.HandlingFeeUSD)
	total := base.Mul(decimal.NewFromInt(1).Add(in.AdminFeePercent))
	freight := in.IntlFreightRateUSD.Add(in.IntlFreightExtraUSD)
	landedUnit := total.Add(freight)
	landedUnitLocal := landedUnit.Mul(in.ExchangeRate)

	res := Result{
		BaseCostUSD:          base,
		TotalCostUSD:         total,
		TotalCostLocal:       total.Mul(in.ExchangeRate),
		FreightUSD:           freight,
		FreightLocal:         freight.Mul(in.ExchangeRate),
		LandedCostUnitUSD:    landedUnit,
		LandedCostUnitLocal:  landedUnitLocal,
		LandedCostTotalUSD:   landedUnit.Mul(quantity),
		LandedCostTotalLocal: landedUnitLocal.Mul(quantity),
	}

	if in.SalePriceUnitLocal.Valid {
		profit := in.SalePriceUnitLocal.Decimal.Sub(landedUnitLocal)
		res.ProfitUnitLocal = decimal.NewNullDecimal(profit)
		res.ProfitTotalLocal = decimal.NewNullDecimal(profit.Mul(quantity))
		if landedUnitLocal.IsPositive() {
			res.MarginPercent = decimal.NewNullDecimal(profit.Div(landedUnitLocal).Mul(hundred))
		}
	}

	return res, nil
}

// Sold reports whether the Result carries profit figures.
func (r Result) Sold() bool {
	return r.ProfitUnitLocal.Valid
}

// Rounded returns a copy of r with every figure rounded to DisplayPlaces.
func (r Result) Rounded() Result {
	round := func(d decimal.Decimal) decimal.Decimal { return d.Round(DisplayPlaces) }
	roundNull := func(d decimal.NullDecimal) decimal.NullDecimal {
		if !d.Valid {
			return d
		}
		return decimal.NewNullDecimal(round(d.Decimal))
	}

	return Result{
		BaseCostUSD:          round(r.BaseCostUSD),
		TotalCostUSD:         round(r.TotalCostUSD),
		TotalCostLocal:       round(r.TotalCostLocal),
		FreightUSD:           round(r.FreightUSD),
		FreightLocal:         round(r.FreightLocal),
		LandedCostUnitUSD:    round(r.LandedCostUnitUSD),
		LandedCostUnitLocal:  round(r.LandedCostUnitLocal),
		LandedCostTotalUSD:   round(r.LandedCostTotalUSD),
		LandedCostTotalLocal: round(r.LandedCostTotalLocal),
		ProfitUnitLocal:      roundNull(r.ProfitUnitLocal),
		ProfitTotalLocal:     roundNull(r.ProfitTotalLocal),
		MarginPercent:        roundNull(r.MarginPercent),
	}
}
