// Package form turns raw user entry into a pricing.Input.
//
// Values may arrive with either "." or "," as the decimal separator, and the
// administrative fee percentage may be typed in several conventions. This
// package resolves both before the calculator sees the values; the calculator
// itself never guesses.
package form

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/Simplici0/importcost/internal/pricing"
)

// PercentMode selects how a raw admin fee percentage entry is read.
type PercentMode string

const (
	// PercentModePercent reads the entry as a percentage: "0.5" means 0.5%.
	PercentModePercent PercentMode = "percent"
	// PercentModeLegacy guesses from magnitude the way the spreadsheet form did.
	PercentModeLegacy PercentMode = "legacy"
	// PercentModeFraction reads the entry as the canonical fraction: "0.005" means 0.5%.
	PercentModeFraction PercentMode = "fraction"
)

var (
	hundred        = decimal.NewFromInt(100)
	legacyBoundary = decimal.RequireFromString("0.1")
)

// ParsePercentMode validates a mode name.
func ParsePercentMode(raw string) (PercentMode, error) {
	switch mode := PercentMode(strings.ToLower(strings.TrimSpace(raw))); mode {
	case PercentModePercent, PercentModeLegacy, PercentModeFraction:
		return mode, nil
	default:
		return "", fmt.Errorf("unknown percent mode %q (want percent, legacy or fraction)", raw)
	}
}

// NormalizePercent converts a raw admin fee entry into the canonical fraction.
func NormalizePercent(raw decimal.Decimal, mode PercentMode) decimal.Decimal {
	switch mode {
	case PercentModeFraction:
		return raw
	case PercentModeLegacy:
		// Anything above 0.1 was typed as a percentage ("0.5", "50");
		// smaller values were already a fraction ("0.005").
		if raw.GreaterThan(legacyBoundary) {
			return raw.Div(hundred)
		}
		return raw
	default:
		return raw.Div(hundred)
	}
}

// ParseDecimal parses a decimal typed with "." or "," as separator. When both
// appear, the rightmost one is the decimal separator. A lone separator is
// always the decimal separator, never a thousands separator: "1,234" and
// "1.234" both parse as 1.234. Thousands need the decimal part too
// ("1.234,00").
func ParseDecimal(field, raw string) (decimal.Decimal, error) {
	value := strings.ReplaceAll(strings.TrimSpace(raw), " ", "")
	if value == "" {
		return decimal.Zero, pricing.Invalid(field, "is required")
	}

	dot := strings.LastIndex(value, ".")
	comma := strings.LastIndex(value, ",")
	switch {
	case dot >= 0 && comma >= 0 && comma > dot:
		value = strings.ReplaceAll(value, ".", "")
		value = strings.Replace(value, ",", ".", 1)
	case dot >= 0 && comma >= 0:
		value = strings.ReplaceAll(value, ",", "")
	case comma >= 0:
		if strings.Count(value, ",") > 1 {
			return decimal.Zero, pricing.Invalid(field, "must be numeric")
		}
		value = strings.Replace(value, ",", ".", 1)
	}

	if !isPlainNumber(value) {
		return decimal.Zero, pricing.Invalid(field, "must be numeric")
	}
	d, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.Zero, pricing.Invalid(field, "must be numeric")
	}
	return d, nil
}

// isPlainNumber rejects exponents and other notations decimal.NewFromString
// would accept but a person filling a form would not type.
func isPlainNumber(s string) bool {
	if strings.HasPrefix(s, "-") || strings.HasPrefix(s, "+") {
		s = s[1:]
	}
	digits := 0
	dots := 0
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
			digits++
		case r == '.':
			dots++
		default:
			return false
		}
	}
	return digits > 0 && dots <= 1
}

// ParseNonNegative is ParseDecimal plus a lower bound of zero.
func ParseNonNegative(field, raw string) (decimal.Decimal, error) {
	d, err := ParseDecimal(field, raw)
	if err != nil {
		return decimal.Zero, err
	}
	if d.IsNegative() {
		return decimal.Zero, pricing.Invalid(field, "must be greater than or equal to 0")
	}
	return d, nil
}

// ParseQuantity parses a positive whole number of units.
func ParseQuantity(field, raw string) (int, error) {
	value := strings.TrimSpace(raw)
	if value == "" {
		return 0, pricing.Invalid(field, "is required")
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, pricing.Invalid(field, "must be a whole number")
	}
	if n < 1 {
		return 0, pricing.Invalid(field, "must be at least 1")
	}
	return n, nil
}

// Fields maps field names to the raw strings a user typed.
type Fields map[string]string

// FieldsFromValues adapts a parsed HTML form.
func FieldsFromValues(values url.Values) Fields {
	fields := make(Fields, len(values))
	for key := range values {
		fields[key] = values.Get(key)
	}
	return fields
}

// Defaults holds the values offered for empty entries. The admin fee percent
// is stored as the canonical fraction.
type Defaults struct {
	AdminFeeFixedUSD    decimal.Decimal `json:"admin_fee_fixed_usd"`
	AdminFeePercent     decimal.Decimal `json:"admin_fee_percent"`
	DomesticFreightUSD  decimal.Decimal `json:"domestic_freight_usd"`
	HandlingFeeUSD      decimal.Decimal `json:"handling_fee_usd"`
	ExchangeRate        decimal.Decimal `json:"exchange_rate"`
	IntlFreightRateUSD  decimal.Decimal `json:"intl_freight_rate_usd"`
	IntlFreightExtraUSD decimal.Decimal `json:"intl_freight_extra_usd"`
}

// Options controls ParseInput.
type Options struct {
	PercentMode PercentMode
	// Defaults, when set, fill empty fields. Malformed values still fail.
	Defaults *Defaults
}

// ParseInput builds a pricing.Input from raw fields. Every failure is a
// *pricing.InvalidInputError naming the field.
func ParseInput(fields Fields, opts Options) (pricing.Input, error) {
	var in pricing.Input
	var err error

	if in.UnitPriceUSD, err = ParseNonNegative(pricing.FieldUnitPriceUSD, fields[pricing.FieldUnitPriceUSD]); err != nil {
		return pricing.Input{}, err
	}
	if in.AdminFeeFixedUSD, err = parseWithDefault(fields, pricing.FieldAdminFeeFixedUSD, opts.Defaults, func(d *Defaults) decimal.Decimal { return d.AdminFeeFixedUSD }); err != nil {
		return pricing.Input{}, err
	}
	if in.AdminFeePercent, err = parsePercent(fields, opts); err != nil {
		return pricing.Input{}, err
	}
	if in.DomesticFreightUSD, err = parseWithDefault(fields, pricing.FieldDomesticFreightUSD, opts.Defaults, func(d *Defaults) decimal.Decimal { return d.DomesticFreightUSD }); err != nil {
		return pricing.Input{}, err
	}
	if in.HandlingFeeUSD, err = parseWithDefault(fields, pricing.FieldHandlingFeeUSD, opts.Defaults, func(d *Defaults) decimal.Decimal { return d.HandlingFeeUSD }); err != nil {
		return pricing.Input{}, err
	}
	if in.ExchangeRate, err = parseWithDefault(fields, pricing.FieldExchangeRate, opts.Defaults, func(d *Defaults) decimal.Decimal { return d.ExchangeRate }); err != nil {
		return pricing.Input{}, err
	}
	if !in.ExchangeRate.IsPositive() {
		return pricing.Input{}, pricing.Invalid(pricing.FieldExchangeRate, "must be greater than 0")
	}
	if in.IntlFreightRateUSD, err = parseWithDefault(fields, pricing.FieldIntlFreightRateUSD, opts.Defaults, func(d *Defaults) decimal.Decimal { return d.IntlFreightRateUSD }); err != nil {
		return pricing.Input{}, err
	}
	if in.IntlFreightExtraUSD, err = parseWithDefault(fields, pricing.FieldIntlFreightExtraUSD, opts.Defaults, func(d *Defaults) decimal.Decimal { return d.IntlFreightExtraUSD }); err != nil {
		return pricing.Input{}, err
	}
	if in.Quantity, err = ParseQuantity(pricing.FieldQuantity, fields[pricing.FieldQuantity]); err != nil {
		return pricing.Input{}, err
	}

	if raw := strings.TrimSpace(fields[pricing.FieldSalePriceUnitLocal]); raw != "" {
		sale, err := ParseNonNegative(pricing.FieldSalePriceUnitLocal, raw)
		if err != nil {
			return pricing.Input{}, err
		}
		in.SalePriceUnitLocal = decimal.NewNullDecimal(sale)
	}

	return in, nil
}

func parseWithDefault(fields Fields, field string, defaults *Defaults, pick func(*Defaults) decimal.Decimal) (decimal.Decimal, error) {
	raw := fields[field]
	if strings.TrimSpace(raw) == "" && defaults != nil {
		return pick(defaults), nil
	}
	return ParseNonNegative(field, raw)
}

func parsePercent(fields Fields, opts Options) (decimal.Decimal, error) {
	raw := fields[pricing.FieldAdminFeePercent]
	if strings.TrimSpace(raw) == "" && opts.Defaults != nil {
		return opts.Defaults.AdminFeePercent, nil
	}
	value, err := ParseNonNegative(pricing.FieldAdminFeePercent, raw)
	if err != nil {
		return decimal.Zero, err
	}
	return NormalizePercent(value, opts.PercentMode), nil
}
