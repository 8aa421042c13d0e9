package pricing

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// UnmarshalJSON decodes an Input from an object keyed by the Field names.
// Values may be JSON numbers or strings using "." as separator, and
// admin_fee_percent is the canonical fraction. Every field except
// sale_price_unit_local is required: a missing, null or malformed value fails
// with an *InvalidInputError naming the first bad field in field order.
// Range checks are left to Validate.
func (in *Input) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	var out Input
	required := []struct {
		field string
		dst   *decimal.Decimal
	}{
		{FieldUnitPriceUSD, &out.UnitPriceUSD},
		{FieldAdminFeeFixedUSD, &out.AdminFeeFixedUSD},
		{FieldAdminFeePercent, &out.AdminFeePercent},
		{FieldDomesticFreightUSD, &out.DomesticFreightUSD},
		{FieldHandlingFeeUSD, &out.HandlingFeeUSD},
		{FieldExchangeRate, &out.ExchangeRate},
		{FieldIntlFreightRateUSD, &out.IntlFreightRateUSD},
		{FieldIntlFreightExtraUSD, &out.IntlFreightExtraUSD},
	}
	for _, f := range required {
		msg := raw[f.field]
		if isNull(msg) {
			return Invalid(f.field, "is required")
		}
		d, err := decodeDecimal(f.field, msg)
		if err != nil {
			return err
		}
		*f.dst = d
	}

	qty, err := decodeQuantity(raw[FieldQuantity])
	if err != nil {
		return err
	}
	out.Quantity = qty

	if msg := raw[FieldSalePriceUnitLocal]; !isNull(msg) {
		d, err := decodeDecimal(FieldSalePriceUnitLocal, msg)
		if err != nil {
			return err
		}
		out.SalePriceUnitLocal = decimal.NewNullDecimal(d)
	}

	*in = out
	return nil
}

func isNull(msg json.RawMessage) bool {
	trimmed := bytes.TrimSpace(msg)
	return len(trimmed) == 0 || string(trimmed) == "null"
}

// scalar returns the text of a JSON string or number. Anything else is not a
// value a field can hold.
func scalar(field string, msg json.RawMessage) (string, error) {
	trimmed := bytes.TrimSpace(msg)
	switch c := trimmed[0]; {
	case c == '"':
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return "", Invalid(field, "must be numeric")
		}
		s = strings.TrimSpace(s)
		if s == "" {
			return "", Invalid(field, "is required")
		}
		return s, nil
	case c == '-' || (c >= '0' && c <= '9'):
		return string(trimmed), nil
	default:
		return "", Invalid(field, "must be numeric")
	}
}

func decodeDecimal(field string, msg json.RawMessage) (decimal.Decimal, error) {
	s, err := scalar(field, msg)
	if err != nil {
		return decimal.Zero, err
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, Invalid(field, "must be numeric")
	}
	return d, nil
}

func decodeQuantity(msg json.RawMessage) (int, error) {
	if isNull(msg) {
		return 0, Invalid(FieldQuantity, "is required")
	}
	s, err := scalar(FieldQuantity, msg)
	if err != nil {
		return 0, err
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, Invalid(FieldQuantity, "must be a whole number")
	}
	return n, nil
}
