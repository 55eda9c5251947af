// Package core holds the report filter, the four report dataset shapes and the
// small value helpers shared by aggregation and export.
package core

import "github.com/shopspring/decimal"

// FormatAmount renders d as plain decimal text: no thousands separators, no
// currency symbol and no trailing fractional zeros ("2500", "12.5", "-3").
func FormatAmount(d decimal.Decimal) string {
	return d.String()
}

// FormatOptionalAmount renders a missing value as an empty string.
func FormatOptionalAmount(d *decimal.Decimal) string {
	if d == nil {
		return ""
	}
	return FormatAmount(*d)
}
