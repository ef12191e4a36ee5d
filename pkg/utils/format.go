// Package utils provides shared utility functions.
package utils

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// OutputPrecision is the number of decimals reported for prices and sizes.
const OutputPrecision = 6

// Round6 rounds v half away from zero to six decimal places.
func Round6(v float64) float64 {
	return RoundTo(v, OutputPrecision)
}

// RoundTo rounds v half away from zero to the given number of places.
func RoundTo(v float64, places int32) float64 {
	return decimal.NewFromFloat(v).Round(places).InexactFloat64()
}

// Round6Ptr rounds the pointed-to value, keeping nil as nil.
func Round6Ptr(v *float64) *float64 {
	if v == nil {
		return nil
	}
	r := Round6(*v)
	return &r
}

// FormatPercent formats a percentage with sign.
func FormatPercent(value float64) string {
	sign := ""
	if value > 0 {
		sign = "+"
	}
	return fmt.Sprintf("%s%.2f%%", sign, value)
}

// FormatPrice formats a price without trailing zeros.
func FormatPrice(value float64) string {
	return decimal.NewFromFloat(value).Round(OutputPrecision).String()
}

// FormatOptionalPrice formats a price or a dash when absent.
func FormatOptionalPrice(value *float64) string {
	if value == nil {
		return "-"
	}
	return FormatPrice(*value)
}

// MaskSecret hides all but the last four characters of a secret.
func MaskSecret(secret string) string {
	if secret == "" {
		return ""
	}
	if len(secret) <= 4 {
		return strings.Repeat("*", len(secret))
	}
	return strings.Repeat("*", len(secret)-4) + secret[len(secret)-4:]
}
