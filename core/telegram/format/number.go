package format

import (
	"strconv"
	"strings"
)

// Quantity prints a weight or count without trailing zeros: 2, 0.5, 1.25.
func Quantity(q float64) string {
	s := strconv.FormatFloat(q, 'f', 3, 64)
	s = strings.TrimRight(s, "0")
	return strings.TrimSuffix(s, ".")
}

// Price prints an amount with two decimals.
func Price(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}

// Money prints an amount with two decimals followed by the currency sign.
func Money(v float64, currency string) string {
	if currency == "" {
		return Price(v)
	}
	return Price(v) + " " + currency
}
