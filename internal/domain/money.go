package domain

import "github.com/shopspring/decimal"

const DefaultCurrency = "PEN"

var currencySymbols = map[string]string{
	"PEN": "S/",
	"USD": "$",
}

// FormatMajor renders minor units as a two-decimal major-unit string.
func FormatMajor(minor int64) string {
	return decimal.New(minor, -2).StringFixed(2)
}

// FormatDisplay renders minor units with the currency symbol, e.g. "S/ 100.00".
func FormatDisplay(minor int64, currency string) string {
	symbol, ok := currencySymbols[currency]
	if !ok {
		symbol = currency
	}
	return symbol + " " + FormatMajor(minor)
}

// FormatTotal is the grand-total label, e.g. "PEN S/ 100.00".
func FormatTotal(minor int64, currency string) string {
	return currency + " " + FormatDisplay(minor, currency)
}
