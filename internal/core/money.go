// Package core provides money parsing and handling utilities.
//
// This file contains functions for parsing signed monetary amounts typed
// into the grid and formatting them for storage and display.
package core

import (
	"strings"

	"github.com/shopspring/decimal"
)

// AmountPlaces is the number of fractional digits kept for amounts.
const AmountPlaces = 2

// ParseAmount converts user input into a signed decimal rounded to cents.
//
// It accepts both dot (12.34) and comma (12,34) decimal separators. When both
// appear, commas are treated as thousands separators (1,234.50). Zero is a
// valid amount.
//
// Examples:
//
//	ParseAmount("-4.50")    -> -4.50, nil
//	ParseAmount("12,34")    -> 12.34, nil
//	ParseAmount("1,234.5")  -> 1234.50, nil
//	ParseAmount("abc")      -> 0, ErrInvalidAmount
func ParseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, ErrInvalidAmount
	}
	if strings.Contains(s, ",") {
		if strings.Contains(s, ".") {
			s = strings.ReplaceAll(s, ",", "")
		} else {
			s = strings.ReplaceAll(s, ",", ".")
		}
	}
	s = strings.TrimPrefix(s, "+")
	if strings.ContainsAny(s, "eE") {
		// exponent notation is not something a user types into a ledger
		return decimal.Zero, ErrInvalidAmount
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, ErrInvalidAmount
	}
	return d.Round(AmountPlaces), nil
}

// FormatAmount renders an amount with exactly two fractional digits.
func FormatAmount(d decimal.Decimal) string {
	return d.StringFixed(AmountPlaces)
}

// NullAmount wraps d as a present amount.
func NullAmount(d decimal.Decimal) decimal.NullDecimal {
	return decimal.NullDecimal{Decimal: d, Valid: true}
}
