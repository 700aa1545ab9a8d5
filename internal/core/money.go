// Package core holds the ledger domain and the aggregation engine.
//
// This file contains the parsing of monetary amounts coming from clients.
package core

import (
	"strings"

	"github.com/shopspring/decimal"
)

// maxAmount bounds a single amount to keep sums far from any overflow in
// downstream consumers that still use float64 (spreadsheets, charts).
var maxAmount = decimal.New(1, 12)

// ParseAmount converts a client supplied string to a decimal amount.
//
// It accepts both dot (12.34) and comma (12,34) decimal separators and rounds
// half-up to two decimal places. Signs, exponents and anything that is not a
// plain decimal number are rejected with ErrInvalidAmount.
//
// Examples:
//
//	ParseAmount("12.34")  -> 12.34
//	ParseAmount("12,345") -> 12.35
//	ParseAmount("0")      -> 0
func ParseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, missing("amount")
	}
	s = strings.ReplaceAll(s, ",", ".")
	if strings.Count(s, ".") > 1 {
		return decimal.Zero, &FieldError{Field: "amount", Err: ErrInvalidAmount}
	}
	for _, r := range s {
		if (r < '0' || r > '9') && r != '.' {
			return decimal.Zero, &FieldError{Field: "amount", Err: ErrInvalidAmount}
		}
	}
	if s == "." {
		return decimal.Zero, &FieldError{Field: "amount", Err: ErrInvalidAmount}
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, &FieldError{Field: "amount", Err: ErrInvalidAmount}
	}
	if d.GreaterThan(maxAmount) {
		return decimal.Zero, &FieldError{Field: "amount", Err: ErrInvalidAmount}
	}
	return d.Round(2), nil
}

// ParsePositiveAmount is ParseAmount for ledger entries, where zero is not a
// meaningful amount.
func ParsePositiveAmount(s string) (decimal.Decimal, error) {
	d, err := ParseAmount(s)
	if err != nil {
		return d, err
	}
	if !d.IsPositive() {
		return decimal.Zero, &FieldError{Field: "amount", Err: ErrInvalidAmount}
	}
	return d, nil
}
