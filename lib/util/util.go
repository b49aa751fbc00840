// Package util contains helper functions used around the code.
package util

import (
	"errors"
	"math/big"
	"strings"
)

// Errors returned by amount conversion.
var (
	ErrBadAmount = errors.New("amount is not a valid positive decimal number")
	ErrPrecision = errors.New("amount has more decimal places than the ledger base unit")
)

// In returns true if s is found in ss, false otherwise
func In(ss []string, s string) bool {
	for _, v := range ss {
		if s == v {
			return true
		}
	}
	return false
}

// ToBase converts a caller-facing fixed-point decimal amount ("1.25") into the ledger's
// smallest indivisible unit using integer arithmetic only. decimals is the unit scale
// (18 for wei). Negative amounts, malformed input and fractions finer than the base
// unit are rejected.
func ToBase(amount string, decimals int) (*big.Int, error) {
	whole, frac := amount, ""
	if i := strings.IndexByte(amount, '.'); i >= 0 {
		whole, frac = amount[:i], amount[i+1:]
	}
	if whole == "" && frac == "" {
		return nil, ErrBadAmount
	}
	if whole == "" {
		whole = "0"
	}
	if len(frac) > decimals {
		return nil, ErrPrecision
	}
	// right-pad the fraction to the full unit scale and parse the joined digits
	frac += strings.Repeat("0", decimals-len(frac))
	v, ok := new(big.Int).SetString(whole+frac, 10)
	if !ok || v.Sign() < 0 {
		return nil, ErrBadAmount
	}
	return v, nil
}

// FromBase renders a base-unit value as a fixed-point decimal string with trailing
// zeroes trimmed. It is the inverse of ToBase.
func FromBase(v *big.Int, decimals int) string {
	s := v.String()
	if len(s) <= decimals {
		s = strings.Repeat("0", decimals-len(s)+1) + s
	}
	whole, frac := s[:len(s)-decimals], s[len(s)-decimals:]
	frac = strings.TrimRight(frac, "0")
	if frac == "" {
		return whole
	}
	return whole + "." + frac
}
