// Package raw implements arithmetic on the ledger's indivisible unit.
//
// Amounts on the wire are decimal strings of raw (10^30 raw = 1 display
// unit). All arithmetic happens on big.Int parsed from those strings;
// floats are never involved. Absent or malformed RPC fields parse as
// zero rather than failing, because the node omits zero balances.
package raw

import (
	"math/big"
	"strings"

	"github.com/shopspring/decimal"

	nano "github.com/nanopay/nanogate/pkg"
)

// RawPerUnit is 10^30: the number of raw in one display unit.
const rawDigits = 30

var rawPerUnit = new(big.Int).Exp(big.NewInt(10), big.NewInt(rawDigits), nil)

// Parse converts a raw amount string to a big.Int. Empty, whitespace or
// malformed input yields zero.
func Parse(s string) *big.Int {
	v, ok := new(big.Int).SetString(strings.TrimSpace(s), 10)
	if !ok {
		return new(big.Int)
	}
	return v
}

// Add returns a+b as a raw string.
func Add(a, b string) string {
	return new(big.Int).Add(Parse(a), Parse(b)).String()
}

// Sub returns a-b as a raw string, or a negative-balance error if the
// result would be below zero. Never clamps.
func Sub(a, b string) (string, error) {
	res := new(big.Int).Sub(Parse(a), Parse(b))
	if res.Sign() < 0 {
		return "", nano.NewErr(nano.NegativeBalance, "raw subtraction %s - %s is negative", a, b)
	}
	return res.String(), nil
}

// Compare returns -1, 0 or 1 as a is less than, equal to or greater
// than b.
func Compare(a, b string) int {
	return Parse(a).Cmp(Parse(b))
}

// IsZero reports whether the raw string parses to zero.
func IsZero(a string) bool {
	return Parse(a).Sign() == 0
}

// ToDecimal converts a raw amount string to display units.
func ToDecimal(s string) decimal.Decimal {
	v := Parse(s)
	return decimal.NewFromBigInt(v, -rawDigits)
}

// FromDecimal converts a display amount to a raw string, truncating
// anything below one raw.
func FromDecimal(d decimal.Decimal) string {
	shifted := d.Shift(rawDigits).Truncate(0)
	return shifted.BigInt().String()
}
