// Package types provides common types used across the token sale engine.
package types

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/holiman/uint256"
)

// EtherDecimals is the number of decimal places of an 18-decimal asset.
const EtherDecimals = 18

var (
	errAmountOverflow  = errors.New("amount: overflow")
	errAmountNegative  = errors.New("amount: negative value")
	errAmountMalformed = errors.New("amount: malformed value")
)

// Amount is a non-negative quantity in the smallest unit of an asset
// (wei-style base units). All arithmetic is integer-only and 256 bits wide;
// operations that would wrap panic or report overflow instead.
//
// Examples:
//   - Units(3) = 3 base units
//   - Ether(1) = 1 × 10^18 base units
type Amount struct {
	v uint256.Int
}

// Zero returns a zero Amount.
func Zero() Amount { return Amount{} }

// Units creates an Amount of n base units.
func Units(n uint64) Amount {
	var a Amount
	a.v.SetUint64(n)
	return a
}

// Ether creates an Amount of n whole units of an 18-decimal asset.
func Ether(n uint64) Amount {
	return WithDecimals(n, EtherDecimals)
}

// WithDecimals creates an Amount of n whole units of an asset with the given
// number of decimals. Panics if the result does not fit in 256 bits.
func WithDecimals(n uint64, decimals uint8) Amount {
	var scale, exp uint256.Int
	exp.SetUint64(uint64(decimals))
	scale.Exp(uint256.NewInt(10), &exp)

	var a Amount
	if _, overflow := a.v.MulOverflow(uint256.NewInt(n), &scale); overflow {
		panic(fmt.Sprintf("amount: %d with %d decimals overflows", n, decimals))
	}
	return a
}

// ParseAmount parses a base-10 string of base units.
func ParseAmount(s string) (Amount, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Amount{}, fmt.Errorf("%w: empty string", errAmountMalformed)
	}
	if strings.HasPrefix(s, "-") {
		return Amount{}, fmt.Errorf("%w: %q", errAmountNegative, s)
	}

	var a Amount
	if err := a.v.SetFromDecimal(s); err != nil {
		return Amount{}, fmt.Errorf("%w: %q: %v", errAmountMalformed, s, err)
	}
	return a, nil
}

// MustParseAmount is like ParseAmount but panics on error.
func MustParseAmount(s string) Amount {
	a, err := ParseAmount(s)
	if err != nil {
		panic(err)
	}
	return a
}

// FromBig converts a big.Int into an Amount.
func FromBig(b *big.Int) (Amount, error) {
	if b == nil {
		return Amount{}, nil
	}
	if b.Sign() < 0 {
		return Amount{}, errAmountNegative
	}

	var a Amount
	if overflow := a.v.SetFromBig(b); overflow {
		return Amount{}, errAmountOverflow
	}
	return a, nil
}

// Arithmetic operations

// Add returns a + other. Panics on overflow.
func (a Amount) Add(other Amount) Amount {
	var r Amount
	if _, overflow := r.v.AddOverflow(&a.v, &other.v); overflow {
		panic("amount: addition overflow")
	}
	return r
}

// Sub returns a - other. Panics if other is larger than a.
func (a Amount) Sub(other Amount) Amount {
	var r Amount
	if _, underflow := r.v.SubOverflow(&a.v, &other.v); underflow {
		panic("amount: subtraction underflow")
	}
	return r
}

// SaturatingSub returns a - other, or zero when other is larger than a.
func (a Amount) SaturatingSub(other Amount) Amount {
	if a.v.Lt(&other.v) {
		return Amount{}
	}
	return a.Sub(other)
}

// MulUint64 returns a × n and whether the product overflowed.
func (a Amount) MulUint64(n uint64) (Amount, bool) {
	var r Amount
	_, overflow := r.v.MulOverflow(&a.v, uint256.NewInt(n))
	return r, overflow
}

// MulDiv returns a × num / den rounded down. Panics if den is zero.
func (a Amount) MulDiv(num, den uint64) Amount {
	if den == 0 {
		panic("amount: division by zero")
	}
	var r Amount
	r.v.MulDivOverflow(&a.v, uint256.NewInt(num), uint256.NewInt(den))
	return r
}

// Fraction returns floor(a × scale / total), saturating at scale when a
// exceeds total. A zero total yields zero.
func (a Amount) Fraction(total Amount, scale uint64) uint64 {
	if total.IsZero() {
		return 0
	}
	if !a.LessThan(total) {
		return scale
	}
	var r uint256.Int
	r.MulDivOverflow(&a.v, uint256.NewInt(scale), &total.v)
	return r.Uint64()
}

// Comparison methods

// Cmp compares a and other and returns -1, 0 or +1.
func (a Amount) Cmp(other Amount) int { return a.v.Cmp(&other.v) }

// IsZero returns true if the amount is zero.
func (a Amount) IsZero() bool { return a.v.IsZero() }

// IsPositive returns true if the amount is greater than zero.
func (a Amount) IsPositive() bool { return !a.v.IsZero() }

// Equal returns true if both amounts are equal.
func (a Amount) Equal(other Amount) bool { return a.v.Eq(&other.v) }

// LessThan returns true if a is less than other.
func (a Amount) LessThan(other Amount) bool { return a.v.Lt(&other.v) }

// GreaterThan returns true if a is greater than other.
func (a Amount) GreaterThan(other Amount) bool { return a.v.Gt(&other.v) }

// Min returns the smaller of two amounts.
func (a Amount) Min(other Amount) Amount {
	if a.LessThan(other) {
		return a
	}
	return other
}

// Max returns the larger of two amounts.
func (a Amount) Max(other Amount) Amount {
	if a.GreaterThan(other) {
		return a
	}
	return other
}

// Conversion methods

// Uint64 returns the amount as a uint64 and whether it fit.
func (a Amount) Uint64() (uint64, bool) {
	return a.v.Uint64(), a.v.IsUint64()
}

// Big returns the amount as a new big.Int.
func (a Amount) Big() *big.Int { return a.v.ToBig() }

// Formatting methods

// String returns the amount in base units as a base-10 string.
func (a Amount) String() string { return a.v.Dec() }

// FormatUnits renders the amount as whole units with the given number of
// decimals, trimming trailing zeros: Ether(3).FormatUnits(18) == "3",
// Units(15e17).FormatUnits(18) == "1.5".
func (a Amount) FormatUnits(decimals int) string {
	digits := a.v.Dec()
	if decimals <= 0 {
		return digits
	}
	if len(digits) <= decimals {
		digits = strings.Repeat("0", decimals-len(digits)+1) + digits
	}

	whole := digits[:len(digits)-decimals]
	frac := strings.TrimRight(digits[len(digits)-decimals:], "0")
	if frac == "" {
		return whole
	}
	return whole + "." + frac
}

// MarshalJSON encodes the amount as a quoted base-10 string so values above
// 2^53 survive JavaScript clients.
func (a Amount) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.v.Dec())
}

// UnmarshalJSON accepts either a quoted base-10 string or a bare JSON number.
func (a *Amount) UnmarshalJSON(data []byte) error {
	raw := strings.TrimSpace(string(data))
	if raw == "null" {
		*a = Amount{}
		return nil
	}
	if strings.HasPrefix(raw, `"`) {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		raw = s
	}
	parsed, err := ParseAmount(raw)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (a Amount) MarshalText() ([]byte, error) {
	return []byte(a.v.Dec()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (a *Amount) UnmarshalText(data []byte) error {
	parsed, err := ParseAmount(string(data))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// Value implements driver.Valuer. Amounts are stored as base-10 text because
// no SQL integer column holds 256 bits.
func (a Amount) Value() (driver.Value, error) {
	return a.v.Dec(), nil
}

// Scan implements sql.Scanner.
func (a *Amount) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*a = Amount{}
		return nil
	case string:
		return a.UnmarshalText([]byte(v))
	case []byte:
		return a.UnmarshalText(v)
	case int64:
		if v < 0 {
			return errAmountNegative
		}
		*a = Units(uint64(v))
		return nil
	default:
		return fmt.Errorf("amount: cannot scan %T into Amount", src)
	}
}

// Sum calculates the sum of multiple amounts.
func Sum(values ...Amount) Amount {
	var result Amount
	for _, v := range values {
		result = result.Add(v)
	}
	return result
}
