package domain

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"
)

// TokenDecimals is the fixed-point precision of staked tokens.
const TokenDecimals = 18

// TokenUnit is one whole staking token in base units.
var TokenUnit = new(big.Int).Exp(big.NewInt(10), big.NewInt(TokenDecimals), nil)

// Tokens converts whole tokens to base units.
func Tokens(whole int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(whole), TokenUnit)
}

// ParseTokenAmount accepts either a base-unit integer ("5000000000000000000000")
// or a decimal token string with a "tokens:" prefix ("tokens:5000.5").
func ParseTokenAmount(raw string) (*big.Int, error) {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "tokens:") {
		d, err := decimal.NewFromString(strings.TrimPrefix(raw, "tokens:"))
		if err != nil {
			return nil, fmt.Errorf("%w: token amount %q", ErrInvalidInput, raw)
		}
		return d.Shift(TokenDecimals).Truncate(0).BigInt(), nil
	}
	v, ok := new(big.Int).SetString(raw, 10)
	if !ok {
		return nil, fmt.Errorf("%w: token amount %q", ErrInvalidInput, raw)
	}
	return v, nil
}

// FormatTokens renders base units as a whole-token decimal string.
func FormatTokens(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return decimal.NewFromBigInt(v, -TokenDecimals).String()
}

// Amount is a payment quantity in micro-units of a 6-decimal stablecoin.
type Amount int64

const (
	AmountDecimals        = 6
	USDC           Amount = 1_000_000
)

// Whole returns n whole currency units.
func Whole(n int64) Amount { return Amount(n) * USDC }

func (a Amount) String() string {
	return decimal.New(int64(a), -AmountDecimals).StringFixed(AmountDecimals)
}

// Decimal returns the amount in whole currency units.
func (a Amount) Decimal() decimal.Decimal {
	return decimal.New(int64(a), -AmountDecimals)
}

// Percent returns a*pct/100 rounded down.
func (a Amount) Percent(pct int64) Amount {
	return a.MulBasisPoints(pct * 100)
}

// MulBasisPoints returns a*bp/10000 rounded down without overflowing int64.
func (a Amount) MulBasisPoints(bp int64) Amount {
	v := new(big.Int).Mul(big.NewInt(int64(a)), big.NewInt(bp))
	v.Quo(v, big.NewInt(10_000))
	return Amount(v.Int64())
}

// ParseAmount parses a decimal currency string ("12.5") into micro-units.
// Values needing more than six decimals or exceeding int64 micro-units are rejected.
func ParseAmount(raw string) (Amount, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("%w: amount %q", ErrInvalidInput, raw)
	}
	micro := d.Shift(AmountDecimals)
	if !micro.Equal(micro.Truncate(0)) {
		return 0, fmt.Errorf("%w: amount %q has more than %d decimals", ErrInvalidInput, raw, AmountDecimals)
	}
	units := micro.BigInt()
	if !units.IsInt64() {
		return 0, fmt.Errorf("%w: amount %q out of range", ErrInvalidInput, raw)
	}
	return Amount(units.Int64()), nil
}

func minAmount(a, b Amount) Amount {
	if a < b {
		return a
	}
	return b
}
