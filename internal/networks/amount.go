package networks

import (
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

// TokenAmount pairs a human amount with its smallest-unit value.
// Units always equals round(Amount * 10^decimals); update through SetUnits only.
type TokenAmount struct {
	Token  Token
	Amount decimal.Decimal
	Units  *big.Int
}

// NewAmount builds a TokenAmount from a human amount.
func NewAmount(t Token, human decimal.Decimal) TokenAmount {
	units := ToSmallestUnit(human, t.Decimals)
	return TokenAmount{Token: t, Amount: FromSmallestUnit(units, t.Decimals), Units: units}
}

// AmountFromUnits builds a TokenAmount from a smallest-unit integer.
func AmountFromUnits(t Token, units *big.Int) TokenAmount {
	a := TokenAmount{Token: t}
	a.SetUnits(units)
	return a
}

// SetUnits replaces both representations from an authoritative unit amount.
func (a *TokenAmount) SetUnits(units *big.Int) {
	if units == nil {
		units = new(big.Int)
	}
	a.Units = new(big.Int).Set(units)
	a.Amount = FromSmallestUnit(a.Units, a.Token.Decimals)
}

func (a TokenAmount) String() string {
	return fmt.Sprintf("%s %s", a.Amount.StringFixed(6), a.Token.Symbol)
}

// ToSmallestUnit returns round(a * 10^d) (half away from zero).
func ToSmallestUnit(a decimal.Decimal, d int32) *big.Int {
	return a.Shift(d).Round(0).BigInt()
}

// FromSmallestUnit returns u / 10^d exactly.
func FromSmallestUnit(u *big.Int, d int32) decimal.Decimal {
	if u == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(u, -d)
}
