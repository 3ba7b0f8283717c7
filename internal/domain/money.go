package domain

import (
	"bytes"

	"github.com/shopspring/decimal"
)

// Amount is an exact decimal used for every monetary value and item quantity.
// JSON decoding is deliberately lenient to match the data-entry UX this system
// replaces: numbers, quoted numeric strings, null, and garbage all decode, with
// anything non-numeric becoming zero.
type Amount struct {
	decimal.Decimal
}

func NewAmount(value float64) Amount {
	return Amount{decimal.NewFromFloat(value)}
}

func AmountFromInt(value int64) Amount {
	return Amount{decimal.NewFromInt(value)}
}

func AmountFromDecimal(d decimal.Decimal) Amount {
	return Amount{d}
}

func (a Amount) Add(b Amount) Amount { return Amount{a.Decimal.Add(b.Decimal)} }

func (a Amount) Sub(b Amount) Amount { return Amount{a.Decimal.Sub(b.Decimal)} }

func (a Amount) Mul(b Amount) Amount { return Amount{a.Decimal.Mul(b.Decimal)} }

func (a Amount) Neg() Amount { return Amount{a.Decimal.Neg()} }

func (a Amount) Cmp(b Amount) int { return a.Decimal.Cmp(b.Decimal) }

func (a Amount) Equal(b Amount) bool { return a.Decimal.Equal(b.Decimal) }

func (a Amount) GreaterThan(b Amount) bool { return a.Decimal.GreaterThan(b.Decimal) }

func (a *Amount) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		a.Decimal = decimal.Zero
		return nil
	}
	if trimmed[0] == '"' && len(trimmed) >= 2 {
		trimmed = trimmed[1 : len(trimmed)-1]
	}
	parsed, err := decimal.NewFromString(string(trimmed))
	if err != nil {
		a.Decimal = decimal.Zero
		return nil
	}
	a.Decimal = parsed
	return nil
}

func (a Amount) MarshalJSON() ([]byte, error) {
	return []byte(a.String()), nil
}
