package domain

import "github.com/shopspring/decimal"

func init() {
	// PostgREST and the front end both speak JSON numbers.
	decimal.MarshalJSONWithoutQuotes = true
}

var hundred = decimal.NewFromInt(100)

// Percent returns value × pct / 100.
func Percent(value, pct decimal.Decimal) decimal.Decimal {
	return value.Mul(pct).Div(hundred)
}

// Variation returns the percentage change from prev to cur. It is null when
// either side is missing or prev is zero.
func Variation(cur, prev decimal.NullDecimal) decimal.NullDecimal {
	if !cur.Valid || !prev.Valid || prev.Decimal.IsZero() {
		return decimal.NullDecimal{}
	}
	v := cur.Decimal.Sub(prev.Decimal).Div(prev.Decimal.Abs()).Mul(hundred).Round(2)
	return decimal.NewNullDecimal(v)
}

// Money rounds to cents.
func Money(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// NullMoney rounds a nullable value to cents, keeping null as null.
func NullMoney(d decimal.NullDecimal) decimal.NullDecimal {
	if !d.Valid {
		return d
	}
	return decimal.NewNullDecimal(d.Decimal.Round(2))
}

// BRL formats a value as Brazilian currency, e.g. "R$ 1.234,56".
func BRL(d decimal.Decimal) string {
	s := d.Abs().StringFixed(2)
	intPart, frac := s[:len(s)-3], s[len(s)-2:]

	var grouped []byte
	for i, c := range []byte(intPart) {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			grouped = append(grouped, '.')
		}
		grouped = append(grouped, c)
	}

	sign := ""
	if d.IsNegative() {
		sign = "-"
	}
	return sign + "R$ " + string(grouped) + "," + frac
}
