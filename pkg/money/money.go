// Package money provides currency-safe arithmetic for statement amounts using
// integer minor units (go-money) and shopspring/decimal for parsing.
package money

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"
)

// EUR is the currency of the supported statements.
const EUR = "EUR"

// ErrEmptyAmount is returned by Parse for blank input.
var ErrEmptyAmount = errors.New("empty amount")

// dotGrouping matches integers grouped by dots, such as "1.234" or "12.345.678".
var dotGrouping = regexp.MustCompile(`^[1-9]\d{0,2}(\.\d{3})+$`)

// Money represents a monetary value with currency.
type Money struct {
	m *money.Money
}

// New creates a Money value from minor units and a currency code.
func New(amountMinor int64, currencyCode string) *Money {
	return &Money{m: money.New(amountMinor, currencyCode)}
}

// Zero returns a zero Money value for the given currency
func Zero(currencyCode string) *Money {
	return New(0, currencyCode)
}

// NewFromDecimal creates Money from a decimal.Decimal value, rounding to the
// currency's minor unit.
func NewFromDecimal(amount decimal.Decimal, currencyCode string) *Money {
	currency := money.GetCurrency(currencyCode)
	if currency == nil {
		currency = money.GetCurrency(EUR)
		currencyCode = EUR
	}

	multiplier := decimal.New(1, int32(currency.Fraction))
	minor := amount.Mul(multiplier).Round(0).IntPart()

	return New(minor, currencyCode)
}

// Parse reads a statement amount such as "1.234,56", "-10,00", "1,234.56",
// "10.00 €" or "(25.00)". The decimal separator is inferred from the text.
func Parse(amount string, currencyCode string) (*Money, error) {
	s := strings.TrimSpace(amount)
	if s == "" {
		return nil, ErrEmptyAmount
	}

	for _, sym := range []string{"€", "$", "£", "EUR", "USD", "GBP", "CHF"} {
		s = strings.ReplaceAll(s, sym, "")
	}
	s = strings.ReplaceAll(s, " ", "")
	s = strings.ReplaceAll(s, "\u00a0", "")

	negative := false
	switch {
	case strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")"):
		negative = true
		s = strings.Trim(s, "()")
	case strings.HasPrefix(s, "-"):
		negative = true
		s = strings.TrimPrefix(s, "-")
	case strings.HasSuffix(s, "-"):
		// Some German statements print the sign after the amount.
		negative = true
		s = strings.TrimSuffix(s, "-")
	case strings.HasPrefix(s, "+"):
		s = strings.TrimPrefix(s, "+")
	}

	d, err := decimal.NewFromString(normalizeSeparators(s))
	if err != nil {
		return nil, fmt.Errorf("invalid amount %q: %w", amount, err)
	}
	if negative {
		d = d.Neg()
	}

	return NewFromDecimal(d, currencyCode), nil
}

// normalizeSeparators rewrites s so that '.' is the only decimal separator
// and thousands separators are gone.
func normalizeSeparators(s string) string {
	lastDot := strings.LastIndex(s, ".")
	lastComma := strings.LastIndex(s, ",")

	switch {
	case lastDot >= 0 && lastComma >= 0:
		if lastComma > lastDot {
			// 1.234,56
			s = strings.ReplaceAll(s, ".", "")
			return strings.Replace(s, ",", ".", 1)
		}
		// 1,234.56
		return strings.ReplaceAll(s, ",", "")
	case lastComma >= 0:
		if strings.Count(s, ",") == 1 && len(s)-lastComma-1 <= 2 {
			return strings.Replace(s, ",", ".", 1)
		}
		return strings.ReplaceAll(s, ",", "")
	case lastDot >= 0:
		if dotGrouping.MatchString(s) {
			// 1.234 is German thousands grouping
			return strings.ReplaceAll(s, ".", "")
		}
		return s
	default:
		return s
	}
}

// Amount returns the amount in minor units (cents)
func (m *Money) Amount() int64 {
	if m == nil || m.m == nil {
		return 0
	}
	return m.m.Amount()
}

// Currency returns the ISO-4217 currency code
func (m *Money) Currency() string {
	if m == nil || m.m == nil {
		return ""
	}
	return m.m.Currency().Code
}

// Negate returns the amount with its sign flipped.
func (m *Money) Negate() *Money {
	if m == nil || m.m == nil {
		return nil
	}
	return New(-m.Amount(), m.Currency())
}

// IsZero returns true if the amount is zero
func (m *Money) IsZero() bool {
	return m == nil || m.m == nil || m.m.IsZero()
}

// IsNegative returns true if the amount is less than zero
func (m *Money) IsNegative() bool {
	return m != nil && m.m != nil && m.m.IsNegative()
}

// Add adds two Money values. Returns error if currencies don't match.
func (m *Money) Add(other *Money) (*Money, error) {
	if m == nil || m.m == nil {
		return other, nil
	}
	if other == nil || other.m == nil {
		return m, nil
	}

	result, err := m.m.Add(other.m)
	if err != nil {
		return nil, err
	}
	return &Money{m: result}, nil
}

// Display returns a formatted string for display (e.g., "€1,234.56")
func (m *Money) Display() string {
	if m == nil || m.m == nil {
		return Zero(EUR).m.Display()
	}
	return m.m.Display()
}

// String returns the amount as a decimal string (e.g., "1234.56")
func (m *Money) String() string {
	if m == nil || m.m == nil {
		return "0.00"
	}
	return m.ToDecimal().StringFixed(int32(m.m.Currency().Fraction))
}

// ToDecimal converts to decimal.Decimal for precise calculations
func (m *Money) ToDecimal() decimal.Decimal {
	if m == nil || m.m == nil {
		return decimal.Zero
	}
	currency := m.m.Currency()
	d := decimal.NewFromInt(m.m.Amount())
	divisor := decimal.New(1, int32(currency.Fraction))
	return d.Div(divisor)
}
