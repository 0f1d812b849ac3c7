package fees

import (
	"fmt"

	"github.com/mediation-escrow/backend/internal/models"
	"github.com/shopspring/decimal"
)

// Converter translates between the base currency and the single foreign currency
// using one configured scalar: base units per foreign unit.
type Converter struct {
	rate decimal.Decimal
}

func NewConverter(usdToBase decimal.Decimal) (*Converter, error) {
	if !usdToBase.IsPositive() {
		return nil, fmt.Errorf("exchange rate must be positive, got %s", usdToBase)
	}
	return &Converter{rate: usdToBase}, nil
}

func (c *Converter) Rate() decimal.Decimal {
	return c.rate
}

// ToBase converts amount in cur to the base currency. The result is not rounded.
func (c *Converter) ToBase(amount decimal.Decimal, cur models.Currency) (decimal.Decimal, error) {
	switch cur {
	case models.BaseCurrency:
		return amount, nil
	case models.CurrencyUSD:
		return amount.Mul(c.rate), nil
	}
	return decimal.Zero, fmt.Errorf("%w: %q", ErrUnsupportedCurrency, cur)
}

// FromBase converts a base-currency amount into cur. The result is not rounded.
func (c *Converter) FromBase(amount decimal.Decimal, cur models.Currency) (decimal.Decimal, error) {
	switch cur {
	case models.BaseCurrency:
		return amount, nil
	case models.CurrencyUSD:
		return amount.Div(c.rate), nil
	}
	return decimal.Zero, fmt.Errorf("%w: %q", ErrUnsupportedCurrency, cur)
}

// ToBaseRounded converts and rounds to cents.
func (c *Converter) ToBaseRounded(amount decimal.Decimal, cur models.Currency) (decimal.Decimal, error) {
	v, err := c.ToBase(amount, cur)
	if err != nil {
		return decimal.Zero, err
	}
	return v.Round(MoneyPlaces), nil
}
