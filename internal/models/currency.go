package models

import (
	"fmt"
	"strings"
)

type Currency string

const (
	CurrencyTND Currency = "TND"
	CurrencyUSD Currency = "USD"
)

// BaseCurrency is the currency balances are held in.
const BaseCurrency = CurrencyTND

var supportedCurrencies = []Currency{CurrencyTND, CurrencyUSD}

func ParseCurrency(s string) (Currency, error) {
	c := Currency(strings.ToUpper(strings.TrimSpace(s)))
	if !c.IsValid() {
		return "", fmt.Errorf("unsupported currency %q, must be one of: %v", s, supportedCurrencies)
	}
	return c, nil
}

func (c Currency) IsValid() bool {
	for _, s := range supportedCurrencies {
		if s == c {
			return true
		}
	}
	return false
}

func (c Currency) IsBase() bool {
	return c == BaseCurrency
}
