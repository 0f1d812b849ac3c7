package fees

import (
	"errors"
	"math"

	"github.com/mediation-escrow/backend/internal/models"
	"github.com/shopspring/decimal"
)

// MoneyPlaces is the rounding precision of every monetary output.
const MoneyPlaces = 2

var (
	ErrInvalidPrice        = errors.New("invalid price")
	ErrUnsupportedCurrency = errors.New("unsupported currency")
)

// Slab is one commission bracket on the base-currency price. A price p falls in the
// slab when From < p <= To (From inclusive when FromInclusive). A zero To means unbounded.
type Slab struct {
	From          decimal.Decimal
	FromInclusive bool
	To            decimal.Decimal
	Percent       decimal.Decimal
}

func (s Slab) contains(p decimal.Decimal) bool {
	if s.FromInclusive {
		if p.LessThan(s.From) {
			return false
		}
	} else if p.LessThanOrEqual(s.From) {
		return false
	}
	return s.To.IsZero() || p.LessThanOrEqual(s.To)
}

// DefaultSlabs: below 1 no commission, then 5/6/7/8 percent.
var DefaultSlabs = []Slab{
	{From: decimal.NewFromInt(1), FromInclusive: true, To: decimal.NewFromInt(15), Percent: decimal.NewFromInt(5)},
	{From: decimal.NewFromInt(15), To: decimal.NewFromInt(50), Percent: decimal.NewFromInt(6)},
	{From: decimal.NewFromInt(50), To: decimal.NewFromInt(100), Percent: decimal.NewFromInt(7)},
	{From: decimal.NewFromInt(100), Percent: decimal.NewFromInt(8)},
}

var hundred = decimal.NewFromInt(100)

// FeeResult is derived per request and never persisted.
type FeeResult struct {
	Fee           decimal.Decimal `json:"fee"`
	SellerShare   decimal.Decimal `json:"seller_share"`
	BuyerShare    decimal.Decimal `json:"buyer_share"`
	TotalForBuyer decimal.Decimal `json:"total_for_buyer"`
	NetForSeller  decimal.Decimal `json:"net_for_seller"`
	CurrencyUsed  models.Currency `json:"currency_used"`
	FeeInBase     decimal.Decimal `json:"fee_in_base_currency"`
	Percent       decimal.Decimal `json:"percent"`
	PriceOriginal float64         `json:"price_original"`
	Error         string          `json:"error,omitempty"`
}

type Calculator struct {
	conv  *Converter
	slabs []Slab
}

func NewCalculator(conv *Converter) *Calculator {
	return &Calculator{conv: conv, slabs: DefaultSlabs}
}

func (c *Calculator) Converter() *Converter {
	return c.conv
}

// Compute is the float entry point used by request payloads. Non-finite or
// non-positive prices produce a result carrying Error and the echoed price.
func (c *Calculator) Compute(price float64, cur models.Currency) (FeeResult, error) {
	if math.IsNaN(price) || math.IsInf(price, 0) || price <= 0 {
		return failed(price, cur, ErrInvalidPrice)
	}
	res, err := c.ComputeDecimal(decimal.NewFromFloat(price), cur)
	res.PriceOriginal = price
	return res, err
}

// ComputeDecimal applies the slab schedule to price. It is deterministic and has
// no side effects.
func (c *Calculator) ComputeDecimal(price decimal.Decimal, cur models.Currency) (FeeResult, error) {
	orig, _ := price.Float64()
	if !price.IsPositive() {
		return failed(orig, cur, ErrInvalidPrice)
	}
	priceBase, err := c.conv.ToBase(price, cur)
	if err != nil {
		return failed(orig, cur, err)
	}

	pct := c.percentFor(priceBase)
	feeBase := priceBase.Mul(pct).Div(hundred)
	fee, err := c.conv.FromBase(feeBase, cur)
	if err != nil {
		return failed(orig, cur, err)
	}
	if fee.GreaterThan(price) {
		fee = price
		if feeBase, err = c.conv.ToBase(fee, cur); err != nil {
			return failed(orig, cur, err)
		}
	}

	fee = fee.Round(MoneyPlaces)
	share := fee.Div(decimal.NewFromInt(2)).Round(MoneyPlaces)

	return FeeResult{
		Fee:           fee,
		SellerShare:   share,
		BuyerShare:    share,
		TotalForBuyer: price.Add(share).Round(MoneyPlaces),
		NetForSeller:  price.Sub(share).Round(MoneyPlaces),
		CurrencyUsed:  cur,
		FeeInBase:     feeBase.Round(MoneyPlaces),
		Percent:       pct,
		PriceOriginal: orig,
	}, nil
}

// failed is the result shape of every rejected computation: the inputs echoed
// back with the error text.
func failed(price float64, cur models.Currency, err error) (FeeResult, error) {
	return FeeResult{PriceOriginal: price, CurrencyUsed: cur, Error: err.Error()}, err
}

func (c *Calculator) percentFor(priceBase decimal.Decimal) decimal.Decimal {
	for _, s := range c.slabs {
		if s.contains(priceBase) {
			return s.Percent
		}
	}
	return decimal.Zero
}
