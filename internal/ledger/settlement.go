package ledger

import (
	"fmt"

	"github.com/mediation-escrow/backend/internal/models"
	"github.com/shopspring/decimal"
)

// Allocation splits an escrow between the three parties, in the escrow currency.
type Allocation struct {
	SellerAmount decimal.Decimal `json:"seller_amount"`
	BuyerRefund  decimal.Decimal `json:"buyer_refund"`
	MediatorFee  decimal.Decimal `json:"mediator_fee"`
}

// Check enforces seller + buyerRefund + mediatorFee == escrowed with no negative part.
func (a Allocation) Check(escrow models.EscrowTerms) error {
	if a.SellerAmount.IsNegative() || a.BuyerRefund.IsNegative() || a.MediatorFee.IsNegative() {
		return fmt.Errorf("%w: negative allocation %s/%s/%s", ErrInconsistent, a.SellerAmount, a.BuyerRefund, a.MediatorFee)
	}
	sum := a.SellerAmount.Add(a.BuyerRefund).Add(a.MediatorFee)
	if !sum.Equal(escrow.Amount) {
		return fmt.Errorf("%w: allocation sums to %s, escrowed %s", ErrInconsistent, sum, escrow.Amount)
	}
	return nil
}

// ComputeSettlement is the normal completion: the seller gets the escrow minus the
// mediator fee and the mediator gets the fee.
func ComputeSettlement(escrow models.EscrowTerms) (Allocation, error) {
	if escrow.FeeCurrency != escrow.Currency {
		return Allocation{}, fmt.Errorf("%w: fee currency %s differs from escrow currency %s", ErrInconsistent, escrow.FeeCurrency, escrow.Currency)
	}
	forSeller := escrow.Amount.Sub(escrow.MediatorFee)
	if forSeller.IsNegative() {
		return Allocation{}, fmt.Errorf("%w: amount for seller %s is negative (escrow %s, fee %s)",
			ErrInconsistent, forSeller, escrow.Amount, escrow.MediatorFee)
	}
	return Allocation{SellerAmount: forSeller, MediatorFee: escrow.MediatorFee}, nil
}
