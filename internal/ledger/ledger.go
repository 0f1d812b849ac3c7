// Package ledger moves money between users for the mediation escrow.
//
// Flow:
//  1. Buyer confirms readiness: FundEscrow debits the buyer's liquid balance
//  2. Platform holds the escrow on the mediation record
//  3. Distribute pays out an Allocation: seller pending balance, mediator fee, buyer refund
//
// Every mutation goes through an Accounts port bound to the caller's transaction and
// leaves one journal entry per account touched.
package ledger

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/mediation-escrow/backend/internal/fees"
	"github.com/mediation-escrow/backend/internal/models"
	"github.com/shopspring/decimal"
)

var (
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrInconsistent      = errors.New("ledger inconsistency")
	ErrAlreadyFunded     = errors.New("escrow already funded")
)

// Accounts is the balance store as seen from inside one transaction.
type Accounts interface {
	GetUserForUpdate(ctx context.Context, id uuid.UUID) (*models.User, error)
	UpdateUserAccount(ctx context.Context, u *models.User) error
	AppendLedgerEntry(ctx context.Context, e *models.LedgerEntry) error
}

type Ledger struct {
	conv *fees.Converter
	now  func() time.Time
}

func New(conv *fees.Converter) *Ledger {
	return &Ledger{conv: conv, now: time.Now}
}

// FundEscrow debits totalForBuyer (converted to base) from the buyer and returns the
// escrow terms to store on the record. Nothing is written when the balance is short.
func (l *Ledger) FundEscrow(ctx context.Context, acc Accounts, req *models.MediationRequest, fee fees.FeeResult) (*models.EscrowTerms, error) {
	defer observeOp("fund_escrow")()

	if req.Escrow != nil {
		return nil, ErrAlreadyFunded
	}
	if fee.CurrencyUsed != req.BidCurrency {
		return nil, fmt.Errorf("%w: fee computed in %s for bid in %s", ErrInconsistent, fee.CurrencyUsed, req.BidCurrency)
	}
	debit, err := l.conv.ToBaseRounded(fee.TotalForBuyer, fee.CurrencyUsed)
	if err != nil {
		return nil, err
	}

	buyer, err := acc.GetUserForUpdate(ctx, req.BuyerID)
	if err != nil {
		return nil, fmt.Errorf("load buyer: %w", err)
	}
	if debit.GreaterThan(buyer.Balance) {
		return nil, fmt.Errorf("%w: need %s %s, have %s", ErrInsufficientFunds, debit, models.BaseCurrency, buyer.Balance)
	}

	buyer.Balance = buyer.Balance.Sub(debit)
	if err := acc.UpdateUserAccount(ctx, buyer); err != nil {
		return nil, fmt.Errorf("debit buyer: %w", err)
	}
	if err := l.journal(ctx, acc, req.ID, buyer, models.AccountBalance, models.EntryEscrowDebit, debit.Neg()); err != nil {
		return nil, err
	}

	return &models.EscrowTerms{
		Amount:         fee.TotalForBuyer,
		Currency:       fee.CurrencyUsed,
		MediatorFee:    fee.Fee,
		BuyerFeeShare:  fee.BuyerShare,
		SellerFeeShare: fee.SellerShare,
		FeeCurrency:    fee.CurrencyUsed,
		AmountInBase:   debit,
		FundedAt:       l.now().UTC(),
	}, nil
}

// Distribution is what Distribute credited, in base currency.
type Distribution struct {
	SellerBase   decimal.Decimal
	BuyerBase    decimal.Decimal
	MediatorBase decimal.Decimal
}

// Distribute pays an allocation out of the escrow held on req. The allocation must
// already satisfy Check. Base amounts are derived so that their sum equals the amount
// debited at funding; the residual cent of rounding goes to the seller, or to the buyer
// when the seller receives nothing.
func (l *Ledger) Distribute(ctx context.Context, acc Accounts, req *models.MediationRequest, alloc Allocation) (Distribution, error) {
	defer observeOp("distribute")()

	if req.Escrow == nil || req.MediatorID == nil {
		return Distribution{}, fmt.Errorf("%w: distribute without escrow or mediator", ErrInconsistent)
	}
	if err := alloc.Check(*req.Escrow); err != nil {
		return Distribution{}, err
	}

	d, err := l.toBase(*req.Escrow, alloc)
	if err != nil {
		return Distribution{}, err
	}

	users, err := lockUsers(ctx, acc, req.SellerID, req.BuyerID, *req.MediatorID)
	if err != nil {
		return Distribution{}, err
	}
	seller, buyer, mediator := users[req.SellerID], users[req.BuyerID], users[*req.MediatorID]

	if d.SellerBase.IsPositive() {
		seller.SellerPendingBalance = seller.SellerPendingBalance.Add(d.SellerBase)
		if err := acc.UpdateUserAccount(ctx, seller); err != nil {
			return Distribution{}, fmt.Errorf("credit seller: %w", err)
		}
		if err := l.journal(ctx, acc, req.ID, seller, models.AccountSellerPending, models.EntrySellerRelease, d.SellerBase); err != nil {
			return Distribution{}, err
		}
	}
	if d.BuyerBase.IsPositive() {
		buyer.Balance = buyer.Balance.Add(d.BuyerBase)
		if err := acc.UpdateUserAccount(ctx, buyer); err != nil {
			return Distribution{}, fmt.Errorf("refund buyer: %w", err)
		}
		if err := l.journal(ctx, acc, req.ID, buyer, models.AccountBalance, models.EntryBuyerRefund, d.BuyerBase); err != nil {
			return Distribution{}, err
		}
	}
	if d.MediatorBase.IsPositive() {
		mediator.Balance = mediator.Balance.Add(d.MediatorBase)
		if err := acc.UpdateUserAccount(ctx, mediator); err != nil {
			return Distribution{}, fmt.Errorf("credit mediator: %w", err)
		}
		if err := l.journal(ctx, acc, req.ID, mediator, models.AccountBalance, models.EntryMediatorFee, d.MediatorBase); err != nil {
			return Distribution{}, err
		}
	}

	LedgerMovedBase.WithLabelValues("seller").Add(d.SellerBase.InexactFloat64())
	LedgerMovedBase.WithLabelValues("buyer").Add(d.BuyerBase.InexactFloat64())
	LedgerMovedBase.WithLabelValues("mediator").Add(d.MediatorBase.InexactFloat64())
	return d, nil
}

func (l *Ledger) toBase(escrow models.EscrowTerms, alloc Allocation) (Distribution, error) {
	feeBase, err := l.conv.ToBaseRounded(alloc.MediatorFee, escrow.Currency)
	if err != nil {
		return Distribution{}, err
	}
	total := escrow.AmountInBase
	if total.IsZero() {
		if total, err = l.conv.ToBaseRounded(escrow.Amount, escrow.Currency); err != nil {
			return Distribution{}, err
		}
	}

	var d Distribution
	d.MediatorBase = feeBase
	if alloc.SellerAmount.IsPositive() {
		if d.BuyerBase, err = l.conv.ToBaseRounded(alloc.BuyerRefund, escrow.Currency); err != nil {
			return Distribution{}, err
		}
		d.SellerBase = total.Sub(feeBase).Sub(d.BuyerBase)
	} else {
		d.BuyerBase = total.Sub(feeBase)
		d.SellerBase = decimal.Zero
	}
	if d.SellerBase.IsNegative() || d.BuyerBase.IsNegative() {
		return Distribution{}, fmt.Errorf("%w: base distribution %s/%s/%s exceeds escrow %s",
			ErrInconsistent, d.SellerBase, d.BuyerBase, d.MediatorBase, total)
	}
	return d, nil
}

func (l *Ledger) journal(ctx context.Context, acc Accounts, mediationID uuid.UUID, u *models.User, account models.LedgerAccount, kind models.LedgerEntryKind, amount decimal.Decimal) error {
	after := u.Balance
	if account == models.AccountSellerPending {
		after = u.SellerPendingBalance
	}
	err := acc.AppendLedgerEntry(ctx, &models.LedgerEntry{
		ID:           uuid.New(),
		UserID:       u.ID,
		MediationID:  mediationID,
		Account:      account,
		Kind:         kind,
		Amount:       amount,
		BalanceAfter: after,
		CreatedAt:    l.now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("journal %s: %w", kind, err)
	}
	return nil
}

// lockUsers takes row locks in id order so concurrent settlements cannot deadlock.
func lockUsers(ctx context.Context, acc Accounts, ids ...uuid.UUID) (map[uuid.UUID]*models.User, error) {
	sorted := append([]uuid.UUID(nil), ids...)
	sort.Slice(sorted, func(i, j int) bool { return bytes.Compare(sorted[i][:], sorted[j][:]) < 0 })

	out := make(map[uuid.UUID]*models.User, len(ids))
	for _, id := range sorted {
		if _, ok := out[id]; ok {
			continue
		}
		u, err := acc.GetUserForUpdate(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("lock user %s: %w", id, err)
		}
		out[id] = u
	}
	return out, nil
}
