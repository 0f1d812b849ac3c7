package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type LedgerAccount string

const (
	AccountBalance       LedgerAccount = "balance"
	AccountSellerPending LedgerAccount = "seller_pending_balance"
)

type LedgerEntryKind string

const (
	EntryEscrowDebit   LedgerEntryKind = "escrow_debit"
	EntrySellerRelease LedgerEntryKind = "seller_release"
	EntryMediatorFee   LedgerEntryKind = "mediator_fee"
	EntryBuyerRefund   LedgerEntryKind = "buyer_refund"
)

// LedgerEntry is one signed movement on a user's account, in BaseCurrency.
type LedgerEntry struct {
	ID           uuid.UUID       `json:"id"`
	UserID       uuid.UUID       `json:"user_id"`
	MediationID  uuid.UUID       `json:"mediation_id"`
	Account      LedgerAccount   `json:"account"`
	Kind         LedgerEntryKind `json:"kind"`
	Amount       decimal.Decimal `json:"amount"`
	BalanceAfter decimal.Decimal `json:"balance_after"`
	CreatedAt    time.Time       `json:"created_at"`
}
