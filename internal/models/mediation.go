package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type MediationStatus string

// Mediation statuses
const (
	StatusPendingAssignment        MediationStatus = "pending_assignment"
	StatusPendingMediatorSelection MediationStatus = "pending_mediator_selection"
	StatusMediatorAssigned         MediationStatus = "mediator_assigned"
	StatusMediationOfferAccepted   MediationStatus = "mediation_offer_accepted"
	StatusEscrowFunded             MediationStatus = "escrow_funded"
	StatusPartiesConfirmed         MediationStatus = "parties_confirmed"
	StatusInProgress               MediationStatus = "in_progress"
	StatusDisputed                 MediationStatus = "disputed"
	StatusCompleted                MediationStatus = "completed"
	StatusRefundedToBuyer          MediationStatus = "refunded_to_buyer"
	StatusResolvedSplit            MediationStatus = "resolved_split"
	StatusCancelledByBuyer         MediationStatus = "cancelled_by_buyer"
	StatusCancelledBySeller        MediationStatus = "cancelled_by_seller"
	StatusCancelledByAdmin         MediationStatus = "cancelled_by_admin"
	StatusCancelledTimeout         MediationStatus = "cancelled_timeout"
)

// preEscrowCancellations are reachable from every state before funds move.
var preEscrowCancellations = []MediationStatus{
	StatusCancelledByBuyer, StatusCancelledBySeller, StatusCancelledByAdmin, StatusCancelledTimeout,
}

// Valid state transitions: from -> []to
var ValidMediationTransitions = map[MediationStatus][]MediationStatus{
	StatusPendingAssignment: append([]MediationStatus{
		StatusMediatorAssigned, StatusPendingMediatorSelection,
	}, preEscrowCancellations...),
	StatusPendingMediatorSelection: append([]MediationStatus{
		StatusMediatorAssigned,
	}, preEscrowCancellations...),
	StatusMediatorAssigned: append([]MediationStatus{
		StatusMediationOfferAccepted, StatusPendingMediatorSelection,
	}, preEscrowCancellations...),
	StatusMediationOfferAccepted: append([]MediationStatus{
		StatusEscrowFunded, StatusPartiesConfirmed,
	}, preEscrowCancellations...),
	StatusEscrowFunded:      {StatusPartiesConfirmed},
	StatusPartiesConfirmed:  {StatusInProgress},
	StatusInProgress:        {StatusCompleted, StatusDisputed},
	StatusDisputed:          {StatusCompleted, StatusRefundedToBuyer, StatusResolvedSplit},
	StatusCompleted:         {},
	StatusRefundedToBuyer:   {},
	StatusResolvedSplit:     {},
	StatusCancelledByBuyer:  {},
	StatusCancelledBySeller: {},
	StatusCancelledByAdmin:  {},
	StatusCancelledTimeout:  {},
}

func IsValidTransition(from, to MediationStatus) bool {
	allowed, ok := ValidMediationTransitions[from]
	if !ok {
		return false
	}
	for _, s := range allowed {
		if s == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transition can leave the status.
func (s MediationStatus) IsTerminal() bool {
	allowed, ok := ValidMediationTransitions[s]
	return ok && len(allowed) == 0
}

func (s MediationStatus) IsCancelled() bool {
	switch s {
	case StatusCancelledByBuyer, StatusCancelledBySeller, StatusCancelledByAdmin, StatusCancelledTimeout:
		return true
	}
	return false
}

// IsFunded reports whether escrow has been taken for a record in this status.
func (s MediationStatus) IsFunded() bool {
	switch s {
	case StatusEscrowFunded, StatusPartiesConfirmed, StatusInProgress, StatusDisputed,
		StatusCompleted, StatusRefundedToBuyer, StatusResolvedSplit:
		return true
	}
	return false
}

// ActiveMediatorStatuses hold a mediator's attention; used for availability.
var ActiveMediatorStatuses = []MediationStatus{
	StatusMediatorAssigned, StatusMediationOfferAccepted, StatusEscrowFunded,
	StatusPartiesConfirmed, StatusInProgress, StatusDisputed,
}

func (s MediationStatus) OccupiesMediator() bool {
	for _, a := range ActiveMediatorStatuses {
		if a == s {
			return true
		}
	}
	return false
}

// ReadinessPhase folds the two readiness flags into one value.
type ReadinessPhase string

const (
	ReadinessNotApplicable  ReadinessPhase = "not_applicable"
	ReadinessAwaitingBoth   ReadinessPhase = "awaiting_both"
	ReadinessAwaitingBuyer  ReadinessPhase = "awaiting_buyer"
	ReadinessAwaitingSeller ReadinessPhase = "awaiting_seller"
	ReadinessBothConfirmed  ReadinessPhase = "both_confirmed"
)

// EscrowTerms are written once, when the buyer funds the escrow.
type EscrowTerms struct {
	Amount         decimal.Decimal `json:"escrowed_amount"`
	Currency       Currency        `json:"escrowed_currency"`
	MediatorFee    decimal.Decimal `json:"calculated_mediator_fee"`
	BuyerFeeShare  decimal.Decimal `json:"calculated_buyer_fee_share"`
	SellerFeeShare decimal.Decimal `json:"calculated_seller_fee_share"`
	FeeCurrency    Currency        `json:"mediation_fee_currency"`
	AmountInBase   decimal.Decimal `json:"escrowed_amount_base"`
	FundedAt       time.Time       `json:"funded_at"`
}

type MediationRequest struct {
	ID         uuid.UUID  `json:"id"`
	ProductID  uuid.UUID  `json:"product_id"`
	SellerID   uuid.UUID  `json:"seller_id"`
	BuyerID    uuid.UUID  `json:"buyer_id"`
	MediatorID *uuid.UUID `json:"mediator_id,omitempty"`

	BidAmount   decimal.Decimal `json:"bid_amount"`
	BidCurrency Currency        `json:"bid_currency"`

	Status                       MediationStatus `json:"status"`
	SellerConfirmedStart         bool            `json:"seller_confirmed_start"`
	BuyerConfirmedStart          bool            `json:"buyer_confirmed_start"`
	SuggestionRefreshCount       int             `json:"suggestion_refresh_count"`
	PreviouslySuggestedMediators []uuid.UUID     `json:"previously_suggested_mediators"`

	Escrow *EscrowTerms `json:"escrow,omitempty"`

	DisputeOverseers []uuid.UUID `json:"dispute_overseers"`
	DisputeOpenedBy  *uuid.UUID  `json:"dispute_opened_by,omitempty"`
	DisputeReason    *string     `json:"dispute_reason,omitempty"`
	CloseReason      *string     `json:"close_reason,omitempty"`

	History []HistoryEntry `json:"history,omitempty"`

	AssignedAt  *time.Time `json:"assigned_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// Clone returns a deep copy so callers can mutate without touching shared state.
func (m *MediationRequest) Clone() *MediationRequest {
	cp := *m
	if m.MediatorID != nil {
		id := *m.MediatorID
		cp.MediatorID = &id
	}
	if m.Escrow != nil {
		e := *m.Escrow
		cp.Escrow = &e
	}
	if m.DisputeOpenedBy != nil {
		id := *m.DisputeOpenedBy
		cp.DisputeOpenedBy = &id
	}
	cp.PreviouslySuggestedMediators = append([]uuid.UUID(nil), m.PreviouslySuggestedMediators...)
	cp.DisputeOverseers = append([]uuid.UUID(nil), m.DisputeOverseers...)
	cp.History = append([]HistoryEntry(nil), m.History...)
	return &cp
}

func (m *MediationRequest) IsParticipant(userID uuid.UUID) bool {
	return m.SellerID == userID || m.BuyerID == userID || m.IsMediator(userID)
}

func (m *MediationRequest) IsMediator(userID uuid.UUID) bool {
	return m.MediatorID != nil && *m.MediatorID == userID
}

func (m *MediationRequest) IsOverseer(userID uuid.UUID) bool {
	return containsID(m.DisputeOverseers, userID)
}

func (m *MediationRequest) WasSuggested(userID uuid.UUID) bool {
	return containsID(m.PreviouslySuggestedMediators, userID)
}

// MarkSuggested records a mediator id in the suggestion set; duplicates are ignored.
func (m *MediationRequest) MarkSuggested(userID uuid.UUID) {
	if !m.WasSuggested(userID) {
		m.PreviouslySuggestedMediators = append(m.PreviouslySuggestedMediators, userID)
	}
}

// HasRejected reports whether userID turned down an assignment on this request.
func (m *MediationRequest) HasRejected(userID uuid.UUID) bool {
	for _, h := range m.History {
		if d, ok := h.Details.(AssignmentRejectedDetails); ok && d.MediatorID == userID {
			return true
		}
	}
	return false
}

// AddOverseer returns false when the admin already joined.
func (m *MediationRequest) AddOverseer(adminID uuid.UUID) bool {
	if m.IsOverseer(adminID) {
		return false
	}
	m.DisputeOverseers = append(m.DisputeOverseers, adminID)
	return true
}

func (m *MediationRequest) ReadinessPhase() ReadinessPhase {
	switch m.Status {
	case StatusMediationOfferAccepted, StatusEscrowFunded, StatusPartiesConfirmed:
	default:
		return ReadinessNotApplicable
	}
	switch {
	case m.SellerConfirmedStart && m.BuyerConfirmedStart:
		return ReadinessBothConfirmed
	case m.SellerConfirmedStart:
		return ReadinessAwaitingBuyer
	case m.BuyerConfirmedStart:
		return ReadinessAwaitingSeller
	}
	return ReadinessAwaitingBoth
}

// CheckInvariants rejects field combinations no sequence of legal transitions can produce.
func (m *MediationRequest) CheckInvariants() error {
	if _, ok := ValidMediationTransitions[m.Status]; !ok {
		return fmt.Errorf("unknown status %q", m.Status)
	}
	if m.MediatorID != nil && (*m.MediatorID == m.SellerID || *m.MediatorID == m.BuyerID) {
		return fmt.Errorf("mediator %s is a party to the trade", *m.MediatorID)
	}
	if m.SellerID == m.BuyerID {
		return fmt.Errorf("seller and buyer are the same user")
	}
	if m.Status.IsFunded() != (m.Escrow != nil) {
		return fmt.Errorf("status %s inconsistent with escrow presence", m.Status)
	}
	if m.BuyerConfirmedStart != (m.Escrow != nil) {
		return fmt.Errorf("buyer readiness inconsistent with escrow presence")
	}
	switch m.Status {
	case StatusPendingAssignment, StatusPendingMediatorSelection:
		if m.MediatorID != nil {
			return fmt.Errorf("status %s must not carry a mediator", m.Status)
		}
	case StatusMediatorAssigned, StatusMediationOfferAccepted, StatusEscrowFunded,
		StatusPartiesConfirmed, StatusInProgress, StatusDisputed, StatusCompleted,
		StatusRefundedToBuyer, StatusResolvedSplit:
		if m.MediatorID == nil {
			return fmt.Errorf("status %s requires a mediator", m.Status)
		}
	}
	switch m.Status {
	case StatusEscrowFunded:
		if m.SellerConfirmedStart {
			return fmt.Errorf("escrow_funded with seller already confirmed must be parties_confirmed")
		}
	case StatusPartiesConfirmed, StatusInProgress, StatusDisputed:
		if !m.SellerConfirmedStart || !m.BuyerConfirmedStart {
			return fmt.Errorf("status %s requires both parties confirmed", m.Status)
		}
	}
	if m.Escrow != nil {
		if !m.Escrow.MediatorFee.LessThanOrEqual(m.Escrow.Amount) || m.Escrow.MediatorFee.IsNegative() {
			return fmt.Errorf("mediator fee %s outside escrow %s", m.Escrow.MediatorFee, m.Escrow.Amount)
		}
	}
	return nil
}

func containsID(ids []uuid.UUID, id uuid.UUID) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
