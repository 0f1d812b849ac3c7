package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type HistoryEvent string

const (
	HistoryCreated            HistoryEvent = "created"
	HistoryMediatorAssigned   HistoryEvent = "mediator_assigned"
	HistoryAssignmentAccepted HistoryEvent = "assignment_accepted"
	HistoryAssignmentRejected HistoryEvent = "assignment_rejected"
	HistorySuggestionsServed  HistoryEvent = "suggestions_served"
	HistoryReadinessConfirmed HistoryEvent = "readiness_confirmed"
	HistoryEscrowFunded       HistoryEvent = "escrow_funded"
	HistoryPartiesConfirmed   HistoryEvent = "parties_confirmed"
	HistoryChatOpened         HistoryEvent = "chat_opened"
	HistoryDisputeOpened      HistoryEvent = "dispute_opened"
	HistoryOverseerJoined     HistoryEvent = "overseer_joined"
	HistorySettled            HistoryEvent = "settled"
	HistoryDisputeResolved    HistoryEvent = "dispute_resolved"
	HistoryCancelled          HistoryEvent = "cancelled"
)

// HistoryDetails is the payload of one history entry. Each event kind has exactly one
// details type; Event() names it.
type HistoryDetails interface {
	Event() HistoryEvent
}

type CreatedDetails struct {
	SelfSelect  bool            `json:"self_select"`
	BidAmount   decimal.Decimal `json:"bid_amount"`
	BidCurrency Currency        `json:"bid_currency"`
}

type MediatorAssignedDetails struct {
	MediatorID       uuid.UUID `json:"mediator_id"`
	SelectedBySeller bool      `json:"selected_by_seller"`
}

type AssignmentAcceptedDetails struct {
	MediatorID uuid.UUID `json:"mediator_id"`
}

type AssignmentRejectedDetails struct {
	MediatorID uuid.UUID `json:"mediator_id"`
	Reason     string    `json:"reason"`
	TimedOut   bool      `json:"timed_out"`
}

type SuggestionsServedDetails struct {
	MediatorIDs  []uuid.UUID `json:"mediator_ids"`
	RefreshCount int         `json:"refresh_count"`
}

type Party string

const (
	PartySeller Party = "seller"
	PartyBuyer  Party = "buyer"
)

type ReadinessConfirmedDetails struct {
	Party Party `json:"party"`
}

type EscrowFundedDetails struct {
	Amount         decimal.Decimal `json:"escrowed_amount"`
	Currency       Currency        `json:"escrowed_currency"`
	MediatorFee    decimal.Decimal `json:"mediator_fee"`
	BuyerFeeShare  decimal.Decimal `json:"buyer_fee_share"`
	SellerFeeShare decimal.Decimal `json:"seller_fee_share"`
	DebitedInBase  decimal.Decimal `json:"debited_base"`
}

type PartiesConfirmedDetails struct {
	CompletedBy Party `json:"completed_by"`
}

type ChatOpenedDetails struct{}

type DisputeOpenedDetails struct {
	OpenedBy Party   `json:"opened_by"`
	Reason   *string `json:"reason,omitempty"`
}

type OverseerJoinedDetails struct {
	AdminID uuid.UUID `json:"admin_id"`
}

// SettledDetails records both converted amounts of a normal settlement.
type SettledDetails struct {
	SellerAmount     decimal.Decimal `json:"seller_amount"`
	MediatorFee      decimal.Decimal `json:"mediator_fee"`
	Currency         Currency        `json:"currency"`
	SellerAmountBase decimal.Decimal `json:"seller_amount_base"`
	MediatorFeeBase  decimal.Decimal `json:"mediator_fee_base"`
}

type DisputeResolvedDetails struct {
	Outcome          string          `json:"outcome"`
	SellerAmount     decimal.Decimal `json:"seller_amount"`
	BuyerRefund      decimal.Decimal `json:"buyer_refund"`
	MediatorFee      decimal.Decimal `json:"mediator_fee"`
	Currency         Currency        `json:"currency"`
	SellerAmountBase decimal.Decimal `json:"seller_amount_base"`
	BuyerRefundBase  decimal.Decimal `json:"buyer_refund_base"`
	MediatorFeeBase  decimal.Decimal `json:"mediator_fee_base"`
	Note             *string         `json:"note,omitempty"`
}

type CancelledDetails struct {
	Status MediationStatus `json:"status"`
	Reason string          `json:"reason"`
}

func (CreatedDetails) Event() HistoryEvent            { return HistoryCreated }
func (MediatorAssignedDetails) Event() HistoryEvent   { return HistoryMediatorAssigned }
func (AssignmentAcceptedDetails) Event() HistoryEvent { return HistoryAssignmentAccepted }
func (AssignmentRejectedDetails) Event() HistoryEvent { return HistoryAssignmentRejected }
func (SuggestionsServedDetails) Event() HistoryEvent  { return HistorySuggestionsServed }
func (ReadinessConfirmedDetails) Event() HistoryEvent { return HistoryReadinessConfirmed }
func (EscrowFundedDetails) Event() HistoryEvent       { return HistoryEscrowFunded }
func (PartiesConfirmedDetails) Event() HistoryEvent   { return HistoryPartiesConfirmed }
func (ChatOpenedDetails) Event() HistoryEvent         { return HistoryChatOpened }
func (DisputeOpenedDetails) Event() HistoryEvent      { return HistoryDisputeOpened }
func (OverseerJoinedDetails) Event() HistoryEvent     { return HistoryOverseerJoined }
func (SettledDetails) Event() HistoryEvent            { return HistorySettled }
func (DisputeResolvedDetails) Event() HistoryEvent    { return HistoryDisputeResolved }
func (CancelledDetails) Event() HistoryEvent          { return HistoryCancelled }

var historyDetailsFactory = map[HistoryEvent]func() HistoryDetails{
	HistoryCreated:            func() HistoryDetails { return &CreatedDetails{} },
	HistoryMediatorAssigned:   func() HistoryDetails { return &MediatorAssignedDetails{} },
	HistoryAssignmentAccepted: func() HistoryDetails { return &AssignmentAcceptedDetails{} },
	HistoryAssignmentRejected: func() HistoryDetails { return &AssignmentRejectedDetails{} },
	HistorySuggestionsServed:  func() HistoryDetails { return &SuggestionsServedDetails{} },
	HistoryReadinessConfirmed: func() HistoryDetails { return &ReadinessConfirmedDetails{} },
	HistoryEscrowFunded:       func() HistoryDetails { return &EscrowFundedDetails{} },
	HistoryPartiesConfirmed:   func() HistoryDetails { return &PartiesConfirmedDetails{} },
	HistoryChatOpened:         func() HistoryDetails { return &ChatOpenedDetails{} },
	HistoryDisputeOpened:      func() HistoryDetails { return &DisputeOpenedDetails{} },
	HistoryOverseerJoined:     func() HistoryDetails { return &OverseerJoinedDetails{} },
	HistorySettled:            func() HistoryDetails { return &SettledDetails{} },
	HistoryDisputeResolved:    func() HistoryDetails { return &DisputeResolvedDetails{} },
	HistoryCancelled:          func() HistoryDetails { return &CancelledDetails{} },
}

// DecodeHistoryDetails parses a stored details payload for the given event kind.
// The returned value is the non-pointer details type.
func DecodeHistoryDetails(event HistoryEvent, raw []byte) (HistoryDetails, error) {
	factory, ok := historyDetailsFactory[event]
	if !ok {
		return nil, fmt.Errorf("unknown history event %q", event)
	}
	d := factory()
	if len(raw) > 0 && string(raw) != "null" {
		if err := json.Unmarshal(raw, d); err != nil {
			return nil, fmt.Errorf("decode %s details: %w", event, err)
		}
	}
	return deref(d), nil
}

func deref(d HistoryDetails) HistoryDetails {
	switch v := d.(type) {
	case *CreatedDetails:
		return *v
	case *MediatorAssignedDetails:
		return *v
	case *AssignmentAcceptedDetails:
		return *v
	case *AssignmentRejectedDetails:
		return *v
	case *SuggestionsServedDetails:
		return *v
	case *ReadinessConfirmedDetails:
		return *v
	case *EscrowFundedDetails:
		return *v
	case *PartiesConfirmedDetails:
		return *v
	case *ChatOpenedDetails:
		return *v
	case *DisputeOpenedDetails:
		return *v
	case *OverseerJoinedDetails:
		return *v
	case *SettledDetails:
		return *v
	case *DisputeResolvedDetails:
		return *v
	case *CancelledDetails:
		return *v
	}
	return d
}

// HistoryEntry is one append-only audit record. Event is always Details.Event().
type HistoryEntry struct {
	Event   HistoryEvent
	ActorID *uuid.UUID
	At      time.Time
	Details HistoryDetails
}

func NewHistoryEntry(actorID *uuid.UUID, at time.Time, details HistoryDetails) HistoryEntry {
	return HistoryEntry{Event: details.Event(), ActorID: actorID, At: at.UTC(), Details: details}
}

type historyEntryJSON struct {
	Event     HistoryEvent    `json:"event"`
	ActorID   *uuid.UUID      `json:"actor_id,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
	Details   json.RawMessage `json:"details"`
}

func (h HistoryEntry) MarshalJSON() ([]byte, error) {
	if h.Details == nil {
		return nil, fmt.Errorf("history entry %q has no details", h.Event)
	}
	if h.Details.Event() != h.Event {
		return nil, fmt.Errorf("history entry %q carries %q details", h.Event, h.Details.Event())
	}
	details, err := json.Marshal(h.Details)
	if err != nil {
		return nil, err
	}
	return json.Marshal(historyEntryJSON{Event: h.Event, ActorID: h.ActorID, Timestamp: h.At, Details: details})
}

func (h *HistoryEntry) UnmarshalJSON(data []byte) error {
	var raw historyEntryJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	details, err := DecodeHistoryDetails(raw.Event, raw.Details)
	if err != nil {
		return err
	}
	*h = HistoryEntry{Event: raw.Event, ActorID: raw.ActorID, At: raw.Timestamp, Details: details}
	return nil
}
