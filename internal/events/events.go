package events

import (
	"context"

	"github.com/google/uuid"
)

// Channel carries every mediation event.
const Channel = "events:mediation"

// Event types
const (
	EventMediationCreated      = "mediation_created"
	EventMediatorAssigned      = "mediator_assigned"
	EventOfferAccepted         = "mediation_offer_accepted"
	EventOfferRejected         = "mediation_offer_rejected"
	EventSuggestionsRefreshed  = "mediator_suggestions_refreshed"
	EventPartyConfirmedStart   = "party_confirmed_start"
	EventEscrowFunded          = "escrow_funded"
	EventPartiesConfirmed      = "parties_confirmed"
	EventChatOpened            = "chat_opened"
	EventDisputeOpened         = "dispute_opened"
	EventDisputeOverseerJoined = "dispute_overseer_joined"
	EventMediationCompleted    = "mediation_completed"
	EventDisputeResolved       = "dispute_resolved"
	EventMediationCancelled    = "mediation_cancelled"
)

// Event is the descriptor handed to the delivery collaborator. Delivery itself
// (sockets, push, stored notifications) happens elsewhere.
type Event struct {
	Type             string         `json:"type"`
	RecipientUserIDs []uuid.UUID    `json:"recipient_user_ids"`
	RelatedEntityID  uuid.UUID      `json:"related_entity_id"`
	Params           map[string]any `json:"params,omitempty"`
}

type Publisher interface {
	Publish(ctx context.Context, stream string, event Event) error
}

type Subscriber interface {
	Subscribe(ctx context.Context, stream string, handler func(Event)) error
}
