package services

import (
	"context"

	"github.com/google/uuid"
	"github.com/mediation-escrow/backend/internal/events"
	"github.com/mediation-escrow/backend/internal/models"
	"github.com/mediation-escrow/backend/internal/repositories"
)

// ConfirmSellerReady records the seller's go-ahead. When the buyer already funded,
// the record moves to parties_confirmed and the chat opens after commit.
func (s *MediationService) ConfirmSellerReady(ctx context.Context, id uuid.UUID, actor models.Actor) (*models.MediationRequest, error) {
	const op = "confirm_seller_ready"
	return s.mutate(ctx, op, id, actor, func(ctx context.Context, tx repositories.Tx, m *models.MediationRequest, c *change) error {
		if actor.UserID != m.SellerID {
			return forbidden(op, "only the seller can confirm seller readiness")
		}
		if m.SellerConfirmedStart {
			return invalid(op, "seller already confirmed")
		}
		if err := requireStatus(op, m, models.StatusMediationOfferAccepted, models.StatusEscrowFunded); err != nil {
			return err
		}
		m.SellerConfirmedStart = true
		c.record(models.ReadinessConfirmedDetails{Party: models.PartySeller})
		c.emit(events.EventPartyConfirmedStart, m, parties(m), map[string]any{"party": string(models.PartySeller)})

		if m.BuyerConfirmedStart {
			return s.confirmParties(op, m, c, models.PartySeller)
		}
		return nil
	})
}

// ConfirmBuyerReady computes the fee and debits the buyer into escrow in the same
// transaction as the state change. Insufficient funds leave everything untouched.
func (s *MediationService) ConfirmBuyerReady(ctx context.Context, id uuid.UUID, actor models.Actor) (*models.MediationRequest, error) {
	const op = "confirm_buyer_ready"
	return s.mutate(ctx, op, id, actor, func(ctx context.Context, tx repositories.Tx, m *models.MediationRequest, c *change) error {
		if actor.UserID != m.BuyerID {
			return forbidden(op, "only the buyer can confirm buyer readiness")
		}
		if m.BuyerConfirmedStart {
			return invalid(op, "buyer already confirmed")
		}
		if err := requireStatus(op, m, models.StatusMediationOfferAccepted); err != nil {
			return err
		}

		fee, err := s.calc.ComputeDecimal(m.BidAmount, m.BidCurrency)
		if err != nil {
			return invalid(op, "fee: %v", err)
		}
		terms, err := s.ledger.FundEscrow(ctx, tx, m, fee)
		if err != nil {
			return err
		}
		m.Escrow = terms
		m.BuyerConfirmedStart = true

		c.record(models.ReadinessConfirmedDetails{Party: models.PartyBuyer})
		c.record(models.EscrowFundedDetails{
			Amount:         terms.Amount,
			Currency:       terms.Currency,
			MediatorFee:    terms.MediatorFee,
			BuyerFeeShare:  terms.BuyerFeeShare,
			SellerFeeShare: terms.SellerFeeShare,
			DebitedInBase:  terms.AmountInBase,
		})

		if m.SellerConfirmedStart {
			return s.confirmParties(op, m, c, models.PartyBuyer)
		}
		if err := s.transition(op, m, models.StatusEscrowFunded); err != nil {
			return err
		}
		c.emit(events.EventEscrowFunded, m, parties(m), map[string]any{
			"amount":   terms.Amount.String(),
			"currency": string(terms.Currency),
		})
		return nil
	})
}

func (s *MediationService) confirmParties(op string, m *models.MediationRequest, c *change, completedBy models.Party) error {
	if err := s.transition(op, m, models.StatusPartiesConfirmed); err != nil {
		return err
	}
	c.record(models.PartiesConfirmedDetails{CompletedBy: completedBy})
	c.emit(events.EventPartiesConfirmed, m, parties(m), nil)
	c.startChat = true
	return nil
}

// StartChat opens the mediated conversation once both parties confirmed.
func (s *MediationService) StartChat(ctx context.Context, id uuid.UUID, actor models.Actor) (*models.MediationRequest, error) {
	const op = "start_chat"
	if !actor.IsSystem() && !actor.IsAdmin() {
		return nil, forbidden(op, "chat is opened by the system")
	}
	return s.mutate(ctx, op, id, actor, func(ctx context.Context, tx repositories.Tx, m *models.MediationRequest, c *change) error {
		if err := requireStatus(op, m, models.StatusPartiesConfirmed); err != nil {
			return err
		}
		if err := s.transition(op, m, models.StatusInProgress); err != nil {
			return err
		}
		c.record(models.ChatOpenedDetails{})
		c.emit(events.EventChatOpened, m, parties(m), nil)
		return nil
	})
}
