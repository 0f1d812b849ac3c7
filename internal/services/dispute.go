package services

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/mediation-escrow/backend/internal/events"
	"github.com/mediation-escrow/backend/internal/ledger"
	"github.com/mediation-escrow/backend/internal/models"
	"github.com/mediation-escrow/backend/internal/repositories"
)

// OpenDispute freezes an in-progress mediation until an admin resolves it. Lost races
// are retried with backoff.
func (s *MediationService) OpenDispute(ctx context.Context, id uuid.UUID, actor models.Actor, reason *string) (*models.MediationRequest, error) {
	const op = "open_dispute"
	var trimmed *string
	if reason != nil {
		if r := strings.TrimSpace(*reason); r != "" {
			trimmed = &r
		}
	}
	return s.retryOnConflict(ctx, op, func() (*models.MediationRequest, error) {
		return s.mutate(ctx, op, id, actor, func(ctx context.Context, tx repositories.Tx, m *models.MediationRequest, c *change) error {
			var party models.Party
			switch actor.UserID {
			case m.SellerID:
				party = models.PartySeller
			case m.BuyerID:
				party = models.PartyBuyer
			default:
				return forbidden(op, "only the buyer or seller can open a dispute")
			}
			if err := requireStatus(op, m, models.StatusInProgress); err != nil {
				return err
			}
			if err := s.transition(op, m, models.StatusDisputed); err != nil {
				return err
			}
			opener := actor.UserID
			m.DisputeOpenedBy = &opener
			m.DisputeReason = trimmed
			c.record(models.DisputeOpenedDetails{OpenedBy: party, Reason: trimmed})
			c.emit(events.EventDisputeOpened, m, s.disputeAudience(m), map[string]any{
				"opened_by": string(party),
			})
			return nil
		})
	})
}

// JoinDispute adds an admin as overseer. Joining twice is a no-op.
func (s *MediationService) JoinDispute(ctx context.Context, id uuid.UUID, actor models.Actor) (*models.MediationRequest, error) {
	const op = "join_dispute"
	if !actor.IsAdmin() {
		return nil, forbidden(op, "only an admin can oversee a dispute")
	}
	return s.retryOnConflict(ctx, op, func() (*models.MediationRequest, error) {
		return s.mutate(ctx, op, id, actor, func(ctx context.Context, tx repositories.Tx, m *models.MediationRequest, c *change) error {
			if err := requireStatus(op, m, models.StatusDisputed); err != nil {
				return err
			}
			if !m.AddOverseer(actor.UserID) {
				c.noop = true
				return nil
			}
			c.record(models.OverseerJoinedDetails{AdminID: actor.UserID})
			c.emit(events.EventDisputeOverseerJoined, m, parties(m), map[string]any{
				"admin_id": actor.UserID.String(),
			})
			return nil
		})
	})
}

// ResolveDispute releases a disputed escrow according to the strategy registered for
// outcome. The allocation must account for every escrowed unit.
func (s *MediationService) ResolveDispute(ctx context.Context, id uuid.UUID, actor models.Actor, outcome string, params ledger.ResolutionParams) (*models.MediationRequest, error) {
	const op = "resolve_dispute"
	if !actor.IsAdmin() {
		return nil, forbidden(op, "only an admin can resolve a dispute")
	}
	strategy, err := s.resolutions.Get(outcome)
	if err != nil {
		return nil, invalid(op, "%v", err)
	}
	return s.mutate(ctx, op, id, actor, func(ctx context.Context, tx repositories.Tx, m *models.MediationRequest, c *change) error {
		if err := requireStatus(op, m, models.StatusDisputed); err != nil {
			return err
		}
		if m.Escrow == nil {
			return &ConsistencyError{Op: op, Err: errors.New("disputed record without escrow")}
		}
		alloc, err := strategy.Allocate(*m.Escrow, params)
		if err != nil {
			if errors.Is(err, ledger.ErrInconsistent) {
				return err
			}
			return invalid(op, "%v", err)
		}
		if err := alloc.Check(*m.Escrow); err != nil {
			return &ConsistencyError{Op: op, Err: err}
		}
		if err := s.transition(op, m, strategy.TargetStatus()); err != nil {
			return err
		}
		dist, err := s.ledger.Distribute(ctx, tx, m, alloc)
		if err != nil {
			return err
		}
		if m.Status == models.StatusCompleted {
			if err := s.awardReputation(ctx, tx, m.SellerID, m.BuyerID, *m.MediatorID); err != nil {
				return err
			}
		}

		if m.AddOverseer(actor.UserID) {
			c.record(models.OverseerJoinedDetails{AdminID: actor.UserID})
		}
		at := c.at
		m.CompletedAt = &at
		m.CloseReason = params.Note
		c.record(models.DisputeResolvedDetails{
			Outcome:          strategy.Outcome(),
			SellerAmount:     alloc.SellerAmount,
			BuyerRefund:      alloc.BuyerRefund,
			MediatorFee:      alloc.MediatorFee,
			Currency:         m.Escrow.Currency,
			SellerAmountBase: dist.SellerBase,
			BuyerRefundBase:  dist.BuyerBase,
			MediatorFeeBase:  dist.MediatorBase,
			Note:             params.Note,
		})
		c.emit(events.EventDisputeResolved, m, append(parties(m), m.DisputeOverseers...), map[string]any{
			"outcome":       strategy.Outcome(),
			"seller_amount": alloc.SellerAmount.String(),
			"buyer_refund":  alloc.BuyerRefund.String(),
			"mediator_fee":  alloc.MediatorFee.String(),
			"currency":      string(m.Escrow.Currency),
		})
		c.recompute = append(c.recompute, *m.MediatorID)
		return nil
	})
}
