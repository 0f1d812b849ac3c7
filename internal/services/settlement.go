package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/mediation-escrow/backend/internal/events"
	"github.com/mediation-escrow/backend/internal/ledger"
	"github.com/mediation-escrow/backend/internal/models"
	"github.com/mediation-escrow/backend/internal/repositories"
)

// ConfirmReceipt is the buyer accepting the goods. The escrow is split into the
// seller's pending balance and the mediator's fee in one transaction.
func (s *MediationService) ConfirmReceipt(ctx context.Context, id uuid.UUID, actor models.Actor) (*models.MediationRequest, error) {
	const op = "confirm_receipt"
	return s.mutate(ctx, op, id, actor, func(ctx context.Context, tx repositories.Tx, m *models.MediationRequest, c *change) error {
		if actor.UserID != m.BuyerID {
			return forbidden(op, "only the buyer can confirm receipt")
		}
		if err := requireStatus(op, m, models.StatusInProgress); err != nil {
			return err
		}
		if m.Escrow == nil || !m.Escrow.Amount.IsPositive() {
			return invalid(op, "nothing is held in escrow")
		}

		alloc, err := ledger.ComputeSettlement(*m.Escrow)
		if err != nil {
			return err
		}
		if err := s.transition(op, m, models.StatusCompleted); err != nil {
			return err
		}
		dist, err := s.ledger.Distribute(ctx, tx, m, alloc)
		if err != nil {
			return err
		}
		if err := s.awardReputation(ctx, tx, m.SellerID, m.BuyerID, *m.MediatorID); err != nil {
			return err
		}

		at := c.at
		m.CompletedAt = &at
		c.record(models.SettledDetails{
			SellerAmount:     alloc.SellerAmount,
			MediatorFee:      alloc.MediatorFee,
			Currency:         m.Escrow.Currency,
			SellerAmountBase: dist.SellerBase,
			MediatorFeeBase:  dist.MediatorBase,
		})
		c.emit(events.EventMediationCompleted, m, parties(m), map[string]any{
			"seller_amount": alloc.SellerAmount.String(),
			"mediator_fee":  alloc.MediatorFee.String(),
			"currency":      string(m.Escrow.Currency),
		})
		c.recompute = append(c.recompute, *m.MediatorID)
		return nil
	})
}

func (s *MediationService) awardReputation(ctx context.Context, tx repositories.Tx, ids ...uuid.UUID) error {
	if s.cfg.ReputationPointsPerTrade <= 0 {
		return nil
	}
	for _, id := range ids {
		u, err := tx.GetUserForUpdate(ctx, id)
		if err != nil {
			return fmt.Errorf("reputation %s: %w", id, err)
		}
		u.ReputationPoints += s.cfg.ReputationPointsPerTrade
		if err := tx.UpdateUserAccount(ctx, u); err != nil {
			return fmt.Errorf("reputation %s: %w", id, err)
		}
	}
	return nil
}
