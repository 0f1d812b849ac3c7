package services

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/mediation-escrow/backend/internal/events"
	"github.com/mediation-escrow/backend/internal/models"
	"github.com/mediation-escrow/backend/internal/repositories"
)

// Cancellation is only possible before any money moved.
var preEscrowStatuses = []models.MediationStatus{
	models.StatusPendingAssignment,
	models.StatusPendingMediatorSelection,
	models.StatusMediatorAssigned,
	models.StatusMediationOfferAccepted,
}

// CancelByBuyer withdraws the buyer once a mediator is on the request.
func (s *MediationService) CancelByBuyer(ctx context.Context, id uuid.UUID, actor models.Actor, reason string) (*models.MediationRequest, error) {
	const op = "cancel_by_buyer"
	reason, err := requireReason(op, reason)
	if err != nil {
		return nil, err
	}
	return s.mutate(ctx, op, id, actor, func(ctx context.Context, tx repositories.Tx, m *models.MediationRequest, c *change) error {
		if actor.UserID != m.BuyerID {
			return forbidden(op, "only the buyer can cancel as buyer")
		}
		if err := requireStatus(op, m, models.StatusMediatorAssigned, models.StatusMediationOfferAccepted); err != nil {
			return err
		}
		return s.close(op, m, c, models.StatusCancelledByBuyer, reason)
	})
}

func (s *MediationService) CancelBySeller(ctx context.Context, id uuid.UUID, actor models.Actor, reason string) (*models.MediationRequest, error) {
	const op = "cancel_by_seller"
	reason, err := requireReason(op, reason)
	if err != nil {
		return nil, err
	}
	return s.mutate(ctx, op, id, actor, func(ctx context.Context, tx repositories.Tx, m *models.MediationRequest, c *change) error {
		if actor.UserID != m.SellerID {
			return forbidden(op, "only the seller can cancel as seller")
		}
		if err := requireStatus(op, m, preEscrowStatuses...); err != nil {
			return err
		}
		return s.close(op, m, c, models.StatusCancelledBySeller, reason)
	})
}

func (s *MediationService) CancelByAdmin(ctx context.Context, id uuid.UUID, actor models.Actor, reason string) (*models.MediationRequest, error) {
	const op = "cancel_by_admin"
	if !actor.IsAdmin() {
		return nil, forbidden(op, "only an admin can cancel as admin")
	}
	reason, err := requireReason(op, reason)
	if err != nil {
		return nil, err
	}
	return s.mutate(ctx, op, id, actor, func(ctx context.Context, tx repositories.Tx, m *models.MediationRequest, c *change) error {
		if err := requireStatus(op, m, preEscrowStatuses...); err != nil {
			return err
		}
		return s.close(op, m, c, models.StatusCancelledByAdmin, reason)
	})
}

// close ends a request before escrow. The mediator id stays on the record for audit.
func (s *MediationService) close(op string, m *models.MediationRequest, c *change, to models.MediationStatus, reason string) error {
	if m.Escrow != nil {
		return &ConsistencyError{Op: op, Err: errors.New("cancelling a funded record")}
	}
	if err := s.transition(op, m, to); err != nil {
		return err
	}
	m.CloseReason = &reason
	at := c.at
	m.CompletedAt = &at
	c.record(models.CancelledDetails{Status: to, Reason: reason})
	c.emit(events.EventMediationCancelled, m, parties(m), map[string]any{"reason": reason})
	if m.MediatorID != nil {
		c.recompute = append(c.recompute, *m.MediatorID)
	}
	return nil
}
