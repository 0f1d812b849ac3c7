package services

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/mediation-escrow/backend/internal/events"
	"github.com/mediation-escrow/backend/internal/metrics"
	"github.com/mediation-escrow/backend/internal/models"
	"github.com/mediation-escrow/backend/internal/repositories"
)

const reasonAssignmentTimedOut = "assignment timed out"

// AssignMediator places a mediator on a request awaiting admin assignment.
func (s *MediationService) AssignMediator(ctx context.Context, id uuid.UUID, actor models.Actor, mediatorID uuid.UUID) (*models.MediationRequest, error) {
	const op = "assign_mediator"
	if !actor.IsAdmin() {
		return nil, forbidden(op, "only an admin can assign a mediator")
	}
	return s.mutate(ctx, op, id, actor, func(ctx context.Context, tx repositories.Tx, m *models.MediationRequest, c *change) error {
		if err := requireStatus(op, m, models.StatusPendingAssignment); err != nil {
			return err
		}
		if err := s.checkMediator(ctx, op, tx, m, mediatorID, false); err != nil {
			return err
		}
		return s.placeMediator(op, m, c, mediatorID, false)
	})
}

// SelectMediator lets the seller pick one of the suggested, currently free mediators.
func (s *MediationService) SelectMediator(ctx context.Context, id uuid.UUID, actor models.Actor, mediatorID uuid.UUID) (*models.MediationRequest, error) {
	const op = "select_mediator"
	return s.mutate(ctx, op, id, actor, func(ctx context.Context, tx repositories.Tx, m *models.MediationRequest, c *change) error {
		if actor.UserID != m.SellerID {
			return forbidden(op, "only the seller can select a mediator")
		}
		if err := requireStatus(op, m, models.StatusPendingMediatorSelection); err != nil {
			return err
		}
		if err := s.checkMediator(ctx, op, tx, m, mediatorID, true); err != nil {
			return err
		}
		return s.placeMediator(op, m, c, mediatorID, true)
	})
}

func (s *MediationService) placeMediator(op string, m *models.MediationRequest, c *change, mediatorID uuid.UUID, bySeller bool) error {
	if err := s.transition(op, m, models.StatusMediatorAssigned); err != nil {
		return err
	}
	at := c.at
	m.MediatorID = &mediatorID
	m.AssignedAt = &at
	if bySeller {
		m.MarkSuggested(mediatorID)
	}
	c.record(models.MediatorAssignedDetails{MediatorID: mediatorID, SelectedBySeller: bySeller})
	c.emit(events.EventMediatorAssigned, m, parties(m), map[string]any{
		"mediator_id": mediatorID.String(),
	})
	c.recompute = append(c.recompute, mediatorID)
	return nil
}

// checkMediator locks the candidate's user row so two requests cannot claim the same
// free mediator at once.
func (s *MediationService) checkMediator(ctx context.Context, op string, tx repositories.Tx, m *models.MediationRequest, mediatorID uuid.UUID, requireFree bool) error {
	if mediatorID == m.SellerID || mediatorID == m.BuyerID {
		return invalid(op, "mediator cannot be a party to the trade")
	}
	u, err := tx.GetUserForUpdate(ctx, mediatorID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return notFound(op, "mediator")
		}
		return err
	}
	if !u.CanMediate() {
		return invalid(op, "user is not a qualified, unblocked mediator")
	}
	if m.HasRejected(mediatorID) {
		return invalid(op, "mediator already declined this request")
	}
	if !requireFree {
		return nil
	}
	if u.MediatorStatus != models.MediatorAvailable {
		return invalid(op, "mediator is busy")
	}
	n, err := tx.CountActiveAssignments(ctx, mediatorID)
	if err != nil {
		return err
	}
	if n > 0 {
		return invalid(op, "mediator is busy")
	}
	return nil
}

// AcceptAssignment is the mediator taking the job.
func (s *MediationService) AcceptAssignment(ctx context.Context, id uuid.UUID, actor models.Actor) (*models.MediationRequest, error) {
	const op = "accept_assignment"
	return s.mutate(ctx, op, id, actor, func(ctx context.Context, tx repositories.Tx, m *models.MediationRequest, c *change) error {
		if !m.IsMediator(actor.UserID) {
			return forbidden(op, "only the assigned mediator can accept")
		}
		if err := requireStatus(op, m, models.StatusMediatorAssigned); err != nil {
			return err
		}
		if err := s.transition(op, m, models.StatusMediationOfferAccepted); err != nil {
			return err
		}
		c.record(models.AssignmentAcceptedDetails{MediatorID: actor.UserID})
		c.emit(events.EventOfferAccepted, m, parties(m), nil)
		return nil
	})
}

// RejectAssignment returns the request to seller selection and excludes the mediator
// from further suggestions.
func (s *MediationService) RejectAssignment(ctx context.Context, id uuid.UUID, actor models.Actor, reason string) (*models.MediationRequest, error) {
	const op = "reject_assignment"
	reason, err := requireReason(op, reason)
	if err != nil {
		return nil, err
	}
	return s.mutate(ctx, op, id, actor, func(ctx context.Context, tx repositories.Tx, m *models.MediationRequest, c *change) error {
		if !m.IsMediator(actor.UserID) {
			return forbidden(op, "only the assigned mediator can reject")
		}
		if err := requireStatus(op, m, models.StatusMediatorAssigned); err != nil {
			return err
		}
		return s.unassign(op, m, c, reason, false)
	})
}

// ExpireAssignment is the scheduler's reject for a mediator who never answered.
func (s *MediationService) ExpireAssignment(ctx context.Context, id uuid.UUID, actor models.Actor) (*models.MediationRequest, error) {
	const op = "expire_assignment"
	if !actor.IsSystem() && !actor.IsAdmin() {
		return nil, forbidden(op, "only the scheduler can expire assignments")
	}
	return s.mutate(ctx, op, id, actor, func(ctx context.Context, tx repositories.Tx, m *models.MediationRequest, c *change) error {
		if err := requireStatus(op, m, models.StatusMediatorAssigned); err != nil {
			return err
		}
		since := m.UpdatedAt
		if m.AssignedAt != nil {
			since = *m.AssignedAt
		}
		if c.at.Sub(since) < s.cfg.AssignmentTimeout {
			return invalid(op, "assignment has not timed out yet")
		}
		return s.unassign(op, m, c, reasonAssignmentTimedOut, true)
	})
}

func (s *MediationService) unassign(op string, m *models.MediationRequest, c *change, reason string, timedOut bool) error {
	if err := s.transition(op, m, models.StatusPendingMediatorSelection); err != nil {
		return err
	}
	mediatorID := *m.MediatorID
	m.MarkSuggested(mediatorID)
	m.MediatorID = nil
	m.AssignedAt = nil
	c.record(models.AssignmentRejectedDetails{MediatorID: mediatorID, Reason: reason, TimedOut: timedOut})
	c.emit(events.EventOfferRejected, m, []uuid.UUID{m.SellerID, m.BuyerID}, map[string]any{
		"mediator_id": mediatorID.String(),
		"reason":      reason,
	})
	c.recompute = append(c.recompute, mediatorID)
	return nil
}

// ExpireSelection cancels a request whose seller never picked a mediator.
func (s *MediationService) ExpireSelection(ctx context.Context, id uuid.UUID, actor models.Actor) (*models.MediationRequest, error) {
	const op = "expire_selection"
	if !actor.IsSystem() && !actor.IsAdmin() {
		return nil, forbidden(op, "only the scheduler can expire selections")
	}
	return s.mutate(ctx, op, id, actor, func(ctx context.Context, tx repositories.Tx, m *models.MediationRequest, c *change) error {
		if err := requireStatus(op, m, models.StatusPendingMediatorSelection); err != nil {
			return err
		}
		if c.at.Sub(m.UpdatedAt) < s.cfg.SelectionTimeout {
			return invalid(op, "selection window still open")
		}
		return s.close(op, m, c, models.StatusCancelledTimeout, "mediator selection timed out")
	})
}

// SuggestMediators serves the next batch of free mediators the seller has not seen yet.
func (s *MediationService) SuggestMediators(ctx context.Context, id uuid.UUID, actor models.Actor, limit int) ([]models.User, error) {
	const op = "suggest_mediators"
	if limit <= 0 || limit > s.cfg.SuggestionBatchSize {
		limit = s.cfg.SuggestionBatchSize
	}
	var out []models.User
	_, err := s.mutate(ctx, op, id, actor, func(ctx context.Context, tx repositories.Tx, m *models.MediationRequest, c *change) error {
		if actor.UserID != m.SellerID {
			return forbidden(op, "only the seller can request suggestions")
		}
		if err := requireStatus(op, m, models.StatusPendingMediatorSelection); err != nil {
			return err
		}
		if m.SuggestionRefreshCount >= s.cfg.MaxSuggestionRefreshes {
			return invalid(op, "suggestion refresh limit of %d reached", s.cfg.MaxSuggestionRefreshes)
		}
		exclude := append([]uuid.UUID{m.SellerID, m.BuyerID}, m.PreviouslySuggestedMediators...)
		found, err := tx.ListAvailableMediators(ctx, exclude, limit)
		if err != nil {
			return err
		}
		out = found
		if len(found) == 0 {
			c.noop = true
			return nil
		}
		ids := make([]uuid.UUID, 0, len(found))
		for _, u := range found {
			m.MarkSuggested(u.ID)
			ids = append(ids, u.ID)
		}
		m.SuggestionRefreshCount++
		c.record(models.SuggestionsServedDetails{MediatorIDs: ids, RefreshCount: m.SuggestionRefreshCount})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// RecomputeAvailability derives Busy/Available from the mediator's active records.
func (s *MediationService) RecomputeAvailability(ctx context.Context, mediatorID uuid.UUID) error {
	const op = "recompute_availability"
	err := s.store.WithTx(ctx, func(tx repositories.Tx) error {
		u, err := tx.GetUserForUpdate(ctx, mediatorID)
		if err != nil {
			return err
		}
		n, err := tx.CountActiveAssignments(ctx, mediatorID)
		if err != nil {
			return err
		}
		status := models.MediatorAvailable
		if n > 0 {
			status = models.MediatorBusy
		}
		if u.MediatorStatus == status {
			return nil
		}
		return tx.SetMediatorStatus(ctx, mediatorID, status)
	})
	return classify(op, err)
}

// SweepResult counts what one scheduler pass did.
type SweepResult struct {
	Processed int
	Failed    int
}

// SweepStale runs fn for every record stuck in status longer than age. Failures are
// logged and counted; the next pass retries them.
func (s *MediationService) SweepStale(ctx context.Context, job string, status models.MediationStatus, age time.Duration, fn func(context.Context, uuid.UUID, models.Actor) (*models.MediationRequest, error)) (SweepResult, error) {
	ids, err := s.store.ListStale(ctx, status, s.now().UTC().Add(-age), 100)
	if err != nil {
		return SweepResult{}, err
	}
	var res SweepResult
	for _, id := range ids {
		if _, err := fn(ctx, id, models.SystemActor()); err != nil {
			res.Failed++
			metrics.SweepProcessed.WithLabelValues(job, "error").Inc()
			continue
		}
		res.Processed++
		metrics.SweepProcessed.WithLabelValues(job, "ok").Inc()
	}
	return res, nil
}

// SweepAvailability re-derives availability for every mediator currently marked Busy.
func (s *MediationService) SweepAvailability(ctx context.Context) (SweepResult, error) {
	ids, err := s.store.ListMediatorsByStatus(ctx, models.MediatorBusy)
	if err != nil {
		return SweepResult{}, err
	}
	var res SweepResult
	for _, id := range ids {
		if err := s.RecomputeAvailability(ctx, id); err != nil {
			res.Failed++
			metrics.SweepProcessed.WithLabelValues("availability", "error").Inc()
			continue
		}
		res.Processed++
		metrics.SweepProcessed.WithLabelValues("availability", "ok").Inc()
	}
	return res, nil
}
