package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/mediation-escrow/backend/internal/config"
	"github.com/mediation-escrow/backend/internal/events"
	"github.com/mediation-escrow/backend/internal/fees"
	"github.com/mediation-escrow/backend/internal/ledger"
	"github.com/mediation-escrow/backend/internal/metrics"
	"github.com/mediation-escrow/backend/internal/models"
	"github.com/mediation-escrow/backend/internal/rbac"
	"github.com/mediation-escrow/backend/internal/repositories"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// MediationService owns every guarded transition of a mediation request. Each
// operation runs in one store transaction; events go out only after commit.
type MediationService struct {
	store       repositories.Store
	calc        *fees.Calculator
	ledger      *ledger.Ledger
	resolutions ledger.Resolutions
	emitter     *events.Emitter
	cfg         *config.Config
	log         *zap.Logger
	now         func() time.Time
}

type Option func(*MediationService)

// WithResolutionStrategy registers s under its outcome name, replacing any default.
func WithResolutionStrategy(s ledger.ResolutionStrategy) Option {
	return func(svc *MediationService) { svc.resolutions.Register(s) }
}

func WithClock(now func() time.Time) Option {
	return func(svc *MediationService) { svc.now = now }
}

func NewMediationService(
	store repositories.Store,
	calc *fees.Calculator,
	emitter *events.Emitter,
	cfg *config.Config,
	log *zap.Logger,
	opts ...Option,
) *MediationService {
	s := &MediationService{
		store:       store,
		calc:        calc,
		ledger:      ledger.New(calc.Converter()),
		resolutions: ledger.DefaultResolutions(),
		emitter:     emitter,
		cfg:         cfg,
		log:         log,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// change collects what one transition produced.
type change struct {
	actor     models.Actor
	at        time.Time
	from      models.MediationStatus
	history   []models.HistoryEntry
	events    []events.Event
	recompute []uuid.UUID
	startChat bool
	noop      bool
}

func (c *change) record(d models.HistoryDetails) {
	c.history = append(c.history, models.NewHistoryEntry(c.actor.ID(), c.at, d))
}

func (c *change) emit(typ string, m *models.MediationRequest, recipients []uuid.UUID, params map[string]any) {
	if params == nil {
		params = map[string]any{}
	}
	params["status"] = string(m.Status)
	c.events = append(c.events, events.Event{
		Type:             typ,
		RecipientUserIDs: events.Recipients(c.actor.UserID, recipients...),
		RelatedEntityID:  m.ID,
		Params:           params,
	})
}

type mutation func(ctx context.Context, tx repositories.Tx, m *models.MediationRequest, c *change) error

// mutate is the single write path: lock, guard, mutate, check invariants, persist,
// append history, commit, then emit.
func (s *MediationService) mutate(ctx context.Context, op string, id uuid.UUID, actor models.Actor, fn mutation) (result *models.MediationRequest, err error) {
	done := metrics.ObserveOp(op)
	defer func() { done(err) }()

	var c *change
	err = s.store.WithTx(ctx, func(tx repositories.Tx) error {
		m, err := tx.GetMediationForUpdate(ctx, id)
		if err != nil {
			return err
		}
		c = &change{actor: actor, at: s.now().UTC(), from: m.Status}
		if err := fn(ctx, tx, m, c); err != nil {
			return err
		}
		if c.noop {
			result = m
			return nil
		}
		m.UpdatedAt = c.at
		if err := m.CheckInvariants(); err != nil {
			return &ConsistencyError{Op: op, Err: err}
		}
		if err := tx.UpdateMediation(ctx, m); err != nil {
			return fmt.Errorf("update mediation: %w", err)
		}
		for _, h := range c.history {
			if err := tx.AppendHistory(ctx, m.ID, h); err != nil {
				return fmt.Errorf("append history: %w", err)
			}
			m.History = append(m.History, h)
		}
		result = m
		return nil
	})
	if err != nil {
		err = classify(op, err)
		s.logFailure(op, id, actor, err)
		return nil, err
	}
	return s.afterCommit(ctx, op, result, c), nil
}

func (s *MediationService) afterCommit(ctx context.Context, op string, m *models.MediationRequest, c *change) *models.MediationRequest {
	if c.noop {
		return m
	}
	if c.from != m.Status {
		metrics.TransitionsTotal.WithLabelValues(string(c.from), string(m.Status)).Inc()
		s.log.Info("mediation transition",
			zap.String("op", op),
			zap.String("mediation_id", m.ID.String()),
			zap.String("from", string(c.from)),
			zap.String("to", string(m.Status)),
		)
	}
	s.emitter.Emit(ctx, c.events...)

	for _, mediatorID := range c.recompute {
		if err := s.RecomputeAvailability(ctx, mediatorID); err != nil {
			s.log.Warn("availability recompute failed, sweep will retry",
				zap.String("mediator_id", mediatorID.String()), zap.Error(err))
		}
	}

	if c.startChat {
		opened, err := s.StartChat(ctx, m.ID, models.SystemActor())
		if err != nil {
			s.log.Warn("chat start after joint confirmation failed, start_chat sweep will retry",
				zap.String("mediation_id", m.ID.String()), zap.Error(err))
			return m
		}
		return opened
	}
	return m
}

func (s *MediationService) logFailure(op string, id uuid.UUID, actor models.Actor, err error) {
	fields := []zap.Field{
		zap.String("op", op),
		zap.String("mediation_id", id.String()),
		zap.String("actor_id", actor.UserID.String()),
		zap.String("actor_role", string(actor.Role)),
		zap.Error(err),
	}
	var (
		ce *ConsistencyError
		xe *ConflictError
	)
	switch {
	case errors.As(err, &ce):
		s.log.Error("mediation consistency violation", fields...)
	case errors.As(err, &xe):
		s.log.Warn("mediation write conflict", fields...)
	case IsValidation(err):
		s.log.Debug("mediation request rejected", fields...)
	default:
		s.log.Error("mediation operation failed", fields...)
	}
}

// retryOnConflict re-runs fn with exponential backoff while it loses races, up to
// the configured retry budget. Other errors stop immediately.
func (s *MediationService) retryOnConflict(ctx context.Context, op string, fn func() (*models.MediationRequest, error)) (*models.MediationRequest, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.cfg.ConflictRetryBase
	b.MaxInterval = 20 * s.cfg.ConflictRetryBase
	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(s.cfg.ConflictMaxRetries)), ctx)

	var (
		out      *models.MediationRequest
		attempts int
	)
	err := backoff.Retry(func() error {
		attempts++
		if attempts > 1 {
			metrics.ConflictRetries.WithLabelValues(op).Inc()
		}
		m, err := fn()
		if err == nil {
			out = m
			return nil
		}
		if IsConflict(err) {
			return err
		}
		return backoff.Permanent(err)
	}, policy)
	if err != nil {
		var ce *ConflictError
		if errors.As(err, &ce) {
			return nil, &ConflictError{Op: op, Attempts: attempts, Err: ce.Err}
		}
		return nil, err
	}
	return out, nil
}

func (s *MediationService) transition(op string, m *models.MediationRequest, to models.MediationStatus) error {
	if !models.IsValidTransition(m.Status, to) {
		return invalid(op, "cannot move from %s to %s", m.Status, to)
	}
	m.Status = to
	return nil
}

func requireStatus(op string, m *models.MediationRequest, allowed ...models.MediationStatus) error {
	for _, st := range allowed {
		if m.Status == st {
			return nil
		}
	}
	if m.Status == models.StatusDisputed {
		return invalid(op, "mediation is disputed and awaits admin resolution")
	}
	return invalid(op, "mediation is %s, expected one of %v", m.Status, allowed)
}

func requireReason(op, reason string) (string, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return "", invalid(op, "a reason is required")
	}
	return reason, nil
}

// parties returns seller, buyer and the mediator when assigned.
func parties(m *models.MediationRequest) []uuid.UUID {
	ids := []uuid.UUID{m.SellerID, m.BuyerID}
	if m.MediatorID != nil {
		ids = append(ids, *m.MediatorID)
	}
	return ids
}

// disputeAudience adds joined overseers and configured admins to the parties.
func (s *MediationService) disputeAudience(m *models.MediationRequest) []uuid.UUID {
	ids := append(parties(m), m.DisputeOverseers...)
	return append(ids, s.cfg.AdminUserIDs...)
}

type CreateRequestInput struct {
	ProductID   uuid.UUID
	SellerID    uuid.UUID
	BuyerID     uuid.UUID
	BidAmount   decimal.Decimal
	BidCurrency models.Currency
	// SelfSelect starts in pending_mediator_selection instead of waiting for an admin.
	SelfSelect bool
}

// CreateRequest opens a mediation for a trade that needs a mediator.
func (s *MediationService) CreateRequest(ctx context.Context, actor models.Actor, in CreateRequestInput) (result *models.MediationRequest, err error) {
	const op = "create_request"
	done := metrics.ObserveOp(op)
	defer func() { done(err) }()

	if !actor.IsAdmin() && !actor.IsSystem() && actor.UserID != in.SellerID {
		return nil, forbidden(op, "only the seller can request mediation")
	}
	if in.ProductID == uuid.Nil {
		return nil, invalid(op, "product_id is required")
	}
	if in.SellerID == in.BuyerID {
		return nil, invalid(op, "seller and buyer must be different users")
	}
	bid := in.BidAmount.Round(fees.MoneyPlaces)
	if !bid.IsPositive() {
		return nil, invalid(op, "bid amount must be at least 0.01")
	}
	if !in.BidCurrency.IsValid() {
		return nil, invalid(op, "unsupported currency %q", in.BidCurrency)
	}

	now := s.now().UTC()
	m := &models.MediationRequest{
		ID:          uuid.New(),
		ProductID:   in.ProductID,
		SellerID:    in.SellerID,
		BuyerID:     in.BuyerID,
		BidAmount:   bid,
		BidCurrency: in.BidCurrency,
		Status:      models.StatusPendingAssignment,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if in.SelfSelect {
		m.Status = models.StatusPendingMediatorSelection
	}
	c := &change{actor: actor, at: now, from: m.Status}

	err = s.store.WithTx(ctx, func(tx repositories.Tx) error {
		for _, id := range []uuid.UUID{in.SellerID, in.BuyerID} {
			u, err := tx.GetUser(ctx, id)
			if err != nil {
				if errors.Is(err, repositories.ErrNotFound) {
					return notFound(op, "user "+id.String())
				}
				return err
			}
			if u.Blocked {
				return invalid(op, "user %s is blocked", id)
			}
		}
		if err := m.CheckInvariants(); err != nil {
			return &ConsistencyError{Op: op, Err: err}
		}
		if err := tx.CreateMediation(ctx, m); err != nil {
			return fmt.Errorf("create mediation: %w", err)
		}
		c.record(models.CreatedDetails{SelfSelect: in.SelfSelect, BidAmount: m.BidAmount, BidCurrency: m.BidCurrency})
		for _, h := range c.history {
			if err := tx.AppendHistory(ctx, m.ID, h); err != nil {
				return fmt.Errorf("append history: %w", err)
			}
		}
		m.History = c.history
		return nil
	})
	if err != nil {
		err = classify(op, err)
		s.logFailure(op, m.ID, actor, err)
		return nil, err
	}

	recipients := []uuid.UUID{m.SellerID, m.BuyerID}
	if !in.SelfSelect {
		recipients = append(recipients, s.cfg.AdminUserIDs...)
	}
	c.emit(events.EventMediationCreated, m, recipients, map[string]any{
		"bid_amount":   m.BidAmount.String(),
		"bid_currency": string(m.BidCurrency),
	})
	s.emitter.Emit(ctx, c.events...)
	return m, nil
}

// GetRequest reads a record. While disputed only the parties and joined overseers may
// read it; an admin reading a disputed record joins it as overseer first.
func (s *MediationService) GetRequest(ctx context.Context, id uuid.UUID, actor models.Actor) (*models.MediationRequest, error) {
	const op = "get_request"
	m, err := s.store.GetMediation(ctx, id)
	if err != nil {
		return nil, classify(op, err)
	}
	if m.Status == models.StatusDisputed && actor.IsAdmin() &&
		!m.IsOverseer(actor.UserID) && !m.IsParticipant(actor.UserID) {
		return s.JoinDispute(ctx, id, actor)
	}
	if !canRead(m, actor) {
		return nil, forbidden(op, "not a participant of this mediation")
	}
	return m, nil
}

func canRead(m *models.MediationRequest, actor models.Actor) bool {
	if actor.IsSystem() || m.IsParticipant(actor.UserID) || m.IsOverseer(actor.UserID) {
		return true
	}
	return actor.IsAdmin() && m.Status != models.StatusDisputed
}

// ListRequests lists records; roles without list_all only see their own.
func (s *MediationService) ListRequests(ctx context.Context, actor models.Actor, f repositories.MediationFilter) ([]models.MediationRequest, error) {
	if !rbac.HasPermission(actor.Role, rbac.PermListAll) {
		id := actor.UserID
		f.ParticipantID = &id
	}
	out, err := s.store.ListMediations(ctx, f)
	if err != nil {
		return nil, classify("list_requests", err)
	}
	return out, nil
}

// History returns the audit trail under the same access rule as GetRequest.
func (s *MediationService) History(ctx context.Context, id uuid.UUID, actor models.Actor) ([]models.HistoryEntry, error) {
	m, err := s.GetRequest(ctx, id, actor)
	if err != nil {
		return nil, err
	}
	return m.History, nil
}

// QuoteFee is the authoritative fee preview for a price.
func (s *MediationService) QuoteFee(price float64, cur models.Currency) (fees.FeeResult, error) {
	res, err := s.calc.Compute(price, cur)
	if err != nil {
		return res, invalid("quote_fee", "%v", err)
	}
	return res, nil
}
