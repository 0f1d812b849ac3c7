package repositories

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mediation-escrow/backend/internal/models"
)

// MemoryStore is an in-memory Store for development mode and tests. Transactions are
// serialized by one mutex and staged on copies, so a failed fn leaves no trace.
type MemoryStore struct {
	txMu sync.Mutex

	mu         sync.RWMutex
	mediations map[uuid.UUID]*models.MediationRequest
	history    map[uuid.UUID][]models.HistoryEntry
	users      map[uuid.UUID]*models.User
	entries    []models.LedgerEntry
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		mediations: make(map[uuid.UUID]*models.MediationRequest),
		history:    make(map[uuid.UUID][]models.HistoryEntry),
		users:      make(map[uuid.UUID]*models.User),
	}
}

func (s *MemoryStore) WithTx(ctx context.Context, fn func(tx Tx) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	tx := &memTx{
		store:      s,
		mediations: make(map[uuid.UUID]*models.MediationRequest),
		history:    make(map[uuid.UUID][]models.HistoryEntry),
		users:      make(map[uuid.UUID]*models.User),
	}
	if err := fn(tx); err != nil {
		return err
	}
	tx.commit()
	return nil
}

func (s *MemoryStore) GetMediation(_ context.Context, id uuid.UUID) (*models.MediationRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.mediations[id]
	if !ok {
		return nil, fmt.Errorf("mediation %s: %w", id, ErrNotFound)
	}
	cp := m.Clone()
	cp.History = append([]models.HistoryEntry(nil), s.history[id]...)
	return cp, nil
}

func (s *MemoryStore) ListMediations(_ context.Context, f MediationFilter) ([]models.MediationRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.MediationRequest
	for _, m := range s.mediations {
		if f.ParticipantID != nil && !m.IsParticipant(*f.ParticipantID) {
			continue
		}
		if f.MediatorID != nil && !m.IsMediator(*f.MediatorID) {
			continue
		}
		if f.Status != nil && m.Status != *f.Status {
			continue
		}
		out = append(out, *m.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })

	if f.Offset >= len(out) {
		return nil, nil
	}
	out = out[f.Offset:]
	if limit := normalizeLimit(f.Limit); len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) ListHistory(_ context.Context, mediationID uuid.UUID) ([]models.HistoryEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.mediations[mediationID]; !ok {
		return nil, fmt.Errorf("mediation %s: %w", mediationID, ErrNotFound)
	}
	return append([]models.HistoryEntry(nil), s.history[mediationID]...), nil
}

func (s *MemoryStore) ListStale(_ context.Context, status models.MediationStatus, olderThan time.Time, limit int) ([]uuid.UUID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var stale []*models.MediationRequest
	for _, m := range s.mediations {
		if m.Status == status && m.UpdatedAt.Before(olderThan) {
			stale = append(stale, m)
		}
	}
	sort.Slice(stale, func(i, j int) bool { return stale[i].UpdatedAt.Before(stale[j].UpdatedAt) })

	limit = normalizeLimit(limit)
	ids := make([]uuid.UUID, 0, len(stale))
	for _, m := range stale {
		if len(ids) == limit {
			break
		}
		ids = append(ids, m.ID)
	}
	return ids, nil
}

func (s *MemoryStore) GetUser(_ context.Context, id uuid.UUID) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return nil, fmt.Errorf("user %s: %w", id, ErrNotFound)
	}
	cp := *u
	return &cp, nil
}

func (s *MemoryStore) CreateUser(_ context.Context, u *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	if u.MediatorStatus == "" {
		u.MediatorStatus = models.MediatorAvailable
	}
	now := time.Now().UTC()
	u.CreatedAt, u.UpdatedAt = now, now
	cp := *u
	s.users[u.ID] = &cp
	return nil
}

func (s *MemoryStore) ListMediatorsByStatus(_ context.Context, status models.MediatorStatus) ([]uuid.UUID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var ids []uuid.UUID
	for _, u := range s.users {
		if u.IsMediatorQualified && u.MediatorStatus == status {
			ids = append(ids, u.ID)
		}
	}
	sortIDs(ids)
	return ids, nil
}

func (s *MemoryStore) ListLedgerEntries(_ context.Context, userID uuid.UUID, limit int) ([]models.LedgerEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	limit = normalizeLimit(limit)
	var out []models.LedgerEntry
	for i := len(s.entries) - 1; i >= 0 && len(out) < limit; i-- {
		if s.entries[i].UserID == userID {
			out = append(out, s.entries[i])
		}
	}
	return out, nil
}

type memTx struct {
	store      *MemoryStore
	mediations map[uuid.UUID]*models.MediationRequest
	history    map[uuid.UUID][]models.HistoryEntry
	users      map[uuid.UUID]*models.User
	entries    []models.LedgerEntry
}

func (t *memTx) commit() {
	s := t.store
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, m := range t.mediations {
		s.mediations[id] = m
	}
	for id, h := range t.history {
		s.history[id] = append(s.history[id], h...)
	}
	for id, u := range t.users {
		s.users[id] = u
	}
	s.entries = append(s.entries, t.entries...)
}

func (t *memTx) mediation(id uuid.UUID) (*models.MediationRequest, bool) {
	if m, ok := t.mediations[id]; ok {
		return m, true
	}
	t.store.mu.RLock()
	defer t.store.mu.RUnlock()
	m, ok := t.store.mediations[id]
	return m, ok
}

func (t *memTx) GetMediationForUpdate(_ context.Context, id uuid.UUID) (*models.MediationRequest, error) {
	m, ok := t.mediation(id)
	if !ok {
		return nil, fmt.Errorf("mediation %s: %w", id, ErrNotFound)
	}
	cp := m.Clone()
	t.store.mu.RLock()
	cp.History = append(append([]models.HistoryEntry(nil), t.store.history[id]...), t.history[id]...)
	t.store.mu.RUnlock()
	return cp, nil
}

func (t *memTx) CreateMediation(_ context.Context, m *models.MediationRequest) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	if _, exists := t.mediation(m.ID); exists {
		return fmt.Errorf("mediation %s already exists", m.ID)
	}
	cp := m.Clone()
	cp.History = nil
	t.mediations[m.ID] = cp
	return nil
}

func (t *memTx) UpdateMediation(_ context.Context, m *models.MediationRequest) error {
	if _, ok := t.mediation(m.ID); !ok {
		return fmt.Errorf("mediation %s: %w", m.ID, ErrNotFound)
	}
	cp := m.Clone()
	cp.History = nil
	t.mediations[m.ID] = cp
	return nil
}

func (t *memTx) AppendHistory(_ context.Context, mediationID uuid.UUID, h models.HistoryEntry) error {
	t.history[mediationID] = append(t.history[mediationID], h)
	return nil
}

func (t *memTx) user(id uuid.UUID) (*models.User, error) {
	if u, ok := t.users[id]; ok {
		cp := *u
		return &cp, nil
	}
	return t.store.GetUser(context.Background(), id)
}

func (t *memTx) GetUser(_ context.Context, id uuid.UUID) (*models.User, error) {
	return t.user(id)
}

func (t *memTx) GetUserForUpdate(_ context.Context, id uuid.UUID) (*models.User, error) {
	return t.user(id)
}

func (t *memTx) UpdateUserAccount(_ context.Context, u *models.User) error {
	current, err := t.user(u.ID)
	if err != nil {
		return err
	}
	current.Balance = u.Balance
	current.SellerPendingBalance = u.SellerPendingBalance
	current.ReputationPoints = u.ReputationPoints
	current.UpdatedAt = time.Now().UTC()
	t.users[u.ID] = current
	return nil
}

func (t *memTx) AppendLedgerEntry(_ context.Context, e *models.LedgerEntry) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	t.entries = append(t.entries, *e)
	return nil
}

func (t *memTx) CountActiveAssignments(_ context.Context, mediatorID uuid.UUID) (int, error) {
	seen := make(map[uuid.UUID]bool)
	count := 0
	for id, m := range t.mediations {
		seen[id] = true
		if m.IsMediator(mediatorID) && m.Status.OccupiesMediator() {
			count++
		}
	}
	t.store.mu.RLock()
	defer t.store.mu.RUnlock()
	for id, m := range t.store.mediations {
		if seen[id] {
			continue
		}
		if m.IsMediator(mediatorID) && m.Status.OccupiesMediator() {
			count++
		}
	}
	return count, nil
}

func (t *memTx) SetMediatorStatus(_ context.Context, mediatorID uuid.UUID, status models.MediatorStatus) error {
	u, err := t.user(mediatorID)
	if err != nil {
		return err
	}
	u.MediatorStatus = status
	u.UpdatedAt = time.Now().UTC()
	t.users[mediatorID] = u
	return nil
}

func (t *memTx) ListAvailableMediators(_ context.Context, exclude []uuid.UUID, limit int) ([]models.User, error) {
	skip := make(map[uuid.UUID]bool, len(exclude))
	for _, id := range exclude {
		skip[id] = true
	}

	t.store.mu.RLock()
	ids := make([]uuid.UUID, 0, len(t.store.users))
	for id := range t.store.users {
		ids = append(ids, id)
	}
	t.store.mu.RUnlock()

	var out []models.User
	for _, id := range ids {
		if skip[id] {
			continue
		}
		u, err := t.user(id)
		if err != nil {
			return nil, err
		}
		if u.CanMediate() && u.MediatorStatus == models.MediatorAvailable {
			out = append(out, *u)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ReputationPoints != out[j].ReputationPoints {
			return out[i].ReputationPoints > out[j].ReputationPoints
		}
		return bytes.Compare(out[i].ID[:], out[j].ID[:]) < 0
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func sortIDs(ids []uuid.UUID) {
	sort.Slice(ids, func(i, j int) bool { return bytes.Compare(ids[i][:], ids[j][:]) < 0 })
}
