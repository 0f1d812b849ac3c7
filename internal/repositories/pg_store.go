package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mediation-escrow/backend/internal/models"
)

// DBTX is satisfied by *pgxpool.Pool and pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// TxBeginner abstracts pgxpool.Pool for testability.
type TxBeginner interface {
	DBTX
	Begin(ctx context.Context) (pgx.Tx, error)
}

// PgStore implements Store on Postgres. Record locks use NOWAIT so a concurrent writer
// surfaces as ErrConflict instead of queueing.
type PgStore struct {
	pool TxBeginner
}

func NewPgStore(pool TxBeginner) *PgStore {
	return &PgStore{pool: pool}
}

func (s *PgStore) WithTx(ctx context.Context, fn func(tx Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return classify(fmt.Errorf("begin tx: %w", err))
	}
	defer tx.Rollback(ctx)

	if err := fn(newPgTx(tx)); err != nil {
		return classify(err)
	}
	if err := tx.Commit(ctx); err != nil {
		return classify(fmt.Errorf("commit tx: %w", err))
	}
	return nil
}

func (s *PgStore) GetMediation(ctx context.Context, id uuid.UUID) (*models.MediationRequest, error) {
	m, err := NewMediationRepo(s.pool).GetByID(ctx, id, false)
	if err != nil {
		return nil, classify(err)
	}
	if m.History, err = NewHistoryRepo(s.pool).ListByMediation(ctx, id); err != nil {
		return nil, classify(err)
	}
	return m, nil
}

func (s *PgStore) ListMediations(ctx context.Context, f MediationFilter) ([]models.MediationRequest, error) {
	out, err := NewMediationRepo(s.pool).List(ctx, f)
	return out, classify(err)
}

func (s *PgStore) ListHistory(ctx context.Context, mediationID uuid.UUID) ([]models.HistoryEntry, error) {
	if _, err := NewMediationRepo(s.pool).GetByID(ctx, mediationID, false); err != nil {
		return nil, classify(err)
	}
	out, err := NewHistoryRepo(s.pool).ListByMediation(ctx, mediationID)
	return out, classify(err)
}

func (s *PgStore) ListStale(ctx context.Context, status models.MediationStatus, olderThan time.Time, limit int) ([]uuid.UUID, error) {
	out, err := NewMediationRepo(s.pool).ListStale(ctx, status, olderThan, normalizeLimit(limit))
	return out, classify(err)
}

func (s *PgStore) GetUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	u, err := NewUserRepo(s.pool).GetByID(ctx, id, false)
	return u, classify(err)
}

func (s *PgStore) CreateUser(ctx context.Context, u *models.User) error {
	return classify(NewUserRepo(s.pool).Create(ctx, u))
}

func (s *PgStore) ListMediatorsByStatus(ctx context.Context, status models.MediatorStatus) ([]uuid.UUID, error) {
	out, err := NewUserRepo(s.pool).ListMediatorIDsByStatus(ctx, status)
	return out, classify(err)
}

func (s *PgStore) ListLedgerEntries(ctx context.Context, userID uuid.UUID, limit int) ([]models.LedgerEntry, error) {
	out, err := NewLedgerRepo(s.pool).ListByUser(ctx, userID, normalizeLimit(limit))
	return out, classify(err)
}

type pgTx struct {
	mediations *MediationRepo
	users      *UserRepo
	history    *HistoryRepo
	ledger     *LedgerRepo
}

func newPgTx(tx pgx.Tx) *pgTx {
	return &pgTx{
		mediations: NewMediationRepo(tx),
		users:      NewUserRepo(tx),
		history:    NewHistoryRepo(tx),
		ledger:     NewLedgerRepo(tx),
	}
}

func (t *pgTx) GetMediationForUpdate(ctx context.Context, id uuid.UUID) (*models.MediationRequest, error) {
	m, err := t.mediations.GetByID(ctx, id, true)
	if err != nil {
		return nil, err
	}
	if m.History, err = t.history.ListByMediation(ctx, id); err != nil {
		return nil, err
	}
	return m, nil
}

func (t *pgTx) CreateMediation(ctx context.Context, m *models.MediationRequest) error {
	return t.mediations.Create(ctx, m)
}

func (t *pgTx) UpdateMediation(ctx context.Context, m *models.MediationRequest) error {
	return t.mediations.Update(ctx, m)
}

func (t *pgTx) AppendHistory(ctx context.Context, mediationID uuid.UUID, h models.HistoryEntry) error {
	return t.history.Append(ctx, mediationID, h)
}

func (t *pgTx) GetUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	return t.users.GetByID(ctx, id, false)
}

func (t *pgTx) GetUserForUpdate(ctx context.Context, id uuid.UUID) (*models.User, error) {
	return t.users.GetByID(ctx, id, true)
}

func (t *pgTx) UpdateUserAccount(ctx context.Context, u *models.User) error {
	return t.users.UpdateAccount(ctx, u)
}

func (t *pgTx) AppendLedgerEntry(ctx context.Context, e *models.LedgerEntry) error {
	return t.ledger.Append(ctx, e)
}

func (t *pgTx) CountActiveAssignments(ctx context.Context, mediatorID uuid.UUID) (int, error) {
	return t.mediations.CountActiveForMediator(ctx, mediatorID)
}

func (t *pgTx) SetMediatorStatus(ctx context.Context, mediatorID uuid.UUID, status models.MediatorStatus) error {
	return t.users.SetMediatorStatus(ctx, mediatorID, status)
}

func (t *pgTx) ListAvailableMediators(ctx context.Context, exclude []uuid.UUID, limit int) ([]models.User, error) {
	return t.users.ListAvailableMediators(ctx, exclude, limit)
}

// Postgres SQLSTATEs that mean "another writer got there first".
const (
	pgLockNotAvailable     = "55P03"
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
)

func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%w: %v", ErrNotFound, err)
	}
	if isConflict(err) {
		return fmt.Errorf("%w: %v", ErrConflict, err)
	}
	return err
}

func isConflict(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgLockNotAvailable, pgSerializationFailure, pgDeadlockDetected:
			return true
		}
	}
	return false
}
