package repositories

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/mediation-escrow/backend/internal/ledger"
	"github.com/mediation-escrow/backend/internal/models"
)

var (
	ErrNotFound = errors.New("not found")
	// ErrConflict means a concurrent writer holds the row; the caller may retry.
	ErrConflict = errors.New("concurrent modification")
)

type MediationFilter struct {
	ParticipantID *uuid.UUID
	MediatorID    *uuid.UUID
	Status        *models.MediationStatus
	Limit         int
	Offset        int
}

// Store is the persistence boundary of the mediation core. Reads outside WithTx see
// committed state only.
type Store interface {
	WithTx(ctx context.Context, fn func(tx Tx) error) error

	GetMediation(ctx context.Context, id uuid.UUID) (*models.MediationRequest, error)
	ListMediations(ctx context.Context, f MediationFilter) ([]models.MediationRequest, error)
	ListHistory(ctx context.Context, mediationID uuid.UUID) ([]models.HistoryEntry, error)
	// ListStale returns ids of records in status whose last update is before olderThan.
	ListStale(ctx context.Context, status models.MediationStatus, olderThan time.Time, limit int) ([]uuid.UUID, error)

	GetUser(ctx context.Context, id uuid.UUID) (*models.User, error)
	CreateUser(ctx context.Context, u *models.User) error
	ListMediatorsByStatus(ctx context.Context, status models.MediatorStatus) ([]uuid.UUID, error)
	ListLedgerEntries(ctx context.Context, userID uuid.UUID, limit int) ([]models.LedgerEntry, error)
}

// Tx is one atomic unit. Every row read "ForUpdate" stays locked until commit or rollback.
type Tx interface {
	ledger.Accounts

	GetMediationForUpdate(ctx context.Context, id uuid.UUID) (*models.MediationRequest, error)
	CreateMediation(ctx context.Context, m *models.MediationRequest) error
	UpdateMediation(ctx context.Context, m *models.MediationRequest) error
	AppendHistory(ctx context.Context, mediationID uuid.UUID, h models.HistoryEntry) error

	GetUser(ctx context.Context, id uuid.UUID) (*models.User, error)
	CountActiveAssignments(ctx context.Context, mediatorID uuid.UUID) (int, error)
	SetMediatorStatus(ctx context.Context, mediatorID uuid.UUID, status models.MediatorStatus) error
	ListAvailableMediators(ctx context.Context, exclude []uuid.UUID, limit int) ([]models.User, error)
}

func normalizeLimit(limit int) int {
	if limit <= 0 || limit > 100 {
		return 20
	}
	return limit
}
