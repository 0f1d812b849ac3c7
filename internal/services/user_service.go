package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mediation-escrow/backend/internal/models"
	"github.com/mediation-escrow/backend/internal/repositories"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type UserService struct {
	store repositories.Store
	log   *zap.Logger
}

func NewUserService(store repositories.Store, log *zap.Logger) *UserService {
	return &UserService{store: store, log: log}
}

// Account is a user's balances plus recent journal entries.
type Account struct {
	User    *models.User         `json:"user"`
	Entries []models.LedgerEntry `json:"entries"`
}

func (s *UserService) Account(ctx context.Context, userID uuid.UUID, limit int) (*Account, error) {
	u, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return nil, classify("account", err)
	}
	entries, err := s.store.ListLedgerEntries(ctx, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list ledger entries: %w", err)
	}
	return &Account{User: u, Entries: entries}, nil
}

type NewUserInput struct {
	Username            *string
	Role                models.Role
	IsMediatorQualified bool
	Balance             decimal.Decimal
}

// Register creates a user. Only reachable through development routes; production
// users are provisioned by the identity service.
func (s *UserService) Register(ctx context.Context, in NewUserInput) (*models.User, error) {
	if in.Role == "" {
		in.Role = models.RoleUser
	}
	if in.Balance.IsNegative() {
		return nil, invalid("register", "balance cannot be negative")
	}
	now := time.Now().UTC()
	u := &models.User{
		ID:                  uuid.New(),
		Username:            in.Username,
		Role:                in.Role,
		IsMediatorQualified: in.IsMediatorQualified,
		Balance:             in.Balance,
		MediatorStatus:      models.MediatorAvailable,
		Level:               1,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	if err := s.store.CreateUser(ctx, u); err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}
	s.log.Info("user registered", zap.String("user_id", u.ID.String()), zap.String("role", string(u.Role)))
	return u, nil
}
