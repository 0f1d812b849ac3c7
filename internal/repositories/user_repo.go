package repositories

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/mediation-escrow/backend/internal/models"
	"github.com/shopspring/decimal"
)

type UserRepo struct {
	db DBTX
}

func NewUserRepo(db DBTX) *UserRepo {
	return &UserRepo{db: db}
}

const userColumns = `
	id, username, role, is_mediator_qualified, blocked,
	balance::text, seller_pending_balance::text, seller_available_balance::text,
	mediator_status, reputation_points, level, created_at, updated_at`

func (r *UserRepo) Create(ctx context.Context, u *models.User) error {
	if u.Role == "" {
		u.Role = models.RoleUser
	}
	if u.MediatorStatus == "" {
		u.MediatorStatus = models.MediatorAvailable
	}
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	return r.db.QueryRow(ctx, `
		INSERT INTO users (id, username, role, is_mediator_qualified, blocked, balance, mediator_status, reputation_points, level)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at, updated_at
	`, u.ID, u.Username, string(u.Role), u.IsMediatorQualified, u.Blocked, u.Balance.String(),
		string(u.MediatorStatus), u.ReputationPoints, u.Level,
	).Scan(&u.CreatedAt, &u.UpdatedAt)
}

// GetByID reads a user; forUpdate locks the row until the transaction ends.
func (r *UserRepo) GetByID(ctx context.Context, id uuid.UUID, forUpdate bool) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	return scanUser(r.db.QueryRow(ctx, query, id))
}

// UpdateAccount writes the fields settlement mutates.
func (r *UserRepo) UpdateAccount(ctx context.Context, u *models.User) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE users SET balance = $2, seller_pending_balance = $3, reputation_points = $4, updated_at = now()
		WHERE id = $1
	`, u.ID, u.Balance.String(), u.SellerPendingBalance.String(), u.ReputationPoints)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("user %s: %w", u.ID, ErrNotFound)
	}
	return nil
}

func (r *UserRepo) SetMediatorStatus(ctx context.Context, id uuid.UUID, status models.MediatorStatus) error {
	_, err := r.db.Exec(ctx, `UPDATE users SET mediator_status = $1, updated_at = now() WHERE id = $2`, string(status), id)
	return err
}

func (r *UserRepo) ListAvailableMediators(ctx context.Context, exclude []uuid.UUID, limit int) ([]models.User, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+userColumns+` FROM users
		WHERE is_mediator_qualified AND NOT blocked AND mediator_status = $1 AND NOT (id = ANY($2))
		ORDER BY reputation_points DESC, id
		LIMIT $3
	`, string(models.MediatorAvailable), nonNilIDs(exclude), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *u)
	}
	return out, rows.Err()
}

func (r *UserRepo) ListMediatorIDsByStatus(ctx context.Context, status models.MediatorStatus) ([]uuid.UUID, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id FROM users WHERE is_mediator_qualified AND mediator_status = $1 ORDER BY id
	`, string(status))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func scanUser(row pgx.Row) (*models.User, error) {
	var (
		u                       models.User
		role, mediatorStatus    string
		balance, pending, avail string
	)
	err := row.Scan(&u.ID, &u.Username, &role, &u.IsMediatorQualified, &u.Blocked,
		&balance, &pending, &avail,
		&mediatorStatus, &u.ReputationPoints, &u.Level, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, err
	}
	u.Role = models.Role(role)
	u.MediatorStatus = models.MediatorStatus(mediatorStatus)
	if u.Balance, err = decimal.NewFromString(balance); err != nil {
		return nil, fmt.Errorf("parse balance: %w", err)
	}
	if u.SellerPendingBalance, err = decimal.NewFromString(pending); err != nil {
		return nil, fmt.Errorf("parse pending balance: %w", err)
	}
	if u.SellerAvailableBalance, err = decimal.NewFromString(avail); err != nil {
		return nil, fmt.Errorf("parse available balance: %w", err)
	}
	return &u, nil
}
