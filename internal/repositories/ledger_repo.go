package repositories

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/mediation-escrow/backend/internal/models"
	"github.com/shopspring/decimal"
)

// LedgerRepo is the append-only money journal.
type LedgerRepo struct {
	db DBTX
}

func NewLedgerRepo(db DBTX) *LedgerRepo {
	return &LedgerRepo{db: db}
}

func (r *LedgerRepo) Append(ctx context.Context, e *models.LedgerEntry) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	_, err := r.db.Exec(ctx, `
		INSERT INTO ledger_entries (id, user_id, mediation_id, account, kind, amount, balance_after, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, e.ID, e.UserID, e.MediationID, string(e.Account), string(e.Kind), e.Amount.String(), e.BalanceAfter.String(), e.CreatedAt)
	return err
}

func (r *LedgerRepo) ListByUser(ctx context.Context, userID uuid.UUID, limit int) ([]models.LedgerEntry, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, user_id, mediation_id, account, kind, amount::text, balance_after::text, created_at
		FROM ledger_entries WHERE user_id = $1
		ORDER BY created_at DESC LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.LedgerEntry
	for rows.Next() {
		var (
			e                    models.LedgerEntry
			account, kind        string
			amount, balanceAfter string
		)
		if err := rows.Scan(&e.ID, &e.UserID, &e.MediationID, &account, &kind, &amount, &balanceAfter, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Account = models.LedgerAccount(account)
		e.Kind = models.LedgerEntryKind(kind)
		if e.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, fmt.Errorf("parse amount: %w", err)
		}
		if e.BalanceAfter, err = decimal.NewFromString(balanceAfter); err != nil {
			return nil, fmt.Errorf("parse balance_after: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
