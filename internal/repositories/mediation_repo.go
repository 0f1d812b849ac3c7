package repositories

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/mediation-escrow/backend/internal/models"
	"github.com/shopspring/decimal"
)

type MediationRepo struct {
	db DBTX
}

func NewMediationRepo(db DBTX) *MediationRepo {
	return &MediationRepo{db: db}
}

const mediationColumns = `
	id, product_id, seller_id, buyer_id, mediator_id,
	bid_amount::text, bid_currency, status,
	seller_confirmed_start, buyer_confirmed_start,
	suggestion_refresh_count, previously_suggested_mediators,
	escrowed_amount::text, escrowed_currency, calculated_mediator_fee::text,
	calculated_buyer_fee_share::text, calculated_seller_fee_share::text,
	mediation_fee_currency, escrowed_amount_base::text, escrow_funded_at,
	dispute_overseers, dispute_opened_by, dispute_reason, close_reason,
	assigned_at, completed_at, created_at, updated_at`

func (r *MediationRepo) Create(ctx context.Context, m *models.MediationRequest) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	_, err := r.db.Exec(ctx, `
		INSERT INTO mediation_requests (
			id, product_id, seller_id, buyer_id, mediator_id, bid_amount, bid_currency, status,
			previously_suggested_mediators, dispute_overseers, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, m.ID, m.ProductID, m.SellerID, m.BuyerID, m.MediatorID, m.BidAmount.String(), string(m.BidCurrency), string(m.Status),
		nonNilIDs(m.PreviouslySuggestedMediators), nonNilIDs(m.DisputeOverseers), m.CreatedAt, m.UpdatedAt)
	return err
}

// GetByID loads a record; forUpdate takes the row lock with NOWAIT.
func (r *MediationRepo) GetByID(ctx context.Context, id uuid.UUID, forUpdate bool) (*models.MediationRequest, error) {
	query := `SELECT ` + mediationColumns + ` FROM mediation_requests WHERE id = $1`
	if forUpdate {
		query += ` FOR UPDATE NOWAIT`
	}
	return scanMediation(r.db.QueryRow(ctx, query, id))
}

// Update writes every mutable column. Bid terms and parties never change after insert.
func (r *MediationRepo) Update(ctx context.Context, m *models.MediationRequest) error {
	var (
		amount, fee, buyerShare, sellerShare, base *string
		escrowCur, feeCur                          *string
		fundedAt                                   *time.Time
	)
	if e := m.Escrow; e != nil {
		amount, fee = decPtr(e.Amount), decPtr(e.MediatorFee)
		buyerShare, sellerShare, base = decPtr(e.BuyerFeeShare), decPtr(e.SellerFeeShare), decPtr(e.AmountInBase)
		c, fc := string(e.Currency), string(e.FeeCurrency)
		escrowCur, feeCur = &c, &fc
		fundedAt = &e.FundedAt
	}

	tag, err := r.db.Exec(ctx, `
		UPDATE mediation_requests SET
			mediator_id = $2, status = $3,
			seller_confirmed_start = $4, buyer_confirmed_start = $5,
			suggestion_refresh_count = $6, previously_suggested_mediators = $7,
			escrowed_amount = $8, escrowed_currency = $9, calculated_mediator_fee = $10,
			calculated_buyer_fee_share = $11, calculated_seller_fee_share = $12,
			mediation_fee_currency = $13, escrowed_amount_base = $14, escrow_funded_at = $15,
			dispute_overseers = $16, dispute_opened_by = $17, dispute_reason = $18, close_reason = $19,
			assigned_at = $20, completed_at = $21, updated_at = $22
		WHERE id = $1
	`, m.ID, m.MediatorID, string(m.Status),
		m.SellerConfirmedStart, m.BuyerConfirmedStart,
		m.SuggestionRefreshCount, nonNilIDs(m.PreviouslySuggestedMediators),
		amount, escrowCur, fee,
		buyerShare, sellerShare,
		feeCur, base, fundedAt,
		nonNilIDs(m.DisputeOverseers), m.DisputeOpenedBy, m.DisputeReason, m.CloseReason,
		m.AssignedAt, m.CompletedAt, m.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("mediation %s: %w", m.ID, ErrNotFound)
	}
	return nil
}

func (r *MediationRepo) List(ctx context.Context, f MediationFilter) ([]models.MediationRequest, error) {
	query := `SELECT ` + mediationColumns + ` FROM mediation_requests`
	args := []any{}
	argIdx := 1
	where := []string{}

	if f.ParticipantID != nil {
		where = append(where, fmt.Sprintf("(seller_id = $%d OR buyer_id = $%d OR mediator_id = $%d)", argIdx, argIdx, argIdx))
		args = append(args, *f.ParticipantID)
		argIdx++
	}
	if f.MediatorID != nil {
		where = append(where, fmt.Sprintf("mediator_id = $%d", argIdx))
		args = append(args, *f.MediatorID)
		argIdx++
	}
	if f.Status != nil {
		where = append(where, fmt.Sprintf("status = $%d", argIdx))
		args = append(args, string(*f.Status))
		argIdx++
	}
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", argIdx, argIdx+1)
	args = append(args, normalizeLimit(f.Limit), f.Offset)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.MediationRequest
	for rows.Next() {
		m, err := scanMediation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *m)
	}
	return out, rows.Err()
}

func (r *MediationRepo) ListStale(ctx context.Context, status models.MediationStatus, olderThan time.Time, limit int) ([]uuid.UUID, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id FROM mediation_requests
		WHERE status = $1 AND updated_at < $2
		ORDER BY updated_at
		LIMIT $3
	`, string(status), olderThan, limit)
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

func (r *MediationRepo) CountActiveForMediator(ctx context.Context, mediatorID uuid.UUID) (int, error) {
	statuses := make([]string, len(models.ActiveMediatorStatuses))
	for i, s := range models.ActiveMediatorStatuses {
		statuses[i] = string(s)
	}
	var n int
	err := r.db.QueryRow(ctx, `
		SELECT count(*) FROM mediation_requests WHERE mediator_id = $1 AND status = ANY($2)
	`, mediatorID, statuses).Scan(&n)
	return n, err
}

func scanMediation(row pgx.Row) (*models.MediationRequest, error) {
	var (
		m                                          models.MediationRequest
		bid, status, bidCur                        string
		amount, fee, buyerShare, sellerShare, base *string
		escrowCur, feeCur                          *string
		fundedAt                                   *time.Time
	)
	err := row.Scan(&m.ID, &m.ProductID, &m.SellerID, &m.BuyerID, &m.MediatorID,
		&bid, &bidCur, &status,
		&m.SellerConfirmedStart, &m.BuyerConfirmedStart,
		&m.SuggestionRefreshCount, &m.PreviouslySuggestedMediators,
		&amount, &escrowCur, &fee,
		&buyerShare, &sellerShare,
		&feeCur, &base, &fundedAt,
		&m.DisputeOverseers, &m.DisputeOpenedBy, &m.DisputeReason, &m.CloseReason,
		&m.AssignedAt, &m.CompletedAt, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return nil, err
	}
	m.Status = models.MediationStatus(status)
	m.BidCurrency = models.Currency(bidCur)
	if m.BidAmount, err = decimal.NewFromString(bid); err != nil {
		return nil, fmt.Errorf("parse bid amount: %w", err)
	}

	if amount != nil {
		e := &models.EscrowTerms{}
		for _, f := range []struct {
			src *string
			dst *decimal.Decimal
		}{
			{amount, &e.Amount}, {fee, &e.MediatorFee}, {buyerShare, &e.BuyerFeeShare},
			{sellerShare, &e.SellerFeeShare}, {base, &e.AmountInBase},
		} {
			if f.src == nil {
				continue
			}
			if *f.dst, err = decimal.NewFromString(*f.src); err != nil {
				return nil, fmt.Errorf("parse escrow field: %w", err)
			}
		}
		if escrowCur != nil {
			e.Currency = models.Currency(*escrowCur)
		}
		if feeCur != nil {
			e.FeeCurrency = models.Currency(*feeCur)
		}
		if fundedAt != nil {
			e.FundedAt = *fundedAt
		}
		m.Escrow = e
	}
	return &m, nil
}

func decPtr(d decimal.Decimal) *string {
	s := d.String()
	return &s
}

func nonNilIDs(ids []uuid.UUID) []uuid.UUID {
	if ids == nil {
		return []uuid.UUID{}
	}
	return ids
}
