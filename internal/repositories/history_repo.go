package repositories

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mediation-escrow/backend/internal/models"
)

type HistoryRepo struct {
	db DBTX
}

func NewHistoryRepo(db DBTX) *HistoryRepo {
	return &HistoryRepo{db: db}
}

func (r *HistoryRepo) Append(ctx context.Context, mediationID uuid.UUID, h models.HistoryEntry) error {
	details, err := json.Marshal(h.Details)
	if err != nil {
		return fmt.Errorf("encode %s details: %w", h.Event, err)
	}
	_, err = r.db.Exec(ctx, `
		INSERT INTO mediation_history (mediation_id, event, actor_id, details, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, mediationID, string(h.Event), h.ActorID, details, h.At)
	return err
}

// ListByMediation returns entries oldest first.
func (r *HistoryRepo) ListByMediation(ctx context.Context, mediationID uuid.UUID) ([]models.HistoryEntry, error) {
	rows, err := r.db.Query(ctx, `
		SELECT event, actor_id, details, created_at
		FROM mediation_history WHERE mediation_id = $1
		ORDER BY id
	`, mediationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.HistoryEntry
	for rows.Next() {
		var (
			event   string
			actorID *uuid.UUID
			raw     []byte
			at      time.Time
		)
		if err := rows.Scan(&event, &actorID, &raw, &at); err != nil {
			return nil, err
		}
		details, err := models.DecodeHistoryDetails(models.HistoryEvent(event), raw)
		if err != nil {
			return nil, err
		}
		out = append(out, models.HistoryEntry{Event: models.HistoryEvent(event), ActorID: actorID, At: at, Details: details})
	}
	return out, rows.Err()
}
