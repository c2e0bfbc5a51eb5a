package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shenikar/dispatch_coordination_system/internal/models"
	"github.com/shenikar/dispatch_coordination_system/internal/service"
)

// Доступность читается соединенной с профилем, поэтому синхронизатор
// перечитывает запись через Fetch на каждое событие responder_details.
const responderSelect = `
	SELECT
		d.responder_id,
		d.is_available,
		d.latitude,
		d.longitude,
		d.location_updated_at,
		d.version,
		p.id,
		p.full_name,
		p.phone,
		p.role
	FROM responder_details d
	JOIN profiles p ON p.id = d.responder_id`

// ResponderRepository - источник кеша доступности спасателей
type ResponderRepository struct {
	db *pgxpool.Pool
}

func NewResponderRepository(db *pgxpool.Pool) *ResponderRepository {
	return &ResponderRepository{db: db}
}

func scanResponder(row pgx.Row) (models.ResponderAvailability, error) {
	var r models.ResponderAvailability
	err := row.Scan(
		&r.ResponderID,
		&r.IsAvailable,
		&r.Latitude,
		&r.Longitude,
		&r.LocationUpdatedAt,
		&r.Version,
		&r.Profile.ID,
		&r.Profile.FullName,
		&r.Profile.Phone,
		&r.Profile.Role,
	)
	return r, err
}

func (r *ResponderRepository) Snapshot(ctx context.Context) ([]models.ResponderAvailability, error) {
	rows, err := r.db.Query(ctx, responderSelect+` ORDER BY p.full_name, d.responder_id;`)
	if err != nil {
		return nil, fmt.Errorf("failed to list responders: %w", err)
	}
	defer rows.Close()

	out := make([]models.ResponderAvailability, 0)
	for rows.Next() {
		resp, err := scanResponder(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan responder row: %w", err)
		}
		out = append(out, resp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error list iteration: %w", err)
	}
	return out, nil
}

func (r *ResponderRepository) Fetch(ctx context.Context, id uuid.UUID) (models.ResponderAvailability, error) {
	resp, err := scanResponder(r.db.QueryRow(ctx, responderSelect+` WHERE d.responder_id = $1;`, id))
	if err != nil {
		return resp, mapError("get responder "+id.String(), err)
	}
	return resp, nil
}

// SetAvailability меняет флаг доступности. true не записывается,
// пока у спасателя есть назначение dispatched или accepted.
func (r *ResponderRepository) SetAvailability(ctx context.Context, responderID uuid.UUID, available bool) error {
	query := `
		UPDATE responder_details SET is_available = $2
		WHERE responder_id = $1
		  AND (NOT $2::boolean OR NOT EXISTS (
			SELECT 1 FROM accident_responses
			WHERE responder_id = $1 AND response_type IN ('dispatched', 'accepted')
		  ));
	`
	cmdTag, err := r.db.Exec(ctx, query, responderID, available)
	if err != nil {
		return mapError("update responder availability", err)
	}
	if cmdTag.RowsAffected() > 0 {
		return nil
	}

	var exists bool
	if err := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM responder_details WHERE responder_id = $1);`, responderID).Scan(&exists); err != nil {
		return mapError("check responder", err)
	}
	if !exists {
		return fmt.Errorf("responder %s: %w", responderID, service.ErrNotFound)
	}
	return fmt.Errorf("responder %s holds an active assignment: %w", responderID, service.ErrConflict)
}
