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

const assignmentColumns = `id, accident_id, responder_id, response_type, responded_at, version`

// AssignmentRepository - источник кеша назначений и условная запись переходов
type AssignmentRepository struct {
	db *pgxpool.Pool
}

func NewAssignmentRepository(db *pgxpool.Pool) *AssignmentRepository {
	return &AssignmentRepository{db: db}
}

func scanAssignment(row pgx.Row) (models.DispatchAssignment, error) {
	var a models.DispatchAssignment
	err := row.Scan(&a.ID, &a.AccidentID, &a.ResponderID, &a.ResponseType, &a.RespondedAt, &a.Version)
	return a, err
}

func (r *AssignmentRepository) Snapshot(ctx context.Context) ([]models.DispatchAssignment, error) {
	query := `SELECT ` + assignmentColumns + ` FROM accident_responses ORDER BY responded_at, id;`
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list assignments: %w", err)
	}
	defer rows.Close()

	out := make([]models.DispatchAssignment, 0)
	for rows.Next() {
		a, err := scanAssignment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan assignment row: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error list iteration: %w", err)
	}
	return out, nil
}

func (r *AssignmentRepository) Fetch(ctx context.Context, id uuid.UUID) (models.DispatchAssignment, error) {
	query := `SELECT ` + assignmentColumns + ` FROM accident_responses WHERE id = $1;`
	a, err := scanAssignment(r.db.QueryRow(ctx, query, id))
	if err != nil {
		return a, mapError("get assignment "+id.String(), err)
	}
	return a, nil
}

// InsertAssignment создает назначение и переводит происшествие в DISPATCHED в одной транзакции.
// Второе активное назначение отклоняет частичный уникальный индекс.
func (r *AssignmentRepository) InsertAssignment(ctx context.Context, a models.DispatchAssignment) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer rollback(ctx, tx)

	insert := `
		INSERT INTO accident_responses (id, accident_id, responder_id, response_type, responded_at)
		VALUES ($1, $2, $3, $4, $5);
	`
	if _, err := tx.Exec(ctx, insert, a.ID, a.AccidentID, a.ResponderID, a.ResponseType, a.RespondedAt); err != nil {
		return mapError("insert assignment", err)
	}

	update := `
		UPDATE accidents SET accident_status = $1, updated_at = NOW()
		WHERE id = $2 AND accident_status <> $3;
	`
	cmdTag, err := tx.Exec(ctx, update, models.StatusDispatched, a.AccidentID, models.StatusResolved)
	if err != nil {
		return mapError("mark accident dispatched", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return fmt.Errorf("accident %s is resolved: %w", a.AccidentID, service.ErrConflict)
	}

	if err := tx.Commit(ctx); err != nil {
		return mapError("commit assignment", err)
	}
	return nil
}

// ApplyTransition переводит назначение из t.From в t.To вместе с побочными эффектами.
// Если назначение уже не в t.From, ничего не пишется и возвращается ErrConflict.
func (r *AssignmentRepository) ApplyTransition(ctx context.Context, t service.Transition) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer rollback(ctx, tx)

	update := `
		UPDATE accident_responses SET response_type = $1
		WHERE id = $2 AND response_type = $3;
	`
	cmdTag, err := tx.Exec(ctx, update, t.To, t.AssignmentID, t.From)
	if err != nil {
		return mapError("update assignment", err)
	}
	if cmdTag.RowsAffected() == 0 {
		var current models.ResponseType
		err := tx.QueryRow(ctx, `SELECT response_type FROM accident_responses WHERE id = $1;`, t.AssignmentID).Scan(&current)
		if err != nil {
			return mapError("get assignment "+t.AssignmentID.String(), err)
		}
		return fmt.Errorf("assignment %s is %s, expected %s: %w", t.AssignmentID, current, t.From, service.ErrConflict)
	}

	if t.ReportStatus != "" {
		query := `UPDATE accidents SET accident_status = $1, updated_at = NOW() WHERE id = $2;`
		if _, err := tx.Exec(ctx, query, t.ReportStatus, t.AccidentID); err != nil {
			return mapError("update accident status", err)
		}
	}

	if t.Available != nil {
		query := `UPDATE responder_details SET is_available = $1 WHERE responder_id = $2;`
		if _, err := tx.Exec(ctx, query, *t.Available, t.ResponderID); err != nil {
			return mapError("update responder availability", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return mapError("commit transition", err)
	}
	return nil
}
