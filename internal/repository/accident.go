package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shenikar/dispatch_coordination_system/internal/models"
)

const accidentColumns = `
	id,
	created_at,
	updated_at,
	severity,
	reporter_notes,
	reporter_contact,
	latitude,
	longitude,
	barangay,
	municipality,
	province,
	landmark,
	images,
	accident_status,
	version`

// AccidentRepository - источник кеша происшествий и прием новых сообщений
type AccidentRepository struct {
	db *pgxpool.Pool
}

func NewAccidentRepository(db *pgxpool.Pool) *AccidentRepository {
	return &AccidentRepository{db: db}
}

func scanAccident(row pgx.Row) (models.AccidentReport, error) {
	var r models.AccidentReport
	err := row.Scan(
		&r.ID,
		&r.CreatedAt,
		&r.UpdatedAt,
		&r.Severity,
		&r.ReporterNotes,
		&r.ReporterContact,
		&r.Latitude,
		&r.Longitude,
		&r.Barangay,
		&r.Municipality,
		&r.Province,
		&r.Landmark,
		&r.Images,
		&r.Status,
		&r.Version,
	)
	return r, err
}

// Snapshot читает все происшествия для первой загрузки кеша
func (r *AccidentRepository) Snapshot(ctx context.Context) ([]models.AccidentReport, error) {
	query := `SELECT ` + accidentColumns + ` FROM accidents ORDER BY created_at, id;`
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list accidents: %w", err)
	}
	defer rows.Close()

	reports := make([]models.AccidentReport, 0)
	for rows.Next() {
		report, err := scanAccident(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan accident row: %w", err)
		}
		reports = append(reports, report)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error list iteration: %w", err)
	}
	return reports, nil
}

// Fetch возвращает происшествие по UUID
func (r *AccidentRepository) Fetch(ctx context.Context, id uuid.UUID) (models.AccidentReport, error) {
	query := `SELECT ` + accidentColumns + ` FROM accidents WHERE id = $1;`
	report, err := scanAccident(r.db.QueryRow(ctx, query, id))
	if err != nil {
		return report, mapError("get accident "+id.String(), err)
	}
	return report, nil
}

// CreateReport сохраняет новое происшествие; версию и триггерные поля выставляет база
func (r *AccidentRepository) CreateReport(ctx context.Context, report models.AccidentReport) error {
	images := report.Images
	if images == nil {
		images = []string{}
	}
	query := `
		INSERT INTO accidents (
			id, created_at, updated_at, severity, reporter_notes, reporter_contact,
			latitude, longitude, barangay, municipality, province, landmark, images, accident_status
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14);
	`
	_, err := r.db.Exec(ctx, query,
		report.ID,
		report.CreatedAt,
		report.UpdatedAt,
		report.Severity,
		report.ReporterNotes,
		report.ReporterContact,
		report.Latitude,
		report.Longitude,
		report.Barangay,
		report.Municipality,
		report.Province,
		report.Landmark,
		images,
		report.Status,
	)
	if err != nil {
		return mapError("create accident", err)
	}
	return nil
}
