package consultation

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/telecare/platform/internal/shared/errors"
	"github.com/telecare/platform/internal/shared/types"
)

// Repository provides database operations for consultations
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new consultation repository
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const selectColumns = `
	SELECT id, patient_id, doctor_id, specialty, status,
		scheduled_start, actual_start, ended_at, duration_minutes,
		room_id, room_url, notes, transcript, created_at, updated_at
	FROM consultations`

// Save persists a new consultation
func (r *Repository) Save(ctx context.Context, c *Consultation) error {
	query := `
		INSERT INTO consultations (
			id, patient_id, doctor_id, specialty, status,
			scheduled_start, actual_start, ended_at, duration_minutes,
			room_id, room_url, notes, transcript, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`

	_, err := r.pool.Exec(ctx, query,
		c.ID, c.PatientID, c.DoctorID, c.Specialty, c.Status,
		c.ScheduledStart, c.ActualStart, c.EndedAt, c.DurationMinutes,
		c.RoomID, c.RoomURL, c.Notes, c.Transcript, c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		return errors.Wrap(err, "failed to save consultation")
	}
	return nil
}

// Update persists the mutable fields of an existing consultation
func (r *Repository) Update(ctx context.Context, c *Consultation) error {
	query := `
		UPDATE consultations SET
			doctor_id = $2, status = $3, actual_start = $4, ended_at = $5,
			duration_minutes = $6, notes = $7, transcript = $8, updated_at = $9
		WHERE id = $1`

	tag, err := r.pool.Exec(ctx, query,
		c.ID, c.DoctorID, c.Status, c.ActualStart, c.EndedAt,
		c.DurationMinutes, c.Notes, c.Transcript, c.UpdatedAt,
	)
	if err != nil {
		return errors.Wrap(err, "failed to update consultation")
	}
	if tag.RowsAffected() == 0 {
		return errors.NotFound("consultation", c.ID.String())
	}
	return nil
}

// FindByID loads a consultation
func (r *Repository) FindByID(ctx context.Context, id types.ID) (*Consultation, error) {
	row := r.pool.QueryRow(ctx, selectColumns+` WHERE id = $1`, id)
	return scanConsultation(row, id.String())
}

func scanConsultation(row pgx.Row, ref string) (*Consultation, error) {
	var c Consultation
	err := row.Scan(
		&c.ID, &c.PatientID, &c.DoctorID, &c.Specialty, &c.Status,
		&c.ScheduledStart, &c.ActualStart, &c.EndedAt, &c.DurationMinutes,
		&c.RoomID, &c.RoomURL, &c.Notes, &c.Transcript, &c.CreatedAt, &c.UpdatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, errors.NotFound("consultation", ref)
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to load consultation")
	}
	return &c, nil
}

// ListByPatient returns a patient's consultations, newest first
func (r *Repository) ListByPatient(ctx context.Context, patientID types.ID) ([]*Consultation, error) {
	rows, err := r.pool.Query(ctx,
		selectColumns+` WHERE patient_id = $1 ORDER BY created_at DESC`, patientID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list consultations")
	}
	return collect(rows)
}

// ListByDoctor returns a doctor's consultations, newest first
func (r *Repository) ListByDoctor(ctx context.Context, doctorID types.ID) ([]*Consultation, error) {
	rows, err := r.pool.Query(ctx,
		selectColumns+` WHERE doctor_id = $1 ORDER BY created_at DESC`, doctorID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list consultations")
	}
	return collect(rows)
}

// ListQueue returns unassigned consultations for a specialty, oldest first
// so the longest-waiting patient is seen first
func (r *Repository) ListQueue(ctx context.Context, specialty string) ([]*Consultation, error) {
	rows, err := r.pool.Query(ctx, selectColumns+`
		WHERE doctor_id IS NULL
			AND specialty = $1
			AND status IN ('scheduled', 'pending')
		ORDER BY scheduled_start ASC`, specialty)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list queue")
	}
	return collect(rows)
}

// ListAll returns a page of all consultations, newest first
func (r *Repository) ListAll(ctx context.Context, limit, offset int) ([]*Consultation, error) {
	rows, err := r.pool.Query(ctx,
		selectColumns+` ORDER BY created_at DESC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list consultations")
	}
	return collect(rows)
}

func collect(rows pgx.Rows) ([]*Consultation, error) {
	defer rows.Close()

	var consultations []*Consultation
	for rows.Next() {
		var c Consultation
		if err := rows.Scan(
			&c.ID, &c.PatientID, &c.DoctorID, &c.Specialty, &c.Status,
			&c.ScheduledStart, &c.ActualStart, &c.EndedAt, &c.DurationMinutes,
			&c.RoomID, &c.RoomURL, &c.Notes, &c.Transcript, &c.CreatedAt, &c.UpdatedAt,
		); err != nil {
			return nil, errors.Wrap(err, "failed to scan consultation")
		}
		consultations = append(consultations, &c)
	}
	return consultations, rows.Err()
}

// Accept atomically assigns a doctor to a still-unassigned consultation.
// Two doctors racing on the same consultation both pass the in-memory
// guard; the conditional update decides the winner and the loser gets a
// conflict.
func (r *Repository) Accept(ctx context.Context, id, doctorID types.ID) (*Consultation, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE consultations
		SET doctor_id = $2, status = 'accepted', updated_at = NOW()
		WHERE id = $1
			AND doctor_id IS NULL
			AND status IN ('scheduled', 'pending')
		RETURNING id, patient_id, doctor_id, specialty, status,
			scheduled_start, actual_start, ended_at, duration_minutes,
			room_id, room_url, notes, transcript, created_at, updated_at`,
		id, doctorID,
	)

	c, err := scanConsultation(row, id.String())
	if err != nil {
		if errors.Is(err, errors.ErrNotFound) {
			// Distinguish "never existed" from "someone else won"
			if _, findErr := r.FindByID(ctx, id); findErr == nil {
				return nil, errors.Conflict("consultation has already been accepted")
			}
			return nil, err
		}
		return nil, err
	}
	return c, nil
}
