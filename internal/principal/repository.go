package principal

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/telecare/platform/internal/shared/auth"
	"github.com/telecare/platform/internal/shared/errors"
	"github.com/telecare/platform/internal/shared/types"
)

// Repository provides database operations for patients, doctors, and admins
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new principal repository
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// --- Patients ---

// CreatePatient saves a new patient
func (r *Repository) CreatePatient(ctx context.Context, p *Patient) error {
	query := `
		INSERT INTO patients (
			id, name, email, password_hash, phone, date_of_birth, gender,
			medical_history, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	_, err := r.pool.Exec(ctx, query,
		p.ID, p.Name, p.Email, p.PasswordHash, p.Phone, p.DateOfBirth, p.Gender,
		p.MedicalHistory, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		if strings.Contains(err.Error(), "duplicate key") {
			return errors.Conflict("an account with this email already exists")
		}
		return errors.Wrap(err, "failed to save patient")
	}
	return nil
}

// FindPatientByID finds a patient by ID
func (r *Repository) FindPatientByID(ctx context.Context, id types.ID) (*Patient, error) {
	return r.scanPatient(r.pool.QueryRow(ctx, patientSelect+` WHERE id = $1`, id), id.String())
}

// FindPatientByEmail finds a patient by email, case-insensitively
func (r *Repository) FindPatientByEmail(ctx context.Context, email string) (*Patient, error) {
	return r.scanPatient(r.pool.QueryRow(ctx, patientSelect+` WHERE LOWER(email) = LOWER($1)`, email), email)
}

const patientSelect = `
	SELECT id, name, email, password_hash, phone, date_of_birth, gender,
		medical_history, created_at, updated_at
	FROM patients`

func (r *Repository) scanPatient(row pgx.Row, ref string) (*Patient, error) {
	var p Patient
	err := row.Scan(
		&p.ID, &p.Name, &p.Email, &p.PasswordHash, &p.Phone, &p.DateOfBirth,
		&p.Gender, &p.MedicalHistory, &p.CreatedAt, &p.UpdatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, errors.NotFound("patient", ref)
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to load patient")
	}
	return &p, nil
}

// UpdatePatientHistory replaces a patient's stored (encrypted) medical history
func (r *Repository) UpdatePatientHistory(ctx context.Context, id types.ID, encryptedHistory string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE patients SET medical_history = $2, updated_at = NOW() WHERE id = $1`,
		id, encryptedHistory,
	)
	if err != nil {
		return errors.Wrap(err, "failed to update medical history")
	}
	if tag.RowsAffected() == 0 {
		return errors.NotFound("patient", id.String())
	}
	return nil
}

// --- Doctors ---

// CreateDoctor saves a new doctor
func (r *Repository) CreateDoctor(ctx context.Context, d *Doctor) error {
	query := `
		INSERT INTO doctors (
			id, name, email, password_hash, phone, specialty, license_number,
			years_experience, available, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	_, err := r.pool.Exec(ctx, query,
		d.ID, d.Name, d.Email, d.PasswordHash, d.Phone, d.Specialty, d.LicenseNumber,
		d.YearsExperience, d.Available, d.CreatedAt, d.UpdatedAt,
	)
	if err != nil {
		if strings.Contains(err.Error(), "duplicate key") {
			return errors.Conflict("an account with this email already exists")
		}
		return errors.Wrap(err, "failed to save doctor")
	}
	return nil
}

// FindDoctorByID finds a doctor by ID
func (r *Repository) FindDoctorByID(ctx context.Context, id types.ID) (*Doctor, error) {
	return r.scanDoctor(r.pool.QueryRow(ctx, doctorSelect+` WHERE id = $1`, id), id.String())
}

// FindDoctorByEmail finds a doctor by email, case-insensitively
func (r *Repository) FindDoctorByEmail(ctx context.Context, email string) (*Doctor, error) {
	return r.scanDoctor(r.pool.QueryRow(ctx, doctorSelect+` WHERE LOWER(email) = LOWER($1)`, email), email)
}

const doctorSelect = `
	SELECT id, name, email, password_hash, phone, specialty, license_number,
		years_experience, available, created_at, updated_at
	FROM doctors`

func (r *Repository) scanDoctor(row pgx.Row, ref string) (*Doctor, error) {
	var d Doctor
	err := row.Scan(
		&d.ID, &d.Name, &d.Email, &d.PasswordHash, &d.Phone, &d.Specialty,
		&d.LicenseNumber, &d.YearsExperience, &d.Available, &d.CreatedAt, &d.UpdatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, errors.NotFound("doctor", ref)
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to load doctor")
	}
	return &d, nil
}

// SetDoctorAvailability toggles a doctor's availability flag
func (r *Repository) SetDoctorAvailability(ctx context.Context, id types.ID, available bool) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE doctors SET available = $2, updated_at = NOW() WHERE id = $1`,
		id, available,
	)
	if err != nil {
		return errors.Wrap(err, "failed to update availability")
	}
	if tag.RowsAffected() == 0 {
		return errors.NotFound("doctor", id.String())
	}
	return nil
}

// --- Admins ---

// FindAdminByID finds an admin by ID
func (r *Repository) FindAdminByID(ctx context.Context, id types.ID) (*Admin, error) {
	return r.scanAdmin(r.pool.QueryRow(ctx, adminSelect+` WHERE id = $1`, id), id.String())
}

// FindAdminByEmail finds an admin by email, case-insensitively
func (r *Repository) FindAdminByEmail(ctx context.Context, email string) (*Admin, error) {
	return r.scanAdmin(r.pool.QueryRow(ctx, adminSelect+` WHERE LOWER(email) = LOWER($1)`, email), email)
}

const adminSelect = `
	SELECT id, name, email, password_hash, created_at
	FROM admins`

func (r *Repository) scanAdmin(row pgx.Row, ref string) (*Admin, error) {
	var a Admin
	err := row.Scan(&a.ID, &a.Name, &a.Email, &a.PasswordHash, &a.CreatedAt)
	if err == pgx.ErrNoRows {
		return nil, errors.NotFound("admin", ref)
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to load admin")
	}
	return &a, nil
}

// --- Access Guard resolution ---

// ResolvePrincipal implements auth.Resolver: the token's subject must still
// exist in the directory for the request to proceed.
func (r *Repository) ResolvePrincipal(ctx context.Context, id types.ID, role auth.Role) (*auth.Principal, error) {
	switch role {
	case auth.RolePatient:
		p, err := r.FindPatientByID(ctx, id)
		if err != nil {
			return nil, err
		}
		return &auth.Principal{ID: p.ID, Role: role, Name: p.Name, Email: p.Email}, nil
	case auth.RoleDoctor:
		d, err := r.FindDoctorByID(ctx, id)
		if err != nil {
			return nil, err
		}
		return &auth.Principal{ID: d.ID, Role: role, Name: d.Name, Email: d.Email, Specialty: d.Specialty}, nil
	case auth.RoleAdmin:
		a, err := r.FindAdminByID(ctx, id)
		if err != nil {
			return nil, err
		}
		return &auth.Principal{ID: a.ID, Role: role, Name: a.Name, Email: a.Email}, nil
	}
	return nil, fmt.Errorf("unknown role %q", role)
}

// --- Statistics and listings ---

// GetDoctorStats summarizes a doctor's workload and the open queue depth
// for their specialty
func (r *Repository) GetDoctorStats(ctx context.Context, doctorID types.ID, specialty string) (*DoctorStats, error) {
	var stats DoctorStats

	err := r.pool.QueryRow(ctx, `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE status = 'accepted'),
			COUNT(*) FILTER (WHERE status = 'in-progress'),
			COUNT(*) FILTER (WHERE status = 'completed')
		FROM consultations WHERE doctor_id = $1`,
		doctorID,
	).Scan(&stats.Total, &stats.Accepted, &stats.InProgress, &stats.Completed)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load doctor stats")
	}

	err = r.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM consultations
		WHERE doctor_id IS NULL AND specialty = $1 AND status IN ('scheduled', 'pending')`,
		specialty,
	).Scan(&stats.QueueDepth)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load queue depth")
	}

	return &stats, nil
}

// GetPlatformStats summarizes the whole platform for the admin dashboard
func (r *Repository) GetPlatformStats(ctx context.Context) (*PlatformStats, error) {
	var stats PlatformStats

	err := r.pool.QueryRow(ctx, `
		SELECT
			(SELECT COUNT(*) FROM patients),
			(SELECT COUNT(*) FROM doctors),
			(SELECT COUNT(*) FROM consultations),
			(SELECT COUNT(*) FROM consultations WHERE status IN ('accepted', 'in-progress')),
			(SELECT COUNT(*) FROM consultations WHERE status = 'completed'),
			(SELECT COUNT(*) FROM payments),
			(SELECT COALESCE(SUM(amount_cents), 0) FROM payments WHERE status = 'completed')`,
	).Scan(
		&stats.Patients, &stats.Doctors, &stats.Consultations,
		&stats.ActiveConsultations, &stats.CompletedConsultations,
		&stats.Payments, &stats.RevenueCents,
	)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load platform stats")
	}

	return &stats, nil
}

// ListPatients returns a page of patients, newest first
func (r *Repository) ListPatients(ctx context.Context, limit, offset int) ([]*Patient, error) {
	rows, err := r.pool.Query(ctx,
		patientSelect+` ORDER BY created_at DESC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list patients")
	}
	defer rows.Close()

	var patients []*Patient
	for rows.Next() {
		var p Patient
		if err := rows.Scan(
			&p.ID, &p.Name, &p.Email, &p.PasswordHash, &p.Phone, &p.DateOfBirth,
			&p.Gender, &p.MedicalHistory, &p.CreatedAt, &p.UpdatedAt,
		); err != nil {
			return nil, errors.Wrap(err, "failed to scan patient")
		}
		patients = append(patients, &p)
	}
	return patients, rows.Err()
}

// ListDoctors returns a page of doctors, newest first
func (r *Repository) ListDoctors(ctx context.Context, limit, offset int) ([]*Doctor, error) {
	rows, err := r.pool.Query(ctx,
		doctorSelect+` ORDER BY created_at DESC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list doctors")
	}
	defer rows.Close()

	var doctors []*Doctor
	for rows.Next() {
		var d Doctor
		if err := rows.Scan(
			&d.ID, &d.Name, &d.Email, &d.PasswordHash, &d.Phone, &d.Specialty,
			&d.LicenseNumber, &d.YearsExperience, &d.Available, &d.CreatedAt, &d.UpdatedAt,
		); err != nil {
			return nil, errors.Wrap(err, "failed to scan doctor")
		}
		doctors = append(doctors, &d)
	}
	return doctors, rows.Err()
}
