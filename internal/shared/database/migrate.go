package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

type migration struct {
	Version string
	SQL     string
}

// migrations are applied in order; each runs in its own transaction and is
// recorded in schema_migrations so reruns are no-ops.
var migrations = []migration{
	{
		Version: "001_principals",
		SQL: `
			CREATE TABLE IF NOT EXISTS patients (
				id UUID PRIMARY KEY,
				name VARCHAR(255) NOT NULL,
				email VARCHAR(255) NOT NULL,
				password_hash VARCHAR(255) NOT NULL,
				phone VARCHAR(50) NOT NULL DEFAULT '',
				date_of_birth DATE,
				gender VARCHAR(20) NOT NULL DEFAULT '',
				medical_history TEXT NOT NULL DEFAULT '',
				created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
				updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
			);
			CREATE UNIQUE INDEX IF NOT EXISTS idx_patients_email ON patients (LOWER(email));

			CREATE TABLE IF NOT EXISTS doctors (
				id UUID PRIMARY KEY,
				name VARCHAR(255) NOT NULL,
				email VARCHAR(255) NOT NULL,
				password_hash VARCHAR(255) NOT NULL,
				phone VARCHAR(50) NOT NULL DEFAULT '',
				specialty VARCHAR(100) NOT NULL,
				license_number VARCHAR(100) NOT NULL,
				years_experience INT NOT NULL DEFAULT 0,
				available BOOLEAN NOT NULL DEFAULT TRUE,
				created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
				updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
			);
			CREATE UNIQUE INDEX IF NOT EXISTS idx_doctors_email ON doctors (LOWER(email));
			CREATE INDEX IF NOT EXISTS idx_doctors_specialty ON doctors (specialty);

			CREATE TABLE IF NOT EXISTS admins (
				id UUID PRIMARY KEY,
				name VARCHAR(255) NOT NULL,
				email VARCHAR(255) NOT NULL,
				password_hash VARCHAR(255) NOT NULL,
				created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
			);
			CREATE UNIQUE INDEX IF NOT EXISTS idx_admins_email ON admins (LOWER(email));
		`,
	},
	{
		Version: "002_consultations",
		SQL: `
			CREATE TABLE IF NOT EXISTS consultations (
				id UUID PRIMARY KEY,
				patient_id UUID NOT NULL REFERENCES patients(id),
				doctor_id UUID REFERENCES doctors(id),
				specialty VARCHAR(100) NOT NULL,
				status VARCHAR(20) NOT NULL,
				scheduled_start TIMESTAMPTZ NOT NULL,
				actual_start TIMESTAMPTZ,
				ended_at TIMESTAMPTZ,
				duration_minutes INT,
				room_id VARCHAR(255) NOT NULL DEFAULT '',
				room_url VARCHAR(512) NOT NULL DEFAULT '',
				notes TEXT NOT NULL DEFAULT '',
				transcript TEXT NOT NULL DEFAULT '',
				created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
				updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
			);
			CREATE INDEX IF NOT EXISTS idx_consultations_patient ON consultations (patient_id, created_at DESC);
			CREATE INDEX IF NOT EXISTS idx_consultations_doctor ON consultations (doctor_id, created_at DESC);
			CREATE INDEX IF NOT EXISTS idx_consultations_queue ON consultations (specialty, status)
				WHERE doctor_id IS NULL;
		`,
	},
	{
		Version: "003_payments",
		SQL: `
			CREATE TABLE IF NOT EXISTS payments (
				id UUID PRIMARY KEY,
				consultation_id UUID NOT NULL REFERENCES consultations(id),
				patient_id UUID NOT NULL REFERENCES patients(id),
				amount_cents BIGINT NOT NULL,
				currency VARCHAR(3) NOT NULL DEFAULT 'USD',
				status VARCHAR(20) NOT NULL,
				processor_payment_id VARCHAR(255) NOT NULL DEFAULT '',
				receipt_url VARCHAR(512) NOT NULL DEFAULT '',
				source_type VARCHAR(50) NOT NULL DEFAULT '',
				created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
				updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
			);
			CREATE UNIQUE INDEX IF NOT EXISTS idx_payments_consultation ON payments (consultation_id);
		`,
	},
	{
		Version: "004_chat_messages",
		SQL: `
			CREATE TABLE IF NOT EXISTS chat_messages (
				id UUID PRIMARY KEY,
				consultation_id UUID NOT NULL REFERENCES consultations(id),
				sender_id UUID NOT NULL,
				sender_role VARCHAR(20) NOT NULL,
				sender_name VARCHAR(255) NOT NULL DEFAULT '',
				kind VARCHAR(20) NOT NULL DEFAULT 'text',
				body TEXT NOT NULL,
				sent_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
			);
			CREATE INDEX IF NOT EXISTS idx_chat_messages_consultation ON chat_messages (consultation_id, sent_at);
		`,
	},
	{
		Version: "005_audit_entries",
		SQL: `
			CREATE TABLE IF NOT EXISTS audit_entries (
				id UUID PRIMARY KEY,
				sequence BIGSERIAL UNIQUE,
				recorded_at TIMESTAMPTZ NOT NULL,
				hash VARCHAR(64) NOT NULL,
				prev_hash VARCHAR(64) NOT NULL DEFAULT '',
				actor_type VARCHAR(20) NOT NULL,
				actor_id UUID,
				action VARCHAR(100) NOT NULL,
				resource_type VARCHAR(50) NOT NULL,
				resource_id UUID,
				changes JSONB
			);
			CREATE INDEX IF NOT EXISTS idx_audit_entries_resource ON audit_entries (resource_type, resource_id);
			CREATE INDEX IF NOT EXISTS idx_audit_entries_action ON audit_entries (action, recorded_at DESC);
		`,
	},
}

// Migrate runs all pending migrations
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	// Create migrations tracking table
	_, err := pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version VARCHAR(255) PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	// Get applied migrations
	rows, err := pool.Query(ctx, `SELECT version FROM schema_migrations ORDER BY version`)
	if err != nil {
		return fmt.Errorf("failed to query migrations: %w", err)
	}
	defer rows.Close()

	applied := make(map[string]bool)
	for rows.Next() {
		var version string
		if err := rows.Scan(&version); err != nil {
			return fmt.Errorf("failed to scan migration version: %w", err)
		}
		applied[version] = true
	}
	rows.Close()

	// Apply pending migrations
	for _, m := range migrations {
		if applied[m.Version] {
			continue
		}

		tx, err := pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("failed to begin transaction for %s: %w", m.Version, err)
		}

		if _, err := tx.Exec(ctx, m.SQL); err != nil {
			tx.Rollback(ctx)
			return fmt.Errorf("failed to execute migration %s: %w", m.Version, err)
		}

		if _, err := tx.Exec(ctx, `INSERT INTO schema_migrations (version) VALUES ($1)`, m.Version); err != nil {
			tx.Rollback(ctx)
			return fmt.Errorf("failed to record migration %s: %w", m.Version, err)
		}

		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("failed to commit migration %s: %w", m.Version, err)
		}

		fmt.Printf("Applied migration: %s\n", m.Version)
	}

	return nil
}
