// Package ehr imports legacy medical history from a hospital information
// system over SQL Server. The importer is optional; deployments without an
// upstream HIS simply leave it unconfigured.
package ehr

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/denisenkom/go-mssqldb" // SQL Server driver
	"github.com/telecare/platform/internal/shared/config"
)

// HistoryRecord is one clinical record pulled from the upstream system
type HistoryRecord struct {
	RecordedAt time.Time
	Diagnosis  string
	Notes      string
}

// Importer reads patient medical history from an external HIS
type Importer struct {
	db  *sql.DB
	cfg config.EHRConfig
}

// New creates a new importer without opening a connection
func New(cfg config.EHRConfig) *Importer {
	return &Importer{cfg: cfg}
}

// Enabled reports whether the importer is configured for this deployment
func (i *Importer) Enabled() bool {
	return i.cfg.Enabled && i.cfg.Host != "" && i.cfg.Database != ""
}

// Start opens and verifies the upstream connection
func (i *Importer) Start(ctx context.Context) error {
	if !i.Enabled() {
		return fmt.Errorf("ehr importer is not configured")
	}

	connStr := fmt.Sprintf("server=%s;port=%d;database=%s;user id=%s;password=%s",
		i.cfg.Host,
		i.cfg.Port,
		i.cfg.Database,
		i.cfg.User,
		i.cfg.Password,
	)

	db, err := sql.Open("sqlserver", connStr)
	if err != nil {
		return fmt.Errorf("failed to open ehr database: %w", err)
	}

	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(time.Hour)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return fmt.Errorf("failed to ping ehr database: %w", err)
	}

	i.db = db
	return nil
}

// Stop closes the upstream connection
func (i *Importer) Stop() error {
	if i.db != nil {
		return i.db.Close()
	}
	return nil
}

// FetchHistory pulls clinical records for a patient, matched by email since
// the upstream system predates our identifiers.
func (i *Importer) FetchHistory(ctx context.Context, patientEmail string) ([]HistoryRecord, error) {
	if i.db == nil {
		return nil, fmt.Errorf("ehr importer not started")
	}

	rows, err := i.db.QueryContext(ctx, `
		SELECT v.VisitDate, v.Diagnosis, v.ClinicalNotes
		FROM dbo.Visits v
		JOIN dbo.Patients p ON p.PatientID = v.PatientID
		WHERE LOWER(p.Email) = @email
		ORDER BY v.VisitDate ASC
	`, sql.Named("email", strings.ToLower(patientEmail)))
	if err != nil {
		return nil, fmt.Errorf("failed to query ehr visits: %w", err)
	}
	defer rows.Close()

	var records []HistoryRecord
	for rows.Next() {
		var rec HistoryRecord
		var diagnosis, notes sql.NullString
		if err := rows.Scan(&rec.RecordedAt, &diagnosis, &notes); err != nil {
			return nil, fmt.Errorf("failed to scan ehr visit: %w", err)
		}
		rec.Diagnosis = diagnosis.String
		rec.Notes = notes.String
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read ehr visits: %w", err)
	}

	return records, nil
}

// FormatHistory renders imported records as a single medical-history text
// block, the form the patient profile stores and encrypts.
func FormatHistory(records []HistoryRecord) string {
	if len(records) == 0 {
		return ""
	}

	var b strings.Builder
	for i, rec := range records {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "%s: %s", rec.RecordedAt.Format("2006-01-02"), rec.Diagnosis)
		if rec.Notes != "" {
			fmt.Fprintf(&b, " (%s)", rec.Notes)
		}
	}
	return b.String()
}
