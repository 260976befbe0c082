package payment

import (
	"context"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/telecare/platform/internal/shared/errors"
	"github.com/telecare/platform/internal/shared/types"
)

// Repository provides database operations for payments
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new payment repository
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const selectColumns = `
	SELECT id, consultation_id, patient_id, amount_cents, currency, status,
		processor_payment_id, receipt_url, source_type, created_at, updated_at
	FROM payments`

// Save persists a new payment. The unique index on consultation_id settles
// concurrent initiations; the loser sees a conflict.
func (r *Repository) Save(ctx context.Context, p *Payment) error {
	query := `
		INSERT INTO payments (
			id, consultation_id, patient_id, amount_cents, currency, status,
			processor_payment_id, receipt_url, source_type, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	_, err := r.pool.Exec(ctx, query,
		p.ID, p.ConsultationID, p.PatientID, p.AmountCents, p.Currency, p.Status,
		p.ProcessorPaymentID, p.ReceiptURL, p.SourceType, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		if strings.Contains(err.Error(), "duplicate key") {
			return errors.Conflict("consultation has already been paid for")
		}
		return errors.Wrap(err, "failed to save payment")
	}
	return nil
}

// UpdateStatus persists a refreshed processor status
func (r *Repository) UpdateStatus(ctx context.Context, p *Payment) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE payments SET status = $2, receipt_url = $3, updated_at = $4 WHERE id = $1`,
		p.ID, p.Status, p.ReceiptURL, p.UpdatedAt,
	)
	if err != nil {
		return errors.Wrap(err, "failed to update payment")
	}
	if tag.RowsAffected() == 0 {
		return errors.NotFound("payment", p.ID.String())
	}
	return nil
}

// FindByID loads a payment
func (r *Repository) FindByID(ctx context.Context, id types.ID) (*Payment, error) {
	return scanPayment(r.pool.QueryRow(ctx, selectColumns+` WHERE id = $1`, id), id.String())
}

// FindByConsultation loads the payment for a consultation, if any
func (r *Repository) FindByConsultation(ctx context.Context, consultationID types.ID) (*Payment, error) {
	return scanPayment(
		r.pool.QueryRow(ctx, selectColumns+` WHERE consultation_id = $1`, consultationID),
		consultationID.String(),
	)
}

func scanPayment(row pgx.Row, ref string) (*Payment, error) {
	var p Payment
	err := row.Scan(
		&p.ID, &p.ConsultationID, &p.PatientID, &p.AmountCents, &p.Currency, &p.Status,
		&p.ProcessorPaymentID, &p.ReceiptURL, &p.SourceType, &p.CreatedAt, &p.UpdatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, errors.NotFound("payment", ref)
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to load payment")
	}
	return &p, nil
}

// ListAll returns a page of payments, newest first
func (r *Repository) ListAll(ctx context.Context, limit, offset int) ([]*Payment, error) {
	rows, err := r.pool.Query(ctx,
		selectColumns+` ORDER BY created_at DESC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list payments")
	}
	defer rows.Close()

	var payments []*Payment
	for rows.Next() {
		var p Payment
		if err := rows.Scan(
			&p.ID, &p.ConsultationID, &p.PatientID, &p.AmountCents, &p.Currency, &p.Status,
			&p.ProcessorPaymentID, &p.ReceiptURL, &p.SourceType, &p.CreatedAt, &p.UpdatedAt,
		); err != nil {
			return nil, errors.Wrap(err, "failed to scan payment")
		}
		payments = append(payments, &p)
	}
	return payments, rows.Err()
}
