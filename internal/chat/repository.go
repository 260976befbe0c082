package chat

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/telecare/platform/internal/shared/errors"
	"github.com/telecare/platform/internal/shared/types"
)

// Repository provides database operations for chat messages
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new chat repository
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Save persists a message with its body already encrypted
func (r *Repository) Save(ctx context.Context, m *Message) error {
	query := `
		INSERT INTO chat_messages (
			id, consultation_id, sender_id, sender_role, sender_name,
			kind, body, sent_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := r.pool.Exec(ctx, query,
		m.ID, m.ConsultationID, m.SenderID, m.SenderRole, m.SenderName,
		m.Kind, m.Body, m.SentAt,
	)
	if err != nil {
		return errors.Wrap(err, "failed to save chat message")
	}
	return nil
}

// ListByConsultation returns a consultation's messages in send order
func (r *Repository) ListByConsultation(ctx context.Context, consultationID types.ID) ([]*Message, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, consultation_id, sender_id, sender_role, sender_name,
			kind, body, sent_at
		FROM chat_messages
		WHERE consultation_id = $1
		ORDER BY sent_at ASC`,
		consultationID,
	)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list chat messages")
	}
	defer rows.Close()

	var messages []*Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(
			&m.ID, &m.ConsultationID, &m.SenderID, &m.SenderRole, &m.SenderName,
			&m.Kind, &m.Body, &m.SentAt,
		); err != nil {
			return nil, errors.Wrap(err, "failed to scan chat message")
		}
		messages = append(messages, &m)
	}
	return messages, rows.Err()
}
