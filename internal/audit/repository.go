package audit

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/telecare/platform/internal/shared/errors"
	"github.com/telecare/platform/internal/shared/metrics"
)

// Repository provides append-only database operations for audit entries
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new audit repository
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// LastHash returns the hash of the newest entry, or "" for an empty log
func (r *Repository) LastHash(ctx context.Context) (string, error) {
	var hash string
	err := r.pool.QueryRow(ctx,
		`SELECT hash FROM audit_entries ORDER BY sequence DESC LIMIT 1`).Scan(&hash)
	if err == pgx.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", errors.Wrap(err, "failed to load last audit hash")
	}
	return hash, nil
}

// Append persists a new entry and fills in its database-assigned sequence
func (r *Repository) Append(ctx context.Context, e *Entry) error {
	err := r.pool.QueryRow(ctx, `
		INSERT INTO audit_entries (
			id, recorded_at, hash, prev_hash, actor_type, actor_id,
			action, resource_type, resource_id, changes
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING sequence`,
		e.ID, e.RecordedAt, e.Hash, e.PrevHash, e.ActorType, e.ActorID,
		e.Action, e.ResourceType, e.ResourceID, e.Changes,
	).Scan(&e.Sequence)
	if err != nil {
		return errors.Wrap(err, "failed to append audit entry")
	}

	metrics.RecordAuditEntry()
	return nil
}

// List returns entries matching the filter, newest first
func (r *Repository) List(ctx context.Context, filter ListFilter) ([]*Entry, error) {
	query := `
		SELECT id, sequence, recorded_at, hash, prev_hash, actor_type,
			actor_id, action, resource_type, resource_id, changes
		FROM audit_entries
		WHERE ($1::uuid IS NULL OR actor_id = $1)
			AND ($2 = '' OR action = $2)
			AND ($3 = '' OR resource_type = $3)
			AND ($4::uuid IS NULL OR resource_id = $4)
		ORDER BY sequence DESC
		LIMIT $5 OFFSET $6`

	limit := filter.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	rows, err := r.pool.Query(ctx, query,
		filter.ActorID, filter.Action, filter.ResourceType, filter.ResourceID,
		limit, filter.Offset,
	)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list audit entries")
	}
	defer rows.Close()

	var entries []*Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(
			&e.ID, &e.Sequence, &e.RecordedAt, &e.Hash, &e.PrevHash, &e.ActorType,
			&e.ActorID, &e.Action, &e.ResourceType, &e.ResourceID, &e.Changes,
		); err != nil {
			return nil, errors.Wrap(err, "failed to scan audit entry")
		}
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}

// VerifyChain walks the whole log in sequence order and reports the first
// entry whose hash or back-link fails, or nil when the chain is intact.
func (r *Repository) VerifyChain(ctx context.Context) (*Entry, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, sequence, recorded_at, hash, prev_hash, actor_type,
			actor_id, action, resource_type, resource_id, changes
		FROM audit_entries
		ORDER BY sequence ASC`)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read audit chain")
	}
	defer rows.Close()

	prevHash := ""
	for rows.Next() {
		var e Entry
		if err := rows.Scan(
			&e.ID, &e.Sequence, &e.RecordedAt, &e.Hash, &e.PrevHash, &e.ActorType,
			&e.ActorID, &e.Action, &e.ResourceType, &e.ResourceID, &e.Changes,
		); err != nil {
			return nil, errors.Wrap(err, "failed to scan audit entry")
		}

		if e.PrevHash != prevHash || !e.VerifyHash() {
			return &e, nil
		}
		prevHash = e.Hash
	}
	return nil, rows.Err()
}
