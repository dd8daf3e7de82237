package publisher

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	apperrors "github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Platform/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Platform/pkg/postgres"
)

// uniqueViolation is the postgres error code for a unique constraint.
const uniqueViolation = "23505"

// PostgresLedger keeps the documents table created by postgres.Client.Migrate.
type PostgresLedger struct {
	db *postgres.Client
}

func NewPostgresLedger(db *postgres.Client) *PostgresLedger {
	return &PostgresLedger{db: db}
}

func (l *PostgresLedger) FindByIdempotencyKey(ctx context.Context, key string) (*Entry, error) {
	var e Entry
	err := l.db.DB.QueryRowContext(ctx,
		`SELECT id, shard_id, field_count, deleted, status FROM documents WHERE idempotency_key = $1`,
		key,
	).Scan(&e.DocumentID, &e.ShardID, &e.FieldCount, &e.Deleted, &e.Status)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying by idempotency key: %w", err)
	}
	e.IdempotencyKey = key
	return &e, nil
}

func (l *PostgresLedger) Upsert(ctx context.Context, e Entry) error {
	err := l.db.InTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO documents (id, shard_id, field_count, idempotency_key, deleted, status)
			VALUES ($1, $2, $3, $4, FALSE, $5)
			ON CONFLICT (id) DO UPDATE SET
				field_count = EXCLUDED.field_count,
				idempotency_key = COALESCE(EXCLUDED.idempotency_key, documents.idempotency_key),
				deleted = FALSE,
				status = EXCLUDED.status,
				updated_at = NOW()`,
			e.DocumentID, e.ShardID, e.FieldCount, nullableString(e.IdempotencyKey), e.Status,
		)
		return err
	})
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return apperrors.New(apperrors.ErrConflict, 409, "idempotency key already in use")
	}
	return err
}

func (l *PostgresLedger) MarkDeleted(ctx context.Context, id string) (bool, error) {
	res, err := l.db.DB.ExecContext(ctx,
		`UPDATE documents SET deleted = TRUE, status = 'PENDING', updated_at = NOW() WHERE id = $1`,
		id,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// nullableString treats the empty string as NULL.
func nullableString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
