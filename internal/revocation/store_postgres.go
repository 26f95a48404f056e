package revocation

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	id "pharmatrust/pkg/domain"
	txcontext "pharmatrust/pkg/platform/tx"
)

// PostgresRegistry persists revoked keys. It joins a caller-owned transaction
// when one is present in the context, which is how the identity revoke
// transition makes its state change and registry insert atomic.
type PostgresRegistry struct {
	db *sql.DB
}

func NewPostgresRegistry(db *sql.DB) *PostgresRegistry {
	return &PostgresRegistry{db: db}
}

type dbQuerier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func (r *PostgresRegistry) querier(ctx context.Context) dbQuerier {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return r.db
}

func (r *PostgresRegistry) Append(ctx context.Context, entry Entry) error {
	// ON CONFLICT DO NOTHING keeps the first revocation's reason and
	// timestamp; appending an already-revoked key is a no-op.
	query := `
		INSERT INTO revoked_keys (public_key, reason, revoked_by, revoked_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (public_key) DO NOTHING
	`
	var revokedBy any
	if !entry.RevokedBy.IsNil() {
		revokedBy = uuid.UUID(entry.RevokedBy)
	}
	_, err := r.querier(ctx).ExecContext(ctx, query,
		entry.PublicKeyPEM, entry.Reason, revokedBy, entry.RevokedAt,
	)
	if err != nil {
		return fmt.Errorf("append revocation entry: %w", err)
	}
	return nil
}

func (r *PostgresRegistry) Contains(ctx context.Context, publicKeyPEM string) (bool, error) {
	var exists bool
	err := r.querier(ctx).QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM revoked_keys WHERE public_key = $1)`,
		publicKeyPEM,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check revocation: %w", err)
	}
	return exists, nil
}

func (r *PostgresRegistry) Find(ctx context.Context, publicKeyPEM string) (*Entry, error) {
	var (
		entry     Entry
		revokedBy sql.Null[uuid.UUID]
	)
	err := r.querier(ctx).QueryRowContext(ctx,
		`SELECT public_key, reason, revoked_by, revoked_at FROM revoked_keys WHERE public_key = $1`,
		publicKeyPEM,
	).Scan(&entry.PublicKeyPEM, &entry.Reason, &revokedBy, &entry.RevokedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find revocation entry: %w", err)
	}
	if revokedBy.Valid {
		entry.RevokedBy = id.UserID(revokedBy.V)
	}
	return &entry, nil
}

func (r *PostgresRegistry) List(ctx context.Context) ([]Entry, error) {
	rows, err := r.querier(ctx).QueryContext(ctx,
		`SELECT public_key, reason, revoked_by, revoked_at FROM revoked_keys ORDER BY revoked_at DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("list revocation entries: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			entry     Entry
			revokedBy sql.Null[uuid.UUID]
		)
		if err := rows.Scan(&entry.PublicKeyPEM, &entry.Reason, &revokedBy, &entry.RevokedAt); err != nil {
			return nil, fmt.Errorf("scan revocation entry: %w", err)
		}
		if revokedBy.Valid {
			entry.RevokedBy = id.UserID(revokedBy.V)
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}
