package identity

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	id "pharmatrust/pkg/domain"
	"pharmatrust/pkg/platform/sentinel"
	txcontext "pharmatrust/pkg/platform/tx"
)

// PostgresStore persists identities. UpdateState uses a conditional UPDATE so
// the compare-and-set happens in the database, not in application memory.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

type dbQuerier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *PostgresStore) querier(ctx context.Context) dbQuerier {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

const identityColumns = `
	id, user_id, company_name, license_number, status, public_key, admin_remarks,
	revoked_reason, revoked_by, revoked_at, created_at, updated_at
`

func (s *PostgresStore) Save(ctx context.Context, ident Identity) error {
	query := `
		INSERT INTO sellers (id, user_id, company_name, license_number, status, public_key, admin_remarks, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := s.querier(ctx).ExecContext(ctx, query,
		uuid.UUID(ident.ID), uuid.UUID(ident.UserID), ident.CompanyName, ident.LicenseNumber,
		string(ident.State), nullableString(ident.PublicKeyPEM), nullableString(ident.AdminRemarks),
		ident.CreatedAt, ident.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("save identity: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, identityID id.IdentityID) (*Identity, error) {
	row := s.querier(ctx).QueryRowContext(ctx,
		`SELECT `+identityColumns+` FROM sellers WHERE id = $1`, uuid.UUID(identityID),
	)
	return scanIdentity(row)
}

func (s *PostgresStore) UpdateState(ctx context.Context, identityID id.IdentityID, from, to State, fields UpdateFields) (*Identity, error) {
	query := `
		UPDATE sellers SET
			status = $3,
			admin_remarks = COALESCE(NULLIF($4, ''), admin_remarks),
			revoked_reason = CASE WHEN $3 = 'revoked' THEN $4 ELSE revoked_reason END,
			revoked_by = CASE WHEN $3 = 'revoked' THEN $5 ELSE revoked_by END,
			revoked_at = CASE WHEN $3 = 'revoked' THEN $6 ELSE revoked_at END,
			updated_at = $6
		WHERE id = $1 AND status = $2
		RETURNING ` + identityColumns
	var actorID any
	if !fields.ActorID.IsNil() {
		actorID = uuid.UUID(fields.ActorID)
	}
	row := s.querier(ctx).QueryRowContext(ctx, query,
		uuid.UUID(identityID), string(from), string(to), fields.Remarks, actorID, fields.At,
	)
	ident, err := scanIdentity(row)
	if errors.Is(err, sentinel.ErrNotFound) {
		// Either the identity does not exist or the CAS lost. Distinguish so
		// the service can report already_approved versus not_found.
		if _, findErr := s.FindByID(ctx, identityID); findErr == nil {
			return nil, sentinel.ErrConflict
		}
		return nil, sentinel.ErrNotFound
	}
	return ident, err
}

func (s *PostgresStore) SetPublicKey(ctx context.Context, identityID id.IdentityID, publicKeyPEM string) error {
	res, err := s.querier(ctx).ExecContext(ctx,
		`UPDATE sellers SET public_key = $2, updated_at = NOW() WHERE id = $1 AND status = 'approved'`,
		uuid.UUID(identityID), publicKeyPEM,
	)
	if err != nil {
		return fmt.Errorf("set public key: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		// Zero rows is either a missing identity or one that is no longer
		// approved; a concurrent revocation must not gain a fresh trusted key.
		if _, findErr := s.FindByID(ctx, identityID); findErr == nil {
			return sentinel.ErrConflict
		}
		return sentinel.ErrNotFound
	}
	return nil
}

func scanIdentity(row *sql.Row) (*Identity, error) {
	var (
		ident         Identity
		identityID    uuid.UUID
		userID        uuid.UUID
		publicKey     sql.NullString
		adminRemarks  sql.NullString
		revokedReason sql.NullString
		revokedBy     sql.Null[uuid.UUID]
		revokedAt     sql.NullTime
	)
	err := row.Scan(
		&identityID, &userID, &ident.CompanyName, &ident.LicenseNumber, (*string)(&ident.State),
		&publicKey, &adminRemarks, &revokedReason, &revokedBy, &revokedAt,
		&ident.CreatedAt, &ident.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("scan identity: %w", err)
	}
	ident.ID = id.IdentityID(identityID)
	ident.UserID = id.UserID(userID)
	ident.PublicKeyPEM = publicKey.String
	ident.AdminRemarks = adminRemarks.String
	if revokedAt.Valid {
		rec := &RevocationRecord{Reason: revokedReason.String, RevokedAt: revokedAt.Time}
		if revokedBy.Valid {
			rec.RevokedBy = id.UserID(revokedBy.V)
		}
		ident.Revocation = rec
	}
	return &ident, nil
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
