package credential

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	id "pharmatrust/pkg/domain"
	"pharmatrust/pkg/platform/sentinel"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Save(ctx context.Context, rec Record) error {
	query := `
		INSERT INTO credentials (id, medicine_id, issuer_id, payload, signature, issued_at, revoked)
		VALUES ($1, $2, $3, $4, $5, $6, false)
		ON CONFLICT (id) DO NOTHING
	`
	res, err := s.db.ExecContext(ctx, query,
		uuid.UUID(rec.ID), uuid.UUID(rec.MedicineID), uuid.UUID(rec.IssuerID),
		rec.Payload, rec.Signature, rec.IssuedAt,
	)
	if err != nil {
		return fmt.Errorf("save credential: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sentinel.ErrConflict
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, credentialID id.CredentialID) (*Record, error) {
	query := `
		SELECT id, medicine_id, issuer_id, payload, signature, issued_at,
		       revoked, revoked_at, revoked_reason
		FROM credentials WHERE id = $1
	`
	rec, err := scanRecord(s.db.QueryRowContext(ctx, query, uuid.UUID(credentialID)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find credential: %w", err)
	}
	return rec, nil
}

func (s *PostgresStore) FindBySignature(ctx context.Context, signature string) (*Record, error) {
	query := `
		SELECT id, medicine_id, issuer_id, payload, signature, issued_at,
		       revoked, revoked_at, revoked_reason
		FROM credentials WHERE signature = $1
	`
	rec, err := scanRecord(s.db.QueryRowContext(ctx, query, signature))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find credential by signature: %w", err)
	}
	return rec, nil
}

func (s *PostgresStore) Revoke(ctx context.Context, credentialID id.CredentialID, reason string, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE credentials
		SET revoked = true, revoked_reason = $2, revoked_at = $3
		WHERE id = $1 AND revoked = false
	`, uuid.UUID(credentialID), reason, at)
	if err != nil {
		return fmt.Errorf("revoke credential: %w", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return nil
	}
	// No row touched: either already revoked (fine) or missing.
	if _, err := s.FindByID(ctx, credentialID); err != nil {
		return err
	}
	return nil
}

func (s *PostgresStore) ListByIssuer(ctx context.Context, issuerID id.IdentityID) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, medicine_id, issuer_id, payload, signature, issued_at,
		       revoked, revoked_at, revoked_reason
		FROM credentials WHERE issuer_id = $1
		ORDER BY issued_at DESC
	`, uuid.UUID(issuerID))
	if err != nil {
		return nil, fmt.Errorf("list credentials: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("list credentials: %w", err)
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*Record, error) {
	var (
		rec             Record
		cID, mID, issID uuid.UUID
		revokedAt       sql.NullTime
		revokedReason   sql.NullString
	)
	err := row.Scan(&cID, &mID, &issID, &rec.Payload, &rec.Signature, &rec.IssuedAt,
		&rec.Revoked, &revokedAt, &revokedReason)
	if err != nil {
		return nil, err
	}
	rec.ID = id.CredentialID(cID)
	rec.MedicineID = id.MedicineID(mID)
	rec.IssuerID = id.IdentityID(issID)
	if revokedAt.Valid {
		t := revokedAt.Time
		rec.RevokedAt = &t
	}
	rec.RevokedReason = revokedReason.String
	return &rec, nil
}
