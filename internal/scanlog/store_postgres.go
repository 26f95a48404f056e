package scanlog

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	id "pharmatrust/pkg/domain"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Append(ctx context.Context, e Entry) error {
	var scannerID, credID any
	if e.ScannerUserID != nil {
		scannerID = uuid.UUID(*e.ScannerUserID)
	}
	if e.CredentialID != nil {
		credID = uuid.UUID(*e.CredentialID)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO scan_logs (id, scanner_user_id, credential_id, raw_payload, outcome, detail,
		                       client_ip, user_agent, browser, platform, scanned_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, e.ID, scannerID, credID, e.RawPayload, e.Outcome, e.Detail,
		e.ClientIP, e.UserAgent, e.Browser, e.Platform, e.At)
	if err != nil {
		return fmt.Errorf("append scan log: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListByUser(ctx context.Context, userID id.UserID, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, scanner_user_id, credential_id, raw_payload, outcome, detail,
		       client_ip, user_agent, browser, platform, scanned_at
		FROM scan_logs
		WHERE scanner_user_id = $1
		ORDER BY scanned_at DESC
		LIMIT $2
	`, uuid.UUID(userID), limit)
	if err != nil {
		return nil, fmt.Errorf("list scan logs: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			e         Entry
			scannerID sql.Null[uuid.UUID]
			credID    sql.Null[uuid.UUID]
		)
		err := rows.Scan(&e.ID, &scannerID, &credID, &e.RawPayload, &e.Outcome, &e.Detail,
			&e.ClientIP, &e.UserAgent, &e.Browser, &e.Platform, &e.At)
		if err != nil {
			return nil, fmt.Errorf("list scan logs: %w", err)
		}
		if scannerID.Valid {
			uid := id.UserID(scannerID.V)
			e.ScannerUserID = &uid
		}
		if credID.Valid {
			cid := id.CredentialID(credID.V)
			e.CredentialID = &cid
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
