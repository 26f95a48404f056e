package medicine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	id "pharmatrust/pkg/domain"
	"pharmatrust/pkg/platform/sentinel"
)

// PostgresStore persists the medicine catalog.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) GetMedicine(ctx context.Context, medicineID id.MedicineID) (*Medicine, error) {
	query := `
		SELECT id, seller_id, name, batch_no, mfg_date, expiry_date, approval_status, dosage, strength
		FROM medicines WHERE id = $1
	`
	var (
		m        Medicine
		mID, sID uuid.UUID
		approval string
	)
	err := s.db.QueryRowContext(ctx, query, uuid.UUID(medicineID)).Scan(
		&mID, &sID, &m.Name, &m.BatchNo, &m.MfgDate, &m.ExpiryDate, &approval, &m.Dosage, &m.Strength,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("get medicine: %w", err)
	}
	m.ID = id.MedicineID(mID)
	m.SellerID = id.IdentityID(sID)
	m.ApprovalState = ApprovalState(approval)
	return &m, nil
}

func (s *PostgresStore) Save(ctx context.Context, m Medicine) error {
	query := `
		INSERT INTO medicines (id, seller_id, name, batch_no, mfg_date, expiry_date, approval_status, dosage, strength)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			batch_no = EXCLUDED.batch_no,
			mfg_date = EXCLUDED.mfg_date,
			expiry_date = EXCLUDED.expiry_date,
			approval_status = EXCLUDED.approval_status,
			dosage = EXCLUDED.dosage,
			strength = EXCLUDED.strength
	`
	_, err := s.db.ExecContext(ctx, query,
		uuid.UUID(m.ID), uuid.UUID(m.SellerID), m.Name, m.BatchNo,
		m.MfgDate, m.ExpiryDate, string(m.ApprovalState), m.Dosage, m.Strength,
	)
	if err != nil {
		return fmt.Errorf("save medicine: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdateApprovalState(ctx context.Context, medicineID id.MedicineID, state ApprovalState) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE medicines SET approval_status = $2 WHERE id = $1`,
		uuid.UUID(medicineID), string(state),
	)
	if err != nil {
		return fmt.Errorf("update medicine approval: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}
