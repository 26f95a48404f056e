package medicine

import (
	"context"

	id "pharmatrust/pkg/domain"
)

// Catalog is the narrow lookup surface the trust engine consumes.
type Catalog interface {
	GetMedicine(ctx context.Context, medicineID id.MedicineID) (*Medicine, error)
}

// Store extends Catalog with the writes the surrounding system performs.
type Store interface {
	Catalog
	Save(ctx context.Context, m Medicine) error
	UpdateApprovalState(ctx context.Context, medicineID id.MedicineID, state ApprovalState) error
}
