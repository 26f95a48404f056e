// Package medicine holds the catalog collaborator contract. The trust engine
// consumes it through a narrow lookup interface; catalog CRUD lives elsewhere.
package medicine

import (
	"time"

	id "pharmatrust/pkg/domain"
)

// ApprovalState is a medicine's acceptance into the trusted product catalog,
// independent of any credential signature validity.
type ApprovalState string

const (
	ApprovalPending  ApprovalState = "pending"
	ApprovalApproved ApprovalState = "approved"
	ApprovalRejected ApprovalState = "rejected"
)

// DateFormat is the wire representation for manufacture and expiry dates.
// Dates travel as strings end to end so the signed bytes never depend on a
// parser.
const DateFormat = "2006-01-02"

// Medicine is one batch in the catalog.
type Medicine struct {
	ID            id.MedicineID
	SellerID      id.IdentityID
	Name          string
	BatchNo       string
	MfgDate       time.Time
	ExpiryDate    time.Time
	ApprovalState ApprovalState
	Dosage        string
	Strength      string
}

// Expired reports whether the batch's expiry date is before now.
func (m Medicine) Expired(now time.Time) bool {
	return m.ExpiryDate.Before(now)
}
