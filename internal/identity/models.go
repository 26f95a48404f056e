// Package identity tracks seller identities through the KYC approval
// workflow. The lifecycle state gates the right to hold signing keys and
// therefore the right to mint credentials.
package identity

import (
	"time"

	id "pharmatrust/pkg/domain"
)

// State is an identity's position in the KYC workflow. The set is closed;
// there is deliberately no "unknown" escape hatch.
type State string

const (
	StatePending         State = "pending"
	StateViewed          State = "viewed"
	StateVerifying       State = "verifying"
	StateApproved        State = "approved"
	StateRejected        State = "rejected"
	StateChangesRequired State = "changes_required"
	StateRevoked         State = "revoked"
)

var validStates = map[State]bool{
	StatePending:         true,
	StateViewed:          true,
	StateVerifying:       true,
	StateApproved:        true,
	StateRejected:        true,
	StateChangesRequired: true,
	StateRevoked:         true,
}

// ParseState constructs a State from external input.
func ParseState(s string) (State, bool) {
	st := State(s)
	return st, validStates[st]
}

// IsTerminal reports whether the state has no outgoing transitions.
func (s State) IsTerminal() bool {
	return s == StateRejected || s == StateRevoked
}

func (s State) String() string { return string(s) }

// allowedTransitions is the single source of truth for the lifecycle graph:
//
//	pending → viewed → verifying → {approved | rejected | changes_required}
//	approved → revoked
//	changes_required → pending (resubmission)
//
// rejected and revoked are terminal.
var allowedTransitions = map[State]map[State]bool{
	StateViewed:    {StatePending: true},
	StateVerifying: {StatePending: true, StateViewed: true},
	StateApproved:  {StatePending: true, StateViewed: true, StateVerifying: true},
	StateRejected: {
		StatePending: true, StateViewed: true, StateVerifying: true,
		StateApproved: true, StateChangesRequired: true,
	},
	StateChangesRequired: {
		StatePending: true, StateViewed: true, StateVerifying: true,
		StateApproved: true,
	},
	StateRevoked: {StateApproved: true},
	StatePending: {StateChangesRequired: true},
}

// CanTransition reports whether the lifecycle graph permits from → to.
func CanTransition(from, to State) bool {
	return allowedTransitions[to][from]
}

// RevocationRecord is set on an identity only when its state is revoked. The
// revoked key additionally lives in the revocation registry; the registry,
// not this record, is what the verification pipeline consults.
type RevocationRecord struct {
	Reason    string
	RevokedBy id.UserID
	RevokedAt time.Time
}

// Identity is one seller in the KYC lifecycle.
//
// Invariant: PublicKeyPEM is set only once the identity has reached approved;
// after revocation the key stays on record but is also present in the
// revocation registry.
type Identity struct {
	ID            id.IdentityID
	UserID        id.UserID
	CompanyName   string
	LicenseNumber string
	State         State
	PublicKeyPEM  string
	AdminRemarks  string
	Revocation    *RevocationRecord
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// HasActiveKey reports whether the identity currently holds a signing key.
func (i Identity) HasActiveKey() bool {
	return i.PublicKeyPEM != "" && i.State == StateApproved
}
