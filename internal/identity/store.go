package identity

import (
	"context"
	"time"

	id "pharmatrust/pkg/domain"
)

// UpdateFields carries the writes that accompany a state transition.
type UpdateFields struct {
	Remarks string
	ActorID id.UserID
	At      time.Time
}

// Store persists identities.
//
// UpdateState is a compare-and-set: the write succeeds only if the identity
// is still in the expected `from` state, otherwise the store returns
// sentinel.ErrConflict and the caller observes the post-transition state.
// This is what keeps two concurrent approvals from both succeeding.
//
// SetPublicKey only writes while the identity is approved and returns
// sentinel.ErrConflict otherwise, so a re-key racing a revocation cannot
// install a key the revocation will never see.
type Store interface {
	Save(ctx context.Context, ident Identity) error
	FindByID(ctx context.Context, identityID id.IdentityID) (*Identity, error)
	UpdateState(ctx context.Context, identityID id.IdentityID, from, to State, fields UpdateFields) (*Identity, error)
	SetPublicKey(ctx context.Context, identityID id.IdentityID, publicKeyPEM string) error
}
