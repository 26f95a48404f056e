package credential

import (
	"context"
	"time"

	id "pharmatrust/pkg/domain"
)

// Store persists issued credentials.
//
// Revoke is first-revocation-wins: the first call records reason and
// timestamp, later calls are no-ops. A credential never becomes un-revoked.
type Store interface {
	Save(ctx context.Context, rec Record) error
	FindByID(ctx context.Context, credentialID id.CredentialID) (*Record, error)
	// FindBySignature resolves the record a scanned envelope came from. The
	// payload deliberately carries no credential id, so the signature is the
	// only handle a scanner presents.
	FindBySignature(ctx context.Context, signature string) (*Record, error)
	Revoke(ctx context.Context, credentialID id.CredentialID, reason string, at time.Time) error
	ListByIssuer(ctx context.Context, issuerID id.IdentityID) ([]Record, error)
}
