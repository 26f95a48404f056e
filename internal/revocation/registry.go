// Package revocation holds the append-only registry of revoked signing keys.
// A key's presence here is permanent: there is no un-revoke, and entries are
// keyed by the exact public-key encoding used at signing time, not by the
// identity that owned the key. A leaked key presented without its original
// identity context must still be caught.
package revocation

import (
	"context"
	"time"

	id "pharmatrust/pkg/domain"
)

// Entry records one revoked public key.
type Entry struct {
	PublicKeyPEM string
	Reason       string
	RevokedBy    id.UserID
	RevokedAt    time.Time
}

// Well-known revocation reasons. Reason is free text; these cover the
// transitions the engine itself performs.
const (
	ReasonSuperseded      = "superseded"
	ReasonIdentityRevoked = "identity_revoked"
)

// Registry is the append-only ledger consulted before trusting any signature.
//
// Append is idempotent: appending an already-revoked key is a no-op, not an
// error, so a retried revoke after a partial failure converges. Contains
// matches on the exact key encoding.
type Registry interface {
	Append(ctx context.Context, entry Entry) error
	Contains(ctx context.Context, publicKeyPEM string) (bool, error)
	// Find returns the stored entry for a revoked key, or nil when the key
	// is not revoked. The verification pipeline uses it to explain Revoked
	// outcomes.
	Find(ctx context.Context, publicKeyPEM string) (*Entry, error)
	// List returns all entries, newest first. Administrative surface.
	List(ctx context.Context) ([]Entry, error)
}
