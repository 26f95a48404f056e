// Package keystore persists private signing keys. Keys are write-once per
// slot and readable only by the issuance path; nothing in the verification
// pipeline can reach this store, and no API here serializes a key into a
// response.
package keystore

import (
	"context"

	id "pharmatrust/pkg/domain"
)

// Store holds one private key PEM per identity.
//
// Put is write-once: storing a key for an identity that already holds one
// fails with sentinel.ErrConflict. Replace exists solely for the
// supersede-and-revoke re-keying path, where the previous key has already
// been appended to the revocation registry.
type Store interface {
	Put(ctx context.Context, identityID id.IdentityID, privateKeyPEM string) error
	Replace(ctx context.Context, identityID id.IdentityID, privateKeyPEM string) error
	Get(ctx context.Context, identityID id.IdentityID) (string, error)
}
