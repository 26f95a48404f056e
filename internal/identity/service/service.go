// Package service implements the identity lifecycle operations: admin-driven
// state transitions, key issuance for approved identities, and key
// revocation.
package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"pharmatrust/internal/identity"
	"pharmatrust/internal/identity/keystore"
	"pharmatrust/internal/revocation"
	"pharmatrust/internal/signing"
	id "pharmatrust/pkg/domain"
	dErrors "pharmatrust/pkg/domain-errors"
	"pharmatrust/pkg/platform/sentinel"
	"pharmatrust/pkg/platform/tx"
	"pharmatrust/pkg/requestcontext"
)

// Service orchestrates lifecycle transitions. All transition authority lies
// with an administrator capability enforced at the transport layer; the
// service enforces the state machine itself.
type Service struct {
	store    identity.Store
	keys     keystore.Store
	registry revocation.Registry
	db       *sql.DB // nil for in-memory wiring; tx.Within degrades gracefully
	logger   *slog.Logger
}

func New(store identity.Store, keys keystore.Store, registry revocation.Registry, db *sql.DB, logger *slog.Logger) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("identity store is required")
	}
	if keys == nil {
		return nil, fmt.Errorf("key store is required")
	}
	if registry == nil {
		return nil, fmt.Errorf("revocation registry is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	return &Service{store: store, keys: keys, registry: registry, db: db, logger: logger}, nil
}

// Get returns the identity, including lifecycle state and remarks.
func (s *Service) Get(ctx context.Context, identityID id.IdentityID) (*identity.Identity, error) {
	ident, err := s.store.FindByID(ctx, identityID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "identity not found")
		}
		return nil, dErrors.Wrap(dErrors.CodeInternal, "load identity", err)
	}
	return ident, nil
}

// Transition moves an identity to the target lifecycle state, enforcing the
// transition table. The write is a compare-and-set on the current state: of
// two concurrent identical transitions, exactly one succeeds and the other
// observes the post-transition state.
//
// approved → revoked additionally appends the identity's public key to the
// revocation registry, atomically with the state change.
func (s *Service) Transition(ctx context.Context, identityID id.IdentityID, target identity.State, actorID id.UserID, remarks string) (*identity.Identity, error) {
	ident, err := s.Get(ctx, identityID)
	if err != nil {
		return nil, err
	}

	if target == identity.StateChangesRequired && remarks == "" {
		return nil, dErrors.New(dErrors.CodeMissingRemarks, "changes_required needs a remarks payload")
	}
	if target == identity.StateApproved && ident.State == identity.StateApproved {
		return nil, dErrors.New(dErrors.CodeAlreadyApproved, "identity is already approved")
	}
	if !identity.CanTransition(ident.State, target) {
		return nil, dErrors.New(dErrors.CodeConflict,
			fmt.Sprintf("cannot transition from %s to %s", ident.State, target))
	}

	fields := identity.UpdateFields{Remarks: remarks, ActorID: actorID, At: requestcontext.Now(ctx)}

	var updated *identity.Identity
	err = tx.Within(ctx, s.db, func(ctx context.Context) error {
		updated, err = s.store.UpdateState(ctx, identityID, ident.State, target, fields)
		if err != nil {
			return err
		}
		// The appended key must be the key of record at the moment the CAS
		// succeeds, not the one read before it: a concurrent re-key between
		// the read and the write would otherwise leave the fresh key trusted.
		if target == identity.StateRevoked && updated.PublicKeyPEM != "" {
			return s.registry.Append(ctx, revocation.Entry{
				PublicKeyPEM: updated.PublicKeyPEM,
				Reason:       reasonOrDefault(remarks),
				RevokedBy:    actorID,
				RevokedAt:    fields.At,
			})
		}
		return nil
	})
	if err != nil {
		return nil, s.translateTransitionErr(ctx, identityID, target, err)
	}

	s.logger.InfoContext(ctx, "identity transitioned",
		"identity_id", identityID,
		"from", ident.State,
		"to", target,
		"actor_id", actorID,
	)
	return updated, nil
}

// translateTransitionErr maps a lost compare-and-set to the domain error the
// caller expects: a concurrent approve that lost the race reports
// already_approved, everything else reports the state conflict.
func (s *Service) translateTransitionErr(ctx context.Context, identityID id.IdentityID, target identity.State, err error) error {
	if errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.New(dErrors.CodeNotFound, "identity not found")
	}
	if errors.Is(err, sentinel.ErrConflict) {
		if target == identity.StateApproved {
			if current, findErr := s.store.FindByID(ctx, identityID); findErr == nil && current.State == identity.StateApproved {
				return dErrors.New(dErrors.CodeAlreadyApproved, "identity is already approved")
			}
		}
		return dErrors.New(dErrors.CodeConflict, "identity state changed concurrently")
	}
	return dErrors.Wrap(dErrors.CodeInternal, "transition identity", err)
}

// GenerateKeys issues a fresh ECDSA keypair for an approved identity and
// returns the public key PEM. The private key goes write-once into secure
// storage and never leaves it.
//
// Re-keying policy: when the identity already holds an active key, the old
// key is appended to the revocation registry with reason "superseded" before
// the new key becomes visible. Requesting new keys is therefore always safe
// and never leaves two keys trusted at once.
func (s *Service) GenerateKeys(ctx context.Context, identityID id.IdentityID, actorID id.UserID) (string, error) {
	ident, err := s.Get(ctx, identityID)
	if err != nil {
		return "", err
	}
	if ident.State != identity.StateApproved {
		return "", dErrors.New(dErrors.CodeIdentityNotApproved, "identity must be approved before generating keys")
	}

	pair, err := signing.GenerateKeyPair()
	if err != nil {
		return "", dErrors.Wrap(dErrors.CodeInternal, "generate keypair", err)
	}

	superseding := ident.PublicKeyPEM != ""
	if superseding {
		// Revoke the old key first: there must be no window where the old
		// key is still trusted but no longer the identity's key of record.
		entry := revocation.Entry{
			PublicKeyPEM: ident.PublicKeyPEM,
			Reason:       revocation.ReasonSuperseded,
			RevokedBy:    actorID,
			RevokedAt:    requestcontext.Now(ctx),
		}
		if err := s.registry.Append(ctx, entry); err != nil {
			return "", dErrors.Wrap(dErrors.CodeInternal, "revoke superseded key", err)
		}
		if err := s.keys.Replace(ctx, identityID, pair.PrivateKeyPEM); err != nil {
			return "", dErrors.Wrap(dErrors.CodeInternal, "store private key", err)
		}
	} else {
		if err := s.keys.Put(ctx, identityID, pair.PrivateKeyPEM); err != nil {
			if errors.Is(err, sentinel.ErrConflict) {
				return "", dErrors.New(dErrors.CodeConflict, "key material already exists for identity")
			}
			return "", dErrors.Wrap(dErrors.CodeInternal, "store private key", err)
		}
	}

	if err := s.store.SetPublicKey(ctx, identityID, pair.PublicKeyPEM); err != nil {
		// The store only records keys for approved identities. A conflict here
		// means a revocation landed after the approval check above; the fresh
		// key must not become the key of record.
		if errors.Is(err, sentinel.ErrConflict) {
			return "", dErrors.New(dErrors.CodeIdentityNotApproved, "identity left the approved state during key issuance")
		}
		return "", dErrors.Wrap(dErrors.CodeInternal, "record public key", err)
	}

	s.logger.InfoContext(ctx, "signing keys issued",
		"identity_id", identityID,
		"superseded", superseding,
	)
	return pair.PublicKeyPEM, nil
}

// RevokeKey appends a public key to the revocation registry. Idempotent: the
// second revocation of the same key is a no-op.
func (s *Service) RevokeKey(ctx context.Context, publicKeyPEM, reason string, actorID id.UserID) error {
	if publicKeyPEM == "" {
		return dErrors.New(dErrors.CodeInvalidInput, "public key is required")
	}
	err := s.registry.Append(ctx, revocation.Entry{
		PublicKeyPEM: publicKeyPEM,
		Reason:       reasonOrDefault(reason),
		RevokedBy:    actorID,
		RevokedAt:    requestcontext.Now(ctx),
	})
	if err != nil {
		return dErrors.Wrap(dErrors.CodeInternal, "append revocation entry", err)
	}
	return nil
}

// ListRevokedKeys returns the registry contents, newest first.
func (s *Service) ListRevokedKeys(ctx context.Context) ([]revocation.Entry, error) {
	entries, err := s.registry.List(ctx)
	if err != nil {
		return nil, dErrors.Wrap(dErrors.CodeInternal, "list revoked keys", err)
	}
	return entries, nil
}

func reasonOrDefault(reason string) string {
	if reason == "" {
		return revocation.ReasonIdentityRevoked
	}
	return reason
}
