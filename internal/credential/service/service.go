// Package service implements credential issuance and credential-level
// revocation.
package service

import (
	"context"
	"errors"
	"log/slog"

	"pharmatrust/internal/credential"
	"pharmatrust/internal/identity"
	"pharmatrust/internal/identity/keystore"
	"pharmatrust/internal/medicine"
	"pharmatrust/internal/signing"
	id "pharmatrust/pkg/domain"
	dErrors "pharmatrust/pkg/domain-errors"
	"pharmatrust/pkg/platform/sentinel"
	"pharmatrust/pkg/requestcontext"
)

// IdentityDirectory is the slice of the identity store issuance needs.
type IdentityDirectory interface {
	FindByID(ctx context.Context, identityID id.IdentityID) (*identity.Identity, error)
}

type Service struct {
	store      credential.Store
	identities IdentityDirectory
	keys       keystore.Store
	catalog    medicine.Catalog
	logger     *slog.Logger
}

func New(store credential.Store, identities IdentityDirectory, keys keystore.Store, catalog medicine.Catalog, logger *slog.Logger) (*Service, error) {
	if store == nil || identities == nil || keys == nil || catalog == nil {
		return nil, errors.New("store, identity directory, key store and catalog are required")
	}
	if logger == nil {
		return nil, errors.New("logger is required")
	}
	return &Service{store: store, identities: identities, keys: keys, catalog: catalog, logger: logger}, nil
}

// IssueRequest carries the issuance inputs. BatchNote is optional free text
// that ends up inside the signed payload.
type IssueRequest struct {
	MedicineID id.MedicineID
	IssuerID   id.IdentityID
	BatchNote  string
}

// Issue mints a signed credential for one catalog entry.
//
// The issuer must be an approved identity holding an active private key, and
// the catalog entry must belong to that issuer. The returned envelope is the
// scannable form: the signed fields plus the detached signature.
func (s *Service) Issue(ctx context.Context, req IssueRequest) (*credential.Record, map[string]any, error) {
	ident, err := s.identities.FindByID(ctx, req.IssuerID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, nil, dErrors.New(dErrors.CodeNotFound, "issuing identity not found")
		}
		return nil, nil, dErrors.Wrap(dErrors.CodeInternal, "load issuing identity", err)
	}
	if ident.State != identity.StateApproved {
		return nil, nil, dErrors.New(dErrors.CodeIdentityNotApproved, "only approved identities can issue credentials")
	}

	privPEM, err := s.keys.Get(ctx, req.IssuerID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, nil, dErrors.New(dErrors.CodeNoPrivateKey, "identity holds no signing key")
		}
		return nil, nil, dErrors.Wrap(dErrors.CodeInternal, "load private key", err)
	}

	med, err := s.catalog.GetMedicine(ctx, req.MedicineID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, nil, dErrors.New(dErrors.CodeNotFound, "medicine not found")
		}
		return nil, nil, dErrors.Wrap(dErrors.CodeInternal, "load medicine", err)
	}
	if med.SellerID != req.IssuerID {
		return nil, nil, dErrors.New(dErrors.CodeForbidden, "medicine belongs to a different seller")
	}

	issuedAt := requestcontext.Now(ctx)
	payload := credential.BuildPayload(*med, req.IssuerID, issuedAt, req.BatchNote)

	canonical, err := signing.Encode(payload)
	if err != nil {
		return nil, nil, dErrors.Wrap(dErrors.CodeInternal, "encode payload", err)
	}
	signer, err := signing.NewSigner(privPEM)
	if err != nil {
		return nil, nil, dErrors.Wrap(dErrors.CodeInternal, "load signer", err)
	}
	sig, err := signer.Sign(payload)
	if err != nil {
		return nil, nil, dErrors.Wrap(dErrors.CodeInternal, "sign payload", err)
	}

	rec := credential.Record{
		ID:         id.NewCredentialID(),
		MedicineID: med.ID,
		IssuerID:   req.IssuerID,
		Payload:    canonical,
		Signature:  sig,
		IssuedAt:   issuedAt,
	}
	if err := s.store.Save(ctx, rec); err != nil {
		return nil, nil, dErrors.Wrap(dErrors.CodeInternal, "persist credential", err)
	}

	envelope, err := rec.Envelope()
	if err != nil {
		return nil, nil, dErrors.Wrap(dErrors.CodeInternal, "build envelope", err)
	}

	s.logger.InfoContext(ctx, "credential issued",
		"credential_id", rec.ID,
		"medicine_id", med.ID,
		"issuer_id", req.IssuerID,
	)
	return &rec, envelope, nil
}

// Revoke marks one credential as withdrawn. First revocation wins; repeated
// calls are no-ops. Key-level revocation is a separate mechanism and is not
// touched here.
func (s *Service) Revoke(ctx context.Context, credentialID id.CredentialID, reason string) error {
	if reason == "" {
		return dErrors.New(dErrors.CodeInvalidInput, "revocation reason is required")
	}
	err := s.store.Revoke(ctx, credentialID, reason, requestcontext.Now(ctx))
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.New(dErrors.CodeNotFound, "credential not found")
		}
		return dErrors.Wrap(dErrors.CodeInternal, "revoke credential", err)
	}
	s.logger.InfoContext(ctx, "credential revoked", "credential_id", credentialID, "reason", reason)
	return nil
}

// Get returns one credential record.
func (s *Service) Get(ctx context.Context, credentialID id.CredentialID) (*credential.Record, error) {
	rec, err := s.store.FindByID(ctx, credentialID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "credential not found")
		}
		return nil, dErrors.Wrap(dErrors.CodeInternal, "load credential", err)
	}
	return rec, nil
}

// ListByIssuer returns an issuer's credentials, newest first.
func (s *Service) ListByIssuer(ctx context.Context, issuerID id.IdentityID) ([]credential.Record, error) {
	recs, err := s.store.ListByIssuer(ctx, issuerID)
	if err != nil {
		return nil, dErrors.Wrap(dErrors.CodeInternal, "list credentials", err)
	}
	return recs, nil
}
