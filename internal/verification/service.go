package verification

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"pharmatrust/internal/credential"
	"pharmatrust/internal/identity"
	"pharmatrust/internal/medicine"
	"pharmatrust/internal/revocation"
	"pharmatrust/internal/scanlog"
	"pharmatrust/internal/signing"
	id "pharmatrust/pkg/domain"
	dErrors "pharmatrust/pkg/domain-errors"
	"pharmatrust/pkg/platform/sentinel"
	"pharmatrust/pkg/requestcontext"
)

var tracer = otel.Tracer("pharmatrust/verification")

// IdentityDirectory resolves the declared issuer of a scanned payload.
type IdentityDirectory interface {
	FindByID(ctx context.Context, identityID id.IdentityID) (*identity.Identity, error)
}

// CredentialIndex resolves the stored record behind a scanned signature, used
// only to correlate the audit entry. Trust never depends on it.
type CredentialIndex interface {
	FindBySignature(ctx context.Context, signature string) (*credential.Record, error)
}

// Service runs the scan pipeline. It holds no per-scan state; every scan
// re-evaluates live registry and catalog state, so revoking a key or pulling
// a catalog entry takes effect on the very next scan.
type Service struct {
	identities  IdentityDirectory
	registry    revocation.Registry
	catalog     medicine.Catalog
	credentials CredentialIndex
	audit       scanlog.Store
	events      *scanlog.Publisher
	logger      *slog.Logger
}

func New(identities IdentityDirectory, registry revocation.Registry, catalog medicine.Catalog, credentials CredentialIndex, audit scanlog.Store, events *scanlog.Publisher, logger *slog.Logger) (*Service, error) {
	if identities == nil || registry == nil || catalog == nil || credentials == nil || audit == nil {
		return nil, errors.New("identity directory, registry, catalog, credential index and audit store are required")
	}
	if logger == nil {
		return nil, errors.New("logger is required")
	}
	return &Service{
		identities:  identities,
		registry:    registry,
		catalog:     catalog,
		credentials: credentials,
		audit:       audit,
		events:      events,
		logger:      logger,
	}, nil
}

// internalOutcome marks audit entries for scans that died on a collaborator
// failure instead of reaching a decisive outcome. It is an audit-trail value
// only and never appears in a Result.
const internalOutcome = "internal_error"

// VerifyScanned runs the checks in strict order, short-circuiting on the
// first decisive outcome:
//
//  1. parse the payload           → malformed_input
//  2. resolve the declared issuer → unknown_issuer
//  3. issuer has no key on record → unknown_issuer
//  4. issuer key in the registry  → revoked (never reported as counterfeit)
//  5. signature check             → counterfeit
//  6. resolve the medicine        → unknown_subject
//  7. catalog entry not approved  → unverified_catalog_entry
//  8. expiry date passed          → expired
//  9. otherwise                   → verified
//
// Exactly one audit entry is appended per invocation, decisive or not. A
// collaborator failure aborts the scan with an internal error; the attempt is
// still recorded.
func (s *Service) VerifyScanned(ctx context.Context, raw []byte) (Result, error) {
	ctx, span := tracer.Start(ctx, "verification.scan")
	defer span.End()
	start := time.Now()

	result, credID, scanErr := s.run(ctx, raw)

	scanDurationMs.Observe(float64(time.Since(start).Microseconds()) / 1000)
	recorded := string(result.Outcome)
	if scanErr != nil {
		recorded = internalOutcome
	} else {
		scanOutcomes.WithLabelValues(recorded).Inc()
	}
	span.SetAttributes(attribute.String("scan.outcome", recorded))

	entry := scanlog.Entry{
		ID:           uuid.New(),
		CredentialID: credID,
		RawPayload:   raw,
		Outcome:      recorded,
		Detail:       result.Detail.encode(),
		At:           requestcontext.Now(ctx),
	}
	if userID := requestcontext.UserID(ctx); !userID.IsNil() {
		entry.ScannerUserID = &userID
	}
	entry = entry.WithClientInfo(requestcontext.ClientIP(ctx), requestcontext.UserAgent(ctx))

	if err := s.audit.Append(ctx, entry); err != nil {
		// The audit trail is part of the contract; a scan whose record cannot
		// be written fails as a whole.
		return Result{}, dErrors.Wrap(dErrors.CodeInternal, "append scan audit entry", err)
	}
	s.events.Enqueue(entry)

	if scanErr != nil {
		return Result{}, scanErr
	}
	s.logger.InfoContext(ctx, "scan verified",
		"outcome", result.Outcome,
		"entry_id", entry.ID,
	)
	return result, nil
}

// run walks steps 1–9 and returns the decisive outcome, plus the credential
// the signature resolved to when one exists.
func (s *Service) run(ctx context.Context, raw []byte) (Result, *id.CredentialID, error) {
	var d Detail

	// Step 1: parse.
	payload, err := signing.DecodeObject(raw)
	if err != nil {
		d.ParseError = err.Error()
		return Result{Outcome: OutcomeMalformedInput, Detail: d}, nil, nil
	}

	sig, _ := payload[signing.SignatureField].(string)
	delete(payload, signing.SignatureField)
	credID, err := s.resolveCredential(ctx, sig)
	if err != nil {
		return Result{Detail: d}, nil, err
	}

	// Step 2: resolve the declared issuer.
	issuerRaw, _ := payload[credential.FieldSellerID].(string)
	issuerID, err := id.ParseIdentityID(issuerRaw)
	if err != nil {
		d.Note = "payload carries no resolvable issuer id"
		return Result{Outcome: OutcomeUnknownIssuer, Detail: d}, credID, nil
	}
	d.IssuerID = issuerID.String()

	issuer, err := s.identities.FindByID(ctx, issuerID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return Result{Outcome: OutcomeUnknownIssuer, Detail: d}, credID, nil
		}
		return Result{Detail: d}, credID, dErrors.Wrap(dErrors.CodeInternal, "resolve issuer", err)
	}
	d.IssuerState = issuer.State.String()

	// Step 3: an issuer without a key on record cannot have issued anything.
	if issuer.PublicKeyPEM == "" {
		d.Note = "issuer holds no public key"
		return Result{Outcome: OutcomeUnknownIssuer, Detail: d}, credID, nil
	}

	// Step 4: revocation precedes the signature check. A revoked key must
	// never be reported as counterfeit; the distinction matters operationally.
	revEntry, err := s.registry.Find(ctx, issuer.PublicKeyPEM)
	if err != nil {
		return Result{Detail: d}, credID, dErrors.Wrap(dErrors.CodeInternal, "check revocation registry", err)
	}
	if revEntry != nil {
		d.KeyRevoked = true
		d.RevocationReason = revEntry.Reason
		return Result{Outcome: OutcomeRevoked, Detail: d}, credID, nil
	}

	// Step 5: signature.
	if sig == "" {
		d.SignatureState = SignatureMissing
		return Result{Outcome: OutcomeCounterfeit, Detail: d}, credID, nil
	}
	valid, err := signing.Verify(payload, sig, issuer.PublicKeyPEM)
	if err != nil {
		d.SignatureState = SignatureMalformed
		return Result{Outcome: OutcomeCounterfeit, Detail: d}, credID, nil
	}
	if !valid {
		d.SignatureState = SignatureMismatch
		return Result{Outcome: OutcomeCounterfeit, Detail: d}, credID, nil
	}
	d.SignatureState = SignatureValid

	// Step 6: resolve the medicine.
	medRaw, _ := payload[credential.FieldMedicineID].(string)
	medicineID, err := id.ParseMedicineID(medRaw)
	if err != nil {
		d.Note = "payload carries no resolvable medicine id"
		return Result{Outcome: OutcomeUnknownSubject, Detail: d}, credID, nil
	}
	d.MedicineID = medicineID.String()

	med, err := s.catalog.GetMedicine(ctx, medicineID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return Result{Outcome: OutcomeUnknownSubject, Detail: d}, credID, nil
		}
		return Result{Detail: d}, credID, dErrors.Wrap(dErrors.CodeInternal, "resolve medicine", err)
	}
	d.CatalogState = string(med.ApprovalState)
	d.ExpiryDate = med.ExpiryDate.Format(medicine.DateFormat)

	// Step 7: a valid signature from a trusted issuer still does not vouch
	// for a medicine the catalog never accepted.
	if med.ApprovalState != medicine.ApprovalApproved {
		return Result{Outcome: OutcomeUnverifiedCatalogEntry, Detail: d}, credID, nil
	}

	// Step 8: expiry.
	if med.Expired(requestcontext.Now(ctx)) {
		return Result{Outcome: OutcomeExpired, Detail: d}, credID, nil
	}

	// Step 9.
	return Result{Outcome: OutcomeVerified, Detail: d}, credID, nil
}

func (s *Service) resolveCredential(ctx context.Context, sig string) (*id.CredentialID, error) {
	if sig == "" {
		return nil, nil
	}
	rec, err := s.credentials.FindBySignature(ctx, sig)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, nil
		}
		return nil, dErrors.Wrap(dErrors.CodeInternal, "resolve credential", err)
	}
	cid := rec.ID
	return &cid, nil
}

// History returns a scanner's recent audit entries, newest first.
func (s *Service) History(ctx context.Context, userID id.UserID, limit int) ([]scanlog.Entry, error) {
	if limit < 0 {
		return nil, dErrors.New(dErrors.CodeInvalidInput, fmt.Sprintf("invalid history limit %d", limit))
	}
	entries, err := s.audit.ListByUser(ctx, userID, limit)
	if err != nil {
		return nil, dErrors.Wrap(dErrors.CodeInternal, "list scan history", err)
	}
	return entries, nil
}
