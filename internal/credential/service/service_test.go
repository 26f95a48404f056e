package service

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pharmatrust/internal/credential"
	"pharmatrust/internal/identity"
	"pharmatrust/internal/identity/keystore"
	"pharmatrust/internal/medicine"
	"pharmatrust/internal/signing"
	id "pharmatrust/pkg/domain"
	dErrors "pharmatrust/pkg/domain-errors"
	"pharmatrust/pkg/requestcontext"
)

type fixture struct {
	svc        *Service
	identities *identity.InMemoryStore
	keys       *keystore.InMemoryStore
	catalog    *medicine.InMemoryStore
	records    *credential.InMemoryStore
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		identities: identity.NewInMemoryStore(),
		keys:       keystore.NewInMemoryStore(),
		catalog:    medicine.NewInMemoryStore(),
		records:    credential.NewInMemoryStore(),
	}
	svc, err := New(f.records, f.identities, f.keys, f.catalog, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	f.svc = svc
	return f
}

// seedSeller creates an identity in the given state. withKey additionally
// issues a keypair the way the identity service would.
func (f *fixture) seedSeller(t *testing.T, state identity.State, withKey bool) id.IdentityID {
	t.Helper()
	ctx := context.Background()
	ident := identity.Identity{
		ID:          id.NewIdentityID(),
		UserID:      id.NewUserID(),
		CompanyName: "Vitalis Labs",
		State:       state,
		CreatedAt:   time.Now().UTC(),
	}
	if withKey {
		pair, err := signing.GenerateKeyPair()
		require.NoError(t, err)
		ident.PublicKeyPEM = pair.PublicKeyPEM
		require.NoError(t, f.keys.Put(ctx, ident.ID, pair.PrivateKeyPEM))
	}
	require.NoError(t, f.identities.Save(ctx, ident))
	return ident.ID
}

func (f *fixture) seedMedicine(t *testing.T, sellerID id.IdentityID, state medicine.ApprovalState) id.MedicineID {
	t.Helper()
	med := medicine.Medicine{
		ID:            id.NewMedicineID(),
		SellerID:      sellerID,
		Name:          "Paracetamol 500",
		BatchNo:       "B-2031",
		MfgDate:       time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC),
		ExpiryDate:    time.Date(2027, 1, 10, 0, 0, 0, 0, time.UTC),
		ApprovalState: state,
		Dosage:        "500mg",
		Strength:      "tablet",
	}
	require.NoError(t, f.catalog.Save(context.Background(), med))
	return med.ID
}

func TestIssue_SignedEnvelopeVerifies(t *testing.T) {
	f := newFixture(t)
	sellerID := f.seedSeller(t, identity.StateApproved, true)
	medID := f.seedMedicine(t, sellerID, medicine.ApprovalApproved)

	issuedAt := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	ctx := requestcontext.WithTime(context.Background(), issuedAt)

	rec, envelope, err := f.svc.Issue(ctx, IssueRequest{MedicineID: medID, IssuerID: sellerID, BatchNote: "cold chain"})
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, issuedAt, rec.IssuedAt)
	assert.False(t, rec.Revoked)

	// Envelope carries the signed fields plus the detached signature.
	assert.Equal(t, medID.String(), envelope[credential.FieldMedicineID])
	assert.Equal(t, sellerID.String(), envelope[credential.FieldSellerID])
	assert.Equal(t, "B-2031", envelope[credential.FieldBatchNo])
	assert.Equal(t, "2027-01-10", envelope[credential.FieldExpiryDate])
	assert.Equal(t, "cold chain", envelope[credential.FieldBatchNote])
	sig, ok := envelope[signing.SignatureField].(string)
	require.True(t, ok)
	require.NotEmpty(t, sig)

	ident, err := f.identities.FindByID(context.Background(), sellerID)
	require.NoError(t, err)

	unsigned := make(map[string]any, len(envelope))
	for k, v := range envelope {
		if k != signing.SignatureField {
			unsigned[k] = v
		}
	}
	valid, err := signing.Verify(unsigned, sig, ident.PublicKeyPEM)
	require.NoError(t, err)
	assert.True(t, valid)

	stored, err := f.records.FindByID(context.Background(), rec.ID)
	require.NoError(t, err)
	assert.Equal(t, rec.Signature, stored.Signature)
}

func TestIssue_RequiresApprovedIdentity(t *testing.T) {
	f := newFixture(t)
	for _, state := range []identity.State{
		identity.StatePending, identity.StateVerifying, identity.StateRejected, identity.StateRevoked,
	} {
		sellerID := f.seedSeller(t, state, false)
		medID := f.seedMedicine(t, sellerID, medicine.ApprovalApproved)

		_, _, err := f.svc.Issue(context.Background(), IssueRequest{MedicineID: medID, IssuerID: sellerID})
		require.Error(t, err, "state %s", state)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeIdentityNotApproved))
	}
}

func TestIssue_RequiresPrivateKey(t *testing.T) {
	f := newFixture(t)
	sellerID := f.seedSeller(t, identity.StateApproved, false)
	medID := f.seedMedicine(t, sellerID, medicine.ApprovalApproved)

	_, _, err := f.svc.Issue(context.Background(), IssueRequest{MedicineID: medID, IssuerID: sellerID})
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeNoPrivateKey))
}

func TestIssue_UnknownMedicine(t *testing.T) {
	f := newFixture(t)
	sellerID := f.seedSeller(t, identity.StateApproved, true)

	_, _, err := f.svc.Issue(context.Background(), IssueRequest{MedicineID: id.NewMedicineID(), IssuerID: sellerID})
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
}

func TestIssue_ForeignMedicineRejected(t *testing.T) {
	f := newFixture(t)
	sellerID := f.seedSeller(t, identity.StateApproved, true)
	otherSeller := f.seedSeller(t, identity.StateApproved, true)
	medID := f.seedMedicine(t, otherSeller, medicine.ApprovalApproved)

	_, _, err := f.svc.Issue(context.Background(), IssueRequest{MedicineID: medID, IssuerID: sellerID})
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeForbidden))
}

func TestRevoke_FirstReasonWins(t *testing.T) {
	f := newFixture(t)
	sellerID := f.seedSeller(t, identity.StateApproved, true)
	medID := f.seedMedicine(t, sellerID, medicine.ApprovalApproved)

	rec, _, err := f.svc.Issue(context.Background(), IssueRequest{MedicineID: medID, IssuerID: sellerID})
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, f.svc.Revoke(ctx, rec.ID, "recalled batch"))
	require.NoError(t, f.svc.Revoke(ctx, rec.ID, "other reason"))

	got, err := f.svc.Get(ctx, rec.ID)
	require.NoError(t, err)
	assert.True(t, got.Revoked)
	assert.Equal(t, "recalled batch", got.RevokedReason)
	require.NotNil(t, got.RevokedAt)
}

func TestRevoke_UnknownCredential(t *testing.T) {
	f := newFixture(t)
	err := f.svc.Revoke(context.Background(), id.NewCredentialID(), "recalled")
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
}

func TestRevoke_RequiresReason(t *testing.T) {
	f := newFixture(t)
	err := f.svc.Revoke(context.Background(), id.NewCredentialID(), "")
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
}
