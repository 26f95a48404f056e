package service

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pharmatrust/internal/identity"
	"pharmatrust/internal/identity/keystore"
	"pharmatrust/internal/revocation"
	id "pharmatrust/pkg/domain"
	dErrors "pharmatrust/pkg/domain-errors"
)

type fixture struct {
	svc      *Service
	store    *identity.InMemoryStore
	keys     *keystore.InMemoryStore
	registry *revocation.InMemoryRegistry
	admin    id.UserID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := identity.NewInMemoryStore()
	keys := keystore.NewInMemoryStore()
	registry := revocation.NewInMemoryRegistry()

	svc, err := New(store, keys, registry, nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)

	return &fixture{svc: svc, store: store, keys: keys, registry: registry, admin: id.NewUserID()}
}

func (f *fixture) seed(t *testing.T, state identity.State) id.IdentityID {
	t.Helper()
	ident := identity.Identity{
		ID:            id.NewIdentityID(),
		UserID:        id.NewUserID(),
		CompanyName:   "Acme Pharma Ltd",
		LicenseNumber: "DL-2093-A",
		State:         state,
		CreatedAt:     time.Now().UTC(),
	}
	require.NoError(t, f.store.Save(context.Background(), ident))
	return ident.ID
}

func TestTransition_HappyPath(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	identityID := f.seed(t, identity.StatePending)

	for _, target := range []identity.State{identity.StateViewed, identity.StateVerifying, identity.StateApproved} {
		got, err := f.svc.Transition(ctx, identityID, target, f.admin, "")
		require.NoError(t, err, "transition to %s", target)
		assert.Equal(t, target, got.State)
	}
}

func TestTransition_DoubleApprove(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	identityID := f.seed(t, identity.StateVerifying)

	_, err := f.svc.Transition(ctx, identityID, identity.StateApproved, f.admin, "")
	require.NoError(t, err)

	_, err = f.svc.Transition(ctx, identityID, identity.StateApproved, f.admin, "")
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeAlreadyApproved))
}

func TestTransition_ConcurrentApprovalOneWinner(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	identityID := f.seed(t, identity.StateVerifying)

	const racers = 8
	var wg sync.WaitGroup
	errs := make([]error, racers)
	for i := range racers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = f.svc.Transition(ctx, identityID, identity.StateApproved, f.admin, "")
		}()
	}
	wg.Wait()

	var wins, losses int
	for _, err := range errs {
		if err == nil {
			wins++
			continue
		}
		losses++
		assert.True(t, dErrors.HasCode(err, dErrors.CodeAlreadyApproved), "loser error: %v", err)
	}
	assert.Equal(t, 1, wins)
	assert.Equal(t, racers-1, losses)
}

func TestTransition_ChangesRequiredNeedsRemarks(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	identityID := f.seed(t, identity.StateVerifying)

	_, err := f.svc.Transition(ctx, identityID, identity.StateChangesRequired, f.admin, "")
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeMissingRemarks))

	got, err := f.svc.Transition(ctx, identityID, identity.StateChangesRequired, f.admin, "license scan is illegible")
	require.NoError(t, err)
	assert.Equal(t, identity.StateChangesRequired, got.State)
	assert.Equal(t, "license scan is illegible", got.AdminRemarks)

	// Resubmission returns the identity to the head of the queue.
	got, err = f.svc.Transition(ctx, identityID, identity.StatePending, f.admin, "")
	require.NoError(t, err)
	assert.Equal(t, identity.StatePending, got.State)
}

func TestTransition_TerminalStatesAreFinal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for _, terminal := range []identity.State{identity.StateRejected, identity.StateRevoked} {
		identityID := f.seed(t, terminal)
		for _, target := range []identity.State{
			identity.StatePending, identity.StateViewed, identity.StateVerifying,
			identity.StateApproved, identity.StateChangesRequired,
		} {
			_, err := f.svc.Transition(ctx, identityID, target, f.admin, "why not")
			require.Error(t, err, "%s -> %s must fail", terminal, target)
			assert.True(t, dErrors.HasCode(err, dErrors.CodeConflict))
		}
	}
}

func TestTransition_RevokeOnlyFromApproved(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	identityID := f.seed(t, identity.StateVerifying)
	_, err := f.svc.Transition(ctx, identityID, identity.StateRevoked, f.admin, "fraud")
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeConflict))
}

func TestTransition_RevokeAppendsKeyToRegistry(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	identityID := f.seed(t, identity.StateApproved)

	pubPEM, err := f.svc.GenerateKeys(ctx, identityID, f.admin)
	require.NoError(t, err)

	got, err := f.svc.Transition(ctx, identityID, identity.StateRevoked, f.admin, "license withdrawn by regulator")
	require.NoError(t, err)
	require.NotNil(t, got.Revocation)
	assert.Equal(t, "license withdrawn by regulator", got.Revocation.Reason)

	entry, err := f.registry.Find(ctx, pubPEM)
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, "license withdrawn by regulator", entry.Reason)
	assert.Equal(t, f.admin, entry.RevokedBy)
}

func TestTransition_RevokeWithoutKeyLeavesRegistryEmpty(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	identityID := f.seed(t, identity.StateApproved)

	_, err := f.svc.Transition(ctx, identityID, identity.StateRevoked, f.admin, "fraud")
	require.NoError(t, err)

	entries, err := f.registry.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

// interleavingStore fires a hook once at a chosen store operation so tests can
// wedge a competing service call into the middle of another one.
type interleavingStore struct {
	identity.Store
	beforeUpdateState func()
	beforeSetKey      func()
	fired             bool
}

func (s *interleavingStore) UpdateState(ctx context.Context, identityID id.IdentityID, from, to identity.State, fields identity.UpdateFields) (*identity.Identity, error) {
	if s.beforeUpdateState != nil && !s.fired {
		s.fired = true
		s.beforeUpdateState()
	}
	return s.Store.UpdateState(ctx, identityID, from, to, fields)
}

func (s *interleavingStore) SetPublicKey(ctx context.Context, identityID id.IdentityID, publicKeyPEM string) error {
	if s.beforeSetKey != nil && !s.fired {
		s.fired = true
		s.beforeSetKey()
	}
	return s.Store.SetPublicKey(ctx, identityID, publicKeyPEM)
}

func TestTransition_RevokeAppendsKeyInstalledDuringRace(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	identityID := f.seed(t, identity.StateApproved)

	_, err := f.svc.GenerateKeys(ctx, identityID, f.admin)
	require.NoError(t, err)

	// Re-key lands between the revoke's state read and its compare-and-set.
	// The revoke must append the key the identity holds when the write
	// commits, not the one it read.
	wrapped := &interleavingStore{Store: f.store}
	svc, err := New(wrapped, f.keys, f.registry, nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	wrapped.beforeUpdateState = func() {
		_, rekeyErr := svc.GenerateKeys(ctx, identityID, f.admin)
		require.NoError(t, rekeyErr)
	}

	_, err = svc.Transition(ctx, identityID, identity.StateRevoked, f.admin, "fraud")
	require.NoError(t, err)

	after, err := svc.Get(ctx, identityID)
	require.NoError(t, err)
	require.NotEmpty(t, after.PublicKeyPEM)

	ok, err := f.registry.Contains(ctx, after.PublicKeyPEM)
	require.NoError(t, err)
	assert.True(t, ok, "revoked identity's key of record must be in the registry")
}

func TestGenerateKeys_LosesRaceAgainstRevocation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	identityID := f.seed(t, identity.StateApproved)

	oldPEM, err := f.svc.GenerateKeys(ctx, identityID, f.admin)
	require.NoError(t, err)

	// Revocation lands between the re-key's approval check and its key
	// write. The fresh key must never become the key of record.
	wrapped := &interleavingStore{Store: f.store}
	svc, err := New(wrapped, f.keys, f.registry, nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	wrapped.beforeSetKey = func() {
		_, revokeErr := svc.Transition(ctx, identityID, identity.StateRevoked, f.admin, "fraud")
		require.NoError(t, revokeErr)
	}

	_, err = svc.GenerateKeys(ctx, identityID, f.admin)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeIdentityNotApproved))

	after, err := svc.Get(ctx, identityID)
	require.NoError(t, err)
	assert.Equal(t, oldPEM, after.PublicKeyPEM, "revoked identity keeps its revoked key of record")

	ok, err := f.registry.Contains(ctx, after.PublicKeyPEM)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestTransition_UnknownIdentity(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Transition(context.Background(), id.NewIdentityID(), identity.StateViewed, f.admin, "")
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
}

func TestGenerateKeys_RequiresApproval(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for _, state := range []identity.State{
		identity.StatePending, identity.StateViewed, identity.StateVerifying,
		identity.StateRejected, identity.StateChangesRequired, identity.StateRevoked,
	} {
		identityID := f.seed(t, state)
		_, err := f.svc.GenerateKeys(ctx, identityID, f.admin)
		require.Error(t, err, "state %s must not receive keys", state)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeIdentityNotApproved))
	}
}

func TestGenerateKeys_StoresKeyAndPublishesPublicPEM(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	identityID := f.seed(t, identity.StateApproved)

	pubPEM, err := f.svc.GenerateKeys(ctx, identityID, f.admin)
	require.NoError(t, err)
	assert.Contains(t, pubPEM, "BEGIN PUBLIC KEY")

	ident, err := f.svc.Get(ctx, identityID)
	require.NoError(t, err)
	assert.Equal(t, pubPEM, ident.PublicKeyPEM)
	assert.True(t, ident.HasActiveKey())

	privPEM, err := f.keys.Get(ctx, identityID)
	require.NoError(t, err)
	assert.Contains(t, privPEM, "BEGIN PRIVATE KEY")
	assert.NotContains(t, pubPEM, "PRIVATE")
}

func TestGenerateKeys_SupersedeRevokesOldKey(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	identityID := f.seed(t, identity.StateApproved)

	oldPEM, err := f.svc.GenerateKeys(ctx, identityID, f.admin)
	require.NoError(t, err)

	newPEM, err := f.svc.GenerateKeys(ctx, identityID, f.admin)
	require.NoError(t, err)
	require.NotEqual(t, oldPEM, newPEM)

	entry, err := f.registry.Find(ctx, oldPEM)
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, revocation.ReasonSuperseded, entry.Reason)

	ok, err := f.registry.Contains(ctx, newPEM)
	require.NoError(t, err)
	assert.False(t, ok, "fresh key must not be revoked")

	ident, err := f.svc.Get(ctx, identityID)
	require.NoError(t, err)
	assert.Equal(t, newPEM, ident.PublicKeyPEM)
}

func TestRevokeKey_Idempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	pem := "-----BEGIN PUBLIC KEY-----\nzzz\n-----END PUBLIC KEY-----\n"
	require.NoError(t, f.svc.RevokeKey(ctx, pem, "compromised", f.admin))
	require.NoError(t, f.svc.RevokeKey(ctx, pem, "different reason", f.admin))

	entry, err := f.registry.Find(ctx, pem)
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, "compromised", entry.Reason)
}

func TestRevokeKey_EmptyKeyRejected(t *testing.T) {
	f := newFixture(t)
	err := f.svc.RevokeKey(context.Background(), "", "compromised", f.admin)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
}
