package httptransport

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pharmatrust/internal/credential"
	credentialservice "pharmatrust/internal/credential/service"
	"pharmatrust/internal/identity"
	"pharmatrust/internal/identity/keystore"
	identityservice "pharmatrust/internal/identity/service"
	"pharmatrust/internal/jwttoken"
	"pharmatrust/internal/medicine"
	"pharmatrust/internal/revocation"
	"pharmatrust/internal/scanlog"
	"pharmatrust/internal/verification"
	id "pharmatrust/pkg/domain"
)

type env struct {
	server *httptest.Server
	tokens *jwttoken.Service

	identities *identity.InMemoryStore
	catalog    *medicine.InMemoryStore

	sellerID     id.IdentityID
	sellerUserID id.UserID
	adminUserID  id.UserID
	medicineID   id.MedicineID
}

// newEnv stands up the router over in-memory stores with one approved,
// key-holding seller and one approved catalog entry.
func newEnv(t *testing.T) *env {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ctx := context.Background()

	e := &env{
		identities:   identity.NewInMemoryStore(),
		catalog:      medicine.NewInMemoryStore(),
		sellerID:     id.NewIdentityID(),
		sellerUserID: id.NewUserID(),
		adminUserID:  id.NewUserID(),
		medicineID:   id.NewMedicineID(),
	}
	keys := keystore.NewInMemoryStore()
	registry := revocation.NewInMemoryRegistry()
	credentials := credential.NewInMemoryStore()
	audit := scanlog.NewInMemoryStore()

	identitySvc, err := identityservice.New(e.identities, keys, registry, nil, logger)
	require.NoError(t, err)
	credentialSvc, err := credentialservice.New(credentials, e.identities, keys, e.catalog, logger)
	require.NoError(t, err)
	pipeline, err := verification.New(e.identities, registry, e.catalog, credentials, audit,
		scanlog.NewPublisher(nil, logger, 0), logger)
	require.NoError(t, err)

	require.NoError(t, e.identities.Save(ctx, identity.Identity{
		ID:     e.sellerID,
		UserID: e.sellerUserID,
		State:  identity.StateVerifying,
	}))
	_, err = identitySvc.Transition(ctx, e.sellerID, identity.StateApproved, e.adminUserID, "")
	require.NoError(t, err)
	_, err = identitySvc.GenerateKeys(ctx, e.sellerID, e.adminUserID)
	require.NoError(t, err)

	require.NoError(t, e.catalog.Save(ctx, medicine.Medicine{
		ID:            e.medicineID,
		SellerID:      e.sellerID,
		Name:          "Ibuprofen 400",
		BatchNo:       "IBU-17",
		MfgDate:       time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC),
		ExpiryDate:    time.Date(2027, 3, 1, 0, 0, 0, 0, time.UTC),
		ApprovalState: medicine.ApprovalApproved,
	}))

	e.tokens = jwttoken.NewService("test-signing-key", "pharmatrust-test")
	router := NewRouter(Deps{
		Identity:     identitySvc,
		Credentials:  credentialSvc,
		Verification: pipeline,
		Tokens:       e.tokens,
		Logger:       logger,
	})
	e.server = httptest.NewServer(router)
	t.Cleanup(e.server.Close)
	return e
}

func (e *env) sellerToken(t *testing.T) string {
	t.Helper()
	token, err := e.tokens.GenerateAccessToken(e.sellerUserID, "seller", e.sellerID.String(), time.Hour)
	require.NoError(t, err)
	return token
}

func (e *env) adminToken(t *testing.T) string {
	t.Helper()
	token, err := e.tokens.GenerateAccessToken(e.adminUserID, "admin", "", time.Hour)
	require.NoError(t, err)
	return token
}

func (e *env) do(t *testing.T, method, path, token string, body any) (*http.Response, []byte) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, e.server.URL+path, &buf)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := e.server.Client().Do(req)
	require.NoError(t, err)
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	resp.Body.Close()
	return resp, raw
}

func TestRouter_IssueThenScanRoundTrip(t *testing.T) {
	e := newEnv(t)

	resp, raw := e.do(t, http.MethodPost, "/credentials", e.sellerToken(t),
		map[string]string{"medicine_id": e.medicineID.String()})
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(raw))

	var issued struct {
		CredentialID string         `json:"credential_id"`
		Envelope     map[string]any `json:"envelope"`
	}
	require.NoError(t, json.Unmarshal(raw, &issued))
	require.NotEmpty(t, issued.CredentialID)
	require.Contains(t, issued.Envelope, "signature")
	assert.NotContains(t, string(raw), "PRIVATE KEY")

	envelope, err := json.Marshal(issued.Envelope)
	require.NoError(t, err)

	// Anonymous scan of the freshly issued envelope.
	req, err := http.NewRequest(http.MethodPost, e.server.URL+"/scan", bytes.NewReader(envelope))
	require.NoError(t, err)
	resp2, err := e.server.Client().Do(req)
	require.NoError(t, err)
	body, err := io.ReadAll(resp2.Body)
	require.NoError(t, err)
	resp2.Body.Close()
	require.Equal(t, http.StatusOK, resp2.StatusCode, string(body))

	var result struct {
		Outcome string `json:"outcome"`
	}
	require.NoError(t, json.Unmarshal(body, &result))
	assert.Equal(t, "verified", result.Outcome)
}

func TestRouter_ScanGarbageIsAnOutcomeNotAnError(t *testing.T) {
	e := newEnv(t)

	resp, err := e.server.Client().Post(e.server.URL+"/scan", "application/json",
		bytes.NewReader([]byte("not a credential at all")))
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	var result struct {
		Outcome string `json:"outcome"`
	}
	require.NoError(t, json.Unmarshal(body, &result))
	assert.Equal(t, "malformed_input", result.Outcome)
}

func TestRouter_IssueRequiresSellerRole(t *testing.T) {
	e := newEnv(t)

	resp, _ := e.do(t, http.MethodPost, "/credentials", "",
		map[string]string{"medicine_id": e.medicineID.String()})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	plainUser, err := e.tokens.GenerateAccessToken(id.NewUserID(), "user", "", time.Hour)
	require.NoError(t, err)
	resp, _ = e.do(t, http.MethodPost, "/credentials", plainUser,
		map[string]string{"medicine_id": e.medicineID.String()})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestRouter_AdminTransitionAndErrorEnvelope(t *testing.T) {
	e := newEnv(t)

	// Second approve must surface the already_approved error envelope.
	resp, raw := e.do(t, http.MethodPost, "/admin/sellers/"+e.sellerID.String()+"/transition",
		e.adminToken(t), map[string]string{"target": "approved"})
	require.Equal(t, http.StatusConflict, resp.StatusCode)

	var envlp struct {
		Error string `json:"error"`
	}
	require.NoError(t, json.Unmarshal(raw, &envlp))
	assert.Equal(t, "already_approved", envlp.Error)

	// Sellers cannot reach the admin surface.
	resp, _ = e.do(t, http.MethodPost, "/admin/sellers/"+e.sellerID.String()+"/transition",
		e.sellerToken(t), map[string]string{"target": "rejected"})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestRouter_RevokeKeyEndsVerification(t *testing.T) {
	e := newEnv(t)

	resp, raw := e.do(t, http.MethodPost, "/credentials", e.sellerToken(t),
		map[string]string{"medicine_id": e.medicineID.String()})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var issued struct {
		Envelope map[string]any `json:"envelope"`
	}
	require.NoError(t, json.Unmarshal(raw, &issued))

	ident, err := e.identities.FindByID(context.Background(), e.sellerID)
	require.NoError(t, err)
	resp, _ = e.do(t, http.MethodPost, "/admin/keys/revoke", e.adminToken(t),
		map[string]string{"public_key": ident.PublicKeyPEM, "reason": "compromised"})
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	envelope, err := json.Marshal(issued.Envelope)
	require.NoError(t, err)
	resp2, err := e.server.Client().Post(e.server.URL+"/scan", "application/json", bytes.NewReader(envelope))
	require.NoError(t, err)
	body, err := io.ReadAll(resp2.Body)
	require.NoError(t, err)
	resp2.Body.Close()

	var result struct {
		Outcome string `json:"outcome"`
	}
	require.NoError(t, json.Unmarshal(body, &result))
	assert.Equal(t, "revoked", result.Outcome)

	// The registry listing shows the entry.
	resp, raw = e.do(t, http.MethodGet, "/admin/revoked-keys", e.adminToken(t), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var listed []struct {
		Reason string `json:"reason"`
	}
	require.NoError(t, json.Unmarshal(raw, &listed))
	require.Len(t, listed, 1)
	assert.Equal(t, "compromised", listed[0].Reason)
}

func TestRouter_SellerStatusOwnershipCheck(t *testing.T) {
	e := newEnv(t)

	resp, raw := e.do(t, http.MethodGet, "/sellers/"+e.sellerID.String(), e.sellerToken(t), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var status struct {
		State        string `json:"state"`
		HasActiveKey bool   `json:"has_active_key"`
	}
	require.NoError(t, json.Unmarshal(raw, &status))
	assert.Equal(t, "approved", status.State)
	assert.True(t, status.HasActiveKey)

	// A different seller's token cannot read this record.
	foreign, err := e.tokens.GenerateAccessToken(id.NewUserID(), "seller", id.NewIdentityID().String(), time.Hour)
	require.NoError(t, err)
	resp, _ = e.do(t, http.MethodGet, "/sellers/"+e.sellerID.String(), foreign, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestRouter_ScanHistoryRequiresAuth(t *testing.T) {
	e := newEnv(t)

	resp, _ := e.do(t, http.MethodGet, "/scan/history", "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	scanner, err := e.tokens.GenerateAccessToken(id.NewUserID(), "user", "", time.Hour)
	require.NoError(t, err)

	// One authenticated scan, then the history shows it.
	req, err := http.NewRequest(http.MethodPost, e.server.URL+"/scan", bytes.NewReader([]byte("garbage")))
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+scanner)
	resp2, err := e.server.Client().Do(req)
	require.NoError(t, err)
	resp2.Body.Close()
	require.Equal(t, http.StatusOK, resp2.StatusCode)

	resp, raw := e.do(t, http.MethodGet, "/scan/history", scanner, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var history []struct {
		Outcome string `json:"outcome"`
	}
	require.NoError(t, json.Unmarshal(raw, &history))
	require.Len(t, history, 1)
	assert.Equal(t, "malformed_input", history[0].Outcome)
}

func TestRouter_Healthz(t *testing.T) {
	e := newEnv(t)
	resp, raw := e.do(t, http.MethodGet, "/healthz", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"status":"ok"}`, string(raw))
}
