package httptransport

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"pharmatrust/internal/identity"
	identityservice "pharmatrust/internal/identity/service"
	id "pharmatrust/pkg/domain"
	dErrors "pharmatrust/pkg/domain-errors"
	"pharmatrust/pkg/platform/httputil"
	mwauth "pharmatrust/pkg/platform/middleware/auth"
	"pharmatrust/pkg/requestcontext"
)

// SellerHandler exposes the seller-facing slice of the lifecycle: application
// status and key issuance for the caller's own identity.
type SellerHandler struct {
	identity *identityservice.Service
	logger   *slog.Logger
}

func (h *SellerHandler) Register(r chi.Router, tokens mwauth.TokenValidator) {
	r.Group(func(r chi.Router) {
		r.Use(mwauth.RequireAuth(tokens, h.logger))
		r.Use(mwauth.RequireRole(mwauth.RoleSeller))
		r.Get("/sellers/{identityID}", h.handleStatus)
		r.Post("/sellers/{identityID}/keys", h.handleGenerateKeys)
	})
}

// ownIdentity resolves the path identity and enforces that sellers only touch
// their own record. Admin tokens may touch any.
func (h *SellerHandler) ownIdentity(w http.ResponseWriter, r *http.Request) (id.IdentityID, bool) {
	identityID, err := id.ParseIdentityID(chi.URLParam(r, "identityID"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "identity id must be a UUID"))
		return id.IdentityID{}, false
	}
	if mwauth.GetRole(r.Context()) == mwauth.RoleAdmin {
		return identityID, true
	}
	if requestcontext.IdentityID(r.Context()) != identityID {
		httputil.WriteError(w, dErrors.New(dErrors.CodeForbidden, "not your seller identity"))
		return id.IdentityID{}, false
	}
	return identityID, true
}

type sellerStatusResponse struct {
	ID           string `json:"id"`
	CompanyName  string `json:"company_name"`
	State        string `json:"state"`
	AdminRemarks string `json:"admin_remarks,omitempty"`
	HasActiveKey bool   `json:"has_active_key"`
	PublicKeyPEM string `json:"public_key,omitempty"`
}

func toSellerStatusResponse(ident *identity.Identity) sellerStatusResponse {
	return sellerStatusResponse{
		ID:           ident.ID.String(),
		CompanyName:  ident.CompanyName,
		State:        ident.State.String(),
		AdminRemarks: ident.AdminRemarks,
		HasActiveKey: ident.HasActiveKey(),
		PublicKeyPEM: ident.PublicKeyPEM,
	}
}

func (h *SellerHandler) handleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identityID, ok := h.ownIdentity(w, r)
	if !ok {
		return
	}

	ident, err := h.identity.Get(ctx, identityID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toSellerStatusResponse(ident))
}

type generateKeysResponse struct {
	PublicKeyPEM string `json:"public_key"`
}

// handleGenerateKeys issues a fresh keypair. Only the public key ever leaves
// the server.
func (h *SellerHandler) handleGenerateKeys(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identityID, ok := h.ownIdentity(w, r)
	if !ok {
		return
	}

	pubPEM, err := h.identity.GenerateKeys(ctx, identityID, requestcontext.UserID(ctx))
	if err != nil {
		h.logger.WarnContext(ctx, "key generation refused",
			"request_id", requestcontext.RequestID(ctx),
			"identity_id", identityID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, generateKeysResponse{PublicKeyPEM: pubPEM})
}
