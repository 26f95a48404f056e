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

// AdminHandler exposes the administrator capability: lifecycle transitions
// and key revocation.
type AdminHandler struct {
	identity *identityservice.Service
	logger   *slog.Logger
}

func (h *AdminHandler) Register(r chi.Router, tokens mwauth.TokenValidator) {
	r.Route("/admin", func(r chi.Router) {
		r.Use(mwauth.RequireAuth(tokens, h.logger))
		r.Use(mwauth.RequireRole(mwauth.RoleAdmin))
		r.Post("/sellers/{identityID}/transition", h.handleTransition)
		r.Post("/keys/revoke", h.handleRevokeKey)
		r.Get("/revoked-keys", h.handleListRevokedKeys)
	})
}

type transitionRequest struct {
	Target  string `json:"target"`
	Remarks string `json:"remarks,omitempty"`
}

func (h *AdminHandler) handleTransition(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	identityID, err := id.ParseIdentityID(chi.URLParam(r, "identityID"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "identity id must be a UUID"))
		return
	}
	req, ok := httputil.DecodeAndPrepare[transitionRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	target, ok := identity.ParseState(req.Target)
	if !ok {
		httputil.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "unknown target state"))
		return
	}

	ident, err := h.identity.Transition(ctx, identityID, target, requestcontext.UserID(ctx), req.Remarks)
	if err != nil {
		h.logger.WarnContext(ctx, "transition refused",
			"request_id", requestID,
			"identity_id", identityID,
			"target", target,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toSellerStatusResponse(ident))
}

type revokeKeyRequest struct {
	PublicKeyPEM string `json:"public_key"`
	Reason       string `json:"reason"`
}

func (h *AdminHandler) handleRevokeKey(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[revokeKeyRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	if err := h.identity.RevokeKey(ctx, req.PublicKeyPEM, req.Reason, requestcontext.UserID(ctx)); err != nil {
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type revokedKeyItem struct {
	PublicKeyPEM string `json:"public_key"`
	Reason       string `json:"reason"`
	RevokedBy    string `json:"revoked_by,omitempty"`
	RevokedAt    string `json:"revoked_at"`
}

func (h *AdminHandler) handleListRevokedKeys(w http.ResponseWriter, r *http.Request) {
	entries, err := h.identity.ListRevokedKeys(r.Context())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	out := make([]revokedKeyItem, 0, len(entries))
	for _, e := range entries {
		item := revokedKeyItem{
			PublicKeyPEM: e.PublicKeyPEM,
			Reason:       e.Reason,
			RevokedAt:    e.RevokedAt.UTC().Format(timeFormat),
		}
		if !e.RevokedBy.IsNil() {
			item.RevokedBy = e.RevokedBy.String()
		}
		out = append(out, item)
	}
	httputil.WriteJSON(w, http.StatusOK, out)
}
