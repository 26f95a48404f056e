package httptransport

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"pharmatrust/internal/credential"
	credentialservice "pharmatrust/internal/credential/service"
	id "pharmatrust/pkg/domain"
	dErrors "pharmatrust/pkg/domain-errors"
	"pharmatrust/pkg/platform/httputil"
	mwauth "pharmatrust/pkg/platform/middleware/auth"
	"pharmatrust/pkg/requestcontext"
)

const timeFormat = time.RFC3339

// CredentialHandler exposes issuance and credential-level revocation.
type CredentialHandler struct {
	credentials *credentialservice.Service
	logger      *slog.Logger
}

func (h *CredentialHandler) Register(r chi.Router, tokens mwauth.TokenValidator) {
	r.Group(func(r chi.Router) {
		r.Use(mwauth.RequireAuth(tokens, h.logger))
		r.With(mwauth.RequireRole(mwauth.RoleSeller)).Post("/credentials", h.handleIssue)
		r.With(mwauth.RequireRole(mwauth.RoleSeller)).Get("/credentials", h.handleList)
		r.With(mwauth.RequireRole(mwauth.RoleAdmin)).Post("/credentials/{credentialID}/revoke", h.handleRevoke)
	})
}

type issueCredentialRequest struct {
	MedicineID string `json:"medicine_id"`
	BatchNote  string `json:"batch_note,omitempty"`
}

type issueCredentialResponse struct {
	CredentialID string         `json:"credential_id"`
	Envelope     map[string]any `json:"envelope"`
	IssuedAt     string         `json:"issued_at"`
}

func (h *CredentialHandler) handleIssue(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	issuerID := requestcontext.IdentityID(ctx)
	if issuerID.IsNil() {
		httputil.WriteError(w, dErrors.New(dErrors.CodeForbidden, "token carries no seller identity"))
		return
	}

	req, ok := httputil.DecodeAndPrepare[issueCredentialRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	medicineID, err := id.ParseMedicineID(req.MedicineID)
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "medicine_id must be a UUID"))
		return
	}

	rec, envelope, err := h.credentials.Issue(ctx, credentialservice.IssueRequest{
		MedicineID: medicineID,
		IssuerID:   issuerID,
		BatchNote:  req.BatchNote,
	})
	if err != nil {
		h.logger.WarnContext(ctx, "credential issuance refused",
			"request_id", requestID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, issueCredentialResponse{
		CredentialID: rec.ID.String(),
		Envelope:     envelope,
		IssuedAt:     rec.IssuedAt.UTC().Format(timeFormat),
	})
}

type credentialSummary struct {
	ID            string `json:"id"`
	MedicineID    string `json:"medicine_id"`
	IssuedAt      string `json:"issued_at"`
	Revoked       bool   `json:"revoked"`
	RevokedReason string `json:"revoked_reason,omitempty"`
}

func (h *CredentialHandler) handleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	issuerID := requestcontext.IdentityID(ctx)
	if issuerID.IsNil() {
		httputil.WriteError(w, dErrors.New(dErrors.CodeForbidden, "token carries no seller identity"))
		return
	}

	recs, err := h.credentials.ListByIssuer(ctx, issuerID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	out := make([]credentialSummary, 0, len(recs))
	for _, rec := range recs {
		out = append(out, toCredentialSummary(rec))
	}
	httputil.WriteJSON(w, http.StatusOK, out)
}

func toCredentialSummary(rec credential.Record) credentialSummary {
	return credentialSummary{
		ID:            rec.ID.String(),
		MedicineID:    rec.MedicineID.String(),
		IssuedAt:      rec.IssuedAt.UTC().Format(timeFormat),
		Revoked:       rec.Revoked,
		RevokedReason: rec.RevokedReason,
	}
}

type revokeCredentialRequest struct {
	Reason string `json:"reason"`
}

func (h *CredentialHandler) handleRevoke(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	credentialID, err := id.ParseCredentialID(chi.URLParam(r, "credentialID"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "credential id must be a UUID"))
		return
	}
	req, ok := httputil.DecodeAndPrepare[revokeCredentialRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	if err := h.credentials.Revoke(ctx, credentialID, req.Reason); err != nil {
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
