package httptransport

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"pharmatrust/internal/scanlog"
	"pharmatrust/internal/verification"
	dErrors "pharmatrust/pkg/domain-errors"
	"pharmatrust/pkg/platform/httputil"
	mwauth "pharmatrust/pkg/platform/middleware/auth"
	"pharmatrust/pkg/requestcontext"
)

// maxScanPayloadBytes bounds what a scanner may post. QR payloads are small;
// anything larger is abuse.
const maxScanPayloadBytes = 64 << 10

// ScanHandler exposes the verification pipeline to scanners.
type ScanHandler struct {
	pipeline *verification.Service
	logger   *slog.Logger
}

func (h *ScanHandler) Register(r chi.Router, tokens mwauth.TokenValidator) {
	r.Group(func(r chi.Router) {
		// Anyone with a scanned code can verify it; a token only adds
		// attribution to the audit trail.
		r.Use(mwauth.OptionalAuth(tokens, h.logger))
		r.Post("/scan", h.handleScan)
	})
	r.Group(func(r chi.Router) {
		r.Use(mwauth.RequireAuth(tokens, h.logger))
		r.Get("/scan/history", h.handleHistory)
	})
}

func (h *ScanHandler) handleScan(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	raw, err := io.ReadAll(io.LimitReader(r.Body, maxScanPayloadBytes+1))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "unreadable request body"))
		return
	}
	if len(raw) > maxScanPayloadBytes {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "scan payload too large"))
		return
	}

	result, err := h.pipeline.VerifyScanned(ctx, raw)
	if err != nil {
		h.logger.ErrorContext(ctx, "scan failed",
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, result)
}

func (h *ScanHandler) handleHistory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID := requestcontext.UserID(ctx)
	if userID.IsNil() {
		httputil.WriteError(w, dErrors.New(dErrors.CodeInternal, "authentication context error"))
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "limit must be an integer"))
			return
		}
		limit = n
	}

	entries, err := h.pipeline.History(ctx, userID, limit)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toScanHistoryResponse(entries))
}

type scanHistoryItem struct {
	ID           string          `json:"id"`
	CredentialID string          `json:"credential_id,omitempty"`
	Outcome      string          `json:"outcome"`
	Detail       json.RawMessage `json:"detail,omitempty"`
	ScannedAt    string          `json:"scanned_at"`
}

func toScanHistoryResponse(entries []scanlog.Entry) []scanHistoryItem {
	out := make([]scanHistoryItem, 0, len(entries))
	for _, e := range entries {
		item := scanHistoryItem{
			ID:        e.ID.String(),
			Outcome:   e.Outcome,
			ScannedAt: e.At.UTC().Format(timeFormat),
		}
		if e.CredentialID != nil {
			item.CredentialID = e.CredentialID.String()
		}
		if json.Valid([]byte(e.Detail)) {
			item.Detail = json.RawMessage(e.Detail)
		}
		out = append(out, item)
	}
	return out
}
