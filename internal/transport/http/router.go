// Package httptransport is the thin HTTP layer over the trust engine. It
// decodes requests, delegates to domain services, and encodes responses; no
// business rules live here.
package httptransport

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	credentialservice "pharmatrust/internal/credential/service"
	identityservice "pharmatrust/internal/identity/service"
	"pharmatrust/internal/verification"
	"pharmatrust/pkg/platform/httputil"
	mwauth "pharmatrust/pkg/platform/middleware/auth"
	"pharmatrust/pkg/platform/middleware/metadata"
	"pharmatrust/pkg/platform/middleware/request"
)

// Deps carries everything the router needs.
type Deps struct {
	Identity     *identityservice.Service
	Credentials  *credentialservice.Service
	Verification *verification.Service
	Tokens       mwauth.TokenValidator
	Logger       *slog.Logger
	Health       func() map[string]string
}

// NewRouter assembles the full route tree.
func NewRouter(d Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(30 * time.Second))
	r.Use(request.RequestID)
	r.Use(metadata.ClientMetadata)

	r.Get("/healthz", handleHealth(d.Health))
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	scan := &ScanHandler{pipeline: d.Verification, logger: d.Logger}
	scan.Register(r, d.Tokens)

	creds := &CredentialHandler{credentials: d.Credentials, logger: d.Logger}
	creds.Register(r, d.Tokens)

	sellers := &SellerHandler{identity: d.Identity, logger: d.Logger}
	sellers.Register(r, d.Tokens)

	admin := &AdminHandler{identity: d.Identity, logger: d.Logger}
	admin.Register(r, d.Tokens)

	return r
}

func handleHealth(health func() map[string]string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body := map[string]string{"status": "ok"}
		if health != nil {
			for k, v := range health() {
				body[k] = v
			}
		}
		httputil.WriteJSON(w, http.StatusOK, body)
	}
}
