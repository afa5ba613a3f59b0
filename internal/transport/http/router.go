// Package httptransport assembles the chi router: public verification
// endpoints, admin-guarded registration endpoints and operational plumbing.
package httptransport

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	unithandler "meditrace/internal/unit/handler"
	verificationhandler "meditrace/internal/verification/handler"
	"meditrace/pkg/platform/middleware/admin"
	"meditrace/pkg/platform/middleware/metadata"
)

// Deps holds everything the router mounts.
type Deps struct {
	Units        *unithandler.Handler
	Verification *verificationhandler.Handler
	AdminToken   string
	Logger       *slog.Logger
}

// NewRouter builds the full route tree.
func NewRouter(d Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.Recoverer)
	r.Use(metadata.RequestMetadata)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	// Public scan surface: anyone with a package in hand can verify it.
	r.Group(func(r chi.Router) {
		d.Verification.Register(r)
		d.Units.Register(r)
	})

	// Manufacturer surface: registration and custody writes.
	r.Route("/admin", func(r chi.Router) {
		r.Use(admin.RequireAdminToken(d.AdminToken, d.Logger))
		d.Units.RegisterAdmin(r)
	})

	return r
}
