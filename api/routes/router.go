package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/omaldonado/snapfield-backend/api/controllers"
	"github.com/omaldonado/snapfield-backend/api/middleware"
	"github.com/omaldonado/snapfield-backend/internal/codes"
	"github.com/omaldonado/snapfield-backend/internal/extraction"
	"github.com/omaldonado/snapfield-backend/internal/journal"
	"github.com/omaldonado/snapfield-backend/internal/ledger"
	"github.com/omaldonado/snapfield-backend/pkg/config"
	"github.com/omaldonado/snapfield-backend/pkg/logger"
)

// RouterParams carries everything the HTTP surface wires together.
type RouterParams struct {
	Config     *config.Config
	Logger     *logger.Logger
	Remote     controllers.Pinger
	Extraction *extraction.Service
	Ledger     *ledger.Service
	Codes      *codes.Service
	Journal    *journal.Service
	Registry   *prometheus.Registry
}

// NewRouter builds the chi router over the core services.
func NewRouter(params RouterParams) http.Handler {
	cfg := params.Config
	logg := params.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.CORS.AllowedOrigins),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, params.Remote))
	})

	if params.Registry != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(params.Registry, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/extract", controllers.Extract(params.Extraction, logg))
		r.Post("/redeem", controllers.Redeem(params.Codes, logg))
	})

	r.Route("/api/admin/v1", func(r chi.Router) {
		r.Use(middleware.AdminAuth(cfg.Admin.Token, logg))

		r.Get("/subjects", controllers.ListSubjects(params.Ledger, logg))
		r.Post("/subjects/{id}/tier", controllers.SetTier(params.Ledger, logg))
		r.Post("/subjects/{id}/extra-quota", controllers.AddExtraQuota(params.Ledger, logg))
		r.Post("/subjects/{id}/remark", controllers.SetSubjectRemark(params.Ledger, logg))

		r.Get("/config", controllers.GetConfig(params.Ledger, logg))
		r.Put("/config", controllers.UpdateConfig(params.Ledger, logg))

		r.Get("/usage", controllers.ListUsage(params.Journal, logg))
		r.Delete("/usage", controllers.PurgeUsage(params.Journal, logg))

		r.Post("/codes", controllers.GenerateCodes(params.Codes, logg))
		r.Get("/codes", controllers.ListCodes(params.Codes, logg))
		r.Delete("/codes/{code}", controllers.DeleteCode(params.Codes, logg))
		r.Post("/codes/{code}/remark", controllers.SetCodeRemark(params.Codes, logg))
	})

	return r
}
