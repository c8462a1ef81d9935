package routes

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/draftsync/api/controllers"
	"github.com/angelmondragon/draftsync/api/middleware"
	"github.com/angelmondragon/draftsync/pkg/config"
	"github.com/angelmondragon/draftsync/pkg/logger"
)

const progressKeepAlive = 15 * time.Second

// RouterParams wires the local HTTP API.
type RouterParams struct {
	Config       *config.Config
	Logger       *logger.Logger
	DB           controllers.Pinger
	Checks       map[string]controllers.Pinger
	Connectivity controllers.OnlineReporter
	Drafts       controllers.DraftStore
	Queue        controllers.UploadQueue
	Migrator     controllers.LegacyMigrator
	Gatherer     prometheus.Gatherer
}

func NewRouter(params RouterParams) http.Handler {
	cfg := params.Config
	logg := params.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.App.AllowedOrigins),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, params.DB, params.Checks, params.Connectivity, params.Queue))
	})

	if params.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(params.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/drafts", func(r chi.Router) {
			r.Post("/", controllers.DraftCreate(params.Drafts, logg))
			r.Get("/", controllers.DraftList(params.Drafts, logg))
			r.Get("/count", controllers.DraftCount(params.Drafts, logg))
			r.Get("/{draftId}", controllers.DraftDetail(params.Drafts, logg))
			r.Delete("/{draftId}", controllers.DraftDelete(params.Drafts, logg))
			r.Post("/{draftId}/upload", controllers.DraftUpload(params.Queue, logg))
		})

		r.Route("/queue", func(r chi.Router) {
			r.Post("/process", controllers.QueueProcess(params.Queue, logg))
			r.Get("/progress", controllers.QueueProgress(params.Queue, logg, progressKeepAlive))
		})

		r.Route("/maintenance", func(r chi.Router) {
			r.Post("/cleanup", controllers.MaintenanceCleanup(params.Drafts, cfg.Cleanup.MaxAgeDays, logg))
			r.Post("/legacy-migration", controllers.MaintenanceLegacyMigration(params.Migrator, logg))
		})
	})

	return r
}
