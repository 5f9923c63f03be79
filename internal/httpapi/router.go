package httpapi

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/mixelka/novamailer/internal/campaign"
)

// HealthChecker reports whether storage is reachable
type HealthChecker interface {
	Health(ctx context.Context) error
}

// Deps contains dependencies for the HTTP API
type Deps struct {
	Service       *campaign.Service
	Health        HealthChecker
	Tokens        map[string]int64
	CORSOrigins   []string
	MaxUploadSize int64
	Logger        *slog.Logger
}

// Handlers serves the REST API
type Handlers struct {
	svc           *campaign.Service
	health        HealthChecker
	maxUploadSize int64
	rs            *responder
	logger        *slog.Logger
}

// NewRouter builds the chi router with every route and middleware
func NewRouter(deps Deps) http.Handler {
	logger := deps.Logger.With("component", "http")
	h := &Handlers{
		svc:           deps.Service,
		health:        deps.Health,
		maxUploadSize: deps.MaxUploadSize,
		rs:            &responder{logger: logger},
		logger:        logger,
	}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(logger))
	r.Use(middleware.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   deps.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Route("/api", func(r chi.Router) {
		r.Get("/", h.Root)
		r.Get("/health", h.HealthCheck)

		r.Route("/v1", func(r chi.Router) {
			r.Use(bearerAuth(deps.Tokens, h.rs))

			r.Post("/uploads/preview", h.PreviewUpload)
			r.Get("/uploads/{uploadID}", h.GetUpload)
			r.Get("/uploads/{uploadID}/rejections.csv", h.DownloadRejections)

			r.Route("/campaigns", func(r chi.Router) {
				r.Get("/", h.ListCampaigns)
				r.Post("/", h.CreateCampaign)
				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", h.GetCampaign)
					r.Delete("/", h.DeleteCampaign)
					r.Get("/recipients", h.ListRecipients)
					r.Post("/recipients", h.ImportRecipients)
					r.Get("/uploads", h.ListUploads)
					r.Post("/send", h.SendCampaign)
					r.Post("/cancel", h.CancelCampaign)
				})
			})

			r.Route("/templates", func(r chi.Router) {
				r.Get("/", h.ListTemplates)
				r.Post("/", h.CreateTemplate)
				r.Get("/{id}", h.GetTemplate)
				r.Delete("/{id}", h.DeleteTemplate)
			})

			r.Get("/smtp", h.GetSMTPSettings)
			r.Put("/smtp", h.SaveSMTPSettings)
			r.Post("/smtp/test", h.TestSMTP)
			r.Get("/smtp/suggest", h.SuggestSMTP)

			r.Get("/stats", h.Stats)
		})
	})

	return r
}

// Root answers GET /api
func (h *Handlers) Root(w http.ResponseWriter, r *http.Request) {
	h.rs.OK(w, map[string]string{"message": "Welcome to NovaMailer API"})
}

// HealthCheck answers GET /api/health
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	if err := h.health.Health(r.Context()); err != nil {
		h.logger.Error("health check failed", "error", err)
		h.rs.JSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	h.rs.OK(w, map[string]string{"status": "ok"})
}
