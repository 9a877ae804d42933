package http

import (
	"net/http"

	"waflow/internal/auth"
	"waflow/internal/bot"
	"waflow/internal/campaign"
	"waflow/internal/config"
	"waflow/internal/http/handler"
	mw "waflow/internal/http/middleware"
	"waflow/internal/metrics"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
)

type Deps struct {
	JWT       *auth.JWT
	Campaigns *campaign.Service
	Rules     *bot.Store
	Metrics   *metrics.Collector
}

func NewRouter(cfg config.Config, d Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(mw.EchoRequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)

	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(mw.CORS(cfg))
	}

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	if d.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", d.Metrics.Handler())
	}

	ch := &handler.CampaignHandler{Svc: d.Campaigns}
	r.Route("/campaigns", func(r chi.Router) {
		r.Use(auth.RequireAuth(d.JWT))

		r.Post("/", ch.Create)
		r.Get("/", ch.List)
		r.Get("/{id}", ch.Report)
		r.Post("/{id}/pause", ch.Pause)
		r.Post("/{id}/resume", ch.Resume)
		r.Delete("/{id}", ch.Delete)
	})

	rh := &handler.RuleHandler{Store: d.Rules}
	r.Route("/rules", func(r chi.Router) {
		r.Use(auth.RequireAuth(d.JWT))

		r.Post("/", rh.Create)
		r.Get("/", rh.List)
		r.Get("/{id}", rh.Get)
		r.Put("/{id}", rh.Update)
		r.Patch("/{id}/active", rh.SetActive)
		r.Delete("/{id}", rh.Delete)
	})

	return r
}
