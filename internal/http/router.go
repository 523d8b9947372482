package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/MrJamesThe3rd/blockbill/internal/http/audit"
	"github.com/MrJamesThe3rd/blockbill/internal/http/auth"
	"github.com/MrJamesThe3rd/blockbill/internal/http/invoice"
	"github.com/MrJamesThe3rd/blockbill/internal/http/statement"
)

type Config struct {
	AllowedOrigins []string
	Timeout        time.Duration
}

func New(
	cfg Config,
	authn *auth.Authenticator,
	metrics http.Handler,
	invoicesV1 *invoice.Handler,
	statementsV1 *statement.Handler,
	auditV1 *audit.Handler,
) http.Handler {
	router := chi.NewRouter()

	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)

	if cfg.Timeout > 0 {
		router.Use(middleware.Timeout(cfg.Timeout))
	}

	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-Id"},
		ExposedHeaders:   []string{"Content-Disposition"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	router.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ok"))
	})
	router.Method(http.MethodGet, "/metrics", metrics)

	router.Route("/api/v1", func(r chi.Router) {
		r.Use(authn.Middleware)

		r.Route("/invoices", func(r chi.Router) {
			r.Use(middleware.AllowContentType("application/json", "multipart/form-data"))
			invoicesV1.Routes(r)
		})

		r.Route("/statements", statementsV1.Routes)

		r.Route("/audit", auditV1.Routes)
	})

	return router
}
