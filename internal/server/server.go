package server

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/klauspost/compress/gzhttp"
	"github.com/rs/cors"
	"github.com/rs/zerolog"
	"github.com/wolfeidau/rentdesk/internal/apperror"
	"github.com/wolfeidau/rentdesk/internal/auth"
	httpmiddleware "github.com/wolfeidau/rentdesk/internal/http"
	"github.com/wolfeidau/rentdesk/internal/onboarding"
	"github.com/wolfeidau/rentdesk/internal/store"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// OnboardingTokenHeader carries the anonymous client token between start calls.
const OnboardingTokenHeader = "X-Onboarding-Token"

// maxBodyBytes bounds step payloads.
const maxBodyBytes = 64 * 1024

// Config holds HTTP API settings.
type Config struct {
	CORSOrigins []string
	// AbandonAfter is how old a session without owner details must be
	// before the admin reap endpoint marks it abandoned.
	AbandonAfter time.Duration
	Tracing      bool
}

// Server exposes the onboarding workflow over a JSON REST API.
type Server struct {
	cfg          Config
	orchestrator *onboarding.Orchestrator
	plans        store.PlanStore
	verifier     *auth.JWTVerifier
	now          func() time.Time
}

// NewServer creates a new server. verifier may be nil, in which case every
// caller is anonymous.
func NewServer(cfg Config, orchestrator *onboarding.Orchestrator, plans store.PlanStore, verifier *auth.JWTVerifier) *Server {
	if cfg.AbandonAfter <= 0 {
		cfg.AbandonAfter = time.Hour
	}
	return &Server{
		cfg:          cfg,
		orchestrator: orchestrator,
		plans:        plans,
		verifier:     verifier,
		now:          time.Now,
	}
}

// Handler returns the HTTP handler for the server
func (s *Server) Handler(logger zerolog.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(httpmiddleware.RequestLogger(logger))
	r.Use(httpmiddleware.ClientIPMiddleware())
	if s.verifier != nil {
		r.Use(s.verifier.Middleware())
	}

	// Health check endpoint for load balancer
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/plans", s.listPlans)

		r.Route("/onboarding", func(r chi.Router) {
			r.Post("/start", s.startOnboarding)
			r.Get("/{sessionId}", s.getSession)
			r.Post("/{sessionId}/steps/{stepName}", s.submitStep)
			r.Post("/{sessionId}/complete", s.completeOnboarding)
		})

		r.Route("/admin/onboarding", func(r chi.Router) {
			r.Get("/sessions", s.listSessions)
			r.Post("/reap", s.reapSessions)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		httpmiddleware.WriteError(w, r, apperror.NotFound("no route for %s", r.URL.Path))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		httpmiddleware.WriteError(w, r, apperror.MethodNotAllowed(r.Method, r.URL.Path))
	})

	var handler http.Handler = gzhttp.GzipHandler(r)
	handler = withCORS(s.cfg.CORSOrigins, handler)

	if s.cfg.Tracing {
		handler = otelhttp.NewHandler(handler, "rentdesk-api")
	}

	return handler
}

// withCORS adds CORS support for browser clients of the API.
func withCORS(allowedOrigins []string, h http.Handler) http.Handler {
	middleware := cors.New(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Content-Type", httpmiddleware.RequestIDHeader, OnboardingTokenHeader},
		ExposedHeaders: []string{httpmiddleware.RequestIDHeader, OnboardingTokenHeader},
		MaxAge:         600,
	})
	return middleware.Handler(h)
}
