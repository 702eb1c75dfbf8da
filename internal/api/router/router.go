// Package router wires every HTTP surface of the practice platform.
package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/clearwell/practice-platform/internal/appointments"
	httpmiddleware "github.com/clearwell/practice-platform/internal/http/middleware"
	"github.com/clearwell/practice-platform/internal/mfa"
	"github.com/clearwell/practice-platform/internal/observability/metrics"
	"github.com/clearwell/practice-platform/internal/patients"
	"github.com/clearwell/practice-platform/internal/security"
	"github.com/clearwell/practice-platform/internal/tenancy"
	"github.com/clearwell/practice-platform/pkg/logging"
)

// Config holds router configuration
type Config struct {
	Logger              *logging.Logger
	AppointmentsHandler *appointments.Handler
	PatientsHandler     *patients.Handler
	MFAHandler          *mfa.Handler
	MetricsHandler      http.Handler

	SessionJWTSecret   string
	RateLimiter        security.Limiter
	SecurityMetrics    *metrics.SecurityMetrics
	CSRFExemptPrefixes []string
	CORSAllowedOrigins []string
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}

	// Public endpoints
	r.Group(func(public chi.Router) {
		public.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"status":"ok"}`))
		})
		if cfg.MetricsHandler != nil {
			public.Handle("/metrics", cfg.MetricsHandler)
		}
	})

	// Authenticated API surface
	r.Route("/api/v1", func(api chi.Router) {
		api.Use(httpmiddleware.ClientInfo)
		api.Use(httpmiddleware.SessionJWT(cfg.SessionJWTSecret))
		api.Use(httpmiddleware.CSRF(cfg.CSRFExemptPrefixes))

		if cfg.MFAHandler != nil {
			api.Route("/auth/mfa", func(r chi.Router) {
				// Code-guessing endpoints get the tight per-IP window.
				if cfg.RateLimiter != nil {
					r.Use(httpmiddleware.RateLimit(cfg.RateLimiter, cfg.SecurityMetrics, cfg.Logger))
				}
				r.Post("/setup", cfg.MFAHandler.InitiateSetup)
				r.Put("/setup", cfg.MFAHandler.ConfirmSetup)
				r.Delete("/", cfg.MFAHandler.Disable)
				r.Post("/backup-codes/regenerate", cfg.MFAHandler.RegenerateBackupCodes)
				r.Get("/status", cfg.MFAHandler.Status)
				r.Post("/verify", cfg.MFAHandler.VerifyLogin)
			})
		}

		api.Route("/practices/{practiceID}", func(r chi.Router) {
			r.Use(practiceContext)
			if cfg.AppointmentsHandler != nil {
				r.Patch("/appointments/{appointmentID}/status", cfg.AppointmentsHandler.UpdateStatus)
			}
			if cfg.PatientsHandler != nil {
				r.Patch("/patients/{patientID}/status", cfg.PatientsHandler.UpdateStatus)
			}
		})
	})

	return r
}

// practiceContext copies the practice id from the URL into the request
// context so stores and log lines downstream can scope by tenant.
func practiceContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if practiceID := chi.URLParam(r, "practiceID"); practiceID != "" {
			r = r.WithContext(tenancy.WithPracticeID(r.Context(), practiceID))
		}
		next.ServeHTTP(w, r)
	})
}
