package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"donasi/internal/http/handlers"
	"donasi/internal/middleware"
)

// Options configures the router's cross-cutting middleware.
type Options struct {
	Logger          zerolog.Logger
	JWTSecret       string
	CORSOrigins     []string
	RateLimitPerMin int
	DefaultLocale   string
	// CountryLookup is optional; nil disables IP based locale detection.
	CountryLookup middleware.CountryLookup
}

func NewRouter(app *handlers.App, opts Options) http.Handler {
	r := chi.NewRouter()

	// Middlewares dasar
	r.Use(
		middleware.RequestID,
		chimw.RealIP,
		chimw.Recoverer,
		middleware.Logger(opts.Logger),
	)

	r.Get("/v1/healthz", app.Health)
	r.Get("/v1/readyz", app.Ready)
	r.Get("/v1/openapi.json", app.OpenAPIJSON)
	r.Get("/v1/docs", app.OpenAPIDocs)

	// Server-to-server; authenticated by the notification signature.
	r.Post("/v1/payments/callback", app.GatewayCallback)

	r.Group(func(r chi.Router) {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   opts.CORSOrigins,
			AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders:   []string{"Authorization", "Content-Type", "X-Locale", "X-Request-ID"},
			ExposedHeaders:   []string{"X-Request-ID"},
			AllowCredentials: true,
			MaxAge:           300,
		}))
		r.Use(middleware.OptionalAuth(opts.JWTSecret), middleware.I18N(opts.DefaultLocale, opts.CountryLookup))

		r.Route("/v1/donations", func(r chi.Router) {
			r.With(middleware.RateLimit(opts.RateLimitPerMin, time.Minute)).Post("/", app.DonationsCreate)
			r.Get("/{id}", app.DonationsGet)
			r.With(middleware.RateLimit(opts.RateLimitPerMin, time.Minute)).Post("/{id}/cancel", app.DonationsCancel)
		})

		r.Route("/v1/ledger", func(r chi.Router) {
			r.Get("/periods", app.LedgerPeriods)
			r.Get("/periods/{period}", app.LedgerPeriod)
		})
	})

	return r
}
