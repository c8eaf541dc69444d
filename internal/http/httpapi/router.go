package httpapi

import (
	"net/http"

	"roomstaging/internal/http/handlers"
	mw "roomstaging/internal/middleware"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

// Options carries the cross-cutting pieces of the router. Limiter and Static
// are optional.
type Options struct {
	AllowedOrigins []string
	Logger         zerolog.Logger
	Limiter        mw.Limiter
	Static         http.Handler
}

func NewRouter(app *handlers.App, opts Options) http.Handler {
	r := chi.NewRouter()

	r.Use(
		mw.RequestID,
		middleware.RealIP,
		middleware.Recoverer,
		mw.Logger(opts.Logger),
		mw.CORS(opts.AllowedOrigins),
	)
	r.MethodNotAllowed(app.MethodNotAllowed)
	r.NotFound(app.NotFound)

	// Health
	r.Get("/v1/healthz", app.Health)

	// Every render costs money upstream.
	limited := mw.RateLimit(opts.Limiter, "render", opts.Logger)

	r.Route("/api", func(r chi.Router) {
		r.With(limited).Post("/stage", app.Stage)
		r.Post("/checkout", app.Checkout)
		r.Post("/stripe-webhook", app.StripeWebhook)
		r.With(limited).Post("/finalize", app.Finalize)

		r.Get("/ping", app.Ping)
		r.Get("/render", app.Render)
		r.With(limited).Post("/render/create", app.RenderCreate)
		r.With(limited).Post("/render/create-variation", app.RenderCreateVariation)
	})

	if opts.Static != nil {
		r.Handle("/static/*", http.StripPrefix("/static", opts.Static))
	}

	return r
}
