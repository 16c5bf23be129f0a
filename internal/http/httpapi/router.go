package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"stylegan-api/internal/http/handlers"
	"stylegan-api/internal/middleware"
	"stylegan-api/internal/ratelimit"
)

// Options carries the cross-cutting collaborators of the router.
type Options struct {
	Logger        zerolog.Logger
	Verifier      middleware.TokenVerifier
	RequiredScope string
	Limiter       ratelimit.Limiter
	CORSOrigins   []string
}

func NewRouter(app *handlers.App, opts Options) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.RequestID,
		chimw.RealIP,
		chimw.Recoverer,
		middleware.Logger(opts.Logger),
		middleware.CORS(opts.CORSOrigins),
	)

	r.Get("/healthz", app.Health)
	r.Get("/openapi.json", app.OpenAPIJSON)
	r.Get("/docs", app.OpenAPIDocs)
	r.Get("/images/{id}", app.Image)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/models", app.Models)
		r.Get("/stylegan2ada/methods", app.Methods)

		r.Group(func(r chi.Router) {
			r.Use(middleware.AuthJWT(opts.Verifier, opts.RequiredScope))

			r.Route("/stylegan2ada", func(r chi.Router) {
				r.Use(middleware.RateLimit(opts.Limiter, opts.Logger))
				r.Post("/generate", app.Generate)
				r.Post("/stylemix", app.StyleMix)
				r.Post("/project", app.Project)
			})

			r.Route("/user/images", func(r chi.Router) {
				r.Get("/", app.ListImages)
				r.Delete("/", app.DeleteImages)
				r.Get("/archive", app.ArchiveImages)
			})
		})
	})

	return r
}
