package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"storyreel/internal/http/handlers"
	"storyreel/internal/middleware"
)

// RouterOptions carries the cross-cutting config the middleware chain needs.
type RouterOptions struct {
	AllowedOrigins []string
	DefaultLocale  string
	CountryLookup  middleware.CountryLookup
	Analytics      middleware.RequestRecorder
	RateLimit      int
	RatePer        time.Duration
	StaticDir      string
}

func NewRouter(app *handlers.App, opts RouterOptions) http.Handler {
	if opts.RateLimit <= 0 {
		opts.RateLimit = 120
	}
	if opts.RatePer <= 0 {
		opts.RatePer = time.Minute
	}

	r := chi.NewRouter()
	r.Use(
		chimw.RealIP,
		chimw.Recoverer,
		middleware.RequestID,
		middleware.Logger(app.Logger),
		middleware.CORS(opts.AllowedOrigins),
		middleware.Locale(opts.DefaultLocale, opts.CountryLookup),
		middleware.Analytics(opts.Analytics, app.Logger),
		middleware.RateLimit(opts.RateLimit, opts.RatePer),
	)

	r.Get("/v1/healthz", app.Health)

	r.Route("/v1/projects", func(r chi.Router) {
		r.Post("/", app.ProjectsCreate)
		r.Get("/", app.ProjectsList)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", app.ProjectsGet)
			r.Delete("/", app.ProjectsDelete)
			r.Post("/audio", app.AudioUpload)
			r.Post("/storyboard", app.StoryboardGenerate)
			r.Post("/renders", app.RendersEnqueue)
			r.Get("/export", app.ExportArchive)
			r.Post("/assemble", app.AssembleVideo)
		})
	})

	r.Route("/v1/renders", func(r chi.Router) {
		r.Post("/cancel", app.RendersCancel)
		r.Post("/{jobID}/promote", app.RendersPromote)
		r.Get("/events", app.RendersEvents)
		r.Get("/stats", app.RendersStats)
	})

	r.Get("/v1/stats", app.StatsSummary)

	if opts.StaticDir != "" {
		fs := http.FileServer(http.Dir(opts.StaticDir))
		r.Handle("/static/*", http.StripPrefix("/static/", fs))
	}

	return r
}
