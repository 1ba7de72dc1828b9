package rest

import (
	"net"
	"net/http"

	"github.com/go-chi/chi/v5"
	v0_rest "github.com/meower-media/feedsync/pkg/api/rest/v0"
	"github.com/meower-media/feedsync/pkg/metrics"
	"github.com/rs/cors"
)

type Options struct {
	v0_rest.Options
	RealIPHeader string
}

func Router(opts Options) *chi.Mux {
	r := chi.NewRouter()

	// CORS middleware
	r.Use(cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"OPTIONS", "GET", "POST", "DELETE"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	}).Handler)

	// IP address middleware
	r.Use(func(h http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if opts.RealIPHeader != "" {
				r.RemoteAddr = r.Header.Get(opts.RealIPHeader)
			} else if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
				r.RemoteAddr = host
			}
			h.ServeHTTP(w, r)
		})
	})

	r.Use(metrics.Middleware("rest"))

	// Mount routers
	r.Mount("/", v0_rest.Router(opts.Options)) // default
	r.Mount("/v0", v0_rest.Router(opts.Options))

	return r
}
