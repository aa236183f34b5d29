package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/smiyakawa/kiosk-relay/api/controllers"
	"github.com/smiyakawa/kiosk-relay/api/middleware"
	"github.com/smiyakawa/kiosk-relay/pkg/logger"
)

// Gateway wires the kiosk-facing service: the event stream out, replies in.
func Gateway(streams controllers.StreamServer, sender controllers.ReplySender, registry *prometheus.Registry, logg *logger.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.CORS(),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.Recoverer(logg),
	)

	r.Get("/healthz", controllers.Health())
	r.Get("/sse", controllers.HandleSSE(streams, logg))
	r.Post("/line/reply", controllers.HandleReply(sender, logg))

	if registry != nil {
		r.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	}

	return r
}
