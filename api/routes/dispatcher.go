package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/smiyakawa/kiosk-relay/api/controllers"
	"github.com/smiyakawa/kiosk-relay/api/middleware"
	"github.com/smiyakawa/kiosk-relay/pkg/logger"
)

// Dispatcher wires the queue-facing service: push deliveries in, rows out.
func Dispatcher(ingestor controllers.EnvelopeIngestor, logg *logger.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.Recoverer(logg),
	)

	r.Get("/healthz", controllers.Health())
	r.Post("/pubsub/push", controllers.HandlePush(ingestor, logg))

	return r
}
