package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/smiyakawa/kiosk-relay/api/controllers"
	"github.com/smiyakawa/kiosk-relay/api/middleware"
	"github.com/smiyakawa/kiosk-relay/pkg/config"
	"github.com/smiyakawa/kiosk-relay/pkg/logger"
)

// Webhook wires the platform-facing service: webhook deliveries in, envelopes
// onto the events topic.
func Webhook(handler controllers.WebhookHandler, cfg config.LineConfig, logg *logger.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.Recoverer(logg),
	)

	r.Get("/healthz", controllers.Health())
	r.Post("/callback", controllers.HandleCallback(handler, cfg, logg))

	return r
}
