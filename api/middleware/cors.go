package middleware

import (
	"net/http"

	"github.com/go-chi/cors"
)

// CORS opens the gateway to kiosk web frontends. The stream and reply
// endpoints carry no credentials, so a wildcard origin is acceptable.
func CORS() func(http.Handler) http.Handler {
	return cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "Last-Event-ID", "X-Request-Id"},
		MaxAge:         300,
	})
}
