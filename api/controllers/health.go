package controllers

import (
	"io"
	"net/http"
)

// Health is the liveness probe. Plain text, no dependency checks: a service
// that can answer is alive, and each dependency fails loudly at boot.
func Health() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		io.WriteString(w, "ok")
	}
}
