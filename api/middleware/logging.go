package middleware

import (
	"fmt"
	"net/http"
	"time"

	"github.com/smiyakawa/kiosk-relay/pkg/logger"
)

// statusRecorder captures the response status while passing Flush through,
// which the SSE endpoint depends on.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *statusRecorder) Flush() {
	if flusher, ok := r.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

// Logging emits one line per completed request.
func Logging(logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			started := time.Now()
			recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

			next.ServeHTTP(recorder, r)

			if logg != nil {
				logg.Info(r.Context(), fmt.Sprintf(
					"%s %s -> %d (%s)",
					r.Method, r.URL.Path, recorder.status, time.Since(started).Round(time.Millisecond),
				))
			}
		})
	}
}
