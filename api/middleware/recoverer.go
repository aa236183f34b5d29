package middleware

import (
	"fmt"
	"net/http"

	"github.com/smiyakawa/kiosk-relay/api/responses"
	pkgerrors "github.com/smiyakawa/kiosk-relay/pkg/errors"
	"github.com/smiyakawa/kiosk-relay/pkg/logger"
)

// Recoverer converts handler panics into 500 responses.
func Recoverer(logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if recovered := recover(); recovered != nil {
					err := pkgerrors.New(pkgerrors.CodeInternal, fmt.Sprintf("panic: %v", recovered))
					responses.WriteError(r.Context(), logg, w, err)
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}
