package middlewares

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/the127/blobyard/internal/logging"
)

func RecoverMiddleware() mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					logging.Logger.Errorw("recovered from panic", "method", r.Method, "path", r.URL.Path, "panic", err)
					http.Error(w, "Internal Server Error", http.StatusInternalServerError)
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}
