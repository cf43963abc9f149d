package middlewares

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"
)

type repositoryNameKeyType string

// RepositoryNameMiddleware joins the {namespace} and {name} route segments
// into the repository key used by the storage backend.
func RepositoryNameMiddleware() mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			vars := mux.Vars(r)
			repository := vars["namespace"] + "/" + vars["name"]

			r = r.WithContext(ContextWithRepositoryName(r.Context(), repository))
			next.ServeHTTP(w, r)
		})
	}
}

func ContextWithRepositoryName(ctx context.Context, repository string) context.Context {
	return context.WithValue(ctx, repositoryNameKeyType("repository"), repository)
}

func GetRepositoryName(ctx context.Context) string {
	return ctx.Value(repositoryNameKeyType("repository")).(string)
}
