package server

import (
	"fmt"
	"net/http"

	"github.com/The127/ioc"
	"github.com/the127/blobyard/internal/config"
	"github.com/the127/blobyard/internal/handlers/ocihandlers"
	"github.com/the127/blobyard/internal/logging"
	"github.com/the127/blobyard/internal/middlewares"

	gh "github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func notFound(w http.ResponseWriter, r *http.Request) {
	logging.Logger.Infof("Not found API Request: %s %s", r.Method, r.URL.Path)
	w.WriteHeader(http.StatusNotFound)
}

func NewRouter(root *ioc.DependencyProvider, serverConfig config.ServerConfig, metricsConfig config.MetricsConfig) *mux.Router {
	r := mux.NewRouter()

	r.NotFoundHandler = http.HandlerFunc(notFound)
	r.MethodNotAllowedHandler = http.HandlerFunc(notFound)

	r.Use(middlewares.RecoverMiddleware())
	r.Use(middlewares.LoggingMiddleware())
	r.Use(middlewares.ScopeMiddleware(root))

	r.Use(gh.CORS(
		gh.AllowedOrigins(serverConfig.AllowedOrigins),
		gh.AllowedMethods([]string{"GET", "HEAD", "POST", "PUT", "DELETE", "PATCH"}),
		gh.AllowedHeaders([]string{"Content-Type", "Content-Range"}),
		gh.ExposedHeaders([]string{"Location", "Range", "Docker-Upload-UUID", "Docker-Content-Digest"}),
		gh.MaxAge(3600),
	))

	if metricsConfig.IsEnabled() {
		r.Handle(metricsConfig.Path, promhttp.Handler()).Methods(http.MethodGet)
	}

	mapOciApi(r)

	return r
}

func Serve(root *ioc.DependencyProvider, serverConfig config.ServerConfig, metricsConfig config.MetricsConfig) *http.Server {
	addr := fmt.Sprintf("%s:%d", serverConfig.Host, serverConfig.Port)
	logging.Logger.Infof("Starting server on %s", addr)
	srv := &http.Server{
		Addr:    addr,
		Handler: NewRouter(root, serverConfig, metricsConfig),
	}

	go serve(srv)
	return srv
}

func serve(srv *http.Server) {
	err := srv.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		panic(fmt.Errorf("error while running server: %w", err))
	}
}

func mapOciApi(r *mux.Router) {
	apiRouter := r.PathPrefix("/v2").Subrouter()

	// implement end-1 api endpoint that shows the support for the oci api specification
	apiRouter.HandleFunc("/", ocihandlers.Root).Methods(http.MethodGet, http.MethodOptions)

	repositoryRouter := apiRouter.PathPrefix("/{namespace}/{name}").Subrouter()
	repositoryRouter.Use(middlewares.RepositoryNameMiddleware())

	repositoryRouter.HandleFunc("/blobs/uploads/", ocihandlers.StartUpload).Methods(http.MethodPost, http.MethodOptions)
	repositoryRouter.HandleFunc("/blobs/uploads/{id}", ocihandlers.GetUploadStatus).Methods(http.MethodGet, http.MethodOptions)
	repositoryRouter.HandleFunc("/blobs/uploads/{id}", ocihandlers.UploadChunk).Methods(http.MethodPatch)
	repositoryRouter.HandleFunc("/blobs/uploads/{id}", ocihandlers.CompleteUpload).Methods(http.MethodPut)
	repositoryRouter.HandleFunc("/blobs/uploads/{id}", ocihandlers.DeleteUpload).Methods(http.MethodDelete)

	repositoryRouter.HandleFunc("/blobs/{digest}", ocihandlers.HeadBlob).Methods(http.MethodHead, http.MethodOptions)
}
