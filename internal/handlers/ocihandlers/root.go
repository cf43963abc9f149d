package ocihandlers

import (
	"net/http"
)

// Root answers the end-1 API version check.
func Root(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Docker-Distribution-API-Version", "registry/2.0")
	w.WriteHeader(http.StatusOK)
}
