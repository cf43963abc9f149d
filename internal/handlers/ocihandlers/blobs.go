package ocihandlers

import (
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/The127/ioc"
	"github.com/The127/mediatr"
	"github.com/gorilla/mux"
	"github.com/the127/blobyard/internal/commands"
	"github.com/the127/blobyard/internal/config"
	"github.com/the127/blobyard/internal/middlewares"
	"github.com/the127/blobyard/internal/queries"
	"github.com/the127/blobyard/internal/storageBackends"
	"github.com/the127/blobyard/internal/utils/ociError"
	"github.com/the127/blobyard/internal/utils/parsing"
)

func setUploadHeaders(w http.ResponseWriter, status *storageBackends.UploadStatus, rangeValue string) {
	w.Header().Set("Location", status.Location())
	w.Header().Set("Range", rangeValue)
	w.Header().Set("Docker-Upload-UUID", status.SessionId)
}

func StartUpload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	scope := middlewares.GetScope(ctx)
	mediator := ioc.GetDependency[mediatr.Mediator](scope)

	status, err := mediatr.Send[*storageBackends.UploadStatus](ctx, mediator, commands.StartUpload{
		Repository: middlewares.GetRepositoryName(ctx),
	})
	if err != nil {
		ociError.HandleHttpError(w, r, err)
		return
	}

	setUploadHeaders(w, status, "bytes=0-0")
	w.Header().Set("Content-Length", "0")
	w.WriteHeader(http.StatusAccepted)
}

func GetUploadStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	scope := middlewares.GetScope(ctx)
	mediator := ioc.GetDependency[mediatr.Mediator](scope)

	status, err := mediatr.Send[*storageBackends.UploadStatus](ctx, mediator, queries.GetUploadStatus{
		Repository: middlewares.GetRepositoryName(ctx),
		SessionId:  mux.Vars(r)["id"],
	})
	if err != nil {
		ociError.HandleHttpError(w, r, err)
		return
	}

	setUploadHeaders(w, status, fmt.Sprintf("bytes=0-%d", status.Length))
	w.WriteHeader(http.StatusNoContent)
}

func UploadChunk(w http.ResponseWriter, r *http.Request) {
	byteRange, err := parsing.ParseRange(r.Header.Get("Content-Range"))
	if err != nil {
		ociError.HandleHttpError(w, r, err)
		return
	}

	data, err := io.ReadAll(r.Body)
	if err != nil {
		ociError.HandleHttpError(w, r, fmt.Errorf("reading chunk: %w", err))
		return
	}

	ctx := r.Context()
	scope := middlewares.GetScope(ctx)
	mediator := ioc.GetDependency[mediatr.Mediator](scope)

	status, err := mediatr.Send[*storageBackends.UploadStatus](ctx, mediator, commands.AppendChunk{
		Repository: middlewares.GetRepositoryName(ctx),
		SessionId:  mux.Vars(r)["id"],
		Range:      byteRange,
		Data:       data,
	})
	if err != nil {
		ociError.HandleHttpError(w, r, err)
		return
	}

	setUploadHeaders(w, status, fmt.Sprintf("0-%d", status.Length))
	w.WriteHeader(http.StatusAccepted)
}

func CompleteUpload(w http.ResponseWriter, r *http.Request) {
	digest := r.URL.Query().Get("digest")
	allowMissingDigest := config.C.Storage.AllowDigestlessCompletion

	if !allowMissingDigest {
		_, err := parsing.ParseDigest(digest)
		if err != nil {
			ociError.HandleHttpError(w, r, err)
			return
		}
	}

	byteRange, err := parsing.ParseOptionalRange(r.Header.Get("Content-Range"))
	if err != nil {
		ociError.HandleHttpError(w, r, err)
		return
	}

	data, err := io.ReadAll(r.Body)
	if err != nil {
		ociError.HandleHttpError(w, r, fmt.Errorf("reading upload: %w", err))
		return
	}

	ctx := r.Context()
	scope := middlewares.GetScope(ctx)
	mediator := ioc.GetDependency[mediatr.Mediator](scope)

	response, err := mediatr.Send[*commands.CompleteUploadResponse](ctx, mediator, commands.CompleteUpload{
		Repository:         middlewares.GetRepositoryName(ctx),
		SessionId:          mux.Vars(r)["id"],
		Data:               data,
		Digest:             digest,
		Range:              byteRange,
		AllowMissingDigest: allowMissingDigest,
	})
	if err != nil {
		ociError.HandleHttpError(w, r, err)
		return
	}

	if response.Resumed != nil {
		setUploadHeaders(w, response.Resumed, fmt.Sprintf("0-%d", response.Resumed.Length))
		w.WriteHeader(http.StatusAccepted)
		return
	}

	completed := response.Completed
	w.Header().Set("Location", completed.Location())
	w.Header().Set("Docker-Content-Digest", completed.Digest)
	if completed.Range != nil {
		w.Header().Set("Range", completed.Range.String())
	}
	w.WriteHeader(http.StatusCreated)
}

func DeleteUpload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	scope := middlewares.GetScope(ctx)
	mediator := ioc.GetDependency[mediatr.Mediator](scope)

	status, err := mediatr.Send[*storageBackends.UploadStatus](ctx, mediator, commands.DeleteUpload{
		Repository: middlewares.GetRepositoryName(ctx),
		SessionId:  mux.Vars(r)["id"],
	})
	if err != nil {
		ociError.HandleHttpError(w, r, err)
		return
	}

	setUploadHeaders(w, status, fmt.Sprintf("0-%d", status.Length))
	w.WriteHeader(http.StatusOK)
}

func HeadBlob(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	scope := middlewares.GetScope(ctx)
	mediator := ioc.GetDependency[mediatr.Mediator](scope)

	info, err := mediatr.Send[*storageBackends.BlobInfo](ctx, mediator, queries.HeadBlob{
		Repository: middlewares.GetRepositoryName(ctx),
		Digest:     mux.Vars(r)["digest"],
	})
	if err != nil {
		ociError.HandleHttpError(w, r, err)
		return
	}

	w.Header().Set("Content-Length", strconv.FormatInt(info.Length, 10))
	w.Header().Set("Docker-Content-Digest", info.Digest)
	w.WriteHeader(http.StatusOK)
}
