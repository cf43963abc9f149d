package ociError

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/the127/blobyard/internal/args"
	"github.com/the127/blobyard/internal/logging"
	"github.com/the127/blobyard/internal/storageBackends"
	"github.com/the127/blobyard/internal/utils/parsing"
)

type OciErrorCode string

const (
	// BlobUnknown code-1: blob unknown to registry
	BlobUnknown OciErrorCode = "BLOB_UNKNOWN"

	// BlobUploadInvalid code-2: blob upload invalid
	BlobUploadInvalid OciErrorCode = "BLOB_UPLOAD_INVALID"

	// BlobUploadUnknown code-3: blob upload unknown to registry
	BlobUploadUnknown OciErrorCode = "BLOB_UPLOAD_UNKNOWN"

	// DigestInvalid code-4: provided digest did not match uploaded content
	DigestInvalid OciErrorCode = "DIGEST_INVALID"

	// NameUnknown code-9: repository name not known to registry
	NameUnknown OciErrorCode = "NAME_UNKNOWN"

	// Unsupported code-13: the operation is unsupported
	Unsupported OciErrorCode = "UNSUPPORTED"
)

type OciError struct {
	HttpCode int               `json:"-"`
	Code     OciErrorCode      `json:"code"`
	Message  string            `json:"message,omitempty"`
	Headers  map[string]string `json:"-"`
}

func NewOciError(code OciErrorCode) *OciError {
	return &OciError{
		HttpCode: http.StatusBadRequest,
		Code:     code,
		Headers:  make(map[string]string),
	}
}

func (e *OciError) WithMessage(message string) *OciError {
	e.Message = message
	return e
}

func (e *OciError) WithHttpCode(httpCode int) *OciError {
	e.HttpCode = httpCode
	return e
}

func (e *OciError) WithHeader(key, value string) *OciError {
	e.Headers[key] = value
	return e
}

func (e *OciError) Error() string {
	if e.Message == "" {
		return string(e.Code)
	}

	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

type Wrapper struct {
	Errors []*OciError `json:"errors"`
}

// FromError translates storage and parse errors into their wire form.
// Errors it does not know are returned as nil.
func FromError(err error) *OciError {
	var ociError *OciError
	if errors.As(err, &ociError) {
		return ociError
	}

	var conflict *storageBackends.OffsetConflictError

	switch {
	case errors.Is(err, storageBackends.ErrRepositoryNotFound):
		return NewOciError(NameUnknown).
			WithMessage("repository name not known to registry").
			WithHttpCode(http.StatusNotFound)

	case errors.Is(err, storageBackends.ErrSessionNotFound):
		return NewOciError(BlobUploadUnknown).
			WithMessage("blob upload unknown to registry").
			WithHttpCode(http.StatusNotFound)

	case errors.Is(err, storageBackends.ErrBlobNotFound):
		return NewOciError(BlobUnknown).
			WithMessage("blob unknown to registry").
			WithHttpCode(http.StatusNotFound)

	case errors.As(err, &conflict):
		return NewOciError(BlobUploadInvalid).
			WithMessage(conflict.Error()).
			WithHttpCode(http.StatusRequestedRangeNotSatisfiable).
			WithHeader("Range", fmt.Sprintf("0-%d", conflict.CurrentLength))

	case errors.Is(err, parsing.ErrMalformedRange):
		return NewOciError(BlobUploadInvalid).
			WithMessage(err.Error())

	case errors.Is(err, storageBackends.ErrDigestMissing):
		return NewOciError(DigestInvalid).
			WithMessage("digest query parameter is required")

	case errors.Is(err, storageBackends.ErrDigestInvalid):
		return NewOciError(DigestInvalid).
			WithMessage(err.Error())

	default:
		return nil
	}
}

func HandleHttpError(w http.ResponseWriter, r *http.Request, err error) {
	var message string

	if ociError := FromError(err); ociError != nil {
		wrapper := Wrapper{
			Errors: []*OciError{ociError},
		}

		for k, v := range ociError.Headers {
			w.Header().Set(k, v)
		}

		logging.Logger.Errorf("HTTP Error: %d %s", ociError.HttpCode, ociError.Error())

		if r.Method == http.MethodHead {
			w.WriteHeader(ociError.HttpCode)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(ociError.HttpCode)

		err = json.NewEncoder(w).Encode(wrapper)
		if err != nil {
			logging.Logger.Errorf("writing error response: %v", err)
		}
		return
	}

	if args.IsProduction() {
		message = "Internal Server Error"
	} else {
		message = err.Error()
	}

	logging.Logger.Errorf("HTTP Error: %d %s", http.StatusInternalServerError, message)

	if r.Method == http.MethodHead {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	http.Error(w, message, http.StatusInternalServerError)
}
