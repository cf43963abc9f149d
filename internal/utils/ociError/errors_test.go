package ociError

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/suite"
	"github.com/the127/blobyard/internal/storageBackends"
	"github.com/the127/blobyard/internal/utils/parsing"
)

type OciErrorTestSuite struct {
	suite.Suite
}

func TestOciErrorTestSuite(t *testing.T) {
	t.Parallel()
	suite.Run(t, new(OciErrorTestSuite))
}

func (s *OciErrorTestSuite) TestFromError() {
	cases := []struct {
		err      error
		httpCode int
		code     OciErrorCode
	}{
		{storageBackends.ErrRepositoryNotFound, http.StatusNotFound, NameUnknown},
		{storageBackends.ErrSessionNotFound, http.StatusNotFound, BlobUploadUnknown},
		{storageBackends.ErrBlobNotFound, http.StatusNotFound, BlobUnknown},
		{storageBackends.NewOffsetConflictError(5, 2), http.StatusRequestedRangeNotSatisfiable, BlobUploadInvalid},
		{fmt.Errorf("%w: bad", parsing.ErrMalformedRange), http.StatusBadRequest, BlobUploadInvalid},
		{storageBackends.ErrDigestMissing, http.StatusBadRequest, DigestInvalid},
		{fmt.Errorf("sha256: %w", storageBackends.ErrDigestInvalid), http.StatusBadRequest, DigestInvalid},
	}

	for _, c := range cases {
		ociError := FromError(c.err)
		s.Require().NotNil(ociError, "error: %v", c.err)
		s.Equal(c.httpCode, ociError.HttpCode, "error: %v", c.err)
		s.Equal(c.code, ociError.Code, "error: %v", c.err)
	}
}

func (s *OciErrorTestSuite) TestFromErrorUnknown() {
	// act
	ociError := FromError(errors.New("boom"))

	// assert
	s.Nil(ociError)
}

func (s *OciErrorTestSuite) TestOffsetConflictCarriesRange() {
	// arrange
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPatch, "/v2/a/b/blobs/uploads/x", nil)

	// act
	HandleHttpError(w, r, storageBackends.NewOffsetConflictError(5, 2))

	// assert
	s.Equal(http.StatusRequestedRangeNotSatisfiable, w.Code)
	s.Equal("0-5", w.Header().Get("Range"))

	var wrapper Wrapper
	s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &wrapper))
	s.Require().Len(wrapper.Errors, 1)
	s.Equal(BlobUploadInvalid, wrapper.Errors[0].Code)
}

func (s *OciErrorTestSuite) TestHeadHasNoBody() {
	// arrange
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodHead, "/v2/a/b/blobs/sha256:abc", nil)

	// act
	HandleHttpError(w, r, storageBackends.ErrBlobNotFound)

	// assert
	s.Equal(http.StatusNotFound, w.Code)
	s.Empty(w.Body.Bytes())
}

func (s *OciErrorTestSuite) TestUnknownErrorIsInternal() {
	// arrange
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/v2/a/b/blobs/uploads/x", nil)

	// act
	HandleHttpError(w, r, errors.New("boom"))

	// assert
	s.Equal(http.StatusInternalServerError, w.Code)
}
