package directory

import (
	"context"
	"os"
	"path"
	"testing"

	"github.com/stretchr/testify/suite"
	"github.com/the127/blobyard/internal/config"
	"github.com/the127/blobyard/internal/storageBackends"
	"github.com/the127/blobyard/internal/storageBackends/backendtest"
)

func TestBackendSuite(t *testing.T) {
	t.Parallel()
	suite.Run(t, &backendtest.Suite{
		NewBackend: func(options storageBackends.Options) storageBackends.StorageBackend {
			root := t.TempDir()
			backend, err := New(config.DirectoryStorageConfig{
				Path:     path.Join(root, "blobs"),
				TempPath: path.Join(root, "uploads"),
			}, options)
			if err != nil {
				t.Fatal(err)
			}
			return backend
		},
	})
}

type DirectoryTestSuite struct {
	suite.Suite
	config config.DirectoryStorageConfig
	ctx    context.Context
}

func TestDirectoryTestSuite(t *testing.T) {
	t.Parallel()
	suite.Run(t, new(DirectoryTestSuite))
}

func (s *DirectoryTestSuite) SetupTest() {
	root := s.T().TempDir()
	s.config = config.DirectoryStorageConfig{
		Path:     path.Join(root, "blobs"),
		TempPath: path.Join(root, "uploads"),
	}
	s.ctx = context.Background()
}

func (s *DirectoryTestSuite) newBackend() storageBackends.StorageBackend {
	backend, err := New(s.config, storageBackends.Options{})
	s.Require().NoError(err)
	return backend
}

func (s *DirectoryTestSuite) TestBlobFileHoldsUploadedBytes() {
	// arrange
	backend := s.newBackend()
	status, err := backend.StartUpload(s.ctx, "lib/app")
	s.Require().NoError(err)
	_, err = backend.AppendChunk(s.ctx, "lib/app", status.SessionId, storageBackends.ByteRange{Start: 0, End: 4}, []byte("hello"))
	s.Require().NoError(err)

	// act
	_, err = backend.CompleteUpload(s.ctx, "lib/app", status.SessionId, []byte(" world"), "sha256:abc", nil)

	// assert
	s.Require().NoError(err)
	content, err := os.ReadFile(path.Join(s.config.Path, fileName("lib/app"), fileName("sha256:abc")))
	s.Require().NoError(err)
	s.Equal([]byte("hello world"), content)

	_, err = os.Stat(path.Join(s.config.TempPath, fileName("lib/app"), fileName(status.SessionId)))
	s.ErrorIs(err, os.ErrNotExist)
}

func (s *DirectoryTestSuite) TestDeleteRemovesUploadFile() {
	// arrange
	backend := s.newBackend()
	status, err := backend.StartUpload(s.ctx, "lib/app")
	s.Require().NoError(err)

	// act
	_, err = backend.DeleteUpload(s.ctx, "lib/app", status.SessionId)

	// assert
	s.Require().NoError(err)
	_, err = os.Stat(path.Join(s.config.TempPath, fileName("lib/app"), fileName(status.SessionId)))
	s.ErrorIs(err, os.ErrNotExist)
}

func (s *DirectoryTestSuite) TestStateSurvivesRestart() {
	// arrange
	first := s.newBackend()
	status, err := first.StartUpload(s.ctx, "lib/app")
	s.Require().NoError(err)
	_, err = first.AppendChunk(s.ctx, "lib/app", status.SessionId, storageBackends.ByteRange{Start: 0, End: 2}, []byte("abc"))
	s.Require().NoError(err)

	done, err := first.StartUpload(s.ctx, "lib/app")
	s.Require().NoError(err)
	_, err = first.CompleteUpload(s.ctx, "lib/app", done.SessionId, []byte("blob"), "sha256:abc", nil)
	s.Require().NoError(err)

	// act
	second := s.newBackend()
	resumed, statusErr := second.GetUploadStatus(s.ctx, "lib/app", status.SessionId)
	blob, headErr := second.HeadBlob(s.ctx, "lib/app", "sha256:abc")

	// assert
	s.Require().NoError(statusErr)
	s.Equal(int64(3), resumed.Length)

	s.Require().NoError(headErr)
	s.Equal(int64(4), blob.Length)

	appended, err := second.AppendChunk(s.ctx, "lib/app", status.SessionId, storageBackends.ByteRange{Start: 3, End: 3}, []byte("d"))
	s.Require().NoError(err)
	s.Equal(int64(4), appended.Length)
}

func (s *DirectoryTestSuite) TestPathLikeNamesStayInsideRoot() {
	// arrange
	backend := s.newBackend()

	// act
	_, statusErr := backend.GetUploadStatus(s.ctx, "../..", "x")
	status, err := backend.StartUpload(s.ctx, "lib/app")
	s.Require().NoError(err)
	_, sessionErr := backend.GetUploadStatus(s.ctx, "lib/app", "../"+status.SessionId)

	// assert
	s.ErrorIs(statusErr, storageBackends.ErrRepositoryNotFound)
	s.ErrorIs(sessionErr, storageBackends.ErrSessionNotFound)
}

func (s *DirectoryTestSuite) TestFileName() {
	// act
	name := fileName("sha256:abc/../x")

	// assert
	s.NotContains(name, "/")
	s.NotContains(name, ":")
}
