package kvstore

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/suite"
	"github.com/the127/blobyard/internal/services/kv"
	"github.com/the127/blobyard/internal/storageBackends"
	"github.com/the127/blobyard/internal/storageBackends/backendtest"
)

func TestBackendSuite(t *testing.T) {
	t.Parallel()
	suite.Run(t, &backendtest.Suite{
		NewBackend: func(options storageBackends.Options) storageBackends.StorageBackend {
			backend, err := New(kv.NewMemoryStore(), options)
			if err != nil {
				t.Fatal(err)
			}
			return backend
		},
	})
}

var errStoreUnavailable = errors.New("store unavailable")

// failingStore fails deletes and blob writes on demand.
type failingStore struct {
	kv.Store
	failDelete    bool
	failBlobWrite bool
}

func (f *failingStore) Delete(ctx context.Context, key string) error {
	if f.failDelete {
		return errStoreUnavailable
	}
	return f.Store.Delete(ctx, key)
}

func (f *failingStore) Set(ctx context.Context, key string, value string, opts ...kv.Option) error {
	if f.failBlobWrite && strings.HasPrefix(key, "blob:") {
		return errStoreUnavailable
	}
	return f.Store.Set(ctx, key, value, opts...)
}

type KvBackendTestSuite struct {
	suite.Suite
	store kv.Store
	ctx   context.Context
}

func TestKvBackendTestSuite(t *testing.T) {
	t.Parallel()
	suite.Run(t, new(KvBackendTestSuite))
}

func (s *KvBackendTestSuite) SetupTest() {
	s.store = kv.NewMemoryStore()
	s.ctx = context.Background()
}

func (s *KvBackendTestSuite) newBackend() storageBackends.StorageBackend {
	backend, err := New(s.store, storageBackends.Options{})
	s.Require().NoError(err)
	return backend
}

func (s *KvBackendTestSuite) TestPrepare() {
	// arrange
	backend := s.newBackend()

	// act
	err := backend.(storageBackends.Preparer).Prepare(s.ctx)

	// assert
	s.NoError(err)
}

func (s *KvBackendTestSuite) TestBlobValueHoldsUploadedBytes() {
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
	value, ok, err := s.store.Get(s.ctx, newRepository("lib/app").blobKey("sha256:abc"))
	s.Require().NoError(err)
	s.True(ok)
	s.Equal("hello world", value)

	_, ok, err = s.store.Get(s.ctx, newRepository("lib/app").uploadKey(status.SessionId))
	s.Require().NoError(err)
	s.False(ok)
}

func (s *KvBackendTestSuite) TestStateSurvivesRestart() {
	// arrange
	first := s.newBackend()
	status, err := first.StartUpload(s.ctx, "lib/app")
	s.Require().NoError(err)
	_, err = first.AppendChunk(s.ctx, "lib/app", status.SessionId, storageBackends.ByteRange{Start: 0, End: 2}, []byte("abc"))
	s.Require().NoError(err)

	// act
	second := s.newBackend()
	resumed, err := second.GetUploadStatus(s.ctx, "lib/app", status.SessionId)

	// assert
	s.Require().NoError(err)
	s.Equal(int64(3), resumed.Length)
}

func (s *KvBackendTestSuite) TestRepositoryKeysDoNotCollide() {
	// act
	a := newRepository("a:b").uploadKey("c")
	b := newRepository("a").uploadKey("b:c")

	// assert
	s.NotEqual(a, b)
}

func (s *KvBackendTestSuite) startWithHello(backend storageBackends.StorageBackend) string {
	status, err := backend.StartUpload(s.ctx, "lib/app")
	s.Require().NoError(err)
	_, err = backend.AppendChunk(s.ctx, "lib/app", status.SessionId, storageBackends.ByteRange{Start: 0, End: 4}, []byte("hello"))
	s.Require().NoError(err)
	return status.SessionId
}

func (s *KvBackendTestSuite) TestFailedSessionRemovalCommitsNothing() {
	// arrange
	store := &failingStore{Store: s.store}
	backend, err := New(store, storageBackends.Options{})
	s.Require().NoError(err)
	id := s.startWithHello(backend)
	store.failDelete = true

	// act
	_, err = backend.CompleteUpload(s.ctx, "lib/app", id, []byte("AAA"), "sha256:x", nil)

	// assert
	s.ErrorIs(err, errStoreUnavailable)
	_, err = backend.HeadBlob(s.ctx, "lib/app", "sha256:x")
	s.ErrorIs(err, storageBackends.ErrBlobNotFound)
	status, err := backend.GetUploadStatus(s.ctx, "lib/app", id)
	s.Require().NoError(err)
	s.Equal(int64(5), status.Length)
}

func (s *KvBackendTestSuite) TestRetryAfterFailedSessionRemovalCommitsOnce() {
	// arrange
	store := &failingStore{Store: s.store}
	backend, err := New(store, storageBackends.Options{})
	s.Require().NoError(err)
	id := s.startWithHello(backend)
	store.failDelete = true
	_, err = backend.CompleteUpload(s.ctx, "lib/app", id, []byte("AAA"), "sha256:x", nil)
	s.Require().Error(err)
	store.failDelete = false

	// act
	_, err = backend.CompleteUpload(s.ctx, "lib/app", id, []byte(" world!!"), "sha256:x", nil)
	_, again := backend.CompleteUpload(s.ctx, "lib/app", id, []byte("more"), "sha256:x", nil)

	// assert
	s.Require().NoError(err)
	s.ErrorIs(again, storageBackends.ErrSessionNotFound)
	info, err := backend.HeadBlob(s.ctx, "lib/app", "sha256:x")
	s.Require().NoError(err)
	s.Equal(int64(13), info.Length)
}

func (s *KvBackendTestSuite) TestFailedBlobWriteRestoresSession() {
	// arrange
	store := &failingStore{Store: s.store}
	backend, err := New(store, storageBackends.Options{})
	s.Require().NoError(err)
	id := s.startWithHello(backend)
	store.failBlobWrite = true

	// act
	_, err = backend.CompleteUpload(s.ctx, "lib/app", id, []byte("AAA"), "sha256:x", nil)

	// assert
	s.ErrorIs(err, errStoreUnavailable)
	_, err = backend.HeadBlob(s.ctx, "lib/app", "sha256:x")
	s.ErrorIs(err, storageBackends.ErrBlobNotFound)
	status, err := backend.GetUploadStatus(s.ctx, "lib/app", id)
	s.Require().NoError(err)
	s.Equal(int64(5), status.Length)
}
