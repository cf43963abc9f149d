// Package backendtest holds the behaviour every storage backend variant must
// show. Backend packages run it from their own tests.
package backendtest

import (
	"context"
	"errors"
	"sync"

	"github.com/opencontainers/go-digest"
	"github.com/stretchr/testify/suite"
	"github.com/the127/blobyard/internal/storageBackends"
)

type Suite struct {
	suite.Suite

	// NewBackend is called before every test.
	NewBackend func(options storageBackends.Options) storageBackends.StorageBackend

	backend storageBackends.StorageBackend
	ctx     context.Context
}

func (s *Suite) SetupTest() {
	s.ctx = context.Background()
	s.backend = s.NewBackend(storageBackends.Options{})
}

func (s *Suite) start(repository string) string {
	status, err := s.backend.StartUpload(s.ctx, repository)
	s.Require().NoError(err)
	return status.SessionId
}

func (s *Suite) appendBytes(repository string, id string, start int64, data []byte) *storageBackends.UploadStatus {
	status, err := s.backend.AppendChunk(s.ctx, repository, id, storageBackends.ByteRange{
		Start: start,
		End:   start + int64(len(data)) - 1,
	}, data)
	s.Require().NoError(err)
	return status
}

func (s *Suite) requireOffsetConflict(err error, currentLength int64) {
	var conflict *storageBackends.OffsetConflictError
	s.Require().ErrorAs(err, &conflict)
	s.Equal(currentLength, conflict.CurrentLength)
}

func (s *Suite) TestStartUpload() {
	// act
	status, err := s.backend.StartUpload(s.ctx, "lib/app")

	// assert
	s.Require().NoError(err)
	s.NotEmpty(status.SessionId)
	s.Equal("lib/app", status.Repository)
	s.Equal(int64(0), status.Length)
	s.Equal("/v2/lib/app/blobs/uploads/"+status.SessionId, status.Location())
}

func (s *Suite) TestStartUploadGeneratesDistinctIds() {
	// act
	first := s.start("lib/app")
	second := s.start("lib/app")

	// assert
	s.NotEqual(first, second)
}

func (s *Suite) TestChunkedUploadScenario() {
	// arrange
	id := s.start("lib/app")

	// act
	appended := s.appendBytes("lib/app", id, 0, []byte("hello"))
	completed, err := s.backend.CompleteUpload(s.ctx, "lib/app", id, nil, "sha256:abc", nil)

	// assert
	s.Equal(int64(5), appended.Length)

	s.Require().NoError(err)
	s.Equal(int64(5), completed.Length)
	s.Equal("sha256:abc", completed.Digest)
	s.Nil(completed.Range)
	s.Equal("/v2/lib/app/blobs/sha256:abc", completed.Location())

	_, err = s.backend.GetUploadStatus(s.ctx, "lib/app", id)
	s.ErrorIs(err, storageBackends.ErrSessionNotFound)

	blob, err := s.backend.HeadBlob(s.ctx, "lib/app", "sha256:abc")
	s.Require().NoError(err)
	s.Equal(int64(5), blob.Length)
	s.Equal("sha256:abc", blob.Digest)
}

func (s *Suite) TestGetUploadStatusReportsLength() {
	// arrange
	id := s.start("lib/app")
	s.appendBytes("lib/app", id, 0, []byte("abc"))

	// act
	status, err := s.backend.GetUploadStatus(s.ctx, "lib/app", id)

	// assert
	s.Require().NoError(err)
	s.Equal(int64(3), status.Length)
	s.Equal(id, status.SessionId)
}

func (s *Suite) TestAppendOffsetConflict() {
	// arrange
	id := s.start("lib/app")
	s.appendBytes("lib/app", id, 0, []byte("hello"))

	// act
	_, err := s.backend.AppendChunk(s.ctx, "lib/app", id, storageBackends.ByteRange{Start: 3, End: 7}, []byte("xxxxx"))

	// assert
	s.requireOffsetConflict(err, 5)

	status, err := s.backend.GetUploadStatus(s.ctx, "lib/app", id)
	s.Require().NoError(err)
	s.Equal(int64(5), status.Length)

	retried := s.appendBytes("lib/app", id, 5, []byte("world"))
	s.Equal(int64(10), retried.Length)
}

func (s *Suite) TestAppendRejectsOffsetBeyondLength() {
	// arrange
	id := s.start("lib/app")

	// act
	_, err := s.backend.AppendChunk(s.ctx, "lib/app", id, storageBackends.ByteRange{Start: 1, End: 1}, []byte("x"))

	// assert
	s.requireOffsetConflict(err, 0)
}

func (s *Suite) TestAppendDoesNotValidateDeclaredEnd() {
	// arrange
	id := s.start("lib/app")

	// act
	status, err := s.backend.AppendChunk(s.ctx, "lib/app", id, storageBackends.ByteRange{Start: 0, End: 999}, []byte("hello"))

	// assert
	s.Require().NoError(err)
	s.Equal(int64(5), status.Length)
}

func (s *Suite) TestAppendEmptyChunk() {
	// arrange
	id := s.start("lib/app")

	// act
	status, err := s.backend.AppendChunk(s.ctx, "lib/app", id, storageBackends.ByteRange{Start: 0, End: 0}, nil)

	// assert
	s.Require().NoError(err)
	s.Equal(int64(0), status.Length)
}

func (s *Suite) TestCompleteWithRange() {
	// arrange
	id := s.start("lib/app")
	s.appendBytes("lib/app", id, 0, []byte("hello"))

	// act
	completed, err := s.backend.CompleteUpload(s.ctx, "lib/app", id, []byte("world"), "sha256:def", &storageBackends.ByteRange{Start: 5, End: 9})

	// assert
	s.Require().NoError(err)
	s.Equal(int64(10), completed.Length)
	s.Equal(&storageBackends.ByteRange{Start: 0, End: 10}, completed.Range)

	blob, err := s.backend.HeadBlob(s.ctx, "lib/app", "sha256:def")
	s.Require().NoError(err)
	s.Equal(int64(10), blob.Length)
}

func (s *Suite) TestCompleteWithRangeConflictKeepsSession() {
	// arrange
	id := s.start("lib/app")
	s.appendBytes("lib/app", id, 0, []byte("hello"))

	// act
	_, err := s.backend.CompleteUpload(s.ctx, "lib/app", id, []byte("world"), "sha256:def", &storageBackends.ByteRange{Start: 2, End: 6})

	// assert
	s.requireOffsetConflict(err, 5)

	status, err := s.backend.GetUploadStatus(s.ctx, "lib/app", id)
	s.Require().NoError(err)
	s.Equal(int64(5), status.Length)

	_, err = s.backend.HeadBlob(s.ctx, "lib/app", "sha256:def")
	s.ErrorIs(err, storageBackends.ErrBlobNotFound)
}

func (s *Suite) TestCompleteMonolithic() {
	// arrange
	id := s.start("lib/app")

	// act
	completed, err := s.backend.CompleteUpload(s.ctx, "lib/app", id, []byte("monolithic"), "sha256:mono", nil)

	// assert
	s.Require().NoError(err)
	s.Equal(int64(10), completed.Length)

	blob, err := s.backend.HeadBlob(s.ctx, "lib/app", "sha256:mono")
	s.Require().NoError(err)
	s.Equal(int64(10), blob.Length)
}

func (s *Suite) TestCompleteEmptyBlob() {
	// arrange
	id := s.start("lib/app")

	// act
	completed, err := s.backend.CompleteUpload(s.ctx, "lib/app", id, nil, "sha256:empty", nil)

	// assert
	s.Require().NoError(err)
	s.Equal(int64(0), completed.Length)

	blob, err := s.backend.HeadBlob(s.ctx, "lib/app", "sha256:empty")
	s.Require().NoError(err)
	s.Equal(int64(0), blob.Length)
}

func (s *Suite) TestCompleteRequiresDigest() {
	// arrange
	id := s.start("lib/app")

	// act
	_, err := s.backend.CompleteUpload(s.ctx, "lib/app", id, []byte("hello"), "", nil)

	// assert
	s.ErrorIs(err, storageBackends.ErrDigestMissing)

	status, err := s.backend.GetUploadStatus(s.ctx, "lib/app", id)
	s.Require().NoError(err)
	s.Equal(int64(0), status.Length)
}

func (s *Suite) TestCompleteTwiceFails() {
	// arrange
	id := s.start("lib/app")
	_, err := s.backend.CompleteUpload(s.ctx, "lib/app", id, []byte("hello"), "sha256:abc", nil)
	s.Require().NoError(err)

	// act
	_, err = s.backend.CompleteUpload(s.ctx, "lib/app", id, []byte("other"), "sha256:abc", nil)

	// assert
	s.ErrorIs(err, storageBackends.ErrSessionNotFound)
}

func (s *Suite) TestDigestIsCaseSensitive() {
	// arrange
	id := s.start("lib/app")
	_, err := s.backend.CompleteUpload(s.ctx, "lib/app", id, []byte("hello"), "sha256:abc", nil)
	s.Require().NoError(err)

	// act
	_, err = s.backend.HeadBlob(s.ctx, "lib/app", "sha256:ABC")

	// assert
	s.ErrorIs(err, storageBackends.ErrBlobNotFound)
}

// Overwriting a digest with different content is allowed; the last
// completion wins. This is a policy choice, not a content invariant.
func (s *Suite) TestDigestOverwriteLastWriterWins() {
	// arrange
	first := s.start("lib/app")
	second := s.start("lib/app")

	// act
	_, err := s.backend.CompleteUpload(s.ctx, "lib/app", first, []byte("short"), "sha256:same", nil)
	s.Require().NoError(err)
	_, err = s.backend.CompleteUpload(s.ctx, "lib/app", second, []byte("much longer"), "sha256:same", nil)
	s.Require().NoError(err)

	// assert
	blob, err := s.backend.HeadBlob(s.ctx, "lib/app", "sha256:same")
	s.Require().NoError(err)
	s.Equal(int64(11), blob.Length)
}

func (s *Suite) TestDeleteUpload() {
	// arrange
	id := s.start("lib/app")
	s.appendBytes("lib/app", id, 0, []byte("hello"))

	// act
	deleted, err := s.backend.DeleteUpload(s.ctx, "lib/app", id)

	// assert
	s.Require().NoError(err)
	s.Equal(int64(5), deleted.Length)
	s.Equal(id, deleted.SessionId)

	_, err = s.backend.GetUploadStatus(s.ctx, "lib/app", id)
	s.ErrorIs(err, storageBackends.ErrSessionNotFound)

	_, err = s.backend.AppendChunk(s.ctx, "lib/app", id, storageBackends.ByteRange{Start: 5, End: 5}, []byte("x"))
	s.ErrorIs(err, storageBackends.ErrSessionNotFound)
}

func (s *Suite) TestDeleteCompletedUploadFails() {
	// arrange
	id := s.start("lib/app")
	_, err := s.backend.CompleteUpload(s.ctx, "lib/app", id, []byte("hello"), "sha256:abc", nil)
	s.Require().NoError(err)

	// act
	_, err = s.backend.DeleteUpload(s.ctx, "lib/app", id)

	// assert
	s.ErrorIs(err, storageBackends.ErrSessionNotFound)

	blob, err := s.backend.HeadBlob(s.ctx, "lib/app", "sha256:abc")
	s.Require().NoError(err)
	s.Equal(int64(5), blob.Length)
}

func (s *Suite) TestDeleteTwiceFails() {
	// arrange
	id := s.start("lib/app")
	_, err := s.backend.DeleteUpload(s.ctx, "lib/app", id)
	s.Require().NoError(err)

	// act
	_, err = s.backend.DeleteUpload(s.ctx, "lib/app", id)

	// assert
	s.ErrorIs(err, storageBackends.ErrSessionNotFound)
}

func (s *Suite) TestUnknownRepository() {
	// act
	_, statusErr := s.backend.GetUploadStatus(s.ctx, "lib/missing", "id")
	_, appendErr := s.backend.AppendChunk(s.ctx, "lib/missing", "id", storageBackends.ByteRange{}, []byte("x"))
	_, completeErr := s.backend.CompleteUpload(s.ctx, "lib/missing", "id", nil, "sha256:abc", nil)
	_, deleteErr := s.backend.DeleteUpload(s.ctx, "lib/missing", "id")
	_, headErr := s.backend.HeadBlob(s.ctx, "lib/missing", "sha256:abc")

	// assert
	s.ErrorIs(statusErr, storageBackends.ErrRepositoryNotFound)
	s.ErrorIs(appendErr, storageBackends.ErrRepositoryNotFound)
	s.ErrorIs(completeErr, storageBackends.ErrRepositoryNotFound)
	s.ErrorIs(deleteErr, storageBackends.ErrSessionNotFound)
	s.ErrorIs(headErr, storageBackends.ErrRepositoryNotFound)

	// failed lookups must not create the repository
	_, err := s.backend.HeadBlob(s.ctx, "lib/missing", "sha256:abc")
	s.ErrorIs(err, storageBackends.ErrRepositoryNotFound)
}

func (s *Suite) TestUnknownSession() {
	// arrange
	s.start("lib/app")

	// act
	_, statusErr := s.backend.GetUploadStatus(s.ctx, "lib/app", "unknown")
	_, appendErr := s.backend.AppendChunk(s.ctx, "lib/app", "unknown", storageBackends.ByteRange{}, []byte("x"))
	_, completeErr := s.backend.CompleteUpload(s.ctx, "lib/app", "unknown", nil, "sha256:abc", nil)
	_, deleteErr := s.backend.DeleteUpload(s.ctx, "lib/app", "unknown")
	_, headErr := s.backend.HeadBlob(s.ctx, "lib/app", "sha256:abc")

	// assert
	s.ErrorIs(statusErr, storageBackends.ErrSessionNotFound)
	s.ErrorIs(appendErr, storageBackends.ErrSessionNotFound)
	s.ErrorIs(completeErr, storageBackends.ErrSessionNotFound)
	s.ErrorIs(deleteErr, storageBackends.ErrSessionNotFound)
	s.ErrorIs(headErr, storageBackends.ErrBlobNotFound)
}

func (s *Suite) TestHeadBlobIsIdempotent() {
	// arrange
	id := s.start("lib/app")
	_, err := s.backend.CompleteUpload(s.ctx, "lib/app", id, []byte("hello"), "sha256:abc", nil)
	s.Require().NoError(err)

	// act
	first, firstErr := s.backend.HeadBlob(s.ctx, "lib/app", "sha256:abc")
	second, secondErr := s.backend.HeadBlob(s.ctx, "lib/app", "sha256:abc")

	// assert
	s.Require().NoError(firstErr)
	s.Require().NoError(secondErr)
	s.Equal(first, second)
}

func (s *Suite) TestRepositoryIsolation() {
	// arrange
	idA := s.start("team/a")
	s.start("team/b")
	s.appendBytes("team/a", idA, 0, []byte("hello"))

	// act
	_, statusErr := s.backend.GetUploadStatus(s.ctx, "team/b", idA)
	_, appendErr := s.backend.AppendChunk(s.ctx, "team/b", idA, storageBackends.ByteRange{Start: 5, End: 5}, []byte("x"))
	_, completeErr := s.backend.CompleteUpload(s.ctx, "team/b", idA, nil, "sha256:abc", nil)
	_, deleteErr := s.backend.DeleteUpload(s.ctx, "team/b", idA)

	_, err := s.backend.CompleteUpload(s.ctx, "team/a", idA, nil, "sha256:abc", nil)
	s.Require().NoError(err)
	_, headErr := s.backend.HeadBlob(s.ctx, "team/b", "sha256:abc")

	// assert
	s.ErrorIs(statusErr, storageBackends.ErrSessionNotFound)
	s.ErrorIs(appendErr, storageBackends.ErrSessionNotFound)
	s.ErrorIs(completeErr, storageBackends.ErrSessionNotFound)
	s.ErrorIs(deleteErr, storageBackends.ErrSessionNotFound)
	s.ErrorIs(headErr, storageBackends.ErrBlobNotFound)
}

func (s *Suite) TestCrossSessionIndependence() {
	// arrange
	first := s.start("lib/app")
	second := s.start("lib/app")

	// act
	s.appendBytes("lib/app", first, 0, []byte("aa"))
	s.appendBytes("lib/app", second, 0, []byte("bbbbb"))
	s.appendBytes("lib/app", first, 2, []byte("aaa"))
	s.appendBytes("lib/app", second, 5, []byte("b"))

	firstDone, err := s.backend.CompleteUpload(s.ctx, "lib/app", first, nil, "sha256:first", nil)
	s.Require().NoError(err)
	secondDone, err := s.backend.CompleteUpload(s.ctx, "lib/app", second, nil, "sha256:second", nil)
	s.Require().NoError(err)

	// assert
	s.Equal(int64(5), firstDone.Length)
	s.Equal(int64(6), secondDone.Length)
}

func (s *Suite) TestConcurrentAppendsAtSameOffset() {
	// arrange
	const workers = 16
	id := s.start("lib/app")

	var wg sync.WaitGroup
	errs := make([]error, workers)
	wg.Add(workers)

	// act
	for i := 0; i < workers; i++ {
		go func(i int) {
			defer wg.Done()
			_, errs[i] = s.backend.AppendChunk(s.ctx, "lib/app", id, storageBackends.ByteRange{Start: 0, End: 3}, []byte("abcd"))
		}(i)
	}
	wg.Wait()

	// assert
	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}

		var conflict *storageBackends.OffsetConflictError
		s.True(errors.As(err, &conflict), "unexpected error: %v", err)
	}
	s.Equal(1, succeeded)

	status, err := s.backend.GetUploadStatus(s.ctx, "lib/app", id)
	s.Require().NoError(err)
	s.Equal(int64(4), status.Length)
}

func (s *Suite) TestConcurrentCompletionAtMostOnce() {
	// arrange
	id := s.start("lib/app")
	s.appendBytes("lib/app", id, 0, []byte("base"))

	payloads := [][]byte{[]byte("-one"), []byte("-three")}
	results := make([]*storageBackends.CompletedUpload, len(payloads))
	errs := make([]error, len(payloads))

	var wg sync.WaitGroup
	wg.Add(len(payloads))

	// act
	for i := range payloads {
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = s.backend.CompleteUpload(s.ctx, "lib/app", id, payloads[i], "sha256:race", nil)
		}(i)
	}
	wg.Wait()

	// assert
	winner := -1
	for i, err := range errs {
		if err == nil {
			s.Equal(-1, winner, "more than one completion succeeded")
			winner = i
			continue
		}
		s.ErrorIs(err, storageBackends.ErrSessionNotFound)
	}
	s.Require().NotEqual(-1, winner)

	blob, err := s.backend.HeadBlob(s.ctx, "lib/app", "sha256:race")
	s.Require().NoError(err)
	s.Equal(int64(4+len(payloads[winner])), blob.Length)
	s.Equal(results[winner].Length, blob.Length)
}

func (s *Suite) TestConcurrentRepositories() {
	// arrange
	repositories := []string{"team/a", "team/b", "team/c", "team/d"}

	var wg sync.WaitGroup
	wg.Add(len(repositories))

	// act
	for _, repository := range repositories {
		go func(repository string) {
			defer wg.Done()

			status, err := s.backend.StartUpload(s.ctx, repository)
			if !s.NoError(err) {
				return
			}

			for offset := int64(0); offset < 8; offset++ {
				_, err = s.backend.AppendChunk(s.ctx, repository, status.SessionId, storageBackends.ByteRange{Start: offset, End: offset}, []byte{byte(offset)})
				if !s.NoError(err) {
					return
				}
			}

			_, err = s.backend.CompleteUpload(s.ctx, repository, status.SessionId, nil, "sha256:"+repository, nil)
			s.NoError(err)
		}(repository)
	}
	wg.Wait()

	// assert
	for _, repository := range repositories {
		blob, err := s.backend.HeadBlob(s.ctx, repository, "sha256:"+repository)
		s.Require().NoError(err)
		s.Equal(int64(8), blob.Length)
	}
}

func (s *Suite) TestVerifyDigestAcceptsMatchingContent() {
	// arrange
	backend := s.NewBackend(storageBackends.Options{VerifyDigest: true})
	status, err := backend.StartUpload(s.ctx, "lib/app")
	s.Require().NoError(err)
	expected := digest.FromBytes([]byte("hello world")).String()

	_, err = backend.AppendChunk(s.ctx, "lib/app", status.SessionId, storageBackends.ByteRange{Start: 0, End: 5}, []byte("hello "))
	s.Require().NoError(err)

	// act
	completed, err := backend.CompleteUpload(s.ctx, "lib/app", status.SessionId, []byte("world"), expected, nil)

	// assert
	s.Require().NoError(err)
	s.Equal(int64(11), completed.Length)
}

func (s *Suite) TestVerifyDigestRejectsMismatchAndKeepsSession() {
	// arrange
	backend := s.NewBackend(storageBackends.Options{VerifyDigest: true})
	status, err := backend.StartUpload(s.ctx, "lib/app")
	s.Require().NoError(err)
	_, err = backend.AppendChunk(s.ctx, "lib/app", status.SessionId, storageBackends.ByteRange{Start: 0, End: 4}, []byte("hello"))
	s.Require().NoError(err)
	wrong := digest.FromBytes([]byte("something else")).String()

	// act
	_, err = backend.CompleteUpload(s.ctx, "lib/app", status.SessionId, []byte("!"), wrong, nil)

	// assert
	s.ErrorIs(err, storageBackends.ErrDigestInvalid)

	current, err := backend.GetUploadStatus(s.ctx, "lib/app", status.SessionId)
	s.Require().NoError(err)
	s.Equal(int64(5), current.Length)

	_, err = backend.HeadBlob(s.ctx, "lib/app", wrong)
	s.ErrorIs(err, storageBackends.ErrBlobNotFound)
}
