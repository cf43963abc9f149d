package directory

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"sync"

	"github.com/google/uuid"
	"github.com/the127/blobyard/internal/config"
	"github.com/the127/blobyard/internal/logging"
	"github.com/the127/blobyard/internal/storageBackends"
	"github.com/the127/blobyard/internal/storageBackends/repodir"
	"github.com/the127/blobyard/internal/storageBackends/verify"
	"github.com/the127/blobyard/internal/utils"
)

type backend struct {
	path         string
	tempPath     string
	options      storageBackends.Options
	repositories *repodir.Directory[*repository]
}

// fileName makes repository names, session ids and digests safe to use as a
// single path element.
func fileName(value string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(value))
}

func New(c config.DirectoryStorageConfig, options storageBackends.Options) (storageBackends.StorageBackend, error) {
	err := os.MkdirAll(c.Path, os.ModePerm)
	if err != nil {
		return nil, fmt.Errorf("ensuring path exists: %w", err)
	}

	err = os.MkdirAll(c.TempPath, os.ModePerm)
	if err != nil {
		return nil, fmt.Errorf("ensuring temp path exists: %w", err)
	}

	b := &backend{
		path:     c.Path,
		tempPath: c.TempPath,
		options:  options,
	}

	b.repositories, err = repodir.New(b.newRepository)
	if err != nil {
		return nil, fmt.Errorf("creating directory backend: %w", err)
	}

	return b, nil
}

func (b *backend) newRepository(name string) *repository {
	return &repository{
		blobsPath:   path.Join(b.path, fileName(name)),
		uploadsPath: path.Join(b.tempPath, fileName(name)),
		sessions:    make(map[string]*session),
	}
}

// repositoryExists finds repositories created by an earlier process.
func (b *backend) repositoryExists(name string) (bool, error) {
	for _, dir := range []string{path.Join(b.path, fileName(name)), path.Join(b.tempPath, fileName(name))} {
		_, err := os.Stat(dir)
		switch {
		case err == nil:
			return true, nil

		case errors.Is(err, os.ErrNotExist):
			continue

		default:
			return false, fmt.Errorf("checking repository directory: %w", err)
		}
	}

	return false, nil
}

func (b *backend) getRepository(name string) (*repository, error) {
	repo, ok, err := b.repositories.GetOrLoad(name, b.repositoryExists)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, storageBackends.ErrRepositoryNotFound
	}

	return repo, nil
}

func (b *backend) StartUpload(_ context.Context, repositoryName string) (*storageBackends.UploadStatus, error) {
	repo := b.repositories.GetOrCreate(repositoryName)

	err := repo.ensureDirectories()
	if err != nil {
		return nil, err
	}

	id := uuid.New().String()
	err = repo.createSession(id)
	if err != nil {
		return nil, err
	}

	logging.Logger.Debugw("upload started", "repository", repositoryName, "session", id)

	return &storageBackends.UploadStatus{
		Repository: repositoryName,
		SessionId:  id,
		Length:     0,
	}, nil
}

func (b *backend) GetUploadStatus(_ context.Context, repositoryName string, id string) (*storageBackends.UploadStatus, error) {
	repo, err := b.getRepository(repositoryName)
	if err != nil {
		return nil, err
	}

	s, err := repo.getSession(id)
	if err != nil {
		return nil, err
	}

	length, err := s.currentLength()
	if err != nil {
		return nil, err
	}

	return &storageBackends.UploadStatus{
		Repository: repositoryName,
		SessionId:  id,
		Length:     length,
	}, nil
}

func (b *backend) AppendChunk(_ context.Context, repositoryName string, id string, byteRange storageBackends.ByteRange, data []byte) (*storageBackends.UploadStatus, error) {
	repo, err := b.getRepository(repositoryName)
	if err != nil {
		return nil, err
	}

	s, err := repo.getSession(id)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, storageBackends.ErrSessionNotFound
	}

	err = storageBackends.CheckOffset(s.length, byteRange.Start)
	if err != nil {
		return nil, err
	}

	err = s.write(data)
	if err != nil {
		return nil, err
	}

	logging.Logger.Debugw("chunk appended", "repository", repositoryName, "session", id, "range", byteRange.String(), "length", s.length)

	return &storageBackends.UploadStatus{
		Repository: repositoryName,
		SessionId:  id,
		Length:     s.length,
	}, nil
}

func (b *backend) CompleteUpload(_ context.Context, repositoryName string, id string, data []byte, digest string, byteRange *storageBackends.ByteRange) (*storageBackends.CompletedUpload, error) {
	if digest == "" {
		return nil, storageBackends.ErrDigestMissing
	}

	repo, err := b.getRepository(repositoryName)
	if err != nil {
		return nil, err
	}

	s, err := repo.getSession(id)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, storageBackends.ErrSessionNotFound
	}

	if byteRange != nil {
		err = storageBackends.CheckOffset(s.length, byteRange.Start)
		if err != nil {
			return nil, err
		}
	}

	if b.options.VerifyDigest {
		err = s.verify(digest, data)
		if err != nil {
			return nil, err
		}
	}

	previousLength := s.length
	err = s.write(data)
	if err != nil {
		return nil, err
	}

	err = repo.commitBlob(s.path, digest)
	if err != nil {
		s.truncate(previousLength)
		return nil, err
	}

	s.closed = true
	repo.forgetSession(id)

	logging.Logger.Debugw("upload completed", "repository", repositoryName, "session", id, "digest", digest, "length", s.length)

	result := &storageBackends.CompletedUpload{
		Repository: repositoryName,
		Digest:     digest,
		Length:     s.length,
	}
	if byteRange != nil {
		result.Range = &storageBackends.ByteRange{Start: 0, End: s.length}
	}

	return result, nil
}

func (b *backend) DeleteUpload(_ context.Context, repositoryName string, id string) (*storageBackends.UploadStatus, error) {
	repo, err := b.getRepository(repositoryName)
	if errors.Is(err, storageBackends.ErrRepositoryNotFound) {
		return nil, storageBackends.ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}

	s, err := repo.getSession(id)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, storageBackends.ErrSessionNotFound
	}

	err = os.Remove(s.path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("removing upload file: %w", err)
	}

	s.closed = true
	repo.forgetSession(id)

	logging.Logger.Debugw("upload deleted", "repository", repositoryName, "session", id, "length", s.length)

	return &storageBackends.UploadStatus{
		Repository: repositoryName,
		SessionId:  id,
		Length:     s.length,
	}, nil
}

func (b *backend) HeadBlob(_ context.Context, repositoryName string, digest string) (*storageBackends.BlobInfo, error) {
	repo, err := b.getRepository(repositoryName)
	if err != nil {
		return nil, err
	}

	length, err := repo.blobLength(digest)
	if err != nil {
		return nil, err
	}

	return &storageBackends.BlobInfo{
		Repository: repositoryName,
		Digest:     digest,
		Length:     length,
	}, nil
}

type repository struct {
	blobsPath   string
	uploadsPath string

	sessionsMu sync.Mutex
	sessions   map[string]*session

	blobsMu sync.RWMutex
}

func (r *repository) ensureDirectories() error {
	err := os.MkdirAll(r.blobsPath, os.ModePerm)
	if err != nil {
		return fmt.Errorf("creating blob directory: %w", err)
	}

	err = os.MkdirAll(r.uploadsPath, os.ModePerm)
	if err != nil {
		return fmt.Errorf("creating upload directory: %w", err)
	}

	return nil
}

func (r *repository) createSession(id string) error {
	filePath := path.Join(r.uploadsPath, fileName(id))
	err := os.WriteFile(filePath, []byte{}, 0o644)
	if err != nil {
		return fmt.Errorf("creating upload file: %w", err)
	}

	r.sessionsMu.Lock()
	defer r.sessionsMu.Unlock()

	r.sessions[id] = &session{path: filePath}
	return nil
}

// getSession returns the tracked session or adopts an upload file left by an
// earlier process.
func (r *repository) getSession(id string) (*session, error) {
	r.sessionsMu.Lock()
	defer r.sessionsMu.Unlock()

	s, ok := r.sessions[id]
	if ok {
		return s, nil
	}

	filePath := path.Join(r.uploadsPath, fileName(id))
	info, err := os.Stat(filePath)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return nil, storageBackends.ErrSessionNotFound

	case err != nil:
		return nil, fmt.Errorf("checking upload file: %w", err)
	}

	s = &session{
		path:   filePath,
		length: info.Size(),
	}
	r.sessions[id] = s
	return s, nil
}

func (r *repository) forgetSession(id string) {
	r.sessionsMu.Lock()
	defer r.sessionsMu.Unlock()

	delete(r.sessions, id)
}

// commitBlob moves a finished upload file into place; the rename makes the
// blob visible all at once and replaces any earlier blob of the same digest.
func (r *repository) commitBlob(uploadPath string, digest string) error {
	r.blobsMu.Lock()
	defer r.blobsMu.Unlock()

	err := os.Rename(uploadPath, path.Join(r.blobsPath, fileName(digest)))
	if err != nil {
		return fmt.Errorf("moving upload into blob directory: %w", err)
	}

	return nil
}

func (r *repository) blobLength(digest string) (int64, error) {
	r.blobsMu.RLock()
	defer r.blobsMu.RUnlock()

	info, err := os.Stat(path.Join(r.blobsPath, fileName(digest)))
	switch {
	case errors.Is(err, os.ErrNotExist):
		return 0, storageBackends.ErrBlobNotFound

	case err != nil:
		return 0, fmt.Errorf("checking blob file: %w", err)
	}

	return info.Size(), nil
}

// session fields other than path are guarded by mu. A closed session has
// been completed or deleted and must be treated as unknown.
type session struct {
	mu     sync.Mutex
	path   string
	length int64
	closed bool
}

func (s *session) currentLength() (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, storageBackends.ErrSessionNotFound
	}

	return s.length, nil
}

// write appends data at the end of the upload file. A failed write is rolled
// back so the file length always matches s.length.
func (s *session) write(data []byte) error {
	if len(data) == 0 {
		return nil
	}

	file, err := os.OpenFile(s.path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("opening upload file: %w", err)
	}

	defer utils.LogOnError(file.Close, "closing upload file")

	_, err = file.Write(data)
	if err != nil {
		s.truncate(s.length)
		return fmt.Errorf("writing chunk to upload file: %w", err)
	}

	s.length += int64(len(data))
	return nil
}

func (s *session) truncate(length int64) {
	err := os.Truncate(s.path, length)
	if err != nil {
		logging.Logger.Errorf("truncating upload file %s: %v", s.path, err)
		return
	}

	s.length = length
}

func (s *session) verify(digest string, data []byte) error {
	file, err := os.Open(s.path)
	if err != nil {
		return fmt.Errorf("opening upload file: %w", err)
	}

	defer utils.LogOnError(file.Close, "closing upload file")

	return verify.Content(digest, io.MultiReader(io.LimitReader(file, s.length), bytes.NewReader(data)))
}
