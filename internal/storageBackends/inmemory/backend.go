package inmemory

import (
	"bytes"
	"context"
	"fmt"

	"github.com/the127/blobyard/internal/logging"
	"github.com/the127/blobyard/internal/storageBackends"
	"github.com/the127/blobyard/internal/storageBackends/repodir"
	"github.com/the127/blobyard/internal/storageBackends/verify"
)

type repository struct {
	sessions *sessionTable
	blobs    *blobStore
}

func newRepository(string) *repository {
	return &repository{
		sessions: newSessionTable(),
		blobs:    newBlobStore(),
	}
}

type backend struct {
	repositories *repodir.Directory[*repository]
	options      storageBackends.Options
}

func New(options storageBackends.Options) (storageBackends.StorageBackend, error) {
	repositories, err := repodir.New(newRepository)
	if err != nil {
		return nil, fmt.Errorf("creating in-memory backend: %w", err)
	}

	return &backend{
		repositories: repositories,
		options:      options,
	}, nil
}

func (b *backend) StartUpload(_ context.Context, repositoryName string) (*storageBackends.UploadStatus, error) {
	repo := b.repositories.GetOrCreate(repositoryName)
	id := repo.sessions.create()

	logging.Logger.Debugw("upload started", "repository", repositoryName, "session", id)

	return &storageBackends.UploadStatus{
		Repository: repositoryName,
		SessionId:  id,
		Length:     0,
	}, nil
}

func (b *backend) GetUploadStatus(_ context.Context, repositoryName string, id string) (*storageBackends.UploadStatus, error) {
	repo, ok := b.repositories.Get(repositoryName)
	if !ok {
		return nil, storageBackends.ErrRepositoryNotFound
	}

	length, err := repo.sessions.length(id)
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
	repo, ok := b.repositories.Get(repositoryName)
	if !ok {
		return nil, storageBackends.ErrRepositoryNotFound
	}

	length, err := repo.sessions.append(id, byteRange.Start, data)
	if err != nil {
		return nil, err
	}

	logging.Logger.Debugw("chunk appended", "repository", repositoryName, "session", id, "range", byteRange.String(), "length", length)

	return &storageBackends.UploadStatus{
		Repository: repositoryName,
		SessionId:  id,
		Length:     length,
	}, nil
}

func (b *backend) CompleteUpload(_ context.Context, repositoryName string, id string, data []byte, digest string, byteRange *storageBackends.ByteRange) (*storageBackends.CompletedUpload, error) {
	if digest == "" {
		return nil, storageBackends.ErrDigestMissing
	}

	repo, ok := b.repositories.Get(repositoryName)
	if !ok {
		return nil, storageBackends.ErrRepositoryNotFound
	}

	var offset *int64
	if byteRange != nil {
		offset = &byteRange.Start
	}

	length, err := repo.sessions.complete(id, offset, data, func(content []byte) error {
		if b.options.VerifyDigest {
			err := verify.Content(digest, bytes.NewReader(content))
			if err != nil {
				return err
			}
		}

		repo.blobs.put(digest, content)
		return nil
	})
	if err != nil {
		return nil, err
	}

	logging.Logger.Debugw("upload completed", "repository", repositoryName, "session", id, "digest", digest, "length", length)

	result := &storageBackends.CompletedUpload{
		Repository: repositoryName,
		Digest:     digest,
		Length:     length,
	}
	if byteRange != nil {
		result.Range = &storageBackends.ByteRange{Start: 0, End: length}
	}

	return result, nil
}

func (b *backend) DeleteUpload(_ context.Context, repositoryName string, id string) (*storageBackends.UploadStatus, error) {
	repo, ok := b.repositories.Get(repositoryName)
	if !ok {
		return nil, storageBackends.ErrSessionNotFound
	}

	content, err := repo.sessions.remove(id)
	if err != nil {
		return nil, err
	}

	logging.Logger.Debugw("upload deleted", "repository", repositoryName, "session", id, "length", len(content))

	return &storageBackends.UploadStatus{
		Repository: repositoryName,
		SessionId:  id,
		Length:     int64(len(content)),
	}, nil
}

func (b *backend) HeadBlob(_ context.Context, repositoryName string, digest string) (*storageBackends.BlobInfo, error) {
	repo, ok := b.repositories.Get(repositoryName)
	if !ok {
		return nil, storageBackends.ErrRepositoryNotFound
	}

	length, ok := repo.blobs.length(digest)
	if !ok {
		return nil, storageBackends.ErrBlobNotFound
	}

	return &storageBackends.BlobInfo{
		Repository: repositoryName,
		Digest:     digest,
		Length:     length,
	}, nil
}
