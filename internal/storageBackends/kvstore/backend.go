package kvstore

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"hash/fnv"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/the127/blobyard/internal/logging"
	"github.com/the127/blobyard/internal/services/kv"
	"github.com/the127/blobyard/internal/storageBackends"
	"github.com/the127/blobyard/internal/storageBackends/repodir"
	"github.com/the127/blobyard/internal/storageBackends/verify"
)

const sessionLockStripes = 32

type repository struct {
	key string

	// a session id always maps to the same stripe, so every check-and-mutate
	// step of one session is serialized without a lock per session
	sessionLocks [sessionLockStripes]sync.Mutex

	blobsMu sync.RWMutex
}

func (r *repository) sessionLock(id string) *sync.Mutex {
	h := fnv.New32a()
	_, _ = h.Write([]byte(id))
	return &r.sessionLocks[h.Sum32()%sessionLockStripes]
}

func (r *repository) uploadKey(id string) string {
	return "upload:" + r.key + ":" + id
}

func (r *repository) blobKey(digest string) string {
	return "blob:" + r.key + ":" + digest
}

func repositoryKey(name string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(name))
}

func markerKey(name string) string {
	return "repository:" + repositoryKey(name)
}

func newRepository(name string) *repository {
	return &repository{
		key: repositoryKey(name),
	}
}

type backend struct {
	store        kv.Store
	options      storageBackends.Options
	repositories *repodir.Directory[*repository]
}

func New(store kv.Store, options storageBackends.Options) (storageBackends.StorageBackend, error) {
	repositories, err := repodir.New(newRepository)
	if err != nil {
		return nil, fmt.Errorf("creating kv backend: %w", err)
	}

	return &backend{
		store:        store,
		options:      options,
		repositories: repositories,
	}, nil
}

func (b *backend) Prepare(ctx context.Context) error {
	err := b.store.Ping(ctx)
	if err != nil {
		return fmt.Errorf("reaching kv store: %w", err)
	}

	return nil
}

func (b *backend) getRepository(ctx context.Context, name string) (*repository, error) {
	repo, ok, err := b.repositories.GetOrLoad(name, func(name string) (bool, error) {
		_, found, err := b.store.Get(ctx, markerKey(name))
		return found, err
	})
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, storageBackends.ErrRepositoryNotFound
	}

	return repo, nil
}

func (b *backend) loadUpload(ctx context.Context, repo *repository, id string) (string, error) {
	content, ok, err := b.store.Get(ctx, repo.uploadKey(id))
	if err != nil {
		return "", fmt.Errorf("reading upload: %w", err)
	}
	if !ok {
		return "", storageBackends.ErrSessionNotFound
	}

	return content, nil
}

func (b *backend) StartUpload(ctx context.Context, repositoryName string) (*storageBackends.UploadStatus, error) {
	repo := b.repositories.GetOrCreate(repositoryName)

	err := b.store.Set(ctx, markerKey(repositoryName), repositoryName)
	if err != nil {
		return nil, fmt.Errorf("writing repository marker: %w", err)
	}

	id := uuid.New().String()
	err = b.store.Set(ctx, repo.uploadKey(id), "")
	if err != nil {
		return nil, fmt.Errorf("writing upload: %w", err)
	}

	logging.Logger.Debugw("upload started", "repository", repositoryName, "session", id)

	return &storageBackends.UploadStatus{
		Repository: repositoryName,
		SessionId:  id,
		Length:     0,
	}, nil
}

func (b *backend) GetUploadStatus(ctx context.Context, repositoryName string, id string) (*storageBackends.UploadStatus, error) {
	repo, err := b.getRepository(ctx, repositoryName)
	if err != nil {
		return nil, err
	}

	content, err := b.loadUpload(ctx, repo, id)
	if err != nil {
		return nil, err
	}

	return &storageBackends.UploadStatus{
		Repository: repositoryName,
		SessionId:  id,
		Length:     int64(len(content)),
	}, nil
}

func (b *backend) AppendChunk(ctx context.Context, repositoryName string, id string, byteRange storageBackends.ByteRange, data []byte) (*storageBackends.UploadStatus, error) {
	repo, err := b.getRepository(ctx, repositoryName)
	if err != nil {
		return nil, err
	}

	lock := repo.sessionLock(id)
	lock.Lock()
	defer lock.Unlock()

	content, err := b.loadUpload(ctx, repo, id)
	if err != nil {
		return nil, err
	}

	err = storageBackends.CheckOffset(int64(len(content)), byteRange.Start)
	if err != nil {
		return nil, err
	}

	content += string(data)
	err = b.store.Set(ctx, repo.uploadKey(id), content)
	if err != nil {
		return nil, fmt.Errorf("writing upload: %w", err)
	}

	logging.Logger.Debugw("chunk appended", "repository", repositoryName, "session", id, "range", byteRange.String(), "length", len(content))

	return &storageBackends.UploadStatus{
		Repository: repositoryName,
		SessionId:  id,
		Length:     int64(len(content)),
	}, nil
}

func (b *backend) CompleteUpload(ctx context.Context, repositoryName string, id string, data []byte, digest string, byteRange *storageBackends.ByteRange) (*storageBackends.CompletedUpload, error) {
	if digest == "" {
		return nil, storageBackends.ErrDigestMissing
	}

	repo, err := b.getRepository(ctx, repositoryName)
	if err != nil {
		return nil, err
	}

	lock := repo.sessionLock(id)
	lock.Lock()
	defer lock.Unlock()

	content, err := b.loadUpload(ctx, repo, id)
	if err != nil {
		return nil, err
	}

	if byteRange != nil {
		err = storageBackends.CheckOffset(int64(len(content)), byteRange.Start)
		if err != nil {
			return nil, err
		}
	}

	uploaded := content
	content += string(data)

	if b.options.VerifyDigest {
		err = verify.Content(digest, strings.NewReader(content))
		if err != nil {
			return nil, err
		}
	}

	// the session is detached before the blob becomes visible, so a failed
	// step can never leave a committed blob behind a live session
	err = b.store.Delete(ctx, repo.uploadKey(id))
	if err != nil {
		return nil, fmt.Errorf("removing completed upload: %w", err)
	}

	err = b.putBlob(ctx, repo, digest, content)
	if err != nil {
		restoreErr := b.store.Set(ctx, repo.uploadKey(id), uploaded)
		if restoreErr != nil {
			logging.Logger.Errorw("restoring upload after failed commit", "repository", repositoryName, "session", id, "error", restoreErr)
		}
		return nil, err
	}

	length := int64(len(content))
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

func (b *backend) putBlob(ctx context.Context, repo *repository, digest string, content string) error {
	repo.blobsMu.Lock()
	defer repo.blobsMu.Unlock()

	err := b.store.Set(ctx, repo.blobKey(digest), content)
	if err != nil {
		return fmt.Errorf("writing blob: %w", err)
	}

	return nil
}

func (b *backend) DeleteUpload(ctx context.Context, repositoryName string, id string) (*storageBackends.UploadStatus, error) {
	repo, err := b.getRepository(ctx, repositoryName)
	if errors.Is(err, storageBackends.ErrRepositoryNotFound) {
		return nil, storageBackends.ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}

	lock := repo.sessionLock(id)
	lock.Lock()
	defer lock.Unlock()

	content, err := b.loadUpload(ctx, repo, id)
	if err != nil {
		return nil, err
	}

	err = b.store.Delete(ctx, repo.uploadKey(id))
	if err != nil {
		return nil, fmt.Errorf("removing upload: %w", err)
	}

	logging.Logger.Debugw("upload deleted", "repository", repositoryName, "session", id, "length", len(content))

	return &storageBackends.UploadStatus{
		Repository: repositoryName,
		SessionId:  id,
		Length:     int64(len(content)),
	}, nil
}

func (b *backend) HeadBlob(ctx context.Context, repositoryName string, digest string) (*storageBackends.BlobInfo, error) {
	repo, err := b.getRepository(ctx, repositoryName)
	if err != nil {
		return nil, err
	}

	repo.blobsMu.RLock()
	content, ok, err := b.store.Get(ctx, repo.blobKey(digest))
	repo.blobsMu.RUnlock()

	if err != nil {
		return nil, fmt.Errorf("reading blob: %w", err)
	}
	if !ok {
		return nil, storageBackends.ErrBlobNotFound
	}

	return &storageBackends.BlobInfo{
		Repository: repositoryName,
		Digest:     digest,
		Length:     int64(len(content)),
	}, nil
}
