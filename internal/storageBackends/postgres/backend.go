package postgres

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/the127/blobyard/internal/config"
	"github.com/the127/blobyard/internal/logging"
	"github.com/the127/blobyard/internal/storageBackends"
	"github.com/the127/blobyard/internal/storageBackends/verify"
	"github.com/the127/blobyard/internal/utils"
)

// queryer is satisfied by *sql.DB and *sql.Tx.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type backend struct {
	db      *sql.DB
	options storageBackends.Options
}

func New(pc config.PostgresStorageConfig, options storageBackends.Options) (storageBackends.StorageBackend, error) {
	db, err := connectToDatabase(pc)
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	return &backend{
		db:      db,
		options: options,
	}, nil
}

func (b *backend) Prepare(ctx context.Context) error {
	err := b.db.PingContext(ctx)
	if err != nil {
		return fmt.Errorf("reaching database: %w", err)
	}

	return applyMigrations(b.db)
}

func (b *backend) repositoryExists(ctx context.Context, q queryer, name string) error {
	query, args := repositoryExistsQuery(name)
	logging.Logger.Debugf("query: %s, args: %+v", query, args)

	var one int
	err := q.QueryRowContext(ctx, query, args...).Scan(&one)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return storageBackends.ErrRepositoryNotFound

	case err != nil:
		return fmt.Errorf("looking up repository: %w", err)
	}

	return nil
}

func (b *backend) uploadLength(ctx context.Context, q queryer, repository string, id string) (int64, error) {
	query, args := uploadLengthQuery(repository, id)
	logging.Logger.Debugf("query: %s, args: %+v", query, args)

	var length int64
	err := q.QueryRowContext(ctx, query, args...).Scan(&length)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return 0, storageBackends.ErrSessionNotFound

	case err != nil:
		return 0, fmt.Errorf("reading upload: %w", err)
	}

	return length, nil
}

func (b *backend) StartUpload(ctx context.Context, repositoryName string) (*storageBackends.UploadStatus, error) {
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer utils.IgnoreError(tx.Rollback)

	query, args := insertRepositoryQuery(repositoryName)
	logging.Logger.Debugf("query: %s, args: %+v", query, args)
	_, err = tx.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("inserting repository: %w", err)
	}

	id := uuid.New().String()
	query, args = insertUploadQuery(repositoryName, id)
	logging.Logger.Debugf("query: %s, args: %+v", query, args)
	_, err = tx.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("inserting upload: %w", err)
	}

	err = tx.Commit()
	if err != nil {
		return nil, fmt.Errorf("committing transaction: %w", err)
	}

	logging.Logger.Debugw("upload started", "repository", repositoryName, "session", id)

	return &storageBackends.UploadStatus{
		Repository: repositoryName,
		SessionId:  id,
		Length:     0,
	}, nil
}

func (b *backend) GetUploadStatus(ctx context.Context, repositoryName string, id string) (*storageBackends.UploadStatus, error) {
	err := b.repositoryExists(ctx, b.db, repositoryName)
	if err != nil {
		return nil, err
	}

	length, err := b.uploadLength(ctx, b.db, repositoryName, id)
	if err != nil {
		return nil, err
	}

	return &storageBackends.UploadStatus{
		Repository: repositoryName,
		SessionId:  id,
		Length:     length,
	}, nil
}

func (b *backend) AppendChunk(ctx context.Context, repositoryName string, id string, byteRange storageBackends.ByteRange, data []byte) (*storageBackends.UploadStatus, error) {
	err := b.repositoryExists(ctx, b.db, repositoryName)
	if err != nil {
		return nil, err
	}

	query, args := appendUploadQuery(repositoryName, id, byteRange.Start, data)
	logging.Logger.Debugf("query: %s, args: %d bytes", query, len(data))

	var length int64
	err = b.db.QueryRowContext(ctx, query, args...).Scan(&length)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		// either the session is gone or it is at a different offset
		current, err := b.uploadLength(ctx, b.db, repositoryName, id)
		if err != nil {
			return nil, err
		}
		return nil, storageBackends.NewOffsetConflictError(current, byteRange.Start)

	case err != nil:
		return nil, fmt.Errorf("appending chunk: %w", err)
	}

	logging.Logger.Debugw("chunk appended", "repository", repositoryName, "session", id, "range", byteRange.String(), "length", length)

	return &storageBackends.UploadStatus{
		Repository: repositoryName,
		SessionId:  id,
		Length:     length,
	}, nil
}

func (b *backend) CompleteUpload(ctx context.Context, repositoryName string, id string, data []byte, digest string, byteRange *storageBackends.ByteRange) (*storageBackends.CompletedUpload, error) {
	if digest == "" {
		return nil, storageBackends.ErrDigestMissing
	}

	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer utils.IgnoreError(tx.Rollback)

	err = b.repositoryExists(ctx, tx, repositoryName)
	if err != nil {
		return nil, err
	}

	// concurrent completions of the same session queue up on this row lock;
	// all but the first find the row deleted
	query, args := lockUploadQuery(repositoryName, id)
	logging.Logger.Debugf("query: %s, args: %+v", query, args)

	var content []byte
	err = tx.QueryRowContext(ctx, query, args...).Scan(&content)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, storageBackends.ErrSessionNotFound

	case err != nil:
		return nil, fmt.Errorf("locking upload: %w", err)
	}

	if byteRange != nil {
		err = storageBackends.CheckOffset(int64(len(content)), byteRange.Start)
		if err != nil {
			return nil, err
		}
	}

	content = append(content, data...)

	if b.options.VerifyDigest {
		err = verify.Content(digest, bytes.NewReader(content))
		if err != nil {
			return nil, err
		}
	}

	query, args = upsertBlobQuery(repositoryName, digest, content)
	logging.Logger.Debugf("query: %s, args: %d bytes", query, len(content))
	_, err = tx.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("writing blob: %w", err)
	}

	query, args = deleteUploadQuery(repositoryName, id)
	logging.Logger.Debugf("query: %s, args: %+v", query, args)
	_, err = tx.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("removing completed upload: %w", err)
	}

	err = tx.Commit()
	if err != nil {
		return nil, fmt.Errorf("committing transaction: %w", err)
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

func (b *backend) DeleteUpload(ctx context.Context, repositoryName string, id string) (*storageBackends.UploadStatus, error) {
	query, args := deleteUploadQuery(repositoryName, id)
	logging.Logger.Debugf("query: %s, args: %+v", query, args)

	var length int64
	err := b.db.QueryRowContext(ctx, query, args...).Scan(&length)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, storageBackends.ErrSessionNotFound

	case err != nil:
		return nil, fmt.Errorf("removing upload: %w", err)
	}

	logging.Logger.Debugw("upload deleted", "repository", repositoryName, "session", id, "length", length)

	return &storageBackends.UploadStatus{
		Repository: repositoryName,
		SessionId:  id,
		Length:     length,
	}, nil
}

func (b *backend) HeadBlob(ctx context.Context, repositoryName string, digest string) (*storageBackends.BlobInfo, error) {
	err := b.repositoryExists(ctx, b.db, repositoryName)
	if err != nil {
		return nil, err
	}

	query, args := blobLengthQuery(repositoryName, digest)
	logging.Logger.Debugf("query: %s, args: %+v", query, args)

	var length int64
	err = b.db.QueryRowContext(ctx, query, args...).Scan(&length)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, storageBackends.ErrBlobNotFound

	case err != nil:
		return nil, fmt.Errorf("reading blob: %w", err)
	}

	return &storageBackends.BlobInfo{
		Repository: repositoryName,
		Digest:     digest,
		Length:     length,
	}, nil
}
