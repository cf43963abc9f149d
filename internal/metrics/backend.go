package metrics

import (
	"context"
	"time"

	"github.com/the127/blobyard/internal/storageBackends"
)

type instrumentedBackend struct {
	storageBackends.StorageBackend
	collector *Collector
}

// Instrument records every backend call on the collector.
func Instrument(backend storageBackends.StorageBackend, collector *Collector) storageBackends.StorageBackend {
	return &instrumentedBackend{
		StorageBackend: backend,
		collector:      collector,
	}
}

func (b *instrumentedBackend) StartUpload(ctx context.Context, repository string) (*storageBackends.UploadStatus, error) {
	start := time.Now()
	status, err := b.StorageBackend.StartUpload(ctx, repository)
	b.collector.Observe("StartUpload", start, err)
	return status, err
}

func (b *instrumentedBackend) GetUploadStatus(ctx context.Context, repository string, id string) (*storageBackends.UploadStatus, error) {
	start := time.Now()
	status, err := b.StorageBackend.GetUploadStatus(ctx, repository, id)
	b.collector.Observe("GetUploadStatus", start, err)
	return status, err
}

func (b *instrumentedBackend) AppendChunk(ctx context.Context, repository string, id string, byteRange storageBackends.ByteRange, data []byte) (*storageBackends.UploadStatus, error) {
	start := time.Now()
	status, err := b.StorageBackend.AppendChunk(ctx, repository, id, byteRange, data)
	b.collector.Observe("AppendChunk", start, err)
	return status, err
}

func (b *instrumentedBackend) CompleteUpload(ctx context.Context, repository string, id string, data []byte, digest string, byteRange *storageBackends.ByteRange) (*storageBackends.CompletedUpload, error) {
	start := time.Now()
	completed, err := b.StorageBackend.CompleteUpload(ctx, repository, id, data, digest, byteRange)
	b.collector.Observe("CompleteUpload", start, err)
	return completed, err
}

func (b *instrumentedBackend) DeleteUpload(ctx context.Context, repository string, id string) (*storageBackends.UploadStatus, error) {
	start := time.Now()
	status, err := b.StorageBackend.DeleteUpload(ctx, repository, id)
	b.collector.Observe("DeleteUpload", start, err)
	return status, err
}

func (b *instrumentedBackend) HeadBlob(ctx context.Context, repository string, digest string) (*storageBackends.BlobInfo, error) {
	start := time.Now()
	info, err := b.StorageBackend.HeadBlob(ctx, repository, digest)
	b.collector.Observe("HeadBlob", start, err)
	return info, err
}
