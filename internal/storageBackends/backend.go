package storageBackends

import (
	"context"
	"fmt"
)

// ByteRange is a parsed "<start>-<end>" range token. Only Start is checked
// against the upload; End is what the client declared and is echoed as-is.
type ByteRange struct {
	Start int64
	End   int64
}

func (r ByteRange) String() string {
	return fmt.Sprintf("%d-%d", r.Start, r.End)
}

type UploadStatus struct {
	Repository string
	SessionId  string
	Length     int64
}

// Location is the resume pointer for the upload session.
func (s UploadStatus) Location() string {
	return fmt.Sprintf("/v2/%s/blobs/uploads/%s", s.Repository, s.SessionId)
}

type CompletedUpload struct {
	Repository string
	Digest     string
	Length     int64

	// Range is only set when the completing request carried a range.
	Range *ByteRange
}

func (c CompletedUpload) Location() string {
	return blobLocation(c.Repository, c.Digest)
}

type BlobInfo struct {
	Repository string
	Digest     string
	Length     int64
}

func (b BlobInfo) Location() string {
	return blobLocation(b.Repository, b.Digest)
}

func blobLocation(repository string, digest string) string {
	return fmt.Sprintf("/v2/%s/blobs/%s", repository, digest)
}

type Options struct {
	// VerifyDigest recomputes the content digest on completion and rejects
	// a mismatch instead of treating the digest as an opaque key.
	VerifyDigest bool
}

// StorageBackend is the upload session state machine and blob lookup. A
// session goes Absent -> InProgress -> Completed | Deleted; both terminal
// states remove the session id from its repository.
type StorageBackend interface {
	StartUpload(ctx context.Context, repository string) (*UploadStatus, error)
	GetUploadStatus(ctx context.Context, repository string, id string) (*UploadStatus, error)
	AppendChunk(ctx context.Context, repository string, id string, byteRange ByteRange, data []byte) (*UploadStatus, error)
	CompleteUpload(ctx context.Context, repository string, id string, data []byte, digest string, byteRange *ByteRange) (*CompletedUpload, error)
	DeleteUpload(ctx context.Context, repository string, id string) (*UploadStatus, error)
	HeadBlob(ctx context.Context, repository string, digest string) (*BlobInfo, error)
}

// Preparer is implemented by backends that need to reach external state
// (schemas, connections, directories) before serving requests.
type Preparer interface {
	Prepare(ctx context.Context) error
}
