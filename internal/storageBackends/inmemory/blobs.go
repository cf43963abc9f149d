package inmemory

import (
	"sync"
)

type blobStore struct {
	mu    sync.RWMutex
	blobs map[string][]byte
}

func newBlobStore() *blobStore {
	return &blobStore{
		blobs: make(map[string][]byte),
	}
}

// put replaces any previous content for digest.
func (s *blobStore) put(digest string, content []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.blobs[digest] = content
}

func (s *blobStore) length(digest string) (int64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	content, ok := s.blobs[digest]
	if !ok {
		return 0, false
	}

	return int64(len(content)), true
}

func (s *blobStore) get(digest string) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	content, ok := s.blobs[digest]
	return content, ok
}
