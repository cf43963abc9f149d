package inmemory

import (
	"sync"

	"github.com/google/uuid"
	"github.com/the127/blobyard/internal/storageBackends"
)

// sessionTable holds the in-progress uploads of one repository. Every
// check-and-mutate step runs under mu, which makes the offset check and the
// append a single atomic step per session.
type sessionTable struct {
	mu       sync.Mutex
	sessions map[string][]byte
}

func newSessionTable() *sessionTable {
	return &sessionTable{
		sessions: make(map[string][]byte),
	}
}

func (t *sessionTable) create() string {
	id := uuid.New().String()

	t.mu.Lock()
	defer t.mu.Unlock()

	t.sessions[id] = []byte{}
	return id
}

func (t *sessionTable) length(id string) (int64, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	buffer, ok := t.sessions[id]
	if !ok {
		return 0, storageBackends.ErrSessionNotFound
	}

	return int64(len(buffer)), nil
}

func (t *sessionTable) append(id string, offset int64, data []byte) (int64, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	buffer, ok := t.sessions[id]
	if !ok {
		return 0, storageBackends.ErrSessionNotFound
	}

	err := storageBackends.CheckOffset(int64(len(buffer)), offset)
	if err != nil {
		return 0, err
	}

	buffer = append(buffer, data...)
	t.sessions[id] = buffer
	return int64(len(buffer)), nil
}

// complete appends data and detaches the session. The offset is checked
// only when given. commit receives the full content and runs without the
// table lock held; if it fails the session is put back as it was.
func (t *sessionTable) complete(id string, offset *int64, data []byte, commit func(content []byte) error) (int64, error) {
	buffer, err := t.detach(id, offset)
	if err != nil {
		return 0, err
	}

	content := make([]byte, 0, len(buffer)+len(data))
	content = append(content, buffer...)
	content = append(content, data...)

	err = commit(content)
	if err != nil {
		t.restore(id, buffer)
		return 0, err
	}

	return int64(len(content)), nil
}

func (t *sessionTable) detach(id string, offset *int64) ([]byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	buffer, ok := t.sessions[id]
	if !ok {
		return nil, storageBackends.ErrSessionNotFound
	}

	if offset != nil {
		err := storageBackends.CheckOffset(int64(len(buffer)), *offset)
		if err != nil {
			return nil, err
		}
	}

	delete(t.sessions, id)
	return buffer, nil
}

func (t *sessionTable) restore(id string, buffer []byte) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.sessions[id] = buffer
}

func (t *sessionTable) remove(id string) ([]byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	buffer, ok := t.sessions[id]
	if !ok {
		return nil, storageBackends.ErrSessionNotFound
	}

	delete(t.sessions, id)
	return buffer, nil
}

// snapshot returns a copy of the session's bytes.
func (t *sessionTable) snapshot(id string) ([]byte, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	buffer, ok := t.sessions[id]
	if !ok {
		return nil, false
	}

	return append([]byte(nil), buffer...), true
}
