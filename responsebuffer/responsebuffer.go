// Package responsebuffer stores rendered responses that are waiting for a
// redirect-and-fetch cycle to collect them.
//
// Buffers are keyed by session id and buffer id. Each session keeps at most
// Capacity buffers; storing more evicts the least recently used entry. A
// buffer is removed when it is popped, when its session ends, or when the
// store is cleared during application shutdown.
package responsebuffer

import "sync"

// Capacity bounds the number of buffered responses retained per session.
const Capacity = 4

// Store maps session ids to their in-progress buffered responses.
//
// The zero value is ready to use. Reads and inserts for distinct sessions do
// not contend; mutation of one session's buffers is serialized by that
// session's own lock.
type Store[T any] struct {
	sessions sync.Map // session id -> *sessionBuffers[T]
}

type sessionBuffers[T any] struct {
	mu      sync.Mutex
	entries *mruMap[T]
}

// Add stores a buffered response under the given session and buffer ids.
// Storing a fifth buffer for one session evicts that session's least
// recently used entry.
func (s *Store[T]) Add(sessionID, bufferID string, response T) {
	if sessionID == "" || bufferID == "" {
		return
	}
	value, ok := s.sessions.Load(sessionID)
	if !ok {
		created := &sessionBuffers[T]{entries: newMRUMap[T](Capacity)}
		value, _ = s.sessions.LoadOrStore(sessionID, created)
	}
	buffers := value.(*sessionBuffers[T])
	buffers.mu.Lock()
	buffers.entries.Put(bufferID, response)
	buffers.mu.Unlock()
}

// Pop removes and returns the buffered response for the given ids. It
// reports false when no such buffer exists, which also happens when the
// original request was served by a different process. Removing the last
// buffer of a session prunes the session's entry entirely.
func (s *Store[T]) Pop(sessionID, bufferID string) (T, bool) {
	var zero T
	value, ok := s.sessions.Load(sessionID)
	if !ok {
		return zero, false
	}
	buffers := value.(*sessionBuffers[T])
	buffers.mu.Lock()
	response, found := buffers.entries.Remove(bufferID)
	empty := buffers.entries.Len() == 0
	buffers.mu.Unlock()
	if empty {
		s.sessions.Delete(sessionID)
	}
	if !found {
		return zero, false
	}
	return response, true
}

// DropSession discards all buffered responses held for a session. Call it
// when the session ends.
func (s *Store[T]) DropSession(sessionID string) {
	s.sessions.Delete(sessionID)
}

// Clear discards every buffered response in the store.
func (s *Store[T]) Clear() {
	s.sessions.Range(func(key, _ any) bool {
		s.sessions.Delete(key)
		return true
	})
}

// Len reports the number of buffered responses held for a session.
func (s *Store[T]) Len(sessionID string) int {
	value, ok := s.sessions.Load(sessionID)
	if !ok {
		return 0
	}
	buffers := value.(*sessionBuffers[T])
	buffers.mu.Lock()
	defer buffers.mu.Unlock()
	return buffers.entries.Len()
}

// mruMap is a bounded map that retains its most recently used entries.
// Both reads and writes refresh recency. It is not safe for concurrent use;
// callers hold the owning session's lock.
type mruMap[T any] struct {
	capacity int
	order    []string // oldest first
	values   map[string]T
}

func newMRUMap[T any](capacity int) *mruMap[T] {
	return &mruMap[T]{
		capacity: capacity,
		values:   make(map[string]T, capacity),
	}
}

// Put stores a value, evicting the least recently used entry when the map
// is at capacity.
func (m *mruMap[T]) Put(key string, value T) {
	if _, ok := m.values[key]; ok {
		m.values[key] = value
		m.touch(key)
		return
	}
	if len(m.order) >= m.capacity {
		oldest := m.order[0]
		m.order = m.order[1:]
		delete(m.values, oldest)
	}
	m.order = append(m.order, key)
	m.values[key] = value
}

// Get returns the value for key and refreshes its recency.
func (m *mruMap[T]) Get(key string) (T, bool) {
	value, ok := m.values[key]
	if !ok {
		var zero T
		return zero, false
	}
	m.touch(key)
	return value, true
}

// Remove deletes and returns the value for key.
func (m *mruMap[T]) Remove(key string) (T, bool) {
	value, ok := m.values[key]
	if !ok {
		var zero T
		return zero, false
	}
	delete(m.values, key)
	for i, existing := range m.order {
		if existing == key {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	return value, true
}

// Len reports the number of entries.
func (m *mruMap[T]) Len() int {
	return len(m.values)
}

func (m *mruMap[T]) touch(key string) {
	for i, existing := range m.order {
		if existing == key {
			m.order = append(m.order[:i], m.order[i+1:]...)
			m.order = append(m.order, key)
			return
		}
	}
}
