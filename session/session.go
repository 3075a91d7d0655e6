package session

import (
	"crypto/rand"
	"encoding/hex"
	"sort"
	"sync"
	"time"

	"golang.org/x/text/language"
)

// Session holds per-visitor state for one web application.
type Session struct {
	mu           sync.RWMutex
	id           string
	locale       language.Tag
	attributes   map[string]any
	createdAt    time.Time
	lastActiveAt time.Time
	invalidated  bool
}

// New creates a session with the given identifier and locale.
func New(id string, now time.Time, locale language.Tag) *Session {
	return &Session{
		id:           id,
		locale:       locale,
		attributes:   make(map[string]any),
		createdAt:    now,
		lastActiveAt: now,
	}
}

// NewID generates a cryptographically random session identifier.
func NewID() string {
	b := make([]byte, 16)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

// ID returns the session identifier.
func (s *Session) ID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.id
}

// Locale returns the session locale.
func (s *Session) Locale() language.Tag {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.locale
}

// SetLocale changes the session locale.
func (s *Session) SetLocale(tag language.Tag) {
	s.mu.Lock()
	s.locale = tag
	s.mu.Unlock()
}

// CreatedAt returns the session creation time.
func (s *Session) CreatedAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.createdAt
}

// LastActiveAt returns the time of the most recent Touch.
func (s *Session) LastActiveAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastActiveAt
}

// Touch records request activity at the given time.
func (s *Session) Touch(now time.Time) {
	s.mu.Lock()
	s.lastActiveAt = now
	s.mu.Unlock()
}

// Attribute returns the named attribute value.
func (s *Session) Attribute(name string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	value, ok := s.attributes[name]
	return value, ok
}

// SetAttribute stores an attribute value under name.
func (s *Session) SetAttribute(name string, value any) {
	s.mu.Lock()
	s.attributes[name] = value
	s.mu.Unlock()
}

// RemoveAttribute deletes the named attribute.
func (s *Session) RemoveAttribute(name string) {
	s.mu.Lock()
	delete(s.attributes, name)
	s.mu.Unlock()
}

// AttributeNames returns all attribute names in sorted order.
func (s *Session) AttributeNames() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.attributes))
	for name := range s.attributes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Invalidate marks the session for removal at the end of the request.
func (s *Session) Invalidate() {
	s.mu.Lock()
	s.invalidated = true
	s.mu.Unlock()
}

// Invalidated reports whether Invalidate was called.
func (s *Session) Invalidated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.invalidated
}

// Snapshot is the persistable form of a session.
type Snapshot struct {
	ID           string
	Locale       string
	Attributes   map[string]any
	CreatedAt    time.Time
	LastActiveAt time.Time
}

// Snapshot copies the session into its persistable form.
func (s *Session) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	attrs := make(map[string]any, len(s.attributes))
	for name, value := range s.attributes {
		attrs[name] = value
	}
	return Snapshot{
		ID:           s.id,
		Locale:       s.locale.String(),
		Attributes:   attrs,
		CreatedAt:    s.createdAt,
		LastActiveAt: s.lastActiveAt,
	}
}

// Restore rebuilds a session from its persistable form.
func Restore(snap Snapshot) *Session {
	tag, err := language.Parse(snap.Locale)
	if err != nil {
		tag = language.Und
	}
	attrs := make(map[string]any, len(snap.Attributes))
	for name, value := range snap.Attributes {
		attrs[name] = value
	}
	return &Session{
		id:           snap.ID,
		locale:       tag,
		attributes:   attrs,
		createdAt:    snap.CreatedAt,
		lastActiveAt: snap.LastActiveAt,
	}
}
